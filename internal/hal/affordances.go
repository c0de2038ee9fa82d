package hal

import (
	"net/http"
	"net/url"

	"github.com/civicalert/civicalert/internal/lifecycle"
	"github.com/civicalert/civicalert/internal/models"
	"github.com/civicalert/civicalert/internal/permissions"
)

// ResourceType tags the kind of resource being rendered.
type ResourceType string

const (
	ResourceNotification ResourceType = "notification"
	ResourceUser         ResourceType = "user"
	ResourceOrganization ResourceType = "organization"
)

// UserStateRoot marks a root account, which can never be deleted.
const UserStateRoot = "root"

// Subject describes the resource an affordance set is computed for.
type Subject struct {
	Type           ResourceType
	ID             string
	State          string
	OrganizationID string
}

// rule exposes one action. Both gates must pass: permitted checks the caller's grants
// (and identity for ownership-sensitive actions); legal checks the resource state.
type rule struct {
	rel       string
	method    string
	title     string
	suffix    string
	permitted func(caller permissions.CallerContext, s Subject) bool
	legal     func(s Subject) bool
	// link overrides the default method+path link.
	link func(b *Builder, s Subject) Link
}

type resourceRules struct {
	collection string
	rules      []rule
}

// Calculator computes caller- and state-specific affordances.
type Calculator struct {
	builder   *Builder
	resources map[ResourceType]resourceRules
}

// NewCalculator constructs a Calculator with the built-in rule table.
func NewCalculator(builder *Builder) *Calculator {
	return &Calculator{builder: builder, resources: defaultRules()}
}

// Affordances returns self, collection and every action the caller may take on s in its
// current state. Unknown resource types yield only self.
func (c *Calculator) Affordances(caller permissions.CallerContext, s Subject) Links {
	res, ok := c.resources[s.Type]
	if !ok {
		return Links{"self": c.builder.Link("/api/" + string(s.Type) + "/" + url.PathEscape(s.ID))}
	}

	self := res.collection + "/" + url.PathEscape(s.ID)
	links := Links{
		"self":       c.builder.Link(self),
		"collection": c.builder.Link(res.collection),
	}

	for _, r := range res.rules {
		if r.permitted != nil && !r.permitted(caller, s) {
			continue
		}
		if r.legal != nil && !r.legal(s) {
			continue
		}
		if r.link != nil {
			links[r.rel] = r.link(c.builder, s)
			continue
		}
		links[r.rel] = c.builder.Action(r.method, self+r.suffix, r.title)
	}
	return links
}

func requires(token permissions.Token) func(permissions.CallerContext, Subject) bool {
	return func(caller permissions.CallerContext, _ Subject) bool {
		return caller.Can(token)
	}
}

func statusAllows(action lifecycle.Action) func(Subject) bool {
	return func(s Subject) bool {
		return lifecycle.StatusAllows(action, models.NotificationStatus(s.State))
	}
}

func defaultRules() map[ResourceType]resourceRules {
	return map[ResourceType]resourceRules{
		ResourceNotification: {
			collection: "/api/notifications",
			rules: []rule{
				{
					rel: "approve", method: http.MethodPost, title: "Approve notification", suffix: "/approve",
					permitted: requires(permissions.NotificationApprove),
					legal:     statusAllows(lifecycle.ActionApprove),
				},
				{
					rel: "deny", method: http.MethodPost, title: "Deny notification", suffix: "/deny",
					permitted: requires(permissions.NotificationDeny),
					legal:     statusAllows(lifecycle.ActionDeny),
				},
				{
					rel: "delete", method: http.MethodDelete, title: "Delete notification",
					permitted: requires(permissions.NotificationDelete),
				},
				{
					rel: "audit", method: http.MethodGet, title: "Audit trail", suffix: "/audit",
					permitted: requires(permissions.AuditRead),
				},
			},
		},
		ResourceUser: {
			collection: "/api/users",
			rules: []rule{
				{
					rel: "edit", method: http.MethodPatch, title: "Edit user",
					permitted: func(caller permissions.CallerContext, s Subject) bool {
						if caller.Can(permissions.UserUpdate) {
							return true
						}
						return caller.IsSelf(s.ID) && caller.Can(permissions.ProfileUpdate)
					},
				},
				{
					rel: "delete", method: http.MethodDelete, title: "Delete user",
					permitted: func(caller permissions.CallerContext, s Subject) bool {
						return caller.Can(permissions.UserDelete) && !caller.IsSelf(s.ID)
					},
					legal: func(s Subject) bool { return s.State != UserStateRoot },
				},
			},
		},
		ResourceOrganization: {
			collection: "/api/organizations",
			rules: []rule{
				{
					rel: "edit", method: http.MethodPatch, title: "Edit organization",
					permitted: requires(permissions.OrganizationUpdate),
				},
				{
					rel:       "notifications",
					permitted: requires(permissions.NotificationRead),
					link: func(b *Builder, s Subject) Link {
						query := url.Values{"organization_id": []string{s.ID}}
						return Link{Href: b.URL("/api/notifications", query), Method: http.MethodGet, Title: "Notifications"}
					},
				},
			},
		},
	}
}
