package permissions

// Core tokens used by the control plane.
const (
	NotificationRead    Token = "notification:read"
	NotificationCreate  Token = "notification:create"
	NotificationApprove Token = "notification:approve"
	NotificationDeny    Token = "notification:deny"
	NotificationDelete  Token = "notification:delete"
	NotificationReview  Token = "notification:review"

	AuditRead Token = "audit:read"

	UserRead   Token = "user:read"
	UserUpdate Token = "user:update"
	UserDelete Token = "user:delete"

	ProfileUpdate Token = "profile:update"

	OrganizationRead   Token = "organization:read"
	OrganizationUpdate Token = "organization:update"
)

func init() {
	perms := []*Permission{
		{Token: NotificationRead, Description: "View notifications"},
		{Token: NotificationCreate, DependsOn: []Token{NotificationRead}, Description: "Submit notifications"},
		{Token: NotificationApprove, DependsOn: []Token{NotificationRead}, Description: "Approve received notifications"},
		{Token: NotificationDeny, DependsOn: []Token{NotificationRead}, Description: "Deny received notifications"},
		{Token: NotificationDelete, DependsOn: []Token{NotificationRead}, Description: "Remove notifications"},
		{
			Token:       NotificationReview,
			Implies:     []Token{NotificationRead, NotificationApprove, NotificationDeny},
			Description: "Review notifications (approve and deny)",
		},
		{Token: AuditRead, Description: "View audit trails"},
		{Token: UserRead, Description: "View users"},
		{Token: UserUpdate, DependsOn: []Token{UserRead}, Description: "Edit any user"},
		{Token: UserDelete, DependsOn: []Token{UserRead}, Description: "Delete users"},
		{Token: ProfileUpdate, Description: "Edit own profile"},
		{Token: OrganizationRead, Description: "View organizations"},
		{Token: OrganizationUpdate, DependsOn: []Token{OrganizationRead}, Description: "Manage organizations"},
	}

	for _, perm := range perms {
		if err := Register(perm); err != nil {
			panic(err)
		}
	}
}
