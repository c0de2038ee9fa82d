package hal

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/civicalert/civicalert/internal/permissions"
	apperrors "github.com/civicalert/civicalert/pkg/errors"
)

// Renderer composes entity payloads, affordances and navigation into envelopes.
type Renderer struct {
	builder    *Builder
	calculator *Calculator
}

// NewRenderer constructs a Renderer from cfg.
func NewRenderer(cfg Config) *Renderer {
	builder := NewBuilder(cfg)
	return &Renderer{builder: builder, calculator: NewCalculator(builder)}
}

// Builder exposes the link builder used by the renderer.
func (r *Renderer) Builder() *Builder {
	return r.builder
}

// Resource renders fields (any JSON-encodable struct or map) with the caller's affordances
// for subject.
func (r *Renderer) Resource(caller permissions.CallerContext, subject Subject, fields any) (Resource, error) {
	return NewResource(fields, r.calculator.Affordances(caller, subject))
}

// NewResource renders fields with a fixed link set, for read-only resources that carry no
// affordances.
func NewResource(fields any, links Links) (Resource, error) {
	flat, err := flatten(fields)
	if err != nil {
		return Resource{}, err
	}
	if links == nil {
		links = Links{}
	}
	return Resource{Fields: flat, Links: links}, nil
}

// Collection wraps already-rendered items in a paginated envelope for path.
func (r *Renderer) Collection(path string, p Pagination, items []Resource) Collection {
	return Collection{
		Total:      p.Total,
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalPages: p.TotalPages(),
		Links:      r.builder.Collection(path, p),
		Items:      items,
	}
}

// Problem converts err into a problem document for the request at instance. Internal
// error text is only included when exposeInternal is set.
func (r *Renderer) Problem(err error, instance string, exposeInternal bool) Problem {
	appErr := apperrors.FromError(err)
	if appErr == nil {
		appErr = apperrors.ErrInternalServer
	}

	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}
	kind := appErr.Kind
	if kind == "" {
		kind = apperrors.KindInternal
	}

	detail := appErr.Detail
	if exposeInternal && appErr.Internal != nil {
		if detail != "" {
			detail += ": "
		}
		detail += appErr.Internal.Error()
	}

	typeURI := r.ProblemType(kind)
	return Problem{
		Type:     typeURI,
		Title:    appErr.Message,
		Status:   status,
		Detail:   detail,
		Instance: instance,
		Errors:   appErr.Fields,
		Links:    Links{"help": {Href: typeURI, Type: "text/html", Title: appErr.Message}},
	}
}

// ProblemType returns the stable URI for kind.
func (r *Renderer) ProblemType(kind apperrors.Kind) string {
	return r.builder.cfg.ProblemBaseURL + "/" + string(kind)
}

func flatten(fields any) (map[string]any, error) {
	if fields == nil {
		return map[string]any{}, nil
	}
	if m, ok := fields.(map[string]any); ok {
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out, nil
	}

	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("hal: encode fields: %w", err)
	}
	var decoded any
	if err := decodeValue(data, &decoded); err != nil {
		return nil, err
	}
	out, ok := decoded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("hal: fields must encode to an object, got %T", decoded)
	}
	return out, nil
}
