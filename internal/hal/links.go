// Package hal builds hypermedia envelopes: navigation links, pagination, caller-specific
// affordances and problem documents. Everything here is computed per request.
package hal

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Media types used by the envelopes in this package.
const (
	MediaTypeHAL     = "application/hal+json"
	MediaTypeProblem = "application/problem+json"
)

// Link is a single hypermedia control.
type Link struct {
	Href      string `json:"href"`
	Method    string `json:"method,omitempty"`
	Type      string `json:"type,omitempty"`
	Title     string `json:"title,omitempty"`
	Templated bool   `json:"templated,omitempty"`
}

// Links maps relation names to links.
type Links map[string]Link

// Has reports whether rel is present.
func (l Links) Has(rel string) bool {
	_, ok := l[rel]
	return ok
}

// Config carries the values shared by the builders in this package.
type Config struct {
	BaseURL         string
	ProblemBaseURL  string
	DefaultPageSize int
	MaxPageSize     int
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func (c Config) normalised() Config {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	c.ProblemBaseURL = strings.TrimRight(strings.TrimSpace(c.ProblemBaseURL), "/")
	if c.ProblemBaseURL == "" {
		c.ProblemBaseURL = c.BaseURL + "/problems"
	}
	if c.MaxPageSize <= 0 {
		c.MaxPageSize = maxPageSize
	}
	if c.DefaultPageSize <= 0 {
		c.DefaultPageSize = defaultPageSize
	}
	if c.DefaultPageSize > c.MaxPageSize {
		c.DefaultPageSize = c.MaxPageSize
	}
	return c
}

// Builder turns paths into absolute links under the configured base URL.
type Builder struct {
	cfg Config
}

// NewBuilder constructs a Builder. The base URL is used without a trailing slash.
func NewBuilder(cfg Config) *Builder {
	return &Builder{cfg: cfg.normalised()}
}

// Config returns the normalised configuration.
func (b *Builder) Config() Config {
	return b.cfg
}

// URL joins path and query onto the base URL. Query keys are emitted in sorted order.
func (b *Builder) URL(path string, query url.Values) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	href := b.cfg.BaseURL + path
	if encoded := query.Encode(); encoded != "" {
		href += "?" + encoded
	}
	return href
}

// Link returns a GET link to path.
func (b *Builder) Link(path string) Link {
	return Link{Href: b.URL(path, nil), Method: http.MethodGet}
}

// Action returns a link describing a state-changing request.
func (b *Builder) Action(method, path, title string) Link {
	return Link{Href: b.URL(path, nil), Method: method, Title: title}
}

// Collection returns the navigation links for one page of a collection. self is always
// present; first/prev only after page one; next/last only before the final page. Every
// link repeats the caller's filters plus page and page_size.
func (b *Builder) Collection(path string, p Pagination) Links {
	totalPages := p.TotalPages()

	links := Links{
		"self": b.pageLink(path, p, p.Page),
	}
	if p.Page > 1 {
		links["first"] = b.pageLink(path, p, 1)
		links["prev"] = b.pageLink(path, p, p.Page-1)
	}
	if p.Page < totalPages {
		links["next"] = b.pageLink(path, p, p.Page+1)
		links["last"] = b.pageLink(path, p, totalPages)
	}
	return links
}

func (b *Builder) pageLink(path string, p Pagination, page int) Link {
	query := make(url.Values, len(p.Filters)+2)
	for key, values := range p.Filters {
		query[key] = append([]string(nil), values...)
	}
	query.Set("page", strconv.Itoa(page))
	query.Set("page_size", strconv.Itoa(p.PageSize))
	return Link{Href: b.URL(path, query), Method: http.MethodGet}
}
