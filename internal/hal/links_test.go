package hal

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/civicalert/civicalert/pkg/errors"
)

func testConfig() Config {
	return Config{BaseURL: "https://alerts.example.gov/", ProblemBaseURL: "https://alerts.example.gov/problems"}
}

func TestBuilderTrimsTrailingSlash(t *testing.T) {
	b := NewBuilder(testConfig())
	require.Equal(t, "https://alerts.example.gov/api/notifications/n-1", b.Link("/api/notifications/n-1").Href)
	require.Equal(t, "https://alerts.example.gov/api/users", b.URL("api/users", nil))
	require.Equal(t, "GET", b.Link("/x").Method)
}

func TestCollectionEmptyHasOnlySelf(t *testing.T) {
	b := NewBuilder(testConfig())
	p := Pagination{Page: 1, PageSize: 20, Total: 0}

	require.Equal(t, 1, p.TotalPages())
	links := b.Collection("/api/notifications", p)
	require.Len(t, links, 1)
	require.True(t, links.Has("self"))
}

func TestCollectionFirstPage(t *testing.T) {
	b := NewBuilder(testConfig())
	p := Pagination{Page: 1, PageSize: 10, Total: 25}

	require.Equal(t, 3, p.TotalPages())
	links := b.Collection("/api/notifications", p)
	require.True(t, links.Has("next"))
	require.True(t, links.Has("last"))
	require.False(t, links.Has("prev"))
	require.False(t, links.Has("first"))

	last, err := url.Parse(links["last"].Href)
	require.NoError(t, err)
	require.Equal(t, "3", last.Query().Get("page"))
	require.Equal(t, "10", last.Query().Get("page_size"))

	next, err := url.Parse(links["next"].Href)
	require.NoError(t, err)
	require.Equal(t, "2", next.Query().Get("page"))
}

func TestCollectionLastPage(t *testing.T) {
	b := NewBuilder(testConfig())
	links := b.Collection("/api/notifications", Pagination{Page: 3, PageSize: 10, Total: 25})

	require.False(t, links.Has("next"))
	require.False(t, links.Has("last"))
	require.True(t, links.Has("prev"))
	require.True(t, links.Has("first"))

	prev, err := url.Parse(links["prev"].Href)
	require.NoError(t, err)
	require.Equal(t, "2", prev.Query().Get("page"))
}

func TestCollectionBeyondLastPageIsNotClamped(t *testing.T) {
	b := NewBuilder(testConfig())
	links := b.Collection("/api/notifications", Pagination{Page: 9, PageSize: 10, Total: 25})

	self, err := url.Parse(links["self"].Href)
	require.NoError(t, err)
	require.Equal(t, "9", self.Query().Get("page"))
	require.False(t, links.Has("next"))
	require.True(t, links.Has("prev"))
}

func TestCollectionLinksCarryFilters(t *testing.T) {
	b := NewBuilder(testConfig())
	p := Pagination{
		Page:     2,
		PageSize: 10,
		Total:    45,
		Filters:  url.Values{"status": {"received"}, "severity": {"4"}},
	}

	links := b.Collection("/api/notifications", p)
	require.Len(t, links, 5)
	for rel, link := range links {
		parsed, err := url.Parse(link.Href)
		require.NoError(t, err)
		q := parsed.Query()
		require.Equal(t, "received", q.Get("status"), rel)
		require.Equal(t, "4", q.Get("severity"), rel)
		require.NotEmpty(t, q.Get("page"), rel)
		require.Equal(t, "10", q.Get("page_size"), rel)
	}
	require.Equal(t,
		"https://alerts.example.gov/api/notifications?page=2&page_size=10&severity=4&status=received",
		links["self"].Href)

	require.Len(t, p.Filters, 2, "filters are not mutated by link building")
}

func TestParsePaginationDefaultsAndClamp(t *testing.T) {
	p, err := ParsePagination(url.Values{}, nil, Config{})
	require.NoError(t, err)
	require.Equal(t, 1, p.Page)
	require.Equal(t, 20, p.PageSize)

	p, err = ParsePagination(url.Values{"page": {"4"}, "page_size": {"5000"}}, nil, Config{MaxPageSize: 50})
	require.NoError(t, err)
	require.Equal(t, 4, p.Page)
	require.Equal(t, 50, p.PageSize)
	require.Equal(t, 150, p.Offset())
}

func TestParsePaginationKeepsAllowListedFilters(t *testing.T) {
	query := url.Values{
		"status":   {"received"},
		"severity": {"4", "5"},
		"debug":    {"true"},
	}

	p, err := ParsePagination(query, []string{"status", "severity", "organization_id"}, Config{})
	require.NoError(t, err)
	require.Equal(t, url.Values{"status": {"received"}, "severity": {"4", "5"}}, p.Filters)
}

func TestParsePaginationRejectsInvalidNumbers(t *testing.T) {
	_, err := ParsePagination(url.Values{"page": {"0"}, "page_size": {"abc"}}, nil, Config{})
	require.Error(t, err)

	appErr := apperrors.FromError(err)
	require.Equal(t, apperrors.KindValidation, appErr.Kind)
	require.Len(t, appErr.Fields, 2)
	require.Equal(t, "page", appErr.Fields[0].Field)
	require.Equal(t, "0", appErr.Fields[0].RejectedInput)
}
