// pagination.go: RFC 8288 first/prev/next/last links for paged bodies.
package humastar

import (
	"fmt"
	"net/url"
	"strconv"
)

// Pager is implemented by response bodies that carry pagination metadata.
type Pager interface {
	PaginationLinks(basePath string) []string
}

// PageBody is a paged response envelope. Query holds extra parameters (the
// active filters) repeated on every link.
type PageBody[T any] struct {
	Total  int        `json:"total" doc:"Total number of items"`
	Offset int        `json:"offset" doc:"Current offset"`
	Limit  int        `json:"limit" doc:"Page size"`
	Data   []T        `json:"data" doc:"Items"`
	Query  url.Values `json:"-"`
}

// PaginationLinks returns the Link header values for basePath.
func (p PageBody[T]) PaginationLinks(basePath string) []string {
	if p.Limit <= 0 {
		return nil
	}
	link := func(offset int, rel string) string {
		q := url.Values{}
		for k, v := range p.Query {
			q[k] = v
		}
		q.Set("offset", strconv.Itoa(offset))
		q.Set("limit", strconv.Itoa(p.Limit))
		return fmt.Sprintf(`<%s?%s>; rel="%s"`, basePath, q.Encode(), rel)
	}

	links := []string{link(0, "first")}
	if p.Offset > 0 {
		links = append(links, link(max(p.Offset-p.Limit, 0), "prev"))
	}
	if p.Offset+p.Limit < p.Total {
		links = append(links, link(p.Offset+p.Limit, "next"))
	}
	last := max(((p.Total-1)/p.Limit)*p.Limit, 0)
	return append(links, link(last, "last"))
}
