package api

import (
	"fmt"
	"net/http"
)

// envelope is the body written by every successful list/single response:
// data plus, for list endpoints, paging and navigation metadata.
type envelope struct {
	Data       interface{} `json:"data"`
	Meta       *metaBlock  `json:"meta,omitempty"`
	Pagination *pageBlock  `json:"pagination,omitempty"`
	Links      *linkBlock  `json:"links,omitempty"`
}

type metaBlock struct {
	TotalCount    int `json:"total_count"`
	ReturnedCount int `json:"returned_count"`
}

type pageBlock struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalPages int `json:"total_pages"`
}

type linkBlock struct {
	Previous *string `json:"previous,omitempty"`
	Next     *string `json:"next,omitempty"`
	Self     string  `json:"self"`
}

// resource wraps one domain object as {id, attributes}, the shape every
// single-item and list-item response body element carries.
type resource struct {
	ID         int64       `json:"id"`
	Attributes interface{} `json:"attributes"`
}

func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s%s", scheme, r.Host, r.URL.RequestURI())
}

// pageLinks builds previous/next/self links for an offset-paginated list
// response, reusing the request's own query string with only "page"
// rewritten.
func pageLinks(r *http.Request, page, totalPages int) *linkBlock {
	build := func(p int) string {
		q := r.URL.Query()
		q.Set("page", fmt.Sprintf("%d", p))
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		return fmt.Sprintf("%s://%s%s?%s", scheme, r.Host, r.URL.Path, q.Encode())
	}
	lb := &linkBlock{Self: requestURL(r)}
	if page > 1 {
		s := build(page - 1)
		lb.Previous = &s
	}
	if page < totalPages {
		s := build(page + 1)
		lb.Next = &s
	}
	return lb
}

func totalPages(totalCount, perPage int) int {
	if perPage <= 0 {
		return 0
	}
	pages := totalCount / perPage
	if totalCount%perPage != 0 {
		pages++
	}
	return pages
}
