package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// PaginatedResponse is the envelope for every list endpoint. Next and
// Previous are absolute URLs, or null at the edges of the result set.
type PaginatedResponse[T any] struct {
	Count    int64   `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// parsePagination reads limit and offset from the query string. The limit is
// capped at maxPageSize and defaults to defaultPageSize when absent.
func parsePagination(query url.Values) (limit, offset int, err error) {
	limit = defaultPageSize
	if raw := query.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return 0, 0, fmt.Errorf("limit must be a positive integer")
		}
		if limit > maxPageSize {
			limit = maxPageSize
		}
	}
	if raw := query.Get("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}

// paginate wraps one page of results, computing the next and previous links
// from the request URL.
func paginate[T any](requestURL string, limit, offset int, count int64, results []T) *PaginatedResponse[T] {
	if results == nil {
		results = []T{}
	}
	response := &PaginatedResponse[T]{Count: count, Results: results}
	if int64(offset+limit) < count {
		response.Next = pageLink(requestURL, limit, offset+limit)
	}
	if offset > 0 {
		previous := offset - limit
		if previous < 0 {
			previous = 0
		}
		response.Previous = pageLink(requestURL, limit, previous)
	}
	return response
}

func pageLink(requestURL string, limit, offset int) *string {
	parsed, err := url.Parse(requestURL)
	if err != nil {
		return nil
	}
	query := parsed.Query()
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))
	parsed.RawQuery = query.Encode()
	link := parsed.String()
	return &link
}

// proxyAwareURL rebuilds the request URL as the client saw it, honoring the
// headers set by a reverse proxy in front of the service.
func proxyAwareURL(r *http.Request) string {
	scheme := headerOr(r, "X-Forwarded-Proto", "http")
	host := headerOr(r, "X-Forwarded-Host", r.Host)
	if port := r.Header.Get("X-Forwarded-Port"); port != "" && !strings.Contains(host, ":") {
		standard := (scheme == "http" && port == "80") || (scheme == "https" && port == "443")
		if !standard {
			host += ":" + port
		}
	}
	prefix := strings.TrimSuffix(r.Header.Get("X-Forwarded-Prefix"), "/")
	requestURL := url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     prefix + r.URL.Path,
		RawQuery: r.URL.RawQuery,
	}
	return requestURL.String()
}

func headerOr(r *http.Request, header, fallback string) string {
	if value := r.Header.Get(header); value != "" {
		return value
	}
	return fallback
}
