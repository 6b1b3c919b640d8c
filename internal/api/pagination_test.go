package api

import (
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePaginationDefaults(t *testing.T) {
	limit, offset, err := parsePagination(url.Values{})
	require.NoError(t, err)
	assert.Equal(t, defaultPageSize, limit)
	assert.Equal(t, 0, offset)
}

func TestParsePaginationCapsLimit(t *testing.T) {
	limit, _, err := parsePagination(url.Values{"limit": {"9999"}})
	require.NoError(t, err)
	assert.Equal(t, maxPageSize, limit)
}

func TestParsePaginationRejectsInvalid(t *testing.T) {
	for _, values := range []url.Values{
		{"limit": {"0"}},
		{"limit": {"-5"}},
		{"limit": {"ten"}},
		{"offset": {"-1"}},
		{"offset": {"later"}},
	} {
		_, _, err := parsePagination(values)
		assert.Error(t, err, values.Encode())
	}
}

func TestPaginateLinks(t *testing.T) {
	requestURL := "http://localhost/api/v1/contracts?chain_ids=1&limit=10&offset=10"

	page := paginate(requestURL, 10, 10, 25, []string{"a"})
	require.NotNil(t, page.Next)
	require.NotNil(t, page.Previous)
	assert.Equal(t, "http://localhost/api/v1/contracts?chain_ids=1&limit=10&offset=20", *page.Next)
	assert.Equal(t, "http://localhost/api/v1/contracts?chain_ids=1&limit=10&offset=0", *page.Previous)
}

func TestPaginateEdges(t *testing.T) {
	first := paginate("http://localhost/x", 10, 0, 25, []string{})
	assert.NotNil(t, first.Next)
	assert.Nil(t, first.Previous)

	last := paginate("http://localhost/x", 10, 20, 25, []string{})
	assert.Nil(t, last.Next)
	assert.NotNil(t, last.Previous)

	empty := paginate("http://localhost/x", 10, 0, 0, []string(nil))
	assert.Nil(t, empty.Next)
	assert.Nil(t, empty.Previous)
	assert.NotNil(t, empty.Results, "results must serialize as an empty list")
}

func TestPaginatePreviousClampsToZero(t *testing.T) {
	page := paginate("http://localhost/x", 10, 5, 25, []string{})
	require.NotNil(t, page.Previous)
	assert.Contains(t, *page.Previous, "offset=0")
}

func TestProxyAwareURL(t *testing.T) {
	request := httptest.NewRequest("GET", "http://internal:8000/api/v1/contracts?limit=10", nil)
	request.Header.Set("X-Forwarded-Proto", "https")
	request.Header.Set("X-Forwarded-Host", "safe.example.org")
	request.Header.Set("X-Forwarded-Prefix", "/decoder/")

	assert.Equal(t,
		"https://safe.example.org/decoder/api/v1/contracts?limit=10",
		proxyAwareURL(request))
}

func TestProxyAwareURLNonStandardPort(t *testing.T) {
	request := httptest.NewRequest("GET", "http://internal:8000/health", nil)
	request.Header.Set("X-Forwarded-Proto", "https")
	request.Header.Set("X-Forwarded-Host", "safe.example.org")
	request.Header.Set("X-Forwarded-Port", "8443")

	assert.Equal(t, "https://safe.example.org:8443/health", proxyAwareURL(request))
}

func TestProxyAwareURLDefaults(t *testing.T) {
	request := httptest.NewRequest("GET", "http://localhost:8000/health", nil)
	assert.Equal(t, "http://localhost:8000/health", proxyAwareURL(request))
}
