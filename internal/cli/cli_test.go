package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasilisp/searchai/pkg/api"
)

func TestReadQuery(t *testing.T) {
	q, err := readQuery([]string{"acme", "corp"}, strings.NewReader("ignored"))
	require.NoError(t, err)
	assert.Equal(t, "acme corp", q)

	q, err = readQuery(nil, strings.NewReader("  from stdin\n"))
	require.NoError(t, err)
	assert.Equal(t, "from stdin", q)
}

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, api.SearchAPIPath, r.URL.Path)
		assert.Equal(t, "acme & co", r.URL.Query().Get("q"))
		_ = json.NewEncoder(w).Encode(api.SearchResponse{
			Query:   "acme & co",
			Results: "listing",
			Summary: &api.Summary{Summary: "s", Facts: []string{"f1"}, SourceConfidence: "Low"},
			Domain:  "acme.com",
		})
	}))
	defer srv.Close()

	resp, err := search(srv.Client(), srv.URL, "acme & co")
	require.NoError(t, err)
	assert.Equal(t, "acme.com", resp.Domain)

	var buf bytes.Buffer
	printResponse(&buf, resp)
	out := buf.String()
	assert.Contains(t, out, "# acme & co")
	assert.Contains(t, out, "Low confidence")
	assert.Contains(t, out, "- f1")
	assert.Contains(t, out, "Official site: acme.com")
}

func TestSearchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := search(srv.Client(), srv.URL, "x")
	assert.ErrorContains(t, err, "400")
}
