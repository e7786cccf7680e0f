package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasilisp/searchai/internal/auth"
	"github.com/vasilisp/searchai/internal/data"
	"github.com/vasilisp/searchai/internal/session"
	"github.com/vasilisp/searchai/pkg/api"
)

type stubGenerator struct {
	summaryErr error
}

func (s *stubGenerator) AskGPT(_ context.Context, systemMessage string, _ string) (string, error) {
	if systemMessage == data.SystemPromptDomain {
		return "`acme.com`", nil
	}
	return "- **Acme** anvils <script>alert(1)</script>", nil
}

func (s *stubGenerator) AskJSON(context.Context, string, string, string, any) (string, error) {
	if s.summaryErr != nil {
		return "", s.summaryErr
	}
	return `{"summary":"Acme makes anvils.","facts":["a","b","c"],"source_confidence":"High"}`, nil
}

type echoConversation struct{}

func (echoConversation) Send(_ context.Context, message string) (string, error) {
	return "echo: " + message, nil
}

func testConfig() *config {
	return &config{
		OpenAIToken: "sk-test",
		Model:       defaultModel,
		AdminUser:   "admin",
		AdminPass:   "hunter2",
		SecretKey:   "s3cret",
		Port:        defaultPort,
		sessionTTL:  auth.DefaultSessionTTL,
	}
}

func newTestServer(t *testing.T, gen *stubGenerator) *httptest.Server {
	t.Helper()
	ctx := newCtxWith(testConfig(), gen, session.StarterFunc(func() session.Conversation {
		return echoConversation{}
	}))
	srv := httptest.NewServer(newRouter(ctx))
	t.Cleanup(func() {
		ctx.Close()
		srv.Close()
	})
	return srv
}

func noRedirectClient() *http.Client {
	return &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
}

func get(t *testing.T, client *http.Client, target string, cookies ...*http.Cookie) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, target, nil)
	require.NoError(t, err)
	for _, c := range cookies {
		req.AddCookie(c)
	}

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func login(t *testing.T, srv *httptest.Server, username, password string) *http.Response {
	t.Helper()
	form := url.Values{"username": {username}, "password": {password}}
	resp, err := noRedirectClient().PostForm(srv.URL+api.LoginPath, form)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func sessionCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	t.Fatal("no session cookie")
	return nil
}

func TestStaticPages(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{})

	for _, path := range []string{api.IndexPath, api.ChatPath, api.LoginPath} {
		resp, body := get(t, http.DefaultClient, srv.URL+path)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Contains(t, body, "<title>", path)
	}

	resp, body := get(t, http.DefaultClient, srv.URL+"/static/style.css")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body)
}

func TestSearchEmptyQueryRedirects(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{})

	for _, q := range []string{"", "?q=", "?q=%20%20"} {
		resp, _ := get(t, noRedirectClient(), srv.URL+api.SearchPath+q)
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
		assert.Equal(t, api.IndexPath, resp.Header.Get("Location"))
	}
}

func TestSearchRendersResults(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{})

	resp, body := get(t, http.DefaultClient, srv.URL+api.SearchPath+"?q=Acme+Corp")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Contains(t, body, "<strong>Acme</strong>")
	assert.NotContains(t, body, "<script>alert(1)</script>")
	assert.Contains(t, body, "Acme makes anvils.")
	assert.Contains(t, body, `href="https://acme.com"`)
}

func TestSearchRendersSummaryError(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{summaryErr: errors.New("bad schema")})

	resp, body := get(t, http.DefaultClient, srv.URL+api.SearchPath+"?q=Acme")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Could not obtain a JSON response")
	assert.Contains(t, body, "acme.com")
}

func TestSearchAPI(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{})

	resp, body := get(t, http.DefaultClient, srv.URL+api.SearchAPIPath+"?q=Acme")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var out api.SearchResponse
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	assert.Equal(t, "Acme", out.Query)
	assert.Equal(t, "acme.com", out.Domain)
	require.NotNil(t, out.Summary)
	assert.Equal(t, "High", out.Summary.SourceConfidence)

	resp, _ = get(t, http.DefaultClient, srv.URL+api.SearchAPIPath)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLoginBadCredentials(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{})

	resp := login(t, srv, "admin", "wrong")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Cookies())

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), flashBadCredentials)
}

func TestLoginAdminLogout(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{})
	client := noRedirectClient()

	resp, _ := get(t, client, srv.URL+api.AdminPath)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, api.LoginPath, resp.Header.Get("Location"))

	resp = login(t, srv, "admin", "hunter2")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, api.AdminPath, resp.Header.Get("Location"))
	cookie := sessionCookie(t, resp)

	resp, body := get(t, client, srv.URL+api.AdminPath, cookie)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Signed in as admin")

	resp, _ = get(t, client, srv.URL+api.LoginPath, cookie)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, api.AdminPath, resp.Header.Get("Location"))

	resp, _ = get(t, client, srv.URL+api.LogoutPath, cookie)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, api.IndexPath, resp.Header.Get("Location"))
	cleared := sessionCookie(t, resp)
	assert.Empty(t, cleared.Value)

	resp, _ = get(t, client, srv.URL+api.LogoutPath)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, api.LoginPath, resp.Header.Get("Location"))
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{})

	resp, body := get(t, http.DefaultClient, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"status":"ok"`)

	get(t, http.DefaultClient, srv.URL+api.IndexPath)
	resp, body = get(t, http.DefaultClient, srv.URL+"/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(body, "searchai_http_requests_total"))
}
