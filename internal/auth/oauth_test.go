package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// fakeGitHub serves the token endpoint and the two API routes Exchange uses.
func fakeGitHub(t *testing.T, user map[string]any, emails []gitHubEmail) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		if r.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "bad_verification_code"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"access_token": "gho_test", "token_type": "bearer"})
	})
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer gho_test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(user)
	})
	mux.HandleFunc("GET /user/emails", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(emails)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestGitHubProvider(srvURL string) *GitHubProvider {
	return NewGitHubProvider(GitHubConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		CallbackURL:  "http://localhost:8080/api/v1/auth/github/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:  srvURL + "/login/oauth/authorize",
			TokenURL: srvURL + "/login/oauth/access_token",
		},
		APIBaseURL: srvURL,
	})
}

func TestGitHubProvider_AuthURL(t *testing.T) {
	p := NewGitHubProvider(GitHubConfig{ClientID: "client-id", CallbackURL: "http://localhost/cb"})

	u, err := url.Parse(p.AuthURL("state-123"))
	require.NoError(t, err)

	assert.Equal(t, "github.com", u.Host)
	q := u.Query()
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "state-123", q.Get("state"))
	assert.Equal(t, "http://localhost/cb", q.Get("redirect_uri"))
	assert.Contains(t, q.Get("scope"), "user:email")
}

func TestGitHubProvider_ExchangeWithPublicEmail(t *testing.T) {
	srv := fakeGitHub(t, map[string]any{"id": 42, "login": "octocat", "name": "The Octocat", "email": "octo@github.com"}, nil)
	p := newTestGitHubProvider(srv.URL)

	user, err := p.Exchange(context.Background(), "good-code")
	require.NoError(t, err)

	assert.Equal(t, int64(42), user.ID)
	assert.Equal(t, "octocat", user.Login)
	assert.Equal(t, "octo@github.com", user.Email)
	assert.Equal(t, "The Octocat", user.DisplayName())
}

func TestGitHubProvider_ExchangeFallsBackToPrimaryEmail(t *testing.T) {
	srv := fakeGitHub(t,
		map[string]any{"id": 7, "login": "hidden", "email": nil},
		[]gitHubEmail{
			{Email: "old@x.com", Primary: false, Verified: true},
			{Email: "unverified@x.com", Primary: true, Verified: false},
			{Email: "main@x.com", Primary: true, Verified: true},
		},
	)
	p := newTestGitHubProvider(srv.URL)

	user, err := p.Exchange(context.Background(), "good-code")
	require.NoError(t, err)

	assert.Equal(t, "main@x.com", user.Email)
	assert.Equal(t, "hidden", user.DisplayName(), "display name falls back to login")
}

func TestGitHubProvider_ExchangeNoUsableEmail(t *testing.T) {
	srv := fakeGitHub(t, map[string]any{"id": 7, "login": "ghost"}, []gitHubEmail{})
	p := newTestGitHubProvider(srv.URL)

	user, err := p.Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Empty(t, user.Email)
}

func TestGitHubProvider_ExchangeBadCode(t *testing.T) {
	srv := fakeGitHub(t, map[string]any{"id": 1, "login": "x"}, nil)
	p := newTestGitHubProvider(srv.URL)

	_, err := p.Exchange(context.Background(), "bad-code")
	assert.Error(t, err)
}

func TestGitHubProvider_ExchangeRejectsZeroID(t *testing.T) {
	srv := fakeGitHub(t, map[string]any{"login": "nobody", "email": "n@x.com"}, nil)
	p := newTestGitHubProvider(srv.URL)

	_, err := p.Exchange(context.Background(), "good-code")
	assert.Error(t, err)
}
