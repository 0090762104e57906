package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/task-manager/internal/apperror"
	"github.com/sakif/task-manager/internal/auth"
	"github.com/sakif/task-manager/internal/model"
	"github.com/sakif/task-manager/internal/service"
)

const (
	// RefreshCookieName holds the refresh token. The access token never goes
	// in a cookie; the client keeps it in memory and sends it as a Bearer
	// header.
	RefreshCookieName = "refreshToken"
	stateCookieName   = "oauth_state"
	stateCookieMaxAge = 10 * time.Minute
)

// CookieConfig describes the refresh cookie.
//
//   - Path scopes the cookie to the auth routes (e.g. "/api/v1/auth"), so
//     the browser doesn't attach the refresh token to every task request.
//   - Secure should only be false for local development over plain HTTP.
type CookieConfig struct {
	Path   string
	Secure bool
	MaxAge time.Duration
}

// AuthHandler serves registration, login, token refresh, logout, the
// current-user endpoint and the optional GitHub sign-in flow.
//
// DEPENDENCY CHAIN:
//   - auth   *service.AuthService  → all business rules
//   - github *auth.GitHubProvider  → OAuth code exchange (nil when disabled)
type AuthHandler struct {
	auth        *service.AuthService
	github      *auth.GitHubProvider
	cookie      CookieConfig
	frontendURL string
	logger      *slog.Logger
}

// NewAuthHandler creates an AuthHandler. Pass a nil github provider to
// disable GitHub sign-in; its routes then answer 404.
func NewAuthHandler(
	authService *service.AuthService,
	github *auth.GitHubProvider,
	cookie CookieConfig,
	frontendURL string,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		auth:        authService,
		github:      github,
		cookie:      cookie,
		frontendURL: frontendURL,
		logger:      logger,
	}
}

// LoginResponse is the body of a successful login.
type LoginResponse struct {
	User        *model.User `json:"user"`
	AccessToken string      `json:"accessToken"`
}

// RefreshResponse is the body of a successful refresh.
type RefreshResponse struct {
	AccessToken string `json:"accessToken"`
}

// HandleRegister creates an account.
//
// HTTP: POST /auth/register
// REQUEST BODY: {"name": "Ann", "email": "ann@x.com", "password": "secret1"}
//
// Registration does NOT log the user in: the response is the new user
// (201) and no tokens. The client calls /auth/login next.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.auth.Register(r.Context(), in)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// HandleLogin checks credentials and starts a session.
//
// HTTP: POST /auth/login
// REQUEST BODY: {"email": "ann@x.com", "password": "secret1"}
// RESPONSE: {"user": {...}, "accessToken": "..."} + Set-Cookie: refreshToken=...
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in service.LoginInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	session, err := h.auth.Login(r.Context(), in)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	h.setRefreshCookie(w, session.RefreshToken)
	writeJSON(w, http.StatusOK, LoginResponse{
		User:        session.User,
		AccessToken: session.AccessToken,
	})
}

// HandleRefresh trades the refresh cookie for a new access token.
//
// HTTP: POST /auth/refresh
// Auth: the refreshToken cookie (no Authorization header needed; the
// access token has usually expired by the time the client calls this)
//
// The refresh token is rotated: the response sets a new cookie. When the
// presented token is rejected, the stale cookie is cleared. Server errors
// leave it alone so a store outage doesn't log the user out.
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var token string
	if c, err := r.Cookie(RefreshCookieName); err == nil {
		token = c.Value
	}

	session, err := h.auth.Refresh(r.Context(), token)
	if err != nil {
		if token != "" && errors.Is(err, apperror.ErrUnauthorized) {
			h.clearRefreshCookie(w)
		}
		respondError(w, r, h.logger, err)
		return
	}

	h.setRefreshCookie(w, session.RefreshToken)
	writeJSON(w, http.StatusOK, RefreshResponse{AccessToken: session.AccessToken})
}

// HandleLogout clears the refresh cookie.
//
// HTTP: POST /auth/logout
// Auth: Required (Bearer access token)
//
// Tokens are stateless, so there is nothing to revoke server-side: the
// access token stays valid until it expires (minutes), and the client is
// expected to drop it. Without the cookie the browser can no longer refresh.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "logged out"})
}

// HandleMe returns the currently authenticated user's profile.
//
// HTTP: GET /auth/me
// Auth: Required (RequireAuth middleware sets the identity in context)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}

	user, err := h.auth.Me(r.Context(), userID)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// HandleGitHubLogin redirects the user to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// CSRF PROTECTION VIA STATE:
// We generate a random state string and store it in a short-lived cookie.
// HandleGitHubCallback only proceeds if GitHub hands the same value back.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		writeGitHubDisabled(w)
		return
	}

	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     h.cookie.Path,
		MaxAge:   int(stateCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth flow.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter against the cookie (CSRF check)
//  2. Exchange the code for a GitHub profile
//  3. Find or create the linked account (service.LoginWithGitHub)
//  4. Set the refresh cookie and redirect (303) to the frontend
//
// The redirect carries no token. The frontend calls /auth/refresh on load,
// which returns the access token in a normal JSON response.
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		writeGitHubDisabled(w)
		return
	}

	query := r.URL.Query()

	// --- Step 1: Validate CSRF state ---
	stateCookie, err := r.Cookie(stateCookieName)
	// The state cookie is single-use: clear it whatever happens next.
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     h.cookie.Path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	if err != nil || stateCookie.Value == "" || query.Get("state") != stateCookie.Value {
		h.logger.Warn("auth callback: invalid OAuth state")
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid OAuth state",
			Field:   "state",
		})
		return
	}

	// The user pressed "Cancel" on GitHub.
	if errParam := query.Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, h.frontendRedirect("denied"), http.StatusSeeOther)
		return
	}

	// --- Step 2: Exchange code for GitHub profile ---
	code := query.Get("code")
	if code == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "missing OAuth code",
			Field:   "code",
		})
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "authentication with GitHub failed",
		})
		return
	}

	// --- Step 3: Find or create the account ---
	session, err := h.auth.LoginWithGitHub(r.Context(), ghUser)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	// --- Step 4: Refresh cookie + redirect ---
	h.setRefreshCookie(w, session.RefreshToken)
	http.Redirect(w, r, h.frontendRedirect("success"), http.StatusSeeOther)
}

func (h *AuthHandler) frontendRedirect(outcome string) string {
	u, err := url.Parse(h.frontendURL)
	if err != nil {
		return h.frontendURL
	}
	q := u.Query()
	q.Set("auth", outcome)
	u.RawQuery = q.Encode()
	return u.String()
}

// setRefreshCookie stores the refresh token in an HttpOnly cookie.
//
//   - HttpOnly: JavaScript can't read it, so an XSS bug can't steal it
//   - SameSite=Lax: not sent on cross-site POSTs
//   - Path: only sent to the auth routes
func (h *AuthHandler) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    token,
		Path:     h.cookie.Path,
		MaxAge:   int(h.cookie.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearRefreshCookie deletes the cookie. The attributes must match the ones
// it was set with, or the browser treats it as a different cookie.
func (h *AuthHandler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     h.cookie.Path,
		MaxAge:   -1, // tells the browser to delete the cookie immediately
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func writeUnauthorized(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, ErrorResponse{
		Error:   "unauthorized",
		Message: "valid authentication required",
	})
}

func writeGitHubDisabled(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, ErrorResponse{
		Error:   "not_found",
		Message: "GitHub sign-in is not enabled",
	})
}
