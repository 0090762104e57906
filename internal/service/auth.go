// Package service: authentication business logic.
//
// AuthService is the business logic layer for authentication. It sits between
// the HTTP handlers and the repository/auth utilities:
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ TokenService (JWT), PasswordService (bcrypt)
//
// SESSION LIFECYCLE (the server keeps no session object):
//
//	Anonymous ──register──▶ Registered ──login──▶ Authenticated
//	                                   ◀──access token expires / logout──
//
// Register only creates the account; the client must log in afterwards.
// Refresh rotates BOTH tokens: the client gets a new refresh cookie every
// time it refreshes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/sakif/task-manager/internal/apperror"
	"github.com/sakif/task-manager/internal/auth"
	"github.com/sakif/task-manager/internal/model"
	"github.com/sakif/task-manager/internal/repository"
)

// Client-facing messages for authentication failures. They are the same for
// every cause so a caller can't learn whether an email is registered or why a
// token was rejected.
const (
	msgInvalidCredentials  = "invalid email or password"
	msgInvalidRefresh      = "invalid or expired refresh token"
	msgAuthRequired        = "valid authentication required"
	msgGitHubEmailConflict = "an account with this email already exists; sign in with your password"
)

// RegisterInput is the body of a registration request.
type RegisterInput struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,max=254,basic_email"`
	Password string `json:"password" validate:"required,min=6,maxbytes=72"`
}

// LoginInput is the body of a login request. The email is not syntax-checked
// here: a malformed email simply doesn't match any account.
type LoginInput struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Session is the result of a successful login, refresh or GitHub sign-in.
// The handler puts AccessToken in the response body and RefreshToken in the
// HttpOnly cookie.
type Session struct {
	User         *model.User
	AccessToken  string
	RefreshToken string
}

// AuthService handles the authentication business logic.
//
// DEPENDENCIES (injected via NewAuthService):
//   - users      repository.UserRepository  → read/write user records
//   - tokens     *auth.TokenService         → issue/verify JWTs
//   - passwords  *auth.PasswordService      → bcrypt hashing
//   - logger     *slog.Logger               → structured logging
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// Register validates the input, hashes the password and creates the user.
//
// Emails are trimmed and then stored as typed; uniqueness is
// case-insensitive and enforced by the store, so two concurrent
// registrations of the same address resolve to one success and one
// apperror.ErrConflict.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if err := validateInput(&in); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user registered", slog.String("userID", user.ID))
	return user, nil
}

// Login checks the credentials and issues a new token pair.
//
// ACCOUNT ENUMERATION:
// An unknown email and a wrong password return the same error with the same
// message. They also cost the same: when the email is unknown we still run
// one bcrypt comparison against a dummy hash, so response time doesn't give
// the answer away either.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*Session, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := validateInput(&in); err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			_ = s.passwords.Verify(s.dummyPasswordHash(), in.Password)
			return nil, apperror.Unauthorized(msgInvalidCredentials)
		}
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}

	// GitHub-only accounts have no hash; bcrypt would reject it without doing
	// any work, so pay the same cost against the dummy hash.
	if user.PasswordHash == "" {
		_ = s.passwords.Verify(s.dummyPasswordHash(), in.Password)
		return nil, apperror.Unauthorized(msgInvalidCredentials)
	}

	if err := s.passwords.Verify(user.PasswordHash, in.Password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Warn("stored password hash is unreadable",
				slog.String("userID", user.ID),
				slog.String("error", err.Error()),
			)
		}
		return nil, apperror.Unauthorized(msgInvalidCredentials)
	}

	session, err := s.issueSession(user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))
	return session, nil
}

// Refresh exchanges a valid refresh token for a new token pair.
//
// The user is looked up again so a deleted account can't keep refreshing
// until its refresh token expires.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, apperror.Unauthorized(msgInvalidRefresh)
	}

	identity, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			s.logger.Debug("refresh token rejected", slog.String("error", err.Error()))
			return nil, apperror.Unauthorized(msgInvalidRefresh)
		}
		return nil, fmt.Errorf("service/auth: verifying refresh token: %w", err)
	}

	user, err := s.users.GetUserByID(ctx, identity.UserID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.logger.Info("refresh for missing user", slog.String("userID", identity.UserID))
			return nil, apperror.Unauthorized(msgInvalidRefresh)
		}
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", identity.UserID, err)
	}

	return s.issueSession(user)
}

// Me returns the user behind a verified access token. An access token can
// outlive its account, so a missing user is Unauthorized rather than
// NotFound.
func (s *AuthService) Me(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, apperror.Unauthorized(msgAuthRequired)
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized(msgAuthRequired)
		}
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", userID, err)
	}
	return user, nil
}

// LoginWithGitHub signs in the account linked to a GitHub profile, creating
// it on first sign-in.
//
// An account is found by GitHub ID only, never by email: if the profile's
// email already belongs to a password account, we return ErrConflict rather
// than linking the two. Silent linking would let anyone who controls a GitHub
// account with your address (unverified emails exist) take over your
// account.
//
// Accounts created here have no password; password login fails closed for
// them.
func (s *AuthService) LoginWithGitHub(ctx context.Context, gh *auth.GitHubUser) (*Session, error) {
	if gh == nil || gh.ID == 0 {
		return nil, errors.New("service/auth: GitHub profile is missing")
	}

	user, err := s.users.GetUserByGitHubID(ctx, gh.ID)
	switch {
	case err == nil:
		return s.issueSession(user)
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/auth: looking up GitHub user %d: %w", gh.ID, err)
	}

	email := strings.TrimSpace(gh.Email)
	if email == "" {
		email = gh.Login + "@users.noreply.github.com"
	}
	githubID := gh.ID
	user = &model.User{
		Name:     gh.DisplayName(),
		Email:    email,
		GitHubID: &githubID,
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		if !errors.Is(err, apperror.ErrConflict) {
			return nil, fmt.Errorf("service/auth: creating GitHub user %d: %w", gh.ID, err)
		}
		// Either the email is taken by another account, or a concurrent
		// callback for the same GitHub user won the insert.
		existing, lookupErr := s.users.GetUserByGitHubID(ctx, gh.ID)
		if lookupErr != nil {
			return nil, apperror.Conflict(msgGitHubEmailConflict)
		}
		user = existing
	} else {
		s.logger.Info("user registered via GitHub",
			slog.String("userID", user.ID),
			slog.String("login", gh.Login),
		)
	}

	return s.issueSession(user)
}

func (s *AuthService) issueSession(user *model.User) (*Session, error) {
	identity := auth.Identity{UserID: user.ID, Email: user.Email}

	access, err := s.tokens.IssueAccess(identity)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing access token: %w", err)
	}
	refresh, err := s.tokens.IssueRefresh(identity)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing refresh token: %w", err)
	}

	return &Session{User: user, AccessToken: access, RefreshToken: refresh}, nil
}

// dummyPasswordHash is hashed once, lazily, at the configured cost so the
// unknown-email path of Login does the same bcrypt work as the real one.
func (s *AuthService) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.passwords.Hash("dummy-password-for-timing")
		if err != nil {
			s.logger.Error("hashing dummy password", slog.String("error", err.Error()))
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}
