// Package auth provides password hashing, JWT issuing/verification, the
// request gate middleware and the GitHub OAuth client for the task API.
//
// TWO TOKEN CLASSES:
//
//   - Access token: short-lived (default 15m), sent by the client in the
//     "Authorization: Bearer <token>" header on every protected request.
//   - Refresh token: long-lived (default 7 days), kept by the browser in an
//     HttpOnly cookie and only ever sent to the refresh endpoint.
//
// Each class is signed with its own secret AND carries a "typ" claim. Either
// check alone would stop a refresh token from being used as an access token;
// having both means a single misconfiguration doesn't open that door.
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: algorithm + token type → {"alg":"HS256","typ":"JWT"}
//	- Payload: claims → {"sub":"<userID>","email":"...","typ":"access","jti":"...","exp":...}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
//
// The server verifies the signature without any DB lookup, using only the secret.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSecretLength is the shortest signing secret NewTokenService accepts.
const MinSecretLength = 16

const (
	typeAccess  = "access"
	typeRefresh = "refresh"
)

// ErrInvalidToken is wrapped by every verification failure: malformed,
// wrongly signed, expired, wrong class, or missing subject. Callers only
// need errors.Is(err, ErrInvalidToken); the wrapped detail is for logs.
var ErrInvalidToken = errors.New("auth: invalid token")

// Identity is what a verified token proves about its bearer.
type Identity struct {
	UserID string
	Email  string
}

// TokenConfig holds the signing parameters. It is copied into the
// TokenService at construction and never changes afterwards.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// TokenService handles JWT creation and validation for both token classes.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	now           func() time.Time
}

// Option configures a TokenService.
type Option func(*TokenService)

// WithClock replaces time.Now for issuing and verifying. Tests use it to
// move past a token's expiry without sleeping.
func WithClock(now func() time.Time) Option {
	return func(s *TokenService) {
		s.now = now
	}
}

// NewTokenService validates cfg and returns a ready TokenService.
// A bad configuration is a startup error, never a per-request one.
func NewTokenService(cfg TokenConfig, opts ...Option) (*TokenService, error) {
	if len(cfg.AccessSecret) < MinSecretLength {
		return nil, fmt.Errorf("auth: access token secret must be at least %d characters", MinSecretLength)
	}
	if len(cfg.RefreshSecret) < MinSecretLength {
		return nil, fmt.Errorf("auth: refresh token secret must be at least %d characters", MinSecretLength)
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("auth: access and refresh token secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("auth: token lifetimes must be positive")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("auth: token issuer is required")
	}

	s := &TokenService{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		issuer:        cfg.Issuer,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// claims is the JWT payload. jwt.RegisteredClaims supplies sub, iss, jti,
// iat and exp; Email and Type are ours.
type claims struct {
	Email string `json:"email"`
	Type  string `json:"typ"`
	jwt.RegisteredClaims
}

// IssueAccess signs a short-lived access token for id.
func (s *TokenService) IssueAccess(id Identity) (string, error) {
	return s.issue(id, typeAccess, s.accessSecret, s.accessTTL)
}

// IssueRefresh signs a long-lived refresh token for id.
func (s *TokenService) IssueRefresh(id Identity) (string, error) {
	return s.issue(id, typeRefresh, s.refreshSecret, s.refreshTTL)
}

// VerifyAccess checks an access token and returns the identity it carries.
func (s *TokenService) VerifyAccess(token string) (Identity, error) {
	return s.verify(token, typeAccess, s.accessSecret)
}

// VerifyRefresh checks a refresh token and returns the identity it carries.
func (s *TokenService) VerifyRefresh(token string) (Identity, error) {
	return s.verify(token, typeRefresh, s.refreshSecret)
}

// RefreshTTL is how long an issued refresh token stays valid. The handler
// uses it as the refresh cookie's Max-Age.
func (s *TokenService) RefreshTTL() time.Duration {
	return s.refreshTTL
}

func (s *TokenService) issue(id Identity, typ string, secret []byte, ttl time.Duration) (string, error) {
	if id.UserID == "" {
		return "", errors.New("auth: cannot issue a token without a user id")
	}

	now := s.now()
	c := claims{
		Email: id.Email,
		Type:  typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: id.UserID,
			Issuer:  s.issuer,
			// The jti makes every token unique, even two issued for the
			// same user within the same second.
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing %s token: %w", typ, err)
	}
	return signed, nil
}

// verify parses tokenStr and checks, in order: the algorithm is HS256, the
// signature matches secret, the issuer matches, exp is present and in the
// future, the typ claim is the expected class, and sub is set.
//
// ALGORITHM CONFUSION ATTACK:
// Without pinning the algorithm, an attacker could send a token with
// "alg":"none" and a naive library might accept it. jwt.WithValidMethods
// prevents this.
func (s *TokenService) verify(tokenStr, typ string, secret []byte) (Identity, error) {
	c := &claims{}
	_, err := jwt.ParseWithClaims(
		tokenStr,
		c,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, fmt.Errorf("%w: token expired", ErrInvalidToken)
		}
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if c.Type != typ {
		return Identity{}, fmt.Errorf("%w: expected %s token, got %q", ErrInvalidToken, typ, c.Type)
	}
	if c.Subject == "" {
		return Identity{}, fmt.Errorf("%w: token has no subject", ErrInvalidToken)
	}

	return Identity{UserID: c.Subject, Email: c.Email}, nil
}
