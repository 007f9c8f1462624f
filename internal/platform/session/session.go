// Package session holds the caller's credential and role for the lifetime of
// a login. A Session is created explicitly, populated by Login, cleared by
// Logout (or by the API client on a 401), and handed to whatever needs it.
// Nothing reads credentials from ambient storage.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// Role is one of the user roles known to the clinic API.
type Role string

const (
	RoleAdmin        Role = "admin"
	RolePsychologist Role = "psychologist"
	RoleAssistant    Role = "assistant"
)

var roleLabels = map[Role]string{
	RoleAdmin:        "Administrador",
	RolePsychologist: "Psicóloga",
	RoleAssistant:    "Assistant",
}

var roleBadges = map[Role]string{
	RoleAdmin:        "Admin",
	RolePsychologist: "Psic.",
	RoleAssistant:    "Assist",
}

// Label returns the display name of the role.
func (r Role) Label() string {
	if l, ok := roleLabels[r]; ok {
		return l
	}
	return string(r)
}

// Badge returns the short form shown in compact headers.
func (r Role) Badge() string {
	if b, ok := roleBadges[r]; ok {
		return b
	}
	return string(r)
}

// Known reports whether r is one of the defined roles.
func (r Role) Known() bool {
	_, ok := roleLabels[r]
	return ok
}

var (
	ErrMissingCredentials = errors.New("email and password are required")
	ErrNoToken            = errors.New("login response did not include a token")
)

// Grant is what the login endpoint returns.
type Grant struct {
	AccessToken string     `json:"access_token"`
	Token       string     `json:"token"`
	TokenType   string     `json:"token_type"`
	Role        string     `json:"role"`
	User        *GrantUser `json:"user"`
}

// GrantUser is the optional user object embedded in a Grant.
type GrantUser struct {
	Role  string `json:"role"`
	Email string `json:"email"`
}

// Authenticator exchanges credentials for a Grant.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*Grant, error)
}

// Session is safe for concurrent use.
type Session struct {
	mu    sync.RWMutex
	token string
	role  Role
	email string
}

// New returns an empty, unauthenticated session.
func New() *Session {
	return &Session{}
}

// FromToken builds a session around an existing bearer token, reading the
// role from the token's claims.
func FromToken(token string) *Session {
	token = strings.TrimSpace(token)
	return &Session{token: token, role: RoleFromToken(token)}
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) Role() Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.role
}

func (s *Session) Email() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.email
}

func (s *Session) Authenticated() bool {
	return s.Token() != ""
}

// Fingerprint identifies the credential without exposing it, or "" when
// the session holds no token.
func (s *Session) Fingerprint() string {
	tok := s.Token()
	if tok == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(tok))
	return hex.EncodeToString(sum[:8])
}

// Login authenticates and populates the session. The role comes from the
// response when present and from the token claims otherwise. On failure the
// session is left cleared.
func (s *Session) Login(ctx context.Context, a Authenticator, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return ErrMissingCredentials
	}

	grant, err := a.Authenticate(ctx, email, password)
	if err != nil {
		s.Clear()
		return fmt.Errorf("login: %w", err)
	}

	token := grant.AccessToken
	if token == "" {
		token = grant.Token
	}
	if token == "" {
		s.Clear()
		return ErrNoToken
	}

	role := Role(grant.Role)
	if role == "" && grant.User != nil {
		role = Role(grant.User.Role)
	}
	if role == "" {
		role = RoleFromToken(token)
	}

	s.mu.Lock()
	s.token = token
	s.role = role
	s.email = email
	s.mu.Unlock()
	return nil
}

// Logout drops the credential and role.
func (s *Session) Logout() {
	s.Clear()
}

// Clear resets the session to unauthenticated.
func (s *Session) Clear() {
	s.mu.Lock()
	s.token = ""
	s.role = ""
	s.email = ""
	s.mu.Unlock()
}

// RoleFromToken reads the role claim from a JWT without verifying it; the
// clinic API verifies every request. Several claim names are in use.
func RoleFromToken(token string) Role {
	if token == "" {
		return ""
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	for _, key := range []string{"role", "user_role", "rol"} {
		if v, ok := claims[key].(string); ok && v != "" {
			return Role(v)
		}
	}
	if user, ok := claims["user"].(map[string]interface{}); ok {
		if v, ok := user["role"].(string); ok {
			return Role(v)
		}
	}
	return ""
}

type contextKey struct{}

// NewContext returns a copy of ctx carrying s.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session stored in ctx, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(contextKey{}).(*Session)
	return s
}
