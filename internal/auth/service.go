package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"stealthcompany.com/medicapi/internal/apierr"
)

// Service answers authorization questions for requests. It holds no per-request state.
type Service struct {
	secret      []byte
	permissions map[string][]string
	settings    SettingsLookup
	credentials CredentialChecker
	sessions    SessionVerifier
	now         func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithCredentialChecker accepts basic auth credentials verified by checker
func WithCredentialChecker(checker CredentialChecker) Option {
	return func(s *Service) {
		s.credentials = checker
	}
}

// WithSessionVerifier accepts store session cookies verified by verifier
func WithSessionVerifier(verifier SessionVerifier) Option {
	return func(s *Service) {
		s.sessions = verifier
	}
}

// WithClock overrides the clock used to validate and issue tokens
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates an authorization service. permissions maps capabilities to roles.
func NewService(secret string, permissions map[string][]string, settings SettingsLookup, opts ...Option) *Service {
	s := &Service{
		secret:      []byte(secret),
		permissions: permissions,
		settings:    settings,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get(AuthorizationHeader); strings.HasPrefix(header, BearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(header, BearerPrefix))
	}
	return ""
}

// UserContext identifies the caller of r from, in order, basic auth
// credentials, a gateway bearer token or the store session cookie. Basic
// auth and cookies are only honoured when a checker or verifier is set.
func (s *Service) UserContext(r *http.Request) (*UserContext, error) {
	if name, password, ok := r.BasicAuth(); ok && s.credentials != nil {
		return s.basicUser(r.Context(), name, password)
	}

	if token := bearerToken(r); token != "" {
		return s.tokenUser(token)
	}

	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" && s.sessions != nil {
		return s.sessionUser(r.Context(), cookie.Value)
	}

	return nil, apierr.Unauthorized(ErrNotLoggedIn)
}

func (s *Service) tokenUser(tokenString string) (*UserContext, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		log.Debug().Err(err).Msg("Bearer token validation failed")
		return nil, apierr.Unauthorized(ErrInvalidSession)
	}

	name := claims.Name
	if name == "" {
		name = claims.Subject
	}
	if name == "" {
		return nil, apierr.Unauthorized(ErrInvalidSession)
	}
	return &UserContext{Name: name, Roles: claims.Roles}, nil
}

func (s *Service) sessionUser(ctx context.Context, value string) (*UserContext, error) {
	user, err := s.sessions.VerifySession(ctx, value)
	if err != nil {
		if apierr.Status(err) == http.StatusUnauthorized {
			log.Debug().Msg("Store session rejected")
			return nil, apierr.Unauthorized(ErrInvalidSession)
		}
		return nil, err
	}
	return user, nil
}

func (s *Service) basicUser(ctx context.Context, name, password string) (*UserContext, error) {
	user, err := s.credentials.Authenticate(ctx, name, password)
	if err != nil {
		if apierr.Status(err) == http.StatusUnauthorized {
			log.Debug().Str("user", name).Msg("Basic auth credentials rejected")
			return nil, apierr.Unauthorized(ErrNotLoggedIn)
		}
		return nil, err
	}
	return user, nil
}

// IssueToken signs a bearer token for name with roles. Bearer tokens
// authorize gateway endpoints only and never reach the store.
func (s *Service) IssueToken(name string, roles []string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := &Claims{
		Name:  name,
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   name,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign bearer token: %w", err)
	}
	return signed, nil
}

// HasPermission reports whether user holds the capability. Admins hold all of them.
func (s *Service) HasPermission(user *UserContext, permission string) bool {
	if user == nil {
		return false
	}
	if user.HasRole(RoleAdmin) {
		return true
	}
	for _, role := range s.permissions[permission] {
		if user.HasRole(role) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether user holds every capability
func (s *Service) HasAllPermissions(user *UserContext, permissions ...string) bool {
	for _, permission := range permissions {
		if !s.HasPermission(user, permission) {
			return false
		}
	}
	return true
}

func (s *Service) userSettings(ctx context.Context, user *UserContext) (*UserSettings, error) {
	if s.settings == nil {
		return nil, apierr.Upstream("user settings", errors.New("no settings store configured"))
	}
	settings, err := s.settings.UserSettings(ctx, user.Name)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		return nil, apierr.Upstream("user settings", errors.New(ErrNoSettings))
	}
	return settings, nil
}

// FacilityID returns the facility the user belongs to
func (s *Service) FacilityID(ctx context.Context, user *UserContext) (string, error) {
	settings, err := s.userSettings(ctx, user)
	if err != nil {
		return "", err
	}
	return settings.FacilityID, nil
}

// Check verifies the caller of r holds all permissions and resolves the
// district the request is scoped to. National admins may pick any district
// (or none); everyone else is pinned to their own.
func (s *Service) Check(r *http.Request, permissions []string, district string) (*AuthorizationContext, error) {
	user, err := s.UserContext(r)
	if err != nil {
		return nil, err
	}

	if !s.HasAllPermissions(user, permissions...) {
		log.Warn().
			Str("user", user.Name).
			Strs("permissions", permissions).
			Msg("Authorization denied")
		return nil, apierr.Forbidden(ErrInsufficientPrivileges)
	}

	authCtx := &AuthorizationContext{
		User:               *user,
		District:           district,
		CanViewUnallocated: s.HasPermission(user, CanViewUnallocatedDataRecords),
	}
	if user.HasRole(RoleNationalAdmin) || user.HasRole(RoleAdmin) {
		return authCtx, nil
	}

	settings, err := s.userSettings(r.Context(), user)
	if err != nil {
		return nil, err
	}
	if settings.DistrictID == "" || (district != "" && district != settings.DistrictID) {
		log.Warn().
			Str("user", user.Name).
			Str("requested_district", district).
			Str("user_district", settings.DistrictID).
			Msg("District access denied")
		return nil, apierr.Forbidden(ErrInsufficientPrivileges)
	}
	authCtx.District = settings.DistrictID
	return authCtx, nil
}
