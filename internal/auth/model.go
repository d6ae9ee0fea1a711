package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
)

// HTTP constants
const (
	AuthorizationHeader = "Authorization"
	BearerPrefix        = "Bearer "
	// SessionCookie is the store's session cookie, relayed to browsers at login
	SessionCookie       = "AuthSession"
)

// Roles with special meaning
const (
	RoleAdmin         = "_admin"
	RoleNationalAdmin = "national_admin"
)

// Capabilities checked by the gateway
const (
	CanAccessDirectly             = "can_access_directly"
	CanViewAnalytics              = "can_view_analytics"
	CanViewDataRecords            = "can_view_data_records"
	CanViewUnallocatedDataRecords = "can_view_unallocated_data_records"
	CanCreateRecords              = "can_create_records"
	CanExportMessages             = "can_export_messages"
	CanExportAudit                = "can_export_audit"
	CanExportFeedback             = "can_export_feedback"
	CanExportContacts             = "can_export_contacts"
	CanExportServerLogs           = "can_export_server_logs"
)

// Error message constants
const (
	ErrNotLoggedIn            = "Not logged in"
	ErrInvalidSession         = "Invalid session"
	ErrInsufficientPrivileges = "Insufficient privileges"
	ErrNoSettings             = "No user settings found"
)

// Claims are the claims of a gateway bearer token
type Claims struct {
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// UserContext identifies the caller of a request
type UserContext struct {
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

// HasRole reports whether the user holds role
func (u *UserContext) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// UserSettings is the per-user document placing a user in a facility and district
type UserSettings struct {
	FacilityID string `json:"facility_id"`
	DistrictID string `json:"district_id"`
}

// SettingsLookup fetches the settings document of a user
type SettingsLookup interface {
	UserSettings(ctx context.Context, username string) (*UserSettings, error)
}

// CredentialChecker verifies a name and password, for API clients using basic auth
type CredentialChecker interface {
	Authenticate(ctx context.Context, name, password string) (*UserContext, error)
}

// SessionVerifier resolves the owner of a store session cookie
type SessionVerifier interface {
	VerifySession(ctx context.Context, value string) (*UserContext, error)
}

// AuthorizationContext is the scope granted to one request. It is never cached.
type AuthorizationContext struct {
	User UserContext
	// District is empty when the caller may see every district
	District           string
	CanViewUnallocated bool
}
