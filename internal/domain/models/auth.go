package models

import "github.com/golang-jwt/jwt/v5"

// SupabaseClaims represents the JWT claims structure from Supabase Auth.
// See: https://supabase.com/docs/guides/auth/jwts
type SupabaseClaims struct {
	jwt.RegisteredClaims                        // Standard JWT claims (sub, iss, aud, exp, iat, etc.)
	Email                string                 `json:"email"`
	AppMetadata          map[string]interface{} `json:"app_metadata,omitempty"`
	UserMetadata         map[string]interface{} `json:"user_metadata,omitempty"`
	Role                 string                 `json:"role"` // "authenticated" or "anon"
	SessionID            string                 `json:"session_id,omitempty"`
	IsAnonymous          bool                   `json:"is_anonymous,omitempty"`
}

// GetUserID returns the user ID from the JWT subject claim.
func (c *SupabaseClaims) GetUserID() string {
	return c.Subject
}

// DisplayName is the name shown to other participants in a room:
// user_metadata full_name or name, then email, then the user ID.
func (c *SupabaseClaims) DisplayName() string {
	for _, key := range []string{"full_name", "name"} {
		if name, ok := c.UserMetadata[key].(string); ok && name != "" {
			return name
		}
	}
	if c.Email != "" {
		return c.Email
	}
	return c.Subject
}
