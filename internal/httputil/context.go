package httputil

import (
	"context"
	"net/http"
)

// Identity is the authenticated caller attached by the auth middleware.
type Identity struct {
	UserID string
	Name   string
}

type identityKey struct{}

// WithIdentity attaches id to the request.
func WithIdentity(r *http.Request, id Identity) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), identityKey{}, id))
}

// IdentityFrom returns the caller, or the zero Identity on unauthenticated routes.
func IdentityFrom(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey{}).(Identity)
	return id
}

// WithUserID attaches an identity carrying only a user id.
func WithUserID(r *http.Request, userID string) *http.Request {
	id := IdentityFrom(r.Context())
	id.UserID = userID
	return WithIdentity(r, id)
}

// WithUserName sets the display name on the request's identity.
func WithUserName(r *http.Request, name string) *http.Request {
	id := IdentityFrom(r.Context())
	id.Name = name
	return WithIdentity(r, id)
}

func GetUserID(r *http.Request) string {
	return IdentityFrom(r.Context()).UserID
}

// GetUserName is the display name shown to other participants, falling back
// to the user id.
func GetUserName(r *http.Request) string {
	id := IdentityFrom(r.Context())
	if id.Name != "" {
		return id.Name
	}
	return id.UserID
}
