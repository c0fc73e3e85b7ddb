package services

import (
	"context"

	"collabsync/internal/capabilities"
	"collabsync/internal/domain/models/collab"
)

// ResourceAuthorizer checks what a user may do on a document.
//
// Services call the authorizer before operating on a document. Role grants
// come from the collaborators table; capabilities per role come from the
// embedded role table.
type ResourceAuthorizer interface {
	// RoleFor returns the user's role on the document, or domain.ErrForbidden
	RoleFor(ctx context.Context, userID, documentID string) (collab.Role, error)

	// Require returns the user's role if it grants the capability, domain.ErrForbidden otherwise
	Require(ctx context.Context, userID, documentID string, capability capabilities.Capability) (collab.Role, error)

	// Allows reports whether role grants capability
	Allows(role collab.Role, capability capabilities.Capability) bool
}
