package auth

import (
	"context"
	"errors"
	"fmt"

	"collabsync/internal/capabilities"
	"collabsync/internal/domain"
	"collabsync/internal/domain/models/collab"
	collabRepo "collabsync/internal/domain/repositories/collab"
)

// RoleBasedAuthorizer implements ResourceAuthorizer using per-document role
// grants and the capability table.
type RoleBasedAuthorizer struct {
	collaborators collabRepo.CollaboratorRepository
	registry      *capabilities.Registry
}

// NewRoleBasedAuthorizer creates a new role-based authorizer
func NewRoleBasedAuthorizer(collaborators collabRepo.CollaboratorRepository, registry *capabilities.Registry) *RoleBasedAuthorizer {
	return &RoleBasedAuthorizer{
		collaborators: collaborators,
		registry:      registry,
	}
}

// RoleFor returns the user's granted role. No grant means no access.
func (a *RoleBasedAuthorizer) RoleFor(ctx context.Context, userID, documentID string) (collab.Role, error) {
	if userID == "" {
		return "", fmt.Errorf("missing user: %w", domain.ErrUnauthorized)
	}

	role, err := a.collaborators.GetRole(ctx, documentID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", fmt.Errorf("access denied to document %s: %w", documentID, &domain.ForbiddenActionError{})
		}
		return "", fmt.Errorf("check document access: %w", err)
	}
	return role, nil
}

// Require returns the user's role if it grants capability
func (a *RoleBasedAuthorizer) Require(ctx context.Context, userID, documentID string, capability capabilities.Capability) (collab.Role, error) {
	role, err := a.RoleFor(ctx, userID, documentID)
	if err != nil {
		return "", err
	}
	if !a.Allows(role, capability) {
		return role, fmt.Errorf("document %s: %w", documentID, &domain.ForbiddenActionError{
			Action: string(capability),
			Role:   string(role),
		})
	}
	return role, nil
}

// Allows reports whether role grants capability
func (a *RoleBasedAuthorizer) Allows(role collab.Role, capability capabilities.Capability) bool {
	return a.registry.Allows(string(role), capability)
}
