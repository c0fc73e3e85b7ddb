package collab

import "time"

// Role is a collaborator's grant on a document.
type Role string

const (
	RoleOwner    Role = "owner"
	RoleEditor   Role = "editor"
	RoleReviewer Role = "reviewer"
	RoleViewer   Role = "viewer"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleEditor, RoleReviewer, RoleViewer:
		return true
	}
	return false
}

// Participant is a presence entry. It lives only while its session is
// joined to a room and is never persisted.
type Participant struct {
	SessionID string    `json:"sessionId"`
	UserID    string    `json:"id"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	JoinedAt  time.Time `json:"joinedAt"`
}

// UserRef identifies who made a change.
type UserRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Collaborator is a persisted grant of a role on a document.
type Collaborator struct {
	DocumentID string    `json:"documentId"`
	UserID     string    `json:"userId"`
	Role       Role      `json:"role"`
	InvitedBy  string    `json:"invitedBy"`
	CreatedAt  time.Time `json:"createdAt"`
}

// InviteRequest is the body of POST /api/documents/{id}/collaborators.
type InviteRequest struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}
