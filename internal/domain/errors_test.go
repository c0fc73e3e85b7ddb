package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorMatching(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		target   error
		wantCode int
	}{
		{
			name:     "conflict matches ErrConflict through wrapping",
			err:      fmt.Errorf("create: %w", &ConflictError{Message: "draft exists", ResourceType: "version"}),
			target:   ErrConflict,
			wantCode: http.StatusConflict,
		},
		{
			name:     "forbidden action matches ErrForbidden",
			err:      fmt.Errorf("join: %w", &ForbiddenActionError{Action: "edit", Role: "viewer"}),
			target:   ErrForbidden,
			wantCode: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.target) {
				t.Fatalf("errors.Is(%v, %v) = false", tt.err, tt.target)
			}
			var httpErr HTTPError
			if !errors.As(tt.err, &httpErr) {
				t.Fatalf("errors.As HTTPError failed for %v", tt.err)
			}
			if httpErr.StatusCode() != tt.wantCode {
				t.Errorf("StatusCode() = %d, want %d", httpErr.StatusCode(), tt.wantCode)
			}
		})
	}
}

func TestForbiddenActionError_Message(t *testing.T) {
	if got := (&ForbiddenActionError{}).Error(); got != "forbidden: no access to document" {
		t.Errorf("Error() = %q", got)
	}
	if got := (&ForbiddenActionError{Action: "promote", Role: "editor"}).Error(); got != "forbidden: role editor cannot promote" {
		t.Errorf("Error() = %q", got)
	}
}
