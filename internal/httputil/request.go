package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"collabsync/internal/config"
)

// maxBodyBytes leaves room for metadata around the largest allowed content.
const maxBodyBytes = config.MaxContentBytes + 64<<10

// ErrBodyTooLarge is returned by ParseJSON when the body exceeds the limit.
var ErrBodyTooLarge = errors.New("request body too large")

// ParseJSON decodes the request body into dest. Unknown fields are
// accepted; proposal metadata carries free-form form fields.
func ParseJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return ErrBodyTooLarge
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}
