package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// maxBodySize bounds request bodies; reference images arrive base64-inline,
// so the limit is generous.
const maxBodySize = 25 << 20

// ParseJSON decodes JSON from the request body into the given destination.
// Unknown fields are tolerated; validation happens downstream on the typed
// request structs.
func ParseJSON(w http.ResponseWriter, r *http.Request, dest interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}
