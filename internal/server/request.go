package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/cicconee/silam-pollen/internal/app"
)

// maxBody caps request bodies.
const maxBody = 1 << 20

// DecodeJSON reads the JSON body of r into v. An empty body leaves v
// untouched. Malformed bodies are returned as a bad request.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return app.BadRequest(fmt.Errorf("decoding request body: %w", err), "Invalid JSON body")
	}

	return nil
}
