package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/expressrelay/auction-server/internal/resterr"
)

// WriteError writes a resterr.Error as its mapped HTTP status and JSON
// envelope (spec.md §7).
func WriteError(w http.ResponseWriter, err *resterr.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.HTTPStatus())
	_ = json.NewEncoder(w).Encode(err.Envelope())
}
