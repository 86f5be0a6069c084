package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/edustack/edustack/internal/auth"
)

// maxBodySize caps request bodies at 1 MB.
const maxBodySize = 1 << 20

// errorEnvelope is the error response shape of every endpoint.
type errorEnvelope struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, errorEnvelope{Error: errorDetail{Code: code, Message: message}})
}

// writeValidationError answers 422 and names the offending field when err
// is an *auth.ValidationError.
func writeValidationError(w http.ResponseWriter, err error) {
	detail := errorDetail{Code: "validation_error", Message: err.Error()}
	var ve *auth.ValidationError
	if errors.As(err, &ve) {
		detail.Field = ve.Field
	}
	writeJSON(w, http.StatusUnprocessableEntity, errorEnvelope{Error: detail})
}

func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// readJSON decodes a single JSON value from the request body, enforcing
// maxBodySize.
func readJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected data after JSON body")
	}
	return nil
}
