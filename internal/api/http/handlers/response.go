package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/catalogd/registry/internal/api/validation"
	"github.com/catalogd/registry/internal/registry"
)

const (
	// maxDocumentBytes bounds JSON request bodies
	maxDocumentBytes = 8 << 20
	// maxContentBytes bounds version content uploads
	maxContentBytes = 64 << 20
)

// writeJSON writes v as a JSON response
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError translates an operation error into an HTTP response
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		child       registry.ChildError
		store       registry.StoreError
		notFound    registry.NotFoundError
		conflict    registry.VersionConflictError
		invalid     registry.ValidationError
		badInput    validation.ValidationError
		unsupported registry.UnsupportedError
		tooLarge    *http.MaxBytesError
	)

	// child and store errors wrap the underlying cause, match them first
	switch {
	case errors.As(err, &child), errors.As(err, &store):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &notFound):
		w.WriteHeader(http.StatusNotFound)
	case errors.As(err, &conflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &tooLarge):
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
	case errors.As(err, &invalid), errors.As(err, &badInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &unsupported):
		http.Error(w, err.Error(), http.StatusMethodNotAllowed)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Request failed")
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// readJSON reads a bounded request body and checks it is a JSON value
// other than null
func readJSON(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDocumentBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, tooLarge
		}
		return nil, registry.ValidationError{Reason: "failed to read body: " + err.Error()}
	}
	if !json.Valid(data) {
		return nil, registry.ValidationError{Reason: "body is not valid JSON"}
	}
	if strings.TrimSpace(string(data)) == "null" {
		return nil, registry.ValidationError{Reason: "body cannot be null"}
	}
	return data, nil
}

// decodeBody decodes a JSON request body into v
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	data, err := readJSON(w, r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return registry.ValidationError{Reason: "malformed body: " + err.Error()}
	}
	return nil
}

// precondition parses the optional version (or epoch) query parameter of
// a DELETE
func precondition(r *http.Request) (*int64, error) {
	q := r.URL.Query()
	raw := q.Get("version")
	if raw == "" {
		raw = q.Get("epoch")
	}
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, registry.ValidationError{Reason: fmt.Sprintf("invalid version precondition '%s'", raw)}
	}
	return &v, nil
}

// flag reports whether a boolean query parameter is present and not false
func flag(r *http.Request, name string) bool {
	q := r.URL.Query()
	if !q.Has(name) {
		return false
	}
	v, err := strconv.ParseBool(q.Get(name))
	return err != nil || v
}
