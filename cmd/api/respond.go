package main

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/PaulBabatuyi/bhangaarWaala-api/internal/lifecycle"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]errorBody{"error": {Code: code, Message: message}})
}

// errorKinds maps controller error kinds to HTTP status and error code.
var errorKinds = []struct {
	kind   error
	status int
	code   string
}{
	{lifecycle.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
	{lifecycle.ErrForbidden, http.StatusForbidden, "forbidden"},
	{lifecycle.ErrNotFound, http.StatusNotFound, "not_found"},
	{lifecycle.ErrInvalidTransition, http.StatusBadRequest, "invalid_transition"},
	{lifecycle.ErrConflict, http.StatusBadRequest, "conflict"},
	{lifecycle.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
}

// respondError writes err as a JSON error. Unclassified errors are logged
// and reported as a generic 500 so internals never leak to clients.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	for _, k := range errorKinds {
		if errors.Is(err, k.kind) {
			writeError(w, k.status, k.code, err.Error())
			return
		}
	}
	log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
	writeError(w, http.StatusInternalServerError, "internal", "internal server error")
}

// decodeJSON decodes an optional JSON body into out. An empty body leaves
// out untouched.
func decodeJSON(r *http.Request, out interface{}) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}
