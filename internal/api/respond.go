package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/muaviaUsmani/hearth/internal/errors"
)

type errorBody struct {
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

const (
	codeValidation = "VALIDATION_ERROR"
	codeInternal   = "INTERNAL_ERROR"

	internalMessage = "Unexpected server error."
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// nothing useful to do if the client went away
	_ = json.NewEncoder(w).Encode(v)
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "Bad Request", Message: message})
}

// writeError maps the error taxonomy onto status codes and bodies. Internal
// details are logged, never returned.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *errors.ValidationError
		nf *errors.NotFoundError
	)
	switch {
	case errors.Is(err, errors.ErrInternal):
		// wrapped causes stay internal
		s.internalError(w, r, err)
	case errors.As(err, &ve):
		writeBadRequest(w, ve.Message)
	case errors.As(err, &nf):
		// not-found keeps the "Bad Request" label clients already match on
		writeJSON(w, http.StatusNotFound, errorBody{
			Error:   "Bad Request",
			Code:    codeValidation,
			Message: fmt.Sprintf("%s not found", nf.Resource),
		})
	default:
		s.internalError(w, r, err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.log.ErrorContext(r.Context(), "Request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err)
	writeJSON(w, http.StatusInternalServerError, errorBody{Code: codeInternal, Message: internalMessage})
}

// decodeBody decodes a JSON request body into v. An empty body is allowed
// when optional is set.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}, optional bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return errors.Validation("body", "Request body must be a valid JSON object.")
	}
	return nil
}
