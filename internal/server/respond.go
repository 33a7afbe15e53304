package server

import (
	"encoding/json"
	goerrors "errors"
	"net/http"

	"github.com/synthesis-kb/synthesis/internal/errors"
)

// errorEnvelope is the wire shape of every error response.
type errorEnvelope struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// statusFor maps error codes to HTTP statuses.
func statusFor(code string) int {
	switch code {
	case errors.CodeInvalidInput:
		return http.StatusBadRequest
	case errors.CodeNotFound:
		return http.StatusNotFound
	case errors.CodeConflict:
		return http.StatusConflict
	case errors.CodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case errors.CodeRateLimited:
		return http.StatusTooManyRequests
	case errors.CodeProviderUnavailable:
		return http.StatusServiceUnavailable
	case errors.CodeQuotaExceeded:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("failed to encode response", "error", err)
	}
}

// writeError renders err as the error envelope. Internals never leak:
// unclassified errors get a generic message and the cause stays in the
// log.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.GetCode(err)
	env := errorEnvelope{Error: code}

	var se *errors.SynthError
	if goerrors.As(err, &se) && code != errors.CodeInternal {
		env.Message = se.Message
		if len(se.Details) > 0 {
			env.Details = se.Details
		}
	} else {
		env.Message = "internal error"
		s.log.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
	}

	s.writeJSON(w, statusFor(code), env)
}

func (s *Server) decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(err, errors.CodeInvalidInput, "invalid request body")
	}
	return nil
}
