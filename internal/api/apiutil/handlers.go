package apiutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/codr1/leaguebids/internal/api/authz"
)

const maxBodyBytes = 1 << 20

type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// HandlerError carries the HTTP status and stable error code for a failed request.
type HandlerError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e HandlerError) Error() string {
	return e.Message
}

func (e HandlerError) Unwrap() error {
	return e.Err
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return fmt.Errorf("missing request body")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	if err := encoder.Encode(payload); err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err := w.Write(buf.Bytes())
	return err
}

// WriteError renders err as a JSON error body. Errors that are not a
// HandlerError become a 500 and are logged.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var herr HandlerError
	if !errors.As(err, &herr) {
		herr = HandlerError{Status: http.StatusInternalServerError, Code: "internal", Message: "Internal server error", Err: err}
	}
	if herr.Status >= http.StatusInternalServerError {
		log.Ctx(r.Context()).Error().Err(herr.Err).Str("code", herr.Code).Msg(herr.Message)
	}
	_ = WriteJSON(w, herr.Status, errorBody{Error: herr.Code, Message: herr.Message})
}

// AuthzError maps authz sentinels to a HandlerError.
func AuthzError(err error) HandlerError {
	switch {
	case errors.Is(err, authz.ErrUnauthenticated):
		return HandlerError{Status: http.StatusUnauthorized, Code: "unauthenticated", Message: "Authentication required", Err: err}
	case errors.Is(err, authz.ErrForbidden):
		return HandlerError{Status: http.StatusForbidden, Code: "forbidden", Message: "Forbidden", Err: err}
	default:
		return HandlerError{Status: http.StatusInternalServerError, Code: "internal", Message: "Failed to authorize request", Err: err}
	}
}

// Authorize runs the capability check for the request user and writes the
// failure response. It reports whether the handler may continue.
func Authorize(w http.ResponseWriter, r *http.Request, action authz.Action, resource authz.Resource) bool {
	user := authz.UserFromContext(r.Context())
	if err := authz.Authorize(user, action, resource); err != nil {
		logEvent := log.Ctx(r.Context()).Warn().Str("action", string(action))
		if user != nil {
			logEvent = logEvent.Str("user_id", user.ID)
		}
		if resource.TeamID != "" {
			logEvent = logEvent.Str("team_id", resource.TeamID)
		}
		logEvent.Err(err).Msg("Access denied")
		WriteError(w, r, AuthzError(err))
		return false
	}
	return true
}
