package auth

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/codr1/leaguebids/internal/api/apiutil"
	"github.com/codr1/leaguebids/internal/db"
	"github.com/codr1/leaguebids/internal/ratelimit"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID     string  `json:"id"`
	Email  string  `json:"email"`
	Role   string  `json:"role"`
	TeamID *string `json:"team_id,omitempty"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

// HandleLogin handles POST /api/v1/auth/login.
func (s *Service) HandleLogin(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	var req loginRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Code: "invalid_request", Message: "Invalid JSON body", Err: err})
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Code: "invalid_request", Message: "Email and password are required"})
		return
	}

	ip := ratelimit.GetClientIP(r, s.trustProxy)
	if s.limiter != nil {
		if result := s.limiter.CheckLogin(req.Email, ip); !result.Allowed {
			ratelimit.LogRateLimitExceeded("login", ratelimit.SanitizeIdentifier(req.Email), ip, result.Reason)
			w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())+1))
			apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusTooManyRequests, Code: "rate_limited", Message: "Too many login attempts"})
			return
		}
	}

	user, err := s.users.GetUserByEmail(r.Context(), req.Email)
	if err != nil && !errors.Is(err, db.ErrUserNotFound) {
		logger.Error().Err(err).Msg("Failed to look up user")
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusInternalServerError, Code: "internal", Message: "Internal server error", Err: err})
		return
	}
	if err != nil || !VerifyPassword(user.PasswordHash, req.Password) {
		if s.limiter != nil {
			s.limiter.RecordLoginFailure(req.Email, ip)
		}
		logger.Warn().Str("email", ratelimit.SanitizeIdentifier(req.Email)).Msg("Login failed")
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusUnauthorized, Code: "invalid_credentials", Message: "Invalid email or password"})
		return
	}
	if s.limiter != nil {
		s.limiter.ResetLogin(req.Email)
	}

	token, err := s.CreateSession(r.Context(), w, user.ID)
	if err != nil {
		logger.Error().Err(err).Str("user_id", user.ID).Msg("Failed to create session")
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusInternalServerError, Code: "internal", Message: "Failed to create session", Err: err})
		return
	}

	logger.Info().Str("user_id", user.ID).Str("role", user.Role).Msg("User logged in")
	_ = apiutil.WriteJSON(w, http.StatusOK, loginResponse{
		Token: token,
		User: userResponse{
			ID:     user.ID,
			Email:  user.Email,
			Role:   user.Role,
			TeamID: user.TeamID,
		},
	})
}

// HandleLogout handles POST /api/v1/auth/logout.
func (s *Service) HandleLogout(w http.ResponseWriter, r *http.Request) {
	s.ClearSession(w, r)
	w.WriteHeader(http.StatusNoContent)
}
