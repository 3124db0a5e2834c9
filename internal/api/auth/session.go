package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/codr1/leaguebids/internal/api/authz"
	"github.com/codr1/leaguebids/internal/db"
	"github.com/codr1/leaguebids/internal/ratelimit"
	"github.com/codr1/leaguebids/internal/tokenstore"
)

const (
	defaultCookieName = "leaguebids_session"
	defaultSessionTTL = 12 * time.Hour
	sessionTokenBytes = 32
)

// UserStore looks up accounts for login and session resolution.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (db.User, error)
	GetUserByID(ctx context.Context, id string) (db.User, error)
}

type Options struct {
	CookieName   string
	TTL          time.Duration
	SecureCookie bool
	TrustProxy   bool
	Limiter      *ratelimit.Limiter
	Clock        clockwork.Clock
}

// Service issues session tokens into the token store and resolves them back into users.
type Service struct {
	users      UserStore
	tokens     tokenstore.Store
	limiter    *ratelimit.Limiter
	clock      clockwork.Clock
	cookieName string
	ttl        time.Duration
	secure     bool
	trustProxy bool
}

type sessionRecord struct {
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

func NewService(users UserStore, tokens tokenstore.Store, opts Options) *Service {
	s := &Service{
		users:      users,
		tokens:     tokens,
		limiter:    opts.Limiter,
		clock:      opts.Clock,
		cookieName: opts.CookieName,
		ttl:        opts.TTL,
		secure:     opts.SecureCookie,
		trustProxy: opts.TrustProxy,
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.cookieName == "" {
		s.cookieName = defaultCookieName
	}
	if s.ttl <= 0 {
		s.ttl = defaultSessionTTL
	}
	return s
}

// CreateSession stores a new token for the user and sets the session cookie.
func (s *Service) CreateSession(ctx context.Context, w http.ResponseWriter, userID string) (string, error) {
	token, err := newSessionToken()
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(sessionRecord{UserID: userID, CreatedAt: s.clock.Now().UTC()})
	if err != nil {
		return "", err
	}
	if err := s.tokens.Put(ctx, token, payload, s.ttl); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}

	if w != nil {
		http.SetCookie(w, &http.Cookie{
			Name:     s.cookieName,
			Value:    token,
			Path:     "/",
			HttpOnly: true,
			Secure:   s.secure,
			SameSite: http.SameSiteLaxMode,
			Expires:  s.clock.Now().Add(s.ttl),
			MaxAge:   int(s.ttl.Seconds()),
		})
	}
	return token, nil
}

func (s *Service) ClearSession(w http.ResponseWriter, r *http.Request) {
	if token := s.tokenFromRequest(r); token != "" {
		_ = s.tokens.Delete(r.Context(), token)
	}
	s.clearSessionCookie(w)
}

func (s *Service) clearSessionCookie(w http.ResponseWriter) {
	if w == nil {
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

// UserFromRequest resolves the cookie or bearer token into the current user.
// It returns nil without error when the request carries no valid session.
func (s *Service) UserFromRequest(w http.ResponseWriter, r *http.Request) (*authz.AuthUser, error) {
	if r == nil {
		return nil, nil
	}

	token := s.tokenFromRequest(r)
	if token == "" {
		return nil, nil
	}

	payload, err := s.tokens.Get(r.Context(), token)
	if err != nil {
		if errors.Is(err, tokenstore.ErrNotFound) {
			s.clearSessionCookie(w)
			return nil, nil
		}
		return nil, err
	}

	var session sessionRecord
	if err := json.Unmarshal(payload, &session); err != nil {
		_ = s.tokens.Delete(r.Context(), token)
		return nil, fmt.Errorf("decode session: %w", err)
	}

	user, err := s.users.GetUserByID(r.Context(), session.UserID)
	if err != nil {
		_ = s.tokens.Delete(r.Context(), token)
		s.clearSessionCookie(w)
		if errors.Is(err, db.ErrUserNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return authUserFrom(user), nil
}

func (s *Service) tokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	cookie, err := r.Cookie(s.cookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func authUserFrom(u db.User) *authz.AuthUser {
	return &authz.AuthUser{
		ID:         u.ID,
		Email:      u.Email,
		Role:       u.Role,
		TeamID:     u.TeamID,
		Restricted: u.Restricted,
	}
}

func newSessionToken() (string, error) {
	token := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(token); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(token), nil
}
