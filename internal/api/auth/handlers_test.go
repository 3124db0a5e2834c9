package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/codr1/leaguebids/internal/db"
	"github.com/codr1/leaguebids/internal/ratelimit"
	"github.com/codr1/leaguebids/internal/testutil"
	"github.com/codr1/leaguebids/internal/tokenstore"
)

type authTestContext struct {
	service *Service
	tokens  *tokenstore.MemoryStore
	clock   *clockwork.FakeClock
	user    db.User
}

func setupAuthTest(t *testing.T) authTestContext {
	t.Helper()

	database := testutil.NewTestDB(t)
	ctx := context.Background()

	team, err := database.CreateTeam(ctx, "Harbor Hawks")
	if err != nil {
		t.Fatalf("create team: %v", err)
	}
	hash, err := HashPassword("s3cret-gm")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user, err := database.CreateUser(ctx, db.CreateUserParams{
		Email:        "gm@hawks.test",
		PasswordHash: hash,
		Role:         "manager",
		TeamID:       &team.ID,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC))
	tokens := tokenstore.NewMemoryStore(clock)
	limiter := ratelimit.New(&ratelimit.Config{LoginMaxPerHour: 3, LoginMaxIPPerHour: 100, Clock: clock})
	t.Cleanup(limiter.Close)

	service := NewService(database, tokens, Options{TTL: time.Hour, Limiter: limiter, Clock: clock})
	return authTestContext{service: service, tokens: tokens, clock: clock, user: user}
}

func login(t *testing.T, s *Service, email, password string) *httptest.ResponseRecorder {
	t.Helper()
	body := `{"email":"` + email + `","password":"` + password + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.RemoteAddr = "203.0.113.9:4000"
	rec := httptest.NewRecorder()
	s.HandleLogin(rec, req)
	return rec
}

func TestLoginCreatesSession(t *testing.T) {
	tc := setupAuthTest(t)

	rec := login(t, tc.service, "GM@hawks.test", "s3cret-gm")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp loginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Token == "" || resp.User.ID != tc.user.ID {
		t.Fatalf("unexpected login response %+v", resp)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != defaultCookieName || !cookies[0].HttpOnly {
		t.Fatalf("expected HttpOnly session cookie, got %+v", cookies)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	user, err := tc.service.UserFromRequest(httptest.NewRecorder(), req)
	if err != nil {
		t.Fatalf("user from request: %v", err)
	}
	if user == nil || user.ID != tc.user.ID || user.Role != "manager" {
		t.Fatalf("expected manager user, got %+v", user)
	}
}

func TestBearerTokenAndExpiry(t *testing.T) {
	tc := setupAuthTest(t)

	token, err := tc.service.CreateSession(context.Background(), nil, tc.user.ID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	user, err := tc.service.UserFromRequest(httptest.NewRecorder(), req)
	if err != nil || user == nil {
		t.Fatalf("expected user from bearer token, got %v, %v", user, err)
	}

	tc.clock.Advance(time.Hour)
	user, err = tc.service.UserFromRequest(httptest.NewRecorder(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user != nil {
		t.Fatal("expected expired session to resolve to no user")
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	tc := setupAuthTest(t)

	rec := login(t, tc.service, "gm@hawks.test", "wrong")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	rec = login(t, tc.service, "nobody@hawks.test", "wrong")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 for unknown user, got %d", rec.Code)
	}
}

func TestLoginRateLimited(t *testing.T) {
	tc := setupAuthTest(t)

	for i := 0; i < 3; i++ {
		login(t, tc.service, "gm@hawks.test", "wrong")
	}
	rec := login(t, tc.service, "gm@hawks.test", "s3cret-gm")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestLogoutDeletesSession(t *testing.T) {
	tc := setupAuthTest(t)

	token, err := tc.service.CreateSession(context.Background(), nil, tc.user.ID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	tc.service.HandleLogout(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rec.Code)
	}

	if _, err := tc.tokens.Get(context.Background(), token); err == nil {
		t.Fatal("expected token to be deleted")
	}
}
