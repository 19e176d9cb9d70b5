package core

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

type apiRig struct {
	router  *gin.Engine
	codec   *TokenCodec
	users   *fakeUserRepo
	redis   *miniredis.Miniredis
	limiter *LoginRateLimiter
}

func newAPIRig(t *testing.T, loginLimit int) *apiRig {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	users := newFakeUserRepo()
	authService := NewAuthService(users, NewBcryptHasher(bcrypt.MinCost))
	todoService := NewTodoService(newFakeTodoRepo())
	codec := NewTokenCodec([]byte("router-secret"), time.Hour)
	limiter := NewLoginRateLimiter(client, loginLimit, time.Minute)

	cfg := Config{AllowedOrigins: []string{"https://app.example"}}
	return &apiRig{
		router:  NewRouter(cfg, codec, authService, todoService, limiter, nil),
		codec:   codec,
		users:   users,
		redis:   mr,
		limiter: limiter,
	}
}

func (rig *apiRig) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	rig.router.ServeHTTP(w, req)
	return w
}

func (rig *apiRig) registerAndLogin(t *testing.T, username, password string) string {
	t.Helper()
	if w := rig.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{"username": username, "password": password}); w.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	w := rig.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": username, "password": password})
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Token     string `json:"token"`
		ExpiresIn int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.Token == "" || resp.ExpiresIn != 3600 {
		t.Fatalf("unexpected login response: %s", w.Body.String())
	}
	return resp.Token
}

func TestHealthz(t *testing.T) {
	rig := newAPIRig(t, 0)
	if w := rig.do(t, http.MethodGet, "/healthz", "", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestRegisterConflictAndValidation(t *testing.T) {
	rig := newAPIRig(t, 0)

	if w := rig.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{"username": "alice", "password": "secret1"}); w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	w := rig.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{"username": "alice", "password": "another1"})
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate username: expected 409, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"CONFLICT"`) {
		t.Fatalf("expected CONFLICT code in body: %s", w.Body.String())
	}

	for name, body := range map[string]gin.H{
		"short password":  {"username": "bob", "password": "12345"},
		"empty username":  {"username": "  ", "password": "secret1"},
		"bad characters":  {"username": "bob!", "password": "secret1"},
		"overlong handle": {"username": strings.Repeat("a", 51), "password": "secret1"},
	} {
		if w := rig.do(t, http.MethodPost, "/api/v1/auth/register", "", body); w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d: %s", name, w.Code, w.Body.String())
		}
	}
}

func TestLoginFailuresAreUniform(t *testing.T) {
	rig := newAPIRig(t, 0)
	rig.registerAndLogin(t, "alice", "secret1")

	unknown := rig.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "nobody", "password": "secret1"})
	wrongPass := rig.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "alice", "password": "wrong-pass"})

	if unknown.Code != http.StatusUnauthorized || wrongPass.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for both, got %d and %d", unknown.Code, wrongPass.Code)
	}
	if unknown.Body.String() != wrongPass.Body.String() {
		t.Fatalf("failure bodies must be indistinguishable:\n%s\n%s", unknown.Body.String(), wrongPass.Body.String())
	}
	if !strings.Contains(unknown.Body.String(), `"INVALID_CREDENTIALS"`) {
		t.Fatalf("expected INVALID_CREDENTIALS code: %s", unknown.Body.String())
	}
}

func TestResponsesNeverCarryPasswordHash(t *testing.T) {
	rig := newAPIRig(t, 0)
	token := rig.registerAndLogin(t, "alice", "secret1")

	for _, w := range []*httptest.ResponseRecorder{
		rig.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{"username": "bob", "password": "secret1"}),
		rig.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "alice", "password": "secret1"}),
		rig.do(t, http.MethodGet, "/api/v1/auth/me", token, nil),
	} {
		body := w.Body.String()
		if strings.Contains(body, "password") || strings.Contains(body, "$2a$") {
			t.Fatalf("response leaks credential material: %s", body)
		}
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	rig := newAPIRig(t, 0)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/auth/me"},
		{http.MethodPut, "/api/v1/auth/password"},
		{http.MethodGet, "/api/v1/todos"},
		{http.MethodPost, "/api/v1/todos"},
		{http.MethodGet, "/api/v1/todos/overdue"},
		{http.MethodGet, "/api/v1/todos/stats"},
		{http.MethodGet, "/api/v1/todos/1"},
		{http.MethodDelete, "/api/v1/todos/1"},
		{http.MethodPost, "/api/v1/todos/1/toggle"},
	}
	for _, p := range paths {
		if w := rig.do(t, p.method, p.path, "", nil); w.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401, got %d", p.method, p.path, w.Code)
		}
	}
}

func TestTodoLifecycleOverHTTP(t *testing.T) {
	rig := newAPIRig(t, 0)
	token := rig.registerAndLogin(t, "alice", "secret1")

	w := rig.do(t, http.MethodPost, "/api/v1/todos", token, gin.H{
		"title":    "write report",
		"priority": "HIGH",
		"due_date": "2026-09-15",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created TodoRecord
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created todo: %v", err)
	}
	if created.ID == 0 || created.Priority != PriorityHigh || created.Completed {
		t.Fatalf("unexpected created todo: %+v", created)
	}

	idPath := "/api/v1/todos/" + strconv.FormatInt(created.ID, 10)

	if w := rig.do(t, http.MethodGet, "/api/v1/todos?status=incomplete", token, nil); w.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", w.Code)
	} else if !strings.Contains(w.Body.String(), `"write report"`) {
		t.Fatalf("list missing created todo: %s", w.Body.String())
	}

	if w := rig.do(t, http.MethodPost, idPath+"/toggle", token, nil); w.Code != http.StatusOK {
		t.Fatalf("toggle: expected 200, got %d: %s", w.Code, w.Body.String())
	} else if !strings.Contains(w.Body.String(), `"completed":true`) {
		t.Fatalf("toggle did not complete the todo: %s", w.Body.String())
	}

	if w := rig.do(t, http.MethodGet, "/api/v1/todos/stats", token, nil); !strings.Contains(w.Body.String(), `"completed":1`) {
		t.Fatalf("stats: %s", w.Body.String())
	}

	if w := rig.do(t, http.MethodDelete, idPath, token, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", w.Code)
	}
	if w := rig.do(t, http.MethodGet, idPath, token, nil); w.Code != http.StatusNotFound {
		t.Fatalf("get deleted: expected 404, got %d", w.Code)
	}
}

func TestTodoCrossUserAccessForbidden(t *testing.T) {
	rig := newAPIRig(t, 0)
	aliceToken := rig.registerAndLogin(t, "alice", "secret1")
	bobToken := rig.registerAndLogin(t, "bob", "secret1")

	w := rig.do(t, http.MethodPost, "/api/v1/todos", aliceToken, gin.H{"title": "private"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", w.Code)
	}
	var created TodoRecord
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created todo: %v", err)
	}
	idPath := "/api/v1/todos/" + strconv.FormatInt(created.ID, 10)

	if w := rig.do(t, http.MethodGet, idPath, bobToken, nil); w.Code != http.StatusForbidden {
		t.Fatalf("cross-user get: expected 403, got %d: %s", w.Code, w.Body.String())
	}
	if w := rig.do(t, http.MethodDelete, idPath, bobToken, nil); w.Code != http.StatusForbidden {
		t.Fatalf("cross-user delete: expected 403, got %d", w.Code)
	}
	// The owner still sees it.
	if w := rig.do(t, http.MethodGet, idPath, aliceToken, nil); w.Code != http.StatusOK {
		t.Fatalf("owner get: expected 200, got %d", w.Code)
	}
}

func TestChangePasswordOverHTTP(t *testing.T) {
	rig := newAPIRig(t, 0)
	token := rig.registerAndLogin(t, "alice", "secret1")

	w := rig.do(t, http.MethodPut, "/api/v1/auth/password", token, gin.H{"old_password": "wrong", "new_password": "secret2"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong old password: expected 401, got %d: %s", w.Code, w.Body.String())
	}

	if w := rig.do(t, http.MethodPut, "/api/v1/auth/password", token, gin.H{"old_password": "secret1", "new_password": "secret2"}); w.Code != http.StatusNoContent {
		t.Fatalf("change password: expected 204, got %d: %s", w.Code, w.Body.String())
	}

	if w := rig.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "alice", "password": "secret1"}); w.Code != http.StatusUnauthorized {
		t.Fatalf("old password must stop working, got %d", w.Code)
	}
	if w := rig.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "alice", "password": "secret2"}); w.Code != http.StatusOK {
		t.Fatalf("new password must work, got %d: %s", w.Code, w.Body.String())
	}
}

func TestLoginRateLimitOverHTTP(t *testing.T) {
	rig := newAPIRig(t, 2)

	body := gin.H{"username": "nobody", "password": "whatever"}
	for i := 0; i < 2; i++ {
		if w := rig.do(t, http.MethodPost, "/api/v1/auth/login", "", body); w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, w.Code)
		}
	}
	w := rig.do(t, http.MethodPost, "/api/v1/auth/login", "", body)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after limit, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"RATE_LIMITED"`) {
		t.Fatalf("expected RATE_LIMITED code: %s", w.Body.String())
	}

	// Limiter failure must not lock users out.
	rig.redis.Close()
	if w := rig.do(t, http.MethodPost, "/api/v1/auth/login", "", body); w.Code != http.StatusUnauthorized {
		t.Fatalf("limiter outage must fail open, got %d", w.Code)
	}
}
