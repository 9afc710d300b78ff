package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"funnelforge/internal/cache"
)

const testSecret = "test-secret"

func echoUserHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(UserIDFromContext(r.Context())))
	})
}

func TestAuthBearer_ValidToken(t *testing.T) {
	token, err := SignToken(testSecret, "user-1", time.Minute)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	handler := AuthBearer(testSecret, nil)(echoUserHandler())
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("unexpected status code: got %d, want 200", rr.Code)
	}
	if rr.Body.String() != "user-1" {
		t.Fatalf("expected subject user-1, got %q", rr.Body.String())
	}
}

func TestAuthBearer_MissingHeader(t *testing.T) {
	handler := AuthBearer(testSecret, nil)(echoUserHandler())
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

	if rr.Code != 401 {
		t.Fatalf("unexpected status code: got %d, want 401", rr.Code)
	}
}

func TestAuthBearer_MalformedHeader(t *testing.T) {
	handler := AuthBearer(testSecret, nil)(echoUserHandler())
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Token abc")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != 401 {
		t.Fatalf("unexpected status code: got %d, want 401", rr.Code)
	}
}

func TestAuthBearer_WrongSecret(t *testing.T) {
	token, err := SignToken("other-secret", "user-1", time.Minute)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	handler := AuthBearer(testSecret, nil)(echoUserHandler())
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != 401 {
		t.Fatalf("unexpected status code: got %d, want 401", rr.Code)
	}
}

func TestAuthBearer_ExpiredToken(t *testing.T) {
	token, err := SignToken(testSecret, "user-1", -time.Minute)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	handler := AuthBearer(testSecret, nil)(echoUserHandler())
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != 401 {
		t.Fatalf("unexpected status code: got %d, want 401", rr.Code)
	}
}

func TestAuthBearer_CachesVerifiedTokens(t *testing.T) {
	token, err := SignToken(testSecret, "user-1", time.Minute)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	c := cache.NewMemory()
	handler := AuthBearer(testSecret, c)(echoUserHandler())

	for range 2 {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != 200 || rr.Body.String() != "user-1" {
			t.Fatalf("unexpected response: %d %q", rr.Code, rr.Body.String())
		}
	}

	// The cached entry is keyed by digest, never the raw token.
	if _, ok := c.Get(httptest.NewRequest("GET", "/", nil).Context(), tokenCachePrefix+token); ok {
		t.Fatalf("raw token must not be used as a cache key")
	}
	if _, ok := c.Get(httptest.NewRequest("GET", "/", nil).Context(), tokenCachePrefix+tokenDigest(token)); !ok {
		t.Fatalf("verified token digest should be cached")
	}
}
