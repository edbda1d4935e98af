package web

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/workmate/workmate/internal/db"
)

func setupMiddlewareDB(t *testing.T) *db.DB {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "workmate-mw-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	database, err := db.New(filepath.Join(tempDir, "test.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	return database
}

func TestSecurityHeaders(t *testing.T) {
	t.Run("sets security headers", func(t *testing.T) {
		r := gin.New()
		r.Use(SecurityHeaders())
		r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
			t.Errorf("expected nosniff, got %q", got)
		}
		if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
			t.Errorf("expected DENY, got %q", got)
		}
		if w.Header().Get("Strict-Transport-Security") != "" {
			t.Error("expected no HSTS over plain HTTP")
		}
	})

	t.Run("sets HSTS behind TLS-terminating proxy", func(t *testing.T) {
		r := gin.New()
		r.Use(SecurityHeaders())
		r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-Proto", "https")
		r.ServeHTTP(w, req)

		if !strings.Contains(w.Header().Get("Strict-Transport-Security"), "max-age=") {
			t.Error("expected HSTS header")
		}
	})
}

func TestRateLimiter(t *testing.T) {
	t.Run("rejects requests over the burst", func(t *testing.T) {
		r := gin.New()
		r.Use(RateLimiter(1, 2))
		r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

		var rejected int
		for i := 0; i < 5; i++ {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
			if w.Code == http.StatusTooManyRequests {
				rejected++
			}
		}

		if rejected == 0 {
			t.Error("expected some requests to be rate limited")
		}
	})
}

func TestRequireJSONContentType(t *testing.T) {
	r := gin.New()
	r.Use(RequireJSONContentType())
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	t.Run("rejects non-JSON POST", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("x=1"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusUnsupportedMediaType {
			t.Errorf("expected 415, got %d", w.Code)
		}
	})

	t.Run("allows JSON POST", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}"))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", w.Code)
		}
	})

	t.Run("allows bodyless POST without content type", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))

		if w.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", w.Code)
		}
	})

	t.Run("ignores GET requests", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Content-Type", "text/plain")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", w.Code)
		}
	})
}

func TestRequireUser(t *testing.T) {
	database := setupMiddlewareDB(t)

	user, err := database.GetOrCreateUser("mw@example.com", "Middleware User")
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	r := gin.New()
	r.Use(RequireUser(database))
	r.GET("/", func(c *gin.Context) {
		current := CurrentUser(c)
		if current == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "no user in context"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"email": current.Email})
	})

	t.Run("rejects missing header", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", w.Code)
		}
	})

	t.Run("rejects unknown user", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-User-ID", "not-a-user")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", w.Code)
		}
	})

	t.Run("resolves known user into context", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-User-ID", user.ID)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if !strings.Contains(w.Body.String(), "mw@example.com") {
			t.Errorf("expected user email in response, got %s", w.Body.String())
		}
	})
}

func TestCurrentUser(t *testing.T) {
	t.Run("returns nil without a user", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		if CurrentUser(c) != nil {
			t.Error("expected nil user")
		}
	})

	t.Run("returns nil for wrong type", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Set(ContextKeyUser, "not a user")
		if CurrentUser(c) != nil {
			t.Error("expected nil user for wrong type")
		}
	})
}
