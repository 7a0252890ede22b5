package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func get(r *gin.Engine, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestID_GeneratesAndEchoes(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := get(r, "/ping", nil)
	rid := w.Header().Get("X-Request-ID")
	if rid == "" {
		t.Fatalf("no X-Request-ID on response")
	}
	if _, err := uuid.Parse(rid); err != nil {
		t.Fatalf("generated id is not a UUID: %q", rid)
	}
}

func TestRequestID_PropagatesIncoming(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := get(r, "/ping", map[string]string{"X-Request-ID": "gw-12345"})
	if got := w.Header().Get("X-Request-ID"); got != "gw-12345" {
		t.Fatalf("request id = %q; want the incoming value", got)
	}
}

func TestRecovery_ReturnsStructured500(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/boom", func(*gin.Context) { panic("kaboom") })

	w := get(r, "/boom", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d; want 500", w.Code)
	}
	body := w.Body.String()
	if body == "" || !strings.Contains(body, `"error_code":"internal_error"`) {
		t.Fatalf("body = %q; want structured error", body)
	}
}

func TestIdempotencyValidator_AbsentHeaderIsNoOp(t *testing.T) {
	r := gin.New()
	r.Use(IdempotencyValidator(IdempotencyOptions{}, nil))
	r.GET("/x", func(c *gin.Context) {
		if _, ok := GetIdempotencyKey(c); ok {
			t.Errorf("key present without header")
		}
		if IsReplay(c) {
			t.Errorf("replay flagged without header")
		}
		c.Status(http.StatusOK)
	})

	if w := get(r, "/x", nil); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestIdempotencyValidator_RejectsInvalidKeys(t *testing.T) {
	r := gin.New()
	r.Use(IdempotencyValidator(IdempotencyOptions{MaxLen: 10}, nil))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	for name, key := range map[string]string{
		"too long":      "aaaaaaaaaaaaaaaaaaaa",
		"bad character": "evt 1",
		"unicode":       "evt-β",
	} {
		w := get(r, "/x", map[string]string{HeaderIdempotencyKey: key})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d; want 400", name, w.Code)
		}
		if !strings.Contains(w.Body.String(), "bad_idempotency_key") {
			t.Fatalf("%s: body = %q", name, w.Body.String())
		}
	}
}

func TestIdempotencyValidator_ReplayDetection(t *testing.T) {
	lookup := func(_ context.Context, key string, _ time.Time) (bool, error) {
		return key == "evt-seen", nil
	}

	r := gin.New()
	r.Use(IdempotencyValidator(IdempotencyOptions{}, lookup))
	r.GET("/x", func(c *gin.Context) {
		key, _ := GetIdempotencyKey(c)
		c.JSON(http.StatusOK, gin.H{
			"key":    key,
			"replay": IsReplay(c),
			"bypass": IsRateBypass(c),
		})
	})

	w := get(r, "/x", map[string]string{HeaderIdempotencyKey: "evt-seen"})
	if !strings.Contains(w.Body.String(), `"replay":true`) || !strings.Contains(w.Body.String(), `"bypass":true`) {
		t.Fatalf("replay not flagged: %s", w.Body.String())
	}

	w = get(r, "/x", map[string]string{HeaderIdempotencyKey: "evt-new"})
	if !strings.Contains(w.Body.String(), `"replay":false`) {
		t.Fatalf("fresh key flagged as replay: %s", w.Body.String())
	}
}

func TestRateLimiter_EnforcesPerKeyBuckets(t *testing.T) {
	rl := NewRateLimiter(0, 2, KeyByTenantOrIP()) // no refill, burst 2

	r := gin.New()
	r.Use(rl.Handler())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	hdr := map[string]string{"X-Tenant-ID": "tenant-1"}
	for i := 0; i < 2; i++ {
		if w := get(r, "/x", hdr); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i+1, w.Code)
		}
	}
	w := get(r, "/x", hdr)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d; want 429 after burst", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("no Retry-After on 429")
	}
	if !strings.Contains(w.Body.String(), "too_many_requests") {
		t.Fatalf("body = %q", w.Body.String())
	}

	// A different tenant has its own bucket.
	if w := get(r, "/x", map[string]string{"X-Tenant-ID": "tenant-2"}); w.Code != http.StatusOK {
		t.Fatalf("other tenant throttled: %d", w.Code)
	}
}

func TestRateLimiter_ReplayBypass(t *testing.T) {
	lookup := func(context.Context, string, time.Time) (bool, error) { return true, nil }
	rl := NewRateLimiter(0, 1, KeyByTenantOrIP())

	r := gin.New()
	r.Use(IdempotencyValidator(IdempotencyOptions{}, lookup), rl.Handler())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	hdr := map[string]string{"X-Tenant-ID": "tenant-1"}
	if w := get(r, "/x", hdr); w.Code != http.StatusOK {
		t.Fatalf("first request: %d", w.Code)
	}
	if w := get(r, "/x", hdr); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request without key: %d; want 429", w.Code)
	}

	// A replayed delivery is served without consuming tokens.
	hdr[HeaderIdempotencyKey] = "evt-1"
	if w := get(r, "/x", hdr); w.Code != http.StatusOK {
		t.Fatalf("replay was rate limited: %d", w.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders(SecurityOptions{EnableHSTS: true, NoStore: true}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := get(r, "/x", nil)
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("nosniff missing, got %q", got)
	}
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("frame options = %q", got)
	}
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("cache control = %q", got)
	}
	// Plain HTTP request: HSTS must not be emitted even when enabled.
	if got := w.Header().Get("Strict-Transport-Security"); got != "" {
		t.Fatalf("HSTS on plain http: %q", got)
	}

	w = get(r, "/x", map[string]string{"X-Forwarded-Proto": "https"})
	if got := w.Header().Get("Strict-Transport-Security"); got == "" {
		t.Fatalf("HSTS missing on forwarded https")
	}
}

func TestKeyByTenantOrIP(t *testing.T) {
	fn := KeyByTenantOrIP()

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.Header.Set("X-Tenant-ID", " tenant-9 ")
	if got := fn(c); got != "tenant:tenant-9" {
		t.Fatalf("key = %q; want tenant namespace", got)
	}

	c2, _ := gin.CreateTestContext(httptest.NewRecorder())
	c2.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c2.Request.RemoteAddr = "203.0.113.9:1234"
	if got := fn(c2); got != "ip:203.0.113.9" {
		t.Fatalf("key = %q; want ip fallback", got)
	}
}
