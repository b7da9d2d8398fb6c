package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func serveSecure(t *testing.T, opt SecurityOptions, pre gin.HandlerFunc, mutate func(*http.Request)) http.Header {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if pre != nil {
		r.Use(pre)
	}
	r.Use(SecurityHeaders(opt))
	r.GET("/reminders", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/reminders", nil)
	if mutate != nil {
		mutate(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Header()
}

func TestSecurityHeaders_BaselineOnly(t *testing.T) {
	h := serveSecure(t, SecurityOptions{EnableHSTS: true}, nil, nil)

	if h.Get("X-Content-Type-Options") != "nosniff" ||
		h.Get("X-Frame-Options") != "DENY" ||
		h.Get("Referrer-Policy") != "no-referrer" {
		t.Fatalf("baseline headers missing: %#v", h)
	}
	for _, k := range []string{"Permissions-Policy", "Cache-Control", "Pragma", "Strict-Transport-Security", "Access-Control-Expose-Headers"} {
		if h.Get(k) != "" {
			t.Fatalf("unexpected %s on plain http: %#v", k, h)
		}
	}
}

func TestSecurityHeaders_OptionalGroups(t *testing.T) {
	h := serveSecure(t, SecurityOptions{
		EnableHSTS:   true,
		HSTSMaxAge:   24 * time.Hour,
		NoStore:      true,
		EnablePolicy: true,
	}, nil, func(r *http.Request) { r.TLS = &tls.ConnectionState{} })

	if h.Get("Permissions-Policy") == "" || h.Get("X-Permitted-Cross-Domain-Policies") != "none" {
		t.Fatalf("missing policy headers: %#v", h)
	}
	if h.Get("Cache-Control") != "no-store" || h.Get("Pragma") != "no-cache" || h.Get("Expires") != "0" {
		t.Fatalf("missing cache headers: %#v", h)
	}
	if got := h.Get("Strict-Transport-Security"); got != "max-age=86400; includeSubDomains; preload" {
		t.Fatalf("HSTS = %q", got)
	}
}

func TestSecurityHeaders_HSTSDefaultMaxAgeBehindProxy(t *testing.T) {
	h := serveSecure(t, SecurityOptions{EnableHSTS: true}, nil, func(r *http.Request) {
		r.Header.Set("X-Forwarded-Proto", "HTTPS")
	})
	if got := h.Get("Strict-Transport-Security"); got != "max-age=15552000; includeSubDomains; preload" {
		t.Fatalf("HSTS = %q", got)
	}
}

func TestSecurityHeaders_ExposeHeaders(t *testing.T) {
	withRID := func(existing string) gin.HandlerFunc {
		return func(c *gin.Context) {
			c.Header("X-Request-ID", "rid-1")
			if existing != "" {
				c.Header("Access-Control-Expose-Headers", existing)
			}
			c.Next()
		}
	}

	cases := []struct {
		name     string
		existing string
		expose   []string
		want     string
	}{
		{"request id only", "", nil, "X-Request-ID"},
		{"extras after request id", "", []string{"ETag", "Idempotency-Replayed"}, "X-Request-ID, ETag, Idempotency-Replayed"},
		{"append to existing", "Foo", nil, "Foo, X-Request-ID"},
		{"no duplicates", "x-request-id, ETag", []string{"ETag"}, "x-request-id, ETag"},
		{"prefix is not a match", "ETagged", []string{"ETag"}, "ETagged, X-Request-ID, ETag"},
	}
	for _, tc := range cases {
		h := serveSecure(t, SecurityOptions{Expose: tc.expose}, withRID(tc.existing), nil)
		if got := h.Get("Access-Control-Expose-Headers"); got != tc.want {
			t.Fatalf("%s: expose = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func Test_isHTTPS(t *testing.T) {
	plain := httptest.NewRequest(http.MethodGet, "/", nil)
	if isHTTPS(plain) {
		t.Fatalf("plain HTTP should not be https")
	}
	tlsReq := httptest.NewRequest(http.MethodGet, "/", nil)
	tlsReq.TLS = &tls.ConnectionState{}
	if !isHTTPS(tlsReq) {
		t.Fatalf("TLS request should be https")
	}
	proxied := httptest.NewRequest(http.MethodGet, "/", nil)
	proxied.Header.Set("X-Forwarded-Proto", "https")
	if !isHTTPS(proxied) {
		t.Fatalf("X-Forwarded-Proto=https should be https")
	}
}
