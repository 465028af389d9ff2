package secure

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// SecureTestSuite 安全响应头测试套件.
type SecureTestSuite struct {
	suite.Suite
}

func TestSecureSuite(t *testing.T) {
	suite.Run(t, new(SecureTestSuite))
}

func (s *SecureTestSuite) serve(cfg Config, next http.Handler) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	Middleware(cfg)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	return rec
}

func (s *SecureTestSuite) TestFixedHeaders() {
	rec := s.serve(Config{}, http.NotFoundHandler())
	h := rec.Header()

	s.Equal("DENY", h.Get("X-Frame-Options"))
	s.Equal("nosniff", h.Get("X-Content-Type-Options"))
	s.Equal("strict-origin-when-cross-origin", h.Get("Referrer-Policy"))
	s.Equal("same-origin", h.Get("Cross-Origin-Opener-Policy"))
	s.Equal("credentialless", h.Get("Cross-Origin-Embedder-Policy"))
	s.Equal("off", h.Get("X-DNS-Prefetch-Control"))
	s.NotContains(h.Get("Accept-CH"), "Sec-CH-UA-Full-Version")
	for _, feature := range []string{"camera", "microphone", "geolocation", "payment", "usb", "serial", "bluetooth"} {
		s.Contains(h.Get("Permissions-Policy"), feature+"=()")
	}
	s.Empty(h.Get("Strict-Transport-Security"), "非生产环境不发送 HSTS")
	s.Empty(h.Get("X-RateLimit-Policy"))
}

func (s *SecureTestSuite) TestContentSecurityPolicy() {
	cfg := Config{
		ScriptSources:  []string{"https://js.example.com", " "},
		ConnectSources: []string{"https://api.example.com", "wss://rt.example.com"},
	}
	csp := cfg.ContentSecurityPolicy()

	s.Contains(csp, "default-src 'self'")
	s.Contains(csp, "script-src 'self' 'unsafe-inline' https://js.example.com;")
	s.Contains(csp, "connect-src 'self' https://api.example.com wss://rt.example.com")
	s.Contains(csp, "frame-ancestors 'none'")
	s.NotContains(csp, "upgrade-insecure-requests")
}

func (s *SecureTestSuite) TestProduction() {
	cfg := Config{Environment: "Production"}
	cfg.ApplyDefaults()
	rec := s.serve(cfg, http.NotFoundHandler())

	s.Equal("max-age=31536000; includeSubDomains; preload", rec.Header().Get("Strict-Transport-Security"))
	s.Contains(rec.Header().Get("Content-Security-Policy"), "upgrade-insecure-requests")
}

func (s *SecureTestSuite) TestRateLimitInfo() {
	rec := s.serve(Config{RateLimit: 100, RateWindow: 15 * time.Minute}, http.NotFoundHandler())

	s.Equal("100;w=900", rec.Header().Get("X-RateLimit-Policy"))
	s.Equal("900", rec.Header().Get("X-RateLimit-Window"))
}

func (s *SecureTestSuite) TestHeadersSurviveRedirect() {
	rec := s.serve(Config{}, http.RedirectHandler("/login", http.StatusTemporaryRedirect))

	s.Equal(http.StatusTemporaryRedirect, rec.Code)
	s.Equal("DENY", rec.Header().Get("X-Frame-Options"))
}

func (s *SecureTestSuite) TestApplyCopies() {
	src := http.Header{"X-Test": {"a"}}
	dst := http.Header{}
	Apply(dst, src)
	dst["X-Test"][0] = "b"
	s.Equal("a", src.Get("X-Test"))
}
