package csrf

import (
	"crypto/tls"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type recordingMetrics struct {
	rejected []string
	panics   []string
}

func (m *recordingMetrics) CSRFRejected(code string)     { m.rejected = append(m.rejected, code) }
func (m *recordingMetrics) PanicRecovered(policy string) { m.panics = append(m.panics, policy) }

// CSRFTestSuite CSRF 中间件测试套件.
type CSRFTestSuite struct {
	suite.Suite
	metrics *recordingMetrics
}

func TestCSRFSuite(t *testing.T) {
	suite.Run(t, new(CSRFTestSuite))
}

func (s *CSRFTestSuite) SetupTest() {
	s.metrics = &recordingMetrics{}
}

func (s *CSRFTestSuite) handler(opts ...Option) http.Handler {
	opts = append([]Option{WithMetrics(s.metrics)}, opts...)
	return New(opts...).Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func (s *CSRFTestSuite) post(h http.Handler, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "http://app.example.com"+path, strings.NewReader("{}"))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func code(rec *httptest.ResponseRecorder) string {
	var body struct {
		Code     string   `json:"code"`
		Required []string `json:"required"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return body.Code
}

const browserUA = "Mozilla/5.0 (Macintosh)"

func (s *CSRFTestSuite) TestSafeMethodsSkip() {
	h := s.handler()
	for _, m := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(m, "/api/things", nil))
		s.Equal(http.StatusOK, rec.Code, m)
	}
}

func (s *CSRFTestSuite) TestSkippedPrefixes() {
	h := s.handler()
	s.Equal(http.StatusOK, s.post(h, "/api/auth/callback", nil).Code)
	s.Equal(http.StatusOK, s.post(h, "/api/public/contact", nil).Code)
}

func (s *CSRFTestSuite) TestMissingTokenAndOrigin() {
	rec := s.post(s.handler(), "/api/things", map[string]string{"User-Agent": browserUA})

	s.Equal(http.StatusForbidden, rec.Code)
	s.Equal("CSRF_TOKEN_REQUIRED", code(rec))
	s.Contains(rec.Body.String(), `"required":["Origin or Referer","X-CSRF-Token"]`)
	s.Equal([]string{"CSRF_TOKEN_REQUIRED"}, s.metrics.rejected)
}

func (s *CSRFTestSuite) TestSameOriginWithoutToken() {
	h := s.handler()

	s.Equal(http.StatusOK, s.post(h, "/api/things", map[string]string{
		"Origin": "http://app.example.com", "User-Agent": browserUA,
	}).Code)
	s.Equal(http.StatusOK, s.post(h, "/api/things", map[string]string{
		"Origin": "https://app.example.com", "User-Agent": browserUA,
	}).Code, "https://host 同样接受")
	s.Equal(http.StatusOK, s.post(h, "/api/things", map[string]string{
		"Referer": "http://app.example.com/dashboard", "User-Agent": browserUA,
	}).Code)
}

func (s *CSRFTestSuite) TestCrossOriginWithoutToken() {
	h := s.handler()

	rec := s.post(h, "/api/things", map[string]string{
		"Origin": "https://evil.example.net", "User-Agent": browserUA,
	})
	s.Equal("CSRF_TOKEN_REQUIRED", code(rec))

	rec = s.post(h, "/api/things", map[string]string{
		"Referer": "http://app.example.com.evil.net/x", "User-Agent": browserUA,
	})
	s.Equal("CSRF_TOKEN_REQUIRED", code(rec), "前缀必须以 / 结尾")
}

func (s *CSRFTestSuite) TestToolUserAgentNeedsToken() {
	h := s.handler()
	for _, ua := range []string{"curl/8.0", "Wget/1.21", "Python-urllib/3.11", "PostmanRuntime/7.0"} {
		rec := s.post(h, "/api/things", map[string]string{
			"Origin": "http://app.example.com", "User-Agent": ua,
		})
		s.Equal(http.StatusForbidden, rec.Code, ua)
	}
}

func (s *CSRFTestSuite) TestLocalhostOriginInProduction() {
	headers := map[string]string{"Origin": "http://localhost:3000", "Referer": "http://app.example.com/x", "User-Agent": browserUA}

	s.Equal(http.StatusOK, s.post(s.handler(), "/api/things", headers).Code)
	s.Equal(http.StatusForbidden, s.post(s.handler(WithEnvironment("production")), "/api/things", headers).Code)
}

func (s *CSRFTestSuite) TestTokenShape() {
	h := s.handler()

	rec := s.post(h, "/api/things", map[string]string{HeaderName: "short"})
	s.Equal(http.StatusForbidden, rec.Code)
	s.Equal("INVALID_CSRF_TOKEN", code(rec))

	rec = s.post(h, "/api/things", map[string]string{HeaderName: "abcdefghijklmnop!"})
	s.Equal("INVALID_CSRF_TOKEN", code(rec))

	s.Equal(http.StatusOK, s.post(h, "/api/things", map[string]string{HeaderName: "abcdefghij_klmn-P"}).Code,
		"格式合法即放行")
	s.Equal(http.StatusOK, s.post(h, "/api/things", map[string]string{AltHeaderName: "0123456789abcdef"}).Code)
}

func (s *CSRFTestSuite) TestTokenFromCookie() {
	req := httptest.NewRequest(http.MethodPost, "/api/things", nil)
	req.AddCookie(&http.Cookie{Name: AltCookieName, Value: "0123456789abcdef"})
	s.Equal("0123456789abcdef", TokenFromRequest(req))

	req.Header.Set(HeaderName, "from-header-0000000")
	s.Equal("from-header-0000000", TokenFromRequest(req))
}

func (s *CSRFTestSuite) TestSignedTokens() {
	p := New(WithSigningKey([]byte("secret")))
	token, err := p.IssueToken()
	s.Require().NoError(err)
	s.Len(token, signedLength)
	s.True(ValidFormat(token))
	s.True(p.VerifyToken(token))

	other := New(WithSigningKey([]byte("other")))
	s.False(other.VerifyToken(token))
	s.False(p.VerifyToken("0123456789abcdef"), "签名模式下仅格式合法不够")

	_, err = New().IssueToken()
	s.ErrorIs(err, ErrNoSigningKey)

	h := s.handler(WithSigningKey([]byte("secret")))
	s.Equal(http.StatusOK, s.post(h, "/api/things", map[string]string{
		HeaderName: token,
		"Cookie":   CookieName + "=" + token,
	}).Code)
	s.Equal("INVALID_CSRF_TOKEN", code(s.post(h, "/api/things", map[string]string{
		HeaderName: "0123456789abcdef",
		"Cookie":   CookieName + "=0123456789abcdef",
	})))
}

func (s *CSRFTestSuite) TestSignedTokens_DoubleSubmit() {
	p := New(WithSigningKey([]byte("secret")))
	token, err := p.IssueToken()
	s.Require().NoError(err)
	other, err := p.IssueToken()
	s.Require().NoError(err)

	h := s.handler(WithSigningKey([]byte("secret")))

	rec := s.post(h, "/api/things", map[string]string{
		"Cookie":     CookieName + "=" + token,
		"Origin":     "https://evil.example.net",
		"User-Agent": browserUA,
	})
	s.Equal(http.StatusForbidden, rec.Code, "浏览器自动携带的 cookie 不能单独通过")
	s.Equal("CSRF_TOKEN_REQUIRED", code(rec))

	rec = s.post(h, "/api/things", map[string]string{HeaderName: token, "User-Agent": browserUA})
	s.Equal("INVALID_CSRF_TOKEN", code(rec), "缺少 cookie")

	rec = s.post(h, "/api/things", map[string]string{
		HeaderName:   token,
		"Cookie":     CookieName + "=" + other,
		"User-Agent": browserUA,
	})
	s.Equal("INVALID_CSRF_TOKEN", code(rec), "请求头与 cookie 不一致")

	rec = s.post(h, "/api/things", map[string]string{
		AltHeaderName: token,
		"Cookie":      AltCookieName + "=" + token,
		"User-Agent":  browserUA,
	})
	s.Equal(http.StatusOK, rec.Code)

	rec = s.post(h, "/api/things", map[string]string{
		"Cookie":     CookieName + "=" + token,
		"Origin":     "http://app.example.com",
		"User-Agent": browserUA,
	})
	s.Equal(http.StatusOK, rec.Code, "同源请求无需令牌")
}

func (s *CSRFTestSuite) TestSignedCookieIssuedOnSafeRequest() {
	h := s.handler(WithSigningKey([]byte("secret")), WithSecureCookie(true))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	cookies := rec.Result().Cookies()
	s.Require().Len(cookies, 1)
	s.Equal(CookieName, cookies[0].Name)
	s.True(cookies[0].Secure)
	s.True(New(WithSigningKey([]byte("secret"))).VerifyToken(cookies[0].Value))

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	s.Empty(rec.Result().Cookies(), "已有有效 cookie 时不重复下发")
}

func (s *CSRFTestSuite) TestPanicFailsClosed() {
	p := New(WithMetrics(s.metrics))
	p.opts.resolver = nil

	rec := s.post(p.Middleware()(http.NotFoundHandler()), "/api/things", map[string]string{"Origin": "http://app.example.com"})
	s.Equal(http.StatusForbidden, rec.Code)
	s.Equal("CSRF_VALIDATION_ERROR", code(rec))
	s.Equal([]string{PolicyName}, s.metrics.panics)
	s.Equal([]string{"CSRF_VALIDATION_ERROR"}, s.metrics.rejected)
}

func TestAcceptedOrigins(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "http://app.example.com/x", nil)
	assert.Equal(t, []string{"http://app.example.com", "https://app.example.com"}, AcceptedOrigins(req))

	req.Header.Set("X-Forwarded-Proto", "https")
	assert.Equal(t, []string{"https://app.example.com"}, AcceptedOrigins(req))

	req = httptest.NewRequest(http.MethodPost, "https://app.example.com/x", nil)
	req.TLS = &tls.ConnectionState{}
	assert.Equal(t, []string{"https://app.example.com"}, AcceptedOrigins(req))
}
