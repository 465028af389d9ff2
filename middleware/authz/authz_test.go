package authz

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/Tsukikage7/gatekeeper/auth"
	"github.com/Tsukikage7/gatekeeper/auth/rbac"
	"github.com/Tsukikage7/gatekeeper/logger"
	"github.com/Tsukikage7/gatekeeper/metrics"
	"github.com/Tsukikage7/gatekeeper/middleware/secure"
	"github.com/Tsukikage7/gatekeeper/policy"
)

type recordingMetrics struct {
	mu       sync.Mutex
	outcomes []string
}

func (m *recordingMetrics) AuthzDecision(outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

// AuthzTestSuite 授权中间件测试套件.
type AuthzTestSuite struct {
	suite.Suite
	buf      *bytes.Buffer
	log      logger.Logger
	metrics  *recordingMetrics
	sessions map[string]*auth.Session
	users    map[string]*auth.User
	now      time.Time

	sessionErr error
	userErr    error

	reached   bool
	principal *auth.Principal
	forwarded http.Header
}

func TestAuthzSuite(t *testing.T) {
	suite.Run(t, new(AuthzTestSuite))
}

func (s *AuthzTestSuite) SetupTest() {
	s.buf = &bytes.Buffer{}
	log, err := logger.NewWithWriter(&logger.Config{Level: logger.LevelDebug}, s.buf)
	s.Require().NoError(err)
	s.log = log
	s.metrics = &recordingMetrics{}
	s.now = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.sessions = map[string]*auth.Session{}
	s.users = map[string]*auth.User{}
	s.sessionErr = nil
	s.userErr = nil
	s.reached = false
	s.principal = nil
	s.forwarded = nil
}

// addUser 登记用户与对应的会话令牌.
func (s *AuthzTestSuite) addUser(token string, user *auth.User) {
	s.users[user.ID] = user
	s.sessions[token] = &auth.Session{
		ID:        "sess-" + user.ID,
		UserID:    user.ID,
		ExpiresAt: s.now.Add(time.Hour),
	}
}

func (s *AuthzTestSuite) sessionProvider() auth.SessionProvider {
	return auth.SessionProviderFunc(func(_ context.Context, r *http.Request) (*auth.Session, error) {
		if s.sessionErr != nil {
			return nil, s.sessionErr
		}
		c, err := r.Cookie("session")
		if err != nil {
			return nil, auth.ErrSessionNotFound
		}
		sess, ok := s.sessions[c.Value]
		if !ok {
			return nil, auth.ErrSessionInvalid
		}
		return sess, nil
	})
}

func (s *AuthzTestSuite) userStore() auth.UserStore {
	return auth.UserStoreFunc(func(_ context.Context, id string) (*auth.User, error) {
		if s.userErr != nil {
			return nil, s.userErr
		}
		u, ok := s.users[id]
		if !ok {
			return nil, auth.ErrUserNotFound
		}
		return u, nil
	})
}

func (s *AuthzTestSuite) handler(opts ...Option) http.Handler {
	return s.handlerWith(s.sessionProvider(), s.userStore(), policy.NewResolver(), opts...)
}

func (s *AuthzTestSuite) handlerWith(sp auth.SessionProvider, us auth.UserStore, res *policy.Resolver, opts ...Option) http.Handler {
	opts = append([]Option{
		WithLogger(s.log),
		WithMetrics(s.metrics),
		WithClock(func() time.Time { return s.now }),
	}, opts...)
	mw := New(rbac.New(), res, sp, us, opts...)
	return mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.reached = true
		s.principal, _ = auth.FromContext(r.Context())
		s.forwarded = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
}

func (s *AuthzTestSuite) get(h http.Handler, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "http://app.example.com"+target, nil)
	req.Header.Set("User-Agent", "Mozilla/5.0")
	if token != "" {
		req.AddCookie(&http.Cookie{Name: "session", Value: token})
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func (s *AuthzTestSuite) lastOutcome() string {
	s.Require().NotEmpty(s.metrics.outcomes)
	return s.metrics.outcomes[len(s.metrics.outcomes)-1]
}

func (s *AuthzTestSuite) TestProtected_NoSession() {
	rec := s.get(s.handler(), "/dashboard", "")

	s.Equal(http.StatusTemporaryRedirect, rec.Code)
	s.Equal("/login?redirect=%2Fdashboard", rec.Header().Get("Location"))
	s.False(s.reached)
	s.NotEmpty(rec.Header().Get(RequestIDHeader))
	s.Contains(s.buf.String(), `"action":"access_denied_no_session"`)
	s.Contains(s.buf.String(), `"route":"/dashboard"`)
	s.Equal(metrics.OutcomeRedirected, s.lastOutcome())
}

func (s *AuthzTestSuite) TestProtected_InsufficientPermission() {
	s.addUser("t1", &auth.User{
		ID:            "u1",
		EmailVerified: true,
		Roles:         []auth.RoleAssignment{{Role: rbac.RoleUser}},
	})

	rec := s.get(s.handler(), "/dashboard/analytics", "t1")

	s.Equal(http.StatusTemporaryRedirect, rec.Code)
	s.Equal(policy.PathUnauthorized, rec.Header().Get("Location"))
	s.False(s.reached)
	s.Contains(s.buf.String(), `"action":"access_denied_insufficient_permissions"`)
	s.Contains(s.buf.String(), `"user_id":"u1"`)
}

func (s *AuthzTestSuite) TestProtected_PermissionWildcardRoute() {
	// /admin/?* 要求 system.settings，仅 super_admin 通过通配权限拥有.
	s.addUser("t1", &auth.User{
		ID:            "u1",
		EmailVerified: true,
		Roles:         []auth.RoleAssignment{{Role: rbac.RoleAdmin}},
	})
	s.addUser("t2", &auth.User{
		ID:            "u2",
		EmailVerified: true,
		Roles:         []auth.RoleAssignment{{Role: rbac.RoleSuperAdmin}},
	})
	h := s.handler()

	rec := s.get(h, "/admin/settings", "t1")
	s.Equal(policy.PathUnauthorized, rec.Header().Get("Location"))

	rec = s.get(h, "/admin/settings", "t2")
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("5", rec.Header().Get(HeaderUserLevel))
}

func (s *AuthzTestSuite) TestProtected_InsufficientRole() {
	// moderator 继承了 business.update 权限，但不在商家编辑页的角色列表中.
	s.addUser("t1", &auth.User{
		ID:            "u1",
		EmailVerified: true,
		Roles:         []auth.RoleAssignment{{Role: rbac.RoleModerator}},
	})

	rec := s.get(s.handler(), "/dashboard/business/b1/edit", "t1")

	s.Equal(http.StatusTemporaryRedirect, rec.Code)
	s.Equal(policy.PathUnauthorized, rec.Header().Get("Location"))
	s.Contains(s.buf.String(), `"action":"access_denied_insufficient_roles"`)
	s.NotContains(s.buf.String(), `"action":"access_denied_insufficient_permissions"`)
}

func (s *AuthzTestSuite) TestProtected_EmailVerificationRequired() {
	s.addUser("t1", &auth.User{
		ID:    "u1",
		Roles: []auth.RoleAssignment{{Role: rbac.RoleUser}},
	})

	rec := s.get(s.handler(), "/dashboard", "t1")

	s.Equal(http.StatusTemporaryRedirect, rec.Code)
	s.Equal("/verify-email?redirect=%2Fdashboard", rec.Header().Get("Location"))
	s.Contains(s.buf.String(), `"action":"email_verification_required"`)
}

func (s *AuthzTestSuite) TestProtected_PhoneVerificationRequired() {
	s.addUser("t1", &auth.User{
		ID:            "u1",
		EmailVerified: true,
		Roles:         []auth.RoleAssignment{{Role: rbac.RoleBusinessOwner}},
	})

	rec := s.get(s.handler(), "/dashboard/localhub/events", "t1")

	s.Equal(http.StatusTemporaryRedirect, rec.Code)
	s.Equal("/verify-phone?redirect=%2Fdashboard%2Flocalhub%2Fevents", rec.Header().Get("Location"))
}

func (s *AuthzTestSuite) TestProtected_Granted() {
	s.addUser("t1", &auth.User{
		ID:            "u1",
		Email:         "owner@example.com",
		Name:          "Owner",
		EmailVerified: true,
		Roles: []auth.RoleAssignment{
			{Role: rbac.RoleUser},
			{Role: rbac.RoleBusinessOwner},
		},
	})

	rec := s.get(s.handler(), "/dashboard/analytics", "t1")

	s.Equal(http.StatusOK, rec.Code)
	s.True(s.reached)
	s.Equal("u1", rec.Header().Get(HeaderUserID))
	s.Equal(`["user","business_owner"]`, rec.Header().Get(HeaderUserRoles))
	s.Equal("2", rec.Header().Get(HeaderUserLevel))

	s.Equal("u1", s.forwarded.Get(HeaderUserID))
	s.Equal("2", s.forwarded.Get(HeaderUserLevel))

	s.Require().NotNil(s.principal)
	s.Equal("owner@example.com", s.principal.Email)
	s.Equal("sess-u1", s.principal.SessionID)
	s.Equal(2, s.principal.Level)
	s.True(s.principal.HasRole(rbac.RoleBusinessOwner))

	s.Contains(s.buf.String(), `"action":"access_granted"`)
	s.Contains(s.buf.String(), `"metric":"authz_duration"`)
	s.Equal(metrics.OutcomeGranted, s.lastOutcome())
}

func (s *AuthzTestSuite) TestProtected_UserNotFound() {
	s.sessions["t1"] = &auth.Session{ID: "s1", UserID: "ghost"}

	rec := s.get(s.handler(), "/dashboard", "t1")

	s.Equal(http.StatusTemporaryRedirect, rec.Code)
	s.Equal("/login?redirect=%2Fdashboard", rec.Header().Get("Location"))
	s.Contains(s.buf.String(), `"action":"access_denied_user_not_found"`)
}

func (s *AuthzTestSuite) TestProtected_ExpiredSession() {
	s.addUser("t1", &auth.User{ID: "u1", EmailVerified: true, Roles: []auth.RoleAssignment{{Role: rbac.RoleUser}}})
	s.sessions["t1"].ExpiresAt = s.now.Add(-time.Minute)

	rec := s.get(s.handler(), "/dashboard", "t1")

	s.Equal("/login?redirect=%2Fdashboard", rec.Header().Get("Location"))
}

func (s *AuthzTestSuite) TestSessionError() {
	s.sessionErr = errors.New("auth service unavailable")
	h := s.handler()

	s.Run("受保护路由", func() {
		rec := s.get(h, "/dashboard", "t1")
		s.Equal(http.StatusTemporaryRedirect, rec.Code)
		s.Equal("/login?redirect=%2Fdashboard", rec.Header().Get("Location"))
	})

	s.Run("公开路由", func() {
		rec := s.get(h, "/about", "t1")
		s.Equal(http.StatusOK, rec.Code)
	})

	s.Contains(s.buf.String(), `"event_type":"failure"`)
	s.Contains(s.buf.String(), "auth service unavailable")
}

func (s *AuthzTestSuite) TestUpstreamTimeout() {
	s.addUser("t1", &auth.User{ID: "u1", EmailVerified: true, Roles: []auth.RoleAssignment{{Role: rbac.RoleUser}}})
	release := make(chan struct{})
	defer close(release)

	slow := auth.UserStoreFunc(func(ctx context.Context, _ string) (*auth.User, error) {
		<-release
		return nil, errors.New("unreachable")
	})
	h := s.handlerWith(s.sessionProvider(), slow, policy.NewResolver(), WithUpstreamTimeout(20*time.Millisecond))

	rec := s.get(h, "/dashboard", "t1")

	s.Equal(http.StatusTemporaryRedirect, rec.Code)
	s.Equal("/login?redirect=%2Fdashboard", rec.Header().Get("Location"))
	s.Contains(s.buf.String(), "context deadline exceeded")
}

func (s *AuthzTestSuite) TestPublicRoute() {
	rec := s.get(s.handler(), "/", "")

	s.Equal(http.StatusOK, rec.Code)
	s.True(s.reached)
	s.Nil(s.principal)
	s.Equal(metrics.OutcomePublic, s.lastOutcome())
}

func (s *AuthzTestSuite) TestStripsSpoofedIdentityHeaders() {
	req := httptest.NewRequest(http.MethodGet, "/about", nil)
	req.Header.Set("X-User-ID", "admin")
	req.Header.Set("X-User-Roles", `["super_admin"]`)
	rec := httptest.NewRecorder()

	s.handler().ServeHTTP(rec, req)

	s.True(s.reached)
	s.Empty(s.forwarded.Get("X-User-ID"))
	s.Empty(s.forwarded.Get("X-User-Roles"))
	// 调用方的原始请求不被修改.
	s.Equal("admin", req.Header.Get("X-User-ID"))
}

func (s *AuthzTestSuite) TestAuthRoute_WithSession() {
	s.addUser("t1", &auth.User{ID: "u1", EmailVerified: true, PhoneVerified: true})
	h := s.handler()

	cases := []struct {
		name     string
		target   string
		location string
	}{
		{"默认跳转", "/login", "/dashboard"},
		{"相对路径", "/login?redirect=%2Fdashboard%2Fprofile&foo=bar", "/dashboard/profile"},
		{"协议相对地址", "/signup?redirect=%2F%2Fevil.com", "/dashboard"},
		{"绝对地址", "/login?redirect=https%3A%2F%2Fevil.com%2Fx", "/dashboard"},
		{"已完成邮箱验证", "/verify-email", "/dashboard"},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			rec := s.get(h, tc.target, "t1")
			s.Equal(http.StatusTemporaryRedirect, rec.Code)
			s.Equal(tc.location, rec.Header().Get("Location"))
		})
	}
	s.Contains(s.buf.String(), `"action":"authenticated_redirect"`)
}

func (s *AuthzTestSuite) TestAuthRoute_WithoutSession() {
	rec := s.get(s.handler(), "/login", "")
	s.Equal(http.StatusOK, rec.Code)
}

func (s *AuthzTestSuite) TestVerifyRoute_PendingVerification() {
	s.addUser("t1", &auth.User{ID: "u1"})
	h := s.handler()

	rec := s.get(h, "/verify-email?redirect=%2Fdashboard", "t1")
	s.Equal(http.StatusOK, rec.Code)

	rec = s.get(h, "/verify-phone", "t1")
	s.Equal(http.StatusOK, rec.Code)
}

func (s *AuthzTestSuite) TestJSONPrefixes() {
	s.addUser("t1", &auth.User{ID: "u1", EmailVerified: true, Roles: []auth.RoleAssignment{{Role: rbac.RoleUser}}})
	res := policy.NewResolver(policy.WithRoutes(append(policy.RoutePermissions(),
		policy.RouteRule{Pattern: "/api/reports/?*", Permissions: []string{rbac.PermAnalyticsRead}},
	)))
	h := s.handlerWith(s.sessionProvider(), s.userStore(), res, WithJSONPrefixes("/api/"))

	decode := func(rec *httptest.ResponseRecorder) string {
		var body struct {
			Code string `json:"code"`
		}
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
		return body.Code
	}

	rec := s.get(h, "/api/reports/daily", "")
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Equal("UNAUTHENTICATED", decode(rec))
	s.Empty(rec.Header().Get("Location"))

	rec = s.get(h, "/api/reports/daily", "t1")
	s.Equal(http.StatusForbidden, rec.Code)
	s.Equal("FORBIDDEN", decode(rec))
	s.Equal(metrics.OutcomeDenied, s.lastOutcome())
}

func (s *AuthzTestSuite) TestSecureHeaders() {
	h := s.handler(WithSecureHeaders(secure.Config{Environment: secure.EnvProduction}))

	rec := s.get(h, "/dashboard", "")

	s.Equal("DENY", rec.Header().Get("X-Frame-Options"))
	s.NotEmpty(rec.Header().Get("Strict-Transport-Security"))
	s.NotEmpty(rec.Header().Get("Content-Security-Policy"))
}

func (s *AuthzTestSuite) TestRequestID() {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()

	s.handler().ServeHTTP(rec, req)

	s.Equal("req-123", rec.Header().Get(RequestIDHeader))
	s.Contains(s.buf.String(), `"requestId":"req-123"`)
}

func (s *AuthzTestSuite) TestPanic_PublicRouteFailsOpen() {
	res := policy.NewResolver(policy.WithRules([]policy.Rule{{
		Name:  "broken",
		Match: func(string) bool { panic("rule exploded") },
		Apply: func(*policy.Policy) {},
	}}))
	h := s.handlerWith(s.sessionProvider(), s.userStore(), res)

	rec := s.get(h, "/about", "")

	s.Equal(http.StatusOK, rec.Code)
	s.True(s.reached)
	s.Contains(s.buf.String(), `"action":"authz_error"`)
	s.Equal(metrics.OutcomeError, s.lastOutcome())
}

func (s *AuthzTestSuite) TestPanic_ProtectedRouteFailsClosed() {
	s.addUser("t1", &auth.User{ID: "u1", EmailVerified: true, Roles: []auth.RoleAssignment{{Role: rbac.RoleUser}}})

	// 第二次读取时钟发生在会话过期检查中，此时策略已解析为受保护.
	calls := 0
	clock := func() time.Time {
		calls++
		if calls == 2 {
			panic("clock exploded")
		}
		return s.now
	}
	h := s.handlerWith(s.sessionProvider(), s.userStore(), policy.NewResolver(), WithClock(clock))

	rec := s.get(h, "/dashboard", "t1")

	s.Equal(http.StatusTemporaryRedirect, rec.Code)
	s.Equal("/login?redirect=%2Fdashboard", rec.Header().Get("Location"))
	s.False(s.reached)
	s.Equal(metrics.OutcomeError, s.lastOutcome())
}

func (s *AuthzTestSuite) TestDownstreamPanicPropagates() {
	mw := New(rbac.New(), policy.NewResolver(), s.sessionProvider(), s.userStore(), WithLogger(s.log))
	h := mw(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("handler exploded")
	}))

	s.PanicsWithValue("handler exploded", func() {
		s.get(h, "/about", "")
	})
}

func TestNew_NilCollaborators(t *testing.T) {
	sp := auth.SessionProviderFunc(func(context.Context, *http.Request) (*auth.Session, error) { return nil, nil })
	us := auth.UserStoreFunc(func(context.Context, string) (*auth.User, error) { return nil, nil })

	assert.Panics(t, func() { New(nil, policy.NewResolver(), sp, us) })
	assert.Panics(t, func() { New(rbac.New(), nil, sp, us) })
	assert.Panics(t, func() { New(rbac.New(), policy.NewResolver(), nil, us) })
	assert.Panics(t, func() { New(rbac.New(), policy.NewResolver(), sp, nil) })
}

func TestSafeRedirect(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "/dashboard"},
		{"/dashboard/profile", "/dashboard/profile"},
		{"/search?q=1", "/search?q=1"},
		{"//evil.com", "/dashboard"},
		{"/\\evil.com", "/dashboard"},
		{"https://evil.com", "/dashboard"},
		{"dashboard", "/dashboard"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SafeRedirect(tt.in), tt.in)
	}
}

func TestCallWithTimeout(t *testing.T) {
	t.Run("返回结果", func(t *testing.T) {
		v, err := callWithTimeout(context.Background(), time.Second, func(context.Context) (int, error) {
			return 42, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	})

	t.Run("panic 转为错误", func(t *testing.T) {
		_, err := callWithTimeout(context.Background(), time.Second, func(context.Context) (int, error) {
			panic("boom")
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, errUpstreamPanic)
	})

	t.Run("超时", func(t *testing.T) {
		block := make(chan struct{})
		defer close(block)
		_, err := callWithTimeout(context.Background(), 10*time.Millisecond, func(context.Context) (int, error) {
			<-block
			return 0, nil
		})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
