package recovery

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/Tsukikage7/gatekeeper/logger"
)

// RecoveryTestSuite panic 恢复测试套件.
type RecoveryTestSuite struct {
	suite.Suite
	buf    *bytes.Buffer
	log    logger.Logger
	panics []string
}

func TestRecoverySuite(t *testing.T) {
	suite.Run(t, new(RecoveryTestSuite))
}

func (s *RecoveryTestSuite) SetupTest() {
	s.buf = &bytes.Buffer{}
	log, err := logger.NewWithWriter(&logger.Config{Level: logger.LevelDebug}, s.buf)
	s.Require().NoError(err)
	s.log = log
	s.panics = nil
}

func (s *RecoveryTestSuite) hook(policy string) {
	s.panics = append(s.panics, policy)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("downstream"))
	})
}

func panicBefore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("policy broke")
	})
}

func passThrough(next http.Handler) http.Handler {
	return next
}

func (s *RecoveryTestSuite) serve(h http.Handler) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	return rec
}

func (s *RecoveryTestSuite) TestGuard_NoPanic() {
	h := Guard("noop", FailClosed, passThrough, WithLogger(s.log))(okHandler())
	rec := s.serve(h)

	s.Equal(http.StatusOK, rec.Code)
	s.Empty(s.panics)
}

func (s *RecoveryTestSuite) TestGuard_FailOpen() {
	h := Guard("ratelimit", FailOpen, panicBefore, WithLogger(s.log), WithHook(s.hook))(okHandler())
	rec := s.serve(h)

	s.Equal(http.StatusOK, rec.Code)
	s.Equal("downstream", rec.Body.String())
	s.Equal([]string{"ratelimit"}, s.panics)
	s.Contains(s.buf.String(), "策略 panic 已恢复")
	s.Contains(s.buf.String(), `"policy":"ratelimit"`)
}

func (s *RecoveryTestSuite) TestGuard_FailClosed() {
	deny := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	h := Guard("csrf", FailClosed, panicBefore, WithLogger(s.log), WithDeny(deny), WithHook(s.hook))(okHandler())
	rec := s.serve(h)

	s.Equal(http.StatusForbidden, rec.Code)
	s.Empty(rec.Body.String())
	s.Equal([]string{"csrf"}, s.panics)
}

func (s *RecoveryTestSuite) TestGuard_FailClosedDefaultDeny() {
	h := Guard("csrf", FailClosed, panicBefore, WithLogger(s.log))(okHandler())
	s.Equal(http.StatusInternalServerError, s.serve(h).Code)
}

func (s *RecoveryTestSuite) TestGuard_DownstreamPanicPropagates() {
	boom := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("downstream broke")
	})
	h := Guard("csrf", FailClosed, passThrough, WithLogger(s.log), WithHook(s.hook))(boom)

	s.PanicsWithValue("downstream broke", func() { s.serve(h) })
	s.Empty(s.panics)
}

func (s *RecoveryTestSuite) TestGuard_PanicAfterDownstream() {
	after := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			panic("post processing broke")
		})
	}
	calls := 0
	counting := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusAccepted)
	})
	h := Guard("ratelimit", FailOpen, after, WithLogger(s.log), WithHook(s.hook))(counting)
	rec := s.serve(h)

	s.Equal(http.StatusAccepted, rec.Code)
	s.Equal(1, calls, "下游不被重复调用")
	s.Equal([]string{"ratelimit"}, s.panics)
}

func (s *RecoveryTestSuite) TestGuard_Nested() {
	outer := Guard("outer", FailClosed, passThrough, WithLogger(s.log), WithHook(s.hook))
	inner := Guard("inner", FailOpen, panicBefore, WithLogger(s.log), WithHook(s.hook))

	rec := s.serve(outer(inner(okHandler())))
	s.Equal(http.StatusOK, rec.Code)
	s.Equal([]string{"inner"}, s.panics)
}

func (s *RecoveryTestSuite) TestGuard_RequiresLogger() {
	s.Panics(func() { Guard("x", FailOpen, passThrough) })
	s.Panics(func() { HTTPMiddleware() })
}

func (s *RecoveryTestSuite) TestHTTPMiddleware() {
	boom := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(errors.New("boom"))
	})
	h := HTTPMiddleware(WithLogger(s.log), WithHook(s.hook))(boom)
	rec := s.serve(h)

	s.Equal(http.StatusInternalServerError, rec.Code)
	s.Equal([]string{"http"}, s.panics)
	s.Contains(s.buf.String(), "HTTP panic 已恢复")
}

func (s *RecoveryTestSuite) TestHTTPMiddleware_AbortHandler() {
	abort := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	})
	h := HTTPMiddleware(WithLogger(s.log))(abort)
	s.Panics(func() { s.serve(h) })
}

func (s *RecoveryTestSuite) TestModeAndPanicError() {
	s.Equal("fail_open", FailOpen.String())
	s.Equal("fail_closed", FailClosed.String())

	cause := errors.New("cause")
	pe := &PanicError{Value: cause}
	s.ErrorIs(pe, cause)
	s.Equal("panic: cause", pe.Error())
	s.Nil((&PanicError{Value: "x"}).Unwrap())
}
