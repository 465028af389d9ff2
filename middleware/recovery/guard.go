package recovery

import (
	"context"
	"net/http"

	"github.com/Tsukikage7/gatekeeper/logger"
)

type guardStateKey struct{}

// guardState 记录策略是否已把请求交给下游.
type guardState struct {
	started bool
	done    bool
}

// Guard 用失败模式包裹一个策略中间件.
//
// 策略在调用下游之前 panic 时按 mode 处理；下游执行期间的 panic 原样抛出；
// 下游返回之后的 panic（如响应后的计数）只记录日志.
func Guard(name string, mode Mode, policy func(http.Handler) http.Handler, opts ...Option) func(http.Handler) http.Handler {
	o := applyOptions(opts)
	if o.Logger == nil {
		panic("recovery: 日志记录器不能为空")
	}
	log := o.Logger.With(logger.String("policy", name), logger.String("mode", mode.String()))

	return func(next http.Handler) http.Handler {
		tracked := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			st, _ := r.Context().Value(guardStateKey{}).(*guardState)
			if st == nil {
				next.ServeHTTP(w, r)
				return
			}
			st.started = true
			next.ServeHTTP(w, r)
			st.done = true
		})
		inner := policy(tracked)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			st := &guardState{}
			guarded := r.WithContext(context.WithValue(r.Context(), guardStateKey{}, st))

			recovered := func() (p any, stack []byte) {
				defer func() {
					if p = recover(); p != nil {
						if st.started && !st.done {
							panic(p)
						}
						stack = captureStack(o.StackSize)
					}
				}()
				inner.ServeHTTP(w, guarded)
				return nil, nil
			}
			p, stack := recovered()
			if p == nil {
				return
			}

			if o.OnPanic != nil {
				o.OnPanic(name)
			}
			log.WithContext(r.Context()).With(
				logger.Any("panic", p),
				logger.String("method", r.Method),
				logger.String("path", r.URL.Path),
				logger.String("stack", string(stack)),
			).Error("[Recovery] 策略 panic 已恢复")

			if st.done {
				return
			}
			if mode == FailOpen {
				next.ServeHTTP(w, r)
				return
			}
			o.Deny.ServeHTTP(w, r)
		})
	}
}
