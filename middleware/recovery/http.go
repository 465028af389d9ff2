package recovery

import (
	"net/http"

	"github.com/Tsukikage7/gatekeeper/logger"
)

// HTTPMiddleware 返回最外层 HTTP panic 恢复中间件.
//
// 当 handler 发生 panic 时记录堆栈并返回 500 Internal Server Error.
// http.ErrAbortHandler 按标准库约定继续抛出.
func HTTPMiddleware(opts ...Option) func(http.Handler) http.Handler {
	o := applyOptions(opts)
	if o.Logger == nil {
		panic("recovery: 日志记录器不能为空")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				if p == http.ErrAbortHandler {
					panic(p)
				}

				if o.OnPanic != nil {
					o.OnPanic("http")
				}
				o.Logger.WithContext(r.Context()).With(
					logger.Any("panic", p),
					logger.String("method", r.Method),
					logger.String("path", r.URL.Path),
					logger.String("stack", string(captureStack(o.StackSize))),
				).Error("[Recovery] HTTP panic 已恢复")

				w.WriteHeader(http.StatusInternalServerError)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
