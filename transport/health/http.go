package health

import (
	"net/http"

	"github.com/Tsukikage7/gatekeeper/transport/response"
)

const (
	// LivenessPath 存活检查路径.
	LivenessPath = "/healthz"
	// ReadinessPath 就绪检查路径.
	ReadinessPath = "/readyz"
)

// Middleware 拦截健康检查路径，其余请求交给下游.
//
// 安装在授权链之前，探针请求不经过限流与授权.
func Middleware(h *Health) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case LivenessPath:
				serve(w, r, h.Liveness(r.Context()))
			case ReadinessPath:
				serve(w, r, h.Readiness(r.Context()))
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func serve(w http.ResponseWriter, r *http.Request, resp Response) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	status := http.StatusOK
	if resp.Status != StatusUp {
		status = http.StatusServiceUnavailable
	}
	_ = response.WriteJSON(w, status, resp)
}
