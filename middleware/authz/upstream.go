package authz

import (
	"context"
	"errors"
	"time"

	"github.com/Tsukikage7/gatekeeper/middleware/recovery"
)

// errUpstreamPanic 外部协作方 panic.
var errUpstreamPanic = errors.New("authz: 外部调用 panic")

// callWithTimeout 在超时内执行外部调用.
//
// 调用方忽略 context 时仍按超时返回；调用中的 panic 转换为错误.
func callWithTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		val T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				var zero T
				ch <- result{zero, errors.Join(errUpstreamPanic, &recovery.PanicError{Value: p})}
			}
		}()
		v, err := fn(ctx)
		ch <- result{v, err}
	}()

	select {
	case res := <-ch:
		return res.val, res.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
