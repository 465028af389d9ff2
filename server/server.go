// Package server 管理网关进程的生命周期.
//
// App 并发启动所有已注册的服务器，收到信号或调用 Stop 后在超时内依次:
// 停止全部服务器、按优先级执行清理任务（关闭清理器、数据库、缓存等）.
//
//	httpSrv, _ := server.NewHTTP(handler, server.WithAddr(":8080"))
//	app := server.NewApp(
//	    server.WithLogger(log),
//	    server.WithCleanup("janitor", j.Shutdown, 0),
//	)
//	app.Use(httpSrv)
//	if err := app.Run(); err != nil {
//	    // ...
//	}
package server

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"

	"github.com/Tsukikage7/gatekeeper/logger"
)

// Server 服务器接口.
type Server interface {
	// Start 启动服务器并阻塞，ctx 取消时返回.
	Start(ctx context.Context) error
	// Stop 停止服务器.
	Stop(ctx context.Context) error
	Name() string
	Addr() string
}

// App 应用程序.
type App struct {
	opts    *appOptions
	log     logger.Logger
	servers []Server
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	running bool
}

// NewApp 创建应用程序，未设置 logger 时 panic.
func NewApp(opts ...AppOption) *App {
	o := defaultAppOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		panic(ErrNilLogger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		opts:   o,
		log:    o.logger.With(logger.String("app", o.name)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Use 注册服务器.
func (a *App) Use(servers ...Server) *App {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.servers = append(a.servers, servers...)
	return a
}

// Run 启动全部服务器并阻塞，直到收到信号、调用 Stop 或某个服务器启动失败.
//
// 服务器启动失败时仍执行完整的关闭流程，并返回该错误.
func (a *App) Run() error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return ErrServerRunning
	}
	a.running = true
	servers := append([]Server(nil), a.servers...)
	a.mu.Unlock()

	a.log.With(logger.String("version", a.opts.version)).Info("[App] 应用启动中")
	if len(servers) == 0 {
		a.log.Warn("[App] 没有注册任何服务器")
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(s Server) {
			a.log.With(
				logger.String("server", s.Name()),
				logger.String("addr", s.Addr()),
			).Info("[App] 启动服务器")
			if err := s.Start(a.ctx); err != nil {
				errCh <- err
			}
		}(srv)
	}

	signals := a.opts.signals
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, signals...)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		a.log.With(logger.String("signal", sig.String())).Info("[App] 收到信号")
	case <-a.ctx.Done():
		a.log.Info("[App] 上下文已取消")
	case runErr = <-errCh:
		a.log.With(logger.Err(runErr)).Error("[App] 服务器启动失败")
	}

	a.shutdown(servers)
	return runErr
}

// Stop 主动停止应用程序.
func (a *App) Stop() {
	a.cancel()
}

// Context 返回应用上下文，关闭时取消.
func (a *App) Context() context.Context {
	return a.ctx
}

func (a *App) shutdown(servers []Server) {
	a.log.With(logger.Duration("timeout", a.opts.gracefulTimeout)).Info("[App] 开始优雅关闭")

	ctx, cancel := context.WithTimeout(context.Background(), a.opts.gracefulTimeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, srv := range servers {
		wg.Add(1)
		go func(s Server) {
			defer wg.Done()
			if err := s.Stop(ctx); err != nil {
				a.log.With(logger.String("server", s.Name()), logger.Err(err)).Error("[App] 服务器停止失败")
			}
		}(srv)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		a.log.Info("[App] 所有服务器已停止")
	case <-ctx.Done():
		a.log.Warn("[App] 服务器关闭超时")
	}

	a.cancel()
	a.runCleanups(ctx)

	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
	a.log.Info("[App] 应用已关闭")
}

func (a *App) runCleanups(ctx context.Context) {
	cleanups := append([]cleanup(nil), a.opts.cleanups...)
	sort.SliceStable(cleanups, func(i, j int) bool {
		return cleanups[i].priority < cleanups[j].priority
	})
	for _, c := range cleanups {
		log := a.log.With(logger.String("cleanup", c.name))
		if err := c.fn(ctx); err != nil {
			log.With(logger.Err(err)).Error("[App] 清理任务失败")
			continue
		}
		log.Debug("[App] 清理任务完成")
	}
}
