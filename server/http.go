package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/Tsukikage7/gatekeeper/logger"
)

// HTTP HTTP 服务器.
type HTTP struct {
	opts    *httpOptions
	handler http.Handler
	log     logger.Logger

	mu     sync.Mutex
	server *http.Server
	addr   string
	ready  chan struct{}
}

// NewHTTP 创建 HTTP 服务器.
func NewHTTP(handler http.Handler, opts ...HTTPOption) (*HTTP, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	o := defaultHTTPOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logger.NewNop()
	}
	return &HTTP{
		opts:    o,
		handler: handler,
		log:     o.logger.With(logger.String("server", o.name)),
		ready:   make(chan struct{}),
	}, nil
}

// Start 监听并阻塞服务，直到 ctx 取消或监听失败.
func (s *HTTP) Start(ctx context.Context) error {
	cfg := s.opts.config
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.server = srv
	s.addr = ln.Addr().String()
	s.mu.Unlock()
	close(s.ready)

	s.log.With(logger.String("addr", s.addr)).Info("[HTTP] 服务器启动")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}
	return nil
}

// Stop 优雅关闭，等待进行中的请求结束.
func (s *HTTP) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.log.Info("[HTTP] 服务器停止中")
	return srv.Shutdown(ctx)
}

// Ready 监听成功后关闭.
func (s *HTTP) Ready() <-chan struct{} {
	return s.ready
}

// Name 返回服务器名称.
func (s *HTTP) Name() string {
	return s.opts.name
}

// Addr 返回实际监听地址，启动前返回配置地址.
func (s *HTTP) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addr != "" {
		return s.addr
	}
	return s.opts.config.Addr
}

// Handler 返回 HTTP Handler.
func (s *HTTP) Handler() http.Handler {
	return s.handler
}
