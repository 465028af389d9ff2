// Command gatekeeper 在 Web 应用前运行授权网关.
//
//	gatekeeper --config configs/gatekeeper.yaml
//
// 配置项均可由 GATEKEEPER_ 前缀的环境变量覆盖，如 GATEKEEPER_SESSION_SECRET.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/Tsukikage7/gatekeeper/config"
	"github.com/Tsukikage7/gatekeeper/gateway"
	"github.com/Tsukikage7/gatekeeper/logger"
	"github.com/Tsukikage7/gatekeeper/server"
)

var version = "dev"

// envKeys 未出现在配置文件中也需要从环境变量读取的键.
var envKeys = map[string]any{
	"environment":         "development",
	"upstream_url":        "",
	"session.secret":      "",
	"csrf.signing_key":    "",
	"database.driver":     "",
	"database.dsn":        "",
	"rate_limit.store":    gateway.StoreMemory,
	"rate_limit.redis.db": 0,
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	path := pflag.StringP("config", "c", "configs/gatekeeper.yaml", "配置文件路径")
	showVersion := pflag.BoolP("version", "v", false, "打印版本后退出")
	pflag.Parse()

	if *showVersion {
		fmt.Println(version)
		return nil
	}

	cfg, err := config.Load[gateway.Config](*path, config.WithDefaults(envKeys))
	if err != nil {
		return err
	}

	log, err := logger.NewLogger(&cfg.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	gw, err := gateway.New(cfg, log, gateway.WithVersion(version))
	if err != nil {
		log.With(logger.Err(err)).Error("[Gatekeeper] 网关构建失败")
		return err
	}

	httpSrv, err := server.NewHTTP(gw.Handler(),
		server.WithHTTPConfig(cfg.Server),
		server.WithHTTPLogger(log),
	)
	if err != nil {
		_ = gw.Close(context.Background())
		return err
	}

	gw.Start()

	app := server.NewApp(
		server.WithName("gatekeeper"),
		server.WithVersion(version),
		server.WithLogger(log),
		server.WithCleanup("gateway", gw.Close, 0),
		server.WithCloser("logger", log, 100),
	)
	app.Use(httpSrv)
	return app.Run()
}
