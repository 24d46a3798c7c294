package main

import (
	"errors"
	"fmt"
	"os"

	"dex-gem-sentry/pkg/config"
	"dex-gem-sentry/pkg/logger"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	// 加载配置
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	if _, err := logger.Init(cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer zap.L().Sync()

	// 配置错误直接退出，不启动调度器
	if err := config.Validate(cfg); err != nil {
		zap.L().Fatal("❌ 配置校验失败", zap.Error(err))
	}

	app, err := NewApp(cfg)
	if err != nil {
		zap.L().Fatal("❌ 初始化失败", zap.Error(err))
	}

	app.Start()
	app.WaitForShutdown()
	app.Stop()
}
