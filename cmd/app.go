package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"dex-gem-sentry/internal/analyzer"
	"dex-gem-sentry/internal/dedup"
	"dex-gem-sentry/internal/fetcher"
	"dex-gem-sentry/internal/journal"
	"dex-gem-sentry/internal/notifier"
	"dex-gem-sentry/internal/observability"
	"dex-gem-sentry/internal/scheduler"
	"dex-gem-sentry/internal/storage"
	"dex-gem-sentry/internal/web"
	"dex-gem-sentry/pkg/types"
	"go.uber.org/zap"
)

// App 应用程序管理器
type App struct {
	config *types.Config
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stateManager  *storage.StateManager
	alertJournal  *journal.Manager
	taskScheduler *scheduler.Scheduler
	server        *web.Server
}

// NewApp 创建应用程序实例并装配各模块
func NewApp(config *types.Config) (*App, error) {
	metrics := observability.NewMetrics("")

	sender, to, err := notifier.New(config)
	if err != nil {
		return nil, err
	}

	app := &App{config: config}

	// 预警流水，显式启用时连接失败视为启动失败
	var alertJournal analyzer.AlertJournal
	var alertHistory web.AlertHistory
	if config.Journal.Enabled {
		app.alertJournal, err = journal.Open(config.Journal)
		if err != nil {
			return nil, fmt.Errorf("打开预警流水库失败: %w", err)
		}
		alertJournal = app.alertJournal
		alertHistory = app.alertJournal
	}

	app.stateManager = storage.NewStateManager(config.Redis, config.Dashboard.Capacity)
	tracker := dedup.NewTracker(config.Dedup.WarnSize)
	dataFetcher := fetcher.NewDataFetcher(config.Feed, config.Network, metrics)

	dispatcher := analyzer.NewDispatcher(sender, analyzer.DispatcherConfig{
		Channel:   config.Notify.Channel,
		To:        to,
		Timeout:   config.Notify.Timeout,
		TxnWindow: config.Filter.TxnWindow,
	}, alertJournal, metrics)

	analysisEngine := analyzer.NewAnalysisEngine(dataFetcher, tracker, app.stateManager, dispatcher, config.Filter, metrics)
	app.taskScheduler = scheduler.NewScheduler(analysisEngine, config.Filter.ScanInterval(), metrics)

	app.server = web.NewServer(web.Options{
		Port:      config.Server.Port,
		Store:     app.stateManager,
		Scanner:   app.taskScheduler,
		Filter:    analysisEngine.Filter(),
		DedupSize: analysisEngine.DedupSize,
		Journal:   alertHistory,
		Metrics:   metrics,
	})

	return app, nil
}

// Start 启动应用程序
func (app *App) Start() {
	zap.L().Info("🚀 DEX Gem Sentry 启动中...",
		zap.Float64("min_liquidity", app.config.Filter.MinLiquidity),
		zap.Float64("min_fdv", app.config.Filter.MinFDV),
		zap.Float64("max_age_hours", app.config.Filter.MaxAgeHours),
		zap.Int64("min_txns", app.config.Filter.MinTxns),
		zap.String("txn_window", app.config.Filter.TxnWindow),
		zap.Duration("scan_interval", app.config.Filter.ScanInterval()),
		zap.String("channel", app.config.Notify.Channel))

	app.ctx, app.cancel = context.WithCancel(context.Background())

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.taskScheduler.Start(app.ctx)
	}()

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		if err := app.server.Start(); err != nil {
			zap.L().Error("❌ 看板服务异常退出", zap.Error(err))
		}
	}()

	zap.L().Info("✅ DEX Gem Sentry 已启动")
}

// Stop 停止应用程序
func (app *App) Stop() {
	zap.L().Info("🛑 收到停止信号，正在优雅关闭...")
	app.cancel()

	if err := app.server.Shutdown(context.Background()); err != nil {
		zap.L().Warn("⚠️ 关闭看板服务失败", zap.Error(err))
	}

	// 等待所有goroutine结束，最多等待30秒
	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("✅ DEX Gem Sentry 已安全关闭")
	case <-time.After(30 * time.Second):
		zap.L().Warn("⚠️ 强制关闭超时")
	}

	if err := app.stateManager.Close(); err != nil {
		zap.L().Warn("⚠️ 关闭Redis连接失败", zap.Error(err))
	}
	if app.alertJournal != nil {
		if err := app.alertJournal.Close(); err != nil {
			zap.L().Warn("⚠️ 关闭预警流水库失败", zap.Error(err))
		}
	}
}

// WaitForShutdown 等待关闭信号
func (app *App) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}
