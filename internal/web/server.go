package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"dex-gem-sentry/internal/analyzer"
	"dex-gem-sentry/internal/journal"
	"dex-gem-sentry/internal/observability"
	"dex-gem-sentry/internal/storage"
	"dex-gem-sentry/pkg/types"
	"go.uber.org/zap"
)

// SnapshotStore 看板快照读取
type SnapshotStore interface {
	Read() storage.Snapshot
	Version() uint64
	GetStats() map[string]interface{}
}

// Scanner 手动触发扫描，与定时循环共用同一执行路径
type Scanner interface {
	RunOnce(ctx context.Context) (analyzer.CycleResult, error)
	LastResult() (analyzer.CycleResult, bool)
	LastError() error
}

// AlertHistory 预警流水查询
type AlertHistory interface {
	Recent(ctx context.Context, limit int) ([]journal.AlertRecord, error)
}

// Options 看板服务依赖
type Options struct {
	Port      int
	Store     SnapshotStore
	Scanner   Scanner
	Filter    types.FilterConfig
	DedupSize func() int
	Journal   AlertHistory // 未启用流水时为 nil
	Metrics   *observability.Metrics

	// StreamInterval websocket 检查快照版本的间隔，默认1秒
	StreamInterval time.Duration
}

// Server 看板HTTP服务
type Server struct {
	opts      Options
	startedAt time.Time
	server    *http.Server
}

func NewServer(opts Options) *Server {
	if opts.StreamInterval <= 0 {
		opts.StreamInterval = time.Second
	}
	if opts.DedupSize == nil {
		opts.DedupSize = func() int { return 0 }
	}
	s := &Server{
		opts:      opts,
		startedAt: time.Now(),
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler 注册全部路由
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleDashboard)
	mux.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /api/alerts", s.handleAlerts)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /scan", s.handleScan)
	mux.HandleFunc("GET /ws", s.handleStream)
	mux.Handle("GET /metrics", s.opts.Metrics.Handler())

	return mux
}

// Start 启动HTTP服务，阻塞直到服务关闭
func (s *Server) Start() error {
	zap.L().Info("🌐 看板服务启动", zap.Int("port", s.opts.Port))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

