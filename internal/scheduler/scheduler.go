package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dex-gem-sentry/internal/analyzer"
	"dex-gem-sentry/internal/observability"
	"go.uber.org/zap"
)

// CycleRunner 执行单次扫描
type CycleRunner interface {
	RunCycle(ctx context.Context) analyzer.CycleResult
}

// Scheduler 调度器
// 定时循环和手动触发共用 RunOnce，同一时刻最多只有一个周期在执行
type Scheduler struct {
	runner   CycleRunner
	interval time.Duration
	metrics  *observability.Metrics

	runMutex sync.Mutex

	stateMutex sync.RWMutex
	lastResult analyzer.CycleResult
	lastErr    error
	hasRun     bool
}

func NewScheduler(runner CycleRunner, interval time.Duration, metrics *observability.Metrics) *Scheduler {
	if interval < time.Second {
		interval = time.Second
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		metrics:  metrics,
	}
}

// Start 立即执行一次扫描，之后每次扫描结束后等待一个间隔再执行下一次
// 阻塞直到 ctx 取消
func (s *Scheduler) Start(ctx context.Context) {
	zap.L().Info("🚀 调度器启动", zap.Duration("interval", s.interval))

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("📴 调度器已停止")
			return
		case <-timer.C:
		}

		// 错误已在 RunOnce 中记录，循环继续
		_, _ = s.RunOnce(ctx)

		if ctx.Err() != nil {
			zap.L().Info("📴 调度器已停止")
			return
		}

		zap.L().Debug("⏰ 下次扫描时间",
			zap.String("at", time.Now().Add(s.interval).Format("15:04:05")))
		timer.Reset(s.interval)
	}
}

// RunOnce 执行一次扫描周期，周期内的panic被恢复并作为错误返回
func (s *Scheduler) RunOnce(ctx context.Context) (result analyzer.CycleResult, err error) {
	s.runMutex.Lock()
	defer s.runMutex.Unlock()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scan cycle panicked: %v", r)
			zap.L().Error("❌ 扫描周期异常",
				zap.Any("panic", r),
				zap.Stack("stack"))
			s.metrics.ObserveCycle(time.Since(start), 0, 0, true)
		}
		s.record(result, err)
	}()

	result = s.runner.RunCycle(ctx)
	return result, nil
}

func (s *Scheduler) record(result analyzer.CycleResult, err error) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	s.lastResult = result
	s.lastErr = err
	s.hasRun = true
}

// LastResult 最近一次扫描的结果，尚未执行过时返回 false
func (s *Scheduler) LastResult() (analyzer.CycleResult, bool) {
	s.stateMutex.RLock()
	defer s.stateMutex.RUnlock()
	return s.lastResult, s.hasRun
}

// LastError 最近一次扫描的异常
func (s *Scheduler) LastError() error {
	s.stateMutex.RLock()
	defer s.stateMutex.RUnlock()
	return s.lastErr
}

// Interval 扫描间隔
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}
