package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dex-gem-sentry/internal/analyzer"
	"dex-gem-sentry/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingRunner 统计调用次数和最大并发数
type countingRunner struct {
	calls       atomic.Int32
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	delay       time.Duration
	panicOn     int32
}

func (r *countingRunner) RunCycle(ctx context.Context) analyzer.CycleResult {
	n := r.calls.Add(1)
	cur := r.inFlight.Add(1)
	defer r.inFlight.Add(-1)
	for {
		prev := r.maxInFlight.Load()
		if cur <= prev || r.maxInFlight.CompareAndSwap(prev, cur) {
			break
		}
	}

	if r.panicOn != 0 && n == r.panicOn {
		panic("feed exploded")
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	return analyzer.CycleResult{CycleID: "cycle", Fetched: int(n)}
}

func TestNewScheduler_MinimumInterval(t *testing.T) {
	s := NewScheduler(&countingRunner{}, 0, nil)
	assert.Equal(t, time.Second, s.Interval())
}

func TestScheduler_RunOnce(t *testing.T) {
	runner := &countingRunner{}
	s := NewScheduler(runner, time.Minute, nil)

	_, ok := s.LastResult()
	assert.False(t, ok)

	res, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Fetched)

	last, ok := s.LastResult()
	assert.True(t, ok)
	assert.Equal(t, res, last)
}

func TestScheduler_RunOnceRecoversPanic(t *testing.T) {
	runner := &countingRunner{panicOn: 1}
	metrics := observability.NewMetrics("test")
	s := NewScheduler(runner, time.Minute, metrics)

	_, err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feed exploded")
	assert.Equal(t, err, s.LastError())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CyclesTotal.WithLabelValues("failed")))

	// 后续周期正常执行
	res, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Fetched)
	assert.NoError(t, s.LastError())
}

func TestScheduler_RunOnceSerialized(t *testing.T) {
	runner := &countingRunner{delay: 20 * time.Millisecond}
	s := NewScheduler(runner, time.Minute, nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.RunOnce(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), runner.calls.Load())
	assert.Equal(t, int32(1), runner.maxInFlight.Load(), "同一时刻只允许一个周期")
}

func TestScheduler_StartRunsImmediatelyAndStops(t *testing.T) {
	runner := &countingRunner{panicOn: 1}
	s := NewScheduler(runner, time.Minute, nil)
	s.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	// 第一次周期panic后循环继续
	assert.Eventually(t, func() bool { return runner.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}

	stopped := runner.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, runner.calls.Load())
}

func TestScheduler_IntervalMeasuredFromCycleEnd(t *testing.T) {
	runner := &countingRunner{delay: 50 * time.Millisecond}
	s := NewScheduler(runner, time.Minute, nil)
	s.interval = 50 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 260*time.Millisecond)
	defer cancel()
	s.Start(ctx)

	// 每个周期约100ms（执行50ms + 间隔50ms），固定频率调度会多出一次
	assert.LessOrEqual(t, runner.calls.Load(), int32(3))
	assert.GreaterOrEqual(t, runner.calls.Load(), int32(2))
}
