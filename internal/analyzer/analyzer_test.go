package analyzer

import (
	"context"
	"sync"
	"testing"
	"time"

	"dex-gem-sentry/internal/dedup"
	"dex-gem-sentry/internal/observability"
	"dex-gem-sentry/internal/storage"
	"dex-gem-sentry/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedFetcher 按顺序返回预设批次，用完后返回空列表
type scriptedFetcher struct {
	mu      sync.Mutex
	batches [][]types.PairRecord
}

func (f *scriptedFetcher) Fetch(context.Context) []types.PairRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.batches) == 0 {
		return []types.PairRecord{}
	}
	b := f.batches[0]
	f.batches = f.batches[1:]
	return b
}

type engineFixture struct {
	engine  *AnalysisEngine
	sender  *recordingSender
	tracker *dedup.Tracker
	store   *storage.StateManager
}

func newEngineFixture(t *testing.T, now time.Time, capacity int, batches ...[]types.PairRecord) *engineFixture {
	t.Helper()
	sender := &recordingSender{}
	tracker := dedup.NewTracker(0)
	store := storage.NewStateManager(types.RedisConfig{}, capacity)
	d := NewDispatcher(sender, DispatcherConfig{Channel: "telegram", To: "chat"}, nil, nil)

	engine := NewAnalysisEngine(&scriptedFetcher{batches: batches}, tracker, store, d, defaultFilter, nil)
	engine.now = func() time.Time { return now }

	return &engineFixture{engine: engine, sender: sender, tracker: tracker, store: store}
}

func TestRunCycle_NewGemNotifiedOnce(t *testing.T) {
	now := time.Now()
	gem := newPair("GEM", now)
	f := newEngineFixture(t, now, 25, []types.PairRecord{gem}, []types.PairRecord{gem})

	first := f.engine.RunCycle(context.Background())
	assert.NotEmpty(t, first.CycleID)
	assert.Equal(t, 1, first.Fetched)
	assert.Equal(t, 1, first.Candidates)
	assert.Equal(t, 1, first.NewPairs)
	assert.Equal(t, 1, first.Delivered)
	assert.True(t, f.tracker.Contains("GEM"))

	snap := f.store.Read()
	require.Len(t, snap.Records, 1)
	assert.Equal(t, "GEM", snap.Records[0].PairAddress)

	// 下一轮数据不变：仍在快照中，但不再发送
	second := f.engine.RunCycle(context.Background())
	assert.NotEqual(t, first.CycleID, second.CycleID)
	assert.Equal(t, 1, second.Candidates)
	assert.Equal(t, 0, second.NewPairs)
	assert.Len(t, f.store.Read().Records, 1)
	assert.Len(t, f.sender.messages(), 1)
}

func TestRunCycle_MissingLiquidityExcluded(t *testing.T) {
	now := time.Now()
	batch := []types.PairRecord{
		newPair("NOLIQ", now, withoutLiquidity()),
		newPair("GEM", now),
	}
	f := newEngineFixture(t, now, 25, batch)

	res := f.engine.RunCycle(context.Background())
	assert.Equal(t, 2, res.Fetched)
	assert.Equal(t, 1, res.Candidates)
	assert.False(t, f.tracker.Contains("NOLIQ"))

	msgs := f.sender.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].text, "(GEM)")
}

func TestRunCycle_EmptyFetchKeepsSnapshot(t *testing.T) {
	now := time.Now()
	f := newEngineFixture(t, now, 25, []types.PairRecord{newPair("GEM", now)})

	f.engine.RunCycle(context.Background())
	before := f.store.Read()

	res := f.engine.RunCycle(context.Background())
	assert.Equal(t, 0, res.Fetched)
	assert.False(t, res.SnapshotUpdated)
	assert.Equal(t, before.Version, res.SnapshotVersion)

	after := f.store.Read()
	assert.Equal(t, before.Version, after.Version)
	assert.Len(t, after.Records, 1)
}

func TestRunCycle_NoCandidatesClearsSnapshot(t *testing.T) {
	now := time.Now()
	f := newEngineFixture(t, now, 25,
		[]types.PairRecord{newPair("GEM", now)},
		[]types.PairRecord{newPair("DUST", now, withLiquidity(1))},
	)

	f.engine.RunCycle(context.Background())
	res := f.engine.RunCycle(context.Background())

	assert.True(t, res.SnapshotUpdated)
	assert.Empty(t, f.store.Read().Records)
}

func TestRunCycle_DeliveryFailureStillMarks(t *testing.T) {
	now := time.Now()
	gem := newPair("GEM", now)
	f := newEngineFixture(t, now, 25, []types.PairRecord{gem}, []types.PairRecord{gem})
	f.sender.err = assert.AnError

	res := f.engine.RunCycle(context.Background())
	assert.Equal(t, 1, res.Failed)
	assert.True(t, f.tracker.Contains("GEM"))

	f.sender.err = nil
	res = f.engine.RunCycle(context.Background())
	assert.Equal(t, 0, res.NewPairs, "投递失败不重试")
	assert.Len(t, f.sender.messages(), 1)
}

func TestRunCycle_SnapshotBounded(t *testing.T) {
	now := time.Now()
	batch := make([]types.PairRecord, 0, 40)
	for i := 0; i < 40; i++ {
		addr := string(rune('A'+i%26)) + string(rune('a'+i/26))
		batch = append(batch, newPair(addr, now, withAge(now, time.Duration(i)*time.Minute)))
	}
	f := newEngineFixture(t, now, 25, batch)
	metrics := observability.NewMetrics("test")
	f.engine.metrics = metrics

	res := f.engine.RunCycle(context.Background())
	assert.Equal(t, 40, res.Candidates)
	assert.Equal(t, 40, res.NewPairs)
	assert.Equal(t, 25.0, testutil.ToFloat64(metrics.SnapshotSize))
	assert.Equal(t, 40.0, testutil.ToFloat64(metrics.DedupSize))

	snap := f.store.Read()
	require.Len(t, snap.Records, 25)
	// 最新创建的排在前面
	assert.Equal(t, batch[0].PairAddress, snap.Records[0].PairAddress)
	assert.Equal(t, batch[24].PairAddress, snap.Records[24].PairAddress)
}

func TestRunCycle_DuplicateInBatchNotifiedOnce(t *testing.T) {
	now := time.Now()
	gem := newPair("GEM", now)
	f := newEngineFixture(t, now, 25, []types.PairRecord{gem, gem})

	res := f.engine.RunCycle(context.Background())
	assert.Equal(t, 2, res.Candidates)
	assert.Equal(t, 1, res.NewPairs)
	assert.Len(t, f.sender.messages(), 1)
}
