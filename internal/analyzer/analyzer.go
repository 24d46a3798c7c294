package analyzer

import (
	"context"
	"time"

	"dex-gem-sentry/internal/dedup"
	"dex-gem-sentry/internal/fetcher"
	"dex-gem-sentry/internal/observability"
	"dex-gem-sentry/internal/storage"
	"dex-gem-sentry/pkg/types"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// AlertSender 预警发送接口，由 Dispatcher 实现
type AlertSender interface {
	Notify(ctx context.Context, alert *types.AlertData) bool
}

// CycleResult 单次扫描结果
type CycleResult struct {
	CycleID         string        `json:"cycle_id"`
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration"`
	Fetched         int           `json:"fetched"`
	Candidates      int           `json:"candidates"`
	NewPairs        int           `json:"new_pairs"`
	Delivered       int           `json:"delivered"`
	Failed          int           `json:"failed"`
	SnapshotUpdated bool          `json:"snapshot_updated"`
	SnapshotVersion uint64        `json:"snapshot_version"`
}

// AnalysisEngine 分析引擎
// 每个周期依次执行：获取 → 筛选 → 去重 → 发布快照 → 预警
type AnalysisEngine struct {
	fetcher fetcher.Interface
	tracker *dedup.Tracker
	store   *storage.StateManager
	alerts  AlertSender
	filter  types.FilterConfig
	metrics *observability.Metrics
	now     func() time.Time
}

func NewAnalysisEngine(
	dataFetcher fetcher.Interface,
	tracker *dedup.Tracker,
	stateManager *storage.StateManager,
	alerts AlertSender,
	filter types.FilterConfig,
	metrics *observability.Metrics,
) *AnalysisEngine {
	return &AnalysisEngine{
		fetcher: dataFetcher,
		tracker: tracker,
		store:   stateManager,
		alerts:  alerts,
		filter:  filter,
		metrics: metrics,
		now:     time.Now,
	}
}

// RunCycle 执行一次完整的扫描周期
func (ae *AnalysisEngine) RunCycle(ctx context.Context) (result CycleResult) {
	result = CycleResult{
		CycleID:   uuid.NewString(),
		StartedAt: ae.now(),
	}
	log := zap.L().With(zap.String("cycle_id", result.CycleID))
	start := time.Now()

	// 周期中途panic时不记录指标，由调度器统计失败
	completed := false
	defer func() {
		if !completed {
			return
		}
		result.Duration = time.Since(start)
		ae.metrics.ObserveCycle(result.Duration, result.Candidates, result.NewPairs, false)
		ae.metrics.SetStateSizes(ae.store.Len(), ae.tracker.Size())
	}()

	pairs := ae.fetcher.Fetch(ctx)
	result.Fetched = len(pairs)
	result.SnapshotVersion = ae.store.Version()

	// 没有获取到任何数据时保留上一轮快照，也不标记任何交易对
	if len(pairs) == 0 {
		log.Warn("⚠️ 本轮未获取到交易对，保持快照不变")
		completed = true
		return result
	}

	now := ae.now()
	candidates := FilterBatch(pairs, ae.filter, now)
	result.Candidates = len(candidates)

	// 先标记再发送，发送失败不影响去重
	_, fresh := ae.tracker.Partition(candidates)
	ae.tracker.Mark(lo.Map(fresh, func(p types.PairRecord, _ int) string {
		return dedup.PairID(p)
	})...)
	result.NewPairs = len(fresh)

	snap := ae.store.Replace(candidates)
	result.SnapshotUpdated = true
	result.SnapshotVersion = snap.Version

	if len(candidates) > 0 {
		log.Info("✅ 发现符合条件的交易对",
			zap.Int("fetched", len(pairs)),
			zap.Int("candidates", len(candidates)),
			zap.Int("new", len(fresh)),
			zap.Strings("symbols", lo.Map(candidates, func(p types.PairRecord, _ int) string {
				return p.Symbol()
			})))
	} else {
		log.Info("✅ 扫描完成，暂无符合条件的交易对", zap.Int("fetched", len(pairs)))
	}

	for _, p := range fresh {
		alert := &types.AlertData{
			CycleID:   result.CycleID,
			PairID:    dedup.PairID(p),
			Pair:      p,
			AgeHours:  p.AgeHours(now),
			AlertTime: ae.now(),
		}
		if ae.alerts.Notify(ctx, alert) {
			result.Delivered++
		} else {
			result.Failed++
		}
	}

	completed = true
	return result
}

// Filter 当前生效的筛选配置副本
func (ae *AnalysisEngine) Filter() types.FilterConfig {
	return ae.filter
}

// DedupSize 已预警交易对数量
func (ae *AnalysisEngine) DedupSize() int {
	return ae.tracker.Size()
}
