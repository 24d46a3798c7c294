// Package dedup tracks which pairs have already been alerted.
//
// The set only grows for the lifetime of the process and is not persisted.
// There is no eviction: a warning is logged each time the set doubles past
// the configured warn size so that unbounded growth is visible in the logs.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"

	"dex-gem-sentry/pkg/types"
	"go.uber.org/zap"
)

// PairID 交易对唯一标识
// 优先使用交易对地址，其次图表链接，都缺失时使用记录内容的SHA256
func PairID(p types.PairRecord) string {
	if p.PairAddress != "" {
		return p.PairAddress
	}
	if p.URL != "" {
		return p.URL
	}

	// encoding/json 按字段声明顺序输出结构体、按key排序输出map，结果稳定
	data, err := json.Marshal(p)
	if err != nil {
		data = []byte(err.Error())
	}
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// Tracker 已预警交易对集合
type Tracker struct {
	mu       sync.Mutex
	seen     map[string]struct{}
	nextWarn int
}

func NewTracker(warnSize int) *Tracker {
	return &Tracker{
		seen:     make(map[string]struct{}),
		nextWarn: warnSize,
	}
}

// Partition 将候选交易对划分为已预警和新发现两组，不修改集合
// 同一批次内重复出现的标识只有第一次计为新发现
func (t *Tracker) Partition(candidates []types.PairRecord) (seen, fresh []types.PairRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()

	batch := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		id := PairID(c)
		if _, ok := t.seen[id]; ok {
			seen = append(seen, c)
			continue
		}
		if _, ok := batch[id]; ok {
			seen = append(seen, c)
			continue
		}
		batch[id] = struct{}{}
		fresh = append(fresh, c)
	}
	return seen, fresh
}

// Mark 记录已预警的标识
func (t *Tracker) Mark(ids ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, id := range ids {
		t.seen[id] = struct{}{}
	}

	if t.nextWarn > 0 && len(t.seen) >= t.nextWarn {
		zap.L().Warn("⚠️ 去重集合持续增长且没有淘汰策略",
			zap.Int("size", len(t.seen)),
			zap.Int("warn_size", t.nextWarn))
		for t.nextWarn <= len(t.seen) {
			t.nextWarn *= 2
		}
	}
}

// Contains 是否已预警
func (t *Tracker) Contains(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.seen[id]
	return ok
}

// Size 已预警标识数量
func (t *Tracker) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}
