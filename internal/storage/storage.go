package storage

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"dex-gem-sentry/pkg/types"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// snapshotTTL Redis镜像的过期时间，进程退出后镜像自然失效
const snapshotTTL = time.Hour

// Snapshot 看板快照，每个周期整体替换
type Snapshot struct {
	Records   []types.PairRecord `json:"records"`
	UpdatedAt time.Time          `json:"updated_at"`
	Version   uint64             `json:"version"`
}

// StateManager 状态管理器
// 锁只保护快照引用的读写，不跨越任何网络I/O；已发布的快照切片不再被修改
type StateManager struct {
	mutex    sync.RWMutex
	current  Snapshot
	capacity int

	redisClient *redis.Client
	redisKey    string
	useRedis    bool
	backupMutex sync.Mutex
	lastBackup  uint64
	backups     sync.WaitGroup
	closed      bool
}

func NewStateManager(redisConfig types.RedisConfig, capacity int) *StateManager {
	if capacity < 1 {
		capacity = 1
	}
	sm := &StateManager{
		capacity: capacity,
		redisKey: redisConfig.Key,
	}
	if sm.redisKey == "" {
		sm.redisKey = "dex:snapshot"
	}

	// 尝试连接Redis
	if redisConfig.URL != "" {
		sm.redisClient = redis.NewClient(&redis.Options{
			Addr:     redisConfig.URL,
			Password: redisConfig.Password,
			DB:       redisConfig.DB,
		})

		// 测试连接
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := sm.redisClient.Ping(ctx).Err(); err != nil {
			zap.L().Warn("⚠️ Redis连接失败，使用纯内存模式", zap.Error(err))
			_ = sm.redisClient.Close()
			sm.redisClient = nil
		} else {
			zap.L().Info("✅ Redis连接成功", zap.String("addr", redisConfig.URL))
			sm.useRedis = true
		}
	} else {
		zap.L().Info("🔧 未配置Redis，使用纯内存模式")
	}

	return sm
}

// Replace 用本周期的候选交易对整体替换快照
// 按创建时间从新到旧排序并截断到容量上限
func (sm *StateManager) Replace(records []types.PairRecord) Snapshot {
	ordered := make([]types.PairRecord, len(records))
	for i := range records {
		ordered[i] = records[i].Clone()
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return newerThan(ordered[i], ordered[j])
	})
	if len(ordered) > sm.capacity {
		ordered = ordered[:sm.capacity]
	}

	sm.mutex.Lock()
	next := Snapshot{
		Records:   ordered,
		UpdatedAt: time.Now(),
		Version:   sm.current.Version + 1,
	}
	sm.current = next
	backup := sm.useRedis && !sm.closed
	if backup {
		sm.backups.Add(1)
	}
	sm.mutex.Unlock()

	// 异步备份到Redis
	if backup {
		go func() {
			defer sm.backups.Done()
			sm.backupToRedis(next)
		}()
	}
	return next
}

// Read 读取当前快照的独立副本
func (sm *StateManager) Read() Snapshot {
	sm.mutex.RLock()
	snap := sm.current
	sm.mutex.RUnlock()

	records := make([]types.PairRecord, len(snap.Records))
	for i := range snap.Records {
		records[i] = snap.Records[i].Clone()
	}
	snap.Records = records
	return snap
}

// Version 当前快照版本，0表示尚未发布过快照
func (sm *StateManager) Version() uint64 {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.current.Version
}

// Len 当前快照中的交易对数量
func (sm *StateManager) Len() int {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return len(sm.current.Records)
}

func newerThan(a, b types.PairRecord) bool {
	ta, okA := a.CreatedAt()
	tb, okB := b.CreatedAt()
	switch {
	case okA && okB:
		return ta.After(tb)
	case okA:
		return true
	default:
		return false
	}
}

// backupToRedis 备份快照到Redis，只写入比已备份版本更新的快照
func (sm *StateManager) backupToRedis(snap Snapshot) {
	sm.backupMutex.Lock()
	defer sm.backupMutex.Unlock()

	if snap.Version <= sm.lastBackup {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	value, err := json.Marshal(snap)
	if err != nil {
		zap.L().Error("❌ 序列化快照失败", zap.Error(err))
		return
	}

	if err := sm.redisClient.Set(ctx, sm.redisKey, value, snapshotTTL).Err(); err != nil {
		zap.L().Warn("⚠️ Redis存储失败", zap.String("key", sm.redisKey), zap.Error(err))
		return
	}
	sm.lastBackup = snap.Version
}

// GetStats 获取存储统计信息
func (sm *StateManager) GetStats() map[string]interface{} {
	sm.mutex.RLock()
	snap := sm.current
	sm.mutex.RUnlock()

	stats := map[string]interface{}{
		"redis_enabled":    sm.useRedis,
		"snapshot_size":    len(snap.Records),
		"snapshot_version": snap.Version,
		"capacity":         sm.capacity,
	}
	if !snap.UpdatedAt.IsZero() {
		stats["updated_at"] = snap.UpdatedAt
	}

	if sm.useRedis {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		ttl, err := sm.redisClient.TTL(ctx, sm.redisKey).Result()
		if err == nil {
			stats["redis_ttl"] = ttl.String()
		} else {
			stats["redis_error"] = err.Error()
		}
	}

	return stats
}

// Close 等待进行中的备份完成后关闭Redis连接
func (sm *StateManager) Close() error {
	sm.mutex.Lock()
	sm.closed = true
	sm.mutex.Unlock()

	sm.backups.Wait()
	if sm.redisClient == nil {
		return nil
	}
	return sm.redisClient.Close()
}
