// Package journal keeps an append-only audit log of alert attempts.
//
// The journal is never read back into the dedup tracker, so it does not make
// dedup state survive restarts.
package journal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dex-gem-sentry/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// 数据库驱动
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// Manager 预警流水管理器
type Manager struct {
	db     *gorm.DB
	driver string
}

// AlertRecord 预警流水模型
type AlertRecord struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	CycleID      string          `gorm:"type:varchar(36);not null;index" json:"cycle_id"`
	PairID       string          `gorm:"type:varchar(255);not null;index" json:"pair_id"`
	ChainID      string          `gorm:"type:varchar(32)" json:"chain_id"`
	Symbol       string          `gorm:"type:varchar(64)" json:"symbol"`
	Name         string          `gorm:"type:varchar(128)" json:"name"`
	URL          string          `gorm:"type:varchar(512)" json:"url"`
	LiquidityUSD decimal.Decimal `gorm:"type:decimal(30,8)" json:"liquidity_usd"`
	FDV          decimal.Decimal `gorm:"type:decimal(30,8)" json:"fdv"`
	AgeHours     float64         `json:"age_hours"`
	Channel      string          `gorm:"type:varchar(16);not null" json:"channel"`
	Delivered    bool            `gorm:"default:false;index" json:"delivered"`
	Error        string          `gorm:"type:text" json:"error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Open 按配置打开预警流水库并迁移表结构
func Open(cfg types.JournalConfig) (*Manager, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	var (
		db  *gorm.DB
		err error
	)

	switch cfg.Driver {
	case DriverMySQL:
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			cfg.MySQL.Username,
			cfg.MySQL.Password,
			cfg.MySQL.Host,
			cfg.MySQL.Port,
			cfg.MySQL.Database,
		)
		db, err = gorm.Open(mysql.Open(dsn), gormConfig)
	case DriverSQLite:
		if err := ensureDir(cfg.SQLite); err != nil {
			return nil, err
		}
		db, err = gorm.Open(sqlite.Open(cfg.SQLite), gormConfig)
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("连接%s失败: %w", cfg.Driver, err)
	}

	// 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取数据库实例失败: %w", err)
	}
	if cfg.Driver == DriverSQLite {
		// sqlite 单写者，内存库也要求共用同一连接
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
		sqlDB.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	m := &Manager{db: db, driver: cfg.Driver}
	if err := m.AutoMigrate(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}

	zap.L().Info("✅ 预警流水库连接成功", zap.String("driver", cfg.Driver))
	return m, nil
}

func ensureDir(dsn string) error {
	if dsn == "" || strings.HasPrefix(dsn, "file:") || strings.Contains(dsn, ":memory:") {
		return nil
	}
	dir := filepath.Dir(dsn)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("创建数据目录失败: %w", err)
	}
	return nil
}

// AutoMigrate 自动迁移表结构
func (m *Manager) AutoMigrate() error {
	return m.db.AutoMigrate(&AlertRecord{})
}

// Record 记录一次预警投递结果
func (m *Manager) Record(ctx context.Context, alert *types.AlertData, channel string, deliveryErr error) error {
	rec := &AlertRecord{
		CycleID:      alert.CycleID,
		PairID:       alert.PairID,
		ChainID:      alert.Pair.ChainID,
		Symbol:       alert.Pair.Symbol(),
		Name:         alert.Pair.Name(),
		URL:          alert.Pair.Link(),
		LiquidityUSD: alert.Pair.LiquidityUSD(),
		FDV:          alert.Pair.FDV(),
		AgeHours:     alert.AgeHours,
		Channel:      channel,
		Delivered:    deliveryErr == nil,
		CreatedAt:    alert.AlertTime,
	}
	if deliveryErr != nil {
		rec.Error = deliveryErr.Error()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	return m.db.WithContext(ctx).Create(rec).Error
}

// Recent 最近的预警流水，按时间倒序
func (m *Manager) Recent(ctx context.Context, limit int) ([]AlertRecord, error) {
	var records []AlertRecord
	err := m.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// Count 流水总数，delivered 为 nil 时统计全部
func (m *Manager) Count(ctx context.Context, delivered *bool) (int64, error) {
	var n int64
	q := m.db.WithContext(ctx).Model(&AlertRecord{})
	if delivered != nil {
		q = q.Where("delivered = ?", *delivered)
	}
	err := q.Count(&n).Error
	return n, err
}

// Close 关闭数据库连接
func (m *Manager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health 检查数据库连接健康状态
func (m *Manager) Health() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
