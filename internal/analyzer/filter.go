package analyzer

import (
	"math"
	"time"

	"dex-gem-sentry/pkg/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Passes 判断交易对是否满足全部筛选条件
// 纯函数：相同的记录、配置和时间总是得到相同结果
func Passes(p types.PairRecord, cfg types.FilterConfig, now time.Time) bool {
	if p.LiquidityUSD().LessThan(decimal.NewFromFloat(cfg.MinLiquidity)) {
		return false
	}
	if p.FDV().LessThan(decimal.NewFromFloat(cfg.MinFDV)) {
		return false
	}

	// 创建时间缺失时年龄为 +Inf，必然不通过
	age := p.AgeHours(now)
	if math.IsInf(age, 1) || age > cfg.MaxAgeHours {
		return false
	}

	return p.TxnTotal(txnWindow(cfg)) >= cfg.MinTxns
}

// FilterBatch 对一批交易对应用筛选条件，保持原有顺序
func FilterBatch(records []types.PairRecord, cfg types.FilterConfig, now time.Time) []types.PairRecord {
	return lo.Filter(records, func(p types.PairRecord, _ int) bool {
		return Passes(p, cfg, now)
	})
}

func txnWindow(cfg types.FilterConfig) string {
	if cfg.TxnWindow == "" {
		return types.TxnWindowH1
	}
	return cfg.TxnWindow
}
