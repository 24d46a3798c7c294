package types

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// 交易笔数统计窗口
const (
	TxnWindowM5  = "m5"
	TxnWindowH1  = "h1"
	TxnWindowH6  = "h6"
	TxnWindowH24 = "h24"
)

// PairRecord 行情源返回的交易对记录
//
// 行情源的字段随时可能缺失，默认值规则统一由下面的访问方法提供：
// 流动性、FDV、买卖笔数缺失按0处理；创建时间缺失视为无限久远。
// 数值字段既接受JSON数字也接受数字字符串，无法解析的记录在解码阶段整体丢弃。
type PairRecord struct {
	ChainID       string              `json:"chainId,omitempty"`
	DexID         string              `json:"dexId,omitempty"`
	URL           string              `json:"url,omitempty"`
	PairAddress   string              `json:"pairAddress,omitempty"`
	BaseToken     *Token              `json:"baseToken,omitempty"`
	QuoteToken    *Token              `json:"quoteToken,omitempty"`
	PriceUsd      decimal.NullDecimal `json:"priceUsd"`
	Liquidity     *Liquidity          `json:"liquidity,omitempty"`
	Fdv           decimal.NullDecimal `json:"fdv"`
	PairCreatedAt *int64              `json:"pairCreatedAt,omitempty"` // 毫秒时间戳
	Txns          map[string]TxnCount `json:"txns,omitempty"`
}

// Token 交易对中的代币
type Token struct {
	Address string `json:"address,omitempty"`
	Name    string `json:"name,omitempty"`
	Symbol  string `json:"symbol,omitempty"`
}

// Liquidity 流动性
type Liquidity struct {
	Usd   decimal.NullDecimal `json:"usd"`
	Base  decimal.NullDecimal `json:"base"`
	Quote decimal.NullDecimal `json:"quote"`
}

// TxnCount 窗口内买卖笔数
type TxnCount struct {
	Buys  int64 `json:"buys"`
	Sells int64 `json:"sells"`
}

// Clone 深拷贝，调用方修改副本不会影响原记录
func (p PairRecord) Clone() PairRecord {
	c := p
	if p.BaseToken != nil {
		t := *p.BaseToken
		c.BaseToken = &t
	}
	if p.QuoteToken != nil {
		t := *p.QuoteToken
		c.QuoteToken = &t
	}
	if p.Liquidity != nil {
		l := *p.Liquidity
		c.Liquidity = &l
	}
	if p.PairCreatedAt != nil {
		ts := *p.PairCreatedAt
		c.PairCreatedAt = &ts
	}
	if p.Txns != nil {
		c.Txns = make(map[string]TxnCount, len(p.Txns))
		for k, v := range p.Txns {
			c.Txns[k] = v
		}
	}
	return c
}

// LiquidityUSD 流动性(USD)，缺失为0
func (p PairRecord) LiquidityUSD() decimal.Decimal {
	if p.Liquidity == nil || !p.Liquidity.Usd.Valid {
		return decimal.Zero
	}
	return p.Liquidity.Usd.Decimal
}

// FDV 完全稀释估值，缺失为0
func (p PairRecord) FDV() decimal.Decimal {
	if !p.Fdv.Valid {
		return decimal.Zero
	}
	return p.Fdv.Decimal
}

// CreatedAt 交易对创建时间
func (p PairRecord) CreatedAt() (time.Time, bool) {
	if p.PairCreatedAt == nil || *p.PairCreatedAt <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(*p.PairCreatedAt), true
}

// AgeHours 距创建时间的小时数，缺失时返回 +Inf，未来时间按0处理
func (p PairRecord) AgeHours(now time.Time) float64 {
	created, ok := p.CreatedAt()
	if !ok {
		return math.Inf(1)
	}
	age := now.Sub(created).Hours()
	if age < 0 {
		return 0
	}
	return age
}

// TxnTotal 指定窗口的买卖笔数之和
func (p PairRecord) TxnTotal(window string) int64 {
	c, ok := p.Txns[window]
	if !ok {
		return 0
	}
	return c.Buys + c.Sells
}

// Name 基础代币名称
func (p PairRecord) Name() string {
	if p.BaseToken == nil || p.BaseToken.Name == "" {
		return "Unknown"
	}
	return p.BaseToken.Name
}

// Symbol 基础代币符号
func (p PairRecord) Symbol() string {
	if p.BaseToken == nil || p.BaseToken.Symbol == "" {
		return "?"
	}
	return p.BaseToken.Symbol
}

// Link 图表链接
func (p PairRecord) Link() string {
	if p.URL != "" {
		return p.URL
	}
	if p.ChainID != "" && p.PairAddress != "" {
		return fmt.Sprintf("https://dexscreener.com/%s/%s", p.ChainID, p.PairAddress)
	}
	return ""
}

// MalformedRecordError 单条记录无法解析
type MalformedRecordError struct {
	Index int
	Err   error
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed pair record #%d: %v", e.Index, e.Err)
}

func (e *MalformedRecordError) Unwrap() error {
	return e.Err
}

// AlertData 新发现交易对的预警数据
type AlertData struct {
	CycleID   string     `json:"cycle_id"`
	PairID    string     `json:"pair_id"`
	Pair      PairRecord `json:"pair"`
	AgeHours  float64    `json:"age_hours"`
	AlertTime time.Time  `json:"alert_time"`
}
