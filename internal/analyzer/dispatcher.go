package analyzer

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"dex-gem-sentry/internal/notifier"
	"dex-gem-sentry/internal/observability"
	"dex-gem-sentry/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AlertJournal 预警流水，记录每一次投递结果
type AlertJournal interface {
	Record(ctx context.Context, alert *types.AlertData, channel string, deliveryErr error) error
}

// Dispatcher 预警分发器
// 投递失败只记录日志和指标，不重试，也不回滚去重标记
type Dispatcher struct {
	sender  notifier.Sender
	to      string
	channel string
	window  string
	timeout time.Duration
	journal AlertJournal
	metrics *observability.Metrics
}

// DispatcherConfig 分发器参数
type DispatcherConfig struct {
	Channel   string
	To        string
	Timeout   time.Duration
	TxnWindow string
}

func NewDispatcher(sender notifier.Sender, cfg DispatcherConfig, journal AlertJournal, metrics *observability.Metrics) *Dispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	window := cfg.TxnWindow
	if window == "" {
		window = types.TxnWindowH1
	}
	return &Dispatcher{
		sender:  sender,
		to:      cfg.To,
		channel: cfg.Channel,
		window:  window,
		timeout: timeout,
		journal: journal,
		metrics: metrics,
	}
}

// Notify 发送一条新交易对预警，返回是否投递成功
func (d *Dispatcher) Notify(ctx context.Context, alert *types.AlertData) bool {
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	err := d.sender.Send(sendCtx, d.to, FormatAlert(alert, d.window))
	cancel()

	d.metrics.ObserveAlert(err == nil)
	if err != nil {
		zap.L().Error("❌ 发送预警失败",
			zap.String("cycle_id", alert.CycleID),
			zap.String("pair_id", alert.PairID),
			zap.String("symbol", alert.Pair.Symbol()),
			zap.String("channel", d.channel),
			zap.Error(err))
	} else {
		zap.L().Info("✅ 预警已发送",
			zap.String("cycle_id", alert.CycleID),
			zap.String("symbol", alert.Pair.Symbol()),
			zap.String("channel", d.channel))
	}

	if d.journal != nil {
		journalCtx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if jerr := d.journal.Record(journalCtx, alert, d.channel, err); jerr != nil {
			zap.L().Warn("⚠️ 写入预警流水失败", zap.String("pair_id", alert.PairID), zap.Error(jerr))
		}
		cancel()
	}

	return err == nil
}

// FormatAlert 生成预警消息文本，首行作为标题
func FormatAlert(alert *types.AlertData, window string) string {
	p := alert.Pair
	var b strings.Builder

	fmt.Fprintf(&b, "💎 发现新交易对: %s (%s)\n", p.Name(), p.Symbol())
	fmt.Fprintf(&b, "💧 流动性: $%s\n", FormatUSD(p.LiquidityUSD()))
	fmt.Fprintf(&b, "📊 FDV: $%s\n", FormatUSD(p.FDV()))
	fmt.Fprintf(&b, "🔄 %s交易笔数: %d\n", window, p.TxnTotal(window))
	fmt.Fprintf(&b, "⏱ 创建时长: %s\n", FormatAge(alert.AgeHours))
	if link := p.Link(); link != "" {
		fmt.Fprintf(&b, "🔗 %s", link)
	} else {
		b.WriteString("🔗 无链接")
	}

	return b.String()
}

// FormatUSD 取整并加千分位
func FormatUSD(d decimal.Decimal) string {
	s := d.Round(0).StringFixed(0)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	var out []byte
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}

// FormatAge 格式化交易对存活时长
func FormatAge(hours float64) string {
	switch {
	case math.IsInf(hours, 0) || math.IsNaN(hours):
		return "未知"
	case hours < 1:
		return fmt.Sprintf("%.0f分钟", hours*60)
	default:
		return fmt.Sprintf("%.1f小时", hours)
	}
}
