package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"dex-gem-sentry/pkg/types"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "DEX_SENTRY"

// 筛选与服务的默认值，同时用于命令行帮助
const (
	defaultScanInterval = 60
	defaultMinLiquidity = 30000.0
	defaultMinFDV       = 400000.0
	defaultMaxAgeHours  = 48.0
	defaultMinTxns      = 300
	defaultPort         = 10000
)

// 通知渠道
const (
	ChannelTelegram = "telegram"
	ChannelDingTalk = "dingtalk"
	ChannelPushPlus = "pushplus"
	ChannelConsole  = "console"
)

// 命令行参数与配置项的映射
var flagKeys = map[string]string{
	"scan-interval": "filter.scan_interval",
	"min-liquidity": "filter.min_liquidity",
	"min-fdv":       "filter.min_fdv",
	"max-age-hours": "filter.max_age_hours",
	"min-txns":      "filter.min_txns",
	"port":          "server.port",
	"channel":       "notify.channel",
}

// ConfigurationError 启动配置错误，出现时进程不应启动调度器
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

// Load 加载配置
// 优先级：命令行参数 > 环境变量 > 配置文件 > 默认值
func Load(args []string) (*types.Config, error) {
	fs, configFile := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	// 读取环境变量，如 DEX_SENTRY_TELEGRAM_BOT_TOKEN
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := readConfigFile(v, *configFile); err != nil {
		return nil, err
	}

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, err
		}
	}

	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// newFlagSet 命令行参数，默认值与配置默认值保持一致
func newFlagSet() (fs *pflag.FlagSet, configFile *string) {
	fs = pflag.NewFlagSet("dex-gem-sentry", pflag.ContinueOnError)
	configFile = fs.String("config", "", "配置文件路径，默认依次查找 configs/config.local.yaml、configs/config.yaml")
	fs.Int("scan-interval", defaultScanInterval, "扫描间隔(秒)")
	fs.Float64("min-liquidity", defaultMinLiquidity, "最小流动性(USD)")
	fs.Float64("min-fdv", defaultMinFDV, "最小FDV(USD)")
	fs.Float64("max-age-hours", defaultMaxAgeHours, "交易对最大存活时长(小时)")
	fs.Int64("min-txns", defaultMinTxns, "窗口内最小买卖笔数")
	fs.Int("port", defaultPort, "看板HTTP端口")
	fs.String("channel", ChannelTelegram, "通知渠道 telegram/dingtalk/pushplus/console")
	return fs, configFile
}

func readConfigFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		return v.ReadInConfig()
	}

	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	// 优先尝试读取本地配置文件
	v.SetConfigName("config.local")
	if err := v.ReadInConfig(); err != nil {
		// 如果本地配置文件不存在，尝试读取默认配置文件
		v.SetConfigName("config")
		if err := v.ReadInConfig(); err != nil {
			var configFileNotFoundError viper.ConfigFileNotFoundError
			if !errors.As(err, &configFileNotFoundError) {
				return err
			}
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file_path", "logs")
	v.SetDefault("log.max_size", 200)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.compress", false)
	v.SetDefault("feed.url", "https://api.dexscreener.com/latest/dex/search?q=solana")
	v.SetDefault("filter.min_liquidity", defaultMinLiquidity)
	v.SetDefault("filter.min_fdv", defaultMinFDV)
	v.SetDefault("filter.max_age_hours", defaultMaxAgeHours)
	v.SetDefault("filter.min_txns", defaultMinTxns)
	v.SetDefault("filter.txn_window", types.TxnWindowH1)
	v.SetDefault("filter.scan_interval", defaultScanInterval)
	v.SetDefault("dedup.warn_size", 100000)
	v.SetDefault("dashboard.capacity", 25)
	v.SetDefault("notify.channel", ChannelTelegram)
	v.SetDefault("notify.timeout", 10*time.Second)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.api_url", "https://api.telegram.org")
	v.SetDefault("dingtalk.webhook_url", "")
	v.SetDefault("dingtalk.secret", "")
	v.SetDefault("pushplus.user_token", "")
	v.SetDefault("pushplus.to", "")
	v.SetDefault("pushplus.api_url", "http://www.pushplus.plus/send")
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key", "dex:snapshot")
	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.driver", "sqlite")
	v.SetDefault("journal.sqlite", "data/alerts.db")
	v.SetDefault("journal.mysql.host", "127.0.0.1")
	v.SetDefault("journal.mysql.port", 3306)
	v.SetDefault("journal.mysql.username", "")
	v.SetDefault("journal.mysql.password", "")
	v.SetDefault("journal.mysql.database", "dex_sentry")
	v.SetDefault("journal.mysql.max_idle_conns", 2)
	v.SetDefault("journal.mysql.max_open_conns", 5)
	v.SetDefault("network.proxy", "")
	v.SetDefault("network.timeout", 10*time.Second)
	v.SetDefault("server.port", defaultPort)
}

// Validate 校验配置，缺少通知凭证属于致命错误
func Validate(cfg *types.Config) error {
	f := cfg.Filter
	if f.MinLiquidity < 0 {
		return &ConfigurationError{Field: "filter.min_liquidity", Reason: "must be >= 0"}
	}
	if f.MinFDV < 0 {
		return &ConfigurationError{Field: "filter.min_fdv", Reason: "must be >= 0"}
	}
	if f.MaxAgeHours < 0 {
		return &ConfigurationError{Field: "filter.max_age_hours", Reason: "must be >= 0"}
	}
	if f.MinTxns < 0 {
		return &ConfigurationError{Field: "filter.min_txns", Reason: "must be >= 0"}
	}
	if f.ScanIntervalSec < 1 {
		return &ConfigurationError{Field: "filter.scan_interval", Reason: "must be >= 1 second"}
	}
	switch f.TxnWindow {
	case types.TxnWindowM5, types.TxnWindowH1, types.TxnWindowH6, types.TxnWindowH24:
	default:
		return &ConfigurationError{Field: "filter.txn_window", Reason: fmt.Sprintf("unknown window %q", f.TxnWindow)}
	}
	if cfg.Dashboard.Capacity < 1 {
		return &ConfigurationError{Field: "dashboard.capacity", Reason: "must be >= 1"}
	}
	if cfg.Feed.URL == "" {
		return &ConfigurationError{Field: "feed.url", Reason: "is required"}
	}

	switch cfg.Notify.Channel {
	case ChannelTelegram:
		if cfg.Telegram.BotToken == "" {
			return &ConfigurationError{Field: "telegram.bot_token", Reason: "is required"}
		}
		if cfg.Telegram.ChatID == "" {
			return &ConfigurationError{Field: "telegram.chat_id", Reason: "is required"}
		}
	case ChannelDingTalk:
		if cfg.DingTalk.WebhookURL == "" {
			return &ConfigurationError{Field: "dingtalk.webhook_url", Reason: "is required"}
		}
	case ChannelPushPlus:
		if cfg.PushPlus.UserToken == "" {
			return &ConfigurationError{Field: "pushplus.user_token", Reason: "is required"}
		}
	case ChannelConsole:
	default:
		return &ConfigurationError{Field: "notify.channel", Reason: fmt.Sprintf("unknown channel %q", cfg.Notify.Channel)}
	}

	if cfg.Journal.Enabled && cfg.Journal.Driver != "mysql" && cfg.Journal.Driver != "sqlite" {
		return &ConfigurationError{Field: "journal.driver", Reason: fmt.Sprintf("unknown driver %q", cfg.Journal.Driver)}
	}
	return nil
}
