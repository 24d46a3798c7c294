package types

import "time"

// Config 主配置结构
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Filter    FilterConfig    `mapstructure:"filter"`
	Dedup     DedupConfig     `mapstructure:"dedup"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	DingTalk  DingTalkConfig  `mapstructure:"dingtalk"`
	PushPlus  PushPlusConfig  `mapstructure:"pushplus"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Journal   JournalConfig   `mapstructure:"journal"`
	Network   NetworkConfig   `mapstructure:"network"`
	Server    ServerConfig    `mapstructure:"server"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // 日志级别
	FilePath   string `mapstructure:"file_path"`   // 日志输出目录，为空则只输出到控制台
	MaxSize    int    `mapstructure:"max_size"`    // 日志文件大小 单位：MB，超限后会自动切割
	MaxAge     int    `mapstructure:"max_age"`     // 日志文件存放时间 单位：天
	MaxBackups int    `mapstructure:"max_backups"` // 日志文件备份数量
	Compress   bool   `mapstructure:"compress"`    // 日志文件压缩
}

// FeedConfig 行情数据源配置
type FeedConfig struct {
	URL string `mapstructure:"url"` // 交易对搜索/列表接口
}

// FilterConfig 筛选阈值，进程启动时确定，运行期间只读
type FilterConfig struct {
	MinLiquidity    float64 `mapstructure:"min_liquidity" json:"min_liquidity"` // 最小流动性(USD)
	MinFDV          float64 `mapstructure:"min_fdv" json:"min_fdv"`             // 最小完全稀释估值(USD)
	MaxAgeHours     float64 `mapstructure:"max_age_hours" json:"max_age_hours"` // 交易对最大存活时长(小时)
	MinTxns         int64   `mapstructure:"min_txns" json:"min_txns"`           // 窗口内最小买卖笔数
	TxnWindow       string  `mapstructure:"txn_window" json:"txn_window"`       // 交易笔数统计窗口 m5/h1/h6/h24
	ScanIntervalSec int     `mapstructure:"scan_interval" json:"scan_interval"` // 扫描间隔(秒)
}

// ScanInterval 扫描间隔
func (c FilterConfig) ScanInterval() time.Duration {
	return time.Duration(c.ScanIntervalSec) * time.Second
}

// DedupConfig 去重配置
type DedupConfig struct {
	WarnSize int `mapstructure:"warn_size"` // 去重集合达到该规模时输出告警，0表示不告警
}

// DashboardConfig 看板快照配置
type DashboardConfig struct {
	Capacity int `mapstructure:"capacity"` // 快照最多保留的交易对数量
}

// NotifyConfig 通知配置
type NotifyConfig struct {
	Channel string        `mapstructure:"channel"` // telegram / dingtalk / pushplus / console
	Timeout time.Duration `mapstructure:"timeout"` // 单次发送超时
}

// TelegramConfig Telegram机器人配置
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIURL   string `mapstructure:"api_url"` // 默认 https://api.telegram.org
}

// DingTalkConfig 钉钉配置
type DingTalkConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Secret     string `mapstructure:"secret"`
}

// PushPlusConfig PushPlus配置
type PushPlusConfig struct {
	UserToken string `mapstructure:"user_token"`
	To        string `mapstructure:"to"` // 好友令牌，多人用逗号分隔
	APIURL    string `mapstructure:"api_url"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"` // 快照镜像key
}

// JournalConfig 预警流水配置
type JournalConfig struct {
	Enabled bool        `mapstructure:"enabled"`
	Driver  string      `mapstructure:"driver"` // mysql / sqlite
	SQLite  string      `mapstructure:"sqlite"` // sqlite 文件路径
	MySQL   MySQLConfig `mapstructure:"mysql"`
}

// MySQLConfig MySQL配置
type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// NetworkConfig 网络配置
type NetworkConfig struct {
	Proxy   string        `mapstructure:"proxy"`   // HTTP代理地址，如 http://127.0.0.1:7890
	Timeout time.Duration `mapstructure:"timeout"` // 网络超时时间
}

// ServerConfig 看板HTTP服务配置
type ServerConfig struct {
	Port int `mapstructure:"port"`
}
