package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"dex-gem-sentry/pkg/config"
	"dex-gem-sentry/pkg/types"
	"go.uber.org/zap"
)

// Sender 通知发送接口
type Sender interface {
	Send(ctx context.Context, to, text string) error
}

// DeliveryError 通知投递失败
type DeliveryError struct {
	Channel    string
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("deliver via %s: status %d: %v", e.Channel, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("deliver via %s: %v", e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// New 根据 notify.channel 创建通知器，返回发送器和默认接收方
func New(cfg *types.Config) (Sender, string, error) {
	client := newHTTPClient(cfg.Network)

	switch cfg.Notify.Channel {
	case config.ChannelTelegram:
		zap.L().Info("✅ 已配置Telegram通知服务", zap.String("chat_id", cfg.Telegram.ChatID))
		return NewTelegramSender(cfg.Telegram, client), cfg.Telegram.ChatID, nil
	case config.ChannelDingTalk:
		if cfg.DingTalk.Secret != "" {
			zap.L().Info("✅ 已配置钉钉通知服务（含加签验证）")
		} else {
			zap.L().Warn("⚠️ 钉钉通知已配置，但未设置secret（建议配置加签验证）")
		}
		return NewDingTalkSender(cfg.DingTalk, client), "", nil
	case config.ChannelPushPlus:
		if cfg.PushPlus.To != "" {
			zap.L().Info("✅ 已配置PushPlus通知服务（包含好友推送）", zap.String("to", cfg.PushPlus.To))
		} else {
			zap.L().Info("✅ 已配置PushPlus通知服务")
		}
		return NewPushPlusSender(cfg.PushPlus, client), cfg.PushPlus.To, nil
	case config.ChannelConsole:
		zap.L().Info("🔧 使用控制台输出模式")
		return NewConsoleSender(os.Stdout), "", nil
	default:
		return nil, "", &config.ConfigurationError{Field: "notify.channel", Reason: fmt.Sprintf("unknown channel %q", cfg.Notify.Channel)}
	}
}

func newHTTPClient(networkConfig types.NetworkConfig) *http.Client {
	timeout := networkConfig.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if networkConfig.Proxy != "" {
		if proxyURL, err := url.Parse(networkConfig.Proxy); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// postJSON 发送JSON请求并解析JSON响应
func postJSON(ctx context.Context, client *http.Client, channel, endpoint string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &DeliveryError{Channel: channel, Err: fmt.Errorf("序列化请求数据失败: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return &DeliveryError{Channel: channel, Err: redactURL(err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return &DeliveryError{Channel: channel, Err: fmt.Errorf("HTTP请求失败: %w", redactURL(err))}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &DeliveryError{Channel: channel, StatusCode: resp.StatusCode, Err: fmt.Errorf("读取响应失败: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return &DeliveryError{Channel: channel, StatusCode: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(data)))}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &DeliveryError{Channel: channel, StatusCode: resp.StatusCode, Err: fmt.Errorf("解析响应失败: %w", err)}
	}
	return nil
}

// redactURL 去掉错误里的请求地址，地址中带有机器人令牌或签名
func redactURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s: %w", urlErr.Op, urlErr.Err)
	}
	return err
}

// ConsoleSender 控制台通知器
type ConsoleSender struct {
	out io.Writer
}

func NewConsoleSender(out io.Writer) *ConsoleSender {
	return &ConsoleSender{out: out}
}

func (cs *ConsoleSender) Send(_ context.Context, _ string, text string) error {
	const width = 60
	var b strings.Builder

	b.WriteString("╔" + strings.Repeat("═", width) + "╗\n")
	for _, line := range strings.Split(text, "\n") {
		b.WriteString("║ " + line + strings.Repeat(" ", safePadding(line, width)) + " ║\n")
	}
	b.WriteString("╚" + strings.Repeat("═", width) + "╝\n")

	_, err := io.WriteString(cs.out, b.String())
	if err != nil {
		return &DeliveryError{Channel: config.ChannelConsole, Err: err}
	}
	return nil
}

// safePadding 安全地计算填充空格数量，避免负数
func safePadding(content string, totalWidth int) int {
	// 使用utf8.RuneCountInString计算实际显示字符数，而不是字节数
	padding := totalWidth - utf8.RuneCountInString(content) - 2
	if padding < 0 {
		padding = 0
	}
	return padding
}
