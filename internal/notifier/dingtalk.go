package notifier

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dex-gem-sentry/pkg/config"
	"dex-gem-sentry/pkg/types"
)

// DingTalkSender 钉钉通知器
type DingTalkSender struct {
	webhookURL string
	secret     string
	httpClient *http.Client
	now        func() time.Time
}

// DingTalkMessage 钉钉消息结构
type DingTalkMessage struct {
	MsgType  string            `json:"msgtype"`
	Markdown *DingTalkMarkdown `json:"markdown,omitempty"`
	At       *DingTalkAt       `json:"at,omitempty"`
}

type DingTalkMarkdown struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

type DingTalkAt struct {
	AtAll bool `json:"isAtAll"`
}

// DingTalkResponse 钉钉API响应
type DingTalkResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

func NewDingTalkSender(dingTalkConfig types.DingTalkConfig, httpClient *http.Client) *DingTalkSender {
	return &DingTalkSender{
		webhookURL: dingTalkConfig.WebhookURL,
		secret:     dingTalkConfig.Secret,
		httpClient: httpClient,
		now:        time.Now,
	}
}

// Send 发送钉钉Markdown消息，to 不使用
func (dts *DingTalkSender) Send(ctx context.Context, _ string, text string) error {
	title := text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		title = text[:i]
	}

	message := &DingTalkMessage{
		MsgType: "markdown",
		Markdown: &DingTalkMarkdown{
			Title: title,
			// 钉钉Markdown需要两个空格加换行才能换行
			Text: strings.ReplaceAll(text, "\n", "  \n"),
		},
		At: &DingTalkAt{AtAll: false},
	}

	var resp DingTalkResponse
	if err := postJSON(ctx, dts.httpClient, config.ChannelDingTalk, dts.buildSignedURL(), message, &resp); err != nil {
		return err
	}
	if resp.ErrCode != 0 {
		return &DeliveryError{
			Channel: config.ChannelDingTalk,
			Err:     fmt.Errorf("钉钉API错误 [%d]: %s", resp.ErrCode, resp.ErrMsg),
		}
	}
	return nil
}

// generateSignature 生成钉钉加签
func (dts *DingTalkSender) generateSignature(timestamp int64) string {
	// 按照文档要求: timestamp + "\n" + secret
	stringToSign := fmt.Sprintf("%d\n%s", timestamp, dts.secret)

	h := hmac.New(sha256.New, []byte(dts.secret))
	h.Write([]byte(stringToSign))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// buildSignedURL 构建带签名的URL
func (dts *DingTalkSender) buildSignedURL() string {
	if dts.secret == "" {
		return dts.webhookURL
	}

	timestamp := dts.now().UnixMilli()
	separator := "&"
	if !strings.Contains(dts.webhookURL, "?") {
		separator = "?"
	}

	return fmt.Sprintf("%s%stimestamp=%d&sign=%s",
		dts.webhookURL, separator, timestamp, url.QueryEscape(dts.generateSignature(timestamp)))
}
