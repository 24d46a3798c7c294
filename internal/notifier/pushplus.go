package notifier

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"dex-gem-sentry/pkg/config"
	"dex-gem-sentry/pkg/types"
)

// PushPlusSender PushPlus通知器
type PushPlusSender struct {
	userToken  string
	apiURL     string
	httpClient *http.Client
}

type PushPlusRequest struct {
	Token    string `json:"token"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Template string `json:"template"`
	To       string `json:"to,omitempty"` // 好友令牌，多人用逗号分隔
}

type PushPlusResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func NewPushPlusSender(pushPlusConfig types.PushPlusConfig, httpClient *http.Client) *PushPlusSender {
	apiURL := pushPlusConfig.APIURL
	if apiURL == "" {
		apiURL = "http://www.pushplus.plus/send"
	}
	return &PushPlusSender{
		userToken:  pushPlusConfig.UserToken,
		apiURL:     apiURL,
		httpClient: httpClient,
	}
}

// Send 发送PushPlus消息，to 为好友令牌，为空时推送给自己
func (pps *PushPlusSender) Send(ctx context.Context, to, text string) error {
	title := text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		title = text[:i]
	}

	req := PushPlusRequest{
		Token:    pps.userToken,
		Title:    title,
		Content:  text,
		Template: "txt",
		To:       to,
	}

	var resp PushPlusResponse
	if err := postJSON(ctx, pps.httpClient, config.ChannelPushPlus, pps.apiURL, req, &resp); err != nil {
		return err
	}
	if resp.Code != 200 {
		return &DeliveryError{
			Channel: config.ChannelPushPlus,
			Err:     fmt.Errorf("PushPlus API错误 [%d]: %s", resp.Code, resp.Msg),
		}
	}
	return nil
}
