package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"dex-gem-sentry/pkg/config"
	"dex-gem-sentry/pkg/types"
)

// TelegramSender Telegram机器人通知器
type TelegramSender struct {
	botToken   string
	apiURL     string
	httpClient *http.Client
}

type telegramRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

func NewTelegramSender(telegramConfig types.TelegramConfig, httpClient *http.Client) *TelegramSender {
	apiURL := strings.TrimRight(telegramConfig.APIURL, "/")
	if apiURL == "" {
		apiURL = "https://api.telegram.org"
	}
	return &TelegramSender{
		botToken:   telegramConfig.BotToken,
		apiURL:     apiURL,
		httpClient: httpClient,
	}
}

// Send 调用 Bot API sendMessage
func (ts *TelegramSender) Send(ctx context.Context, to, text string) error {
	if to == "" {
		return &DeliveryError{Channel: config.ChannelTelegram, Err: errors.New("chat id is empty")}
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", ts.apiURL, ts.botToken)
	req := telegramRequest{
		ChatID:                to,
		Text:                  text,
		DisableWebPagePreview: true,
	}

	var resp telegramResponse
	if err := postJSON(ctx, ts.httpClient, config.ChannelTelegram, endpoint, req, &resp); err != nil {
		return err
	}
	if !resp.OK {
		return &DeliveryError{
			Channel: config.ChannelTelegram,
			Err:     fmt.Errorf("Telegram API错误 [%d]: %s", resp.ErrorCode, resp.Description),
		}
	}
	return nil
}
