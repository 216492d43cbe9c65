// Package slack はSlack Incoming Webhook連携を提供する。
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"sgi/internal/domain"
)

// WebhookURLPrefix はSlack Webhook URLの必須プレフィックス。
const WebhookURLPrefix = "https://hooks.slack.com/"

// message はSlack Webhookのペイロード。
type message struct {
	Channel  string `json:"channel,omitempty"`
	Username string `json:"username,omitempty"`
	IconURL  string `json:"icon_url,omitempty"`
	Text     string `json:"text"`
}

// Client はSlack Incoming Webhookクライアント。
// 投稿先チャンネルとbotの表示情報を保持する。
type Client struct {
	webhookURL string
	channel    string
	username   string
	iconURL    string
}

// NewClient はClientインスタンスを作成する。
func NewClient(webhookURL, channel, username, iconURL string) *Client {
	return &Client{
		webhookURL: webhookURL,
		channel:    channel,
		username:   username,
		iconURL:    iconURL,
	}
}

// Send はテキストメッセージをWebhookに送信する。
// 失敗はErrDeliveryFailedとして返す。リトライは行わない。
func (c *Client) Send(ctx context.Context, text string) error {
	payload := message{
		Channel:  c.channel,
		Username: c.username,
		IconURL:  c.iconURL,
		Text:     text,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: ペイロードのJSON変換に失敗: %v", domain.ErrDeliveryFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: Webhookリクエスト作成に失敗: %v", domain.ErrDeliveryFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: Webhook送信に失敗: %v", domain.ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	// レスポンスボディを消費してリソースを解放
	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: Webhook送信失敗: %d %s", domain.ErrDeliveryFailed, resp.StatusCode, string(respBody))
	}

	slog.Debug("Webhook送信成功", "chars", len(text))
	return nil
}
