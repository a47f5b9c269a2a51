// Package notify implements the delivery-channel backends.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/svitlobot/svitlo/core/logger"
	"github.com/svitlobot/svitlo/core/notify"
)

// TelegramConfig holds the Bot API connection settings.
type TelegramConfig struct {
	Token string `json:"token"`
	// APIBaseURL overrides the Bot API host, mainly for tests.
	APIBaseURL string `json:"api_base_url"`
}

// SetDefaults applies the public Bot API host.
func (c *TelegramConfig) SetDefaults() {
	if c.APIBaseURL == "" {
		c.APIBaseURL = "https://api.telegram.org"
	}
}

// Validate checks mandatory fields.
func (c TelegramConfig) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("telegram token is required")
	}
	return nil
}

// TelegramChannel delivers messages through the Telegram Bot API. The
// recipient ID is the chat ID.
type TelegramChannel struct {
	cfg    TelegramConfig
	client *http.Client
	log    logger.Logger
}

// NewTelegramChannel builds the channel with the standard request timeout.
func NewTelegramChannel(cfg TelegramConfig, log logger.Logger) (*TelegramChannel, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &TelegramChannel{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}, nil
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send implements notify.Channel. When escape is true the text is
// backslash-escaped and sent with strict MarkdownV2 rendering.
func (t *TelegramChannel) Send(ctx context.Context, recipientID, text string, escape bool) error {
	req := sendMessageRequest{ChatID: recipientID, Text: text}
	if escape {
		req.Text = notify.Escape(text)
		req.ParseMode = "MarkdownV2"
	}
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.cfg.APIBaseURL, t.cfg.Token)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("telegram send to %s: %w", recipientID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var apiResp sendMessageResponse
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("telegram send to %s: read response: %w", recipientID, err)
	}
	if err := json.Unmarshal(data, &apiResp); err != nil {
		return fmt.Errorf("telegram send to %s: status %d", recipientID, resp.StatusCode)
	}
	if !apiResp.OK {
		return fmt.Errorf("telegram send to %s: %s", recipientID, apiResp.Description)
	}
	return nil
}

// Close implements the optional closer; the HTTP client holds nothing.
func (t *TelegramChannel) Close() error { return nil }
