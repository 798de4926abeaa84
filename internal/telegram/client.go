// internal/telegram/client.go
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"time"
)

// Client provides the subset of Telegram Bot API operations the bot needs.
// Messages go out in HTML parse mode.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a Bot API client for the given bot token.
func NewClient(token string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    fmt.Sprintf("https://api.telegram.org/bot%s", token),
	}
}

// EscapeHTML escapes HTML special characters for safe message formatting.
func EscapeHTML(s string) string {
	return html.EscapeString(s)
}

// SetWebhook registers the webhook URL for receiving updates. The secret
// token, when set, is echoed back by Telegram in the
// X-Telegram-Bot-Api-Secret-Token header so the ingress can verify origin.
func (c *Client) SetWebhook(ctx context.Context, webhookURL, secret string) error {
	body := map[string]any{"url": webhookURL}
	if secret != "" {
		body["secret_token"] = secret
	}
	return c.makeRequest(ctx, "setWebhook", body)
}

// SendMessage sends an HTML-formatted text message to a chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	return c.makeRequest(ctx, "sendMessage", map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	})
}

// SendMessageWithInlineKeyboard sends a message with an inline keyboard.
func (c *Client) SendMessageWithInlineKeyboard(ctx context.Context, chatID int64, text string, keyboard InlineKeyboardMarkup) error {
	return c.makeRequest(ctx, "sendMessage", map[string]any{
		"chat_id":      chatID,
		"text":         text,
		"parse_mode":   "HTML",
		"reply_markup": keyboard,
	})
}

// EditMessageText replaces the text of a previously sent message, dropping
// any inline keyboard attached to it.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	return c.makeRequest(ctx, "editMessageText", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
		"parse_mode": "HTML",
	})
}

// AnswerCallbackQuery acknowledges a callback query so the client stops
// showing a progress indicator.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID string) error {
	return c.makeRequest(ctx, "answerCallbackQuery", map[string]any{
		"callback_query_id": callbackID,
	})
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
	ErrorCode   int    `json:"error_code,omitempty"`
}

func (c *Client) makeRequest(ctx context.Context, method string, body map[string]any) error {
	url := fmt.Sprintf("%s/%s", c.baseURL, method)

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	var result apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if !result.OK {
		return fmt.Errorf("telegram API error %d: %s", result.ErrorCode, result.Description)
	}
	return nil
}
