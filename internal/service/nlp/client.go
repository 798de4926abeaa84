// internal/service/nlp/client.go
package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	xerrors "subwatch-service/internal/pkg/errors"
)

// Extraction is the collaborator's best-effort structured guess for a piece
// of free text. Missing fields stay at their zero values.
type Extraction struct {
	Intent     string  `json:"intent"`
	Service    string  `json:"service,omitempty"`
	Amount     float64 `json:"amount,omitempty"`
	Currency   string  `json:"currency,omitempty"`
	Period     string  `json:"period,omitempty"`
	Confidence float64 `json:"confidence"`
}

const systemPrompt = `You are an assistant that extracts structured data from user messages about recurring subscriptions.
Respond with ONLY a valid JSON object matching this schema:
{"intent":"add|delete|list|stats|unknown","service":"...","amount":12.99,"currency":"USD","period":"monthly","confidence":0.9}
Rules:
1. Only include fields you can extract from the message.
2. For amounts, extract the numeric value only.
3. period is one of: daily, weekly, monthly, yearly.
4. confidence is your overall certainty between 0 and 1.
5. Respond with ONLY the JSON object, no other text.`

// Client talks to an OpenAI-compatible chat-completions endpoint and asks
// it to interpret subscription messages. Calls are cached so repeated
// identical messages do not hit the collaborator again.
type Client struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
	cache      *Cache
	logger     *zap.Logger
}

func NewClient(endpoint, apiKey, model string, timeout time.Duration, cache *Cache, logger *zap.Logger) *Client {
	return &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		cache:      cache,
		logger:     logger,
	}
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	MaxTokens      int           `json:"max_tokens"`
	ResponseFormat responseFmt   `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFmt struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Extract interprets free text into a structured extraction. A transport
// error, timeout, or unusable response comes back as ErrNLPUnavailable so
// the caller can fall back to deterministic matching.
func (c *Client) Extract(ctx context.Context, text string) (*Extraction, error) {
	if c.endpoint == "" {
		return nil, fmt.Errorf("%w: no endpoint configured", xerrors.ErrNLPUnavailable)
	}

	if c.cache != nil {
		if cached, ok := c.cache.Get(ctx, text); ok {
			return cached, nil
		}
	}

	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: text},
		},
		Temperature:    0.2,
		MaxTokens:      400,
		ResponseFormat: responseFmt{Type: "json_object"},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("nlp request failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", xerrors.ErrNLPUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("nlp request rejected", zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: status %d", xerrors.ErrNLPUnavailable, resp.StatusCode)
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("%w: undecodable response", xerrors.ErrNLPUnavailable)
	}
	if len(cr.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty response", xerrors.ErrNLPUnavailable)
	}

	var ex Extraction
	if err := json.Unmarshal([]byte(cr.Choices[0].Message.Content), &ex); err != nil {
		c.logger.Warn("nlp returned non-JSON content", zap.Error(err))
		return nil, fmt.Errorf("%w: malformed extraction", xerrors.ErrNLPUnavailable)
	}

	if c.cache != nil {
		c.cache.Set(ctx, text, &ex)
	}
	return &ex, nil
}
