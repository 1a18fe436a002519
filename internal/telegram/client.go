// Package telegram is a minimal Bot API client for relaying text messages.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL   = "https://api.telegram.org"
	defaultUserAgent = "storefront-bridge/0.1"
	defaultTimeout   = 10 * time.Second

	// maxErrorBody caps how much of a failed response is kept on APIError.
	maxErrorBody = 4 << 10
)

// Config controls how the Telegram client behaves.
type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
	UserAgent  string
}

// Client calls the Telegram Bot API on behalf of a single bot.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	userAgent  string
}

// New creates a configured Client with sane defaults.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram: bot token is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		token:      strings.TrimSpace(cfg.Token),
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
		userAgent:  userAgent,
	}, nil
}

// SendMessageRequest mirrors the sendMessage parameters the bridge uses.
type SendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	MessageThreadID       int64  `json:"message_thread_id,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

func (r SendMessageRequest) validate() error {
	if strings.TrimSpace(r.ChatID) == "" {
		return errors.New("telegram: chat id required")
	}
	if r.Text == "" {
		return errors.New("telegram: message text required")
	}
	return nil
}

// SendMessage posts a text message. The Bot API result is discarded; callers
// only learn whether the send succeeded.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) error {
	if err := req.validate(); err != nil {
		return err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("telegram: marshal send body: %w", err)
	}
	return c.invoke(ctx, "sendMessage", body)
}

func (c *Client) invoke(ctx context.Context, method string, body []byte) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// The URL embeds the bot token; never surface it.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("telegram: http error: %w", err)
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if readErr != nil {
		return fmt.Errorf("telegram: read response: %w", readErr)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.logger.Debug("telegram call succeeded", "method", method, "status", resp.StatusCode)
		return nil
	}
	return decodeAPIError(resp.StatusCode, data)
}

func (c *Client) methodURL(method string) string {
	return c.baseURL + "/bot" + c.token + "/" + method
}

// APIError is returned for any non-2xx Bot API response.
type APIError struct {
	StatusCode  int
	ErrorCode   int
	Description string
	Body        string
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("telegram: %s (status=%d)", e.Description, e.StatusCode)
	}
	if e.Body != "" {
		return fmt.Sprintf("telegram: http status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("telegram: http status %d", e.StatusCode)
}

// ThreadNotFound reports whether Telegram rejected the message_thread_id.
func (e *APIError) ThreadNotFound() bool {
	return strings.Contains(strings.ToLower(e.Body), "message thread not found")
}

// IsThreadNotFound reports whether err is an APIError for a missing thread.
func IsThreadNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.ThreadNotFound()
}

func decodeAPIError(status int, body []byte) error {
	apiErr := &APIError{StatusCode: status, Body: string(body)}
	var parsed struct {
		ErrorCode   int    `json:"error_code"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		apiErr.ErrorCode = parsed.ErrorCode
		apiErr.Description = parsed.Description
	}
	return apiErr
}
