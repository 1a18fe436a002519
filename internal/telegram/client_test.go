package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	client, err := New(Config{
		BaseURL:    server.URL + "/",
		Token:      "123:secret",
		HTTPClient: server.Client(),
	})
	require.NoError(t, err)
	return client
}

func TestSendMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/bot123:secret/sendMessage", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var got map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "-1001", got["chat_id"])
		assert.Equal(t, "hello", got["text"])
		assert.Equal(t, "MarkdownV2", got["parse_mode"])
		assert.Equal(t, float64(42), got["message_thread_id"])
		assert.Equal(t, true, got["disable_web_page_preview"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server)
	err := client.SendMessage(context.Background(), SendMessageRequest{
		ChatID:                "-1001",
		Text:                  "hello",
		ParseMode:             "MarkdownV2",
		MessageThreadID:       42,
		DisableWebPagePreview: true,
	})
	require.NoError(t, err)
}

func TestSendMessageOmitsEmptyThread(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.NotContains(t, string(body), "message_thread_id")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := newTestClient(t, server)
	require.NoError(t, client.SendMessage(context.Background(), SendMessageRequest{ChatID: "-1", Text: "x"}))
}

func TestNewClientDefaultsAndValidation(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	client, err := New(Config{Token: "token"})
	require.NoError(t, err)
	assert.Equal(t, defaultBaseURL, client.baseURL)
	require.NotNil(t, client.httpClient)
	assert.Equal(t, 10*time.Second, client.httpClient.Timeout)
	assert.NotNil(t, client.logger)

	client, err = New(Config{Token: "token", Timeout: 2 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, client.httpClient.Timeout)
}

func TestSendMessageValidatesRequest(t *testing.T) {
	client, err := New(Config{Token: "token", BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)

	assert.Error(t, client.SendMessage(context.Background(), SendMessageRequest{Text: "x"}))
	assert.Error(t, client.SendMessage(context.Background(), SendMessageRequest{ChatID: "-1"}))
}

func TestSendMessageAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: message thread not found"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server)
	err := client.SendMessage(context.Background(), SendMessageRequest{ChatID: "-1", Text: "x", MessageThreadID: 9})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, 400, apiErr.ErrorCode)
	assert.Contains(t, apiErr.Body, "message thread not found")
	assert.True(t, IsThreadNotFound(err))
	assert.Contains(t, err.Error(), "status=400")
}

func TestAPIErrorFormatting(t *testing.T) {
	err := decodeAPIError(http.StatusBadGateway, []byte("<html>bad gateway</html>"))
	assert.Equal(t, "telegram: http status 502: <html>bad gateway</html>", err.Error())
	assert.False(t, IsThreadNotFound(err))

	err = decodeAPIError(http.StatusForbidden, nil)
	assert.Equal(t, "telegram: http status 403", err.Error())

	assert.False(t, IsThreadNotFound(errors.New("message thread not found")))
}

func TestTransportErrorDoesNotLeakToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client, err := New(Config{Token: "123:secret", BaseURL: server.URL})
	require.NoError(t, err)

	err = client.SendMessage(context.Background(), SendMessageRequest{ChatID: "-1", Text: "x"})
	require.Error(t, err)
	assert.False(t, strings.Contains(err.Error(), "123:secret"), err.Error())
}

func TestSendMessageHonorsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client := newTestClient(t, server)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := client.SendMessage(ctx, SendMessageRequest{ChatID: "-1", Text: "x"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
