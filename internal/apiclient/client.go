// Package apiclient is the HTTP client used by the somudai command line tool.
package apiclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/rofiliofernandes/somudai/internal/models"
	"github.com/rofiliofernandes/somudai/internal/telemetry"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const userAgent = "Somudai-CLI/0.1.0"

// Hook is called around every request when set (used for --verbose)
type Hook func(msg string, keyvals ...interface{})

// Client wraps a resty client bound to one server and one bearer token
type Client struct {
	http *resty.Client
}

// New builds a client for baseURL. An empty token sends no Authorization header.
func New(baseURL, token string, timeout time.Duration, debug Hook) *Client {
	rc := resty.NewWithClient(telemetry.NewInstrumentedHTTPClient(timeout))
	rc.JSONMarshal = json.Marshal
	rc.JSONUnmarshal = json.Unmarshal
	rc.SetBaseURL(baseURL)
	rc.SetHeader("User-Agent", userAgent)
	if token != "" {
		rc.SetAuthToken(token)
	}

	if debug != nil {
		rc.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			debug("HTTP Request", "method", req.Method, "url", req.URL)
			return nil
		})
		rc.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
			debug("HTTP Response", "status", resp.StatusCode(), "duration", resp.Time())
			return nil
		})
	}

	return &Client{http: rc}
}

// ConversationSummary is one row of the conversation list
type ConversationSummary struct {
	ID            string              `json:"id"`
	PeerID        string              `json:"peer_id"`
	Peer          *models.UserSummary `json:"peer,omitempty"`
	Online        bool                `json:"online"`
	MessageCount  int64               `json:"message_count"`
	LastMessageAt *time.Time          `json:"last_message_at,omitempty"`
}

type sendResponse struct {
	Success    bool            `json:"success"`
	NewMessage *models.Message `json:"newMessage"`
}

type messagesResponse struct {
	Success  bool              `json:"success"`
	Messages []*HistoryMessage `json:"messages"`
}

// HistoryMessage is a stored message with its sender's public details
type HistoryMessage struct {
	models.Message
	Sender *models.UserSummary `json:"sender,omitempty"`
}

// From names the sender by username when the server included it
func (m *HistoryMessage) From() string {
	if m.Sender != nil && m.Sender.Username != "" {
		return m.Sender.Username
	}
	return m.SenderID
}

type conversationsResponse struct {
	Success       bool                  `json:"success"`
	Conversations []ConversationSummary `json:"conversations"`
}

type onlineResponse struct {
	Statuses map[string]bool `json:"statuses"`
}

// SendMessage posts a direct message to receiverID
func (c *Client) SendMessage(ctx context.Context, receiverID, text string) (*models.Message, error) {
	var out sendResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", receiverID).
		SetBody(map[string]string{"message": text}).
		SetResult(&out).
		Post("/api/v1/message/{id}")
	if err := CheckResponse(resp, err); err != nil {
		return nil, err
	}
	if out.NewMessage == nil {
		return nil, fmt.Errorf("server returned no message")
	}
	return out.NewMessage, nil
}

// GetMessages fetches the history with peerID, oldest first
func (c *Client) GetMessages(ctx context.Context, peerID string) ([]*HistoryMessage, error) {
	var out messagesResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", peerID).
		SetResult(&out).
		Get("/api/v1/message/{id}")
	if err := CheckResponse(resp, err); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// ListConversations returns the caller's conversations, most recent first
func (c *Client) ListConversations(ctx context.Context, limit int) ([]ConversationSummary, error) {
	var out conversationsResponse
	req := c.http.R().SetContext(ctx).SetResult(&out)
	if limit > 0 {
		req.SetQueryParam("limit", fmt.Sprint(limit))
	}
	resp, err := req.Get("/api/v1/message")
	if err := CheckResponse(resp, err); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

// OnlineStatus asks which of userIDs currently hold an identified connection
func (c *Client) OnlineStatus(ctx context.Context, userIDs []string) (map[string]bool, error) {
	var out onlineResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string][]string{"user_ids": userIDs}).
		SetResult(&out).
		Post("/api/v1/ws/online")
	if err := CheckResponse(resp, err); err != nil {
		return nil, err
	}
	return out.Statuses, nil
}

// Health reports whether the server answers /health
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/health")
	return CheckResponse(resp, err)
}
