// Package client talks to the datachat server: conversation and message
// calls over REST, and the answer stream over SSE or a websocket.
package client

import (
	"bufio"
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

	"github.com/gorilla/websocket"

	"github.com/wilbur182/datachat/internal/conversation"
)

// Transports for the event feed.
const (
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
)

// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	workspace  string
	token      string
	transport  string
	httpClient *http.Client
	dialer     *websocket.Dialer
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTransport selects the event feed transport.
func WithTransport(transport string) Option {
	return func(c *Client) { c.transport = transport }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for skipped feed events.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a client for baseURL. workspace scopes every call when set.
// The HTTP client carries no overall timeout since the event feed is long
// lived; callers bound request/response calls through ctx.
func New(baseURL, workspace string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		workspace:  workspace,
		transport:  TransportSSE,
		httpClient: &http.Client{},
		dialer:     websocket.DefaultDialer,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CreateConversation creates an empty conversation.
func (c *Client) CreateConversation(ctx context.Context) (conversation.Conversation, error) {
	var out conversation.Conversation
	if err := c.do(ctx, "create conversation", http.MethodPost, "/api/conversations", nil, &out); err != nil {
		return conversation.Conversation{}, err
	}
	if out.ID == "" {
		return conversation.Conversation{}, errors.New("datachat: create conversation: response carried no id")
	}
	return out, nil
}

// SendMessage dispatches content. The acknowledgment is only a receipt; the
// answer arrives on the event feed.
func (c *Client) SendMessage(ctx context.Context, conversationID, content string) (conversation.SendAck, error) {
	var ack conversation.SendAck
	path := fmt.Sprintf("/api/conversations/%s/messages", url.PathEscape(conversationID))
	body := MessageSendRequest{ConversationID: conversationID, Content: content}
	if err := c.do(ctx, "send message", http.MethodPost, path, body, &ack); err != nil {
		return conversation.SendAck{}, err
	}
	return ack, nil
}

// UpdateConversation patches title and/or pin state.
func (c *Client) UpdateConversation(ctx context.Context, id string, patch conversation.ConversationPatch) error {
	path := fmt.Sprintf("/api/conversations/%s", url.PathEscape(id))
	return c.do(ctx, "update conversation", http.MethodPatch, path, patch, nil)
}

// CancelGeneration asks the server to stop the answer in progress.
func (c *Client) CancelGeneration(ctx context.Context, conversationID string) error {
	var out CancelResponse
	path := fmt.Sprintf("/api/conversations/%s/cancel", url.PathEscape(conversationID))
	return c.do(ctx, "cancel generation", http.MethodPost, path, nil, &out)
}

// ListConversations returns the conversation list in server order.
func (c *Client) ListConversations(ctx context.Context) ([]conversation.Conversation, error) {
	var out ConversationListResponse
	if err := c.do(ctx, "list conversations", http.MethodGet, "/api/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListMessages returns the history of a conversation.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]conversation.Message, error) {
	var out MessageListResponse
	path := fmt.Sprintf("/api/conversations/%s/messages", url.PathEscape(conversationID))
	if err := c.do(ctx, "list messages", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Ping checks that the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/health", nil)
	if err != nil {
		return fmt.Errorf("datachat: ping: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("datachat: server unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse("ping", resp)
	}
	return nil
}

// Events subscribes to the feed with the configured transport and decodes
// it. The channel closes when the feed ends or ctx is done; callers
// reconnect by calling Events again.
func (c *Client) Events(ctx context.Context) (<-chan conversation.Event, error) {
	var (
		raw <-chan SSEEvent
		err error
	)
	if c.transport == TransportWebSocket {
		raw, err = c.StreamWebSocket(ctx)
	} else {
		raw, err = c.StreamEvents(ctx)
	}
	if err != nil {
		return nil, err
	}

	out := make(chan conversation.Event)
	go func() {
		defer close(out)
		for ev := range raw {
			decoded, ok, err := DecodeEvent(ev)
			if err != nil {
				c.logger.Warn("skipping malformed event", "event", ev.Event, "id", ev.ID, "err", err)
				continue
			}
			if !ok {
				continue
			}
			select {
			case out <- decoded:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// StreamEvents opens the SSE feed at /api/events.
func (c *Client) StreamEvents(ctx context.Context) (<-chan SSEEvent, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/events", nil)
	if err != nil {
		return nil, fmt.Errorf("datachat: stream events: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("datachat: stream events: request failed (is the server running?): %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, c.parseErrorResponse("stream events", resp)
	}

	ch := make(chan SSEEvent)

	go func() {
		defer close(ch)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		emit := func(ev SSEEvent) bool {
			if ev.empty() {
				return true
			}
			select {
			case <-ctx.Done():
				return false
			case ch <- ev:
				return true
			}
		}

		var current SSEEvent
		for scanner.Scan() {
			line := strings.TrimRight(scanner.Text(), "\r")
			if line == "" {
				if !emit(current) {
					return
				}
				current = SSEEvent{}
				continue
			}
			current.apply(line)
		}

		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			c.logger.Debug("event stream ended", "err", err)
		}
		_ = emit(current)
	}()

	return ch, nil
}

// StreamWebSocket opens the websocket feed at /api/ws. Each text frame is a
// JSON object {"event": ..., "id": ..., "data": {...}}.
func (c *Client) StreamWebSocket(ctx context.Context) (<-chan SSEEvent, error) {
	wsURL, err := c.websocketURL("/api/ws")
	if err != nil {
		return nil, fmt.Errorf("datachat: stream websocket: %w", err)
	}

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, resp, err := c.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, c.parseErrorResponse("stream websocket", resp)
		}
		return nil, fmt.Errorf("datachat: stream websocket: dial failed (is the server running?): %w", err)
	}

	ch := make(chan SSEEvent)

	// Closing the connection unblocks ReadMessage when ctx ends.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

	go func() {
		defer close(ch)
		defer stop()
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.logger.Debug("websocket feed ended", "err", err)
				}
				return
			}

			var frame WSFrame
			if err := json.Unmarshal(data, &frame); err != nil {
				c.logger.Warn("skipping malformed websocket frame", "err", err)
				continue
			}

			select {
			case ch <- SSEEvent{Event: frame.Event, ID: frame.ID, Data: string(frame.Data)}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

// do sends in as JSON and decodes the response into out when out is non-nil.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("datachat: %s: encode request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return fmt.Errorf("datachat: %s: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("datachat: %s: request failed (is the server running?): %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.parseErrorResponse(op, resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("datachat: %s: decode response: %w", op, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) parseErrorResponse(operation string, resp *http.Response) error {
	apiErr := &APIError{Op: operation, StatusCode: resp.StatusCode}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("datachat: %s: status %d: read error body: %w", operation, resp.StatusCode, err)
	}

	var decoded ErrorResponse
	if err := json.Unmarshal(body, &decoded); err == nil && decoded.Error != "" {
		apiErr.Message = decoded.Error
		apiErr.Code = decoded.Code
		return apiErr
	}

	apiErr.Message = strings.TrimSpace(string(body))
	return apiErr
}

func (c *Client) url(path string) string {
	if c.workspace == "" {
		return c.baseURL + path
	}
	return fmt.Sprintf("%s%s?workspace=%s", c.baseURL, path, url.QueryEscape(c.workspace))
}

func (c *Client) websocketURL(path string) (string, error) {
	u, err := url.Parse(c.url(path))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	return u.String(), nil
}
