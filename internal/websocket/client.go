package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rofiliofernandes/somudai/internal/logger"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024

	// DefaultSendBufferSize is the outbound queue length per connection
	DefaultSendBufferSize = 256
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
)

// Client is a Handle backed by a coder/websocket connection. Outbound frames
// go through a bounded queue drained by WritePump, so Send never waits on
// the network.
type Client struct {
	id   string
	conn *websocket.Conn

	// Buffered channel of outbound messages
	send chan []byte

	// Connection metadata, reported through Lifecycle.Sessions
	LastPingAt time.Time
	RemoteAddr string
	UserAgent  string

	rateLimiter *RateLimiter

	// Cancelled once the write side is done; stops ReadPump
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// RateLimiter implements a simple token bucket rate limiter
type RateLimiter struct {
	tokens    float64
	maxTokens float64
	refill    float64
	lastTime  time.Time
	mu        sync.Mutex
}

// RateLimitConfig defines inbound rate limiting per connection
type RateLimitConfig struct {
	MaxMessagesPerSecond int
	BurstSize            int
}

// DefaultRateLimitConfig returns sensible defaults
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxMessagesPerSecond: 10,
		BurstSize:            20,
	}
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(maxPerSecond int, burst int) *RateLimiter {
	return &RateLimiter{
		tokens:    float64(burst),
		maxTokens: float64(burst),
		refill:    float64(maxPerSecond),
		lastTime:  time.Now(),
	}
}

// Allow checks if an action is allowed and consumes a token
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(r.lastTime).Seconds()
	r.lastTime = now

	r.tokens += elapsed * r.refill
	if r.tokens > r.maxTokens {
		r.tokens = r.maxTokens
	}

	if r.tokens >= 1 {
		r.tokens--
		return true
	}
	return false
}

// NewClient wraps an accepted connection. conn may be nil in tests that only
// exercise the queue.
func NewClient(conn *websocket.Conn, bufferSize int, limits RateLimitConfig) *Client {
	if bufferSize <= 0 {
		bufferSize = DefaultSendBufferSize
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		id:          uuid.New().String(),
		conn:        conn,
		send:        make(chan []byte, bufferSize),
		rateLimiter: NewRateLimiter(limits.MaxMessagesPerSecond, limits.BurstSize),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// ID returns the connection id
func (c *Client) ID() string {
	return c.id
}

// ReadPump reads frames until the connection fails or the client is closed,
// handing each decoded frame to onFrame. It returns when reading stops.
func (c *Client) ReadPump(onFrame func(*Message), onError func(code, message string)) {
	c.conn.SetReadLimit(maxMessageSize)

	for {
		readCtx, readCancel := context.WithTimeout(c.ctx, pongWait)
		_, data, err := c.conn.Read(readCtx)
		readCancel()

		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.Log.Debug("Client disconnected normally", logger.WithConnID(c.id))
			} else if c.ctx.Err() == nil {
				logger.Log.Warn("Read error for client", logger.WithConnID(c.id), zap.Error(err))
			}
			return
		}

		if !c.rateLimiter.Allow() {
			onError("rate_limited", "Too many messages, please slow down")
			continue
		}

		var message Message
		if err := json.Unmarshal(data, &message); err != nil {
			logger.Log.Debug("WebSocket JSON parse error", logger.WithConnID(c.id), zap.Error(err))
			onError("invalid_json", "Failed to parse message")
			continue
		}
		if message.Timestamp.IsZero() {
			message.Timestamp = FlexibleTime{Time: time.Now().UTC()}
		}

		onFrame(&message)
	}
}

// WritePump drains the send queue onto the socket and keeps the connection
// alive with pings. When the queue is closed it flushes what is left and
// closes the socket normally.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
		c.cancel()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				c.conn.Close(websocket.StatusNormalClosure, "closing")
				return
			}

			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, data)
			cancel()

			if err != nil {
				logger.Log.Debug("Write error for client", logger.WithConnID(c.id), zap.Error(err))
				c.conn.CloseNow()
				return
			}

		case <-ticker.C:
			c.mu.Lock()
			c.LastPingAt = time.Now()
			c.mu.Unlock()

			ctx, cancel := context.WithTimeout(c.ctx, writeWait)
			err := c.conn.Ping(ctx)
			cancel()

			if err != nil {
				logger.Log.Debug("Ping failed for client", logger.WithConnID(c.id), zap.Error(err))
				c.conn.CloseNow()
				return
			}
		}
	}
}

// Send enqueues a frame without blocking
func (c *Client) Send(message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrConnectionClosed
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// SendError sends an error frame to the client
func (c *Client) SendError(code, message string) {
	_ = c.Send(NewErrorMessage(code, message))
}

// Close stops accepting frames. Queued frames are still flushed by WritePump.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// IsOpen reports whether the client still accepts frames
func (c *Client) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

// Pending returns the number of queued outbound frames
func (c *Client) Pending() int {
	return len(c.send)
}

// describe fills the transport details of a session report
func (c *Client) describe(info *SessionInfo) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.LastPingAt.IsZero() {
		last := c.LastPingAt
		info.LastPingAt = &last
	}
	info.RemoteAddr = c.RemoteAddr
	info.UserAgent = c.UserAgent
	info.Pending = c.Pending()
}
