/**
 * @description
 * WebSocket client for the venue's real-time stream.
 * Manages the persistent connection, topic subscriptions, and keep-alive logic.
 *
 * Key features:
 * - Explicit state machine: Disconnected -> Connecting -> Subscribed.
 * - Automatic reconnection with exponential backoff on abnormal closes.
 * - Re-issues every topic subscription after a reconnect.
 * - Thread-safe writing.
 *
 * @dependencies
 * - github.com/gorilla/websocket
 * - backend/internal/logger
 */

package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/veristat-project/backend/internal/logger"
)

const (
	WriteWait  = 10 * time.Second
	PongWait   = 60 * time.Second
	PingPeriod = (PongWait * 9) / 10

	// Reconnect policy: exponential backoff, capped, bounded attempts per
	// disconnection. Normal closes never reconnect.
	InitialReconnectDelay = 1 * time.Second
	MaxReconnectDelay     = 30 * time.Second
	MaxConnectRetries     = 5
)

// State is the ingestor's connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateSubscribed   State = "subscribed"
)

// Subscription is one topic subscription request.
type Subscription struct {
	Topic    string `json:"topic"`
	Market   string `json:"market,omitempty"`
	Interval string `json:"interval,omitempty"`
}

// subscribeMessage is the wire frame for a subscription request.
type subscribeMessage struct {
	Method       string       `json:"method"` // "subscribe"
	Subscription Subscription `json:"subscription"`
}

// Client maintains the single persistent stream connection for one session.
type Client struct {
	url     string
	handler *Handler

	mu   sync.Mutex
	conn *websocket.Conn
	done chan struct{}

	// loopWG tracks the read loop; Close waits on it so no handler is
	// mid-flight when Close returns.
	loopWG sync.WaitGroup

	stateMu sync.RWMutex
	state   State

	// subscriptions holds every topic to (re)issue on connect
	subMu         sync.Mutex
	subscriptions []Subscription

	// reconnecting prevents multiple simultaneous reconnection attempts
	reconnectMu  sync.Mutex
	reconnecting bool
}

// NewClient creates a stream client for the given endpoint and known
// instrument set: one subscription per global topic plus two per instrument
// (1h candles, trades).
func NewClient(url string, handler *Handler, markets []string) *Client {
	subs := []Subscription{
		{Topic: TopicPrices},
		{Topic: TopicActiveUsers},
	}
	for _, market := range markets {
		subs = append(subs,
			Subscription{Topic: TopicCandle, Market: market, Interval: "1h"},
			Subscription{Topic: TopicTrades, Market: market},
		)
	}

	return &Client{
		url:           url,
		handler:       handler,
		done:          make(chan struct{}),
		state:         StateDisconnected,
		subscriptions: subs,
	}
}

// State reports the current connection state.
func (c *Client) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// Connect establishes the connection, issues all subscriptions, and starts the
// read loop. Blocks until connected or retries are exhausted.
func (c *Client) Connect(ctx context.Context) error {
	return c.connectWithRetry(ctx)
}

func (c *Client) connectWithRetry(ctx context.Context) error {
	var err error
	backoff := InitialReconnectDelay

	for i := 0; i < MaxConnectRetries; i++ {
		select {
		case <-ctx.Done():
			c.setState(StateDisconnected)
			return ctx.Err()
		case <-c.done:
			c.setState(StateDisconnected)
			return fmt.Errorf("client closed")
		default:
		}

		c.setState(StateConnecting)
		logger.Info("Connecting to venue stream: %s (attempt %d)", c.url, i+1)

		var conn *websocket.Conn
		conn, _, err = websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err == nil {
			// Store the connection and re-check done under the same lock so a
			// concurrent Close either sees this connection or we see its done.
			c.mu.Lock()
			select {
			case <-c.done:
				c.mu.Unlock()
				conn.Close()
				c.setState(StateDisconnected)
				return fmt.Errorf("client closed")
			default:
			}
			c.conn = conn
			c.mu.Unlock()

			if err = c.sendSubscriptions(); err != nil {
				logger.Error("Failed to subscribe: %v", err)
				conn.Close()
			} else {
				c.setState(StateSubscribed)
				logger.Info("✅ Subscribed to venue stream (%d topics)", c.subscriptionCount())

				connDone := make(chan struct{})
				c.loopWG.Add(1)
				go c.readLoop(ctx, conn, connDone)
				go c.pingLoop(ctx, conn, connDone)
				return nil
			}
		}

		logger.Error("Stream connect failed: %v. Retrying in %v...", err, backoff)
		select {
		case <-ctx.Done():
			c.setState(StateDisconnected)
			return ctx.Err()
		case <-c.done:
			c.setState(StateDisconnected)
			return fmt.Errorf("client closed")
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > MaxReconnectDelay {
			backoff = MaxReconnectDelay
		}
	}

	c.setState(StateDisconnected)
	return fmt.Errorf("failed to connect after %d attempts: %w", MaxConnectRetries, err)
}

func (c *Client) subscriptionCount() int {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	return len(c.subscriptions)
}

// sendSubscriptions issues every registered subscription on the live connection.
func (c *Client) sendSubscriptions() error {
	c.subMu.Lock()
	subs := append([]Subscription(nil), c.subscriptions...)
	c.subMu.Unlock()

	for _, sub := range subs {
		if err := c.writeJSON(subscribeMessage{Method: "subscribe", Subscription: sub}); err != nil {
			return err
		}
	}
	return nil
}

// writeJSON sends a JSON message to the websocket thread-safely
func (c *Client) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("connection is nil")
	}

	c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
	return c.conn.WriteJSON(v)
}

// Close tears the client down and waits for the read loop to exit, so no
// handler fires and no store mutation happens after Close returns.
func (c *Client) Close() error {
	select {
	case <-c.done:
		return nil
	default:
	}
	close(c.done)
	c.setState(StateDisconnected)

	c.mu.Lock()
	var err error
	if c.conn != nil {
		err = c.conn.Close()
	}
	c.mu.Unlock()

	// An in-flight message handler finishes before this returns.
	c.loopWG.Wait()
	return err
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, connDone chan struct{}) {
	defer c.loopWG.Done()

	var normalClose bool

	defer func() {
		close(connDone)
		conn.Close()
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		c.setState(StateDisconnected)

		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		if normalClose {
			// Server said goodbye cleanly. Stay disconnected.
			logger.Info("Stream closed normally, not reconnecting")
			return
		}

		// Abnormal close: reconnect with backoff unless one is already running.
		c.reconnectMu.Lock()
		if c.reconnecting {
			c.reconnectMu.Unlock()
			return
		}
		c.reconnecting = true
		c.reconnectMu.Unlock()

		logger.Info("Stream connection lost, reconnecting...")
		go func() {
			defer func() {
				c.reconnectMu.Lock()
				c.reconnecting = false
				c.reconnectMu.Unlock()
			}()
			if err := c.connectWithRetry(ctx); err != nil {
				logger.Error("Stream reconnection failed: %v", err)
			}
		}()
	}()

	conn.SetReadLimit(1024 * 1024)
	conn.SetReadDeadline(time.Now().Add(PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(PongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
			_, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					normalClose = true
				} else if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway) {
					logger.Error("Stream read error: %v", err)
				}
				return
			}

			// Handlers run inline: the store serializes its own mutations and
			// ordering within one connection is preserved.
			if err := c.handler.HandleMessage(message); err != nil {
				logger.Error("Stream message dropped: %v", err)
			}
		}
	}
}

// pingLoop keeps exactly the connection it was started for alive. It exits as
// soon as that connection's read loop ends, so a reconnect never leaves a
// stale ping loop behind.
func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn, connDone chan struct{}) {
	ticker := time.NewTicker(PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-connDone:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.conn != conn {
				c.mu.Unlock()
				return
			}
			conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()
		}
	}
}
