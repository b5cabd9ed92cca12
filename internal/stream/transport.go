package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/TrueFaxx/polymarketbot/internal/signal"
)

// Transport abstracts the real-time connection the follower consumes.
// Receive must return an error when no traffic (including server pings)
// arrives within the heartbeat window, so the follower can reconnect.
type Transport interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, wallet string) error
	Receive(ctx context.Context) (signal.Event, error)
	Close() error
}

const (
	defaultHeartbeat = 30 * time.Second
	pingEvery        = 15 * time.Second
	handshakeTimeout = 10 * time.Second
	maxMessageSize   = 1 << 20
)

// WSTransport implements Transport over a websocket subscription stream.
type WSTransport struct {
	url       string
	heartbeat time.Duration
	log       zerolog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	done chan struct{}
}

// NewWSTransport dials nothing yet; Connect establishes the session.
func NewWSTransport(url string, heartbeat time.Duration, log zerolog.Logger) *WSTransport {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &WSTransport{url: url, heartbeat: heartbeat, log: log}
}

// Connect dials the endpoint and starts the keepalive ping loop.
func (t *WSTransport) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", t.url, err)
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(t.heartbeat))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(t.heartbeat))
		return nil
	})

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pingEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					t.log.Warn().Err(err).Msg("keepalive ping failed")
					return
				}
			case <-done:
				return
			}
		}
	}()

	t.mu.Lock()
	t.conn = conn
	t.done = done
	t.mu.Unlock()
	t.log.Info().Str("url", t.url).Msg("stream connected")
	return nil
}

type subscribeMsg struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	Wallet  string `json:"wallet"`
}

// Subscribe requests the target wallet's trade events.
func (t *WSTransport) Subscribe(_ context.Context, wallet string) error {
	conn := t.current()
	if conn == nil {
		return fmt.Errorf("subscribe before connect")
	}
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(subscribeMsg{Type: "subscribe", Channel: "user", Wallet: wallet}); err != nil {
		return fmt.Errorf("send subscription: %w", err)
	}
	return nil
}

type wsEnvelope struct {
	Type       string  `json:"type"`
	Wallet     string  `json:"wallet"`
	Market     string  `json:"market"`
	MarketName string  `json:"market_name"`
	Side       string  `json:"side"`
	Size       float64 `json:"size"`
	Price      float64 `json:"price"`
	TxHash     string  `json:"tx_hash"`
	Timestamp  int64   `json:"timestamp"`
	Message    string  `json:"message"`
}

// Receive blocks until the next trade event. Non-trade frames (pongs, acks,
// errors) are consumed internally. A heartbeat timeout surfaces as a read
// error.
func (t *WSTransport) Receive(ctx context.Context) (signal.Event, error) {
	conn := t.current()
	if conn == nil {
		return signal.Event{}, fmt.Errorf("receive before connect")
	}
	for {
		if err := ctx.Err(); err != nil {
			return signal.Event{}, err
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return signal.Event{}, err
		}
		conn.SetReadDeadline(time.Now().Add(t.heartbeat))

		var env wsEnvelope
		if err := json.Unmarshal(message, &env); err != nil {
			t.log.Warn().Err(err).Msg("failed to decode stream message")
			continue
		}
		switch env.Type {
		case "trade", "user_trade":
			return eventFromEnvelope(env), nil
		case "error":
			t.log.Warn().Str("message", env.Message).Msg("stream error frame")
		default:
			// pong / subscription acks
		}
	}
}

func eventFromEnvelope(env wsEnvelope) signal.Event {
	side := signal.Buy
	if strings.EqualFold(env.Side, "sell") {
		side = signal.Sell
	}
	return signal.Event{
		Wallet:        env.Wallet,
		Market:        env.Market,
		MarketName:    env.MarketName,
		Side:          side,
		Size:          env.Size,
		Price:         env.Price,
		CorrelationID: env.TxHash,
		EventTime:     normalizeTimestamp(env.Timestamp),
	}
}

// normalizeTimestamp accepts seconds or milliseconds since the epoch; the
// upstream API emits either depending on endpoint version.
func normalizeTimestamp(ts int64) time.Time {
	if ts <= 0 {
		return time.Now()
	}
	if ts < 10_000_000_000 {
		return time.Unix(ts, 0)
	}
	return time.UnixMilli(ts)
}

func (t *WSTransport) current() *websocket.Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn
}

// Close stops the ping loop and closes the connection.
func (t *WSTransport) Close() error {
	t.mu.Lock()
	conn, done := t.conn, t.done
	t.conn, t.done = nil, nil
	t.mu.Unlock()

	if done != nil {
		close(done)
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}
