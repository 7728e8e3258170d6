package ethereum

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// HeadsConfig configures the new-heads subscriber.
type HeadsConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultHeadsConfig returns default subscriber configuration.
func DefaultHeadsConfig() HeadsConfig {
	return HeadsConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// Head is a new-block notification.
type Head struct {
	Number    uint64
	Hash      string
	Timestamp uint64
}

// HeadsSubscriber maintains an eth_subscribe("newHeads") WebSocket
// subscription and delivers block headers as they are mined. It is used
// as a trigger for the execution poller so confirmations land within a
// block of being mined instead of waiting for the next poll interval.
type HeadsSubscriber struct {
	endpoint string
	config   HeadsConfig

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// subID is the active subscription ID, empty until confirmed
	subID   string
	subIDMu sync.Mutex

	heads chan Head

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
}

// NewHeadsSubscriber connects to the endpoint and subscribes to newHeads.
func NewHeadsSubscriber(ctx context.Context, endpoint string, config *HeadsConfig) (*HeadsSubscriber, error) {
	cfg := DefaultHeadsConfig()
	if config != nil {
		cfg = *config
	}

	s := &HeadsSubscriber{
		endpoint: endpoint,
		config:   cfg,
		heads:    make(chan Head, 64),
		done:     make(chan struct{}),
	}

	if err := s.connect(ctx); err != nil {
		return nil, err
	}
	if err := s.subscribe(); err != nil {
		s.conn.Close()
		return nil, err
	}

	s.wg.Add(1)
	go s.readLoop()

	s.wg.Add(1)
	go s.pingLoop()

	return s, nil
}

// Heads returns the channel of new block headers. The channel is closed
// when the subscriber is closed.
func (s *HeadsSubscriber) Heads() <-chan Head {
	return s.heads
}

// connect establishes the WebSocket connection.
func (s *HeadsSubscriber) connect(ctx context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	s.conn = conn
	return nil
}

// subscribe sends the eth_subscribe request. The confirmation is handled
// by readLoop, which records the subscription ID.
func (s *HeadsSubscriber) subscribe() error {
	req := headsRequest{
		JSONRPC: "2.0",
		ID:      s.requestID.Add(1),
		Method:  "eth_subscribe",
		Params:  []interface{}{"newHeads"},
	}

	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return fmt.Errorf("not connected")
	}

	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := s.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}
	return nil
}

// Close closes the connection and the heads channel.
func (s *HeadsSubscriber) Close() error {
	if s.closed.Swap(true) {
		return nil // Already closed
	}

	close(s.done)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	close(s.heads)
	return nil
}

// readLoop reads messages and dispatches headers to the heads channel.
func (s *HeadsSubscriber) readLoop() {
	defer s.wg.Done()

	reconnectDelay := s.config.ReconnectDelay

	for !s.closed.Load() {
		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		if conn == nil {
			select {
			case <-s.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}

			if !s.reconnecting.Swap(true) {
				go s.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > s.config.MaxReconnectDelay {
				reconnectDelay = s.config.MaxReconnectDelay
			}

			select {
			case <-s.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		// Reset delay on successful read
		reconnectDelay = s.config.ReconnectDelay

		s.handleMessage(message)
	}
}

// reconnect re-establishes the connection and resubscribes.
func (s *HeadsSubscriber) reconnect(delay time.Duration) {
	defer s.reconnecting.Store(false)

	if s.closed.Load() {
		return
	}

	select {
	case <-s.done:
		return
	case <-time.After(delay):
	}

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.connect(ctx); err != nil {
		// Reconnect failed, will retry on next read error
		return
	}

	s.subIDMu.Lock()
	s.subID = ""
	s.subIDMu.Unlock()

	if err := s.subscribe(); err != nil {
		// Resubscribe failed, reader will trigger another reconnect
		return
	}
}

// handleMessage processes an incoming WebSocket message.
func (s *HeadsSubscriber) handleMessage(message []byte) {
	// Subscription confirmation carries a string result
	var resp headsSubscribeResponse
	if err := json.Unmarshal(message, &resp); err == nil && resp.Result != "" {
		s.subIDMu.Lock()
		s.subID = resp.Result
		s.subIDMu.Unlock()
		return
	}

	var notif headsNotification
	if err := json.Unmarshal(message, &notif); err != nil || notif.Method != "eth_subscription" {
		return
	}
	if notif.Params == nil {
		return
	}

	s.subIDMu.Lock()
	active := s.subID
	s.subIDMu.Unlock()

	if active != "" && notif.Params.Subscription != active {
		return
	}

	number, err := HexToUint64(notif.Params.Result.Number)
	if err != nil {
		return
	}
	timestamp, _ := HexToUint64(notif.Params.Result.Timestamp)

	head := Head{
		Number:    number,
		Hash:      notif.Params.Result.Hash,
		Timestamp: timestamp,
	}

	// Drop when the consumer is behind; a head is only a poll trigger
	// and the next one carries fresher state anyway
	select {
	case s.heads <- head:
	default:
	}
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (s *HeadsSubscriber) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.connMu.Lock()
			if s.conn != nil {
				s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
				if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Connection might be dead, reader will handle reconnect
				}
			}
			s.connMu.Unlock()
		}
	}
}

// WebSocket message types

type headsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type headsSubscribeResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Result  string `json:"result"` // subscription ID
}

type headsNotification struct {
	JSONRPC string                 `json:"jsonrpc"`
	Method  string                 `json:"method"`
	Params  *headsNotificationBody `json:"params"`
}

type headsNotificationBody struct {
	Subscription string     `json:"subscription"`
	Result       headsValue `json:"result"`
}

type headsValue struct {
	Number    string `json:"number"`
	Hash      string `json:"hash"`
	Timestamp string `json:"timestamp"`
}
