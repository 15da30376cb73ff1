package multisig

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"wallet-notifier/internal/domain"
)

// ClientConfig tunes the connection to the multisig service.
type ClientConfig struct {
	ReconnectDelay    time.Duration // first backoff step
	MaxReconnectDelay time.Duration // backoff ceiling
	PingInterval      time.Duration
	ReadTimeout       time.Duration // no frame within this window drops the link
	WriteTimeout      time.Duration
	RequestTimeout    time.Duration // wait for a subscribe confirmation
}

// DefaultConfig suits a service that pushes rarely but keeps the link warm.
func DefaultConfig() ClientConfig {
	return ClientConfig{
		ReconnectDelay:    time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      20 * time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      10 * time.Second,
		RequestTimeout:    15 * time.Second,
	}
}

// Client implements Source using gorilla/websocket.
type Client struct {
	endpoint string
	config   ClientConfig
	logger   *log.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// accounts is the watched set, replayed after reconnect
	accounts   []string
	accountsMu sync.RWMutex

	// subs maps local subscriber id to its delivery channel
	subs   map[uint64]*subscriber
	subsMu sync.RWMutex
	subID  atomic.Uint64

	// pending maps request ID to channel waiting for confirmation
	pending   map[uint64]chan *wsResponse
	pendingMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
}

type subscriber struct {
	ch   chan domain.SignatureRequest
	done <-chan struct{}
}

// NewClient creates a client and connects to endpoint.
func NewClient(ctx context.Context, endpoint string, config *ClientConfig, logger *log.Logger) (*Client, error) {
	cfg := DefaultConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = log.New(os.Stdout, "[multisig] ", log.LstdFlags)
	}

	c := &Client{
		endpoint: endpoint,
		config:   cfg,
		logger:   logger,
		subs:     make(map[uint64]*subscriber),
		pending:  make(map[uint64]chan *wsResponse),
		done:     make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(1)
	go c.readLoop()

	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

func (c *Client) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.config.WriteTimeout}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial multisig %s: %w", c.endpoint, err)
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	})

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	return nil
}

// SubscribeSignatureRequests registers a subscriber. The channel is closed
// when the client is closed.
func (c *Client) SubscribeSignatureRequests(ctx context.Context) (<-chan domain.SignatureRequest, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("client closed")
	}

	id := c.subID.Add(1)
	sub := &subscriber{
		ch:   make(chan domain.SignatureRequest, 64),
		done: ctx.Done(),
	}

	c.subsMu.Lock()
	c.subs[id] = sub
	c.subsMu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-c.done:
			return
		}
		c.subsMu.Lock()
		delete(c.subs, id)
		c.subsMu.Unlock()
	}()

	return sub.ch, nil
}

// SetAccounts replaces the watched accounts and waits for the service to
// confirm the subscription.
func (c *Client) SetAccounts(ctx context.Context, accountIDs []string) error {
	accounts := append([]string(nil), accountIDs...)
	sort.Strings(accounts)

	c.accountsMu.Lock()
	c.accounts = accounts
	c.accountsMu.Unlock()

	return c.subscribeAccounts(ctx, accounts)
}

// subscribeAccounts sends a subscribe request for accounts.
func (c *Client) subscribeAccounts(ctx context.Context, accounts []string) error {
	resp, err := c.request(ctx, "subscribe", map[string]any{"accounts": accounts})
	if err != nil {
		return fmt.Errorf("subscribe %d accounts: %w", len(accounts), err)
	}
	if resp.Error != nil {
		return resp.Error
	}
	return nil
}

// request writes one request and waits for its response.
func (c *Client) request(ctx context.Context, method string, params any) (*wsResponse, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("client closed")
	}

	reqID := c.requestID.Add(1)
	req := wsRequest{
		ID:     reqID,
		Method: method,
		Params: params,
	}

	confirmCh := make(chan *wsResponse, 1)
	c.pendingMu.Lock()
	c.pending[reqID] = confirmCh
	c.pendingMu.Unlock()

	c.connMu.Lock()
	if c.conn == nil {
		c.connMu.Unlock()
		c.dropPending(reqID)
		return nil, fmt.Errorf("not connected")
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := c.conn.WriteJSON(req)
	c.connMu.Unlock()

	if err != nil {
		c.dropPending(reqID)
		return nil, fmt.Errorf("write %s: %w", method, err)
	}

	select {
	case resp, ok := <-confirmCh:
		if !ok {
			return nil, fmt.Errorf("client closed")
		}
		return resp, nil
	case <-time.After(c.config.RequestTimeout):
		c.dropPending(reqID)
		return nil, fmt.Errorf("%s timeout after %s", method, c.config.RequestTimeout)
	case <-c.done:
		return nil, fmt.Errorf("client closed")
	case <-ctx.Done():
		c.dropPending(reqID)
		return nil, ctx.Err()
	}
}

func (c *Client) dropPending(reqID uint64) {
	c.pendingMu.Lock()
	delete(c.pending, reqID)
	c.pendingMu.Unlock()
}

// Close closes the WebSocket connection.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()

	c.pendingMu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()

	// readLoop has exited, no sender remains
	c.subsMu.Lock()
	for id, sub := range c.subs {
		close(sub.ch)
		delete(c.subs, id)
	}
	c.subsMu.Unlock()

	return nil
}

// readLoop owns the read side of the connection. A failed read hands the
// connection to reconnect and backs off exponentially until frames flow again.
func (c *Client) readLoop() {
	defer c.wg.Done()

	backoff := c.config.ReconnectDelay
	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			c.startReconnect(backoff, nil)
			if !c.pause() {
				return
			}
			continue
		}

		_ = conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			c.startReconnect(backoff, err)
			backoff = min(backoff*2, c.config.MaxReconnectDelay)
			if !c.pause() {
				return
			}
			continue
		}

		backoff = c.config.ReconnectDelay
		c.handleMessage(frame)
	}
}

func (c *Client) startReconnect(delay time.Duration, cause error) {
	if c.reconnecting.Swap(true) {
		return
	}
	if cause != nil {
		c.logger.Printf("read: %v (reconnect in %s)", cause, delay)
	}
	go c.reconnect(delay)
}

// pause waits briefly between read attempts. It reports false once the
// client is closed.
func (c *Client) pause() bool {
	select {
	case <-c.done:
		return false
	case <-time.After(100 * time.Millisecond):
		return true
	}
}

// reconnect replaces the connection and replays the account subscription.
func (c *Client) reconnect(delay time.Duration) {
	defer c.reconnecting.Store(false)

	if c.closed.Load() {
		return
	}

	select {
	case <-c.done:
		return
	case <-time.After(delay):
	}

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		c.logger.Printf("reconnect: %v", err)
		return
	}

	c.accountsMu.RLock()
	accounts := c.accounts
	c.accountsMu.RUnlock()
	if accounts == nil {
		return
	}

	// The response is read by readLoop, so this must not run on it.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.config.RequestTimeout)
		defer cancel()
		if err := c.subscribeAccounts(ctx, accounts); err != nil {
			c.logger.Printf("resubscribe: %v", err)
		}
	}()
}

// handleMessage processes one incoming message.
func (c *Client) handleMessage(message []byte) {
	var msg wsMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Printf("decode message: %v", err)
		return
	}

	switch {
	case msg.Event != "":
		c.handleEvent(msg.Event, msg.Payload)
	case msg.ID > 0:
		c.handleResponse(&wsResponse{ID: msg.ID, Result: msg.Result, Error: msg.Error})
	}
}

func (c *Client) handleResponse(resp *wsResponse) {
	c.pendingMu.Lock()
	ch, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.pendingMu.Unlock()

	if ok {
		select {
		case ch <- resp:
		default:
		}
	}
}

// handleEvent dispatches added requests to every subscriber. Updates and
// submissions are not new requests and are dropped.
func (c *Client) handleEvent(name string, payload json.RawMessage) {
	if name != EventTransactionAdded {
		return
	}

	var req domain.SignatureRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		c.logger.Printf("decode %s: %v", name, err)
		return
	}

	c.subsMu.RLock()
	subs := make([]*subscriber, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.subsMu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.ch <- req:
		case <-sub.done:
		case <-c.done:
			return
		}
	}
}

// pingLoop keeps idle links from being cut by proxies.
func (c *Client) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				_ = c.conn.WriteMessage(websocket.PingMessage, nil)
			}
			c.connMu.Unlock()
		}
	}
}

type wsRequest struct {
	ID     uint64 `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

type wsResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *wsError        `json:"error,omitempty"`
}

type wsError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *wsError) Error() string {
	return fmt.Sprintf("multisig error %d: %s", e.Code, e.Message)
}

// wsMessage is the union of responses and pushed events.
type wsMessage struct {
	ID      uint64          `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *wsError        `json:"error,omitempty"`
	Event   string          `json:"event,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

var _ Source = (*Client)(nil)
