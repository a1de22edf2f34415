package solana

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
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
	// SubscribeTimeout bounds the wait for a subscription confirmation.
	SubscribeTimeout time.Duration
	// BufferSize is the capacity of each subscription channel.
	BufferSize int
	// Logger receives connection-level events. Nil disables logging.
	Logger *zerolog.Logger
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  30 * time.Second,
		BufferSize:        10000,
	}
}

// subscription is one active server-side subscription and its delivery channel.
// Exactly one of logs and accounts is set.
type subscription struct {
	method   string
	params   []interface{}
	logs     chan LogNotification
	accounts chan AccountNotification
}

func (s *subscription) close() {
	if s.logs != nil {
		close(s.logs)
	}
	if s.accounts != nil {
		close(s.accounts)
	}
}

// WSClientImpl implements WSClient using gorilla/websocket.
type WSClientImpl struct {
	endpoint string
	config   WSClientConfig
	logger   zerolog.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// active holds every confirmed subscription in creation order. It is the set
	// re-issued after a reconnect. Guarded by subscribeMu.
	active      []*subscription
	subscribeMu sync.Mutex

	// subs routes server subscription IDs of the current connection to subscriptions.
	subs   map[int64]*subscription
	subsMu sync.RWMutex

	// pendingSubs maps request ID to the subscription awaiting its server ID
	pendingSubs   map[uint64]*pendingSub
	pendingSubsMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
	backoff      atomic.Int64 // next reconnect delay in nanoseconds
}

// Compile-time interface check.
var _ WSClient = (*WSClientImpl)(nil)

// NewWSClient creates a new WebSocket client and connects to the endpoint.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClientImpl, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	defaults := DefaultWSConfig()
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaults.ReconnectDelay
	}
	if cfg.MaxReconnectDelay < cfg.ReconnectDelay {
		cfg.MaxReconnectDelay = max(defaults.MaxReconnectDelay, cfg.ReconnectDelay)
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaults.PingInterval
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaults.BufferSize
	}
	if cfg.SubscribeTimeout <= 0 {
		cfg.SubscribeTimeout = defaults.SubscribeTimeout
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "ws").Logger()
	}

	c := &WSClientImpl{
		endpoint:    endpoint,
		config:      cfg,
		logger:      logger,
		subs:        make(map[int64]*subscription),
		pendingSubs: make(map[uint64]*pendingSub),
		done:        make(chan struct{}),
	}
	c.backoff.Store(int64(cfg.ReconnectDelay))

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

// connect establishes WebSocket connection.
func (c *WSClientImpl) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.conn = conn
	return nil
}

func commitmentOrDefault(c Commitment) Commitment {
	if c == "" {
		return CommitmentConfirmed
	}
	return c
}

// SubscribeLogs subscribes to program logs matching the filter.
func (c *WSClientImpl) SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error) {
	var mentions interface{} = "all"
	if len(filter.Mentions) > 0 {
		mentions = map[string]interface{}{"mentions": filter.Mentions}
	}

	sub := &subscription{
		method: "logsSubscribe",
		params: []interface{}{
			mentions,
			map[string]interface{}{"commitment": commitmentOrDefault(filter.Commitment)},
		},
		logs: make(chan LogNotification, c.config.BufferSize),
	}
	if err := c.subscribe(ctx, sub); err != nil {
		return nil, err
	}
	return sub.logs, nil
}

// SubscribeProgram subscribes to account updates for accounts owned by the program.
func (c *WSClientImpl) SubscribeProgram(ctx context.Context, filter ProgramFilter) (<-chan AccountNotification, error) {
	config := map[string]interface{}{
		"commitment": commitmentOrDefault(filter.Commitment),
		"encoding":   "base64",
	}
	if filter.DataSize > 0 {
		config["filters"] = []interface{}{
			map[string]interface{}{"dataSize": filter.DataSize},
		}
	}

	sub := &subscription{
		method:   "programSubscribe",
		params:   []interface{}{filter.ProgramID, config},
		accounts: make(chan AccountNotification, c.config.BufferSize),
	}
	if err := c.subscribe(ctx, sub); err != nil {
		return nil, err
	}
	return sub.accounts, nil
}

// pendingSub is a subscribe request waiting for confirmation.
type pendingSub struct {
	sub     *subscription
	confirm chan subscribeResult
}

// subscribeResult carries either the server subscription ID or the server's error.
type subscribeResult struct {
	id  int64
	err error
}

// subscribe sends the request, waits until sub is registered under its server ID and
// adds it to the set restored on reconnect.
func (c *WSClientImpl) subscribe(ctx context.Context, sub *subscription) error {
	c.subscribeMu.Lock()
	defer c.subscribeMu.Unlock()

	if _, err := c.request(ctx, sub); err != nil {
		return err
	}
	c.active = append(c.active, sub)
	return nil
}

// request writes a subscribe request and waits for the subscription ID. The read loop
// registers sub under that ID before any later notification is dispatched.
func (c *WSClientImpl) request(ctx context.Context, sub *subscription) (int64, error) {
	if c.closed.Load() {
		return 0, fmt.Errorf("client closed")
	}

	method := sub.method
	reqID := c.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  sub.params,
	}

	confirmCh := make(chan subscribeResult, 1)
	c.pendingSubsMu.Lock()
	c.pendingSubs[reqID] = &pendingSub{sub: sub, confirm: confirmCh}
	c.pendingSubsMu.Unlock()

	forget := func() {
		c.pendingSubsMu.Lock()
		delete(c.pendingSubs, reqID)
		c.pendingSubsMu.Unlock()
	}

	c.connMu.Lock()
	if c.conn == nil {
		c.connMu.Unlock()
		forget()
		return 0, fmt.Errorf("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := c.conn.WriteJSON(req)
	c.connMu.Unlock()

	if err != nil {
		forget()
		return 0, fmt.Errorf("write %s: %w", method, err)
	}

	timer := time.NewTimer(c.config.SubscribeTimeout)
	defer timer.Stop()

	select {
	case res, ok := <-confirmCh:
		if !ok {
			return 0, fmt.Errorf("client closed")
		}
		if res.err != nil {
			return 0, fmt.Errorf("%s: %w", method, res.err)
		}
		return res.id, nil
	case <-timer.C:
		forget()
		return 0, fmt.Errorf("%s timeout after %s", method, c.config.SubscribeTimeout)
	case <-c.done:
		return 0, fmt.Errorf("client closed")
	case <-ctx.Done():
		forget()
		return 0, ctx.Err()
	}
}

// Close closes the WebSocket connection and every subscription channel.
func (c *WSClientImpl) Close() error {
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

	// Dispatch runs on the read loop, so channels are closed only after it exits.
	c.wg.Wait()

	c.subscribeMu.Lock()
	for _, sub := range c.active {
		sub.close()
	}
	c.active = nil
	c.subscribeMu.Unlock()

	c.subsMu.Lock()
	c.subs = make(map[int64]*subscription)
	c.subsMu.Unlock()

	c.pendingSubsMu.Lock()
	for id, p := range c.pendingSubs {
		close(p.confirm)
		delete(c.pendingSubs, id)
	}
	c.pendingSubsMu.Unlock()

	return nil
}

// readLoop reads messages from WebSocket and dispatches to subscribers. A missing or
// failed connection schedules a reconnect with exponential backoff.
func (c *WSClientImpl) readLoop() {
	defer c.wg.Done()

	var failed *websocket.Conn
	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil || conn == failed {
			c.scheduleReconnect(conn, nil)
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			failed = conn
			c.scheduleReconnect(conn, err)
			continue
		}

		c.handleMessage(message)
	}
}

// scheduleReconnect starts one reconnect attempt unless one is already running.
func (c *WSClientImpl) scheduleReconnect(broken *websocket.Conn, cause error) {
	if c.reconnecting.Swap(true) {
		return
	}

	delay := time.Duration(c.backoff.Load())
	c.backoff.Store(int64(min(delay*2, c.config.MaxReconnectDelay)))

	c.logger.Warn().Err(cause).Dur("delay", delay).Msg("connection lost, reconnecting")
	c.wg.Add(1)
	go c.reconnect(broken, delay)
}

// dropConn closes conn if it is still the current connection.
func (c *WSClientImpl) dropConn(conn *websocket.Conn) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if conn != nil && c.conn == conn {
		c.conn.Close()
		c.conn = nil
	}
}

// reconnect replaces the broken connection and resubscribes everything. If any
// subscription cannot be restored the new connection is dropped, so the read loop
// schedules another attempt with a longer delay.
func (c *WSClientImpl) reconnect(broken *websocket.Conn, delay time.Duration) {
	defer c.wg.Done()
	defer c.reconnecting.Store(false)

	select {
	case <-c.done:
		return
	case <-time.After(delay):
	}

	c.dropConn(broken)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("reconnect failed")
		return
	}

	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()

	if c.closed.Load() {
		c.dropConn(conn)
		return
	}

	// resubscribeAll waits on confirmations delivered by the read loop, so it runs here
	// rather than on the read loop itself.
	n, err := c.resubscribeAll()
	if err != nil {
		c.logger.Warn().Err(err).Msg("resubscribe failed, dropping connection")
		c.dropConn(conn)
		return
	}

	c.backoff.Store(int64(c.config.ReconnectDelay))
	c.logger.Info().Int("subscriptions", n).Msg("resubscribed")
}

// resubscribeAll re-issues every active subscription on the current connection. IDs
// from the previous connection are discarded first, so a server that hands out the
// same IDs in a different order still routes each notification to its own channel.
func (c *WSClientImpl) resubscribeAll() (int, error) {
	c.subscribeMu.Lock()
	defer c.subscribeMu.Unlock()

	c.subsMu.Lock()
	c.subs = make(map[int64]*subscription, len(c.active))
	c.subsMu.Unlock()

	for _, sub := range c.active {
		if _, err := c.request(context.Background(), sub); err != nil {
			return 0, fmt.Errorf("resubscribe: %w", err)
		}
	}
	return len(c.active), nil
}

// handleMessage processes incoming WebSocket message.
func (c *WSClientImpl) handleMessage(message []byte) {
	var resp wsSubscribeResponse
	if err := json.Unmarshal(message, &resp); err == nil && resp.ID > 0 && resp.Result != nil {
		c.handleSubscribeResponse(&resp)
		return
	}

	var notif wsNotification
	if err := json.Unmarshal(message, &notif); err == nil && notif.Params != nil {
		switch notif.Method {
		case "logsNotification":
			c.handleLogsNotification(&notif)
			return
		case "programNotification":
			c.handleProgramNotification(&notif)
			return
		}
	}

	var errResp struct {
		ID    uint64 `json:"id"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(message, &errResp); err == nil && errResp.Error != nil {
		c.failPending(errResp.ID, fmt.Errorf("rpc error %d: %s", errResp.Error.Code, errResp.Error.Message))
		c.logger.Error().
			Uint64("request_id", errResp.ID).
			Int("code", errResp.Error.Code).
			Str("message", errResp.Error.Message).
			Msg("error response")
	}
}

// handleSubscribeResponse registers the confirmed subscription and wakes its requester.
func (c *WSClientImpl) handleSubscribeResponse(resp *wsSubscribeResponse) {
	c.pendingSubsMu.Lock()
	p, ok := c.pendingSubs[resp.ID]
	if ok {
		delete(c.pendingSubs, resp.ID)
	}
	c.pendingSubsMu.Unlock()

	if !ok {
		return
	}

	subID := *resp.Result
	c.subsMu.Lock()
	c.subs[subID] = p.sub
	c.subsMu.Unlock()

	select {
	case p.confirm <- subscribeResult{id: subID}:
	default:
	}
}

// failPending completes a waiting subscribe request with err.
func (c *WSClientImpl) failPending(reqID uint64, err error) {
	c.pendingSubsMu.Lock()
	p, ok := c.pendingSubs[reqID]
	if ok {
		delete(c.pendingSubs, reqID)
	}
	c.pendingSubsMu.Unlock()

	if !ok {
		return
	}
	select {
	case p.confirm <- subscribeResult{err: err}:
	default:
	}
}

func (c *WSClientImpl) lookup(subID int64) *subscription {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	return c.subs[subID]
}

// handleLogsNotification dispatches log notification to subscriber.
func (c *WSClientImpl) handleLogsNotification(notif *wsNotification) {
	sub := c.lookup(notif.Params.Subscription)
	if sub == nil || sub.logs == nil {
		return
	}

	var value wsLogsValue
	if err := json.Unmarshal(notif.Params.Result.Value, &value); err != nil {
		c.logger.Warn().Err(err).Msg("decode logs notification")
		return
	}

	n := LogNotification{
		Signature: value.Signature,
		Logs:      value.Logs,
		Err:       value.Err,
	}
	if notif.Params.Result.Context != nil {
		n.Slot = notif.Params.Result.Context.Slot
	}

	// Block until delivered: never drop events.
	select {
	case sub.logs <- n:
	case <-c.done:
	}
}

// handleProgramNotification dispatches an account update to subscriber.
func (c *WSClientImpl) handleProgramNotification(notif *wsNotification) {
	sub := c.lookup(notif.Params.Subscription)
	if sub == nil || sub.accounts == nil {
		return
	}

	var value wsProgramValue
	if err := json.Unmarshal(notif.Params.Result.Value, &value); err != nil {
		c.logger.Warn().Err(err).Msg("decode program notification")
		return
	}

	n := AccountNotification{
		Pubkey: value.Pubkey,
		Owner:  value.Account.Owner,
	}
	if notif.Params.Result.Context != nil {
		n.Slot = notif.Params.Result.Context.Slot
	}
	if len(value.Account.Data) > 0 {
		data, err := base64.StdEncoding.DecodeString(value.Account.Data[0])
		if err != nil {
			c.logger.Warn().Err(err).Str("pubkey", value.Pubkey).Msg("decode account data")
			return
		}
		n.Data = data
	}

	select {
	case sub.accounts <- n:
	case <-c.done:
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *WSClientImpl) pingLoop() {
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
				// A dead connection surfaces as a read error; the read loop reconnects.
				_ = c.conn.WriteMessage(websocket.PingMessage, nil)
			}
			c.connMu.Unlock()
		}
	}
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsSubscribeResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Result  *int64 `json:"result"` // subscription ID
}

type wsNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       wsNotificationResult `json:"result"`
}

type wsNotificationResult struct {
	Context *wsContext      `json:"context"`
	Value   json.RawMessage `json:"value"`
}

type wsContext struct {
	Slot int64 `json:"slot"`
}

type wsLogsValue struct {
	Signature string      `json:"signature"`
	Logs      []string    `json:"logs"`
	Err       interface{} `json:"err"`
}

type wsProgramValue struct {
	Pubkey  string `json:"pubkey"`
	Account struct {
		Owner string   `json:"owner"`
		Data  []string `json:"data"` // [base64_data, encoding]
	} `json:"account"`
}
