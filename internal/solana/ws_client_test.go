package solana

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newWSServer runs handle for every upgraded connection and returns the ws:// URL.
func newWSServer(t *testing.T, handle func(conn *websocket.Conn)) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		handle(conn)
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// drain keeps the connection open until the client goes away.
func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// confirm reads one subscribe request and answers it with subID.
func confirm(t *testing.T, conn *websocket.Conn, subID int64) (wsRequest, bool) {
	t.Helper()
	var req wsRequest
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return req, false
	}
	if err := json.Unmarshal(msg, &req); err != nil {
		t.Errorf("unmarshal request: %v", err)
		return req, false
	}
	if err := conn.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": subID}); err != nil {
		t.Errorf("write response: %v", err)
		return req, false
	}
	return req, true
}

func notify(t *testing.T, conn *websocket.Conn, method string, subID int64, slot int64, value interface{}) {
	t.Helper()
	err := conn.WriteJSON(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  method,
		"params": map[string]interface{}{
			"subscription": subID,
			"result": map[string]interface{}{
				"context": map[string]interface{}{"slot": slot},
				"value":   value,
			},
		},
	})
	if err != nil {
		t.Errorf("write notification: %v", err)
	}
}

func TestWSClient_Connect(t *testing.T) {
	wsURL := newWSServer(t, drain)

	client, err := NewWSClient(context.Background(), wsURL, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	if client.closed.Load() {
		t.Error("client should not be closed")
	}
}

func TestWSClient_SubscribeLogs(t *testing.T) {
	requests := make(chan wsRequest, 1)

	wsURL := newWSServer(t, func(c *websocket.Conn) {
		req, ok := confirm(t, c, 12345)
		if !ok {
			return
		}
		requests <- req

		notify(t, c, "logsNotification", 12345, 100, map[string]interface{}{
			"signature": "testsig",
			"logs":      []string{"Program log: initialize2"},
			"err":       nil,
		})
		drain(c)
	})

	ctx := context.Background()
	client, err := NewWSClient(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	ch, err := client.SubscribeLogs(ctx, LogsFilter{
		Mentions:   []string{"testprogram"},
		Commitment: CommitmentFinalized,
	})
	if err != nil {
		t.Fatalf("SubscribeLogs: %v", err)
	}

	req := <-requests
	if req.Method != "logsSubscribe" {
		t.Errorf("expected logsSubscribe, got %s", req.Method)
	}
	cfg, _ := req.Params[1].(map[string]interface{})
	if cfg["commitment"] != "finalized" {
		t.Errorf("expected finalized commitment, got %v", cfg["commitment"])
	}

	select {
	case notif := <-ch:
		if notif.Signature != "testsig" {
			t.Errorf("expected testsig, got %s", notif.Signature)
		}
		if len(notif.Logs) != 1 {
			t.Errorf("expected 1 log, got %d", len(notif.Logs))
		}
		if notif.Slot != 100 {
			t.Errorf("expected slot 100, got %d", notif.Slot)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for notification")
	}
}

func TestWSClient_SubscriptionIDZero(t *testing.T) {
	wsURL := newWSServer(t, func(c *websocket.Conn) {
		if _, ok := confirm(t, c, 0); !ok {
			return
		}
		notify(t, c, "logsNotification", 0, 7, map[string]interface{}{"signature": "s0", "logs": []string{}})
		drain(c)
	})

	ctx := context.Background()
	client, err := NewWSClient(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	ch, err := client.SubscribeLogs(ctx, LogsFilter{Mentions: []string{"p"}})
	if err != nil {
		t.Fatalf("SubscribeLogs: %v", err)
	}

	select {
	case notif := <-ch:
		if notif.Signature != "s0" {
			t.Errorf("expected s0, got %s", notif.Signature)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for notification")
	}
}

func TestWSClient_SubscribeProgram(t *testing.T) {
	requests := make(chan wsRequest, 1)
	data := []byte{0x73, 0x65, 0x72, 0x75, 0x6d, 1, 2, 3}

	wsURL := newWSServer(t, func(c *websocket.Conn) {
		req, ok := confirm(t, c, 77)
		if !ok {
			return
		}
		requests <- req

		notify(t, c, "programNotification", 77, 200, map[string]interface{}{
			"pubkey": "market1",
			"account": map[string]interface{}{
				"owner":    "openbook",
				"lamports": 1,
				"data":     []string{base64.StdEncoding.EncodeToString(data), "base64"},
			},
		})
		drain(c)
	})

	ctx := context.Background()
	client, err := NewWSClient(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	ch, err := client.SubscribeProgram(ctx, ProgramFilter{ProgramID: "openbook", DataSize: 388})
	if err != nil {
		t.Fatalf("SubscribeProgram: %v", err)
	}

	req := <-requests
	if req.Method != "programSubscribe" {
		t.Errorf("expected programSubscribe, got %s", req.Method)
	}
	if req.Params[0] != "openbook" {
		t.Errorf("expected program id param, got %v", req.Params[0])
	}
	cfg, _ := req.Params[1].(map[string]interface{})
	filters, _ := cfg["filters"].([]interface{})
	if len(filters) != 1 {
		t.Fatalf("expected one filter, got %v", cfg["filters"])
	}
	if size := filters[0].(map[string]interface{})["dataSize"]; size != float64(388) {
		t.Errorf("expected dataSize 388, got %v", size)
	}

	select {
	case notif := <-ch:
		if notif.Pubkey != "market1" || notif.Owner != "openbook" || notif.Slot != 200 {
			t.Errorf("unexpected notification: %+v", notif)
		}
		if string(notif.Data) != string(data) {
			t.Errorf("unexpected data: %v", notif.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for notification")
	}
}

func TestWSClient_SubscribeErrorResponse(t *testing.T) {
	wsURL := newWSServer(t, func(c *websocket.Conn) {
		var req wsRequest
		if err := c.ReadJSON(&req); err != nil {
			return
		}
		c.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   map[string]interface{}{"code": -32602, "message": "Invalid params"},
		})
		drain(c)
	})

	cfg := DefaultWSConfig()
	cfg.SubscribeTimeout = 10 * time.Second

	ctx := context.Background()
	client, err := NewWSClient(ctx, wsURL, &cfg)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	start := time.Now()
	_, err = client.SubscribeLogs(ctx, LogsFilter{Mentions: []string{"p"}})
	if err == nil {
		t.Fatal("expected subscription error")
	}
	if !strings.Contains(err.Error(), "Invalid params") {
		t.Errorf("expected server error message, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("error response should fail the request immediately, took %v", elapsed)
	}
}

// reconnectConfig keeps reconnect delays short enough for tests.
func reconnectConfig() *WSClientConfig {
	cfg := DefaultWSConfig()
	cfg.ReconnectDelay = 20 * time.Millisecond
	cfg.MaxReconnectDelay = 100 * time.Millisecond
	cfg.SubscribeTimeout = 2 * time.Second
	return &cfg
}

// confirmByMethod answers n subscribe requests, picking each subscription ID by method.
func confirmByMethod(t *testing.T, conn *websocket.Conn, n int, ids map[string]int64) bool {
	t.Helper()
	for i := 0; i < n; i++ {
		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			return false
		}
		id, ok := ids[req.Method]
		if !ok {
			t.Errorf("unexpected method %s", req.Method)
			return false
		}
		if err := conn.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": id}); err != nil {
			return false
		}
	}
	return true
}

func TestWSClient_ResubscribesAfterDrop(t *testing.T) {
	var conns atomic.Int32
	wsURL := newWSServer(t, func(c *websocket.Conn) {
		switch conns.Add(1) {
		case 1:
			// Confirm, then drop the connection.
			confirm(t, c, 7)
		case 2:
			req, ok := confirm(t, c, 8)
			if !ok {
				return
			}
			if req.Method != "logsSubscribe" {
				t.Errorf("expected logsSubscribe on reconnect, got %s", req.Method)
			}
			notify(t, c, "logsNotification", 8, 300, map[string]interface{}{
				"signature": "after-reconnect",
				"logs":      []string{},
			})
			drain(c)
		default:
			drain(c)
		}
	})

	ctx := context.Background()
	client, err := NewWSClient(ctx, wsURL, reconnectConfig())
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	ch, err := client.SubscribeLogs(ctx, LogsFilter{Mentions: []string{"p"}})
	if err != nil {
		t.Fatalf("SubscribeLogs: %v", err)
	}

	select {
	case notif := <-ch:
		if notif.Signature != "after-reconnect" || notif.Slot != 300 {
			t.Errorf("unexpected notification: %+v", notif)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no notification under the new subscription ID")
	}
}

func TestWSClient_ResubscribeWithSwappedIDs(t *testing.T) {
	var conns atomic.Int32
	wsURL := newWSServer(t, func(c *websocket.Conn) {
		switch conns.Add(1) {
		case 1:
			confirmByMethod(t, c, 2, map[string]int64{"logsSubscribe": 1, "programSubscribe": 2})
		case 2:
			if !confirmByMethod(t, c, 2, map[string]int64{"logsSubscribe": 2, "programSubscribe": 1}) {
				return
			}
			notify(t, c, "logsNotification", 2, 10, map[string]interface{}{
				"signature": "logs-sig",
				"logs":      []string{},
			})
			notify(t, c, "programNotification", 1, 11, map[string]interface{}{
				"pubkey":  "market1",
				"account": map[string]interface{}{"owner": "openbook", "data": []string{"", "base64"}},
			})
			drain(c)
		default:
			drain(c)
		}
	})

	ctx := context.Background()
	client, err := NewWSClient(ctx, wsURL, reconnectConfig())
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	logs, err := client.SubscribeLogs(ctx, LogsFilter{Mentions: []string{"p"}})
	if err != nil {
		t.Fatalf("SubscribeLogs: %v", err)
	}
	accounts, err := client.SubscribeProgram(ctx, ProgramFilter{ProgramID: "openbook"})
	if err != nil {
		t.Fatalf("SubscribeProgram: %v", err)
	}

	select {
	case notif := <-logs:
		if notif.Signature != "logs-sig" {
			t.Errorf("logs channel got %+v", notif)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for logs notification")
	}

	select {
	case notif := <-accounts:
		if notif.Pubkey != "market1" {
			t.Errorf("program channel got %+v", notif)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for program notification")
	}
}

func TestWSClient_ResubscribeFailureReconnects(t *testing.T) {
	var conns atomic.Int32
	wsURL := newWSServer(t, func(c *websocket.Conn) {
		switch conns.Add(1) {
		case 1:
			confirm(t, c, 7)
		case 2:
			// Reject the resubscribe; the client must drop this connection.
			var req wsRequest
			if err := c.ReadJSON(&req); err != nil {
				return
			}
			c.WriteJSON(map[string]interface{}{
				"jsonrpc": "2.0",
				"id":      req.ID,
				"error":   map[string]interface{}{"code": -32005, "message": "Node is behind"},
			})
			drain(c)
		case 3:
			if _, ok := confirm(t, c, 9); !ok {
				return
			}
			notify(t, c, "logsNotification", 9, 400, map[string]interface{}{
				"signature": "third-conn",
				"logs":      []string{},
			})
			drain(c)
		default:
			drain(c)
		}
	})

	ctx := context.Background()
	client, err := NewWSClient(ctx, wsURL, reconnectConfig())
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	ch, err := client.SubscribeLogs(ctx, LogsFilter{Mentions: []string{"p"}})
	if err != nil {
		t.Fatalf("SubscribeLogs: %v", err)
	}

	select {
	case notif := <-ch:
		if notif.Signature != "third-conn" {
			t.Errorf("unexpected notification: %+v", notif)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not recover after a failed resubscribe")
	}
	if n := conns.Load(); n < 3 {
		t.Errorf("expected at least 3 connections, got %d", n)
	}
}

func TestWSClient_CloseClosesChannels(t *testing.T) {
	wsURL := newWSServer(t, func(c *websocket.Conn) {
		if _, ok := confirm(t, c, 1); !ok {
			return
		}
		drain(c)
	})

	ctx := context.Background()
	client, err := NewWSClient(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}

	ch, err := client.SubscribeLogs(ctx, LogsFilter{Mentions: []string{"p"}})
	if err != nil {
		t.Fatalf("SubscribeLogs: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("double Close: %v", err)
	}

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed")
	}
}

func TestWSClient_SubscribeAfterClose(t *testing.T) {
	wsURL := newWSServer(t, drain)

	ctx := context.Background()
	client, err := NewWSClient(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}

	client.Close()

	if _, err := client.SubscribeLogs(ctx, LogsFilter{}); err == nil {
		t.Error("expected error subscribing after close")
	}
	if _, err := client.SubscribeProgram(ctx, ProgramFilter{ProgramID: "p"}); err == nil {
		t.Error("expected error subscribing after close")
	}
}

func TestWSClient_ConfigDefaults(t *testing.T) {
	wsURL := newWSServer(t, drain)

	config := &WSClientConfig{
		ReconnectDelay:    100 * time.Millisecond,
		MaxReconnectDelay: 1 * time.Second,
		PingInterval:      5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      5 * time.Second,
	}

	client, err := NewWSClient(context.Background(), wsURL, config)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	if client.config.PingInterval != 5*time.Second {
		t.Errorf("expected PingInterval 5s, got %v", client.config.PingInterval)
	}
	if client.config.BufferSize != DefaultWSConfig().BufferSize {
		t.Errorf("expected default buffer size, got %d", client.config.BufferSize)
	}
	if client.config.SubscribeTimeout != DefaultWSConfig().SubscribeTimeout {
		t.Errorf("expected default subscribe timeout, got %v", client.config.SubscribeTimeout)
	}
}
