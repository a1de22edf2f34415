package solana

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// newRPCServer serves JSON-RPC responses built by result from the decoded request.
func newRPCServer(t *testing.T, result func(req rpcRequest) interface{}) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  result(req),
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestHTTPClient_GetParsedTransaction(t *testing.T) {
	server := newRPCServer(t, func(req rpcRequest) interface{} {
		if req.Method != "getTransaction" {
			t.Errorf("expected method getTransaction, got %s", req.Method)
		}
		cfg, _ := req.Params[1].(map[string]interface{})
		if cfg["encoding"] != "jsonParsed" {
			t.Errorf("expected jsonParsed encoding, got %v", cfg["encoding"])
		}
		if cfg["commitment"] != "confirmed" {
			t.Errorf("expected confirmed commitment, got %v", cfg["commitment"])
		}

		return map[string]interface{}{
			"slot":      int64(123456),
			"blockTime": int64(1700000000),
			"meta": map[string]interface{}{
				"err":         nil,
				"logMessages": []string{"Program log: initialize2"},
			},
			"transaction": map[string]interface{}{
				"message": map[string]interface{}{
					"accountKeys": []map[string]interface{}{
						{"pubkey": "payer", "signer": true, "writable": true},
						{"pubkey": "program", "signer": false, "writable": false},
					},
					"instructions": []map[string]interface{}{
						{
							"program":   "system",
							"programId": "11111111111111111111111111111111",
							"parsed":    map[string]interface{}{"type": "transfer"},
						},
						{
							"programId": "program",
							"accounts":  []string{"a0", "a1", "a2"},
							"data":      "3Bxs4",
						},
					},
				},
			},
		}
	})

	client := NewHTTPClient(server.URL)

	tx, err := client.GetParsedTransaction(context.Background(), "testsig123")
	if err != nil {
		t.Fatalf("GetParsedTransaction: %v", err)
	}
	if tx == nil {
		t.Fatal("expected transaction, got nil")
	}

	if tx.Slot != 123456 {
		t.Errorf("expected slot 123456, got %d", tx.Slot)
	}
	if tx.BlockTime != 1700000000 {
		t.Errorf("expected blockTime 1700000000, got %d", tx.BlockTime)
	}
	if len(tx.AccountKeys) != 2 || tx.AccountKeys[0] != "payer" {
		t.Errorf("unexpected account keys: %v", tx.AccountKeys)
	}
	if len(tx.Instructions) != 2 {
		t.Fatalf("expected 2 instructions, got %d", len(tx.Instructions))
	}
	if len(tx.Instructions[0].Accounts) != 0 {
		t.Errorf("parsed instruction should carry no accounts, got %v", tx.Instructions[0].Accounts)
	}
	if tx.Instructions[1].ProgramID != "program" || len(tx.Instructions[1].Accounts) != 3 {
		t.Errorf("unexpected instruction: %+v", tx.Instructions[1])
	}
}

func TestHTTPClient_GetParsedTransaction_NotFound(t *testing.T) {
	server := newRPCServer(t, func(rpcRequest) interface{} { return nil })

	client := NewHTTPClient(server.URL)

	tx, err := client.GetParsedTransaction(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("GetParsedTransaction: %v", err)
	}
	if tx != nil {
		t.Errorf("expected nil for not found, got %+v", tx)
	}
}

func TestHTTPClient_GetParsedTransaction_ProcessedUpgradedToConfirmed(t *testing.T) {
	server := newRPCServer(t, func(req rpcRequest) interface{} {
		cfg, _ := req.Params[1].(map[string]interface{})
		if cfg["commitment"] != "confirmed" {
			t.Errorf("expected confirmed commitment, got %v", cfg["commitment"])
		}
		return nil
	})

	client := NewHTTPClient(server.URL, WithCommitment(CommitmentProcessed))
	if _, err := client.GetParsedTransaction(context.Background(), "sig"); err != nil {
		t.Fatalf("GetParsedTransaction: %v", err)
	}
}

func TestHTTPClient_GetBalance(t *testing.T) {
	server := newRPCServer(t, func(req rpcRequest) interface{} {
		if req.Method != "getBalance" {
			t.Errorf("expected method getBalance, got %s", req.Method)
		}
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 1},
			"value":   uint64(2500000000),
		}
	})

	client := NewHTTPClient(server.URL)

	lamports, err := client.GetBalance(context.Background(), "owner")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if lamports != 2500000000 {
		t.Errorf("expected 2500000000 lamports, got %d", lamports)
	}
}

func TestHTTPClient_GetTokenAccountsByOwner(t *testing.T) {
	server := newRPCServer(t, func(req rpcRequest) interface{} {
		if req.Method != "getTokenAccountsByOwner" {
			t.Errorf("expected method getTokenAccountsByOwner, got %s", req.Method)
		}
		filter, _ := req.Params[1].(map[string]interface{})
		if filter["mint"] != "mintA" {
			t.Errorf("expected mint filter, got %v", filter)
		}

		account := func(pubkey, amount string) map[string]interface{} {
			return map[string]interface{}{
				"pubkey": pubkey,
				"account": map[string]interface{}{
					"data": map[string]interface{}{
						"program": "spl-token",
						"parsed": map[string]interface{}{
							"type": "account",
							"info": map[string]interface{}{
								"mint": "mintA",
								"tokenAmount": map[string]interface{}{
									"amount":         amount,
									"decimals":       6,
									"uiAmountString": "ignored",
								},
							},
						},
					},
				},
			}
		}
		return map[string]interface{}{
			"value": []interface{}{account("acc1", "1500000"), account("acc2", "500000")},
		}
	})

	client := NewHTTPClient(server.URL)

	accounts, err := client.GetTokenAccountsByOwner(context.Background(), "owner", "mintA")
	if err != nil {
		t.Fatalf("GetTokenAccountsByOwner: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(accounts))
	}
	if accounts[0].Amount != 1500000 || accounts[0].Decimals != 6 || accounts[0].Mint != "mintA" {
		t.Errorf("unexpected first account: %+v", accounts[0])
	}
}

func TestHTTPClient_SendTransaction(t *testing.T) {
	payload := []byte{1, 2, 3, 4}

	server := newRPCServer(t, func(req rpcRequest) interface{} {
		if req.Method != "sendTransaction" {
			t.Errorf("expected method sendTransaction, got %s", req.Method)
		}
		if req.Params[0] != base64.StdEncoding.EncodeToString(payload) {
			t.Errorf("unexpected payload param: %v", req.Params[0])
		}
		cfg, _ := req.Params[1].(map[string]interface{})
		if cfg["encoding"] != "base64" || cfg["skipPreflight"] != true {
			t.Errorf("unexpected config: %v", cfg)
		}
		return "5igSig"
	})

	client := NewHTTPClient(server.URL)

	sig, err := client.SendTransaction(context.Background(), payload, SendOptions{SkipPreflight: true})
	if err != nil {
		t.Fatalf("SendTransaction: %v", err)
	}
	if sig != "5igSig" {
		t.Errorf("expected 5igSig, got %s", sig)
	}
}

func TestHTTPClient_SendTransaction_NotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithRetryDelay(time.Millisecond))

	if _, err := client.SendTransaction(context.Background(), []byte{1}, SendOptions{}); err == nil {
		t.Fatal("expected error")
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts.Load())
	}
}

func TestHTTPClient_GetSignatureStatuses(t *testing.T) {
	server := newRPCServer(t, func(req rpcRequest) interface{} {
		if req.Method != "getSignatureStatuses" {
			t.Errorf("expected method getSignatureStatuses, got %s", req.Method)
		}
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 10},
			"value": []interface{}{
				map[string]interface{}{
					"slot":               int64(9),
					"confirmations":      nil,
					"err":                nil,
					"confirmationStatus": "finalized",
				},
				nil,
			},
		}
	})

	client := NewHTTPClient(server.URL)

	statuses, err := client.GetSignatureStatuses(context.Background(), "sig1", "sig2")
	if err != nil {
		t.Fatalf("GetSignatureStatuses: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if statuses[0] == nil || statuses[0].ConfirmationStatus != CommitmentFinalized {
		t.Errorf("unexpected first status: %+v", statuses[0])
	}
	if statuses[1] != nil {
		t.Errorf("expected nil status for unknown signature, got %+v", statuses[1])
	}
}

func TestHTTPClient_Retry(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count := attempts.Add(1)
		if count < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  map[string]interface{}{"value": uint64(999)},
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL,
		WithMaxRetries(3),
		WithRetryDelay(10*time.Millisecond),
	)

	balance, err := client.GetBalance(context.Background(), "owner")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if balance != 999 {
		t.Errorf("expected 999, got %d", balance)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestHTTPClient_RPCError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error": map[string]interface{}{
				"code":    -32600,
				"message": "Invalid Request",
			},
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)

	_, err := client.GetBalance(context.Background(), "owner")
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected *RPCError, got %T", err)
	}
	if rpcErr.Code != -32600 {
		t.Errorf("expected code -32600, got %d", rpcErr.Code)
	}
}

func TestHTTPClient_GetAccountInfo(t *testing.T) {
	server := newRPCServer(t, func(req rpcRequest) interface{} {
		if req.Method != "getAccountInfo" {
			t.Errorf("expected method getAccountInfo, got %s", req.Method)
		}
		return map[string]interface{}{
			"value": map[string]interface{}{
				"lamports":   uint64(1000000),
				"owner":      "11111111111111111111111111111111",
				"data":       []string{"SGVsbG8gV29ybGQ=", "base64"},
				"executable": false,
				"rentEpoch":  uint64(100),
			},
		}
	})

	client := NewHTTPClient(server.URL)

	info, err := client.GetAccountInfo(context.Background(), "testpubkey")
	if err != nil {
		t.Fatalf("GetAccountInfo: %v", err)
	}
	if info == nil {
		t.Fatal("expected account info, got nil")
	}
	if info.Lamports != 1000000 {
		t.Errorf("expected lamports 1000000, got %d", info.Lamports)
	}
	if info.Data != "SGVsbG8gV29ybGQ=" {
		t.Errorf("unexpected data: %s", info.Data)
	}
}

func TestHTTPClient_GetAccountInfo_NotFound(t *testing.T) {
	server := newRPCServer(t, func(rpcRequest) interface{} {
		return map[string]interface{}{"value": nil}
	})

	client := NewHTTPClient(server.URL)

	info, err := client.GetAccountInfo(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("GetAccountInfo: %v", err)
	}
	if info != nil {
		t.Errorf("expected nil for not found, got %+v", info)
	}
}

func TestHTTPClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.GetBalance(ctx, "owner"); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestParseCommitment(t *testing.T) {
	if c, ok := ParseCommitment("finalized"); !ok || c != CommitmentFinalized {
		t.Errorf("ParseCommitment(finalized) = %q, %v", c, ok)
	}
	if _, ok := ParseCommitment("max"); ok {
		t.Error("expected unknown commitment to be rejected")
	}
}
