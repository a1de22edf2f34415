// Package stub provides an in-memory solana.RPCClient for tests.
package stub

import (
	"context"
	"sync"

	"solana-pool-agent/internal/solana"
)

// RPCClient implements solana.RPCClient for testing. Maps may be filled directly
// before use or through the Add helpers while the client is in use.
type RPCClient struct {
	mu sync.Mutex

	Transactions  map[string]*solana.ParsedTransaction
	Accounts      map[string]*solana.AccountInfo
	Balances      map[string]uint64
	TokenAccounts map[string][]solana.TokenAccountBalance // keyed by owner+"/"+mint
	Statuses      map[string]*solana.SignatureStatus

	// Errors forces a method (by RPC method name) to fail.
	Errors map[string]error

	// SendSignature is returned by SendTransaction.
	SendSignature string
	// Sent records every payload passed to SendTransaction.
	Sent [][]byte

	calls map[string]int
}

// Compile-time interface check.
var _ solana.RPCClient = (*RPCClient)(nil)

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transactions:  make(map[string]*solana.ParsedTransaction),
		Accounts:      make(map[string]*solana.AccountInfo),
		Balances:      make(map[string]uint64),
		TokenAccounts: make(map[string][]solana.TokenAccountBalance),
		Statuses:      make(map[string]*solana.SignatureStatus),
		Errors:        make(map[string]error),
		calls:         make(map[string]int),
	}
}

func (c *RPCClient) record(method string) error {
	c.calls[method]++
	return c.Errors[method]
}

// Calls returns how many times the RPC method was invoked.
func (c *RPCClient) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

// GetParsedTransaction returns the stubbed transaction, or nil if none is stored.
func (c *RPCClient) GetParsedTransaction(_ context.Context, signature string) (*solana.ParsedTransaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("getTransaction"); err != nil {
		return nil, err
	}
	return c.Transactions[signature], nil
}

// GetAccountInfo returns the stubbed account, or nil if none is stored.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("getAccountInfo"); err != nil {
		return nil, err
	}
	return c.Accounts[pubkey], nil
}

// GetBalance returns the stubbed lamport balance.
func (c *RPCClient) GetBalance(_ context.Context, pubkey string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("getBalance"); err != nil {
		return 0, err
	}
	return c.Balances[pubkey], nil
}

// GetTokenAccountsByOwner returns the stubbed token accounts of owner for mint.
func (c *RPCClient) GetTokenAccountsByOwner(_ context.Context, owner, mint string) ([]solana.TokenAccountBalance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("getTokenAccountsByOwner"); err != nil {
		return nil, err
	}
	return c.TokenAccounts[owner+"/"+mint], nil
}

// SendTransaction records the payload and returns SendSignature.
func (c *RPCClient) SendTransaction(_ context.Context, payload []byte, _ solana.SendOptions) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("sendTransaction"); err != nil {
		return "", err
	}
	c.Sent = append(c.Sent, payload)
	return c.SendSignature, nil
}

// GetSignatureStatuses returns the stubbed statuses, nil for unknown signatures.
func (c *RPCClient) GetSignatureStatuses(_ context.Context, signatures ...string) ([]*solana.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("getSignatureStatuses"); err != nil {
		return nil, err
	}
	out := make([]*solana.SignatureStatus, len(signatures))
	for i, sig := range signatures {
		out[i] = c.Statuses[sig]
	}
	return out, nil
}

// AddTransaction adds a transaction to the stub store.
func (c *RPCClient) AddTransaction(tx *solana.ParsedTransaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Transactions[tx.Signature] = tx
}

// AddTokenAccount adds a token account balance for owner.
func (c *RPCClient) AddTokenAccount(owner string, acc solana.TokenAccountBalance) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := owner + "/" + acc.Mint
	c.TokenAccounts[key] = append(c.TokenAccounts[key], acc)
}

// SetStatus sets the status returned for a signature.
func (c *RPCClient) SetStatus(signature string, status *solana.SignatureStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Statuses[signature] = status
}

// SetError forces method to fail with err; nil clears it.
func (c *RPCClient) SetError(method string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.Errors, method)
		return
	}
	c.Errors[method] = err
}
