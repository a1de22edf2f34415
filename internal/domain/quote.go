package domain

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// Quote is a priced, not-yet-executed swap proposal returned by the routing service.
// It is consumed by exactly one swap transaction request.
type Quote struct {
	InputMint   string
	OutputMint  string
	InAmount    string // smallest unit, unsigned integer string
	OutAmount   string // smallest unit, unsigned integer string
	SlippageBps int

	// Raw is the routing-service payload, posted back verbatim when building the transaction.
	Raw json.RawMessage
}

// SwapTransaction is an opaque serialized transaction ready to be signed.
// It is consumed by exactly one execution.
type SwapTransaction struct {
	Payload []byte
}

// SwapTransactionFromBase64 decodes the wire form of a swap transaction.
func SwapTransactionFromBase64(s string) (*SwapTransaction, error) {
	payload, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode swap transaction: %w", err)
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("decode swap transaction: empty payload")
	}
	return &SwapTransaction{Payload: payload}, nil
}

// Base64 returns the wire form of the transaction.
func (t *SwapTransaction) Base64() string {
	return base64.StdEncoding.EncodeToString(t.Payload)
}

// RetryState tracks one request's progress through the retry policy.
type RetryState struct {
	Attempt int           // 0-based attempt index
	Delay   time.Duration // wait before the next attempt
}
