package solana

import "context"

// WSClient defines Solana WebSocket subscription interface.
type WSClient interface {
	// SubscribeLogs subscribes to program logs matching the filter.
	SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error)

	// SubscribeProgram subscribes to account updates of accounts owned by a program.
	SubscribeProgram(ctx context.Context, filter ProgramFilter) (<-chan AccountNotification, error)

	// Close closes the WebSocket connection and all subscription channels.
	Close() error
}

// LogsFilter defines subscription filter for logs.
type LogsFilter struct {
	// Mentions filters logs that mention any of these program IDs.
	Mentions []string
	// Commitment defaults to confirmed.
	Commitment Commitment
}

// LogNotification represents a logs subscription message.
type LogNotification struct {
	Signature string
	Slot      int64
	Logs      []string
	Err       interface{}
}

// ProgramFilter defines a programSubscribe filter.
type ProgramFilter struct {
	ProgramID string
	// DataSize keeps only accounts of exactly this many bytes when non-zero.
	DataSize uint64
	// Commitment defaults to confirmed.
	Commitment Commitment
}

// AccountNotification is one programNotification.
type AccountNotification struct {
	Pubkey string
	Slot   int64
	Owner  string
	Data   []byte // decoded from base64
}
