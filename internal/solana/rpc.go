package solana

import "context"

// Commitment is the ledger confirmation level a request reads at.
type Commitment string

// Commitment levels.
const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// ParseCommitment maps a config string to a Commitment. Unknown values return false.
func ParseCommitment(s string) (Commitment, bool) {
	switch c := Commitment(s); c {
	case CommitmentProcessed, CommitmentConfirmed, CommitmentFinalized:
		return c, true
	}
	return "", false
}

// RPCClient defines the Solana RPC HTTP interface used by the agent.
type RPCClient interface {
	// GetParsedTransaction retrieves a jsonParsed transaction. Returns nil if not found.
	GetParsedTransaction(ctx context.Context, signature string) (*ParsedTransaction, error)

	// GetAccountInfo retrieves account info. Returns nil if the account does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)

	// GetBalance returns the lamport balance of an account.
	GetBalance(ctx context.Context, pubkey string) (uint64, error)

	// GetTokenAccountsByOwner lists the owner's token accounts for one mint.
	GetTokenAccountsByOwner(ctx context.Context, owner, mint string) ([]TokenAccountBalance, error)

	// SendTransaction submits a signed serialized transaction and returns its signature.
	SendTransaction(ctx context.Context, payload []byte, opts SendOptions) (string, error)

	// GetSignatureStatuses returns one status per signature; unknown signatures yield nil.
	GetSignatureStatuses(ctx context.Context, signatures ...string) ([]*SignatureStatus, error)
}

// ParsedTransaction is a transaction fetched with jsonParsed encoding.
type ParsedTransaction struct {
	Slot         int64
	Signature    string
	BlockTime    int64 // Unix timestamp (seconds)
	Err          interface{}
	LogMessages  []string
	AccountKeys  []string
	Instructions []ParsedInstruction // top-level only
}

// ParsedInstruction is one top-level instruction. Accounts is empty for instructions
// the node decoded itself (system, token and similar programs).
type ParsedInstruction struct {
	ProgramID string
	Accounts  []string
	Data      string // base58
}

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Data       string `json:"data"` // base64 encoded
	Executable bool   `json:"executable"`
	RentEpoch  uint64 `json:"rentEpoch"`
}

// TokenAccountBalance is the balance of one SPL token account.
type TokenAccountBalance struct {
	Pubkey   string
	Mint     string
	Amount   uint64 // smallest unit
	Decimals int
}

// SendOptions configures sendTransaction.
type SendOptions struct {
	SkipPreflight       bool
	PreflightCommitment Commitment
	MaxRetries          *uint // node-side rebroadcast attempts
}

// SignatureStatus is one entry of getSignatureStatuses.
type SignatureStatus struct {
	Slot               int64
	Confirmations      *int64
	Err                interface{}
	ConfirmationStatus Commitment
}
