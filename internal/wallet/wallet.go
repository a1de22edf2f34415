// Package wallet loads the agent's keypair and signs routed swap transactions.
package wallet

import (
	"errors"
	"fmt"
	"strings"

	"filippo.io/edwards25519"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// ErrSignerMissing is returned when a transaction requires a signature the wallet cannot produce.
var ErrSignerMissing = errors.New("transaction requires a signer other than the wallet")

// Wallet holds one ed25519 keypair.
type Wallet struct {
	key solana.PrivateKey
}

// New wraps a private key after checking its public half is a valid curve point.
func New(key solana.PrivateKey) (*Wallet, error) {
	if len(key) != 64 {
		return nil, fmt.Errorf("private key length %d, want 64", len(key))
	}
	pub := key.PublicKey()
	if _, err := new(edwards25519.Point).SetBytes(pub[:]); err != nil {
		return nil, fmt.Errorf("public key is not on curve: %w", err)
	}
	return &Wallet{key: key}, nil
}

// LoadKeypairFile reads a solana-keygen JSON keypair file.
func LoadKeypairFile(path string) (*Wallet, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("load keypair %s: %w", path, err)
	}
	return New(key)
}

// FromBase58 parses a base58-encoded 64-byte secret key.
func FromBase58(s string) (*Wallet, error) {
	key, err := solana.PrivateKeyFromBase58(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return New(key)
}

// PublicKey returns the base58 address of the wallet.
func (w *Wallet) PublicKey() string {
	return w.key.PublicKey().String()
}

// SignTransaction deserializes a wire transaction, signs it and returns the re-serialized bytes.
func (w *Wallet) SignTransaction(payload []byte) ([]byte, error) {
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(payload))
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}

	pub := w.key.PublicKey()
	var missing bool
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(pub) {
			return &w.key
		}
		missing = true
		return nil
	}); err != nil {
		if missing {
			return nil, fmt.Errorf("%w: %v", ErrSignerMissing, err)
		}
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	out, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}
	return out, nil
}
