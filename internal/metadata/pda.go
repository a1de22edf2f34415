package metadata

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// MetaplexProgramID is the Metaplex Token Metadata program.
const MetaplexProgramID = "metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s"

var errNoViableBump = errors.New("no viable bump seed")

// DeriveMetadataPDA returns the Metaplex metadata account of a mint.
// Seeds: ["metadata", metaplex_program_id, mint]
func DeriveMetadataPDA(mint string) (string, error) {
	mintBytes, err := decodePubkey(mint)
	if err != nil {
		return "", fmt.Errorf("decode mint: %w", err)
	}
	programBytes, err := decodePubkey(MetaplexProgramID)
	if err != nil {
		return "", fmt.Errorf("decode program id: %w", err)
	}

	pda, _, err := FindProgramAddress([][]byte{
		[]byte("metadata"),
		programBytes,
		mintBytes,
	}, programBytes)
	if err != nil {
		return "", err
	}
	return base58.Encode(pda), nil
}

// FindProgramAddress searches bumps from 255 down for the first off-curve
// sha256(seeds || bump || programID || "ProgramDerivedAddress").
func FindProgramAddress(seeds [][]byte, programID []byte) ([]byte, byte, error) {
	for bump := byte(255); bump > 0; bump-- {
		h := sha256.New()
		for _, seed := range seeds {
			h.Write(seed)
		}
		h.Write([]byte{bump})
		h.Write(programID)
		h.Write([]byte("ProgramDerivedAddress"))
		sum := h.Sum(nil)

		if !IsOnCurve(sum) {
			return sum, bump, nil
		}
	}
	return nil, 0, errNoViableBump
}

// IsOnCurve reports whether b is a valid compressed ed25519 point.
func IsOnCurve(b []byte) bool {
	if len(b) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

func decodePubkey(s string) ([]byte, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return nil, err
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	return b, nil
}
