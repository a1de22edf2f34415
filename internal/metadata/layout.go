package metadata

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// SPL Token Mint layout (82 bytes):
// - mintAuthority: COption<Pubkey> (36 bytes)
// - supply: u64
// - decimals: u8
// - isInitialized: bool
// - freezeAuthority: COption<Pubkey> (36 bytes)
const (
	mintAccountSize = 82
	mintSupplyAt    = 36
	mintDecimalsAt  = 44
)

type mintInfo struct {
	supply   uint64
	decimals int
}

func parseMint(data []byte) (*mintInfo, error) {
	if len(data) < mintAccountSize {
		return nil, fmt.Errorf("mint data too short: %d", len(data))
	}
	return &mintInfo{
		supply:   binary.LittleEndian.Uint64(data[mintSupplyAt : mintSupplyAt+8]),
		decimals: int(data[mintDecimalsAt]),
	}, nil
}

// Metaplex Metadata layout prefix:
// - key: u8 (4 for MetadataV1)
// - updateAuthority: Pubkey
// - mint: Pubkey
// - name: borsh String (u32 length + bytes, padded with NULs)
// - symbol: borsh String
const (
	metadataKeyV1   = 4
	metadataNameAt  = 65
	maxNameBytes    = 100
	maxSymbolBytes  = 20
	minMetadataSize = 100
)

type metaplexInfo struct {
	name   string
	symbol string
}

func parseMetaplex(data []byte) (*metaplexInfo, error) {
	if len(data) < minMetadataSize {
		return nil, fmt.Errorf("metadata too short: %d", len(data))
	}
	if data[0] != metadataKeyV1 {
		return nil, fmt.Errorf("unexpected metadata key %d", data[0])
	}

	offset := metadataNameAt
	name, offset, err := readBorshString(data, offset, maxNameBytes)
	if err != nil {
		return nil, fmt.Errorf("read name: %w", err)
	}
	symbol, _, err := readBorshString(data, offset, maxSymbolBytes)
	if err != nil {
		return nil, fmt.Errorf("read symbol: %w", err)
	}

	return &metaplexInfo{name: name, symbol: symbol}, nil
}

func readBorshString(data []byte, offset, maxLen int) (string, int, error) {
	if offset+4 > len(data) {
		return "", offset, fmt.Errorf("length prefix out of range")
	}
	n := int(binary.LittleEndian.Uint32(data[offset:]))
	offset += 4
	if n > maxLen || offset+n > len(data) {
		return "", offset, fmt.Errorf("length %d out of range", n)
	}
	s := strings.TrimRight(string(data[offset:offset+n]), "\x00")
	return strings.TrimSpace(s), offset + n, nil
}
