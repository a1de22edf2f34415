package domain

// TokenMetadata represents token metadata from on-chain.
type TokenMetadata struct {
	Mint      string  // token mint address
	Name      *string // token name (nullable)
	Symbol    *string // token symbol (nullable)
	Decimals  int     // token decimals
	Supply    *uint64 // raw total supply (nullable)
	FetchedAt int64   // when metadata was fetched (ms)
}
