package domain

// UndefinedName is stored when token metadata cannot be resolved.
const UndefinedName = "undefined"

// PoolDiscoveryRecord is a newly-seen liquidity pool.
// Corresponds to pool_discoveries table in PostgreSQL. Created at most once per PoolID.
type PoolDiscoveryRecord struct {
	PoolID     string // PRIMARY KEY
	Mint       string // token mint address
	Name       string
	Symbol     string
	IsAmm      bool  // constant-product (true) or concentrated-liquidity (false)
	CreationTS int64 // discovery timestamp (ms)
	CreatedAt  int64 // record creation timestamp (ms)
}

// MarketRecord is a minimal order-book market record, keyed by base mint.
// Corresponds to open_markets table in PostgreSQL.
type MarketRecord struct {
	Mint       string // PRIMARY KEY, base mint
	MarketID   string
	Bids       string
	Asks       string
	EventQueue string
	CreationTS int64 // discovery timestamp (ms)
	CreatedAt  int64 // record creation timestamp (ms)
}
