package storage

// MarkerAdded is the value stored under a dedup marker once its record is written.
const MarkerAdded = "added"

// PoolMarkerKey returns the marker key of a discovered pool.
func PoolMarkerKey(poolID string) string {
	return "raydium_mint_" + poolID
}

// MarketMarkerKey returns the marker key of an order-book market, keyed by base mint.
func MarketMarkerKey(mint string) string {
	return "openmarket_" + mint
}
