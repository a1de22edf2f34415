package domain

// Tick outcomes recorded in the rebalance journal.
const (
	TickNoTrade  = "no_trade"
	TickDryRun   = "dry_run"
	TickExecuted = "executed"
	TickFailed   = "failed"
	TickError    = "error"
)

// RebalanceTick is one market-maker evaluation of a pair.
// Corresponds to rebalance_ticks table in ClickHouse. Decimal fields are stored as strings.
type RebalanceTick struct {
	TickID      string // uuid
	Pair        string
	Timestamp   int64 // ms
	Balance0    string
	Balance1    string
	Price0      string
	Price1      string
	Value0      string
	Value1      string
	TradeNeeded bool
	SellMint    string
	BuyMint     string
	Amount      string // whole units of the sold token
	InAmount    string // smallest unit sent to the router
	OutAmount   string // quoted smallest unit
	SlippageBps int
	Executed    bool
	Outcome     string
	Error       string
}
