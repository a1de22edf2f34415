package domain

import (
	"github.com/shopspring/decimal"
)

// AssetBalance is a raw ledger balance. It is read fresh on every strategy tick.
type AssetBalance struct {
	Mint     string
	Raw      uint64 // smallest unit
	Decimals int32
}

// Amount returns the balance in whole units.
func (b AssetBalance) Amount() decimal.Decimal {
	return FromSmallestUnit(decimal.NewFromUint64(b.Raw), b.Decimals)
}

// FromSmallestUnit converts a smallest-unit amount to whole units.
func FromSmallestUnit(v decimal.Decimal, decimals int32) decimal.Decimal {
	return v.Shift(-decimals)
}

// ToSmallestUnit converts a whole-unit amount to the integer string sent on the wire.
// The fractional remainder below the smallest unit is truncated so a sell never exceeds
// the amount decided on.
func ToSmallestUnit(v decimal.Decimal, decimals int32) string {
	return v.Shift(decimals).Truncate(0).String()
}

// TradeDecision is the transient outcome of one rebalance evaluation.
type TradeDecision struct {
	TradeNeeded bool
	Sell        Token
	Buy         Token
	Amount      decimal.Decimal // whole units of Sell
}
