package marketmaker

import (
	"github.com/shopspring/decimal"

	"solana-pool-agent/internal/domain"
)

var two = decimal.NewFromInt(2)

// Valuation is the priced state of a pair at one tick.
type Valuation struct {
	Balance0 decimal.Decimal
	Balance1 decimal.Decimal
	Price0   decimal.Decimal // reference units per whole token0
	Price1   decimal.Decimal
}

// Values returns balance times price for both sides.
func (v Valuation) Values() (decimal.Decimal, decimal.Decimal) {
	return v.Balance0.Mul(v.Price0), v.Balance1.Mul(v.Price1)
}

// Decide returns the trade that moves the pair back to a 50/50 value split.
// Amounts below minAmount are reported as no trade. A zero price never trades.
func Decide(pair domain.TradePair, v Valuation, minAmount decimal.Decimal) domain.TradeDecision {
	if !v.Price0.IsPositive() || !v.Price1.IsPositive() {
		return domain.TradeDecision{}
	}

	value0, value1 := v.Values()
	target := value0.Add(value1).Div(two)

	var d domain.TradeDecision
	switch {
	case value0.GreaterThan(target):
		d = domain.TradeDecision{
			Sell:   pair.Token0,
			Buy:    pair.Token1,
			Amount: value0.Sub(target).Div(v.Price0),
		}
	case value1.GreaterThan(target):
		d = domain.TradeDecision{
			Sell:   pair.Token1,
			Buy:    pair.Token0,
			Amount: value1.Sub(target).Div(v.Price1),
		}
	default:
		return domain.TradeDecision{}
	}

	d.TradeNeeded = !d.Amount.LessThan(minAmount)
	return d
}
