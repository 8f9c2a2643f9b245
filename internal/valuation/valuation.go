// Package valuation combines held positions with a price snapshot into a
// portfolio valuation. It keeps no state of its own.
package valuation

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// PositionSource is the read side of a ledger snapshot.
type PositionSource interface {
	Cash() decimal.Decimal
	Symbols() []string
	QuantityOf(symbol string) decimal.Decimal
	TotalCost(symbol string) decimal.Decimal
}

// PriceSource is the read side of a price snapshot.
type PriceSource interface {
	Price(symbol string) (decimal.Decimal, bool)
	CapturedAt() time.Time
}

type Item struct {
	Symbol                 string
	Quantity               decimal.Decimal
	AveragePrice           decimal.Decimal
	CurrentPrice           decimal.Decimal
	PriceKnown             bool
	Invested               decimal.Decimal
	CurrentValue           decimal.Decimal
	TotalReturns           decimal.Decimal
	TotalReturnsPercentage decimal.Decimal
}

type Totals struct {
	Invested               decimal.Decimal
	CurrentValue           decimal.Decimal
	TotalReturns           decimal.Decimal
	TotalReturnsPercentage decimal.Decimal
}

type Snapshot struct {
	Cash      decimal.Decimal
	PerSymbol map[string]Item
	Totals    Totals
	PricedAt  time.Time
}

// Compute values every open position at the prices given. Symbols with no
// quantity are left out. A symbol missing from prices is still listed, with
// a zero current price.
func Compute(positions PositionSource, prices PriceSource) Snapshot {
	snap := Snapshot{
		Cash:      positions.Cash(),
		PerSymbol: make(map[string]Item),
	}
	if prices != nil {
		snap.PricedAt = prices.CapturedAt()
	}

	for _, symbol := range positions.Symbols() {
		qty := positions.QuantityOf(symbol)
		if !qty.IsPositive() {
			continue
		}

		invested := positions.TotalCost(symbol)
		price, known := decimal.Zero, false
		if prices != nil {
			price, known = prices.Price(symbol)
		}
		value := qty.Mul(price)
		returns := value.Sub(invested)

		snap.PerSymbol[symbol] = Item{
			Symbol:                 symbol,
			Quantity:               qty,
			AveragePrice:           invested.Div(qty),
			CurrentPrice:           price,
			PriceKnown:             known,
			Invested:               invested,
			CurrentValue:           value,
			TotalReturns:           returns,
			TotalReturnsPercentage: percentage(returns, invested),
		}

		snap.Totals.Invested = snap.Totals.Invested.Add(invested)
		snap.Totals.CurrentValue = snap.Totals.CurrentValue.Add(value)
		snap.Totals.TotalReturns = snap.Totals.TotalReturns.Add(returns)
	}
	snap.Totals.TotalReturnsPercentage = percentage(snap.Totals.TotalReturns, snap.Totals.Invested)

	return snap
}

// percentage is returns/invested × 100, or zero when nothing was invested.
func percentage(returns, invested decimal.Decimal) decimal.Decimal {
	if !invested.IsPositive() {
		return decimal.Zero
	}
	return returns.Mul(hundred).Div(invested)
}
