package valuation

import (
	"sort"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Row is one display line. Decimals are rendered with two places.
type Row struct {
	Symbol                 string `json:"symbol"`
	Quantity               string `json:"quantity"`
	AvgPrice               string `json:"avgPrice"`
	CurrentPrice           string `json:"currentPrice"`
	PriceKnown             bool   `json:"priceKnown"`
	Invested               string `json:"invested"`
	CurrentValue           string `json:"currentValue"`
	TotalReturns           string `json:"totalReturns"`
	TotalReturnsPercentage string `json:"totalReturnsPercentage"`
}

type View struct {
	Cash                   string    `json:"cash"`
	Items                  []Row     `json:"items"`
	Invested               string    `json:"invested"`
	CurrentValue           string    `json:"currentValue"`
	TotalReturns           string    `json:"totalReturns"`
	TotalReturnsPercentage string    `json:"totalReturnsPercentage"`
	PricedAt               time.Time `json:"pricedAt,omitzero"`
}

// Present renders a snapshot for display, rows sorted by symbol. This is the
// only place values are rounded.
func Present(s Snapshot) View {
	symbols := make([]string, 0, len(s.PerSymbol))
	for symbol := range s.PerSymbol {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	v := View{
		Cash:                   fixed(s.Cash),
		Items:                  make([]Row, 0, len(symbols)),
		Invested:               fixed(s.Totals.Invested),
		CurrentValue:           fixed(s.Totals.CurrentValue),
		TotalReturns:           fixed(s.Totals.TotalReturns),
		TotalReturnsPercentage: fixed(s.Totals.TotalReturnsPercentage),
		PricedAt:               s.PricedAt,
	}
	for _, symbol := range symbols {
		it := s.PerSymbol[symbol]
		v.Items = append(v.Items, Row{
			Symbol:                 it.Symbol,
			Quantity:               it.Quantity.String(),
			AvgPrice:               fixed(it.AveragePrice),
			CurrentPrice:           fixed(it.CurrentPrice),
			PriceKnown:             it.PriceKnown,
			Invested:               fixed(it.Invested),
			CurrentValue:           fixed(it.CurrentValue),
			TotalReturns:           fixed(it.TotalReturns),
			TotalReturnsPercentage: fixed(it.TotalReturnsPercentage),
		})
	}
	return v
}

func fixed(d decimal.Decimal) string { return d.StringFixed(2) }

// FormatMoney renders amount in the currency's own notation, e.g. $1,600.00.
// Unknown currency codes fall back to a plain two-place number.
func FormatMoney(amount decimal.Decimal, currency string) string {
	if money.GetCurrency(currency) == nil {
		return fixed(amount) + " " + currency
	}
	// money.New is the only way to get a non-nil Currency.
	cur := *money.New(0, currency).Currency()
	minor := amount.Round(int32(cur.Fraction)).Shift(int32(cur.Fraction))
	return cur.Formatter().Format(minor.IntPart())
}
