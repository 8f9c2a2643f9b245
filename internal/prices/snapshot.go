// Package prices holds the current market price snapshot and the poller that
// refreshes it.
package prices

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is a full set of market prices captured at one time. It is never
// modified after construction; a refresh replaces it wholesale.
type Snapshot struct {
	prices    map[string]decimal.Decimal
	timestamp time.Time
}

// NewSnapshot copies prices, dropping entries that are not positive.
func NewSnapshot(prices map[string]decimal.Decimal, ts time.Time) *Snapshot {
	s := &Snapshot{prices: make(map[string]decimal.Decimal, len(prices)), timestamp: ts}
	for symbol, p := range prices {
		if p.IsPositive() {
			s.prices[symbol] = p
		}
	}
	return s
}

// Price returns the price for symbol and whether one is known.
func (s *Snapshot) Price(symbol string) (decimal.Decimal, bool) {
	if s == nil {
		return decimal.Zero, false
	}
	p, ok := s.prices[symbol]
	return p, ok
}

func (s *Snapshot) CapturedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.timestamp
}

func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.prices)
}

// Symbols returns the priced symbols, sorted.
func (s *Snapshot) Symbols() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.prices))
	for symbol := range s.prices {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

func (s *Snapshot) MarshalJSON() ([]byte, error) {
	out := struct {
		Prices    map[string]decimal.Decimal `json:"prices"`
		Timestamp time.Time                  `json:"timestamp"`
	}{Prices: map[string]decimal.Decimal{}}
	if s != nil {
		out.Prices = s.prices
		out.Timestamp = s.timestamp
	}
	return json.Marshal(out)
}
