package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/gw/tradedesk/internal/ledger"
	"github.com/gw/tradedesk/internal/txlog"
	"github.com/shopspring/decimal"
)

// State is the authoritative portfolio as returned by the backend after a
// portfolio fetch or a confirmed trade.
type State struct {
	Cash         decimal.Decimal
	Holdings     map[string]decimal.Decimal // net quantity per symbol
	Positions    map[string][]ledger.Lot    // open lots per symbol
	Transactions []txlog.Transaction

	// TransactionsErr is set when the history could not be decoded. The rest
	// of the state is still usable.
	TransactionsErr error
	// Warnings lists holdings that disagree with the sum of their lots.
	Warnings []string

	Message string          // confirmation text, trades only
	Price   decimal.Decimal // execution price, trades only
}

type wireState struct {
	Cash           *decimal.Decimal `json:"cash"`
	Balance        *decimal.Decimal `json:"balance"`
	Stocks         json.RawMessage  `json:"stocks"`
	StockPurchases json.RawMessage  `json:"stock_purchases"`
	Transactions   json.RawMessage  `json:"transactions"`
	Message        string           `json:"message"`
	Price          decimal.Decimal  `json:"price"`
}

func (s *State) UnmarshalJSON(data []byte) error {
	var w wireState
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	st := State{
		Holdings:  map[string]decimal.Decimal{},
		Positions: map[string][]ledger.Lot{},
		Message:   w.Message,
		Price:     w.Price,
	}
	switch {
	case w.Cash != nil:
		st.Cash = *w.Cash
	case w.Balance != nil:
		st.Cash = *w.Balance
	}

	stocks, err := unwrapString(w.Stocks)
	if err != nil {
		return fmt.Errorf("stocks: %w", err)
	}
	if len(stocks) > 0 {
		if err := json.Unmarshal(stocks, &st.Holdings); err != nil {
			return fmt.Errorf("stocks: %w", err)
		}
	}

	purchases, err := unwrapString(w.StockPurchases)
	if err != nil {
		return fmt.Errorf("stock_purchases: %w", err)
	}
	if len(purchases) > 0 {
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(purchases, &raw); err != nil {
			return fmt.Errorf("stock_purchases: %w", err)
		}
		for symbol, v := range raw {
			lots, err := decodeLots(v)
			if err != nil {
				return fmt.Errorf("stock_purchases %s: %w", symbol, err)
			}
			st.Positions[symbol] = lots
		}
	}

	if len(w.Transactions) > 0 {
		st.Transactions, st.TransactionsErr = txlog.Decode(w.Transactions)
	}

	st.Warnings = reconcile(st.Holdings, st.Positions)
	*s = st
	return nil
}

// decodeLots accepts either a list of lots or a single lot object.
func decodeLots(raw json.RawMessage) ([]ledger.Lot, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '{' {
		var lot ledger.Lot
		if err := json.Unmarshal(raw, &lot); err != nil {
			return nil, err
		}
		return []ledger.Lot{lot}, nil
	}
	var lots []ledger.Lot
	if err := json.Unmarshal(raw, &lots); err != nil {
		return nil, err
	}
	return lots, nil
}

// unwrapString returns the JSON a string value encodes, or raw unchanged when
// it is not a string.
func unwrapString(raw json.RawMessage) ([]byte, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] != '"' {
		return raw, nil
	}
	var inner string
	if err := json.Unmarshal(raw, &inner); err != nil {
		return nil, err
	}
	return bytes.TrimSpace([]byte(inner)), nil
}

func reconcile(holdings map[string]decimal.Decimal, positions map[string][]ledger.Lot) []string {
	symbols := map[string]struct{}{}
	for s := range holdings {
		symbols[s] = struct{}{}
	}
	for s := range positions {
		symbols[s] = struct{}{}
	}

	var warnings []string
	for s := range symbols {
		sum := decimal.Zero
		for _, lot := range positions[s] {
			sum = sum.Add(lot.Quantity)
		}
		if held := holdings[s]; !held.Equal(sum) {
			warnings = append(warnings, fmt.Sprintf("%s: backend reports %s held but lots sum to %s", s, held, sum))
		}
	}
	sort.Strings(warnings)
	return warnings
}
