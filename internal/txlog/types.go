package txlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrMalformedPayload   = errors.New("malformed transaction payload")
	ErrHistoryDiverged    = errors.New("transaction history diverged")
)

type Type string

const (
	Buy  Type = "buy"
	Sell Type = "sell"
)

// Transaction is one executed trade. It is never modified after it has been
// appended to a Log.
type Transaction struct {
	Type      Type
	Symbol    string
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	Timestamp time.Time
}

// Validate reports why tx cannot be recorded, if it cannot.
func (tx Transaction) Validate() error {
	switch {
	case tx.Type != Buy && tx.Type != Sell:
		return fmt.Errorf("%w: type %q", ErrInvalidTransaction, tx.Type)
	case tx.Symbol == "":
		return fmt.Errorf("%w: missing symbol", ErrInvalidTransaction)
	case !tx.Quantity.IsPositive():
		return fmt.Errorf("%w: quantity %s", ErrInvalidTransaction, tx.Quantity)
	case !tx.Price.IsPositive():
		return fmt.Errorf("%w: price %s", ErrInvalidTransaction, tx.Price)
	}
	return nil
}

// Value is quantity × price.
func (tx Transaction) Value() decimal.Decimal {
	return tx.Quantity.Mul(tx.Price)
}

// wireTransaction is the backend's record shape. The timestamp is seconds
// since the epoch and may carry a fraction.
type wireTransaction struct {
	Type      Type             `json:"type"`
	Symbol    string           `json:"symbol"`
	Quantity  decimal.Decimal  `json:"quantity"`
	Price     decimal.Decimal  `json:"price"`
	Timestamp *decimal.Decimal `json:"timestamp,omitempty"`
}

func (tx Transaction) MarshalJSON() ([]byte, error) {
	w := wireTransaction{
		Type:     tx.Type,
		Symbol:   tx.Symbol,
		Quantity: tx.Quantity,
		Price:    tx.Price,
	}
	if !tx.Timestamp.IsZero() {
		ts := epochSeconds(tx.Timestamp)
		w.Timestamp = &ts
	}
	return json.Marshal(w)
}

func (tx *Transaction) UnmarshalJSON(data []byte) error {
	var w wireTransaction
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	*tx = Transaction{
		Type:     w.Type,
		Symbol:   w.Symbol,
		Quantity: w.Quantity,
		Price:    w.Price,
	}
	if w.Timestamp != nil {
		tx.Timestamp = fromEpochSeconds(*w.Timestamp)
	}
	return nil
}

func epochSeconds(t time.Time) decimal.Decimal {
	return decimal.NewFromInt(t.UnixNano()).Shift(-9)
}

func fromEpochSeconds(ts decimal.Decimal) time.Time {
	secs := ts.Floor()
	nanos := ts.Sub(secs).Shift(9).Round(0)
	return time.Unix(secs.IntPart(), nanos.IntPart()).UTC()
}
