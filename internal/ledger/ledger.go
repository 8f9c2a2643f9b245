// Package ledger holds the buy lots backing each held symbol and answers
// quantity and weighted-average cost questions about them.
//
// Every write publishes a new immutable Snapshot, so readers always see one
// fully-formed state and never take a lock.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrInvalidPrice    = errors.New("invalid price")
)

// Lot is one executed buy. Lots are never mutated once recorded.
type Lot struct {
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// Cost returns quantity × price.
func (l Lot) Cost() decimal.Decimal {
	return l.Quantity.Mul(l.Price)
}

type Ledger struct {
	mu      sync.Mutex // serializes writers
	current atomic.Pointer[Snapshot]
}

func New() *Ledger {
	l := &Ledger{}
	l.current.Store(emptySnapshot())
	return l
}

// Snapshot returns the current state. The result is immutable.
func (l *Ledger) Snapshot() *Snapshot {
	return l.current.Load()
}

// ApplyBuy appends a lot for symbol.
func (l *Ledger) ApplyBuy(symbol string, quantity, price decimal.Decimal) error {
	if !quantity.IsPositive() {
		return fmt.Errorf("buy %s: %w: %s", symbol, ErrInvalidQuantity, quantity)
	}
	if !price.IsPositive() {
		return fmt.Errorf("buy %s: %w: %s", symbol, ErrInvalidPrice, price)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	prev := l.current.Load()
	next := prev.clone()
	lots := make([]Lot, 0, len(prev.positions[symbol])+1)
	lots = append(lots, prev.positions[symbol]...)
	next.positions[symbol] = append(lots, Lot{Quantity: quantity, Price: price})
	l.current.Store(next)
	return nil
}

// ApplyPosition replaces the lot sequence for symbol wholesale. An empty or
// zero-quantity sequence closes the position.
//
// Lots come from the authoritative backend, so a zero price is accepted and
// shows up as a zero cost basis rather than being dropped.
func (l *Ledger) ApplyPosition(symbol string, lots []Lot) error {
	if err := validateLots(symbol, lots); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.current.Load().clone()
	setPosition(next.positions, symbol, lots)
	l.current.Store(next)
	return nil
}

// Replace swaps cash and every position in a single publish. Symbols absent
// from positions are closed.
func (l *Ledger) Replace(cash decimal.Decimal, positions map[string][]Lot) error {
	if err := ValidatePositions(positions); err != nil {
		return err
	}

	next := &Snapshot{cash: cash, positions: make(map[string][]Lot, len(positions))}
	for symbol, lots := range positions {
		setPosition(next.positions, symbol, lots)
	}

	l.mu.Lock()
	l.current.Store(next)
	l.mu.Unlock()
	return nil
}

// SetCash replaces the cash balance and keeps every position.
func (l *Ledger) SetCash(cash decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.current.Load().clone()
	next.cash = cash
	l.current.Store(next)
}

func (l *Ledger) QuantityOf(symbol string) decimal.Decimal {
	return l.Snapshot().QuantityOf(symbol)
}

func (l *Ledger) AverageCost(symbol string) decimal.Decimal {
	return l.Snapshot().AverageCost(symbol)
}

func (l *Ledger) TotalCost(symbol string) decimal.Decimal {
	return l.Snapshot().TotalCost(symbol)
}

// ValidatePositions reports the first lot Replace would reject.
func ValidatePositions(positions map[string][]Lot) error {
	for symbol, lots := range positions {
		if err := validateLots(symbol, lots); err != nil {
			return err
		}
	}
	return nil
}

func validateLots(symbol string, lots []Lot) error {
	for i, lot := range lots {
		if lot.Quantity.IsNegative() {
			return fmt.Errorf("position %s lot %d: %w: %s", symbol, i, ErrInvalidQuantity, lot.Quantity)
		}
		if lot.Price.IsNegative() {
			return fmt.Errorf("position %s lot %d: %w: %s", symbol, i, ErrInvalidPrice, lot.Price)
		}
	}
	return nil
}

// setPosition stores a private copy of lots, or deletes symbol when nothing is held.
func setPosition(positions map[string][]Lot, symbol string, lots []Lot) {
	total := decimal.Zero
	for _, lot := range lots {
		total = total.Add(lot.Quantity)
	}
	if !total.IsPositive() {
		delete(positions, symbol)
		return
	}
	positions[symbol] = append([]Lot(nil), lots...)
}

// Snapshot is an immutable view of the ledger at one point in time.
type Snapshot struct {
	cash      decimal.Decimal
	positions map[string][]Lot
}

func emptySnapshot() *Snapshot {
	return &Snapshot{positions: make(map[string][]Lot)}
}

// clone copies the position map. Lot slices are shared: writers always
// install fresh slices and never append in place.
func (s *Snapshot) clone() *Snapshot {
	positions := make(map[string][]Lot, len(s.positions))
	for symbol, lots := range s.positions {
		positions[symbol] = lots
	}
	return &Snapshot{cash: s.cash, positions: positions}
}

func (s *Snapshot) Cash() decimal.Decimal { return s.cash }

// Symbols returns the symbols with recorded lots, sorted.
func (s *Snapshot) Symbols() []string {
	out := make([]string, 0, len(s.positions))
	for symbol := range s.positions {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// Lots returns a copy of the lots for symbol in execution order.
func (s *Snapshot) Lots(symbol string) []Lot {
	return append([]Lot(nil), s.positions[symbol]...)
}

// QuantityOf sums the lot quantities. Unknown symbols hold zero.
func (s *Snapshot) QuantityOf(symbol string) decimal.Decimal {
	total := decimal.Zero
	for _, lot := range s.positions[symbol] {
		total = total.Add(lot.Quantity)
	}
	return total
}

// TotalCost sums quantity × price over the lots.
func (s *Snapshot) TotalCost(symbol string) decimal.Decimal {
	total := decimal.Zero
	for _, lot := range s.positions[symbol] {
		total = total.Add(lot.Cost())
	}
	return total
}

// AverageCost is TotalCost / QuantityOf, or zero when nothing is held.
func (s *Snapshot) AverageCost(symbol string) decimal.Decimal {
	qty := s.QuantityOf(symbol)
	if qty.IsZero() {
		return decimal.Zero
	}
	return s.TotalCost(symbol).Div(qty)
}
