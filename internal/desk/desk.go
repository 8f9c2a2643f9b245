// Package desk applies confirmed backend state to the local ledger and
// transaction log and serves valuations built from them.
package desk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gw/tradedesk/internal/backend"
	"github.com/gw/tradedesk/internal/ledger"
	"github.com/gw/tradedesk/internal/prices"
	"github.com/gw/tradedesk/internal/txlog"
	"github.com/gw/tradedesk/internal/valuation"
	"github.com/shopspring/decimal"
)

// Backend is the remote trade execution service.
type Backend interface {
	Portfolio(ctx context.Context) (*backend.State, error)
	Buy(ctx context.Context, symbol string, quantity decimal.Decimal) (*backend.State, error)
	Sell(ctx context.Context, symbol string, quantity decimal.Decimal) (*backend.State, error)
}

// Broadcaster pushes events to connected clients.
type Broadcaster interface {
	BroadcastJSON(v any)
}

// Event is what gets broadcast after every trade or price commit.
type Event struct {
	Type string         `json:"type"`
	View valuation.View `json:"view"`
}

type Desk struct {
	backend Backend
	ledger  *ledger.Ledger
	log     *txlog.Log
	book    *prices.Book
	store   *txlog.Store // optional audit mirror
	hub     Broadcaster  // optional

	applyMu sync.Mutex
}

// New builds a desk. store and hub may be nil.
func New(b Backend, book *prices.Book, store *txlog.Store, hub Broadcaster) *Desk {
	return &Desk{
		backend: b,
		ledger:  ledger.New(),
		log:     txlog.NewLog(),
		book:    book,
		store:   store,
		hub:     hub,
	}
}

// Load fetches the full portfolio and applies it.
func (d *Desk) Load(ctx context.Context) error {
	st, err := d.backend.Portfolio(ctx)
	if err != nil {
		return err
	}
	return d.Apply(ctx, st)
}

// Buy asks the backend to buy and applies the confirmed state. Nothing local
// changes if the backend rejects the trade.
func (d *Desk) Buy(ctx context.Context, symbol string, quantity decimal.Decimal) (*backend.State, error) {
	st, err := d.backend.Buy(ctx, symbol, quantity)
	if err != nil {
		return nil, err
	}
	return st, d.Apply(ctx, st)
}

func (d *Desk) Sell(ctx context.Context, symbol string, quantity decimal.Decimal) (*backend.State, error) {
	st, err := d.backend.Sell(ctx, symbol, quantity)
	if err != nil {
		return nil, err
	}
	return st, d.Apply(ctx, st)
}

// Apply replaces local state with st. A state whose history is shorter than
// what has already been applied is older than the current one and is
// dropped. A state with invalid positions is rejected before anything
// local changes.
func (d *Desk) Apply(ctx context.Context, st *backend.State) error {
	if err := ledger.ValidatePositions(st.Positions); err != nil {
		return fmt.Errorf("applying portfolio: %w", err)
	}

	d.applyMu.Lock()

	if st.TransactionsErr != nil {
		slog.Warn("transaction history unreadable", "err", st.TransactionsErr)
	} else {
		n, rejected, err := d.log.Sync(st.Transactions)
		if errors.Is(err, txlog.ErrHistoryDiverged) {
			d.applyMu.Unlock()
			slog.Info("dropping stale portfolio state", "err", err)
			return nil
		}
		for _, r := range rejected {
			slog.Warn("transaction rejected", "err", r)
		}
		if n > 0 {
			slog.Debug("transactions appended", "count", n)
		}
	}

	for _, w := range st.Warnings {
		slog.Warn("position mismatch", "detail", w)
	}

	if err := d.ledger.Replace(st.Cash, st.Positions); err != nil {
		d.applyMu.Unlock()
		return fmt.Errorf("applying portfolio: %w", err)
	}

	if d.store != nil {
		if _, err := txlog.Mirror(ctx, d.log, d.store); err != nil {
			slog.Warn("mirroring transactions failed", "err", err)
		}
	}
	d.applyMu.Unlock()

	d.publish("portfolio")
	return nil
}

// PricesUpdated is the poller hook for freshly committed prices.
func (d *Desk) PricesUpdated(*prices.Snapshot) {
	d.publish("prices")
}

func (d *Desk) publish(kind string) {
	if d.hub == nil {
		return
	}
	d.hub.BroadcastJSON(Event{Type: kind, View: d.View()})
}

// Valuation computes the portfolio at the current prices.
func (d *Desk) Valuation() valuation.Snapshot {
	return valuation.Compute(d.ledger.Snapshot(), d.book.Current())
}

func (d *Desk) View() valuation.View {
	return valuation.Present(d.Valuation())
}

// History returns up to n transactions, newest first.
func (d *Desk) History(n int) []txlog.Transaction {
	return d.log.Recent(n)
}

func (d *Desk) Prices() *prices.Snapshot {
	return d.book.Current()
}

func (d *Desk) Ledger() *ledger.Snapshot {
	return d.ledger.Snapshot()
}
