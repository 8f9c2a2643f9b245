package txlog

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// Store is the SQLite audit mirror of the trade history.
type Store struct {
	db *sql.DB
}

// SymbolTotals aggregates the stored trades of one symbol.
type SymbolTotals struct {
	Symbol   string
	Bought   decimal.Decimal
	Sold     decimal.Decimal
	Spent    decimal.Decimal
	Received decimal.Decimal
	Trades   int
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}

	// WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema migration: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Insert stores tx. A trade that is already stored is ignored; the returned
// bool reports whether a row was added.
func (s *Store) Insert(ctx context.Context, tx Transaction) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO transactions (type, symbol, quantity, price, ts_nanos)
		VALUES (?, ?, ?, ?, ?)`,
		string(tx.Type), tx.Symbol, tx.Quantity.String(), tx.Price.String(), tx.Timestamp.UnixNano(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// All returns every stored trade, oldest first.
func (s *Store) All(ctx context.Context) ([]Transaction, error) {
	return s.query(ctx, `
		SELECT type, symbol, quantity, price, ts_nanos
		FROM transactions ORDER BY ts_nanos, id`)
}

// Recent returns up to limit trades, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Transaction, error) {
	return s.query(ctx, `
		SELECT type, symbol, quantity, price, ts_nanos
		FROM transactions ORDER BY ts_nanos DESC, id DESC LIMIT ?`, limit)
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Transaction, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Transaction
	for rows.Next() {
		var (
			tx       Transaction
			typ      string
			qty, prc string
			nanos    int64
		)
		if err := rows.Scan(&typ, &tx.Symbol, &qty, &prc, &nanos); err != nil {
			return nil, err
		}
		tx.Type = Type(typ)
		if tx.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("stored quantity %q: %w", qty, err)
		}
		if tx.Price, err = decimal.NewFromString(prc); err != nil {
			return nil, fmt.Errorf("stored price %q: %w", prc, err)
		}
		tx.Timestamp = time.Unix(0, nanos).UTC()
		results = append(results, tx)
	}
	return results, rows.Err()
}

// Totals returns per-symbol bought and sold aggregates, sorted by symbol.
// Amounts are summed as decimals from the stored text columns.
func (s *Store) Totals(ctx context.Context) ([]SymbolTotals, error) {
	txs, err := s.All(ctx)
	if err != nil {
		return nil, err
	}

	bySymbol := make(map[string]*SymbolTotals)
	var symbols []string
	for _, tx := range txs {
		t, ok := bySymbol[tx.Symbol]
		if !ok {
			t = &SymbolTotals{Symbol: tx.Symbol}
			bySymbol[tx.Symbol] = t
			symbols = append(symbols, tx.Symbol)
		}
		switch tx.Type {
		case Buy:
			t.Bought = t.Bought.Add(tx.Quantity)
			t.Spent = t.Spent.Add(tx.Value())
		case Sell:
			t.Sold = t.Sold.Add(tx.Quantity)
			t.Received = t.Received.Add(tx.Value())
		}
		t.Trades++
	}

	sort.Strings(symbols)
	results := make([]SymbolTotals, 0, len(symbols))
	for _, sym := range symbols {
		results = append(results, *bySymbol[sym])
	}
	return results, nil
}
