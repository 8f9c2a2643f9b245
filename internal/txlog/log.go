// Package txlog keeps the append-only history of executed trades and
// mirrors it to SQLite for audit.
package txlog

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Log is an in-memory, chronologically ordered trade history.
type Log struct {
	mu      sync.RWMutex
	entries []Transaction
	synced  int // remote records consumed by Sync
}

func NewLog() *Log {
	return &Log{}
}

// Append records tx after every entry with the same or an earlier timestamp.
func (l *Log) Append(tx Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.insert(tx)
	return nil
}

// AppendJSON decodes a single record and appends it. The log is unchanged on
// any error.
func (l *Log) AppendJSON(raw []byte) error {
	var tx Transaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return fmt.Errorf("decoding transaction: %w", err)
	}
	return l.Append(tx)
}

// Sync appends the part of remote that has not been consumed yet. remote is
// the backend's full history, oldest first. Invalid records are skipped and
// returned in rejected; they still count as consumed so later records are
// not held back. A remote shorter than what was consumed is
// ErrHistoryDiverged and leaves the log unchanged.
func (l *Log) Sync(remote []Transaction) (appended int, rejected []error, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(remote) < l.synced {
		return 0, nil, fmt.Errorf("%w: remote has %d records, already consumed %d",
			ErrHistoryDiverged, len(remote), l.synced)
	}
	for i := l.synced; i < len(remote); i++ {
		tx := remote[i]
		if err := tx.Validate(); err != nil {
			rejected = append(rejected, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		l.insert(tx)
		appended++
	}
	l.synced = len(remote)
	return appended, rejected, nil
}

func (l *Log) insert(tx Transaction) {
	i := sort.Search(len(l.entries), func(i int) bool {
		return l.entries[i].Timestamp.After(tx.Timestamp)
	})
	l.entries = append(l.entries, Transaction{})
	copy(l.entries[i+1:], l.entries[i:])
	l.entries[i] = tx
}

// All returns a copy of the history, oldest first.
func (l *Log) All() []Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Transaction(nil), l.entries...)
}

// Recent returns up to n entries, newest first. n <= 0 returns everything.
func (l *Log) Recent(n int) []Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]Transaction, 0, n)
	for i := len(l.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, l.entries[i])
	}
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
