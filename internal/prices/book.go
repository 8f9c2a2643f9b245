package prices

import (
	"sync"
	"sync/atomic"
)

// Ticket identifies one fetch. Only the most recently issued ticket may
// commit.
type Ticket uint64

// Book is the price snapshot slot. Reads are lock-free; commits are gated by
// an issue epoch so a slow, superseded fetch can never replace a newer one.
type Book struct {
	mu      sync.Mutex
	epoch   uint64
	current atomic.Pointer[Snapshot]
}

func NewBook() *Book {
	return &Book{}
}

// Begin issues a ticket for a new fetch, superseding every earlier ticket.
func (b *Book) Begin() Ticket {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.epoch++
	return Ticket(b.epoch)
}

// Commit installs snap if t is still the latest ticket. It reports whether
// the snapshot was accepted.
func (b *Book) Commit(t Ticket, snap *Snapshot) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if uint64(t) != b.epoch || snap == nil {
		return false
	}
	b.current.Store(snap)
	return true
}

// Invalidate supersedes every outstanding ticket. After it returns no fetch
// already in flight can commit.
func (b *Book) Invalidate() {
	b.mu.Lock()
	b.epoch++
	b.mu.Unlock()
}

// Current returns the last committed snapshot, or nil before the first one.
func (b *Book) Current() *Snapshot {
	return b.current.Load()
}
