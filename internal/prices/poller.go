package prices

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Fetcher retrieves a full price snapshot from the price feed.
type Fetcher interface {
	Prices(ctx context.Context) (*Snapshot, error)
}

// Poller refreshes a Book on a fixed interval. Each tick cancels the fetch
// still in flight from the previous tick.
type Poller struct {
	fetcher  Fetcher
	book     *Book
	interval time.Duration
	notifyMu sync.Mutex

	// OnUpdate is called after a snapshot is committed, in commit order. A
	// snapshot already replaced by a newer commit is not reported.
	OnUpdate func(*Snapshot)
	// OnError is called when a fetch fails. The last good snapshot stays in place.
	OnError func(error)
}

func NewPoller(fetcher Fetcher, book *Book, interval time.Duration) *Poller {
	return &Poller{
		fetcher:  fetcher,
		book:     book,
		interval: interval,
	}
}

// Run fetches immediately and then on every tick until ctx is done. It
// returns only after every fetch it started has finished, and nothing is
// committed after that.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	cancel := p.launch(ctx, &wg, func() {})
	defer func() {
		p.book.Invalidate()
		cancel()
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cancel = p.launch(ctx, &wg, cancel)
		}
	}
}

// Refresh performs one synchronous fetch and commit.
func (p *Poller) Refresh(ctx context.Context) (*Snapshot, error) {
	ticket := p.book.Begin()
	snap, err := p.fetcher.Prices(ctx)
	if err != nil {
		return nil, err
	}
	if !p.book.Commit(ticket, snap) {
		return p.book.Current(), nil
	}
	p.notify(snap)
	return snap, nil
}

func (p *Poller) launch(ctx context.Context, wg *sync.WaitGroup, prev context.CancelFunc) context.CancelFunc {
	prev()
	ticket := p.book.Begin()
	fetchCtx, cancel := context.WithCancel(ctx)

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.fetch(fetchCtx, ticket)
	}()
	return cancel
}

func (p *Poller) fetch(ctx context.Context, ticket Ticket) {
	snap, err := p.fetcher.Prices(ctx)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			slog.Debug("price fetch superseded", "ticket", ticket)
			return
		}
		slog.Warn("price fetch failed", "err", err)
		if p.OnError != nil {
			p.OnError(err)
		}
		return
	}

	if !p.book.Commit(ticket, snap) {
		slog.Debug("discarding stale prices", "ticket", ticket)
		return
	}
	slog.Debug("prices updated", "symbols", snap.Len())
	p.notify(snap)
}

// notify runs OnUpdate for snap unless a later commit has already replaced
// it. Commits only move forward, so hooks observe them in order.
func (p *Poller) notify(snap *Snapshot) {
	if p.OnUpdate == nil {
		return
	}
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()
	if p.book.Current() != snap {
		return
	}
	p.OnUpdate(snap)
}
