package prices

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func snapOf(price string) *Snapshot {
	return NewSnapshot(map[string]decimal.Decimal{"AAPL": decimal.RequireFromString(price)}, time.Now())
}

func priceOf(t *testing.T, s *Snapshot) string {
	t.Helper()
	p, ok := s.Price("AAPL")
	if !ok {
		t.Fatal("AAPL not priced")
	}
	return p.String()
}

func TestNewSnapshotDropsNonPositive(t *testing.T) {
	s := NewSnapshot(map[string]decimal.Decimal{
		"AAPL": decimal.NewFromInt(150),
		"ZERO": decimal.Zero,
		"NEG":  decimal.NewFromInt(-1),
	}, time.Unix(1700000000, 0))

	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
	if _, ok := s.Price("ZERO"); ok {
		t.Error("zero price kept")
	}

	var nilSnap *Snapshot
	if _, ok := nilSnap.Price("AAPL"); ok || nilSnap.Len() != 0 {
		t.Error("nil snapshot must read as empty")
	}

	b, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		Prices map[string]string `json:"prices"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatal(err)
	}
	if out.Prices["AAPL"] != "150" {
		t.Errorf("json = %s", b)
	}
}

func TestBookRejectsStaleCommit(t *testing.T) {
	b := NewBook()
	older := b.Begin()
	newer := b.Begin()

	if !b.Commit(newer, snapOf("2")) {
		t.Fatal("latest ticket rejected")
	}
	if b.Commit(older, snapOf("1")) {
		t.Fatal("superseded ticket accepted")
	}
	if got := priceOf(t, b.Current()); got != "2" {
		t.Errorf("price = %s, want 2", got)
	}

	// A late response to a superseded request loses even before the newer one lands.
	first := b.Begin()
	_ = b.Begin()
	if b.Commit(first, snapOf("3")) {
		t.Error("commit of superseded in-flight ticket accepted")
	}

	b.Invalidate()
	if b.Commit(Ticket(^uint64(0)), snapOf("4")) {
		t.Error("bogus ticket accepted")
	}
}

func TestBookInvalidate(t *testing.T) {
	b := NewBook()
	tk := b.Begin()
	b.Invalidate()
	if b.Commit(tk, snapOf("1")) {
		t.Fatal("commit after Invalidate accepted")
	}
	if b.Current() != nil {
		t.Error("Current should still be nil")
	}
}

type fetchFunc func(ctx context.Context) (*Snapshot, error)

func (f fetchFunc) Prices(ctx context.Context) (*Snapshot, error) { return f(ctx) }

func TestPollerFetchesImmediately(t *testing.T) {
	book := NewBook()
	updated := make(chan *Snapshot, 1)
	p := NewPoller(fetchFunc(func(context.Context) (*Snapshot, error) {
		return snapOf("150"), nil
	}), book, time.Hour)
	p.OnUpdate = func(s *Snapshot) {
		select {
		case updated <- s:
		default:
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case <-updated:
	case <-time.After(2 * time.Second):
		t.Fatal("no update before the first tick")
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v", err)
	}
	if got := priceOf(t, book.Current()); got != "150" {
		t.Errorf("price = %s", got)
	}
}

func TestPollerKeepsLastGoodSnapshot(t *testing.T) {
	book := NewBook()
	var calls atomic.Int32
	errs := make(chan error, 10)

	p := NewPoller(fetchFunc(func(context.Context) (*Snapshot, error) {
		if calls.Add(1) == 1 {
			return snapOf("100"), nil
		}
		return nil, errors.New("feed down")
	}), book, 10*time.Millisecond)
	p.OnError = func(err error) {
		select {
		case errs <- err:
		default:
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case <-errs:
	case <-time.After(2 * time.Second):
		t.Fatal("OnError never called")
	}
	cancel()
	<-done

	if got := priceOf(t, book.Current()); got != "100" {
		t.Errorf("price = %s, want last good 100", got)
	}
}

func TestPollerStopsWritingAfterTeardown(t *testing.T) {
	book := NewBook()
	release := make(chan struct{})
	started := make(chan struct{}, 1)

	// Ignores cancellation and answers late, like a slow server.
	p := NewPoller(fetchFunc(func(context.Context) (*Snapshot, error) {
		started <- struct{}{}
		<-release
		return snapOf("999"), nil
	}), book, time.Hour)

	var mu sync.Mutex
	var updates int
	p.OnUpdate = func(*Snapshot) {
		mu.Lock()
		updates++
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	<-started
	cancel()
	time.Sleep(10 * time.Millisecond)
	close(release)
	<-done

	if book.Current() != nil {
		t.Errorf("snapshot written after teardown: %v", book.Current())
	}
	mu.Lock()
	defer mu.Unlock()
	if updates != 0 {
		t.Errorf("OnUpdate called %d times after teardown", updates)
	}
}

func TestPollerDiscardsSupersededFetch(t *testing.T) {
	book := NewBook()
	var calls atomic.Int32
	slowRelease := make(chan struct{})
	fastDone := make(chan struct{})
	var once sync.Once

	p := NewPoller(fetchFunc(func(ctx context.Context) (*Snapshot, error) {
		if calls.Add(1) == 1 {
			// First request ignores cancel and answers after the second one.
			<-slowRelease
			return snapOf("1"), nil
		}
		defer once.Do(func() { close(fastDone) })
		return snapOf("2"), nil
	}), book, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case <-fastDone:
	case <-time.After(2 * time.Second):
		t.Fatal("second fetch never ran")
	}
	// Wait until the second fetch has committed.
	deadline := time.Now().Add(2 * time.Second)
	for book.Current() == nil && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	close(slowRelease)
	cancel()
	<-done

	if got := priceOf(t, book.Current()); got != "2" {
		t.Errorf("price = %s, want 2 (stale response must not overwrite)", got)
	}
}

func TestRefresh(t *testing.T) {
	book := NewBook()
	p := NewPoller(fetchFunc(func(context.Context) (*Snapshot, error) {
		return snapOf("42"), nil
	}), book, time.Hour)

	s, err := p.Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if priceOf(t, s) != "42" || book.Current() != s {
		t.Error("Refresh did not commit")
	}

	p = NewPoller(fetchFunc(func(context.Context) (*Snapshot, error) {
		return nil, errors.New("boom")
	}), book, time.Hour)
	if _, err := p.Refresh(context.Background()); err == nil {
		t.Error("expected error")
	}
	if book.Current() != s {
		t.Error("failed Refresh replaced the snapshot")
	}
}

func TestUpdatesFollowCommitOrder(t *testing.T) {
	book := NewBook()
	p := NewPoller(nil, book, time.Hour)
	var got []string
	p.OnUpdate = func(s *Snapshot) { got = append(got, priceOf(t, s)) }

	a, b := snapOf("100"), snapOf("101")
	if !book.Commit(book.Begin(), a) {
		t.Fatal("commit a rejected")
	}
	if !book.Commit(book.Begin(), b) {
		t.Fatal("commit b rejected")
	}

	// The hook for a runs late, after b's.
	p.notify(b)
	p.notify(a)

	if len(got) != 1 || got[0] != "101" {
		t.Errorf("updates = %v, want [101]", got)
	}
}
