package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/exodusfi/exodus/internal/domain"
	"github.com/exodusfi/exodus/internal/ledger"
	"github.com/exodusfi/exodus/internal/metrics"
	"github.com/exodusfi/exodus/internal/store"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type failingScanner struct {
	err error
}

func (f *failingScanner) ScanPending(_ context.Context, _ store.PendingScan) ([]domain.PendingConversion, error) {
	return nil, f.err
}

// seed saves records into a fresh memory store.
func seed(t *testing.T, records ...domain.PendingConversion) *store.MemoryStore {
	t.Helper()
	st := store.NewMemoryStore()
	ctx := context.Background()
	err := st.WithTx(ctx, func(tx store.Tx) error {
		for _, p := range records {
			if err := tx.SavePending(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seeding store: %v", err)
	}
	return st
}

type mockLedger struct {
	mu       sync.Mutex
	settled  []ledger.SettleRequest
	expired  []uint64
	navs     []string
	failFor  map[uint64]error
	failPool map[string]error
}

func (m *mockLedger) SettleConversion(_ context.Context, _ string, req ledger.SettleRequest) (ledger.Settlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failFor[req.Nonce]; err != nil {
		return ledger.Settlement{}, err
	}
	m.settled = append(m.settled, req)
	return ledger.Settlement{}, nil
}

func (m *mockLedger) ExpireConversion(_ context.Context, _, user string, nonce uint64) (domain.PendingConversion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failFor[nonce]; err != nil {
		return domain.PendingConversion{}, err
	}
	m.expired = append(m.expired, nonce)
	return domain.PendingConversion{User: user, Nonce: nonce}, nil
}

func (m *mockLedger) UpdateNAV(_ context.Context, _, poolID string) (domain.YieldPool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failPool[poolID]; err != nil {
		return domain.YieldPool{}, err
	}
	m.navs = append(m.navs, poolID)
	return domain.YieldPool{ID: poolID, NAVPerShare: domain.Scale}, nil
}

func pendingAt(nonce uint64, created time.Time) domain.PendingConversion {
	return domain.NewPendingConversion("alice", nonce, 1_000_000, 0, created)
}

func TestSettleAllSkipsExpiredAndContinuesOnFailure(t *testing.T) {
	st := seed(t,
		pendingAt(1, testNow.Add(-time.Hour)),
		pendingAt(2, testNow.Add(-48*time.Hour)),
		pendingAt(3, testNow.Add(-time.Hour+time.Second)),
		pendingAt(4, testNow.Add(-time.Minute)),
	)
	l := &mockLedger{failFor: map[uint64]error{3: domain.ErrSlippageExceeded}}
	w := NewSettlementWorker(st, l, "keeper", "tbill", time.Minute)
	w.now = func() time.Time { return testNow }

	n, err := w.SettleAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("settled = %d, want 2", n)
	}
	if len(l.settled) != 2 || l.settled[0].Nonce != 1 || l.settled[1].Nonce != 4 {
		t.Errorf("settled requests = %+v, want nonces 1 and 4", l.settled)
	}
	for _, req := range l.settled {
		if req.PoolID != "tbill" {
			t.Errorf("pool = %q, want tbill", req.PoolID)
		}
	}
}

func TestSettleAllReachesRecordsBehindFailingPage(t *testing.T) {
	failing := make(map[uint64]error)
	records := make([]domain.PendingConversion, 0, pageSize+1)
	for i := range uint64(pageSize) {
		p := domain.NewPendingConversion("spammer", i+1, 1, 1<<60, testNow.Add(-time.Hour))
		records = append(records, p)
		failing[p.Nonce] = domain.ErrSlippageExceeded
	}
	records = append(records, domain.NewPendingConversion("honest", 9_999, 1_000_000, 0, testNow.Add(-time.Minute)))

	l := &mockLedger{failFor: failing}
	w := NewSettlementWorker(seed(t, records...), l, "keeper", "tbill", time.Minute)
	w.now = func() time.Time { return testNow }

	n, err := w.SettleAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 || len(l.settled) != 1 || l.settled[0].User != "honest" {
		t.Errorf("settled = %d %+v, want the honest record", n, l.settled)
	}
}

func TestSettleAllScanError(t *testing.T) {
	w := NewSettlementWorker(&failingScanner{err: errors.New("db down")}, &mockLedger{}, "keeper", "tbill", time.Minute)
	if _, err := w.SettleAll(context.Background()); err == nil {
		t.Fatal("expected scan error")
	}
}

func TestExpireOverdue(t *testing.T) {
	created := testNow.Add(-domain.PendingTTL)
	st := seed(t,
		pendingAt(1, created),                   // expires exactly now: not overdue
		pendingAt(2, created.Add(-time.Second)), // overdue
		pendingAt(3, testNow),                   // fresh
		pendingAt(4, created.Add(-time.Hour)),   // overdue, fails
	)
	l := &mockLedger{failFor: map[uint64]error{4: domain.ErrInvalidState}}
	w := NewExpiryWorker(st, l, "keeper", time.Minute)
	w.now = func() time.Time { return testNow }

	n, err := w.ExpireOverdue(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 || len(l.expired) != 1 || l.expired[0] != 2 {
		t.Errorf("expired = %v (n=%d), want [2]", l.expired, n)
	}
}

func TestExpireOverdueBeyondOnePage(t *testing.T) {
	records := make([]domain.PendingConversion, 0, pageSize+10)
	for i := range uint64(pageSize + 10) {
		records = append(records, pendingAt(i+1, testNow.Add(-48*time.Hour)))
	}
	l := &mockLedger{failFor: map[uint64]error{}}
	w := NewExpiryWorker(seed(t, records...), l, "keeper", time.Minute)
	w.now = func() time.Time { return testNow }

	n, err := w.ExpireOverdue(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != pageSize+10 {
		t.Errorf("expired = %d, want %d", n, pageSize+10)
	}
}

type mockPools struct {
	pools []domain.YieldPool
}

func (m *mockPools) ListPools(_ context.Context) ([]domain.YieldPool, error) { return m.pools, nil }

func TestNavUpdateAll(t *testing.T) {
	pools := &mockPools{pools: []domain.YieldPool{
		{ID: "a", Active: true},
		{ID: "b", Active: false},
		{ID: "c", Active: true},
		{ID: "d", Active: true},
	}}
	l := &mockLedger{failPool: map[string]error{"c": domain.ErrInvalidNav}}
	w := NewNavWorker(pools, l, "keeper", time.Minute)

	err := w.UpdateAll(context.Background())
	if !errors.Is(err, domain.ErrInvalidNav) {
		t.Errorf("err = %v, want ErrInvalidNav", err)
	}
	if len(l.navs) != 2 || l.navs[0] != "a" || l.navs[1] != "d" {
		t.Errorf("updated = %v, want [a d]", l.navs)
	}
}

type mockSnapshotGenerator struct {
	callCount atomic.Int32
}

func (m *mockSnapshotGenerator) Generate(_ context.Context, _ time.Time) (metrics.Stats, error) {
	m.callCount.Add(1)
	return metrics.Stats{}, nil
}

type mockHook struct {
	callCount atomic.Int32
}

func (m *mockHook) Export(_ context.Context) error {
	m.callCount.Add(1)
	return nil
}

func TestSnapshotWorkerRunsAndShutdown(t *testing.T) {
	gen := &mockSnapshotGenerator{}
	hook := &mockHook{}
	w := NewSnapshotWorker(gen, 50*time.Millisecond, hook)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	w.Run(ctx)

	if got := gen.callCount.Load(); got < 1 {
		t.Errorf("call count = %d, want >= 1", got)
	}
	if got := hook.callCount.Load(); got != gen.callCount.Load() {
		t.Errorf("hook calls = %d, want %d", got, gen.callCount.Load())
	}
}

func TestSnapshotWorkerNilHook(t *testing.T) {
	gen := &mockSnapshotGenerator{}
	w := NewSnapshotWorker(gen, time.Hour, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	w.Run(ctx)

	if got := gen.callCount.Load(); got != 1 {
		t.Errorf("call count = %d, want 1", got)
	}
}
