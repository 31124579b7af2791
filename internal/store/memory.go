package store

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/samber/lo"

	"github.com/exodusfi/exodus/internal/domain"
)

type pendingKey struct {
	user  string
	nonce uint64
}

type state struct {
	protocol *domain.ProtocolLedger
	pools    map[string]domain.YieldPool
	users    map[string]domain.UserLedger
	pending  map[pendingKey]domain.PendingConversion
	records  map[pendingKey]domain.ConversionRecord
}

// MemoryStore keeps records in process memory. Units are serialized and applied on commit.
type MemoryStore struct {
	mu sync.RWMutex
	s  state
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{s: state{
		pools:   make(map[string]domain.YieldPool),
		users:   make(map[string]domain.UserLedger),
		pending: make(map[pendingKey]domain.PendingConversion),
		records: make(map[pendingKey]domain.ConversionRecord),
	}}
}

// memTx buffers writes over the committed state.
type memTx struct {
	base     *state
	protocol *domain.ProtocolLedger
	pools    map[string]domain.YieldPool
	users    map[string]domain.UserLedger
	pending  map[pendingKey]domain.PendingConversion
	records  map[pendingKey]domain.ConversionRecord
}

func (m *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{
		base:    &m.s,
		pools:   make(map[string]domain.YieldPool),
		users:   make(map[string]domain.UserLedger),
		pending: make(map[pendingKey]domain.PendingConversion),
		records: make(map[pendingKey]domain.ConversionRecord),
	}
	if err := fn(tx); err != nil {
		return err
	}

	if tx.protocol != nil {
		p := tx.protocol.Clone()
		m.s.protocol = &p
	}
	for k, v := range tx.pools {
		m.s.pools[k] = v
	}
	for k, v := range tx.users {
		m.s.users[k] = v
	}
	for k, v := range tx.pending {
		m.s.pending[k] = v
	}
	for k, v := range tx.records {
		m.s.records[k] = v
	}
	return nil
}

func (t *memTx) Protocol(context.Context) (domain.ProtocolLedger, error) {
	if t.protocol != nil {
		return t.protocol.Clone(), nil
	}
	if t.base.protocol == nil {
		return domain.ProtocolLedger{}, ErrNotFound
	}
	return t.base.protocol.Clone(), nil
}

func (t *memTx) SaveProtocol(_ context.Context, p domain.ProtocolLedger) error {
	p = p.Clone()
	t.protocol = &p
	return nil
}

func (t *memTx) Pool(_ context.Context, id string) (domain.YieldPool, error) {
	return lookup(t.pools, t.base.pools, id)
}

func (t *memTx) SavePool(_ context.Context, p domain.YieldPool) error {
	t.pools[p.ID] = p
	return nil
}

func (t *memTx) User(_ context.Context, owner string) (domain.UserLedger, error) {
	return lookup(t.users, t.base.users, owner)
}

func (t *memTx) SaveUser(_ context.Context, u domain.UserLedger) error {
	t.users[u.Owner] = u
	return nil
}

func (t *memTx) Pending(_ context.Context, user string, nonce uint64) (domain.PendingConversion, error) {
	return lookup(t.pending, t.base.pending, pendingKey{user, nonce})
}

func (t *memTx) SavePending(_ context.Context, p domain.PendingConversion) error {
	t.pending[pendingKey{p.User, p.Nonce}] = p
	return nil
}

func (t *memTx) AppendRecord(_ context.Context, r domain.ConversionRecord) error {
	key := pendingKey{r.User, r.Nonce}
	if _, err := lookup(t.records, t.base.records, key); err == nil {
		return ErrDuplicate
	}
	t.records[key] = r
	return nil
}

func lookup[K comparable, V any](overlay, base map[K]V, key K) (V, error) {
	if v, ok := overlay[key]; ok {
		return v, nil
	}
	if v, ok := base[key]; ok {
		return v, nil
	}
	var zero V
	return zero, ErrNotFound
}

func (m *MemoryStore) GetProtocol(context.Context) (domain.ProtocolLedger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.s.protocol == nil {
		return domain.ProtocolLedger{}, ErrNotFound
	}
	return m.s.protocol.Clone(), nil
}

func (m *MemoryStore) GetPool(_ context.Context, id string) (domain.YieldPool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lookup(nil, m.s.pools, id)
}

func (m *MemoryStore) GetUser(_ context.Context, owner string) (domain.UserLedger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lookup(nil, m.s.users, owner)
}

func (m *MemoryStore) GetPending(_ context.Context, user string, nonce uint64) (domain.PendingConversion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lookup(nil, m.s.pending, pendingKey{user, nonce})
}

func (m *MemoryStore) ListPools(context.Context) ([]domain.YieldPool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pools := lo.Values(m.s.pools)
	slices.SortFunc(pools, func(a, b domain.YieldPool) int { return cmp.Compare(a.ID, b.ID) })
	return pools, nil
}

func (m *MemoryStore) ListPending(_ context.Context, status domain.ConversionStatus, limit int) ([]domain.PendingConversion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pending := lo.Filter(lo.Values(m.s.pending), func(p domain.PendingConversion, _ int) bool {
		return p.Status == status
	})
	slices.SortFunc(pending, func(a, b domain.PendingConversion) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if c := cmp.Compare(a.User, b.User); c != 0 {
			return c
		}
		return cmp.Compare(a.Nonce, b.Nonce)
	})
	return lo.Subset(pending, 0, uint(listLimit(limit))), nil
}

func (m *MemoryStore) ScanPending(_ context.Context, q PendingScan) ([]domain.PendingConversion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pending := lo.Filter(lo.Values(m.s.pending), func(p domain.PendingConversion, _ int) bool {
		return q.matches(p)
	})
	slices.SortFunc(pending, func(a, b domain.PendingConversion) int {
		return compareCursor(CursorOf(a), CursorOf(b))
	})
	return lo.Subset(pending, 0, uint(listLimit(q.Limit))), nil
}

func (m *MemoryStore) CountPending(_ context.Context, status domain.ConversionStatus) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lo.CountBy(lo.Values(m.s.pending), func(p domain.PendingConversion) bool {
		return p.Status == status
	}), nil
}

func (m *MemoryStore) ListRecords(_ context.Context, user string, limit int) ([]domain.ConversionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := lo.Filter(lo.Values(m.s.records), func(r domain.ConversionRecord, _ int) bool {
		return user == "" || r.User == user
	})
	slices.SortFunc(records, func(a, b domain.ConversionRecord) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		if c := cmp.Compare(a.User, b.User); c != 0 {
			return c
		}
		return cmp.Compare(b.Nonce, a.Nonce)
	})
	return lo.Subset(records, 0, uint(listLimit(limit))), nil
}
