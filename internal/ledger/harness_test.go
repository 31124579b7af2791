package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/exodusfi/exodus/internal/custody"
	"github.com/exodusfi/exodus/internal/domain"
	"github.com/exodusfi/exodus/internal/events"
	"github.com/exodusfi/exodus/internal/identity"
	"github.com/exodusfi/exodus/internal/navsource"
	"github.com/exodusfi/exodus/internal/oracle"
	"github.com/exodusfi/exodus/internal/record"
	"github.com/exodusfi/exodus/internal/source"
	"github.com/exodusfi/exodus/internal/store"
)

const (
	admin       = "admin"
	keeper      = "keeper"
	fiatVault   = "vault-fiat"
	stableVault = "vault-stable"
	priceRef    = "price/jpy-usd"
	poolID      = "tbill"
	poolVault   = "pool-tbill"
	poolNAVRef  = "nav/tbill"
)

var genesis = time.Unix(1_700_000_000, 0)

type harness struct {
	t      *testing.T
	ctx    context.Context
	now    time.Time
	store  *store.MemoryStore
	book   *custody.Book
	src    *source.MemoryFetcher
	events *events.Recorder
	engine *Engine
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		ctx:    context.Background(),
		now:    genesis,
		store:  store.NewMemoryStore(),
		book:   custody.NewBook(),
		src:    source.NewMemoryFetcher(),
		events: &events.Recorder{},
	}
	opts = append([]Option{WithClock(func() time.Time { return h.now })}, opts...)
	h.engine = NewEngine(h.store, h.book, oracle.NewAdapter(h.src, 0), identity.NewService(h.src),
		navsource.NewReader(h.src), h.events, opts...)

	if _, err := h.engine.InitializeProtocol(h.ctx, InitParams{
		Authority:   admin,
		FiatVault:   fiatVault,
		StableVault: stableVault,
		Oracle:      priceRef,
		Keepers:     []string{keeper},
		Fees:        domain.Fees{ConversionBps: 50, ManagementBps: 100, PerformanceBps: 2000},
	}); err != nil {
		t.Fatalf("initializing protocol: %v", err)
	}
	if _, err := h.engine.RegisterPool(h.ctx, admin, PoolParams{
		ID:           poolID,
		Name:         "Treasury bills",
		Type:         string(domain.PoolFixedIncome),
		DepositVault: poolVault,
		NAVSource:    poolNAVRef,
		WeightBps:    10_000,
	}); err != nil {
		t.Fatalf("registering pool: %v", err)
	}
	h.fund(domain.AssetStable, stableVault, 1_000_000_000_000)
	h.setPrice(155_000_000, h.now)
	return h
}

func (h *harness) advance(d time.Duration) {
	h.now = h.now.Add(d)
}

func (h *harness) fund(asset, endpoint string, amount uint64) {
	h.t.Helper()
	if err := h.book.Credit(asset, endpoint, amount); err != nil {
		h.t.Fatalf("funding %s/%s: %v", asset, endpoint, err)
	}
}

// verify gives user an active authorization and the given tier.
func (h *harness) verify(user string, tierCode uint8) {
	h.src.Put(identity.AuthorizationRef(user), record.EncodeAuthorization(record.Authorization{
		Owner:        record.KeyOf(user),
		Active:       true,
		Jurisdiction: 2,
		ExpiresAt:    h.now.Add(365 * 24 * time.Hour),
	}))
	h.src.Put(identity.IdentityRef(user), record.EncodeIdentity(record.Identity{
		Owner: record.KeyOf(user),
		Tier:  tierCode,
	}))
}

func (h *harness) setPrice(rate uint64, updated time.Time) {
	h.src.Put(priceRef, record.EncodePriceFeed(record.PriceFeed{Price: rate, LastUpdate: updated}))
}

func (h *harness) setNAV(nav uint64, apy uint16) {
	h.src.Put(poolNAVRef, record.EncodeVaultState(record.VaultState{NAVPerShare: nav, TargetAPYBps: apy, Active: true}))
	if _, err := h.engine.UpdateNAV(h.ctx, keeper, poolID); err != nil {
		h.t.Fatalf("updating nav: %v", err)
	}
}

func (h *harness) user(owner string) domain.UserLedger {
	h.t.Helper()
	u, err := h.store.GetUser(h.ctx, owner)
	if err != nil {
		h.t.Fatalf("getting user %s: %v", owner, err)
	}
	return u
}

func (h *harness) pool() domain.YieldPool {
	h.t.Helper()
	p, err := h.store.GetPool(h.ctx, poolID)
	if err != nil {
		h.t.Fatalf("getting pool: %v", err)
	}
	return p
}

func (h *harness) protocol() domain.ProtocolLedger {
	h.t.Helper()
	p, err := h.store.GetProtocol(h.ctx)
	if err != nil {
		h.t.Fatalf("getting protocol: %v", err)
	}
	return p
}

// depositFiat verifies and funds user, then opens a pending conversion.
func (h *harness) depositFiat(user string, amount, minOutput uint64) domain.PendingConversion {
	h.t.Helper()
	h.fund(domain.AssetFiat, user, amount)
	p, err := h.engine.DepositFiat(h.ctx, FiatDeposit{User: user, Amount: amount, MinOutput: minOutput})
	if err != nil {
		h.t.Fatalf("depositing fiat: %v", err)
	}
	return p
}

func (h *harness) depositStable(user string, amount uint64) StableResult {
	h.t.Helper()
	h.fund(domain.AssetStable, user, amount)
	res, err := h.engine.DepositStable(h.ctx, StableDeposit{User: user, Amount: amount, PoolID: poolID})
	if err != nil {
		h.t.Fatalf("depositing stable: %v", err)
	}
	return res
}
