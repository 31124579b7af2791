package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/exodusfi/exodus/internal/custody"
	"github.com/exodusfi/exodus/internal/domain"
	"github.com/exodusfi/exodus/internal/identity"
	"github.com/exodusfi/exodus/internal/ledger"
	"github.com/exodusfi/exodus/internal/metrics"
	"github.com/exodusfi/exodus/internal/navsource"
	"github.com/exodusfi/exodus/internal/oracle"
	"github.com/exodusfi/exodus/internal/record"
	"github.com/exodusfi/exodus/internal/snapshot"
	"github.com/exodusfi/exodus/internal/source"
	"github.com/exodusfi/exodus/internal/store"
)

const (
	testAdminKey  = "admin-key"
	testKeeperKey = "keeper-key"
	priceRef      = "price/jpy-usd"
)

type testServer struct {
	t      *testing.T
	router http.Handler
	src    *source.MemoryFetcher
	book   *custody.Book
	store  *store.MemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st := store.NewMemoryStore()
	src := source.NewMemoryFetcher()
	book := custody.NewBook()
	engine := ledger.NewEngine(st, book, oracle.NewAdapter(src, 0), identity.NewService(src), navsource.NewReader(src), nil)
	stats := metrics.NewService(st)

	ts := &testServer{
		t:     t,
		src:   src,
		book:  book,
		store: st,
		router: NewRouter(Options{
			AdminAPIKey:      testAdminKey,
			KeeperAPIKey:     testKeeperKey,
			AuthorityID:      "admin",
			KeeperID:         "keeper",
			SettlementPoolID: "tbill",
		}, Deps{
			Ledger:    engine,
			Reader:    st,
			Stats:     stats,
			Snapshots: snapshot.NewService(stats, snapshot.NewMemoryRepository()),
		}),
	}
	src.Put(priceRef, record.EncodePriceFeed(record.PriceFeed{Price: 155_000_000, LastUpdate: time.Now()}))
	return ts
}

func (s *testServer) do(method, path, bearer, user string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) bootstrap() {
	s.t.Helper()
	if w := s.do(http.MethodPost, "/api/v1/admin/protocol", testAdminKey, "", ledger.InitParams{
		FiatVault:   "vault-fiat",
		StableVault: "vault-stable",
		Oracle:      priceRef,
		Keepers:     []string{"keeper"},
		Fees:        domain.Fees{ConversionBps: 50, ManagementBps: 100, PerformanceBps: 2000},
	}); w.Code != http.StatusCreated {
		s.t.Fatalf("initialize: status = %d, body = %s", w.Code, w.Body)
	}
	if w := s.do(http.MethodPost, "/api/v1/admin/pools", testAdminKey, "", ledger.PoolParams{
		ID:           "tbill",
		Name:         "Treasury bills",
		Type:         string(domain.PoolFixedIncome),
		DepositVault: "pool-tbill",
		NAVSource:    "nav/tbill",
		WeightBps:    10_000,
	}); w.Code != http.StatusCreated {
		s.t.Fatalf("register pool: status = %d, body = %s", w.Code, w.Body)
	}
	if err := s.book.Credit(domain.AssetStable, "vault-stable", 1_000_000_000); err != nil {
		s.t.Fatal(err)
	}
}

func (s *testServer) verify(user string, tierCode uint8) {
	s.src.Put(identity.AuthorizationRef(user), record.EncodeAuthorization(record.Authorization{
		Owner:        record.KeyOf(user),
		Active:       true,
		Jurisdiction: 2,
		ExpiresAt:    time.Now().Add(24 * time.Hour),
	}))
	s.src.Put(identity.IdentityRef(user), record.EncodeIdentity(record.Identity{Owner: record.KeyOf(user), Tier: tierCode}))
}

func TestFiatDepositSettleFlow(t *testing.T) {
	s := newTestServer(t)
	s.bootstrap()
	s.verify("alice", 2)
	if err := s.book.Credit(domain.AssetFiat, "alice", 5_000_000); err != nil {
		t.Fatal(err)
	}

	w := s.do(http.MethodPost, "/api/v1/deposits/fiat", "", "alice", ledger.FiatDeposit{Amount: 1_000_000})
	if w.Code != http.StatusCreated {
		t.Fatalf("deposit: status = %d, body = %s", w.Code, w.Body)
	}
	var pending domain.PendingConversion
	if err := json.Unmarshal(w.Body.Bytes(), &pending); err != nil {
		t.Fatal(err)
	}
	if pending.User != "alice" || pending.Status != domain.StatusPending {
		t.Errorf("pending = %+v", pending)
	}

	settlePath := fmt.Sprintf("/api/v1/keeper/conversions/alice/%d/settle", pending.Nonce)
	if w := s.do(http.MethodPost, settlePath, "", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("settle without key: status = %d, want 401", w.Code)
	}

	w = s.do(http.MethodPost, settlePath, testKeeperKey, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("settle: status = %d, body = %s", w.Code, w.Body)
	}
	var settled ledger.Settlement
	if err := json.Unmarshal(w.Body.Bytes(), &settled); err != nil {
		t.Fatal(err)
	}
	if settled.Record.Output != 6_419 || settled.Record.Fee != 32 {
		t.Errorf("record = %+v, want output 6419 fee 32", settled.Record)
	}

	// A second settle hits the exactly-once guard.
	if w := s.do(http.MethodPost, settlePath, testKeeperKey, "", nil); w.Code != http.StatusConflict {
		t.Errorf("second settle: status = %d, want 409", w.Code)
	}

	w = s.do(http.MethodGet, "/api/v1/users/alice/conversions", "", "", nil)
	var records []domain.ConversionRecord
	if err := json.Unmarshal(w.Body.Bytes(), &records); err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Errorf("records = %d, want 1", len(records))
	}
}

func TestSettleOptionalBody(t *testing.T) {
	tests := []struct {
		name     string
		body     io.Reader
		wantCode int
	}{
		{"no body", nil, http.StatusOK},
		{"chunked empty body", io.NopCloser(strings.NewReader("")), http.StatusOK},
		{"explicit pool", strings.NewReader(`{"poolId":"tbill"}`), http.StatusOK},
		{"unknown pool", strings.NewReader(`{"poolId":"nope"}`), http.StatusNotFound},
		{"malformed", strings.NewReader(`{"poolId":`), http.StatusBadRequest},
		{"unknown field", strings.NewReader(`{"pool":"tbill"}`), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			s.bootstrap()
			s.verify("alice", 2)
			if err := s.book.Credit(domain.AssetFiat, "alice", 1_000_000); err != nil {
				t.Fatal(err)
			}
			if w := s.do(http.MethodPost, "/api/v1/deposits/fiat", "", "alice", ledger.FiatDeposit{Amount: 1_000_000}); w.Code != http.StatusCreated {
				t.Fatalf("deposit: status = %d, body = %s", w.Code, w.Body)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/v1/keeper/conversions/alice/1/settle", tt.body)
			req.Header.Set("Authorization", "Bearer "+testKeeperKey)
			w := httptest.NewRecorder()
			s.router.ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d, body = %s", w.Code, tt.wantCode, w.Body)
			}
		})
	}
}

func TestErrorStatusMapping(t *testing.T) {
	s := newTestServer(t)

	if w := s.do(http.MethodGet, "/api/v1/protocol", "", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("uninitialized protocol: status = %d, want 404", w.Code)
	}

	s.bootstrap()

	tests := []struct {
		name   string
		method string
		path   string
		bearer string
		user   string
		body   any
		want   int
	}{
		{"zero amount", http.MethodPost, "/api/v1/deposits/fiat", "", "bob", ledger.FiatDeposit{}, http.StatusBadRequest},
		{"no identity", http.MethodPost, "/api/v1/deposits/fiat", "", "bob", ledger.FiatDeposit{Amount: 1}, http.StatusForbidden},
		{"missing user header", http.MethodPost, "/api/v1/withdrawals", "", "", ledger.Withdrawal{Shares: 1}, http.StatusUnauthorized},
		{"unknown user", http.MethodGet, "/api/v1/users/nobody", "", "", nil, http.StatusNotFound},
		{"bad nonce", http.MethodPost, "/api/v1/conversions/abc/cancel", "", "bob", nil, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/v1/withdrawals", "", "bob", map[string]any{"bogus": 1}, http.StatusBadRequest},
		{"fee over cap", http.MethodPut, "/api/v1/admin/fees", testAdminKey, "", domain.Fees{ConversionBps: 1001}, http.StatusBadRequest},
		{"admin wrong key", http.MethodPost, "/api/v1/admin/pause", testKeeperKey, "", nil, http.StatusUnauthorized},
		{"pool exists", http.MethodPost, "/api/v1/admin/pools", testAdminKey, "", ledger.PoolParams{ID: "tbill", Name: "x", Type: "lending", DepositVault: "v", NAVSource: "n"}, http.StatusConflict},
		{"nav source missing", http.MethodPost, "/api/v1/keeper/pools/tbill/nav", testKeeperKey, "", nil, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(tt.method, tt.path, tt.bearer, tt.user, tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body)
			}
		})
	}
}

func TestPauseBlocksDeposits(t *testing.T) {
	s := newTestServer(t)
	s.bootstrap()
	s.verify("alice", 2)

	if w := s.do(http.MethodPost, "/api/v1/admin/pause", testAdminKey, "", nil); w.Code != http.StatusOK {
		t.Fatalf("pause: status = %d", w.Code)
	}
	w := s.do(http.MethodPost, "/api/v1/deposits/fiat", "", "alice", ledger.FiatDeposit{Amount: 1_000_000})
	if w.Code != http.StatusConflict {
		t.Errorf("deposit while paused: status = %d, want 409", w.Code)
	}
	var body errorBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Kind != domain.KindState {
		t.Errorf("kind = %q, want state", body.Kind)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrMonthlyLimitExceeded, http.StatusTooManyRequests},
		{domain.ErrStalePrice, http.StatusServiceUnavailable},
		{domain.ErrArithmeticOverflow, http.StatusUnprocessableEntity},
		{fmt.Errorf("wrapped: %w", domain.ErrSlippageExceeded), http.StatusConflict},
		{store.ErrNotFound, http.StatusNotFound},
		{snapshot.ErrNotFound, http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestSnapshotRoutes(t *testing.T) {
	s := newTestServer(t)
	s.bootstrap()

	if w := s.do(http.MethodGet, "/api/v1/snapshots/latest", "", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("latest before generation: status = %d, want 404", w.Code)
	}
	if w := s.do(http.MethodGet, "/api/v1/snapshots/not-a-date", "", "", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad date: status = %d, want 400", w.Code)
	}

	w := s.do(http.MethodGet, "/api/v1/snapshots", "", "", nil)
	if w.Code != http.StatusOK || w.Body.String() != "[]\n" {
		t.Errorf("empty list: status = %d, body = %q", w.Code, w.Body)
	}

	w = s.do(http.MethodGet, "/api/v1/stats", "", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats: status = %d, body = %s", w.Code, w.Body)
	}
	var stats metrics.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if len(stats.Pools) != 1 {
		t.Errorf("stats pools = %d, want 1", len(stats.Pools))
	}
}
