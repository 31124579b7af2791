package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/exodusfi/exodus/internal/domain"
	"github.com/exodusfi/exodus/internal/ledger"
	"github.com/exodusfi/exodus/internal/metrics"
	"github.com/exodusfi/exodus/internal/snapshot"
	"github.com/exodusfi/exodus/internal/store"
)

// Ledger is the set of ledger operations exposed over HTTP.
type Ledger interface {
	InitializeProtocol(ctx context.Context, params ledger.InitParams) (domain.ProtocolLedger, error)
	RegisterPool(ctx context.Context, caller string, params ledger.PoolParams) (domain.YieldPool, error)
	UpdatePool(ctx context.Context, caller, id string, update ledger.PoolUpdate) (domain.YieldPool, error)
	UpdateFees(ctx context.Context, caller string, fees domain.Fees) (domain.ProtocolLedger, error)
	Pause(ctx context.Context, caller string) error
	Resume(ctx context.Context, caller string) error

	DepositFiat(ctx context.Context, req ledger.FiatDeposit) (domain.PendingConversion, error)
	DepositStable(ctx context.Context, req ledger.StableDeposit) (ledger.StableResult, error)
	CancelConversion(ctx context.Context, user string, nonce uint64) (domain.PendingConversion, error)
	Withdraw(ctx context.Context, req ledger.Withdrawal) (ledger.WithdrawalResult, error)
	ClaimYield(ctx context.Context, req ledger.YieldClaim) (ledger.ClaimResult, error)

	SettleConversion(ctx context.Context, keeper string, req ledger.SettleRequest) (ledger.Settlement, error)
	ExpireConversion(ctx context.Context, keeper, user string, nonce uint64) (domain.PendingConversion, error)
	UpdateNAV(ctx context.Context, keeper, poolID string) (domain.YieldPool, error)
}

// Reader serves read-only record queries.
type Reader interface {
	GetProtocol(ctx context.Context) (domain.ProtocolLedger, error)
	ListPools(ctx context.Context) ([]domain.YieldPool, error)
	GetUser(ctx context.Context, owner string) (domain.UserLedger, error)
	ListRecords(ctx context.Context, user string, limit int) ([]domain.ConversionRecord, error)
}

// StatsSource computes current protocol statistics.
type StatsSource interface {
	Stats(ctx context.Context) (metrics.Stats, error)
}

// Deps are the services behind the handlers. Events may be nil.
type Deps struct {
	Ledger    Ledger
	Reader    Reader
	Stats     StatsSource
	Snapshots *snapshot.Service
	Events    http.Handler
}

// Handler provides HTTP endpoints for the settlement API.
type Handler struct {
	deps Deps
	opts Options
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps, opts Options) *Handler {
	return &Handler{deps: deps, opts: opts}
}

// GetProtocol handles GET /api/v1/protocol.
func (h *Handler) GetProtocol(w http.ResponseWriter, r *http.Request) {
	p, err := h.deps.Reader.GetProtocol(r.Context())
	if err != nil {
		writeFailure(w, "get protocol", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ListPools handles GET /api/v1/pools.
func (h *Handler) ListPools(w http.ResponseWriter, r *http.Request) {
	pools, err := h.deps.Reader.ListPools(r.Context())
	if err != nil {
		writeFailure(w, "list pools", err)
		return
	}
	if pools == nil {
		pools = []domain.YieldPool{}
	}
	writeJSON(w, http.StatusOK, pools)
}

// GetStats handles GET /api/v1/stats.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.deps.Stats.Stats(r.Context())
	if err != nil {
		writeFailure(w, "compute stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GetUser handles GET /api/v1/users/{user}.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.deps.Reader.GetUser(r.Context(), chi.URLParam(r, "user"))
	if err != nil {
		writeFailure(w, "get user", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// ListConversions handles GET /api/v1/users/{user}/conversions.
func (h *Handler) ListConversions(w http.ResponseWriter, r *http.Request) {
	records, err := h.deps.Reader.ListRecords(r.Context(), chi.URLParam(r, "user"), queryLimit(r, 100, 1000))
	if err != nil {
		writeFailure(w, "list conversions", err)
		return
	}
	if records == nil {
		records = []domain.ConversionRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// GetLatestSnapshot handles GET /api/v1/snapshots/latest.
func (h *Handler) GetLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	s, err := h.deps.Snapshots.GetLatest(r.Context())
	if err != nil {
		writeFailure(w, "get latest snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// GetSnapshotByDate handles GET /api/v1/snapshots/{date}.
func (h *Handler) GetSnapshotByDate(w http.ResponseWriter, r *http.Request) {
	dateStr := chi.URLParam(r, "date")
	date, err := time.Parse(time.DateOnly, dateStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format, expected YYYY-MM-DD")
		return
	}

	s, err := h.deps.Snapshots.GetByDate(r.Context(), date)
	if err != nil {
		writeFailure(w, "get snapshot by date", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// ListSnapshots handles GET /api/v1/snapshots.
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	snapshots, err := h.deps.Snapshots.List(r.Context(), queryLimit(r, 30, 365))
	if err != nil {
		writeFailure(w, "list snapshots", err)
		return
	}
	if snapshots == nil {
		snapshots = []snapshot.Snapshot{}
	}
	writeJSON(w, http.StatusOK, snapshots)
}

// DepositFiat handles POST /api/v1/deposits/fiat.
func (h *Handler) DepositFiat(w http.ResponseWriter, r *http.Request) {
	var req ledger.FiatDeposit
	if !decode(w, r, &req) {
		return
	}
	req.User = callerFrom(r.Context())
	p, err := h.deps.Ledger.DepositFiat(r.Context(), req)
	if err != nil {
		writeFailure(w, "deposit fiat", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// DepositStable handles POST /api/v1/deposits/stable.
func (h *Handler) DepositStable(w http.ResponseWriter, r *http.Request) {
	var req ledger.StableDeposit
	if !decode(w, r, &req) {
		return
	}
	req.User = callerFrom(r.Context())
	res, err := h.deps.Ledger.DepositStable(r.Context(), req)
	if err != nil {
		writeFailure(w, "deposit stable", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// CancelConversion handles POST /api/v1/conversions/{nonce}/cancel.
func (h *Handler) CancelConversion(w http.ResponseWriter, r *http.Request) {
	nonce, ok := nonceParam(w, r)
	if !ok {
		return
	}
	p, err := h.deps.Ledger.CancelConversion(r.Context(), callerFrom(r.Context()), nonce)
	if err != nil {
		writeFailure(w, "cancel conversion", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Withdraw handles POST /api/v1/withdrawals.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req ledger.Withdrawal
	if !decode(w, r, &req) {
		return
	}
	req.User = callerFrom(r.Context())
	res, err := h.deps.Ledger.Withdraw(r.Context(), req)
	if err != nil {
		writeFailure(w, "withdraw", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ClaimYield handles POST /api/v1/yield/claim.
func (h *Handler) ClaimYield(w http.ResponseWriter, r *http.Request) {
	var req ledger.YieldClaim
	if !decode(w, r, &req) {
		return
	}
	req.User = callerFrom(r.Context())
	res, err := h.deps.Ledger.ClaimYield(r.Context(), req)
	if err != nil {
		writeFailure(w, "claim yield", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SettleConversion handles POST /api/v1/keeper/conversions/{user}/{nonce}/settle.
// The body is optional; an empty pool falls back to the configured settlement pool.
func (h *Handler) SettleConversion(w http.ResponseWriter, r *http.Request) {
	nonce, ok := nonceParam(w, r)
	if !ok {
		return
	}
	var body struct {
		PoolID string `json:"poolId"`
	}
	if !decodeOptional(w, r, &body) {
		return
	}
	if body.PoolID == "" {
		body.PoolID = h.opts.SettlementPoolID
	}

	res, err := h.deps.Ledger.SettleConversion(r.Context(), h.opts.KeeperID, ledger.SettleRequest{
		User:   chi.URLParam(r, "user"),
		Nonce:  nonce,
		PoolID: body.PoolID,
	})
	if err != nil {
		writeFailure(w, "settle conversion", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ExpireConversion handles POST /api/v1/keeper/conversions/{user}/{nonce}/expire.
func (h *Handler) ExpireConversion(w http.ResponseWriter, r *http.Request) {
	nonce, ok := nonceParam(w, r)
	if !ok {
		return
	}
	p, err := h.deps.Ledger.ExpireConversion(r.Context(), h.opts.KeeperID, chi.URLParam(r, "user"), nonce)
	if err != nil {
		writeFailure(w, "expire conversion", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// UpdateNAV handles POST /api/v1/keeper/pools/{pool}/nav.
func (h *Handler) UpdateNAV(w http.ResponseWriter, r *http.Request) {
	pool, err := h.deps.Ledger.UpdateNAV(r.Context(), h.opts.KeeperID, chi.URLParam(r, "pool"))
	if err != nil {
		writeFailure(w, "update nav", err)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

// InitializeProtocol handles POST /api/v1/admin/protocol.
func (h *Handler) InitializeProtocol(w http.ResponseWriter, r *http.Request) {
	var params ledger.InitParams
	if !decode(w, r, &params) {
		return
	}
	if params.Authority == "" {
		params.Authority = h.opts.AuthorityID
	}
	p, err := h.deps.Ledger.InitializeProtocol(r.Context(), params)
	if err != nil {
		writeFailure(w, "initialize protocol", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// RegisterPool handles POST /api/v1/admin/pools.
func (h *Handler) RegisterPool(w http.ResponseWriter, r *http.Request) {
	var params ledger.PoolParams
	if !decode(w, r, &params) {
		return
	}
	pool, err := h.deps.Ledger.RegisterPool(r.Context(), h.opts.AuthorityID, params)
	if err != nil {
		writeFailure(w, "register pool", err)
		return
	}
	writeJSON(w, http.StatusCreated, pool)
}

// UpdatePool handles PATCH /api/v1/admin/pools/{pool}.
func (h *Handler) UpdatePool(w http.ResponseWriter, r *http.Request) {
	var update ledger.PoolUpdate
	if !decode(w, r, &update) {
		return
	}
	pool, err := h.deps.Ledger.UpdatePool(r.Context(), h.opts.AuthorityID, chi.URLParam(r, "pool"), update)
	if err != nil {
		writeFailure(w, "update pool", err)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

// UpdateFees handles PUT /api/v1/admin/fees.
func (h *Handler) UpdateFees(w http.ResponseWriter, r *http.Request) {
	var fees domain.Fees
	if !decode(w, r, &fees) {
		return
	}
	p, err := h.deps.Ledger.UpdateFees(r.Context(), h.opts.AuthorityID, fees)
	if err != nil {
		writeFailure(w, "update fees", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Pause handles POST /api/v1/admin/pause.
func (h *Handler) Pause(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Ledger.Pause(r.Context(), h.opts.AuthorityID); err != nil {
		writeFailure(w, "pause", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"active": false})
}

// Resume handles POST /api/v1/admin/resume.
func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Ledger.Resume(r.Context(), h.opts.AuthorityID); err != nil {
		writeFailure(w, "resume", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"active": true})
}

const maxBodyBytes = 1 << 20

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	return decodeBody(w, r, v, false)
}

// decodeOptional is decode for endpoints whose body may be absent. An empty body leaves v
// untouched whether or not the client sent a Content-Length.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	return decodeBody(w, r, v, true)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func nonceParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	nonce, err := strconv.ParseUint(chi.URLParam(r, "nonce"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid nonce")
		return 0, false
	}
	return nonce, true
}

func queryLimit(r *http.Request, def, maxLimit int) int {
	limit := def
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = min(n, maxLimit)
		}
	}
	return limit
}

// statusFor maps an error to its HTTP status by kind.
func statusFor(err error) int {
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, snapshot.ErrNotFound) {
		return http.StatusNotFound
	}
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindAuthorization:
		return http.StatusForbidden
	case domain.KindLimit:
		return http.StatusTooManyRequests
	case domain.KindExternalData:
		return http.StatusServiceUnavailable
	case domain.KindArithmetic:
		return http.StatusUnprocessableEntity
	case domain.KindState:
		return http.StatusConflict
	case domain.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeFailure reports err with its mapped status. Internal errors are logged and hidden.
func writeFailure(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "op", op, "error", err)
		writeError(w, status, "internal error")
		return
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Kind: domain.KindOf(err)})
}

type errorBody struct {
	Error string      `json:"error"`
	Kind  domain.Kind `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal JSON response", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.Warn("failed to write HTTP response body", "error", err)
		return
	}
	_, _ = w.Write([]byte("\n"))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
