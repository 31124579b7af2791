package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/exodusfi/exodus/internal/domain"
)

const uniqueViolation = "23505"

// PgStore implements Store with PostgreSQL. Records are stored as JSONB documents next to
// their key columns; reads inside a unit take row locks with SELECT ... FOR UPDATE.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// querier is the subset of pgx shared by pools and transactions.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PgStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&pgTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

type pgTx struct {
	q querier
}

func getDoc[T any](ctx context.Context, q querier, what, sql string, args ...any) (T, error) {
	var v T
	var data []byte
	if err := q.QueryRow(ctx, sql, args...).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return v, ErrNotFound
		}
		return v, fmt.Errorf("getting %s: %w", what, err)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decoding %s: %w", what, err)
	}
	return v, nil
}

func putDoc(ctx context.Context, q querier, what, sql string, doc any, args ...any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", what, err)
	}
	if _, err := q.Exec(ctx, sql, append(args, data)...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicate
		}
		return fmt.Errorf("saving %s: %w", what, err)
	}
	return nil
}

func (t *pgTx) Protocol(ctx context.Context) (domain.ProtocolLedger, error) {
	return getDoc[domain.ProtocolLedger](ctx, t.q, "protocol ledger",
		`SELECT data FROM protocol_ledger WHERE id = 1 FOR UPDATE`)
}

func (t *pgTx) SaveProtocol(ctx context.Context, p domain.ProtocolLedger) error {
	return putDoc(ctx, t.q, "protocol ledger",
		`INSERT INTO protocol_ledger (id, data) VALUES (1, $1::jsonb)
		 ON CONFLICT (id) DO UPDATE SET data = $1::jsonb, updated_at = NOW()`, p)
}

func (t *pgTx) Pool(ctx context.Context, id string) (domain.YieldPool, error) {
	return getDoc[domain.YieldPool](ctx, t.q, "pool "+id,
		`SELECT data FROM yield_pools WHERE id = $1 FOR UPDATE`, id)
}

func (t *pgTx) SavePool(ctx context.Context, p domain.YieldPool) error {
	return putDoc(ctx, t.q, "pool "+p.ID,
		`INSERT INTO yield_pools (id, data) VALUES ($1, $2::jsonb)
		 ON CONFLICT (id) DO UPDATE SET data = $2::jsonb, updated_at = NOW()`, p, p.ID)
}

func (t *pgTx) User(ctx context.Context, owner string) (domain.UserLedger, error) {
	return getDoc[domain.UserLedger](ctx, t.q, "user ledger",
		`SELECT data FROM user_ledgers WHERE owner = $1 FOR UPDATE`, owner)
}

func (t *pgTx) SaveUser(ctx context.Context, u domain.UserLedger) error {
	return putDoc(ctx, t.q, "user ledger",
		`INSERT INTO user_ledgers (owner, data) VALUES ($1, $2::jsonb)
		 ON CONFLICT (owner) DO UPDATE SET data = $2::jsonb, updated_at = NOW()`, u, u.Owner)
}

func (t *pgTx) Pending(ctx context.Context, user string, nonce uint64) (domain.PendingConversion, error) {
	return getDoc[domain.PendingConversion](ctx, t.q, "pending conversion",
		`SELECT data FROM pending_conversions WHERE user_id = $1 AND nonce = $2 FOR UPDATE`,
		user, int64(nonce))
}

func (t *pgTx) SavePending(ctx context.Context, p domain.PendingConversion) error {
	return putDoc(ctx, t.q, "pending conversion",
		`INSERT INTO pending_conversions (user_id, nonce, status, created_at, expires_at, data)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb)
		 ON CONFLICT (user_id, nonce) DO UPDATE SET status = $3, data = $6::jsonb`,
		p, p.User, int64(p.Nonce), string(p.Status), p.CreatedAt.Truncate(time.Microsecond), p.ExpiresAt)
}

func (t *pgTx) AppendRecord(ctx context.Context, r domain.ConversionRecord) error {
	return putDoc(ctx, t.q, "conversion record",
		`INSERT INTO conversion_records (user_id, nonce, recorded_at, data)
		 VALUES ($1, $2, $3, $4::jsonb)`,
		r, r.User, int64(r.Nonce), r.Timestamp)
}

func (s *PgStore) GetProtocol(ctx context.Context) (domain.ProtocolLedger, error) {
	return getDoc[domain.ProtocolLedger](ctx, s.pool, "protocol ledger",
		`SELECT data FROM protocol_ledger WHERE id = 1`)
}

func (s *PgStore) GetPool(ctx context.Context, id string) (domain.YieldPool, error) {
	return getDoc[domain.YieldPool](ctx, s.pool, "pool "+id,
		`SELECT data FROM yield_pools WHERE id = $1`, id)
}

func (s *PgStore) GetUser(ctx context.Context, owner string) (domain.UserLedger, error) {
	return getDoc[domain.UserLedger](ctx, s.pool, "user ledger",
		`SELECT data FROM user_ledgers WHERE owner = $1`, owner)
}

func (s *PgStore) GetPending(ctx context.Context, user string, nonce uint64) (domain.PendingConversion, error) {
	return getDoc[domain.PendingConversion](ctx, s.pool, "pending conversion",
		`SELECT data FROM pending_conversions WHERE user_id = $1 AND nonce = $2`, user, int64(nonce))
}

func listDocs[T any](ctx context.Context, pool *pgxpool.Pool, what, sql string, args ...any) ([]T, error) {
	rows, err := pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", what, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", what, err)
		}
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", what, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s: %w", what, err)
	}
	return out, nil
}

func (s *PgStore) ListPools(ctx context.Context) ([]domain.YieldPool, error) {
	return listDocs[domain.YieldPool](ctx, s.pool, "pools",
		`SELECT data FROM yield_pools ORDER BY id`)
}

func (s *PgStore) ListPending(ctx context.Context, status domain.ConversionStatus, limit int) ([]domain.PendingConversion, error) {
	return listDocs[domain.PendingConversion](ctx, s.pool, "pending conversions",
		`SELECT data FROM pending_conversions
		 WHERE status = $1
		 ORDER BY created_at, user_id, nonce
		 LIMIT $2`, string(status), listLimit(limit))
}

func (s *PgStore) ScanPending(ctx context.Context, q PendingScan) ([]domain.PendingConversion, error) {
	deadline := `expires_at >= $2`
	if q.Expired {
		deadline = `expires_at < $2`
	}
	after := PendingCursor{}
	if q.After != nil {
		after = *q.After
	}
	return listDocs[domain.PendingConversion](ctx, s.pool, "pending conversions",
		`SELECT data FROM pending_conversions
		 WHERE status = $1 AND `+deadline+`
		   AND ($3::boolean OR (created_at, user_id, nonce) > ($4, $5, $6))
		 ORDER BY created_at, user_id, nonce
		 LIMIT $7`,
		string(domain.StatusPending), q.Now, q.After == nil,
		after.CreatedAt.Truncate(time.Microsecond), after.User, int64(after.Nonce), listLimit(q.Limit))
}

func (s *PgStore) CountPending(ctx context.Context, status domain.ConversionStatus) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM pending_conversions WHERE status = $1`, string(status)).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting pending conversions: %w", err)
	}
	return n, nil
}

func (s *PgStore) ListRecords(ctx context.Context, user string, limit int) ([]domain.ConversionRecord, error) {
	return listDocs[domain.ConversionRecord](ctx, s.pool, "conversion records",
		`SELECT data FROM conversion_records
		 WHERE $1 = '' OR user_id = $1
		 ORDER BY recorded_at DESC, user_id, nonce DESC
		 LIMIT $2`, user, listLimit(limit))
}
