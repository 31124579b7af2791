// Package store persists protocol records and runs each operation as one atomic unit.
package store

import (
	"cmp"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/exodusfi/exodus/internal/domain"
)

var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate indicates an insert into an append-only table hit an existing key.
	ErrDuplicate = errors.New("record already exists")
)

// Tx is the view of the records inside one unit. Reads lock the records they return
// until the unit ends.
type Tx interface {
	Protocol(ctx context.Context) (domain.ProtocolLedger, error)
	SaveProtocol(ctx context.Context, p domain.ProtocolLedger) error
	Pool(ctx context.Context, id string) (domain.YieldPool, error)
	SavePool(ctx context.Context, p domain.YieldPool) error
	User(ctx context.Context, owner string) (domain.UserLedger, error)
	SaveUser(ctx context.Context, u domain.UserLedger) error
	Pending(ctx context.Context, user string, nonce uint64) (domain.PendingConversion, error)
	SavePending(ctx context.Context, p domain.PendingConversion) error
	AppendRecord(ctx context.Context, r domain.ConversionRecord) error
}

// Store runs units and serves read-only queries.
type Store interface {
	// WithTx runs fn as one unit. When fn returns an error nothing it wrote is kept.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	GetProtocol(ctx context.Context) (domain.ProtocolLedger, error)
	GetPool(ctx context.Context, id string) (domain.YieldPool, error)
	GetUser(ctx context.Context, owner string) (domain.UserLedger, error)
	GetPending(ctx context.Context, user string, nonce uint64) (domain.PendingConversion, error)
	ListPools(ctx context.Context) ([]domain.YieldPool, error)
	// ListPending returns records with the given status, oldest first.
	ListPending(ctx context.Context, status domain.ConversionStatus, limit int) ([]domain.PendingConversion, error)
	// ScanPending pages through Pending records by deadline, oldest first.
	ScanPending(ctx context.Context, q PendingScan) ([]domain.PendingConversion, error)
	// CountPending returns the number of records with the given status.
	CountPending(ctx context.Context, status domain.ConversionStatus) (int, error)
	// ListRecords returns conversion records, newest first. An empty user lists all users.
	ListRecords(ctx context.Context, user string, limit int) ([]domain.ConversionRecord, error)
}

// PendingCursor is the (created_at, user, nonce) position of a Pending record in scan order.
type PendingCursor struct {
	CreatedAt time.Time
	User      string
	Nonce     uint64
}

// CursorOf returns the scan position of p.
func CursorOf(p domain.PendingConversion) PendingCursor {
	return PendingCursor{CreatedAt: p.CreatedAt, User: p.User, Nonce: p.Nonce}
}

// PendingScan selects one page of Pending records. Expired selects records whose deadline is
// before Now; otherwise only records still open at Now are returned. After, when set, skips
// every record at or before that position.
type PendingScan struct {
	Now     time.Time
	Expired bool
	After   *PendingCursor
	Limit   int
}

// matches reports whether p belongs to the scan. Timestamps compare at microsecond precision so
// that both stores order records the same way.
func (q PendingScan) matches(p domain.PendingConversion) bool {
	if p.Status != domain.StatusPending || p.Expired(q.Now) != q.Expired {
		return false
	}
	return q.After == nil || compareCursor(CursorOf(p), *q.After) > 0
}

func compareCursor(a, b PendingCursor) int {
	if c := a.CreatedAt.Truncate(time.Microsecond).Compare(b.CreatedAt.Truncate(time.Microsecond)); c != 0 {
		return c
	}
	if c := strings.Compare(a.User, b.User); c != 0 {
		return c
	}
	return cmp.Compare(a.Nonce, b.Nonce)
}

const defaultListLimit = 100

func listLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}
