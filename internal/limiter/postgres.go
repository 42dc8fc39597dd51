package limiter

import (
	"context"
	"crypto/sha256"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PG keeps login attempts in the auth_limiter table so every server instance
// sees the same lockouts.
type PG struct {
	pool     Querier
	window   time.Duration
	maxFails int
	blockFor time.Duration
	now      func() time.Time
}

// Querier is the part of a pgx pool the limiter needs; postgres.PgxPool satisfies it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed limiter over the auth_limiter table.
func NewPG(q Querier, window time.Duration, maxFails int, blockFor time.Duration) *PG {
	return &PG{pool: q, window: window, maxFails: maxFails, blockFor: blockFor, now: time.Now}
}

// HashIP returns a stable hash for an IP string to avoid storing raw addresses.
func HashIP(ip string) []byte {
	h := sha256.Sum256([]byte(ip))
	return h[:]
}

// Allow reports whether login is currently allowed and a retry-after duration.
func (l *PG) Allow(ctx context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	const q = `SELECT blocked_until FROM auth_limiter WHERE username=$1 AND ip_hash=$2`
	var blockedUntil time.Time
	err := l.pool.QueryRow(ctx, q, username, ipHash).Scan(&blockedUntil)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return true, 0, nil
	case err != nil:
		return false, 0, err
	}
	if now := l.now(); blockedUntil.After(now) {
		return false, blockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

// Success resets counters for (username, ip).
func (l *PG) Success(ctx context.Context, username string, ipHash []byte) error {
	const q = `
INSERT INTO auth_limiter (username, ip_hash, fail_count, blocked_until, updated_at)
VALUES ($1, $2, 0, 'epoch', $3)
ON CONFLICT (username, ip_hash)
DO UPDATE SET fail_count=0, blocked_until='epoch', updated_at=EXCLUDED.updated_at`
	_, err := l.pool.Exec(ctx, q, username, ipHash, l.now())
	return err
}

// Failure counts a failed attempt and, at maxFails within window, sets the
// block in the same statement so concurrent failures cannot skip it.
func (l *PG) Failure(ctx context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	const q = `
INSERT INTO auth_limiter AS a (username, ip_hash, fail_count, blocked_until, updated_at)
VALUES ($1, $2, 1,
        CASE WHEN 1 >= $5 THEN $3::timestamptz + $6::interval ELSE 'epoch'::timestamptz END,
        $3::timestamptz)
ON CONFLICT (username, ip_hash) DO UPDATE
SET fail_count = CASE WHEN $3::timestamptz - a.updated_at > $4::interval THEN 1 ELSE a.fail_count + 1 END,
    blocked_until = CASE
        WHEN (CASE WHEN $3::timestamptz - a.updated_at > $4::interval THEN 1 ELSE a.fail_count + 1 END) >= $5
        THEN $3::timestamptz + $6::interval
        ELSE a.blocked_until END,
    updated_at = $3::timestamptz
RETURNING fail_count, blocked_until`

	now := l.now()
	var (
		fails        int
		blockedUntil time.Time
	)
	if err := l.pool.QueryRow(ctx, q, username, ipHash, now, l.window, l.maxFails, l.blockFor).
		Scan(&fails, &blockedUntil); err != nil {
		return false, 0, err
	}
	if fails >= l.maxFails && blockedUntil.After(now) {
		return true, blockedUntil.Sub(now), nil
	}
	return false, 0, nil
}
