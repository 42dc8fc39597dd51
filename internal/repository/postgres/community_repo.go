package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/libris/internal/model"
)

// ContactRepo implements ContactRepository using PostgreSQL.
type ContactRepo struct{ db *DB }

// NewContactRepo constructs a contact message repository.
func NewContactRepo(db *DB) *ContactRepo { return &ContactRepo{db: db} }

// CreateMessage inserts m.
func (r *ContactRepo) CreateMessage(ctx context.Context, m *model.ContactMessage) error {
	const q = `
INSERT INTO contact_messages (id, name, email, subject, message, created_at)
VALUES ($1,$2,$3,$4,$5,$6)`
	_, err := r.db.Pool.Exec(ctx, q, m.ID, m.Name, m.Email, m.Subject, m.Message, m.CreatedAt)
	return err
}

// ListMessages pages through messages, newest first.
func (r *ContactRepo) ListMessages(ctx context.Context, limit, offset int) ([]model.ContactMessage, error) {
	const q = `
SELECT id, name, email, subject, message, created_at
FROM contact_messages
ORDER BY created_at DESC, id
LIMIT $1 OFFSET $2`
	rows, err := r.db.Pool.Query(ctx, q, pageSize(limit), max(offset, 0))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ContactMessage
	for rows.Next() {
		var m model.ContactMessage
		if err = rows.Scan(&m.ID, &m.Name, &m.Email, &m.Subject, &m.Message, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// VisitRepo implements VisitRepository using PostgreSQL.
type VisitRepo struct{ db *DB }

// NewVisitRepo constructs a visit log repository.
func NewVisitRepo(db *DB) *VisitRepo { return &VisitRepo{db: db} }

var visitColumns = []string{"path", "method", "user_id", "ip_address", "user_agent", "created_at"}

// RecordVisits bulk-loads the batch with COPY.
func (r *VisitRepo) RecordVisits(ctx context.Context, vs []model.PageVisit) error {
	if len(vs) == 0 {
		return nil
	}
	_, err := r.db.Pool.CopyFrom(ctx, pgx.Identifier{"page_visits"}, visitColumns,
		pgx.CopyFromSlice(len(vs), func(i int) ([]any, error) {
			v := vs[i]
			return []any{v.Path, v.Method, v.UserID, v.IP, v.UserAgent, v.CreatedAt}, nil
		}))
	return err
}

// RecentVisits returns the latest visits.
func (r *VisitRepo) RecentVisits(ctx context.Context, limit int) ([]model.PageVisit, error) {
	const q = `
SELECT id, path, method, user_id, ip_address, user_agent, created_at
FROM page_visits
ORDER BY created_at DESC, id DESC
LIMIT $1`
	rows, err := r.db.Pool.Query(ctx, q, pageSize(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PageVisit
	for rows.Next() {
		var v model.PageVisit
		if err = rows.Scan(&v.ID, &v.Path, &v.Method, &v.UserID, &v.IP, &v.UserAgent, &v.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// VisitCounts groups visits since the given time by path.
func (r *VisitRepo) VisitCounts(ctx context.Context, since time.Time, limit int) ([]model.PathCount, error) {
	const q = `
SELECT path, COUNT(*)
FROM page_visits
WHERE created_at >= $1
GROUP BY path
ORDER BY COUNT(*) DESC, path
LIMIT $2`
	rows, err := r.db.Pool.Query(ctx, q, since, pageSize(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PathCount
	for rows.Next() {
		var c model.PathCount
		if err = rows.Scan(&c.Path, &c.Visits); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
