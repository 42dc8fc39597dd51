package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/libris/internal/model"
)

const (
	qInsertContact = `INSERT INTO contact_messages \(id, name, email, subject, message, created_at\) VALUES \(\$1,\$2,\$3,\$4,\$5,\$6\)`
	qListContact   = `SELECT id, name, email, subject, message, created_at FROM contact_messages ORDER BY created_at DESC, id LIMIT \$1 OFFSET \$2`
	qRecentVisits  = `SELECT id, path, method, user_id, ip_address, user_agent, created_at FROM page_visits ORDER BY created_at DESC, id DESC LIMIT \$1`
	qVisitCounts   = `SELECT path, COUNT\(\*\) FROM page_visits WHERE created_at >= \$1 GROUP BY path ORDER BY COUNT\(\*\) DESC, path LIMIT \$2`
)

func TestContactRepo_CreateAndList(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewContactRepo(db)
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	m := &model.ContactMessage{
		ID: uuid.Must(uuid.NewV4()), Name: "Ann", Email: "ann@example.com",
		Subject: "Hours", Message: "When do you open?", CreatedAt: now,
	}

	mock.ExpectExec(qInsertContact).
		WithArgs(m.ID, "Ann", "ann@example.com", "Hours", "When do you open?", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.CreateMessage(context.Background(), m))

	mock.ExpectQuery(qListContact).WithArgs(maxPageSize, 0).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "email", "subject", "message", "created_at"}).
			AddRow(m.ID, m.Name, m.Email, m.Subject, m.Message, now))
	got, err := r.ListMessages(context.Background(), 10_000, -3)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Hours", got[0].Subject)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVisitRepo_RecordVisits_UsesCopy(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewVisitRepo(db)
	uid := uuid.Must(uuid.NewV4())
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, r.RecordVisits(context.Background(), nil))

	mock.ExpectCopyFrom(pgx.Identifier{"page_visits"}, visitColumns).WillReturnResult(2)
	err := r.RecordVisits(context.Background(), []model.PageVisit{
		{Path: "/api/books", Method: "GET", IP: "10.0.0.1", CreatedAt: now},
		{Path: "/api/borrows", Method: "POST", UserID: &uid, IP: "10.0.0.2", CreatedAt: now},
	})
	require.NoError(t, err)

	mock.ExpectCopyFrom(pgx.Identifier{"page_visits"}, visitColumns).WillReturnError(errors.New("conn reset"))
	err = r.RecordVisits(context.Background(), []model.PageVisit{{Path: "/api/books", Method: "GET", CreatedAt: now}})
	require.Error(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVisitRepo_RecentAndCounts(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewVisitRepo(db)
	uid := uuid.Must(uuid.NewV4())
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(qRecentVisits).WithArgs(5).
		WillReturnRows(pgxmock.NewRows([]string{"id", "path", "method", "user_id", "ip_address", "user_agent", "created_at"}).
			AddRow(int64(2), "/api/borrows", "POST", &uid, "10.0.0.2", "curl/8", now).
			AddRow(int64(1), "/api/books", "GET", (*uuid.UUID)(nil), "10.0.0.1", "", now))
	vs, err := r.RecentVisits(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, vs, 2)
	require.Equal(t, uid, *vs[0].UserID)
	require.Nil(t, vs[1].UserID)

	since := now.Add(-24 * time.Hour)
	mock.ExpectQuery(qVisitCounts).WithArgs(since, 10).
		WillReturnRows(pgxmock.NewRows([]string{"path", "count"}).
			AddRow("/api/books", 7).AddRow("/api/borrows", 2))
	cs, err := r.VisitCounts(context.Background(), since, 10)
	require.NoError(t, err)
	require.Equal(t, []model.PathCount{{Path: "/api/books", Visits: 7}, {Path: "/api/borrows", Visits: 2}}, cs)

	require.NoError(t, mock.ExpectationsWereMet())
}
