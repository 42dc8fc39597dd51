package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/libris/internal/errs"
	"github.com/and161185/libris/internal/model"
)

var bookCols = []string{
	"id", "title", "author_id", "category_id", "description", "language", "publication_year", "pages",
	"total_copies", "available_copies", "cover_key", "created_at", "full_name", "slug",
}

func bookRow(rows *pgxmock.Rows, id uuid.UUID, title string, total, avail int) *pgxmock.Rows {
	year := 1965
	return rows.AddRow(id, title, uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4()), "", "en",
		&year, (*int)(nil), total, avail, "", time.Now(), "Frank Herbert", "science-fiction")
}

func TestCatalogRepo_CreateCategory_SuffixesTakenSlug(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewCatalogRepo(db)
	c := &model.Category{ID: uuid.Must(uuid.NewV4()), Name: "Sci Fi", Slug: "sci-fi"}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT slug FROM categories WHERE slug=\$1 OR slug LIKE \$2`).
		WithArgs("sci-fi", "sci-fi-%").
		WillReturnRows(pgxmock.NewRows([]string{"slug"}).AddRow("sci-fi").AddRow("sci-fi-2"))
	mock.ExpectExec(`INSERT INTO categories \(id, name, icon, slug\) VALUES \(\$1,\$2,\$3,\$4\)`).
		WithArgs(c.ID, c.Name, c.Icon, "sci-fi-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, r.CreateCategory(context.Background(), c))
	require.Equal(t, "sci-fi-1", c.Slug)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepo_CreateCategory_NameTaken(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewCatalogRepo(db)
	c := &model.Category{ID: uuid.Must(uuid.NewV4()), Name: "Poetry", Slug: "poetry"}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT slug FROM categories`).
		WithArgs("poetry", "poetry-%").
		WillReturnRows(pgxmock.NewRows([]string{"slug"}))
	mock.ExpectExec(`INSERT INTO categories`).
		WithArgs(c.ID, "Poetry", "", "poetry").
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	require.ErrorIs(t, r.CreateCategory(context.Background(), c), errs.ErrAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepo_CreateBook(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewCatalogRepo(db)
	b := &model.Book{
		ID: uuid.Must(uuid.NewV4()), Title: "Dune",
		AuthorID: uuid.Must(uuid.NewV4()), CategoryID: uuid.Must(uuid.NewV4()),
		TotalCopies: 3, AvailableCopies: 3,
	}
	created := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	insertArgs := []any{
		b.ID, "Dune", b.AuthorID, b.CategoryID, "", "",
		(*int)(nil), (*int)(nil), 3, 3,
	}

	mock.ExpectQuery(`INSERT INTO books .* RETURNING created_at`).
		WithArgs(insertArgs...).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(created))
	require.NoError(t, r.CreateBook(context.Background(), b))
	require.Equal(t, created, b.CreatedAt)

	mock.ExpectQuery(`INSERT INTO books`).
		WithArgs(insertArgs...).
		WillReturnError(&pgconn.PgError{Code: "23503"})
	require.ErrorIs(t, r.CreateBook(context.Background(), b), errs.ErrNotFound)

	bad := *b
	bad.AvailableCopies = 4
	require.ErrorIs(t, r.CreateBook(context.Background(), &bad), errs.ErrInvalidCopies)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepo_GetBook(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewCatalogRepo(db)
	id := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`SELECT .* FROM "books" AS "b" INNER JOIN "authors" AS "a" .* WHERE \("b"."id" = \$1\)`).
		WithArgs(id.String()).
		WillReturnRows(bookRow(pgxmock.NewRows(bookCols), id, "Dune", 3, 2))
	b, err := r.GetBook(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "Dune", b.Title)
	require.Equal(t, 2, b.AvailableCopies)
	require.Equal(t, 1965, *b.PublicationYear)
	require.Nil(t, b.Pages)

	mock.ExpectQuery(`SELECT .* FROM "books"`).WithArgs(id.String()).WillReturnError(pgx.ErrNoRows)
	_, err = r.GetBook(context.Background(), id)
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepo_ListBooks_Filters(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewCatalogRepo(db)

	rows := pgxmock.NewRows(bookCols)
	bookRow(rows, uuid.Must(uuid.NewV4()), "Dune", 3, 1)
	bookRow(rows, uuid.Must(uuid.NewV4()), "Dune Messiah", 1, 1)

	f := model.BookFilter{Query: " dune ", CategorySlug: "science-fiction", AvailableOnly: true, Limit: 500}
	q, args, err := bookSearch(f).ToSQL()
	require.NoError(t, err)
	require.Contains(t, q, `"b"."title" ILIKE $1`)
	require.Contains(t, q, `"c"."slug" = $2`)
	require.Contains(t, q, `"b"."available_copies" > $3`)
	require.Contains(t, q, `ORDER BY "b"."title" ASC`)
	require.Contains(t, args, "%dune%")
	require.Contains(t, args, "science-fiction")

	mock.ExpectQuery(regexp.QuoteMeta(q)).
		WithArgs(args...).
		WillReturnRows(rows)

	out, err := r.ListBooks(context.Background(), f)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "Dune Messiah", out[1].Title)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepo_SetTotalCopies(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewCatalogRepo(db)
	id := uuid.Must(uuid.NewV4())

	// 2 of 3 checked out: growing to 5 leaves 3 available
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT total_copies, available_copies FROM books WHERE id=\$1 FOR UPDATE`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"total_copies", "available_copies"}).AddRow(3, 1))
	mock.ExpectExec(`UPDATE books SET total_copies=\$2, available_copies=\$3 WHERE id=\$1`).
		WithArgs(id, 5, 3).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()
	mock.ExpectQuery(`SELECT .* FROM "books"`).
		WithArgs(id.String()).
		WillReturnRows(bookRow(pgxmock.NewRows(bookCols), id, "Dune", 5, 3))

	b, err := r.SetTotalCopies(context.Background(), id, 5)
	require.NoError(t, err)
	require.Equal(t, 5, b.TotalCopies)
	require.Equal(t, 3, b.AvailableCopies)

	// shrinking below the checked out count is refused
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT total_copies, available_copies FROM books WHERE id=\$1 FOR UPDATE`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"total_copies", "available_copies"}).AddRow(3, 1))
	mock.ExpectRollback()
	_, err = r.SetTotalCopies(context.Background(), id, 1)
	require.ErrorIs(t, err, errs.ErrInvalidCopies)

	_, err = r.SetTotalCopies(context.Background(), id, -1)
	require.ErrorIs(t, err, errs.ErrInvalidCopies)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepo_SetCoverKey(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewCatalogRepo(db)
	id := uuid.Must(uuid.NewV4())

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT cover_key FROM books WHERE id=\$1 FOR UPDATE`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"cover_key"}).AddRow("covers/old.jpg"))
	mock.ExpectExec(`UPDATE books SET cover_key=\$2 WHERE id=\$1`).
		WithArgs(id, "covers/new.jpg").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	prev, err := r.SetCoverKey(context.Background(), id, "covers/new.jpg")
	require.NoError(t, err)
	require.Equal(t, "covers/old.jpg", prev)
}

func TestEscapeLikeAndPageSize(t *testing.T) {
	require.Equal(t, `50\%\_off\\`, escapeLike(`50%_off\`))
	require.Equal(t, defaultPageSize, pageSize(0))
	require.Equal(t, maxPageSize, pageSize(1000))
	require.Equal(t, 7, pageSize(7))
}
