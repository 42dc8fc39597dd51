package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/libris/internal/errs"
	"github.com/and161185/libris/internal/model"
	"github.com/and161185/libris/internal/slug"
)

const (
	dialectPostgres = "postgres"

	defaultPageSize = 20
	maxPageSize     = 100
)

// CatalogRepo implements CatalogRepository using PostgreSQL.
type CatalogRepo struct{ db *DB }

// NewCatalogRepo constructs a catalog repository.
func NewCatalogRepo(db *DB) *CatalogRepo { return &CatalogRepo{db: db} }

// CreateCategory inserts a category. c.Slug holds the base slug on input and the
// stored (possibly suffixed) slug on return.
func (r *CatalogRepo) CreateCategory(ctx context.Context, c *model.Category) error {
	const sel = `SELECT slug FROM categories WHERE slug=$1 OR slug LIKE $2`
	const ins = `INSERT INTO categories (id, name, icon, slug) VALUES ($1,$2,$3,$4)`

	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, sel, c.Slug, escapeLike(c.Slug)+"-%")
		if err != nil {
			return err
		}
		taken, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return err
		}
		c.Slug = slug.Unique(c.Slug, taken)

		if _, err := tx.Exec(ctx, ins, c.ID, c.Name, c.Icon, c.Slug); err != nil {
			if isUniqueViolation(err) {
				return errs.ErrAlreadyExists
			}
			return err
		}
		return nil
	})
}

// ListCategories returns all categories ordered by name.
func (r *CatalogRepo) ListCategories(ctx context.Context) ([]model.Category, error) {
	const q = `SELECT id, name, icon, slug FROM categories ORDER BY name`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Category
	for rows.Next() {
		var c model.Category
		if err = rows.Scan(&c.ID, &c.Name, &c.Icon, &c.Slug); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateAuthor inserts an author and fills CreatedAt.
func (r *CatalogRepo) CreateAuthor(ctx context.Context, a *model.Author) error {
	const q = `INSERT INTO authors (id, full_name, bio) VALUES ($1,$2,$3) RETURNING created_at`
	return r.db.Pool.QueryRow(ctx, q, a.ID, a.FullName, a.Bio).Scan(&a.CreatedAt)
}

// ListAuthors returns all authors ordered by name.
func (r *CatalogRepo) ListAuthors(ctx context.Context) ([]model.Author, error) {
	const q = `SELECT id, full_name, bio, created_at FROM authors ORDER BY full_name`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Author
	for rows.Next() {
		var a model.Author
		if err = rows.Scan(&a.ID, &a.FullName, &a.Bio, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CreateBook inserts a book and fills CreatedAt.
func (r *CatalogRepo) CreateBook(ctx context.Context, b *model.Book) error {
	if !b.CopiesValid() {
		return errs.ErrInvalidCopies
	}
	const q = `
INSERT INTO books (id, title, author_id, category_id, description, language,
                   publication_year, pages, total_copies, available_copies)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING created_at`
	err := r.db.Pool.QueryRow(ctx, q,
		b.ID, b.Title, b.AuthorID, b.CategoryID, b.Description, b.Language,
		b.PublicationYear, b.Pages, b.TotalCopies, b.AvailableCopies,
	).Scan(&b.CreatedAt)
	switch {
	case isForeignKeyViolation(err):
		return fmt.Errorf("author or category: %w", errs.ErrNotFound)
	case isCheckViolation(err):
		return errs.ErrInvalidCopies
	}
	return err
}

// GetBook loads a book with its author name and category slug.
func (r *CatalogRepo) GetBook(ctx context.Context, id uuid.UUID) (*model.Book, error) {
	q, args, err := bookSelect().Where(goqu.I("b.id").Eq(id.String())).ToSQL()
	if err != nil {
		return nil, err
	}
	b, err := scanBook(r.db.Pool.QueryRow(ctx, q, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

// ListBooks searches the catalog. Limit is clamped to [1, 100], default 20.
func (r *CatalogRepo) ListBooks(ctx context.Context, f model.BookFilter) ([]model.Book, error) {
	q, args, err := bookSearch(f).ToSQL()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// SetTotalCopies changes the size of the copy pool. Copies currently checked
// out stay checked out, so total may not drop below their number.
func (r *CatalogRepo) SetTotalCopies(ctx context.Context, id uuid.UUID, total int) (*model.Book, error) {
	if total < 0 {
		return nil, errs.ErrInvalidCopies
	}
	const sel = `SELECT total_copies, available_copies FROM books WHERE id=$1 FOR UPDATE`
	const upd = `UPDATE books SET total_copies=$2, available_copies=$3 WHERE id=$1`

	err := r.db.inTx(ctx, func(tx pgx.Tx) error {
		var curTotal, curAvail int
		if err := tx.QueryRow(ctx, sel, id).Scan(&curTotal, &curAvail); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errs.ErrNotFound
			}
			return err
		}
		checkedOut := curTotal - curAvail
		if total < checkedOut {
			return fmt.Errorf("%d copies checked out: %w", checkedOut, errs.ErrInvalidCopies)
		}
		if _, err := tx.Exec(ctx, upd, id, total, total-checkedOut); err != nil {
			if isCheckViolation(err) {
				return errs.ErrInvalidCopies
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetBook(ctx, id)
}

// SetCoverKey replaces the cover key and returns the previous one.
func (r *CatalogRepo) SetCoverKey(ctx context.Context, id uuid.UUID, key string) (prev string, err error) {
	const sel = `SELECT cover_key FROM books WHERE id=$1 FOR UPDATE`
	const upd = `UPDATE books SET cover_key=$2 WHERE id=$1`

	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, sel, id).Scan(&prev); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errs.ErrNotFound
			}
			return err
		}
		_, err := tx.Exec(ctx, upd, id, key)
		return err
	})
	if err != nil {
		return "", err
	}
	return prev, nil
}

// reserveCopy takes one copy of the book. The FOR UPDATE lock is held until the
// surrounding transaction ends, serializing every counter write on this book.
func reserveCopy(ctx context.Context, tx pgx.Tx, bookID uuid.UUID) error {
	const sel = `SELECT available_copies FROM books WHERE id=$1 FOR UPDATE`
	const upd = `UPDATE books SET available_copies=available_copies-1 WHERE id=$1`

	var avail int
	if err := tx.QueryRow(ctx, sel, bookID).Scan(&avail); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("book: %w", errs.ErrNotFound)
		}
		return err
	}
	if avail <= 0 {
		return errs.ErrOutOfStock
	}
	if _, err := tx.Exec(ctx, upd, bookID); err != nil {
		if isCheckViolation(err) {
			return errs.ErrInvalidCopies
		}
		return err
	}
	return nil
}

// releaseCopy puts one copy back under the book lock. Exceeding total_copies
// aborts the transaction.
func releaseCopy(ctx context.Context, tx pgx.Tx, bookID uuid.UUID) error {
	const sel = `SELECT total_copies, available_copies FROM books WHERE id=$1 FOR UPDATE`
	const upd = `UPDATE books SET available_copies=available_copies+1 WHERE id=$1`

	var total, avail int
	if err := tx.QueryRow(ctx, sel, bookID).Scan(&total, &avail); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("book: %w", errs.ErrNotFound)
		}
		return err
	}
	if avail+1 > total {
		return fmt.Errorf("release beyond total: %w", errs.ErrInvalidCopies)
	}
	if _, err := tx.Exec(ctx, upd, bookID); err != nil {
		if isCheckViolation(err) {
			return errs.ErrInvalidCopies
		}
		return err
	}
	return nil
}

func bookSelect() *goqu.SelectDataset {
	return goqu.Dialect(dialectPostgres).
		From(goqu.T("books").As("b")).
		Join(goqu.T("authors").As("a"), goqu.On(goqu.I("a.id").Eq(goqu.I("b.author_id")))).
		Join(goqu.T("categories").As("c"), goqu.On(goqu.I("c.id").Eq(goqu.I("b.category_id")))).
		Select(
			goqu.I("b.id"), goqu.I("b.title"), goqu.I("b.author_id"), goqu.I("b.category_id"),
			goqu.I("b.description"), goqu.I("b.language"), goqu.I("b.publication_year"), goqu.I("b.pages"),
			goqu.I("b.total_copies"), goqu.I("b.available_copies"), goqu.I("b.cover_key"), goqu.I("b.created_at"),
			goqu.I("a.full_name"), goqu.I("c.slug"),
		).
		Prepared(true)
}

// bookSearch applies the filter, sort and page of f to bookSelect.
func bookSearch(f model.BookFilter) *goqu.SelectDataset {
	ds := bookSelect()
	if q := strings.TrimSpace(f.Query); q != "" {
		ds = ds.Where(goqu.I("b.title").ILike("%" + escapeLike(q) + "%"))
	}
	if f.CategorySlug != "" {
		ds = ds.Where(goqu.I("c.slug").Eq(f.CategorySlug))
	}
	if f.AuthorID != uuid.Nil {
		ds = ds.Where(goqu.I("b.author_id").Eq(f.AuthorID.String()))
	}
	if f.AvailableOnly {
		ds = ds.Where(goqu.I("b.available_copies").Gt(0))
	}
	return ds.Order(bookOrder(f.Sort)...).
		Limit(uint(pageSize(f.Limit))).
		Offset(uint(max(f.Offset, 0)))
}

func bookOrder(sort string) []exp.OrderedExpression {
	switch sort {
	case "-created_at":
		return []exp.OrderedExpression{goqu.I("b.created_at").Desc(), goqu.I("b.id").Asc()}
	case "year":
		return []exp.OrderedExpression{goqu.I("b.publication_year").Desc().NullsLast(), goqu.I("b.title").Asc(), goqu.I("b.id").Asc()}
	default:
		return []exp.OrderedExpression{goqu.I("b.title").Asc(), goqu.I("a.full_name").Asc(), goqu.I("b.id").Asc()}
	}
}

func scanBook(row pgx.Row) (*model.Book, error) {
	var b model.Book
	err := row.Scan(
		&b.ID, &b.Title, &b.AuthorID, &b.CategoryID,
		&b.Description, &b.Language, &b.PublicationYear, &b.Pages,
		&b.TotalCopies, &b.AvailableCopies, &b.CoverKey, &b.CreatedAt,
		&b.AuthorName, &b.CategorySlug,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func pageSize(limit int) int {
	switch {
	case limit <= 0:
		return defaultPageSize
	case limit > maxPageSize:
		return maxPageSize
	default:
		return limit
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
