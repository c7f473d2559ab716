package evidence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"disputedesk/db"
)

var (
	ErrNotFound = fmt.Errorf("evidence: %w", db.ErrNotFound)
	// ErrUnknownDispute is returned when evidence references a dispute that
	// does not exist.
	ErrUnknownDispute = fmt.Errorf("evidence: unknown dispute: %w", db.ErrForeignKeyViolation)
)

var columns = []string{"id", "file_path", "file_name", "file_type", "file_size", "dispute_id", "stored"}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

type Repository struct {
	db db.DBTX
}

func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

func (r *Repository) Create(ctx context.Context, p CreateParams) (Record, error) {
	query, args, err := psql.Insert("evidence").
		Columns("dispute_id", "file_path", "file_name", "file_type", "file_size", "stored").
		Values(p.DisputeID, p.FilePath, p.FileName, p.FileType, p.FileSize, p.Stored).
		Suffix("RETURNING " + strings.Join(columns, ", ")).
		ToSql()
	if err != nil {
		return Record{}, fmt.Errorf("evidence: build insert: %w", err)
	}

	rec, err := scanRecord(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		err = db.Translate(err)
		if errors.Is(err, db.ErrForeignKeyViolation) {
			return Record{}, fmt.Errorf("%w (dispute %d)", ErrUnknownDispute, p.DisputeID)
		}
		return Record{}, fmt.Errorf("evidence: create: %w", err)
	}
	return rec, nil
}

func (r *Repository) Get(ctx context.Context, id int64) (Record, error) {
	query, args, err := psql.Select(columns...).
		From("evidence").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return Record{}, fmt.Errorf("evidence: build select: %w", err)
	}

	rec, err := scanRecord(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("evidence: get: %w", db.Translate(err))
	}
	return rec, nil
}

func (r *Repository) Update(ctx context.Context, id int64, p UpdateParams) (Record, error) {
	b := psql.Update("evidence").Where(squirrel.Eq{"id": id})
	if p.FilePath != nil {
		b = b.Set("file_path", *p.FilePath)
	}
	if p.FileName != nil {
		b = b.Set("file_name", *p.FileName)
	}
	if p.FileType != nil {
		b = b.Set("file_type", *p.FileType)
	}
	if p.FileSize != nil {
		b = b.Set("file_size", *p.FileSize)
	}

	query, args, err := b.Suffix("RETURNING " + strings.Join(columns, ", ")).ToSql()
	if err != nil {
		return Record{}, fmt.Errorf("evidence: build update: %w", err)
	}

	rec, err := scanRecord(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("evidence: update: %w", db.Translate(err))
	}
	return rec, nil
}

// Delete removes the row and returns it, so the caller can purge the file.
func (r *Repository) Delete(ctx context.Context, id int64) (Record, error) {
	query, args, err := psql.Delete("evidence").
		Where(squirrel.Eq{"id": id}).
		Suffix("RETURNING " + strings.Join(columns, ", ")).
		ToSql()
	if err != nil {
		return Record{}, fmt.Errorf("evidence: build delete: %w", err)
	}

	rec, err := scanRecord(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("evidence: delete: %w", db.Translate(err))
	}
	return rec, nil
}

// ListByDispute returns the dispute's evidence in upload order. An unknown
// dispute yields an empty slice.
func (r *Repository) ListByDispute(ctx context.Context, disputeID int64) ([]Record, error) {
	query, args, err := psql.Select(columns...).
		From("evidence").
		Where(squirrel.Eq{"dispute_id": disputeID}).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("evidence: build list: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("evidence: list: %w", db.Translate(err))
	}
	defer rows.Close()

	out := make([]Record, 0, 4)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("evidence: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("evidence: iterate: %w", err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.FilePath, &rec.FileName, &rec.FileType, &rec.FileSize, &rec.DisputeID, &rec.Stored)
	return rec, err
}
