package dispute

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
	ErrNotFound = fmt.Errorf("dispute: %w", db.ErrNotFound)
	ErrConflict = fmt.Errorf("dispute: %w", db.ErrConflict)
)

var columns = []string{
	"id", "title", "category", "location", "description", "dispute_amount",
	"expected_resolution", "other_party_name", "other_party_contact",
	"dispute_date", "status", "user_id", "created_at", "updated_at",
}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// bumpUpdatedAt keeps updated_at strictly increasing even when two writes land
// within the same clock tick.
const bumpUpdatedAt = "GREATEST(clock_timestamp(), updated_at + interval '1 microsecond')"

// Repository persists disputes in Postgres.
type Repository struct {
	db db.DBTX
}

// NewRepository wires a repository on a pool or a transaction.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

func (r *Repository) Create(ctx context.Context, p CreateParams) (Record, error) {
	query, args, err := psql.Insert("disputes").
		Columns(
			"title", "category", "location", "description", "dispute_amount",
			"expected_resolution", "other_party_name", "other_party_contact",
			"dispute_date", "status", "user_id",
		).
		Values(
			p.Title, p.Category, p.Location, p.Description, p.DisputeAmount,
			p.ExpectedResolution, p.OtherPartyName, p.OtherPartyContact,
			p.DisputeDate, p.Status, p.UserID,
		).
		Suffix("RETURNING " + strings.Join(columns, ", ")).
		ToSql()
	if err != nil {
		return Record{}, fmt.Errorf("dispute: build insert: %w", err)
	}

	rec, err := scanRecord(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		return Record{}, fmt.Errorf("dispute: create: %w", db.Translate(err))
	}
	return rec, nil
}

func (r *Repository) Get(ctx context.Context, id int64) (Record, error) {
	query, args, err := psql.Select(columns...).
		From("disputes").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return Record{}, fmt.Errorf("dispute: build select: %w", err)
	}

	rec, err := scanRecord(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("dispute: get: %w", db.Translate(err))
	}
	return rec, nil
}

// Update applies the non-nil fields of p. When p.IfUpdatedAt is set and no
// longer matches, ErrConflict is returned and nothing changes.
func (r *Repository) Update(ctx context.Context, id int64, p UpdateParams) (Record, error) {
	b := psql.Update("disputes")
	b = setIf(b, "title", p.Title)
	b = setIf(b, "category", p.Category)
	b = setIf(b, "location", p.Location)
	b = setIf(b, "description", p.Description)
	b = setIf(b, "dispute_amount", p.DisputeAmount)
	b = setIf(b, "expected_resolution", p.ExpectedResolution)
	b = setIf(b, "other_party_name", p.OtherPartyName)
	b = setIf(b, "other_party_contact", p.OtherPartyContact)
	b = setIf(b, "dispute_date", p.DisputeDate)
	b = setIf(b, "status", p.Status)
	b = b.Set("updated_at", squirrel.Expr(bumpUpdatedAt)).
		Where(squirrel.Eq{"id": id})
	if p.IfUpdatedAt != nil {
		b = b.Where(squirrel.Eq{"updated_at": *p.IfUpdatedAt})
	}

	query, args, err := b.Suffix("RETURNING " + strings.Join(columns, ", ")).ToSql()
	if err != nil {
		return Record{}, fmt.Errorf("dispute: build update: %w", err)
	}

	rec, err := scanRecord(r.db.QueryRow(ctx, query, args...))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Record{}, fmt.Errorf("dispute: update: %w", db.Translate(err))
	}

	// No row matched: either the dispute is gone or the precondition failed.
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM disputes WHERE id = $1)`, id).Scan(&exists); err != nil {
		return Record{}, fmt.Errorf("dispute: update check: %w", db.Translate(err))
	}
	if exists && p.IfUpdatedAt != nil {
		return Record{}, ErrConflict
	}
	return Record{}, ErrNotFound
}

// Delete removes the dispute and, through the foreign key cascade, its
// evidence. The dispute row is locked first so no evidence can be attached
// between collecting the file paths and the delete.
func (r *Repository) Delete(ctx context.Context, id int64) (DeleteResult, error) {
	var res DeleteResult
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var locked int64
		if err := tx.QueryRow(ctx, `SELECT id FROM disputes WHERE id = $1 FOR UPDATE`, id).Scan(&locked); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("dispute: lock: %w", db.Translate(err))
		}

		rows, err := tx.Query(ctx, `SELECT file_path FROM evidence WHERE dispute_id = $1 AND stored ORDER BY id`, id)
		if err != nil {
			return fmt.Errorf("dispute: collect evidence: %w", err)
		}
		paths, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("dispute: collect evidence: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM disputes WHERE id = $1`, id); err != nil {
			return fmt.Errorf("dispute: delete: %w", db.Translate(err))
		}
		res.EvidencePaths = paths
		return nil
	})
	if err != nil {
		return DeleteResult{}, err
	}
	return res, nil
}

// List returns the user's disputes, newest first.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]Record, error) {
	where := squirrel.Eq{"user_id": f.UserID}
	if f.Status != "" {
		where["status"] = f.Status
	}
	if f.Category != "" {
		where["category"] = f.Category
	}

	b := psql.Select(columns...).
		From("disputes").
		Where(where).
		OrderBy("created_at DESC", "id DESC")
	if f.Limit > 0 {
		b = b.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		b = b.Offset(uint64(f.Offset))
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("dispute: build list: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("dispute: list: %w", db.Translate(err))
	}
	defer rows.Close()

	out := make([]Record, 0, 8)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("dispute: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispute: iterate: %w", err)
	}
	return out, nil
}

func setIf[T any](b squirrel.UpdateBuilder, column string, v *T) squirrel.UpdateBuilder {
	if v == nil {
		return b
	}
	return b.Set(column, *v)
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.ID,
		&rec.Title,
		&rec.Category,
		&rec.Location,
		&rec.Description,
		&rec.DisputeAmount,
		&rec.ExpectedResolution,
		&rec.OtherPartyName,
		&rec.OtherPartyContact,
		&rec.DisputeDate,
		&rec.Status,
		&rec.UserID,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return Record{}, err
	}
	rec.DisputeDate = rec.DisputeDate.UTC()
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, nil
}
