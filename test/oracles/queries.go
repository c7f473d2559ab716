package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_orphan_evidence",
			SQL: `SELECT e.id, e.dispute_id FROM evidence e
                  LEFT JOIN disputes d ON d.id = e.dispute_id
                  WHERE d.id IS NULL`,
		},
		{
			Name: "O2_updated_before_created",
			SQL:  `SELECT id, created_at, updated_at FROM disputes WHERE updated_at < created_at`,
		},
		{
			Name: "O3_negative_file_size",
			SQL:  `SELECT id, file_size FROM evidence WHERE file_size < 0`,
		},
		{
			Name: "O4_non_finite_amount",
			SQL: `SELECT id, dispute_amount FROM disputes
                  WHERE dispute_amount IN ('NaN'::float8, 'Infinity'::float8, '-Infinity'::float8)`,
		},
		{
			Name: "O5_cascade_fk_present",
			SQL: `SELECT 'missing_cascade_fk' AS detail
                  WHERE NOT EXISTS (
                      SELECT 1 FROM pg_constraint
                      WHERE conname = 'evidence_dispute_id_fkey' AND confdeltype = 'c')`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row
// text) or an empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		if rows.Next() {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
	}
	return "", "", nil
}
