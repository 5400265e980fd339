package subjectsql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openkcm/openid-provider/internal/serviceerr"
	"github.com/openkcm/openid-provider/internal/subject"
)

type Repository struct {
	db *pgxpool.Pool
}

var _ = subject.Repository(&Repository{})

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{
		db: db,
	}
}

func (r *Repository) GetAttributes(ctx context.Context, subjectID string) (subject.Attributes, error) {
	var raw []byte
	row := r.db.QueryRow(ctx, `SELECT attributes FROM subjects WHERE subject_id = $1;`, subjectID)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, serviceerr.ErrNotFound
		}

		return nil, fmt.Errorf("scanning rows: %w", err)
	}

	attrs := make(subject.Attributes)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &attrs); err != nil {
			return nil, fmt.Errorf("unmarshalling attributes: %w", err)
		}
	}

	return attrs, nil
}

// Upsert creates or replaces the attributes of a subject.
func (r *Repository) Upsert(ctx context.Context, subjectID string, attrs subject.Attributes) error {
	raw, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("marshaling attributes: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO subjects (subject_id, attributes) VALUES ($1, $2)
			 ON CONFLICT (subject_id) DO UPDATE SET attributes = EXCLUDED.attributes, updated_at = now();`,
		subjectID, raw,
	); err != nil {
		return fmt.Errorf("executing sql query: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing tx: %w", err)
	}

	return nil
}
