package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/comfyflow/pkg/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultTable is the table used when none is configured.
const DefaultTable = "comfyflow_prompts"

// Store implements ports.PromptStore on PostgreSQL.
// The record is kept whole in a JSONB column next to a few indexed fields.
type Store struct {
	db    *pgxpool.Pool
	table string
}

type Option func(*Store)

// WithTable sets the table name. It is interpolated into SQL as an identifier.
func WithTable(name string) Option {
	return func(s *Store) { s.table = name }
}

// New creates a store on an existing pool.
func New(db *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{db: db, table: DefaultTable}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect opens a pool for dsn and creates the table if needed.
func Connect(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres pool: %w", err)
	}
	s := New(pool, opts...)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ident() string {
	return pgx.Identifier{s.table}.Sanitize()
}

// Migrate creates the table when it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		workflow_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		record JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`, s.ident()))
	if err != nil {
		return fmt.Errorf("failed to migrate %s: %w", s.table, err)
	}
	return nil
}

// Save upserts the record.
func (s *Store) Save(ctx context.Context, rec *domain.PromptRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal prompt record: %w", err)
	}
	_, err = s.db.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (id, workflow_id, status, record, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			workflow_id = EXCLUDED.workflow_id,
			status = EXCLUDED.status,
			record = EXCLUDED.record,
			updated_at = EXCLUDED.updated_at`, s.ident()),
		rec.ID, rec.WorkflowID, string(rec.Status), data, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save prompt %s: %w", rec.ID, err)
	}
	return nil
}

// Load reads one record.
func (s *Store) Load(ctx context.Context, promptID string) (*domain.PromptRecord, error) {
	var data []byte
	err := s.db.QueryRow(ctx, fmt.Sprintf(`SELECT record FROM %s WHERE id = $1`, s.ident()), promptID).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPromptNotFound
		}
		return nil, fmt.Errorf("failed to load prompt %s: %w", promptID, err)
	}

	var rec domain.PromptRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prompt record: %w", err)
	}
	return &rec, nil
}

// Delete removes a record.
func (s *Store) Delete(ctx context.Context, promptID string) error {
	_, err := s.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.ident()), promptID)
	return err
}

// List returns ids, most recently created first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, fmt.Sprintf(`SELECT id FROM %s ORDER BY created_at DESC, id`, s.ident()))
	if err != nil {
		return nil, fmt.Errorf("failed to list prompts: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to list prompts: %w", err)
	}
	return ids, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.db.Close()
}
