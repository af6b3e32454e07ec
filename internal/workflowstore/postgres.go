package workflowstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/atworkflow/engine/internal/workflow"
)

// PostgresStore is the durable workflow repository: one row per
// (workflow_id, version) holding the full description as a JSONB document.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an already-open *sqlx.DB.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Schema is the DDL for the workflows table, applied by migrations run
// outside this package.
const Schema = `
CREATE TABLE IF NOT EXISTS workflows (
	workflow_id  TEXT NOT NULL,
	version      INTEGER NOT NULL,
	trigger_type TEXT NOT NULL,
	document     JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (workflow_id, version)
);
CREATE INDEX IF NOT EXISTS idx_workflows_trigger_type ON workflows (trigger_type);
`

func (s *PostgresStore) Save(desc workflow.Description) error {
	ctx := context.Background()
	blob, err := json.Marshal(desc)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflows (workflow_id, version, trigger_type, document)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (workflow_id, version) DO UPDATE SET trigger_type = $3, document = $4
	`, desc.Metadata.ID, desc.Metadata.Version, desc.Trigger.Type, blob)
	return err
}

func (s *PostgresStore) Get(id string, version int) (*workflow.Description, error) {
	ctx := context.Background()
	var blob []byte
	err := s.db.GetContext(ctx, &blob, `SELECT document FROM workflows WHERE workflow_id = $1 AND version = $2`, id, version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decode(blob)
}

func (s *PostgresStore) Latest(id string) (*workflow.Description, error) {
	ctx := context.Background()
	var blob []byte
	err := s.db.GetContext(ctx, &blob, `
		SELECT document FROM workflows WHERE workflow_id = $1 ORDER BY version DESC LIMIT 1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decode(blob)
}

func (s *PostgresStore) ListByTriggerType(triggerType string) ([]workflow.Description, error) {
	ctx := context.Background()
	var blobs [][]byte
	err := s.db.SelectContext(ctx, &blobs, `
		SELECT DISTINCT ON (workflow_id) document
		FROM workflows WHERE trigger_type = $1
		ORDER BY workflow_id, version DESC
	`, triggerType)
	if err != nil {
		return nil, err
	}
	out := make([]workflow.Description, 0, len(blobs))
	for _, blob := range blobs {
		desc, err := decode(blob)
		if err != nil {
			return nil, err
		}
		out = append(out, *desc)
	}
	return out, nil
}

func decode(blob []byte) (*workflow.Description, error) {
	var desc workflow.Description
	if err := json.Unmarshal(blob, &desc); err != nil {
		return nil, err
	}
	return &desc, nil
}
