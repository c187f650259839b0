package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/henriksa/boss-launcher-webhook/internal/core"
)

const selectRevision = `
	SELECT mapping_id, revision, tag, handled, updated_at, payload
	FROM last_seen_revisions WHERE mapping_id = $1`

// GetOrCreate returns the state of a mapping, inserting an unhandled row on
// first use. Concurrent callers race on the insert, not on the row.
func (s queries) GetOrCreate(ctx context.Context, mappingID int64) (*core.RevisionState, error) {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO last_seen_revisions (mapping_id) VALUES ($1) ON CONFLICT (mapping_id) DO NOTHING`,
		mappingID)
	if err != nil {
		return nil, fmt.Errorf("failed to create revision state for mapping %d: %w", mappingID, err)
	}

	var state core.RevisionState
	if err := sqlx.GetContext(ctx, s.q, &state, selectRevision, mappingID); err != nil {
		return nil, fmt.Errorf("failed to load revision state for mapping %d: %w", mappingID, err)
	}
	return &state, nil
}

// LastSeen returns the stored state or core.ErrNotFound.
func (s queries) LastSeen(ctx context.Context, mappingID int64) (*core.RevisionState, error) {
	var state core.RevisionState
	err := sqlx.GetContext(ctx, s.q, &state, selectRevision, mappingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("revision state for mapping %d: %w", mappingID, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load revision state for mapping %d: %w", mappingID, err)
	}
	return &state, nil
}

// Save writes the full state.
func (s queries) Save(ctx context.Context, state *core.RevisionState) error {
	query := `
		INSERT INTO last_seen_revisions (mapping_id, revision, tag, handled, updated_at, payload)
		VALUES (:mapping_id, :revision, :tag, :handled, :updated_at, :payload)
		ON CONFLICT (mapping_id) DO UPDATE SET
			revision = EXCLUDED.revision,
			tag = EXCLUDED.tag,
			handled = EXCLUDED.handled,
			updated_at = EXCLUDED.updated_at,
			payload = EXCLUDED.payload`
	if _, err := sqlx.NamedExecContext(ctx, s.q, query, state); err != nil {
		return fmt.Errorf("failed to save revision state for mapping %d: %w", state.MappingID, err)
	}
	return nil
}
