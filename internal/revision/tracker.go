// Package revision tracks the last seen revision of each webhook mapping and
// decides when an incoming tag was already handled.
package revision

import (
	"context"
	"fmt"
	"time"

	"github.com/henriksa/boss-launcher-webhook/internal/core"
)

// Tracker wraps a keyed RevisionStore with compare-and-update semantics.
type Tracker struct {
	store core.RevisionStore
	now   func() time.Time
}

// NewTracker creates a Tracker backed by store.
func NewTracker(store core.RevisionStore) *Tracker {
	return &Tracker{store: store, now: time.Now}
}

// GetOrCreate returns the state of a mapping, creating an unhandled one on first use.
func (t *Tracker) GetOrCreate(ctx context.Context, mapping *core.WebhookMapping) (*core.RevisionState, error) {
	state, err := t.store.GetOrCreate(ctx, mapping.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load revision state for mapping %d: %w", mapping.ID, err)
	}
	return state, nil
}

// ShouldSkip reports whether the tag was already fully processed. A forced
// replay always bypasses the check, and an empty tag never matches.
func ShouldSkip(state *core.RevisionState, tag string, forced bool) bool {
	return !forced && state.Handled && tag != "" && state.Tag == tag
}

// Update records the given values on state and persists it.
func (t *Tracker) Update(ctx context.Context, state *core.RevisionState, revision, tag, payload string, handled bool) error {
	if revision != "" {
		state.Revision = revision
	}
	if tag != "" {
		state.Tag = tag
	}
	if payload != "" {
		state.Payload = payload
	}
	state.Handled = handled
	return t.Save(ctx, state)
}

// Save persists state as is, stamping the update time.
func (t *Tracker) Save(ctx context.Context, state *core.RevisionState) error {
	state.Timestamp = t.now()
	if err := t.store.Save(ctx, state); err != nil {
		return fmt.Errorf("failed to save revision state for mapping %d: %w", state.MappingID, err)
	}
	return nil
}
