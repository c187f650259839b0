// Package storage implements the core store interfaces on PostgreSQL.
package storage

import (
	"context"

	"github.com/jmoiron/sqlx"
	// import db drivers
	_ "github.com/lib/pq"

	"github.com/henriksa/boss-launcher-webhook/internal/config"
	"github.com/henriksa/boss-launcher-webhook/internal/core"
	"github.com/henriksa/boss-launcher-webhook/internal/mapping"
)

// Store defines the interface for all database operations.
type Store interface {
	core.MappingStore
	core.QueuePeriodStore
	core.RevisionStore
	core.PermissionChecker
	core.SourceStore
	mapping.Catalog

	// LastSeen returns the stored state without creating one.
	LastSeen(ctx context.Context, mappingID int64) (*core.RevisionState, error)
	GetActor(ctx context.Context, username string) (*core.Actor, error)
	ListPeriods(ctx context.Context) ([]*core.QueuePeriod, error)
	Import(ctx context.Context, seed *config.Seed, opts ImportOptions) (*ImportResult, error)
}

// queries runs statements on either the pool or a transaction.
type queries struct {
	q sqlx.ExtContext
}

type postgresStore struct {
	queries
	db *sqlx.DB
}

// NewStore creates a new Store
func NewStore(db *sqlx.DB) Store {
	return &postgresStore{queries: queries{q: db}, db: db}
}
