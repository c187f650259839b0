package core

import (
	"context"
	"errors"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// MappingStore is the source of configured webhook mappings.
type MappingStore interface {
	// FindMappings returns the mappings for a repository URL and branch.
	// An empty branch matches every branch of the repository.
	FindMappings(ctx context.Context, repoURL, branch string) ([]*WebhookMapping, error)
	GetMapping(ctx context.Context, id int64) (*WebhookMapping, error)
	ListMappings(ctx context.Context) ([]*WebhookMapping, error)
}

// QueuePeriodStore returns the queue periods bound to a project on a build service.
type QueuePeriodStore interface {
	PeriodsForProject(ctx context.Context, project string, buildServiceID int64) ([]*QueuePeriod, error)
}

// RevisionStore keeps the last seen revision per mapping.
type RevisionStore interface {
	// GetOrCreate returns the state for a mapping, creating an unhandled one if absent.
	GetOrCreate(ctx context.Context, mappingID int64) (*RevisionState, error)
	Save(ctx context.Context, state *RevisionState) error
}

// SourceStore resolves where a pushed repository is hosted.
type SourceStore interface {
	// ServiceForNetloc returns ErrNotFound for unknown forges.
	ServiceForNetloc(ctx context.Context, netloc string) (*VCSService, error)
	// RelayTargets returns the active relay targets of a namespace on a forge.
	RelayTargets(ctx context.Context, netloc, namespace string) ([]*RelayTarget, error)
}

// Notifier delivers a composed message to the notification channel.
//
//go:generate mockgen -destination=../../mocks/mock_core.go -package=mocks . Notifier,Builder,PermissionChecker
type Notifier interface {
	Notify(ctx context.Context, fields Fields) error
}

// Builder submits a build trigger to the build service.
type Builder interface {
	Trigger(ctx context.Context, fields Fields) error
}

// PermissionChecker answers whether an actor may override queue periods.
type PermissionChecker interface {
	CanOverride(ctx context.Context, actor *Actor) (bool, error)
}
