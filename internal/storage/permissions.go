package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/jmoiron/sqlx"

	"github.com/henriksa/boss-launcher-webhook/internal/core"
	"github.com/henriksa/boss-launcher-webhook/internal/queue"
)

type userRow struct {
	ID        int64  `db:"id"`
	Username  string `db:"username"`
	Superuser bool   `db:"is_superuser"`
}

// GetActor returns the user or core.ErrNotFound.
func (s queries) GetActor(ctx context.Context, username string) (*core.Actor, error) {
	var u userRow
	err := sqlx.GetContext(ctx, s.q, &u, `SELECT id, username, is_superuser FROM users WHERE username = $1`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", username, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", username, err)
	}
	return &core.Actor{Username: u.Username, Superuser: u.Superuser}, nil
}

// CanOverride is true for superusers and holders of the override permission.
// Unknown users cannot override.
func (s queries) CanOverride(ctx context.Context, actor *core.Actor) (bool, error) {
	if actor == nil {
		return false, nil
	}
	if actor.Superuser {
		return true, nil
	}

	var allowed bool
	query := `
		SELECT COALESCE(bool_or(u.is_superuser OR up.codename IS NOT NULL), FALSE)
		FROM users u
		LEFT JOIN user_permissions up ON up.user_id = u.id AND up.codename = $2
		WHERE u.username = $1`
	if err := sqlx.GetContext(ctx, s.q, &allowed, query, actor.Username, queue.OverridePermission); err != nil {
		return false, fmt.Errorf("failed to check permissions of %s: %w", actor.Username, err)
	}
	return allowed, nil
}

// CachedPermissions memoizes answers of another checker for a while so
// replays and bursts of pushes do not hit the database on every event.
type CachedPermissions struct {
	next  core.PermissionChecker
	cache *expirable.LRU[string, bool]
}

var _ core.PermissionChecker = (*CachedPermissions)(nil)

// NewCachedPermissions keeps up to size answers for ttl.
func NewCachedPermissions(next core.PermissionChecker, size int, ttl time.Duration) *CachedPermissions {
	return &CachedPermissions{
		next:  next,
		cache: expirable.NewLRU[string, bool](size, nil, ttl),
	}
}

func (c *CachedPermissions) CanOverride(ctx context.Context, actor *core.Actor) (bool, error) {
	if actor == nil {
		return false, nil
	}
	key := fmt.Sprintf("%s|%t", actor.Username, actor.Superuser)
	if allowed, ok := c.cache.Get(key); ok {
		return allowed, nil
	}

	allowed, err := c.next.CanOverride(ctx, actor)
	if err != nil {
		return false, err
	}
	c.cache.Add(key, allowed)
	return allowed, nil
}
