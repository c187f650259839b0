package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/henriksa/boss-launcher-webhook/internal/core"
)

type vcsServiceRow struct {
	ID     int64          `db:"id"`
	Name   string         `db:"name"`
	Netloc string         `db:"netloc"`
	IPs    pq.StringArray `db:"ips"`
}

func (s queries) ServiceForNetloc(ctx context.Context, netloc string) (*core.VCSService, error) {
	var row vcsServiceRow
	err := sqlx.GetContext(ctx, s.q, &row, `SELECT id, name, netloc, ips FROM vcs_services WHERE netloc = $1`, netloc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("vcs service %s: %w", netloc, core.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &core.VCSService{ID: row.ID, Name: row.Name, Netloc: row.Netloc, IPs: row.IPs}, nil
}

const selectRelayTargets = `
	SELECT rt.id, rt.name, rt.url, rt.active, rt.verify_ssl
	FROM relay_targets rt
	WHERE rt.active AND EXISTS (
		SELECT 1 FROM relay_target_sources rs
		JOIN vcs_namespaces n ON n.id = rs.namespace_id
		JOIN vcs_services v ON v.id = n.service_id
		WHERE rs.relay_target_id = rt.id AND v.netloc = $1 AND n.path = $2
	)
	ORDER BY rt.id`

func (s queries) RelayTargets(ctx context.Context, netloc, namespace string) ([]*core.RelayTarget, error) {
	var targets []*core.RelayTarget
	if err := sqlx.SelectContext(ctx, s.q, &targets, selectRelayTargets, netloc, namespace); err != nil {
		return nil, fmt.Errorf("failed to load relay targets of %s/%s: %w", netloc, namespace, err)
	}
	return targets, nil
}
