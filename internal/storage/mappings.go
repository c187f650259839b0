package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/henriksa/boss-launcher-webhook/internal/core"
)

const selectMappings = `
	SELECT m.id, m.repourl, m.branch, m.project, m.package, m.token, m.debian, m.dumb,
	       m.notify, m.build, m.comment, u.username,
	       b.id AS bs_id, b.namespace AS bs_namespace, b.apiurl AS bs_apiurl, b.weburl AS bs_weburl
	FROM webhook_mappings m
	JOIN users u ON u.id = m.user_id
	JOIN build_services b ON b.id = m.build_service_id`

type mappingRow struct {
	ID          int64  `db:"id"`
	RepoURL     string `db:"repourl"`
	Branch      string `db:"branch"`
	Project     string `db:"project"`
	Package     string `db:"package"`
	Token       string `db:"token"`
	Debian      string `db:"debian"`
	Dumb        string `db:"dumb"`
	Notify      bool   `db:"notify"`
	Build       bool   `db:"build"`
	Comment     string `db:"comment"`
	Username    string `db:"username"`
	BSID        int64  `db:"bs_id"`
	BSNamespace string `db:"bs_namespace"`
	BSAPIURL    string `db:"bs_apiurl"`
	BSWebURL    string `db:"bs_weburl"`
}

func (r *mappingRow) toCore() *core.WebhookMapping {
	return &core.WebhookMapping{
		ID:      r.ID,
		RepoURL: r.RepoURL,
		Branch:  r.Branch,
		Project: r.Project,
		Package: r.Package,
		Token:   r.Token,
		Debian:  r.Debian,
		Dumb:    r.Dumb,
		Notify:  r.Notify,
		Build:   r.Build,
		Comment: r.Comment,
		User:    r.Username,
		BuildService: core.BuildService{
			ID:        r.BSID,
			Namespace: r.BSNamespace,
			APIURL:    r.BSAPIURL,
			WebURL:    r.BSWebURL,
		},
	}
}

func toMappings(rows []mappingRow) []*core.WebhookMapping {
	out := make([]*core.WebhookMapping, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toCore())
	}
	return out
}

// FindMappings returns the mappings of repoURL, all branches when branch is empty.
func (s queries) FindMappings(ctx context.Context, repoURL, branch string) ([]*core.WebhookMapping, error) {
	query := selectMappings + ` WHERE m.repourl = $1 AND ($2::text = '' OR m.branch = $2) ORDER BY m.id`
	var rows []mappingRow
	if err := sqlx.SelectContext(ctx, s.q, &rows, query, repoURL, branch); err != nil {
		return nil, fmt.Errorf("failed to find mappings for %s: %w", repoURL, err)
	}
	return toMappings(rows), nil
}

// GetMapping returns a single mapping or core.ErrNotFound.
func (s queries) GetMapping(ctx context.Context, id int64) (*core.WebhookMapping, error) {
	var row mappingRow
	err := sqlx.GetContext(ctx, s.q, &row, selectMappings+` WHERE m.id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("mapping %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mapping %d: %w", id, err)
	}
	return row.toCore(), nil
}

// ListMappings returns every mapping ordered by id.
func (s queries) ListMappings(ctx context.Context) ([]*core.WebhookMapping, error) {
	var rows []mappingRow
	if err := sqlx.SelectContext(ctx, s.q, &rows, selectMappings+` ORDER BY m.id`); err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}
	return toMappings(rows), nil
}
