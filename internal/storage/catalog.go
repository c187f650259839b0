package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/henriksa/boss-launcher-webhook/internal/core"
	"github.com/henriksa/boss-launcher-webhook/internal/mapping"
)

func (s queries) MappingExists(ctx context.Context, excludeID, buildServiceID int64, project, pkg string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, s.q, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM webhook_mappings
			WHERE id <> $1 AND build_service_id = $2 AND project = $3 AND package = $4
		)`, excludeID, buildServiceID, project, pkg)
	return exists, err
}

func (s queries) ServiceExists(ctx context.Context, netloc string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, s.q, &exists, `SELECT EXISTS (SELECT 1 FROM vcs_services WHERE netloc = $1)`, netloc)
	return exists, err
}

func (s queries) NamespaceExists(ctx context.Context, ns mapping.Namespace) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, s.q, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM vcs_namespaces n
			JOIN vcs_services v ON v.id = n.service_id
			WHERE v.netloc = $1 AND n.path = $2
		)`, ns.Netloc, ns.Path)
	return exists, err
}

// ProjectRules loads a project with its groups and namespaces.
func (s queries) ProjectRules(ctx context.Context, name string, buildServiceID int64) (*mapping.ProjectRules, error) {
	var rules mapping.ProjectRules
	err := sqlx.GetContext(ctx, s.q, &rules.Project, `
		SELECT p.id, p.name, p.build_service_id, p.official, p.allowed, b.weburl
		FROM projects p JOIN build_services b ON b.id = p.build_service_id
		WHERE p.name = $1 AND p.build_service_id = $2`, name, buildServiceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", name, core.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if err := sqlx.SelectContext(ctx, s.q, &rules.Groups,
		`SELECT group_name FROM project_groups WHERE project_id = $1 ORDER BY group_name`, rules.ID); err != nil {
		return nil, fmt.Errorf("failed to load groups of %s: %w", name, err)
	}

	var namespaces []struct {
		Netloc string `db:"netloc"`
		Path   string `db:"path"`
	}
	if err := sqlx.SelectContext(ctx, s.q, &namespaces, `
		SELECT v.netloc, n.path
		FROM project_namespaces pn
		JOIN vcs_namespaces n ON n.id = pn.namespace_id
		JOIN vcs_services v ON v.id = n.service_id
		WHERE pn.project_id = $1
		ORDER BY v.netloc, n.path`, rules.ID); err != nil {
		return nil, fmt.Errorf("failed to load namespaces of %s: %w", name, err)
	}
	for _, ns := range namespaces {
		rules.Namespaces = append(rules.Namespaces, mapping.Namespace{Netloc: ns.Netloc, Path: ns.Path})
	}
	return &rules, nil
}
