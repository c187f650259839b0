package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/henriksa/boss-launcher-webhook/internal/config"
	"github.com/henriksa/boss-launcher-webhook/internal/core"
	"github.com/henriksa/boss-launcher-webhook/internal/mapping"
	"github.com/henriksa/boss-launcher-webhook/internal/netutil"
)

// ImportOptions control how seed mappings are checked.
type ImportOptions struct {
	Rules          mapping.Rules
	DefaultProject string
}

// ImportResult counts what an import wrote.
type ImportResult struct {
	BuildServices int
	VCSServices   int
	Users         int
	Projects      int
	Mappings      int
	RelayTargets  int
	QueuePeriods  int
}

type seedOwner struct {
	id    int64
	owner mapping.Owner
}

// importer carries the ids resolved so far within one transaction.
type importer struct {
	queries
	tx            *sqlx.Tx
	opts          ImportOptions
	buildServices map[string]int64
	namespaces    map[string]int64
	users         map[string]seedOwner
	result        ImportResult
}

// Import upserts the seed in a single transaction. Mappings are validated
// with mapping.Validate against what is already stored plus the seed itself.
func (s *postgresStore) Import(ctx context.Context, seed *config.Seed, opts ImportOptions) (*ImportResult, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	imp := &importer{
		queries:       queries{q: tx},
		tx:            tx,
		opts:          opts,
		buildServices: make(map[string]int64),
		namespaces:    make(map[string]int64),
		users:         make(map[string]seedOwner),
	}

	steps := []func(context.Context, *config.Seed) error{
		imp.importBuildServices,
		imp.importVCSServices,
		imp.importUsers,
		imp.importProjects,
		imp.importMappings,
		imp.importRelayTargets,
		imp.importPeriods,
	}
	for _, step := range steps {
		if err := step(ctx, seed); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit import: %w", err)
	}
	return &imp.result, nil
}

func (i *importer) importBuildServices(ctx context.Context, seed *config.Seed) error {
	for _, bs := range seed.BuildServices {
		var id int64
		err := i.tx.GetContext(ctx, &id, `
			INSERT INTO build_services (namespace, apiurl, weburl) VALUES ($1, $2, $3)
			ON CONFLICT (namespace) DO UPDATE SET apiurl = EXCLUDED.apiurl, weburl = EXCLUDED.weburl
			RETURNING id`, bs.Namespace, bs.APIURL, strings.TrimSuffix(bs.WebURL, "/"))
		if err != nil {
			return fmt.Errorf("failed to import build service %s: %w", bs.Namespace, err)
		}
		i.buildServices[bs.Namespace] = id
		i.result.BuildServices++
	}
	return nil
}

func (i *importer) buildServiceID(ctx context.Context, namespace string) (int64, error) {
	if id, ok := i.buildServices[namespace]; ok {
		return id, nil
	}
	var id int64
	if err := i.tx.GetContext(ctx, &id, `SELECT id FROM build_services WHERE namespace = $1`, namespace); err != nil {
		return 0, fmt.Errorf("unknown build service %q: %w", namespace, err)
	}
	i.buildServices[namespace] = id
	return id, nil
}

func (i *importer) importVCSServices(ctx context.Context, seed *config.Seed) error {
	for _, vs := range seed.VCSServices {
		if _, err := netutil.ParseCIDRs(vs.IPs); err != nil {
			return fmt.Errorf("vcs service %s: %w", vs.Netloc, err)
		}
		var serviceID int64
		err := i.tx.GetContext(ctx, &serviceID, `
			INSERT INTO vcs_services (name, netloc, ips) VALUES ($1, $2, $3)
			ON CONFLICT (netloc) DO UPDATE SET name = EXCLUDED.name, ips = EXCLUDED.ips
			RETURNING id`, vs.Name, vs.Netloc, pq.StringArray(nonNil(vs.IPs)))
		if err != nil {
			return fmt.Errorf("failed to import vcs service %s: %w", vs.Netloc, err)
		}
		for _, path := range vs.Namespaces {
			path = strings.Trim(path, "/")
			var nsID int64
			err := i.tx.GetContext(ctx, &nsID, `
				INSERT INTO vcs_namespaces (service_id, path) VALUES ($1, $2)
				ON CONFLICT (service_id, path) DO UPDATE SET path = EXCLUDED.path
				RETURNING id`, serviceID, path)
			if err != nil {
				return fmt.Errorf("failed to import namespace %s/%s: %w", vs.Netloc, path, err)
			}
			i.namespaces[vs.Netloc+"/"+path] = nsID
		}
		i.result.VCSServices++
	}
	return nil
}

func (i *importer) importUsers(ctx context.Context, seed *config.Seed) error {
	for _, u := range seed.Users {
		var id int64
		err := i.tx.GetContext(ctx, &id, `
			INSERT INTO users (username, is_superuser) VALUES ($1, $2)
			ON CONFLICT (username) DO UPDATE SET is_superuser = EXCLUDED.is_superuser
			RETURNING id`, u.Username, u.Superuser)
		if err != nil {
			return fmt.Errorf("failed to import user %s: %w", u.Username, err)
		}
		if err := i.replace(ctx, "user_groups", "user_id", "group_name", id, u.Groups); err != nil {
			return err
		}
		if err := i.replace(ctx, "user_permissions", "user_id", "codename", id, u.Permissions); err != nil {
			return err
		}
		i.users[u.Username] = seedOwner{
			id:    id,
			owner: mapping.Owner{Username: u.Username, Superuser: u.Superuser, Groups: u.Groups},
		}
		i.result.Users++
	}
	return nil
}

// replace swaps the values of a (owner, value) join table for one owner.
// Table and column names are fixed strings from this file.
func (i *importer) replace(ctx context.Context, table, ownerCol, valueCol string, ownerID int64, values []string) error {
	if _, err := i.tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, table, ownerCol), ownerID); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	insert := fmt.Sprintf(`INSERT INTO %s (%s, %s) VALUES ($1, $2) ON CONFLICT DO NOTHING`, table, ownerCol, valueCol)
	for _, v := range values {
		if _, err := i.tx.ExecContext(ctx, insert, ownerID, v); err != nil {
			return fmt.Errorf("failed to write %s: %w", table, err)
		}
	}
	return nil
}

func (i *importer) importProjects(ctx context.Context, seed *config.Seed) error {
	for _, p := range seed.Projects {
		bsID, err := i.buildServiceID(ctx, p.BuildService)
		if err != nil {
			return fmt.Errorf("project %s: %w", p.Name, err)
		}
		var id int64
		err = i.tx.GetContext(ctx, &id, `
			INSERT INTO projects (name, build_service_id, official, allowed) VALUES ($1, $2, $3, $4)
			ON CONFLICT (name, build_service_id) DO UPDATE SET official = EXCLUDED.official, allowed = EXCLUDED.allowed
			RETURNING id`, p.Name, bsID, boolOr(p.Official, true), boolOr(p.Allowed, true))
		if err != nil {
			return fmt.Errorf("failed to import project %s: %w", p.Name, err)
		}
		if err := i.replace(ctx, "project_groups", "project_id", "group_name", id, p.Groups); err != nil {
			return err
		}

		if _, err := i.tx.ExecContext(ctx, `DELETE FROM project_namespaces WHERE project_id = $1`, id); err != nil {
			return fmt.Errorf("failed to clear namespaces of %s: %w", p.Name, err)
		}
		for _, ref := range p.Namespaces {
			nsID, err := i.namespaceID(ctx, ref)
			if err != nil {
				return fmt.Errorf("project %s: %w", p.Name, err)
			}
			if _, err := i.tx.ExecContext(ctx,
				`INSERT INTO project_namespaces (project_id, namespace_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				id, nsID); err != nil {
				return fmt.Errorf("failed to bind namespace %s to %s: %w", ref, p.Name, err)
			}
		}
		i.result.Projects++
	}
	return nil
}

func (i *importer) namespaceID(ctx context.Context, ref string) (int64, error) {
	ref = strings.Trim(ref, "/")
	if id, ok := i.namespaces[ref]; ok {
		return id, nil
	}
	netloc, path, ok := strings.Cut(ref, "/")
	if !ok {
		return 0, fmt.Errorf("namespace %q must be netloc/path", ref)
	}
	var id int64
	err := i.tx.GetContext(ctx, &id, `
		SELECT n.id FROM vcs_namespaces n JOIN vcs_services v ON v.id = n.service_id
		WHERE v.netloc = $1 AND n.path = $2`, netloc, path)
	if err != nil {
		return 0, fmt.Errorf("unknown namespace %q: %w", ref, err)
	}
	i.namespaces[ref] = id
	return id, nil
}

func (i *importer) owner(ctx context.Context, username string) (seedOwner, error) {
	if o, ok := i.users[username]; ok {
		return o, nil
	}
	var u userRow
	if err := i.tx.GetContext(ctx, &u, `SELECT id, username, is_superuser FROM users WHERE username = $1`, username); err != nil {
		return seedOwner{}, fmt.Errorf("unknown user %q: %w", username, err)
	}
	var groups []string
	if err := i.tx.SelectContext(ctx, &groups, `SELECT group_name FROM user_groups WHERE user_id = $1`, u.ID); err != nil {
		return seedOwner{}, fmt.Errorf("failed to load groups of %s: %w", username, err)
	}
	o := seedOwner{id: u.ID, owner: mapping.Owner{Username: u.Username, Superuser: u.Superuser, Groups: groups}}
	i.users[username] = o
	return o, nil
}

func (i *importer) importMappings(ctx context.Context, seed *config.Seed) error {
	for _, sm := range seed.Mappings {
		bsID, err := i.buildServiceID(ctx, sm.BuildService)
		if err != nil {
			return fmt.Errorf("mapping %s: %w", sm.RepoURL, err)
		}
		owner, err := i.owner(ctx, sm.User)
		if err != nil {
			return fmt.Errorf("mapping %s: %w", sm.RepoURL, err)
		}

		m := &core.WebhookMapping{
			RepoURL:      sm.RepoURL,
			Branch:       sm.Branch,
			Project:      sm.Project,
			Package:      sm.Package,
			Token:        sm.Token,
			Debian:       sm.Debian,
			Dumb:         sm.Dumb,
			Notify:       boolOr(sm.Notify, true),
			Build:        sm.Build,
			Comment:      sm.Comment,
			User:         sm.User,
			BuildService: core.BuildService{ID: bsID, Namespace: sm.BuildService},
		}
		if strings.TrimSpace(m.Branch) == "" {
			m.Branch = "master"
		}
		if strings.TrimSpace(m.Project) == "" {
			m.Project = i.opts.DefaultProject
		}

		var existing []int64
		if err := i.tx.SelectContext(ctx, &existing, `
			SELECT id FROM webhook_mappings
			WHERE repourl = $1 AND branch = $2 AND build_service_id = $3 AND project = $4 AND package = $5`,
			strings.TrimSpace(m.RepoURL), strings.TrimSpace(m.Branch), bsID,
			strings.TrimSpace(m.Project), strings.TrimSpace(m.Package)); err != nil {
			return fmt.Errorf("failed to look up mapping %s: %w", m.RepoURL, err)
		}
		if len(existing) > 0 {
			m.ID = existing[0]
		}

		if err := mapping.Validate(ctx, i.queries, i.opts.Rules, m, owner.owner); err != nil {
			return fmt.Errorf("mapping %s: %w", m, err)
		}

		if m.ID != 0 {
			_, err = i.tx.ExecContext(ctx, `
				UPDATE webhook_mappings SET token = $2, debian = $3, dumb = $4, notify = $5, build = $6,
					comment = $7, user_id = $8
				WHERE id = $1`,
				m.ID, m.Token, m.Debian, m.Dumb, m.Notify, m.Build, m.Comment, owner.id)
		} else {
			_, err = i.tx.ExecContext(ctx, `
				INSERT INTO webhook_mappings
					(repourl, branch, project, package, token, debian, dumb, notify, build, comment, user_id, build_service_id)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
				m.RepoURL, m.Branch, m.Project, m.Package, m.Token, m.Debian, m.Dumb,
				m.Notify, m.Build, m.Comment, owner.id, bsID)
		}
		if err != nil {
			return fmt.Errorf("failed to write mapping %s: %w", m, err)
		}
		i.result.Mappings++
	}
	return nil
}

func (i *importer) importRelayTargets(ctx context.Context, seed *config.Seed) error {
	for _, rt := range seed.RelayTargets {
		if rt.Name == "" || rt.URL == "" {
			return fmt.Errorf("relay target %q: name and url are required", rt.Name)
		}
		var id int64
		err := i.tx.GetContext(ctx, &id, `
			INSERT INTO relay_targets (name, url, active, verify_ssl) VALUES ($1, $2, $3, $4)
			ON CONFLICT (name) DO UPDATE SET url = EXCLUDED.url, active = EXCLUDED.active, verify_ssl = EXCLUDED.verify_ssl
			RETURNING id`, rt.Name, rt.URL, boolOr(rt.Active, true), boolOr(rt.VerifySSL, true))
		if err != nil {
			return fmt.Errorf("failed to import relay target %s: %w", rt.Name, err)
		}

		if _, err := i.tx.ExecContext(ctx, `DELETE FROM relay_target_sources WHERE relay_target_id = $1`, id); err != nil {
			return fmt.Errorf("failed to clear sources of %s: %w", rt.Name, err)
		}
		for _, ref := range rt.Sources {
			nsID, err := i.namespaceID(ctx, ref)
			if err != nil {
				return fmt.Errorf("relay target %s: %w", rt.Name, err)
			}
			if _, err := i.tx.ExecContext(ctx,
				`INSERT INTO relay_target_sources (relay_target_id, namespace_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				id, nsID); err != nil {
				return fmt.Errorf("failed to bind namespace %s to %s: %w", ref, rt.Name, err)
			}
		}
		i.result.RelayTargets++
	}
	return nil
}

func (i *importer) importPeriods(ctx context.Context, seed *config.Seed) error {
	if seed.QueuePeriods == nil {
		return nil
	}
	if _, err := i.tx.ExecContext(ctx, `DELETE FROM queue_periods`); err != nil {
		return fmt.Errorf("failed to clear queue periods: %w", err)
	}

	for _, sp := range seed.QueuePeriods {
		period, err := periodFromSeed(sp)
		if err != nil {
			return err
		}
		bsID, err := i.buildServiceID(ctx, sp.BuildService)
		if err != nil {
			return fmt.Errorf("queue period %s: %w", period, err)
		}

		var id int64
		err = i.tx.GetContext(ctx, &id, `
			INSERT INTO queue_periods (start_time, end_time, start_date, end_date, recurring, comment)
			VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			period.StartTime, period.EndTime, period.StartDate, period.EndDate, period.Recurring, period.Comment)
		if err != nil {
			return fmt.Errorf("failed to import queue period: %w", err)
		}

		for _, name := range sp.Projects {
			res, err := i.tx.ExecContext(ctx, `
				INSERT INTO queue_period_projects (period_id, project_id)
				SELECT $1, id FROM projects WHERE name = $2 AND build_service_id = $3`, id, name, bsID)
			if err != nil {
				return fmt.Errorf("failed to bind project %s to queue period: %w", name, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("queue period %s: unknown project %q", period, name)
			}
		}
		i.result.QueuePeriods++
	}
	return nil
}

func periodFromSeed(sp config.SeedQueuePeriod) (*core.QueuePeriod, error) {
	start, err := core.ParseTimeOfDay(sp.StartTime)
	if err != nil {
		return nil, fmt.Errorf("queue period start_time: %w", err)
	}
	end, err := core.ParseTimeOfDay(sp.EndTime)
	if err != nil {
		return nil, fmt.Errorf("queue period end_time: %w", err)
	}
	p := &core.QueuePeriod{StartTime: start, EndTime: end, Recurring: sp.Recurring, Comment: sp.Comment}
	if sp.StartDate != "" {
		d, err := core.ParseDate(sp.StartDate)
		if err != nil {
			return nil, fmt.Errorf("queue period start_date: %w", err)
		}
		p.StartDate = &d
	}
	if sp.EndDate != "" {
		d, err := core.ParseDate(sp.EndDate)
		if err != nil {
			return nil, fmt.Errorf("queue period end_date: %w", err)
		}
		p.EndDate = &d
	}
	return p, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
