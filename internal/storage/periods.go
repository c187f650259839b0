package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/henriksa/boss-launcher-webhook/internal/core"
)

type periodRow struct {
	ID        int64          `db:"id"`
	StartTime core.TimeOfDay `db:"start_time"`
	EndTime   core.TimeOfDay `db:"end_time"`
	StartDate *core.Date     `db:"start_date"`
	EndDate   *core.Date     `db:"end_date"`
	Recurring bool           `db:"recurring"`
	Comment   string         `db:"comment"`
}

type periodProjectRow struct {
	PeriodID int64 `db:"period_id"`
	core.Project
}

const selectPeriods = `
	SELECT q.id, q.start_time, q.end_time, q.start_date, q.end_date, q.recurring, q.comment
	FROM queue_periods q`

// PeriodsForProject returns the periods bound to project on the build service, by id.
func (s queries) PeriodsForProject(ctx context.Context, project string, buildServiceID int64) ([]*core.QueuePeriod, error) {
	query := selectPeriods + `
		WHERE EXISTS (
			SELECT 1 FROM queue_period_projects qp
			JOIN projects p ON p.id = qp.project_id
			WHERE qp.period_id = q.id AND p.name = $1 AND p.build_service_id = $2
		)
		ORDER BY q.id`
	var rows []periodRow
	if err := sqlx.SelectContext(ctx, s.q, &rows, query, project, buildServiceID); err != nil {
		return nil, fmt.Errorf("failed to load queue periods for %s: %w", project, err)
	}
	return s.withProjects(ctx, rows)
}

// ListPeriods returns every queue period by id.
func (s queries) ListPeriods(ctx context.Context) ([]*core.QueuePeriod, error) {
	var rows []periodRow
	if err := sqlx.SelectContext(ctx, s.q, &rows, selectPeriods+` ORDER BY q.id`); err != nil {
		return nil, fmt.Errorf("failed to list queue periods: %w", err)
	}
	return s.withProjects(ctx, rows)
}

func (s queries) withProjects(ctx context.Context, rows []periodRow) ([]*core.QueuePeriod, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(rows))
	byID := make(map[int64]*core.QueuePeriod, len(rows))
	out := make([]*core.QueuePeriod, 0, len(rows))
	for _, r := range rows {
		p := &core.QueuePeriod{
			ID:        r.ID,
			StartTime: r.StartTime,
			EndTime:   r.EndTime,
			StartDate: r.StartDate,
			EndDate:   r.EndDate,
			Recurring: r.Recurring,
			Comment:   r.Comment,
		}
		ids = append(ids, r.ID)
		byID[r.ID] = p
		out = append(out, p)
	}

	query := `
		SELECT qp.period_id, p.id, p.name, p.build_service_id, p.official, p.allowed, b.weburl
		FROM queue_period_projects qp
		JOIN projects p ON p.id = qp.project_id
		JOIN build_services b ON b.id = p.build_service_id
		WHERE qp.period_id = ANY($1)
		ORDER BY p.name`
	var projects []periodProjectRow
	if err := sqlx.SelectContext(ctx, s.q, &projects, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to load queue period projects: %w", err)
	}
	for _, pr := range projects {
		if p, ok := byID[pr.PeriodID]; ok {
			p.Projects = append(p.Projects, pr.Project)
		}
	}
	return out, nil
}
