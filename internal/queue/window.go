// Package queue evaluates queue periods: administrative time windows during
// which builds for a project are held back.
package queue

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/henriksa/boss-launcher-webhook/internal/core"
)

// OverridePermission is the permission codename that allows bypassing a queue period.
const OverridePermission = "can_override_queueperiod"

// Delay reports whether at falls inside the restriction window of period.
// at is evaluated in its own location; see Evaluator for zone handling.
func Delay(period *core.QueuePeriod, at time.Time) bool {
	now := core.TimeOfDayOf(at)

	if period.StartTime <= period.EndTime {
		if !(period.StartTime <= now && now <= period.EndTime) {
			return false // wrong time of day
		}
	}

	if period.StartTime >= period.EndTime {
		if period.EndTime <= now && now <= period.StartTime {
			return false // wrong time of day
		}
	}

	today := core.DateOf(at)
	if period.StartDate != nil && today.Before(*period.StartDate) {
		return false // not started yet
	}
	if period.EndDate != nil && today.After(*period.EndDate) {
		return false // already ended
	}

	return true
}

// Override reports whether actor may bypass queue periods. A nil actor never can.
func Override(ctx context.Context, checker core.PermissionChecker, actor *core.Actor) (bool, error) {
	if actor == nil {
		return false, nil
	}
	ok, err := checker.CanOverride(ctx, actor)
	if err != nil {
		return false, fmt.Errorf("failed to check override permission for %s: %w", actor, err)
	}
	return ok, nil
}

// Evaluator applies queue periods in a fixed location. It holds no mutable
// state and is safe to share between concurrent dispatches.
type Evaluator struct {
	loc     *time.Location
	checker core.PermissionChecker
}

// NewEvaluator creates an Evaluator. A nil location means UTC.
func NewEvaluator(loc *time.Location, checker core.PermissionChecker) *Evaluator {
	if loc == nil {
		loc = time.UTC
	}
	return &Evaluator{loc: loc, checker: checker}
}

// Location returns the zone periods are evaluated in.
func (e *Evaluator) Location() *time.Location {
	return e.loc
}

// Delay is the package level Delay with at converted to the evaluator's zone.
func (e *Evaluator) Delay(period *core.QueuePeriod, at time.Time) bool {
	return Delay(period, at.In(e.loc))
}

// Active reports whether period actively delays an event by actor at the given time.
func (e *Evaluator) Active(ctx context.Context, period *core.QueuePeriod, at time.Time, actor *core.Actor) (bool, error) {
	if !e.Delay(period, at) {
		return false, nil
	}
	overridden, err := Override(ctx, e.checker, actor)
	if err != nil {
		return false, err
	}
	return !overridden, nil
}

// FirstDelaying returns the first period, in ID order, that actively delays
// the event, or nil when none does.
func (e *Evaluator) FirstDelaying(ctx context.Context, periods []*core.QueuePeriod, at time.Time, actor *core.Actor) (*core.QueuePeriod, error) {
	sorted := slices.Clone(periods)
	slices.SortFunc(sorted, func(a, b *core.QueuePeriod) int {
		return cmp.Compare(a.ID, b.ID)
	})

	for _, period := range sorted {
		active, err := e.Active(ctx, period, at, actor)
		if err != nil {
			return nil, err
		}
		if active {
			return period, nil
		}
	}
	return nil, nil
}
