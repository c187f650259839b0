// Package dispatch decides, per change notification and mapping, whether to
// trigger a build, skip it, delay it behind a queue period or only notify.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/henriksa/boss-launcher-webhook/internal/core"
	"github.com/henriksa/boss-launcher-webhook/internal/queue"
	"github.com/henriksa/boss-launcher-webhook/internal/revision"
)

// Result is the terminal decision for one event on one mapping.
type Result struct {
	Outcome core.Outcome
	Message string
	// Period is the queue period that delayed the build, if any.
	Period *core.QueuePeriod
}

// Engine orchestrates a single event: idempotency, queue periods, message
// composition and the calls to the notify and build sinks.
type Engine struct {
	tracker  *revision.Tracker
	periods  core.QueuePeriodStore
	window   *queue.Evaluator
	notifier core.Notifier
	builder  core.Builder
	logger   *slog.Logger
	locks    keyedLocks
}

// NewEngine creates an Engine with the given collaborators.
func NewEngine(tracker *revision.Tracker, periods core.QueuePeriodStore, window *queue.Evaluator, notifier core.Notifier, builder core.Builder, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		tracker:  tracker,
		periods:  periods,
		window:   window,
		notifier: notifier,
		builder:  builder,
		logger:   logger,
	}
}

// Handle processes event for mapping as of at. Events for the same mapping are
// serialized so that two deliveries of one tag cannot both pass the
// idempotency check.
//
// Collaborator failures are returned together with the Result: the message is
// always composed and the revision state is always persisted, but a failed
// build trigger never marks the state handled.
func (e *Engine) Handle(ctx context.Context, mapping *core.WebhookMapping, event *core.Event, at time.Time) (*Result, error) {
	defer e.locks.lock(mapping.ID)()

	state, err := e.tracker.GetOrCreate(ctx, mapping)
	if err != nil {
		return nil, err
	}
	if event.Revision != "" {
		state.Revision = event.Revision
	}

	log := e.logger.With("mapping", mapping.String(), "tag", event.Tag, "forced", event.Forced())

	mapped := mapping.Mapped()
	build := mapping.Build && mapped
	outcome := core.OutcomeNone
	recordTag := ""
	handled := state.Handled
	var period *core.QueuePeriod

	if build && revision.ShouldSkip(state, event.Tag, event.Forced()) {
		log.Info("build already handled, skipping")
		outcome = core.OutcomeSkipped
		build = false
	}

	if build {
		period, err = e.delayingPeriod(ctx, mapping, event, at)
		if err != nil {
			return nil, err
		}
		if period != nil {
			log.Info("build trigger delayed", "period", period.String(), "comment", period.Comment)
			outcome = core.OutcomeDelayed
			build = false
			recordTag = event.Tag
			handled = false
		}
	}

	switch {
	case build:
		outcome = core.OutcomeBuild
	case outcome != core.OutcomeNone:
	case !mapped:
		outcome = core.OutcomeNotMapped
	}

	message := ComposeMessage(mapping, state, event, outcome, period)
	log.Info("dispatch decided", "outcome", outcome.String(), "message", message)

	var errs []error
	if mapping.Notify {
		fields := mapping.Fields()
		fields[core.FieldMsg] = message
		fields[core.FieldPayload] = event.Payload
		if err := e.notifier.Notify(ctx, fields); err != nil {
			log.Error("failed to launch notification", "error", err)
			errs = append(errs, fmt.Errorf("notify failed: %w", err))
		}
	}

	if outcome == core.OutcomeBuild {
		fields := mapping.Fields()
		fields[core.FieldBranch] = mapping.Branch
		fields[core.FieldRevision] = state.Revision
		fields[core.FieldPayload] = event.Payload
		if err := e.builder.Trigger(ctx, fields); err != nil {
			log.Error("failed to launch build", "error", err)
			errs = append(errs, fmt.Errorf("build trigger failed: %w", err))
		} else {
			recordTag = event.Tag
			handled = true
		}
	}

	if err := e.tracker.Update(ctx, state, event.Revision, recordTag, event.Payload, handled); err != nil {
		errs = append(errs, err)
	}

	return &Result{Outcome: outcome, Message: message, Period: period}, errors.Join(errs...)
}

func (e *Engine) delayingPeriod(ctx context.Context, mapping *core.WebhookMapping, event *core.Event, at time.Time) (*core.QueuePeriod, error) {
	periods, err := e.periods.PeriodsForProject(ctx, mapping.Project, mapping.BuildService.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load queue periods for %s: %w", mapping.Project, err)
	}
	period, err := e.window.FirstDelaying(ctx, periods, at, event.ForcedBy)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate queue periods for %s: %w", mapping.Project, err)
	}
	return period, nil
}
