package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/henriksa/boss-launcher-webhook/internal/core"
	"github.com/henriksa/boss-launcher-webhook/internal/queue"
	"github.com/henriksa/boss-launcher-webhook/internal/revision"
	"github.com/henriksa/boss-launcher-webhook/mocks"
)

type periodStore struct {
	periods map[string][]*core.QueuePeriod
}

func (s *periodStore) PeriodsForProject(_ context.Context, project string, _ int64) ([]*core.QueuePeriod, error) {
	return s.periods[project], nil
}

type fixture struct {
	engine   *Engine
	store    *revision.MemoryStore
	periods  *periodStore
	notifier *mocks.MockNotifier
	builder  *mocks.MockBuilder
	checker  *mocks.MockPermissionChecker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &fixture{
		store:    revision.NewMemoryStore(),
		periods:  &periodStore{periods: map[string][]*core.QueuePeriod{}},
		notifier: mocks.NewMockNotifier(ctrl),
		builder:  mocks.NewMockBuilder(ctrl),
		checker:  mocks.NewMockPermissionChecker(ctrl),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.engine = NewEngine(
		revision.NewTracker(f.store),
		f.periods,
		queue.NewEvaluator(time.UTC, f.checker),
		f.notifier,
		f.builder,
		logger,
	)
	return f
}

func (f *fixture) state(t *testing.T, mappingID int64) *core.RevisionState {
	t.Helper()
	state, err := f.store.GetOrCreate(context.Background(), mappingID)
	require.NoError(t, err)
	return state
}

func mappedMapping() *core.WebhookMapping {
	return &core.WebhookMapping{
		ID:      1,
		RepoURL: "https://example.com/r.git",
		Branch:  "master",
		Project: "home:alice",
		Package: "foo",
		Build:   true,
		BuildService: core.BuildService{
			ID:        1,
			Namespace: "obs",
			WebURL:    "https://build.example.com",
		},
	}
}

var noon = time.Date(2024, 2, 5, 12, 0, 0, 0, time.UTC)

func TestHandle_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	unmapped := mappedMapping()
	unmapped.ID = 2
	unmapped.Project = ""
	res, err := f.engine.Handle(ctx, unmapped, &core.Event{Tag: "v1", Actor: "alice"}, noon)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeNotMapped, res.Outcome)
	assert.True(t, strings.HasSuffix(res.Message, "Please map it."), res.Message)

	mapping := mappedMapping()
	f.builder.EXPECT().Trigger(gomock.Any(), gomock.Any()).Return(nil)
	res, err = f.engine.Handle(ctx, mapping, &core.Event{Tag: "v1", Actor: "alice"}, noon)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeBuild, res.Outcome)

	state := f.state(t, mapping.ID)
	assert.Equal(t, "v1", state.Tag)
	assert.True(t, state.Handled)
}

func TestHandle_Idempotency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mapping := mappedMapping()
	event := &core.Event{Tag: "v1", Actor: "alice"}

	f.builder.EXPECT().Trigger(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	res, err := f.engine.Handle(ctx, mapping, event, noon)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeBuild, res.Outcome)

	res, err = f.engine.Handle(ctx, mapping, event, noon)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeSkipped, res.Outcome)
	assert.Equal(t, "Tag v1 by alice in master branch of https://example.com/r.git, which was already handled; skipping", res.Message)
}

func TestHandle_ForcedBypassesIdempotency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mapping := mappedMapping()

	f.builder.EXPECT().Trigger(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	_, err := f.engine.Handle(ctx, mapping, &core.Event{Tag: "v1", Actor: "alice"}, noon)
	require.NoError(t, err)

	forced := &core.Event{Tag: "v1", Actor: "admin", ForcedBy: &core.Actor{Username: "admin"}}
	res, err := f.engine.Handle(ctx, mapping, forced, noon)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeBuild, res.Outcome)
	assert.True(t, strings.HasPrefix(res.Message, "Forced build trigger for v1 by admin"), res.Message)
}

func TestHandle_Delayed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mapping := mappedMapping()
	mapping.Notify = true
	period := &core.QueuePeriod{
		ID:        5,
		StartTime: core.NewTimeOfDay(9, 0, 0),
		EndTime:   core.NewTimeOfDay(17, 0, 0),
		Comment:   "release freeze",
		Projects:  []core.Project{{Name: "home:alice", WebURL: "https://build.example.com"}},
	}
	f.periods.periods["home:alice"] = []*core.QueuePeriod{period}

	var notified core.Fields
	f.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, fields core.Fields) error {
		notified = fields
		return nil
	})

	res, err := f.engine.Handle(ctx, mapping, &core.Event{Tag: "v2", Actor: "alice", Payload: "{}"}, noon)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeDelayed, res.Outcome)
	assert.Same(t, period, res.Period)
	assert.Equal(t, "Tag v2 by alice in master branch of https://example.com/r.git, which will be delayed by "+
		"Queue period from  09:00:00 to  17:00:00 for home:alice on https://build.example.com\nrelease freeze", res.Message)

	assert.Equal(t, res.Message, notified[core.FieldMsg])
	assert.Equal(t, "{}", notified[core.FieldPayload])

	state := f.state(t, mapping.ID)
	assert.Equal(t, "v2", state.Tag, "tag is carried forward")
	assert.False(t, state.Handled)
	assert.Equal(t, "{}", state.Payload)
}

func TestHandle_DelayOverriddenByPrivilegedReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mapping := mappedMapping()
	f.periods.periods["home:alice"] = []*core.QueuePeriod{{
		ID: 1, StartTime: core.NewTimeOfDay(0, 0, 0), EndTime: core.NewTimeOfDay(23, 59, 59),
	}}
	admin := &core.Actor{Username: "admin"}

	f.checker.EXPECT().CanOverride(gomock.Any(), admin).Return(true, nil)
	f.builder.EXPECT().Trigger(gomock.Any(), gomock.Any()).Return(nil)

	res, err := f.engine.Handle(ctx, mapping, &core.Event{Tag: "v1", Actor: "admin", ForcedBy: admin}, noon)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeBuild, res.Outcome)
}

func TestHandle_BuildFields(t *testing.T) {
	f := newFixture(t)
	mapping := mappedMapping()
	mapping.Token = "sailfish"
	mapping.Dumb = "Y"

	var fields core.Fields
	f.builder.EXPECT().Trigger(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, got core.Fields) error {
		fields = got
		return nil
	})

	res, err := f.engine.Handle(context.Background(), mapping, &core.Event{Tag: "v1", Revision: "abc123", Actor: "alice", Payload: "{}"}, noon)
	require.NoError(t, err)
	assert.Equal(t, "Tag v1 by alice in master branch of https://example.com/r.git, which will trigger build in project home:alice "+
		"package foo (https://build.example.com/package/show?package=foo&project=home:alice)", res.Message)

	assert.Equal(t, core.Fields{
		"repourl":  "https://example.com/r.git",
		"branch":   "master",
		"project":  "home:alice",
		"package":  "foo",
		"ev":       map[string]any{"namespace": "obs"},
		"token":    "sailfish",
		"dumb":     "Y",
		"revision": "abc123",
		"payload":  "{}",
	}, fields)
}

func TestHandle_BuildDisabled(t *testing.T) {
	f := newFixture(t)
	mapping := mappedMapping()
	mapping.Build = false

	res, err := f.engine.Handle(context.Background(), mapping, &core.Event{Revision: "abc123", Actor: "alice"}, noon)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeNone, res.Outcome)
	assert.Equal(t, "abc123 by alice in master branch of https://example.com/r.git", res.Message)
	assert.Equal(t, "abc123", f.state(t, mapping.ID).Revision)
}

func TestHandle_TriggerFailureLeavesUnhandled(t *testing.T) {
	f := newFixture(t)
	mapping := mappedMapping()

	f.builder.EXPECT().Trigger(gomock.Any(), gomock.Any()).Return(errors.New("queue is full"))

	res, err := f.engine.Handle(context.Background(), mapping, &core.Event{Tag: "v1", Actor: "alice", Payload: "{}"}, noon)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, core.OutcomeBuild, res.Outcome)

	state := f.state(t, mapping.ID)
	assert.False(t, state.Handled)
	assert.Empty(t, state.Tag)
	assert.Equal(t, "{}", state.Payload, "payload is still recorded")
}

func TestHandle_NotifyFailureStillBuilds(t *testing.T) {
	f := newFixture(t)
	mapping := mappedMapping()
	mapping.Notify = true

	f.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(errors.New("irc unreachable"))
	f.builder.EXPECT().Trigger(gomock.Any(), gomock.Any()).Return(nil)

	res, err := f.engine.Handle(context.Background(), mapping, &core.Event{Tag: "v1", Actor: "alice"}, noon)
	require.Error(t, err)
	assert.Equal(t, core.OutcomeBuild, res.Outcome)
	assert.True(t, f.state(t, mapping.ID).Handled)
}

func TestHandle_ConcurrentSameTagBuildsOnce(t *testing.T) {
	f := newFixture(t)
	mapping := mappedMapping()

	var builds atomic.Int32
	f.builder.EXPECT().Trigger(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, core.Fields) error {
		builds.Add(1)
		return nil
	}).AnyTimes()

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Handle(context.Background(), mapping, &core.Event{Tag: "v1", Actor: "alice"}, noon)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), builds.Load())
	assert.Zero(t, f.engine.locks.len(), "mapping locks are released after use")
}
