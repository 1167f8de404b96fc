package versioning

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNotifier records reload notifications and can be told to fail.
type fakeNotifier struct {
	calls []string
	err   error
}

func (n *fakeNotifier) NotifyActivated(_ context.Context, eventNo, versionID string) error {
	n.calls = append(n.calls, eventNo+"/"+versionID)
	return n.err
}

func auditActions(t *testing.T, audit *AuditStore, eventNo string) []string {
	t.Helper()
	records, _, _, err := audit.ListByEvent(eventNo, 100, "")
	require.NoError(t, err)
	actions := make([]string, len(records))
	for i, rec := range records {
		actions[i] = rec.Action + ":" + rec.Outcome
	}
	return actions
}

func TestPublishCoordinator_NotifiesRuntime(t *testing.T) {
	stack := newTestStack(t)
	notifier := &fakeNotifier{}
	stack.coordinator.notifier = notifier
	ctx := context.Background()

	draft, err := stack.store.Create(ctx, "EVT-001", "v1", nil, "alice")
	require.NoError(t, err)

	promoted, err := stack.coordinator.Publish(ctx, draft.ID, "alice")
	require.NoError(t, err)
	require.Len(t, notifier.calls, 1)
	assert.Equal(t, "EVT-001/"+promoted.ID, notifier.calls[0])
}

func TestPublishCoordinator_NotifierFailureDoesNotRollBack(t *testing.T) {
	stack := newTestStack(t)
	stack.coordinator.notifier = &fakeNotifier{err: errors.New("runtime unreachable")}
	ctx := context.Background()

	draft, err := stack.store.Create(ctx, "EVT-001", "v1", nil, "alice")
	require.NoError(t, err)

	promoted, err := stack.coordinator.Publish(ctx, draft.ID, "alice")
	require.NoError(t, err)

	got, err := stack.store.Get(ctx, promoted.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status)
}

func TestPublishCoordinator_PreHookVeto(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	veto := errors.New("payload failed validation")
	stack.coordinator.AddPreHook(func(_ context.Context, _ *EventVersionRecord) error {
		return veto
	})

	draft, err := stack.store.Create(ctx, "EVT-001", "v1", nil, "alice")
	require.NoError(t, err)

	_, err = stack.coordinator.Publish(ctx, draft.ID, "alice")
	require.ErrorIs(t, err, veto)

	// The draft is still a draft.
	got, err := stack.store.Get(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, got.Status)
}

func TestPublishCoordinator_PostHookFailureIsBestEffort(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	stack.coordinator.AddPostHook(func(_ context.Context, _ *EventVersionRecord) error {
		return errors.New("cache refresh failed")
	})

	draft, err := stack.store.Create(ctx, "EVT-001", "v1", nil, "alice")
	require.NoError(t, err)

	promoted, err := stack.coordinator.Publish(ctx, draft.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, promoted.Status)
}

func TestPublishCoordinator_AuditTrail(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	draft, err := stack.store.Create(ctx, "EVT-001", "v1", nil, "alice")
	require.NoError(t, err)
	v1, err := stack.coordinator.Publish(ctx, draft.ID, "alice")
	require.NoError(t, err)

	_, err = stack.coordinator.Rollback(ctx, v1.ID, "bob")
	require.NoError(t, err)

	draft2, err := stack.store.Create(ctx, "EVT-001", "v2", nil, "carol")
	require.NoError(t, err)
	require.NoError(t, stack.coordinator.Discard(ctx, draft2.ID, "EVT-001", "carol"))

	actions := auditActions(t, stack.audit, "EVT-001")
	assert.ElementsMatch(t, []string{
		"version.publish:success",
		"version.rollback:success",
		"version.discard:success",
	}, actions)
}

func TestPublishCoordinator_FailedPublishAudited(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	active := publishDraft(t, stack.machine, stack.store, "EVT-001", nil)

	// Publishing an already-active version fails and leaves a failure entry.
	_, err := stack.coordinator.Publish(ctx, active.ID, "alice")
	var state *InvalidStateError
	require.ErrorAs(t, err, &state)

	actions := auditActions(t, stack.audit, "EVT-001")
	assert.Contains(t, actions, "version.publish:failure")
}

func TestPublishCoordinator_PublishRecordsPreviousActive(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	v1 := publishDraft(t, stack.machine, stack.store, "EVT-001", nil)

	draft, err := stack.store.Create(ctx, "EVT-001", "", nil, "alice")
	require.NoError(t, err)
	v2, err := stack.coordinator.Publish(ctx, draft.ID, "alice")
	require.NoError(t, err)

	records, _, _, err := stack.audit.ListByEvent("EVT-001", 100, "")
	require.NoError(t, err)
	var found bool
	for _, rec := range records {
		if rec.Action == "version.publish" && rec.VersionID == v2.ID {
			found = true
			assert.Equal(t, v1.ID, rec.OldValue["versionId"])
			assert.Equal(t, v2.ID, rec.NewValue["versionId"])
		}
	}
	assert.True(t, found, "publish audit entry for %s not found", v2.ID)
}
