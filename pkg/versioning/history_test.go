package versioning

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeline_IsCurrentOnlyForActive(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	insertVersion(t, stack.store.DB(), "EVT-001", "v1", StatusArchived, base, nil)
	insertVersion(t, stack.store.DB(), "EVT-001", "v2", StatusApproved, base.Add(time.Minute), nil)
	active := insertVersion(t, stack.store.DB(), "EVT-001", "v3", StatusActive, base.Add(2*time.Minute), nil)
	insertVersion(t, stack.store.DB(), "EVT-001", "v4", StatusDraft, base.Add(3*time.Minute), nil)

	timeline, err := stack.history.Timeline(ctx, "EVT-001", 10, "")
	require.NoError(t, err)
	assert.Equal(t, "EVT-001", timeline.EventNo)
	assert.Equal(t, 4, timeline.TotalSize)
	require.Len(t, timeline.Versions, 4)

	// Newest first.
	assert.Equal(t, "v4", timeline.Versions[0].VersionCode)
	assert.Equal(t, "v1", timeline.Versions[3].VersionCode)

	var current []string
	for _, v := range timeline.Versions {
		if v.IsCurrent {
			current = append(current, v.ID)
		}
	}
	require.Len(t, current, 1)
	assert.Equal(t, active.ID, current[0])
}

func TestTimeline_EmptyEvent(t *testing.T) {
	stack := newTestStack(t)

	timeline, err := stack.history.Timeline(context.Background(), "EVT-NONE", 10, "")
	require.NoError(t, err)
	assert.Zero(t, timeline.TotalSize)
	assert.Empty(t, timeline.Versions)
}

func TestTimeline_Pagination(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		insertVersion(t, stack.store.DB(), "EVT-001", "v"+string(rune('1'+i)), StatusArchived, base.Add(time.Duration(i)*time.Minute), nil)
	}

	page, err := stack.history.Timeline(ctx, "EVT-001", 2, "")
	require.NoError(t, err)
	require.Len(t, page.Versions, 2)
	require.NotEmpty(t, page.NextPageToken)

	page, err = stack.history.Timeline(ctx, "EVT-001", 2, page.NextPageToken)
	require.NoError(t, err)
	require.Len(t, page.Versions, 1)
	assert.Equal(t, "v1", page.Versions[0].VersionCode)
	assert.Empty(t, page.NextPageToken)
}

func TestDiffSummary(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := insertVersion(t, stack.store.DB(), "EVT-001", "v1", StatusArchived, base, ConfigPayload{
		SectionBasicInfo:       []byte(`{"name":"login","desc":"old"}`),
		SectionFieldConfig:     []byte(`{"fields":["amount"]}`),
		SectionStatementConfig: []byte(`{"sql":"select 1"}`),
	})
	b := insertVersion(t, stack.store.DB(), "EVT-001", "v2", StatusActive, base.Add(time.Minute), ConfigPayload{
		SectionBasicInfo:       []byte(`{"name":"login","desc":"new"}`),
		SectionFieldConfig:     []byte(`{"fields":["amount"]}`),
		SectionIndicatorConfig: []byte(`{"indicators":[]}`),
	})

	diff, err := stack.history.DiffSummary(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, diff.VersionA)
	assert.Equal(t, b.ID, diff.VersionB)

	changes := map[PayloadSection]string{}
	for _, s := range diff.Sections {
		changes[s.Section] = s.Change
	}
	assert.Equal(t, map[PayloadSection]string{
		SectionBasicInfo:       "changed",
		SectionStatementConfig: "removed",
		SectionIndicatorConfig: "added",
	}, changes)
}

func TestDiffSummary_Identical(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	payload := ConfigPayload{SectionBasicInfo: []byte(`{"name":"login"}`)}
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := insertVersion(t, stack.store.DB(), "EVT-001", "v1", StatusArchived, base, payload)
	b := insertVersion(t, stack.store.DB(), "EVT-001", "v2", StatusActive, base.Add(time.Minute), payload)

	diff, err := stack.history.DiffSummary(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Empty(t, diff.Sections)
}

func TestDiffSummary_UnknownVersion(t *testing.T) {
	stack := newTestStack(t)

	_, err := stack.history.DiffSummary(context.Background(), "no-such-a", "no-such-b")
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
}
