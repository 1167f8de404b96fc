package versioning

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB creates an in-memory SQLite DB with versioning tables migrated.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, NewVersionStore(db).AutoMigrate())
	require.NoError(t, NewAuditStore(db).AutoMigrate())
	return db
}

func newTestVersionStore(t *testing.T) *VersionStore {
	t.Helper()
	return NewVersionStore(newTestDB(t))
}

// insertVersion writes a row directly, bypassing the store's create path,
// for tests that need a timeline in a particular shape.
func insertVersion(t *testing.T, db *gorm.DB, eventNo, code string, status VersionStatus, createdAt time.Time, payload ConfigPayload) *EventVersionRecord {
	t.Helper()
	record := &EventVersionRecord{
		ID:             uuid.New().String(),
		EventNo:        eventNo,
		VersionCode:    code,
		Status:         status,
		Payload:        payload,
		CreatedBy:      "alice",
		LastModifiedBy: "alice",
		CreatedAt:      createdAt,
	}
	switch status {
	case StatusDraft:
		guard := eventNo
		record.DraftGuard = &guard
	case StatusActive:
		guard := eventNo
		record.ActiveGuard = &guard
		published := createdAt
		record.PublishedAt = &published
	case StatusApproved, StatusArchived:
		published := createdAt
		record.PublishedAt = &published
	}
	require.NoError(t, db.Create(record).Error)
	return record
}

func TestVersionStore_CreateAndGet(t *testing.T) {
	store := newTestVersionStore(t)
	ctx := context.Background()

	seed := ConfigPayload{SectionBasicInfo: []byte(`{"name":"login"}`)}
	created, err := store.Create(ctx, "EVT-001", "v1", seed, "alice")
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, StatusDraft, created.Status)
	assert.Equal(t, "v1", created.VersionCode)
	require.NotNil(t, created.DraftGuard)
	assert.Equal(t, "EVT-001", *created.DraftGuard)
	assert.Nil(t, created.PublishedAt)

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "alice", got.CreatedBy)
	assert.JSONEq(t, `{"name":"login"}`, string(got.Payload[SectionBasicInfo]))
}

func TestVersionStore_GetUnknown(t *testing.T) {
	store := newTestVersionStore(t)

	_, err := store.Get(context.Background(), "no-such-id")
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "no-such-id", notFound.ID)
}

func TestVersionStore_SingleDraftPerEvent(t *testing.T) {
	store := newTestVersionStore(t)
	ctx := context.Background()

	first, err := store.Create(ctx, "EVT-001", "v1", nil, "alice")
	require.NoError(t, err)

	_, err = store.Create(ctx, "EVT-001", "v2", nil, "bob")
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, CodeDraftExists, conflict.Code)

	// A different event is unaffected.
	other, err := store.Create(ctx, "EVT-002", "v1", nil, "bob")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestVersionStore_VersionCodeNeverReused(t *testing.T) {
	store := newTestVersionStore(t)
	ctx := context.Background()

	draft, err := store.Create(ctx, "EVT-001", "v1", nil, "alice")
	require.NoError(t, err)

	// Retire the draft so no DRAFT exists, then try to reuse its code.
	err = store.DB().Model(&EventVersionRecord{}).
		Where("id = ?", draft.ID).
		Updates(map[string]any{"status": StatusArchived, "draft_guard": nil}).Error
	require.NoError(t, err)

	_, err = store.Create(ctx, "EVT-001", "v1", nil, "bob")
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, CodeCodeAlreadyUsed, conflict.Code)

	// The same code on another event is fine.
	_, err = store.Create(ctx, "EVT-002", "v1", nil, "bob")
	require.NoError(t, err)
}

func TestVersionStore_GeneratedVersionCode(t *testing.T) {
	store := newTestVersionStore(t)

	created, err := store.Create(context.Background(), "EVT-001", "", nil, "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, created.VersionCode)
}

func TestVersionStore_GetActiveAndDraftAbsent(t *testing.T) {
	store := newTestVersionStore(t)
	ctx := context.Background()

	active, err := store.GetActive(ctx, "EVT-001")
	require.NoError(t, err)
	assert.Nil(t, active)

	draft, err := store.GetDraft(ctx, "EVT-001")
	require.NoError(t, err)
	assert.Nil(t, draft)
}

func TestVersionStore_SaveAdvancesLockVersion(t *testing.T) {
	store := newTestVersionStore(t)
	ctx := context.Background()

	draft, err := store.Create(ctx, "EVT-001", "v1", nil, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(0), draft.LockVersion)

	draft.Payload = ConfigPayload{SectionFieldConfig: []byte(`{"fields":[]}`)}
	draft.LastModifiedBy = "bob"
	require.NoError(t, store.Save(ctx, draft))
	assert.Equal(t, int64(1), draft.LockVersion)

	got, err := store.Get(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.LockVersion)
	assert.Equal(t, "bob", got.LastModifiedBy)
	assert.JSONEq(t, `{"fields":[]}`, string(got.Payload[SectionFieldConfig]))
}

func TestVersionStore_SaveStaleCopy(t *testing.T) {
	store := newTestVersionStore(t)
	ctx := context.Background()

	draft, err := store.Create(ctx, "EVT-001", "v1", nil, "alice")
	require.NoError(t, err)

	stale, err := store.Get(ctx, draft.ID)
	require.NoError(t, err)

	// First writer wins.
	draft.Payload = ConfigPayload{SectionBasicInfo: []byte(`{"v":1}`)}
	require.NoError(t, store.Save(ctx, draft))

	// The stale copy loses and nothing is overwritten.
	stale.Payload = ConfigPayload{SectionBasicInfo: []byte(`{"v":2}`)}
	err = store.Save(ctx, stale)
	var concurrent *ConcurrentModificationError
	require.ErrorAs(t, err, &concurrent)

	got, err := store.Get(ctx, draft.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(got.Payload[SectionBasicInfo]))
}

func TestVersionStore_SaveFrozenVersion(t *testing.T) {
	store := newTestVersionStore(t)
	ctx := context.Background()

	draft, err := store.Create(ctx, "EVT-001", "v1", nil, "alice")
	require.NoError(t, err)

	// Freeze the row behind the caller's back.
	err = store.DB().Model(&EventVersionRecord{}).
		Where("id = ?", draft.ID).
		Updates(map[string]any{"status": StatusActive, "draft_guard": nil, "active_guard": "EVT-001"}).Error
	require.NoError(t, err)

	draft.Payload = ConfigPayload{SectionBasicInfo: []byte(`{"v":2}`)}
	err = store.Save(ctx, draft)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, CodeVersionFrozen, conflict.Code)

	// A copy that already knows it is frozen is rejected up front.
	frozen, err := store.Get(ctx, draft.ID)
	require.NoError(t, err)
	err = store.Save(ctx, frozen)
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, CodeVersionFrozen, conflict.Code)
}

func TestVersionStore_SaveDeletedDraft(t *testing.T) {
	store := newTestVersionStore(t)
	ctx := context.Background()

	draft, err := store.Create(ctx, "EVT-001", "v1", nil, "alice")
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, draft.ID))

	err = store.Save(ctx, draft)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestVersionStore_DeleteDraftOnly(t *testing.T) {
	store := newTestVersionStore(t)
	ctx := context.Background()

	draft, err := store.Create(ctx, "EVT-001", "v1", nil, "alice")
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, draft.ID))

	_, err = store.Get(ctx, draft.ID)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)

	// Published rows are untouchable.
	active := insertVersion(t, store.DB(), "EVT-002", "v1", StatusActive, time.Now(), nil)
	err = store.Delete(ctx, active.ID)
	var state *InvalidStateError
	require.ErrorAs(t, err, &state)
	assert.Equal(t, StatusActive, state.Status)

	got, err := store.Get(ctx, active.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status)

	// Deleting twice reports the row gone.
	err = store.Delete(ctx, draft.ID)
	require.ErrorAs(t, err, &notFound)
}

func TestVersionStore_ListByEvent(t *testing.T) {
	store := newTestVersionStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		status := StatusArchived
		if i == 4 {
			status = StatusActive
		}
		insertVersion(t, store.DB(), "EVT-001", "v"+string(rune('1'+i)), status, base.Add(time.Duration(i)*time.Minute), nil)
	}
	insertVersion(t, store.DB(), "EVT-OTHER", "v1", StatusActive, base, nil)

	// First page, newest first.
	records, nextToken, total, err := store.ListByEvent(ctx, "EVT-001", 2, "")
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, records, 2)
	assert.Equal(t, "v5", records[0].VersionCode)
	assert.Equal(t, "v4", records[1].VersionCode)
	require.NotEmpty(t, nextToken)

	// Second page continues where the first left off.
	records, nextToken, _, err = store.ListByEvent(ctx, "EVT-001", 2, nextToken)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "v3", records[0].VersionCode)
	assert.Equal(t, "v2", records[1].VersionCode)
	require.NotEmpty(t, nextToken)

	// Last page has no token.
	records, nextToken, _, err = store.ListByEvent(ctx, "EVT-001", 2, nextToken)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "v1", records[0].VersionCode)
	assert.Empty(t, nextToken)
}

func TestVersionStore_ListByEventBadToken(t *testing.T) {
	store := newTestVersionStore(t)

	_, _, _, err := store.ListByEvent(context.Background(), "EVT-001", 10, "not-a-timestamp")
	require.Error(t, err)
}

func TestVersionStore_ExpiredContext(t *testing.T) {
	store := newTestVersionStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Get(ctx, "any")
	var unavailable *StorageUnavailableError
	require.ErrorAs(t, err, &unavailable)
}
