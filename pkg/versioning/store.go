package versioning

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultStorageTimeout bounds every storage call made by the store.
const DefaultStorageTimeout = 5 * time.Second

// VersionStore provides durable storage for event configuration versions.
// It owns the persistence invariants: one DRAFT and one ACTIVE per event
// (guard-column unique indexes), version-code uniqueness per event, and
// write-after-freeze protection.
type VersionStore struct {
	db      *gorm.DB
	timeout time.Duration
}

// NewVersionStore creates a new VersionStore.
func NewVersionStore(db *gorm.DB) *VersionStore {
	return &VersionStore{db: db, timeout: DefaultStorageTimeout}
}

// SetTimeout overrides the bounded timeout applied to storage calls.
func (s *VersionStore) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// AutoMigrate creates or updates the event_versions table.
func (s *VersionStore) AutoMigrate() error {
	if err := s.db.AutoMigrate(&EventVersionRecord{}); err != nil {
		return fmt.Errorf("auto-migrate event_versions: %w", err)
	}
	return nil
}

// DB exposes the underlying handle for components that need transactions
// spanning version rows (the state machine).
func (s *VersionStore) DB() *gorm.DB {
	return s.db
}

func (s *VersionStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// Create inserts a new DRAFT version for the event, seeded with the given
// payload. If versionCode is empty a fresh code is generated. Returns
// ConflictError if a DRAFT already exists for the event or the code is
// already used; the exclusivity is enforced by the draft_guard unique
// index, so a create race has exactly one winner.
func (s *VersionStore) Create(ctx context.Context, eventNo, versionCode string, seed ConfigPayload, actor string) (*EventVersionRecord, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	if versionCode == "" {
		versionCode = newVersionCode()
	}
	guard := eventNo
	record := &EventVersionRecord{
		ID:             uuid.New().String(),
		EventNo:        eventNo,
		VersionCode:    versionCode,
		Status:         StatusDraft,
		Payload:        seed.Clone(),
		DraftGuard:     &guard,
		CreatedBy:      actor,
		LastModifiedBy: actor,
	}

	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		if !isDuplicateKey(err) {
			return nil, classifyStorage("create version", err)
		}
		// Either a draft already exists for this event or the code is taken.
		existing, lookupErr := s.GetDraft(ctx, eventNo)
		if lookupErr == nil && existing != nil {
			return nil, &ConflictError{
				Code:    CodeDraftExists,
				Message: fmt.Sprintf("event %s already has a draft (%s)", eventNo, existing.ID),
			}
		}
		return nil, &ConflictError{
			Code:    CodeCodeAlreadyUsed,
			Message: fmt.Sprintf("version code %s is already used for event %s", versionCode, eventNo),
		}
	}
	return record, nil
}

// Get retrieves a version by id. Returns NotFoundError if absent.
func (s *VersionStore) Get(ctx context.Context, id string) (*EventVersionRecord, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var record EventVersionRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{ID: id}
		}
		return nil, classifyStorage("get version", err)
	}
	return &record, nil
}

// GetActive returns the unique ACTIVE version for the event, or nil if the
// event has never been published.
func (s *VersionStore) GetActive(ctx context.Context, eventNo string) (*EventVersionRecord, error) {
	return s.getByStatus(ctx, eventNo, StatusActive)
}

// GetDraft returns the unique DRAFT version for the event, or nil if none
// is in progress.
func (s *VersionStore) GetDraft(ctx context.Context, eventNo string) (*EventVersionRecord, error) {
	return s.getByStatus(ctx, eventNo, StatusDraft)
}

func (s *VersionStore) getByStatus(ctx context.Context, eventNo string, status VersionStatus) (*EventVersionRecord, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var record EventVersionRecord
	err := s.db.WithContext(ctx).Where("event_no = ? AND status = ?", eventNo, status).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, classifyStorage(fmt.Sprintf("get %s version", status), err)
	}
	return &record, nil
}

// ListByEvent returns paginated versions for an event, ordered by
// created_at DESC (newest first). pageToken is an RFC3339Nano timestamp;
// versions with created_at < pageToken are returned.
func (s *VersionStore) ListByEvent(ctx context.Context, eventNo string, pageSize int, pageToken string) ([]EventVersionRecord, string, int, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	var totalSize int64
	if err := s.db.WithContext(ctx).Model(&EventVersionRecord{}).Where("event_no = ?", eventNo).Count(&totalSize).Error; err != nil {
		return nil, "", 0, classifyStorage("count versions", err)
	}

	query := s.db.WithContext(ctx).Where("event_no = ?", eventNo).Order("created_at DESC").Limit(pageSize + 1)
	if pageToken != "" {
		t, err := time.Parse(time.RFC3339Nano, pageToken)
		if err != nil {
			return nil, "", 0, fmt.Errorf("invalid page token: %w", err)
		}
		query = query.Where("created_at < ?", t)
	}

	var records []EventVersionRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, "", 0, classifyStorage("list versions", err)
	}

	var nextToken string
	if len(records) > pageSize {
		nextToken = records[pageSize-1].CreatedAt.Format(time.RFC3339Nano)
		records = records[:pageSize]
	}

	return records, nextToken, int(totalSize), nil
}

// Save persists payload and metadata mutations of a draft. Returns
// ConflictError when the version is no longer a draft (write-after-freeze),
// ConcurrentModificationError when the stored row advanced past the loaded
// lock_version (optimistic concurrency), and NotFoundError when the row is
// gone. On success the record's lock_version is advanced in place.
func (s *VersionStore) Save(ctx context.Context, record *EventVersionRecord) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	if record.Status != StatusDraft {
		return &ConflictError{
			Code:    CodeVersionFrozen,
			Message: fmt.Sprintf("version %s is %s and can no longer be edited", record.ID, record.Status),
		}
	}

	now := time.Now()
	result := s.db.WithContext(ctx).Model(&EventVersionRecord{}).
		Where("id = ? AND lock_version = ? AND status = ?", record.ID, record.LockVersion, StatusDraft).
		Updates(map[string]any{
			"payload":          record.Payload,
			"version_desc":     record.VersionDesc,
			"event_type":       record.EventType,
			"event_group":      record.EventGroup,
			"last_modified_by": record.LastModifiedBy,
			"last_modified_at": now,
			"lock_version":     gorm.Expr("lock_version + 1"),
		})
	if result.Error != nil {
		return classifyStorage("save version", result.Error)
	}
	if result.RowsAffected == 0 {
		return s.explainSaveFailure(ctx, record.ID)
	}

	record.LockVersion++
	record.LastModifiedAt = now
	return nil
}

// explainSaveFailure resolves a zero-row save into the precise error.
func (s *VersionStore) explainSaveFailure(ctx context.Context, id string) error {
	var current EventVersionRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&current).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &NotFoundError{ID: id}
		}
		return classifyStorage("save version", err)
	}
	if current.Status != StatusDraft {
		return &ConflictError{
			Code:    CodeVersionFrozen,
			Message: fmt.Sprintf("version %s is %s and can no longer be edited", id, current.Status),
		}
	}
	return &ConcurrentModificationError{ID: id}
}

// Delete removes a version, permitted only while it is a DRAFT. Returns
// InvalidStateError for any other status and NotFoundError when the row is
// already gone. The status qualifier on the DELETE makes discard and
// publish mutually exclusive: the race loser affects zero rows.
func (s *VersionStore) Delete(ctx context.Context, id string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	result := s.db.WithContext(ctx).Where("id = ? AND status = ?", id, StatusDraft).Delete(&EventVersionRecord{})
	if result.Error != nil {
		return classifyStorage("delete version", result.Error)
	}
	if result.RowsAffected == 0 {
		var current EventVersionRecord
		err := s.db.WithContext(ctx).Where("id = ?", id).First(&current).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{ID: id}
			}
			return classifyStorage("delete version", err)
		}
		return &InvalidStateError{
			ID:      id,
			Status:  current.Status,
			Message: fmt.Sprintf("version %s is %s; only drafts can be deleted", id, current.Status),
		}
	}
	return nil
}

// newVersionCode generates a fresh, never-reused version code.
func newVersionCode() string {
	return fmt.Sprintf("v%s-%s", time.Now().UTC().Format("20060102-150405"), uuid.New().String()[:8])
}

// isDuplicateKey reports whether err is a uniqueness violation. Checks the
// translated GORM error first and falls back to driver message matching
// for dialects without error translation.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "Duplicate entry")
}

// classifyStorage separates transient storage failures from everything
// else so callers can tell a retryable outage apart from a state error.
func classifyStorage(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) {
		return &StorageUnavailableError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
