package versioning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TransitionRule defines an allowed lifecycle transition.
type TransitionRule struct {
	From VersionStatus
	To   VersionStatus
}

// DefaultTransitions defines the legal lifecycle edges. Everything else,
// including any transition out of archived and active back to draft, is
// rejected. Archived is reachable from both active and approved so events
// without an approval step can retire versions directly.
var DefaultTransitions = []TransitionRule{
	{From: StatusDraft, To: StatusActive},
	{From: StatusActive, To: StatusApproved},
	{From: StatusActive, To: StatusArchived},
	{From: StatusApproved, To: StatusArchived},
}

// VersionStateMachine enforces legal status transitions and implements the
// promote, rollback, and discard algorithms over the version store.
type VersionStateMachine struct {
	store       *VersionStore
	transitions []TransitionRule
}

// NewVersionStateMachine creates a machine with the default rules.
func NewVersionStateMachine(store *VersionStore) *VersionStateMachine {
	return &VersionStateMachine{
		store:       store,
		transitions: DefaultTransitions,
	}
}

// ValidateTransition checks whether from->to is a legal lifecycle edge.
// Returns nil if allowed, an InvalidTransitionError if not.
func (m *VersionStateMachine) ValidateTransition(from, to VersionStatus) error {
	for _, t := range m.transitions {
		if t.From == from && t.To == to {
			return nil
		}
	}
	return &InvalidTransitionError{
		From:    from,
		To:      to,
		Message: fmt.Sprintf("no transition defined from %s to %s", from, to),
	}
}

// AllowedTransitions returns all valid target statuses from the given status.
func (m *VersionStateMachine) AllowedTransitions(from VersionStatus) []VersionStatus {
	var allowed []VersionStatus
	for _, t := range m.transitions {
		if t.From == from {
			allowed = append(allowed, t.To)
		}
	}
	return allowed
}

// Promote transitions a draft to ACTIVE, archiving the event's current
// ACTIVE version (if any) in the same transaction. The published_at stamp
// is set here, exactly once. This is the only operation that changes two
// versions' statuses as one unit: a failure anywhere leaves the old
// version ACTIVE and the draft untouched. The loser of a concurrent
// publish/discard race observes InvalidStateError.
func (m *VersionStateMachine) Promote(ctx context.Context, draftID, actor string) (*EventVersionRecord, error) {
	var promoted EventVersionRecord

	err := m.store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var draft EventVersionRecord
		if err := tx.Where("id = ?", draftID).First(&draft).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &InvalidStateError{
					ID:      draftID,
					Message: fmt.Sprintf("draft %s no longer exists; it was already published or discarded", draftID),
				}
			}
			return classifyStorage("load draft", err)
		}
		if draft.Status != StatusDraft {
			return &InvalidStateError{
				ID:      draftID,
				Status:  draft.Status,
				Message: fmt.Sprintf("version %s is %s; only drafts can be published", draftID, draft.Status),
			}
		}

		now := time.Now()

		// Archive the current ACTIVE version first so the active_guard
		// index slot is free for the draft.
		result := tx.Model(&EventVersionRecord{}).
			Where("event_no = ? AND status = ?", draft.EventNo, StatusActive).
			Updates(map[string]any{
				"status":           StatusArchived,
				"active_guard":     nil,
				"last_modified_by": actor,
				"last_modified_at": now,
				"lock_version":     gorm.Expr("lock_version + 1"),
			})
		if result.Error != nil {
			return classifyStorage("archive active version", result.Error)
		}

		guard := draft.EventNo
		result = tx.Model(&EventVersionRecord{}).
			Where("id = ? AND status = ?", draftID, StatusDraft).
			Updates(map[string]any{
				"status":           StatusActive,
				"draft_guard":      nil,
				"active_guard":     guard,
				"published_at":     now,
				"last_modified_by": actor,
				"last_modified_at": now,
				"lock_version":     gorm.Expr("lock_version + 1"),
			})
		if result.Error != nil {
			return classifyStorage("activate draft", result.Error)
		}
		if result.RowsAffected == 0 {
			return &InvalidStateError{
				ID:      draftID,
				Message: fmt.Sprintf("draft %s changed status mid-publish; someone else already published or discarded it", draftID),
			}
		}

		if err := tx.Where("id = ?", draftID).First(&promoted).Error; err != nil {
			return classifyStorage("reload promoted version", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &promoted, nil
}

// Rollback publishes a new version whose payload is copied from a
// historical one. The target must have been live at some point (it carries
// a published_at stamp); drafts and versions that were never published are
// rejected. The new version gets a freshly generated version code, the
// target itself is never mutated, and any open DRAFT row is left alone.
func (m *VersionStateMachine) Rollback(ctx context.Context, targetID, actor string) (*EventVersionRecord, error) {
	var restored EventVersionRecord

	err := m.store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var target EventVersionRecord
		if err := tx.Where("id = ?", targetID).First(&target).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{ID: targetID}
			}
			return classifyStorage("load rollback target", err)
		}
		if target.Status == StatusDraft || target.PublishedAt == nil {
			return &InvalidStateError{
				ID:      targetID,
				Status:  target.Status,
				Message: fmt.Sprintf("version %s was never published and cannot be a rollback target", targetID),
			}
		}

		now := time.Now()

		// Archive the current ACTIVE version, which may be the target
		// itself; either way history is only appended to, never rewritten.
		result := tx.Model(&EventVersionRecord{}).
			Where("event_no = ? AND status = ?", target.EventNo, StatusActive).
			Updates(map[string]any{
				"status":           StatusArchived,
				"active_guard":     nil,
				"last_modified_by": actor,
				"last_modified_at": now,
				"lock_version":     gorm.Expr("lock_version + 1"),
			})
		if result.Error != nil {
			return classifyStorage("archive active version", result.Error)
		}

		guard := target.EventNo
		restored = EventVersionRecord{
			ID:             uuid.New().String(),
			EventNo:        target.EventNo,
			VersionCode:    newVersionCode(),
			VersionDesc:    fmt.Sprintf("rollback of %s", target.VersionCode),
			EventType:      target.EventType,
			EventGroup:     target.EventGroup,
			Status:         StatusActive,
			Payload:        target.Payload.Clone(),
			ActiveGuard:    &guard,
			CreatedBy:      actor,
			LastModifiedBy: actor,
			PublishedAt:    &now,
		}
		if err := tx.Create(&restored).Error; err != nil {
			if isDuplicateKey(err) {
				return &ConflictError{
					Code:    CodeCodeAlreadyUsed,
					Message: fmt.Sprintf("generated version code %s collided; retry the rollback", restored.VersionCode),
				}
			}
			return classifyStorage("create rollback version", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &restored, nil
}

// ApplyTransition moves a published version along a legal non-promote
// edge: active->approved, active->archived, approved->archived. This is
// the entry point for the external approval collaborator; the machine only
// accepts the resulting transition request.
func (m *VersionStateMachine) ApplyTransition(ctx context.Context, id string, to VersionStatus, actor string) (*EventVersionRecord, error) {
	var updated EventVersionRecord

	err := m.store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current EventVersionRecord
		if err := tx.Where("id = ?", id).First(&current).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{ID: id}
			}
			return classifyStorage("load version", err)
		}
		if current.Status == StatusDraft {
			// Drafts only leave via Promote or deletion.
			return &InvalidStateError{
				ID:      id,
				Status:  current.Status,
				Message: fmt.Sprintf("version %s is a draft; publish or discard it instead", id),
			}
		}
		if err := m.ValidateTransition(current.Status, to); err != nil {
			return err
		}

		updates := map[string]any{
			"status":           to,
			"last_modified_by": actor,
			"last_modified_at": time.Now(),
			"lock_version":     gorm.Expr("lock_version + 1"),
		}
		if current.Status == StatusActive {
			updates["active_guard"] = nil
		}
		result := tx.Model(&EventVersionRecord{}).
			Where("id = ? AND status = ?", id, current.Status).
			Updates(updates)
		if result.Error != nil {
			return classifyStorage("apply transition", result.Error)
		}
		if result.RowsAffected == 0 {
			return &ConcurrentModificationError{ID: id}
		}

		if err := tx.Where("id = ?", id).First(&updated).Error; err != nil {
			return classifyStorage("reload version", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DiscardDraft deletes a draft before it was ever published. Guards
// against deleting published history: any non-draft status yields
// InvalidStateError and the version is left untouched.
func (m *VersionStateMachine) DiscardDraft(ctx context.Context, draftID string) error {
	return m.store.Delete(ctx, draftID)
}
