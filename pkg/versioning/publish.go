package versioning

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// RuntimeNotifier is implemented by the rule-engine collaborator that must
// reload configuration after a version becomes ACTIVE. A notification
// failure never rolls back the promote; it is logged and retried
// out-of-band by the collaborator.
type RuntimeNotifier interface {
	NotifyActivated(ctx context.Context, eventNo, versionID string) error
}

// Hook runs before or after a promote. Pre-hooks may veto the publish by
// returning an error; post-hooks are best-effort.
type Hook func(ctx context.Context, record *EventVersionRecord) error

// PublishCoordinator orchestrates the promote-draft-to-active operation,
// including the demotion of the previously active version, and fans the
// outcome out to the audit log and the runtime collaborator.
type PublishCoordinator struct {
	machine   *VersionStateMachine
	audit     *AuditStore
	notifier  RuntimeNotifier
	logger    *slog.Logger
	preHooks  []Hook
	postHooks []Hook
}

// NewPublishCoordinator creates a coordinator. notifier may be nil when no
// runtime collaborator is attached.
func NewPublishCoordinator(machine *VersionStateMachine, audit *AuditStore, notifier RuntimeNotifier, logger *slog.Logger) *PublishCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &PublishCoordinator{
		machine:  machine,
		audit:    audit,
		notifier: notifier,
		logger:   logger,
	}
}

// AddPreHook registers a hook that runs before the promote transaction.
func (c *PublishCoordinator) AddPreHook(h Hook) {
	c.preHooks = append(c.preHooks, h)
}

// AddPostHook registers a hook that runs after a successful promote.
func (c *PublishCoordinator) AddPostHook(h Hook) {
	c.postHooks = append(c.postHooks, h)
}

// Publish promotes the draft to ACTIVE, archiving the event's previous
// ACTIVE version as one atomic unit.
func (c *PublishCoordinator) Publish(ctx context.Context, draftID, actor string) (*EventVersionRecord, error) {
	draft, err := c.machine.store.Get(ctx, draftID)
	if err != nil {
		return nil, err
	}

	for _, h := range c.preHooks {
		if err := h(ctx, draft); err != nil {
			return nil, err
		}
	}

	previous, err := c.machine.store.GetActive(ctx, draft.EventNo)
	if err != nil {
		return nil, err
	}

	promoted, err := c.machine.Promote(ctx, draftID, actor)
	if err != nil {
		c.appendAudit(actor, draft.EventNo, draftID, "version.publish", "failure", err.Error(), nil, nil)
		return nil, err
	}

	oldValue := JSONAny{}
	if previous != nil {
		oldValue["versionId"] = previous.ID
		oldValue["versionCode"] = previous.VersionCode
	}
	c.appendAudit(actor, promoted.EventNo, promoted.ID, "version.publish", "success", "",
		oldValue, JSONAny{"versionId": promoted.ID, "versionCode": promoted.VersionCode})

	c.afterActivate(ctx, promoted)
	return promoted, nil
}

// Rollback publishes a new ACTIVE version copied from a historical one.
func (c *PublishCoordinator) Rollback(ctx context.Context, targetID, actor string) (*EventVersionRecord, error) {
	restored, err := c.machine.Rollback(ctx, targetID, actor)
	if err != nil {
		return nil, err
	}

	c.appendAudit(actor, restored.EventNo, restored.ID, "version.rollback", "success", "",
		JSONAny{"targetVersionId": targetID},
		JSONAny{"versionId": restored.ID, "versionCode": restored.VersionCode})

	c.afterActivate(ctx, restored)
	return restored, nil
}

// Discard deletes a draft before publication.
func (c *PublishCoordinator) Discard(ctx context.Context, draftID, eventNo, actor string) error {
	if err := c.machine.DiscardDraft(ctx, draftID); err != nil {
		return err
	}
	c.appendAudit(actor, eventNo, draftID, "version.discard", "success", "", nil, nil)
	return nil
}

func (c *PublishCoordinator) afterActivate(ctx context.Context, record *EventVersionRecord) {
	for _, h := range c.postHooks {
		if err := h(ctx, record); err != nil {
			c.logger.Warn("post-publish hook failed",
				"eventNo", record.EventNo, "versionId", record.ID, "error", err)
		}
	}
	if c.notifier == nil {
		return
	}
	if err := c.notifier.NotifyActivated(ctx, record.EventNo, record.ID); err != nil {
		// The promote stands; the runtime retries its reload out-of-band.
		c.logger.Warn("runtime reload notification failed",
			"eventNo", record.EventNo, "versionId", record.ID, "error", err)
	}
}

// appendAudit writes a best-effort audit event; a failed audit write never
// fails the operation it describes.
func (c *PublishCoordinator) appendAudit(actor, eventNo, versionID, action, outcome, reason string, oldValue, newValue JSONAny) {
	if c.audit == nil {
		return
	}
	err := c.audit.Append(&AuditEventRecord{
		ID:            uuid.New().String(),
		CorrelationID: uuid.New().String(),
		EventType:     "versioning." + action,
		Actor:         actor,
		EventNo:       eventNo,
		VersionID:     versionID,
		Action:        action,
		Outcome:       outcome,
		Reason:        reason,
		OldValue:      oldValue,
		NewValue:      newValue,
	})
	if err != nil {
		c.logger.Warn("audit append failed", "action", action, "eventNo", eventNo, "error", err)
	}
}
