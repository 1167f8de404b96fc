package versioning

import "fmt"

// NotFoundError indicates a stale reference to a version that no longer
// exists (or never did). Callers should return to the timeline view.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("version %s no longer exists", e.ID)
}

// ConflictError indicates a uniqueness violation or a write against a
// frozen (non-draft) version. Safe to retry after refetching current state.
type ConflictError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ConflictError) Error() string {
	return e.Message
}

// Conflict error codes.
const (
	CodeDraftExists     = "DRAFT_EXISTS"
	CodeVersionFrozen   = "VERSION_FROZEN"
	CodeCodeAlreadyUsed = "VERSION_CODE_USED"
)

// ConcurrentModificationError indicates an optimistic-lock failure: the
// stored row advanced since this copy was loaded. The caller must refetch
// before retrying; nothing was overwritten.
type ConcurrentModificationError struct {
	ID string
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("version %s was modified by someone else since it was loaded", e.ID)
}

// InvalidStateError indicates an operation that is illegal for the
// entity's current status, including the loser of a publish/discard race.
// Never retried automatically.
type InvalidStateError struct {
	ID      string        `json:"id,omitempty"`
	Status  VersionStatus `json:"status,omitempty"`
	Message string        `json:"message"`
}

func (e *InvalidStateError) Error() string {
	return e.Message
}

// InvalidTransitionError indicates a lifecycle edge that is not defined.
type InvalidTransitionError struct {
	From    VersionStatus `json:"from"`
	To      VersionStatus `json:"to"`
	Message string        `json:"message"`
}

func (e *InvalidTransitionError) Error() string {
	return e.Message
}

// UnsavedChangesError indicates a publish attempt against a dirty draft
// session; the caller must save first.
type UnsavedChangesError struct {
	EventNo string
}

func (e *UnsavedChangesError) Error() string {
	return fmt.Sprintf("draft for event %s has unsaved changes; save before publishing", e.EventNo)
}

// StorageUnavailableError wraps a transient storage failure (timeout,
// broken connection). Distinct from the state-based errors above: reads
// may be retried, mutations only with caller confirmation.
type StorageUnavailableError struct {
	Op  string
	Err error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable during %s: %v", e.Op, e.Err)
}

func (e *StorageUnavailableError) Unwrap() error {
	return e.Err
}
