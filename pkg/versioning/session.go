package versioning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// SessionManager hands out draft edit sessions, at most one per event.
// A second Open for the same event returns the same shared session, never
// a second independent draft; the storage-level draft_guard index backs
// the same rule across processes.
//
// The manager mutex guards only the maps. Storage calls during Open run
// under a per-event lock, so a slow open for one event never stalls edits
// on any other event.
type SessionManager struct {
	mu          sync.Mutex
	store       *VersionStore
	coordinator *PublishCoordinator
	byEvent     map[string]*DraftEditSession
	byDraft     map[string]*DraftEditSession
	openLocks   map[string]*sync.Mutex
}

// NewSessionManager creates a session manager.
func NewSessionManager(store *VersionStore, coordinator *PublishCoordinator) *SessionManager {
	return &SessionManager{
		store:       store,
		coordinator: coordinator,
		byEvent:     make(map[string]*DraftEditSession),
		byDraft:     make(map[string]*DraftEditSession),
		openLocks:   make(map[string]*sync.Mutex),
	}
}

// eventLock returns the open lock for one event, creating it on first use.
func (m *SessionManager) eventLock(eventNo string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.openLocks[eventNo]
	if !ok {
		lock = &sync.Mutex{}
		m.openLocks[eventNo] = lock
	}
	return lock
}

func (m *SessionManager) lookupEvent(eventNo string) *DraftEditSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byEvent[eventNo]
}

// Open returns the edit session for the event's draft, creating the draft
// if none exists. A fresh draft is seeded from the current ACTIVE payload,
// or an empty payload if the event has never been published. The loser of
// a concurrent create race re-fetches the winner's draft. Opens for
// different events proceed in parallel; only same-event opens serialize.
func (m *SessionManager) Open(ctx context.Context, eventNo, actor string) (*DraftEditSession, error) {
	lock := m.eventLock(eventNo)
	lock.Lock()
	defer lock.Unlock()

	if session := m.lookupEvent(eventNo); session != nil {
		return session, nil
	}

	draft, err := m.store.GetDraft(ctx, eventNo)
	if err != nil {
		return nil, err
	}
	if draft == nil {
		seed := ConfigPayload{}
		active, err := m.store.GetActive(ctx, eventNo)
		if err != nil {
			return nil, err
		}
		if active != nil {
			seed = active.Payload.Clone()
		}

		draft, err = m.store.Create(ctx, eventNo, "", seed, actor)
		if err != nil {
			var conflict *ConflictError
			if !errors.As(err, &conflict) {
				return nil, err
			}
			// Someone else created the draft between our check and create.
			draft, err = m.store.GetDraft(ctx, eventNo)
			if err != nil {
				return nil, err
			}
			if draft == nil {
				return nil, conflict
			}
		}
	}

	session := &DraftEditSession{
		manager: m,
		eventNo: eventNo,
		record:  draft,
		payload: draft.Payload.Clone(),
	}
	m.mu.Lock()
	m.byEvent[eventNo] = session
	m.byDraft[draft.ID] = session
	m.mu.Unlock()
	return session, nil
}

// Lookup returns the open session owning the given draft id, or nil.
func (m *SessionManager) Lookup(draftID string) *DraftEditSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byDraft[draftID]
}

// OpenByDraftID resolves a draft id to its edit session, re-materializing
// the session from storage when none is open (e.g. after a restart).
// Returns NotFoundError for unknown ids and InvalidStateError when the
// version is no longer a draft.
func (m *SessionManager) OpenByDraftID(ctx context.Context, draftID, actor string) (*DraftEditSession, error) {
	if session := m.Lookup(draftID); session != nil {
		return session, nil
	}

	record, err := m.store.Get(ctx, draftID)
	if err != nil {
		return nil, err
	}
	if record.Status != StatusDraft {
		return nil, &InvalidStateError{
			ID:      draftID,
			Status:  record.Status,
			Message: fmt.Sprintf("version %s is %s and is not editable", draftID, record.Status),
		}
	}
	session, err := m.Open(ctx, record.EventNo, actor)
	if err != nil {
		return nil, err
	}
	if session.DraftID() != draftID {
		// The referenced draft vanished between Get and Open.
		return nil, &NotFoundError{ID: draftID}
	}
	return session, nil
}

func (m *SessionManager) close(session *DraftEditSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byEvent, session.eventNo)
	delete(m.byDraft, session.record.ID)
}

// DraftEditSession gives editors a consistent single-writer view of one
// event's in-progress configuration. All methods are safe for concurrent
// use; operations within a session are serialized.
type DraftEditSession struct {
	mu      sync.Mutex
	manager *SessionManager
	eventNo string
	record  *EventVersionRecord
	payload ConfigPayload
	dirty   bool
	closed  bool
}

// EventNo returns the event this session edits.
func (s *DraftEditSession) EventNo() string { return s.eventNo }

// DraftID returns the id of the underlying draft version.
func (s *DraftEditSession) DraftID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.ID
}

// HasUnsavedChanges reports whether edits have been applied since the last save.
func (s *DraftEditSession) HasUnsavedChanges() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Snapshot returns the current API view of the draft.
func (s *DraftEditSession) Snapshot() DraftResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return DraftResponse{
		ID:                s.record.ID,
		EventNo:           s.eventNo,
		VersionCode:       s.record.VersionCode,
		Status:            s.record.Status,
		Payload:           s.payload.Clone(),
		HasUnsavedChanges: s.dirty,
		LastModifiedBy:    s.record.LastModifiedBy,
		LastModifiedAt:    s.record.LastModifiedAt.Format(timeFormat),
	}
}

// Apply merges an edit into the draft payload. Each patch is a complete
// replacement of the section it targets, applied in the order received; no
// reordering or coalescing. Nothing is persisted until SaveDraft.
func (s *DraftEditSession) Apply(section PayloadSection, blob json.RawMessage) error {
	if !section.Valid() {
		return fmt.Errorf("unknown payload section %q", section)
	}
	if !json.Valid(blob) {
		return fmt.Errorf("section %s payload is not valid JSON", section)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &InvalidStateError{
			ID:      s.record.ID,
			Message: fmt.Sprintf("draft for event %s was already published or discarded", s.eventNo),
		}
	}
	cp := make(json.RawMessage, len(blob))
	copy(cp, blob)
	s.payload[section] = cp
	s.dirty = true
	return nil
}

// SaveDraft persists the in-memory payload. Idempotent: saving with no
// pending changes is a no-op that still succeeds and leaves the stored
// modification stamp untouched.
func (s *DraftEditSession) SaveDraft(ctx context.Context, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &InvalidStateError{
			ID:      s.record.ID,
			Message: fmt.Sprintf("draft for event %s was already published or discarded", s.eventNo),
		}
	}
	if !s.dirty {
		return nil
	}

	s.record.Payload = s.payload.Clone()
	s.record.LastModifiedBy = actor
	if err := s.manager.store.Save(ctx, s.record); err != nil {
		var concurrent *ConcurrentModificationError
		if errors.As(err, &concurrent) {
			// Adopt the advanced row so a retry can succeed; the pending
			// edits stay staged in s.payload.
			if current, refetchErr := s.manager.store.Get(ctx, s.record.ID); refetchErr == nil {
				s.record = current
			}
		}
		return err
	}
	s.dirty = false
	return nil
}

// Publish promotes the draft to ACTIVE. Requires a clean session: the
// caller must save first, otherwise UnsavedChangesError is returned and
// nothing happens. On success the session is closed.
func (s *DraftEditSession) Publish(ctx context.Context, actor string) (*EventVersionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, &InvalidStateError{
			ID:      s.record.ID,
			Message: fmt.Sprintf("draft for event %s was already published or discarded", s.eventNo),
		}
	}
	if s.dirty {
		return nil, &UnsavedChangesError{EventNo: s.eventNo}
	}

	promoted, err := s.manager.coordinator.Publish(ctx, s.record.ID, actor)
	if err != nil {
		var stale *InvalidStateError
		if errors.As(err, &stale) {
			// The draft is gone underneath us; drop the session so the
			// next Open re-fetches.
			s.closed = true
			s.manager.close(s)
		}
		return nil, err
	}

	s.closed = true
	s.manager.close(s)
	return promoted, nil
}

// Discard deletes the draft without publishing and closes the session.
// The stored row must still be a draft; published history is untouchable.
func (s *DraftEditSession) Discard(ctx context.Context, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &InvalidStateError{
			ID:      s.record.ID,
			Message: fmt.Sprintf("draft for event %s was already published or discarded", s.eventNo),
		}
	}

	if err := s.manager.coordinator.Discard(ctx, s.record.ID, s.eventNo, actor); err != nil {
		var stale *InvalidStateError
		if errors.As(err, &stale) {
			s.closed = true
			s.manager.close(s)
		}
		return err
	}

	s.closed = true
	s.manager.close(s)
	return nil
}

// Abandon drops the in-memory session without persisting pending edits.
// The previously saved draft row is unaffected.
func (s *DraftEditSession) Abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.manager.close(s)
}
