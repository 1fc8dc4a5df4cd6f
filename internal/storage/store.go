package storage

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/example/roadside-dispatch/internal/models"
)

var (
	ErrNotFound          = errors.New("request not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// RequestStore persists service requests. AssignDriver is the only
// operation that can move a request into accepted with a driver bound,
// and it is atomic: it succeeds for at most one caller per request.
type RequestStore interface {
	CreateRequest(r *models.ServiceRequest) error
	GetRequest(id string) (*models.ServiceRequest, error)
	UpdateStatus(id string, status models.RequestStatus) error
	// AssignDriver performs the check-and-set from searching/offered with
	// no driver to accepted with the given driver. Returns false without
	// mutating anything if the request already left the dispatch loop.
	AssignDriver(id, driverID string) (bool, error)
	IncrementDispatchAttempts(id string) error
	// PendingDispatch lists requests still searching or offered with no
	// driver assigned, for re-dispatch after a restart.
	PendingDispatch() ([]*models.ServiceRequest, error)
}

// AttemptStore appends dispatch-attempt audit rows. A pending attempt
// is finalized at most once; rows are never updated after that.
type AttemptStore interface {
	RecordAttempt(a models.DispatchAttempt) error
	ResolveAttempt(requestID, driverID string, outcome models.AttemptOutcome, respondedAt time.Time) error
	AttemptsForRequest(requestID string) ([]models.DispatchAttempt, error)
}

type Store interface {
	RequestStore
	AttemptStore
}

// MemoryStore is the in-process Store used when Postgres is not
// configured, and by tests.
type MemoryStore struct {
	mu       sync.RWMutex
	requests map[string]*models.ServiceRequest
	attempts map[string][]models.DispatchAttempt
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests: make(map[string]*models.ServiceRequest),
		attempts: make(map[string][]models.DispatchAttempt),
	}
}

func (m *MemoryStore) CreateRequest(r *models.ServiceRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.requests[r.ID] = &cp
	return nil
}

func (m *MemoryStore) GetRequest(id string) (*models.ServiceRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) UpdateStatus(id string, status models.RequestStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return ErrNotFound
	}
	if !models.CanTransition(r.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, status)
	}
	r.Status = status
	r.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) AssignDriver(id, driverID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return false, ErrNotFound
	}
	if r.DriverID != "" || (r.Status != models.StatusSearching && r.Status != models.StatusOffered) {
		return false, nil
	}
	r.Status = models.StatusAccepted
	r.DriverID = driverID
	r.UpdatedAt = time.Now()
	return true, nil
}

func (m *MemoryStore) IncrementDispatchAttempts(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return ErrNotFound
	}
	r.DispatchAttempts++
	r.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) PendingDispatch() ([]*models.ServiceRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.ServiceRequest
	for _, r := range m.requests {
		if r.DriverID == "" && (r.Status == models.StatusSearching || r.Status == models.StatusOffered) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) RecordAttempt(a models.DispatchAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[a.RequestID] = append(m.attempts[a.RequestID], a)
	return nil
}

func (m *MemoryStore) ResolveAttempt(requestID, driverID string, outcome models.AttemptOutcome, respondedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.attempts[requestID]
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].DriverID == driverID && rows[i].Outcome == models.OutcomePending {
			rows[i].Outcome = outcome
			ts := respondedAt
			rows[i].RespondedAt = &ts
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryStore) AttemptsForRequest(requestID string) ([]models.DispatchAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.attempts[requestID]
	out := make([]models.DispatchAttempt, len(rows))
	copy(out, rows)
	return out, nil
}
