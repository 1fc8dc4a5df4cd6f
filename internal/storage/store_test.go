package storage

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/roadside-dispatch/internal/models"
)

func newRequest(id string) *models.ServiceRequest {
	now := time.Now()
	return &models.ServiceRequest{
		ID:         id,
		CustomerID: "c1",
		Pickup:     models.Coord{Lat: 23.61, Lon: 58.40},
		Status:     models.StatusSearching,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestAssignDriverWinsOnce(t *testing.T) {
	s := NewMemoryStore()
	if err := s.CreateRequest(newRequest("r1")); err != nil {
		t.Fatal(err)
	}

	const n = 16
	var wg sync.WaitGroup
	wins := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := s.AssignDriver("r1", string(rune('a'+i)))
			if err != nil {
				t.Errorf("assign: %v", err)
				return
			}
			if ok {
				wins <- string(rune('a' + i))
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	var winners []string
	for w := range wins {
		winners = append(winners, w)
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly one winner, got %d", len(winners))
	}
	r, _ := s.GetRequest("r1")
	if r.Status != models.StatusAccepted || r.DriverID != winners[0] {
		t.Fatalf("expected accepted with %s, got %s/%s", winners[0], r.Status, r.DriverID)
	}
}

func TestAssignDriverRejectsTerminal(t *testing.T) {
	s := NewMemoryStore()
	_ = s.CreateRequest(newRequest("r1"))
	if err := s.UpdateStatus("r1", models.StatusCancelled); err != nil {
		t.Fatal(err)
	}
	ok, err := s.AssignDriver("r1", "d1")
	if err != nil || ok {
		t.Fatalf("expected no-op on cancelled request, got ok=%v err=%v", ok, err)
	}
}

func TestUpdateStatusValidatesTransition(t *testing.T) {
	s := NewMemoryStore()
	_ = s.CreateRequest(newRequest("r1"))
	if _, err := s.AssignDriver("r1", "d1"); err != nil {
		t.Fatal(err)
	}
	err := s.UpdateStatus("r1", models.StatusOffered)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestResolveAttemptFinalizesOnce(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now()
	_ = s.RecordAttempt(models.DispatchAttempt{RequestID: "r1", DriverID: "d1", OfferedAt: now, Outcome: models.OutcomePending})

	if err := s.ResolveAttempt("r1", "d1", models.OutcomeRejected, now); err != nil {
		t.Fatal(err)
	}
	// second resolve finds no pending row
	if err := s.ResolveAttempt("r1", "d1", models.OutcomeAccepted, now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double resolve, got %v", err)
	}
	rows, _ := s.AttemptsForRequest("r1")
	if len(rows) != 1 || rows[0].Outcome != models.OutcomeRejected || rows[0].RespondedAt == nil {
		t.Fatalf("unexpected attempt rows: %+v", rows)
	}
}

func TestPendingDispatch(t *testing.T) {
	s := NewMemoryStore()
	_ = s.CreateRequest(newRequest("searching"))
	offered := newRequest("offered")
	_ = s.CreateRequest(offered)
	_ = s.UpdateStatus("offered", models.StatusOffered)
	assigned := newRequest("assigned")
	_ = s.CreateRequest(assigned)
	_, _ = s.AssignDriver("assigned", "d1")

	pending, err := s.PendingDispatch()
	if err != nil {
		t.Fatal(err)
	}
	ids := map[string]bool{}
	for _, r := range pending {
		ids[r.ID] = true
	}
	if len(ids) != 2 || !ids["searching"] || !ids["offered"] {
		t.Fatalf("unexpected pending set: %v", ids)
	}
}
