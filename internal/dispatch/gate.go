package dispatch

import (
	"log/slog"

	"github.com/example/roadside-dispatch/internal/storage"
)

// AssignmentGate is the sole write path that binds a driver to a
// request. The underlying store performs the check-and-set atomically,
// so across any interleaving of accepts and timeouts at most one commit
// per request succeeds; every other caller sees alreadyAssigned.
type AssignmentGate struct {
	store storage.RequestStore
	log   *slog.Logger
}

func NewAssignmentGate(store storage.RequestStore, log *slog.Logger) *AssignmentGate {
	return &AssignmentGate{store: store, log: log}
}

// Commit attempts the assignment. It returns true when this call won,
// false when the request already left the dispatch loop (assigned,
// cancelled or failed). Storage errors also report false: an accept we
// cannot durably record must not halt the sequence.
func (g *AssignmentGate) Commit(requestID, driverID string) (bool, error) {
	ok, err := g.store.AssignDriver(requestID, driverID)
	if err != nil {
		g.log.Error("assignment commit failed", "request_id", requestID, "driver_id", driverID, "error", err)
		return false, err
	}
	if !ok {
		g.log.Info("assignment race lost", "request_id", requestID, "driver_id", driverID)
	}
	return ok, nil
}
