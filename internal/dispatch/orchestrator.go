package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/roadside-dispatch/internal/models"
	"github.com/example/roadside-dispatch/internal/observability"
	"github.com/example/roadside-dispatch/internal/rank"
	"github.com/example/roadside-dispatch/internal/registry"
	"github.com/example/roadside-dispatch/internal/storage"
)

// Orchestrator owns one Sequencer per in-flight request and routes
// inbound driver responses and cancellations to it. Once a request
// reaches a terminal outcome its sequencer is pruned, so late events
// for it resolve to ErrUnknownRequest instead of leaking goroutines or
// timers.
type Orchestrator struct {
	registry registry.Registry
	ranker   *rank.Ranker
	store    storage.Store
	gate     *AssignmentGate
	notifier Notifier
	log      *slog.Logger
	cfg      SequencerConfig

	mu      sync.Mutex
	running map[string]*Sequencer
	wg      sync.WaitGroup
}

func NewOrchestrator(reg registry.Registry, ranker *rank.Ranker, store storage.Store, notifier Notifier, log *slog.Logger, cfg SequencerConfig) *Orchestrator {
	return &Orchestrator{
		registry: reg,
		ranker:   ranker,
		store:    store,
		gate:     NewAssignmentGate(store, log),
		notifier: notifier,
		log:      log,
		cfg:      cfg,
		running:  make(map[string]*Sequencer),
	}
}

// Dispatch starts the offer sequence for a request stored as searching
// (or offered with no driver, when re-dispatching after a restart).
// The sequence runs on its own goroutine; Dispatch returns immediately.
func (o *Orchestrator) Dispatch(ctx context.Context, requestID string) error {
	req, err := o.store.GetRequest(requestID)
	if err != nil {
		return fmt.Errorf("dispatch %s: %w", requestID, err)
	}
	if req.DriverID != "" || (req.Status != models.StatusSearching && req.Status != models.StatusOffered) {
		return fmt.Errorf("dispatch %s: status %s not dispatchable", requestID, req.Status)
	}

	o.mu.Lock()
	if _, exists := o.running[requestID]; exists {
		o.mu.Unlock()
		return fmt.Errorf("dispatch %s: %w", requestID, ErrAlreadyDispatching)
	}
	seq := NewSequencer(req, o.registry, o.ranker, o.store, o.gate, o.notifier, o.log, o.cfg)
	o.running[requestID] = seq
	o.mu.Unlock()

	observability.InFlightDispatches.Inc()
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		start := time.Now()
		outcome := seq.Run(ctx)

		o.mu.Lock()
		delete(o.running, requestID)
		o.mu.Unlock()

		observability.InFlightDispatches.Dec()
		observability.DispatchOutcomes.WithLabelValues(string(outcome)).Inc()
		observability.DispatchDuration.Observe(time.Since(start).Seconds())
		o.log.Info("dispatch finished", "request_id", requestID, "outcome", outcome, "duration", time.Since(start))
	}()
	return nil
}

// HandleDriverResponse routes a driver's accept/reject to the matching
// sequence. Responses for unknown or finished requests are logged and
// ignored: they are stale by definition.
func (o *Orchestrator) HandleDriverResponse(requestID, driverID string, accepted bool, reason string) error {
	o.mu.Lock()
	seq := o.running[requestID]
	o.mu.Unlock()
	if seq == nil {
		observability.StaleResponsesTotal.Inc()
		o.log.Warn("response for request not in flight", "request_id", requestID, "driver_id", driverID, "accepted", accepted)
		return ErrUnknownRequest
	}
	if !seq.Respond(driverID, accepted, reason) {
		observability.StaleResponsesTotal.Inc()
		o.log.Warn("response arrived after dispatch finished", "request_id", requestID, "driver_id", driverID)
	}
	return nil
}

// Cancel withdraws a request. Idempotent: cancelling a request with no
// dispatch in flight (already terminal, or never dispatched) is a no-op
// beyond a best-effort status update.
func (o *Orchestrator) Cancel(requestID string) {
	o.mu.Lock()
	seq := o.running[requestID]
	o.mu.Unlock()
	if seq != nil {
		seq.Cancel()
		return
	}
	req, err := o.store.GetRequest(requestID)
	if err != nil {
		o.log.Warn("cancel for unknown request", "request_id", requestID, "error", err)
		return
	}
	if req.Status.Terminal() {
		return
	}
	if err := o.store.UpdateStatus(requestID, models.StatusCancelled); err != nil {
		o.log.Warn("cancel status update failed", "request_id", requestID, "error", err)
	}
}

// Recover re-dispatches requests that were mid-dispatch when the
// process last stopped. Offer/timer state is ephemeral by design, so
// recovery simply restarts each sequence from scratch.
func (o *Orchestrator) Recover(ctx context.Context) error {
	pending, err := o.store.PendingDispatch()
	if err != nil {
		return fmt.Errorf("recover: %w", err)
	}
	for _, req := range pending {
		o.log.Info("re-dispatching after restart", "request_id", req.ID, "status", req.Status)
		if err := o.Dispatch(ctx, req.ID); err != nil {
			o.log.Error("re-dispatch failed", "request_id", req.ID, "error", err)
		}
	}
	return nil
}

// Stats is a point-in-time snapshot for the internal stats endpoint.
type Stats struct {
	InFlight     int           `json:"in_flight"`
	OfferTimeout time.Duration `json:"offer_timeout"`
	MaxAttempts  int           `json:"max_attempts"`
	RadiusKm     float64       `json:"radius_km"`
}

func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	n := len(o.running)
	o.mu.Unlock()
	return Stats{InFlight: n, OfferTimeout: o.cfg.OfferTimeout, MaxAttempts: o.cfg.MaxAttempts, RadiusKm: o.cfg.RadiusKm}
}

// Wait blocks until all in-flight sequences have finished; used during
// graceful shutdown after the context handed to Dispatch is cancelled.
func (o *Orchestrator) Wait() { o.wg.Wait() }
