package dispatch

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/example/roadside-dispatch/internal/models"
	"github.com/example/roadside-dispatch/internal/observability"
	"github.com/example/roadside-dispatch/internal/rank"
	"github.com/example/roadside-dispatch/internal/registry"
	"github.com/example/roadside-dispatch/internal/storage"
)

// Outcome is the terminal result of one dispatch run.
type Outcome string

const (
	OutcomeAssigned  Outcome = "accepted"
	OutcomeNoDrivers Outcome = "no-drivers"
	OutcomeExhausted Outcome = "exhausted"
	OutcomeCancelled Outcome = "cancelled"
	// OutcomeAborted means the process is shutting down mid-dispatch; the
	// request stays non-terminal and is picked up by recovery on restart.
	OutcomeAborted Outcome = "aborted"
)

type response struct {
	driverID string
	accepted bool
	reason   string
}

type offerResult int

const (
	offerAccepted offerResult = iota
	offerRejected
	offerExpired
	offerCancelled
	offerAborted
)

// Sequencer runs the offer state machine for a single request. All of
// its state is owned by the one goroutine executing Run; driver
// responses and cancellation reach it only through channels, so events
// are processed strictly one at a time and the first event to resolve
// an outstanding offer wins by construction.
type Sequencer struct {
	req      *models.ServiceRequest
	registry registry.Registry
	ranker   *rank.Ranker
	store    storage.Store
	gate     *AssignmentGate
	notifier Notifier
	log      *slog.Logger

	offerTimeout time.Duration
	radiusKm     float64
	maxAttempts  int

	responses  chan response
	cancelCh   chan struct{}
	cancelOnce sync.Once
	done       chan struct{}
}

type SequencerConfig struct {
	OfferTimeout time.Duration
	RadiusKm     float64
	MaxAttempts  int // 0 = no cap
}

func NewSequencer(req *models.ServiceRequest, reg registry.Registry, ranker *rank.Ranker, store storage.Store, gate *AssignmentGate, notifier Notifier, log *slog.Logger, cfg SequencerConfig) *Sequencer {
	if cfg.OfferTimeout <= 0 {
		cfg.OfferTimeout = 20 * time.Second
	}
	if cfg.RadiusKm <= 0 {
		cfg.RadiusKm = registry.DefaultRadiusKm
	}
	return &Sequencer{
		req:          req,
		registry:     reg,
		ranker:       ranker,
		store:        store,
		gate:         gate,
		notifier:     notifier,
		log:          log.With("request_id", req.ID),
		offerTimeout: cfg.OfferTimeout,
		radiusKm:     cfg.RadiusKm,
		maxAttempts:  cfg.MaxAttempts,
		responses:    make(chan response, 16),
		cancelCh:     make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Respond feeds a driver's answer into the sequence. It never blocks
// the caller: it reports false when the dispatch already finished or
// the event queue is saturated, in which case the response is dropped
// as stale.
func (s *Sequencer) Respond(driverID string, accepted bool, reason string) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.responses <- response{driverID: driverID, accepted: accepted, reason: reason}:
		return true
	case <-s.done:
		return false
	default:
		return false
	}
}

// Cancel withdraws the request. Safe to call any number of times, from
// any goroutine; once the run loop observes it no further offers go out.
func (s *Sequencer) Cancel() {
	s.cancelOnce.Do(func() { close(s.cancelCh) })
}

// Done is closed once the run loop has reached a terminal outcome.
func (s *Sequencer) Done() <-chan struct{} { return s.done }

// Run executes the dispatch sequence to a terminal outcome. It must be
// called exactly once.
func (s *Sequencer) Run(ctx context.Context) Outcome {
	defer close(s.done)

	if s.cancelled() {
		return s.finishCancelled()
	}

	candidates := s.registry.FindEligible(s.req.Pickup, s.radiusKm)
	if len(candidates) == 0 {
		s.log.Warn("no eligible drivers", "radius_km", s.radiusKm)
		s.setStatus(models.StatusFailed)
		s.notifier.NotifyNoDrivers(s.req.ID, s.req.CustomerID)
		return OutcomeNoDrivers
	}
	ranked := s.ranker.Rank(s.req.Pickup, candidates)
	s.log.Info("dispatch started", "candidates", len(ranked))

	attempts := 0
	for cursor := 0; cursor < len(ranked); cursor++ {
		if s.cancelled() {
			return s.finishCancelled()
		}
		if s.maxAttempts > 0 && attempts >= s.maxAttempts {
			s.log.Warn("max dispatch attempts reached", "attempts", attempts)
			break
		}

		cand := ranked[cursor]
		// eligibility may have changed since ranking
		if !s.registry.Eligible(cand.DriverID) {
			s.recordSkip(cand.DriverID)
			continue
		}

		expiresAt := time.Now().Add(s.offerTimeout)
		notice := models.OfferNotice{
			RequestID:        s.req.ID,
			Pickup:           s.req.Pickup,
			Dropoff:          s.req.Dropoff,
			FareEstimate:     s.req.FareEstimate,
			DistanceToPickup: cand.DistanceKm,
			EtaMinutes:       int(math.Round(cand.DistanceKm * 2)), // rough: 2 min per km
			ExpiresAt:        expiresAt,
		}
		if !s.notifier.SendOffer(cand.DriverID, notice) {
			s.log.Info("driver unreachable, skipping", "driver_id", cand.DriverID)
			s.recordSkip(cand.DriverID)
			continue
		}

		attempts++
		observability.OffersTotal.Inc()
		s.recordPending(cand.DriverID)
		if err := s.store.IncrementDispatchAttempts(s.req.ID); err != nil {
			s.log.Error("attempt counter update failed", "error", err)
		}
		s.setStatus(models.StatusOffered)
		s.log.Info("offer sent", "driver_id", cand.DriverID, "distance_km", cand.DistanceKm, "attempt", attempts, "expires_at", expiresAt)

		timer := time.NewTimer(s.offerTimeout)
		res := s.awaitOutcome(ctx, cand.DriverID, timer.C)
		timer.Stop()

		switch res {
		case offerAccepted:
			s.resolve(cand.DriverID, models.OutcomeAccepted)
			observability.OfferOutcomes.WithLabelValues("accepted").Inc()
			s.notifier.NotifyAssigned(s.req.ID, s.req.CustomerID, cand.DriverID)
			s.log.Info("driver accepted", "driver_id", cand.DriverID)
			return OutcomeAssigned
		case offerRejected:
			s.resolve(cand.DriverID, models.OutcomeRejected)
			observability.OfferOutcomes.WithLabelValues("rejected").Inc()
			s.log.Info("driver rejected", "driver_id", cand.DriverID)
		case offerExpired:
			s.resolve(cand.DriverID, models.OutcomeExpired)
			observability.OfferOutcomes.WithLabelValues("expired").Inc()
			s.log.Info("offer expired", "driver_id", cand.DriverID)
		case offerCancelled:
			return s.finishCancelled()
		case offerAborted:
			s.log.Warn("dispatch aborted mid-offer")
			return OutcomeAborted
		}
	}

	s.log.Warn("all candidates exhausted")
	s.setStatus(models.StatusFailed)
	s.notifier.NotifyDispatchFailed(s.req.ID, s.req.CustomerID)
	return OutcomeExhausted
}

// awaitOutcome blocks until the outstanding offer is resolved by the
// first of: a response from the offered driver, the deadline, or
// cancellation. Responses from any other driver are stale by
// definition while this offer is live and are logged and dropped.
func (s *Sequencer) awaitOutcome(ctx context.Context, driverID string, deadline <-chan time.Time) offerResult {
	for {
		select {
		case <-s.cancelCh:
			return offerCancelled
		case ev := <-s.responses:
			if ev.driverID != driverID {
				observability.StaleResponsesTotal.Inc()
				s.log.Warn("ignoring stale driver response", "driver_id", ev.driverID, "current_driver_id", driverID, "accepted", ev.accepted)
				continue
			}
			if !ev.accepted {
				return offerRejected
			}
			won, err := s.gate.Commit(s.req.ID, ev.driverID)
			if err != nil || !won {
				// a lost race is a no-op rejection of this accept; the
				// offer is not reissued
				return offerRejected
			}
			return offerAccepted
		case <-deadline:
			return offerExpired
		case <-ctx.Done():
			return offerAborted
		}
	}
}

func (s *Sequencer) cancelled() bool {
	select {
	case <-s.cancelCh:
		return true
	default:
		return false
	}
}

func (s *Sequencer) finishCancelled() Outcome {
	s.setStatus(models.StatusCancelled)
	s.log.Info("dispatch cancelled")
	return OutcomeCancelled
}

func (s *Sequencer) setStatus(status models.RequestStatus) {
	if err := s.store.UpdateStatus(s.req.ID, status); err != nil {
		s.log.Error("status update failed", "status", status, "error", err)
	}
}

func (s *Sequencer) recordPending(driverID string) {
	err := s.store.RecordAttempt(models.DispatchAttempt{
		RequestID: s.req.ID,
		DriverID:  driverID,
		OfferedAt: time.Now(),
		Outcome:   models.OutcomePending,
	})
	if err != nil {
		s.log.Error("attempt record failed", "driver_id", driverID, "error", err)
	}
}

func (s *Sequencer) recordSkip(driverID string) {
	now := time.Now()
	err := s.store.RecordAttempt(models.DispatchAttempt{
		RequestID:   s.req.ID,
		DriverID:    driverID,
		OfferedAt:   now,
		RespondedAt: &now,
		Outcome:     models.OutcomeSkippedDisconnected,
	})
	if err != nil {
		s.log.Error("attempt record failed", "driver_id", driverID, "error", err)
	}
	observability.OfferOutcomes.WithLabelValues("skipped").Inc()
}

func (s *Sequencer) resolve(driverID string, outcome models.AttemptOutcome) {
	if err := s.store.ResolveAttempt(s.req.ID, driverID, outcome, time.Now()); err != nil {
		s.log.Error("attempt resolve failed", "driver_id", driverID, "outcome", outcome, "error", err)
	}
}
