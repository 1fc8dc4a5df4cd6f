package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ApprovalState is the onboarding state of a driver. Only approved
// drivers are ever offered work.
type ApprovalState string

const (
	ApprovalPending   ApprovalState = "pending"
	ApprovalApproved  ApprovalState = "approved"
	ApprovalRejected  ApprovalState = "rejected"
	ApprovalSuspended ApprovalState = "suspended"
)

type Driver struct {
	ID         string        `json:"id"`
	Loc        *Coord        `json:"loc,omitempty"` // nil until first location report
	Online     bool          `json:"online"`
	Approval   ApprovalState `json:"approval"`
	LastSeenAt time.Time     `json:"last_seen_at"`
}

// RequestStatus is the lifecycle state of a service request. The
// dispatch core only ever moves requests between searching, offered,
// accepted, cancelled and failed; trip-progress transitions happen
// elsewhere but are validated by the same table.
type RequestStatus string

const (
	StatusSearching  RequestStatus = "searching"
	StatusOffered    RequestStatus = "offered"
	StatusAccepted   RequestStatus = "accepted"
	StatusInProgress RequestStatus = "in_progress"
	StatusCompleted  RequestStatus = "completed"
	StatusCancelled  RequestStatus = "cancelled"
	StatusFailed     RequestStatus = "failed"
)

var allowedTransitions = map[RequestStatus][]RequestStatus{
	StatusSearching:  {StatusOffered, StatusAccepted, StatusCancelled, StatusFailed},
	StatusOffered:    {StatusSearching, StatusOffered, StatusAccepted, StatusCancelled, StatusFailed},
	StatusAccepted:   {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether moving a request between the two
// statuses is allowed. Terminal statuses (completed, cancelled, failed)
// admit no outgoing transitions.
func CanTransition(from, to RequestStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a status admits no further transitions.
func (s RequestStatus) Terminal() bool {
	return len(allowedTransitions[s]) == 0
}

type ServiceRequest struct {
	ID               string        `json:"id"`
	CustomerID       string        `json:"customer_id"`
	Pickup           Coord         `json:"pickup"`
	Dropoff          Coord         `json:"dropoff"`
	Status           RequestStatus `json:"status"`
	DriverID         string        `json:"driver_id,omitempty"` // empty until assigned
	DispatchAttempts int           `json:"dispatch_attempts"`
	FareEstimate     float64       `json:"fare_estimate"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// AttemptOutcome is the result of a single offer to a single driver. An
// attempt is written as pending when the offer goes out and finalized
// exactly once; skip outcomes are written already-final.
type AttemptOutcome string

const (
	OutcomePending             AttemptOutcome = "pending"
	OutcomeAccepted            AttemptOutcome = "accepted"
	OutcomeRejected            AttemptOutcome = "rejected"
	OutcomeExpired             AttemptOutcome = "expired"
	OutcomeSkippedDisconnected AttemptOutcome = "skipped_disconnected"
)

// DispatchAttempt is one audit row per offer, append-only.
type DispatchAttempt struct {
	RequestID   string         `json:"request_id"`
	DriverID    string         `json:"driver_id"`
	OfferedAt   time.Time      `json:"offered_at"`
	RespondedAt *time.Time     `json:"responded_at,omitempty"`
	Outcome     AttemptOutcome `json:"outcome"`
}

// Candidate is an eligible driver paired with its distance from the
// pickup point.
type Candidate struct {
	DriverID   string  `json:"driver_id"`
	Loc        Coord   `json:"loc"`
	DistanceKm float64 `json:"distance_km"`
}

// OfferNotice is the payload pushed to a driver when a request is
// offered to them.
type OfferNotice struct {
	RequestID        string    `json:"request_id"`
	Pickup           Coord     `json:"pickup"`
	Dropoff          Coord     `json:"dropoff"`
	FareEstimate     float64   `json:"fare_estimate"`
	DistanceToPickup float64   `json:"distance_to_pickup_km"`
	EtaMinutes       int       `json:"eta_minutes"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// DriverResponse is a driver's answer to an outstanding offer.
type DriverResponse struct {
	RequestID string `json:"request_id"`
	DriverID  string `json:"driver_id"`
	Accepted  bool   `json:"accepted"`
	Reason    string `json:"reason,omitempty"`
}
