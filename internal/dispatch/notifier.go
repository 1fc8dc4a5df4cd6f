package dispatch

import (
	"errors"

	"github.com/example/roadside-dispatch/internal/models"
)

var (
	ErrUnknownRequest     = errors.New("no dispatch in flight for request")
	ErrAlreadyDispatching = errors.New("dispatch already in flight for request")
)

// Notifier is the outbound transport collaborator. SendOffer reports
// whether the driver was reachable; an unreachable driver is skipped by
// the sequencer rather than burning a response window. Delivery
// failures on the customer-facing notifications are the transport's
// problem to retry and never roll back dispatch state.
type Notifier interface {
	SendOffer(driverID string, offer models.OfferNotice) bool
	NotifyAssigned(requestID, customerID, driverID string)
	NotifyNoDrivers(requestID, customerID string)
	NotifyDispatchFailed(requestID, customerID string)
}

// NopNotifier discards everything; useful for tooling and tests that
// only exercise persistence.
type NopNotifier struct{}

func (NopNotifier) SendOffer(string, models.OfferNotice) bool { return true }
func (NopNotifier) NotifyAssigned(string, string, string)     {}
func (NopNotifier) NotifyNoDrivers(string, string)            {}
func (NopNotifier) NotifyDispatchFailed(string, string)       {}

// FallbackNotifier tries the primary transport first and falls back to
// the secondary when the primary cannot reach the driver. Customer
// events go to both: a customer may be connected over either channel.
type FallbackNotifier struct {
	Primary   Notifier
	Secondary Notifier
}

func (f FallbackNotifier) SendOffer(driverID string, offer models.OfferNotice) bool {
	if f.Primary.SendOffer(driverID, offer) {
		return true
	}
	return f.Secondary.SendOffer(driverID, offer)
}

func (f FallbackNotifier) NotifyAssigned(requestID, customerID, driverID string) {
	f.Primary.NotifyAssigned(requestID, customerID, driverID)
	f.Secondary.NotifyAssigned(requestID, customerID, driverID)
}

func (f FallbackNotifier) NotifyNoDrivers(requestID, customerID string) {
	f.Primary.NotifyNoDrivers(requestID, customerID)
	f.Secondary.NotifyNoDrivers(requestID, customerID)
}

func (f FallbackNotifier) NotifyDispatchFailed(requestID, customerID string) {
	f.Primary.NotifyDispatchFailed(requestID, customerID)
	f.Secondary.NotifyDispatchFailed(requestID, customerID)
}
