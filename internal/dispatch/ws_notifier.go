package dispatch

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/example/roadside-dispatch/internal/models"
)

// WSSession wraps a connected socket; writes are serialized per session.
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) send(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

type wsEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// WSNotifier implements Notifier over per-user WebSocket sessions:
// drivers receive offers, customers receive terminal outcome events. A
// driver with no live session is unreachable, which the sequencer
// records as skipped.
type WSNotifier struct {
	mu        sync.RWMutex
	drivers   map[string]*WSSession
	customers map[string]*WSSession
	log       *slog.Logger
}

func NewWSNotifier(log *slog.Logger) *WSNotifier {
	return &WSNotifier{
		drivers:   make(map[string]*WSSession),
		customers: make(map[string]*WSSession),
		log:       log,
	}
}

func (r *WSNotifier) AddDriver(driverID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[driverID] = &WSSession{conn: conn}
}

func (r *WSNotifier) RemoveDriver(driverID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.drivers, driverID)
}

func (r *WSNotifier) AddCustomer(customerID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.customers[customerID] = &WSSession{conn: conn}
}

func (r *WSNotifier) RemoveCustomer(customerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.customers, customerID)
}

// DriverConnected reports whether a driver currently has a session.
func (r *WSNotifier) DriverConnected(driverID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.drivers[driverID]
	return ok
}

func (r *WSNotifier) SendOffer(driverID string, offer models.OfferNotice) bool {
	r.mu.RLock()
	s, ok := r.drivers[driverID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if err := s.send(wsEvent{Event: "order:offered", Data: offer}); err != nil {
		r.log.Warn("offer send failed", "driver_id", driverID, "error", err)
		return false
	}
	return true
}

func (r *WSNotifier) NotifyAssigned(requestID, customerID, driverID string) {
	r.notifyCustomer(customerID, "order:accepted", map[string]string{"request_id": requestID, "driver_id": driverID})
}

func (r *WSNotifier) NotifyNoDrivers(requestID, customerID string) {
	r.notifyCustomer(customerID, "order:no-drivers", map[string]string{"request_id": requestID})
}

func (r *WSNotifier) NotifyDispatchFailed(requestID, customerID string) {
	r.notifyCustomer(customerID, "order:no-driver-accepted", map[string]string{"request_id": requestID})
}

func (r *WSNotifier) notifyCustomer(customerID, event string, data interface{}) {
	r.mu.RLock()
	s, ok := r.customers[customerID]
	r.mu.RUnlock()
	if !ok {
		// the customer app polls request status as well; nothing to retry here
		r.log.Info("customer not connected", "customer_id", customerID, "event", event)
		return
	}
	if err := s.send(wsEvent{Event: event, Data: data}); err != nil {
		r.log.Warn("customer notify failed", "customer_id", customerID, "event", event, "error", err)
	}
}
