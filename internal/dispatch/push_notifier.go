package dispatch

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/example/roadside-dispatch/internal/models"
)

// PushNotifier posts offers and customer events to an external push
// gateway (FCM-style HTTPv1 endpoint) for deployments where drivers are
// not connected over WebSocket. A non-2xx response or transport error
// means the driver is unreachable.
type PushNotifier struct {
	Endpoint string
	Key      string
	Client   *http.Client
}

func NewPushNotifier(endpoint, key string) *PushNotifier {
	return &PushNotifier{Endpoint: endpoint, Key: key, Client: &http.Client{Timeout: 3 * time.Second}}
}

func (p *PushNotifier) post(to string, payload interface{}) bool {
	body := map[string]interface{}{"message": map[string]interface{}{"token": to, "data": payload}}
	b, _ := json.Marshal(body)
	req, err := http.NewRequest(http.MethodPost, p.Endpoint, bytes.NewReader(b))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	if p.Key != "" {
		req.Header.Set("Authorization", "Bearer "+p.Key)
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (p *PushNotifier) SendOffer(driverID string, offer models.OfferNotice) bool {
	return p.post(driverID, map[string]interface{}{"event": "order:offered", "offer": offer})
}

func (p *PushNotifier) NotifyAssigned(requestID, customerID, driverID string) {
	_ = p.post(customerID, map[string]interface{}{"event": "order:accepted", "request_id": requestID, "driver_id": driverID})
}

func (p *PushNotifier) NotifyNoDrivers(requestID, customerID string) {
	_ = p.post(customerID, map[string]interface{}{"event": "order:no-drivers", "request_id": requestID})
}

func (p *PushNotifier) NotifyDispatchFailed(requestID, customerID string) {
	_ = p.post(customerID, map[string]interface{}{"event": "order:no-driver-accepted", "request_id": requestID})
}
