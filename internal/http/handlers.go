package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/roadside-dispatch/internal/dispatch"
	"github.com/example/roadside-dispatch/internal/geo"
	"github.com/example/roadside-dispatch/internal/ingest"
	"github.com/example/roadside-dispatch/internal/models"
	"github.com/example/roadside-dispatch/internal/observability"
	"github.com/example/roadside-dispatch/internal/pricing"
	"github.com/example/roadside-dispatch/internal/rank"
	"github.com/example/roadside-dispatch/internal/registry"
	"github.com/example/roadside-dispatch/internal/storage"
)

// Server wires the HTTP/WS surface onto the dispatch core. Transport is
// deliberately thin: every state transition happens inside the
// orchestrator and its collaborators.
type Server struct {
	Registry registry.Registry
	Orch     *dispatch.Orchestrator
	Store    storage.Store
	Kafka    *ingest.KafkaProducer // optional
	WS       *dispatch.WSNotifier
	Routes   rank.RouteClient // optional, for fare distance

	logger  *slog.Logger
	mux     *mux.Router
	baseCtx context.Context
}

// NewServer builds the router. ctx is the process lifetime: dispatch
// sequences started by handlers are bound to it, not to the inbound
// request, so they survive the 202 response but stop on shutdown.
func NewServer(ctx context.Context, reg registry.Registry, orch *dispatch.Orchestrator, store storage.Store, kafka *ingest.KafkaProducer, ws *dispatch.WSNotifier, routes rank.RouteClient, logger *slog.Logger) *Server {
	if ctx == nil {
		ctx = context.Background()
	}
	s := &Server{
		Registry: reg,
		Orch:     orch,
		Store:    store,
		Kafka:    kafka,
		WS:       ws,
		Routes:   routes,
		logger:   logger,
		mux:      mux.NewRouter(),
		baseCtx:  ctx,
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/requests", s.handleCreateRequest).Methods("POST")
	s.mux.HandleFunc("/api/v1/requests/{request_id}", s.handleGetRequest).Methods("GET")
	s.mux.HandleFunc("/api/v1/requests/{request_id}/cancel", s.handleCancelRequest).Methods("POST")
	s.mux.HandleFunc("/api/v1/requests/{request_id}/response", s.handleDriverResponse).Methods("POST")
	s.mux.HandleFunc("/internal/driver/locations", s.handleDriverLocation).Methods("POST")
	s.mux.HandleFunc("/internal/driver/status", s.handleDriverStatus).Methods("POST")
	s.mux.HandleFunc("/internal/dispatch/stats", s.handleStats).Methods("GET")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/driver/{driver_id}", s.handleDriverWS)
	s.mux.HandleFunc("/ws/customer/{customer_id}", s.handleCustomerWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

type createRequestPayload struct {
	CustomerID string       `json:"customer_id"`
	Pickup     models.Coord `json:"pickup"`
	Dropoff    models.Coord `json:"dropoff"`
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var p createRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if p.CustomerID == "" {
		http.Error(w, "customer_id required", http.StatusBadRequest)
		return
	}

	fare := pricing.Estimate(s.tripDistanceKm(p.Pickup, p.Dropoff))
	now := time.Now()
	req := &models.ServiceRequest{
		ID:           newID(),
		CustomerID:   p.CustomerID,
		Pickup:       p.Pickup,
		Dropoff:      p.Dropoff,
		Status:       models.StatusSearching,
		FareEstimate: fare.Total,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Store.CreateRequest(req); err != nil {
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	// the dispatch sequence outlives this request: bind it to the
	// process context so returning 202 does not abort the offers
	if err := s.Orch.Dispatch(s.baseCtx, req.ID); err != nil {
		s.logger.Error("dispatch start failed", "request_id", req.ID, "error", err)
		http.Error(w, "dispatch error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{"request_id": req.ID, "fare": fare})
}

// tripDistanceKm prefers road distance when a routing backend is
// configured and falls back to the great-circle estimate.
func (s *Server) tripDistanceKm(pickup, dropoff models.Coord) float64 {
	if s.Routes != nil {
		if d, err := s.Routes.DistanceKm(pickup, dropoff); err == nil {
			return d
		}
		s.logger.Warn("routing lookup failed for fare, using haversine")
	}
	return geo.DistanceKm(pickup, dropoff)
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["request_id"]
	req, err := s.Store.GetRequest(id)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(req)
}

func (s *Server) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["request_id"]
	s.Orch.Cancel(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDriverResponse(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["request_id"]
	var resp models.DriverResponse
	if err := json.NewDecoder(r.Body).Decode(&resp); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if resp.DriverID == "" {
		http.Error(w, "driver_id required", http.StatusBadRequest)
		return
	}
	// a stale response is fine from the driver's point of view: 204 either way
	_ = s.Orch.HandleDriverResponse(id, resp.DriverID, resp.Accepted, resp.Reason)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDriverLocation(w http.ResponseWriter, r *http.Request) {
	var ev ingest.LocationEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if ev.DriverID == "" {
		http.Error(w, "driver_id required", http.StatusBadRequest)
		return
	}
	ev.At = time.Now()
	// publish to kafka if configured; the consumer applies it to the
	// shared registry. Apply locally as well so single-process setups
	// work without a broker.
	if s.Kafka != nil {
		if err := s.Kafka.PublishLocation(ev); err != nil {
			s.logger.Warn("kafka publish failed", "driver_id", ev.DriverID, "error", err)
		}
	}
	s.Registry.UpdateLocation(ev.DriverID, ev.Lat, ev.Lon)
	if ev.Online != nil {
		s.Registry.SetOnline(ev.DriverID, *ev.Online)
	}
	w.WriteHeader(http.StatusNoContent)
}

type driverStatusPayload struct {
	DriverID string               `json:"driver_id"`
	Online   *bool                `json:"online,omitempty"`
	Approval models.ApprovalState `json:"approval,omitempty"`
}

func (s *Server) handleDriverStatus(w http.ResponseWriter, r *http.Request) {
	var p driverStatusPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if p.DriverID == "" {
		http.Error(w, "driver_id required", http.StatusBadRequest)
		return
	}
	if p.Online != nil {
		s.Registry.SetOnline(p.DriverID, *p.Online)
		if *p.Online {
			observability.DriversOnline.Inc()
		} else {
			observability.DriversOnline.Dec()
		}
	}
	if p.Approval != "" {
		s.Registry.SetApproval(p.DriverID, p.Approval)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.Orch.Stats())
}

var upgrader = websocket.Upgrader{}

// handleDriverWS keeps a driver session open for offers and reads
// location updates and offer responses off the same socket.
func (s *Server) handleDriverWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["driver_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	// the server's write deadline lingers on hijacked connections
	_ = conn.NetConn().SetDeadline(time.Time{})
	s.WS.AddDriver(id, conn)
	s.Registry.SetOnline(id, true)
	observability.DriversOnline.Inc()
	go s.driverReadLoop(id, conn)
}

type driverWSMessage struct {
	Type      string  `json:"type"` // "location" or "response"
	Lat       float64 `json:"lat,omitempty"`
	Lon       float64 `json:"lon,omitempty"`
	RequestID string  `json:"request_id,omitempty"`
	Accepted  bool    `json:"accepted,omitempty"`
	Reason    string  `json:"reason,omitempty"`
}

func (s *Server) driverReadLoop(driverID string, conn *websocket.Conn) {
	defer func() {
		s.WS.RemoveDriver(driverID)
		s.Registry.SetOnline(driverID, false)
		observability.DriversOnline.Dec()
		_ = conn.Close()
	}()
	for {
		var msg driverWSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			s.logger.Info("driver session closed", "driver_id", driverID, "error", err)
			return
		}
		switch msg.Type {
		case "location":
			s.Registry.UpdateLocation(driverID, msg.Lat, msg.Lon)
			if s.Kafka != nil {
				_ = s.Kafka.PublishLocation(ingest.LocationEvent{DriverID: driverID, Lat: msg.Lat, Lon: msg.Lon, At: time.Now()})
			}
		case "response":
			_ = s.Orch.HandleDriverResponse(msg.RequestID, driverID, msg.Accepted, msg.Reason)
		default:
			s.logger.Warn("unknown ws message", "driver_id", driverID, "type", msg.Type)
		}
	}
}

func (s *Server) handleCustomerWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["customer_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	_ = conn.NetConn().SetDeadline(time.Time{})
	s.WS.AddCustomer(id, conn)
	go func() {
		defer func() {
			s.WS.RemoveCustomer(id)
			_ = conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
