package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"reflect"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ritzau/navisys/pkg/logging"
	"github.com/ritzau/navisys/pkg/pubsub"
	"github.com/ritzau/navisys/pkg/routing"
	"github.com/ritzau/navisys/pkg/weight"
)

// shutdownTimeout bounds how long Run waits for in-flight requests
const shutdownTimeout = 5 * time.Second

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// finite rejects NaN and infinite floats
	_ = v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field()
		if f.Kind() == reflect.Ptr {
			if f.IsNil() {
				return true
			}
			f = f.Elem()
		}
		switch f.Kind() {
		case reflect.Float32, reflect.Float64:
			x := f.Float()
			return !math.IsNaN(x) && !math.IsInf(x, 0)
		default:
			return true
		}
	})
	return v
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// EdgeRequest is the body of POST /api/edges
type EdgeRequest struct {
	From       string   `json:"from" validate:"required"`
	To         string   `json:"to" validate:"required"`
	Weight     *float64 `json:"weight" validate:"required,finite"`
	TimeOfDay  string   `json:"time_of_day"` // "day" when empty
	Congestion int      `json:"congestion" validate:"gte=0"`
}

// ChangeRequest is one real-time override in POST /api/updates
type ChangeRequest struct {
	From   string   `json:"from" validate:"required"`
	To     string   `json:"to" validate:"required"`
	Weight *float64 `json:"weight" validate:"required,finite"`
}

// UpdateRequest is the body of POST /api/updates
type UpdateRequest struct {
	Start   string          `json:"start" validate:"required"`
	Changes []ChangeRequest `json:"changes" validate:"dive"`
}

// DistancesResponse is returned by the distance endpoints
type DistancesResponse struct {
	Start     string         `json:"start"`
	Distances map[string]any `json:"distances"`
}

// RouteResponse is returned by GET /api/route
type RouteResponse struct {
	From      string         `json:"from"`
	To        string         `json:"to"`
	Distance  any            `json:"distance"`
	Path      []string       `json:"path"` // empty when To is unreachable
	Distances map[string]any `json:"distances"`
}

// GraphEdge is one edge in GET /api/graph
type GraphEdge struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Weight float64 `json:"weight"`
}

// GraphData holds the road graph for visualization
type GraphData struct {
	Nodes []string    `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// Server represents the web server
type Server struct {
	router    *mux.Router
	graph     *routing.Graph[string]
	publisher pubsub.Publisher
}

// NewServer creates a web server over g. Recomputed distances and engine
// events are streamed from publisher.
func NewServer(g *routing.Graph[string], publisher pubsub.Publisher) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		graph:     g,
		publisher: publisher,
	}
	s.setupRoutes()
	return s
}

// Handler returns the router wrapped in the request logging middleware
func (s *Server) Handler() http.Handler {
	return logging.RequestIDMiddleware(s.router)
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/subscribe/{topic}", s.handleSubscribe).Methods("GET")
	s.router.HandleFunc("/api/ws/{topic}", s.handleWebSocket).Methods("GET")

	s.router.HandleFunc("/api/edges", s.handleAddEdge).Methods("POST")
	s.router.HandleFunc("/api/distances/{start}", s.handleDistances).Methods("GET")
	s.router.HandleFunc("/api/route", s.handleRoute).Methods("GET")
	s.router.HandleFunc("/api/updates", s.handleUpdates).Methods("POST")
	s.router.HandleFunc("/api/graph", s.handleGraph).Methods("GET")

	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
}

func knownTopic(w http.ResponseWriter, topic string) bool {
	if topic != pubsub.TopicDistances && topic != pubsub.TopicRouteEvents {
		http.Error(w, fmt.Sprintf("Unknown topic: %s", topic), http.StatusNotFound)
		return false
	}
	return true
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	topic := mux.Vars(r)["topic"]
	if !knownTopic(w, topic) {
		return
	}

	// Create subscription before writing headers so errors can still be reported
	sub, err := s.publisher.Subscribe(r.Context(), topic)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// Send initial comment to establish connection (Safari compatibility)
	fmt.Fprintf(w, ": connected\n\n")
	flush(w)

	for event := range sub.Events() {
		if err := pubsub.WriteSSE(w, event); err != nil {
			logging.WarnContext(r.Context(), "error writing SSE event", "topic", topic, "error", err)
			return
		}
		flush(w)
	}
}

// handleWebSocket streams the same events as handleSubscribe, one JSON
// message per event
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	topic := mux.Vars(r)["topic"]
	if !knownTopic(w, topic) {
		return
	}

	sub, err := s.publisher.Subscribe(r.Context(), topic)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer sub.Close()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		logging.WarnContext(r.Context(), "failed to upgrade websocket", "error", err)
		return
	}
	defer conn.Close()

	// Clients only listen; a read error means they went away
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				sub.Close()
				return
			}
		}
	}()

	for event := range sub.Events() {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(event); err != nil {
			logging.DebugContext(r.Context(), "websocket write failed", "topic", topic, "error", err)
			return
		}
	}
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (s *Server) handleAddEdge(w http.ResponseWriter, r *http.Request) {
	var req EdgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	tod := weight.ParseTimeOfDay(req.TimeOfDay)
	effective := weight.EffectiveWeight(*req.Weight, tod, req.Congestion)
	if err := weight.ValidateWeight(effective); err != nil {
		http.Error(w, fmt.Sprintf("Effective weight out of range: %v", err), http.StatusBadRequest)
		return
	}
	s.graph.AddEdge(req.From, req.To, *req.Weight, tod, req.Congestion)

	writeJSON(w, r, http.StatusCreated, GraphEdge{From: req.From, To: req.To, Weight: effective})
}

func (s *Server) handleDistances(w http.ResponseWriter, r *http.Request) {
	start := mux.Vars(r)["start"]
	writeJSON(w, r, http.StatusOK, DistancesResponse{
		Start:     start,
		Distances: pubsub.EncodeDistances(s.graph.ShortestPathFrom(start)),
	})
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" || to == "" {
		http.Error(w, "Query parameters from and to are required", http.StatusBadRequest)
		return
	}

	tree := s.graph.RerouteTree(from, to)
	path, ok := tree.PathTo(to)
	if !ok {
		path = []string{}
	}

	var distance any = pubsub.Infinite
	if d := tree.Distances.Distance(to); routing.IsReachable(d) {
		distance = d
	}

	writeJSON(w, r, http.StatusOK, RouteResponse{
		From:      from,
		To:        to,
		Distance:  distance,
		Path:      path,
		Distances: pubsub.EncodeDistances(tree.Distances),
	})
}

func (s *Server) handleUpdates(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	changes := make(routing.ChangeSet[string], len(req.Changes))
	for _, c := range req.Changes {
		changes[routing.EdgeKey[string]{From: c.From, To: c.To}] = *c.Weight
	}

	result, err := s.graph.ApplyRealTimeUpdates(req.Start, changes)
	status := http.StatusOK
	update := pubsub.DistanceUpdate{
		Start:     req.Start,
		Reason:    "http update",
		BatchID:   logging.GetRequestID(r.Context()),
		Distances: pubsub.EncodeDistances(result.Distances),
		Applied:   pubsub.EdgeRefs(result.Applied),
		Skipped:   pubsub.EdgeRefs(result.Skipped),
	}
	if err != nil {
		if !errors.Is(err, routing.ErrNegativeCycle) {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		update.Error = err.Error()
		status = http.StatusConflict
	}

	if perr := s.publisher.Publish(pubsub.TopicDistances, "recomputed", update); perr != nil {
		logging.WarnContext(r.Context(), "failed to publish distances", "error", perr)
	}
	writeJSON(w, r, status, update)
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	data := GraphData{
		Nodes: s.graph.Nodes(),
		Edges: []GraphEdge{},
	}
	for _, e := range s.graph.Edges() {
		data.Edges = append(data.Edges, GraphEdge{From: e.From, To: e.To, Weight: e.Weight})
	}
	writeJSON(w, r, http.StatusOK, data)
}

// Run serves the API on port until ctx is done, then shuts down
// gracefully. Streaming requests are cancelled along with ctx.
func (s *Server) Run(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("starting web server", "url", fmt.Sprintf("http://localhost:%d", port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("web server: %w", err)
	case <-ctx.Done():
	}

	logging.Info("stopping web server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("web server shutdown: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.ErrorContext(r.Context(), "failed to encode response", "path", r.URL.Path, "error", err)
	}
}

func flush(w http.ResponseWriter) {
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}
