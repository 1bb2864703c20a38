package service

import (
	"encoding/json"
	"net/http"
	"regexp"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/tanglevis/tanglevis/src/graph"
)

// Service exposes the engine's read-only surfaces over HTTP: stats, a graph
// snapshot, per-node styles, and the highlight pattern control used by the
// rendering collaborator.
type Service struct {
	sync.Mutex

	bindAddress string
	graph       *graph.Graph
	metrics     *Metrics
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, g *graph.Graph, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		graph:       g,
		metrics:     NewMetrics(),
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

// registerHandlers registers the API handlers with the DefaultServerMux of
// the http package. It is possible that another server in the same process
// is simultaneously using the DefaultServerMux. In which case, the handlers
// will be accessible from both servers.
func (s *Service) registerHandlers() {
	s.logger.Debug("Registering tanglevis API handlers")
	http.HandleFunc("/stats", s.makeHandler(s.GetStats))
	http.HandleFunc("/graph", s.makeHandler(s.GetGraph))
	http.HandleFunc("/style", s.makeHandler(s.GetStyle))
	http.HandleFunc("/highlight", s.makeHandler(s.SetHighlight))
	http.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Serve calls ListenAndServe. This is a blocking call. It is not necessary
// to call Serve when another server has already been started with the
// DefaultServerMux and the same address:port combination.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving tanglevis API")

	err := http.ListenAndServe(s.bindAddress, nil)
	if err != nil {
		s.logger.Error(err)
	}
}

// GraphMetrics returns the service's Prometheus metrics set, so the engine
// can observe graph stats after each batch.
func (s *Service) GraphMetrics() *Metrics {
	return s.metrics
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := s.graph.Stats()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		s.logger.WithError(err).Error("Failed to encode stats")
		http.Error(w, "JSON marshalling failed", http.StatusInternalServerError)
	}
}

// GetGraph returns a snapshot of node ids and parent->child edges.
func (s *Service) GetGraph(w http.ResponseWriter, r *http.Request) {
	nodes, edges := s.graph.Snapshot()

	res := struct {
		Nodes []string    `json:"nodes"`
		Edges [][2]string `json:"edges"`
	}{
		Nodes: nodes,
		Edges: edges,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		s.logger.WithError(err).Error("Failed to encode graph")
		http.Error(w, "JSON marshalling failed", http.StatusInternalServerError)
	}
}

// GetStyle returns the style descriptor of the node named by the id query
// parameter.
func (s *Service) GetStyle(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")

	style, ok := s.graph.Style(id)
	if !ok {
		http.Error(w, "Node not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(style); err != nil {
		s.logger.WithError(err).Error("Failed to encode style")
		http.Error(w, "JSON marshalling failed", http.StatusInternalServerError)
	}
}

// SetHighlight installs or clears the highlight pattern from the pattern
// query parameter. An empty pattern clears highlighting.
func (s *Service) SetHighlight(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("pattern")

	if pattern == "" {
		s.graph.SetHighlight(nil)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		http.Error(w, "Invalid pattern", http.StatusBadRequest)
		return
	}

	s.graph.SetHighlight(re)
	w.WriteHeader(http.StatusNoContent)
}
