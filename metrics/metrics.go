package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts what the ingest pipeline does with each message
type Metrics struct {
	messages    *prometheus.CounterVec
	classified  *prometheus.CounterVec
	discarded   *prometheus.CounterVec
	decodeErrs  prometheus.Counter
	storeErrors prometheus.Counter
	gatherer    prometheus.Gatherer
}

// New registers the pipeline counters on reg
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meshtrans_messages_total",
			Help: "Mesh messages received, by message type.",
		}, []string{"type"}),
		classified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meshtrans_classified_total",
			Help: "Messages turned into records, by category.",
		}, []string{"category"}),
		discarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meshtrans_discarded_total",
			Help: "Messages marked not persist-worthy, by message type.",
		}, []string{"type"}),
		decodeErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meshtrans_decode_errors_total",
			Help: "Payloads that were not a valid mesh JSON envelope.",
		}),
		storeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meshtrans_store_errors_total",
			Help: "Store calls where at least one backend failed.",
		}),
		gatherer: reg,
	}

	reg.MustRegister(m.messages, m.classified, m.discarded, m.decodeErrs, m.storeErrors)
	return m
}

// Received counts an incoming message
func (m *Metrics) Received(msgType string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(msgType).Inc()
}

// Classified counts a message that produced records
func (m *Metrics) Classified(category string) {
	if m == nil {
		return
	}
	m.classified.WithLabelValues(category).Inc()
}

// Discarded counts a message that will not be stored
func (m *Metrics) Discarded(msgType string) {
	if m == nil {
		return
	}
	m.discarded.WithLabelValues(msgType).Inc()
}

// DecodeError counts a payload that could not be decoded
func (m *Metrics) DecodeError() {
	if m == nil {
		return
	}
	m.decodeErrs.Inc()
}

// StoreError counts a failed store
func (m *Metrics) StoreError() {
	if m == nil {
		return
	}
	m.storeErrors.Inc()
}

// Handler serves the registry in the prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Server exposes /metrics on an address
type Server struct {
	srv *http.Server
}

// NewServer creates the metrics HTTP server
func NewServer(listen string, m *Metrics) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return &Server{
		srv: &http.Server{
			Addr:              listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start serves in the background; listen errors go to onError
func (s *Server) Start(onError func(error)) {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			onError(err)
		}
	}()
}

// Shutdown stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
