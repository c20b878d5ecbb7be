// Package health serves the ingester's health and metrics endpoints.
package health

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes /health (JSON status) and /metrics (Prometheus exposition)
// and owns the ingestion counters the import loop updates.
type Server struct {
	mu        sync.RWMutex
	startTime time.Time
	server    *http.Server

	lastLedger    uint32
	lastError     string
	lastErrorTime time.Time

	registry            *prometheus.Registry
	ledgersImported     prometheus.Counter
	transactionsWritten prometheus.Counter
	operationsWritten   prometheus.Counter
	importErrors        prometheus.Counter
	lastLedgerGauge     prometheus.Gauge
}

// Response is the JSON body of /health.
type Response struct {
	Status        string `json:"status"`
	Uptime        string `json:"uptime"`
	LastLedger    uint32 `json:"last_ledger"`
	LastError     string `json:"last_error,omitempty"`
	LastErrorTime string `json:"last_error_time,omitempty"`
}

// NewServer builds a health server listening on the given port.
func NewServer(port int) *Server {
	registry := prometheus.NewRegistry()

	s := &Server{
		startTime: time.Now(),
		registry:  registry,
		ledgersImported: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "history_ingester_ledgers_imported_total",
			Help: "Total ledgers imported into the history store",
		}),
		transactionsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "history_ingester_transactions_total",
			Help: "Total transactions written to the history store",
		}),
		operationsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "history_ingester_operations_total",
			Help: "Total operations written to the history store",
		}),
		importErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "history_ingester_errors_total",
			Help: "Total import errors",
		}),
		lastLedgerGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "history_ingester_last_ledger",
			Help: "Last imported ledger sequence",
		}),
	}
	registry.MustRegister(
		s.ledgersImported,
		s.transactionsWritten,
		s.operationsWritten,
		s.importErrors,
		s.lastLedgerGauge,
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	return s
}

// Start begins serving in the background.
func (s *Server) Start() {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("health server error: %v\n", err)
		}
	}()
}

// Stop closes the listener.
func (s *Server) Stop() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

// RecordImport updates counters after a successful ledger import.
func (s *Server) RecordImport(sequence uint32, transactions, operations int32) {
	s.mu.Lock()
	s.lastLedger = sequence
	s.mu.Unlock()

	s.ledgersImported.Inc()
	s.transactionsWritten.Add(float64(transactions))
	s.operationsWritten.Add(float64(operations))
	s.lastLedgerGauge.Set(float64(sequence))
}

// RecordError notes a failed import attempt.
func (s *Server) RecordError(err error) {
	s.mu.Lock()
	s.lastError = err.Error()
	s.lastErrorTime = time.Now()
	s.mu.Unlock()

	s.importErrors.Inc()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	resp := Response{
		Status:     "healthy",
		Uptime:     time.Since(s.startTime).String(),
		LastLedger: s.lastLedger,
	}
	if s.lastError != "" {
		resp.LastError = s.lastError
		resp.LastErrorTime = s.lastErrorTime.Format(time.RFC3339)
	}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
