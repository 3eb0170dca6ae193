// Package metrics centralizes the prometheus instrumentation of the logging
// pipeline and optionally exposes it over HTTP.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	// Counter de registros distribuídos pelo hub
	RecordsDistributedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proc_logging_records_distributed_total",
			Help: "Total number of log records distributed to sink groups",
		},
		[]string{"group", "severity"},
	)

	// Counter de registros barrados no gate da origem
	RecordsGatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proc_logging_records_gated_total",
		Help: "Total number of emit calls suppressed by the source gate",
	})

	// Gauge de profundidade das filas dos adapters
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "proc_logging_queue_depth",
			Help: "Current number of records queued in a queue sink adapter",
		},
		[]string{"sink"},
	)

	// Counter de registros descartados por overflow de fila
	QueueDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proc_logging_queue_dropped_total",
			Help: "Total number of records dropped by queue overflow",
		},
		[]string{"sink"},
	)

	// Counter de avanços de arquivo do sink rotativo
	FileAdvancesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proc_logging_file_advances_total",
			Help: "Total number of file advances performed by rotating file sinks",
		},
		[]string{"sink", "reason"},
	)

	// Counter de arquivos removidos pelo purge
	FilesPurgedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proc_logging_files_purged_total",
			Help: "Total number of files deleted by the rotation purge",
		},
		[]string{"sink"},
	)

	// Counter de registros descartados pelo sink de arquivo
	FileDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proc_logging_file_dropped_total",
			Help: "Total number of records dropped by rotating file sinks",
		},
		[]string{"sink"},
	)

	// Gauge de ações ativas por fila de ações
	ActionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "proc_logging_actions_active",
			Help: "Number of actions currently between Start and Complete",
		},
		[]string{"queue"},
	)

	// Counter de ações completadas
	ActionsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proc_logging_actions_completed_total",
			Help: "Total number of completed actions",
		},
		[]string{"queue", "outcome"},
	)

	// Counter de falhas de sink observadas pelo hub
	SinkFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proc_logging_sink_failures_total",
			Help: "Total number of sink handler failures caught by the hub",
		},
		[]string{"sink"},
	)

	// Gauge de saúde por componente (1 = healthy)
	componentHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "proc_logging_component_health",
			Help: "Health of a pipeline component (1 healthy, 0 unhealthy)",
		},
		[]string{"component", "name"},
	)
)

// SetComponentHealth marks a component healthy or unhealthy.
func SetComponentHealth(component, name string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	componentHealth.WithLabelValues(component, name).Set(v)
}

// Server expõe /metrics e /healthz
type Server struct {
	logger *logrus.Logger
	server *http.Server

	mutex     sync.Mutex
	isRunning bool
}

// ServerConfig configuração do servidor de métricas
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// NewServer creates the metrics HTTP server. Defaults: 0.0.0.0:9090.
func NewServer(config ServerConfig, logger *logrus.Logger) *Server {
	if config.Host == "" {
		config.Host = "0.0.0.0"
	}
	if config.Port <= 0 {
		config.Port = 9090
	}

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	return &Server{
		logger: logger,
		server: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", config.Host, config.Port),
			Handler: router,
		},
	}
}

// Start serves in the background.
func (s *Server) Start() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.isRunning {
		return nil
	}
	s.isRunning = true

	s.logger.WithField("addr", s.server.Addr).Info("Starting metrics server")
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("Metrics server failed")
		}
	}()
	return nil
}

// Stop shuts the server down with a short deadline.
func (s *Server) Stop() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !s.isRunning {
		return nil
	}
	s.isRunning = false

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
