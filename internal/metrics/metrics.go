package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	clierr "github.com/ggonzalez94/bera-mcp/internal/errors"
	"github.com/ggonzalez94/bera-mcp/internal/execution"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "bera_mcp"

// Metrics owns a private registry so several servers can coexist in one
// process (tests do).
type Metrics struct {
	registry *prometheus.Registry

	toolCalls    *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec
	rpcRequests  *prometheus.CounterVec
	rpcLatency   prometheus.Histogram
	lifecycles   *prometheus.CounterVec
	phaseLatency *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and result type.",
		}, []string{"tool", "result"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_duration_seconds",
			Help:      "Tool latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"tool"}),
		rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "JSON-RPC HTTP round trips by status.",
		}, []string{"status"}),
		rpcLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_request_duration_seconds",
			Help:      "JSON-RPC HTTP round trip latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
		lifecycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_phases_total",
			Help:      "Lifecycle phase exits by operation, phase and outcome.",
		}, []string{"operation", "phase", "outcome"}),
		phaseLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lifecycle_phase_duration_seconds",
			Help:      "Time spent in each lifecycle phase.",
			Buckets:   []float64{0.01, 0.05, 0.25, 1, 5, 15, 60, 180},
		}, []string{"operation", "phase"}),
	}
	m.registry.MustRegister(m.toolCalls, m.toolDuration, m.rpcRequests, m.rpcLatency, m.lifecycles, m.phaseLatency)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveTool records one tool call; a nil error counts as "ok".
func (m *Metrics) ObserveTool(tool string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = clierr.TypeOf(err)
	}
	m.toolCalls.WithLabelValues(tool, result).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// ObserveRPC matches httpx.Observer.
func (m *Metrics) ObserveRPC(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.rpcRequests.WithLabelValues(status).Inc()
	m.rpcLatency.Observe(elapsed.Seconds())
}

// ObservePhase matches execution.Observer.
func (m *Metrics) ObservePhase(op execution.StepType, phase execution.Phase, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = clierr.TypeOf(err)
	}
	m.lifecycles.WithLabelValues(string(op), string(phase), outcome).Inc()
	m.phaseLatency.WithLabelValues(string(op), string(phase)).Observe(elapsed.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, log *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info("metrics listener started", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
