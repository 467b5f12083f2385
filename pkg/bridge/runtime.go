package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/IndustryFusion/fusionopcuadataservice/internal/adapters/observability"
	"github.com/IndustryFusion/fusionopcuadataservice/internal/adapters/opcua"
	"github.com/IndustryFusion/fusionopcuadataservice/internal/adapters/pdtsink"
	"github.com/IndustryFusion/fusionopcuadataservice/internal/app/pipeline"
	"github.com/IndustryFusion/fusionopcuadataservice/internal/domain"
	"github.com/IndustryFusion/fusionopcuadataservice/internal/ports"
)

const shutdownTimeout = 5 * time.Second

// Option customizes the dependencies used by Runtime.
type Option func(*runtimeOverrides)

type runtimeOverrides struct {
	source        Source
	sink          Sink
	observability Observability
	logger        *slog.Logger
}

// WithSource replaces the OPC UA client, e.g. with a simulator.
func WithSource(src Source) Option {
	return func(o *runtimeOverrides) {
		o.source = src
	}
}

// WithSink replaces the PDT agent connection. The runtime closes it on exit.
func WithSink(s Sink) Option {
	return func(o *runtimeOverrides) {
		o.sink = s
	}
}

// WithObservability plugs in a custom log and metrics backend.
func WithObservability(obs Observability) Option {
	return func(o *runtimeOverrides) {
		o.observability = obs
	}
}

// WithLogger sets the logger behind the default Prometheus observability.
func WithLogger(l *slog.Logger) Option {
	return func(o *runtimeOverrides) {
		o.logger = l
	}
}

// Runtime wires the OPC UA source, the poll loop and the PDT sink, and serves
// /metrics and /healthz while it runs.
type Runtime struct {
	cfg      *Config
	table    PointTable
	obs      ports.Observability
	source   ports.SourceClient
	registry *prometheus.Registry

	// openSink is nil when a sink was injected.
	openSink func(ctx context.Context) (ports.SinkChannel, error)
	sink     ports.SinkChannel

	active     atomic.Pointer[sinkRef]
	loop       atomic.Pointer[pipeline.PollLoop]
	metricsSrv *http.Server
}

type sinkRef struct{ ports.SinkChannel }

// New validates its inputs and builds the default adapters for whatever was
// not overridden. Nothing is dialled until Run.
func New(cfg *Config, table PointTable, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", domain.ErrConfig)
	}
	if table.Len() == 0 {
		return nil, fmt.Errorf("%w: point table is empty", domain.ErrConfig)
	}

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	registry := prometheus.NewRegistry()
	obs := overrides.observability
	if obs == nil {
		logger := overrides.logger
		if logger == nil {
			logger = slog.Default()
		}
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		obs = observability.NewPromObs(registry, logger)
	}

	src := overrides.source
	if src == nil {
		s, err := opcua.NewSource(cfg.OPCUA)
		if err != nil {
			return nil, err
		}
		src = s
	}

	rt := &Runtime{
		cfg:      cfg,
		table:    table,
		obs:      obs,
		source:   src,
		registry: registry,
		sink:     overrides.sink,
	}
	if rt.sink == nil {
		sinkCfg := cfg.Sink
		rt.openSink = func(ctx context.Context) (ports.SinkChannel, error) {
			s, err := pdtsink.Open(ctx, sinkCfg)
			if err != nil {
				return nil, err
			}
			return s, nil
		}
	}
	return rt, nil
}

// Run blocks until ctx is cancelled. It returns nil on cancellation and an
// error wrapping domain.ErrSinkConnect when the PDT agent cannot be reached at
// startup. The source session, the sink and the metrics server are released
// on every path.
func (r *Runtime) Run(ctx context.Context) error {
	if r == nil {
		return fmt.Errorf("runtime is nil")
	}

	r.startMetrics()
	defer r.stopMetrics()

	if d := r.cfg.StartupDelay; d > 0 {
		r.obs.LogInfo("waiting before first connect", Field{Key: "startup_delay", Value: d.String()})
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}

	sink := r.sink
	if sink == nil {
		s, err := r.openSink(ctx)
		if err != nil {
			r.obs.LogCritical("pdt agent unreachable", err, Field{Key: "address", Value: r.cfg.Sink.Address()})
			return err
		}
		sink = s
	}
	r.active.Store(&sinkRef{sink})
	defer func() {
		if err := sink.Close(); err != nil {
			r.obs.LogWarn("sink close failed", err, Field{Key: "sink", Value: sink.Name()})
		}
	}()
	r.obs.LogInfo("pdt sink established", Field{Key: "sink", Value: sink.Name()})

	loop, err := pipeline.NewPollLoop(r.table, r.source, sink, r.obs, pipeline.LoopConfig{
		PointInterval: r.cfg.Poll.Interval,
		Backoff: pipeline.NewBackoffPolicy(
			r.cfg.Poll.TransportBackoff,
			r.cfg.Poll.UnexpectedBackoff,
			r.cfg.Poll.MaxReconnectBackoff,
		),
	})
	if err != nil {
		return err
	}
	r.loop.Store(loop)

	err = loop.Run(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (r *Runtime) startMetrics() {
	if r.cfg.Metrics.Addr == "" {
		return
	}
	ln, err := net.Listen("tcp", r.cfg.Metrics.Addr)
	if err != nil {
		r.obs.LogError("metrics listener failed", err, Field{Key: "addr", Value: r.cfg.Metrics.Addr})
		return
	}

	r.metricsSrv = &http.Server{
		Handler:           r.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := r.metricsSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.obs.LogError("metrics server exited", err)
		}
	}()
	r.obs.LogInfo("metrics server listening", Field{Key: "addr", Value: ln.Addr().String()})
}

func (r *Runtime) stopMetrics() {
	if r.metricsSrv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := r.metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		r.obs.LogWarn("metrics server shutdown failed", err)
	}
}

// Handler serves /metrics and /healthz. /healthz is 200 only while the PDT
// sink is established.
func (r *Runtime) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", r.healthz)
	return mux
}

type healthStatus struct {
	Sink   string `json:"sink"`
	Source string `json:"source"`
}

func (r *Runtime) healthz(w http.ResponseWriter, _ *http.Request) {
	st := healthStatus{Sink: domain.SinkUnestablished.String(), Source: pipeline.StateInit.String()}
	if ref := r.active.Load(); ref != nil {
		st.Sink = ref.State().String()
	}
	if loop := r.loop.Load(); loop != nil {
		st.Source = loop.State().String()
	}

	code := http.StatusServiceUnavailable
	if st.Sink == domain.SinkEstablished.String() {
		code = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = jsoniter.NewEncoder(w).Encode(st)
}
