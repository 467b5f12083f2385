package observability

import (
	"log/slog"

	"github.com/IndustryFusion/fusionopcuadataservice/internal/domain"
	"github.com/IndustryFusion/fusionopcuadataservice/internal/ports"
	"github.com/prometheus/client_golang/prometheus"
)

type PromObs struct {
	logger   *slog.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
	readErrs *prometheus.CounterVec
}

// NewPromObs registers the bridge metrics on reg and logs through logger.
func NewPromObs(reg prometheus.Registerer, logger *slog.Logger) *PromObs {
	if logger == nil {
		logger = slog.Default()
	}

	pointsRead := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricPointsRead,
		Help: "Points successfully read from the OPC UA server.",
	})
	sent := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricReadingsSent,
		Help: "Readings written to the PDT agent.",
	})
	sendErrs := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricSendErrors,
		Help: "Readings that could not be written to the PDT agent.",
	})
	connectFails := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricConnectFailures,
		Help: "Failed OPC UA connect or authenticate attempts.",
	})
	sessions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricSessionsOpened,
		Help: "OPC UA sessions established.",
	})
	unexpected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricUnexpectedErrors,
		Help: "Unclassified errors caught at the poll loop boundary.",
	})
	connected := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: ports.MetricSourceConnected,
		Help: "1 while an OPC UA session is open.",
	})
	cycle := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    ports.MetricCycleDuration,
		Help:    "Duration of a full pass over the point table.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})
	readErrs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: ports.MetricReadErrorsByKind,
		Help: "Failed point reads by kind.",
	}, []string{"kind"})

	reg.MustRegister(pointsRead, sent, sendErrs, connectFails, sessions, unexpected, connected, cycle, readErrs)

	return &PromObs{
		logger: logger,
		counters: map[string]prometheus.Counter{
			ports.MetricPointsRead:       pointsRead,
			ports.MetricReadingsSent:     sent,
			ports.MetricSendErrors:       sendErrs,
			ports.MetricConnectFailures:  connectFails,
			ports.MetricSessionsOpened:   sessions,
			ports.MetricUnexpectedErrors: unexpected,
		},
		gauges: map[string]prometheus.Gauge{
			ports.MetricSourceConnected: connected,
		},
		histos: map[string]prometheus.Observer{
			ports.MetricCycleDuration: cycle,
		},
		readErrs: readErrs,
	}
}

func (p *PromObs) LogDebug(msg string, fields ...ports.Field) {
	p.logger.Debug(msg, attrs(nil, fields)...)
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.logger.Info(msg, attrs(nil, fields)...)
}

func (p *PromObs) LogWarn(msg string, err error, fields ...ports.Field) {
	p.logger.Warn(msg, attrs(err, fields)...)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	p.logger.Error(msg, attrs(err, fields)...)
}

// LogCritical is used for failures that end the process.
func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	p.logger.Error(msg, append(attrs(err, fields), "critical", true)...)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromObs) RecordReadError(kind domain.ReadErrorKind, pt domain.PointMapping, err error) {
	p.readErrs.WithLabelValues(kind.String()).Inc()
	p.logger.Warn("point read failed", attrs(err, []ports.Field{
		{Key: "kind", Value: kind.String()},
		{Key: "namespace", Value: pt.Namespace},
		{Key: "identifier", Value: pt.Identifier},
		{Key: "property", Value: pt.Property},
	})...)
}

func attrs(err error, fields []ports.Field) []any {
	out := make([]any, 0, 2*len(fields)+2)
	if err != nil {
		out = append(out, "error", err)
	}
	for _, f := range fields {
		out = append(out, f.Key, f.Value)
	}
	return out
}

var _ ports.Observability = (*PromObs)(nil)
