// Package fusionopcuadataservice exposes the OPC UA to PDT agent bridge for
// embedding in other Go services.
package fusionopcuadataservice

import (
	"io"
	"log/slog"

	"github.com/IndustryFusion/fusionopcuadataservice/internal/adapters/observability"
	base "github.com/IndustryFusion/fusionopcuadataservice/pkg/bridge"
)

// Re-exported errors for convenience.
var ErrChannelSinkClosed = base.ErrChannelSinkClosed

// Type aliases so consumers can import the module root directly.
type (
	Config         = base.Config
	PointMapping   = base.PointMapping
	PointTable     = base.PointTable
	Reading        = base.Reading
	SinkState      = base.SinkState
	Source         = base.Source
	SourceSession  = base.SourceSession
	Sink           = base.Sink
	Observability  = base.Observability
	Field          = base.Field
	Runtime        = base.Runtime
	Option         = base.Option
	ReadingHandler = base.ReadingHandler
)

func LoadConfig() (*Config, error) {
	return base.LoadConfig()
}

func LoadPoints(cfg *Config) (PointTable, error) {
	return base.LoadPoints(cfg)
}

func NewPointTable(points []PointMapping) PointTable {
	return base.NewPointTable(points)
}

// New builds a runtime; see bridge.New.
func New(cfg *Config, table PointTable, opts ...Option) (*Runtime, error) {
	return base.New(cfg, table, opts...)
}

// NewLogger builds a JSON or text slog logger at the given level.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	return observability.NewLogger(w, level, format)
}

func WithSource(src Source) Option               { return base.WithSource(src) }
func WithSink(s Sink) Option                     { return base.WithSink(s) }
func WithObservability(obs Observability) Option { return base.WithObservability(obs) }
func WithLogger(l *slog.Logger) Option           { return base.WithLogger(l) }
func NewCallbackSink(name string, fn ReadingHandler) Sink {
	return base.NewCallbackSink(name, fn)
}
func NewChannelSink(name string, buffer int) (Sink, <-chan Reading, func()) {
	return base.NewChannelSink(name, buffer)
}
