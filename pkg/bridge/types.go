package bridge

import (
	"github.com/IndustryFusion/fusionopcuadataservice/internal/app/config"
	"github.com/IndustryFusion/fusionopcuadataservice/internal/domain"
	"github.com/IndustryFusion/fusionopcuadataservice/internal/ports"
)

// Config re-exports the process configuration so embedders can build or
// tweak it in code.
type Config = config.Config

type (
	// PointMapping binds one OPC UA point to one PDT property.
	PointMapping = domain.PointMapping
	// PointTable is the ordered, immutable list of mappings polled each cycle.
	PointTable = domain.PointTable
	// Reading is what the poll loop hands to the sink.
	Reading = domain.NormalizedReading
	// SinkState reports whether the outbound connection is usable.
	SinkState = domain.SinkState
)

// Source opens sessions against an OPC UA server, or anything that looks like one.
type Source = ports.SourceClient

// SourceSession reads single points inside one connection.
type SourceSession = ports.SourceSession

// Sink consumes readings one at a time.
type Sink = ports.SinkChannel

// Observability receives logs and metrics from the runtime.
type Observability = ports.Observability

// Field is a structured log field.
type Field = ports.Field

// NewPointTable copies points into an immutable table.
func NewPointTable(points []PointMapping) PointTable {
	return domain.NewPointTable(points)
}

// LoadConfig reads the configuration from the environment.
func LoadConfig() (*Config, error) {
	return config.Load()
}

// LoadPoints reads the point table named by cfg.
func LoadPoints(cfg *Config) (PointTable, error) {
	return config.LoadPointTable(cfg.PointsPath, cfg.ServiceName)
}
