package ports

import (
	"context"

	"github.com/IndustryFusion/fusionopcuadataservice/internal/domain"
)

// SinkChannel is the long-lived outbound stream to the PDT agent.
type SinkChannel interface {
	Send(ctx context.Context, r domain.NormalizedReading) error
	State() domain.SinkState
	Close() error
	Name() string
}
