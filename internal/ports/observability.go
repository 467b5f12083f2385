package ports

import "github.com/IndustryFusion/fusionopcuadataservice/internal/domain"

type Observability interface {
	LogDebug(msg string, fields ...Field)
	LogInfo(msg string, fields ...Field)
	LogWarn(msg string, err error, fields ...Field)
	LogError(msg string, err error, fields ...Field)
	LogCritical(msg string, err error, fields ...Field)

	IncCounter(name string, v float64)
	ObserveLatency(name string, seconds float64)

	SetGauge(name string, v float64)

	RecordReadError(kind domain.ReadErrorKind, p domain.PointMapping, err error)
}

type Field struct {
	Key   string
	Value any
}
