package domain

// ReadingKind is the fixed "t" field of every message sent to the PDT agent.
const ReadingKind = "Property"

// NormalizedReading is the wire-ready unit forwarded to the sink. It is built
// fresh for every poll and never retained.
type NormalizedReading struct {
	Property string
	Value    string
}

func (NormalizedReading) Kind() string { return ReadingKind }

// SinkState tracks the lifecycle of the single outbound PDT connection.
type SinkState int32

const (
	SinkUnestablished SinkState = iota
	SinkEstablished
	SinkFailed
)

func (s SinkState) String() string {
	switch s {
	case SinkUnestablished:
		return "unestablished"
	case SinkEstablished:
		return "established"
	case SinkFailed:
		return "failed"
	default:
		return "unknown"
	}
}
