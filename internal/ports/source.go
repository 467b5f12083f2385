package ports

import "context"

// SourceClient opens sessions to the upstream OPC UA server. The poll loop
// holds at most one session at a time.
type SourceClient interface {
	Connect(ctx context.Context) (SourceSession, error)
	Endpoint() string
}

// SourceSession is one authenticated connection. A session that returned a
// session-fatal read error must be closed and replaced.
type SourceSession interface {
	// ReadPoint returns the raw value of one point, or a *domain.ReadError.
	ReadPoint(ctx context.Context, namespace, identifier string) (any, error)
	// Close is best effort and never fails.
	Close(ctx context.Context)
}
