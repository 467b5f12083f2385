package pipeline

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/IndustryFusion/fusionopcuadataservice/internal/domain"
)

// errorClass picks the backoff applied before the next connect attempt.
type errorClass int

const (
	classTransport errorClass = iota
	classUnexpected
)

func (c errorClass) String() string {
	if c == classTransport {
		return "transport"
	}
	return "unexpected"
}

// errUnexpected wraps panics recovered inside a session.
var errUnexpected = errors.New("unexpected failure")

func classify(err error) errorClass {
	if errors.Is(err, errUnexpected) {
		return classUnexpected
	}
	if errors.Is(err, domain.ErrSourceConnect) {
		return classTransport
	}
	var rerr *domain.ReadError
	if errors.As(err, &rerr) && rerr.SessionFatal() {
		return classTransport
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return classTransport
	}
	switch {
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, os.ErrDeadlineExceeded),
		errors.Is(err, context.DeadlineExceeded):
		return classTransport
	}
	return classUnexpected
}

// BackoffPolicy holds one backoff.BackOff per error class. Both are reset
// once a session is established.
type BackoffPolicy struct {
	Transport  backoff.BackOff
	Unexpected backoff.BackOff
}

// NewBackoffPolicy returns constant delays, or a doubling transport delay
// capped at maxTransport when maxTransport exceeds transport.
func NewBackoffPolicy(transport, unexpected, maxTransport time.Duration) BackoffPolicy {
	var tb backoff.BackOff = backoff.NewConstantBackOff(transport)
	if maxTransport > transport {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = transport
		eb.MaxInterval = maxTransport
		eb.Multiplier = 2
		eb.RandomizationFactor = 0
		eb.MaxElapsedTime = 0
		eb.Reset()
		tb = eb
	}
	return BackoffPolicy{
		Transport:  tb,
		Unexpected: backoff.NewConstantBackOff(unexpected),
	}
}

func (p BackoffPolicy) next(class errorClass) time.Duration {
	b := p.Unexpected
	if class == classTransport {
		b = p.Transport
	}
	d := b.NextBackOff()
	if d == backoff.Stop {
		// a policy that gives up would end the loop; restart it instead
		b.Reset()
		d = b.NextBackOff()
	}
	return d
}

func (p BackoffPolicy) reset() {
	p.Transport.Reset()
	p.Unexpected.Reset()
}
