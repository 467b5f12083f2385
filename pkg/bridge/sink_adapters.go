package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/IndustryFusion/fusionopcuadataservice/internal/domain"
)

// ErrChannelSinkClosed is returned when a channel sink is written to after being closed.
var ErrChannelSinkClosed = errors.New("bridge: channel sink closed")

// ReadingHandler receives one reading per call.
type ReadingHandler func(context.Context, Reading) error

// NewCallbackSink adapts fn into a Sink so readings can be routed somewhere
// other than the PDT agent, e.g. a simulator or a test harness.
func NewCallbackSink(name string, fn ReadingHandler) Sink {
	if name == "" {
		name = "callback"
	}
	s := &callbackSink{name: name, fn: fn}
	s.state.Store(int32(domain.SinkEstablished))
	return s
}

// NewChannelSink exposes readings on a channel. The returned func closes it.
func NewChannelSink(name string, buffer int) (Sink, <-chan Reading, func()) {
	if name == "" {
		name = "channel"
	}
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan Reading, buffer)
	s := &channelSink{
		name:   name,
		ch:     ch,
		closed: make(chan struct{}),
	}
	return s, ch, func() { s.close() }
}

type callbackSink struct {
	name  string
	fn    ReadingHandler
	state atomic.Int32
}

func (s *callbackSink) Send(ctx context.Context, r Reading) error {
	if s.fn == nil {
		return fmt.Errorf("%w: callback sink %q: nil handler", domain.ErrSend, s.name)
	}
	if err := s.fn(ctx, r); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSend, err)
	}
	return nil
}

func (s *callbackSink) State() SinkState { return SinkState(s.state.Load()) }

func (s *callbackSink) Close() error {
	s.state.Store(int32(domain.SinkUnestablished))
	return nil
}

func (s *callbackSink) Name() string { return s.name }

// channelSink holds mu for reading while it may send on ch, so ch is never
// closed under a pending send.
type channelSink struct {
	name   string
	ch     chan Reading
	closed chan struct{}
	once   sync.Once
	mu     sync.RWMutex
}

func (s *channelSink) Send(ctx context.Context, r Reading) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	default:
	}

	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", domain.ErrSend, ctx.Err())
	case s.ch <- r:
		return nil
	}
}

func (s *channelSink) State() SinkState {
	select {
	case <-s.closed:
		return domain.SinkUnestablished
	default:
		return domain.SinkEstablished
	}
}

// Close is a no-op; the channel belongs to whoever holds the close func.
func (s *channelSink) Close() error { return nil }

func (s *channelSink) Name() string { return s.name }

func (s *channelSink) close() {
	s.once.Do(func() {
		// wakes blocked senders before taking the write lock
		close(s.closed)
		s.mu.Lock()
		close(s.ch)
		s.mu.Unlock()
	})
}
