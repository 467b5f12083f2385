package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/IndustryFusion/fusionopcuadataservice/internal/app/normalize"
	"github.com/IndustryFusion/fusionopcuadataservice/internal/domain"
	"github.com/IndustryFusion/fusionopcuadataservice/internal/ports"
)

// State is the poll loop's position in its reconnect state machine.
type State int32

const (
	StateInit State = iota
	StateConnecting
	StatePolling
	StateReconnecting
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateConnecting:
		return "connecting"
	case StatePolling:
		return "polling"
	case StateReconnecting:
		return "reconnecting"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

const sessionCloseTimeout = 5 * time.Second

// LoopConfig tunes pacing and recovery.
type LoopConfig struct {
	// PointInterval is waited before every single point read.
	PointInterval time.Duration
	Backoff       BackoffPolicy
}

// PollLoop drives the poll-normalize-forward cycle. It is the only owner of
// the source session and the only caller of the sink; nothing in it runs
// concurrently except State.
type PollLoop struct {
	table  domain.PointTable
	source ports.SourceClient
	sink   ports.SinkChannel
	obs    ports.Observability
	cfg    LoopConfig

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	state           atomic.Int32
	connectFailures int
}

func NewPollLoop(table domain.PointTable, source ports.SourceClient, sink ports.SinkChannel, obs ports.Observability, cfg LoopConfig) (*PollLoop, error) {
	if table.Len() == 0 {
		return nil, fmt.Errorf("%w: point table is empty", domain.ErrConfig)
	}
	if source == nil {
		return nil, fmt.Errorf("source client is nil")
	}
	if sink == nil {
		return nil, fmt.Errorf("sink channel is nil")
	}
	if obs == nil {
		return nil, fmt.Errorf("observability is nil")
	}
	if cfg.Backoff.Transport == nil || cfg.Backoff.Unexpected == nil {
		cfg.Backoff = NewBackoffPolicy(5*time.Second, 10*time.Second, 0)
	}
	return &PollLoop{
		table:  table,
		source: source,
		sink:   sink,
		obs:    obs,
		cfg:    cfg,
		sleep:  sleepContext,
		now:    time.Now,
	}, nil
}

func (l *PollLoop) State() State { return State(l.state.Load()) }

func (l *PollLoop) setState(s State) { l.state.Store(int32(s)) }

// Run polls until ctx is cancelled and returns ctx.Err(). Every failure other
// than cancellation is logged, backed off and retried.
func (l *PollLoop) Run(ctx context.Context) error {
	defer l.setState(StateTerminated)

	l.obs.LogInfo("poll loop starting",
		ports.Field{Key: "endpoint", Value: l.source.Endpoint()},
		ports.Field{Key: "sink", Value: l.sink.Name()},
		ports.Field{Key: "points", Value: l.table.Len()},
		ports.Field{Key: "point_interval", Value: l.cfg.PointInterval.String()})

	for {
		err := l.runSession(ctx)
		if ctx.Err() != nil {
			l.obs.LogInfo("poll loop stopped", ports.Field{Key: "reason", Value: ctx.Err().Error()})
			return ctx.Err()
		}

		delay := l.afterSession(ctx, err)
		if err := l.sleep(ctx, delay); err != nil {
			l.obs.LogInfo("poll loop stopped", ports.Field{Key: "reason", Value: err.Error()})
			return err
		}
	}
}

// runSession connects and polls until the session fails. The session is
// closed before it returns, panics included.
func (l *PollLoop) runSession(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", errUnexpected, r)
		}
	}()

	l.setState(StateConnecting)
	sess, err := l.source.Connect(ctx)
	if err != nil {
		return err
	}
	defer l.closeSession(sess)

	l.connectFailures = 0
	l.cfg.Backoff.reset()
	l.obs.IncCounter(ports.MetricSessionsOpened, 1)
	l.obs.SetGauge(ports.MetricSourceConnected, 1)
	l.obs.LogInfo("source session established", ports.Field{Key: "endpoint", Value: l.source.Endpoint()})
	l.setState(StatePolling)

	for {
		if err := l.pollCycle(ctx, sess); err != nil {
			return err
		}
	}
}

// afterSession reports a lost or failed session and picks the backoff. A
// panic here, e.g. from the sink while forwarding unknown states, is treated
// like any other unclassified failure.
func (l *PollLoop) afterSession(ctx context.Context, err error) (delay time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			delay = l.cfg.Backoff.next(classUnexpected)
			l.report(fmt.Errorf("%w: panic after session: %v", errUnexpected, r), classUnexpected, delay)
		}
	}()

	if l.State() == StatePolling {
		l.setState(StateReconnecting)
		l.forwardUnknownStates(ctx)
	}

	class := classify(err)
	delay = l.cfg.Backoff.next(class)
	l.report(err, class, delay)
	return delay
}

// pollCycle reads every point once, in table order.
func (l *PollLoop) pollCycle(ctx context.Context, sess ports.SourceSession) error {
	start := l.now()
	for i := 0; i < l.table.Len(); i++ {
		p := l.table.At(i)
		if err := l.sleep(ctx, l.cfg.PointInterval); err != nil {
			return err
		}

		// a read already in flight is allowed to finish after cancellation
		raw, err := sess.ReadPoint(context.WithoutCancel(ctx), p.Namespace, p.Identifier)
		if err != nil {
			var rerr *domain.ReadError
			if !errors.As(err, &rerr) {
				return err
			}
			l.obs.RecordReadError(rerr.Kind, p, rerr.Err)
			if rerr.Kind != domain.PointNotFound {
				return err
			}
			raw = nil
		} else {
			l.obs.IncCounter(ports.MetricPointsRead, 1)
		}

		l.forward(ctx, p.Property, normalize.Value(p.Property, raw))
	}
	l.obs.ObserveLatency(ports.MetricCycleDuration, l.now().Sub(start).Seconds())
	return nil
}

// forward sends one reading. Failures are counted and logged, never returned.
func (l *PollLoop) forward(ctx context.Context, property, value string) {
	r := domain.NormalizedReading{Property: property, Value: value}
	if err := l.sink.Send(context.WithoutCancel(ctx), r); err != nil {
		l.obs.IncCounter(ports.MetricSendErrors, 1)
		l.obs.LogError("send to pdt agent failed", err,
			ports.Field{Key: "property", Value: property},
			ports.Field{Key: "value", Value: value},
			ports.Field{Key: "sink_state", Value: l.sink.State().String()})
		return
	}
	l.obs.IncCounter(ports.MetricReadingsSent, 1)
	l.obs.LogDebug("sent to pdt agent",
		ports.Field{Key: "property", Value: property},
		ports.Field{Key: "value", Value: value})
}

// forwardUnknownStates tells the PDT agent that every state-class property is
// now unknown, so a lost session shows up as a transition, not as silence.
func (l *PollLoop) forwardUnknownStates(ctx context.Context) {
	for i := 0; i < l.table.Len(); i++ {
		p := l.table.At(i)
		if normalize.IsStateProperty(p.Property) {
			l.forward(ctx, p.Property, normalize.Value(p.Property, nil))
		}
	}
}

func (l *PollLoop) closeSession(sess ports.SourceSession) {
	ctx, cancel := context.WithTimeout(context.Background(), sessionCloseTimeout)
	defer cancel()
	sess.Close(ctx)
	l.obs.SetGauge(ports.MetricSourceConnected, 0)
}

func (l *PollLoop) report(err error, class errorClass, delay time.Duration) {
	fields := []ports.Field{
		{Key: "class", Value: class.String()},
		{Key: "backoff", Value: delay.String()},
	}

	switch {
	case errors.Is(err, domain.ErrSourceConnect):
		l.connectFailures++
		l.obs.IncCounter(ports.MetricConnectFailures, 1)
		l.obs.LogWarn("source connect failed, retrying", err,
			append(fields, ports.Field{Key: "attempt", Value: l.connectFailures})...)
	case class == classTransport:
		l.obs.LogWarn("source session lost, reconnecting", err, fields...)
	default:
		l.obs.IncCounter(ports.MetricUnexpectedErrors, 1)
		l.obs.LogError("unexpected poll loop failure, reconnecting", err, fields...)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
