package bridge

import (
	"context"
	"sync"

	"github.com/IndustryFusion/fusionopcuadataservice/internal/domain"
	"github.com/IndustryFusion/fusionopcuadataservice/internal/ports"
)

// stubSource answers every read with value, or values[identifier] when set.
type stubSource struct {
	value  any
	values map[string]any

	mu       sync.Mutex
	sessions []*stubSession
}

func (s *stubSource) Endpoint() string { return "opc.tcp://stub:4840" }

func (s *stubSource) Connect(context.Context) (ports.SourceSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := &stubSession{src: s}
	s.sessions = append(s.sessions, sess)
	return sess, nil
}

func (s *stubSource) connectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *stubSource) allClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if !sess.closed {
			return false
		}
	}
	return true
}

type stubSession struct {
	src    *stubSource
	closed bool
}

func (s *stubSession) ReadPoint(_ context.Context, _, identifier string) (any, error) {
	if v, ok := s.src.values[identifier]; ok {
		return v, nil
	}
	return s.src.value, nil
}

func (s *stubSession) Close(context.Context) {
	s.src.mu.Lock()
	s.closed = true
	s.src.mu.Unlock()
}

type nopObs struct{}

func (nopObs) LogDebug(string, ...ports.Field)                                  {}
func (nopObs) LogInfo(string, ...ports.Field)                                   {}
func (nopObs) LogWarn(string, error, ...ports.Field)                            {}
func (nopObs) LogError(string, error, ...ports.Field)                           {}
func (nopObs) LogCritical(string, error, ...ports.Field)                        {}
func (nopObs) IncCounter(string, float64)                                       {}
func (nopObs) ObserveLatency(string, float64)                                   {}
func (nopObs) SetGauge(string, float64)                                         {}
func (nopObs) RecordReadError(domain.ReadErrorKind, domain.PointMapping, error) {}
