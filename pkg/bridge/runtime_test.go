package bridge

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/IndustryFusion/fusionopcuadataservice/internal/adapters/pdtsink"
	"github.com/IndustryFusion/fusionopcuadataservice/internal/app/config"
	"github.com/IndustryFusion/fusionopcuadataservice/internal/domain"
)

func TestNewRejectsEmptyTable(t *testing.T) {
	_, err := New(testConfig(t, "127.0.0.1", 1), NewPointTable(nil), WithSource(&stubSource{}))
	if !errors.Is(err, domain.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestRunForwardsStateToPDTAgent(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	want := `{"n":"machine_state","v":"2","t":"Property"}`
	received := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, len(want))
		if _, err := io.ReadFull(conn, buf); err != nil {
			received <- "read error: " + err.Error()
			return
		}
		received <- string(buf)
	}()

	addr := ln.Addr().(*net.TCPAddr)
	table := NewPointTable([]PointMapping{{Namespace: "2", Identifier: "state1", Property: "machine_state"}})
	src := &stubSource{value: "Running"}

	rt, err := New(testConfig(t, "127.0.0.1", addr.Port), table, WithSource(src), WithObservability(nopObs{}))
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()

	select {
	case got := <-received:
		if got != want {
			t.Fatalf("expected %s, got %s", want, got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for the PDT agent to receive a reading")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("runtime did not stop after cancellation")
	}
	if !src.allClosed() {
		t.Fatalf("expected every source session to be closed")
	}
}

func TestRunFailsWhenAgentUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	src := &stubSource{value: 1}
	table := NewPointTable([]PointMapping{{Namespace: "2", Identifier: "x", Property: "speed"}})
	rt, err := New(testConfig(t, "127.0.0.1", port), table, WithSource(src), WithObservability(nopObs{}))
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}

	err = rt.Run(context.Background())
	if !errors.Is(err, domain.ErrSinkConnect) {
		t.Fatalf("expected ErrSinkConnect, got %v", err)
	}
	if src.connectCount() != 0 {
		t.Fatalf("source must not be contacted without a sink")
	}
}

func TestRunHonoursCancelDuringStartupDelay(t *testing.T) {
	cfg := testConfig(t, "127.0.0.1", 1)
	cfg.StartupDelay = time.Hour

	table := NewPointTable([]PointMapping{{Namespace: "2", Identifier: "x", Property: "speed"}})
	rt, err := New(cfg, table, WithSource(&stubSource{}), WithObservability(nopObs{}))
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rt.Run(ctx); err != nil {
		t.Fatalf("expected nil after cancelled startup delay, got %v", err)
	}
}

func TestRunWithChannelSink(t *testing.T) {
	sink, readings, closeSink := NewChannelSink("test", 4)
	defer closeSink()

	table := NewPointTable([]PointMapping{
		{Namespace: "2", Identifier: "state1", Property: "machine_state"},
		{Namespace: "2", Identifier: "temp", Property: "temperature"},
	})
	src := &stubSource{values: map[string]any{"state1": "Idle", "temp": 21.25}}
	rt, err := New(testConfig(t, "127.0.0.1", 1), table, WithSource(src), WithSink(sink), WithObservability(nopObs{}))
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()

	want := []Reading{
		{Property: "machine_state", Value: "1"},
		{Property: "temperature", Value: "21.25"},
	}
	for i, w := range want {
		select {
		case got := <-readings:
			if got != w {
				t.Fatalf("reading %d: expected %+v, got %+v", i, w, got)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for reading %d", i)
		}
	}

	cancel()
	// drain so a send blocked on a full buffer can observe shutdown
	go func() {
		for range readings {
		}
	}()
	if err := <-done; err != nil {
		t.Fatalf("expected clean shutdown, got %v", err)
	}
}

func TestHealthzFollowsSinkState(t *testing.T) {
	table := NewPointTable([]PointMapping{{Namespace: "2", Identifier: "x", Property: "speed"}})
	rt, err := New(testConfig(t, "127.0.0.1", 1), table, WithSource(&stubSource{}))
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	h := rt.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before the sink is up, got %d", rec.Code)
	}

	sink := NewCallbackSink("cb", func(context.Context, Reading) error { return nil })
	rt.active.Store(&sinkRef{sink})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with an established sink, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"sink":"established"`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}

	_ = sink.Close()
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 after close, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "bridge_") {
		t.Fatalf("expected bridge metrics to be exposed, got %d", rec.Code)
	}
}

func TestCallbackSinkWrapsHandlerErrors(t *testing.T) {
	sink := NewCallbackSink("", func(context.Context, Reading) error { return errors.New("boom") })
	if sink.Name() != "callback" {
		t.Fatalf("expected default name, got %s", sink.Name())
	}
	if err := sink.Send(context.Background(), Reading{Property: "p", Value: "v"}); !errors.Is(err, domain.ErrSend) {
		t.Fatalf("expected ErrSend, got %v", err)
	}
}

func TestChannelSinkClosed(t *testing.T) {
	sink, _, closeSink := NewChannelSink("", 0)
	closeSink()
	if err := sink.Send(context.Background(), Reading{}); !errors.Is(err, ErrChannelSinkClosed) {
		t.Fatalf("expected ErrChannelSinkClosed, got %v", err)
	}
	if sink.State() != domain.SinkUnestablished {
		t.Fatalf("expected closed channel sink to report unestablished")
	}
}

func TestChannelSinkCloseReleasesBlockedSend(t *testing.T) {
	sink, _, closeSink := NewChannelSink("blocked", 0)

	done := make(chan error, 1)
	go func() { done <- sink.Send(context.Background(), Reading{Property: "p", Value: "v"}) }()

	// give the sender time to block on the unbuffered channel
	time.Sleep(20 * time.Millisecond)
	closeSink()

	select {
	case err := <-done:
		if !errors.Is(err, ErrChannelSinkClosed) {
			t.Fatalf("expected ErrChannelSinkClosed, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("blocked send was not released by close")
	}
}

func testConfig(t *testing.T, host string, port int) *Config {
	t.Helper()
	return &config.Config{
		Sink: pdtsink.Config{Host: host, Port: port, DialTimeout: time.Second, WriteTimeout: time.Second},
		Poll: config.PollConfig{
			Interval:          time.Millisecond,
			TransportBackoff:  10 * time.Millisecond,
			UnexpectedBackoff: 10 * time.Millisecond,
		},
		ServiceName: config.DefaultServiceName,
	}
}
