// Package pdtsink forwards normalized readings to the IFF PDT agent over a
// single persistent TCP connection.
package pdtsink

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/IndustryFusion/fusionopcuadataservice/internal/domain"
	"github.com/IndustryFusion/fusionopcuadataservice/internal/ports"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config describes the PDT agent endpoint.
type Config struct {
	Host         string
	Port         int
	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

func (c *Config) ApplyDefaults() {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
}

func (c *Config) Validate() error {
	if c.Host == "" {
		return errors.New("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	return nil
}

func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// message is the wire form: {"n":"<property>","v":"<value>","t":"Property"}.
type message struct {
	N string `json:"n"`
	V string `json:"v"`
	T string `json:"t"`
}

// Encode renders r exactly as the PDT agent expects it.
func Encode(r domain.NormalizedReading) ([]byte, error) {
	return json.Marshal(message{N: r.Property, V: r.Value, T: r.Kind()})
}

// Sink owns the outbound connection. It is driven by one goroutine; only the
// state is read concurrently.
type Sink struct {
	cfg   Config
	dial  func(ctx context.Context, network, addr string) (net.Conn, error)
	conn  net.Conn
	state atomic.Int32
}

// Open dials the PDT agent and blocks until the connection is established or
// DialTimeout elapses.
func Open(ctx context.Context, cfg Config) (*Sink, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: pdt sink: %v", domain.ErrConfig, err)
	}
	d := &net.Dialer{Timeout: cfg.DialTimeout}
	s := &Sink{cfg: cfg, dial: d.DialContext}
	if err := s.connect(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSinkConnect, err)
	}
	return s, nil
}

func (s *Sink) connect(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
	defer cancel()
	conn, err := s.dial(dialCtx, "tcp", s.cfg.Address())
	if err != nil {
		s.state.Store(int32(domain.SinkFailed))
		return fmt.Errorf("dial %s: %w", s.cfg.Address(), err)
	}
	s.conn = conn
	s.state.Store(int32(domain.SinkEstablished))
	return nil
}

func (s *Sink) Name() string { return "pdt:" + s.cfg.Address() }

func (s *Sink) State() domain.SinkState { return domain.SinkState(s.state.Load()) }

// Send writes one reading as one discrete write. A connection that failed
// earlier is re-dialled once before writing.
func (s *Sink) Send(ctx context.Context, r domain.NormalizedReading) error {
	payload, err := Encode(r)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", domain.ErrSend, r.Property, err)
	}

	if s.State() != domain.SinkEstablished {
		s.dropConn()
		if err := s.connect(ctx); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrSend, err)
		}
	}

	if s.cfg.WriteTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	if _, err := s.conn.Write(payload); err != nil {
		s.state.Store(int32(domain.SinkFailed))
		return fmt.Errorf("%w: write %s: %v", domain.ErrSend, r.Property, err)
	}
	return nil
}

func (s *Sink) dropConn() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

// Close releases the connection. Safe to call more than once.
func (s *Sink) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.state.Store(int32(domain.SinkUnestablished))
	return err
}

var _ ports.SinkChannel = (*Sink)(nil)
