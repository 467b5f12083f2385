package pipeline

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/IndustryFusion/fusionopcuadataservice/internal/domain"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want errorClass
	}{
		{"connect", fmt.Errorf("%w: refused", domain.ErrSourceConnect), classTransport},
		{"session invalid", domain.NewReadError(domain.SessionInvalid, "ns=2;s=x", io.EOF), classTransport},
		{"read timeout", domain.NewReadError(domain.Timeout, "ns=2;s=x", nil), classTransport},
		{"reset", fmt.Errorf("read: %w", syscall.ECONNRESET), classTransport},
		{"deadline", fmt.Errorf("write: %w", os.ErrDeadlineExceeded), classTransport},
		{"panic", fmt.Errorf("%w: panic: boom", errUnexpected), classUnexpected},
		{"other", errors.New("decode: bad frame"), classUnexpected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classify(tc.err); got != tc.want {
				t.Fatalf("classify(%v) = %s, want %s", tc.err, got, tc.want)
			}
		})
	}
}

func TestBackoffPolicyConstant(t *testing.T) {
	p := NewBackoffPolicy(5*time.Second, 10*time.Second, 0)
	for i := 0; i < 3; i++ {
		if d := p.next(classTransport); d != 5*time.Second {
			t.Fatalf("attempt %d: expected 5s, got %s", i, d)
		}
	}
	if d := p.next(classUnexpected); d != 10*time.Second {
		t.Fatalf("expected 10s, got %s", d)
	}
}

func TestBackoffPolicyExponentialCapsAndResets(t *testing.T) {
	p := NewBackoffPolicy(time.Second, 10*time.Second, 4*time.Second)

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second}
	for i, w := range want {
		if d := p.next(classTransport); d != w {
			t.Fatalf("attempt %d: expected %s, got %s", i, w, d)
		}
	}

	p.reset()
	if d := p.next(classTransport); d != time.Second {
		t.Fatalf("expected reset to initial interval, got %s", d)
	}
}
