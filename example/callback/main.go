package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	fusion "github.com/IndustryFusion/fusionopcuadataservice"
)

// simSource stands in for an OPC UA server: the machine alternates between
// Running and Idle and the spindle speed ramps.
type simSource struct{}

func (simSource) Endpoint() string { return "sim://machine-1" }

func (simSource) Connect(context.Context) (fusion.SourceSession, error) {
	return &simSession{start: time.Now()}, nil
}

type simSession struct {
	start time.Time
}

func (s *simSession) ReadPoint(_ context.Context, _, identifier string) (any, error) {
	elapsed := time.Since(s.start)
	switch identifier {
	case "state1":
		if int(elapsed.Seconds())/10%2 == 0 {
			return "Running", nil
		}
		return "Idle", nil
	case "speed":
		return 1200 + elapsed.Seconds(), nil
	default:
		return nil, nil
	}
}

func (s *simSession) Close(context.Context) {}

func main() {
	cfg := &fusion.Config{}
	cfg.Poll.Interval = 500 * time.Millisecond
	cfg.Poll.TransportBackoff = 5 * time.Second
	cfg.Poll.UnexpectedBackoff = 10 * time.Second

	table := fusion.NewPointTable([]fusion.PointMapping{
		{Namespace: "2", Identifier: "state1", Property: "machine_state"},
		{Namespace: "2", Identifier: "speed", Property: "spindle_speed"},
	})

	stdout := fusion.NewCallbackSink("stdout", func(_ context.Context, r fusion.Reading) error {
		fmt.Printf("%s %s=%s\n", time.Now().Format(time.RFC3339), r.Property, r.Value)
		return nil
	})

	rt, err := fusion.New(cfg, table,
		fusion.WithSource(simSource{}),
		fusion.WithSink(stdout),
		fusion.WithLogger(fusion.NewLogger(os.Stderr, "info", "text")),
	)
	if err != nil {
		log.Fatalf("build runtime: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.Run(ctx); err != nil {
		log.Fatalf("runtime error: %v", err)
	}
}
