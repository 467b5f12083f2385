package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	fusion "github.com/IndustryFusion/fusionopcuadataservice"
)

func main() {
	cmd := "run"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	var err error
	switch cmd {
	case "run":
		err = runCommand()
	case "validate":
		err = validateCommand()
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		slog.Error("fusion-bridge failed", "command", cmd, "error", err)
		os.Exit(1)
	}
}

func runCommand() error {
	cfg, err := fusion.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := fusion.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	table, err := fusion.LoadPoints(cfg)
	if err != nil {
		return fmt.Errorf("load points: %w", err)
	}
	logger.Info("configuration loaded",
		"endpoint", cfg.OPCUA.Endpoint,
		"pdt_agent", cfg.Sink.Address(),
		"points", table.Len(),
		"service", cfg.ServiceName)

	rt, err := fusion.New(cfg, table, fusion.WithLogger(logger))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("fusion-bridge stopped")
	return nil
}

func validateCommand() error {
	cfg, err := fusion.LoadConfig()
	if err != nil {
		return err
	}
	table, err := fusion.LoadPoints(cfg)
	if err != nil {
		return err
	}
	fmt.Printf("config ok: %d points from %s, opcua %s, pdt agent %s\n",
		table.Len(), cfg.PointsPath, cfg.OPCUA.Endpoint, cfg.Sink.Address())
	return nil
}

func printUsage() {
	fmt.Printf(`fusion-bridge

Usage:
  fusion-bridge [command]

Commands:
  run        Poll the OPC UA server and forward readings to the PDT agent (default)
  validate   Load the environment and point table without connecting

Configuration is read from the environment (DISCOVERY_URL, IFF_AGENT_URL,
IFF_AGENT_PORT, USERNAME, PASSWORD, CONFIG_PATH, ...).
`)
}
