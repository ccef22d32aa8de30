package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/x402-rs/x402-client-go/pkg/config"
	"github.com/x402-rs/x402-client-go/pkg/report"
	"github.com/x402-rs/x402-client-go/pkg/runner"
	"github.com/x402-rs/x402-client-go/pkg/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, stdout, stderr io.Writer) int {
	// Load configuration
	cfg, err := config.Load(config.ModeRequest)
	if err != nil {
		var missing *config.MissingError
		if errors.As(err, &missing) {
			fmt.Fprintf(stdout, "Error: Missing required environment variables: %v\n", missing.Vars)
		} else {
			fmt.Fprintf(stdout, "Error: %v\n", err)
		}
		return runner.ExitConfig
	}

	shutdown, err := telemetry.Setup(ctx, telemetry.Options{
		ServiceName: cfg.ServiceName,
		Endpoint:    cfg.OTLPEndpoint,
		LogLevel:    cfg.LogLevel,
		LogOutput:   stderr,
	})
	if err != nil {
		slog.WarnContext(ctx, "telemetry export disabled", "error", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	if cfg.BearerToken != "" {
		fmt.Fprintln(stdout, "Using Authorization header with Supabase anon key")
	}

	r, err := runner.New(cfg, runner.WithOutput(stdout), runner.WithStyle(report.StyleRequest))
	if err != nil {
		fmt.Fprintf(stdout, "Error: %v\n", err)
		return runner.ExitConfig
	}
	defer r.Close()

	fmt.Fprintf(stdout, "Initialized account: %s\n", r.Address())
	r.PrintBalance(ctx, stdout)

	fmt.Fprintf(stdout, "🌐 Making request to: %s\n", cfg.EndpointPath)
	fmt.Fprintf(stdout, "📡 Base URL: %s\n", cfg.BaseURL)
	fmt.Fprintf(stdout, "🔐 Account: %s\n", r.Address())

	res := r.Run(ctx, cfg.EndpointPath)
	if res.Failure != nil {
		runner.PrintFailure(stdout, res.Failure)
	}
	return res.ExitCode(cfg.StrictExit)
}
