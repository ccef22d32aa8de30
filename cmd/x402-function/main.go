package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/x402-rs/x402-client-go/pkg/config"
	"github.com/x402-rs/x402-client-go/pkg/functions"
	"github.com/x402-rs/x402-client-go/pkg/report"
	"github.com/x402-rs/x402-client-go/pkg/runner"
	"github.com/x402-rs/x402-client-go/pkg/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, filepath.Base(os.Args[0]), os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, program string, args []string, stdout, stderr io.Writer) int {
	registry := functions.DefaultRegistry()

	inv, err := functions.ParseArgs(args, config.FunctionOverride(), registry)
	if err != nil {
		var usage *functions.UsageError
		if errors.As(err, &usage) {
			functions.PrintUsage(stdout, program, registry, usage)
		} else {
			fmt.Fprintf(stdout, "Error: %v\n", err)
		}
		return runner.ExitConfig
	}

	cfg, err := config.Load(config.ModeFunction)
	if err != nil {
		var missing *config.MissingError
		if errors.As(err, &missing) {
			fmt.Fprintf(stdout, "❌ Error: %s environment variable is required\n", missing.Vars[0])
			fmt.Fprintln(stdout, "Set it in .env file or environment")
		} else {
			fmt.Fprintf(stdout, "❌ Error: %v\n", err)
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

	r, err := runner.New(cfg, runner.WithOutput(stdout), runner.WithStyle(report.StyleFunction))
	if err != nil {
		fmt.Fprintf(stdout, "❌ Error: %v\n", err)
		return runner.ExitConfig
	}
	defer r.Close()

	fmt.Fprintf(stdout, "🧪 Testing Function: %s\n", inv.Function.Name)
	fmt.Fprintf(stdout, "📝 Description: %s\n", inv.Function.Description)
	fmt.Fprintf(stdout, "🌐 Endpoint: %s\n", inv.Path)
	fmt.Fprintf(stdout, "📡 Base URL: %s\n", cfg.BaseURL)
	fmt.Fprintf(stdout, "🔐 Account: %s\n", r.Address())
	fmt.Fprintf(stdout, "📋 Parameters: %s\n", inv.Params)
	r.PrintBalance(ctx, stdout)

	res := r.Run(ctx, inv.Path)
	if res.Failure != nil {
		runner.PrintFailure(stdout, res.Failure)
	}
	return res.ExitCode(cfg.StrictExit)
}
