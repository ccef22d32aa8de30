// Package runner performs one paid GET request and reports on it.
package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/x402-rs/x402-client-go/middleware/client"
	"github.com/x402-rs/x402-client-go/pkg/chain/evm"
	"github.com/x402-rs/x402-client-go/pkg/config"
	"github.com/x402-rs/x402-client-go/pkg/network"
	"github.com/x402-rs/x402-client-go/pkg/report"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/x402-rs/x402-client-go/pkg/runner"

// Option configures a Runner
type Option func(*Runner)

// WithOutput sets where the report is written; stdout otherwise
func WithOutput(w io.Writer) Option {
	return func(r *Runner) {
		r.out = w
	}
}

// WithStyle selects the report wording
func WithStyle(style report.Style) Option {
	return func(r *Runner) {
		r.style = style
	}
}

// WithTransport sets the transport under the paying client
func WithTransport(rt http.RoundTripper) Option {
	return func(r *Runner) {
		r.transport = rt
	}
}

// Runner owns a paying HTTP client bound to one account
type Runner struct {
	cfg   *config.Config
	payer *client.PayingClient
	http  *resty.Client
	out   io.Writer
	style report.Style
	runID string

	transport http.RoundTripper

	tracer   trace.Tracer
	requests metric.Int64Counter
}

// New builds a runner from configuration. Call Close when done.
func New(cfg *config.Config, opts ...Option) (*Runner, error) {
	r := &Runner{
		cfg:    cfg,
		out:    os.Stdout,
		style:  report.StyleRequest,
		runID:  uuid.NewString(),
		tracer: otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(r)
	}

	payOpts := []client.Option{
		client.WithSelector(FixedNetworkSelector(SelectorNetwork)),
		client.WithMaxValue(cfg.MaxValue),
	}
	if r.transport != nil {
		payOpts = append(payOpts, client.WithTransport(r.transport))
	}
	payer, err := client.NewPayingClient(cfg.PrivateKey, payOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	r.payer = payer

	r.requests, err = otel.Meter(instrumentationName).Int64Counter("x402.requests",
		metric.WithDescription("Paid requests by outcome"))
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	r.http = resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeaders(cfg.Headers()).
		SetTransport(otelhttp.NewTransport(r.payer)).
		SetLogger(restyLogger{})

	return r, nil
}

// Address returns the paying account's address
func (r *Runner) Address() string {
	return r.payer.Address().Hex()
}

// RunID identifies this run in logs and spans
func (r *Runner) RunID() string {
	return r.runID
}

// Close releases idle connections
func (r *Runner) Close() {
	r.payer.CloseIdleConnections()
}

// Run performs one GET of path relative to the base URL and renders the report.
// A panic on the request path is returned as a transport failure.
func (r *Runner) Run(ctx context.Context, path string) (res Result) {
	ctx, span := r.tracer.Start(ctx, "x402.request", trace.WithAttributes(
		attribute.String("run_id", r.runID),
		attribute.String("http.path", path),
		attribute.String("x402.network", string(SelectorNetwork)),
	))
	defer span.End()

	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("panic: %v", p)
			span.RecordError(err)
			span.SetStatus(codes.Error, "request panicked")
			slog.ErrorContext(ctx, "request panicked", "run_id", r.runID, "error", err)
			res = Result{Failure: NewFailure(KindTransport, err)}
		}
	}()

	slog.InfoContext(ctx, "request started", "run_id", r.runID, "base_url", r.cfg.BaseURL, "path", path)

	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, report.Rule)
	fmt.Fprintln(r.out, "x402 Payment Flow:")
	fmt.Fprintln(r.out, report.Rule)
	fmt.Fprintln(r.out, "1. Initial request (expecting 402 Payment Required)...")

	resp, err := r.http.R().SetContext(ctx).Get(path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		r.count(ctx, "error")
		slog.ErrorContext(ctx, "request failed", "run_id", r.runID, "error", err)
		return Result{Failure: NewFailure(KindTransport, fmt.Errorf("request to %s failed: %w", path, err))}
	}

	fmt.Fprintf(r.out, "2. Response Status: %d\n", resp.StatusCode())

	rep := report.New(resp.StatusCode(), resp.Header(), resp.Body())
	rep.Render(r.out, r.style)

	span.SetAttributes(
		attribute.Int("http.status_code", rep.StatusCode),
		attribute.String("x402.outcome", rep.Outcome.String()),
	)
	if rep.Settlement != nil {
		span.SetAttributes(attribute.String("x402.transaction", rep.Settlement.Transaction))
	}
	r.count(ctx, rep.Outcome.String())
	slog.InfoContext(ctx, "request finished", "run_id", r.runID, "status", rep.StatusCode, "outcome", rep.Outcome)

	if rep.SettlementErr != nil {
		span.RecordError(rep.SettlementErr)
		return Result{
			Report:  rep,
			Failure: NewFailure(KindTransport, fmt.Errorf("failed to decode settlement header: %w", rep.SettlementErr)),
		}
	}
	return Result{Report: rep}
}

// PrintBalance writes the account's USDC balance on the payment network.
// It does nothing without an RPC URL; lookup failures are only logged.
func (r *Runner) PrintBalance(ctx context.Context, w io.Writer) {
	if r.cfg.RPCURL == "" {
		return
	}

	deployment, err := network.GetUSDCDeployment(SelectorNetwork)
	if err != nil {
		slog.WarnContext(ctx, "no USDC deployment", "network", SelectorNetwork, "error", err)
		return
	}

	reader, err := evm.NewBalanceReader(ctx, r.cfg.RPCURL)
	if err != nil {
		slog.WarnContext(ctx, "balance lookup unavailable", "error", err)
		return
	}
	defer reader.Close()

	balance, err := reader.TokenBalance(ctx, deployment.TokenAddress, r.payer.Address())
	if err != nil {
		slog.WarnContext(ctx, "balance lookup failed", "error", err)
		return
	}
	fmt.Fprintf(w, "💰 USDC Balance (%s): %s\n", SelectorNetwork, network.FormatAmount(balance, network.USDCDecimals))
}

func (r *Runner) count(ctx context.Context, outcome string) {
	r.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// restyLogger sends resty's internal messages to slog
type restyLogger struct{}

func (restyLogger) Errorf(format string, v ...interface{}) {
	slog.Error(fmt.Sprintf(format, v...), "component", "resty")
}

func (restyLogger) Warnf(format string, v ...interface{}) {
	slog.Warn(fmt.Sprintf(format, v...), "component", "resty")
}

func (restyLogger) Debugf(format string, v ...interface{}) {
	slog.Debug(fmt.Sprintf(format, v...), "component", "resty")
}
