package runner

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"

	"github.com/x402-rs/x402-client-go/pkg/report"
)

// Kind classifies why a run did not end in a verified payment
type Kind int

const (
	KindNone Kind = iota
	KindConfig
	KindUsage
	KindTransport
	KindProtocolStatus
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindUsage:
		return "usage"
	case KindTransport:
		return "transport"
	case KindProtocolStatus:
		return "protocol_status"
	default:
		return "none"
	}
}

// Exit codes
const (
	ExitOK             = 0
	ExitConfig         = 1
	ExitTransport      = 2
	ExitProtocolStatus = 3
)

// Failure is an error that ended a run early
type Failure struct {
	Kind  Kind
	Err   error
	Stack []byte
}

// NewFailure records err with the current goroutine stack
func NewFailure(kind Kind, err error) *Failure {
	return &Failure{Kind: kind, Err: err, Stack: debug.Stack()}
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Result is the outcome of one run
type Result struct {
	// Report is nil when no response was received
	Report  *report.Report
	Failure *Failure
}

// Kind returns the failure kind, KindProtocolStatus for a non-200 response,
// or KindNone
func (r Result) Kind() Kind {
	if r.Failure != nil {
		return r.Failure.Kind
	}
	if r.Report != nil && r.Report.StatusCode != http.StatusOK {
		return KindProtocolStatus
	}
	return KindNone
}

// ExitCode maps the result to a process exit code. Config and usage failures
// always exit 1; transport failures and non-200 responses only fail when
// strict is set.
func (r Result) ExitCode(strict bool) int {
	switch r.Kind() {
	case KindConfig, KindUsage:
		return ExitConfig
	case KindTransport:
		if strict {
			return ExitTransport
		}
	case KindProtocolStatus:
		if strict {
			return ExitProtocolStatus
		}
	}
	return ExitOK
}

// PrintFailure writes the failure message, its cause chain and the captured stack
func PrintFailure(w io.Writer, f *Failure) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "❌ Error occurred: %v\n", f.Err)
	for cause := errors.Unwrap(f.Err); cause != nil; cause = errors.Unwrap(cause) {
		fmt.Fprintf(w, "   caused by: %v\n", cause)
	}
	if len(f.Stack) > 0 {
		fmt.Fprintln(w)
		w.Write(f.Stack)
	}
}
