// Package report renders the console view of a paid request
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/x402-rs/x402-client-go/pkg/types"
)

const (
	maxHeaderValue = 100
	maxRawBody     = 500
)

// Rule separates report sections
var Rule = strings.Repeat("=", 60)

// Outcome classifies the final status of the exchange
type Outcome int

const (
	OutcomeVerified Outcome = iota
	OutcomeNotProcessed
	OutcomeUnexpected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeVerified:
		return "verified"
	case OutcomeNotProcessed:
		return "not_processed"
	default:
		return "unexpected"
	}
}

// OutcomeFor maps a status code to an outcome
func OutcomeFor(status int) Outcome {
	switch status {
	case http.StatusOK:
		return OutcomeVerified
	case http.StatusPaymentRequired:
		return OutcomeNotProcessed
	default:
		return OutcomeUnexpected
	}
}

// Style selects the wording of the verification section
type Style int

const (
	// StyleRequest explains each step of the handshake
	StyleRequest Style = iota
	// StyleFunction is the shorter function-test wording
	StyleFunction
)

// Header is a displayed response header
type Header struct {
	Name  string
	Value string
}

// Report is the request-scoped view of a response
type Report struct {
	StatusCode int
	Headers    []Header
	Body       string
	Outcome    Outcome

	// SettlementPresent is true when the response carried X-PAYMENT-RESPONSE
	SettlementPresent bool
	Settlement        *types.SettlementResponse
	SettlementErr     error
}

// New builds a report from a response's status, headers and body
func New(status int, header http.Header, body []byte) *Report {
	r := &Report{
		StatusCode: status,
		Headers:    displayHeaders(header),
		Body:       formatBody(body),
		Outcome:    OutcomeFor(status),
	}

	_, r.SettlementPresent = header[http.CanonicalHeaderKey(types.HeaderPaymentResponse)]
	if r.SettlementPresent && r.Outcome != OutcomeNotProcessed {
		r.Settlement, r.SettlementErr = types.DecodeSettlementResponse(header.Get(types.HeaderPaymentResponse))
	}
	return r
}

// Render writes the report below the "Response Status" line
func (r *Report) Render(w io.Writer, style Style) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "📋 Response Headers:")
	for _, h := range r.Headers {
		fmt.Fprintf(w, "   %s: %s\n", h.Name, h.Value)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "📦 Response Body:")
	fmt.Fprintln(w, r.Body)

	fmt.Fprintln(w)
	fmt.Fprintln(w, Rule)
	fmt.Fprintln(w, "X-PAYMENT Header Verification:")
	fmt.Fprintln(w, Rule)
	r.renderOutcome(w, style)

	// a 402 never confirms settlement
	if r.Outcome == OutcomeNotProcessed && r.SettlementPresent {
		return
	}
	r.renderSettlement(w, style)
}

func (r *Report) renderOutcome(w io.Writer, style Style) {
	switch r.Outcome {
	case OutcomeVerified:
		fmt.Fprintln(w, "✅ Payment verified successfully!")
		fmt.Fprintln(w, "   (the paying client handled the payment flow automatically)")
		if style == StyleRequest {
			fmt.Fprintln(w, "   - Received 402 Payment Required")
			fmt.Fprintln(w, "   - Generated payment authorization")
			fmt.Fprintln(w, "   - Sent request with X-PAYMENT header")
			fmt.Fprintln(w, "   - Received 200 OK with function result")
		}
	case OutcomeNotProcessed:
		fmt.Fprintln(w, "⚠️  Received 402 Payment Required")
		if style == StyleRequest {
			fmt.Fprintln(w, "   This means payment was not processed correctly")
			fmt.Fprintln(w, "   Check payment requirements and wallet balance")
		} else {
			fmt.Fprintln(w, "   Payment was not processed correctly")
		}
	default:
		fmt.Fprintf(w, "⚠️  Unexpected status code: %d\n", r.StatusCode)
	}
}

func (r *Report) renderSettlement(w io.Writer, style Style) {
	fmt.Fprintln(w)
	switch {
	case r.SettlementErr != nil:
		fmt.Fprintf(w, "❌ Could not decode X-Payment-Response: %v\n", r.SettlementErr)
	case r.Settlement != nil:
		fmt.Fprintln(w, "✅ Payment Settlement Confirmed:")
		fmt.Fprintf(w, "   Transaction: %s\n", orNA(r.Settlement.Transaction))
		fmt.Fprintf(w, "   Network: %s\n", orNA(string(r.Settlement.Network)))
		fmt.Fprintf(w, "   Payer: %s\n", orNA(r.Settlement.Payer))
	default:
		fmt.Fprintln(w, "⚠️  No X-Payment-Response header")
		if style == StyleRequest {
			fmt.Fprintln(w, "   Payment was verified but settlement header not present")
			fmt.Fprintln(w, "   (This is normal if settlement failed but verification passed)")
		} else {
			fmt.Fprintln(w, "   (Payment verified but settlement header not present)")
		}
	}
}

// displayHeaders keeps payment and x- headers, sorted by name
func displayHeaders(header http.Header) []Header {
	var out []Header
	for name, values := range header {
		lower := strings.ToLower(name)
		if !strings.Contains(lower, "payment") && !strings.HasPrefix(lower, "x-") {
			continue
		}
		out = append(out, Header{Name: name, Value: truncate(strings.Join(values, ", "), maxHeaderValue, "...")})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// formatBody pretty-prints JSON if valid, otherwise returns a prefix of the text
func formatBody(body []byte) string {
	if trimmed := bytes.TrimSpace(body); json.Valid(trimmed) {
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, trimmed, "", "  "); err == nil {
			return pretty.String()
		}
	}
	return truncate(string(body), maxRawBody, "")
}

func truncate(s string, n int, suffix string) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + suffix
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
