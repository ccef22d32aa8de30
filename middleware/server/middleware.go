// Package server provides a minimal x402 resource server. It verifies the
// X-PAYMENT header locally instead of calling a facilitator and never settles
// on-chain, which makes it suitable for exercising paying clients against a
// local httptest server.
package server

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/x402-rs/x402-client-go/pkg/chain/evm"
	"github.com/x402-rs/x402-client-go/pkg/types"
)

// Paywall protects handlers with x402 payment requirements
type Paywall struct {
	accepts []types.PaymentRequirements

	// OmitSettlement suppresses the X-PAYMENT-RESPONSE header on paid responses
	OmitSettlement bool
	// RejectReason, when set, answers every payment with a 402 carrying this reason
	RejectReason string

	nonces *evm.UsedNonces

	mu       sync.Mutex
	payments []*types.PaymentPayload
	attempts int
}

// NewPaywall creates a paywall advertising the given requirements in order
func NewPaywall(accepts ...types.PaymentRequirements) *Paywall {
	return &Paywall{accepts: accepts, nonces: evm.NewUsedNonces()}
}

// Payments returns the verified payloads received so far
func (p *Paywall) Payments() []*types.PaymentPayload {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*types.PaymentPayload(nil), p.payments...)
}

// Attempts returns how many requests reached the paywall
func (p *Paywall) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

// Protect wraps an HTTP handler with payment verification
func (p *Paywall) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.attempts++
		p.mu.Unlock()

		// Check for payment header
		paymentHeader := r.Header.Get(types.HeaderPayment)
		if paymentHeader == "" {
			p.send402(w, "X-PAYMENT header is required")
			return
		}

		payload, err := types.DecodePaymentHeader(paymentHeader)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid payment payload: %v", err), http.StatusBadRequest)
			return
		}

		requirements, err := p.verify(payload, time.Now())
		if err != nil {
			p.send402(w, err.Error())
			return
		}
		if p.RejectReason != "" {
			p.send402(w, p.RejectReason)
			return
		}

		p.mu.Lock()
		p.payments = append(p.payments, payload)
		p.mu.Unlock()

		if !p.OmitSettlement {
			settlement, err := types.EncodeSettlementResponse(&types.SettlementResponse{
				Success:     true,
				Transaction: crypto.Keccak256Hash([]byte(payload.Payload.Signature)).Hex(),
				Network:     requirements.Network,
				Payer:       payload.Payload.Authorization.From.Hex(),
			})
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set(types.HeaderPaymentResponse, settlement)
		}

		// Payment valid, call next handler
		next.ServeHTTP(w, r)
	})
}

// verify checks a payload against the advertised requirement it targets
func (p *Paywall) verify(payload *types.PaymentPayload, now time.Time) (*types.PaymentRequirements, error) {
	var requirements *types.PaymentRequirements
	for i := range p.accepts {
		if p.accepts[i].Scheme == payload.Scheme && p.accepts[i].Network == payload.Network {
			requirements = &p.accepts[i]
			break
		}
	}
	if requirements == nil {
		return nil, fmt.Errorf("no requirement for %s on %s", payload.Scheme, payload.Network)
	}

	auth := &payload.Payload.Authorization

	// Validate receiver address
	if !strings.EqualFold(requirements.PayTo, auth.To.Hex()) {
		return nil, fmt.Errorf("receiver mismatch: expected %s, got %s", requirements.PayTo, auth.To.Hex())
	}

	// Validate timing
	validAfter, err := strconv.ParseInt(auth.ValidAfter, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid validAfter: %w", err)
	}
	validBefore, err := strconv.ParseInt(auth.ValidBefore, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid validBefore: %w", err)
	}
	if now.Unix() < validAfter || now.Unix() >= validBefore {
		return nil, fmt.Errorf("authorization outside its validity window")
	}

	// Check amount sufficiency
	value, ok := new(big.Int).SetString(auth.Value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid value %q", auth.Value)
	}
	required, ok := new(big.Int).SetString(requirements.MaxAmountRequired, 10)
	if !ok {
		return nil, fmt.Errorf("invalid required amount %q", requirements.MaxAmountRequired)
	}
	if value.Cmp(required) < 0 {
		return nil, fmt.Errorf("payment amount less than required")
	}

	// Verify EIP-712 signature
	domain, err := evm.DomainFor(requirements)
	if err != nil {
		return nil, err
	}
	signer, err := evm.RecoverAuthorizationSigner(auth, domain, payload.Payload.Signature)
	if err != nil {
		return nil, fmt.Errorf("signature verification failed: %w", err)
	}
	if signer != auth.From {
		return nil, fmt.Errorf("signature verification failed: signed by %s", signer.Hex())
	}

	// Reject replayed authorizations
	if !p.nonces.Claim(auth.From, auth.Nonce, time.Unix(validBefore, 0), now) {
		return nil, fmt.Errorf("nonce already used")
	}

	return requirements, nil
}

// send402 sends a 402 Payment Required response
func (p *Paywall) send402(w http.ResponseWriter, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)

	json.NewEncoder(w).Encode(types.PaymentRequiredResponse{
		X402Version: types.X402Version,
		Error:       reason,
		Accepts:     p.accepts,
	})
}
