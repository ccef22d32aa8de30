package types

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// X402Version is the protocol version spoken by this client
const X402Version = 1

// Header names used by the x402 handshake
const (
	HeaderPayment         = "X-PAYMENT"
	HeaderPaymentResponse = "X-PAYMENT-RESPONSE"
	// HeaderPaymentRequired is the legacy header some servers use for requirements
	HeaderPaymentRequired = "X-Payment-Required"
)

// Scheme represents the payment scheme
type Scheme string

const (
	SchemeExact Scheme = "exact"
)

// Network represents supported blockchain networks
type Network string

const (
	NetworkBaseSepolia   Network = "base-sepolia"
	NetworkBase          Network = "base"
	NetworkAvalancheFuji Network = "avalanche-fuji"
	NetworkAvalanche     Network = "avalanche"
	NetworkPolygonAmoy   Network = "polygon-amoy"
	NetworkPolygon       Network = "polygon"
	NetworkSei           Network = "sei"
	NetworkSeiTestnet    Network = "sei-testnet"
	NetworkXDC           Network = "xdc"
	NetworkSolana        Network = "solana"
	NetworkSolanaDevnet  Network = "solana-devnet"
)

// PaymentRequirements is one payment option advertised by a resource server
type PaymentRequirements struct {
	Scheme            Scheme          `json:"scheme"`
	Network           Network         `json:"network"`
	MaxAmountRequired string          `json:"maxAmountRequired"`
	Resource          string          `json:"resource"`
	Description       string          `json:"description"`
	MimeType          string          `json:"mimeType"`
	OutputSchema      json.RawMessage `json:"outputSchema,omitempty"`
	PayTo             string          `json:"payTo"`
	MaxTimeoutSeconds int             `json:"maxTimeoutSeconds"`
	Asset             string          `json:"asset"`
	Extra             map[string]any  `json:"extra,omitempty"`
}

// ExtraString returns a string field from Extra, or "" when absent
func (r *PaymentRequirements) ExtraString(key string) string {
	if r.Extra == nil {
		return ""
	}
	s, _ := r.Extra[key].(string)
	return s
}

// PaymentRequiredResponse is the body of a 402 Payment Required response
type PaymentRequiredResponse struct {
	X402Version int                   `json:"x402Version"`
	Error       string                `json:"error,omitempty"`
	Accepts     []PaymentRequirements `json:"accepts"`
}

// ExactEvmPayloadAuthorization represents EIP-3009 transfer authorization data
type ExactEvmPayloadAuthorization struct {
	From        common.Address `json:"from"`
	To          common.Address `json:"to"`
	Value       string         `json:"value"`
	ValidAfter  string         `json:"validAfter"`
	ValidBefore string         `json:"validBefore"`
	Nonce       string         `json:"nonce"` // hex-encoded
}

// ExactEvmPayload contains the EVM payment payload
type ExactEvmPayload struct {
	Signature     string                       `json:"signature"` // hex-encoded
	Authorization ExactEvmPayloadAuthorization `json:"authorization"`
}

// PaymentPayload is the decoded content of the X-PAYMENT header
type PaymentPayload struct {
	X402Version int             `json:"x402Version"`
	Scheme      Scheme          `json:"scheme"`
	Network     Network         `json:"network"`
	Payload     ExactEvmPayload `json:"payload"`
}

// EncodePaymentHeader serializes a payload into the X-PAYMENT header value
func EncodePaymentHeader(p *PaymentPayload) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodePaymentHeader parses an X-PAYMENT header value
func DecodePaymentHeader(header string) (*PaymentPayload, error) {
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, NewDecodingError(fmt.Sprintf("payment header is not base64: %v", err))
	}
	var p PaymentPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, NewDecodingError(fmt.Sprintf("payment header is not a payload: %v", err))
	}
	return &p, nil
}

// SettlementResponse is the decoded content of the X-PAYMENT-RESPONSE header
type SettlementResponse struct {
	Success     bool    `json:"success"`
	ErrorReason string  `json:"errorReason,omitempty"`
	Transaction string  `json:"transaction,omitempty"`
	Network     Network `json:"network,omitempty"`
	Payer       string  `json:"payer,omitempty"`
}

// EncodeSettlementResponse serializes a settlement into its header value
func EncodeSettlementResponse(s *SettlementResponse) (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to marshal settlement response: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeSettlementResponse parses an X-PAYMENT-RESPONSE header value
func DecodeSettlementResponse(header string) (*SettlementResponse, error) {
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, NewDecodingError(fmt.Sprintf("settlement header is not base64: %v", err))
	}
	var s SettlementResponse
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, NewDecodingError(fmt.Sprintf("settlement header is not JSON: %v", err))
	}
	return &s, nil
}

// Error types

// PaymentError represents errors raised while negotiating a payment
type PaymentError struct {
	Type    string
	Message string
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Error type names
const (
	ErrTypeUnsupportedNetwork = "UnsupportedNetwork"
	ErrTypeNoMatchingOption   = "NoMatchingRequirements"
	ErrTypeAmountExceeded     = "AmountExceeded"
	ErrTypeDecoding           = "DecodingError"
)

// Error constructors

func NewUnsupportedNetworkError(network Network) *PaymentError {
	return &PaymentError{
		Type:    ErrTypeUnsupportedNetwork,
		Message: fmt.Sprintf("network %q is not supported by this client", network),
	}
}

func NewNoMatchingRequirementsError() *PaymentError {
	return &PaymentError{
		Type:    ErrTypeNoMatchingOption,
		Message: "no supported payment requirements found",
	}
}

func NewAmountExceededError(required, limit string) *PaymentError {
	return &PaymentError{
		Type:    ErrTypeAmountExceeded,
		Message: fmt.Sprintf("required amount %s exceeds maximum %s", required, limit),
	}
}

func NewDecodingError(message string) *PaymentError {
	return &PaymentError{
		Type:    ErrTypeDecoding,
		Message: message,
	}
}

// Helper functions

// IsEVM returns true if the network is EVM-compatible
func (n Network) IsEVM() bool {
	switch n {
	case NetworkBaseSepolia, NetworkBase, NetworkAvalancheFuji, NetworkAvalanche,
		NetworkPolygonAmoy, NetworkPolygon, NetworkSei, NetworkSeiTestnet, NetworkXDC:
		return true
	default:
		return false
	}
}
