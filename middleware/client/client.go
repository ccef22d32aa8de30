package client

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/x402-rs/x402-client-go/pkg/chain/evm"
	"github.com/x402-rs/x402-client-go/pkg/types"
)

// defaultValidity is used when a requirement does not state maxTimeoutSeconds
const defaultValidity = time.Hour

// clockSkew backdates validAfter
const clockSkew = 60 * time.Second

// Filter narrows the requirements a Selector may choose from. Zero values match anything.
type Filter struct {
	Network  types.Network
	Scheme   types.Scheme
	MaxValue *big.Int
}

// Selector picks the requirement to pay from the options a server advertises
type Selector func(accepts []types.PaymentRequirements, filter Filter) (types.PaymentRequirements, error)

// DefaultSelector returns the first requirement, in server order, that uses a
// scheme this client can pay and passes every filter that is set.
func DefaultSelector(accepts []types.PaymentRequirements, filter Filter) (types.PaymentRequirements, error) {
	for _, req := range accepts {
		if req.Scheme != types.SchemeExact {
			continue
		}
		if filter.Scheme != "" && req.Scheme != filter.Scheme {
			continue
		}
		if filter.Network != "" && req.Network != filter.Network {
			continue
		}
		if filter.MaxValue != nil {
			amount, ok := new(big.Int).SetString(req.MaxAmountRequired, 10)
			if !ok || amount.Cmp(filter.MaxValue) > 0 {
				continue
			}
		}
		return req, nil
	}
	return types.PaymentRequirements{}, types.NewNoMatchingRequirementsError()
}

// Option configures a PayingClient
type Option func(*PayingClient)

// WithSelector replaces DefaultSelector
func WithSelector(selector Selector) Option {
	return func(c *PayingClient) {
		c.selector = selector
	}
}

// WithMaxValue caps the amount, in the asset's smallest unit, the client will authorize
func WithMaxValue(maxValue *big.Int) Option {
	return func(c *PayingClient) {
		c.maxValue = maxValue
	}
}

// WithTransport sets the underlying transport; http.DefaultTransport otherwise
func WithTransport(rt http.RoundTripper) Option {
	return func(c *PayingClient) {
		c.base = rt
	}
}

// WithClock overrides the time source used for authorization windows
func WithClock(now func() time.Time) Option {
	return func(c *PayingClient) {
		c.now = now
	}
}

// PayingClient is an http.RoundTripper that automatically handles x402 payments.
// A 402 response is answered once with a signed X-PAYMENT header; whatever the
// server returns to that retry is handed back to the caller unchanged.
type PayingClient struct {
	account  *evm.Account
	base     http.RoundTripper
	selector Selector
	maxValue *big.Int
	now      func() time.Time
}

var _ http.RoundTripper = (*PayingClient)(nil)

// NewPayingClient creates a new client with payment capabilities
func NewPayingClient(privateKeyHex string, opts ...Option) (*PayingClient, error) {
	account, err := evm.NewAccount(privateKeyHex)
	if err != nil {
		return nil, err
	}

	c := &PayingClient{
		account:  account,
		base:     http.DefaultTransport,
		selector: DefaultSelector,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Address returns the address payments are signed from
func (c *PayingClient) Address() common.Address {
	return c.account.Address()
}

// HTTPClient returns an http.Client that pays through this client
func (c *PayingClient) HTTPClient() *http.Client {
	return &http.Client{Transport: c}
}

// Get performs a GET request with automatic payment handling
func (c *PayingClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.HTTPClient().Do(req)
}

// CloseIdleConnections releases idle connections of the underlying transport
func (c *PayingClient) CloseIdleConnections() {
	type closeIdler interface {
		CloseIdleConnections()
	}
	if ci, ok := c.base.(closeIdler); ok {
		ci.CloseIdleConnections()
	}
}

// RoundTrip executes an HTTP request with automatic payment handling
func (c *PayingClient) RoundTrip(req *http.Request) (*http.Response, error) {
	// First, try the request without payment
	resp, err := c.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	// Not a challenge, or a challenge to a request that already paid
	if resp.StatusCode != http.StatusPaymentRequired || req.Header.Get(types.HeaderPayment) != "" {
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read 402 response: %w", err)
	}

	required, err := types.ParsePaymentRequired(body, resp.Header.Get(types.HeaderPaymentRequired))
	if err != nil {
		return nil, fmt.Errorf("failed to parse payment requirements: %w", err)
	}
	slog.DebugContext(req.Context(), "payment required",
		"url", req.URL.String(), "options", len(required.Accepts), "reason", required.Error)

	selected, err := c.selectRequirements(required.Accepts)
	if err != nil {
		return nil, fmt.Errorf("failed to select payment requirements: %w", err)
	}

	header, err := c.createPaymentHeader(&selected, required.X402Version)
	if err != nil {
		return nil, fmt.Errorf("failed to generate payment: %w", err)
	}
	slog.DebugContext(req.Context(), "retrying with payment",
		"network", selected.Network, "amount", selected.MaxAmountRequired, "pay_to", selected.PayTo)

	retryReq := req.Clone(req.Context())
	if req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return nil, fmt.Errorf("cannot replay request body for payment retry")
		}
		retryBody, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to replay request body: %w", err)
		}
		retryReq.Body = retryBody
	}
	retryReq.Header.Set(types.HeaderPayment, header)
	retryReq.Header.Set("Access-Control-Expose-Headers", types.HeaderPaymentResponse)

	// Execute with payment
	return c.base.RoundTrip(retryReq)
}

// selectRequirements applies the selector and enforces the client's ceiling
func (c *PayingClient) selectRequirements(accepts []types.PaymentRequirements) (types.PaymentRequirements, error) {
	selected, err := c.selector(accepts, Filter{MaxValue: c.maxValue})
	if err != nil {
		return types.PaymentRequirements{}, err
	}

	if c.maxValue != nil {
		amount, ok := new(big.Int).SetString(selected.MaxAmountRequired, 10)
		if !ok {
			return types.PaymentRequirements{}, types.NewDecodingError(
				fmt.Sprintf("invalid maxAmountRequired %q", selected.MaxAmountRequired))
		}
		if amount.Cmp(c.maxValue) > 0 {
			return types.PaymentRequirements{}, types.NewAmountExceededError(amount.String(), c.maxValue.String())
		}
	}
	return selected, nil
}

// createPaymentHeader signs an exact-scheme authorization for the requirements
func (c *PayingClient) createPaymentHeader(requirements *types.PaymentRequirements, x402Version int) (string, error) {
	// Only support EVM for now
	if !requirements.Network.IsEVM() {
		return "", types.NewUnsupportedNetworkError(requirements.Network)
	}

	domain, err := evm.DomainFor(requirements)
	if err != nil {
		return "", err
	}

	if !common.IsHexAddress(requirements.PayTo) {
		return "", types.NewDecodingError(fmt.Sprintf("invalid payTo address %q", requirements.PayTo))
	}

	// Generate nonce
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	validity := defaultValidity
	if requirements.MaxTimeoutSeconds > 0 {
		validity = time.Duration(requirements.MaxTimeoutSeconds) * time.Second
	}
	now := c.now()

	auth := types.ExactEvmPayloadAuthorization{
		From:        c.account.Address(),
		To:          common.HexToAddress(requirements.PayTo),
		Value:       requirements.MaxAmountRequired,
		ValidAfter:  strconv.FormatInt(now.Add(-clockSkew).Unix(), 10),
		ValidBefore: strconv.FormatInt(now.Add(validity).Unix(), 10),
		Nonce:       hexutil.Encode(nonce),
	}

	signature, err := c.account.SignTransferAuthorization(&auth, domain)
	if err != nil {
		return "", fmt.Errorf("failed to sign: %w", err)
	}

	if x402Version == 0 {
		x402Version = types.X402Version
	}
	return types.EncodePaymentHeader(&types.PaymentPayload{
		X402Version: x402Version,
		Scheme:      requirements.Scheme,
		Network:     requirements.Network,
		Payload: types.ExactEvmPayload{
			Signature:     signature,
			Authorization: auth,
		},
	})
}
