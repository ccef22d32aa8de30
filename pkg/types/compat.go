package types

import (
	"encoding/json"
	"fmt"
)

// LegacyPaymentRequired supports the older 402 body that carried a single
// requirement under "payment_requirements" instead of an "accepts" list
type LegacyPaymentRequired struct {
	Error               string               `json:"error,omitempty"`
	PaymentRequirements *PaymentRequirements `json:"payment_requirements"`
}

// ParsePaymentRequired extracts the advertised requirements from a 402 response.
// The body is tried first in the standard format, then in the legacy format,
// and finally the legacy X-Payment-Required header is consulted.
func ParsePaymentRequired(body []byte, header string) (*PaymentRequiredResponse, error) {
	var standard PaymentRequiredResponse
	if err := json.Unmarshal(body, &standard); err == nil && len(standard.Accepts) > 0 {
		if standard.X402Version == 0 {
			standard.X402Version = X402Version
		}
		return &standard, nil
	}

	var legacy LegacyPaymentRequired
	if err := json.Unmarshal(body, &legacy); err == nil && legacy.PaymentRequirements != nil {
		return &PaymentRequiredResponse{
			X402Version: X402Version,
			Error:       legacy.Error,
			Accepts:     []PaymentRequirements{*legacy.PaymentRequirements},
		}, nil
	}

	if header != "" {
		var requirements PaymentRequirements
		if err := json.Unmarshal([]byte(header), &requirements); err == nil {
			return &PaymentRequiredResponse{
				X402Version: X402Version,
				Accepts:     []PaymentRequirements{requirements},
			}, nil
		}
	}

	return nil, NewDecodingError(fmt.Sprintf("402 response carries no payment requirements (body %d bytes)", len(body)))
}
