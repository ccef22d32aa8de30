package runner

import (
	"github.com/x402-rs/x402-client-go/middleware/client"
	"github.com/x402-rs/x402-client-go/pkg/types"
)

// SelectorNetwork is the only network the runners pay on
const SelectorNetwork = types.NetworkBase

// FixedNetworkSelector ignores the caller's network filter and always asks
// the default selector for network. Scheme and max value filters pass through.
func FixedNetworkSelector(network types.Network) client.Selector {
	return func(accepts []types.PaymentRequirements, filter client.Filter) (types.PaymentRequirements, error) {
		filter.Network = network
		return client.DefaultSelector(accepts, filter)
	}
}
