package network_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/x402-rs/x402-client-go/pkg/network"
	"github.com/x402-rs/x402-client-go/pkg/types"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"0.10", 100000},
		{"0.3", 300000},
		{"1", 1000000},
		{"0.0000019", 1},
	}
	for _, c := range cases {
		got, err := network.ParseAmount(c.in, network.USDCDecimals)
		require.NoError(t, err, c.in)
		require.Equal(t, big.NewInt(c.want), got, c.in)
	}

	_, err := network.ParseAmount("ten", network.USDCDecimals)
	require.Error(t, err)
	_, err = network.ParseAmount("-1", network.USDCDecimals)
	require.Error(t, err)
}

func TestFormatAmount(t *testing.T) {
	require.Equal(t, "1.500000", network.FormatAmount(big.NewInt(1_500_000), network.USDCDecimals))
	require.Equal(t, "0.000001", network.FormatAmount(big.NewInt(1), network.USDCDecimals))
	require.Equal(t, "0", network.FormatAmount(nil, network.USDCDecimals))
}

func TestChainIDFor(t *testing.T) {
	id, err := network.ChainIDFor(types.NetworkBase)
	require.NoError(t, err)
	require.Equal(t, int64(8453), id.Int64())

	_, err = network.ChainIDFor(types.NetworkSolana)
	require.Error(t, err)

	_, err = network.ChainIDFor("made-up")
	require.Error(t, err)
}
