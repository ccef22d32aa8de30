package evm_test

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"github.com/x402-rs/x402-client-go/pkg/chain/evm"
	x402types "github.com/x402-rs/x402-client-go/pkg/types"
)

// Well-known development key (first Hardhat/Anvil account).
const devKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestNewAccount(t *testing.T) {
	account, err := evm.NewAccount(devKey)
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), account.Address())

	// prefix is optional
	again, err := evm.NewAccount(devKey[2:])
	require.NoError(t, err)
	require.Equal(t, account.Address(), again.Address())

	_, err = evm.NewAccount("not-a-key")
	require.Error(t, err)
}

func TestSignTransferAuthorization_Recovers(t *testing.T) {
	account, err := evm.NewAccount(devKey)
	require.NoError(t, err)

	auth := &x402types.ExactEvmPayloadAuthorization{
		From:        account.Address(),
		To:          common.HexToAddress("0x209693Bc6afc0C5328bA36FaF03C514EF312287C"),
		Value:       "10000",
		ValidAfter:  "1700000000",
		ValidBefore: "1700000600",
		Nonce:       "0x" + fmt.Sprintf("%064x", 42),
	}
	domain := evm.Domain{
		Name:              "USD Coin",
		Version:           "2",
		ChainID:           big.NewInt(8453),
		VerifyingContract: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
	}

	sig, err := account.SignTransferAuthorization(auth, domain)
	require.NoError(t, err)
	require.Len(t, sig, 2+65*2)

	signer, err := evm.RecoverAuthorizationSigner(auth, domain, sig)
	require.NoError(t, err)
	require.Equal(t, account.Address(), signer)

	// A different domain must not recover the same signer.
	domain.ChainID = big.NewInt(84532)
	other, err := evm.RecoverAuthorizationSigner(auth, domain, sig)
	require.NoError(t, err)
	require.NotEqual(t, account.Address(), other)
}

func TestTransferAuthorizationHash_RequiresChainID(t *testing.T) {
	_, err := evm.TransferAuthorizationHash(&x402types.ExactEvmPayloadAuthorization{}, evm.Domain{})
	require.Error(t, err)
}

func TestBalanceReader_TokenBalance(t *testing.T) {
	var gotMethod string
	rpc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotMethod = req.Method

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  fmt.Sprintf("0x%064x", 1_500_000),
		})
	}))
	defer rpc.Close()

	ctx := context.Background()
	reader, err := evm.NewBalanceReader(ctx, rpc.URL)
	require.NoError(t, err)
	defer reader.Close()

	balance, err := reader.TokenBalance(ctx,
		common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
		common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"))
	require.NoError(t, err)
	require.Equal(t, "eth_call", gotMethod)
	require.Equal(t, big.NewInt(1_500_000), balance)
}

func TestDomainFor(t *testing.T) {
	t.Run("known deployment", func(t *testing.T) {
		domain, err := evm.DomainFor(&x402types.PaymentRequirements{Network: x402types.NetworkBase})
		require.NoError(t, err)
		require.Equal(t, "USD Coin", domain.Name)
		require.Equal(t, "2", domain.Version)
		require.Equal(t, big.NewInt(8453), domain.ChainID)
		require.True(t, common.IsHexAddress(domain.VerifyingContract))
	})

	t.Run("extra wins", func(t *testing.T) {
		domain, err := evm.DomainFor(&x402types.PaymentRequirements{
			Network: x402types.NetworkBaseSepolia,
			Asset:   "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
			Extra:   map[string]any{"name": "Test Token", "version": "7"},
		})
		require.NoError(t, err)
		require.Equal(t, "Test Token", domain.Name)
		require.Equal(t, "7", domain.Version)
		require.Equal(t, "0x036CbD53842c5426634e7929541eC2318f3dCF7e", domain.VerifyingContract)
	})

	t.Run("non-evm network", func(t *testing.T) {
		_, err := evm.DomainFor(&x402types.PaymentRequirements{Network: x402types.NetworkSolana})
		require.Error(t, err)
	})
}

func TestUsedNonces(t *testing.T) {
	nonces := evm.NewUsedNonces()
	from := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	now := time.Unix(1_700_000_000, 0)

	require.True(t, nonces.Claim(from, "0xAB", now.Add(time.Minute), now))
	require.False(t, nonces.Claim(from, "0xab", now.Add(time.Minute), now))
	require.True(t, nonces.Claim(common.HexToAddress("0x01"), "0xab", now.Add(time.Minute), now))
	require.Equal(t, 2, nonces.Len())

	// expired authorizations are forgotten
	later := now.Add(2 * time.Minute)
	require.True(t, nonces.Claim(from, "0xab", later.Add(time.Minute), later))
	require.Equal(t, 1, nonces.Len())
}
