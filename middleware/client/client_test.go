package client_test

import (
	"context"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/x402-rs/x402-client-go/middleware/client"
	"github.com/x402-rs/x402-client-go/middleware/server"
	"github.com/x402-rs/x402-client-go/pkg/types"
)

const devKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

const payTo = "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"

func requirement(network types.Network, amount string) types.PaymentRequirements {
	return types.PaymentRequirements{
		Scheme:            types.SchemeExact,
		Network:           network,
		MaxAmountRequired: amount,
		Resource:          "https://example.test/premium",
		MimeType:          "application/json",
		PayTo:             payTo,
		MaxTimeoutSeconds: 60,
	}
}

func premium() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"secret":"The answer is 42"}`)
	})
}

func TestPayingClient_PaysChallenge(t *testing.T) {
	paywall := server.NewPaywall(
		requirement(types.NetworkPolygon, "5000"),
		requirement(types.NetworkBase, "10000"),
	)
	srv := httptest.NewServer(paywall.Protect(premium()))
	defer srv.Close()

	payer, err := client.NewPayingClient(devKey)
	require.NoError(t, err)

	resp, err := payer.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 2, paywall.Attempts())

	payments := paywall.Payments()
	require.Len(t, payments, 1)
	require.Equal(t, types.NetworkPolygon, payments[0].Network, "default selector takes the first option")
	require.Equal(t, payer.Address(), payments[0].Payload.Authorization.From)
	require.Equal(t, "5000", payments[0].Payload.Authorization.Value)

	settlement, err := types.DecodeSettlementResponse(resp.Header.Get(types.HeaderPaymentResponse))
	require.NoError(t, err)
	require.True(t, settlement.Success)
	require.Equal(t, payer.Address().Hex(), settlement.Payer)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func TestPayingClient_AuthorizationWindow(t *testing.T) {
	paywall := server.NewPaywall(requirement(types.NetworkBase, "10000"))
	srv := httptest.NewServer(paywall.Protect(premium()))
	defer srv.Close()

	var sent []string
	recorder := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		sent = append(sent, r.Header.Get(types.HeaderPayment))
		return http.DefaultTransport.RoundTrip(r)
	})
	now := time.Now().Truncate(time.Second)

	payer, err := client.NewPayingClient(devKey,
		client.WithTransport(recorder),
		client.WithClock(func() time.Time { return now }),
	)
	require.NoError(t, err)

	resp, err := payer.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, sent, 2)
	require.Empty(t, sent[0])
	payload, err := types.DecodePaymentHeader(sent[1])
	require.NoError(t, err)

	auth := payload.Payload.Authorization
	require.Equal(t, strconv.FormatInt(now.Add(-60*time.Second).Unix(), 10), auth.ValidAfter)
	require.Equal(t, strconv.FormatInt(now.Add(60*time.Second).Unix(), 10), auth.ValidBefore)
	require.Len(t, auth.Nonce, 66)
}

func TestPayingClient_CustomSelector(t *testing.T) {
	paywall := server.NewPaywall(
		requirement(types.NetworkPolygon, "5000"),
		requirement(types.NetworkBase, "10000"),
	)
	srv := httptest.NewServer(paywall.Protect(premium()))
	defer srv.Close()

	onlyBase := func(accepts []types.PaymentRequirements, f client.Filter) (types.PaymentRequirements, error) {
		f.Network = types.NetworkBase
		return client.DefaultSelector(accepts, f)
	}
	payer, err := client.NewPayingClient(devKey, client.WithSelector(onlyBase))
	require.NoError(t, err)

	resp, err := payer.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, types.NetworkBase, paywall.Payments()[0].Network)
}

func TestPayingClient_NoChallenge(t *testing.T) {
	var seen int
	var paid string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen++
		paid = r.Header.Get(types.HeaderPayment)
		io.WriteString(w, "free")
	}))
	defer srv.Close()

	payer, err := client.NewPayingClient(devKey)
	require.NoError(t, err)

	resp, err := payer.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "free", string(body))
	require.Equal(t, 1, seen)
	require.Empty(t, paid)
}

func TestPayingClient_RejectedPaymentIsReturned(t *testing.T) {
	paywall := server.NewPaywall(requirement(types.NetworkBase, "10000"))
	paywall.RejectReason = "insufficient funds"
	srv := httptest.NewServer(paywall.Protect(premium()))
	defer srv.Close()

	payer, err := client.NewPayingClient(devKey)
	require.NoError(t, err)

	resp, err := payer.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	require.Equal(t, 2, paywall.Attempts(), "the client pays at most once")
}

func TestPayingClient_MaxValue(t *testing.T) {
	paywall := server.NewPaywall(requirement(types.NetworkBase, "10000"))
	srv := httptest.NewServer(paywall.Protect(premium()))
	defer srv.Close()

	t.Run("filtered by default selector", func(t *testing.T) {
		payer, err := client.NewPayingClient(devKey, client.WithMaxValue(big.NewInt(9999)))
		require.NoError(t, err)

		_, err = payer.Get(context.Background(), srv.URL)
		require.Error(t, err)

		var payErr *types.PaymentError
		require.True(t, errors.As(err, &payErr))
		require.Equal(t, types.ErrTypeNoMatchingOption, payErr.Type)
	})

	t.Run("enforced after a permissive selector", func(t *testing.T) {
		first := func(accepts []types.PaymentRequirements, _ client.Filter) (types.PaymentRequirements, error) {
			return accepts[0], nil
		}
		payer, err := client.NewPayingClient(devKey,
			client.WithMaxValue(big.NewInt(9999)),
			client.WithSelector(first))
		require.NoError(t, err)

		_, err = payer.Get(context.Background(), srv.URL)
		var payErr *types.PaymentError
		require.True(t, errors.As(err, &payErr))
		require.Equal(t, types.ErrTypeAmountExceeded, payErr.Type)
	})

	require.Empty(t, paywall.Payments())
}

func TestPayingClient_UnsupportedNetwork(t *testing.T) {
	paywall := server.NewPaywall(requirement(types.NetworkSolana, "10000"))
	srv := httptest.NewServer(paywall.Protect(premium()))
	defer srv.Close()

	payer, err := client.NewPayingClient(devKey)
	require.NoError(t, err)

	_, err = payer.Get(context.Background(), srv.URL)
	var payErr *types.PaymentError
	require.True(t, errors.As(err, &payErr))
	require.Equal(t, types.ErrTypeUnsupportedNetwork, payErr.Type)
}

func TestDefaultSelector(t *testing.T) {
	accepts := []types.PaymentRequirements{
		{Scheme: "upto", Network: types.NetworkBase, MaxAmountRequired: "1"},
		requirement(types.NetworkBaseSepolia, "100"),
		requirement(types.NetworkBase, "500"),
		requirement(types.NetworkBase, "200"),
	}

	cases := []struct {
		name    string
		filter  client.Filter
		want    types.Network
		amount  string
		wantErr bool
	}{
		{name: "first supported scheme", want: types.NetworkBaseSepolia, amount: "100"},
		{name: "network filter", filter: client.Filter{Network: types.NetworkBase}, want: types.NetworkBase, amount: "500"},
		{name: "max value skips expensive", filter: client.Filter{Network: types.NetworkBase, MaxValue: big.NewInt(300)}, want: types.NetworkBase, amount: "200"},
		{name: "scheme filter", filter: client.Filter{Scheme: types.SchemeExact}, want: types.NetworkBaseSepolia, amount: "100"},
		{name: "unsupported scheme filter", filter: client.Filter{Scheme: "upto"}, wantErr: true},
		{name: "nothing cheap enough", filter: client.Filter{MaxValue: big.NewInt(10)}, wantErr: true},
		{name: "unknown network", filter: client.Filter{Network: types.NetworkXDC}, wantErr: true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := client.DefaultSelector(accepts, c.filter)
			if c.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, c.want, got.Network)
			require.Equal(t, c.amount, got.MaxAmountRequired)
		})
	}

	_, err := client.DefaultSelector(nil, client.Filter{})
	require.Error(t, err)
}
