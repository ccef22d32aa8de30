package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// BalanceReader queries ERC-20 balances over JSON-RPC
type BalanceReader struct {
	client   *ethclient.Client
	erc20ABI abi.ABI
}

// NewBalanceReader connects to an EVM JSON-RPC endpoint
func NewBalanceReader(ctx context.Context, rpcURL string) (*BalanceReader, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}

	erc20ABI, err := loadERC20ABI()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to load ERC-20 ABI: %w", err)
	}

	return &BalanceReader{
		client:   client,
		erc20ABI: erc20ABI,
	}, nil
}

// TokenBalance queries the token balance of an address
func (r *BalanceReader) TokenBalance(ctx context.Context, token, account common.Address) (*big.Int, error) {
	// Pack balanceOf call
	data, err := r.erc20ABI.Pack("balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf: %w", err)
	}

	msg := ethereum.CallMsg{
		To:   &token,
		Data: data,
	}
	result, err := r.client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("balanceOf call failed: %w", err)
	}

	var balance *big.Int
	err = r.erc20ABI.UnpackIntoInterface(&balance, "balanceOf", result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack balanceOf result: %w", err)
	}

	return balance, nil
}

// Close releases the RPC connection
func (r *BalanceReader) Close() {
	r.client.Close()
}

func loadERC20ABI() (abi.ABI, error) {
	const erc20ABIJSON = `[{"inputs":[{"internalType":"address","name":"account","type":"address"}],"name":"balanceOf","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`
	return abi.JSON(strings.NewReader(erc20ABIJSON))
}
