package evm

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	x402types "github.com/x402-rs/x402-client-go/pkg/types"
)

// Account is a local EVM account backed by a raw secp256k1 private key
type Account struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewAccount parses a hex private key, with or without the 0x prefix
func NewAccount(privateKeyHex string) (*Account, error) {
	privateKeyHex = strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	publicKey := privateKey.Public()
	publicKeyECDSA, ok := publicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("error casting public key to ECDSA")
	}

	return &Account{
		key:     privateKey,
		address: crypto.PubkeyToAddress(*publicKeyECDSA),
	}, nil
}

// Address returns the account's checksummed address
func (a *Account) Address() common.Address {
	return a.address
}

// SignTransferAuthorization signs an EIP-3009 authorization and returns the
// 0x-prefixed 65-byte signature with V in {27, 28}
func (a *Account) SignTransferAuthorization(auth *x402types.ExactEvmPayloadAuthorization, domain Domain) (string, error) {
	hash, err := TransferAuthorizationHash(auth, domain)
	if err != nil {
		return "", err
	}

	signature, err := crypto.Sign(hash.Bytes(), a.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign: %w", err)
	}

	// Adjust V value
	if signature[64] < 27 {
		signature[64] += 27
	}

	return hexutil.Encode(signature), nil
}
