package evm

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/x402-rs/x402-client-go/pkg/network"
	x402types "github.com/x402-rs/x402-client-go/pkg/types"
)

// Domain is the EIP-712 domain of the token contract being authorized
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract string
}

// DomainFor resolves the token domain a requirement must be signed under.
// Values advertised in the requirement's extra field win over the known USDC
// deployment for the network.
func DomainFor(requirements *x402types.PaymentRequirements) (Domain, error) {
	chainID, err := network.ChainIDFor(requirements.Network)
	if err != nil {
		return Domain{}, err
	}

	domain := Domain{
		Name:              requirements.ExtraString("name"),
		Version:           requirements.ExtraString("version"),
		ChainID:           chainID,
		VerifyingContract: requirements.Asset,
	}

	if deployment, err := network.GetUSDCDeployment(requirements.Network); err == nil {
		if domain.Name == "" {
			domain.Name = deployment.DomainName
		}
		if domain.Version == "" {
			domain.Version = deployment.DomainVersion
		}
		if domain.VerifyingContract == "" {
			domain.VerifyingContract = deployment.TokenAddress.Hex()
		}
	}

	if domain.Name == "" || domain.Version == "" || !common.IsHexAddress(domain.VerifyingContract) {
		return Domain{}, x402types.NewDecodingError(
			fmt.Sprintf("incomplete EIP-712 domain for asset %q on %s", requirements.Asset, requirements.Network))
	}
	return domain, nil
}

// transferTypedData builds the EIP-3009 TransferWithAuthorization typed data
func transferTypedData(auth *x402types.ExactEvmPayloadAuthorization, domain Domain) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"TransferWithAuthorization": []apitypes.Type{
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           (*math.HexOrDecimal256)(domain.ChainID),
			VerifyingContract: domain.VerifyingContract,
		},
		Message: apitypes.TypedDataMessage{
			"from":        auth.From.Hex(),
			"to":          auth.To.Hex(),
			"value":       auth.Value,
			"validAfter":  auth.ValidAfter,
			"validBefore": auth.ValidBefore,
			"nonce":       auth.Nonce,
		},
	}
}

// TransferAuthorizationHash returns the EIP-712 digest that gets signed
func TransferAuthorizationHash(auth *x402types.ExactEvmPayloadAuthorization, domain Domain) (common.Hash, error) {
	if domain.ChainID == nil {
		return common.Hash{}, fmt.Errorf("missing chain ID in EIP-712 domain")
	}
	typedData := transferTypedData(auth, domain)

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash domain: %w", err)
	}

	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash message: %w", err)
	}

	rawData := []byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(typedDataHash)))
	return crypto.Keccak256Hash(rawData), nil
}

// RecoverAuthorizationSigner returns the address that produced signature over
// the authorization.
func RecoverAuthorizationSigner(auth *x402types.ExactEvmPayloadAuthorization, domain Domain, signature string) (common.Address, error) {
	hash, err := TransferAuthorizationHash(auth, domain)
	if err != nil {
		return common.Address{}, err
	}

	sigBytes, err := hexutil.Decode(ensureHexPrefix(signature))
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature hex: %w", err)
	}
	if len(sigBytes) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length: %d", len(sigBytes))
	}

	// Adjust V value
	if sigBytes[64] >= 27 {
		sigBytes[64] -= 27
	}

	pubKey, err := crypto.SigToPub(hash.Bytes(), sigBytes)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover pubkey: %w", err)
	}
	return crypto.PubkeyToAddress(*pubKey), nil
}

func ensureHexPrefix(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s
	}
	return "0x" + s
}
