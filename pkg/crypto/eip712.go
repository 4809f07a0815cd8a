package crypto

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// EIP712Domain separates signatures of one venue from any other chain or
// contract.
type EIP712Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// DefaultDomain is the venue's domain on chainID with exchange as the
// verifying contract.
func DefaultDomain(chainID int64, exchange common.Address) EIP712Domain {
	return EIP712Domain{
		Name:              "CoboltBLU Exchange",
		Version:           "1",
		ChainID:           big.NewInt(chainID),
		VerifyingContract: exchange,
	}
}

var domainType = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

// TypedMessage is one struct to be signed: its type name, field layout and
// values (addresses as hex strings, integers as decimal strings).
type TypedMessage struct {
	PrimaryType string
	Fields      []apitypes.Type
	Message     apitypes.TypedDataMessage
}

// EIP712Signer hashes typed messages under a fixed domain.
type EIP712Signer struct {
	domain EIP712Domain
}

func NewEIP712Signer(domain EIP712Domain) *EIP712Signer {
	return &EIP712Signer{domain: domain}
}

func (e *EIP712Signer) Domain() EIP712Domain { return e.domain }

func (e *EIP712Signer) typedData(m TypedMessage) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainType,
			m.PrimaryType:  m.Fields,
		},
		PrimaryType: m.PrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              e.domain.Name,
			Version:           e.domain.Version,
			ChainId:           (*math.HexOrDecimal256)(e.domain.ChainID),
			VerifyingContract: e.domain.VerifyingContract.Hex(),
		},
		Message: m.Message,
	}
}

// Hash returns keccak256("\x19\x01" || domainSeparator || hashStruct(message)).
func (e *EIP712Signer) Hash(m TypedMessage) ([]byte, error) {
	td := e.typedData(m)
	domainSeparator, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}
	structHash, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash %s: %w", m.PrimaryType, err)
	}
	raw := make([]byte, 0, 2+len(domainSeparator)+len(structHash))
	raw = append(raw, 0x19, 0x01)
	raw = append(raw, domainSeparator...)
	raw = append(raw, structHash...)
	return crypto.Keccak256(raw), nil
}

// Sign hashes m and signs the digest.
func (e *EIP712Signer) Sign(signer *Signer, m TypedMessage) ([]byte, error) {
	hash, err := e.Hash(m)
	if err != nil {
		return nil, err
	}
	return signer.Sign(hash)
}

// Recover returns the address that signed m.
func (e *EIP712Signer) Recover(m TypedMessage, signature []byte) (common.Address, error) {
	hash, err := e.Hash(m)
	if err != nil {
		return common.Address{}, err
	}
	return RecoverAddress(hash, signature)
}

// JSON renders m in the eth_signTypedData_v4 format wallets accept.
func (e *EIP712Signer) JSON(m TypedMessage) (string, error) {
	b, err := json.MarshalIndent(e.typedData(m), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal typed data: %w", err)
	}
	return string(b), nil
}
