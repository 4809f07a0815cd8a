package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer holds a secp256k1 key and signs transaction digests with it.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

func newSigner(key *ecdsa.PrivateKey) *Signer {
	return &Signer{privateKey: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

// GenerateKey creates a new random key.
func GenerateKey() (*Signer, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return newSigner(key), nil
}

// FromPrivateKeyHex loads a key from 64 hex chars, with or without 0x.
func FromPrivateKeyHex(hexKey string) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return newSigner(key), nil
}

// DevSigner returns the i-th well-known development account. Its key is
// derived from a public string: never fund it anywhere that matters.
func DevSigner(i int) *Signer {
	seed := crypto.Keccak256([]byte(fmt.Sprintf("coboltblu/dev/%d", i)))
	key, err := crypto.ToECDSA(seed)
	if err != nil {
		panic(fmt.Sprintf("dev key %d: %v", i, err))
	}
	return newSigner(key)
}

func (s *Signer) Address() common.Address { return s.address }

// PrivateKeyHex returns the key without 0x prefix. Keep it out of logs.
func (s *Signer) PrivateKeyHex() string {
	return fmt.Sprintf("%x", crypto.FromECDSA(s.privateKey))
}

// Sign signs a 32-byte digest. The signature is [R || S || V] with V in {0,1}.
func (s *Signer) Sign(hash []byte) ([]byte, error) {
	if len(hash) != 32 {
		return nil, fmt.Errorf("hash must be 32 bytes, got %d", len(hash))
	}
	sig, err := crypto.Sign(hash, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	return sig, nil
}

// RecoverAddress returns the address whose key produced signature over hash.
// A V of 27/28 (wallet style) is accepted as well as 0/1.
func RecoverAddress(hash, signature []byte) (common.Address, error) {
	if len(signature) != 65 {
		return common.Address{}, fmt.Errorf("invalid signature length: %d", len(signature))
	}
	if len(hash) != 32 {
		return common.Address{}, fmt.Errorf("invalid hash length: %d", len(hash))
	}
	sig := append([]byte(nil), signature...)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifySignature reports whether address signed hash.
func VerifySignature(address common.Address, hash, signature []byte) bool {
	recovered, err := RecoverAddress(hash, signature)
	return err == nil && recovered == address
}
