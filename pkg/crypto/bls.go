package crypto

import (
	"fmt"

	bls "github.com/cloudflare/circl/sign/bls"
)

// Node keys sign gossip envelopes so followers can tell which node vouched
// for a stretch of the event log.

type scheme = bls.KeyG1SigG2

type BLSPubKey = bls.PublicKey[scheme]

type BLSSigner struct {
	sk *bls.PrivateKey[scheme]
	pk *BLSPubKey
}

// NewBLSSignerFromSeed derives a node key. The seed must be at least 32 bytes.
func NewBLSSignerFromSeed(seed []byte) (*BLSSigner, error) {
	sk, err := bls.KeyGen[scheme](seed, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("bls keygen: %w", err)
	}
	return &BLSSigner{sk: sk, pk: sk.PublicKey()}, nil
}

func (s *BLSSigner) Pubkey() *BLSPubKey { return s.pk }

// PubkeyBytes is the compressed public key carried in envelopes.
func (s *BLSSigner) PubkeyBytes() []byte {
	b, _ := s.pk.MarshalBinary()
	return b
}

func (s *BLSSigner) Sign(msg []byte) []byte {
	return bls.Sign(s.sk, msg)
}

// ParseBLSPubKey decodes PubkeyBytes output.
func ParseBLSPubKey(b []byte) (*BLSPubKey, error) {
	pk := new(BLSPubKey)
	if err := pk.UnmarshalBinary(b); err != nil {
		return nil, fmt.Errorf("bls public key: %w", err)
	}
	return pk, nil
}

func VerifyBLS(pk *BLSPubKey, sig, msg []byte) bool {
	return bls.Verify(pk, msg, bls.Signature(sig))
}
