package transaction

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/coboltblu/exchange/pkg/crypto"
	"github.com/coboltblu/exchange/pkg/types"
)

// Verifier authenticates signed transactions under one EIP-712 domain.
type Verifier struct {
	eip712 *crypto.EIP712Signer
}

func NewVerifier(domain crypto.EIP712Domain) *Verifier {
	return &Verifier{eip712: crypto.NewEIP712Signer(domain)}
}

func (v *Verifier) Domain() crypto.EIP712Domain { return v.eip712.Domain() }

// Verify decodes tx and checks that its signature recovers to the payload's
// signer. Structural problems wrap ErrMalformedTransaction; a signature by
// anyone else wraps ErrInvalidSignature.
func (v *Verifier) Verify(tx *SignedTransaction) (Payload, error) {
	p, err := Decode(tx)
	if err != nil {
		return nil, err
	}
	sig, err := decodeSignature(tx.Signature)
	if err != nil {
		return nil, err
	}
	signer, err := v.eip712.Recover(p.TypedMessage(), sig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidSignature, err)
	}
	if signer != p.From() {
		return nil, fmt.Errorf("%w: signed by %s, payload signer is %s", types.ErrInvalidSignature, signer.Hex(), p.From().Hex())
	}
	return p, nil
}

// Sign builds a signed transaction for p.
func Sign(e *crypto.EIP712Signer, signer *crypto.Signer, p Payload) (*SignedTransaction, error) {
	if p.From() != signer.Address() {
		return nil, fmt.Errorf("payload signer %s does not match key %s", p.From().Hex(), signer.Address().Hex())
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	sig, err := e.Sign(signer, p.TypedMessage())
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return &SignedTransaction{
		Type:      p.Type(),
		Payload:   body,
		Signature: "0x" + hex.EncodeToString(sig),
	}, nil
}

// decodeSignature decodes a hex signature with or without 0x prefix.
func decodeSignature(sig string) ([]byte, error) {
	if sig == "" {
		return nil, fmt.Errorf("%w: missing signature", types.ErrMalformedTransaction)
	}
	b, err := hex.DecodeString(strings.TrimPrefix(sig, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid hex signature: %v", types.ErrMalformedTransaction, err)
	}
	if len(b) != 65 {
		return nil, fmt.Errorf("%w: signature must be 65 bytes, got %d", types.ErrMalformedTransaction, len(b))
	}
	return b, nil
}
