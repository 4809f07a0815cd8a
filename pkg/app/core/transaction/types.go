package transaction

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/holiman/uint256"

	"github.com/coboltblu/exchange/pkg/crypto"
	"github.com/coboltblu/exchange/pkg/types"
)

// TxType names a state-changing action.
type TxType string

const (
	TxTypeTransfer     TxType = "transfer"
	TxTypeApprove      TxType = "approve"
	TxTypeTransferFrom TxType = "transferFrom"
	TxTypeDeposit      TxType = "deposit"
	TxTypeWithdraw     TxType = "withdraw"
	TxTypeMakeOrder    TxType = "makeOrder"
	TxTypeCancelOrder  TxType = "cancelOrder"
	TxTypeFillOrder    TxType = "fillOrder"
)

// Known reports whether t is one of the transaction types above.
func (t TxType) Known() bool {
	switch t {
	case TxTypeTransfer, TxTypeApprove, TxTypeTransferFrom, TxTypeDeposit,
		TxTypeWithdraw, TxTypeMakeOrder, TxTypeCancelOrder, TxTypeFillOrder:
		return true
	}
	return false
}

// SignedTransaction is the wire form of every state-changing request.
//
//	{
//	  "type": "fillOrder",
//	  "payload": {"signer": "0x...", "orderId": 7, "nonce": 3},
//	  "signature": "0x..."
//	}
type SignedTransaction struct {
	Type      TxType          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"` // hex, 65 bytes
}

// Payload is the signed body of a transaction.
type Payload interface {
	Type() TxType
	From() common.Address // the identity the transaction acts for
	TxNonce() uint64
	Validate() error
	TypedMessage() crypto.TypedMessage
}

// Header is embedded by every payload.
type Header struct {
	Signer common.Address `json:"signer"`
	Nonce  uint64         `json:"nonce"`
}

func (h Header) From() common.Address { return h.Signer }
func (h Header) TxNonce() uint64      { return h.Nonce }

func (h Header) validate() error {
	if types.IsNone(h.Signer) {
		return fmt.Errorf("%w: missing signer", types.ErrMalformedTransaction)
	}
	if h.Nonce == 0 {
		return fmt.Errorf("%w: nonce must be positive", types.ErrMalformedTransaction)
	}
	return nil
}

type TransferPayload struct {
	Header
	Token  common.Address `json:"token"`
	To     common.Address `json:"to"`
	Amount *uint256.Int   `json:"amount"`
}

type ApprovePayload struct {
	Header
	Token   common.Address `json:"token"`
	Spender common.Address `json:"spender"`
	Amount  *uint256.Int   `json:"amount"`
}

type TransferFromPayload struct {
	Header
	Token  common.Address `json:"token"`
	Owner  common.Address `json:"from"`
	To     common.Address `json:"to"`
	Amount *uint256.Int   `json:"amount"`
}

// DepositPayload is also used for withdrawals.
type DepositPayload struct {
	Header
	Token  common.Address `json:"token"`
	Amount *uint256.Int   `json:"amount"`
}

type WithdrawPayload DepositPayload

type MakeOrderPayload struct {
	Header
	TokenGet   common.Address `json:"tokenGet"`
	AmountGet  *uint256.Int   `json:"amountGet"`
	TokenGive  common.Address `json:"tokenGive"`
	AmountGive *uint256.Int   `json:"amountGive"`
}

// OrderPayload is shared by cancelOrder and fillOrder.
type OrderPayload struct {
	Header
	OrderID uint64 `json:"orderId"`
}

type CancelOrderPayload OrderPayload

type FillOrderPayload OrderPayload

func (*TransferPayload) Type() TxType     { return TxTypeTransfer }
func (*ApprovePayload) Type() TxType      { return TxTypeApprove }
func (*TransferFromPayload) Type() TxType { return TxTypeTransferFrom }
func (*DepositPayload) Type() TxType      { return TxTypeDeposit }
func (*WithdrawPayload) Type() TxType     { return TxTypeWithdraw }
func (*MakeOrderPayload) Type() TxType    { return TxTypeMakeOrder }
func (*CancelOrderPayload) Type() TxType  { return TxTypeCancelOrder }
func (*FillOrderPayload) Type() TxType    { return TxTypeFillOrder }

func requireAmount(name string, a *uint256.Int) error {
	if a == nil {
		return fmt.Errorf("%w: missing %s", types.ErrMalformedTransaction, name)
	}
	return nil
}

func (p *TransferPayload) Validate() error {
	if err := p.Header.validate(); err != nil {
		return err
	}
	return requireAmount("amount", p.Amount)
}

func (p *ApprovePayload) Validate() error {
	if err := p.Header.validate(); err != nil {
		return err
	}
	return requireAmount("amount", p.Amount)
}

func (p *TransferFromPayload) Validate() error {
	if err := p.Header.validate(); err != nil {
		return err
	}
	return requireAmount("amount", p.Amount)
}

func (p *DepositPayload) Validate() error {
	if err := p.Header.validate(); err != nil {
		return err
	}
	return requireAmount("amount", p.Amount)
}

func (p *WithdrawPayload) Validate() error { return (*DepositPayload)(p).Validate() }

func (p *MakeOrderPayload) Validate() error {
	if err := p.Header.validate(); err != nil {
		return err
	}
	if err := requireAmount("amountGet", p.AmountGet); err != nil {
		return err
	}
	return requireAmount("amountGive", p.AmountGive)
}

func (p *CancelOrderPayload) Validate() error { return p.Header.validate() }
func (p *FillOrderPayload) Validate() error   { return p.Header.validate() }

// EIP-712 layouts. Field order is part of the signature.

var (
	signerField = apitypes.Type{Name: "signer", Type: "address"}
	nonceField  = apitypes.Type{Name: "nonce", Type: "uint256"}
)

func fields(middle ...apitypes.Type) []apitypes.Type {
	out := append([]apitypes.Type{signerField}, middle...)
	return append(out, nonceField)
}

func dec(a *uint256.Int) string { return types.Clone(a).Dec() }

func (h Header) message(kv ...string) apitypes.TypedDataMessage {
	m := apitypes.TypedDataMessage{
		"signer": h.Signer.Hex(),
		"nonce":  strconv.FormatUint(h.Nonce, 10),
	}
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = kv[i+1]
	}
	return m
}

func (p *TransferPayload) TypedMessage() crypto.TypedMessage {
	return crypto.TypedMessage{
		PrimaryType: "Transfer",
		Fields: fields(
			apitypes.Type{Name: "token", Type: "address"},
			apitypes.Type{Name: "to", Type: "address"},
			apitypes.Type{Name: "amount", Type: "uint256"},
		),
		Message: p.message("token", p.Token.Hex(), "to", p.To.Hex(), "amount", dec(p.Amount)),
	}
}

func (p *ApprovePayload) TypedMessage() crypto.TypedMessage {
	return crypto.TypedMessage{
		PrimaryType: "Approve",
		Fields: fields(
			apitypes.Type{Name: "token", Type: "address"},
			apitypes.Type{Name: "spender", Type: "address"},
			apitypes.Type{Name: "amount", Type: "uint256"},
		),
		Message: p.message("token", p.Token.Hex(), "spender", p.Spender.Hex(), "amount", dec(p.Amount)),
	}
}

func (p *TransferFromPayload) TypedMessage() crypto.TypedMessage {
	return crypto.TypedMessage{
		PrimaryType: "TransferFrom",
		Fields: fields(
			apitypes.Type{Name: "token", Type: "address"},
			apitypes.Type{Name: "from", Type: "address"},
			apitypes.Type{Name: "to", Type: "address"},
			apitypes.Type{Name: "amount", Type: "uint256"},
		),
		Message: p.message("token", p.Token.Hex(), "from", p.Owner.Hex(), "to", p.To.Hex(), "amount", dec(p.Amount)),
	}
}

func custodyMessage(primary string, h Header, token common.Address, amount *uint256.Int) crypto.TypedMessage {
	return crypto.TypedMessage{
		PrimaryType: primary,
		Fields: fields(
			apitypes.Type{Name: "token", Type: "address"},
			apitypes.Type{Name: "amount", Type: "uint256"},
		),
		Message: h.message("token", token.Hex(), "amount", dec(amount)),
	}
}

func (p *DepositPayload) TypedMessage() crypto.TypedMessage {
	return custodyMessage("Deposit", p.Header, p.Token, p.Amount)
}

func (p *WithdrawPayload) TypedMessage() crypto.TypedMessage {
	return custodyMessage("Withdraw", p.Header, p.Token, p.Amount)
}

func (p *MakeOrderPayload) TypedMessage() crypto.TypedMessage {
	return crypto.TypedMessage{
		PrimaryType: "MakeOrder",
		Fields: fields(
			apitypes.Type{Name: "tokenGet", Type: "address"},
			apitypes.Type{Name: "amountGet", Type: "uint256"},
			apitypes.Type{Name: "tokenGive", Type: "address"},
			apitypes.Type{Name: "amountGive", Type: "uint256"},
		),
		Message: p.message(
			"tokenGet", p.TokenGet.Hex(), "amountGet", dec(p.AmountGet),
			"tokenGive", p.TokenGive.Hex(), "amountGive", dec(p.AmountGive),
		),
	}
}

func orderMessage(primary string, h Header, id uint64) crypto.TypedMessage {
	return crypto.TypedMessage{
		PrimaryType: primary,
		Fields:      fields(apitypes.Type{Name: "orderId", Type: "uint256"}),
		Message:     h.message("orderId", strconv.FormatUint(id, 10)),
	}
}

func (p *CancelOrderPayload) TypedMessage() crypto.TypedMessage {
	return orderMessage("CancelOrder", p.Header, p.OrderID)
}

func (p *FillOrderPayload) TypedMessage() crypto.TypedMessage {
	return orderMessage("FillOrder", p.Header, p.OrderID)
}

// Decode parses the payload for tx.Type and validates its structure. All
// failures wrap types.ErrMalformedTransaction.
func Decode(tx *SignedTransaction) (Payload, error) {
	var p Payload
	switch tx.Type {
	case TxTypeTransfer:
		p = new(TransferPayload)
	case TxTypeApprove:
		p = new(ApprovePayload)
	case TxTypeTransferFrom:
		p = new(TransferFromPayload)
	case TxTypeDeposit:
		p = new(DepositPayload)
	case TxTypeWithdraw:
		p = new(WithdrawPayload)
	case TxTypeMakeOrder:
		p = new(MakeOrderPayload)
	case TxTypeCancelOrder:
		p = new(CancelOrderPayload)
	case TxTypeFillOrder:
		p = new(FillOrderPayload)
	case "":
		return nil, fmt.Errorf("%w: missing transaction type", types.ErrMalformedTransaction)
	default:
		return nil, fmt.Errorf("%w: unknown transaction type %q", types.ErrMalformedTransaction, tx.Type)
	}
	if len(tx.Payload) == 0 {
		return nil, fmt.Errorf("%w: missing payload", types.ErrMalformedTransaction)
	}
	if err := json.Unmarshal(tx.Payload, p); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrMalformedTransaction, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Deserialize parses JSON bytes into a SignedTransaction.
func Deserialize(data []byte) (*SignedTransaction, error) {
	var tx SignedTransaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrMalformedTransaction, err)
	}
	return &tx, nil
}

func (tx *SignedTransaction) Serialize() ([]byte, error) {
	return json.Marshal(tx)
}
