// Package events implements the venue's append-only event log. The log is
// also the serialization point for every state-changing operation: ledgers
// mutate state only inside Log.Update, and the events staged there become
// visible atomically with the state writes they describe.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/coboltblu/exchange/pkg/types"
)

// Kind identifies the action an event records.
type Kind uint8

const (
	KindTransfer Kind = iota + 1
	KindApproval
	KindDeposit
	KindWithdraw
	KindOrder
	KindCancel
	KindTrade
)

var kindNames = map[Kind]string{
	KindTransfer: "Transfer",
	KindApproval: "Approval",
	KindDeposit:  "Deposit",
	KindWithdraw: "Withdraw",
	KindOrder:    "Order",
	KindCancel:   "Cancel",
	KindTrade:    "Trade",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "Unknown"
}

func (k Kind) MarshalText() ([]byte, error) {
	if _, ok := kindNames[k]; !ok {
		return nil, fmt.Errorf("unknown event kind %d", k)
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	kind, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// ParseKind parses a kind name such as "Trade".
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}

// Event is one committed entry of the log. Seq, Time and Hash are assigned at
// commit; the remaining fields depend on Kind (see the constructors below).
type Event struct {
	Seq    uint64         `json:"seq"`
	Time   int64          `json:"time"` // commit time, unix milliseconds
	Kind   Kind           `json:"kind"`
	Ledger types.Identity `json:"ledger"` // address of the emitting ledger

	// Transfer / Approval
	From    types.Identity `json:"from,omitzero"`
	To      types.Identity `json:"to,omitzero"`
	Owner   types.Identity `json:"owner,omitzero"`
	Spender types.Identity `json:"spender,omitzero"`

	// Deposit / Withdraw
	Token        types.Identity `json:"token,omitzero"`
	User         types.Identity `json:"user,omitzero"`
	Amount       *types.Amount  `json:"amount,omitempty"`
	BalanceAfter *types.Amount  `json:"balanceAfter,omitempty"`

	// Order / Cancel / Trade
	OrderID    uint64         `json:"id,omitempty"`
	TokenGet   types.Identity `json:"tokenGet,omitzero"`
	AmountGet  *types.Amount  `json:"amountGet,omitempty"`
	TokenGive  types.Identity `json:"tokenGive,omitzero"`
	AmountGive *types.Amount  `json:"amountGive,omitempty"`
	FeeAmount  *types.Amount  `json:"feeAmount,omitempty"`
	Filler     types.Identity `json:"filler,omitzero"`
	Maker      types.Identity `json:"maker,omitzero"`
	Timestamp  int64          `json:"timestamp,omitempty"`

	Hash common.Hash `json:"hash"`
}

// Transfer records a token movement on ledger.
func Transfer(ledger, from, to types.Identity, amount *types.Amount) Event {
	return Event{Kind: KindTransfer, Ledger: ledger, From: from, To: to, Amount: types.Clone(amount)}
}

// Approval records an allowance being set on ledger.
func Approval(ledger, owner, spender types.Identity, amount *types.Amount) Event {
	return Event{Kind: KindApproval, Ledger: ledger, Owner: owner, Spender: spender, Amount: types.Clone(amount)}
}

// Deposit records value entering custody of the exchange.
func Deposit(exchange, token, user types.Identity, amount, balanceAfter *types.Amount) Event {
	return Event{
		Kind: KindDeposit, Ledger: exchange, Token: token, User: user,
		Amount: types.Clone(amount), BalanceAfter: types.Clone(balanceAfter),
	}
}

// Withdraw records value leaving custody of the exchange.
func Withdraw(exchange, token, user types.Identity, amount, balanceAfter *types.Amount) Event {
	return Event{
		Kind: KindWithdraw, Ledger: exchange, Token: token, User: user,
		Amount: types.Clone(amount), BalanceAfter: types.Clone(balanceAfter),
	}
}

// OrderFields is the order description shared by Order and Cancel events.
type OrderFields struct {
	ID         uint64
	User       types.Identity
	TokenGet   types.Identity
	AmountGet  *types.Amount
	TokenGive  types.Identity
	AmountGive *types.Amount
	Timestamp  int64
}

func orderEvent(kind Kind, exchange types.Identity, o OrderFields) Event {
	return Event{
		Kind: kind, Ledger: exchange, OrderID: o.ID, User: o.User,
		TokenGet: o.TokenGet, AmountGet: types.Clone(o.AmountGet),
		TokenGive: o.TokenGive, AmountGive: types.Clone(o.AmountGive),
		Timestamp: o.Timestamp,
	}
}

// Order records a new order.
func Order(exchange types.Identity, o OrderFields) Event { return orderEvent(KindOrder, exchange, o) }

// Cancel records an order cancellation.
func Cancel(exchange types.Identity, o OrderFields) Event { return orderEvent(KindCancel, exchange, o) }

// Trade records a settled fill. o.User is the maker.
func Trade(exchange types.Identity, o OrderFields, filler types.Identity, fee *types.Amount) Event {
	e := orderEvent(KindTrade, exchange, o)
	e.User = types.None
	e.Maker = o.User
	e.Filler = filler
	e.FeeAmount = types.Clone(fee)
	return e
}

// Involves reports whether id appears as a party in e.
func (e Event) Involves(id types.Identity) bool {
	switch id {
	case e.From, e.To, e.Owner, e.Spender, e.User, e.Filler, e.Maker:
		return !types.IsNone(id)
	}
	return false
}

// canonical is the byte form hashed into the chain. Hash itself is excluded.
func (e Event) canonical() []byte {
	e.Hash = common.Hash{}
	b, err := json.Marshal(e)
	if err != nil {
		// Event only holds fixed-size values and uint256 amounts.
		panic(fmt.Sprintf("events: marshal: %v", err))
	}
	return b
}
