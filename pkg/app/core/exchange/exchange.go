// Package exchange implements the custodial exchange: token custody,
// an order book of whole-fill orders and fee-charging settlement.
//
// Exchange state shares the venue's event log lock with the token ledgers, so
// a deposit's token transfer and custody credit (or a fill's five custody
// updates) commit as one unit together with their events.
package exchange

import (
	"fmt"

	"github.com/coboltblu/exchange/pkg/events"
	"github.com/coboltblu/exchange/pkg/types"
)

// TokenLedger is what the exchange needs from a token. Balance and the Tx
// methods are only called with the event log held.
type TokenLedger interface {
	Address() types.Identity
	Symbol() string
	Decimals() uint8
	Balance(owner types.Identity) *types.Amount
	TransferTx(tx *events.Tx, from, to types.Identity, amount *types.Amount) error
	TransferFromTx(tx *events.Tx, caller, from, to types.Identity, amount *types.Amount) error
}

// Config is fixed at construction.
type Config struct {
	Address        types.Identity
	FeeAccount     types.Identity
	FeePercent     uint64 // percentage points, 0-100
	AllowSelfTrade bool
}

type Exchange struct {
	log    *events.Log
	cfg    Config
	tokens *tokenRegistry

	custody map[types.Identity]map[types.Identity]*types.Amount // token -> user -> amount

	orders []*Order // index i holds order id i+1
	open   map[pair]map[uint64]*Order
	fills  []uint64 // filled order ids in fill order
}

func New(log *events.Log, cfg Config) (*Exchange, error) {
	if types.IsNone(cfg.Address) {
		return nil, fmt.Errorf("exchange address required")
	}
	if types.IsNone(cfg.FeeAccount) {
		return nil, fmt.Errorf("%w: fee account is the zero address", types.ErrInvalidRecipient)
	}
	if cfg.FeePercent > 100 {
		return nil, fmt.Errorf("fee percent %d out of range 0-100", cfg.FeePercent)
	}
	return &Exchange{
		log:     log,
		cfg:     cfg,
		tokens:  newTokenRegistry(),
		custody: make(map[types.Identity]map[types.Identity]*types.Amount),
		open:    make(map[pair]map[uint64]*Order),
	}, nil
}

func (e *Exchange) Address() types.Identity    { return e.cfg.Address }
func (e *Exchange) FeeAccount() types.Identity { return e.cfg.FeeAccount }
func (e *Exchange) FeePercent() uint64         { return e.cfg.FeePercent }
func (e *Exchange) AllowSelfTrade() bool       { return e.cfg.AllowSelfTrade }

// RegisterToken makes a token ledger depositable and tradeable.
func (e *Exchange) RegisterToken(t TokenLedger) error {
	return e.tokens.register(t)
}

// Token looks up a registered token by address.
func (e *Exchange) Token(addr types.Identity) (TokenLedger, error) {
	return e.tokens.lookup(addr)
}

// TokenBySymbol looks up a registered token by symbol.
func (e *Exchange) TokenBySymbol(symbol string) (TokenLedger, bool) {
	return e.tokens.bySymbol(symbol)
}

// Tokens lists registered tokens in registration order.
func (e *Exchange) Tokens() []TokenLedger {
	return e.tokens.list()
}
