// Package token implements fungible token ledgers: fixed supply minted to a
// deployer, balances, allowances and delegated transfers.
package token

import (
	"fmt"

	"github.com/coboltblu/exchange/pkg/events"
	"github.com/coboltblu/exchange/pkg/storage"
	"github.com/coboltblu/exchange/pkg/types"
)

// Params fixes a ledger at construction.
type Params struct {
	Name     string
	Symbol   string
	Supply   uint64 // whole tokens; scaled by 10^Decimals
	Deployer types.Identity
	Address  types.Identity
}

// Ledger holds one token's balances and allowances. All state is guarded by
// the venue's event log: mutations happen inside Log.Update, reads inside
// Log.View.
type Ledger struct {
	log *events.Log

	name        string
	symbol      string
	decimals    uint8
	address     types.Identity
	deployer    types.Identity
	totalSupply *types.Amount

	balances   map[types.Identity]*types.Amount
	allowances map[types.Identity]map[types.Identity]*types.Amount
}

// New creates a ledger with the whole supply credited to the deployer.
func New(log *events.Log, p Params) (*Ledger, error) {
	if p.Symbol == "" {
		return nil, fmt.Errorf("token symbol required")
	}
	if types.IsNone(p.Deployer) {
		return nil, fmt.Errorf("%w: token %s has no deployer", types.ErrInvalidRecipient, p.Symbol)
	}
	if types.IsNone(p.Address) {
		return nil, fmt.Errorf("token %s has no address", p.Symbol)
	}
	supply, err := types.Units(p.Supply, types.DefaultDecimals)
	if err != nil {
		return nil, fmt.Errorf("token %s: %w", p.Symbol, err)
	}
	return &Ledger{
		log:         log,
		name:        p.Name,
		symbol:      p.Symbol,
		decimals:    types.DefaultDecimals,
		address:     p.Address,
		deployer:    p.Deployer,
		totalSupply: supply,
		balances:    map[types.Identity]*types.Amount{p.Deployer: types.Clone(supply)},
		allowances:  make(map[types.Identity]map[types.Identity]*types.Amount),
	}, nil
}

func (l *Ledger) Name() string             { return l.name }
func (l *Ledger) Symbol() string           { return l.symbol }
func (l *Ledger) Decimals() uint8          { return l.decimals }
func (l *Ledger) Address() types.Identity  { return l.address }
func (l *Ledger) Deployer() types.Identity { return l.deployer }

// TotalSupply never changes after construction.
func (l *Ledger) TotalSupply() *types.Amount { return types.Clone(l.totalSupply) }

// BalanceOf returns owner's balance; unknown owners have zero.
func (l *Ledger) BalanceOf(owner types.Identity) *types.Amount {
	var out *types.Amount
	l.log.View(func() { out = l.Balance(owner) })
	return out
}

// Allowance returns how much spender may still move on owner's behalf.
func (l *Ledger) Allowance(owner, spender types.Identity) *types.Amount {
	var out *types.Amount
	l.log.View(func() { out = l.AllowanceOf(owner, spender) })
	return out
}

// Holders returns a copy of every non-zero balance.
func (l *Ledger) Holders() map[types.Identity]*types.Amount {
	out := make(map[types.Identity]*types.Amount)
	l.log.View(func() {
		for id, bal := range l.balances {
			if !bal.IsZero() {
				out[id] = types.Clone(bal)
			}
		}
	})
	return out
}

// Balance is BalanceOf for callers already inside Log.View or Log.Update.
func (l *Ledger) Balance(owner types.Identity) *types.Amount {
	return types.Clone(l.balances[owner])
}

// AllowanceOf is Allowance for callers already holding the log.
func (l *Ledger) AllowanceOf(owner, spender types.Identity) *types.Amount {
	return types.Clone(l.allowances[owner][spender])
}

// Transfer moves amount from from to to.
func (l *Ledger) Transfer(from, to types.Identity, amount *types.Amount) ([]events.Event, error) {
	return l.log.Update(func(tx *events.Tx) error {
		return l.TransferTx(tx, from, to, amount)
	})
}

// Approve sets spender's allowance over owner's balance to exactly amount.
func (l *Ledger) Approve(owner, spender types.Identity, amount *types.Amount) ([]events.Event, error) {
	return l.log.Update(func(tx *events.Tx) error {
		return l.ApproveTx(tx, owner, spender, amount)
	})
}

// TransferFrom moves amount from from to to, spending caller's allowance.
func (l *Ledger) TransferFrom(caller, from, to types.Identity, amount *types.Amount) ([]events.Event, error) {
	return l.log.Update(func(tx *events.Tx) error {
		return l.TransferFromTx(tx, caller, from, to, amount)
	})
}

// TransferTx stages a transfer inside an open log transaction. Nothing is
// mutated when an error is returned.
func (l *Ledger) TransferTx(tx *events.Tx, from, to types.Identity, amount *types.Amount) error {
	if amount == nil {
		return fmt.Errorf("%w: nil amount", types.ErrInvalidAmount)
	}
	if bal := l.Balance(from); bal.Lt(amount) {
		return fmt.Errorf("%w: %s has %s %s, needs %s", types.ErrInsufficientBalance,
			from.Hex(), bal.Dec(), l.symbol, amount.Dec())
	}
	if types.IsNone(to) {
		return fmt.Errorf("%w: transfer of %s to the zero address", types.ErrInvalidRecipient, l.symbol)
	}
	l.move(tx, from, to, amount)
	tx.Emit(events.Transfer(l.address, from, to, amount))
	return nil
}

// ApproveTx stages an allowance update.
func (l *Ledger) ApproveTx(tx *events.Tx, owner, spender types.Identity, amount *types.Amount) error {
	if amount == nil {
		return fmt.Errorf("%w: nil amount", types.ErrInvalidAmount)
	}
	if types.IsNone(spender) {
		return fmt.Errorf("%w: approval of %s for the zero address", types.ErrInvalidSpender, l.symbol)
	}
	l.setAllowance(tx, owner, spender, types.Clone(amount))
	tx.Emit(events.Approval(l.address, owner, spender, amount))
	return nil
}

// TransferFromTx stages a delegated transfer. Checks run in the order
// balance, allowance, recipient.
func (l *Ledger) TransferFromTx(tx *events.Tx, caller, from, to types.Identity, amount *types.Amount) error {
	if amount == nil {
		return fmt.Errorf("%w: nil amount", types.ErrInvalidAmount)
	}
	if bal := l.Balance(from); bal.Lt(amount) {
		return fmt.Errorf("%w: %s has %s %s, needs %s", types.ErrInsufficientBalance,
			from.Hex(), bal.Dec(), l.symbol, amount.Dec())
	}
	allowance := l.AllowanceOf(from, caller)
	if allowance.Lt(amount) {
		return fmt.Errorf("%w: %s may spend %s %s of %s, needs %s", types.ErrInsufficientAllowance,
			caller.Hex(), allowance.Dec(), l.symbol, from.Hex(), amount.Dec())
	}
	if types.IsNone(to) {
		return fmt.Errorf("%w: transfer of %s to the zero address", types.ErrInvalidRecipient, l.symbol)
	}
	l.setAllowance(tx, from, caller, allowance.Sub(allowance, amount))
	l.move(tx, from, to, amount)
	tx.Emit(events.Transfer(l.address, from, to, amount))
	return nil
}

// move assumes balance(from) >= amount has been checked.
func (l *Ledger) move(tx *events.Tx, from, to types.Identity, amount *types.Amount) {
	fromBal := l.Balance(from)
	fromBal.Sub(fromBal, amount)
	l.setBalance(tx, from, fromBal)

	toBal := l.Balance(to)
	toBal.Add(toBal, amount)
	l.setBalance(tx, to, toBal)
}

func (l *Ledger) setBalance(tx *events.Tx, owner types.Identity, bal *types.Amount) {
	key := storage.BalanceKey(l.address, owner)
	if bal.IsZero() {
		delete(l.balances, owner)
		tx.Put(key, nil)
		return
	}
	l.balances[owner] = bal
	tx.Put(key, storage.EncodeAmount(bal))
}

func (l *Ledger) setAllowance(tx *events.Tx, owner, spender types.Identity, amount *types.Amount) {
	key := storage.AllowanceKey(l.address, owner, spender)
	if amount.IsZero() {
		if m := l.allowances[owner]; m != nil {
			delete(m, spender)
			if len(m) == 0 {
				delete(l.allowances, owner)
			}
		}
		tx.Put(key, nil)
		return
	}
	m := l.allowances[owner]
	if m == nil {
		m = make(map[types.Identity]*types.Amount)
		l.allowances[owner] = m
	}
	m[spender] = amount
	tx.Put(key, storage.EncodeAmount(amount))
}
