package exchange

import (
	"fmt"

	"github.com/coboltblu/exchange/pkg/events"
	"github.com/coboltblu/exchange/pkg/storage"
	"github.com/coboltblu/exchange/pkg/types"
)

// Deposit pulls amount of token from user into custody. The user must have
// approved the exchange on the token ledger beforehand.
func (e *Exchange) Deposit(user, token types.Identity, amount *types.Amount) ([]events.Event, error) {
	return e.log.Update(func(tx *events.Tx) error {
		return e.DepositTx(tx, user, token, amount)
	})
}

// Withdraw returns amount of token from custody to user.
func (e *Exchange) Withdraw(user, token types.Identity, amount *types.Amount) ([]events.Event, error) {
	return e.log.Update(func(tx *events.Tx) error {
		return e.WithdrawTx(tx, user, token, amount)
	})
}

func (e *Exchange) DepositTx(tx *events.Tx, user, token types.Identity, amount *types.Amount) error {
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("%w: deposit amount must be positive", types.ErrInvalidAmount)
	}
	t, err := e.tokens.lookup(token)
	if err != nil {
		return err
	}
	// Token errors (balance, allowance) propagate as-is.
	if err := t.TransferFromTx(tx, e.cfg.Address, user, e.cfg.Address, amount); err != nil {
		return err
	}
	bal := e.Balance(token, user)
	bal.Add(bal, amount)
	e.setCustody(tx, token, user, bal)
	tx.Emit(events.Deposit(e.cfg.Address, token, user, amount, bal))
	return nil
}

func (e *Exchange) WithdrawTx(tx *events.Tx, user, token types.Identity, amount *types.Amount) error {
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("%w: withdraw amount must be positive", types.ErrInvalidAmount)
	}
	t, err := e.tokens.lookup(token)
	if err != nil {
		return err
	}
	bal := e.Balance(token, user)
	if bal.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s %s in custody, needs %s", types.ErrInsufficientCustodyBalance,
			user.Hex(), bal.Dec(), t.Symbol(), amount.Dec())
	}
	if err := t.TransferTx(tx, e.cfg.Address, user, amount); err != nil {
		return err
	}
	bal.Sub(bal, amount)
	e.setCustody(tx, token, user, bal)
	tx.Emit(events.Withdraw(e.cfg.Address, token, user, amount, bal))
	return nil
}

// BalanceOf returns user's custody balance of token.
func (e *Exchange) BalanceOf(token, user types.Identity) *types.Amount {
	var out *types.Amount
	e.log.View(func() { out = e.Balance(token, user) })
	return out
}

// Balances returns every non-zero custody balance of user, by token.
func (e *Exchange) Balances(user types.Identity) map[types.Identity]*types.Amount {
	out := make(map[types.Identity]*types.Amount)
	e.log.View(func() {
		for token, users := range e.custody {
			if bal, ok := users[user]; ok && !bal.IsZero() {
				out[token] = types.Clone(bal)
			}
		}
	})
	return out
}

// Balance is BalanceOf for callers already holding the log.
func (e *Exchange) Balance(token, user types.Identity) *types.Amount {
	return types.Clone(e.custody[token][user])
}

func (e *Exchange) setCustody(tx *events.Tx, token, user types.Identity, bal *types.Amount) {
	key := storage.CustodyKey(e.cfg.Address, token, user)
	if bal.IsZero() {
		if users := e.custody[token]; users != nil {
			delete(users, user)
		}
		tx.Put(key, nil)
		return
	}
	users := e.custody[token]
	if users == nil {
		users = make(map[types.Identity]*types.Amount)
		e.custody[token] = users
	}
	users[user] = bal
	tx.Put(key, storage.EncodeAmount(bal))
}

// credit and debit are used by settlement after all checks have passed.
func (e *Exchange) credit(tx *events.Tx, token, user types.Identity, amount *types.Amount) {
	bal := e.Balance(token, user)
	bal.Add(bal, amount)
	e.setCustody(tx, token, user, bal)
}

func (e *Exchange) debit(tx *events.Tx, token, user types.Identity, amount *types.Amount) {
	bal := e.Balance(token, user)
	bal.Sub(bal, amount)
	e.setCustody(tx, token, user, bal)
}
