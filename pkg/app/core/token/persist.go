package token

import (
	"fmt"

	"github.com/coboltblu/exchange/pkg/events"
	"github.com/coboltblu/exchange/pkg/storage"
	"github.com/coboltblu/exchange/pkg/types"
)

// GenesisTx stages the initial state (the deployer's full balance) so a fresh
// store matches the in-memory ledger.
func (l *Ledger) GenesisTx(tx *events.Tx) {
	for owner, bal := range l.balances {
		tx.Put(storage.BalanceKey(l.address, owner), storage.EncodeAmount(bal))
	}
}

// Load replaces balances and allowances with the ones persisted in r. The
// total supply is checked against the restored balances.
func (l *Ledger) Load(r storage.Reader) error {
	balances := make(map[types.Identity]*types.Amount)
	sum := types.Zero()
	prefix := storage.BalancePrefix(l.address)
	err := r.Iterate(prefix, func(key, value []byte) error {
		addrs, err := storage.AddressesAfter(key, prefix)
		if err != nil || len(addrs) != 1 {
			return fmt.Errorf("token %s: bad balance key %q: %v", l.symbol, key, err)
		}
		bal, err := storage.DecodeAmount(value)
		if err != nil {
			return fmt.Errorf("token %s: %w", l.symbol, err)
		}
		balances[addrs[0]] = bal
		sum.Add(sum, bal)
		return nil
	})
	if err != nil {
		return err
	}
	if !sum.Eq(l.totalSupply) {
		return fmt.Errorf("token %s: stored balances sum to %s, supply is %s", l.symbol, sum.Dec(), l.totalSupply.Dec())
	}

	allowances := make(map[types.Identity]map[types.Identity]*types.Amount)
	prefix = storage.AllowancePrefix(l.address)
	err = r.Iterate(prefix, func(key, value []byte) error {
		addrs, err := storage.AddressesAfter(key, prefix)
		if err != nil || len(addrs) != 2 {
			return fmt.Errorf("token %s: bad allowance key %q: %v", l.symbol, key, err)
		}
		amt, err := storage.DecodeAmount(value)
		if err != nil {
			return fmt.Errorf("token %s: %w", l.symbol, err)
		}
		if allowances[addrs[0]] == nil {
			allowances[addrs[0]] = make(map[types.Identity]*types.Amount)
		}
		allowances[addrs[0]][addrs[1]] = amt
		return nil
	})
	if err != nil {
		return err
	}

	_, err = l.log.Update(func(*events.Tx) error {
		l.balances = balances
		l.allowances = allowances
		return nil
	})
	return err
}
