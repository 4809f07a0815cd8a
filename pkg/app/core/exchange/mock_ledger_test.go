package exchange

import (
	"fmt"

	"github.com/coboltblu/exchange/pkg/events"
	"github.com/coboltblu/exchange/pkg/types"
)

// mockLedger is a minimal token ledger for exercising the exchange in
// isolation.
type mockLedger struct {
	addr       types.Identity
	symbol     string
	balances   map[types.Identity]*types.Amount
	allowances map[[2]types.Identity]*types.Amount
}

func newMockLedger(addr types.Identity, symbol string) *mockLedger {
	return &mockLedger{
		addr:       addr,
		symbol:     symbol,
		balances:   make(map[types.Identity]*types.Amount),
		allowances: make(map[[2]types.Identity]*types.Amount),
	}
}

func (m *mockLedger) Address() types.Identity { return m.addr }
func (m *mockLedger) Symbol() string          { return m.symbol }
func (m *mockLedger) Decimals() uint8         { return types.DefaultDecimals }

func (m *mockLedger) Balance(owner types.Identity) *types.Amount {
	return types.Clone(m.balances[owner])
}

func (m *mockLedger) mint(owner types.Identity, amount *types.Amount) {
	bal := m.Balance(owner)
	m.balances[owner] = bal.Add(bal, amount)
}

func (m *mockLedger) approve(owner, spender types.Identity, amount *types.Amount) {
	m.allowances[[2]types.Identity{owner, spender}] = types.Clone(amount)
}

func (m *mockLedger) TransferTx(tx *events.Tx, from, to types.Identity, amount *types.Amount) error {
	if m.Balance(from).Lt(amount) {
		return fmt.Errorf("%w: mock", types.ErrInsufficientBalance)
	}
	if types.IsNone(to) {
		return fmt.Errorf("%w: mock", types.ErrInvalidRecipient)
	}
	m.move(from, to, amount)
	tx.Emit(events.Transfer(m.addr, from, to, amount))
	return nil
}

func (m *mockLedger) TransferFromTx(tx *events.Tx, caller, from, to types.Identity, amount *types.Amount) error {
	if m.Balance(from).Lt(amount) {
		return fmt.Errorf("%w: mock", types.ErrInsufficientBalance)
	}
	key := [2]types.Identity{from, caller}
	allowance := types.Clone(m.allowances[key])
	if allowance.Lt(amount) {
		return fmt.Errorf("%w: mock", types.ErrInsufficientAllowance)
	}
	m.allowances[key] = allowance.Sub(allowance, amount)
	m.move(from, to, amount)
	tx.Emit(events.Transfer(m.addr, from, to, amount))
	return nil
}

func (m *mockLedger) move(from, to types.Identity, amount *types.Amount) {
	f := m.Balance(from)
	m.balances[from] = f.Sub(f, amount)
	t := m.Balance(to)
	m.balances[to] = t.Add(t, amount)
}

var _ TokenLedger = (*mockLedger)(nil)
