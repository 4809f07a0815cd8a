package token

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/coboltblu/exchange/pkg/events"
	"github.com/coboltblu/exchange/pkg/storage"
	"github.com/coboltblu/exchange/pkg/types"
)

var (
	deployer = common.HexToAddress("0x1000000000000000000000000000000000000001")
	receiver = common.HexToAddress("0x2000000000000000000000000000000000000002")
	exchange = common.HexToAddress("0x3000000000000000000000000000000000000003")
)

func tokens(n uint64) *types.Amount { return types.MustUnits(n, types.DefaultDecimals) }

func newBLU(t *testing.T, log *events.Log) *Ledger {
	t.Helper()
	l, err := New(log, Params{
		Name:     "CoboltBlu",
		Symbol:   "BLU",
		Supply:   1_000_000,
		Deployer: deployer,
		Address:  types.ContractAddress(deployer, 0),
	})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	return l
}

func TestNewLedger(t *testing.T) {
	l := newBLU(t, events.NewLog(nil, nil))

	if l.Name() != "CoboltBlu" || l.Symbol() != "BLU" || l.Decimals() != 18 {
		t.Errorf("metadata = %s/%s/%d", l.Name(), l.Symbol(), l.Decimals())
	}
	if !l.TotalSupply().Eq(tokens(1_000_000)) {
		t.Errorf("total supply = %s", l.TotalSupply().Dec())
	}
	if !l.BalanceOf(deployer).Eq(l.TotalSupply()) {
		t.Errorf("deployer should hold the whole supply")
	}
	if !l.BalanceOf(receiver).IsZero() {
		t.Errorf("receiver balance should be zero")
	}
}

func TestNewLedgerRejectsBadParams(t *testing.T) {
	log := events.NewLog(nil, nil)
	addr := types.ContractAddress(deployer, 0)
	tests := []struct {
		name string
		p    Params
	}{
		{"no symbol", Params{Name: "x", Supply: 1, Deployer: deployer, Address: addr}},
		{"no deployer", Params{Symbol: "X", Supply: 1, Address: addr}},
		{"no address", Params{Symbol: "X", Supply: 1, Deployer: deployer}},
	}
	for _, tt := range tests {
		if _, err := New(log, tt.p); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

// Deployer transfers 100 to receiver.
func TestTransfer(t *testing.T) {
	log := events.NewLog(nil, nil)
	l := newBLU(t, log)

	evs, err := l.Transfer(deployer, receiver, tokens(100))
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if !l.BalanceOf(deployer).Eq(tokens(999_900)) {
		t.Errorf("deployer balance = %s", l.BalanceOf(deployer).Dec())
	}
	if !l.BalanceOf(receiver).Eq(tokens(100)) {
		t.Errorf("receiver balance = %s", l.BalanceOf(receiver).Dec())
	}
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	e := evs[0]
	if e.Kind != events.KindTransfer || e.From != deployer || e.To != receiver || !e.Amount.Eq(tokens(100)) {
		t.Errorf("unexpected event %+v", e)
	}
	if e.Ledger != l.Address() {
		t.Errorf("event ledger = %s", e.Ledger.Hex())
	}
}

// Deployer approves the exchange, which then moves the funds to receiver.
func TestApproveAndTransferFrom(t *testing.T) {
	log := events.NewLog(nil, nil)
	l := newBLU(t, log)

	if _, err := l.Approve(deployer, exchange, tokens(100)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !l.Allowance(deployer, exchange).Eq(tokens(100)) {
		t.Fatalf("allowance = %s", l.Allowance(deployer, exchange).Dec())
	}

	evs, err := l.TransferFrom(exchange, deployer, receiver, tokens(100))
	if err != nil {
		t.Fatalf("transferFrom: %v", err)
	}
	if !l.Allowance(deployer, exchange).IsZero() {
		t.Errorf("allowance should be spent, got %s", l.Allowance(deployer, exchange).Dec())
	}
	if !l.BalanceOf(deployer).Eq(tokens(999_900)) || !l.BalanceOf(receiver).Eq(tokens(100)) {
		t.Errorf("balances = %s / %s", l.BalanceOf(deployer).Dec(), l.BalanceOf(receiver).Dec())
	}
	if len(evs) != 1 || evs[0].Kind != events.KindTransfer {
		t.Errorf("expected one Transfer event, got %+v", evs)
	}
}

func TestApproveIsAbsolute(t *testing.T) {
	l := newBLU(t, events.NewLog(nil, nil))
	for _, n := range []uint64{50, 20, 0} {
		evs, err := l.Approve(deployer, exchange, tokens(n))
		if err != nil {
			t.Fatalf("approve %d: %v", n, err)
		}
		if !l.Allowance(deployer, exchange).Eq(tokens(n)) {
			t.Errorf("allowance = %s, want %d tokens", l.Allowance(deployer, exchange).Dec(), n)
		}
		if evs[0].Kind != events.KindApproval || evs[0].Owner != deployer || evs[0].Spender != exchange {
			t.Errorf("unexpected event %+v", evs[0])
		}
	}
}

func TestFailuresLeaveStateUnchanged(t *testing.T) {
	log := events.NewLog(nil, nil)
	l := newBLU(t, log)
	if _, err := l.Transfer(deployer, receiver, tokens(10)); err != nil {
		t.Fatalf("seed transfer: %v", err)
	}
	if _, err := l.Approve(receiver, exchange, tokens(5)); err != nil {
		t.Fatalf("seed approve: %v", err)
	}
	before := log.Len()

	tests := []struct {
		name string
		op   func() error
		want error
	}{
		{"transfer over balance", func() error {
			_, err := l.Transfer(receiver, deployer, tokens(11))
			return err
		}, types.ErrInsufficientBalance},
		{"transfer to none", func() error {
			_, err := l.Transfer(deployer, types.None, tokens(1))
			return err
		}, types.ErrInvalidRecipient},
		{"balance checked before recipient", func() error {
			_, err := l.Transfer(receiver, types.None, tokens(11))
			return err
		}, types.ErrInsufficientBalance},
		{"approve none", func() error {
			_, err := l.Approve(deployer, types.None, tokens(1))
			return err
		}, types.ErrInvalidSpender},
		{"transferFrom over balance", func() error {
			_, err := l.TransferFrom(exchange, receiver, deployer, tokens(11))
			return err
		}, types.ErrInsufficientBalance},
		{"transferFrom over allowance", func() error {
			_, err := l.TransferFrom(exchange, receiver, deployer, tokens(6))
			return err
		}, types.ErrInsufficientAllowance},
		{"transferFrom to none", func() error {
			_, err := l.TransferFrom(exchange, receiver, types.None, tokens(5))
			return err
		}, types.ErrInvalidRecipient},
		{"transferFrom without approval", func() error {
			_, err := l.TransferFrom(receiver, deployer, receiver, tokens(1))
			return err
		}, types.ErrInsufficientAllowance},
	}
	for _, tt := range tests {
		err := tt.op()
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: got %v, want %v", tt.name, err, tt.want)
		}
		if !l.BalanceOf(receiver).Eq(tokens(10)) || !l.BalanceOf(deployer).Eq(tokens(999_990)) {
			t.Errorf("%s: balances changed", tt.name)
		}
		if !l.Allowance(receiver, exchange).Eq(tokens(5)) {
			t.Errorf("%s: allowance changed", tt.name)
		}
		if log.Len() != before {
			t.Errorf("%s: event appended", tt.name)
		}
	}
}

func TestZeroAmountTransfer(t *testing.T) {
	l := newBLU(t, events.NewLog(nil, nil))
	evs, err := l.Transfer(receiver, deployer, types.Zero())
	if err != nil {
		t.Fatalf("zero transfer from empty account: %v", err)
	}
	if len(evs) != 1 || !evs[0].Amount.IsZero() {
		t.Errorf("expected zero Transfer event, got %+v", evs)
	}
}

func TestSelfTransfer(t *testing.T) {
	l := newBLU(t, events.NewLog(nil, nil))
	if _, err := l.Transfer(deployer, deployer, tokens(5)); err != nil {
		t.Fatalf("self transfer: %v", err)
	}
	if !l.BalanceOf(deployer).Eq(l.TotalSupply()) {
		t.Errorf("self transfer changed balance: %s", l.BalanceOf(deployer).Dec())
	}
}

func TestLoadRestoresState(t *testing.T) {
	s, err := storage.NewMemStore()
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	defer s.Close()

	log := events.NewLog(nil, s)
	l := newBLU(t, log)
	if _, err := log.Update(func(tx *events.Tx) error { l.GenesisTx(tx); return nil }); err != nil {
		t.Fatalf("genesis: %v", err)
	}
	if _, err := l.Transfer(deployer, receiver, tokens(300)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if _, err := l.Approve(receiver, exchange, tokens(7)); err != nil {
		t.Fatalf("approve: %v", err)
	}

	restored := newBLU(t, events.NewLog(nil, nil))
	if err := restored.Load(s); err != nil {
		t.Fatalf("load: %v", err)
	}
	if !restored.BalanceOf(receiver).Eq(tokens(300)) || !restored.BalanceOf(deployer).Eq(tokens(999_700)) {
		t.Errorf("balances = %s / %s", restored.BalanceOf(deployer).Dec(), restored.BalanceOf(receiver).Dec())
	}
	if !restored.Allowance(receiver, exchange).Eq(tokens(7)) {
		t.Errorf("allowance = %s", restored.Allowance(receiver, exchange).Dec())
	}
}

func TestLoadRejectsSupplyMismatch(t *testing.T) {
	s, err := storage.NewMemStore()
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	defer s.Close()

	l := newBLU(t, events.NewLog(nil, nil))
	bad := []events.Write{{Key: storage.BalanceKey(l.Address(), deployer), Value: storage.EncodeAmount(tokens(1))}}
	if err := s.Commit(bad, nil); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := l.Load(s); err == nil {
		t.Errorf("expected supply mismatch error")
	}
}
