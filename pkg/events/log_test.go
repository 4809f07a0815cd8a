package events

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/coboltblu/exchange/pkg/types"
	"github.com/coboltblu/exchange/pkg/util"
)

var (
	ledgerAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice      = common.HexToAddress("0x0000000000000000000000000000000000000001")
	bob        = common.HexToAddress("0x0000000000000000000000000000000000000002")
)

type memSink struct {
	mu      sync.Mutex
	writes  []Write
	events  []Event
	failing bool
}

func (m *memSink) Commit(writes []Write, evs []Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errors.New("disk full")
	}
	m.writes = append(m.writes, writes...)
	m.events = append(m.events, evs...)
	return nil
}

func emitTransfers(t *testing.T, l *Log, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := l.Update(func(tx *Tx) error {
			tx.Emit(Transfer(ledgerAddr, alice, bob, types.NewAmount(uint64(i+1))))
			return nil
		})
		if err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}
}

func TestUpdateAssignsSequenceAndChain(t *testing.T) {
	clock := util.NewManualClock(time.UnixMilli(1_000))
	l := NewLog(clock, nil)

	committed, err := l.Update(func(tx *Tx) error {
		tx.Emit(Transfer(ledgerAddr, alice, bob, types.NewAmount(5)))
		tx.Emit(Approval(ledgerAddr, alice, bob, types.NewAmount(7)))
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(committed) != 2 {
		t.Fatalf("expected 2 events, got %d", len(committed))
	}
	for i, e := range committed {
		if e.Seq != uint64(i+1) {
			t.Errorf("event %d: seq %d", i, e.Seq)
		}
		if e.Time != 1_000 {
			t.Errorf("event %d: time %d", i, e.Time)
		}
	}
	if committed[1].Hash != ChainHash(committed[0].Hash, committed[1]) {
		t.Errorf("second event not chained to first")
	}
	seq, head := l.Head()
	if seq != 2 || head != committed[1].Hash {
		t.Errorf("head = (%d, %s)", seq, head.Hex())
	}
	if err := l.Verify(); err != nil {
		t.Errorf("verify: %v", err)
	}
}

func TestFailedUpdateCommitsNothing(t *testing.T) {
	sink := &memSink{}
	l := NewLog(nil, sink)
	emitTransfers(t, l, 1)

	boom := errors.New("boom")
	_, err := l.Update(func(tx *Tx) error {
		tx.Emit(Transfer(ledgerAddr, alice, bob, types.NewAmount(1)))
		tx.Put([]byte("k"), []byte("v"))
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if l.Len() != 1 {
		t.Errorf("log grew to %d", l.Len())
	}
	if len(sink.events) != 1 || len(sink.writes) != 0 {
		t.Errorf("sink saw %d events, %d writes", len(sink.events), len(sink.writes))
	}
}

func TestSinkFailureIsStorageError(t *testing.T) {
	sink := &memSink{failing: true}
	l := NewLog(nil, sink)
	_, err := l.Update(func(tx *Tx) error {
		tx.Emit(Transfer(ledgerAddr, alice, bob, types.NewAmount(1)))
		return nil
	})
	if !errors.Is(err, types.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
	if l.Len() != 0 {
		t.Errorf("event appended despite sink failure")
	}
}

func TestUpdateAfterClose(t *testing.T) {
	l := NewLog(nil, nil)
	l.Close()
	_, err := l.Update(func(tx *Tx) error {
		tx.Emit(Transfer(ledgerAddr, alice, bob, types.NewAmount(1)))
		return nil
	})
	if !errors.Is(err, types.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if kind := types.KindOf(err); kind != "Closed" {
		t.Errorf("kind %q", kind)
	}
	if l.Len() != 0 {
		t.Errorf("event appended to a closed log")
	}
}

func TestTimeNeverGoesBackwards(t *testing.T) {
	clock := util.NewManualClock(time.UnixMilli(5_000))
	l := NewLog(clock, nil)
	emitTransfers(t, l, 1)
	clock.Set(time.UnixMilli(4_000))
	emitTransfers(t, l, 1)

	evs := l.Events(1, 0)
	if evs[1].Time != 5_000 {
		t.Errorf("second event time %d, want 5000", evs[1].Time)
	}
}

func TestEventsPaging(t *testing.T) {
	l := NewLog(nil, nil)
	emitTransfers(t, l, 10)

	tests := []struct {
		from  uint64
		limit int
		first uint64
		count int
	}{
		{1, 0, 1, 10},
		{0, 3, 1, 3},
		{4, 3, 4, 3},
		{9, 5, 9, 2},
		{11, 5, 0, 0},
	}
	for _, tt := range tests {
		got := l.Events(tt.from, tt.limit)
		if len(got) != tt.count {
			t.Errorf("Events(%d,%d): got %d events, want %d", tt.from, tt.limit, len(got), tt.count)
			continue
		}
		if tt.count > 0 && got[0].Seq != tt.first {
			t.Errorf("Events(%d,%d): first seq %d, want %d", tt.from, tt.limit, got[0].Seq, tt.first)
		}
	}
}

func TestRestoreRejectsTamperedChain(t *testing.T) {
	l := NewLog(nil, nil)
	emitTransfers(t, l, 3)
	evs := l.Events(1, 0)

	restored := NewLog(nil, nil)
	if err := restored.Restore(evs); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if _, head := restored.Head(); head != evs[2].Hash {
		t.Errorf("restored head mismatch")
	}

	evs[1].Amount = types.NewAmount(999)
	if err := NewLog(nil, nil).Restore(evs); err == nil {
		t.Errorf("expected tampered chain to be rejected")
	}
}

func TestEventJSON(t *testing.T) {
	e := Deposit(ledgerAddr, ledgerAddr, alice, types.NewAmount(10), types.NewAmount(10))
	b, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["kind"] != "Deposit" {
		t.Errorf("kind = %v", m["kind"])
	}
	if m["amount"] != "10" {
		t.Errorf("amount = %v", m["amount"])
	}
	if _, ok := m["from"]; ok {
		t.Errorf("empty from should be omitted")
	}

	var back Event
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back.Kind != KindDeposit || back.User != alice || back.Amount.Uint64() != 10 {
		t.Errorf("decoded %+v", back)
	}
}

func TestInvolves(t *testing.T) {
	e := Transfer(ledgerAddr, alice, bob, types.NewAmount(1))
	if !e.Involves(alice) || !e.Involves(bob) {
		t.Errorf("transfer should involve both parties")
	}
	if e.Involves(ledgerAddr) {
		t.Errorf("ledger is not a party")
	}
	if e.Involves(types.None) {
		t.Errorf("None is never a party")
	}
}
