package storage

import (
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/coboltblu/exchange/pkg/events"
)

var (
	token = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice = common.HexToAddress("0x0000000000000000000000000000000000000001")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000002")
)

func TestCommitAndReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	s, err := NewPebbleStore(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	l := events.NewLog(nil, s)
	if _, err := l.Update(func(tx *events.Tx) error {
		tx.Put(BalanceKey(token, alice), EncodeAmount(uint256.NewInt(90)))
		tx.Put(BalanceKey(token, bob), EncodeAmount(uint256.NewInt(10)))
		tx.Emit(events.Transfer(token, alice, bob, uint256.NewInt(10)))
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = NewPebbleStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	val, ok, err := s.Get(BalanceKey(token, bob))
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	amt, err := DecodeAmount(val)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if amt.Uint64() != 10 {
		t.Errorf("bob balance = %s, want 10", amt)
	}

	evs, err := s.LoadEvents()
	if err != nil {
		t.Fatalf("load events: %v", err)
	}
	if len(evs) != 1 || evs[0].Seq != 1 || evs[0].Kind != events.KindTransfer {
		t.Fatalf("unexpected events: %+v", evs)
	}
	if err := events.NewLog(nil, nil).Restore(evs); err != nil {
		t.Errorf("restored chain does not verify: %v", err)
	}
}

func TestDeleteWrite(t *testing.T) {
	s, err := NewMemStore()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	key := AllowanceKey(token, alice, bob)
	if err := s.Commit([]events.Write{{Key: key, Value: EncodeAmount(uint256.NewInt(5))}}, nil); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := s.Commit([]events.Write{{Key: key}}, nil); err != nil {
		t.Fatalf("commit delete: %v", err)
	}
	if _, ok, _ := s.Get(key); ok {
		t.Errorf("key should be deleted")
	}
}

func TestIterateStaysInPrefix(t *testing.T) {
	s, err := NewMemStore()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	other := common.HexToAddress("0x00000000000000000000000000000000000000ab")
	writes := []events.Write{
		{Key: BalanceKey(token, alice), Value: EncodeAmount(uint256.NewInt(1))},
		{Key: BalanceKey(token, bob), Value: EncodeAmount(uint256.NewInt(2))},
		{Key: BalanceKey(other, alice), Value: EncodeAmount(uint256.NewInt(3))},
		{Key: AllowanceKey(token, alice, bob), Value: EncodeAmount(uint256.NewInt(4))},
	}
	if err := s.Commit(writes, nil); err != nil {
		t.Fatalf("commit: %v", err)
	}

	var owners []common.Address
	err = s.Iterate(BalancePrefix(token), func(key, _ []byte) error {
		addrs, err := AddressesAfter(key, BalancePrefix(token))
		if err != nil {
			return err
		}
		owners = append(owners, addrs[0])
		return nil
	})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(owners) != 2 || owners[0] != alice || owners[1] != bob {
		t.Errorf("owners = %v", owners)
	}
}

func TestOrderKeysSortByID(t *testing.T) {
	a := OrderKey(token, 2)
	b := OrderKey(token, 10)
	if string(a) >= string(b) {
		t.Errorf("order key 2 should sort before 10")
	}
	id, err := DecodeUint64(b[len(OrderPrefix(token)):])
	if err != nil || id != 10 {
		t.Errorf("decoded id %d err %v", id, err)
	}
}

func TestAddressesAfter(t *testing.T) {
	key := AllowanceKey(token, alice, bob)
	addrs, err := AddressesAfter(key, AllowancePrefix(token))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(addrs) != 2 || addrs[0] != alice || addrs[1] != bob {
		t.Errorf("addrs = %v", addrs)
	}
	if _, err := AddressesAfter([]byte("bal:junk"), []byte("bal:")); err == nil {
		t.Errorf("expected error for junk key")
	}
}
