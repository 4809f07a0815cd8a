package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"bare", ErrOrderNotOpen, "OrderNotOpen"},
		{"wrapped", fmt.Errorf("%w: have 1, need 2", ErrInsufficientBalance), "InsufficientBalance"},
		{"double wrapped", fmt.Errorf("deposit: %w", fmt.Errorf("%w: x", ErrInsufficientAllowance)), "InsufficientAllowance"},
		{"foreign", errors.New("boom"), "Internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUnits(t *testing.T) {
	got := MustUnits(1_000_000, DefaultDecimals)
	if got.Dec() != "1000000000000000000000000" {
		t.Errorf("Units(1e6) = %s", got.Dec())
	}
	if _, err := Units(^uint64(0), 77); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected overflow error, got %v", err)
	}
}

func TestParseDisplayAndFormat(t *testing.T) {
	a, err := ParseDisplay("12.5", 18)
	if err != nil {
		t.Fatalf("ParseDisplay: %v", err)
	}
	if a.Dec() != "12500000000000000000" {
		t.Errorf("base units = %s", a.Dec())
	}
	if s := FormatDisplay(a, 18); s != "12.5" {
		t.Errorf("FormatDisplay = %s, want 12.5", s)
	}

	for _, bad := range []string{"-1", "abc", "0.0000000000000000001"} {
		if _, err := ParseDisplay(bad, 18); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("ParseDisplay(%q) err = %v, want InvalidAmount", bad, err)
		}
	}
}

func TestParseAmount(t *testing.T) {
	a, err := ParseAmount("100")
	if err != nil || a.Uint64() != 100 {
		t.Fatalf("ParseAmount(100) = %v, %v", a, err)
	}
	b, err := ParseAmount("0x64")
	if err != nil || b.Uint64() != 100 {
		t.Fatalf("ParseAmount(0x64) = %v, %v", b, err)
	}
	if _, err := ParseAmount("-5"); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("negative amount accepted: %v", err)
	}
}

func TestIdentity(t *testing.T) {
	if !IsNone(common.Address{}) {
		t.Error("zero address should be None")
	}
	a := common.HexToAddress("0x01")
	b := common.HexToAddress("0x02")
	if !Less(a, b) || Less(b, a) {
		t.Error("Less ordering wrong")
	}
	if _, err := ParseIdentity("nope"); err == nil {
		t.Error("expected error for invalid address")
	}
	deployer := common.HexToAddress("0xAA00000000000000000000000000000000000000")
	if ContractAddress(deployer, 0) == ContractAddress(deployer, 1) {
		t.Error("contract addresses should differ per nonce")
	}
}
