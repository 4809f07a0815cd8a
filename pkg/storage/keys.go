package storage

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Key schema
//
//	bal:<token>:<owner>                → balance (decimal string)
//	alw:<token>:<owner>:<spender>      → allowance (decimal string)
//	cus:<exchange>:<token>:<user>      → custody balance (decimal string)
//	ord:<exchange>:<8-byte id>         → order (JSON)
//	non:<address>                      → last accepted nonce (8 bytes)
//	evt:<8-byte seq>                   → event (JSON)
//	meta:<name>                        → venue metadata
//
// Addresses are rendered with Hex() so keys sort by owner within a token.
const (
	prefixBalance   = "bal:"
	prefixAllowance = "alw:"
	prefixCustody   = "cus:"
	prefixOrder     = "ord:"
	prefixNonce     = "non:"
	prefixEvent     = "evt:"
	prefixMeta      = "meta:"
)

func BalanceKey(token, owner common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixBalance, token.Hex(), owner.Hex()))
}

// BalancePrefix covers every balance of one token ledger.
func BalancePrefix(token common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixBalance, token.Hex()))
}

func AllowanceKey(token, owner, spender common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%s", prefixAllowance, token.Hex(), owner.Hex(), spender.Hex()))
}

func AllowancePrefix(token common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixAllowance, token.Hex()))
}

func CustodyKey(exchange, token, user common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%s", prefixCustody, exchange.Hex(), token.Hex(), user.Hex()))
}

func CustodyPrefix(exchange common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixCustody, exchange.Hex()))
}

// OrderKey uses a big-endian id so orders iterate in id order.
func OrderKey(exchange common.Address, id uint64) []byte {
	return append(OrderPrefix(exchange), EncodeUint64(id)...)
}

func OrderPrefix(exchange common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixOrder, exchange.Hex()))
}

func NonceKey(addr common.Address) []byte {
	return []byte(prefixNonce + addr.Hex())
}

func NoncePrefix() []byte { return []byte(prefixNonce) }

func EventKey(seq uint64) []byte {
	return append([]byte(prefixEvent), EncodeUint64(seq)...)
}

func EventPrefix() []byte { return []byte(prefixEvent) }

func MetaKey(name string) []byte { return []byte(prefixMeta + name) }

// AddressesAfter parses the colon-separated addresses that follow prefix in
// key, e.g. the owner and spender of an allowance key.
func AddressesAfter(key, prefix []byte) ([]common.Address, error) {
	if len(key) < len(prefix) || string(key[:len(prefix)]) != string(prefix) {
		return nil, fmt.Errorf("key %q does not start with %q", key, prefix)
	}
	parts := strings.Split(string(key[len(prefix):]), ":")
	out := make([]common.Address, 0, len(parts))
	for _, p := range parts {
		if !common.IsHexAddress(p) {
			return nil, fmt.Errorf("invalid address %q in key %q", p, key)
		}
		out = append(out, common.HexToAddress(p))
	}
	return out, nil
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
// Example: "bal:0x12..:" -> "bal:0x12..;"
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

func EncodeUint64(v uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], v)
	return k[:]
}

func DecodeUint64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("expected 8 bytes, got %d", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}
