// Package types holds the value types shared by the ledgers, the exchange
// and the transport layers: identities, amounts and the error taxonomy.
package types

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Identity is an EVM-style 20-byte account address.
type Identity = common.Address

// None is the reserved "no identity" value. Operations that would credit or
// authorize None are rejected.
var None Identity

// IsNone reports whether id is the reserved "no identity" value.
func IsNone(id Identity) bool {
	return id == None
}

// Less orders identities by their raw bytes.
func Less(a, b Identity) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

// ParseIdentity parses a 0x-prefixed hex address.
func ParseIdentity(s string) (Identity, error) {
	if !common.IsHexAddress(s) {
		return None, fmt.Errorf("invalid address: %q", s)
	}
	return common.HexToAddress(s), nil
}

// ContractAddress derives the address of a ledger deployed by deployer with
// the given deployment nonce (same derivation as EVM contract creation).
func ContractAddress(deployer Identity, nonce uint64) Identity {
	return crypto.CreateAddress(deployer, nonce)
}
