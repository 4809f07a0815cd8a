package exchange

import (
	"fmt"
	"sync"

	"github.com/coboltblu/exchange/pkg/types"
)

// tokenRegistry holds the token ledgers the exchange accepts, by address.
type tokenRegistry struct {
	mu     sync.RWMutex
	tokens map[types.Identity]TokenLedger
	order  []types.Identity // registration order, for listing
}

func newTokenRegistry() *tokenRegistry {
	return &tokenRegistry{tokens: make(map[types.Identity]TokenLedger)}
}

func (r *tokenRegistry) register(t TokenLedger) error {
	if t == nil {
		return fmt.Errorf("cannot register nil token")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	addr := t.Address()
	if _, exists := r.tokens[addr]; exists {
		return fmt.Errorf("token %s (%s) already registered", t.Symbol(), addr.Hex())
	}
	for _, other := range r.tokens {
		if other.Symbol() == t.Symbol() {
			return fmt.Errorf("token symbol %s already registered", t.Symbol())
		}
	}
	r.tokens[addr] = t
	r.order = append(r.order, addr)
	return nil
}

func (r *tokenRegistry) lookup(addr types.Identity) (TokenLedger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tokens[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownToken, addr.Hex())
	}
	return t, nil
}

func (r *tokenRegistry) bySymbol(symbol string) (TokenLedger, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.tokens {
		if t.Symbol() == symbol {
			return t, true
		}
	}
	return nil, false
}

func (r *tokenRegistry) list() []TokenLedger {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]TokenLedger, 0, len(r.order))
	for _, addr := range r.order {
		out = append(out, r.tokens[addr])
	}
	return out
}
