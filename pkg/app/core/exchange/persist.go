package exchange

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/coboltblu/exchange/pkg/events"
	"github.com/coboltblu/exchange/pkg/storage"
	"github.com/coboltblu/exchange/pkg/types"
)

// Load replaces custody and orders with the ones persisted in r. Tokens must
// be registered first.
func (e *Exchange) Load(r storage.Reader) error {
	custody := make(map[types.Identity]map[types.Identity]*types.Amount)
	prefix := storage.CustodyPrefix(e.cfg.Address)
	err := r.Iterate(prefix, func(key, value []byte) error {
		addrs, err := storage.AddressesAfter(key, prefix)
		if err != nil || len(addrs) != 2 {
			return fmt.Errorf("bad custody key %q: %v", key, err)
		}
		if _, err := e.tokens.lookup(addrs[0]); err != nil {
			return fmt.Errorf("custody for unregistered token: %w", err)
		}
		bal, err := storage.DecodeAmount(value)
		if err != nil {
			return err
		}
		if custody[addrs[0]] == nil {
			custody[addrs[0]] = make(map[types.Identity]*types.Amount)
		}
		custody[addrs[0]][addrs[1]] = bal
		return nil
	})
	if err != nil {
		return err
	}

	var orders []*Order
	err = r.Iterate(storage.OrderPrefix(e.cfg.Address), func(_, value []byte) error {
		var o Order
		if err := json.Unmarshal(value, &o); err != nil {
			return fmt.Errorf("failed to unmarshal order: %w", err)
		}
		if o.ID != uint64(len(orders))+1 {
			return fmt.Errorf("order ids not contiguous: found %d after %d", o.ID, len(orders))
		}
		orders = append(orders, &o)
		return nil
	})
	if err != nil {
		return err
	}

	open := make(map[pair]map[uint64]*Order)
	var filled []*Order
	for _, o := range orders {
		switch o.Status {
		case OrderOpen:
			p := pair{get: o.TokenGet, give: o.TokenGive}
			if open[p] == nil {
				open[p] = make(map[uint64]*Order)
			}
			open[p][o.ID] = o
		case OrderFilled:
			filled = append(filled, o)
		}
	}
	sort.Slice(filled, func(i, j int) bool { return filled[i].FillSeq < filled[j].FillSeq })
	fills := make([]uint64, len(filled))
	for i, o := range filled {
		fills[i] = o.ID
	}

	_, err = e.log.Update(func(*events.Tx) error {
		e.custody = custody
		e.orders = orders
		e.open = open
		e.fills = fills
		return nil
	})
	return err
}
