package exchange

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/coboltblu/exchange/pkg/types"
)

// pricePlaces is the precision book prices are computed at.
const pricePlaces = 18

// OrderFilter narrows Orders. Zero values match everything; a pair filter
// matches orders in either direction between TokenA and TokenB.
type OrderFilter struct {
	Status *OrderStatus
	User   types.Identity
	TokenA types.Identity
	TokenB types.Identity
}

func (f OrderFilter) match(o *Order) bool {
	if f.Status != nil && o.Status != *f.Status {
		return false
	}
	if !types.IsNone(f.User) && o.User != f.User {
		return false
	}
	if !types.IsNone(f.TokenA) || !types.IsNone(f.TokenB) {
		if !inPair(o, f.TokenA, f.TokenB) {
			return false
		}
	}
	return true
}

func inPair(o *Order, a, b types.Identity) bool {
	return (o.TokenGet == a && o.TokenGive == b) || (o.TokenGet == b && o.TokenGive == a)
}

// Order returns a copy of order id.
func (e *Exchange) Order(id uint64) (*Order, error) {
	var out *Order
	var err error
	e.log.View(func() {
		var o *Order
		if o, err = e.order(id); err == nil {
			out = o.clone()
		}
	})
	return out, err
}

// Orders returns copies of all matching orders by ascending id.
func (e *Exchange) Orders(f OrderFilter) []*Order {
	var out []*Order
	e.log.View(func() {
		for _, o := range e.orders {
			if f.match(o) {
				out = append(out, o.clone())
			}
		}
	})
	return out
}

// OpenOrders returns the open orders between two tokens by ascending id.
func (e *Exchange) OpenOrders(tokenA, tokenB types.Identity) []*Order {
	var out []*Order
	e.log.View(func() {
		for _, p := range []pair{{get: tokenA, give: tokenB}, {get: tokenB, give: tokenA}} {
			for _, o := range e.open[p] {
				out = append(out, o.clone())
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OpenCount is the number of open orders across all markets.
func (e *Exchange) OpenCount() int {
	n := 0
	e.log.View(func() {
		for _, m := range e.open {
			n += len(m)
		}
	})
	return n
}

// TradeFilter narrows Trades. Limit keeps the most recent trades.
type TradeFilter struct {
	User  types.Identity // maker or filler
	Limit int
}

// Trades returns settled trades in fill order.
func (e *Exchange) Trades(f TradeFilter) []Trade {
	var out []Trade
	e.log.View(func() {
		for _, id := range e.fills {
			o := e.orders[id-1]
			if !types.IsNone(f.User) && o.User != f.User && o.Filler != f.User {
				continue
			}
			out = append(out, tradeOf(o))
		}
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

// BookEntry is an open order placed on one side of a market.
type BookEntry struct {
	Order *Order
	Price decimal.Decimal // quote per base
	Base  *types.Amount   // base-token amount of the order
	Quote *types.Amount   // quote-token amount of the order
}

// Book is the open-order view of the base/quote market. Asks give base for
// quote and sort by ascending price; bids give quote for base and sort by
// descending price. Ties keep id order.
type Book struct {
	Base  types.Identity
	Quote types.Identity
	Bids  []BookEntry
	Asks  []BookEntry
}

func (e *Exchange) Book(base, quote types.Identity) (Book, error) {
	if base == quote {
		return Book{}, fmt.Errorf("%w: market needs two different tokens", types.ErrInvalidOrder)
	}
	if _, err := e.tokens.lookup(base); err != nil {
		return Book{}, err
	}
	if _, err := e.tokens.lookup(quote); err != nil {
		return Book{}, err
	}

	b := Book{Base: base, Quote: quote}
	for _, o := range e.OpenOrders(base, quote) {
		if o.TokenGive == base {
			b.Asks = append(b.Asks, BookEntry{
				Order: o,
				Price: types.Price(o.AmountGet, o.AmountGive, pricePlaces),
				Base:  o.AmountGive,
				Quote: o.AmountGet,
			})
		} else {
			b.Bids = append(b.Bids, BookEntry{
				Order: o,
				Price: types.Price(o.AmountGive, o.AmountGet, pricePlaces),
				Base:  o.AmountGet,
				Quote: o.AmountGive,
			})
		}
	}
	sort.SliceStable(b.Asks, func(i, j int) bool { return b.Asks[i].Price.LessThan(b.Asks[j].Price) })
	sort.SliceStable(b.Bids, func(i, j int) bool { return b.Bids[i].Price.GreaterThan(b.Bids[j].Price) })
	return b, nil
}

// Audit checks that, per token, the custody held for users never exceeds
// what the token ledger credits to the exchange.
func (e *Exchange) Audit() error {
	var err error
	e.log.View(func() {
		for _, t := range e.tokens.list() {
			sum := types.Zero()
			for _, bal := range e.custody[t.Address()] {
				sum.Add(sum, bal)
			}
			held := t.Balance(e.cfg.Address)
			if sum.Gt(held) {
				err = fmt.Errorf("custody of %s is %s but exchange holds %s", t.Symbol(), sum.Dec(), held.Dec())
				return
			}
		}
	})
	return err
}
