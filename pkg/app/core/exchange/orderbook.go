package exchange

import (
	"encoding/json"
	"fmt"

	"github.com/coboltblu/exchange/pkg/events"
	"github.com/coboltblu/exchange/pkg/storage"
	"github.com/coboltblu/exchange/pkg/types"
)

// MakeOrder opens an order. Creation does not check the maker's custody;
// sufficiency is only enforced at fill time.
func (e *Exchange) MakeOrder(user, tokenGet types.Identity, amountGet *types.Amount, tokenGive types.Identity, amountGive *types.Amount) (*Order, []events.Event, error) {
	var out *Order
	evs, err := e.log.Update(func(tx *events.Tx) error {
		o, err := e.MakeOrderTx(tx, user, tokenGet, amountGet, tokenGive, amountGive)
		out = o
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return out, evs, nil
}

// CancelOrder cancels an open order owned by caller.
func (e *Exchange) CancelOrder(caller types.Identity, id uint64) (*Order, []events.Event, error) {
	var out *Order
	evs, err := e.log.Update(func(tx *events.Tx) error {
		o, err := e.CancelOrderTx(tx, caller, id)
		out = o
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return out, evs, nil
}

func (e *Exchange) MakeOrderTx(tx *events.Tx, user, tokenGet types.Identity, amountGet *types.Amount, tokenGive types.Identity, amountGive *types.Amount) (*Order, error) {
	if amountGet == nil || amountGet.IsZero() || amountGive == nil || amountGive.IsZero() {
		return nil, fmt.Errorf("%w: order amounts must be positive", types.ErrInvalidAmount)
	}
	if types.IsNone(user) {
		return nil, fmt.Errorf("%w: order without a user", types.ErrInvalidOrder)
	}
	if tokenGet == tokenGive {
		return nil, fmt.Errorf("%w: order trades %s for itself", types.ErrInvalidOrder, tokenGet.Hex())
	}
	if _, err := e.tokens.lookup(tokenGet); err != nil {
		return nil, err
	}
	if _, err := e.tokens.lookup(tokenGive); err != nil {
		return nil, err
	}

	o := &Order{
		ID:         uint64(len(e.orders)) + 1,
		User:       user,
		TokenGet:   tokenGet,
		AmountGet:  types.Clone(amountGet),
		TokenGive:  tokenGive,
		AmountGive: types.Clone(amountGive),
		Timestamp:  tx.Time(),
		Status:     OrderOpen,
	}
	e.orders = append(e.orders, o)
	e.addOpen(o)
	e.saveOrder(tx, o)
	tx.Emit(events.Order(e.cfg.Address, o.fields()))
	return o.clone(), nil
}

// CancelOrderTx checks existence, ownership, then status.
func (e *Exchange) CancelOrderTx(tx *events.Tx, caller types.Identity, id uint64) (*Order, error) {
	o, err := e.order(id)
	if err != nil {
		return nil, err
	}
	if o.User != caller {
		return nil, fmt.Errorf("%w: order %d belongs to %s", types.ErrNotOrderOwner, id, o.User.Hex())
	}
	if o.Status != OrderOpen {
		return nil, fmt.Errorf("%w: order %d is %s", types.ErrOrderNotOpen, id, o.Status)
	}

	o.Status = OrderCancelled
	o.ClosedAt = tx.Time()
	e.removeOpen(o)
	e.saveOrder(tx, o)
	ev := o.fields()
	ev.Timestamp = tx.Time()
	tx.Emit(events.Cancel(e.cfg.Address, ev))
	return o.clone(), nil
}

func (e *Exchange) order(id uint64) (*Order, error) {
	if id == 0 || id > uint64(len(e.orders)) {
		return nil, fmt.Errorf("%w: %d", types.ErrOrderNotFound, id)
	}
	return e.orders[id-1], nil
}

func (e *Exchange) addOpen(o *Order) {
	p := pair{get: o.TokenGet, give: o.TokenGive}
	m := e.open[p]
	if m == nil {
		m = make(map[uint64]*Order)
		e.open[p] = m
	}
	m[o.ID] = o
}

func (e *Exchange) removeOpen(o *Order) {
	p := pair{get: o.TokenGet, give: o.TokenGive}
	if m := e.open[p]; m != nil {
		delete(m, o.ID)
		if len(m) == 0 {
			delete(e.open, p)
		}
	}
}

func (e *Exchange) saveOrder(tx *events.Tx, o *Order) {
	data, err := json.Marshal(o)
	if err != nil {
		// Order holds only fixed-size values and uint256 amounts.
		panic(fmt.Sprintf("exchange: marshal order %d: %v", o.ID, err))
	}
	tx.Put(storage.OrderKey(e.cfg.Address, o.ID), data)
}
