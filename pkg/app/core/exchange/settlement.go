package exchange

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/coboltblu/exchange/pkg/events"
	"github.com/coboltblu/exchange/pkg/types"
)

// Fee returns floor(amountGive * feePercent / 100).
func Fee(amountGive *types.Amount, feePercent uint64) *types.Amount {
	fee, _ := new(uint256.Int).MulDivOverflow(amountGive, uint256.NewInt(feePercent), uint256.NewInt(100))
	return fee
}

// FillOrder settles order id against caller.
func (e *Exchange) FillOrder(caller types.Identity, id uint64) (Trade, []events.Event, error) {
	var out Trade
	evs, err := e.log.Update(func(tx *events.Tx) error {
		t, err := e.FillOrderTx(tx, caller, id)
		out = t
		return err
	})
	if err != nil {
		return Trade{}, nil, err
	}
	return out, evs, nil
}

// FillOrderTx settles an open order in full. The maker receives AmountGet of
// TokenGet from the filler; the filler receives AmountGive of TokenGive less
// the fee, which goes to the fee account.
func (e *Exchange) FillOrderTx(tx *events.Tx, caller types.Identity, id uint64) (Trade, error) {
	o, err := e.order(id)
	if err != nil {
		return Trade{}, err
	}
	if o.Status != OrderOpen {
		return Trade{}, fmt.Errorf("%w: order %d is %s", types.ErrOrderNotOpen, id, o.Status)
	}
	if !e.cfg.AllowSelfTrade && caller == o.User {
		return Trade{}, fmt.Errorf("%w: %s cannot fill own order %d", types.ErrSelfTrade, caller.Hex(), id)
	}

	maker := o.User
	if have := e.Balance(o.TokenGet, caller); have.Lt(o.AmountGet) {
		return Trade{}, fmt.Errorf("%w: filler %s holds %s of %s, order %d needs %s", types.ErrInsufficientCustodyBalance,
			caller.Hex(), have.Dec(), o.TokenGet.Hex(), id, o.AmountGet.Dec())
	}
	if have := e.Balance(o.TokenGive, maker); have.Lt(o.AmountGive) {
		return Trade{}, fmt.Errorf("%w: maker %s holds %s of %s, order %d gives %s", types.ErrInsufficientCustodyBalance,
			maker.Hex(), have.Dec(), o.TokenGive.Hex(), id, o.AmountGive.Dec())
	}

	fee := Fee(o.AmountGive, e.cfg.FeePercent)
	received := new(uint256.Int).Sub(o.AmountGive, fee)

	e.debit(tx, o.TokenGet, caller, o.AmountGet)
	e.credit(tx, o.TokenGet, maker, o.AmountGet)
	e.debit(tx, o.TokenGive, maker, o.AmountGive)
	e.credit(tx, o.TokenGive, caller, received)
	e.credit(tx, o.TokenGive, e.cfg.FeeAccount, fee)

	o.Status = OrderFilled
	o.Filler = caller
	o.FeeAmount = fee
	o.ClosedAt = tx.Time()
	e.fills = append(e.fills, o.ID)
	o.FillSeq = uint64(len(e.fills))
	e.removeOpen(o)
	e.saveOrder(tx, o)

	ev := o.fields()
	ev.Timestamp = tx.Time()
	tx.Emit(events.Trade(e.cfg.Address, ev, caller, fee))
	return tradeOf(o), nil
}
