package exchange

import (
	"fmt"

	"github.com/coboltblu/exchange/pkg/events"
	"github.com/coboltblu/exchange/pkg/types"
)

// OrderStatus represents the lifecycle state of an order. Open is the only
// non-terminal state.
type OrderStatus int8

const (
	OrderOpen OrderStatus = iota
	OrderFilled
	OrderCancelled
)

func (s OrderStatus) String() string {
	switch s {
	case OrderOpen:
		return "open"
	case OrderFilled:
		return "filled"
	case OrderCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func (s OrderStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *OrderStatus) UnmarshalText(b []byte) error {
	st, err := ParseOrderStatus(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	switch s {
	case "open":
		return OrderOpen, nil
	case "filled":
		return OrderFilled, nil
	case "cancelled":
		return OrderCancelled, nil
	}
	return 0, fmt.Errorf("unknown order status %q", s)
}

// Order offers AmountGive of TokenGive in exchange for AmountGet of TokenGet.
// It is filled whole or not at all.
type Order struct {
	ID         uint64         `json:"id"`
	User       types.Identity `json:"user"`
	TokenGet   types.Identity `json:"tokenGet"`
	AmountGet  *types.Amount  `json:"amountGet"`
	TokenGive  types.Identity `json:"tokenGive"`
	AmountGive *types.Amount  `json:"amountGive"`
	Timestamp  int64          `json:"timestamp"` // creation, unix milliseconds
	Status     OrderStatus    `json:"status"`

	// Set by the terminal transition.
	Filler    types.Identity `json:"filler,omitzero"`
	FeeAmount *types.Amount  `json:"feeAmount,omitempty"`
	ClosedAt  int64          `json:"closedAt,omitempty"`
	FillSeq   uint64         `json:"fillSeq,omitempty"` // position in the exchange's trade history
}

// IsClosed returns true once the order is Filled or Cancelled.
func (o *Order) IsClosed() bool {
	return o.Status != OrderOpen
}

func (o *Order) clone() *Order {
	c := *o
	c.AmountGet = types.Clone(o.AmountGet)
	c.AmountGive = types.Clone(o.AmountGive)
	if o.FeeAmount != nil {
		c.FeeAmount = types.Clone(o.FeeAmount)
	}
	return &c
}

func (o *Order) fields() events.OrderFields {
	return events.OrderFields{
		ID:         o.ID,
		User:       o.User,
		TokenGet:   o.TokenGet,
		AmountGet:  o.AmountGet,
		TokenGive:  o.TokenGive,
		AmountGive: o.AmountGive,
		Timestamp:  o.Timestamp,
	}
}

// Trade is a settled fill as seen from the trade history.
type Trade struct {
	OrderID    uint64         `json:"id"`
	Maker      types.Identity `json:"maker"`
	Filler     types.Identity `json:"filler"`
	TokenGet   types.Identity `json:"tokenGet"`
	AmountGet  *types.Amount  `json:"amountGet"`
	TokenGive  types.Identity `json:"tokenGive"`
	AmountGive *types.Amount  `json:"amountGive"`
	FeeAmount  *types.Amount  `json:"feeAmount"`
	Timestamp  int64          `json:"timestamp"` // fill time
}

func tradeOf(o *Order) Trade {
	return Trade{
		OrderID:    o.ID,
		Maker:      o.User,
		Filler:     o.Filler,
		TokenGet:   o.TokenGet,
		AmountGet:  types.Clone(o.AmountGet),
		TokenGive:  o.TokenGive,
		AmountGive: types.Clone(o.AmountGive),
		FeeAmount:  types.Clone(o.FeeAmount),
		Timestamp:  o.ClosedAt,
	}
}

// pair identifies the direction of an order: what it wants and what it offers.
type pair struct {
	get  types.Identity
	give types.Identity
}
