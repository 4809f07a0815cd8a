package api

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/coboltblu/exchange/pkg/events"
)

// API response types for REST endpoints and WebSocket messages. Amounts are
// base-unit decimal strings; the matching ...Display field is the same
// amount in whole tokens.

// ==============================
// REST Response Types
// ==============================

// ErrorResponse is the body of every non-2xx response. Code is the error
// kind, e.g. "InsufficientBalance".
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type HealthResponse struct {
	Status string      `json:"status"`
	Events uint64      `json:"events"`
	Head   common.Hash `json:"head"`
}

type TokenInfo struct {
	Address            common.Address `json:"address"`
	Name               string         `json:"name"`
	Symbol             string         `json:"symbol"`
	Decimals           uint8          `json:"decimals"`
	TotalSupply        string         `json:"totalSupply"`
	TotalSupplyDisplay string         `json:"totalSupplyDisplay"`
}

type BalanceInfo struct {
	Token          common.Address `json:"token"`
	Symbol         string         `json:"symbol"`
	Owner          common.Address `json:"owner"`
	Balance        string         `json:"balance"`
	BalanceDisplay string         `json:"balanceDisplay"`
}

type AllowanceInfo struct {
	Token            common.Address `json:"token"`
	Owner            common.Address `json:"owner"`
	Spender          common.Address `json:"spender"`
	Allowance        string         `json:"allowance"`
	AllowanceDisplay string         `json:"allowanceDisplay"`
}

type ExchangeInfo struct {
	Address        common.Address `json:"address"`
	ChainID        int64          `json:"chainId"`
	FeeAccount     common.Address `json:"feeAccount"`
	FeePercent     uint64         `json:"feePercent"`
	AllowSelfTrade bool           `json:"allowSelfTrade"`
	OpenOrders     int            `json:"openOrders"`
	Tokens         []TokenInfo    `json:"tokens"`
}

// OrderInfo is an order with token symbols and display amounts.
type OrderInfo struct {
	ID                uint64          `json:"id"`
	User              common.Address  `json:"user"`
	TokenGet          common.Address  `json:"tokenGet"`
	SymbolGet         string          `json:"symbolGet"`
	AmountGet         string          `json:"amountGet"`
	AmountGetDisplay  string          `json:"amountGetDisplay"`
	TokenGive         common.Address  `json:"tokenGive"`
	SymbolGive        string          `json:"symbolGive"`
	AmountGive        string          `json:"amountGive"`
	AmountGiveDisplay string          `json:"amountGiveDisplay"`
	Timestamp         int64           `json:"timestamp"`
	Status            string          `json:"status"`
	Filler            *common.Address `json:"filler,omitempty"`
	FeeAmount         string          `json:"feeAmount,omitempty"`
	ClosedAt          int64           `json:"closedAt,omitempty"`
}

// BookLevel is one open order on a side of the book.
type BookLevel struct {
	ID           uint64         `json:"id"`
	User         common.Address `json:"user"`
	Price        string         `json:"price"` // quote per base
	Base         string         `json:"base"`
	BaseDisplay  string         `json:"baseDisplay"`
	Quote        string         `json:"quote"`
	QuoteDisplay string         `json:"quoteDisplay"`
	Timestamp    int64          `json:"timestamp"`
}

type BookSnapshot struct {
	Base        common.Address `json:"base"`
	BaseSymbol  string         `json:"baseSymbol"`
	Quote       common.Address `json:"quote"`
	QuoteSymbol string         `json:"quoteSymbol"`
	Bids        []BookLevel    `json:"bids"` // best (highest) first
	Asks        []BookLevel    `json:"asks"` // best (lowest) first
}

type TradeInfo struct {
	ID                uint64         `json:"id"`
	Maker             common.Address `json:"maker"`
	Filler            common.Address `json:"filler"`
	TokenGet          common.Address `json:"tokenGet"`
	SymbolGet         string         `json:"symbolGet"`
	AmountGet         string         `json:"amountGet"`
	AmountGetDisplay  string         `json:"amountGetDisplay"`
	TokenGive         common.Address `json:"tokenGive"`
	SymbolGive        string         `json:"symbolGive"`
	AmountGive        string         `json:"amountGive"`
	AmountGiveDisplay string         `json:"amountGiveDisplay"`
	FeeAmount         string         `json:"feeAmount"`
	FeeAmountDisplay  string         `json:"feeAmountDisplay"`
	Price             string         `json:"price"` // tokenGet per tokenGive
	Timestamp         int64          `json:"timestamp"`
}

type EventsPage struct {
	From   uint64         `json:"from"`
	Head   uint64         `json:"head"`
	Events []events.Event `json:"events"`
}

type NonceInfo struct {
	Address common.Address `json:"address"`
	Nonce   uint64         `json:"nonce"` // last accepted
	Next    uint64         `json:"next"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by clients:
//
//	{"op": "subscribe", "channels": ["trades", "account:0xabc..."]}
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// WSAck confirms a subscription change.
type WSAck struct {
	Op       string   `json:"op"`
	Channels []string `json:"channels"`
}

// WSEvent delivers one committed event on the first channel that matched.
type WSEvent struct {
	Channel string       `json:"channel"`
	Event   events.Event `json:"event"`
}
