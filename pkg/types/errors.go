package types

import "errors"

// Error kinds. Every rejected operation wraps exactly one of these, so callers
// can branch with errors.Is and transports can report the kind by name.
var (
	ErrInsufficientBalance        = errors.New("insufficient balance")
	ErrInsufficientAllowance      = errors.New("insufficient allowance")
	ErrInsufficientCustodyBalance = errors.New("insufficient custody balance")
	ErrInvalidRecipient           = errors.New("invalid recipient")
	ErrInvalidSpender             = errors.New("invalid spender")
	ErrInvalidAmount              = errors.New("invalid amount")
	ErrOrderNotFound              = errors.New("order not found")
	ErrOrderNotOpen               = errors.New("order not open")
	ErrNotOrderOwner              = errors.New("not order owner")

	ErrUnknownToken         = errors.New("unknown token")
	ErrInvalidOrder         = errors.New("invalid order")
	ErrSelfTrade            = errors.New("self trade")
	ErrInvalidSignature     = errors.New("invalid signature")
	ErrNonceTooLow          = errors.New("nonce too low")
	ErrMalformedTransaction = errors.New("malformed transaction")

	// ErrStorage marks persistence failures. These are not recoverable by the
	// caller; the host process is expected to stop.
	ErrStorage = errors.New("storage failure")

	// ErrClosed is returned by operations on a venue that has shut down.
	ErrClosed = errors.New("venue closed")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrInsufficientBalance, "InsufficientBalance"},
	{ErrInsufficientAllowance, "InsufficientAllowance"},
	{ErrInsufficientCustodyBalance, "InsufficientCustodyBalance"},
	{ErrInvalidRecipient, "InvalidRecipient"},
	{ErrInvalidSpender, "InvalidSpender"},
	{ErrInvalidAmount, "InvalidAmount"},
	{ErrOrderNotFound, "OrderNotFound"},
	{ErrOrderNotOpen, "OrderNotOpen"},
	{ErrNotOrderOwner, "NotOrderOwner"},
	{ErrUnknownToken, "UnknownToken"},
	{ErrInvalidOrder, "InvalidOrder"},
	{ErrSelfTrade, "SelfTrade"},
	{ErrInvalidSignature, "InvalidSignature"},
	{ErrNonceTooLow, "NonceTooLow"},
	{ErrMalformedTransaction, "MalformedTransaction"},
	{ErrStorage, "Storage"},
	{ErrClosed, "Closed"},
}

// KindOf returns the name of the error kind wrapped by err, "" for nil and
// "Internal" for errors outside the taxonomy.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Internal"
}

// IsFatal reports whether err must stop the host process.
func IsFatal(err error) bool {
	return errors.Is(err, ErrStorage)
}
