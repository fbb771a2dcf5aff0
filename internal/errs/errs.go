// Package errs is the engine's enumerated error taxonomy. Every fallible
// step in internal/ returns early with one of these sentinels (wrapped
// with context via fmt.Errorf's %w where useful); nothing panics. Callers
// use errors.Is against the sentinels, or CodeOf to recover the bare
// enumerated code the source program exposes as an on-chain ErrorCode.
package errs

import "errors"

// Code identifies one error category. The numeric values have no
// persisted meaning (unlike record discriminators) — they only need to be
// stable within a process for logging/metrics.
type Code uint8

const (
	CodeUnknown Code = iota
	CodeInvalidAmount
	CodeInvalidQuantity
	CodeInvalidCapacity
	CodeInvalidOrderbookSide
	CodeInvalidIndex
	CodeOrderbookFull
	CodeOrderbookOverflow
	CodeOrderbookEmpty
	CodeLeverageExceeded
	CodeInsufficientCollateral
	CodeSlippageExceeded
	CodeHealthyAccount
	CodeInvalidPriceFeed
	CodeStalePrice
	CodePriceDeviation
	CodeOverflow
	CodeUnauthorized
	CodeEventSerializationFailure
	CodeEventDeserializationFailure
)

type codedError struct {
	code Code
	msg  string
}

func (e *codedError) Error() string { return e.msg }

func new(code Code, msg string) error {
	return &codedError{code: code, msg: msg}
}

// Sentinel errors, one per enumerated error code.
var (
	ErrInvalidAmount              = new(CodeInvalidAmount, "invalid amount")
	ErrInvalidQuantity             = new(CodeInvalidQuantity, "invalid quantity")
	ErrInvalidCapacity             = new(CodeInvalidCapacity, "invalid capacity")
	ErrInvalidOrderbookSide        = new(CodeInvalidOrderbookSide, "invalid orderbook side")
	ErrInvalidIndex                = new(CodeInvalidIndex, "invalid slab index")
	ErrOrderbookFull               = new(CodeOrderbookFull, "orderbook full")
	ErrOrderbookOverflow           = new(CodeOrderbookOverflow, "orderbook order-id overflow")
	ErrOrderbookEmpty              = new(CodeOrderbookEmpty, "orderbook empty")
	ErrLeverageExceeded            = new(CodeLeverageExceeded, "leverage limit exceeded")
	ErrInsufficientCollateral      = new(CodeInsufficientCollateral, "insufficient collateral")
	ErrSlippageExceeded            = new(CodeSlippageExceeded, "slippage tolerance exceeded")
	ErrHealthyAccount              = new(CodeHealthyAccount, "account is healthy, liquidation not permitted")
	ErrInvalidPriceFeed            = new(CodeInvalidPriceFeed, "invalid price feed")
	ErrStalePrice                  = new(CodeStalePrice, "oracle price is stale")
	ErrPriceDeviation              = new(CodePriceDeviation, "oracle price deviation exceeds band")
	ErrOverflow                    = new(CodeOverflow, "arithmetic overflow")
	ErrUnauthorized                = new(CodeUnauthorized, "unauthorized")
	ErrEventSerializationFailure   = new(CodeEventSerializationFailure, "event serialization failure")
	ErrEventDeserializationFailure = new(CodeEventDeserializationFailure, "event deserialization failure")
)

// CodeOf recovers the enumerated Code from an error produced by this
// package, walking the unwrap chain. Returns CodeUnknown for any other
// error (including nil).
func CodeOf(err error) Code {
	var ce *codedError
	if errors.As(err, &ce) {
		return ce.code
	}
	return CodeUnknown
}
