// Package presenter formats the engine's raw integer minor-unit values
// (prices, quantities, collateral) into human-readable decimal strings for
// the dashboard and CLI. It never participates in engine arithmetic —
// every computation upstream stays in integer minor units. Values are
// shifted by the quote/base asset decimal exponents only; a market's
// TickSize and LotSize play no part in the formatting.
package presenter

import (
	"github.com/shopspring/decimal"
)

// Formatter converts minor-unit integers to decimal strings given the
// asset's decimal exponents (e.g. 6 for a 6-decimal quote currency, 9 for
// a 9-decimal base asset).
type Formatter struct {
	quoteDecimals int32
	baseDecimals  int32
}

// NewFormatter builds a Formatter for a market with the given quote and
// base asset decimal precision.
func NewFormatter(quoteDecimals, baseDecimals int) *Formatter {
	return &Formatter{quoteDecimals: int32(quoteDecimals), baseDecimals: int32(baseDecimals)}
}

// FormatPrice renders a raw quote-minor-unit price as a decimal string.
func (f *Formatter) FormatPrice(price uint64) string {
	return shift(price, f.quoteDecimals)
}

// FormatQty renders a raw base-minor-unit quantity as a decimal string.
func (f *Formatter) FormatQty(qty uint64) string {
	return shift(qty, f.baseDecimals)
}

// FormatCollateral renders raw quote-minor-unit collateral as a decimal
// string, using the same precision as FormatPrice since collateral is
// held in the quote currency.
func (f *Formatter) FormatCollateral(amount uint64) string {
	return shift(amount, f.quoteDecimals)
}

// FormatNotional renders a price*qty product already computed in raw
// quote-minor units.
func (f *Formatter) FormatNotional(notional uint64) string {
	return shift(notional, f.quoteDecimals)
}

// FormatSignedFunding renders a signed funding payment (negative when the
// account pays) in quote-minor units.
func (f *Formatter) FormatSignedFunding(net int64) string {
	d := decimal.New(net, -f.quoteDecimals)
	return d.String()
}

func shift(value uint64, decimals int32) string {
	return decimal.New(int64(value), -decimals).String()
}
