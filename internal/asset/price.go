package asset

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Price is an effective exchange rate: how many quote units one base unit
// cost in a concrete trade.
type Price struct {
	rate  decimal.Decimal
	base  *Asset
	quote *Asset
}

// EffectivePrice is paid per got. A zero got yields a zero price.
func EffectivePrice(paid, got Amount) (Price, error) {
	if paid.Asset() == nil || got.Asset() == nil {
		return Price{}, ErrNilAsset
	}
	p := Price{base: got.Asset(), quote: paid.Asset()}
	if got.IsZero() {
		return p, nil
	}
	p.rate = paid.ToDecimal().DivRound(got.ToDecimal(), 18)
	return p, nil
}

func (p Price) Rate() decimal.Decimal { return p.rate }
func (p Price) Base() *Asset          { return p.base }
func (p Price) Quote() *Asset         { return p.quote }

// Pair returns e.g. "BZZ/DAI".
func (p Price) Pair() string {
	if p.base == nil || p.quote == nil {
		return "???/???"
	}
	return fmt.Sprintf("%s/%s", p.base.Symbol(), p.quote.Symbol())
}

// Invert returns the quote-per-base price as base-per-quote.
func (p Price) Invert() Price {
	inv := Price{base: p.quote, quote: p.base}
	if !p.rate.IsZero() {
		inv.rate = decimal.NewFromInt(1).DivRound(p.rate, 18)
	}
	return inv
}

// String renders the rate with six decimals.
func (p Price) String() string {
	return fmt.Sprintf("%s %s", p.rate.StringFixed(6), p.Pair())
}
