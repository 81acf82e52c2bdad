package domain

import (
	"math/big"

	"github.com/holiman/uint256"

	"github.com/fd1az/bzz-exchange/internal/apperror"
)

// BuyRequest asks for BzzAmount BZZ paying at most MaxStablecoinAmount of
// InputCoin through Venue.
type BuyRequest struct {
	BzzAmount           *big.Int
	MaxStablecoinAmount *big.Int
	InputCoin           Coin
	Venue               Venue
	Options             Options
	Payload             []byte
}

// Validate checks amounts, options and the coin/venue pair. Payload content is
// decoded separately.
func (r BuyRequest) Validate() error {
	if err := validateAmount("bzz amount", r.BzzAmount, true); err != nil {
		return err
	}
	if err := validateAmount("max stablecoin amount", r.MaxStablecoinAmount, false); err != nil {
		return err
	}
	if err := r.Options.Validate(); err != nil {
		return err
	}
	return ValidatePair(r.InputCoin, r.Venue)
}

// SellRequest disposes of BzzAmount BZZ for at least MinStablecoinAmount of
// OutputCoin through Venue.
type SellRequest struct {
	BzzAmount           *big.Int
	MinStablecoinAmount *big.Int
	OutputCoin          Coin
	Venue               Venue
}

// Validate checks amounts and the coin/venue pair.
func (r SellRequest) Validate() error {
	if err := validateAmount("bzz amount", r.BzzAmount, true); err != nil {
		return err
	}
	if err := validateAmount("min stablecoin amount", r.MinStablecoinAmount, false); err != nil {
		return err
	}
	return ValidatePair(r.OutputCoin, r.Venue)
}

// SwapResult is what a venue actually moved, measured by balance deltas.
type SwapResult struct {
	AmountIn  *big.Int
	AmountOut *big.Int
}

func validateAmount(name string, v *big.Int, positive bool) error {
	if v == nil || v.Sign() < 0 || (positive && v.Sign() == 0) {
		return apperror.Validation(apperror.CodeInvalidAmount, name)
	}
	if _, overflow := uint256.FromBig(v); overflow {
		return apperror.Validation(apperror.CodeInvalidAmount, name+" exceeds 256 bits")
	}
	return nil
}
