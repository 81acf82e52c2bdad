// Package domain contains the core value types and pure rules of the exchange context.
package domain

import (
	"fmt"
	"math/big"

	"github.com/fd1az/bzz-exchange/internal/apperror"
)

const (
	// BpsDenominator is 100% in basis points.
	BpsDenominator = 10_000

	// MaxFeeBps is the hard fee ceiling (1%).
	MaxFeeBps = 100
)

// ValidateFee checks a fee against the ceiling.
func ValidateFee(bps uint64) error {
	if bps > MaxFeeBps {
		return apperror.New(apperror.CodeFeeTooHigh,
			apperror.WithContext(fmt.Sprintf("fee %d bps exceeds %d", bps, MaxFeeBps)))
	}
	return nil
}

// Net returns gross scaled down by the fee, rounded toward zero:
// gross * (10000 - fee) / 10000.
func Net(gross *big.Int, feeBps uint64) *big.Int {
	if feeBps > BpsDenominator {
		feeBps = BpsDenominator
	}
	n := new(big.Int).Mul(gross, new(big.Int).SetUint64(BpsDenominator-feeBps))
	return n.Quo(n, big.NewInt(BpsDenominator))
}
