package uniswap

import (
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
)

// Fee tiers in Uniswap V3 (in hundredths of a bip)
const (
	FeeTier001 = 100   // 0.01%
	FeeTier005 = 500   // 0.05%
	FeeTier030 = 3000  // 0.30%
	FeeTier100 = 10000 // 1.00%

	feeDenominator = 1_000_000
)

var (
	// MinSqrtRatio is the lowest sqrtPriceX96 a pool can reach (tick -887272).
	MinSqrtRatio = big.NewInt(4295128739)
	// MaxSqrtRatio is the highest sqrtPriceX96 a pool can reach (tick 887272).
	MaxSqrtRatio, _ = new(big.Int).SetString("1461446703485210103287273052203988822378723970342", 10)
)

var swapTopic = crypto.Keccak256Hash([]byte("Swap(address,address,int256,int256,uint160,uint128,int24)"))

// ValidFeeTier reports whether fee is one of the deployed tiers.
func ValidFeeTier(fee uint32) bool {
	switch fee {
	case FeeTier001, FeeTier005, FeeTier030, FeeTier100:
		return true
	}
	return false
}

// PriceLimit returns the loosest limit accepted for a swap direction,
// MinSqrtRatio+1 selling token0 and MaxSqrtRatio-1 selling token1.
func PriceLimit(zeroForOne bool) *big.Int {
	if zeroForOne {
		return new(big.Int).Add(MinSqrtRatio, big.NewInt(1))
	}
	return new(big.Int).Sub(MaxSqrtRatio, big.NewInt(1))
}
