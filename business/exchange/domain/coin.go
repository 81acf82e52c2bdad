package domain

import (
	"fmt"
	"strings"

	"github.com/fd1az/bzz-exchange/internal/apperror"
)

// Coin is one of the stablecoins the exchange accepts. The numeric value is
// the coin's index in the stable-swap pool.
type Coin uint8

const (
	CoinDAI Coin = iota
	CoinUSDC
	CoinUSDT
)

// Coins lists every supported coin in pool order.
var Coins = []Coin{CoinDAI, CoinUSDC, CoinUSDT}

func (c Coin) String() string {
	switch c {
	case CoinDAI:
		return "DAI"
	case CoinUSDC:
		return "USDC"
	case CoinUSDT:
		return "USDT"
	default:
		return fmt.Sprintf("Coin(%d)", uint8(c))
	}
}

// Valid reports whether c is a known coin.
func (c Coin) Valid() bool {
	return c <= CoinUSDT
}

// IsCollateral reports whether c is the bonding curve's collateral.
func (c Coin) IsCollateral() bool {
	return c == CoinDAI
}

// PoolIndex returns the coin's index in the stable-swap pool.
func (c Coin) PoolIndex() int {
	return int(c)
}

// ParseCoin parses a symbol such as "usdc".
func ParseCoin(s string) (Coin, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DAI":
		return CoinDAI, nil
	case "USDC":
		return CoinUSDC, nil
	case "USDT":
		return CoinUSDT, nil
	default:
		return 0, apperror.New(apperror.CodeInvalidInput, apperror.WithContext("unknown coin "+s))
	}
}

// Venue selects how an alternate stablecoin is converted to or from collateral.
type Venue uint8

const (
	// VenueNone means no conversion; only valid for the collateral coin.
	VenueNone Venue = iota
	// VenueStableSwap is the three-coin stable-swap pool.
	VenueStableSwap
	// VenueUniswap is a concentrated-liquidity pool settled through a callback.
	VenueUniswap
	// VenuePSM is the peg-stability module (USDC only).
	VenuePSM
)

func (v Venue) String() string {
	switch v {
	case VenueNone:
		return "none"
	case VenueStableSwap:
		return "stableswap"
	case VenueUniswap:
		return "uniswap"
	case VenuePSM:
		return "psm"
	default:
		return fmt.Sprintf("Venue(%d)", uint8(v))
	}
}

// ParseVenue parses a venue name.
func ParseVenue(s string) (Venue, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return VenueNone, nil
	case "stableswap", "3pool", "curve":
		return VenueStableSwap, nil
	case "uniswap", "univ3":
		return VenueUniswap, nil
	case "psm":
		return VenuePSM, nil
	default:
		return 0, apperror.New(apperror.CodeInvalidInput, apperror.WithContext("unknown venue "+s))
	}
}

// ValidatePair checks that venue can serve coin. The collateral coin needs no
// venue; an alternate coin needs one, and the PSM only serves USDC.
func ValidatePair(coin Coin, venue Venue) error {
	if !coin.Valid() {
		return apperror.New(apperror.CodeConfigurationError, apperror.WithContext("unknown coin "+coin.String()))
	}

	switch venue {
	case VenueNone:
		if !coin.IsCollateral() {
			return apperror.New(apperror.CodeConfigurationError,
				apperror.WithContext(coin.String()+" requires a venue"))
		}
		return nil
	case VenueStableSwap, VenueUniswap:
	case VenuePSM:
		if coin != CoinUSDC {
			return apperror.New(apperror.CodeInvalidLiquidityProvider,
				apperror.WithContext("psm cannot serve "+coin.String()))
		}
	default:
		return apperror.New(apperror.CodeConfigurationError, apperror.WithContext("unknown venue "+venue.String()))
	}

	if coin.IsCollateral() {
		return apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("DAI is the collateral, venue "+venue.String()+" not applicable"))
	}
	return nil
}

// Direction is the way value flows through a venue.
type Direction uint8

const (
	// ToCollateral converts an alternate coin into DAI.
	ToCollateral Direction = iota
	// FromCollateral converts DAI into an alternate coin.
	FromCollateral
)

func (d Direction) String() string {
	if d == ToCollateral {
		return "to-collateral"
	}
	return "from-collateral"
}
