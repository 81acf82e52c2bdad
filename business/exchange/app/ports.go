// Package app contains the exchange orchestrator, its venue router and the
// port definitions for the contracts it talks to.
package app

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/bzz-exchange/internal/ledger"
)

// Every port method takes the in-flight transaction. Methods that move funds
// take the calling account explicitly; it plays the role of msg.sender.

// Token is an ERC-20 token.
type Token interface {
	Address() common.Address
	Symbol() string
	Decimals() uint8
	BalanceOf(tx *ledger.Tx, holder common.Address) *big.Int
	Transfer(tx *ledger.Tx, from, to common.Address, amount *big.Int) error
	TransferFrom(tx *ledger.Tx, spender, from, to common.Address, amount *big.Int) error
	Approve(tx *ledger.Tx, owner, spender common.Address, amount *big.Int) error
}

// AllowedPermitter accepts (nonce, expiry, allowed) permits.
type AllowedPermitter interface {
	PermitAllowed(tx *ledger.Tx, holder, spender common.Address, nonce, expiry *big.Int, allowed bool, v uint8, r, s [32]byte) error
}

// ValuePermitter accepts EIP-2612 (value, deadline) permits.
type ValuePermitter interface {
	Permit(tx *ledger.Tx, owner, spender common.Address, value, deadline *big.Int, v uint8, r, s [32]byte) error
}

// BondingCurve issues and redeems BZZ against DAI collateral.
type BondingCurve interface {
	Address() common.Address
	// BuyPrice is the collateral needed to mint amount.
	BuyPrice(tx *ledger.Tx, amount *big.Int) (*big.Int, error)
	// SellReward is the collateral returned for redeeming amount.
	SellReward(tx *ledger.Tx, amount *big.Int) (*big.Int, error)
	// Mint mints amount to caller, pulling at most maxSpend collateral.
	Mint(tx *ledger.Tx, caller common.Address, amount, maxSpend *big.Int) error
	// MintTo mints amount to to, pulling at most maxSpend collateral from caller.
	MintTo(tx *ledger.Tx, caller common.Address, amount, maxSpend *big.Int, to common.Address) error
	// Redeem burns amount of caller's BZZ and pays at least minReturn collateral.
	Redeem(tx *ledger.Tx, caller common.Address, amount, minReturn *big.Int) error
	CollateralToken() common.Address
	BondedToken() common.Address
}

// StableSwapPool is a three-coin stable-swap pool (DAI=0, USDC=1, USDT=2).
type StableSwapPool interface {
	Address() common.Address
	Coins(i int) (common.Address, error)
	GetDy(tx *ledger.Tx, i, j int, dx *big.Int) (*big.Int, error)
	// GetDx is the smallest input for which GetDy returns at least dy.
	GetDx(tx *ledger.Tx, i, j int, dy *big.Int) (*big.Int, error)
	Exchange(tx *ledger.Tx, caller common.Address, i, j int, dx, minDy *big.Int) (*big.Int, error)
}

// SwapCallback is implemented by whoever calls ConcentratedPool.Swap. The pool
// calls it mid-swap, passing its own address as caller.
type SwapCallback interface {
	Address() common.Address
	UniswapV3SwapCallback(tx *ledger.Tx, caller common.Address, amount0Delta, amount1Delta *big.Int, data []byte) error
}

// ConcentratedPool is a pool that pays out first and collects through a callback.
type ConcentratedPool interface {
	Address() common.Address
	Token0() common.Address
	Token1() common.Address
	Fee() uint32
	// Swap exchanges amountSpecified (positive exact input, negative exact
	// output) and returns the signed deltas owed to the pool.
	Swap(tx *ledger.Tx, callee SwapCallback, recipient common.Address, zeroForOne bool,
		amountSpecified, sqrtPriceLimitX96 *big.Int, data []byte) (amount0, amount1 *big.Int, err error)
}

// QuoteExactInputSingleParams mirrors QuoterV2's struct.
type QuoteExactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	AmountIn          *big.Int
	Fee               uint32
	SqrtPriceLimitX96 *big.Int
}

// QuoteExactOutputSingleParams mirrors QuoterV2's struct.
type QuoteExactOutputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Amount            *big.Int
	Fee               uint32
	SqrtPriceLimitX96 *big.Int
}

// QuoteResult is a quoter response.
type QuoteResult struct {
	AmountIn          *big.Int
	AmountOut         *big.Int
	SqrtPriceX96After *big.Int
}

// Quoter simulates swaps without executing them.
type Quoter interface {
	QuoteExactInputSingle(tx *ledger.Tx, params QuoteExactInputSingleParams) (*QuoteResult, error)
	QuoteExactOutputSingle(tx *ledger.Tx, params QuoteExactOutputSingleParams) (*QuoteResult, error)
}

// PegStabilityModule swaps DAI and USDC at par minus tin/tout (WAD fractions).
type PegStabilityModule interface {
	Address() common.Address
	GemJoin() common.Address
	Tin(tx *ledger.Tx) *big.Int
	Tout(tx *ledger.Tx) *big.Int
	// SellGem takes gemAmt USDC from caller via the gem join and sends DAI to usr.
	SellGem(tx *ledger.Tx, caller, usr common.Address, gemAmt *big.Int) error
	// BuyGem takes DAI from caller and sends gemAmt USDC to usr.
	BuyGem(tx *ledger.Tx, caller, usr common.Address, gemAmt *big.Int) error
}

// Relay moves tokens to the remote ledger.
type Relay interface {
	Address() common.Address
	RelayTokens(tx *ledger.Tx, caller, token, receiver common.Address, value *big.Int) error
	RelayTokensAndCall(tx *ledger.Tx, caller, token, receiver common.Address, value *big.Int, data []byte) error
}
