// Package uniswap simulates single-range concentrated-liquidity pools and a
// QuoterV2-style quoter. Liquidity is one full-range position, so the curve
// reduces to a constant product over the pool's balances.
package uniswap

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/bzz-exchange/business/exchange/app"
	"github.com/fd1az/bzz-exchange/internal/ledger"
)

var (
	ErrZeroAmount            = errors.New("uniswap: AS")
	ErrInvalidPriceLimit     = errors.New("uniswap: SPL")
	ErrInsufficientInput     = errors.New("uniswap: IIA")
	ErrPriceLimitReached     = errors.New("uniswap: price limit reached")
	ErrInsufficientLiquidity = errors.New("uniswap: insufficient liquidity")
	ErrInvalidFeeTier        = errors.New("uniswap: invalid fee tier")
	ErrIdenticalTokens       = errors.New("uniswap: identical tokens")
)

var _ app.ConcentratedPool = (*Pool)(nil)

// Pool holds token0 and token1, ordered by address.
type Pool struct {
	address common.Address
	token0  *ledger.ERC20
	token1  *ledger.ERC20
	fee     uint32
}

// New deploys a pool for the pair. Token order follows address order.
func New(addr common.Address, a, b *ledger.ERC20, fee uint32) (*Pool, error) {
	if !ValidFeeTier(fee) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFeeTier, fee)
	}
	if a.Address() == b.Address() {
		return nil, ErrIdenticalTokens
	}
	if a.Address().Cmp(b.Address()) > 0 {
		a, b = b, a
	}
	return &Pool{address: addr, token0: a, token1: b, fee: fee}, nil
}

func (p *Pool) Address() common.Address { return p.address }
func (p *Pool) Token0() common.Address  { return p.token0.Address() }
func (p *Pool) Token1() common.Address  { return p.token1.Address() }
func (p *Pool) Fee() uint32             { return p.fee }

// Reserves returns the pool's balances of token0 and token1.
func (p *Pool) Reserves(tx *ledger.Tx) (*big.Int, *big.Int) {
	return p.token0.BalanceOf(tx, p.address), p.token1.BalanceOf(tx, p.address)
}

// SqrtPriceX96 is sqrt(reserve1/reserve0) in Q64.96.
func (p *Pool) SqrtPriceX96(tx *ledger.Tx) *big.Int {
	r0, r1 := p.Reserves(tx)
	return sqrtPriceX96(r0, r1)
}

// AddLiquidity deposits both tokens from provider into the full range.
func (p *Pool) AddLiquidity(tx *ledger.Tx, provider common.Address, amount0, amount1 *big.Int) error {
	if err := p.token0.TransferFrom(tx, p.address, provider, p.address, amount0); err != nil {
		return err
	}
	return p.token1.TransferFrom(tx, p.address, provider, p.address, amount1)
}

// Swap pays the output to recipient first, then asks callee for the input
// and checks it arrived. A positive amountSpecified is an exact input, a
// negative one an exact output. Swaps that would move the price past
// sqrtPriceLimitX96 revert instead of filling partially.
func (p *Pool) Swap(tx *ledger.Tx, callee app.SwapCallback, recipient common.Address, zeroForOne bool,
	amountSpecified, sqrtPriceLimitX96 *big.Int, data []byte) (*big.Int, *big.Int, error) {
	if amountSpecified == nil || amountSpecified.Sign() == 0 {
		return nil, nil, ErrZeroAmount
	}

	r0, r1 := p.Reserves(tx)
	price := sqrtPriceX96(r0, r1)
	if err := checkLimit(zeroForOne, price, sqrtPriceLimitX96); err != nil {
		return nil, nil, err
	}

	q, err := p.simulate(r0, r1, zeroForOne, amountSpecified)
	if err != nil {
		return nil, nil, err
	}
	if crossed(zeroForOne, q.sqrtPriceAfter, sqrtPriceLimitX96) {
		return nil, nil, ErrPriceLimitReached
	}

	tokenIn, tokenOut := p.token0, p.token1
	amount0, amount1 := new(big.Int).Set(q.amountIn), new(big.Int).Neg(q.amountOut)
	if !zeroForOne {
		tokenIn, tokenOut = p.token1, p.token0
		amount0, amount1 = new(big.Int).Neg(q.amountOut), new(big.Int).Set(q.amountIn)
	}

	if err := tokenOut.Transfer(tx, p.address, recipient, q.amountOut); err != nil {
		return nil, nil, err
	}

	before := tokenIn.BalanceOf(tx, p.address)
	if err := callee.UniswapV3SwapCallback(tx, p.address, amount0, amount1, data); err != nil {
		return nil, nil, err
	}
	paid := new(big.Int).Sub(tokenIn.BalanceOf(tx, p.address), before)
	if paid.Cmp(q.amountIn) < 0 {
		return nil, nil, fmt.Errorf("%w: paid %s, owed %s", ErrInsufficientInput, paid, q.amountIn)
	}

	logData := make([]byte, 0, 96)
	logData = append(logData, int256Bytes(amount0)...)
	logData = append(logData, int256Bytes(amount1)...)
	logData = append(logData, common.LeftPadBytes(q.sqrtPriceAfter.Bytes(), 32)...)
	tx.Emit(p.address, []common.Hash{
		swapTopic,
		common.BytesToHash(callee.Address().Bytes()),
		common.BytesToHash(recipient.Bytes()),
	}, logData)

	return amount0, amount1, nil
}

type swapQuote struct {
	amountIn       *big.Int
	amountOut      *big.Int
	sqrtPriceAfter *big.Int
}

// simulate prices a swap against reserves r0, r1. Exact-output inputs round
// up so that spending the quoted input always buys at least the output.
func (p *Pool) simulate(r0, r1 *big.Int, zeroForOne bool, amountSpecified *big.Int) (*swapQuote, error) {
	rIn, rOut := r0, r1
	if !zeroForOne {
		rIn, rOut = r1, r0
	}
	if rIn.Sign() == 0 || rOut.Sign() == 0 {
		return nil, ErrInsufficientLiquidity
	}

	feeKeep := big.NewInt(int64(feeDenominator - p.fee))
	denom := big.NewInt(feeDenominator)

	var amountIn, amountOut, inNet *big.Int
	if amountSpecified.Sign() > 0 {
		amountIn = new(big.Int).Set(amountSpecified)
		inNet = new(big.Int).Mul(amountIn, feeKeep)
		inNet.Quo(inNet, denom)
		amountOut = new(big.Int).Mul(rOut, inNet)
		amountOut.Quo(amountOut, new(big.Int).Add(rIn, inNet))
	} else {
		amountOut = new(big.Int).Neg(amountSpecified)
		if amountOut.Cmp(rOut) >= 0 {
			return nil, fmt.Errorf("%w: want %s, pool holds %s", ErrInsufficientLiquidity, amountOut, rOut)
		}
		inNet = ceilDiv(new(big.Int).Mul(rIn, amountOut), new(big.Int).Sub(rOut, amountOut))
		amountIn = ceilDiv(new(big.Int).Mul(inNet, denom), feeKeep)
	}

	newIn := new(big.Int).Add(rIn, inNet)
	newOut := new(big.Int).Sub(rOut, amountOut)
	after := sqrtPriceX96(newIn, newOut)
	if !zeroForOne {
		after = sqrtPriceX96(newOut, newIn)
	}
	return &swapQuote{amountIn: amountIn, amountOut: amountOut, sqrtPriceAfter: after}, nil
}

func checkLimit(zeroForOne bool, price, limit *big.Int) error {
	if limit == nil {
		return ErrInvalidPriceLimit
	}
	if zeroForOne {
		if limit.Cmp(price) >= 0 || limit.Cmp(MinSqrtRatio) <= 0 {
			return ErrInvalidPriceLimit
		}
		return nil
	}
	if limit.Cmp(price) <= 0 || limit.Cmp(MaxSqrtRatio) >= 0 {
		return ErrInvalidPriceLimit
	}
	return nil
}

func crossed(zeroForOne bool, after, limit *big.Int) bool {
	if zeroForOne {
		return after.Cmp(limit) < 0
	}
	return after.Cmp(limit) > 0
}

func sqrtPriceX96(r0, r1 *big.Int) *big.Int {
	if r0.Sign() == 0 {
		return new(big.Int)
	}
	v := new(big.Int).Lsh(r1, 192)
	v.Quo(v, r0)
	return v.Sqrt(v)
}

func int256Bytes(v *big.Int) []byte {
	if v.Sign() >= 0 {
		return common.LeftPadBytes(v.Bytes(), 32)
	}
	// two's complement
	t := new(big.Int).Add(new(big.Int).Lsh(big.NewInt(1), 256), v)
	return common.LeftPadBytes(t.Bytes(), 32)
}

func ceilDiv(a, b *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(a, b, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}
