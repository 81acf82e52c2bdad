package uniswap

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/bzz-exchange/business/exchange/app"
	"github.com/fd1az/bzz-exchange/internal/ledger"
)

var ErrPoolNotFound = errors.New("uniswap: pool not found")

var _ app.Quoter = (*Quoter)(nil)

type poolKey struct {
	token0, token1 common.Address
	fee            uint32
}

func keyFor(a, b common.Address, fee uint32) poolKey {
	if a.Cmp(b) > 0 {
		a, b = b, a
	}
	return poolKey{token0: a, token1: b, fee: fee}
}

// Quoter prices swaps on known pools without moving funds.
type Quoter struct {
	pools map[poolKey]*Pool
}

func NewQuoter(pools ...*Pool) *Quoter {
	q := &Quoter{pools: make(map[poolKey]*Pool, len(pools))}
	for _, p := range pools {
		q.pools[keyFor(p.Token0(), p.Token1(), p.fee)] = p
	}
	return q
}

func (q *Quoter) pool(in, out common.Address, fee uint32) (*Pool, bool, error) {
	p, ok := q.pools[keyFor(in, out, fee)]
	if !ok || in == out {
		return nil, false, fmt.Errorf("%w: %s/%s fee %d", ErrPoolNotFound, in.Hex(), out.Hex(), fee)
	}
	return p, p.Token0() == in, nil
}

// QuoteExactInputSingle returns the output for spending params.AmountIn.
func (q *Quoter) QuoteExactInputSingle(tx *ledger.Tx, params app.QuoteExactInputSingleParams) (*app.QuoteResult, error) {
	if params.AmountIn == nil || params.AmountIn.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	return q.quote(tx, params.TokenIn, params.TokenOut, params.Fee, params.SqrtPriceLimitX96, params.AmountIn)
}

// QuoteExactOutputSingle returns the input needed to receive params.Amount.
func (q *Quoter) QuoteExactOutputSingle(tx *ledger.Tx, params app.QuoteExactOutputSingleParams) (*app.QuoteResult, error) {
	if params.Amount == nil || params.Amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	return q.quote(tx, params.TokenIn, params.TokenOut, params.Fee, params.SqrtPriceLimitX96, new(big.Int).Neg(params.Amount))
}

func (q *Quoter) quote(tx *ledger.Tx, in, out common.Address, fee uint32, limit, amountSpecified *big.Int) (*app.QuoteResult, error) {
	p, zeroForOne, err := q.pool(in, out, fee)
	if err != nil {
		return nil, err
	}

	r0, r1 := p.Reserves(tx)
	if limit == nil || limit.Sign() == 0 {
		limit = PriceLimit(zeroForOne)
	} else if err := checkLimit(zeroForOne, sqrtPriceX96(r0, r1), limit); err != nil {
		return nil, err
	}

	res, err := p.simulate(r0, r1, zeroForOne, amountSpecified)
	if err != nil {
		return nil, err
	}
	if crossed(zeroForOne, res.sqrtPriceAfter, limit) {
		return nil, ErrPriceLimitReached
	}
	return &app.QuoteResult{
		AmountIn:          res.amountIn,
		AmountOut:         res.amountOut,
		SqrtPriceX96After: res.sqrtPriceAfter,
	}, nil
}
