package app

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/bzz-exchange/business/exchange/domain"
	"github.com/fd1az/bzz-exchange/internal/apperror"
	"github.com/fd1az/bzz-exchange/internal/ledger"
)

// MinSqrtRatio and MaxSqrtRatio bound a concentrated pool's sqrtPriceX96.
var (
	MinSqrtRatio    = big.NewInt(4295128739)
	MaxSqrtRatio, _ = new(big.Int).SetString("1461446703485210103287273052203988822378723970342", 10)
)

var wad = big.NewInt(1_000_000_000_000_000_000)

// Venues is the fixed set of liquidity sources.
type Venues struct {
	StableSwap StableSwapPool
	// Uniswap holds the DAI/USDC and DAI/USDT pools, keyed by the alternate coin.
	Uniswap map[domain.Coin]ConcentratedPool
	Quoter  Quoter
	PSM     PegStabilityModule
}

// Router converts between DAI and the alternate stablecoins. Every
// conversion delivers to the exchange and is measured by balance deltas.
type Router struct {
	exchange common.Address
	tokens   map[domain.Coin]Token
	venues   Venues
}

func NewRouter(exchange common.Address, tokens map[domain.Coin]Token, venues Venues) *Router {
	return &Router{exchange: exchange, tokens: tokens, venues: venues}
}

// Address is the account venues call back into.
func (r *Router) Address() common.Address { return r.exchange }

func (r *Router) token(c domain.Coin) (Token, error) {
	t, ok := r.tokens[c]
	if !ok {
		return nil, apperror.New(apperror.CodeConfigurationError, apperror.WithContext("no token for "+c.String()))
	}
	return t, nil
}

// Route moves amount through venue. Toward collateral, amount of coin is
// taken from payer and DAI arrives at the exchange. From collateral, payer
// must be the exchange and amount is DAI it already holds.
func (r *Router) Route(tx *ledger.Tx, venue domain.Venue, dir domain.Direction, coin domain.Coin,
	amount *big.Int, payer common.Address) (domain.SwapResult, error) {
	if err := domain.ValidatePair(coin, venue); err != nil {
		return domain.SwapResult{}, err
	}
	if coin.IsCollateral() {
		return domain.SwapResult{}, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("DAI is not routed"))
	}

	src, err := r.token(coin)
	if err != nil {
		return domain.SwapResult{}, err
	}
	dst, err := r.token(domain.CoinDAI)
	if err != nil {
		return domain.SwapResult{}, err
	}
	if dir == domain.FromCollateral {
		src, dst = dst, src
	}

	srcBefore := src.BalanceOf(tx, payer)
	dstBefore := dst.BalanceOf(tx, r.exchange)

	switch venue {
	case domain.VenueStableSwap:
		err = r.viaStableSwap(tx, dir, coin, amount, payer)
	case domain.VenueUniswap:
		err = r.viaUniswap(tx, dir, coin, amount, payer)
	case domain.VenuePSM:
		err = r.viaPSM(tx, dir, amount, payer)
	}
	if err != nil {
		return domain.SwapResult{}, err
	}

	return domain.SwapResult{
		AmountIn:  new(big.Int).Sub(srcBefore, src.BalanceOf(tx, payer)),
		AmountOut: new(big.Int).Sub(dst.BalanceOf(tx, r.exchange), dstBefore),
	}, nil
}

// pull moves amount of tok from payer to the exchange and returns what arrived.
func (r *Router) pull(tx *ledger.Tx, tok Token, payer common.Address, amount *big.Int) (*big.Int, error) {
	before := tok.BalanceOf(tx, r.exchange)
	if err := tok.TransferFrom(tx, r.exchange, payer, r.exchange, amount); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeTransferFailed, "pull "+tok.Symbol())
	}
	return new(big.Int).Sub(tok.BalanceOf(tx, r.exchange), before), nil
}

func (r *Router) viaStableSwap(tx *ledger.Tx, dir domain.Direction, coin domain.Coin, amount *big.Int, payer common.Address) error {
	pool := r.venues.StableSwap
	if pool == nil {
		return errNoStableSwap()
	}

	i, j := coin.PoolIndex(), domain.CoinDAI.PoolIndex()
	dx := amount
	if dir == domain.ToCollateral {
		tok, err := r.token(coin)
		if err != nil {
			return err
		}
		if dx, err = r.pull(tx, tok, payer, amount); err != nil {
			return err
		}
	} else {
		i, j = j, i
	}

	if _, err := pool.Exchange(tx, r.exchange, i, j, dx, big.NewInt(0)); err != nil {
		return apperror.Wrap(err, apperror.CodeInsufficientLiquidity, "stableswap exchange")
	}
	return nil
}

func (r *Router) viaUniswap(tx *ledger.Tx, dir domain.Direction, coin domain.Coin, amount *big.Int, payer common.Address) error {
	pool, ok := r.venues.Uniswap[coin]
	if !ok {
		return apperror.New(apperror.CodeInvalidLiquidityProvider, apperror.WithContext("no uniswap pool for "+coin.String()))
	}

	in := coin
	if dir == domain.FromCollateral {
		in = domain.CoinDAI
	}
	tokIn, err := r.token(in)
	if err != nil {
		return err
	}

	zeroForOne := pool.Token0() == tokIn.Address()
	limit := new(big.Int).Add(MinSqrtRatio, big.NewInt(1))
	if !zeroForOne {
		limit = new(big.Int).Sub(MaxSqrtRatio, big.NewInt(1))
	}

	_, _, err = pool.Swap(tx, r, r.exchange, zeroForOne, amount, limit, encodePayer(payer))
	if err != nil {
		return apperror.Wrap(err, apperror.CodeInsufficientLiquidity, "uniswap swap")
	}
	return nil
}

func (r *Router) viaPSM(tx *ledger.Tx, dir domain.Direction, amount *big.Int, payer common.Address) error {
	psm := r.venues.PSM
	if psm == nil {
		return errNoPSM()
	}

	if dir == domain.ToCollateral {
		usdc, err := r.token(domain.CoinUSDC)
		if err != nil {
			return err
		}
		received, err := r.pull(tx, usdc, payer, amount)
		if err != nil {
			return err
		}
		if err := psm.SellGem(tx, r.exchange, r.exchange, received); err != nil {
			return apperror.Wrap(err, apperror.CodeInsufficientLiquidity, "psm sellGem")
		}
		return nil
	}

	gemAmt := psmGemOut(amount, psm.Tout(tx), r.gemScale())
	if gemAmt.Sign() == 0 {
		return apperror.New(apperror.CodeInsufficientLiquidity, apperror.WithContext("psm buyGem: amount below one unit"))
	}
	if err := psm.BuyGem(tx, r.exchange, r.exchange, gemAmt); err != nil {
		return apperror.Wrap(err, apperror.CodeInsufficientLiquidity, "psm buyGem")
	}
	return nil
}

func errNoStableSwap() error {
	return apperror.New(apperror.CodeInvalidLiquidityProvider, apperror.WithContext("no stable-swap pool"))
}

func errNoPSM() error {
	return apperror.New(apperror.CodeInvalidLiquidityProvider, apperror.WithContext("no psm"))
}

// gemScale is 10^(18-decimals) for USDC.
func (r *Router) gemScale() *big.Int {
	usdc, err := r.token(domain.CoinUSDC)
	if err != nil {
		return big.NewInt(1)
	}
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(18-int(usdc.Decimals()))), nil)
}

// QuoteIn is the amount of coin that buys at least collateralOut DAI through venue.
func (r *Router) QuoteIn(tx *ledger.Tx, venue domain.Venue, coin domain.Coin, collateralOut *big.Int) (*big.Int, error) {
	if err := domain.ValidatePair(coin, venue); err != nil {
		return nil, err
	}
	if coin.IsCollateral() {
		return new(big.Int).Set(collateralOut), nil
	}

	switch venue {
	case domain.VenueStableSwap:
		if r.venues.StableSwap == nil {
			return nil, errNoStableSwap()
		}
		dx, err := r.venues.StableSwap.GetDx(tx, coin.PoolIndex(), domain.CoinDAI.PoolIndex(), collateralOut)
		if err != nil {
			return nil, apperror.Wrap(err, apperror.CodeInsufficientLiquidity, "stableswap get_dx")
		}
		return dx, nil
	case domain.VenueUniswap:
		pool, tokIn, dai, err := r.uniswapLeg(coin)
		if err != nil {
			return nil, err
		}
		q, err := r.venues.Quoter.QuoteExactOutputSingle(tx, QuoteExactOutputSingleParams{
			TokenIn:           tokIn.Address(),
			TokenOut:          dai.Address(),
			Amount:            collateralOut,
			Fee:               pool.Fee(),
			SqrtPriceLimitX96: big.NewInt(0),
		})
		if err != nil {
			return nil, apperror.Wrap(err, apperror.CodeInsufficientLiquidity, "uniswap quoteExactOutputSingle")
		}
		return q.AmountIn, nil
	case domain.VenuePSM:
		if r.venues.PSM == nil {
			return nil, errNoPSM()
		}
		return psmGemIn(collateralOut, r.venues.PSM.Tin(tx), r.gemScale()), nil
	}
	return nil, apperror.New(apperror.CodeConfigurationError, apperror.WithContext(venue.String()))
}

// QuoteOut is the amount of coin that collateralIn DAI buys through venue.
func (r *Router) QuoteOut(tx *ledger.Tx, venue domain.Venue, coin domain.Coin, collateralIn *big.Int) (*big.Int, error) {
	if err := domain.ValidatePair(coin, venue); err != nil {
		return nil, err
	}
	if coin.IsCollateral() {
		return new(big.Int).Set(collateralIn), nil
	}

	switch venue {
	case domain.VenueStableSwap:
		if r.venues.StableSwap == nil {
			return nil, errNoStableSwap()
		}
		dy, err := r.venues.StableSwap.GetDy(tx, domain.CoinDAI.PoolIndex(), coin.PoolIndex(), collateralIn)
		if err != nil {
			return nil, apperror.Wrap(err, apperror.CodeInsufficientLiquidity, "stableswap get_dy")
		}
		return dy, nil
	case domain.VenueUniswap:
		pool, tokOut, dai, err := r.uniswapLeg(coin)
		if err != nil {
			return nil, err
		}
		q, err := r.venues.Quoter.QuoteExactInputSingle(tx, QuoteExactInputSingleParams{
			TokenIn:           dai.Address(),
			TokenOut:          tokOut.Address(),
			AmountIn:          collateralIn,
			Fee:               pool.Fee(),
			SqrtPriceLimitX96: big.NewInt(0),
		})
		if err != nil {
			return nil, apperror.Wrap(err, apperror.CodeInsufficientLiquidity, "uniswap quoteExactInputSingle")
		}
		return q.AmountOut, nil
	case domain.VenuePSM:
		if r.venues.PSM == nil {
			return nil, errNoPSM()
		}
		return psmGemOut(collateralIn, r.venues.PSM.Tout(tx), r.gemScale()), nil
	}
	return nil, apperror.New(apperror.CodeConfigurationError, apperror.WithContext(venue.String()))
}

func (r *Router) uniswapLeg(coin domain.Coin) (ConcentratedPool, Token, Token, error) {
	pool, ok := r.venues.Uniswap[coin]
	if !ok || r.venues.Quoter == nil {
		return nil, nil, nil, apperror.New(apperror.CodeInvalidLiquidityProvider,
			apperror.WithContext(fmt.Sprintf("no uniswap pool for %s", coin)))
	}
	tok, err := r.token(coin)
	if err != nil {
		return nil, nil, nil, err
	}
	dai, err := r.token(domain.CoinDAI)
	if err != nil {
		return nil, nil, nil, err
	}
	return pool, tok, dai, nil
}

// psmGemIn is ceil(dai·WAD / ((WAD-tin)·scale)), the gem that sells for at
// least dai.
func psmGemIn(dai, tin, scale *big.Int) *big.Int {
	num := new(big.Int).Mul(dai, wad)
	den := new(big.Int).Mul(new(big.Int).Sub(wad, tin), scale)
	q, rem := new(big.Int).QuoRem(num, den, new(big.Int))
	if rem.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// psmGemOut is floor(dai·WAD / ((WAD+tout)·scale)), the most gem dai can buy.
func psmGemOut(dai, tout, scale *big.Int) *big.Int {
	num := new(big.Int).Mul(dai, wad)
	den := new(big.Int).Mul(new(big.Int).Add(wad, tout), scale)
	return num.Quo(num, den)
}
