package app_test

import (
	"context"
	"errors"
	"io"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/bzz-exchange/business/exchange/app"
	"github.com/fd1az/bzz-exchange/business/exchange/devnet"
	"github.com/fd1az/bzz-exchange/business/exchange/domain"
	"github.com/fd1az/bzz-exchange/business/exchange/infra/bondingcurve"
	"github.com/fd1az/bzz-exchange/internal/apperror"
	"github.com/fd1az/bzz-exchange/internal/ledger"
	"github.com/fd1az/bzz-exchange/internal/logger"
)

var (
	buyer    = common.HexToAddress("0x00000000000000000000000000000000000B0001")
	treasury = common.HexToAddress("0x00000000000000000000000000000000000B0002")
)

type combo struct {
	coin  domain.Coin
	venue domain.Venue
}

var combos = []combo{
	{domain.CoinDAI, domain.VenueNone},
	{domain.CoinUSDC, domain.VenueStableSwap},
	{domain.CoinUSDT, domain.VenueStableSwap},
	{domain.CoinUSDC, domain.VenueUniswap},
	{domain.CoinUSDT, domain.VenueUniswap},
	{domain.CoinUSDC, domain.VenuePSM},
}

func (c combo) String() string { return c.coin.String() + "_" + c.venue.String() }

func newEnv(t *testing.T, tweak func(*devnet.Params)) *devnet.Env {
	t.Helper()
	p := devnet.DefaultParams()
	if tweak != nil {
		tweak(&p)
	}
	env, err := devnet.Deploy(context.Background(), p, logger.New(io.Discard, logger.LevelError, "test", nil))
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Fund(context.Background(), buyer, 100_000); err != nil {
		t.Fatal(err)
	}
	return env
}

func bzz(n int64) *big.Int { return devnet.Units(n, 16) }

func buyRequest(c combo, amount, max *big.Int) domain.BuyRequest {
	return domain.BuyRequest{BzzAmount: amount, MaxStablecoinAmount: max, InputCoin: c.coin, Venue: c.venue}
}

func sellRequest(c combo, amount, min *big.Int) domain.SellRequest {
	return domain.SellRequest{BzzAmount: amount, MinStablecoinAmount: min, OutputCoin: c.coin, Venue: c.venue}
}

func unlimited() *big.Int { return ledger.MaxUint256() }

func assertAlternatesEmpty(t *testing.T, env *devnet.Env) {
	t.Helper()
	for _, tok := range []*ledger.ERC20{env.USDC, env.USDT} {
		if bal := env.Balance(tok, env.Exchange.Address()); bal.Sign() != 0 {
			t.Errorf("exchange holds %s %s", bal, tok.Symbol())
		}
	}
}

func TestBuy_AllVenues(t *testing.T) {
	for _, c := range combos {
		t.Run(c.String(), func(t *testing.T) {
			env := newEnv(t, func(p *devnet.Params) { p.FeeBps = 30 })
			amount := bzz(1_000)
			tok := env.Token(c.coin)

			q, err := env.Exchange.QuoteBuy(c.coin, c.venue, amount)
			if err != nil {
				t.Fatal(err)
			}
			inBefore := env.Balance(tok, buyer)
			bzzBefore := env.Balance(env.BZZ, buyer)

			r, err := env.Exchange.Buy(context.Background(), buyer, buyRequest(c, amount, q.Input))
			if err != nil {
				t.Fatal(err)
			}

			if want := domain.Net(amount, 30); r.BzzMinted.Cmp(want) != 0 {
				t.Errorf("expected %s BZZ minted, got %s", want, r.BzzMinted)
			}
			if got := new(big.Int).Sub(env.Balance(env.BZZ, buyer), bzzBefore); got.Cmp(r.BzzMinted) != 0 {
				t.Errorf("expected buyer to receive %s BZZ, got %s", r.BzzMinted, got)
			}
			if spent := new(big.Int).Sub(inBefore, env.Balance(tok, buyer)); spent.Cmp(r.InputSpent) != 0 || spent.Cmp(q.Input) != 0 {
				t.Errorf("expected buyer to spend %s, receipt %s, actual %s", q.Input, r.InputSpent, spent)
			}
			if r.CollateralIn.Cmp(q.Collateral) < 0 {
				t.Errorf("collateral %s below buy price %s", r.CollateralIn, q.Collateral)
			}
			if r.FeeRetained.Sign() <= 0 {
				t.Errorf("expected a positive retained fee, got %s", r.FeeRetained)
			}
			if r.Settlement.Kind != domain.SettleLocal {
				t.Errorf("expected local settlement, got %s", r.Settlement.Kind)
			}
			assertAlternatesEmpty(t, env)
		})
	}
}

func TestSell_AllVenues(t *testing.T) {
	for _, c := range combos {
		t.Run(c.String(), func(t *testing.T) {
			env := newEnv(t, func(p *devnet.Params) { p.FeeBps = 30 })
			amount := bzz(1_000)
			tok := env.Token(c.coin)

			q, err := env.Exchange.QuoteSell(c.coin, c.venue, amount)
			if err != nil {
				t.Fatal(err)
			}
			outBefore := env.Balance(tok, buyer)

			r, err := env.Exchange.Sell(context.Background(), buyer, sellRequest(c, amount, q.Output))
			if err != nil {
				t.Fatal(err)
			}

			if got := new(big.Int).Sub(env.Balance(tok, buyer), outBefore); got.Cmp(r.Payout) != 0 {
				t.Errorf("expected payout %s, seller received %s", r.Payout, got)
			}
			if r.Payout.Cmp(q.OutputNet) != 0 {
				t.Errorf("expected payout %s, got %s", q.OutputNet, r.Payout)
			}
			if r.Payout.Cmp(q.Output) >= 0 {
				t.Errorf("expected the fee to reduce the payout below %s, got %s", q.Output, r.Payout)
			}
			if want := new(big.Int).Sub(r.CollateralOut, domain.Net(r.CollateralOut, 30)); r.FeeRetained.Cmp(want) != 0 {
				t.Errorf("expected fee %s, got %s", want, r.FeeRetained)
			}
			assertAlternatesEmpty(t, env)
		})
	}
}

func TestBuySell_RoundTrip(t *testing.T) {
	for _, c := range combos {
		t.Run(c.String(), func(t *testing.T) {
			results := make(map[uint64]*big.Int)
			for _, fee := range []uint64{0, 50} {
				env := newEnv(t, func(p *devnet.Params) { p.FeeBps = fee })
				tok := env.Token(c.coin)
				before := env.Balance(tok, buyer)
				amount := bzz(5_000)

				r, err := env.Exchange.Buy(context.Background(), buyer, buyRequest(c, amount, unlimited()))
				if err != nil {
					t.Fatal(err)
				}
				if _, err := env.Exchange.Sell(context.Background(), buyer, sellRequest(c, r.BzzMinted, big.NewInt(0))); err != nil {
					t.Fatal(err)
				}

				lost := new(big.Int).Sub(before, env.Balance(tok, buyer))
				if lost.Sign() < 0 {
					t.Errorf("fee %d: round trip gained %s", fee, new(big.Int).Neg(lost))
				}
				if c.coin.IsCollateral() && fee == 0 && lost.Sign() != 0 {
					t.Errorf("expected an exact DAI round trip without a fee, lost %s", lost)
				}
				results[fee] = lost
				assertAlternatesEmpty(t, env)
			}
			if results[50].Cmp(results[0]) <= 0 {
				t.Errorf("expected the fee to strictly reduce proceeds: lost %s with fee, %s without", results[50], results[0])
			}
		})
	}
}

func TestBuy_SlippageBoundary(t *testing.T) {
	for _, c := range combos {
		t.Run(c.String(), func(t *testing.T) {
			env := newEnv(t, nil)
			amount := bzz(2_500)
			q, err := env.Exchange.QuoteBuy(c.coin, c.venue, amount)
			if err != nil {
				t.Fatal(err)
			}

			short := new(big.Int).Sub(q.Input, big.NewInt(1))
			_, err = env.Exchange.Buy(context.Background(), buyer, buyRequest(c, amount, short))
			if !apperror.HasCode(err, apperror.CodeSlippageExceeded) {
				t.Fatalf("expected %s one unit below the quote, got %v", apperror.CodeSlippageExceeded, err)
			}

			if _, err := env.Exchange.Buy(context.Background(), buyer, buyRequest(c, amount, q.Input)); err != nil {
				t.Errorf("expected buy at exactly the quote to succeed, got %v", err)
			}
		})
	}
}

func TestSell_SlippageBoundary(t *testing.T) {
	for _, c := range combos {
		t.Run(c.String(), func(t *testing.T) {
			env := newEnv(t, func(p *devnet.Params) { p.FeeBps = 10 })
			amount := bzz(2_500)
			q, err := env.Exchange.QuoteSell(c.coin, c.venue, amount)
			if err != nil {
				t.Fatal(err)
			}
			bzzBefore := env.Balance(env.BZZ, buyer)

			over := new(big.Int).Add(q.Output, big.NewInt(1))
			_, err = env.Exchange.Sell(context.Background(), buyer, sellRequest(c, amount, over))
			if !apperror.HasCode(err, apperror.CodeSlippageExceeded) {
				t.Fatalf("expected %s one unit above the quote, got %v", apperror.CodeSlippageExceeded, err)
			}
			if got := env.Balance(env.BZZ, buyer); got.Cmp(bzzBefore) != 0 {
				t.Errorf("expected no BZZ pulled on slippage failure, balance %s -> %s", bzzBefore, got)
			}

			if _, err := env.Exchange.Sell(context.Background(), buyer, sellRequest(c, amount, q.Output)); err != nil {
				t.Errorf("expected sell at exactly the quote to succeed, got %v", err)
			}
		})
	}
}

func TestBuy_InvalidPairFailsBeforeFundsMove(t *testing.T) {
	tests := []struct {
		name string
		c    combo
		want apperror.Code
	}{
		{"usdt_via_psm", combo{domain.CoinUSDT, domain.VenuePSM}, apperror.CodeInvalidLiquidityProvider},
		{"dai_via_stableswap", combo{domain.CoinDAI, domain.VenueStableSwap}, apperror.CodeConfigurationError},
		{"dai_via_psm", combo{domain.CoinDAI, domain.VenuePSM}, apperror.CodeConfigurationError},
		{"usdc_without_venue", combo{domain.CoinUSDC, domain.VenueNone}, apperror.CodeConfigurationError},
		{"unknown_venue", combo{domain.CoinUSDC, domain.Venue(9)}, apperror.CodeConfigurationError},
	}

	env := newEnv(t, nil)
	block := env.Chain.BlockNumber()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.Exchange.Buy(context.Background(), buyer, buyRequest(tt.c, bzz(10), unlimited()))
			if !apperror.HasCode(err, tt.want) {
				t.Errorf("expected %s, got %v", tt.want, err)
			}
			if !errors.Is(err, apperror.Sentinel(apperror.CodeConfigurationError)) {
				t.Errorf("expected a configuration error, got %v", err)
			}

			_, err = env.Exchange.Sell(context.Background(), buyer, sellRequest(tt.c, bzz(10), big.NewInt(0)))
			if !apperror.HasCode(err, tt.want) {
				t.Errorf("sell: expected %s, got %v", tt.want, err)
			}
		})
	}
	if env.Chain.BlockNumber() != block {
		t.Error("expected no transaction to be executed for invalid pairs")
	}
}

func TestExchange_MissingVenueIsInvalidProvider(t *testing.T) {
	env := newEnv(t, nil)
	ex, err := app.NewExchange(app.Config{
		Address: common.HexToAddress("0x00000000000000000000000000000000000B00E0"),
		Owner:   env.Params.Owner,
		FeeBps:  env.Params.FeeBps,
		Chain:   env.Chain,
		Curve:   env.Curve,
		BZZ:     env.BZZ,
		Stablecoins: map[domain.Coin]app.Token{
			domain.CoinDAI:  env.DAI,
			domain.CoinUSDC: env.USDC,
			domain.CoinUSDT: env.USDT,
		},
		Venues: app.Venues{Uniswap: map[domain.Coin]app.ConcentratedPool{}},
		Logger: logger.New(io.Discard, logger.LevelError, "test", nil),
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	usdcBefore := env.Balance(env.USDC, buyer)
	for _, c := range []combo{
		{domain.CoinUSDC, domain.VenueStableSwap},
		{domain.CoinUSDT, domain.VenueStableSwap},
		{domain.CoinUSDC, domain.VenueUniswap},
		{domain.CoinUSDC, domain.VenuePSM},
	} {
		t.Run(c.String(), func(t *testing.T) {
			if _, err := ex.Buy(ctx, buyer, buyRequest(c, bzz(1), unlimited())); !apperror.HasCode(err, apperror.CodeInvalidLiquidityProvider) {
				t.Errorf("buy: expected %s, got %v", apperror.CodeInvalidLiquidityProvider, err)
			}
			if _, err := ex.Sell(ctx, buyer, sellRequest(c, bzz(1), big.NewInt(0))); !apperror.HasCode(err, apperror.CodeInvalidLiquidityProvider) {
				t.Errorf("sell: expected %s, got %v", apperror.CodeInvalidLiquidityProvider, err)
			}
			if _, err := ex.QuoteBuy(c.coin, c.venue, bzz(1)); !apperror.HasCode(err, apperror.CodeInvalidLiquidityProvider) {
				t.Errorf("quote buy: expected %s, got %v", apperror.CodeInvalidLiquidityProvider, err)
			}
			if _, err := ex.QuoteSell(c.coin, c.venue, bzz(1)); !apperror.HasCode(err, apperror.CodeInvalidLiquidityProvider) {
				t.Errorf("quote sell: expected %s, got %v", apperror.CodeInvalidLiquidityProvider, err)
			}
		})
	}

	if bal := env.Balance(env.USDC, buyer); bal.Cmp(usdcBefore) != 0 {
		t.Errorf("expected buyer USDC untouched at %s, got %s", usdcBefore, bal)
	}
}

func TestBuy_RevertsAtomically(t *testing.T) {
	// a lossy USDT leaves the curve short of collateral after the pull
	env := newEnv(t, func(p *devnet.Params) { p.USDTTransferFeeBps = 100 })
	c := combo{domain.CoinUSDT, domain.VenueStableSwap}

	usdtBefore := env.Balance(env.USDT, buyer)
	poolBefore := env.Balance(env.USDT, env.StableSwap.Address())
	supplyBefore := totalSupply(env, env.BZZ)

	_, err := env.Exchange.Buy(context.Background(), buyer, buyRequest(c, bzz(1_000), unlimited()))
	if !errors.Is(err, bondingcurve.ErrPriceAboveMax) {
		t.Fatalf("expected the mint to fail with ErrPriceAboveMax, got %v", err)
	}

	if got := env.Balance(env.USDT, buyer); got.Cmp(usdtBefore) != 0 {
		t.Errorf("buyer USDT %s -> %s after revert", usdtBefore, got)
	}
	if got := env.Balance(env.USDT, env.StableSwap.Address()); got.Cmp(poolBefore) != 0 {
		t.Errorf("pool USDT %s -> %s after revert", poolBefore, got)
	}
	if got := totalSupply(env, env.BZZ); got.Cmp(supplyBefore) != 0 {
		t.Errorf("BZZ supply %s -> %s after revert", supplyBefore, got)
	}
}

func TestSell_FeeOnTransferMeasuredByDelta(t *testing.T) {
	env := newEnv(t, func(p *devnet.Params) { p.USDTTransferFeeBps = 10 })
	c := combo{domain.CoinUSDT, domain.VenueStableSwap}

	q, err := env.Exchange.QuoteSell(c.coin, c.venue, bzz(1_000))
	if err != nil {
		t.Fatal(err)
	}
	before := env.Balance(env.USDT, buyer)

	r, err := env.Exchange.Sell(context.Background(), buyer, sellRequest(c, bzz(1_000), big.NewInt(0)))
	if err != nil {
		t.Fatal(err)
	}

	got := new(big.Int).Sub(env.Balance(env.USDT, buyer), before)
	if got.Cmp(r.Payout) != 0 {
		t.Errorf("expected payout %s to match what arrived, got %s", r.Payout, got)
	}
	if r.Payout.Cmp(q.OutputNet) >= 0 {
		t.Errorf("expected transfer fees to reduce the payout below %s, got %s", q.OutputNet, r.Payout)
	}
	assertAlternatesEmpty(t, env)
}

func TestBuy_CancelledContext(t *testing.T) {
	env := newEnv(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.Exchange.Buy(ctx, buyer, buyRequest(combos[0], bzz(1), unlimited()))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func totalSupply(env *devnet.Env, tok *ledger.ERC20) *big.Int {
	var s *big.Int
	_ = env.Chain.View(func(tx *ledger.Tx) error {
		s = tok.TotalSupply(tx)
		return nil
	})
	return s
}
