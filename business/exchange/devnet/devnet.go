// Package devnet deploys a complete, seeded exchange environment on an
// in-process ledger. The CLI runs against it and the exchange tests use it
// as their fixture.
package devnet

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/bzz-exchange/business/exchange/app"
	"github.com/fd1az/bzz-exchange/business/exchange/domain"
	"github.com/fd1az/bzz-exchange/business/exchange/infra/bondingcurve"
	"github.com/fd1az/bzz-exchange/business/exchange/infra/omnibridge"
	"github.com/fd1az/bzz-exchange/business/exchange/infra/psm"
	"github.com/fd1az/bzz-exchange/business/exchange/infra/stableswap"
	"github.com/fd1az/bzz-exchange/business/exchange/infra/uniswap"
	"github.com/fd1az/bzz-exchange/internal/ledger"
	"github.com/fd1az/bzz-exchange/internal/logger"
)

// Deployer deploys every contract and holds the initial BZZ supply.
var Deployer = common.HexToAddress("0x00000000000000000000000000000000000D0001")

// Params sizes the environment. Whole-unit fields are scaled by each
// token's decimals.
type Params struct {
	ChainID uint64
	Owner   common.Address
	FeeBps  uint64

	// BZZSupply is the initial bonded supply in whole BZZ.
	BZZSupply int64
	// CurveDivisor sets R(s) = s²/divisor over raw amounts.
	CurveDivisor *big.Int

	StableSwapA   uint64
	StableSwapFee uint64
	UniswapFee    uint32
	// Liquidity is seeded per coin into the stable-swap pool and per side
	// into each uniswap pool.
	Liquidity int64

	// PSMTin and PSMTout are WAD fractions.
	PSMTin     *big.Int
	PSMTout    *big.Int
	PSMReserve int64

	USDTTransferFeeBps uint64
}

// DefaultParams prices BZZ near 0.3 DAI at a 60M supply.
func DefaultParams() Params {
	divisor, _ := new(big.Int).SetString("40000000000000000000000", 10)
	return Params{
		ChainID:       1,
		Owner:         Deployer,
		FeeBps:        0,
		BZZSupply:     60_000_000,
		CurveDivisor:  divisor,
		StableSwapA:   2_000,
		StableSwapFee: 4_000_000,
		UniswapFee:    uniswap.FeeTier001,
		Liquidity:     10_000_000,
		PSMTin:        big.NewInt(1_000_000_000_000_000),
		PSMTout:       big.NewInt(1_000_000_000_000_000),
		PSMReserve:    10_000_000,
	}
}

// Env is a deployed environment.
type Env struct {
	Chain  *ledger.Chain
	Params Params

	DAI  *ledger.ERC20
	USDC *ledger.ERC20
	USDT *ledger.ERC20
	BZZ  *ledger.ERC20

	Curve      *bondingcurve.Curve
	StableSwap *stableswap.Pool
	Uniswap    map[domain.Coin]*uniswap.Pool
	Quoter     *uniswap.Quoter
	PSM        *psm.Module
	GemJoin    *psm.GemJoin
	Bridge     *omnibridge.Bridge
	Exchange   *app.Exchange
}

// Units scales n whole tokens by decimals.
func Units(n int64, decimals uint8) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
}

// Deploy builds and seeds an environment, then installs the exchange.
func Deploy(ctx context.Context, p Params, log logger.LoggerInterface) (*Env, error) {
	if p.Owner == (common.Address{}) {
		p.Owner = Deployer
	}
	chain := ledger.NewChain(p.ChainID)
	next := func() common.Address { return chain.NewContractAddress(Deployer) }

	env := &Env{Chain: chain, Params: p, Uniswap: make(map[domain.Coin]*uniswap.Pool)}

	env.DAI = ledger.NewERC20(chain, next(), ledger.TokenConfig{
		Name: "Dai Stablecoin", Symbol: "DAI", Decimals: 18, Permit: ledger.PermitAllowed,
		Minters: []common.Address{Deployer},
	})
	env.USDC = ledger.NewERC20(chain, next(), ledger.TokenConfig{
		Name: "USD Coin", Symbol: "USDC", Version: "2", Decimals: 6, Permit: ledger.PermitEIP2612,
		Minters: []common.Address{Deployer},
	})
	env.USDT = ledger.NewERC20(chain, next(), ledger.TokenConfig{
		Name: "Tether USD", Symbol: "USDT", Decimals: 6, TransferFeeBps: p.USDTTransferFeeBps,
		Minters: []common.Address{Deployer},
	})

	curveAddr := next()
	env.BZZ = ledger.NewERC20(chain, next(), ledger.TokenConfig{
		Name: "Swarm Token", Symbol: "BZZ", Decimals: 16,
		Minters: []common.Address{Deployer, curveAddr},
	})

	var err error
	if env.Curve, err = bondingcurve.New(curveAddr, env.DAI, env.BZZ, p.CurveDivisor); err != nil {
		return nil, err
	}
	if env.StableSwap, err = stableswap.New(next(), [3]*ledger.ERC20{env.DAI, env.USDC, env.USDT},
		stableswap.Config{A: p.StableSwapA, Fee: p.StableSwapFee}); err != nil {
		return nil, err
	}
	for _, c := range []domain.Coin{domain.CoinUSDC, domain.CoinUSDT} {
		pool, err := uniswap.New(next(), env.DAI, env.Token(c), p.UniswapFee)
		if err != nil {
			return nil, err
		}
		env.Uniswap[c] = pool
	}
	env.Quoter = uniswap.NewQuoter(env.Uniswap[domain.CoinUSDC], env.Uniswap[domain.CoinUSDT])
	env.GemJoin = psm.NewGemJoin(next(), env.USDC)
	if env.PSM, err = psm.New(next(), env.DAI, env.GemJoin); err != nil {
		return nil, err
	}
	env.Bridge = omnibridge.New(next(), env.BZZ)

	exchangeAddr := next()
	env.Exchange, err = app.NewExchange(app.Config{
		Address: exchangeAddr,
		Owner:   p.Owner,
		FeeBps:  p.FeeBps,
		Chain:   chain,
		Curve:   env.Curve,
		BZZ:     env.BZZ,
		Stablecoins: map[domain.Coin]app.Token{
			domain.CoinDAI:  env.DAI,
			domain.CoinUSDC: env.USDC,
			domain.CoinUSDT: env.USDT,
		},
		Venues: app.Venues{
			StableSwap: env.StableSwap,
			Uniswap: map[domain.Coin]app.ConcentratedPool{
				domain.CoinUSDC: env.Uniswap[domain.CoinUSDC],
				domain.CoinUSDT: env.Uniswap[domain.CoinUSDT],
			},
			Quoter: env.Quoter,
			PSM:    env.PSM,
		},
		Relay:  env.Bridge,
		Logger: log,
	})
	if err != nil {
		return nil, err
	}

	if _, err := chain.Execute(ctx, Deployer, env.seed); err != nil {
		return nil, fmt.Errorf("seed devnet: %w", err)
	}
	if err := env.Exchange.Install(ctx); err != nil {
		return nil, fmt.Errorf("install exchange: %w", err)
	}

	log.Info(ctx, "devnet deployed",
		"chain_id", p.ChainID,
		"exchange", exchangeAddr.Hex(),
		"curve", curveAddr.Hex(),
		"fee_bps", p.FeeBps,
	)
	return env, nil
}

func (env *Env) seed(tx *ledger.Tx) error {
	p := env.Params

	supply := Units(p.BZZSupply, env.BZZ.Decimals())
	if err := env.BZZ.Mint(tx, Deployer, Deployer, supply); err != nil {
		return err
	}
	if err := env.DAI.Mint(tx, Deployer, env.Curve.Address(), env.Curve.Reserve(supply)); err != nil {
		return err
	}

	stable := [3]*big.Int{}
	for i, tok := range []*ledger.ERC20{env.DAI, env.USDC, env.USDT} {
		// stable-swap, two uniswap pools for DAI, one for each alternate
		if err := tok.Mint(tx, Deployer, Deployer, Units(3*p.Liquidity, tok.Decimals())); err != nil {
			return err
		}
		stable[i] = Units(p.Liquidity, tok.Decimals())
		if err := tok.Approve(tx, Deployer, env.StableSwap.Address(), ledger.MaxUint256()); err != nil {
			return err
		}
	}
	if err := env.StableSwap.AddLiquidity(tx, Deployer, stable); err != nil {
		return err
	}

	for _, c := range []domain.Coin{domain.CoinUSDC, domain.CoinUSDT} {
		pool := env.Uniswap[c]
		t0, t1 := env.DAI, env.Token(c)
		if pool.Token0() != t0.Address() {
			t0, t1 = t1, t0
		}
		for _, tok := range []*ledger.ERC20{t0, t1} {
			if err := tok.Approve(tx, Deployer, pool.Address(), ledger.MaxUint256()); err != nil {
				return err
			}
		}
		if err := pool.AddLiquidity(tx, Deployer, Units(p.Liquidity, t0.Decimals()), Units(p.Liquidity, t1.Decimals())); err != nil {
			return err
		}
	}

	if err := env.PSM.File(tx, "tin", p.PSMTin); err != nil {
		return err
	}
	if err := env.PSM.File(tx, "tout", p.PSMTout); err != nil {
		return err
	}
	if err := env.DAI.Mint(tx, Deployer, env.PSM.Address(), Units(p.PSMReserve, 18)); err != nil {
		return err
	}
	return env.USDC.Mint(tx, Deployer, env.GemJoin.Address(), Units(p.PSMReserve, env.USDC.Decimals()))
}

// Token returns the ledger token for c.
func (env *Env) Token(c domain.Coin) *ledger.ERC20 {
	switch c {
	case domain.CoinUSDC:
		return env.USDC
	case domain.CoinUSDT:
		return env.USDT
	default:
		return env.DAI
	}
}

// Mint gives holder whole units of every stablecoin and of BZZ.
func (env *Env) Mint(ctx context.Context, holder common.Address, whole int64) error {
	_, err := env.Chain.Execute(ctx, Deployer, func(tx *ledger.Tx) error {
		for _, tok := range []*ledger.ERC20{env.DAI, env.USDC, env.USDT} {
			if err := tok.Mint(tx, Deployer, holder, Units(whole, tok.Decimals())); err != nil {
				return err
			}
		}
		return env.BZZ.Transfer(tx, Deployer, holder, Units(whole, env.BZZ.Decimals()))
	})
	return err
}

// Fund mints to holder and approves the exchange for everything.
func (env *Env) Fund(ctx context.Context, holder common.Address, whole int64) error {
	if err := env.Mint(ctx, holder, whole); err != nil {
		return err
	}
	return env.ApproveAll(ctx, holder)
}

// ApproveAll gives the exchange unlimited allowances over holder's tokens.
func (env *Env) ApproveAll(ctx context.Context, holder common.Address) error {
	_, err := env.Chain.Execute(ctx, holder, func(tx *ledger.Tx) error {
		for _, tok := range []*ledger.ERC20{env.DAI, env.USDC, env.USDT, env.BZZ} {
			if err := tok.Approve(tx, holder, env.Exchange.Address(), ledger.MaxUint256()); err != nil {
				return err
			}
		}
		return nil
	})
	return err
}

// Balance reads holder's balance of tok.
func (env *Env) Balance(tok *ledger.ERC20, holder common.Address) *big.Int {
	var bal *big.Int
	_ = env.Chain.View(func(tx *ledger.Tx) error {
		bal = tok.BalanceOf(tx, holder)
		return nil
	})
	return bal
}
