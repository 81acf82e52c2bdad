package app

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/bzz-exchange/business/exchange/domain"
	"github.com/fd1az/bzz-exchange/internal/apm"
	"github.com/fd1az/bzz-exchange/internal/apperror"
	"github.com/fd1az/bzz-exchange/internal/asset"
	"github.com/fd1az/bzz-exchange/internal/ledger"
	"github.com/fd1az/bzz-exchange/internal/logger"
)

const tracerName = "exchange"

var feeUpdatedTopic = crypto.Keccak256Hash([]byte("FeeUpdated(uint256,uint256)"))

// Config wires an exchange to its collaborators. Stablecoins must hold DAI,
// USDC and USDT.
type Config struct {
	Address     common.Address
	Owner       common.Address
	FeeBps      uint64
	Chain       *ledger.Chain
	Curve       BondingCurve
	BZZ         Token
	Stablecoins map[domain.Coin]Token
	Venues      Venues
	Relay       Relay
	Logger      logger.LoggerInterface
}

// Exchange buys and sells BZZ against DAI, USDC or USDT in one atomic
// request, optionally relaying purchased BZZ to the remote ledger.
type Exchange struct {
	address common.Address
	owner   common.Address
	chain   *ledger.Chain
	curve   BondingCurve
	bzz     Token
	tokens  map[domain.Coin]Token
	venues  Venues

	fee     *FeeSchedule
	router  *Router
	auth    *Authorizer
	settler settler

	chainID uint64
	assets  *asset.Registry
	logger  logger.LoggerInterface
	tracer  trace.Tracer
	metrics *exchangeMetrics
}

// NewExchange checks that the curve trades BZZ against DAI and that every
// concentrated pool pairs DAI with its coin.
func NewExchange(cfg Config) (*Exchange, error) {
	fee, err := NewFeeSchedule(cfg.FeeBps)
	if err != nil {
		return nil, err
	}
	if cfg.Chain == nil || cfg.Curve == nil || cfg.BZZ == nil || cfg.Logger == nil {
		return nil, apperror.New(apperror.CodeConfigurationError, apperror.WithContext("chain, curve, BZZ and logger are required"))
	}
	for _, c := range domain.Coins {
		if _, ok := cfg.Stablecoins[c]; !ok {
			return nil, apperror.New(apperror.CodeConfigurationError, apperror.WithContext("missing token for "+c.String()))
		}
	}

	dai := cfg.Stablecoins[domain.CoinDAI]
	if cfg.Curve.CollateralToken() != dai.Address() {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("curve collateral is not DAI"))
	}
	if cfg.Curve.BondedToken() != cfg.BZZ.Address() {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("curve bonded token is not BZZ"))
	}
	for coin, pool := range cfg.Venues.Uniswap {
		want := map[common.Address]bool{dai.Address(): true, cfg.Stablecoins[coin].Address(): true}
		if coin.IsCollateral() || !want[pool.Token0()] || !want[pool.Token1()] {
			return nil, apperror.New(apperror.CodeConfigurationError,
				apperror.WithContext(fmt.Sprintf("uniswap pool %s does not pair DAI with %s", pool.Address().Hex(), coin)))
		}
	}

	e := &Exchange{
		address: cfg.Address,
		owner:   cfg.Owner,
		chain:   cfg.Chain,
		curve:   cfg.Curve,
		bzz:     cfg.BZZ,
		tokens:  cfg.Stablecoins,
		venues:  cfg.Venues,
		fee:     fee,
		router:  NewRouter(cfg.Address, cfg.Stablecoins, cfg.Venues),
		auth:    NewAuthorizer(cfg.Address, cfg.Stablecoins),
		settler: settler{exchange: cfg.Address, bzz: cfg.BZZ, relay: cfg.Relay},
		chainID: cfg.Chain.ChainID().Uint64(),
		assets:  asset.NewRegistry(),
		logger:  cfg.Logger,
		tracer:  otel.Tracer(tracerName),
	}

	for _, tok := range append([]Token{cfg.BZZ}, dai, cfg.Stablecoins[domain.CoinUSDC], cfg.Stablecoins[domain.CoinUSDT]) {
		e.assets.Register(asset.MustNewToken(e.chainID, tok.Address(), tok.Symbol(), tok.Symbol(), tok.Decimals()))
	}

	if err := e.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	return e, nil
}

func (e *Exchange) Address() common.Address { return e.address }
func (e *Exchange) Owner() common.Address   { return e.owner }

// Fee returns the current fee in basis points.
func (e *Exchange) Fee() uint64 { return e.fee.Load() }

// Router exposes the venue router, mainly for quotes.
func (e *Exchange) Router() *Router { return e.router }

// Asset describes a token the exchange handles.
func (e *Exchange) Asset(token common.Address) (*asset.Asset, bool) {
	return e.assets.GetToken(e.chainID, token)
}

// Token returns the stablecoin for c.
func (e *Exchange) Token(c domain.Coin) Token { return e.tokens[c] }

// BZZ returns the bonded token.
func (e *Exchange) BZZ() Token { return e.bzz }

type grant struct {
	tok     Token
	spender common.Address
}

// Install grants the curve, venues and relay unlimited allowances over the
// exchange's balances.
func (e *Exchange) Install(ctx context.Context) error {
	dai := e.tokens[domain.CoinDAI]

	grants := []grant{{dai, e.curve.Address()}}
	if p := e.venues.StableSwap; p != nil {
		for _, c := range domain.Coins {
			grants = append(grants, grant{e.tokens[c], p.Address()})
		}
	}
	if p := e.venues.PSM; p != nil {
		grants = append(grants, grant{dai, p.Address()}, grant{e.tokens[domain.CoinUSDC], p.GemJoin()})
	}
	if e.settler.relay != nil {
		grants = append(grants, grant{e.bzz, e.settler.relay.Address()})
	}

	_, err := e.chain.Execute(ctx, e.address, func(tx *ledger.Tx) error {
		for _, g := range grants {
			if err := g.tok.Approve(tx, e.address, g.spender, ledger.MaxUint256()); err != nil {
				return apperror.Wrap(err, apperror.CodeTransferFailed, "approve "+g.tok.Symbol())
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.logger.Info(ctx, "exchange installed", "address", e.address.Hex(), "approvals", len(grants))
	return nil
}

// UniswapV3SwapCallback is the exchange's callback entry point.
func (e *Exchange) UniswapV3SwapCallback(tx *ledger.Tx, caller common.Address, amount0Delta, amount1Delta *big.Int, data []byte) error {
	return e.router.UniswapV3SwapCallback(tx, caller, amount0Delta, amount1Delta, data)
}

// BuyReceipt reports a completed buy.
type BuyReceipt struct {
	TxHash       common.Hash
	Block        uint64
	Buyer        common.Address
	InputCoin    domain.Coin
	Venue        domain.Venue
	Settlement   domain.Settlement
	FeeBps       uint64
	BzzRequested *big.Int
	// BzzMinted is BzzRequested less the fee.
	BzzMinted *big.Int
	// InputSpent is what left the buyer, in InputCoin units.
	InputSpent *big.Int
	// CollateralIn is the DAI the exchange received before the fee.
	CollateralIn *big.Int
	// CollateralSpent is the DAI the curve took.
	CollateralSpent *big.Int
	FeeRetained     *big.Int
	Logs            []*types.Log
}

// SellReceipt reports a completed sell.
type SellReceipt struct {
	TxHash     common.Hash
	Block      uint64
	Seller     common.Address
	OutputCoin domain.Coin
	Venue      domain.Venue
	FeeBps     uint64
	BzzSold    *big.Int
	// CollateralOut is the DAI the curve paid before the fee.
	CollateralOut *big.Int
	FeeRetained   *big.Int
	// Payout is what reached the seller, in OutputCoin units.
	Payout *big.Int
	Logs   []*types.Log
}

type buyPlan struct {
	req        domain.BuyRequest
	permit     *domain.Permit
	settlement domain.Settlement
	fee        uint64
}

// Buy acquires req.BzzAmount of BZZ for sender. Payload and pairing errors
// are reported before any funds move; any later failure reverts everything.
func (e *Exchange) Buy(ctx context.Context, sender common.Address, req domain.BuyRequest) (*BuyReceipt, error) {
	ctx, span := e.tracer.Start(ctx, "exchange.buy",
		trace.WithAttributes(
			attribute.String("buyer", sender.Hex()),
			attribute.String("coin", req.InputCoin.String()),
			attribute.String("venue", req.Venue.String()),
		),
	)
	defer span.End()
	start := time.Now()

	plan, err := e.planBuy(req)
	if err != nil {
		return nil, e.fail(ctx, span, opBuy, start, err)
	}

	var out *BuyReceipt
	rcpt, err := e.chain.Execute(ctx, sender, func(tx *ledger.Tx) error {
		r, err := e.buy(tx, sender, plan)
		out = r
		return err
	})
	if err != nil {
		return nil, e.fail(ctx, span, opBuy, start, err)
	}

	out.TxHash, out.Block, out.Logs = rcpt.TxHash, rcpt.BlockNumber, rcpt.Logs
	e.recordBuy(ctx, out, start)
	span.SetAttributes(
		attribute.String("tx", out.TxHash.Hex()),
		attribute.String("bzz_minted", out.BzzMinted.String()),
		attribute.String("settlement", out.Settlement.Kind.String()),
	)
	span.SetStatus(codes.Ok, "")
	e.logger.Info(ctx, "buy",
		"tx", out.TxHash.Hex(),
		"buyer", sender.Hex(),
		"coin", req.InputCoin,
		"venue", req.Venue,
		"bzz", out.BzzMinted.String(),
		"input_spent", out.InputSpent.String(),
		"settlement", out.Settlement.Kind,
	)
	return out, nil
}

func (e *Exchange) planBuy(req domain.BuyRequest) (buyPlan, error) {
	if err := req.Validate(); err != nil {
		return buyPlan{}, err
	}
	permitSeg, relaySeg, err := domain.SplitPayload(req.Options, req.Payload)
	if err != nil {
		return buyPlan{}, err
	}

	plan := buyPlan{req: req, settlement: domain.Settlement{Kind: domain.SettleLocal}}
	if req.Options.Has(domain.OptRelay) {
		if plan.settlement, err = domain.ParseSettlement(relaySeg); err != nil {
			return buyPlan{}, err
		}
	}
	if req.Options.Has(domain.OptPermit) {
		p, err := e.auth.Decode(req.InputCoin, permitSeg)
		if err != nil {
			return buyPlan{}, err
		}
		plan.permit = &p
	}
	plan.fee = e.fee.Load()
	return plan, nil
}

func (e *Exchange) buy(tx *ledger.Tx, buyer common.Address, plan buyPlan) (*BuyReceipt, error) {
	req := plan.req
	dai := e.tokens[domain.CoinDAI]
	guard := e.guardAlternates(tx)

	gross, err := e.curve.BuyPrice(tx, req.BzzAmount)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeContractCallFailed, "buyPrice")
	}
	required, err := e.router.QuoteIn(tx, req.Venue, req.InputCoin, gross)
	if err != nil {
		return nil, err
	}
	if required.Cmp(req.MaxStablecoinAmount) > 0 {
		return nil, apperror.New(apperror.CodeSlippageExceeded,
			apperror.WithContext(fmt.Sprintf("requires %s %s, max %s", required, req.InputCoin, req.MaxStablecoinAmount)))
	}

	if plan.permit != nil {
		if err := e.auth.Apply(tx, req.InputCoin, buyer, *plan.permit); err != nil {
			return nil, err
		}
	}

	var collateral, inputSpent *big.Int
	if req.InputCoin.IsCollateral() {
		collateral, err = e.router.pull(tx, dai, buyer, gross)
		if err != nil {
			return nil, err
		}
		inputSpent = new(big.Int).Set(gross)
	} else {
		res, err := e.router.Route(tx, req.Venue, domain.ToCollateral, req.InputCoin, required, buyer)
		if err != nil {
			return nil, err
		}
		collateral, inputSpent = res.AmountOut, res.AmountIn
	}

	netBzz := domain.Net(req.BzzAmount, plan.fee)
	maxSpend := domain.Net(collateral, plan.fee)

	daiBefore := dai.BalanceOf(tx, e.address)
	bzzBefore := e.bzz.BalanceOf(tx, e.address)
	if plan.settlement.Relayed() {
		err = e.curve.Mint(tx, e.address, netBzz, maxSpend)
	} else {
		err = e.curve.MintTo(tx, e.address, netBzz, maxSpend, buyer)
	}
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeContractCallFailed, "mint")
	}
	spent := new(big.Int).Sub(daiBefore, dai.BalanceOf(tx, e.address))
	minted := new(big.Int).Sub(e.bzz.BalanceOf(tx, e.address), bzzBefore)

	if err := e.settler.settle(tx, plan.settlement, minted); err != nil {
		return nil, err
	}
	if err := guard.check(tx); err != nil {
		return nil, err
	}

	return &BuyReceipt{
		Buyer:           buyer,
		InputCoin:       req.InputCoin,
		Venue:           req.Venue,
		Settlement:      plan.settlement,
		FeeBps:          plan.fee,
		BzzRequested:    new(big.Int).Set(req.BzzAmount),
		BzzMinted:       netBzz,
		InputSpent:      inputSpent,
		CollateralIn:    collateral,
		CollateralSpent: spent,
		FeeRetained:     new(big.Int).Sub(collateral, spent),
	}, nil
}

// Sell disposes of req.BzzAmount of sender's BZZ. The minimum is checked
// against the pre-fee quote in OutputCoin units, before anything is pulled.
func (e *Exchange) Sell(ctx context.Context, sender common.Address, req domain.SellRequest) (*SellReceipt, error) {
	ctx, span := e.tracer.Start(ctx, "exchange.sell",
		trace.WithAttributes(
			attribute.String("seller", sender.Hex()),
			attribute.String("coin", req.OutputCoin.String()),
			attribute.String("venue", req.Venue.String()),
		),
	)
	defer span.End()
	start := time.Now()

	if err := req.Validate(); err != nil {
		return nil, e.fail(ctx, span, opSell, start, err)
	}
	fee := e.fee.Load()

	var out *SellReceipt
	rcpt, err := e.chain.Execute(ctx, sender, func(tx *ledger.Tx) error {
		r, err := e.sell(tx, sender, req, fee)
		out = r
		return err
	})
	if err != nil {
		return nil, e.fail(ctx, span, opSell, start, err)
	}

	out.TxHash, out.Block, out.Logs = rcpt.TxHash, rcpt.BlockNumber, rcpt.Logs
	e.recordSell(ctx, out, start)
	span.SetAttributes(
		attribute.String("tx", out.TxHash.Hex()),
		attribute.String("payout", out.Payout.String()),
	)
	span.SetStatus(codes.Ok, "")
	e.logger.Info(ctx, "sell",
		"tx", out.TxHash.Hex(),
		"seller", sender.Hex(),
		"coin", req.OutputCoin,
		"venue", req.Venue,
		"bzz", out.BzzSold.String(),
		"payout", out.Payout.String(),
	)
	return out, nil
}

func (e *Exchange) sell(tx *ledger.Tx, seller common.Address, req domain.SellRequest, fee uint64) (*SellReceipt, error) {
	dai := e.tokens[domain.CoinDAI]
	guard := e.guardAlternates(tx)

	reward, err := e.curve.SellReward(tx, req.BzzAmount)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeContractCallFailed, "sellReward")
	}
	quoted, err := e.router.QuoteOut(tx, req.Venue, req.OutputCoin, reward)
	if err != nil {
		return nil, err
	}
	if quoted.Cmp(req.MinStablecoinAmount) < 0 {
		return nil, apperror.New(apperror.CodeSlippageExceeded,
			apperror.WithContext(fmt.Sprintf("quotes %s %s, min %s", quoted, req.OutputCoin, req.MinStablecoinAmount)))
	}

	received, err := e.router.pull(tx, e.bzz, seller, req.BzzAmount)
	if err != nil {
		return nil, err
	}
	minReturn := reward
	if received.Cmp(req.BzzAmount) != 0 {
		if minReturn, err = e.curve.SellReward(tx, received); err != nil {
			return nil, apperror.Wrap(err, apperror.CodeContractCallFailed, "sellReward")
		}
	}

	daiBefore := dai.BalanceOf(tx, e.address)
	if err := e.curve.Redeem(tx, e.address, received, minReturn); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeContractCallFailed, "redeem")
	}
	collateral := new(big.Int).Sub(dai.BalanceOf(tx, e.address), daiBefore)
	net := domain.Net(collateral, fee)

	var payout *big.Int
	if req.OutputCoin.IsCollateral() {
		if err := dai.Transfer(tx, e.address, seller, net); err != nil {
			return nil, apperror.Wrap(err, apperror.CodeTransferFailed, "pay DAI")
		}
		payout = net
	} else {
		res, err := e.router.Route(tx, req.Venue, domain.FromCollateral, req.OutputCoin, net, e.address)
		if err != nil {
			return nil, err
		}
		tok := e.tokens[req.OutputCoin]
		before := tok.BalanceOf(tx, seller)
		if err := tok.Transfer(tx, e.address, seller, res.AmountOut); err != nil {
			return nil, apperror.Wrap(err, apperror.CodeTransferFailed, "pay "+tok.Symbol())
		}
		payout = new(big.Int).Sub(tok.BalanceOf(tx, seller), before)
	}

	if err := guard.check(tx); err != nil {
		return nil, err
	}

	return &SellReceipt{
		Seller:        seller,
		OutputCoin:    req.OutputCoin,
		Venue:         req.Venue,
		FeeBps:        fee,
		BzzSold:       received,
		CollateralOut: collateral,
		FeeRetained:   new(big.Int).Sub(collateral, net),
		Payout:        payout,
	}, nil
}

// balanceGuard remembers the exchange's USDC and USDT balances; a request
// must leave them as it found them.
type balanceGuard struct {
	holder common.Address
	tokens []Token
	before []*big.Int
}

func (e *Exchange) guardAlternates(tx *ledger.Tx) balanceGuard {
	g := balanceGuard{holder: e.address}
	for _, c := range []domain.Coin{domain.CoinUSDC, domain.CoinUSDT} {
		tok := e.tokens[c]
		g.tokens = append(g.tokens, tok)
		g.before = append(g.before, tok.BalanceOf(tx, e.address))
	}
	return g
}

func (g balanceGuard) check(tx *ledger.Tx) error {
	for i, tok := range g.tokens {
		if after := tok.BalanceOf(tx, g.holder); after.Cmp(g.before[i]) != 0 {
			return apperror.New(apperror.CodeInvariantViolation,
				apperror.WithContext(fmt.Sprintf("%s balance moved from %s to %s", tok.Symbol(), g.before[i], after)))
		}
	}
	return nil
}

// SetFee changes the fee. Only the owner may call it.
func (e *Exchange) SetFee(ctx context.Context, sender common.Address, bps uint64) error {
	_, err := e.chain.Execute(ctx, sender, func(tx *ledger.Tx) error {
		if sender != e.owner {
			return apperror.Unauthorized(apperror.CodeUnauthorized, "setFee by "+sender.Hex())
		}
		if err := domain.ValidateFee(bps); err != nil {
			return err
		}
		old := e.fee.Load()
		data := append(common.LeftPadBytes(new(big.Int).SetUint64(old).Bytes(), 32),
			common.LeftPadBytes(new(big.Int).SetUint64(bps).Bytes(), 32)...)
		tx.Emit(e.address, []common.Hash{feeUpdatedTopic}, data)
		_, err := e.fee.Store(bps)
		return err
	})
	if err != nil {
		e.metrics.requests.Add(ctx, 1, outcomeAttrs(opSetFee, err))
		return err
	}
	e.metrics.requests.Add(ctx, 1, outcomeAttrs(opSetFee, nil))
	e.logger.Info(ctx, "fee updated", "bps", bps, "by", sender.Hex())
	return nil
}

// Sweep sends the exchange's whole balance of token to to. Only the owner
// may call it; retained fees accumulate as DAI and leave this way.
func (e *Exchange) Sweep(ctx context.Context, sender, token, to common.Address) (*big.Int, error) {
	var tok Token
	for _, t := range append([]Token{e.bzz}, e.tokens[domain.CoinDAI], e.tokens[domain.CoinUSDC], e.tokens[domain.CoinUSDT]) {
		if t.Address() == token {
			tok = t
		}
	}

	var swept *big.Int
	_, err := e.chain.Execute(ctx, sender, func(tx *ledger.Tx) error {
		if sender != e.owner {
			return apperror.Unauthorized(apperror.CodeUnauthorized, "sweep by "+sender.Hex())
		}
		if tok == nil {
			return apperror.NotFound(apperror.CodeNotFound, "unknown token "+token.Hex())
		}
		swept = tok.BalanceOf(tx, e.address)
		if swept.Sign() == 0 {
			return nil
		}
		if err := tok.Transfer(tx, e.address, to, swept); err != nil {
			return apperror.Wrap(err, apperror.CodeTransferFailed, "sweep "+tok.Symbol())
		}
		return nil
	})
	e.metrics.requests.Add(ctx, 1, outcomeAttrs(opSweep, err))
	if err != nil {
		return nil, err
	}
	e.logger.Info(ctx, "swept", "token", tok.Symbol(), "amount", swept.String(), "to", to.Hex())
	return swept, nil
}

// BuyQuote previews a buy at the current state and fee.
type BuyQuote struct {
	Collateral *big.Int
	Input      *big.Int
	BzzNet     *big.Int
}

// QuoteBuy returns what a buy of amount through venue would cost now.
func (e *Exchange) QuoteBuy(coin domain.Coin, venue domain.Venue, amount *big.Int) (*BuyQuote, error) {
	if err := domain.ValidatePair(coin, venue); err != nil {
		return nil, err
	}
	var q BuyQuote
	err := e.chain.View(func(tx *ledger.Tx) error {
		gross, err := e.curve.BuyPrice(tx, amount)
		if err != nil {
			return apperror.Wrap(err, apperror.CodeContractCallFailed, "buyPrice")
		}
		in, err := e.router.QuoteIn(tx, venue, coin, gross)
		if err != nil {
			return err
		}
		q = BuyQuote{Collateral: gross, Input: in, BzzNet: domain.Net(amount, e.fee.Load())}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// SellQuote previews a sell at the current state and fee.
type SellQuote struct {
	Collateral *big.Int
	// Output is the pre-fee quote that the sell minimum is checked against.
	Output *big.Int
	// OutputNet is the quote for the collateral left after the fee.
	OutputNet *big.Int
}

// QuoteSell returns what a sell of amount through venue would pay now.
func (e *Exchange) QuoteSell(coin domain.Coin, venue domain.Venue, amount *big.Int) (*SellQuote, error) {
	if err := domain.ValidatePair(coin, venue); err != nil {
		return nil, err
	}
	var q SellQuote
	err := e.chain.View(func(tx *ledger.Tx) error {
		reward, err := e.curve.SellReward(tx, amount)
		if err != nil {
			return apperror.Wrap(err, apperror.CodeContractCallFailed, "sellReward")
		}
		out, err := e.router.QuoteOut(tx, venue, coin, reward)
		if err != nil {
			return err
		}
		net, err := e.router.QuoteOut(tx, venue, coin, domain.Net(reward, e.fee.Load()))
		if err != nil {
			return err
		}
		q = SellQuote{Collateral: reward, Output: out, OutputNet: net}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (e *Exchange) fail(ctx context.Context, span trace.Span, op string, start time.Time, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	e.metrics.requests.Add(ctx, 1, outcomeAttrs(op, err))
	e.metrics.latency.Record(ctx, float64(time.Since(start).Microseconds())/1000, opAttrs(op))
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		if appErr.TraceID == "" {
			appErr.WithTraceID(apm.TraceID(ctx))
		}
		e.logger.Warn(ctx, op+" failed", "code", string(appErr.Code), "error", appErr.ToLog())
		return err
	}
	e.logger.Warn(ctx, op+" failed", "code", string(apperror.CodeUnknownError), "error", err)
	return err
}
