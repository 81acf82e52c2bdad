package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/fd1az/bzz-exchange/business/exchange/app"
	"github.com/fd1az/bzz-exchange/business/exchange/devnet"
	exchangeDI "github.com/fd1az/bzz-exchange/business/exchange/di"
	"github.com/fd1az/bzz-exchange/business/exchange/domain"
	"github.com/fd1az/bzz-exchange/business/exchange/infra/omnibridge"
	"github.com/fd1az/bzz-exchange/internal/apperror"
	"github.com/fd1az/bzz-exchange/internal/asset"
	"github.com/fd1az/bzz-exchange/internal/config"
	"github.com/fd1az/bzz-exchange/internal/ledger"
	"github.com/fd1az/bzz-exchange/internal/logger"
	"github.com/fd1az/bzz-exchange/internal/monolith"
	"github.com/fd1az/bzz-exchange/pkg/ui"
)

const defaultFunding = 100_000

var venues = []domain.Venue{domain.VenueNone, domain.VenueStableSwap, domain.VenueUniswap, domain.VenuePSM}

type cli struct {
	cfg  *config.Config
	log  logger.LoggerInterface
	mono monolith.Monolith
	env  *devnet.Env
	ex   *app.Exchange
	acct devnet.Account
	out  io.Writer
	// linger keeps demo alive for metric scrapes.
	linger bool
}

func (c *cli) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "buy":
		return c.buy(ctx, args)
	case "sell":
		return c.sell(ctx, args)
	case "quote":
		return c.quote(args)
	case "fee":
		return c.fee(ctx, args)
	case "demo":
		return c.demo(ctx, args)
	case "remote-quote":
		return c.remoteQuote(ctx, args)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (c *cli) exchange() *app.Exchange { return c.ex }

func (c *cli) bzzAsset() *asset.Asset {
	a, _ := c.exchange().Asset(c.exchange().BZZ().Address())
	return a
}

func (c *cli) coinAsset(coin domain.Coin) *asset.Asset {
	a, _ := c.exchange().Asset(c.exchange().Token(coin).Address())
	return a
}

func (c *cli) render(r interface{ Render() string }) error {
	_, err := fmt.Fprintln(c.out, r.Render())
	return err
}

func parseAmount(a *asset.Asset, s string) (*big.Int, error) {
	amt, err := asset.ParseString(a, s)
	if err != nil {
		return nil, apperror.New(apperror.CodeInvalidAmount,
			apperror.WithMessage(fmt.Sprintf("%q is not a %s amount", s, a.Symbol())),
			apperror.WithCause(err), apperror.WithContext(s))
	}
	return amt.Raw(), nil
}

func format(a *asset.Asset, raw *big.Int) string {
	places := min(int32(a.Decimals()), 6)
	return asset.NewAmount(a, raw).StringFixed(places)
}

func price(paid *asset.Asset, paidRaw *big.Int, got *asset.Asset, gotRaw *big.Int) string {
	p, err := asset.EffectivePrice(asset.NewAmount(paid, paidRaw), asset.NewAmount(got, gotRaw))
	if err != nil {
		return "-"
	}
	return p.String()
}

// buildPayload derives the option bits and payload from an optional permit
// segment and the relay flags. A top-up needs a relay recipient.
func buildPayload(permit []byte, relay, topup string) (domain.Options, []byte, error) {
	var opts domain.Options
	var relaySeg []byte

	if topup != "" && relay == "" {
		return 0, nil, apperror.New(apperror.CodeInvalidInput, apperror.WithContext("-topup needs -relay"))
	}
	if relay != "" {
		if !common.IsHexAddress(relay) {
			return 0, nil, apperror.New(apperror.CodeInvalidInput, apperror.WithContext("invalid relay address "+relay))
		}
		to := common.HexToAddress(relay)
		relaySeg = domain.EncodeRelay(to)

		if topup != "" {
			batch, err := hexutil.Decode(topup)
			if err != nil || len(batch) != common.HashLength {
				return 0, nil, apperror.New(apperror.CodeInvalidInput, apperror.WithContext("batch id must be 32 hex bytes"))
			}
			if relaySeg, err = domain.EncodeRelayAndCall(to, domain.EncodeTopUp(common.BytesToHash(batch))); err != nil {
				return 0, nil, err
			}
		}
		opts |= domain.OptRelay
	}
	if permit != nil {
		opts |= domain.OptPermit
	}

	payload, err := domain.JoinPayload(opts, permit, relaySeg)
	if err != nil {
		return 0, nil, err
	}
	return opts, payload, nil
}

// freshAccount returns a funded account that has approved nothing.
func (c *cli) freshAccount(ctx context.Context) (devnet.Account, error) {
	acct, err := devnet.NewAccount()
	if err != nil {
		return acct, err
	}
	whole := c.cfg.Devnet.Funding
	if whole <= 0 {
		whole = defaultFunding
	}
	return acct, c.env.Mint(ctx, acct.Address, whole)
}

func (c *cli) buy(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("buy", flag.ContinueOnError)
	fs.SetOutput(c.out)
	coinFlag := fs.String("coin", "DAI", "Input stablecoin (DAI, USDC, USDT)")
	venueFlag := fs.String("venue", "", "Venue for USDC/USDT (stableswap, uniswap, psm)")
	amount := fs.String("amount", "", "BZZ to buy")
	maxIn := fs.String("max", "", "Most input coin to spend, unlimited when empty")
	permit := fs.Bool("permit", false, "Authorize with a signed permit from a fresh, unapproved account")
	relay := fs.String("relay", "", "Relay the BZZ to this remote address")
	topup := fs.String("topup", "", "Postage batch id to top up on the remote side (needs -relay)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	coin, err := domain.ParseCoin(*coinFlag)
	if err != nil {
		return err
	}
	venue, err := domain.ParseVenue(*venueFlag)
	if err != nil {
		return err
	}
	if *amount == "" {
		return apperror.New(apperror.CodeRequiredField, apperror.WithContext("-amount"))
	}
	bzz, err := parseAmount(c.bzzAsset(), *amount)
	if err != nil {
		return err
	}
	limit := ledger.MaxUint256()
	if *maxIn != "" {
		if limit, err = parseAmount(c.coinAsset(coin), *maxIn); err != nil {
			return err
		}
	}

	sender := c.acct
	var seg []byte
	if *permit {
		if seg, sender, err = c.signPermit(ctx, coin, venue, bzz, *maxIn != "", limit); err != nil {
			return err
		}
	}

	opts, payload, err := buildPayload(seg, *relay, *topup)
	if err != nil {
		return err
	}

	r, err := c.exchange().Buy(ctx, sender.Address, domain.BuyRequest{
		BzzAmount:           bzz,
		MaxStablecoinAmount: limit,
		InputCoin:           coin,
		Venue:               venue,
		Options:             opts,
		Payload:             payload,
	})
	if err != nil {
		return err
	}
	return c.render(c.buyCard(r))
}

// signPermit signs for a fresh account. USDC permits grant the bound when
// one was given, else the quote plus one percent.
func (c *cli) signPermit(ctx context.Context, coin domain.Coin, venue domain.Venue, bzz *big.Int, bounded bool, limit *big.Int) ([]byte, devnet.Account, error) {
	acct, err := c.freshAccount(ctx)
	if err != nil {
		return nil, acct, err
	}

	value := limit
	if !bounded {
		q, err := c.exchange().QuoteBuy(coin, venue, bzz)
		if err != nil {
			return nil, acct, err
		}
		value = new(big.Int).Add(q.Input, new(big.Int).Div(q.Input, big.NewInt(100)))
	}

	deadline := big.NewInt(0)
	if coin != domain.CoinDAI {
		deadline = big.NewInt(time.Now().Add(time.Hour).Unix())
	}

	seg, err := c.env.SignPermit(acct, coin, value, deadline)
	return seg, acct, err
}

func (c *cli) buyCard(r *app.BuyReceipt) *ui.Card {
	bzz, in, dai := c.bzzAsset(), c.coinAsset(r.InputCoin), c.coinAsset(domain.CoinDAI)

	card := &ui.Card{Title: fmt.Sprintf("BUY %s via %s", r.InputCoin, r.Venue)}
	card.Add("tx", r.TxHash.Hex(), ui.ToneMuted).
		Add("block", strconv.FormatUint(r.Block, 10), ui.ToneMuted).
		Add("buyer", r.Buyer.Hex(), ui.ToneNormal).
		Add("minted", format(bzz, r.BzzMinted), ui.TonePositive).
		Add("spent", format(in, r.InputSpent), ui.ToneNegative).
		Add("collateral", format(dai, r.CollateralSpent), ui.ToneNormal).
		Add("fee", fmt.Sprintf("%d bps, %s retained", r.FeeBps, format(dai, r.FeeRetained)), ui.ToneMuted).
		Add("price", price(in, r.InputSpent, bzz, r.BzzMinted), ui.ToneNormal).
		Add("settlement", r.Settlement.Kind.String(), ui.ToneNormal)

	if r.Settlement.Relayed() {
		card.Add("recipient", r.Settlement.Recipient.Hex(), ui.ToneNormal)
		if batch, err := domain.DecodeTopUp(r.Settlement.Data); err == nil {
			card.Add("top-up", batch.Hex(), ui.ToneNormal)
		}
		msgs, err := omnibridge.ParseMessages(c.env.Bridge.Address(), r.Logs)
		if err == nil {
			for _, m := range msgs {
				card.Add("message", m.ID.Hex(), ui.ToneMuted)
			}
		}
	}
	return card
}

func (c *cli) sell(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sell", flag.ContinueOnError)
	fs.SetOutput(c.out)
	coinFlag := fs.String("coin", "DAI", "Output stablecoin (DAI, USDC, USDT)")
	venueFlag := fs.String("venue", "", "Venue for USDC/USDT (stableswap, uniswap, psm)")
	amount := fs.String("amount", "", "BZZ to sell")
	minOut := fs.String("min", "0", "Least output coin to accept")
	if err := fs.Parse(args); err != nil {
		return err
	}

	coin, err := domain.ParseCoin(*coinFlag)
	if err != nil {
		return err
	}
	venue, err := domain.ParseVenue(*venueFlag)
	if err != nil {
		return err
	}
	if *amount == "" {
		return apperror.New(apperror.CodeRequiredField, apperror.WithContext("-amount"))
	}
	bzz, err := parseAmount(c.bzzAsset(), *amount)
	if err != nil {
		return err
	}
	floor, err := parseAmount(c.coinAsset(coin), *minOut)
	if err != nil {
		return err
	}

	r, err := c.exchange().Sell(ctx, c.acct.Address, domain.SellRequest{
		BzzAmount:           bzz,
		MinStablecoinAmount: floor,
		OutputCoin:          coin,
		Venue:               venue,
	})
	if err != nil {
		return err
	}
	return c.render(c.sellCard(r))
}

func (c *cli) sellCard(r *app.SellReceipt) *ui.Card {
	bzz, out, dai := c.bzzAsset(), c.coinAsset(r.OutputCoin), c.coinAsset(domain.CoinDAI)

	card := &ui.Card{Title: fmt.Sprintf("SELL %s via %s", r.OutputCoin, r.Venue)}
	card.Add("tx", r.TxHash.Hex(), ui.ToneMuted).
		Add("block", strconv.FormatUint(r.Block, 10), ui.ToneMuted).
		Add("seller", r.Seller.Hex(), ui.ToneNormal).
		Add("sold", format(bzz, r.BzzSold), ui.ToneNegative).
		Add("payout", format(out, r.Payout), ui.TonePositive).
		Add("collateral", format(dai, r.CollateralOut), ui.ToneNormal).
		Add("fee", fmt.Sprintf("%d bps, %s retained", r.FeeBps, format(dai, r.FeeRetained)), ui.ToneMuted).
		Add("price", price(out, r.Payout, bzz, r.BzzSold), ui.ToneNormal)
	return card
}

func (c *cli) quote(args []string) error {
	fs := flag.NewFlagSet("quote", flag.ContinueOnError)
	fs.SetOutput(c.out)
	amount := fs.String("amount", "1000", "BZZ to quote")
	side := fs.String("side", "buy", "buy or sell")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *side != "buy" && *side != "sell" {
		return apperror.New(apperror.CodeInvalidInput, apperror.WithContext("-side must be buy or sell"))
	}

	bzzAsset := c.bzzAsset()
	bzz, err := parseAmount(bzzAsset, *amount)
	if err != nil {
		return err
	}

	tbl := &ui.Table{Headers: []string{"coin", "venue", "cost", "price"}}
	if *side == "sell" {
		tbl.Headers[2] = "payout"
	}

	for _, coin := range domain.Coins {
		for _, venue := range venues {
			if domain.ValidatePair(coin, venue) != nil {
				continue
			}
			coinAsset := c.coinAsset(coin)
			row := []string{coin.String(), venue.String()}

			var raw, net *big.Int
			if *side == "buy" {
				q, err := c.exchange().QuoteBuy(coin, venue, bzz)
				if err == nil {
					raw, net = q.Input, q.BzzNet
				} else {
					row = append(row, string(apperror.GetCode(err)))
				}
			} else {
				q, err := c.exchange().QuoteSell(coin, venue, bzz)
				if err == nil {
					raw, net = q.OutputNet, bzz
				} else {
					row = append(row, string(apperror.GetCode(err)))
				}
			}
			if raw != nil {
				row = append(row, format(coinAsset, raw), price(coinAsset, raw, bzzAsset, net))
			}
			tbl.Rows = append(tbl.Rows, row)
		}
	}

	fmt.Fprintf(c.out, "%s %s at %d bps\n", *side, format(bzzAsset, bzz), c.exchange().Fee())
	return c.render(tbl)
}

func (c *cli) fee(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fee", flag.ContinueOnError)
	fs.SetOutput(c.out)
	set := fs.Int("set", -1, "New fee in basis points (0-100)")
	as := fs.String("as", "", "Sender address, the owner when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *set < 0 {
		return apperror.New(apperror.CodeRequiredField, apperror.WithContext("-set"))
	}

	sender := c.exchange().Owner()
	if *as != "" {
		if !common.IsHexAddress(*as) {
			return apperror.New(apperror.CodeInvalidInput, apperror.WithContext("invalid -as address"))
		}
		sender = common.HexToAddress(*as)
	}

	old := c.exchange().Fee()
	if err := c.exchange().SetFee(ctx, sender, uint64(*set)); err != nil {
		return err
	}

	card := &ui.Card{Title: "FEE"}
	card.Add("owner", sender.Hex(), ui.ToneMuted).
		Add("before", fmt.Sprintf("%d bps", old), ui.ToneNormal).
		Add("after", fmt.Sprintf("%d bps", c.exchange().Fee()), ui.TonePositive)
	return c.render(card)
}

// demo buys and immediately sells through every coin and venue, then sweeps
// the retained DAI to the owner.
func (c *cli) demo(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("demo", flag.ContinueOnError)
	fs.SetOutput(c.out)
	amount := fs.String("amount", "1000", "BZZ per round trip")
	if err := fs.Parse(args); err != nil {
		return err
	}

	bzzAsset := c.bzzAsset()
	bzz, err := parseAmount(bzzAsset, *amount)
	if err != nil {
		return err
	}

	tbl := &ui.Table{Headers: []string{"coin", "venue", "spent", "received", "loss"}}
	for _, coin := range domain.Coins {
		for _, venue := range venues {
			if domain.ValidatePair(coin, venue) != nil {
				continue
			}
			row, err := c.roundTrip(ctx, coin, venue, bzz)
			if err != nil {
				c.log.Warn(ctx, "round trip failed", "coin", coin, "venue", venue, "error", err)
				row = []string{coin.String(), venue.String(), string(apperror.GetCode(err))}
			}
			tbl.Rows = append(tbl.Rows, row)
		}
	}
	if err := c.render(tbl); err != nil {
		return err
	}

	dai := c.exchange().Token(domain.CoinDAI)
	owner := c.exchange().Owner()
	swept, err := c.exchange().Sweep(ctx, owner, dai.Address(), owner)
	if err != nil {
		return err
	}
	card := &ui.Card{Title: "SWEEP"}
	card.Add("to", owner.Hex(), ui.ToneMuted).
		Add("amount", format(c.coinAsset(domain.CoinDAI), swept), ui.TonePositive)
	if err := c.render(card); err != nil {
		return err
	}

	if c.linger {
		c.log.Info(ctx, "demo done, serving metrics until interrupted")
		<-ctx.Done()
	}
	return nil
}

func (c *cli) roundTrip(ctx context.Context, coin domain.Coin, venue domain.Venue, bzz *big.Int) ([]string, error) {
	b, err := c.exchange().Buy(ctx, c.acct.Address, domain.BuyRequest{
		BzzAmount:           bzz,
		MaxStablecoinAmount: ledger.MaxUint256(),
		InputCoin:           coin,
		Venue:               venue,
	})
	if err != nil {
		return nil, err
	}
	s, err := c.exchange().Sell(ctx, c.acct.Address, domain.SellRequest{
		BzzAmount:           b.BzzMinted,
		MinStablecoinAmount: big.NewInt(0),
		OutputCoin:          coin,
		Venue:               venue,
	})
	if err != nil {
		return nil, err
	}

	a := c.coinAsset(coin)
	loss := new(big.Int).Sub(b.InputSpent, s.Payout)
	if loss.Sign() < 0 {
		loss.SetInt64(0)
	}
	return []string{coin.String(), venue.String(), format(a, b.InputSpent), format(a, s.Payout), format(a, loss)}, nil
}

func (c *cli) remoteQuote(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("remote-quote", flag.ContinueOnError)
	fs.SetOutput(c.out)
	amount := fs.String("amount", "1000", "BZZ to quote")
	if err := fs.Parse(args); err != nil {
		return err
	}

	reader := exchangeDI.GetCurveReader(c.mono.Services())
	if reader == nil {
		return apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("remote-quote needs ethereum.http_url and ethereum.curve_address"))
	}

	bzzAsset, daiAsset := asset.BZZ, asset.DAI
	registry := c.mono.AssetRegistry()
	chainID := c.cfg.Ethereum.ChainID
	if addr, err := reader.BondedToken(ctx); err == nil {
		if a, ok := registry.GetToken(chainID, addr); ok {
			bzzAsset = a
		}
	}
	if addr, err := reader.CollateralToken(ctx); err == nil {
		if a, ok := registry.GetToken(chainID, addr); ok {
			daiAsset = a
		}
	}

	bzz, err := parseAmount(bzzAsset, *amount)
	if err != nil {
		return err
	}
	buy, err := reader.BuyPrice(ctx, bzz)
	if err != nil {
		return err
	}
	sell, err := reader.SellReward(ctx, bzz)
	if err != nil {
		return err
	}

	card := &ui.Card{Title: "CURVE " + reader.Address().Hex()}
	card.Add("amount", format(bzzAsset, bzz), ui.ToneNormal).
		Add("buy price", format(daiAsset, buy), ui.ToneNegative).
		Add("sell reward", format(daiAsset, sell), ui.TonePositive).
		Add("mid", price(daiAsset, new(big.Int).Add(buy, sell), bzzAsset, new(big.Int).Mul(bzz, big.NewInt(2))), ui.ToneMuted)
	return c.render(card)
}
