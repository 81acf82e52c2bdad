package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/bzz-exchange/business/exchange/devnet"
	"github.com/fd1az/bzz-exchange/business/exchange/domain"
	"github.com/fd1az/bzz-exchange/internal/apperror"
	"github.com/fd1az/bzz-exchange/internal/asset"
	"github.com/fd1az/bzz-exchange/internal/config"
	"github.com/fd1az/bzz-exchange/internal/logger"
)

const (
	remote = "0x00000000000000000000000000000000000C0001"
	batch  = "0x1111111111111111111111111111111111111111111111111111111111111111"
)

func newCLI(t *testing.T) (*cli, *bytes.Buffer) {
	t.Helper()
	ctx := context.Background()
	log := logger.New(io.Discard, logger.LevelError, "test", nil)

	p := devnet.DefaultParams()
	p.FeeBps = 30
	env, err := devnet.Deploy(ctx, p, log)
	if err != nil {
		t.Fatal(err)
	}
	acct, err := devnet.NewAccount()
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Fund(ctx, acct.Address, 100_000); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	return &cli{cfg: &config.Config{}, log: log, env: env, ex: env.Exchange, acct: acct, out: &out}, &out
}

func TestParseAmount(t *testing.T) {
	got, err := parseAmount(asset.USDC, "1.5")
	if err != nil {
		t.Fatal(err)
	}
	if got.Int64() != 1_500_000 {
		t.Errorf("expected 1500000 raw USDC, got %s", got)
	}

	_, err = parseAmount(asset.USDC, "ten")
	if !apperror.HasCode(err, apperror.CodeInvalidAmount) {
		t.Fatalf("expected %s, got %v", apperror.CodeInvalidAmount, err)
	}
	if !strings.Contains(err.Error(), `"ten" is not a USDC amount`) {
		t.Errorf("expected the message to name the input, got %v", err)
	}
}

func TestBuildPayload(t *testing.T) {
	permit := bytes.Repeat([]byte{0xAA}, domain.PermitSize)

	tests := []struct {
		name     string
		permit   []byte
		relay    string
		topup    string
		wantOpts domain.Options
		wantKind domain.SettlementKind
		wantErr  bool
	}{
		{name: "empty", wantOpts: 0, wantKind: domain.SettleLocal},
		{name: "permit", permit: permit, wantOpts: domain.OptPermit, wantKind: domain.SettleLocal},
		{name: "relay", relay: remote, wantOpts: domain.OptRelay, wantKind: domain.SettleRelay},
		{name: "relay_and_call", relay: remote, topup: batch, wantOpts: domain.OptRelay, wantKind: domain.SettleRelayAndCall},
		{name: "permit_and_relay", permit: permit, relay: remote, wantOpts: domain.OptPermit | domain.OptRelay, wantKind: domain.SettleRelay},
		{name: "topup_without_relay", topup: batch, wantErr: true},
		{name: "bad_address", relay: "0x1234", wantErr: true},
		{name: "short_batch", relay: remote, topup: "0x11", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, payload, err := buildPayload(tt.permit, tt.relay, tt.topup)
			if tt.wantErr {
				if !apperror.HasCode(err, apperror.CodeInvalidInput) {
					t.Errorf("expected INVALID_INPUT, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if opts != tt.wantOpts {
				t.Errorf("expected options %#02x, got %#02x", tt.wantOpts, opts)
			}

			gotPermit, relaySeg, err := domain.SplitPayload(opts, payload)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(gotPermit, tt.permit) {
				t.Error("permit segment did not survive the payload")
			}
			s, err := domain.ParseSettlement(relaySeg)
			if err != nil {
				t.Fatal(err)
			}
			if s.Kind != tt.wantKind {
				t.Errorf("expected %s, got %s", tt.wantKind, s.Kind)
			}
			if s.Relayed() && s.Recipient != common.HexToAddress(remote) {
				t.Errorf("expected recipient %s, got %s", remote, s.Recipient.Hex())
			}
		})
	}
}

func TestCLI_BuyWithPermitAndTopUp(t *testing.T) {
	c, out := newCLI(t)

	err := c.dispatch(context.Background(), "buy", []string{
		"-coin", "USDC", "-venue", "psm", "-amount", "10", "-permit", "-relay", remote, "-topup", batch,
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"BUY USDC via psm", "relay-and-call", common.HexToAddress(remote).Hex(), "top-up", "message"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("expected %q in:\n%s", want, out.String())
		}
	}
}

func TestCLI_Sell(t *testing.T) {
	c, out := newCLI(t)

	if err := c.dispatch(context.Background(), "sell", []string{"-coin", "USDT", "-venue", "stableswap", "-amount", "50"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "SELL USDT via stableswap") {
		t.Errorf("unexpected output:\n%s", out.String())
	}

	err := c.dispatch(context.Background(), "sell", []string{"-amount", "50", "-min", "1000000"})
	if !apperror.HasCode(err, apperror.CodeSlippageExceeded) {
		t.Errorf("expected SLIPPAGE_EXCEEDED, got %v", err)
	}
}

func TestCLI_Quote(t *testing.T) {
	c, out := newCLI(t)

	if err := c.dispatch(context.Background(), "quote", []string{"-amount", "100"}); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"at 30 bps", "DAI", "stableswap", "uniswap", "psm"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("expected %q in:\n%s", want, out.String())
		}
	}

	if err := c.dispatch(context.Background(), "quote", []string{"-side", "hold"}); !apperror.HasCode(err, apperror.CodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT, got %v", err)
	}
}

func TestCLI_Fee(t *testing.T) {
	c, out := newCLI(t)

	if err := c.dispatch(context.Background(), "fee", []string{"-set", "55"}); err != nil {
		t.Fatal(err)
	}
	if c.exchange().Fee() != 55 || !strings.Contains(out.String(), "55 bps") {
		t.Errorf("expected fee 55, got %d:\n%s", c.exchange().Fee(), out.String())
	}

	err := c.dispatch(context.Background(), "fee", []string{"-set", "10", "-as", remote})
	if !apperror.HasCode(err, apperror.CodeUnauthorized) {
		t.Errorf("expected UNAUTHORIZED, got %v", err)
	}
	err = c.dispatch(context.Background(), "fee", []string{"-set", "101"})
	if !apperror.HasCode(err, apperror.CodeFeeTooHigh) {
		t.Errorf("expected FEE_TOO_HIGH, got %v", err)
	}
}

func TestCLI_DemoSweepsFees(t *testing.T) {
	c, out := newCLI(t)

	if err := c.dispatch(context.Background(), "demo", []string{"-amount", "100"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "SWEEP") {
		t.Errorf("expected a sweep card in:\n%s", out.String())
	}

	owner := c.exchange().Owner()
	if got := c.env.Balance(c.env.DAI, c.exchange().Address()); got.Sign() != 0 {
		t.Errorf("expected the exchange to hold no DAI after the sweep, got %s", got)
	}
	if got := c.env.Balance(c.env.DAI, owner); got.Sign() == 0 {
		t.Error("expected the owner to receive the retained fees")
	}
}

func TestCLI_UnknownCommand(t *testing.T) {
	c, _ := newCLI(t)
	if err := c.dispatch(context.Background(), "bridge", nil); err == nil {
		t.Error("expected an unknown command to fail")
	}
}
