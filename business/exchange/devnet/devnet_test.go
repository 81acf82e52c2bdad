package devnet

import (
	"context"
	"io"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/bzz-exchange/business/exchange/domain"
	"github.com/fd1az/bzz-exchange/internal/apperror"
	"github.com/fd1az/bzz-exchange/internal/ledger"
	"github.com/fd1az/bzz-exchange/internal/logger"
)

func deploy(t *testing.T) *Env {
	t.Helper()
	env, err := Deploy(context.Background(), DefaultParams(), logger.New(io.Discard, logger.LevelError, "test", nil))
	if err != nil {
		t.Fatal(err)
	}
	return env
}

func TestDeploy_PricesNearThirtyCents(t *testing.T) {
	env := deploy(t)

	var price *big.Int
	err := env.Chain.View(func(tx *ledger.Tx) error {
		var err error
		price, err = env.Curve.BuyPrice(tx, Units(1, 16))
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	lo, hi := Units(29, 16), Units(31, 16)
	if price.Cmp(lo) < 0 || price.Cmp(hi) > 0 {
		t.Errorf("expected 1 BZZ to cost about 0.3 DAI, got %s", price)
	}
}

func TestDeploy_SeedsVenues(t *testing.T) {
	env := deploy(t)

	if got := env.Balance(env.DAI, env.Curve.Address()); got.Cmp(env.Curve.Reserve(Units(env.Params.BZZSupply, 16))) != 0 {
		t.Errorf("expected the curve to hold its reserve, got %s", got)
	}
	for _, c := range domain.Coins {
		tok := env.Token(c)
		if got := env.Balance(tok, env.StableSwap.Address()); got.Cmp(Units(env.Params.Liquidity, tok.Decimals())) != 0 {
			t.Errorf("stable-swap %s balance %s", tok.Symbol(), got)
		}
	}
	for c, pool := range env.Uniswap {
		if got := env.Balance(env.Token(c), pool.Address()); got.Sign() == 0 {
			t.Errorf("uniswap %s pool has no %s", c, c)
		}
	}
	if got := env.Balance(env.USDC, env.GemJoin.Address()); got.Sign() == 0 {
		t.Error("expected the gem join to hold USDC")
	}
}

func TestFund_ApprovesExchange(t *testing.T) {
	env := deploy(t)
	who := common.HexToAddress("0x00000000000000000000000000000000000F0001")
	if err := env.Fund(context.Background(), who, 10); err != nil {
		t.Fatal(err)
	}

	_ = env.Chain.View(func(tx *ledger.Tx) error {
		for _, tok := range []*ledger.ERC20{env.DAI, env.USDC, env.USDT, env.BZZ} {
			if got := tok.BalanceOf(tx, who); got.Cmp(Units(10, tok.Decimals())) != 0 {
				t.Errorf("expected 10 %s, got %s", tok.Symbol(), got)
			}
			if got := tok.Allowance(tx, who, env.Exchange.Address()); got.Cmp(ledger.MaxUint256()) != 0 {
				t.Errorf("expected unlimited %s allowance, got %s", tok.Symbol(), got)
			}
		}
		return nil
	})
}

func TestSignPermit(t *testing.T) {
	env := deploy(t)
	acct, err := NewAccount()
	if err != nil {
		t.Fatal(err)
	}

	deadline := big.NewInt(time.Now().Add(time.Hour).Unix())
	value := Units(50, 6)

	tests := []struct {
		coin    domain.Coin
		dialect domain.Dialect
	}{
		{domain.CoinDAI, domain.DialectAllowed},
		{domain.CoinUSDC, domain.DialectEIP2612},
	}

	for _, tt := range tests {
		t.Run(tt.coin.String(), func(t *testing.T) {
			seg, err := env.SignPermit(acct, tt.coin, value, deadline)
			if err != nil {
				t.Fatal(err)
			}
			p, err := domain.DecodePermit(tt.dialect, seg)
			if err != nil {
				t.Fatal(err)
			}
			if p.Deadline.Cmp(deadline) != 0 {
				t.Errorf("expected deadline %s, got %s", deadline, p.Deadline)
			}
			if tt.dialect == domain.DialectAllowed && p.Nonce.Sign() != 0 {
				t.Errorf("expected nonce 0, got %s", p.Nonce)
			}
			if tt.dialect == domain.DialectEIP2612 && p.Value.Cmp(value) != 0 {
				t.Errorf("expected value %s, got %s", value, p.Value)
			}
		})
	}

	if _, err := env.SignPermit(acct, domain.CoinUSDT, value, deadline); !apperror.HasCode(err, apperror.CodeUnsupportedPermit) {
		t.Errorf("expected USDT to have no permit, got %v", err)
	}
}
