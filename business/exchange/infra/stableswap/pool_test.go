package stableswap

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/bzz-exchange/internal/ledger"
)

var (
	deployer = common.HexToAddress("0xd0")
	trader   = common.HexToAddress("0xa1")
)

func units(n int64, decimals uint8) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
}

type fixture struct {
	chain *ledger.Chain
	coins [nCoins]*ledger.ERC20
	pool  *Pool
}

func newFixture(t *testing.T, usdtFeeBps uint64) fixture {
	t.Helper()
	chain := ledger.NewChain(1)
	cfgs := [nCoins]ledger.TokenConfig{
		{Name: "Dai", Symbol: "DAI", Decimals: 18},
		{Name: "USD Coin", Symbol: "USDC", Decimals: 6},
		{Name: "Tether", Symbol: "USDT", Decimals: 6, TransferFeeBps: usdtFeeBps},
	}
	var coins [nCoins]*ledger.ERC20
	for i, cfg := range cfgs {
		cfg.Minters = []common.Address{deployer}
		coins[i] = ledger.NewERC20(chain, chain.NewContractAddress(deployer), cfg)
	}
	pool, err := New(chain.NewContractAddress(deployer), coins, Config{A: 2_000, Fee: 4_000_000})
	if err != nil {
		t.Fatal(err)
	}

	_, err = chain.Execute(context.Background(), deployer, func(tx *ledger.Tx) error {
		var seed [nCoins]*big.Int
		for i, c := range coins {
			seed[i] = units(1_000_000, c.Decimals())
			if err := c.Mint(tx, deployer, deployer, seed[i]); err != nil {
				return err
			}
			if err := c.Mint(tx, deployer, trader, units(10_000, c.Decimals())); err != nil {
				return err
			}
			if err := c.Approve(tx, deployer, pool.Address(), ledger.MaxUint256()); err != nil {
				return err
			}
			if err := c.Approve(tx, trader, pool.Address(), ledger.MaxUint256()); err != nil {
				return err
			}
		}
		return pool.AddLiquidity(tx, deployer, seed)
	})
	if err != nil {
		t.Fatal(err)
	}
	return fixture{chain: chain, coins: coins, pool: pool}
}

func TestPool_GetDyNearPar(t *testing.T) {
	f := newFixture(t, 0)

	_ = f.chain.View(func(tx *ledger.Tx) error {
		got, err := f.pool.GetDy(tx, 0, 1, units(1_000, 18))
		if err != nil {
			t.Fatal(err)
		}
		// balanced pool: 1000 DAI buys a little under 1000 USDC
		lo, hi := units(999, 6), units(1_000, 6)
		if got.Cmp(lo) < 0 || got.Cmp(hi) >= 0 {
			t.Errorf("expected output in [%s, %s), got %s", lo, hi, got)
		}
		return nil
	})
}

func TestPool_GetDxIsTight(t *testing.T) {
	f := newFixture(t, 0)

	tests := []struct {
		name string
		i, j int
		dy   *big.Int
	}{
		{"usdc_to_dai", 1, 0, units(1_234, 18)},
		{"usdt_to_dai", 2, 0, new(big.Int).Add(units(50, 18), big.NewInt(7))},
		{"dai_to_usdc", 0, 1, units(777, 6)},
		{"dai_to_usdt", 0, 2, big.NewInt(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_ = f.chain.View(func(tx *ledger.Tx) error {
				dx, err := f.pool.GetDx(tx, tt.i, tt.j, tt.dy)
				if err != nil {
					t.Fatal(err)
				}
				got, _ := f.pool.GetDy(tx, tt.i, tt.j, dx)
				if got.Cmp(tt.dy) < 0 {
					t.Errorf("GetDy(GetDx(%s)) = %s, below target", tt.dy, got)
				}
				less := new(big.Int).Sub(dx, big.NewInt(1))
				if got, _ := f.pool.GetDy(tx, tt.i, tt.j, less); got.Cmp(tt.dy) >= 0 {
					t.Errorf("dx-1 = %s still yields %s, GetDx is not minimal", less, got)
				}
				return nil
			})
		})
	}
}

func TestPool_Exchange(t *testing.T) {
	f := newFixture(t, 0)
	dx := units(500, 6)

	var quoted *big.Int
	_ = f.chain.View(func(tx *ledger.Tx) error {
		quoted, _ = f.pool.GetDy(tx, 1, 0, dx)
		return nil
	})

	_, err := f.chain.Execute(context.Background(), trader, func(tx *ledger.Tx) error {
		before := f.coins[0].BalanceOf(tx, trader)
		out, err := f.pool.Exchange(tx, trader, 1, 0, dx, quoted)
		if err != nil {
			return err
		}
		if out.Cmp(quoted) != 0 {
			t.Errorf("expected %s, got %s", quoted, out)
		}
		if gained := new(big.Int).Sub(f.coins[0].BalanceOf(tx, trader), before); gained.Cmp(out) != 0 {
			t.Errorf("expected trader to gain %s, got %s", out, gained)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestPool_ExchangeMinDy(t *testing.T) {
	f := newFixture(t, 0)
	dx := units(500, 6)

	var quoted *big.Int
	_ = f.chain.View(func(tx *ledger.Tx) error {
		quoted, _ = f.pool.GetDy(tx, 1, 0, dx)
		return nil
	})

	_, err := f.chain.Execute(context.Background(), trader, func(tx *ledger.Tx) error {
		_, err := f.pool.Exchange(tx, trader, 1, 0, dx, new(big.Int).Add(quoted, big.NewInt(1)))
		return err
	})
	if !errors.Is(err, ErrInsufficientOutput) {
		t.Errorf("expected ErrInsufficientOutput, got %v", err)
	}
}

func TestPool_ExchangeCreditsReceivedAmount(t *testing.T) {
	// 1% transfer fee on USDT
	f := newFixture(t, 100)
	dx := units(1_000, 6)

	var full, net *big.Int
	_ = f.chain.View(func(tx *ledger.Tx) error {
		full, _ = f.pool.GetDy(tx, 2, 0, dx)
		net, _ = f.pool.GetDy(tx, 2, 0, units(990, 6))
		return nil
	})

	_, err := f.chain.Execute(context.Background(), trader, func(tx *ledger.Tx) error {
		out, err := f.pool.Exchange(tx, trader, 2, 0, dx, big.NewInt(0))
		if err != nil {
			return err
		}
		if out.Cmp(net) != 0 {
			t.Errorf("expected %s credited on the received amount, got %s (full would be %s)", net, out, full)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestPool_IndexChecks(t *testing.T) {
	f := newFixture(t, 0)

	_ = f.chain.View(func(tx *ledger.Tx) error {
		if _, err := f.pool.GetDy(tx, 0, 0, big.NewInt(1)); !errors.Is(err, ErrSameCoin) {
			t.Errorf("expected ErrSameCoin, got %v", err)
		}
		if _, err := f.pool.GetDy(tx, 0, 3, big.NewInt(1)); !errors.Is(err, ErrInvalidIndex) {
			t.Errorf("expected ErrInvalidIndex, got %v", err)
		}
		if _, err := f.pool.Coins(-1); !errors.Is(err, ErrInvalidIndex) {
			t.Errorf("expected ErrInvalidIndex, got %v", err)
		}
		return nil
	})
}
