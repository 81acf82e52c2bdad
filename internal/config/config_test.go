package config

import (
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  name: test\n"))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.App.Name != "test" {
		t.Errorf("expected app name from file, got %q", cfg.App.Name)
	}
	if cfg.Exchange.FeeBps != 0 {
		t.Errorf("expected zero fee, got %d", cfg.Exchange.FeeBps)
	}
	if cfg.Devnet.UniswapFee != 100 || cfg.Devnet.BZZSupply != 60_000_000 {
		t.Errorf("unexpected devnet defaults: %+v", cfg.Devnet)
	}
	tin, err := cfg.Devnet.PSMTinWad()
	if err != nil {
		t.Fatal(err)
	}
	if want := big.NewInt(1_000_000_000_000_000); tin.Cmp(want) != 0 {
		t.Errorf("expected tin %s, got %s", want, tin)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("BZZX_FEE_BPS", "42")
	cfg, err := Load(writeConfig(t, "exchange:\n  fee_bps: 10\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Exchange.FeeBps != 42 {
		t.Errorf("expected env fee 42, got %d", cfg.Exchange.FeeBps)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"fee_above_ceiling", "exchange:\n  fee_bps: 101\n", "exchange.fee_bps"},
		{"bad_owner", "exchange:\n  owner: nope\n", "exchange.owner"},
		{"bad_fee_tier", "devnet:\n  uniswap_fee: 42\n", "devnet.uniswap_fee"},
		{"tin_too_high", "devnet:\n  psm_tin: \"1\"\n", "devnet.psm_tin"},
		{"tout_garbage", "devnet:\n  psm_tout: abc\n", "devnet.psm_tout"},
		{"bad_divisor", "devnet:\n  curve_divisor: \"-5\"\n", "devnet.curve_divisor"},
		{"lossy_usdt", "devnet:\n  usdt_transfer_fee_bps: 10000\n", "usdt_transfer_fee_bps"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}
