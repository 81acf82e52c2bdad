// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// maxFeeBps mirrors the exchange's hard fee ceiling.
const maxFeeBps = 100

// Config holds all application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Ethereum  EthereumConfig  `mapstructure:"ethereum"`
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	Devnet    DevnetConfig    `mapstructure:"devnet"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
}

// EthereumConfig points the remote curve reader at a node. Everything here is
// optional; the devnet needs none of it.
type EthereumConfig struct {
	HTTPURL           string        `mapstructure:"http_url"`
	ChainID           uint64        `mapstructure:"chain_id"`
	CurveAddress      string        `mapstructure:"curve_address"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	CallTimeout       time.Duration `mapstructure:"call_timeout"`
	// Headers are sent with every RPC request, e.g. a provider API key.
	Headers map[string]string `mapstructure:"headers"`
}

// CurveAddressHex returns the curve address as common.Address.
func (c *EthereumConfig) CurveAddressHex() common.Address {
	return common.HexToAddress(c.CurveAddress)
}

// ExchangeConfig holds the exchange's own settings.
type ExchangeConfig struct {
	FeeBps uint64 `mapstructure:"fee_bps"`
	Owner  string `mapstructure:"owner"`
}

// OwnerAddress returns the owner as common.Address.
func (c *ExchangeConfig) OwnerAddress() common.Address {
	return common.HexToAddress(c.Owner)
}

// DevnetConfig sizes the in-process environment.
type DevnetConfig struct {
	BZZSupply          int64  `mapstructure:"bzz_supply"`
	CurveDivisor       string `mapstructure:"curve_divisor"`
	Liquidity          int64  `mapstructure:"liquidity"`
	StableSwapA        uint64 `mapstructure:"stableswap_a"`
	StableSwapFee      uint64 `mapstructure:"stableswap_fee"`
	UniswapFee         uint32 `mapstructure:"uniswap_fee"`
	PSMTin             string `mapstructure:"psm_tin"`
	PSMTout            string `mapstructure:"psm_tout"`
	PSMReserve         int64  `mapstructure:"psm_reserve"`
	USDTTransferFeeBps uint64 `mapstructure:"usdt_transfer_fee_bps"`
	Funding            int64  `mapstructure:"funding"`
}

// CurveDivisorBig parses the curve divisor.
func (c *DevnetConfig) CurveDivisorBig() (*big.Int, error) {
	d, ok := new(big.Int).SetString(c.CurveDivisor, 10)
	if !ok || d.Sign() <= 0 {
		return nil, fmt.Errorf("invalid devnet.curve_divisor: %q", c.CurveDivisor)
	}
	return d, nil
}

// PSMTinWad returns tin as a WAD fraction.
func (c *DevnetConfig) PSMTinWad() (*big.Int, error) {
	return toWad("devnet.psm_tin", c.PSMTin)
}

// PSMToutWad returns tout as a WAD fraction.
func (c *DevnetConfig) PSMToutWad() (*big.Int, error) {
	return toWad("devnet.psm_tout", c.PSMTout)
}

func toWad(key, s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d.IsNegative() || d.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("invalid %s: %s must be in [0, 1)", key, s)
	}
	return d.Shift(18).BigInt(), nil
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	TraceProvider  string `mapstructure:"trace_provider"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPHeaders    string `mapstructure:"otlp_headers"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
	HealthPort     int    `mapstructure:"health_port"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("BZZX")
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "BZZX_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "BZZX_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "BZZX_LOG_LEVEL", "LOG_LEVEL")

	// Ethereum
	v.BindEnv("ethereum.http_url", "BZZX_ETH_HTTP_URL", "ETH_HTTP_URL")
	v.BindEnv("ethereum.chain_id", "BZZX_ETH_CHAIN_ID", "ETH_CHAIN_ID")
	v.BindEnv("ethereum.curve_address", "BZZX_CURVE_ADDRESS")

	// Exchange
	v.BindEnv("exchange.fee_bps", "BZZX_FEE_BPS")
	v.BindEnv("exchange.owner", "BZZX_OWNER")

	// Devnet
	v.BindEnv("devnet.usdt_transfer_fee_bps", "BZZX_USDT_TRANSFER_FEE_BPS")

	// Telemetry
	v.BindEnv("telemetry.enabled", "BZZX_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "BZZX_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "BZZX_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "bzz-exchange")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	// Ethereum defaults
	v.SetDefault("ethereum.chain_id", 1)
	v.SetDefault("ethereum.requests_per_second", 10)
	v.SetDefault("ethereum.burst", 5)
	v.SetDefault("ethereum.call_timeout", "10s")

	// Exchange defaults
	v.SetDefault("exchange.fee_bps", 0)

	// Devnet defaults: about 0.3 DAI per BZZ at a 60M supply
	v.SetDefault("devnet.bzz_supply", 60_000_000)
	v.SetDefault("devnet.curve_divisor", "40000000000000000000000")
	v.SetDefault("devnet.liquidity", 10_000_000)
	v.SetDefault("devnet.stableswap_a", 2000)
	v.SetDefault("devnet.stableswap_fee", 4_000_000)
	v.SetDefault("devnet.uniswap_fee", 100)
	v.SetDefault("devnet.psm_tin", "0.001")
	v.SetDefault("devnet.psm_tout", "0.001")
	v.SetDefault("devnet.psm_reserve", 10_000_000)
	v.SetDefault("devnet.usdt_transfer_fee_bps", 0)
	v.SetDefault("devnet.funding", 100_000)

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "bzz-exchange")
	v.SetDefault("telemetry.trace_provider", "console")
	v.SetDefault("telemetry.prometheus_port", 9090)
	v.SetDefault("telemetry.health_port", 8081)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Exchange.FeeBps > maxFeeBps {
		return fmt.Errorf("exchange.fee_bps %d exceeds %d", c.Exchange.FeeBps, maxFeeBps)
	}
	if c.Exchange.Owner != "" && !common.IsHexAddress(c.Exchange.Owner) {
		return fmt.Errorf("invalid exchange.owner: %s", c.Exchange.Owner)
	}
	if c.Ethereum.CurveAddress != "" && !common.IsHexAddress(c.Ethereum.CurveAddress) {
		return fmt.Errorf("invalid ethereum.curve_address: %s", c.Ethereum.CurveAddress)
	}
	switch c.Devnet.UniswapFee {
	case 100, 500, 3000, 10000:
	default:
		return fmt.Errorf("invalid devnet.uniswap_fee: %d", c.Devnet.UniswapFee)
	}
	if c.Devnet.BZZSupply <= 0 || c.Devnet.Liquidity <= 0 {
		return fmt.Errorf("devnet.bzz_supply and devnet.liquidity must be positive")
	}
	if c.Devnet.USDTTransferFeeBps >= 10_000 {
		return fmt.Errorf("devnet.usdt_transfer_fee_bps %d must be below 10000", c.Devnet.USDTTransferFeeBps)
	}
	if _, err := c.Devnet.CurveDivisorBig(); err != nil {
		return err
	}
	if _, err := c.Devnet.PSMTinWad(); err != nil {
		return err
	}
	if _, err := c.Devnet.PSMToutWad(); err != nil {
		return err
	}
	return nil
}
