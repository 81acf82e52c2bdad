// Package exchange implements the BZZ exchange bounded context.
package exchange

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/fd1az/bzz-exchange/business/exchange/app"
	"github.com/fd1az/bzz-exchange/business/exchange/devnet"
	exchangeDI "github.com/fd1az/bzz-exchange/business/exchange/di"
	"github.com/fd1az/bzz-exchange/business/exchange/infra/ethereum"
	"github.com/fd1az/bzz-exchange/internal/circuitbreaker"
	"github.com/fd1az/bzz-exchange/internal/config"
	"github.com/fd1az/bzz-exchange/internal/di"
	"github.com/fd1az/bzz-exchange/internal/logger"
	"github.com/fd1az/bzz-exchange/internal/monolith"
)

// Module implements the exchange bounded context.
type Module struct{}

// DevnetParams maps the devnet and exchange config sections onto deploy
// parameters.
func DevnetParams(cfg *config.Config) (devnet.Params, error) {
	p := devnet.DefaultParams()

	divisor, err := cfg.Devnet.CurveDivisorBig()
	if err != nil {
		return p, err
	}
	tin, err := cfg.Devnet.PSMTinWad()
	if err != nil {
		return p, err
	}
	tout, err := cfg.Devnet.PSMToutWad()
	if err != nil {
		return p, err
	}

	if cfg.Ethereum.ChainID != 0 {
		p.ChainID = cfg.Ethereum.ChainID
	}
	if cfg.Exchange.Owner != "" {
		p.Owner = cfg.Exchange.OwnerAddress()
	}
	p.FeeBps = cfg.Exchange.FeeBps
	p.BZZSupply = cfg.Devnet.BZZSupply
	p.CurveDivisor = divisor
	p.Liquidity = cfg.Devnet.Liquidity
	p.StableSwapA = cfg.Devnet.StableSwapA
	p.StableSwapFee = cfg.Devnet.StableSwapFee
	p.UniswapFee = cfg.Devnet.UniswapFee
	p.PSMTin = tin
	p.PSMTout = tout
	p.PSMReserve = cfg.Devnet.PSMReserve
	p.USDTTransferFeeBps = cfg.Devnet.USDTTransferFeeBps
	return p, nil
}

// RegisterServices registers all exchange services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	cfg := c.Get(monolith.ConfigKey).(*config.Config)

	params, err := DevnetParams(cfg)
	if err != nil {
		return fmt.Errorf("exchange: %w", err)
	}

	// Register Env (private - the deployed devnet)
	di.RegisterToken(c, exchangeDI.Env, func(sr di.ServiceRegistry) *devnet.Env {
		log := sr.Get(monolith.LoggerKey).(logger.LoggerInterface)

		env, err := devnet.Deploy(context.Background(), params, log)
		if err != nil {
			panic("failed to deploy devnet: " + err.Error())
		}
		return env
	})

	// Register Account (private - the funded demo account)
	di.RegisterToken(c, exchangeDI.Account, func(sr di.ServiceRegistry) devnet.Account {
		acct, err := devnet.NewAccount()
		if err != nil {
			panic("failed to create account: " + err.Error())
		}
		return acct
	})

	// Register Exchange (public)
	di.RegisterToken(c, exchangeDI.Exchange, func(sr di.ServiceRegistry) *app.Exchange {
		return exchangeDI.GetEnv(sr).Exchange
	})

	// Register CurveReader (public - nil without a node)
	di.RegisterToken(c, exchangeDI.CurveReader, func(sr di.ServiceRegistry) *ethereum.CurveReader {
		if cfg.Ethereum.HTTPURL == "" || cfg.Ethereum.CurveAddress == "" {
			return nil
		}
		log := sr.Get(monolith.LoggerKey).(logger.LoggerInterface)
		client := sr.Get(monolith.EthClientKey).(*ethclient.Client)

		readerCfg := ethereum.ReaderConfig{
			RequestsPerSecond: cfg.Ethereum.RequestsPerSecond,
			Burst:             cfg.Ethereum.Burst,
			Timeout:           cfg.Ethereum.CallTimeout,
			Breaker:           circuitbreaker.DefaultConfig("curve-reader"),
		}
		reader, err := ethereum.NewCurveReader(client, cfg.Ethereum.CurveAddressHex(), readerCfg, log)
		if err != nil {
			panic("failed to create curve reader: " + err.Error())
		}
		return reader
	})

	return nil
}

// Startup deploys the devnet and funds the demo account.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	cfg := mono.Config()

	env := exchangeDI.GetEnv(mono.Services())
	acct := exchangeDI.GetAccount(mono.Services())

	if cfg.Devnet.Funding > 0 {
		if err := env.Fund(ctx, acct.Address, cfg.Devnet.Funding); err != nil {
			return fmt.Errorf("exchange: fund account: %w", err)
		}
	}

	log.Info(ctx, "exchange module started",
		"exchange", env.Exchange.Address().Hex(),
		"owner", env.Exchange.Owner().Hex(),
		"account", acct.Address.Hex(),
		"fee_bps", env.Exchange.Fee(),
	)
	return nil
}
