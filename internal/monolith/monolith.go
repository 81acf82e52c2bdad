// Package monolith provides the application container and module interface.
package monolith

import (
	"context"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/fd1az/bzz-exchange/internal/apperror"
	"github.com/fd1az/bzz-exchange/internal/asset"
	"github.com/fd1az/bzz-exchange/internal/config"
	"github.com/fd1az/bzz-exchange/internal/di"
	"github.com/fd1az/bzz-exchange/internal/httpclient"
	"github.com/fd1az/bzz-exchange/internal/logger"
)

// Monolith is the main application container providing access to shared infrastructure.
type Monolith interface {
	Config() *config.Config
	Logger() logger.LoggerInterface
	// EthClient is nil unless ethereum.http_url is configured.
	EthClient() *ethclient.Client
	AssetRegistry() *asset.Registry
	Services() di.ServiceRegistry
}

// Module represents a bounded context module that can register services and start up.
type Module interface {
	RegisterServices(di.Container) error
	Startup(context.Context, Monolith) error
}

// Shared container keys.
const (
	ConfigKey        = "config"
	LoggerKey        = "logger"
	EthClientKey     = "ethClient"
	AssetRegistryKey = "assetRegistry"
)

type app struct {
	config        *config.Config
	logger        logger.LoggerInterface
	ethClient     *ethclient.Client
	assetRegistry *asset.Registry
	container     di.Container
}

// New creates a new Monolith instance. The node connection is optional: the
// exchange runs on its in-process devnet and only remote quotes need RPC.
func New(ctx context.Context, cfg *config.Config, log logger.LoggerInterface) (*app, error) {
	var ethClient *ethclient.Client
	if cfg.Ethereum.HTTPURL != "" {
		hc := httpclient.New(
			httpclient.WithProviderName("eth-rpc"),
			httpclient.WithRequestTimeout(cfg.Ethereum.CallTimeout),
			httpclient.WithHeaders(cfg.Ethereum.Headers),
		)
		rpcClient, err := rpc.DialOptions(ctx, cfg.Ethereum.HTTPURL, rpc.WithHTTPClient(hc))
		if err != nil {
			return nil, apperror.External(apperror.CodeEthereumConnectionFailed, cfg.Ethereum.HTTPURL, err)
		}
		ethClient = ethclient.NewClient(rpcClient)
	}

	assetRegistry := asset.DefaultRegistry()

	container := di.NewContainer()
	container.Register(ConfigKey, cfg)
	container.Register(LoggerKey, log)
	container.Register(AssetRegistryKey, assetRegistry)
	if ethClient != nil {
		container.Register(EthClientKey, ethClient)
	}

	return &app{
		config:        cfg,
		logger:        log,
		ethClient:     ethClient,
		assetRegistry: assetRegistry,
		container:     container,
	}, nil
}

func (a *app) Config() *config.Config {
	return a.config
}

func (a *app) Logger() logger.LoggerInterface {
	return a.logger
}

func (a *app) EthClient() *ethclient.Client {
	return a.ethClient
}

func (a *app) AssetRegistry() *asset.Registry {
	return a.assetRegistry
}

func (a *app) Services() di.ServiceRegistry {
	return a.container
}

// Container returns the DI container for module registration.
func (a *app) Container() di.Container {
	return a.container
}

// RegisterModules registers all provided modules.
func (a *app) RegisterModules(modules ...Module) error {
	for _, m := range modules {
		if err := m.RegisterServices(a.container); err != nil {
			return err
		}
	}
	return nil
}

// StartModules starts all provided modules.
func (a *app) StartModules(ctx context.Context, modules ...Module) error {
	for _, m := range modules {
		if err := m.Startup(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) Close() error {
	if a.ethClient != nil {
		a.ethClient.Close()
	}
	return nil
}
