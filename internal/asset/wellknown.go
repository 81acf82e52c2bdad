package asset

import "github.com/ethereum/go-ethereum/common"

const ChainIDEthereum = 1

// Mainnet token addresses.
var (
	AddrBZZEthereum  = common.HexToAddress("0x19062190B1925b5b6689D7073fDfC8c2976EF8Cb")
	AddrDAIEthereum  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	AddrUSDCEthereum = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	AddrUSDTEthereum = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")
)

// Mainnet assets.
var (
	BZZ  = MustNewToken(ChainIDEthereum, AddrBZZEthereum, "BZZ", "Swarm", 16)
	DAI  = MustNewToken(ChainIDEthereum, AddrDAIEthereum, "DAI", "Dai Stablecoin", 18)
	USDC = MustNewToken(ChainIDEthereum, AddrUSDCEthereum, "USDC", "USD Coin", 6)
	USDT = MustNewToken(ChainIDEthereum, AddrUSDTEthereum, "USDT", "Tether USD", 6)
)

// DefaultRegistry returns a registry holding the mainnet assets.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(BZZ)
	r.Register(DAI)
	r.Register(USDC)
	r.Register(USDT)
	return r
}

// MustNewToken creates an ERC-20 asset.
func MustNewToken(chainID uint64, address common.Address, symbol, name string, decimals uint8) *Asset {
	return NewAssetWithName(NewTokenAssetID(chainID, address), symbol, name, decimals)
}
