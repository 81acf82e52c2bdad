// Package asset models the ERC-20 tokens the exchange handles. On-ledger
// math stays in big.Int; decimal.Decimal is only used at the edges for
// parsing and display.
package asset

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// AssetID identifies a token by chain and contract address. The symbol is
// display metadata, never identity.
type AssetID struct {
	chainID uint64
	address common.Address
}

// NewTokenAssetID creates an AssetID for an ERC-20 token.
func NewTokenAssetID(chainID uint64, addr common.Address) AssetID {
	if addr == (common.Address{}) {
		panic("asset: token address cannot be zero")
	}
	return AssetID{chainID: chainID, address: addr}
}

func (id AssetID) ChainID() uint64         { return id.chainID }
func (id AssetID) Address() common.Address { return id.address }

func (id AssetID) String() string {
	return fmt.Sprintf("chain:%d/%s", id.chainID, id.address.Hex())
}

// Equals compares two AssetIDs for equality.
func (id AssetID) Equals(other AssetID) bool {
	return id.chainID == other.chainID && id.address == other.address
}
