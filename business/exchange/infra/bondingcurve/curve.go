// Package bondingcurve simulates the BZZ bonding curve: a quadratic reserve
// R(s) = s²/divisor backing the bonded supply s.
package bondingcurve

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/fd1az/bzz-exchange/business/exchange/app"
	"github.com/fd1az/bzz-exchange/internal/ledger"
)

var (
	ErrPriceAboveMax   = errors.New("bonding curve: price exceeds max collateral spend")
	ErrRewardBelowMin  = errors.New("bonding curve: reward below min collateral returned")
	ErrSupplyExhausted = errors.New("bonding curve: amount exceeds supply")
	ErrInvalidDivisor  = errors.New("bonding curve: divisor must be positive")
)

var (
	mintedTopic   = crypto.Keccak256Hash([]byte("Minted(address,uint256,uint256)"))
	redeemedTopic = crypto.Keccak256Hash([]byte("Redeemed(address,uint256,uint256)"))
)

var _ app.BondingCurve = (*Curve)(nil)

// Curve prices BZZ against its own collateral reserve.
type Curve struct {
	address    common.Address
	collateral *ledger.ERC20
	bonded     *ledger.ERC20
	divisor    *big.Int
}

// New deploys a curve at addr. The curve must be a minter of bonded.
func New(addr common.Address, collateral, bonded *ledger.ERC20, divisor *big.Int) (*Curve, error) {
	if divisor == nil || divisor.Sign() <= 0 {
		return nil, ErrInvalidDivisor
	}
	return &Curve{
		address:    addr,
		collateral: collateral,
		bonded:     bonded,
		divisor:    new(big.Int).Set(divisor),
	}, nil
}

func (c *Curve) Address() common.Address         { return c.address }
func (c *Curve) CollateralToken() common.Address { return c.collateral.Address() }
func (c *Curve) BondedToken() common.Address     { return c.bonded.Address() }

// Reserve is the collateral that backs supply s.
func (c *Curve) Reserve(s *big.Int) *big.Int {
	r := new(big.Int).Mul(s, s)
	return r.Quo(r, c.divisor)
}

// BuyPrice is R(s+n) - R(s).
func (c *Curve) BuyPrice(tx *ledger.Tx, amount *big.Int) (*big.Int, error) {
	s := c.bonded.TotalSupply(tx)
	after := new(big.Int).Add(s, amount)
	return new(big.Int).Sub(c.Reserve(after), c.Reserve(s)), nil
}

// SellReward is R(s) - R(s-n), so a buy followed by a sell of the same
// amount returns exactly what was paid.
func (c *Curve) SellReward(tx *ledger.Tx, amount *big.Int) (*big.Int, error) {
	s := c.bonded.TotalSupply(tx)
	if amount.Cmp(s) > 0 {
		return nil, fmt.Errorf("%w: %s > %s", ErrSupplyExhausted, amount, s)
	}
	before := new(big.Int).Sub(s, amount)
	return new(big.Int).Sub(c.Reserve(s), c.Reserve(before)), nil
}

func (c *Curve) Mint(tx *ledger.Tx, caller common.Address, amount, maxSpend *big.Int) error {
	return c.MintTo(tx, caller, amount, maxSpend, caller)
}

func (c *Curve) MintTo(tx *ledger.Tx, caller common.Address, amount, maxSpend *big.Int, to common.Address) error {
	price, err := c.BuyPrice(tx, amount)
	if err != nil {
		return err
	}
	if price.Cmp(maxSpend) > 0 {
		return fmt.Errorf("%w: price %s, max %s", ErrPriceAboveMax, price, maxSpend)
	}

	if err := c.collateral.TransferFrom(tx, c.address, caller, c.address, price); err != nil {
		return err
	}
	if err := c.bonded.Mint(tx, c.address, to, amount); err != nil {
		return err
	}

	c.emit(tx, mintedTopic, to, amount, price)
	return nil
}

func (c *Curve) Redeem(tx *ledger.Tx, caller common.Address, amount, minReturn *big.Int) error {
	reward, err := c.SellReward(tx, amount)
	if err != nil {
		return err
	}
	if reward.Cmp(minReturn) < 0 {
		return fmt.Errorf("%w: reward %s, min %s", ErrRewardBelowMin, reward, minReturn)
	}

	if err := c.bonded.Burn(tx, c.address, caller, amount); err != nil {
		return err
	}
	if err := c.collateral.Transfer(tx, c.address, caller, reward); err != nil {
		return err
	}

	c.emit(tx, redeemedTopic, caller, amount, reward)
	return nil
}

func (c *Curve) emit(tx *ledger.Tx, topic common.Hash, who common.Address, amount, collateral *big.Int) {
	data := append(common.LeftPadBytes(amount.Bytes(), 32), common.LeftPadBytes(collateral.Bytes(), 32)...)
	tx.Emit(c.address, []common.Hash{topic, common.BytesToHash(who.Bytes())}, data)
}
