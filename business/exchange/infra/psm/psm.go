// Package psm simulates a peg stability module: DAI against a 6-decimal gem
// at par, less a tin fee on sells and plus a tout fee on buys.
package psm

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
	ErrFeeTooHigh  = errors.New("psm: fee must be below one")
	ErrUnknownFile = errors.New("psm: file-unrecognized-param")
	ErrDecimals    = errors.New("psm: gem decimals above 18")
)

var (
	// WAD is 1e18, the unit of tin and tout.
	WAD = big.NewInt(1_000_000_000_000_000_000)

	sellGemTopic = crypto.Keccak256Hash([]byte("SellGem(address,uint256,uint256)"))
	buyGemTopic  = crypto.Keccak256Hash([]byte("BuyGem(address,uint256,uint256)"))
)

var (
	tinSlot  = ledger.StorageKey("psm.tin")
	toutSlot = ledger.StorageKey("psm.tout")
)

var _ app.PegStabilityModule = (*Module)(nil)

// GemJoin custodies the gem. Users approve the join, not the module.
type GemJoin struct {
	address common.Address
	gem     *ledger.ERC20
}

func NewGemJoin(addr common.Address, gem *ledger.ERC20) *GemJoin {
	return &GemJoin{address: addr, gem: gem}
}

func (j *GemJoin) Address() common.Address { return j.address }

func (j *GemJoin) join(tx *ledger.Tx, from common.Address, amount *big.Int) error {
	return j.gem.TransferFrom(tx, j.address, from, j.address, amount)
}

func (j *GemJoin) exit(tx *ledger.Tx, to common.Address, amount *big.Int) error {
	return j.gem.Transfer(tx, j.address, to, amount)
}

// Module pays DAI out of its own reserve.
type Module struct {
	address common.Address
	dai     *ledger.ERC20
	join    *GemJoin
	to18    *big.Int
}

func New(addr common.Address, dai *ledger.ERC20, join *GemJoin) (*Module, error) {
	dec := join.gem.Decimals()
	if dec > 18 {
		return nil, fmt.Errorf("%w: %d", ErrDecimals, dec)
	}
	return &Module{
		address: addr,
		dai:     dai,
		join:    join,
		to18:    new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(18-dec)), nil),
	}, nil
}

func (m *Module) Address() common.Address { return m.address }
func (m *Module) GemJoin() common.Address { return m.join.address }

// To18 is the factor that scales one gem unit to DAI's 18 decimals.
func (m *Module) To18() *big.Int { return new(big.Int).Set(m.to18) }

func (m *Module) Tin(tx *ledger.Tx) *big.Int  { return tx.State().GetBig(m.address, tinSlot) }
func (m *Module) Tout(tx *ledger.Tx) *big.Int { return tx.State().GetBig(m.address, toutSlot) }

// File sets "tin" or "tout".
func (m *Module) File(tx *ledger.Tx, what string, value *big.Int) error {
	if value.Sign() < 0 || value.Cmp(WAD) >= 0 {
		return fmt.Errorf("%w: %s", ErrFeeTooHigh, value)
	}
	var slot common.Hash
	switch what {
	case "tin":
		slot = tinSlot
	case "tout":
		slot = toutSlot
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFile, what)
	}
	var h common.Hash
	value.FillBytes(h[:])
	tx.State().SetState(m.address, slot, h)
	return nil
}

// SellGem takes gemAmt from caller through the join and sends DAI, less
// tin, to usr.
func (m *Module) SellGem(tx *ledger.Tx, caller, usr common.Address, gemAmt *big.Int) error {
	gemAmt18 := new(big.Int).Mul(gemAmt, m.to18)
	fee := new(big.Int).Mul(gemAmt18, m.Tin(tx))
	fee.Quo(fee, WAD)
	daiAmt := new(big.Int).Sub(gemAmt18, fee)

	if err := m.join.join(tx, caller, gemAmt); err != nil {
		return err
	}
	if err := m.dai.Transfer(tx, m.address, usr, daiAmt); err != nil {
		return err
	}
	m.emit(tx, sellGemTopic, usr, gemAmt, fee)
	return nil
}

// BuyGem takes gemAmt scaled to DAI plus tout from caller and sends gemAmt to usr.
func (m *Module) BuyGem(tx *ledger.Tx, caller, usr common.Address, gemAmt *big.Int) error {
	gemAmt18 := new(big.Int).Mul(gemAmt, m.to18)
	fee := new(big.Int).Mul(gemAmt18, m.Tout(tx))
	fee.Quo(fee, WAD)
	daiAmt := new(big.Int).Add(gemAmt18, fee)

	if err := m.dai.TransferFrom(tx, m.address, caller, m.address, daiAmt); err != nil {
		return err
	}
	if err := m.join.exit(tx, usr, gemAmt); err != nil {
		return err
	}
	m.emit(tx, buyGemTopic, usr, gemAmt, fee)
	return nil
}

func (m *Module) emit(tx *ledger.Tx, topic common.Hash, usr common.Address, value, fee *big.Int) {
	data := append(common.LeftPadBytes(value.Bytes(), 32), common.LeftPadBytes(fee.Bytes(), 32)...)
	tx.Emit(m.address, []common.Hash{topic, common.BytesToHash(usr.Bytes())}, data)
}
