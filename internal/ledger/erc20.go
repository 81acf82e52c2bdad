package ledger

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Token errors. Callers match them with errors.Is.
var (
	ErrInsufficientBalance   = errors.New("erc20: transfer amount exceeds balance")
	ErrInsufficientAllowance = errors.New("erc20: insufficient allowance")
	ErrAmountOverflow        = errors.New("erc20: amount overflows uint256")
	ErrNotMinter             = errors.New("erc20: caller is not a minter")
	ErrZeroAddress           = errors.New("erc20: zero address")
	ErrInvalidSignature      = errors.New("erc20: invalid permit signature")
	ErrPermitExpired         = errors.New("erc20: permit expired")
	ErrInvalidNonce          = errors.New("erc20: invalid permit nonce")
	ErrPermitUnsupported     = errors.New("erc20: token does not support this permit")
)

// PermitKind selects which off-chain approval scheme a token accepts.
type PermitKind int

const (
	PermitNone PermitKind = iota
	// PermitAllowed is the nonce/expiry/allowed scheme used by DAI.
	PermitAllowed
	// PermitEIP2612 is the value/deadline scheme used by USDC.
	PermitEIP2612
)

var (
	transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	approvalTopic = crypto.Keccak256Hash([]byte("Approval(address,address,uint256)"))

	domainTypeHash        = crypto.Keccak256Hash([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	permitAllowedTypeHash = crypto.Keccak256Hash([]byte("Permit(address holder,address spender,uint256 nonce,uint256 expiry,bool allowed)"))
	permitTypeHash        = crypto.Keccak256Hash([]byte("Permit(address owner,address spender,uint256 value,uint256 nonce,uint256 deadline)"))
)

// TokenConfig describes a token at deployment.
type TokenConfig struct {
	Name     string
	Symbol   string
	Version  string
	Decimals uint8
	Permit   PermitKind
	// TransferFeeBps burns this share of every transfer.
	TransferFeeBps uint64
	Minters        []common.Address
}

// ERC20 is a fungible token whose balances live in the ledger State.
type ERC20 struct {
	address common.Address
	cfg     TokenConfig
	minters map[common.Address]bool
	domain  common.Hash
}

// NewERC20 deploys a token at addr on chain.
func NewERC20(chain *Chain, addr common.Address, cfg TokenConfig) *ERC20 {
	if cfg.Version == "" {
		cfg.Version = "1"
	}

	t := &ERC20{
		address: addr,
		cfg:     cfg,
		minters: make(map[common.Address]bool),
	}
	for _, m := range cfg.Minters {
		t.minters[m] = true
	}

	t.domain = crypto.Keccak256Hash(
		domainTypeHash.Bytes(),
		crypto.Keccak256([]byte(cfg.Name)),
		crypto.Keccak256([]byte(cfg.Version)),
		common.LeftPadBytes(chain.ChainID().Bytes(), 32),
		common.LeftPadBytes(addr.Bytes(), 32),
	)
	return t
}

func (t *ERC20) Address() common.Address { return t.address }
func (t *ERC20) Name() string            { return t.cfg.Name }
func (t *ERC20) Symbol() string          { return t.cfg.Symbol }
func (t *ERC20) Decimals() uint8         { return t.cfg.Decimals }
func (t *ERC20) PermitKind() PermitKind  { return t.cfg.Permit }

// DomainSeparator returns the EIP-712 domain hash.
func (t *ERC20) DomainSeparator() common.Hash { return t.domain }

// AddMinter grants mint and burn rights. Deployment-time only.
func (t *ERC20) AddMinter(m common.Address) {
	t.minters[m] = true
}

func balanceKey(holder common.Address) common.Hash {
	return StorageKey("erc20.balance", holder.Bytes())
}

func allowanceKey(owner, spender common.Address) common.Hash {
	return StorageKey("erc20.allowance", owner.Bytes(), spender.Bytes())
}

func nonceKey(holder common.Address) common.Hash {
	return StorageKey("erc20.nonce", holder.Bytes())
}

var supplyKey = StorageKey("erc20.supply")

// BalanceOf returns holder's balance.
func (t *ERC20) BalanceOf(tx *Tx, holder common.Address) *big.Int {
	return tx.state.GetBig(t.address, balanceKey(holder))
}

// TotalSupply returns the circulating supply.
func (t *ERC20) TotalSupply(tx *Tx) *big.Int {
	return tx.state.GetBig(t.address, supplyKey)
}

// Allowance returns how much spender may move on behalf of owner.
func (t *ERC20) Allowance(tx *Tx, owner, spender common.Address) *big.Int {
	return tx.state.GetBig(t.address, allowanceKey(owner, spender))
}

// Nonces returns the permit nonce of holder.
func (t *ERC20) Nonces(tx *Tx, holder common.Address) *big.Int {
	return tx.state.GetBig(t.address, nonceKey(holder))
}

// Approve sets the allowance of spender over owner's tokens.
func (t *ERC20) Approve(tx *Tx, owner, spender common.Address, amount *big.Int) error {
	v, err := word(amount)
	if err != nil {
		return err
	}
	t.setAllowance(tx, owner, spender, v)
	return nil
}

// Transfer moves amount from the caller's balance.
func (t *ERC20) Transfer(tx *Tx, from, to common.Address, amount *big.Int) error {
	return t.move(tx, from, to, amount)
}

// TransferFrom moves amount from from to to using spender's allowance. The
// maximum uint256 allowance is never decreased.
func (t *ERC20) TransferFrom(tx *Tx, spender, from, to common.Address, amount *big.Int) error {
	v, err := word(amount)
	if err != nil {
		return err
	}

	if spender != from {
		key := allowanceKey(from, spender)
		allowed := tx.state.GetWord(t.address, key)
		if allowed.Lt(v) {
			return fmt.Errorf("%w: %s wants %s of %s, allowed %s",
				ErrInsufficientAllowance, spender.Hex(), v.Dec(), t.cfg.Symbol, allowed.Dec())
		}
		if !isInfinite(allowed) {
			t.setAllowance(tx, from, spender, new(uint256.Int).Sub(allowed, v))
		}
	}

	return t.move(tx, from, to, amount)
}

// Mint creates amount tokens for to.
func (t *ERC20) Mint(tx *Tx, minter, to common.Address, amount *big.Int) error {
	if !t.minters[minter] {
		return ErrNotMinter
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	v, err := word(amount)
	if err != nil {
		return err
	}

	supply := tx.state.GetWord(t.address, supplyKey)
	newSupply, overflow := new(uint256.Int).AddOverflow(supply, v)
	if overflow {
		return ErrAmountOverflow
	}
	tx.state.SetWord(t.address, supplyKey, newSupply)

	bal := tx.state.GetWord(t.address, balanceKey(to))
	tx.state.SetWord(t.address, balanceKey(to), new(uint256.Int).Add(bal, v))

	t.emitTransfer(tx, common.Address{}, to, v)
	return nil
}

// Burn destroys amount of from's tokens.
func (t *ERC20) Burn(tx *Tx, minter, from common.Address, amount *big.Int) error {
	if !t.minters[minter] {
		return ErrNotMinter
	}
	v, err := word(amount)
	if err != nil {
		return err
	}
	if err := t.debit(tx, from, v); err != nil {
		return err
	}

	supply := tx.state.GetWord(t.address, supplyKey)
	tx.state.SetWord(t.address, supplyKey, new(uint256.Int).Sub(supply, v))

	t.emitTransfer(tx, from, common.Address{}, v)
	return nil
}

func (t *ERC20) move(tx *Tx, from, to common.Address, amount *big.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	v, err := word(amount)
	if err != nil {
		return err
	}
	if err := t.debit(tx, from, v); err != nil {
		return err
	}

	received := v
	if t.cfg.TransferFeeBps > 0 {
		fee := new(uint256.Int).Mul(v, uint256.NewInt(t.cfg.TransferFeeBps))
		fee.Div(fee, uint256.NewInt(10_000))
		received = new(uint256.Int).Sub(v, fee)

		supply := tx.state.GetWord(t.address, supplyKey)
		tx.state.SetWord(t.address, supplyKey, new(uint256.Int).Sub(supply, fee))
	}

	bal := tx.state.GetWord(t.address, balanceKey(to))
	tx.state.SetWord(t.address, balanceKey(to), new(uint256.Int).Add(bal, received))

	t.emitTransfer(tx, from, to, received)
	return nil
}

func (t *ERC20) debit(tx *Tx, from common.Address, v *uint256.Int) error {
	key := balanceKey(from)
	bal := tx.state.GetWord(t.address, key)
	if bal.Lt(v) {
		return fmt.Errorf("%w: %s holds %s %s, needs %s",
			ErrInsufficientBalance, from.Hex(), bal.Dec(), t.cfg.Symbol, v.Dec())
	}
	tx.state.SetWord(t.address, key, new(uint256.Int).Sub(bal, v))
	return nil
}

func (t *ERC20) setAllowance(tx *Tx, owner, spender common.Address, v *uint256.Int) {
	tx.state.SetWord(t.address, allowanceKey(owner, spender), v)
	tx.Emit(t.address,
		[]common.Hash{approvalTopic, common.BytesToHash(owner.Bytes()), common.BytesToHash(spender.Bytes())},
		wordBytes(v))
}

func (t *ERC20) emitTransfer(tx *Tx, from, to common.Address, v *uint256.Int) {
	tx.Emit(t.address,
		[]common.Hash{transferTopic, common.BytesToHash(from.Bytes()), common.BytesToHash(to.Bytes())},
		wordBytes(v))
}

func (t *ERC20) bumpNonce(tx *Tx, holder common.Address) {
	key := nonceKey(holder)
	n := tx.state.GetWord(t.address, key)
	tx.state.SetWord(t.address, key, new(uint256.Int).AddUint64(n, 1))
}

// word converts a non-negative big integer to a 256-bit word.
func word(amount *big.Int) (*uint256.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrAmountOverflow
	}
	v, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrAmountOverflow
	}
	return v, nil
}

func wordBytes(v *uint256.Int) []byte {
	b := v.Bytes32()
	return b[:]
}

func isInfinite(v *uint256.Int) bool {
	return v.Eq(maxWord)
}

var maxWord = new(uint256.Int).SetAllOne()

// MaxUint256 returns 2^256-1, the allowance that never decreases.
func MaxUint256() *big.Int {
	return maxWord.ToBig()
}
