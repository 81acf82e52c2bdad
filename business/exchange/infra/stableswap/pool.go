// Package stableswap simulates a three-coin StableSwap pool (DAI, USDC, USDT)
// using the amplified invariant, rate multipliers and a proportional fee.
package stableswap

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/fd1az/bzz-exchange/business/exchange/app"
	"github.com/fd1az/bzz-exchange/internal/ledger"
)

const (
	nCoins = 3

	// FeeDenominator scales Fee: 4_000_000 is 0.04%.
	FeeDenominator = 10_000_000_000

	maxIterations = 255
)

var (
	ErrInvalidIndex       = errors.New("stableswap: invalid coin index")
	ErrSameCoin           = errors.New("stableswap: i == j")
	ErrInsufficientOutput = errors.New("stableswap: exchange resulted in fewer coins than expected")
	ErrEmptyPool          = errors.New("stableswap: pool has no liquidity")
	ErrNoConvergence      = errors.New("stableswap: invariant did not converge")
)

var (
	precision      = big.NewInt(1_000_000_000_000_000_000)
	feeDenominator = big.NewInt(FeeDenominator)
	tokenExchange  = crypto.Keccak256Hash([]byte("TokenExchange(address,int128,uint256,int128,uint256)"))
	addLiquidity   = crypto.Keccak256Hash([]byte("AddLiquidity(address,uint256[3])"))
)

var _ app.StableSwapPool = (*Pool)(nil)

// Config parameterises the pool.
type Config struct {
	// A is the amplification coefficient.
	A uint64
	// Fee is charged on the output, in FeeDenominator units.
	Fee uint64
}

// Pool keeps its coin balances in ledger storage.
type Pool struct {
	address common.Address
	coins   [nCoins]*ledger.ERC20
	rates   [nCoins]*big.Int
	amp     *big.Int
	fee     *big.Int
}

// New deploys a pool for coins, which must be in DAI, USDC, USDT order.
func New(addr common.Address, coins [nCoins]*ledger.ERC20, cfg Config) (*Pool, error) {
	if cfg.A == 0 {
		return nil, errors.New("stableswap: amplification must be positive")
	}
	if cfg.Fee >= FeeDenominator {
		return nil, errors.New("stableswap: fee must be below 100%")
	}

	p := &Pool{
		address: addr,
		coins:   coins,
		amp:     new(big.Int).SetUint64(cfg.A),
		fee:     new(big.Int).SetUint64(cfg.Fee),
	}
	for i, c := range coins {
		// rate brings every coin to 18 decimals, times 1e18
		p.rates[i] = new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(36-int(c.Decimals()))), nil)
	}
	return p, nil
}

func (p *Pool) Address() common.Address { return p.address }

func (p *Pool) Coins(i int) (common.Address, error) {
	if i < 0 || i >= nCoins {
		return common.Address{}, ErrInvalidIndex
	}
	return p.coins[i].Address(), nil
}

func balanceSlot(i int) common.Hash {
	return ledger.StorageKey("stableswap.balance", []byte{byte(i)})
}

// Balances returns the pool's accounted balances.
func (p *Pool) Balances(tx *ledger.Tx) [nCoins]*big.Int {
	var out [nCoins]*big.Int
	for i := range out {
		out[i] = tx.State().GetBig(p.address, balanceSlot(i))
	}
	return out
}

func (p *Pool) setBalance(tx *ledger.Tx, i int, v *big.Int) {
	var h common.Hash
	v.FillBytes(h[:])
	tx.State().SetState(p.address, balanceSlot(i), h)
}

// AddLiquidity deposits amounts from provider. LP shares are not modelled.
func (p *Pool) AddLiquidity(tx *ledger.Tx, provider common.Address, amounts [nCoins]*big.Int) error {
	bals := p.Balances(tx)
	data := make([]byte, 0, 32*nCoins)
	for i, amt := range amounts {
		received, err := p.pull(tx, i, provider, amt)
		if err != nil {
			return err
		}
		p.setBalance(tx, i, new(big.Int).Add(bals[i], received))
		data = append(data, common.LeftPadBytes(received.Bytes(), 32)...)
	}
	tx.Emit(p.address, []common.Hash{addLiquidity, common.BytesToHash(provider.Bytes())}, data)
	return nil
}

func (p *Pool) xp(bals [nCoins]*big.Int) [nCoins]*big.Int {
	var out [nCoins]*big.Int
	for i := range bals {
		out[i] = new(big.Int).Mul(bals[i], p.rates[i])
		out[i].Quo(out[i], precision)
	}
	return out
}

// getD solves the invariant for D by Newton's method.
func (p *Pool) getD(xp [nCoins]*big.Int) (*big.Int, error) {
	n := big.NewInt(nCoins)
	s := new(big.Int)
	for _, x := range xp {
		s.Add(s, x)
	}
	if s.Sign() == 0 {
		return s, nil
	}
	for _, x := range xp {
		if x.Sign() == 0 {
			return nil, ErrEmptyPool
		}
	}

	ann := new(big.Int).Mul(p.amp, n)
	d := new(big.Int).Set(s)
	for range maxIterations {
		dp := new(big.Int).Set(d)
		for _, x := range xp {
			dp.Mul(dp, d)
			dp.Quo(dp, new(big.Int).Mul(x, n))
		}
		prev := new(big.Int).Set(d)

		num := new(big.Int).Mul(ann, s)
		num.Add(num, new(big.Int).Mul(dp, n))
		num.Mul(num, d)

		den := new(big.Int).Mul(new(big.Int).Sub(ann, big.NewInt(1)), d)
		den.Add(den, new(big.Int).Mul(big.NewInt(nCoins+1), dp))

		d = num.Quo(num, den)
		if withinOne(d, prev) {
			return d, nil
		}
	}
	return nil, ErrNoConvergence
}

// getY returns the new balance of coin j when coin i is set to x.
func (p *Pool) getY(i, j int, x *big.Int, xp [nCoins]*big.Int) (*big.Int, error) {
	d, err := p.getD(xp)
	if err != nil {
		return nil, err
	}
	n := big.NewInt(nCoins)
	ann := new(big.Int).Mul(p.amp, n)

	c := new(big.Int).Set(d)
	s := new(big.Int)
	for k := range nCoins {
		var xk *big.Int
		switch k {
		case i:
			xk = x
		case j:
			continue
		default:
			xk = xp[k]
		}
		s.Add(s, xk)
		c.Mul(c, d)
		c.Quo(c, new(big.Int).Mul(xk, n))
	}
	c.Mul(c, d)
	c.Quo(c, new(big.Int).Mul(ann, n))
	b := new(big.Int).Add(s, new(big.Int).Quo(d, ann))

	y := new(big.Int).Set(d)
	for range maxIterations {
		prev := new(big.Int).Set(y)
		num := new(big.Int).Mul(y, y)
		num.Add(num, c)
		den := new(big.Int).Mul(y, big.NewInt(2))
		den.Add(den, b)
		den.Sub(den, d)
		y = num.Quo(num, den)
		if withinOne(y, prev) {
			return y, nil
		}
	}
	return nil, ErrNoConvergence
}

func withinOne(a, b *big.Int) bool {
	diff := new(big.Int).Sub(a, b)
	return diff.CmpAbs(big.NewInt(1)) <= 0
}

func (p *Pool) checkIndices(i, j int) error {
	if i < 0 || i >= nCoins || j < 0 || j >= nCoins {
		return ErrInvalidIndex
	}
	if i == j {
		return ErrSameCoin
	}
	return nil
}

// dy computes the output for dx against the given balances.
func (p *Pool) dy(i, j int, dx *big.Int, bals [nCoins]*big.Int) (*big.Int, error) {
	xp := p.xp(bals)
	x := new(big.Int).Mul(dx, p.rates[i])
	x.Quo(x, precision)
	x.Add(x, xp[i])

	y, err := p.getY(i, j, x, xp)
	if err != nil {
		return nil, err
	}

	out := new(big.Int).Sub(xp[j], y)
	out.Sub(out, big.NewInt(1))
	if out.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	fee := new(big.Int).Mul(out, p.fee)
	fee.Quo(fee, feeDenominator)
	out.Sub(out, fee)
	out.Mul(out, precision)
	return out.Quo(out, p.rates[j]), nil
}

// GetDy quotes the output of exchanging dx of coin i for coin j.
func (p *Pool) GetDy(tx *ledger.Tx, i, j int, dx *big.Int) (*big.Int, error) {
	if err := p.checkIndices(i, j); err != nil {
		return nil, err
	}
	return p.dy(i, j, dx, p.Balances(tx))
}

// GetDx finds the smallest dx whose GetDy is at least dy, starting from the
// par estimate and correcting by the shortfall.
func (p *Pool) GetDx(tx *ledger.Tx, i, j int, dy *big.Int) (*big.Int, error) {
	if err := p.checkIndices(i, j); err != nil {
		return nil, err
	}
	bals := p.Balances(tx)
	if dy.Cmp(bals[j]) >= 0 {
		return nil, fmt.Errorf("%w: want %s of coin %d, pool holds %s", ErrInsufficientOutput, dy, j, bals[j])
	}

	// dx ≈ dy at par, rounded up
	dx := ceilDiv(new(big.Int).Mul(dy, p.rates[j]), p.rates[i])
	for range maxIterations {
		got, err := p.dy(i, j, dx, bals)
		if err != nil {
			return nil, err
		}
		if got.Cmp(dy) >= 0 {
			return p.shrink(i, j, dx, dy, bals)
		}
		short := ceilDiv(new(big.Int).Mul(new(big.Int).Sub(dy, got), p.rates[j]), p.rates[i])
		dx.Add(dx, short)
	}
	return nil, ErrNoConvergence
}

// shrink walks dx down while the output still covers dy.
func (p *Pool) shrink(i, j int, dx, dy *big.Int, bals [nCoins]*big.Int) (*big.Int, error) {
	lo, hi := big.NewInt(0), new(big.Int).Set(dx)
	for new(big.Int).Sub(hi, lo).Cmp(big.NewInt(1)) > 0 {
		mid := new(big.Int).Add(lo, hi)
		mid.Rsh(mid, 1)
		got, err := p.dy(i, j, mid, bals)
		if err != nil {
			return nil, err
		}
		if got.Cmp(dy) >= 0 {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi, nil
}

// Exchange swaps dx of coin i from caller for at least minDy of coin j. The
// input is measured by the pool's balance change, so fee-on-transfer coins
// are credited with what actually arrived.
func (p *Pool) Exchange(tx *ledger.Tx, caller common.Address, i, j int, dx, minDy *big.Int) (*big.Int, error) {
	if err := p.checkIndices(i, j); err != nil {
		return nil, err
	}
	bals := p.Balances(tx)

	received, err := p.pull(tx, i, caller, dx)
	if err != nil {
		return nil, err
	}

	out, err := p.dy(i, j, received, bals)
	if err != nil {
		return nil, err
	}
	if out.Cmp(minDy) < 0 {
		return nil, fmt.Errorf("%w: %s < %s", ErrInsufficientOutput, out, minDy)
	}
	if out.Cmp(bals[j]) >= 0 {
		return nil, fmt.Errorf("%w: pool holds %s", ErrInsufficientOutput, bals[j])
	}

	p.setBalance(tx, i, new(big.Int).Add(bals[i], received))
	p.setBalance(tx, j, new(big.Int).Sub(bals[j], out))

	if err := p.coins[j].Transfer(tx, p.address, caller, out); err != nil {
		return nil, err
	}

	data := make([]byte, 0, 128)
	data = append(data, common.LeftPadBytes(big.NewInt(int64(i)).Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(received.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(big.NewInt(int64(j)).Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(out.Bytes(), 32)...)
	tx.Emit(p.address, []common.Hash{tokenExchange, common.BytesToHash(caller.Bytes())}, data)

	return out, nil
}

func (p *Pool) pull(tx *ledger.Tx, i int, from common.Address, amount *big.Int) (*big.Int, error) {
	coin := p.coins[i]
	before := coin.BalanceOf(tx, p.address)
	if err := coin.TransferFrom(tx, p.address, from, p.address, amount); err != nil {
		return nil, err
	}
	return new(big.Int).Sub(coin.BalanceOf(tx, p.address), before), nil
}

func ceilDiv(a, b *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(a, b, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}
