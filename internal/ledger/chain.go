package ledger

import (
	"context"
	"encoding/binary"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Receipt records the outcome of a committed transaction.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	From        common.Address
	Time        time.Time
	Logs        []*types.Log
}

// Chain executes transactions one at a time against a single State.
type Chain struct {
	mu      sync.Mutex
	chainID *big.Int
	state   *State
	block   uint64
	nonces  map[common.Address]uint64
	creates map[common.Address]uint64
	clock   func() time.Time
}

// Option configures a Chain.
type Option func(*Chain)

// WithClock overrides the block timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(c *Chain) {
		c.clock = clock
	}
}

// NewChain creates an empty chain.
func NewChain(chainID uint64, opts ...Option) *Chain {
	c := &Chain{
		chainID: new(big.Int).SetUint64(chainID),
		state:   NewState(),
		nonces:  make(map[common.Address]uint64),
		creates: make(map[common.Address]uint64),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChainID returns the chain id used in signature domains.
func (c *Chain) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// BlockNumber returns the number of the last committed block.
func (c *Chain) BlockNumber() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.block
}

// NewContractAddress derives the address of the next contract deployed by
// deployer, the same way CREATE does.
func (c *Chain) NewContractAddress(deployer common.Address) common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.creates[deployer]
	c.creates[deployer] = n + 1
	return crypto.CreateAddress(deployer, n)
}

// Execute runs fn as one transaction from sender. The transaction commits when
// fn returns nil; otherwise every state change it made is reverted and the
// error is returned unchanged. A panic in fn reverts before it propagates.
// A cancelled context never starts a transaction.
func (c *Chain) Execute(ctx context.Context, sender common.Address, fn func(tx *Tx) error) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	nonce := c.nonces[sender]
	tx := c.newTx(sender, nonce, c.block+1)
	snap := c.state.Snapshot()
	defer func() {
		if r := recover(); r != nil {
			c.state.RevertToSnapshot(snap)
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		c.state.RevertToSnapshot(snap)
		return nil, err
	}

	c.nonces[sender] = nonce + 1
	c.block++

	logs := c.state.Finalise()
	for _, l := range logs {
		l.TxHash = tx.hash
		l.BlockNumber = tx.block
	}

	return &Receipt{
		TxHash:      tx.hash,
		BlockNumber: tx.block,
		From:        sender,
		Time:        tx.time,
		Logs:        logs,
	}, nil
}

// View runs fn against the current state and discards all of its changes.
func (c *Chain) View(fn func(tx *Tx) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx := c.newTx(common.Address{}, 0, c.block)
	snap := c.state.Snapshot()
	defer c.state.RevertToSnapshot(snap)

	return fn(tx)
}

func (c *Chain) newTx(sender common.Address, nonce, block uint64) *Tx {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nonce)

	return &Tx{
		chain:  c,
		state:  c.state,
		origin: sender,
		hash:   crypto.Keccak256Hash(c.chainID.Bytes(), sender.Bytes(), buf[:]),
		block:  block,
		time:   c.clock(),
	}
}

// Tx is the handle contracts use to read and write state within a transaction.
type Tx struct {
	chain  *Chain
	state  *State
	origin common.Address
	hash   common.Hash
	block  uint64
	time   time.Time
}

// State returns the transaction's storage view.
func (tx *Tx) State() *State { return tx.state }

// Origin returns the account that submitted the transaction.
func (tx *Tx) Origin() common.Address { return tx.origin }

// Hash returns the transaction hash.
func (tx *Tx) Hash() common.Hash { return tx.hash }

// BlockNumber returns the block the transaction executes in.
func (tx *Tx) BlockNumber() uint64 { return tx.block }

// Time returns the block timestamp.
func (tx *Tx) Time() time.Time { return tx.time }

// ChainID returns the chain id.
func (tx *Tx) ChainID() *big.Int { return tx.chain.ChainID() }

// Emit appends a log from the given contract.
func (tx *Tx) Emit(addr common.Address, topics []common.Hash, data []byte) {
	tx.state.AddLog(&types.Log{
		Address:     addr,
		Topics:      topics,
		Data:        data,
		BlockNumber: tx.block,
		TxHash:      tx.hash,
	})
}
