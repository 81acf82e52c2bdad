// Package omnibridge simulates the home side of a token bridge: it locks
// tokens and emits one message per transfer for the remote side to execute.
package omnibridge

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/zeebo/blake3"

	"github.com/fd1az/bzz-exchange/business/exchange/app"
	"github.com/fd1az/bzz-exchange/internal/ledger"
)

var (
	ErrTokenNotSupported = errors.New("omnibridge: token not supported")
	ErrZeroReceiver      = errors.New("omnibridge: zero receiver")
	ErrZeroValue         = errors.New("omnibridge: zero value")
)

// TokensBridgingInitiated is emitted for every relay. Token, sender and
// message id are indexed; receiver, value and data are ABI-encoded.
var TokensBridgingInitiated = crypto.Keccak256Hash([]byte("TokensBridgingInitiated(address,address,uint256,bytes32)"))

var (
	nonceSlot = ledger.StorageKey("omnibridge.nonce")

	messageArgs = func() abi.Arguments {
		addressType, _ := abi.NewType("address", "", nil)
		uint256Type, _ := abi.NewType("uint256", "", nil)
		bytesType, _ := abi.NewType("bytes", "", nil)
		return abi.Arguments{{Type: addressType}, {Type: uint256Type}, {Type: bytesType}}
	}()
)

var _ app.Relay = (*Bridge)(nil)

// Message is a relayed transfer as the remote side sees it.
type Message struct {
	ID       common.Hash
	Token    common.Address
	Sender   common.Address
	Receiver common.Address
	Value    *big.Int
	// Data is forwarded to Receiver after crediting it; empty for plain relays.
	Data []byte
}

// Bridge locks the tokens it was configured with.
type Bridge struct {
	address common.Address
	tokens  map[common.Address]*ledger.ERC20
}

func New(addr common.Address, tokens ...*ledger.ERC20) *Bridge {
	b := &Bridge{address: addr, tokens: make(map[common.Address]*ledger.ERC20, len(tokens))}
	for _, t := range tokens {
		b.tokens[t.Address()] = t
	}
	return b
}

func (b *Bridge) Address() common.Address { return b.address }

// Locked is the bridge's balance of token.
func (b *Bridge) Locked(tx *ledger.Tx, token common.Address) *big.Int {
	t, ok := b.tokens[token]
	if !ok {
		return new(big.Int)
	}
	return t.BalanceOf(tx, b.address)
}

func (b *Bridge) RelayTokens(tx *ledger.Tx, caller, token, receiver common.Address, value *big.Int) error {
	return b.relay(tx, caller, token, receiver, value, nil)
}

func (b *Bridge) RelayTokensAndCall(tx *ledger.Tx, caller, token, receiver common.Address, value *big.Int, data []byte) error {
	return b.relay(tx, caller, token, receiver, value, data)
}

func (b *Bridge) relay(tx *ledger.Tx, caller, token, receiver common.Address, value *big.Int, data []byte) error {
	t, ok := b.tokens[token]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTokenNotSupported, token.Hex())
	}
	if receiver == (common.Address{}) {
		return ErrZeroReceiver
	}
	if value == nil || value.Sign() <= 0 {
		return ErrZeroValue
	}

	before := t.BalanceOf(tx, b.address)
	if err := t.TransferFrom(tx, b.address, caller, b.address, value); err != nil {
		return err
	}
	locked := new(big.Int).Sub(t.BalanceOf(tx, b.address), before)

	if data == nil {
		data = []byte{}
	}
	packed, err := messageArgs.Pack(receiver, locked, data)
	if err != nil {
		return fmt.Errorf("omnibridge: encode message: %w", err)
	}

	id := b.messageID(tx, token, caller, receiver, locked)
	tx.Emit(b.address, []common.Hash{
		TokensBridgingInitiated,
		common.BytesToHash(token.Bytes()),
		common.BytesToHash(caller.Bytes()),
		id,
	}, packed)
	return nil
}

// messageID is BLAKE3(chainID || nonce || token || sender || receiver || value)
// and bumps the bridge nonce.
func (b *Bridge) messageID(tx *ledger.Tx, token, sender, receiver common.Address, value *big.Int) common.Hash {
	st := tx.State()
	nonce := st.GetBig(b.address, nonceSlot)

	h := blake3.New()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], tx.ChainID().Uint64())
	h.Write(buf[:])
	h.Write(common.LeftPadBytes(nonce.Bytes(), 32))
	h.Write(token[:])
	h.Write(sender[:])
	h.Write(receiver[:])
	h.Write(common.LeftPadBytes(value.Bytes(), 32))

	var id common.Hash
	copy(id[:], h.Sum(nil))

	var next common.Hash
	nonce.Add(nonce, big.NewInt(1)).FillBytes(next[:])
	st.SetState(b.address, nonceSlot, next)
	return id
}

// ParseMessages extracts the bridge's messages from logs, in log order.
func ParseMessages(bridge common.Address, logs []*types.Log) ([]Message, error) {
	var out []Message
	for _, l := range logs {
		if l.Address != bridge || len(l.Topics) != 4 || l.Topics[0] != TokensBridgingInitiated {
			continue
		}
		vals, err := messageArgs.Unpack(l.Data)
		if err != nil {
			return nil, fmt.Errorf("omnibridge: decode message %s: %w", l.Topics[3].Hex(), err)
		}
		out = append(out, Message{
			ID:       l.Topics[3],
			Token:    common.BytesToAddress(l.Topics[1].Bytes()),
			Sender:   common.BytesToAddress(l.Topics[2].Bytes()),
			Receiver: vals[0].(common.Address),
			Value:    vals[1].(*big.Int),
			Data:     vals[2].([]byte),
		})
	}
	return out, nil
}
