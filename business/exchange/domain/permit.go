package domain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/fd1az/bzz-exchange/internal/apperror"
)

// Dialect is an off-chain approval scheme.
type Dialect uint8

const (
	// DialectAllowed is (nonce, expiry, v, r, s) granting an unlimited
	// allowance; expiry zero never expires.
	DialectAllowed Dialect = iota + 1
	// DialectEIP2612 is (value, deadline, v, r, s) granting exactly value.
	DialectEIP2612
)

func (d Dialect) String() string {
	switch d {
	case DialectAllowed:
		return "allowed"
	case DialectEIP2612:
		return "eip2612"
	default:
		return fmt.Sprintf("Dialect(%d)", uint8(d))
	}
}

// DialectFor returns the dialect a coin accepts. USDT has none.
func DialectFor(coin Coin) (Dialect, error) {
	switch coin {
	case CoinDAI:
		return DialectAllowed, nil
	case CoinUSDC:
		return DialectEIP2612, nil
	default:
		return 0, apperror.New(apperror.CodeUnsupportedPermit, apperror.WithContext(coin.String()))
	}
}

// PermitSize is the encoded length of a permit segment.
const PermitSize = 5 * 32

var permitArgs = abi.Arguments{
	{Type: uint256Type},
	{Type: uint256Type},
	{Type: uint8Type},
	{Type: bytes32Type},
	{Type: bytes32Type},
}

// Permit is a decoded permit segment. Nonce is set for DialectAllowed and
// Value for DialectEIP2612; Deadline holds the expiry or the deadline.
type Permit struct {
	Dialect  Dialect
	Nonce    *big.Int
	Value    *big.Int
	Deadline *big.Int
	V        uint8
	R        [32]byte
	S        [32]byte
}

// DecodePermit decodes a segment in the given dialect. The dialect is always
// chosen by the caller from the input coin, never inferred from the bytes.
func DecodePermit(d Dialect, raw []byte) (Permit, error) {
	if d != DialectAllowed && d != DialectEIP2612 {
		return Permit{}, apperror.New(apperror.CodeUnsupportedPermit, apperror.WithContext(d.String()))
	}
	if len(raw) != PermitSize {
		return Permit{}, apperror.New(apperror.CodeInvalidPayload,
			apperror.WithContext(fmt.Sprintf("permit segment is %d bytes, want %d", len(raw), PermitSize)))
	}

	vals, err := permitArgs.Unpack(raw)
	if err != nil {
		return Permit{}, invalidPayload("permit", err)
	}

	p := Permit{
		Dialect:  d,
		Deadline: vals[1].(*big.Int),
		V:        vals[2].(uint8),
		R:        vals[3].([32]byte),
		S:        vals[4].([32]byte),
	}
	if d == DialectAllowed {
		p.Nonce = vals[0].(*big.Int)
	} else {
		p.Value = vals[0].(*big.Int)
	}
	return p, nil
}

// Encode returns the positional segment for p.
func (p Permit) Encode() ([]byte, error) {
	first := p.Value
	if p.Dialect == DialectAllowed {
		first = p.Nonce
	}
	if first == nil || p.Deadline == nil {
		return nil, apperror.New(apperror.CodeInvalidPayload, apperror.WithContext("incomplete permit"))
	}
	return permitArgs.Pack(first, p.Deadline, p.V, p.R, p.S)
}
