package domain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/bzz-exchange/internal/apperror"
)

// SettlementKind says where purchased BZZ ends up.
type SettlementKind uint8

const (
	// SettleLocal mints straight to the buyer.
	SettleLocal SettlementKind = iota
	// SettleRelay relays to a remote address with no auxiliary data.
	SettleRelay
	// SettleRelayAndCall relays and asks the remote side to execute Data.
	SettleRelayAndCall
)

func (k SettlementKind) String() string {
	switch k {
	case SettleLocal:
		return "local"
	case SettleRelay:
		return "relay"
	case SettleRelayAndCall:
		return "relay-and-call"
	default:
		return fmt.Sprintf("SettlementKind(%d)", uint8(k))
	}
}

// Settlement is the decoded relay instruction.
type Settlement struct {
	Kind      SettlementKind
	Recipient common.Address
	Data      []byte
}

// Relayed reports whether the tokens leave this ledger.
func (s Settlement) Relayed() bool {
	return s.Kind != SettleLocal
}

var (
	addressArgs         = abi.Arguments{{Type: addressType}}
	addressAndBytesArgs = abi.Arguments{{Type: addressType}, {Type: bytesType}}
)

// ParseSettlement decides the settlement from the relay segment length:
// empty is local, one word is abi.encode(address), anything longer is
// abi.encode(address, bytes). Lengths 1-31, a dirty address word, malformed
// encoding or a zero recipient are rejected. Auxiliary data is opaque here.
func ParseSettlement(seg []byte) (Settlement, error) {
	switch {
	case len(seg) == 0:
		return Settlement{Kind: SettleLocal}, nil

	case len(seg) < 32:
		return Settlement{}, apperror.New(apperror.CodeInvalidPayload,
			apperror.WithContext(fmt.Sprintf("relay segment of %d bytes", len(seg))))

	case len(seg) == 32:
		to, err := decodeAddressWord(seg)
		if err != nil {
			return Settlement{}, err
		}
		return Settlement{Kind: SettleRelay, Recipient: to}, nil

	default:
		if _, err := decodeAddressWord(seg[:32]); err != nil {
			return Settlement{}, err
		}
		vals, err := addressAndBytesArgs.Unpack(seg)
		if err != nil {
			return Settlement{}, invalidPayload("relay-and-call segment", err)
		}
		return Settlement{
			Kind:      SettleRelayAndCall,
			Recipient: vals[0].(common.Address),
			Data:      vals[1].([]byte),
		}, nil
	}
}

func decodeAddressWord(w []byte) (common.Address, error) {
	for _, b := range w[:12] {
		if b != 0 {
			return common.Address{}, apperror.New(apperror.CodeInvalidPayload,
				apperror.WithContext("non-canonical address encoding"))
		}
	}
	to := common.BytesToAddress(w[12:32])
	if to == (common.Address{}) {
		return common.Address{}, apperror.New(apperror.CodeInvalidPayload,
			apperror.WithContext("zero relay recipient"))
	}
	return to, nil
}

// EncodeRelay builds a plain relay segment.
func EncodeRelay(to common.Address) []byte {
	b, _ := addressArgs.Pack(to)
	return b
}

// EncodeRelayAndCall builds a relay segment carrying auxiliary data.
func EncodeRelayAndCall(to common.Address, data []byte) ([]byte, error) {
	return addressAndBytesArgs.Pack(to, data)
}

var topUpArgs = abi.Arguments{{Type: bytes32Type}}

// EncodeTopUp builds the auxiliary data asking the remote postage contract
// to top up batchID with the relayed tokens.
func EncodeTopUp(batchID common.Hash) []byte {
	b, _ := topUpArgs.Pack([32]byte(batchID))
	return b
}

// DecodeTopUp reverses EncodeTopUp.
func DecodeTopUp(data []byte) (common.Hash, error) {
	vals, err := topUpArgs.Unpack(data)
	if err != nil {
		return common.Hash{}, invalidPayload("top-up", err)
	}
	return common.Hash(vals[0].([32]byte)), nil
}
