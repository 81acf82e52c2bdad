package domain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/fd1az/bzz-exchange/internal/apperror"
)

// Options is the buy request bitmask.
type Options uint8

const (
	// OptPermit marks a permit segment in the payload.
	OptPermit Options = 1 << 0
	// OptRelay marks a relay segment in the payload.
	OptRelay Options = 1 << 1

	knownOptions = OptPermit | OptRelay
)

// Has reports whether every bit in o2 is set.
func (o Options) Has(o2 Options) bool {
	return o&o2 == o2
}

// Validate rejects unknown bits.
func (o Options) Validate() error {
	if o&^knownOptions != 0 {
		return apperror.New(apperror.CodeInvalidPayload,
			apperror.WithContext(fmt.Sprintf("unknown option bits %#02x", uint8(o&^knownOptions))))
	}
	return nil
}

var (
	bytesType, _   = abi.NewType("bytes", "", nil)
	addressType, _ = abi.NewType("address", "", nil)
	uint256Type, _ = abi.NewType("uint256", "", nil)
	uint8Type, _   = abi.NewType("uint8", "", nil)
	bytes32Type, _ = abi.NewType("bytes32", "", nil)

	segmentsArgs = abi.Arguments{{Type: bytesType}, {Type: bytesType}}
)

// SplitPayload separates the permit and relay segments according to opts.
// With both bits set the payload is abi.encode(bytes permit, bytes relay);
// with one bit set the whole payload is that segment; with none it must be
// empty.
func SplitPayload(opts Options, payload []byte) (permit, relay []byte, err error) {
	if err := opts.Validate(); err != nil {
		return nil, nil, err
	}

	switch {
	case opts.Has(OptPermit | OptRelay):
		vals, err := segmentsArgs.Unpack(payload)
		if err != nil {
			return nil, nil, invalidPayload("segments", err)
		}
		permit, relay = vals[0].([]byte), vals[1].([]byte)
	case opts.Has(OptPermit):
		permit = payload
	case opts.Has(OptRelay):
		relay = payload
	default:
		if len(payload) != 0 {
			return nil, nil, apperror.New(apperror.CodeInvalidPayload,
				apperror.WithContext("payload given without option bits"))
		}
	}
	return permit, relay, nil
}

// JoinPayload builds a payload for opts from its segments.
func JoinPayload(opts Options, permit, relay []byte) ([]byte, error) {
	switch {
	case opts.Has(OptPermit | OptRelay):
		return segmentsArgs.Pack(permit, relay)
	case opts.Has(OptPermit):
		return permit, nil
	case opts.Has(OptRelay):
		return relay, nil
	default:
		return nil, nil
	}
}

func invalidPayload(what string, cause error) error {
	return apperror.New(apperror.CodeInvalidPayload,
		apperror.WithContext(what),
		apperror.WithCause(cause))
}
