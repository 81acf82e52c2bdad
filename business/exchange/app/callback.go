package app

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/bzz-exchange/business/exchange/domain"
	"github.com/fd1az/bzz-exchange/internal/apperror"
	"github.com/fd1az/bzz-exchange/internal/ledger"
)

var payerArgs = func() abi.Arguments {
	addressType, _ := abi.NewType("address", "", nil)
	return abi.Arguments{{Type: addressType}}
}()

func encodePayer(payer common.Address) []byte {
	b, _ := payerArgs.Pack(payer)
	return b
}

func decodePayer(data []byte) (common.Address, error) {
	vals, err := payerArgs.Unpack(data)
	if err != nil {
		return common.Address{}, apperror.New(apperror.CodeInvalidPayload,
			apperror.WithCause(err), apperror.WithContext("swap callback data"))
	}
	return vals[0].(common.Address), nil
}

// UniswapV3SwapCallback pays a concentrated pool mid-swap. Only the
// configured pools may call it. The owed token is the one with a positive
// delta: DAI comes from the exchange's own balance, an alternate coin is
// pulled from the payer carried in data.
func (r *Router) UniswapV3SwapCallback(tx *ledger.Tx, caller common.Address, amount0Delta, amount1Delta *big.Int, data []byte) error {
	pool, ok := r.poolAt(caller)
	if !ok {
		return apperror.New(apperror.CodeUnauthorizedCallback, apperror.WithContext(caller.Hex()))
	}

	payer, err := decodePayer(data)
	if err != nil {
		return err
	}

	var token common.Address
	var owed *big.Int
	switch {
	case amount0Delta != nil && amount0Delta.Sign() > 0:
		token, owed = pool.Token0(), amount0Delta
	case amount1Delta != nil && amount1Delta.Sign() > 0:
		token, owed = pool.Token1(), amount1Delta
	default:
		return apperror.New(apperror.CodeInvalidState, apperror.WithContext("swap callback with nothing owed"))
	}

	dai, err := r.token(domain.CoinDAI)
	if err != nil {
		return err
	}
	if token == dai.Address() {
		if err := dai.Transfer(tx, r.exchange, caller, owed); err != nil {
			return apperror.Wrap(err, apperror.CodeTransferFailed, "callback pay DAI")
		}
		return nil
	}

	for _, c := range domain.Coins {
		tok, ok := r.tokens[c]
		if !ok || tok.Address() != token {
			continue
		}
		if err := tok.TransferFrom(tx, r.exchange, payer, caller, owed); err != nil {
			return apperror.Wrap(err, apperror.CodeTransferFailed, "callback pull "+tok.Symbol())
		}
		return nil
	}
	return apperror.New(apperror.CodeConfigurationError, apperror.WithContext("pool owes unknown token "+token.Hex()))
}

func (r *Router) poolAt(addr common.Address) (ConcentratedPool, bool) {
	for _, p := range r.venues.Uniswap {
		if p.Address() == addr {
			return p, true
		}
	}
	return nil, false
}
