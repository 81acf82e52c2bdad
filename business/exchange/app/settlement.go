package app

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/bzz-exchange/business/exchange/domain"
	"github.com/fd1az/bzz-exchange/internal/apperror"
	"github.com/fd1az/bzz-exchange/internal/ledger"
)

// settler hands freshly minted BZZ held by the exchange to the relay.
type settler struct {
	exchange common.Address
	bzz      Token
	relay    Relay
}

// settle relays amount as s directs. Local settlements need nothing: the
// curve already minted to the caller.
func (s settler) settle(tx *ledger.Tx, st domain.Settlement, amount *big.Int) error {
	switch st.Kind {
	case domain.SettleLocal:
		return nil
	case domain.SettleRelay, domain.SettleRelayAndCall:
	default:
		return apperror.New(apperror.CodeInvalidPayload, apperror.WithContext("settlement "+st.Kind.String()))
	}
	if s.relay == nil {
		return apperror.New(apperror.CodeConfigurationError, apperror.WithContext("no relay configured"))
	}

	var err error
	if st.Kind == domain.SettleRelay {
		err = s.relay.RelayTokens(tx, s.exchange, s.bzz.Address(), st.Recipient, amount)
	} else {
		err = s.relay.RelayTokensAndCall(tx, s.exchange, s.bzz.Address(), st.Recipient, amount, st.Data)
	}
	if err != nil {
		return apperror.Wrap(err, apperror.CodeTransferFailed, "relay "+st.Kind.String())
	}
	return nil
}
