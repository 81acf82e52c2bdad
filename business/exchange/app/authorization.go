package app

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/bzz-exchange/business/exchange/domain"
	"github.com/fd1az/bzz-exchange/internal/apperror"
	"github.com/fd1az/bzz-exchange/internal/ledger"
)

// Authorizer submits decoded permits to the input token so that the
// exchange can pull funds without a prior approval.
type Authorizer struct {
	spender common.Address
	tokens  map[domain.Coin]Token
}

func NewAuthorizer(spender common.Address, tokens map[domain.Coin]Token) *Authorizer {
	return &Authorizer{spender: spender, tokens: tokens}
}

// Decode picks the dialect from coin and decodes seg. It never touches the
// ledger, so payload errors surface before funds move.
func (a *Authorizer) Decode(coin domain.Coin, seg []byte) (domain.Permit, error) {
	d, err := domain.DialectFor(coin)
	if err != nil {
		return domain.Permit{}, err
	}
	return domain.DecodePermit(d, seg)
}

// Apply submits p on behalf of owner. Token errors are returned as is.
func (a *Authorizer) Apply(tx *ledger.Tx, coin domain.Coin, owner common.Address, p domain.Permit) error {
	tok, ok := a.tokens[coin]
	if !ok {
		return apperror.New(apperror.CodeUnsupportedPermit, apperror.WithContext(coin.String()))
	}

	switch p.Dialect {
	case domain.DialectAllowed:
		pt, ok := tok.(AllowedPermitter)
		if !ok {
			return apperror.New(apperror.CodeUnsupportedPermit,
				apperror.WithContext(coin.String()+" does not accept "+p.Dialect.String()))
		}
		return pt.PermitAllowed(tx, owner, a.spender, p.Nonce, p.Deadline, true, p.V, p.R, p.S)
	case domain.DialectEIP2612:
		pt, ok := tok.(ValuePermitter)
		if !ok {
			return apperror.New(apperror.CodeUnsupportedPermit,
				apperror.WithContext(coin.String()+" does not accept "+p.Dialect.String()))
		}
		return pt.Permit(tx, owner, a.spender, p.Value, p.Deadline, p.V, p.R, p.S)
	default:
		return apperror.New(apperror.CodeUnsupportedPermit, apperror.WithContext(p.Dialect.String()))
	}
}
