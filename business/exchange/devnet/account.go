package devnet

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/fd1az/bzz-exchange/business/exchange/domain"
	"github.com/fd1az/bzz-exchange/internal/ledger"
)

// Account is a key-holding account on the devnet.
type Account struct {
	Key     *ecdsa.PrivateKey
	Address common.Address
}

// NewAccount generates a fresh key.
func NewAccount() (Account, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return Account{}, err
	}
	return Account{Key: key, Address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// SignPermit signs a permit segment letting the exchange pull acct's coin.
// DAI grants an unlimited allowance and ignores value; USDC grants exactly
// value. deadline is the DAI expiry (zero never expires) or the USDC
// deadline. The current nonce is read from the chain.
func (env *Env) SignPermit(acct Account, coin domain.Coin, value, deadline *big.Int) ([]byte, error) {
	dialect, err := domain.DialectFor(coin)
	if err != nil {
		return nil, err
	}
	tok := env.Token(coin)
	spender := env.Exchange.Address()

	var nonce *big.Int
	_ = env.Chain.View(func(tx *ledger.Tx) error {
		nonce = tok.Nonces(tx, acct.Address)
		return nil
	})

	p := domain.Permit{Dialect: dialect, Deadline: deadline}
	var digest common.Hash
	if dialect == domain.DialectAllowed {
		p.Nonce = nonce
		digest = tok.PermitAllowedDigest(acct.Address, spender, nonce, deadline, true)
	} else {
		p.Value = value
		digest = tok.PermitDigest(acct.Address, spender, value, nonce, deadline)
	}

	if p.V, p.R, p.S, err = ledger.SignDigest(acct.Key, digest); err != nil {
		return nil, err
	}
	return p.Encode()
}
