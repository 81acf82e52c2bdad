package ledger

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// PermitAllowedDigest is the EIP-712 digest a holder signs for PermitAllowed.
func (t *ERC20) PermitAllowedDigest(holder, spender common.Address, nonce, expiry *big.Int, allowed bool) common.Hash {
	flag := big.NewInt(0)
	if allowed {
		flag.SetInt64(1)
	}
	structHash := crypto.Keccak256Hash(
		permitAllowedTypeHash.Bytes(),
		common.LeftPadBytes(holder.Bytes(), 32),
		common.LeftPadBytes(spender.Bytes(), 32),
		common.LeftPadBytes(nonce.Bytes(), 32),
		common.LeftPadBytes(expiry.Bytes(), 32),
		common.LeftPadBytes(flag.Bytes(), 32),
	)
	return typedDataHash(t.domain, structHash)
}

// PermitDigest is the EIP-712 digest an owner signs for an EIP-2612 Permit.
func (t *ERC20) PermitDigest(owner, spender common.Address, value, nonce, deadline *big.Int) common.Hash {
	structHash := crypto.Keccak256Hash(
		permitTypeHash.Bytes(),
		common.LeftPadBytes(owner.Bytes(), 32),
		common.LeftPadBytes(spender.Bytes(), 32),
		common.LeftPadBytes(value.Bytes(), 32),
		common.LeftPadBytes(nonce.Bytes(), 32),
		common.LeftPadBytes(deadline.Bytes(), 32),
	)
	return typedDataHash(t.domain, structHash)
}

// PermitAllowed grants (allowed) or revokes spender's unlimited allowance over
// holder's balance. An expiry of zero never expires. The signature is checked
// before expiry and nonce.
func (t *ERC20) PermitAllowed(tx *Tx, holder, spender common.Address, nonce, expiry *big.Int, allowed bool, v uint8, r, s [32]byte) error {
	if t.cfg.Permit != PermitAllowed {
		return ErrPermitUnsupported
	}
	if holder == (common.Address{}) {
		return ErrZeroAddress
	}
	if _, err := word(nonce); err != nil {
		return err
	}
	if _, err := word(expiry); err != nil {
		return err
	}

	digest := t.PermitAllowedDigest(holder, spender, nonce, expiry, allowed)
	if signer, err := recoverSigner(digest, v, r, s); err != nil || signer != holder {
		return ErrInvalidSignature
	}

	if expiry.Sign() != 0 && big.NewInt(tx.Time().Unix()).Cmp(expiry) > 0 {
		return ErrPermitExpired
	}
	if nonce.Cmp(t.Nonces(tx, holder)) != 0 {
		return ErrInvalidNonce
	}
	t.bumpNonce(tx, holder)

	amount := big.NewInt(0)
	if allowed {
		amount = MaxUint256()
	}
	return t.Approve(tx, holder, spender, amount)
}

// Permit sets spender's allowance over owner's balance to exactly value.
// The deadline is checked before the signature.
func (t *ERC20) Permit(tx *Tx, owner, spender common.Address, value, deadline *big.Int, v uint8, r, s [32]byte) error {
	if t.cfg.Permit != PermitEIP2612 {
		return ErrPermitUnsupported
	}
	if _, err := word(value); err != nil {
		return err
	}
	if _, err := word(deadline); err != nil {
		return err
	}

	if big.NewInt(tx.Time().Unix()).Cmp(deadline) > 0 {
		return ErrPermitExpired
	}

	digest := t.PermitDigest(owner, spender, value, t.Nonces(tx, owner), deadline)
	if signer, err := recoverSigner(digest, v, r, s); err != nil || signer != owner {
		return ErrInvalidSignature
	}
	t.bumpNonce(tx, owner)

	return t.Approve(tx, owner, spender, value)
}

// SignDigest signs an EIP-712 digest and returns the signature in the
// (v, r, s) form accepted by the permit methods.
func SignDigest(key *ecdsa.PrivateKey, digest common.Hash) (uint8, [32]byte, [32]byte, error) {
	var r, s [32]byte
	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		return 0, r, s, err
	}
	copy(r[:], sig[:32])
	copy(s[:], sig[32:64])
	return sig[64] + 27, r, s, nil
}

func typedDataHash(domain, structHash common.Hash) common.Hash {
	return crypto.Keccak256Hash([]byte("\x19\x01"), domain.Bytes(), structHash.Bytes())
}

func recoverSigner(digest common.Hash, v uint8, r, s [32]byte) (common.Address, error) {
	if v < 27 {
		return common.Address{}, ErrInvalidSignature
	}
	recID := v - 27
	if !crypto.ValidateSignatureValues(recID, new(big.Int).SetBytes(r[:]), new(big.Int).SetBytes(s[:]), true) {
		return common.Address{}, ErrInvalidSignature
	}

	sig := make([]byte, 65)
	copy(sig[:32], r[:])
	copy(sig[32:64], s[:])
	sig[64] = recID

	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}
