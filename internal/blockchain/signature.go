package blockchain

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrMalformedSignature = errors.New("malformed signature")

// VerifyPersonalSignature reports whether signature is an EIP-191
// personal_sign signature of message by address. Wallets encode the
// recovery id as 27/28, go-ethereum expects 0/1; both are accepted.
func VerifyPersonalSignature(address common.Address, message string, signature string) (bool, error) {
	sig, err := hexutil.Decode(strings.TrimSpace(signature))
	if err != nil {
		return false, ErrMalformedSignature
	}
	if len(sig) != crypto.SignatureLength {
		return false, ErrMalformedSignature
	}

	sig = append([]byte(nil), sig...)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	if sig[crypto.RecoveryIDOffset] > 1 {
		return false, ErrMalformedSignature
	}

	publicKey, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return false, nil
	}

	return crypto.PubkeyToAddress(*publicKey) == address, nil
}

// NormalizeAddress returns the EIP-55 form of a hex address.
func NormalizeAddress(address string) (string, bool) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return "", false
	}
	return common.HexToAddress(address).Hex(), true
}
