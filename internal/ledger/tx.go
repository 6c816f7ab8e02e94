package ledger

import (
	"fmt"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Legacy transaction encoding with EIP-155 replay protection. The registry
// chains we target all accept legacy transactions, so there is no need for
// typed (EIP-2718) envelopes.

type legacyTx struct {
	Nonce    uint64
	GasPrice *big.Int
	Gas      uint64
	To       []byte // 20 bytes
	Value    *big.Int
	Data     []byte
}

// rlpBytes encodes a single byte string.
func rlpBytes(b []byte) []byte {
	if len(b) == 1 && b[0] < 0x80 {
		return b
	}
	return append(rlpLength(len(b), 0x80), b...)
}

// rlpUint encodes an unsigned integer as a minimal big-endian byte string.
func rlpUint(v *big.Int) []byte {
	if v == nil || v.Sign() == 0 {
		return []byte{0x80}
	}
	return rlpBytes(v.Bytes())
}

// rlpList wraps already-encoded items into a list.
func rlpList(items ...[]byte) []byte {
	var payload []byte
	for _, it := range items {
		payload = append(payload, it...)
	}
	return append(rlpLength(len(payload), 0xc0), payload...)
}

func rlpLength(n int, offset byte) []byte {
	if n < 56 {
		return []byte{offset + byte(n)}
	}
	lenBytes := new(big.Int).SetInt64(int64(n)).Bytes()
	out := []byte{offset + 55 + byte(len(lenBytes))}
	return append(out, lenBytes...)
}

// signTx signs tx for chainID and returns the raw signed transaction bytes
// ready for eth_sendRawTransaction, plus the transaction hash.
func signTx(tx *legacyTx, chainID *big.Int, priv *secp256k1.PrivateKey) (raw []byte, txHash []byte, err error) {
	if len(tx.To) != 20 {
		return nil, nil, fmt.Errorf("ledger: recipient must be 20 bytes, got %d", len(tx.To))
	}

	base := [][]byte{
		rlpUint(new(big.Int).SetUint64(tx.Nonce)),
		rlpUint(tx.GasPrice),
		rlpUint(new(big.Int).SetUint64(tx.Gas)),
		rlpBytes(tx.To),
		rlpUint(tx.Value),
		rlpBytes(tx.Data),
	}

	// EIP-155: the pre-image commits to the chain id.
	preimage := rlpList(append(base,
		rlpUint(chainID),
		rlpUint(nil),
		rlpUint(nil),
	)...)
	sigHash := keccak256(preimage)

	compact := secpecdsa.SignCompact(priv, sigHash, false)
	recID := int64(compact[0]) - 27
	r := new(big.Int).SetBytes(compact[1:33])
	s := new(big.Int).SetBytes(compact[33:65])
	v := new(big.Int).Add(
		new(big.Int).Mul(chainID, big.NewInt(2)),
		big.NewInt(35+recID),
	)

	raw = rlpList(append(base,
		rlpUint(v),
		rlpUint(r),
		rlpUint(s),
	)...)
	return raw, keccak256(raw), nil
}
