package vault

import (
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/sha3"
)

// Keypair is a freshly generated custodial wallet key. PrivateKey is the raw
// 32-byte scalar; Address is the EIP-55 checksummed account address.
type Keypair struct {
	Address    string
	PrivateKey []byte
}

// GenerateKeypair produces a new secp256k1 keypair for the target chain.
// The private key exists only in the returned struct; callers encrypt it
// immediately and must not retain the plaintext.
func GenerateKeypair() (*Keypair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("vault: generate private key: %w", err)
	}

	addr := AddressFromPrivateKey(priv)
	return &Keypair{
		Address:    addr,
		PrivateKey: priv.Serialize(),
	}, nil
}

// AddressFromPrivateKey derives the EIP-55 checksummed account address for a
// secp256k1 private key: Keccak256 of the uncompressed public point, last 20
// bytes.
func AddressFromPrivateKey(priv *secp256k1.PrivateKey) string {
	uncompressed := priv.PubKey().SerializeUncompressed() // 65 bytes: 04 || x || y

	h := sha3.NewLegacyKeccak256()
	h.Write(uncompressed[1:])
	hash := h.Sum(nil)

	return eip55Checksum(fmt.Sprintf("%x", hash[12:]))
}

// PrivateKeyFromBytes rehydrates a secp256k1 private key from its 32-byte
// serialized form (as produced by GenerateKeypair and held by the vault).
func PrivateKeyFromBytes(b []byte) (*secp256k1.PrivateKey, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("vault: private key must be 32 bytes, got %d", len(b))
	}
	return secp256k1.PrivKeyFromBytes(b), nil
}

// eip55Checksum applies EIP-55 mixed-case checksum to a hex address.
func eip55Checksum(addrHex string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(addrHex))
	hash := h.Sum(nil)

	var result strings.Builder
	result.WriteString("0x")
	for i, c := range addrHex {
		if c >= '0' && c <= '9' {
			result.WriteByte(byte(c))
			continue
		}
		hashByte := hash[i/2]
		var nibble byte
		if i%2 == 0 {
			nibble = hashByte >> 4
		} else {
			nibble = hashByte & 0x0f
		}
		if nibble >= 8 {
			result.WriteByte(byte(c) - 32) // uppercase
		} else {
			result.WriteByte(byte(c))
		}
	}
	return result.String()
}
