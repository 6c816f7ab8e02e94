package vault

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

const testMasterKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	v, err := New(testMasterKey)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return v
}

func TestNewRejectsBadKey(t *testing.T) {
	cases := []string{
		"",
		"deadbeef",               // too short
		testMasterKey + "00",     // too long
		strings.Repeat("zz", 32), // not hex
	}
	for _, key := range cases {
		if _, err := New(key); !errors.Is(err, ErrInvalidMasterKey) {
			t.Errorf("New(%q): got %v, want ErrInvalidMasterKey", key, err)
		}
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v := newTestVault(t)

	inputs := [][]byte{
		[]byte("hello"),
		{},
		bytes.Repeat([]byte{0x42}, 32), // typical private key size
		bytes.Repeat([]byte{0x00}, 1024),
	}
	for _, plaintext := range inputs {
		ct, iv, tag, err := v.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt: %v", err)
		}
		if len(iv) != nonceSize {
			t.Errorf("iv length = %d, want %d", len(iv), nonceSize)
		}
		if len(tag) != tagSize {
			t.Errorf("tag length = %d, want %d", len(tag), tagSize)
		}

		got, err := v.Decrypt(ct, iv, tag)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if !bytes.Equal(got, plaintext) {
			t.Errorf("round trip mismatch: got %x, want %x", got, plaintext)
		}
	}
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	v := newTestVault(t)

	_, iv1, _, err := v.Encrypt([]byte("same plaintext"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	_, iv2, _, err := v.Encrypt([]byte("same plaintext"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Equal(iv1, iv2) {
		t.Fatal("nonce reused across Encrypt calls")
	}
}

func TestDecryptTamperedTag(t *testing.T) {
	v := newTestVault(t)

	ct, iv, tag, err := v.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	tag[0] ^= 0xff
	if _, err := v.Decrypt(ct, iv, tag); !errors.Is(err, ErrAuthentication) {
		t.Errorf("tampered tag: got %v, want ErrAuthentication", err)
	}
}

func TestDecryptWrongIV(t *testing.T) {
	v := newTestVault(t)

	ct, iv, tag, err := v.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	iv[len(iv)-1] ^= 0x01
	if _, err := v.Decrypt(ct, iv, tag); !errors.Is(err, ErrAuthentication) {
		t.Errorf("wrong iv: got %v, want ErrAuthentication", err)
	}
}

func TestDecryptWrongKey(t *testing.T) {
	v := newTestVault(t)
	other, err := New("ffeeddccbbaa99887766554433221100ffeeddccbbaa99887766554433221100")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ct, iv, tag, err := v.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := other.Decrypt(ct, iv, tag); !errors.Is(err, ErrAuthentication) {
		t.Errorf("wrong key: got %v, want ErrAuthentication", err)
	}
}

func TestGenerateKeypair(t *testing.T) {
	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}

	if len(kp.PrivateKey) != 32 {
		t.Errorf("private key length = %d, want 32", len(kp.PrivateKey))
	}
	if !strings.HasPrefix(kp.Address, "0x") || len(kp.Address) != 42 {
		t.Errorf("address %q is not a 0x-prefixed 20-byte address", kp.Address)
	}

	// Rehydrating the private key must derive the same address.
	priv, err := PrivateKeyFromBytes(kp.PrivateKey)
	if err != nil {
		t.Fatalf("PrivateKeyFromBytes: %v", err)
	}
	if got := AddressFromPrivateKey(priv); got != kp.Address {
		t.Errorf("rederived address = %s, want %s", got, kp.Address)
	}

	// Two keypairs must differ.
	kp2, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	if kp.Address == kp2.Address {
		t.Error("two generated keypairs share an address")
	}
}

func TestEIP55KnownVector(t *testing.T) {
	// Vector from the EIP-55 specification.
	in := "5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"
	want := "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	if got := eip55Checksum(in); got != want {
		t.Errorf("eip55Checksum = %s, want %s", got, want)
	}

	decoded, err := hex.DecodeString(in)
	if err != nil || len(decoded) != 20 {
		t.Fatalf("bad test vector")
	}
}
