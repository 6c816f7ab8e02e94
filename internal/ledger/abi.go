package ledger

import (
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Minimal ABI codec for the handful of registry methods we call. Values are
// encoded as 32-byte words; dynamic values (strings, arrays) use the standard
// head/tail layout with offsets relative to the enclosing encoding.

const wordSize = 32

func keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// selector computes the 4-byte method selector for a canonical signature such
// as "balanceOf(address,uint256)".
func selector(sig string) []byte {
	return keccak256([]byte(sig))[:4]
}

func padWord(b []byte) []byte {
	w := make([]byte, wordSize)
	copy(w[wordSize-len(b):], b)
	return w
}

func uintWord(v *big.Int) []byte {
	return padWord(v.Bytes())
}

func addressWord(addr string) ([]byte, error) {
	b, err := hexBytes(addr)
	if err != nil || len(b) != 20 {
		return nil, fmt.Errorf("ledger: invalid address %q", addr)
	}
	return padWord(b), nil
}

// stringTail encodes a dynamic string: length word followed by right-padded
// content.
func stringTail(s string) []byte {
	out := uintWord(big.NewInt(int64(len(s))))
	data := []byte(s)
	padded := (len(data) + wordSize - 1) / wordSize * wordSize
	tail := make([]byte, padded)
	copy(tail, data)
	return append(out, tail...)
}

// encodeCall builds calldata for sig with the given arguments. Supported
// argument kinds: *big.Int (uint256), string starting with "0x" of 20 bytes
// (address), any other string (dynamic string).
func encodeCall(sig string, args ...any) ([]byte, error) {
	var head, tail []byte
	headSize := len(args) * wordSize

	for _, arg := range args {
		switch v := arg.(type) {
		case *big.Int:
			head = append(head, uintWord(v)...)
		case uint64:
			head = append(head, uintWord(new(big.Int).SetUint64(v))...)
		case string:
			if strings.HasPrefix(v, "0x") && len(v) == 42 {
				w, err := addressWord(v)
				if err != nil {
					return nil, err
				}
				head = append(head, w...)
				continue
			}
			head = append(head, uintWord(big.NewInt(int64(headSize+len(tail))))...)
			tail = append(tail, stringTail(v)...)
		default:
			return nil, fmt.Errorf("ledger: unsupported abi argument %T", arg)
		}
	}

	out := selector(sig)
	out = append(out, head...)
	out = append(out, tail...)
	return out, nil
}

// decoder walks ABI-encoded return data.
type decoder struct {
	data []byte
}

func (d *decoder) word(i int) ([]byte, error) {
	off := i * wordSize
	if off+wordSize > len(d.data) {
		return nil, fmt.Errorf("ledger: abi data truncated at word %d", i)
	}
	return d.data[off : off+wordSize], nil
}

func (d *decoder) uint(i int) (*big.Int, error) {
	w, err := d.word(i)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(w), nil
}

func (d *decoder) bool(i int) (bool, error) {
	v, err := d.uint(i)
	if err != nil {
		return false, err
	}
	return v.Sign() != 0, nil
}

// byteOffset converts an untrusted offset word to a byte index. Anything that
// cannot address d.data is rejected here so downstream arithmetic never wraps.
func (d *decoder) byteOffset(v *big.Int) (int, error) {
	if !v.IsInt64() || v.Int64() > int64(len(d.data)) {
		return 0, fmt.Errorf("ledger: abi offset out of range")
	}
	return int(v.Int64()), nil
}

// bytesAt reads a dynamic byte region (length word + content) at an absolute
// byte offset.
func (d *decoder) bytesAt(off int) ([]byte, error) {
	if off+wordSize > len(d.data) {
		return nil, fmt.Errorf("ledger: abi offset %d out of range", off)
	}
	n := new(big.Int).SetBytes(d.data[off : off+wordSize])
	if !n.IsInt64() || off+wordSize+int(n.Int64()) > len(d.data) {
		return nil, fmt.Errorf("ledger: abi length out of range at offset %d", off)
	}
	start := off + wordSize
	return d.data[start : start+int(n.Int64())], nil
}

// stringField resolves the dynamic string whose offset sits in head word i.
// base is the absolute byte position the offset is relative to.
func (d *decoder) stringField(i, base int) (string, error) {
	off, err := d.uint(i)
	if err != nil {
		return "", err
	}
	rel, err := d.byteOffset(off)
	if err != nil {
		return "", err
	}
	b, err := d.bytesAt(base + rel)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// uintSlice decodes a top-level uint256[] return value.
func (d *decoder) uintSlice() ([]*big.Int, error) {
	off, err := d.uint(0)
	if err != nil {
		return nil, err
	}
	base, err := d.byteOffset(off)
	if err != nil {
		return nil, err
	}
	if base+wordSize > len(d.data) {
		return nil, fmt.Errorf("ledger: abi array offset out of range")
	}
	n := new(big.Int).SetBytes(d.data[base : base+wordSize])
	if !n.IsInt64() || base+wordSize+int(n.Int64())*wordSize > len(d.data) {
		return nil, fmt.Errorf("ledger: abi array length out of range")
	}
	out := make([]*big.Int, n.Int64())
	for i := range out {
		start := base + wordSize + i*wordSize
		out[i] = new(big.Int).SetBytes(d.data[start : start+wordSize])
	}
	return out, nil
}

// stringSliceAt decodes a string[] whose data area starts at the absolute
// byte offset off.
func (d *decoder) stringSliceAt(off int) ([]string, error) {
	if off+wordSize > len(d.data) {
		return nil, fmt.Errorf("ledger: abi array offset out of range")
	}
	n := new(big.Int).SetBytes(d.data[off : off+wordSize])
	base := off + wordSize // element offsets are relative to here
	if !n.IsInt64() || base+int(n.Int64())*wordSize > len(d.data) {
		return nil, fmt.Errorf("ledger: abi array length out of range")
	}
	out := make([]string, n.Int64())
	for i := range out {
		elemOff, err := d.byteOffset(new(big.Int).SetBytes(d.data[base+i*wordSize : base+(i+1)*wordSize]))
		if err != nil {
			return nil, err
		}
		b, err := d.bytesAt(base + elemOff)
		if err != nil {
			return nil, err
		}
		out[i] = string(b)
	}
	return out, nil
}
