package crypto

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

var (
	ErrInvalidSignature = errors.New("crypto: invalid signature")

	domainTypeHash = crypto.Keccak256([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
)

// TypedDomain carries the domain separation fields bound into every typed-data
// signature so that a signature cannot be replayed against another chain or
// verifier.
type TypedDomain struct {
	Name              string
	Version           string
	ChainID           uint64
	VerifyingContract Address
}

// Separator returns the EIP-712 domain separator.
func (d TypedDomain) Separator() []byte {
	return crypto.Keccak256(
		domainTypeHash,
		crypto.Keccak256([]byte(d.Name)),
		crypto.Keccak256([]byte(d.Version)),
		Uint256Word(new(uint256.Int).SetUint64(d.ChainID)),
		AddressWord(d.VerifyingContract),
	)
}

// TypeHash hashes an EIP-712 struct type declaration.
func TypeHash(declaration string) []byte {
	return crypto.Keccak256([]byte(declaration))
}

// HashStruct hashes the encoded members of a struct behind its type hash.
// Every member must already be encoded as a 32-byte word.
func HashStruct(typeHash []byte, words ...[]byte) []byte {
	parts := make([][]byte, 0, len(words)+1)
	parts = append(parts, typeHash)
	parts = append(parts, words...)
	return crypto.Keccak256(parts...)
}

// TypedDataDigest combines the domain separator with a struct hash.
func TypedDataDigest(domain TypedDomain, structHash []byte) []byte {
	return crypto.Keccak256([]byte{0x19, 0x01}, domain.Separator(), structHash)
}

// Uint256Word encodes an unsigned integer as a big-endian 32-byte word.
func Uint256Word(v *uint256.Int) []byte {
	if v == nil {
		v = new(uint256.Int)
	}
	word := v.Bytes32()
	return word[:]
}

// BigWord encodes a non-negative big integer as a 32-byte word. Values that do
// not fit in 256 bits are rejected.
func BigWord(v *big.Int) ([]byte, error) {
	if v == nil {
		return Uint256Word(nil), nil
	}
	if v.Sign() < 0 {
		return nil, errors.New("crypto: negative uint256")
	}
	word, overflow := uint256.FromBig(v)
	if overflow {
		return nil, errors.New("crypto: uint256 overflow")
	}
	return Uint256Word(word), nil
}

// AddressWord left-pads an address to a 32-byte word.
func AddressWord(a Address) []byte {
	return common.LeftPadBytes(a.Bytes(), 32)
}

// SplitSignature breaks a 65-byte [R || S || V] signature into the v/r/s
// triple, normalising V to 27/28.
func SplitSignature(sig []byte) (uint8, [32]byte, [32]byte, error) {
	var r, s [32]byte
	if len(sig) != 65 {
		return 0, r, s, ErrInvalidSignature
	}
	copy(r[:], sig[:32])
	copy(s[:], sig[32:64])
	v := sig[64]
	if v < 27 {
		v += 27
	}
	return v, r, s, nil
}

// RecoverTypedSigner recovers the address that produced the v/r/s signature
// over digest. High-s signatures are rejected.
func RecoverTypedSigner(digest []byte, v uint8, r, s [32]byte) (Address, error) {
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return Address{}, ErrInvalidSignature
	}
	if !crypto.ValidateSignatureValues(v, new(big.Int).SetBytes(r[:]), new(big.Int).SetBytes(s[:]), true) {
		return Address{}, ErrInvalidSignature
	}
	sig := make([]byte, 65)
	copy(sig[:32], r[:])
	copy(sig[32:64], s[:])
	sig[64] = v
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return Address{}, ErrInvalidSignature
	}
	return NewAddress(VoucherPrefix, crypto.PubkeyToAddress(*pub).Bytes()), nil
}
