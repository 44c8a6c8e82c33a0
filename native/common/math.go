package common

import "math/big"

// CloneBig returns a copy of v, mapping nil to zero.
func CloneBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// SubFloor returns a-b clamped at zero.
func SubFloor(a, b *big.Int) *big.Int {
	out := new(big.Int).Sub(CloneBig(a), CloneBig(b))
	if out.Sign() < 0 {
		return out.SetInt64(0)
	}
	return out
}

// IsPositive reports whether v is non-nil and strictly greater than zero.
func IsPositive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}
