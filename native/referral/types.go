package referral

import (
	"math/big"

	"voucherchain/native/ledger"
)

// RatioMantissa is the fixed-point scale of referrer earnings ratios.
var RatioMantissa = big.NewInt(1e18)

// DefaultRatio pays referrers a fifth of the interest their referrals earn.
var DefaultRatio = big.NewInt(2e17)

// RoleOwner administers qualifications and consumers.
const RoleOwner = "referral.owner"

// Binding links a referral address to the referrer it signed up under.
type Binding struct {
	Referrer [20]byte
	BindAt   uint64
}

// Record is the per-referrer, per-product settlement checkpoint.
type Record struct {
	TotalEquities   *big.Int
	SettledInterest *big.Int
}

// Ledger is the slice of the value ledger the referral engines use.
type Ledger interface {
	Address() [20]byte
	Mint(caller, to [20]byte, slot uint64, value *big.Int) (uint64, error)
	Token(id uint64) (*ledger.Token, error)
	Exists(id uint64) bool
	ManagerOf(slot uint64) ([20]byte, bool, error)
	TokensOfOwner(owner [20]byte) ([]uint64, error)
}

// Consumer is a product engine whose equities the center settles against.
type Consumer interface {
	EquitiesInterest(productID uint64, equities *big.Int, at uint64) (*big.Int, error)
}

// Bindings resolves referral bindings.
type Bindings interface {
	BindingOf(referral [20]byte) (*Binding, bool, error)
}

type storedRecord struct {
	TotalEquities   *big.Int
	SettledInterest *big.Int
}
