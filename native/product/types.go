package product

import (
	"fmt"
	"math/big"

	"voucherchain/native/common"
	"voucherchain/native/interest"
	"voucherchain/native/ledger"
)

const (
	// MinPeriod and MaxPeriod bound the subscription window length in blocks.
	MinPeriod = interest.BlocksPerDay
	MaxPeriod = interest.BlocksPerDay * 28
)

// Stage is derived from the current block and the subscription window.
type Stage uint8

const (
	StagePreSubscription Stage = iota
	StageSubscription
	StageOnline
)

func (s Stage) String() string {
	switch s {
	case StagePreSubscription:
		return "pre_subscription"
	case StageSubscription:
		return "subscription"
	case StageOnline:
		return "online"
	default:
		return "unknown"
	}
}

// ParseStage is the inverse of Stage.String.
func ParseStage(name string) (Stage, error) {
	for _, s := range []Stage{StagePreSubscription, StageSubscription, StageOnline} {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("product: unknown stage %q", name)
}

// StageAt maps a block onto the product lifecycle.
func StageAt(block, begin, end uint64) Stage {
	switch {
	case block < begin:
		return StagePreSubscription
	case block <= end:
		return StageSubscription
	default:
		return StageOnline
	}
}

// Params are fixed at creation.
type Params struct {
	TotalQuota             *big.Int
	MinSubscriptionAmount  *big.Int
	BeginSubscriptionBlock uint64
	EndSubscriptionBlock   uint64
	MinHoldingDuration     uint64
	// InterestRate names a registered interest.Strategy.
	InterestRate string
	// CashPool, when set, is the only pool allowed to redeem the product's
	// vouchers.
	CashPool [20]byte
}

func (p Params) Clone() Params {
	out := p
	out.TotalQuota = common.CloneBig(p.TotalQuota)
	out.MinSubscriptionAmount = common.CloneBig(p.MinSubscriptionAmount)
	return out
}

// Product is a created offering. Its ID doubles as its ledger slot.
type Product struct {
	ID          uint64
	Params      Params
	Operator    [20]byte
	FundsRaised *big.Int
	FundsLoaned *big.Int
}

// Subscription is a subscriber's position in one product.
type Subscription struct {
	ProductID  uint64
	Subscriber [20]byte
	Principal  *big.Int
	AtBlock    uint64
	VoucherID  uint64
}

// Ledger is the slice of the value ledger the product engine drives.
type Ledger interface {
	Address() [20]byte
	ClaimSlot(caller [20]byte, slot uint64) error
	ManagerOf(slot uint64) ([20]byte, bool, error)
	Mint(caller, to [20]byte, slot uint64, value *big.Int) (uint64, error)
	Burn(caller [20]byte, tokenID uint64) error
	Token(id uint64) (*ledger.Token, error)
	SlotSupply(slot uint64) (*big.Int, error)
}

// Bank moves native value in and out of the engine's custody.
type Bank interface {
	Transfer(from, to [20]byte, amount *big.Int) error
}

// EquitiesObserver is notified of every value movement inside a product slot
// before the ledger applies it. The transfer's Slot is the product id.
type EquitiesObserver interface {
	OnEquitiesTransfer(caller [20]byte, transfer ledger.ValueTransfer) error
}

type storedProduct struct {
	TotalQuota             *big.Int
	MinSubscriptionAmount  *big.Int
	BeginSubscriptionBlock uint64
	EndSubscriptionBlock   uint64
	MinHoldingDuration     uint64
	InterestRate           string
	CashPool               [20]byte
	Operator               [20]byte
	FundsRaised            *big.Int
	FundsLoaned            *big.Int
}

func (s *storedProduct) toProduct(id uint64) *Product {
	return &Product{
		ID: id,
		Params: Params{
			TotalQuota:             common.CloneBig(s.TotalQuota),
			MinSubscriptionAmount:  common.CloneBig(s.MinSubscriptionAmount),
			BeginSubscriptionBlock: s.BeginSubscriptionBlock,
			EndSubscriptionBlock:   s.EndSubscriptionBlock,
			MinHoldingDuration:     s.MinHoldingDuration,
			InterestRate:           s.InterestRate,
			CashPool:               s.CashPool,
		},
		Operator:    s.Operator,
		FundsRaised: common.CloneBig(s.FundsRaised),
		FundsLoaned: common.CloneBig(s.FundsLoaned),
	}
}

func newStoredProduct(p *Product) storedProduct {
	return storedProduct{
		TotalQuota:             common.CloneBig(p.Params.TotalQuota),
		MinSubscriptionAmount:  common.CloneBig(p.Params.MinSubscriptionAmount),
		BeginSubscriptionBlock: p.Params.BeginSubscriptionBlock,
		EndSubscriptionBlock:   p.Params.EndSubscriptionBlock,
		MinHoldingDuration:     p.Params.MinHoldingDuration,
		InterestRate:           p.Params.InterestRate,
		CashPool:               p.Params.CashPool,
		Operator:               p.Operator,
		FundsRaised:            common.CloneBig(p.FundsRaised),
		FundsLoaned:            common.CloneBig(p.FundsLoaned),
	}
}

type storedSubscription struct {
	Principal *big.Int
	AtBlock   uint64
	VoucherID uint64
}
