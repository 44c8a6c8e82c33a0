package events

import (
	"math/big"

	"voucherchain/core/types"
)

const (
	TypeReferralBound                      = "referral.bound"
	TypeReferralConsumerAdded              = "referral.consumer_added"
	TypeReferralSettlement                 = "referral.settlement"
	TypeReferralDistributedEarningsChanged = "referral.distributed_earnings_changed"
	TypeReferralClaimed                    = "referral.claimed"
)

type ReferralBound struct {
	Referrer [20]byte
	Referral [20]byte
	BindAt   uint64
}

func (ReferralBound) EventType() string { return TypeReferralBound }

func (e ReferralBound) Event() *types.Event {
	return &types.Event{
		Type: TypeReferralBound,
		Attributes: map[string]string{
			"referrer": addr(e.Referrer),
			"referral": addr(e.Referral),
			"bindAt":   uintToString(e.BindAt),
		},
	}
}

type AddedConsumer struct {
	Consumer [20]byte
	Ratio    *big.Int
}

func (AddedConsumer) EventType() string { return TypeReferralConsumerAdded }

func (e AddedConsumer) Event() *types.Event {
	return &types.Event{
		Type: TypeReferralConsumerAdded,
		Attributes: map[string]string{
			"consumer": addr(e.Consumer),
			"ratio":    formatAmount(e.Ratio),
		},
	}
}

// Settlement captures a tracking record checkpoint before and after a value
// movement.
type Settlement struct {
	Referrer           [20]byte
	ProductID          uint64
	OldTotalEquities   *big.Int
	NewTotalEquities   *big.Int
	OldSettledInterest *big.Int
	NewSettledInterest *big.Int
}

func (Settlement) EventType() string { return TypeReferralSettlement }

func (e Settlement) Event() *types.Event {
	return &types.Event{
		Type: TypeReferralSettlement,
		Attributes: map[string]string{
			"referrer":           addr(e.Referrer),
			"productId":          uintToString(e.ProductID),
			"oldTotalEquities":   formatAmount(e.OldTotalEquities),
			"newTotalEquities":   formatAmount(e.NewTotalEquities),
			"oldSettledInterest": formatAmount(e.OldSettledInterest),
			"newSettledInterest": formatAmount(e.NewSettledInterest),
		},
	}
}

type DistributedEarningsChanged struct {
	Referrer [20]byte
	Old      *big.Int
	New      *big.Int
}

func (DistributedEarningsChanged) EventType() string {
	return TypeReferralDistributedEarningsChanged
}

func (e DistributedEarningsChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeReferralDistributedEarningsChanged,
		Attributes: map[string]string{
			"referrer": addr(e.Referrer),
			"old":      formatAmount(e.Old),
			"new":      formatAmount(e.New),
		},
	}
}

type Claimed struct {
	Referrer  [20]byte
	Earnings  *big.Int
	VoucherID uint64
}

func (Claimed) EventType() string { return TypeReferralClaimed }

func (e Claimed) Event() *types.Event {
	return &types.Event{
		Type: TypeReferralClaimed,
		Attributes: map[string]string{
			"referrer":  addr(e.Referrer),
			"earnings":  formatAmount(e.Earnings),
			"voucherId": uintToString(e.VoucherID),
		},
	}
}
