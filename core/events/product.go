package events

import (
	"math/big"

	"voucherchain/core/types"
)

const (
	TypeProductCreated            = "product.created"
	TypeProductSubscribe          = "product.subscribe"
	TypeProductCancelSubscription = "product.cancel_subscription"
	TypeProductOfferLoans         = "product.offer_loans"
)

type ProductCreated struct {
	ProductID              uint64
	Operator               [20]byte
	TotalQuota             *big.Int
	MinSubscriptionAmount  *big.Int
	BeginSubscriptionBlock uint64
	EndSubscriptionBlock   uint64
	MinHoldingDuration     uint64
	InterestRate           string
	CashPool               [20]byte
}

func (ProductCreated) EventType() string { return TypeProductCreated }

func (e ProductCreated) Event() *types.Event {
	attrs := map[string]string{
		"productId":              uintToString(e.ProductID),
		"operator":               addr(e.Operator),
		"totalQuota":             formatAmount(e.TotalQuota),
		"minSubscriptionAmount":  formatAmount(e.MinSubscriptionAmount),
		"beginSubscriptionBlock": uintToString(e.BeginSubscriptionBlock),
		"endSubscriptionBlock":   uintToString(e.EndSubscriptionBlock),
		"minHoldingDuration":     uintToString(e.MinHoldingDuration),
		"interestRate":           e.InterestRate,
	}
	if e.CashPool != ([20]byte{}) {
		attrs["cashPool"] = addr(e.CashPool)
	}
	return &types.Event{Type: TypeProductCreated, Attributes: attrs}
}

// Subscribe reports the subscriber's cumulative principal and current voucher.
type Subscribe struct {
	ProductID  uint64
	Subscriber [20]byte
	Principal  *big.Int
	VoucherID  uint64
}

func (Subscribe) EventType() string { return TypeProductSubscribe }

func (e Subscribe) Event() *types.Event {
	return &types.Event{
		Type: TypeProductSubscribe,
		Attributes: map[string]string{
			"productId":  uintToString(e.ProductID),
			"subscriber": addr(e.Subscriber),
			"principal":  formatAmount(e.Principal),
			"voucherId":  uintToString(e.VoucherID),
		},
	}
}

// CancelSubscription reports the position as it stood before cancellation.
type CancelSubscription struct {
	ProductID  uint64
	Subscriber [20]byte
	Principal  *big.Int
	VoucherID  uint64
}

func (CancelSubscription) EventType() string { return TypeProductCancelSubscription }

func (e CancelSubscription) Event() *types.Event {
	return &types.Event{
		Type: TypeProductCancelSubscription,
		Attributes: map[string]string{
			"productId":  uintToString(e.ProductID),
			"subscriber": addr(e.Subscriber),
			"principal":  formatAmount(e.Principal),
			"voucherId":  uintToString(e.VoucherID),
		},
	}
}

type OfferLoans struct {
	ProductID uint64
	Amount    *big.Int
	Receiver  [20]byte
	Cashier   [20]byte
}

func (OfferLoans) EventType() string { return TypeProductOfferLoans }

func (e OfferLoans) Event() *types.Event {
	return &types.Event{
		Type: TypeProductOfferLoans,
		Attributes: map[string]string{
			"productId": uintToString(e.ProductID),
			"amount":    formatAmount(e.Amount),
			"receiver":  addr(e.Receiver),
			"cashier":   addr(e.Cashier),
		},
	}
}
