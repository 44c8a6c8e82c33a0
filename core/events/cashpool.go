package events

import (
	"math/big"

	"voucherchain/core/types"
)

const (
	TypeCashPoolProductAdded   = "cashpool.product_added"
	TypeCashPoolProductRemoved = "cashpool.product_removed"
	TypeCashPoolRedeemed       = "cashpool.redeemed"
	TypeBankTransfer           = "bank.transfer"
)

type AddedProduct struct {
	ProductID uint64
}

func (AddedProduct) EventType() string { return TypeCashPoolProductAdded }

func (e AddedProduct) Event() *types.Event {
	return &types.Event{
		Type:       TypeCashPoolProductAdded,
		Attributes: map[string]string{"productId": uintToString(e.ProductID)},
	}
}

type RemovedProduct struct {
	ProductID        uint64
	RedeemedEquities *big.Int
	RedeemedAmount   *big.Int
}

func (RemovedProduct) EventType() string { return TypeCashPoolProductRemoved }

func (e RemovedProduct) Event() *types.Event {
	return &types.Event{
		Type: TypeCashPoolProductRemoved,
		Attributes: map[string]string{
			"productId":        uintToString(e.ProductID),
			"redeemedEquities": formatAmount(e.RedeemedEquities),
			"redeemedAmount":   formatAmount(e.RedeemedAmount),
		},
	}
}

type Redeemed struct {
	ProductID uint64
	TokenID   uint64
	Owner     [20]byte
	Receiver  [20]byte
	Equities  *big.Int
	Amount    *big.Int
}

func (Redeemed) EventType() string { return TypeCashPoolRedeemed }

func (e Redeemed) Event() *types.Event {
	return &types.Event{
		Type: TypeCashPoolRedeemed,
		Attributes: map[string]string{
			"productId": uintToString(e.ProductID),
			"tokenId":   uintToString(e.TokenID),
			"owner":     addr(e.Owner),
			"receiver":  addr(e.Receiver),
			"equities":  formatAmount(e.Equities),
			"amount":    formatAmount(e.Amount),
		},
	}
}

// NativeTransfer records movements of native balance.
type NativeTransfer struct {
	From   [20]byte
	To     [20]byte
	Amount *big.Int
}

func (NativeTransfer) EventType() string { return TypeBankTransfer }

func (e NativeTransfer) Event() *types.Event {
	return &types.Event{
		Type: TypeBankTransfer,
		Attributes: map[string]string{
			"from":   addr(e.From),
			"to":     addr(e.To),
			"amount": formatAmount(e.Amount),
		},
	}
}
