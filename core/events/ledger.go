package events

import (
	"math/big"
	"strconv"
	"strings"

	"voucherchain/core/types"
)

const (
	TypeLedgerSlotManagerAdded = "ledger.slot_manager_added"
	TypeLedgerSlotClaimed      = "ledger.slot_claimed"
	TypeLedgerTransfer         = "ledger.transfer"
	TypeLedgerTransferValue    = "ledger.transfer_value"
	TypeLedgerSlotChanged      = "ledger.slot_changed"
	TypeLedgerApproval         = "ledger.approval"
	TypeLedgerApprovalForAll   = "ledger.approval_for_all"
)

// AddedSlotManager is emitted when the ledger administrator grants the slot
// manager role.
type AddedSlotManager struct {
	Manager [20]byte
	Slots   []uint64
}

func (AddedSlotManager) EventType() string { return TypeLedgerSlotManagerAdded }

func (e AddedSlotManager) Event() *types.Event {
	slots := make([]string, 0, len(e.Slots))
	for _, slot := range e.Slots {
		slots = append(slots, uintToString(slot))
	}
	return &types.Event{
		Type: TypeLedgerSlotManagerAdded,
		Attributes: map[string]string{
			"manager": addr(e.Manager),
			"slots":   strings.Join(slots, ","),
		},
	}
}

type SlotClaimed struct {
	Slot    uint64
	Manager [20]byte
}

func (SlotClaimed) EventType() string { return TypeLedgerSlotClaimed }

func (e SlotClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeLedgerSlotClaimed,
		Attributes: map[string]string{
			"slot":    uintToString(e.Slot),
			"manager": addr(e.Manager),
		},
	}
}

// Transfer records token ownership changes, including mint (zero From) and
// burn (zero To).
type Transfer struct {
	From    [20]byte
	To      [20]byte
	TokenID uint64
}

func (Transfer) EventType() string { return TypeLedgerTransfer }

func (e Transfer) Event() *types.Event {
	return &types.Event{
		Type: TypeLedgerTransfer,
		Attributes: map[string]string{
			"from":    addr(e.From),
			"to":      addr(e.To),
			"tokenId": uintToString(e.TokenID),
		},
	}
}

// TransferValue records value moving between tokens. A zero token id on either
// side denotes mint or burn.
type TransferValue struct {
	FromTokenID uint64
	ToTokenID   uint64
	Value       *big.Int
}

func (TransferValue) EventType() string { return TypeLedgerTransferValue }

func (e TransferValue) Event() *types.Event {
	return &types.Event{
		Type: TypeLedgerTransferValue,
		Attributes: map[string]string{
			"fromTokenId": uintToString(e.FromTokenID),
			"toTokenId":   uintToString(e.ToTokenID),
			"value":       formatAmount(e.Value),
		},
	}
}

type SlotChanged struct {
	TokenID uint64
	OldSlot uint64
	NewSlot uint64
}

func (SlotChanged) EventType() string { return TypeLedgerSlotChanged }

func (e SlotChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeLedgerSlotChanged,
		Attributes: map[string]string{
			"tokenId": uintToString(e.TokenID),
			"oldSlot": uintToString(e.OldSlot),
			"newSlot": uintToString(e.NewSlot),
		},
	}
}

type Approval struct {
	Owner    [20]byte
	Approved [20]byte
	TokenID  uint64
}

func (Approval) EventType() string { return TypeLedgerApproval }

func (e Approval) Event() *types.Event {
	return &types.Event{
		Type: TypeLedgerApproval,
		Attributes: map[string]string{
			"owner":    addr(e.Owner),
			"approved": addr(e.Approved),
			"tokenId":  uintToString(e.TokenID),
		},
	}
}

type ApprovalForAll struct {
	Owner    [20]byte
	Operator [20]byte
	Approved bool
}

func (ApprovalForAll) EventType() string { return TypeLedgerApprovalForAll }

func (e ApprovalForAll) Event() *types.Event {
	return &types.Event{
		Type: TypeLedgerApprovalForAll,
		Attributes: map[string]string{
			"owner":    addr(e.Owner),
			"operator": addr(e.Operator),
			"approved": strconv.FormatBool(e.Approved),
		},
	}
}
