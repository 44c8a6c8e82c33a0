package ledger

import (
	"math/big"

	"voucherchain/native/common"
)

// Token is a unit of value living in exactly one slot.
type Token struct {
	ID       uint64
	Owner    [20]byte
	Slot     uint64
	Value    *big.Int
	Approved [20]byte
}

// Clone returns a deep copy of the token.
func (t *Token) Clone() *Token {
	if t == nil {
		return nil
	}
	clone := *t
	clone.Value = common.CloneBig(t.Value)
	return &clone
}

// Slot records the manager that claimed a slot and the tracked value
// aggregate of every token inside it.
type Slot struct {
	ID      uint64
	Manager [20]byte
	Supply  *big.Int
}

// ValueTransfer describes one logical value movement. Mint has a zero From and
// FromTokenID; burn has a zero To and ToTokenID. A whole-token ownership
// transfer carries the same id on both sides.
type ValueTransfer struct {
	Operator    [20]byte
	From        [20]byte
	To          [20]byte
	FromTokenID uint64
	ToTokenID   uint64
	Slot        uint64
	Value       *big.Int
}

// IsMint reports whether the movement creates value.
func (t ValueTransfer) IsMint() bool { return t.From == [20]byte{} }

// IsBurn reports whether the movement destroys value.
func (t ValueTransfer) IsBurn() bool { return t.To == [20]byte{} }

// IsWholeToken reports whether ownership of an entire token moved.
func (t ValueTransfer) IsWholeToken() bool {
	return t.FromTokenID != 0 && t.FromTokenID == t.ToTokenID
}

// SlotManager receives callbacks for every value movement inside the slots it
// manages. caller is the ledger's own address; implementations reject any
// other caller. The before hook observes pre-mutation state and the after
// hook observes post-mutation state. Returning an error aborts the movement.
type SlotManager interface {
	BeforeValueTransfer(caller [20]byte, transfer ValueTransfer) error
	AfterValueTransfer(caller [20]byte, transfer ValueTransfer) error
}

type storedToken struct {
	Owner    [20]byte
	Slot     uint64
	Value    *big.Int
	Approved [20]byte
}

type storedSlot struct {
	Manager [20]byte
	Supply  *big.Int
}
