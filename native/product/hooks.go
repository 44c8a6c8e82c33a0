package product

import (
	"voucherchain/native/common"
	"voucherchain/native/ledger"
)

// BeforeValueTransfer vets movements inside product slots and forwards them
// to the equities observer while the ledger still holds pre-state.
func (e *Engine) BeforeValueTransfer(caller [20]byte, t ledger.ValueTransfer) error {
	if e.ledger == nil || caller != e.ledger.Address() {
		return ErrIllegalCaller
	}
	p, err := e.requireProduct(t.Slot)
	if err != nil {
		return err
	}
	if t.Operator != e.address {
		if err := common.Guard(e.pauses, moduleName); err != nil {
			return err
		}
		if e.stageOf(p) != StageOnline {
			return ErrTransferControl
		}
	}
	if e.observer == nil {
		return nil
	}
	return e.observer.OnEquitiesTransfer(e.address, t)
}

// AfterValueTransfer only authenticates the ledger; settlement already ran
// in the before hook.
func (e *Engine) AfterValueTransfer(caller [20]byte, t ledger.ValueTransfer) error {
	if e.ledger == nil || caller != e.ledger.Address() {
		return ErrIllegalCaller
	}
	return nil
}
