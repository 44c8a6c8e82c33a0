package ledger

import (
	"math/big"

	"voucherchain/core/events"
	"voucherchain/native/common"
)

// Mint creates a token of value in slot for to. Only the slot's manager may
// mint, and the manager is approved on the new token.
func (e *Engine) Mint(caller, to [20]byte, slot uint64, value *big.Int) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if to == ([20]byte{}) {
		return 0, ErrZeroAddress
	}
	amount := common.CloneBig(value)
	if amount.Sign() < 0 {
		return 0, ErrInvalidValue
	}
	s, ok, err := e.loadSlot(slot)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrSlotNotExists
	}
	if s.Manager != caller {
		return 0, ErrNotSlotManagerOfSlot
	}
	id, err := e.allocateTokenID()
	if err != nil {
		return 0, err
	}
	transfer := ValueTransfer{Operator: caller, To: to, ToTokenID: id, Slot: slot, Value: amount}
	if err := e.beforeTransfer(transfer); err != nil {
		return 0, err
	}
	token := &Token{ID: id, Owner: to, Slot: slot, Value: new(big.Int).Set(amount), Approved: s.Manager}
	if err := e.createToken(token); err != nil {
		return 0, err
	}
	if err := e.adjustSupply(slot, amount); err != nil {
		return 0, err
	}
	e.emit(events.Transfer{To: to, TokenID: id})
	e.emit(events.SlotChanged{TokenID: id, NewSlot: slot})
	e.emit(events.TransferValue{ToTokenID: id, Value: new(big.Int).Set(amount)})
	e.emit(events.Approval{Owner: to, Approved: s.Manager, TokenID: id})
	if err := e.afterTransfer(transfer); err != nil {
		return 0, err
	}
	return id, nil
}

// Burn destroys a token and its entire value.
func (e *Engine) Burn(caller [20]byte, tokenID uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	token, err := e.loadToken(tokenID)
	if err != nil {
		return err
	}
	if !e.isApprovedOrOwner(caller, token) {
		return ErrNotOwnerNorApproved
	}
	transfer := ValueTransfer{
		Operator:    caller,
		From:        token.Owner,
		FromTokenID: tokenID,
		Slot:        token.Slot,
		Value:       new(big.Int).Set(token.Value),
	}
	if err := e.beforeTransfer(transfer); err != nil {
		return err
	}
	if err := e.destroyToken(token); err != nil {
		return err
	}
	if err := e.adjustSupply(token.Slot, new(big.Int).Neg(token.Value)); err != nil {
		return err
	}
	e.emit(events.TransferValue{FromTokenID: tokenID, Value: new(big.Int).Set(token.Value)})
	e.emit(events.SlotChanged{TokenID: tokenID, OldSlot: token.Slot})
	e.emit(events.Transfer{From: token.Owner, TokenID: tokenID})
	return e.afterTransfer(transfer)
}

// TransferToAddress moves value out of fromTokenID into a freshly minted
// token owned by to, returning the new token id.
func (e *Engine) TransferToAddress(caller [20]byte, fromTokenID uint64, to [20]byte, value *big.Int) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if to == ([20]byte{}) {
		return 0, ErrZeroAddress
	}
	from, amount, err := e.spendable(caller, fromTokenID, value)
	if err != nil {
		return 0, err
	}
	id, err := e.allocateTokenID()
	if err != nil {
		return 0, err
	}
	transfer := ValueTransfer{
		Operator:    caller,
		From:        from.Owner,
		To:          to,
		FromTokenID: fromTokenID,
		ToTokenID:   id,
		Slot:        from.Slot,
		Value:       amount,
	}
	if err := e.beforeTransfer(transfer); err != nil {
		return 0, err
	}
	from.Value.Sub(from.Value, amount)
	if err := e.storeToken(from); err != nil {
		return 0, err
	}
	if err := e.createToken(&Token{ID: id, Owner: to, Slot: from.Slot, Value: new(big.Int).Set(amount)}); err != nil {
		return 0, err
	}
	e.emit(events.Transfer{To: to, TokenID: id})
	e.emit(events.SlotChanged{TokenID: id, NewSlot: from.Slot})
	e.emit(events.TransferValue{FromTokenID: fromTokenID, ToTokenID: id, Value: new(big.Int).Set(amount)})
	if err := e.afterTransfer(transfer); err != nil {
		return 0, err
	}
	return id, nil
}

// Split carves value out of tokenID into a new token kept by the same owner.
func (e *Engine) Split(caller [20]byte, tokenID uint64, value *big.Int) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	token, err := e.loadToken(tokenID)
	if err != nil {
		return 0, err
	}
	return e.TransferToAddress(caller, tokenID, token.Owner, value)
}

// TransferToToken merges value from one token into another of the same slot.
func (e *Engine) TransferToToken(caller [20]byte, fromTokenID, toTokenID uint64, value *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if fromTokenID == toTokenID {
		return ErrSameToken
	}
	from, amount, err := e.spendable(caller, fromTokenID, value)
	if err != nil {
		return err
	}
	to, err := e.loadToken(toTokenID)
	if err != nil {
		return err
	}
	if to.Slot != from.Slot {
		return ErrSlotMismatch
	}
	transfer := ValueTransfer{
		Operator:    caller,
		From:        from.Owner,
		To:          to.Owner,
		FromTokenID: fromTokenID,
		ToTokenID:   toTokenID,
		Slot:        from.Slot,
		Value:       amount,
	}
	if err := e.beforeTransfer(transfer); err != nil {
		return err
	}
	from.Value.Sub(from.Value, amount)
	to.Value.Add(to.Value, amount)
	if err := e.storeToken(from); err != nil {
		return err
	}
	if err := e.storeToken(to); err != nil {
		return err
	}
	e.emit(events.TransferValue{FromTokenID: fromTokenID, ToTokenID: toTokenID, Value: new(big.Int).Set(amount)})
	return e.afterTransfer(transfer)
}

// TransferToken moves ownership of an entire token from one address to
// another.
func (e *Engine) TransferToken(caller, from, to [20]byte, tokenID uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if to == ([20]byte{}) {
		return ErrZeroAddress
	}
	token, err := e.loadToken(tokenID)
	if err != nil {
		return err
	}
	if token.Owner != from {
		return ErrIncorrectOwner
	}
	if !e.isApprovedOrOwner(caller, token) {
		return ErrNotOwnerNorApproved
	}
	transfer := ValueTransfer{
		Operator:    caller,
		From:        from,
		To:          to,
		FromTokenID: tokenID,
		ToTokenID:   tokenID,
		Slot:        token.Slot,
		Value:       new(big.Int).Set(token.Value),
	}
	if err := e.beforeTransfer(transfer); err != nil {
		return err
	}
	if _, err := common.ListRemove(e.state, ownerTokensKey(from), tokenID); err != nil {
		return err
	}
	if err := common.ListAppend(e.state, ownerTokensKey(to), tokenID); err != nil {
		return err
	}
	token.Owner = to
	token.Approved = [20]byte{}
	if err := e.storeToken(token); err != nil {
		return err
	}
	e.emit(events.Approval{Owner: from, TokenID: tokenID})
	e.emit(events.Transfer{From: from, To: to, TokenID: tokenID})
	return e.afterTransfer(transfer)
}

func (e *Engine) spendable(caller [20]byte, tokenID uint64, value *big.Int) (*Token, *big.Int, error) {
	amount := common.CloneBig(value)
	if amount.Sign() < 0 {
		return nil, nil, ErrInvalidValue
	}
	token, err := e.loadToken(tokenID)
	if err != nil {
		return nil, nil, err
	}
	if !e.isApprovedOrOwner(caller, token) {
		return nil, nil, ErrNotOwnerNorApproved
	}
	if amount.Cmp(token.Value) > 0 {
		return nil, nil, ErrInsufficientBalance
	}
	return token, amount, nil
}

func (e *Engine) createToken(t *Token) error {
	if err := e.storeToken(t); err != nil {
		return err
	}
	if err := common.ListAppend(e.state, allTokensKey, t.ID); err != nil {
		return err
	}
	if err := common.ListAppend(e.state, slotTokensKey(t.Slot), t.ID); err != nil {
		return err
	}
	return common.ListAppend(e.state, ownerTokensKey(t.Owner), t.ID)
}

func (e *Engine) destroyToken(t *Token) error {
	if err := e.state.KVDelete(tokenKey(t.ID)); err != nil {
		return err
	}
	if _, err := common.ListRemove(e.state, allTokensKey, t.ID); err != nil {
		return err
	}
	if _, err := common.ListRemove(e.state, slotTokensKey(t.Slot), t.ID); err != nil {
		return err
	}
	_, err := common.ListRemove(e.state, ownerTokensKey(t.Owner), t.ID)
	return err
}
