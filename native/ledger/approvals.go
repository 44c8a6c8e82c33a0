package ledger

import "voucherchain/core/events"

// Approve grants to the right to move tokenID. Passing the zero address
// clears the approval.
func (e *Engine) Approve(caller, to [20]byte, tokenID uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	token, err := e.loadToken(tokenID)
	if err != nil {
		return err
	}
	if to == token.Owner {
		return ErrApprovalToCurrentOwner
	}
	if caller != token.Owner && !e.IsApprovedForAll(token.Owner, caller) {
		return ErrNotOwnerNorApproved
	}
	token.Approved = to
	if err := e.storeToken(token); err != nil {
		return err
	}
	e.emit(events.Approval{Owner: token.Owner, Approved: to, TokenID: tokenID})
	return nil
}

// SetApprovalForAll lets operator move every token owned by caller.
func (e *Engine) SetApprovalForAll(caller, operator [20]byte, approved bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	if operator == caller {
		return ErrApproveToCaller
	}
	if operator == ([20]byte{}) {
		return ErrZeroAddress
	}
	var err error
	if approved {
		err = e.state.KVPut(operatorKey(caller, operator), true)
	} else {
		err = e.state.KVDelete(operatorKey(caller, operator))
	}
	if err != nil {
		return err
	}
	e.emit(events.ApprovalForAll{Owner: caller, Operator: operator, Approved: approved})
	return nil
}

// GetApproved returns the address approved for tokenID.
func (e *Engine) GetApproved(tokenID uint64) ([20]byte, error) {
	if e == nil || e.state == nil {
		return [20]byte{}, ErrNilState
	}
	token, err := e.loadToken(tokenID)
	if err != nil {
		return [20]byte{}, err
	}
	return token.Approved, nil
}

// IsApprovedForAll reports whether operator may move every token of owner.
func (e *Engine) IsApprovedForAll(owner, operator [20]byte) bool {
	if e == nil || e.state == nil {
		return false
	}
	var ok bool
	found, err := e.state.KVGet(operatorKey(owner, operator), &ok)
	return err == nil && found && ok
}

// IsApprovedOrOwner reports whether spender may move tokenID.
func (e *Engine) IsApprovedOrOwner(spender [20]byte, tokenID uint64) (bool, error) {
	if e == nil || e.state == nil {
		return false, ErrNilState
	}
	token, err := e.loadToken(tokenID)
	if err != nil {
		return false, err
	}
	return e.isApprovedOrOwner(spender, token), nil
}

// isApprovedOrOwner also admits the manager of the token's slot, which keeps
// custody rights over every token it issued.
func (e *Engine) isApprovedOrOwner(spender [20]byte, token *Token) bool {
	if spender == ([20]byte{}) {
		return false
	}
	if spender == token.Owner || spender == token.Approved || e.IsApprovedForAll(token.Owner, spender) {
		return true
	}
	manager, ok, err := e.ManagerOf(token.Slot)
	return err == nil && ok && manager == spender
}
