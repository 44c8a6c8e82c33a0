package ledger

import (
	"math/big"

	"voucherchain/native/common"
)

// Token returns a copy of the token with id.
func (e *Engine) Token(id uint64) (*Token, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.loadToken(id)
}

// Exists reports whether the token is live.
func (e *Engine) Exists(id uint64) bool {
	if e == nil || e.state == nil || id == 0 {
		return false
	}
	ok, err := e.state.KVGet(tokenKey(id), nil)
	return err == nil && ok
}

func (e *Engine) OwnerOf(id uint64) ([20]byte, error) {
	token, err := e.Token(id)
	if err != nil {
		return [20]byte{}, err
	}
	return token.Owner, nil
}

func (e *Engine) SlotOf(id uint64) (uint64, error) {
	token, err := e.Token(id)
	if err != nil {
		return 0, err
	}
	return token.Slot, nil
}

func (e *Engine) ValueOf(id uint64) (*big.Int, error) {
	token, err := e.Token(id)
	if err != nil {
		return nil, err
	}
	return token.Value, nil
}

// Slot returns the claim record of slot.
func (e *Engine) Slot(slot uint64) (*Slot, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	s, ok, err := e.loadSlot(slot)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSlotNotExists
	}
	return s, nil
}

// ManagerOf returns the manager of slot; ok is false for unclaimed slots.
func (e *Engine) ManagerOf(slot uint64) ([20]byte, bool, error) {
	if e == nil || e.state == nil {
		return [20]byte{}, false, ErrNilState
	}
	s, ok, err := e.loadSlot(slot)
	if err != nil || !ok {
		return [20]byte{}, false, err
	}
	return s.Manager, true, nil
}

// SlotSupply returns the tracked value aggregate of slot.
func (e *Engine) SlotSupply(slot uint64) (*big.Int, error) {
	s, err := e.Slot(slot)
	if err != nil {
		return nil, err
	}
	return s.Supply, nil
}

func (e *Engine) BalanceOf(owner [20]byte) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	return common.ListLen[uint64](e.state, ownerTokensKey(owner))
}

func (e *Engine) TokenOfOwnerByIndex(owner [20]byte, index uint64) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	return common.ListAt[uint64](e.state, ownerTokensKey(owner), index)
}

// TokensOfOwner lists every token id held by owner.
func (e *Engine) TokensOfOwner(owner [20]byte) ([]uint64, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return common.ListLoad[uint64](e.state, ownerTokensKey(owner))
}

func (e *Engine) TotalSupply() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	return common.ListLen[uint64](e.state, allTokensKey)
}

func (e *Engine) TokenByIndex(index uint64) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	return common.ListAt[uint64](e.state, allTokensKey, index)
}

func (e *Engine) TokenSupplyInSlot(slot uint64) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	return common.ListLen[uint64](e.state, slotTokensKey(slot))
}

func (e *Engine) TokenInSlotByIndex(slot, index uint64) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	return common.ListAt[uint64](e.state, slotTokensKey(slot), index)
}

func (e *Engine) SlotCount() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	return common.ListLen[uint64](e.state, allSlotsKey)
}

func (e *Engine) SlotByIndex(index uint64) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	return common.ListAt[uint64](e.state, allSlotsKey, index)
}

func (e *Engine) SlotManagerCount() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	return common.ListLen[[20]byte](e.state, slotManagersKey)
}

func (e *Engine) SlotManagerByIndex(index uint64) ([20]byte, error) {
	if e == nil || e.state == nil {
		return [20]byte{}, ErrNilState
	}
	return common.ListAt[[20]byte](e.state, slotManagersKey, index)
}

// SlotManagers lists the registered slot managers in registration order.
func (e *Engine) SlotManagers() ([][20]byte, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return common.ListLoad[[20]byte](e.state, slotManagersKey)
}

// ManagerOfToken returns the manager of the slot tokenID belongs to.
func (e *Engine) ManagerOfToken(tokenID uint64) ([20]byte, error) {
	token, err := e.Token(tokenID)
	if err != nil {
		return [20]byte{}, err
	}
	manager, ok, err := e.ManagerOf(token.Slot)
	if err != nil {
		return [20]byte{}, err
	}
	if !ok {
		return [20]byte{}, ErrSlotNotExists
	}
	return manager, nil
}

// TokensOfOwnerBySlot lists owner's tokens in slot, newest first.
func (e *Engine) TokensOfOwnerBySlot(owner [20]byte, slot uint64) ([]uint64, error) {
	return e.filterOwnerTokens(owner, func(token *Token) (bool, error) {
		return token.Slot == slot, nil
	})
}

// TokensOfOwnerBySlotManager lists owner's tokens whose slot is managed by
// manager, newest first.
func (e *Engine) TokensOfOwnerBySlotManager(owner, manager [20]byte) ([]uint64, error) {
	managers := make(map[uint64]bool)
	return e.filterOwnerTokens(owner, func(token *Token) (bool, error) {
		match, seen := managers[token.Slot]
		if !seen {
			m, ok, err := e.ManagerOf(token.Slot)
			if err != nil {
				return false, err
			}
			match = ok && m == manager
			managers[token.Slot] = match
		}
		return match, nil
	})
}

func (e *Engine) filterOwnerTokens(owner [20]byte, keep func(*Token) (bool, error)) ([]uint64, error) {
	ids, err := e.TokensOfOwner(owner)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		token, err := e.loadToken(ids[i])
		if err != nil {
			return nil, err
		}
		ok, err := keep(token)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, ids[i])
		}
	}
	return out, nil
}
