package ledger

import (
	"fmt"
	"math/big"

	"voucherchain/core/events"
	"voucherchain/native/common"
)

const moduleName = "ledger"

// RoleAdmin may register slot managers.
const RoleAdmin = "ledger.admin"

var (
	nextTokenIDKey  = []byte("ledger/next-token-id")
	allTokensKey    = []byte("ledger/tokens")
	allSlotsKey     = []byte("ledger/slots")
	slotManagersKey = []byte("ledger/slot-managers")
)

func tokenKey(id uint64) []byte { return []byte(fmt.Sprintf("ledger/token/%d", id)) }

func slotKey(slot uint64) []byte { return []byte(fmt.Sprintf("ledger/slot/%d", slot)) }

func slotTokensKey(slot uint64) []byte {
	return []byte(fmt.Sprintf("ledger/slot/%d/tokens", slot))
}

func ownerTokensKey(owner [20]byte) []byte {
	return []byte(fmt.Sprintf("ledger/owner/%x/tokens", owner))
}

func managerKey(manager [20]byte) []byte {
	return []byte(fmt.Sprintf("ledger/slot-manager/%x", manager))
}

func operatorKey(owner, operator [20]byte) []byte {
	return []byte(fmt.Sprintf("ledger/operator/%x/%x", owner, operator))
}

// Engine is the semi-fungible value ledger. Tokens live in slots claimed by
// slot managers; every value movement is bracketed by the managing slot's
// before/after hooks.
type Engine struct {
	state   common.Store
	address [20]byte
	roles   common.RoleView
	pauses  common.PauseView
	emitter events.Emitter
	hooks   map[[20]byte]SlotManager
	// inBefore counts nested before-hook dispatches. Mutations are refused
	// while it is non-zero so hooks only ever observe consistent pre-state.
	inBefore int
}

// NewEngine constructs a ledger whose hook calls are attributed to address.
func NewEngine(address [20]byte) *Engine {
	return &Engine{
		address: address,
		emitter: events.NoopEmitter{},
		hooks:   make(map[[20]byte]SlotManager),
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state common.Store) { e.state = state }

// SetRoles configures the capability source used for admin checks.
func (e *Engine) SetRoles(roles common.RoleView) { e.roles = roles }

func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Address returns the identity the ledger presents to slot managers.
func (e *Engine) Address() [20]byte { return e.address }

// RegisterHooks attaches the callback implementation of a slot manager.
// Managers without hooks may still mint and transfer.
func (e *Engine) RegisterHooks(manager [20]byte, hooks SlotManager) {
	if hooks == nil {
		delete(e.hooks, manager)
		return
	}
	e.hooks[manager] = hooks
}

func (e *Engine) emit(evt events.Event) {
	if e.emitter != nil {
		e.emitter.Emit(evt)
	}
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if e.inBefore > 0 {
		return ErrReentrantCall
	}
	return common.Guard(e.pauses, moduleName)
}

// AddSlotManager grants the slot manager role and optionally claims slots on
// the manager's behalf.
func (e *Engine) AddSlotManager(caller, manager [20]byte, slots ...uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if e.roles == nil || !e.roles.HasRole(RoleAdmin, caller) {
		return ErrUnauthorized
	}
	if manager == ([20]byte{}) {
		return ErrZeroAddress
	}
	if e.IsSlotManager(manager) {
		return ErrSlotManagerAlreadyExists
	}
	if err := e.state.KVPut(managerKey(manager), true); err != nil {
		return err
	}
	if err := common.ListAppend(e.state, slotManagersKey, manager); err != nil {
		return err
	}
	e.emit(events.AddedSlotManager{Manager: manager, Slots: append([]uint64(nil), slots...)})
	for _, slot := range slots {
		if err := e.claim(manager, slot); err != nil {
			return err
		}
	}
	return nil
}

// IsSlotManager reports whether addr holds the slot manager role.
func (e *Engine) IsSlotManager(addr [20]byte) bool {
	if e == nil || e.state == nil {
		return false
	}
	var ok bool
	found, err := e.state.KVGet(managerKey(addr), &ok)
	return err == nil && found && ok
}

// ClaimSlot binds an unclaimed slot to the calling manager.
func (e *Engine) ClaimSlot(caller [20]byte, slot uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if !e.IsSlotManager(caller) {
		return ErrNotSlotManagerRole
	}
	return e.claim(caller, slot)
}

func (e *Engine) claim(manager [20]byte, slot uint64) error {
	if slot == 0 {
		return ErrInvalidSlot
	}
	if _, exists, err := e.loadSlot(slot); err != nil {
		return err
	} else if exists {
		return ErrSlotAlreadyClaimed
	}
	if err := e.storeSlot(&Slot{ID: slot, Manager: manager, Supply: big.NewInt(0)}); err != nil {
		return err
	}
	if err := common.ListAppend(e.state, allSlotsKey, slot); err != nil {
		return err
	}
	e.emit(events.SlotClaimed{Slot: slot, Manager: manager})
	return nil
}

func (e *Engine) loadSlot(slot uint64) (*Slot, bool, error) {
	var stored storedSlot
	ok, err := e.state.KVGet(slotKey(slot), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &Slot{ID: slot, Manager: stored.Manager, Supply: common.CloneBig(stored.Supply)}, true, nil
}

func (e *Engine) storeSlot(s *Slot) error {
	return e.state.KVPut(slotKey(s.ID), storedSlot{Manager: s.Manager, Supply: common.CloneBig(s.Supply)})
}

func (e *Engine) adjustSupply(slot uint64, delta *big.Int) error {
	s, ok, err := e.loadSlot(slot)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSlotNotExists
	}
	s.Supply.Add(s.Supply, delta)
	if s.Supply.Sign() < 0 {
		return fmt.Errorf("%w: slot %d supply underflow", ErrInsufficientBalance, slot)
	}
	return e.storeSlot(s)
}

func (e *Engine) loadToken(id uint64) (*Token, error) {
	if id == 0 {
		return nil, ErrInvalidTokenID
	}
	var stored storedToken
	ok, err := e.state.KVGet(tokenKey(id), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidTokenID
	}
	return &Token{
		ID:       id,
		Owner:    stored.Owner,
		Slot:     stored.Slot,
		Value:    common.CloneBig(stored.Value),
		Approved: stored.Approved,
	}, nil
}

func (e *Engine) storeToken(t *Token) error {
	return e.state.KVPut(tokenKey(t.ID), storedToken{
		Owner:    t.Owner,
		Slot:     t.Slot,
		Value:    common.CloneBig(t.Value),
		Approved: t.Approved,
	})
}

func (e *Engine) allocateTokenID() (uint64, error) {
	var next uint64
	if _, err := e.state.KVGet(nextTokenIDKey, &next); err != nil {
		return 0, err
	}
	if next == 0 {
		next = 1
	}
	if err := e.state.KVPut(nextTokenIDKey, next+1); err != nil {
		return 0, err
	}
	return next, nil
}

func (e *Engine) hooksFor(slot uint64) (SlotManager, error) {
	s, ok, err := e.loadSlot(slot)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSlotNotExists
	}
	return e.hooks[s.Manager], nil
}

func (e *Engine) beforeTransfer(t ValueTransfer) error {
	hooks, err := e.hooksFor(t.Slot)
	if err != nil || hooks == nil {
		return err
	}
	e.inBefore++
	defer func() { e.inBefore-- }()
	return hooks.BeforeValueTransfer(e.address, t)
}

func (e *Engine) afterTransfer(t ValueTransfer) error {
	hooks, err := e.hooksFor(t.Slot)
	if err != nil || hooks == nil {
		return err
	}
	return hooks.AfterValueTransfer(e.address, t)
}
