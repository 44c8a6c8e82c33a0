package ledger

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/rlp"

	"voucherchain/core/events"
)

type memoryStore struct {
	data map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string][]byte)}
}

func (m *memoryStore) KVPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.data[string(key)] = encoded
	return nil
}

func (m *memoryStore) KVGet(key []byte, out interface{}) (bool, error) {
	encoded, ok := m.data[string(key)]
	if !ok {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(encoded, out); err != nil {
		return false, err
	}
	return true, nil
}

func (m *memoryStore) KVDelete(key []byte) error {
	delete(m.data, string(key))
	return nil
}

type staticRoles map[string][20]byte

func (r staticRoles) HasRole(role string, addr [20]byte) bool {
	holder, ok := r[role]
	return ok && holder == addr
}

type recordingHooks struct {
	engine   *Engine
	before   []ValueTransfer
	after    []ValueTransfer
	preValue map[uint64]*big.Int
	onBefore func(ValueTransfer) error
}

func (h *recordingHooks) BeforeValueTransfer(caller [20]byte, t ValueTransfer) error {
	if caller != h.engine.Address() {
		return errors.New("illegal caller")
	}
	h.before = append(h.before, t)
	if t.FromTokenID != 0 {
		if v, err := h.engine.ValueOf(t.FromTokenID); err == nil {
			h.preValue[t.FromTokenID] = v
		}
	}
	if h.onBefore != nil {
		return h.onBefore(t)
	}
	return nil
}

func (h *recordingHooks) AfterValueTransfer(caller [20]byte, t ValueTransfer) error {
	h.after = append(h.after, t)
	return nil
}

var (
	ledgerAddr = [20]byte{0x1e}
	admin      = [20]byte{0xad}
	manager    = [20]byte{0x01}
	alice      = [20]byte{0xa1}
	bob        = [20]byte{0xb0}
)

func newTestEngine(t *testing.T) (*Engine, *recordingHooks, *events.Buffer) {
	t.Helper()
	engine := NewEngine(ledgerAddr)
	engine.SetState(newMemoryStore())
	engine.SetRoles(staticRoles{RoleAdmin: admin})
	buf := &events.Buffer{}
	engine.SetEmitter(buf)
	hooks := &recordingHooks{engine: engine, preValue: make(map[uint64]*big.Int)}
	engine.RegisterHooks(manager, hooks)
	if err := engine.AddSlotManager(admin, manager, 1); err != nil {
		t.Fatalf("add slot manager: %v", err)
	}
	buf.Reset()
	return engine, hooks, buf
}

func assertSlotAggregate(t *testing.T, e *Engine, slot uint64) {
	t.Helper()
	count, err := e.TokenSupplyInSlot(slot)
	if err != nil {
		t.Fatalf("token supply: %v", err)
	}
	sum := big.NewInt(0)
	for i := uint64(0); i < count; i++ {
		id, err := e.TokenInSlotByIndex(slot, i)
		if err != nil {
			t.Fatalf("token in slot: %v", err)
		}
		v, err := e.ValueOf(id)
		if err != nil {
			t.Fatalf("value of %d: %v", id, err)
		}
		sum.Add(sum, v)
	}
	supply, err := e.SlotSupply(slot)
	if err != nil {
		t.Fatalf("slot supply: %v", err)
	}
	if sum.Cmp(supply) != 0 {
		t.Fatalf("slot %d aggregate %s != sum of tokens %s", slot, supply, sum)
	}
}

func TestSlotManagerAdministration(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	if err := engine.AddSlotManager(alice, bob); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := engine.AddSlotManager(admin, manager); !errors.Is(err, ErrSlotManagerAlreadyExists) {
		t.Fatalf("expected ErrSlotManagerAlreadyExists, got %v", err)
	}
	if err := engine.AddSlotManager(admin, [20]byte{}); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
	if err := engine.ClaimSlot(alice, 2); !errors.Is(err, ErrNotSlotManagerRole) {
		t.Fatalf("expected ErrNotSlotManagerRole, got %v", err)
	}
	if err := engine.AddSlotManager(admin, bob); err != nil {
		t.Fatalf("add bob: %v", err)
	}
	if err := engine.ClaimSlot(bob, 1); !errors.Is(err, ErrSlotAlreadyClaimed) {
		t.Fatalf("expected ErrSlotAlreadyClaimed, got %v", err)
	}
	if err := engine.ClaimSlot(bob, 0); !errors.Is(err, ErrInvalidSlot) {
		t.Fatalf("expected ErrInvalidSlot, got %v", err)
	}
	if err := engine.ClaimSlot(bob, 2); err != nil {
		t.Fatalf("claim: %v", err)
	}
	mgr, ok, err := engine.ManagerOf(2)
	if err != nil || !ok || mgr != bob {
		t.Fatalf("unexpected manager %x ok=%v err=%v", mgr, ok, err)
	}
	if n, _ := engine.SlotCount(); n != 2 {
		t.Fatalf("expected 2 slots, got %d", n)
	}
	if n, _ := engine.SlotManagerCount(); n != 2 {
		t.Fatalf("expected 2 managers, got %d", n)
	}
	if m, _ := engine.SlotManagerByIndex(1); m != bob {
		t.Fatalf("unexpected manager at index 1")
	}
}

func TestMintInvokesHooksAndApprovesManager(t *testing.T) {
	engine, hooks, buf := newTestEngine(t)

	if _, err := engine.Mint(manager, alice, 9, big.NewInt(1)); !errors.Is(err, ErrSlotNotExists) {
		t.Fatalf("expected ErrSlotNotExists, got %v", err)
	}
	if _, err := engine.Mint(bob, alice, 1, big.NewInt(1)); !errors.Is(err, ErrNotSlotManagerOfSlot) {
		t.Fatalf("expected ErrNotSlotManagerOfSlot, got %v", err)
	}
	id, err := engine.Mint(manager, alice, 1, big.NewInt(100))
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if id != 1 {
		t.Fatalf("unexpected token id %d", id)
	}
	if len(hooks.before) != 1 || len(hooks.after) != 1 {
		t.Fatalf("expected one hook pair, got %d/%d", len(hooks.before), len(hooks.after))
	}
	got := hooks.before[0]
	if !got.IsMint() || got.To != alice || got.ToTokenID != id || got.Slot != 1 || got.Value.Int64() != 100 || got.Operator != manager {
		t.Fatalf("unexpected hook payload %+v", got)
	}
	approved, err := engine.GetApproved(id)
	if err != nil || approved != manager {
		t.Fatalf("manager not approved on minted token")
	}
	wantTypes := []string{events.TypeLedgerTransfer, events.TypeLedgerSlotChanged, events.TypeLedgerTransferValue, events.TypeLedgerApproval}
	gotTypes := buf.Types()
	if len(gotTypes) != len(wantTypes) {
		t.Fatalf("unexpected events %v", gotTypes)
	}
	for i := range wantTypes {
		if gotTypes[i] != wantTypes[i] {
			t.Fatalf("event %d: %s, want %s", i, gotTypes[i], wantTypes[i])
		}
	}
	assertSlotAggregate(t, engine, 1)
}

func TestTransferShapes(t *testing.T) {
	engine, hooks, _ := newTestEngine(t)
	id, err := engine.Mint(manager, alice, 1, big.NewInt(100))
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	if _, err := engine.TransferToAddress(alice, id, bob, big.NewInt(101)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if _, err := engine.TransferToAddress(bob, id, bob, big.NewInt(1)); !errors.Is(err, ErrNotOwnerNorApproved) {
		t.Fatalf("expected ErrNotOwnerNorApproved, got %v", err)
	}
	if _, err := engine.TransferToAddress(alice, 42, bob, big.NewInt(1)); !errors.Is(err, ErrInvalidTokenID) {
		t.Fatalf("expected ErrInvalidTokenID, got %v", err)
	}

	bobToken, err := engine.TransferToAddress(alice, id, bob, big.NewInt(30))
	if err != nil {
		t.Fatalf("transfer to address: %v", err)
	}
	if hooks.preValue[id].Int64() != 100 {
		t.Fatalf("before hook observed %s, want pre-state 100", hooks.preValue[id])
	}
	if v, _ := engine.ValueOf(id); v.Int64() != 70 {
		t.Fatalf("source value %s, want 70", v)
	}
	if owner, _ := engine.OwnerOf(bobToken); owner != bob {
		t.Fatalf("new token not owned by bob")
	}

	if err := engine.TransferToToken(alice, id, bobToken, big.NewInt(20)); err != nil {
		t.Fatalf("transfer to token: %v", err)
	}
	if v, _ := engine.ValueOf(bobToken); v.Int64() != 50 {
		t.Fatalf("merged value %s, want 50", v)
	}
	last := hooks.after[len(hooks.after)-1]
	if last.From != alice || last.To != bob || last.FromTokenID != id || last.ToTokenID != bobToken {
		t.Fatalf("unexpected merge payload %+v", last)
	}

	split, err := engine.Split(bob, bobToken, big.NewInt(5))
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if owner, _ := engine.OwnerOf(split); owner != bob {
		t.Fatalf("split token owner mismatch")
	}

	if err := engine.TransferToken(bob, alice, bob, id); !errors.Is(err, ErrNotOwnerNorApproved) {
		t.Fatalf("expected ErrNotOwnerNorApproved, got %v", err)
	}
	if err := engine.TransferToken(alice, bob, alice, id); !errors.Is(err, ErrIncorrectOwner) {
		t.Fatalf("expected ErrIncorrectOwner, got %v", err)
	}
	if err := engine.TransferToken(alice, alice, bob, id); err != nil {
		t.Fatalf("whole token transfer: %v", err)
	}
	whole := hooks.before[len(hooks.before)-1]
	if !whole.IsWholeToken() || whole.Value.Int64() != 50 {
		t.Fatalf("unexpected whole-token payload %+v", whole)
	}
	if approved, _ := engine.GetApproved(id); approved != ([20]byte{}) {
		t.Fatalf("approval must be cleared on ownership transfer")
	}
	if n, _ := engine.BalanceOf(bob); n != 3 {
		t.Fatalf("bob should hold 3 tokens, got %d", n)
	}
	if n, _ := engine.BalanceOf(alice); n != 0 {
		t.Fatalf("alice should hold no tokens, got %d", n)
	}
	assertSlotAggregate(t, engine, 1)
}

func TestBurnRequiresOwnerOrApproval(t *testing.T) {
	engine, hooks, _ := newTestEngine(t)
	id, _ := engine.Mint(manager, alice, 1, big.NewInt(10))

	if err := engine.Burn(bob, id); !errors.Is(err, ErrNotOwnerNorApproved) {
		t.Fatalf("expected ErrNotOwnerNorApproved, got %v", err)
	}
	if err := engine.SetApprovalForAll(alice, bob, true); err != nil {
		t.Fatalf("approval for all: %v", err)
	}
	if err := engine.Burn(bob, id); err != nil {
		t.Fatalf("burn by operator: %v", err)
	}
	burn := hooks.before[len(hooks.before)-1]
	if !burn.IsBurn() || burn.From != alice || burn.FromTokenID != id || burn.Value.Int64() != 10 {
		t.Fatalf("unexpected burn payload %+v", burn)
	}
	if engine.Exists(id) {
		t.Fatalf("burned token still exists")
	}
	if supply, _ := engine.SlotSupply(1); supply.Sign() != 0 {
		t.Fatalf("slot supply %s after burn", supply)
	}
	if n, _ := engine.TotalSupply(); n != 0 {
		t.Fatalf("total supply %d after burn", n)
	}
}

func TestApprovals(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	id, _ := engine.Mint(manager, alice, 1, big.NewInt(10))

	if err := engine.Approve(alice, alice, id); !errors.Is(err, ErrApprovalToCurrentOwner) {
		t.Fatalf("expected ErrApprovalToCurrentOwner, got %v", err)
	}
	if err := engine.Approve(bob, bob, id); !errors.Is(err, ErrNotOwnerNorApproved) {
		t.Fatalf("expected ErrNotOwnerNorApproved, got %v", err)
	}
	if err := engine.Approve(alice, bob, id); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if ok, _ := engine.IsApprovedOrOwner(bob, id); !ok {
		t.Fatalf("bob should be approved")
	}
	if approved, _ := engine.GetApproved(id); approved != bob {
		t.Fatalf("token approval should move to bob")
	}
	if ok, _ := engine.IsApprovedOrOwner(manager, id); !ok {
		t.Fatalf("slot manager keeps custody rights")
	}
	if ok, _ := engine.IsApprovedOrOwner([20]byte{0x99}, id); ok {
		t.Fatalf("stranger must not be approved")
	}
	if err := engine.SetApprovalForAll(alice, alice, true); !errors.Is(err, ErrApproveToCaller) {
		t.Fatalf("expected ErrApproveToCaller, got %v", err)
	}
}

func TestHookReentryIsRejected(t *testing.T) {
	engine, hooks, _ := newTestEngine(t)
	id, _ := engine.Mint(manager, alice, 1, big.NewInt(10))

	hooks.onBefore = func(ValueTransfer) error {
		_, err := engine.Mint(manager, bob, 1, big.NewInt(1))
		return err
	}
	if _, err := engine.TransferToAddress(alice, id, bob, big.NewInt(1)); !errors.Is(err, ErrReentrantCall) {
		t.Fatalf("expected ErrReentrantCall, got %v", err)
	}
	if v, _ := engine.ValueOf(id); v.Int64() != 10 {
		t.Fatalf("rejected transfer mutated value: %s", v)
	}

	hooks.onBefore = func(ValueTransfer) error { return errors.New("vetoed") }
	if err := engine.Burn(alice, id); err == nil || err.Error() != "vetoed" {
		t.Fatalf("expected hook veto, got %v", err)
	}
	if !engine.Exists(id) {
		t.Fatalf("vetoed burn removed token")
	}
}

func TestManagersWithoutHooks(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	if err := engine.AddSlotManager(admin, bob, 7); err != nil {
		t.Fatalf("add: %v", err)
	}
	id, err := engine.Mint(bob, alice, 7, big.NewInt(3))
	if err != nil {
		t.Fatalf("mint without hooks: %v", err)
	}
	if slot, _ := engine.SlotOf(id); slot != 7 {
		t.Fatalf("unexpected slot %d", slot)
	}
	other, _ := engine.Mint(manager, alice, 1, big.NewInt(3))
	if err := engine.TransferToToken(alice, id, other, big.NewInt(1)); !errors.Is(err, ErrSlotMismatch) {
		t.Fatalf("expected ErrSlotMismatch, got %v", err)
	}
	if err := engine.TransferToToken(alice, id, id, big.NewInt(1)); !errors.Is(err, ErrSameToken) {
		t.Fatalf("expected ErrSameToken, got %v", err)
	}
}

func TestOwnerTokensBySlotAndManager(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	if err := engine.ClaimSlot(manager, 2); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := engine.AddSlotManager(admin, bob, 3); err != nil {
		t.Fatalf("add: %v", err)
	}
	mint := func(from [20]byte, slot uint64) uint64 {
		t.Helper()
		id, err := engine.Mint(from, alice, slot, big.NewInt(1))
		if err != nil {
			t.Fatalf("mint in slot %d: %v", slot, err)
		}
		return id
	}
	t1 := mint(manager, 1)
	t2 := mint(manager, 1)
	t3 := mint(manager, 2)
	t4 := mint(bob, 3)

	assertIDs := func(name string, got []uint64, err error, want ...uint64) {
		t.Helper()
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if len(got) != len(want) {
			t.Fatalf("%s: got %v, want %v", name, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("%s: got %v, want %v", name, got, want)
			}
		}
	}
	got, err := engine.TokensOfOwnerBySlot(alice, 1)
	assertIDs("slot 1", got, err, t2, t1)
	got, err = engine.TokensOfOwnerBySlot(alice, 2)
	assertIDs("slot 2", got, err, t3)
	got, err = engine.TokensOfOwnerBySlot(bob, 1)
	assertIDs("bob slot 1", got, err)
	got, err = engine.TokensOfOwnerBySlotManager(alice, manager)
	assertIDs("manager", got, err, t3, t2, t1)
	got, err = engine.TokensOfOwnerBySlotManager(alice, bob)
	assertIDs("bob", got, err, t4)

	if m, err := engine.ManagerOfToken(t4); err != nil || m != bob {
		t.Fatalf("manager of token %d: %x %v", t4, m, err)
	}
	if _, err := engine.ManagerOfToken(99); err == nil {
		t.Fatalf("expected error for missing token")
	}
	managers, err := engine.SlotManagers()
	if err != nil {
		t.Fatalf("slot managers: %v", err)
	}
	if len(managers) != 2 || managers[0] != manager || managers[1] != bob {
		t.Fatalf("unexpected managers %x", managers)
	}
}
