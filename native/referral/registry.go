package referral

import (
	"fmt"
	"math/big"
	"time"

	"voucherchain/core/events"
	"voucherchain/crypto"
	"voucherchain/native/common"
	"voucherchain/native/ledger"
)

const registryModule = "referral"

// BindTypeDeclaration is the typed-data struct a referral signs to bind.
const BindTypeDeclaration = "Referral(address referrer,uint256 deadline)"

var bindTypeHash = crypto.TypeHash(BindTypeDeclaration)

func bindingKey(referral [20]byte) []byte {
	return []byte(fmt.Sprintf("referral/binding/%x", referral))
}

// Registry issues referrer qualifications as tokens in its own slot and
// records signed referral bindings.
type Registry struct {
	state       common.Store
	address     [20]byte
	slot        uint64
	ledger      Ledger
	roles       common.RoleView
	pauses      common.PauseView
	emitter     events.Emitter
	domain      crypto.TypedDomain
	blockHeight uint64
	nowFn       func() time.Time
}

// NewRegistry constructs a registry managing qualification slot on l. name
// and chainID feed the signing domain.
func NewRegistry(address [20]byte, slot uint64, l Ledger, name string, chainID uint64) *Registry {
	return &Registry{
		address: address,
		slot:    slot,
		ledger:  l,
		emitter: events.NoopEmitter{},
		nowFn:   time.Now,
		domain: crypto.TypedDomain{
			Name:              name,
			Version:           "1",
			ChainID:           chainID,
			VerifyingContract: crypto.AddressFromRaw(address),
		},
	}
}

func (r *Registry) SetState(state common.Store) { r.state = state }

func (r *Registry) SetRoles(roles common.RoleView) { r.roles = roles }

func (r *Registry) SetPauses(p common.PauseView) { r.pauses = p }

func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

func (r *Registry) SetBlockHeight(height uint64) { r.blockHeight = height }

// SetNowFunc overrides the clock used for deadline checks.
func (r *Registry) SetNowFunc(now func() time.Time) {
	if now == nil {
		r.nowFn = time.Now
		return
	}
	r.nowFn = now
}

func (r *Registry) Address() [20]byte { return r.address }

// Slot is the qualification slot id.
func (r *Registry) Slot() uint64 { return r.slot }

// Domain returns the signing domain bound into every bind signature.
func (r *Registry) Domain() crypto.TypedDomain { return r.domain }

func (r *Registry) ready() error {
	if r == nil || r.state == nil || r.ledger == nil {
		return ErrNilState
	}
	return common.Guard(r.pauses, registryModule)
}

// MintQualification issues a qualification token to to.
func (r *Registry) MintQualification(caller, to [20]byte) (uint64, error) {
	if err := r.ready(); err != nil {
		return 0, err
	}
	if r.roles == nil || !r.roles.HasRole(RoleOwner, caller) {
		return 0, ErrUnauthorized
	}
	if to == ([20]byte{}) {
		return 0, ErrZeroAddress
	}
	return r.ledger.Mint(r.address, to, r.slot, big.NewInt(1))
}

// IsReferrer reports whether addr owns a qualification token.
func (r *Registry) IsReferrer(addr [20]byte) bool {
	if r == nil || r.ledger == nil {
		return false
	}
	ids, err := r.ledger.TokensOfOwner(addr)
	if err != nil {
		return false
	}
	for _, id := range ids {
		token, err := r.ledger.Token(id)
		if err == nil && token.Slot == r.slot {
			return true
		}
	}
	return false
}

// BindDigest is the typed-data digest a referral signs to bind to referrer.
func (r *Registry) BindDigest(referrer [20]byte, deadline *big.Int) ([]byte, error) {
	deadlineWord, err := crypto.BigWord(deadline)
	if err != nil {
		return nil, err
	}
	structHash := crypto.HashStruct(bindTypeHash, crypto.AddressWord(crypto.AddressFromRaw(referrer)), deadlineWord)
	return crypto.TypedDataDigest(r.domain, structHash), nil
}

// Bind records the signer of (referrer, deadline) as a referral of referrer.
// Anyone may relay the signature.
func (r *Registry) Bind(referrer [20]byte, deadline *big.Int, v uint8, rs, ss [32]byte) ([20]byte, error) {
	if err := r.ready(); err != nil {
		return [20]byte{}, err
	}
	if deadline == nil || big.NewInt(r.nowFn().Unix()).Cmp(deadline) > 0 {
		return [20]byte{}, ErrBeyondDeadline
	}
	if !r.IsReferrer(referrer) {
		return [20]byte{}, ErrMissingQualification
	}
	digest, err := r.BindDigest(referrer, deadline)
	if err != nil {
		return [20]byte{}, err
	}
	signer, err := crypto.RecoverTypedSigner(digest, v, rs, ss)
	if err != nil {
		return [20]byte{}, err
	}
	referral := signer.Raw()
	if _, bound, err := r.BindingOf(referral); err != nil {
		return [20]byte{}, err
	} else if bound {
		return [20]byte{}, ErrAlreadyBound
	}
	if err := r.state.KVPut(bindingKey(referral), Binding{Referrer: referrer, BindAt: r.blockHeight}); err != nil {
		return [20]byte{}, err
	}
	r.emitter.Emit(events.ReferralBound{Referrer: referrer, Referral: referral, BindAt: r.blockHeight})
	return referral, nil
}

// BindingOf returns the binding of referral, if any.
func (r *Registry) BindingOf(referral [20]byte) (*Binding, bool, error) {
	if r == nil || r.state == nil {
		return nil, false, ErrNilState
	}
	var b Binding
	ok, err := r.state.KVGet(bindingKey(referral), &b)
	if err != nil || !ok {
		return nil, false, err
	}
	return &b, true, nil
}

// BeforeValueTransfer permits qualification mint, burn and whole-token
// transfer only.
func (r *Registry) BeforeValueTransfer(caller [20]byte, t ledger.ValueTransfer) error {
	if r.ledger == nil || caller != r.ledger.Address() {
		return ErrIllegalCaller
	}
	if t.IsMint() || t.IsBurn() || t.IsWholeToken() {
		return nil
	}
	return ErrIllegalTransfer
}

func (r *Registry) AfterValueTransfer(caller [20]byte, _ ledger.ValueTransfer) error {
	if r.ledger == nil || caller != r.ledger.Address() {
		return ErrIllegalCaller
	}
	return nil
}
