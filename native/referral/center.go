package referral

import (
	"fmt"
	"math/big"

	"voucherchain/core/events"
	"voucherchain/native/common"
	"voucherchain/native/ledger"
)

const centerModule = "referral.center"

var consumersKey = []byte("referral/center/consumers")

func consumerKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("referral/center/consumer/%x", addr))
}

func recordKey(referrer [20]byte, productID uint64) []byte {
	return []byte(fmt.Sprintf("referral/center/record/%x/%d", referrer, productID))
}

func referredProductsKey(referrer [20]byte) []byte {
	return []byte(fmt.Sprintf("referral/center/referrer/%x/products", referrer))
}

func distributedKey(referrer [20]byte) []byte {
	return []byte(fmt.Sprintf("referral/center/distributed/%x", referrer))
}

func trackedKey(tokenID uint64) []byte {
	return []byte(fmt.Sprintf("referral/center/tracked/%d", tokenID))
}

// Center settles referrer earnings as the vouchers of bound referrals move.
// Every consumer forwards its slot's value movements from the ledger's
// before hook, so token values read here are pre-movement.
type Center struct {
	state       common.Store
	address     [20]byte
	slot        uint64
	ledger      Ledger
	bindings    Bindings
	roles       common.RoleView
	pauses      common.PauseView
	emitter     events.Emitter
	consumers   map[[20]byte]Consumer
	blockHeight uint64
}

// NewCenter constructs a settlement center minting earnings vouchers into
// slot.
func NewCenter(address [20]byte, slot uint64, l Ledger, bindings Bindings) *Center {
	return &Center{
		address:   address,
		slot:      slot,
		ledger:    l,
		bindings:  bindings,
		emitter:   events.NoopEmitter{},
		consumers: make(map[[20]byte]Consumer),
	}
}

func (c *Center) SetState(state common.Store) { c.state = state }

func (c *Center) SetRoles(roles common.RoleView) { c.roles = roles }

func (c *Center) SetPauses(p common.PauseView) { c.pauses = p }

func (c *Center) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		c.emitter = events.NoopEmitter{}
		return
	}
	c.emitter = emitter
}

func (c *Center) SetBlockHeight(height uint64) { c.blockHeight = height }

func (c *Center) Address() [20]byte { return c.address }

// Slot is the earnings voucher slot id.
func (c *Center) Slot() uint64 { return c.slot }

// AttachConsumer wires the in-process handle of a consumer engine. The
// consumer must also be registered through AddConsumer before its
// notifications are accepted.
func (c *Center) AttachConsumer(addr [20]byte, consumer Consumer) {
	if consumer == nil {
		delete(c.consumers, addr)
		return
	}
	c.consumers[addr] = consumer
}

func (c *Center) ready() error {
	if c == nil || c.state == nil || c.ledger == nil || c.bindings == nil {
		return ErrNilState
	}
	return common.Guard(c.pauses, centerModule)
}

// AddConsumer registers a product engine and the share of its interest that
// flows to referrers, scaled by RatioMantissa.
func (c *Center) AddConsumer(caller, consumer [20]byte, ratio *big.Int) error {
	if err := c.ready(); err != nil {
		return err
	}
	if c.roles == nil || !c.roles.HasRole(RoleOwner, caller) {
		return ErrUnauthorized
	}
	if consumer == ([20]byte{}) {
		return ErrZeroAddress
	}
	if ratio == nil || ratio.Sign() < 0 || ratio.Cmp(RatioMantissa) > 0 {
		return ErrIllegalRatio
	}
	if _, ok, err := c.consumerRatio(consumer); err != nil {
		return err
	} else if ok {
		return ErrConsumerExists
	}
	if err := c.state.KVPut(consumerKey(consumer), new(big.Int).Set(ratio)); err != nil {
		return err
	}
	if err := common.ListAppend(c.state, consumersKey, consumer); err != nil {
		return err
	}
	c.emitter.Emit(events.AddedConsumer{Consumer: consumer, Ratio: new(big.Int).Set(ratio)})
	return nil
}

func (c *Center) consumerRatio(addr [20]byte) (*big.Int, bool, error) {
	ratio := new(big.Int)
	ok, err := c.state.KVGet(consumerKey(addr), ratio)
	if err != nil || !ok {
		return nil, false, err
	}
	return ratio, true, nil
}

// settler bundles what one product needs to settle: the consumer's interest
// formula and its earnings ratio.
type settler struct {
	productID uint64
	consumer  Consumer
	ratio     *big.Int
}

func (s settler) interest(equities *big.Int, at uint64) (*big.Int, error) {
	return s.consumer.EquitiesInterest(s.productID, equities, at)
}

func (s settler) earnings(interest *big.Int) *big.Int {
	out := new(big.Int).Mul(interest, s.ratio)
	return out.Quo(out, RatioMantissa)
}

func (c *Center) settlerFor(consumer [20]byte, productID uint64) (settler, error) {
	ratio, ok, err := c.consumerRatio(consumer)
	if err != nil {
		return settler{}, err
	}
	handle := c.consumers[consumer]
	if !ok || handle == nil {
		return settler{}, ErrIllegalConsumer
	}
	return settler{productID: productID, consumer: handle, ratio: ratio}, nil
}

// settlerForProduct resolves the consumer managing a product's slot.
func (c *Center) settlerForProduct(productID uint64) (settler, error) {
	manager, ok, err := c.ledger.ManagerOf(productID)
	if err != nil {
		return settler{}, err
	}
	if !ok {
		return settler{}, ErrIllegalProduct
	}
	return c.settlerFor(manager, productID)
}

// OnEquitiesTransfer settles the outgoing and incoming sides of a value
// movement inside a consumer's product slot.
func (c *Center) OnEquitiesTransfer(caller [20]byte, t ledger.ValueTransfer) error {
	if err := c.ready(); err != nil {
		return err
	}
	manager, ok, err := c.ledger.ManagerOf(t.Slot)
	if err != nil {
		return err
	}
	if !ok || manager != caller {
		return ErrIllegalProduct
	}
	s, err := c.settlerFor(caller, t.Slot)
	if err != nil {
		return err
	}
	if !t.IsMint() {
		if err := c.settleOutgoing(s, t); err != nil {
			return err
		}
	}
	if !t.IsBurn() {
		if err := c.settleIncoming(s, t); err != nil {
			return err
		}
	}
	return nil
}

func (c *Center) settleOutgoing(s settler, t ledger.ValueTransfer) error {
	binding, bound, err := c.bindings.BindingOf(t.From)
	if err != nil {
		return err
	}
	if bound {
		tracked, err := c.IsTracked(t.FromTokenID)
		if err != nil {
			return err
		}
		if !tracked {
			if err := c.trackExisting(s, binding, t.FromTokenID); err != nil {
				return err
			}
		}
		if err := c.settleOut(s, binding.Referrer, t.Value); err != nil {
			return err
		}
	}
	if t.IsBurn() || t.IsWholeToken() {
		return c.state.KVDelete(trackedKey(t.FromTokenID))
	}
	return nil
}

func (c *Center) settleIncoming(s settler, t ledger.ValueTransfer) error {
	binding, bound, err := c.bindings.BindingOf(t.To)
	if err != nil || !bound {
		return err
	}
	value := common.CloneBig(t.Value)
	deduction, err := s.interest(t.Value, c.blockHeight)
	if err != nil {
		return err
	}
	// An untracked receiving token joins the record in the same settlement,
	// its existing value deducted at the binding block.
	if !t.IsMint() && !t.IsWholeToken() && c.ledger.Exists(t.ToTokenID) {
		tracked, err := c.IsTracked(t.ToTokenID)
		if err != nil {
			return err
		}
		if !tracked {
			existing, existingDeduction, err := c.untrackedShare(s, binding, t.ToTokenID)
			if err != nil {
				return err
			}
			value.Add(value, existing)
			deduction.Add(deduction, existingDeduction)
		}
	}
	if err := c.settleIn(s, binding.Referrer, value, deduction); err != nil {
		return err
	}
	return c.state.KVPut(trackedKey(t.ToTokenID), true)
}

// untrackedShare is the value of a voucher held before tracking began and
// the interest it earned before the binding.
func (c *Center) untrackedShare(s settler, binding *Binding, tokenID uint64) (*big.Int, *big.Int, error) {
	token, err := c.ledger.Token(tokenID)
	if err != nil {
		return nil, nil, err
	}
	deduction, err := s.interest(token.Value, binding.BindAt)
	if err != nil {
		return nil, nil, err
	}
	return token.Value, deduction, nil
}

// trackExisting attributes a voucher the referral already holds, excluding
// the interest it earned before the binding.
func (c *Center) trackExisting(s settler, binding *Binding, tokenID uint64) error {
	value, deduction, err := c.untrackedShare(s, binding, tokenID)
	if err != nil {
		return err
	}
	if err := c.settleIn(s, binding.Referrer, value, deduction); err != nil {
		return err
	}
	return c.state.KVPut(trackedKey(tokenID), true)
}

func (c *Center) settleOut(s settler, referrer [20]byte, value *big.Int) error {
	rec, ok, err := c.loadRecord(referrer, s.productID)
	if err != nil || !ok {
		return err
	}
	valueInterest, err := s.interest(value, c.blockHeight)
	if err != nil {
		return err
	}
	oldEquities := new(big.Int).Set(rec.TotalEquities)
	oldSettled := new(big.Int).Set(rec.SettledInterest)
	if valueInterest.Cmp(rec.SettledInterest) <= 0 {
		rec.SettledInterest.Sub(rec.SettledInterest, valueInterest)
	} else {
		excess := new(big.Int).Sub(valueInterest, rec.SettledInterest)
		if err := c.distribute(referrer, s.earnings(excess)); err != nil {
			return err
		}
		rec.SettledInterest.SetInt64(0)
	}
	rec.TotalEquities = common.SubFloor(rec.TotalEquities, value)
	c.emitter.Emit(events.Settlement{
		Referrer:           referrer,
		ProductID:          s.productID,
		OldTotalEquities:   oldEquities,
		NewTotalEquities:   new(big.Int).Set(rec.TotalEquities),
		OldSettledInterest: oldSettled,
		NewSettledInterest: new(big.Int).Set(rec.SettledInterest),
	})
	if rec.TotalEquities.Sign() == 0 {
		if err := c.state.KVDelete(recordKey(referrer, s.productID)); err != nil {
			return err
		}
		_, err := common.ListRemove(c.state, referredProductsKey(referrer), s.productID)
		return err
	}
	return c.storeRecord(referrer, s.productID, rec)
}

func (c *Center) settleIn(s settler, referrer [20]byte, value, deduction *big.Int) error {
	if !common.IsPositive(value) {
		return nil
	}
	rec, ok, err := c.loadRecord(referrer, s.productID)
	if err != nil {
		return err
	}
	if !ok {
		rec = &Record{TotalEquities: big.NewInt(0), SettledInterest: big.NewInt(0)}
		if err := common.ListAppend(c.state, referredProductsKey(referrer), s.productID); err != nil {
			return err
		}
	}
	oldEquities := new(big.Int).Set(rec.TotalEquities)
	oldSettled := new(big.Int).Set(rec.SettledInterest)
	rec.TotalEquities.Add(rec.TotalEquities, value)
	rec.SettledInterest.Add(rec.SettledInterest, deduction)
	c.emitter.Emit(events.Settlement{
		Referrer:           referrer,
		ProductID:          s.productID,
		OldTotalEquities:   oldEquities,
		NewTotalEquities:   new(big.Int).Set(rec.TotalEquities),
		OldSettledInterest: oldSettled,
		NewSettledInterest: new(big.Int).Set(rec.SettledInterest),
	})
	return c.storeRecord(referrer, s.productID, rec)
}

func (c *Center) distribute(referrer [20]byte, earnings *big.Int) error {
	if earnings.Sign() == 0 {
		return nil
	}
	old, err := c.DistributedEarnings(referrer)
	if err != nil {
		return err
	}
	updated := new(big.Int).Add(old, earnings)
	if err := c.state.KVPut(distributedKey(referrer), updated); err != nil {
		return err
	}
	c.emitter.Emit(events.DistributedEarningsChanged{Referrer: referrer, Old: old, New: new(big.Int).Set(updated)})
	return nil
}

// TrackVoucher attributes a voucher that a bound referral acquired outside
// the settlement hooks, such as one held before binding.
func (c *Center) TrackVoucher(tokenID uint64) error {
	if err := c.ready(); err != nil {
		return err
	}
	token, err := c.ledger.Token(tokenID)
	if err != nil {
		return err
	}
	binding, bound, err := c.bindings.BindingOf(token.Owner)
	if err != nil {
		return err
	}
	if !bound {
		return ErrReferralNotExists
	}
	s, err := c.settlerForProduct(token.Slot)
	if err != nil {
		return ErrIllegalConsumer
	}
	tracked, err := c.IsTracked(tokenID)
	if err != nil {
		return err
	}
	if tracked {
		return ErrAlreadyTracked
	}
	return c.trackExisting(s, binding, tokenID)
}

func (c *Center) loadRecord(referrer [20]byte, productID uint64) (*Record, bool, error) {
	var stored storedRecord
	ok, err := c.state.KVGet(recordKey(referrer, productID), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &Record{
		TotalEquities:   common.CloneBig(stored.TotalEquities),
		SettledInterest: common.CloneBig(stored.SettledInterest),
	}, true, nil
}

func (c *Center) storeRecord(referrer [20]byte, productID uint64, rec *Record) error {
	return c.state.KVPut(recordKey(referrer, productID), storedRecord{
		TotalEquities:   common.CloneBig(rec.TotalEquities),
		SettledInterest: common.CloneBig(rec.SettledInterest),
	})
}
