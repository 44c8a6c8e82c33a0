package product

import (
	"fmt"
	"math/big"

	"voucherchain/core/events"
	"voucherchain/native/common"
	"voucherchain/native/interest"
)

const moduleName = "product"

const (
	// RoleOperator may create products.
	RoleOperator = "product.operator"
	// RoleCashier may lend out raised principal once a product is online.
	RoleCashier = "product.cashier"
)

var productIDsKey = []byte("product/ids")

func productKey(id uint64) []byte { return []byte(fmt.Sprintf("product/%d", id)) }

func subscriptionKey(id uint64, subscriber [20]byte) []byte {
	return []byte(fmt.Sprintf("product/%d/subscription/%x", id, subscriber))
}

func subscribersKey(id uint64) []byte {
	return []byte(fmt.Sprintf("product/%d/subscribers", id))
}

// Engine manages fixed-term subscription products. It owns one ledger slot
// per product and keeps subscriber principal in custody at its own address.
type Engine struct {
	state       common.Store
	address     [20]byte
	ledger      Ledger
	bank        Bank
	roles       common.RoleView
	pauses      common.PauseView
	emitter     events.Emitter
	observer    EquitiesObserver
	strategies  map[string]interest.Strategy
	blockHeight uint64
}

// NewEngine constructs a product engine acting as address on the ledger. The
// tiered strategy is registered by default.
func NewEngine(address [20]byte, l Ledger, bank Bank) *Engine {
	e := &Engine{
		address:    address,
		ledger:     l,
		bank:       bank,
		emitter:    events.NoopEmitter{},
		strategies: make(map[string]interest.Strategy),
	}
	e.RegisterStrategy(interest.NewTiered())
	return e
}

func (e *Engine) SetState(state common.Store) { e.state = state }

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

// SetBlockHeight updates the block used for stage and interest evaluation.
func (e *Engine) SetBlockHeight(height uint64) { e.blockHeight = height }

func (e *Engine) BlockHeight() uint64 { return e.blockHeight }

// SetObserver registers the consumer of equities transfers. Passing nil
// disables forwarding.
func (e *Engine) SetObserver(observer EquitiesObserver) { e.observer = observer }

// RegisterStrategy makes an interest strategy available under its name.
func (e *Engine) RegisterStrategy(s interest.Strategy) {
	if s == nil {
		return
	}
	e.strategies[s.Name()] = s
}

func (e *Engine) Address() [20]byte { return e.address }

func (e *Engine) emit(evt events.Event) {
	if e.emitter != nil {
		e.emitter.Emit(evt)
	}
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil || e.ledger == nil {
		return ErrNilState
	}
	return common.Guard(e.pauses, moduleName)
}

func (e *Engine) hasRole(role string, addr [20]byte) bool {
	return e.roles != nil && e.roles.HasRole(role, addr)
}

func (e *Engine) validate(params Params) error {
	if !common.IsPositive(params.TotalQuota) {
		return ErrBadTotalQuota
	}
	if params.MinSubscriptionAmount == nil || params.MinSubscriptionAmount.Sign() < 0 ||
		params.MinSubscriptionAmount.Cmp(params.TotalQuota) > 0 {
		return ErrBadMinSubscriptionAmount
	}
	if params.BeginSubscriptionBlock <= e.blockHeight {
		return ErrBadBeginSubscriptionBlock
	}
	if params.EndSubscriptionBlock <= params.BeginSubscriptionBlock {
		return ErrBadEndSubscriptionBlock
	}
	window := params.EndSubscriptionBlock - params.BeginSubscriptionBlock
	if window < MinPeriod || window > MaxPeriod {
		return ErrBadEndSubscriptionBlock
	}
	if params.InterestRate == "" {
		return fmt.Errorf("%w: interest rate strategy", ErrZeroAddress)
	}
	if _, ok := e.strategies[params.InterestRate]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStrategy, params.InterestRate)
	}
	return nil
}

// Create registers product id and claims the matching ledger slot.
func (e *Engine) Create(caller [20]byte, id uint64, params Params) error {
	if err := e.ready(); err != nil {
		return err
	}
	if !e.hasRole(RoleOperator, caller) {
		return ErrUnauthorized
	}
	if err := e.validate(params); err != nil {
		return err
	}
	if _, ok, err := e.loadProduct(id); err != nil {
		return err
	} else if ok {
		return ErrDuplicatedProductID
	}
	manager, claimed, err := e.ledger.ManagerOf(id)
	if err != nil {
		return err
	}
	switch {
	case claimed && manager != e.address:
		return ErrNotSlotManagerOfSlot
	case !claimed:
		if err := e.ledger.ClaimSlot(e.address, id); err != nil {
			return err
		}
	}
	p := &Product{
		ID:          id,
		Params:      params.Clone(),
		Operator:    caller,
		FundsRaised: big.NewInt(0),
		FundsLoaned: big.NewInt(0),
	}
	if err := e.storeProduct(p); err != nil {
		return err
	}
	if err := common.ListAppend(e.state, productIDsKey, id); err != nil {
		return err
	}
	e.emit(events.ProductCreated{
		ProductID:              id,
		Operator:               caller,
		TotalQuota:             common.CloneBig(params.TotalQuota),
		MinSubscriptionAmount:  common.CloneBig(params.MinSubscriptionAmount),
		BeginSubscriptionBlock: params.BeginSubscriptionBlock,
		EndSubscriptionBlock:   params.EndSubscriptionBlock,
		MinHoldingDuration:     params.MinHoldingDuration,
		InterestRate:           params.InterestRate,
		CashPool:               params.CashPool,
	})
	return nil
}

// Subscribe moves value from caller into custody and reissues the caller's
// voucher with the merged position.
func (e *Engine) Subscribe(caller [20]byte, id uint64, value *big.Int) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	p, err := e.requireProduct(id)
	if err != nil {
		return 0, err
	}
	if e.stageOf(p) != StageSubscription {
		return 0, ErrInvalidProductStage
	}
	amount := common.CloneBig(value)
	if amount.Cmp(p.Params.MinSubscriptionAmount) < 0 || amount.Sign() <= 0 {
		return 0, ErrLessThanMinSubscriptionAmount
	}
	raised := new(big.Int).Add(p.FundsRaised, amount)
	if raised.Cmp(p.Params.TotalQuota) > 0 {
		return 0, ErrExceedsTotalQuota
	}
	if err := e.bank.Transfer(caller, e.address, amount); err != nil {
		return 0, err
	}

	sub, exists, err := e.loadSubscription(id, caller)
	if err != nil {
		return 0, err
	}
	voucherValue := new(big.Int).Set(amount)
	if exists {
		token, err := e.ledger.Token(sub.VoucherID)
		if err != nil {
			return 0, err
		}
		accrued, err := e.subscriptionInterest(p, sub, token.Value)
		if err != nil {
			return 0, err
		}
		if err := e.ledger.Burn(e.address, sub.VoucherID); err != nil {
			return 0, err
		}
		voucherValue.Add(voucherValue, token.Value)
		voucherValue.Add(voucherValue, accrued)
	} else {
		sub = &Subscription{ProductID: id, Subscriber: caller, Principal: big.NewInt(0)}
		if err := common.ListAppend(e.state, subscribersKey(id), caller); err != nil {
			return 0, err
		}
	}
	voucherID, err := e.ledger.Mint(e.address, caller, id, voucherValue)
	if err != nil {
		return 0, err
	}
	sub.Principal.Add(sub.Principal, amount)
	sub.AtBlock = e.blockHeight
	sub.VoucherID = voucherID
	if err := e.storeSubscription(sub); err != nil {
		return 0, err
	}
	p.FundsRaised = raised
	if err := e.storeProduct(p); err != nil {
		return 0, err
	}
	e.emit(events.Subscribe{
		ProductID:  id,
		Subscriber: caller,
		Principal:  new(big.Int).Set(sub.Principal),
		VoucherID:  voucherID,
	})
	return voucherID, nil
}

// CancelSubscription returns amount of raw principal to receiver while the
// window is still open. A remainder below the minimum is rejected.
func (e *Engine) CancelSubscription(caller [20]byte, id uint64, amount *big.Int, receiver [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	p, err := e.requireProduct(id)
	if err != nil {
		return err
	}
	if e.stageOf(p) != StageSubscription {
		return ErrInvalidProductStage
	}
	sub, exists, err := e.loadSubscription(id, caller)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotSubscriber
	}
	if receiver == ([20]byte{}) {
		return ErrZeroAddress
	}
	value := common.CloneBig(amount)
	if value.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if value.Cmp(sub.Principal) > 0 {
		return ErrInsufficientBalance
	}
	remainder := new(big.Int).Sub(sub.Principal, value)
	if remainder.Sign() > 0 && remainder.Cmp(p.Params.MinSubscriptionAmount) < 0 {
		return ErrLessThanMinSubscriptionAmount
	}
	token, err := e.ledger.Token(sub.VoucherID)
	if err != nil {
		return err
	}
	if token.Value.Cmp(value) < 0 {
		return ErrInsufficientBalance
	}
	if err := e.ledger.Burn(e.address, sub.VoucherID); err != nil {
		return err
	}
	e.emit(events.CancelSubscription{
		ProductID:  id,
		Subscriber: caller,
		Principal:  new(big.Int).Set(sub.Principal),
		VoucherID:  sub.VoucherID,
	})
	if remainder.Sign() == 0 {
		if err := e.state.KVDelete(subscriptionKey(id, caller)); err != nil {
			return err
		}
		if _, err := common.ListRemove(e.state, subscribersKey(id), caller); err != nil {
			return err
		}
	} else {
		voucherID, err := e.ledger.Mint(e.address, caller, id, new(big.Int).Sub(token.Value, value))
		if err != nil {
			return err
		}
		sub.Principal = remainder
		sub.AtBlock = e.blockHeight
		sub.VoucherID = voucherID
		if err := e.storeSubscription(sub); err != nil {
			return err
		}
		e.emit(events.Subscribe{
			ProductID:  id,
			Subscriber: caller,
			Principal:  new(big.Int).Set(remainder),
			VoucherID:  voucherID,
		})
	}
	p.FundsRaised.Sub(p.FundsRaised, value)
	if err := e.storeProduct(p); err != nil {
		return err
	}
	return e.bank.Transfer(e.address, receiver, value)
}

// Loan pays raised principal out to receiver once the product is online.
func (e *Engine) Loan(caller [20]byte, id uint64, amount *big.Int, receiver [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	if !e.hasRole(RoleCashier, caller) {
		return ErrUnauthorized
	}
	p, err := e.requireProduct(id)
	if err != nil {
		return err
	}
	if e.stageOf(p) != StageOnline {
		return ErrInvalidProductStage
	}
	if receiver == ([20]byte{}) {
		return ErrZeroAddress
	}
	value := common.CloneBig(amount)
	if value.Sign() <= 0 {
		return ErrInvalidAmount
	}
	available := new(big.Int).Sub(p.FundsRaised, p.FundsLoaned)
	if value.Cmp(available) > 0 {
		return ErrInsufficientBalance
	}
	if err := e.bank.Transfer(e.address, receiver, value); err != nil {
		return err
	}
	p.FundsLoaned.Add(p.FundsLoaned, value)
	if err := e.storeProduct(p); err != nil {
		return err
	}
	e.emit(events.OfferLoans{ProductID: id, Amount: new(big.Int).Set(value), Receiver: receiver, Cashier: caller})
	return nil
}

func (e *Engine) stageOf(p *Product) Stage {
	return StageAt(e.blockHeight, p.Params.BeginSubscriptionBlock, p.Params.EndSubscriptionBlock)
}

func (e *Engine) strategyFor(p *Product) (interest.Strategy, error) {
	s, ok := e.strategies[p.Params.InterestRate]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, p.Params.InterestRate)
	}
	return s, nil
}

// equitiesInterestAt is the single interest formula shared by vouchers and
// referral settlement: accrual runs from the window end to at.
func (e *Engine) equitiesInterestAt(p *Product, equities *big.Int, at uint64) (*big.Int, error) {
	end := p.Params.EndSubscriptionBlock
	if at <= end || !common.IsPositive(equities) {
		return big.NewInt(0), nil
	}
	strategy, err := e.strategyFor(p)
	if err != nil {
		return nil, err
	}
	return strategy.Calculate(equities, p.Params.BeginSubscriptionBlock, end, end, at)
}

// subscriptionInterest is what an existing position earned inside the window
// since it was last reissued. It compounds into the voucher on resubscribe.
func (e *Engine) subscriptionInterest(p *Product, sub *Subscription, value *big.Int) (*big.Int, error) {
	if sub.AtBlock >= e.blockHeight || !common.IsPositive(value) {
		return big.NewInt(0), nil
	}
	strategy, err := e.strategyFor(p)
	if err != nil {
		return nil, err
	}
	return strategy.Calculate(value, p.Params.BeginSubscriptionBlock, p.Params.EndSubscriptionBlock, sub.AtBlock, e.blockHeight)
}

func (e *Engine) voucherInterest(p *Product, value *big.Int) (*big.Int, error) {
	if e.stageOf(p) != StageOnline {
		return big.NewInt(0), nil
	}
	return e.equitiesInterestAt(p, value, e.blockHeight)
}

func (e *Engine) requireProduct(id uint64) (*Product, error) {
	p, ok, err := e.loadProduct(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrProductNotExists
	}
	return p, nil
}

func (e *Engine) loadProduct(id uint64) (*Product, bool, error) {
	if e.state == nil {
		return nil, false, ErrNilState
	}
	var stored storedProduct
	ok, err := e.state.KVGet(productKey(id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return stored.toProduct(id), true, nil
}

func (e *Engine) storeProduct(p *Product) error {
	return e.state.KVPut(productKey(p.ID), newStoredProduct(p))
}

func (e *Engine) loadSubscription(id uint64, subscriber [20]byte) (*Subscription, bool, error) {
	var stored storedSubscription
	ok, err := e.state.KVGet(subscriptionKey(id, subscriber), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &Subscription{
		ProductID:  id,
		Subscriber: subscriber,
		Principal:  common.CloneBig(stored.Principal),
		AtBlock:    stored.AtBlock,
		VoucherID:  stored.VoucherID,
	}, true, nil
}

func (e *Engine) storeSubscription(s *Subscription) error {
	return e.state.KVPut(subscriptionKey(s.ProductID, s.Subscriber), storedSubscription{
		Principal: common.CloneBig(s.Principal),
		AtBlock:   s.AtBlock,
		VoucherID: s.VoucherID,
	})
}
