package cashpool

import (
	"errors"
	"fmt"
	"math/big"

	"voucherchain/core/events"
	"voucherchain/native/common"
	"voucherchain/native/ledger"
)

const moduleName = "cashpool"

// RoleOwner manages the list of supported products.
const RoleOwner = "cashpool.owner"

var (
	ErrNilState            = errors.New("cashpool: state not configured")
	ErrUnauthorized        = errors.New("cashpool: caller lacks required role")
	ErrSlotNotExists       = errors.New("cashpool: slot not exists")
	ErrAlreadySupported    = errors.New("cashpool: already supported")
	ErrUnsupportedProduct  = errors.New("cashpool: unsupported product")
	ErrNotOwner            = errors.New("cashpool: not owner")
	ErrNotRedeemable       = errors.New("cashpool: not redeemable")
	ErrInsufficientBalance = errors.New("cashpool: insufficient balance")
	ErrZeroAddress         = errors.New("cashpool: zero address")
	ErrWrongPool           = errors.New("cashpool: product is pinned to another pool")
)

var productsKey = []byte("cashpool/products")

func supportedKey(id uint64) []byte { return []byte(fmt.Sprintf("cashpool/product/%d", id)) }

// Redeemer prices the vouchers of the slots it manages.
type Redeemer interface {
	IsRedeemable(tokenID uint64) (bool, error)
	RedeemableAmount(tokenID uint64) (*big.Int, error)
}

// PoolPinner is implemented by redeemers whose products may name the only
// pool allowed to redeem them.
type PoolPinner interface {
	CashPoolOf(productID uint64) ([20]byte, bool, error)
}

// Ledger is the slice of the value ledger the pool needs.
type Ledger interface {
	Token(id uint64) (*ledger.Token, error)
	ManagerOf(slot uint64) ([20]byte, bool, error)
	Burn(caller [20]byte, tokenID uint64) error
}

type Bank interface {
	Balance(addr [20]byte) (*big.Int, error)
	Transfer(from, to [20]byte, amount *big.Int) error
}

type stats struct {
	RedeemedEquities *big.Int
	RedeemedAmount   *big.Int
}

// Pool pays out redeemable vouchers from the native balance held at its
// address.
type Pool struct {
	state     common.Store
	address   [20]byte
	ledger    Ledger
	bank      Bank
	roles     common.RoleView
	pauses    common.PauseView
	emitter   events.Emitter
	redeemers map[[20]byte]Redeemer
}

func NewPool(address [20]byte, l Ledger, bank Bank) *Pool {
	return &Pool{
		address:   address,
		ledger:    l,
		bank:      bank,
		emitter:   events.NoopEmitter{},
		redeemers: make(map[[20]byte]Redeemer),
	}
}

func (p *Pool) SetState(state common.Store) { p.state = state }

func (p *Pool) SetRoles(roles common.RoleView) { p.roles = roles }

func (p *Pool) SetPauses(pauses common.PauseView) { p.pauses = pauses }

func (p *Pool) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		p.emitter = events.NoopEmitter{}
		return
	}
	p.emitter = emitter
}

// AttachRedeemer registers the pricing engine for slots owned by manager.
func (p *Pool) AttachRedeemer(manager [20]byte, r Redeemer) {
	if r == nil {
		delete(p.redeemers, manager)
		return
	}
	p.redeemers[manager] = r
}

func (p *Pool) Address() [20]byte { return p.address }

func (p *Pool) ready() error {
	if p == nil || p.state == nil || p.ledger == nil || p.bank == nil {
		return ErrNilState
	}
	return common.Guard(p.pauses, moduleName)
}

func (p *Pool) authorize(caller [20]byte) error {
	if p.roles == nil || !p.roles.HasRole(RoleOwner, caller) {
		return ErrUnauthorized
	}
	return nil
}

// AddProduct enables redemption of the vouchers in slot id.
func (p *Pool) AddProduct(caller [20]byte, id uint64) error {
	if err := p.ready(); err != nil {
		return err
	}
	if err := p.authorize(caller); err != nil {
		return err
	}
	if _, ok, err := p.ledger.ManagerOf(id); err != nil {
		return err
	} else if !ok {
		return ErrSlotNotExists
	}
	if p.IsSupported(id) {
		return ErrAlreadySupported
	}
	if err := p.state.KVPut(supportedKey(id), stats{RedeemedEquities: big.NewInt(0), RedeemedAmount: big.NewInt(0)}); err != nil {
		return err
	}
	if err := common.ListAppend(p.state, productsKey, id); err != nil {
		return err
	}
	p.emitter.Emit(events.AddedProduct{ProductID: id})
	return nil
}

// RemoveProduct disables redemption and reports the product's totals.
func (p *Pool) RemoveProduct(caller [20]byte, id uint64) error {
	if err := p.ready(); err != nil {
		return err
	}
	if err := p.authorize(caller); err != nil {
		return err
	}
	st, ok, err := p.loadStats(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnsupportedProduct
	}
	if err := p.state.KVDelete(supportedKey(id)); err != nil {
		return err
	}
	if _, err := common.ListRemove(p.state, productsKey, id); err != nil {
		return err
	}
	p.emitter.Emit(events.RemovedProduct{ProductID: id, RedeemedEquities: st.RedeemedEquities, RedeemedAmount: st.RedeemedAmount})
	return nil
}

// Redeem burns caller's voucher and pays its redeemable amount to receiver.
// The pool must be approved on the voucher.
func (p *Pool) Redeem(caller [20]byte, tokenID uint64, receiver [20]byte) (*big.Int, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	if receiver == ([20]byte{}) {
		return nil, ErrZeroAddress
	}
	token, err := p.ledger.Token(tokenID)
	if err != nil {
		return nil, err
	}
	if token.Owner != caller {
		return nil, ErrNotOwner
	}
	st, ok, err := p.loadStats(token.Slot)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnsupportedProduct
	}
	manager, _, err := p.ledger.ManagerOf(token.Slot)
	if err != nil {
		return nil, err
	}
	redeemer := p.redeemers[manager]
	if redeemer == nil {
		return nil, ErrUnsupportedProduct
	}
	if pinner, ok := redeemer.(PoolPinner); ok {
		pool, pinned, err := pinner.CashPoolOf(token.Slot)
		if err != nil {
			return nil, err
		}
		if pinned && pool != p.address {
			return nil, ErrWrongPool
		}
	}
	redeemable, err := redeemer.IsRedeemable(tokenID)
	if err != nil {
		return nil, err
	}
	if !redeemable {
		return nil, ErrNotRedeemable
	}
	amount, err := redeemer.RedeemableAmount(tokenID)
	if err != nil {
		return nil, err
	}
	cash, err := p.bank.Balance(p.address)
	if err != nil {
		return nil, err
	}
	if cash.Cmp(amount) < 0 {
		return nil, ErrInsufficientBalance
	}
	if err := p.ledger.Burn(p.address, tokenID); err != nil {
		return nil, err
	}
	if err := p.bank.Transfer(p.address, receiver, amount); err != nil {
		return nil, err
	}
	st.RedeemedEquities.Add(st.RedeemedEquities, token.Value)
	st.RedeemedAmount.Add(st.RedeemedAmount, amount)
	if err := p.state.KVPut(supportedKey(token.Slot), st); err != nil {
		return nil, err
	}
	p.emitter.Emit(events.Redeemed{
		ProductID: token.Slot,
		TokenID:   tokenID,
		Owner:     caller,
		Receiver:  receiver,
		Equities:  new(big.Int).Set(token.Value),
		Amount:    new(big.Int).Set(amount),
	})
	return amount, nil
}

func (p *Pool) loadStats(id uint64) (*stats, bool, error) {
	if p.state == nil {
		return nil, false, ErrNilState
	}
	var st stats
	ok, err := p.state.KVGet(supportedKey(id), &st)
	if err != nil || !ok {
		return nil, false, err
	}
	st.RedeemedEquities = common.CloneBig(st.RedeemedEquities)
	st.RedeemedAmount = common.CloneBig(st.RedeemedAmount)
	return &st, true, nil
}

// Cash is the native balance available for redemptions.
func (p *Pool) Cash() (*big.Int, error) {
	if p.bank == nil {
		return nil, ErrNilState
	}
	return p.bank.Balance(p.address)
}

func (p *Pool) IsSupported(id uint64) bool {
	_, ok, err := p.loadStats(id)
	return err == nil && ok
}

func (p *Pool) ProductCount() (uint64, error) {
	if p.state == nil {
		return 0, ErrNilState
	}
	return common.ListLen[uint64](p.state, productsKey)
}

func (p *Pool) ProductByIndex(index uint64) (uint64, error) {
	if p.state == nil {
		return 0, ErrNilState
	}
	return common.ListAt[uint64](p.state, productsKey, index)
}

func (p *Pool) RedeemedEquities(id uint64) (*big.Int, error) {
	st, ok, err := p.loadStats(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnsupportedProduct
	}
	return st.RedeemedEquities, nil
}

func (p *Pool) RedeemedAmount(id uint64) (*big.Int, error) {
	st, ok, err := p.loadStats(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnsupportedProduct
	}
	return st.RedeemedAmount, nil
}
