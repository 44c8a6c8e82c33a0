package bank

import (
	"errors"
	"fmt"
	"math/big"

	"voucherchain/core/events"
	"voucherchain/native/common"
)

var (
	ErrNilState          = errors.New("bank: state not configured")
	ErrInsufficientFunds = errors.New("bank: insufficient funds")
	ErrInvalidAmount     = errors.New("bank: amount must not be negative")
	ErrZeroAddress       = errors.New("bank: zero address")
)

func balanceKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("bank/balance/%x", addr))
}

// Ledger tracks native balances. Product principal, loans and cash-pool
// payouts all settle through it.
type Ledger struct {
	state   common.Store
	emitter events.Emitter
}

func NewLedger(state common.Store) *Ledger {
	return &Ledger{state: state, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter used by the ledger.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// Balance returns the native balance of addr.
func (l *Ledger) Balance(addr [20]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, ErrNilState
	}
	balance := new(big.Int)
	if _, err := l.state.KVGet(balanceKey(addr), balance); err != nil {
		return nil, err
	}
	return balance, nil
}

func (l *Ledger) put(addr [20]byte, amount *big.Int) error {
	if amount.Sign() == 0 {
		return l.state.KVDelete(balanceKey(addr))
	}
	return l.state.KVPut(balanceKey(addr), amount)
}

// Credit mints amount into addr. It is reserved for genesis allocation and
// development faucets.
func (l *Ledger) Credit(addr [20]byte, amount *big.Int) error {
	if addr == ([20]byte{}) {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	balance, err := l.Balance(addr)
	if err != nil {
		return err
	}
	if err := l.put(addr, balance.Add(balance, amount)); err != nil {
		return err
	}
	l.emitter.Emit(events.NativeTransfer{To: addr, Amount: new(big.Int).Set(amount)})
	return nil
}

// Transfer moves amount from one account to another.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	if to == ([20]byte{}) {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	fromBalance, err := l.Balance(from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientFunds, fromBalance, amount)
	}
	toBalance, err := l.Balance(to)
	if err != nil {
		return err
	}
	if err := l.put(from, fromBalance.Sub(fromBalance, amount)); err != nil {
		return err
	}
	if err := l.put(to, toBalance.Add(toBalance, amount)); err != nil {
		return err
	}
	l.emitter.Emit(events.NativeTransfer{From: from, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}
