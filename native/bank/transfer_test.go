package bank

import (
	"errors"
	"math/big"
	"testing"

	"voucherchain/core/state"
	"voucherchain/storage"
)

func TestTransfer(t *testing.T) {
	l := NewLedger(state.NewManager(storage.NewMemDB()))
	alice, bob := [20]byte{1}, [20]byte{2}

	if err := l.Credit(alice, big.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := l.Transfer(alice, bob, big.NewInt(101)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if err := l.Transfer(alice, [20]byte{}, big.NewInt(1)); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
	if err := l.Transfer(alice, bob, big.NewInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := l.Transfer(alice, bob, big.NewInt(40)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	a, _ := l.Balance(alice)
	b, _ := l.Balance(bob)
	if a.Int64() != 60 || b.Int64() != 40 {
		t.Fatalf("unexpected balances %s/%s", a, b)
	}
	if err := l.Transfer(alice, alice, big.NewInt(1000)); err != nil {
		t.Fatalf("self transfer should be a no-op: %v", err)
	}
}
