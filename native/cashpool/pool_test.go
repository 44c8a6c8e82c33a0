package cashpool

import (
	"errors"
	"math/big"
	"testing"

	"voucherchain/core/events"
	"voucherchain/core/state"
	"voucherchain/native/bank"
	"voucherchain/native/interest"
	"voucherchain/native/ledger"
	"voucherchain/native/product"
	"voucherchain/storage"
)

var (
	ledgerAddr  = [20]byte{0x1e}
	productAddr = [20]byte{0x70}
	poolAddr    = [20]byte{0xc0}
	admin       = [20]byte{0xad}
	alice       = [20]byte{0xa1}
	bob         = [20]byte{0xb0}
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

type fixture struct {
	ledger  *ledger.Engine
	bank    *bank.Ledger
	product *product.Engine
	pool    *Pool
	buf     *events.Buffer
	params  product.Params
}

func newFixture(t *testing.T, pinned [20]byte) *fixture {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	for role, addr := range map[string][20]byte{
		ledger.RoleAdmin:     admin,
		product.RoleOperator: admin,
		RoleOwner:            admin,
	} {
		if err := mgr.SetRole(role, addr); err != nil {
			t.Fatalf("set role: %v", err)
		}
	}
	l := ledger.NewEngine(ledgerAddr)
	l.SetState(mgr)
	l.SetRoles(mgr)
	b := bank.NewLedger(mgr)
	p := product.NewEngine(productAddr, l, b)
	p.SetState(mgr)
	p.SetRoles(mgr)
	l.RegisterHooks(productAddr, p)
	if err := l.AddSlotManager(admin, productAddr); err != nil {
		t.Fatalf("add slot manager: %v", err)
	}
	buf := &events.Buffer{}
	pool := NewPool(poolAddr, l, b)
	pool.SetState(mgr)
	pool.SetRoles(mgr)
	pool.SetEmitter(buf)
	pool.AttachRedeemer(productAddr, p)

	p.SetBlockHeight(100)
	params := product.Params{
		TotalQuota:             ether(100),
		MinSubscriptionAmount:  ether(1),
		BeginSubscriptionBlock: 101,
		EndSubscriptionBlock:   101 + product.MinPeriod,
		MinHoldingDuration:     100,
		InterestRate:           interest.TieredName,
		CashPool:               pinned,
	}
	if err := p.Create(admin, 1, params); err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, who := range [][20]byte{alice, poolAddr} {
		if err := b.Credit(who, ether(100)); err != nil {
			t.Fatalf("credit: %v", err)
		}
	}
	return &fixture{ledger: l, bank: b, product: p, pool: pool, buf: buf, params: params}
}

func (f *fixture) subscribe(t *testing.T) uint64 {
	t.Helper()
	f.product.SetBlockHeight(101)
	id, err := f.product.Subscribe(alice, 1, ether(10))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	return id
}

func TestProductList(t *testing.T) {
	f := newFixture(t, [20]byte{})
	if err := f.pool.AddProduct(alice, 1); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.pool.AddProduct(admin, 42); !errors.Is(err, ErrSlotNotExists) {
		t.Fatalf("expected ErrSlotNotExists, got %v", err)
	}
	if err := f.pool.AddProduct(admin, 1); err != nil {
		t.Fatalf("add product: %v", err)
	}
	if err := f.pool.AddProduct(admin, 1); !errors.Is(err, ErrAlreadySupported) {
		t.Fatalf("expected ErrAlreadySupported, got %v", err)
	}
	if n, _ := f.pool.ProductCount(); n != 1 {
		t.Fatalf("expected one product, got %d", n)
	}
	if id, _ := f.pool.ProductByIndex(0); id != 1 {
		t.Fatalf("unexpected product %d", id)
	}
	if err := f.pool.RemoveProduct(admin, 1); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := f.pool.RemoveProduct(admin, 1); !errors.Is(err, ErrUnsupportedProduct) {
		t.Fatalf("expected ErrUnsupportedProduct, got %v", err)
	}
	want := []string{events.TypeCashPoolProductAdded, events.TypeCashPoolProductRemoved}
	got := f.buf.Types()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestRedeem(t *testing.T) {
	f := newFixture(t, [20]byte{})
	voucher := f.subscribe(t)

	if _, err := f.pool.Redeem(alice, voucher, alice); !errors.Is(err, ErrUnsupportedProduct) {
		t.Fatalf("expected ErrUnsupportedProduct, got %v", err)
	}
	if err := f.pool.AddProduct(admin, 1); err != nil {
		t.Fatalf("add product: %v", err)
	}
	if _, err := f.pool.Redeem(bob, voucher, bob); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if _, err := f.pool.Redeem(alice, voucher, alice); !errors.Is(err, ErrNotRedeemable) {
		t.Fatalf("expected ErrNotRedeemable, got %v", err)
	}

	end := f.params.EndSubscriptionBlock
	f.product.SetBlockHeight(end + 200)
	if _, err := f.pool.Redeem(alice, voucher, bob); !errors.Is(err, ledger.ErrNotOwnerNorApproved) {
		t.Fatalf("expected ErrNotOwnerNorApproved, got %v", err)
	}
	if err := f.ledger.SetApprovalForAll(alice, poolAddr, true); err != nil {
		t.Fatalf("approve pool: %v", err)
	}
	expected, err := f.product.RedeemableAmount(voucher)
	if err != nil {
		t.Fatalf("redeemable amount: %v", err)
	}
	paid, err := f.pool.Redeem(alice, voucher, bob)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if paid.Cmp(expected) != 0 || paid.Cmp(ether(10)) <= 0 {
		t.Fatalf("paid %s, want %s", paid, expected)
	}
	if f.ledger.Exists(voucher) {
		t.Fatalf("voucher should be burned")
	}
	if bal, _ := f.bank.Balance(bob); bal.Cmp(expected) != 0 {
		t.Fatalf("receiver balance %s", bal)
	}
	if cash, _ := f.pool.Cash(); cash.Cmp(new(big.Int).Sub(ether(100), expected)) != 0 {
		t.Fatalf("pool cash %s", cash)
	}
	if eq, _ := f.pool.RedeemedEquities(1); eq.Cmp(ether(10)) != 0 {
		t.Fatalf("redeemed equities %s", eq)
	}
	if amt, _ := f.pool.RedeemedAmount(1); amt.Cmp(expected) != 0 {
		t.Fatalf("redeemed amount %s", amt)
	}
}

func TestRedeemInsufficientCash(t *testing.T) {
	f := newFixture(t, [20]byte{})
	voucher := f.subscribe(t)
	if err := f.pool.AddProduct(admin, 1); err != nil {
		t.Fatalf("add product: %v", err)
	}
	if err := f.bank.Transfer(poolAddr, bob, ether(95)); err != nil {
		t.Fatalf("drain pool: %v", err)
	}
	f.product.SetBlockHeight(f.params.EndSubscriptionBlock + 200)
	if _, err := f.pool.Redeem(alice, voucher, alice); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestPinnedPool(t *testing.T) {
	f := newFixture(t, [20]byte{0x99})
	voucher := f.subscribe(t)
	if err := f.pool.AddProduct(admin, 1); err != nil {
		t.Fatalf("add product: %v", err)
	}
	f.product.SetBlockHeight(f.params.EndSubscriptionBlock + 200)
	if _, err := f.pool.Redeem(alice, voucher, alice); !errors.Is(err, ErrWrongPool) {
		t.Fatalf("expected ErrWrongPool, got %v", err)
	}
}
