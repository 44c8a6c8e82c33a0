package product

import (
	"errors"
	"math/big"
	"testing"

	"voucherchain/core/events"
	"voucherchain/core/state"
	"voucherchain/native/bank"
	"voucherchain/native/interest"
	"voucherchain/native/ledger"
	"voucherchain/storage"
)

var (
	ledgerAddr  = [20]byte{0x1e}
	productAddr = [20]byte{0x70}
	admin       = [20]byte{0xad}
	operator    = [20]byte{0x0b}
	cashier     = [20]byte{0xca}
	alice       = [20]byte{0xa1}
	bob         = [20]byte{0xb0}
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

type recordingObserver struct {
	transfers []ledger.ValueTransfer
	err       error
}

func (o *recordingObserver) OnEquitiesTransfer(caller [20]byte, t ledger.ValueTransfer) error {
	if caller != productAddr {
		return errors.New("unexpected caller")
	}
	o.transfers = append(o.transfers, t)
	return o.err
}

type fixture struct {
	state    *state.Manager
	ledger   *ledger.Engine
	bank     *bank.Ledger
	engine   *Engine
	buf      *events.Buffer
	observer *recordingObserver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	for role, addr := range map[string][20]byte{
		ledger.RoleAdmin: admin,
		RoleOperator:     operator,
		RoleCashier:      cashier,
	} {
		if err := mgr.SetRole(role, addr); err != nil {
			t.Fatalf("set role: %v", err)
		}
	}
	buf := &events.Buffer{}
	l := ledger.NewEngine(ledgerAddr)
	l.SetState(mgr)
	l.SetRoles(mgr)
	b := bank.NewLedger(mgr)
	engine := NewEngine(productAddr, l, b)
	engine.SetState(mgr)
	engine.SetRoles(mgr)
	engine.SetEmitter(buf)
	observer := &recordingObserver{}
	engine.SetObserver(observer)
	l.RegisterHooks(productAddr, engine)
	if err := l.AddSlotManager(admin, productAddr); err != nil {
		t.Fatalf("add slot manager: %v", err)
	}
	for _, who := range [][20]byte{alice, bob} {
		if err := b.Credit(who, ether(1000)); err != nil {
			t.Fatalf("credit: %v", err)
		}
	}
	engine.SetBlockHeight(100)
	return &fixture{state: mgr, ledger: l, bank: b, engine: engine, buf: buf, observer: observer}
}

func defaultParams() Params {
	return Params{
		TotalQuota:             ether(100),
		MinSubscriptionAmount:  ether(1),
		BeginSubscriptionBlock: 101,
		EndSubscriptionBlock:   101 + MinPeriod,
		MinHoldingDuration:     100,
		InterestRate:           interest.TieredName,
	}
}

func (f *fixture) create(t *testing.T, id uint64, params Params) {
	t.Helper()
	if err := f.engine.Create(operator, id, params); err != nil {
		t.Fatalf("create: %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name   string
		mutate func(*Params)
		want   error
	}{
		{"zero quota", func(p *Params) { p.TotalQuota = big.NewInt(0) }, ErrBadTotalQuota},
		{"min above quota", func(p *Params) { p.MinSubscriptionAmount = ether(101) }, ErrBadMinSubscriptionAmount},
		{"begin in past", func(p *Params) { p.BeginSubscriptionBlock = 100 }, ErrBadBeginSubscriptionBlock},
		{"end before begin", func(p *Params) { p.EndSubscriptionBlock = 101 }, ErrBadEndSubscriptionBlock},
		{"window too short", func(p *Params) { p.EndSubscriptionBlock = 101 + MinPeriod - 1 }, ErrBadEndSubscriptionBlock},
		{"window too long", func(p *Params) { p.EndSubscriptionBlock = 101 + MaxPeriod + 1 }, ErrBadEndSubscriptionBlock},
		{"missing strategy", func(p *Params) { p.InterestRate = "" }, ErrZeroAddress},
		{"unknown strategy", func(p *Params) { p.InterestRate = "flat" }, ErrUnknownStrategy},
	}
	for _, tc := range cases {
		params := defaultParams()
		tc.mutate(&params)
		if err := f.engine.Create(operator, 1, params); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}

	if err := f.engine.Create(alice, 1, defaultParams()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	params := defaultParams()
	params.EndSubscriptionBlock = 101 + MaxPeriod
	f.create(t, 1, params)
	if err := f.engine.Create(operator, 1, defaultParams()); !errors.Is(err, ErrDuplicatedProductID) {
		t.Fatalf("expected ErrDuplicatedProductID, got %v", err)
	}
	if manager, ok, _ := f.ledger.ManagerOf(1); !ok || manager != productAddr {
		t.Fatalf("slot 1 not claimed by the engine")
	}

	other := [20]byte{0x99}
	if err := f.ledger.AddSlotManager(admin, other, 7); err != nil {
		t.Fatalf("add other manager: %v", err)
	}
	if err := f.engine.Create(operator, 7, defaultParams()); !errors.Is(err, ErrNotSlotManagerOfSlot) {
		t.Fatalf("expected ErrNotSlotManagerOfSlot, got %v", err)
	}
	if err := f.ledger.ClaimSlot(productAddr, 8); err != nil {
		t.Fatalf("pre-claim: %v", err)
	}
	f.create(t, 8, defaultParams())

	if n, _ := f.engine.ProductCount(); n != 2 {
		t.Fatalf("expected 2 products, got %d", n)
	}
	if id, _ := f.engine.ProductIDByIndex(1); id != 8 {
		t.Fatalf("unexpected product at index 1: %d", id)
	}
	if stage, _ := f.engine.Stage(1); stage != StagePreSubscription {
		t.Fatalf("unexpected stage %s", stage)
	}
	if apr, _ := f.engine.NowAPR(1); apr != "0%" {
		t.Fatalf("unexpected apr %q", apr)
	}
}

func TestSubscribeMergesVoucher(t *testing.T) {
	f := newFixture(t)
	f.create(t, 1, defaultParams())

	if _, err := f.engine.Subscribe(alice, 1, ether(10)); !errors.Is(err, ErrInvalidProductStage) {
		t.Fatalf("expected ErrInvalidProductStage, got %v", err)
	}
	if _, err := f.engine.Subscribe(alice, 2, ether(10)); !errors.Is(err, ErrProductNotExists) {
		t.Fatalf("expected ErrProductNotExists, got %v", err)
	}
	f.engine.SetBlockHeight(101)
	if _, err := f.engine.Subscribe(alice, 1, big.NewInt(1)); !errors.Is(err, ErrLessThanMinSubscriptionAmount) {
		t.Fatalf("expected ErrLessThanMinSubscriptionAmount, got %v", err)
	}
	if _, err := f.engine.Subscribe(alice, 1, ether(101)); !errors.Is(err, ErrExceedsTotalQuota) {
		t.Fatalf("expected ErrExceedsTotalQuota, got %v", err)
	}

	first, err := f.engine.Subscribe(alice, 1, ether(10))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	f.buf.Reset()
	second, err := f.engine.Subscribe(alice, 1, ether(5))
	if err != nil {
		t.Fatalf("second subscribe: %v", err)
	}
	if f.ledger.Exists(first) {
		t.Fatalf("old voucher should be burned")
	}
	if v, _ := f.ledger.ValueOf(second); v.Cmp(ether(15)) != 0 {
		t.Fatalf("merged voucher value %s", v)
	}
	sub, err := f.engine.Subscription(1, alice)
	if err != nil {
		t.Fatalf("subscription: %v", err)
	}
	if sub.Principal.Cmp(ether(15)) != 0 || sub.VoucherID != second || sub.AtBlock != 101 {
		t.Fatalf("unexpected subscription %+v", sub)
	}
	last := f.buf.Events()[f.buf.Len()-1].(events.Subscribe)
	if last.Principal.Cmp(ether(15)) != 0 || last.VoucherID != second {
		t.Fatalf("unexpected subscribe event %+v", last)
	}

	if _, err := f.engine.Subscribe(bob, 1, ether(20)); err != nil {
		t.Fatalf("bob subscribe: %v", err)
	}
	raised, _ := f.engine.TotalFundsRaised(1)
	if raised.Cmp(ether(35)) != 0 {
		t.Fatalf("funds raised %s", raised)
	}
	assertRaisedMatchesPrincipal(t, f, 1)
	if custody, _ := f.bank.Balance(productAddr); custody.Cmp(ether(35)) != 0 {
		t.Fatalf("custody %s", custody)
	}
	if equities, _ := f.engine.TotalEquities(1); equities.Cmp(ether(35)) != 0 {
		t.Fatalf("total equities %s", equities)
	}
	if n, _ := f.engine.SubscriberCount(1); n != 2 {
		t.Fatalf("expected 2 subscribers, got %d", n)
	}
}

func TestResubscribeCompoundsWindowInterest(t *testing.T) {
	f := newFixture(t)
	params := defaultParams()
	f.create(t, 1, params)
	f.engine.SetBlockHeight(101)
	first, err := f.engine.Subscribe(alice, 1, ether(10))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if v, _ := f.engine.VoucherInterest(first); v.Sign() != 0 {
		t.Fatalf("voucher interest is zero during subscription, got %s", v)
	}

	f.engine.SetBlockHeight(1101)
	second, err := f.engine.Subscribe(alice, 1, ether(10))
	if err != nil {
		t.Fatalf("second subscribe: %v", err)
	}
	accrued, err := interest.NewTiered().Calculate(ether(10), params.BeginSubscriptionBlock, params.EndSubscriptionBlock, 101, 1101)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if accrued.Sign() <= 0 {
		t.Fatalf("expected positive window interest")
	}
	merged, _ := f.ledger.ValueOf(second)
	if merged.Cmp(ether(20)) <= 0 {
		t.Fatalf("merged voucher %s should exceed the summed principal", merged)
	}
	if want := new(big.Int).Add(ether(20), accrued); merged.Cmp(want) != 0 {
		t.Fatalf("merged voucher %s, want %s", merged, want)
	}
	sub, _ := f.engine.Subscription(1, alice)
	if sub.Principal.Cmp(ether(20)) != 0 || sub.AtBlock != 1101 {
		t.Fatalf("unexpected subscription %+v", sub)
	}
	if raised, _ := f.engine.TotalFundsRaised(1); raised.Cmp(ether(20)) != 0 {
		t.Fatalf("funds raised counts principal only, got %s", raised)
	}
}

func assertRaisedMatchesPrincipal(t *testing.T, f *fixture, id uint64) {
	t.Helper()
	n, err := f.engine.SubscriberCount(id)
	if err != nil {
		t.Fatalf("subscriber count: %v", err)
	}
	sum := big.NewInt(0)
	for i := uint64(0); i < n; i++ {
		who, err := f.engine.SubscriberByIndex(id, i)
		if err != nil {
			t.Fatalf("subscriber by index: %v", err)
		}
		sub, err := f.engine.Subscription(id, who)
		if err != nil {
			t.Fatalf("subscription: %v", err)
		}
		sum.Add(sum, sub.Principal)
	}
	raised, _ := f.engine.TotalFundsRaised(id)
	if raised.Cmp(sum) != 0 {
		t.Fatalf("funds raised %s != sum of principal %s", raised, sum)
	}
}

func TestCancelSubscription(t *testing.T) {
	f := newFixture(t)
	params := defaultParams()
	params.MinSubscriptionAmount = ether(2)
	f.create(t, 1, params)
	f.engine.SetBlockHeight(200)

	if _, err := f.engine.Subscribe(alice, 1, ether(10)); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := f.engine.CancelSubscription(bob, 1, ether(1), bob); !errors.Is(err, ErrNotSubscriber) {
		t.Fatalf("expected ErrNotSubscriber, got %v", err)
	}
	if err := f.engine.CancelSubscription(alice, 1, ether(1), [20]byte{}); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
	if err := f.engine.CancelSubscription(alice, 1, ether(11), alice); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := f.engine.CancelSubscription(alice, 1, ether(9), alice); !errors.Is(err, ErrLessThanMinSubscriptionAmount) {
		t.Fatalf("expected ErrLessThanMinSubscriptionAmount, got %v", err)
	}

	f.buf.Reset()
	if err := f.engine.CancelSubscription(alice, 1, ether(4), bob); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	var cancelled, resubscribed bool
	for _, evt := range f.buf.Events() {
		switch e := evt.(type) {
		case events.CancelSubscription:
			cancelled = e.Principal.Cmp(ether(10)) == 0
		case events.Subscribe:
			resubscribed = cancelled && e.Principal.Cmp(ether(6)) == 0
		}
	}
	if !cancelled || !resubscribed {
		t.Fatalf("unexpected event sequence %v", f.buf.Types())
	}
	if bal, _ := f.bank.Balance(bob); bal.Cmp(ether(1004)) != 0 {
		t.Fatalf("receiver balance %s", bal)
	}
	assertRaisedMatchesPrincipal(t, f, 1)

	if _, err := f.engine.Subscribe(alice, 1, ether(4)); err != nil {
		t.Fatalf("resubscribe: %v", err)
	}
	sub, _ := f.engine.Subscription(1, alice)
	if sub.Principal.Cmp(ether(10)) != 0 {
		t.Fatalf("cancel then subscribe should restore principal, got %s", sub.Principal)
	}

	if err := f.engine.CancelSubscription(alice, 1, ether(10), alice); err != nil {
		t.Fatalf("full cancel: %v", err)
	}
	if f.engine.IsSubscriber(1, alice) {
		t.Fatalf("subscription should be removed")
	}
	if raised, _ := f.engine.TotalFundsRaised(1); raised.Sign() != 0 {
		t.Fatalf("funds raised %s", raised)
	}
	if equities, _ := f.engine.TotalEquities(1); equities.Sign() != 0 {
		t.Fatalf("equities %s", equities)
	}
}

func TestTransferControlAndHooks(t *testing.T) {
	f := newFixture(t)
	f.create(t, 1, defaultParams())
	f.engine.SetBlockHeight(101)
	voucher, err := f.engine.Subscribe(alice, 1, ether(10))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if len(f.observer.transfers) != 1 || !f.observer.transfers[0].IsMint() {
		t.Fatalf("expected forwarded mint, got %+v", f.observer.transfers)
	}

	if _, err := f.ledger.TransferToAddress(alice, voucher, bob, ether(1)); !errors.Is(err, ErrTransferControl) {
		t.Fatalf("expected ErrTransferControl, got %v", err)
	}
	if err := f.ledger.Burn(alice, voucher); !errors.Is(err, ErrTransferControl) {
		t.Fatalf("expected ErrTransferControl on burn, got %v", err)
	}

	f.engine.SetBlockHeight(defaultParams().EndSubscriptionBlock + 1)
	f.observer.transfers = nil
	bobVoucher, err := f.ledger.TransferToAddress(alice, voucher, bob, ether(3))
	if err != nil {
		t.Fatalf("transfer once online: %v", err)
	}
	got := f.observer.transfers
	if len(got) != 1 || got[0].From != alice || got[0].To != bob || got[0].ToTokenID != bobVoucher || got[0].Slot != 1 {
		t.Fatalf("unexpected forwarded transfer %+v", got)
	}

	f.observer.err = errors.New("veto")
	if _, err := f.ledger.TransferToAddress(bob, bobVoucher, alice, ether(1)); err == nil {
		t.Fatalf("observer error must abort the movement")
	}

	if err := f.engine.BeforeValueTransfer(alice, ledger.ValueTransfer{Slot: 1}); !errors.Is(err, ErrIllegalCaller) {
		t.Fatalf("expected ErrIllegalCaller, got %v", err)
	}
	if err := f.engine.AfterValueTransfer(alice, ledger.ValueTransfer{Slot: 1}); !errors.Is(err, ErrIllegalCaller) {
		t.Fatalf("expected ErrIllegalCaller, got %v", err)
	}
}

func TestRedemptionScenario(t *testing.T) {
	f := newFixture(t)
	params := defaultParams()
	f.create(t, 1, params)
	f.engine.SetBlockHeight(101)
	voucher, err := f.engine.Subscribe(alice, 1, ether(10))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	end := params.EndSubscriptionBlock

	if v, _ := f.engine.VoucherInterest(voucher); v.Sign() != 0 {
		t.Fatalf("no interest during subscription, got %s", v)
	}
	if v, _ := f.engine.EquitiesInterest(1, ether(10), end); v.Sign() != 0 {
		t.Fatalf("no interest at window end, got %s", v)
	}

	f.engine.SetBlockHeight(end + 50)
	if ok, _ := f.engine.IsRedeemable(voucher); ok {
		t.Fatalf("redeemable before min holding")
	}
	if _, err := f.engine.RedeemableAmount(voucher); !errors.Is(err, ErrNotRedeemableAtPresent) {
		t.Fatalf("expected ErrNotRedeemableAtPresent, got %v", err)
	}

	now := end + 10 + 100
	f.engine.SetBlockHeight(now)
	if ok, _ := f.engine.IsRedeemable(voucher); !ok {
		t.Fatalf("voucher should be redeemable")
	}
	want, err := interest.NewTiered().Calculate(ether(10), params.BeginSubscriptionBlock, end, end, now)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if want.Sign() <= 0 {
		t.Fatalf("expected positive interest")
	}
	voucherInterest, _ := f.engine.VoucherInterest(voucher)
	equitiesInterest, _ := f.engine.EquitiesInterest(1, ether(10), now)
	if voucherInterest.Cmp(want) != 0 || equitiesInterest.Cmp(want) != 0 {
		t.Fatalf("interest mismatch: voucher %s equities %s want %s", voucherInterest, equitiesInterest, want)
	}
	amount, err := f.engine.RedeemableAmount(voucher)
	if err != nil {
		t.Fatalf("redeemable amount: %v", err)
	}
	if amount.Cmp(new(big.Int).Add(ether(10), want)) != 0 {
		t.Fatalf("redeemable amount %s", amount)
	}
	if apr, _ := f.engine.NowAPR(1); apr != "5%" {
		t.Fatalf("unexpected apr %q", apr)
	}
}

func TestLoan(t *testing.T) {
	f := newFixture(t)
	params := defaultParams()
	f.create(t, 1, params)
	f.engine.SetBlockHeight(101)
	if _, err := f.engine.Subscribe(alice, 1, ether(10)); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	receiver := [20]byte{0xee}

	if err := f.engine.Loan(alice, 1, ether(1), receiver); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.engine.Loan(cashier, 1, ether(1), receiver); !errors.Is(err, ErrInvalidProductStage) {
		t.Fatalf("expected ErrInvalidProductStage, got %v", err)
	}
	f.engine.SetBlockHeight(params.EndSubscriptionBlock + 1)
	if err := f.engine.Loan(cashier, 1, ether(11), receiver); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	f.buf.Reset()
	if err := f.engine.Loan(cashier, 1, ether(6), receiver); err != nil {
		t.Fatalf("loan: %v", err)
	}
	if err := f.engine.Loan(cashier, 1, ether(5), receiver); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance after partial loan, got %v", err)
	}
	if loaned, _ := f.engine.TotalFundsLoaned(1); loaned.Cmp(ether(6)) != 0 {
		t.Fatalf("funds loaned %s", loaned)
	}
	if bal, _ := f.bank.Balance(receiver); bal.Cmp(ether(6)) != 0 {
		t.Fatalf("receiver balance %s", bal)
	}
	found := false
	for _, evt := range f.buf.Events() {
		if e, ok := evt.(events.OfferLoans); ok && e.Cashier == cashier && e.Amount.Cmp(ether(6)) == 0 {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing OfferLoans event in %v", f.buf.Types())
	}
}

func TestProductIDsByStage(t *testing.T) {
	f := newFixture(t)
	windows := []struct {
		id         uint64
		begin, end uint64
	}{
		{1, 101, 101 + MinPeriod},
		{2, 200, 200 + MinPeriod},
		{3, 300, 300 + MinPeriod},
	}
	for _, w := range windows {
		params := defaultParams()
		params.BeginSubscriptionBlock = w.begin
		params.EndSubscriptionBlock = w.end
		f.create(t, w.id, params)
	}
	assertIDs := func(stage Stage, want ...uint64) {
		t.Helper()
		got, err := f.engine.ProductIDsInStage(stage)
		if err != nil {
			t.Fatalf("%s: %v", stage, err)
		}
		if len(got) != len(want) {
			t.Fatalf("%s at %d: got %v, want %v", stage, f.engine.blockHeight, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("%s at %d: got %v, want %v", stage, f.engine.blockHeight, got, want)
			}
		}
	}

	all, err := f.engine.ProductIDs()
	if err != nil || len(all) != 3 || all[0] != 3 || all[2] != 1 {
		t.Fatalf("unexpected ids %v err=%v", all, err)
	}

	f.engine.SetBlockHeight(150)
	assertIDs(StagePreSubscription, 3, 2)
	assertIDs(StageSubscription, 1)
	assertIDs(StageOnline)

	f.engine.SetBlockHeight(102 + MinPeriod)
	assertIDs(StagePreSubscription)
	assertIDs(StageSubscription, 3, 2)
	assertIDs(StageOnline, 1)

	f.engine.SetBlockHeight(301 + MinPeriod)
	assertIDs(StageSubscription)
	assertIDs(StageOnline, 3, 2, 1)

	if s, err := ParseStage("online"); err != nil || s != StageOnline {
		t.Fatalf("parse online: %v %v", s, err)
	}
	if _, err := ParseStage("closed"); err == nil {
		t.Fatalf("expected error for unknown stage")
	}
}
