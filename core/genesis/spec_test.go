package genesis

import (
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"voucherchain/core"
	"voucherchain/crypto"
	"voucherchain/native/product"
	"voucherchain/storage"
)

func account(b byte) string {
	return crypto.AddressFromRaw([20]byte{b}).String()
}

func TestLoadGenesisSpecAndApply(t *testing.T) {
	admin := account(0xad)
	alice := account(0xa1)
	when := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	spec := Sample(admin, 7, when)
	spec.Alloc[alice] = "5000"
	spec.Roles = map[string][]string{product.RoleCashier: {alice}}
	spec.ReferralRatio = "500000000000000000"

	raw, err := spec.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded, err := LoadGenesisSpec(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !loaded.GenesisTimestamp().Equal(when) {
		t.Fatalf("unexpected genesis time %s", loaded.GenesisTimestamp())
	}
	if loaded.Ratio().Cmp(big.NewInt(5e17)) != 0 {
		t.Fatalf("unexpected ratio %s", loaded.Ratio())
	}

	rt, err := core.NewRuntime(storage.NewMemDB(), core.Options{ChainID: 7})
	if err != nil {
		t.Fatalf("runtime: %v", err)
	}
	if err := Apply(rt, loaded); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !rt.Bootstrapped() {
		t.Fatalf("runtime should be bootstrapped")
	}
	if got := rt.Block(); got.Height != 0 || got.Timestamp != when.Unix() {
		t.Fatalf("unexpected block context %+v", got)
	}

	adminAddr := loaded.AdminAddress()
	aliceAddr, _ := parseAccount(alice)
	err = rt.View(func(tx *core.Tx) error {
		bal, err := tx.Bank.Balance(aliceAddr)
		if err != nil {
			return err
		}
		if bal.Cmp(big.NewInt(5000)) != 0 {
			t.Fatalf("unexpected alice balance %s", bal)
		}
		if !tx.State.HasRole(product.RoleCashier, aliceAddr) {
			t.Fatalf("cashier role not granted")
		}
		if !tx.Registry.IsReferrer(adminAddr) {
			t.Fatalf("admin should hold a qualification")
		}
		if n, _ := tx.Products.ProductCount(); n != 1 {
			t.Fatalf("expected one product, got %d", n)
		}
		if !tx.Pool.IsSupported(1) || !tx.Pool.IsSupported(tx.Center.Slot()) {
			t.Fatalf("cash pool products not registered")
		}
		ratio, err := tx.Center.ConsumerRatio(core.ProductAddress)
		if err != nil {
			return err
		}
		if ratio.Cmp(big.NewInt(5e17)) != 0 {
			t.Fatalf("unexpected consumer ratio %s", ratio)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}

	if err := Apply(rt, loaded); err == nil {
		t.Fatalf("second apply should fail")
	}
}

func TestApplyRejectsChainMismatch(t *testing.T) {
	spec := Sample(account(0xad), 7, time.Now())
	raw, err := spec.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	loaded, err := ParseGenesisSpec(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	rt, err := core.NewRuntime(storage.NewMemDB(), core.Options{ChainID: 8})
	if err != nil {
		t.Fatalf("runtime: %v", err)
	}
	if err := Apply(rt, loaded); err == nil || !strings.Contains(err.Error(), "chain id") {
		t.Fatalf("expected chain id mismatch, got %v", err)
	}
}

func TestParseGenesisSpecValidation(t *testing.T) {
	admin := account(0xad)
	cases := map[string]string{
		"unknown field":   "genesisTime: \"2024-01-01T00:00:00Z\"\nchainId: 1\nadmin: " + admin + "\nbogus: 1\n",
		"missing admin":   "genesisTime: \"2024-01-01T00:00:00Z\"\nchainId: 1\n",
		"zero chain":      "genesisTime: \"2024-01-01T00:00:00Z\"\nadmin: " + admin + "\n",
		"bad time":        "genesisTime: yesterday\nchainId: 1\nadmin: " + admin + "\n",
		"bad alloc":       "genesisTime: \"2024-01-01T00:00:00Z\"\nchainId: 1\nadmin: " + admin + "\nalloc:\n  " + admin + ": \"-5\"\n",
		"wrong prefix":    "genesisTime: \"2024-01-01T00:00:00Z\"\nchainId: 1\nadmin: bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq\n",
		"ratio too large": "genesisTime: \"2024-01-01T00:00:00Z\"\nchainId: 1\nadmin: " + admin + "\nreferralRatio: \"2000000000000000000\"\n",
		"undefined pool product": "genesisTime: \"2024-01-01T00:00:00Z\"\nchainId: 1\nadmin: " + admin +
			"\ncashPool:\n  products: [9]\n",
	}
	for name, doc := range cases {
		if _, err := ParseGenesisSpec([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
