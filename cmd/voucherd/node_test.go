package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"voucherchain/core"
	"voucherchain/core/genesis"
	"voucherchain/crypto"
	"voucherchain/storage"
)

func TestApplyGenesisFromSample(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	admin := key.PubKey().Address()
	data, err := genesis.Sample(admin.String(), 1337, time.Unix(1_700_000_000, 0)).Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	rt, err := core.NewRuntime(storage.NewMemDB(), core.Options{ChainID: 1337})
	if err != nil {
		t.Fatalf("runtime: %v", err)
	}
	if err := applyGenesis(rt, path); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !rt.Bootstrapped() {
		t.Fatalf("expected bootstrapped runtime")
	}
	if got := rt.Block(); got.Height != 0 || got.Timestamp != 1_700_000_000 {
		t.Fatalf("unexpected genesis block %+v", got)
	}

	if err := applyGenesis(rt, ""); err == nil {
		t.Fatalf("expected error without genesis file")
	}
}
