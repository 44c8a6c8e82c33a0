package main

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"voucherchain/core"
	"voucherchain/core/types"
	"voucherchain/storage"
)

type fakeChain struct {
	mu    sync.Mutex
	block types.BlockContext
}

func (f *fakeChain) Block() types.BlockContext {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.block
}

func (f *fakeChain) SetBlock(height uint64, timestamp int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.block = types.BlockContext{Height: height, Timestamp: timestamp}
	return nil
}

func TestNextBlockNeverRewindsTime(t *testing.T) {
	rt, err := core.NewRuntime(storage.NewMemDB(), core.Options{ChainID: 1})
	if err != nil {
		t.Fatalf("runtime: %v", err)
	}
	if err := rt.SetBlock(4, 1_700_000_000); err != nil {
		t.Fatalf("set block: %v", err)
	}
	if err := nextBlock(rt, time.Unix(1_600_000_000, 0)); err != nil {
		t.Fatalf("next block: %v", err)
	}
	got := rt.Block()
	if got.Height != 5 || got.Timestamp != 1_700_000_000 {
		t.Fatalf("unexpected block %+v", got)
	}
	if err := nextBlock(rt, time.Unix(1_700_000_090, 0)); err != nil {
		t.Fatalf("next block: %v", err)
	}
	if got := rt.Block(); got.Height != 6 || got.Timestamp != 1_700_000_090 {
		t.Fatalf("unexpected block %+v", got)
	}
}

func TestProduceBlocksStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	chain := &fakeChain{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		produceBlocks(ctx, chain, 5*time.Millisecond, time.Now, logger)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for chain.Block().Height < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("producer did not advance, height %d", chain.Block().Height)
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
}
