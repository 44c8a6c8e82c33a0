package main

import (
	"context"
	"log/slog"
	"time"

	"voucherchain/core/types"
)

// blockSetter is the slice of the runtime the producer drives.
type blockSetter interface {
	Block() types.BlockContext
	SetBlock(height uint64, timestamp int64) error
}

// produceBlocks advances the chain by one block per interval until ctx is
// done. Timestamps follow the wall clock but never move backwards.
func produceBlocks(ctx context.Context, rt blockSetter, interval time.Duration, now func() time.Time, logger *slog.Logger) {
	if interval <= 0 {
		logger.Warn("block production disabled", "interval", interval)
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := nextBlock(rt, now()); err != nil {
				logger.Error("produce block", "error", err)
			}
		}
	}
}

func nextBlock(rt blockSetter, at time.Time) error {
	current := rt.Block()
	ts := at.Unix()
	if ts < current.Timestamp {
		ts = current.Timestamp
	}
	return rt.SetBlock(current.Height+1, ts)
}
