package indexer

import (
	"context"
	"fmt"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"voucherchain/core"
	"voucherchain/core/events"
	"voucherchain/storage"
)

func newTestIndexer(t *testing.T) *Indexer {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := Open(DriverSQLite, dsn)
	require.NoError(t, err)
	idx, err := New(db, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func committed(height uint64, index int, evt events.Event) events.Committed {
	return events.Committed{Height: height, Timestamp: int64(height) * 30, Op: "test", Index: index, Event: evt}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "dsn")
	require.ErrorIs(t, err, ErrUnknownDriver)
}

func TestStoreAndList(t *testing.T) {
	idx := newTestIndexer(t)
	ctx := context.Background()

	idx.Emit(committed(1, 0, events.NativeTransfer{To: [20]byte{1}, Amount: big.NewInt(5)}))
	idx.Emit(committed(2, 0, events.AddedProduct{ProductID: 7}))
	idx.Emit(committed(2, 1, events.NativeTransfer{From: [20]byte{1}, To: [20]byte{2}, Amount: big.NewInt(3)}))
	idx.Emit(events.AddedProduct{ProductID: 9})

	all, err := idx.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, uint64(1), all[0].Height)
	require.Equal(t, 1, all[2].Position)

	transfers, err := idx.List(ctx, Filter{Type: events.TypeBankTransfer})
	require.NoError(t, err)
	require.Len(t, transfers, 2)
	attrs, err := transfers[1].Attrs()
	require.NoError(t, err)
	require.Equal(t, "3", attrs["amount"])

	fromTwo, err := idx.List(ctx, Filter{FromHeight: 2, Limit: 1})
	require.NoError(t, err)
	require.Len(t, fromTwo, 1)
	require.Equal(t, events.TypeCashPoolProductAdded, fromTwo[0].Type)

	n, err := idx.Count(ctx, Filter{ToHeight: 1})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestRuntimeSink(t *testing.T) {
	idx := newTestIndexer(t)
	rt, err := core.NewRuntime(storage.NewMemDB(), core.Options{ChainID: 3, Emitter: idx})
	require.NoError(t, err)
	admin := [20]byte{0xad}
	require.NoError(t, rt.SetBlock(5, 1_700_000_000))
	require.NoError(t, rt.Bootstrap(admin, nil))
	require.NoError(t, rt.Credit(admin, [20]byte{0xb0}, big.NewInt(10)))

	rows, err := idx.List(context.Background(), Filter{Type: events.TypeBankTransfer})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, uint64(5), rows[0].Height)
	require.Equal(t, "bank_credit", rows[0].Op)
}

func TestExportParquet(t *testing.T) {
	idx := newTestIndexer(t)
	for h := uint64(1); h <= exportPage+20; h++ {
		require.NoError(t, idx.Store(committed(h, 0, events.AddedProduct{ProductID: h})))
	}
	path := filepath.Join(t.TempDir(), "events.parquet")
	written, err := idx.ExportParquet(context.Background(), path, Filter{})
	require.NoError(t, err)
	require.Equal(t, exportPage+20, written)

	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(parquetRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()
	require.Equal(t, int64(written), pr.GetNumRows())

	rows := make([]parquetRow, 2)
	require.NoError(t, pr.Read(&rows))
	require.Equal(t, int64(1), rows[0].Height)
	require.Equal(t, events.TypeCashPoolProductAdded, rows[1].Type)
}
