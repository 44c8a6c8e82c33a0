package indexer

import (
	"context"
	"fmt"
	"os"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type parquetRow struct {
	ID         int64  `parquet:"name=id, type=INT64"`
	Height     int64  `parquet:"name=height, type=INT64"`
	Position   int32  `parquet:"name=position, type=INT32"`
	Timestamp  int64  `parquet:"name=timestamp, type=INT64"`
	Op         string `parquet:"name=op, type=BYTE_ARRAY, convertedtype=UTF8"`
	Type       string `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Attributes string `parquet:"name=attributes, type=BYTE_ARRAY, convertedtype=UTF8"`
}

const exportPage = 500

// ExportParquet writes every event matching f to path and returns the
// number of rows written. Paging fields of f are ignored.
func (i *Indexer) ExportParquet(ctx context.Context, path string, f Filter) (int, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("indexer: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		file.Close()
		return 0, fmt.Errorf("indexer: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	written := 0
	page := f
	page.Limit = exportPage
	page.Offset = 0
	for {
		if err := ctx.Err(); err != nil {
			pw.WriteStop()
			file.Close()
			return written, err
		}
		rows, err := i.List(ctx, page)
		if err != nil {
			pw.WriteStop()
			file.Close()
			return written, err
		}
		for _, rec := range rows {
			pr := &parquetRow{
				ID:         int64(rec.ID),
				Height:     int64(rec.Height),
				Position:   int32(rec.Position),
				Timestamp:  rec.Timestamp,
				Op:         rec.Op,
				Type:       rec.Type,
				Attributes: rec.Attributes,
			}
			if err := pw.Write(pr); err != nil {
				pw.WriteStop()
				file.Close()
				return written, fmt.Errorf("indexer: parquet write: %w", err)
			}
			written++
		}
		if len(rows) < exportPage {
			break
		}
		page.Offset += len(rows)
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return written, fmt.Errorf("indexer: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return written, fmt.Errorf("indexer: close parquet file: %w", err)
	}
	return written, nil
}
