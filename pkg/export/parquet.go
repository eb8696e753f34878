package export

import (
	"fmt"

	"github.com/roadrisk/roadrisk/pkg/risk"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"
)

const parallelism = 4

// WriteParquet writes the rows to fw as a snappy compressed parquet file.
func WriteParquet(fw source.ParquetFile, rows []risk.Row) error {
	pw, err := writer.NewParquetWriter(fw, new(risk.Row), parallelism)
	if err != nil {
		return fmt.Errorf("creating parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i := range rows {
		if err := pw.Write(rows[i]); err != nil {
			return fmt.Errorf("writing row %d: %w", i, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("finishing parquet file: %w", err)
	}
	return nil
}

// WriteParquetFile writes the rows to a local parquet file.
func WriteParquetFile(path string, rows []risk.Row) (retErr error) {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		if cerr := fw.Close(); cerr != nil && retErr == nil {
			retErr = fmt.Errorf("closing %s: %w", path, cerr)
		}
	}()
	return WriteParquet(fw, rows)
}
