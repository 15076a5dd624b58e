// Package store persists sweep results as Parquet files.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"adcrate/core"
)

// ResultRecord is one sweep step as stored on disk
type ResultRecord struct {
	TimestampMs  int64   `parquet:"name=ts, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Source       string  `parquet:"name=source, type=BYTE_ARRAY, convertedtype=UTF8"`
	ConfiguredHz float64 `parquet:"name=configured_hz, type=DOUBLE"`
	MeasuredHz   float64 `parquet:"name=measured_hz, type=DOUBLE"`
	Ratio        float64 `parquet:"name=ratio, type=DOUBLE"`
	Overflows    int64   `parquet:"name=overflows, type=INT64"`
	Samples      int64   `parquet:"name=samples, type=INT64"`
	TargetBytes  int64   `parquet:"name=target_bytes, type=INT64"`
	Reads        int32   `parquet:"name=reads, type=INT32"`
	DurationUs   int64   `parquet:"name=duration_us, type=INT64"`
}

// NewRecord converts a sweep result taken at ts
func NewRecord(source string, ts time.Time, res core.SweepResult) ResultRecord {
	return ResultRecord{
		TimestampMs:  ts.UnixMilli(),
		Source:       source,
		ConfiguredHz: res.ConfiguredHz,
		MeasuredHz:   res.MeasuredHz,
		Ratio:        res.Ratio,
		Overflows:    int64(res.Overflows),
		Samples:      int64(res.Samples),
		TargetBytes:  int64(res.TargetBytes),
		Reads:        int32(res.Reads),
		DurationUs:   int64(res.DurationUs),
	}
}

// ParquetWriter batches sweep results into a Parquet file.
// It implements core.Reporter.
type ParquetWriter struct {
	writer    *writer.ParquetWriter
	file      source.ParquetFile
	mutex     sync.Mutex
	filePath  string
	source    string
	batchSize int
	results   []ResultRecord
	now       func() time.Time
}

// NewParquetWriter creates adcrate-<source>-<timestamp>.parquet in outputDir
func NewParquetWriter(outputDir, source string, batchSize int) (*ParquetWriter, error) {
	if batchSize <= 0 {
		batchSize = 1
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	fileName := fmt.Sprintf("adcrate-%s-%s.parquet", source, timestamp)
	filePath := filepath.Join(outputDir, fileName)

	file, err := local.NewLocalFileWriter(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet file: %w", err)
	}

	pw, err := writer.NewParquetWriter(file, new(ResultRecord), 4)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	return &ParquetWriter{
		writer:    pw,
		file:      file,
		filePath:  filePath,
		source:    source,
		batchSize: batchSize,
		results:   make([]ResultRecord, 0, batchSize),
		now:       time.Now,
	}, nil
}

// Report adds a result to the batch and flushes if the batch is full
func (pw *ParquetWriter) Report(res core.SweepResult) error {
	pw.mutex.Lock()
	defer pw.mutex.Unlock()

	pw.results = append(pw.results, NewRecord(pw.source, pw.now(), res))

	if len(pw.results) >= pw.batchSize {
		return pw.flush()
	}

	return nil
}

func (pw *ParquetWriter) flush() error {
	if len(pw.results) == 0 {
		return nil
	}

	for _, result := range pw.results {
		if err := pw.writer.Write(result); err != nil {
			return fmt.Errorf("failed to write result: %w", err)
		}
	}

	pw.results = pw.results[:0]
	return nil
}

// Close flushes any remaining results and closes the file
func (pw *ParquetWriter) Close() error {
	pw.mutex.Lock()
	defer pw.mutex.Unlock()

	if err := pw.flush(); err != nil {
		return err
	}

	if err := pw.writer.WriteStop(); err != nil {
		return fmt.Errorf("failed to stop parquet writer: %w", err)
	}

	if err := pw.file.Close(); err != nil {
		return fmt.Errorf("failed to close parquet file: %w", err)
	}

	return nil
}

// FilePath returns the path of the written file
func (pw *ParquetWriter) FilePath() string {
	return pw.filePath
}
