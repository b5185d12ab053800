package utils

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"chartWizard/internal/domain"
)

var barHeader = []string{"bucket_start", "symbol", "interval_seconds", "open", "high", "low", "close", "volume"}

// BarFileName returns the file name used for a symbol's bars at interval.
func BarFileName(symbol string, interval time.Duration) string {
	return fmt.Sprintf("%s_%ds.csv", symbol, int64(interval/time.Second))
}

// WriteBarsToCSV writes bars to filename, creating parent directories as needed.
func WriteBarsToCSV(bars []domain.Bar, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	// Write header
	if err := writer.Write(barHeader); err != nil {
		return err
	}

	for _, b := range bars {
		err := writer.Write([]string{
			b.BucketStart.UTC().Format(time.RFC3339),
			b.Symbol,
			strconv.FormatInt(int64(b.Interval/time.Second), 10),
			b.Open.String(),
			b.High.String(),
			b.Low.String(),
			b.Close.String(),
			strconv.FormatInt(b.Volume, 10),
		})
		if err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadBarsFromCSV reads bars written by WriteBarsToCSV. Every bar read is final.
func ReadBarsFromCSV(filename string) ([]domain.Bar, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = len(barHeader)

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}

	var bars []domain.Bar
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		b, err := parseBarRecord(record)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", filename, line, err)
		}
		bars = append(bars, b)
	}
	return bars, nil
}

func parseBarRecord(record []string) (domain.Bar, error) {
	start, err := time.Parse(time.RFC3339, record[0])
	if err != nil {
		return domain.Bar{}, fmt.Errorf("parsing bucket_start: %w", err)
	}
	secs, err := strconv.ParseInt(record[2], 10, 64)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("parsing interval_seconds: %w", err)
	}
	prices := make([]decimal.Decimal, 4)
	for i := range prices {
		prices[i], err = decimal.NewFromString(record[3+i])
		if err != nil {
			return domain.Bar{}, fmt.Errorf("parsing %s: %w", barHeader[3+i], err)
		}
	}
	volume, err := strconv.ParseInt(record[7], 10, 64)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("parsing volume: %w", err)
	}

	return domain.Bar{
		Symbol:      record[1],
		BucketStart: start,
		Interval:    time.Duration(secs) * time.Second,
		Open:        prices[0],
		High:        prices[1],
		Low:         prices[2],
		Close:       prices[3],
		Volume:      volume,
		Final:       true,
	}, nil
}
