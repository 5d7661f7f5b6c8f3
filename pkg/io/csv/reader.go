// Package csv reads and writes transaction datasets as CSV files with a
// header row.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/hed1ad/aegis/pkg/txn"
)

// Column names of the historical dataset.
const (
	ColID        = "txn_id"
	ColTimestamp = "timestamp"
	ColAmount    = "amount"
	ColCountry   = "country"
	ColMerchant  = "merchant"
	ColCardNum   = "card_num"
	ColLabel     = "label"
)

// Header is the column order used by Writer.
var Header = []string{ColID, ColTimestamp, ColAmount, ColCountry, ColMerchant, ColCardNum, ColLabel}

var requiredColumns = []string{ColID, ColTimestamp, ColAmount, ColCountry, ColMerchant}

// Reader reads transactions from a CSV file.
type Reader struct {
	file    io.Closer
	reader  *csv.Reader
	headers []string
	index   map[string]int
	strict  bool
	skipped int
}

// Option configures a CSV reader.
type Option func(*Reader)

// WithStrict makes malformed rows fail the read instead of being skipped.
func WithStrict(strict bool) Option {
	return func(r *Reader) {
		r.strict = strict
	}
}

// NewReader opens filename and reads its header.
func NewReader(filename string, opts ...Option) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	r, err := newReader(file, file, opts...)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return r, nil
}

// FromReader reads CSV data from src. Close is a no-op.
func FromReader(src io.Reader, opts ...Option) (*Reader, error) {
	return newReader(src, nil, opts...)
}

func newReader(src io.Reader, closer io.Closer, opts ...Option) (*Reader, error) {
	r := &Reader{
		file:   closer,
		reader: csv.NewReader(src),
		index:  make(map[string]int),
	}
	r.reader.FieldsPerRecord = -1

	for _, opt := range opts {
		opt(r)
	}

	headers, err := r.reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	r.headers = headers
	for i, h := range headers {
		r.index[strings.TrimSpace(h)] = i
	}
	for _, col := range requiredColumns {
		if _, ok := r.index[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	return r, nil
}

// Headers returns the column headers.
func (r *Reader) Headers() []string {
	return r.headers
}

// Skipped returns how many malformed rows have been dropped so far.
func (r *Reader) Skipped() int {
	return r.skipped
}

// Read returns all remaining records.
func (r *Reader) Read() ([]txn.Labeled, error) {
	var data []txn.Labeled

	for {
		rec, ok, err := r.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return data, nil
		}
		data = append(data, rec)
	}
}

// Stream returns a channel of records for sequential processing. A strict
// reader stops streaming at the first malformed row.
func (r *Reader) Stream(ctx context.Context) (<-chan txn.Labeled, error) {
	out := make(chan txn.Labeled, 100)

	go func() {
		defer close(out)
		for {
			rec, ok, err := r.next()
			if err != nil || !ok {
				return
			}
			select {
			case out <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// next returns the next well-formed record; ok is false at end of input.
func (r *Reader) next() (txn.Labeled, bool, error) {
	for {
		record, err := r.reader.Read()
		if errors.Is(err, io.EOF) {
			return txn.Labeled{}, false, nil
		}
		if err == nil {
			var rec txn.Labeled
			rec, err = r.parseRow(record)
			if err == nil {
				return rec, true, nil
			}
		}
		if r.strict {
			return txn.Labeled{}, false, err
		}
		r.skipped++
	}
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

func (r *Reader) field(record []string, col string) string {
	i, ok := r.index[col]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// parseRow converts a CSV record into a labeled transaction.
func (r *Reader) parseRow(record []string) (txn.Labeled, error) {
	amount, err := strconv.ParseFloat(r.field(record, ColAmount), 64)
	if err != nil {
		return txn.Labeled{}, fmt.Errorf("amount: %w", err)
	}
	rec := txn.Labeled{
		Transaction: txn.Transaction{
			ID:        r.field(record, ColID),
			Timestamp: r.field(record, ColTimestamp),
			Amount:    amount,
			Country:   r.field(record, ColCountry),
			Merchant:  r.field(record, ColMerchant),
			CardNum:   r.field(record, ColCardNum),
		},
	}
	if err := rec.Validate(); err != nil {
		return txn.Labeled{}, err
	}

	if s := r.field(record, ColLabel); s != "" {
		label, err := strconv.Atoi(s)
		if err != nil || (label != 0 && label != 1) {
			return txn.Labeled{}, fmt.Errorf("label %q is not 0 or 1", s)
		}
		rec.Label = label
		rec.HasLabel = true
	}
	return rec, nil
}
