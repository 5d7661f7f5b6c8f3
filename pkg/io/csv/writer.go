package csv

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/hed1ad/aegis/pkg/txn"
)

// Writer writes transactions as CSV with Header as the first row.
type Writer struct {
	file   io.Closer
	writer *csv.Writer
}

// Create creates filename, including parent directories, and writes the header.
func Create(filename string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return nil, err
	}
	file, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	w, err := newWriter(file, file)
	if err != nil {
		file.Close()
		return nil, err
	}
	return w, nil
}

// NewWriter writes CSV to dst. Close flushes but does not close dst.
func NewWriter(dst io.Writer) (*Writer, error) {
	return newWriter(dst, nil)
}

func newWriter(dst io.Writer, closer io.Closer) (*Writer, error) {
	w := &Writer{file: closer, writer: csv.NewWriter(dst)}
	if err := w.writer.Write(Header); err != nil {
		return nil, err
	}
	return w, nil
}

// Write outputs a single record.
func (w *Writer) Write(rec txn.Labeled) error {
	label := ""
	if rec.HasLabel {
		label = strconv.Itoa(rec.Label)
	}
	return w.writer.Write([]string{
		rec.ID,
		rec.Timestamp,
		strconv.FormatFloat(rec.Amount, 'f', -1, 64),
		rec.Country,
		rec.Merchant,
		rec.CardNum,
		label,
	})
}

// WriteAll outputs multiple records.
func (w *Writer) WriteAll(records []txn.Labeled) error {
	for _, rec := range records {
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.writer.Flush()
	return w.writer.Error()
}

// Close flushes buffered rows and closes the underlying file.
func (w *Writer) Close() error {
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		if w.file != nil {
			w.file.Close()
		}
		return err
	}
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}
