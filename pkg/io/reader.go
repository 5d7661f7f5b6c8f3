// Package io provides input/output interfaces for transaction datasets.
package io

import (
	"context"

	"github.com/hed1ad/aegis/pkg/txn"
)

// Reader is the interface for reading transactions from various sources.
type Reader interface {
	// Read returns the complete dataset.
	Read() ([]txn.Labeled, error)

	// Stream returns a channel of records for sequential processing.
	Stream(ctx context.Context) (<-chan txn.Labeled, error)

	// Close releases resources.
	Close() error
}

// Writer is the interface for writing transaction datasets.
type Writer interface {
	// Write outputs a single record.
	Write(record txn.Labeled) error

	// WriteAll outputs multiple records.
	WriteAll(records []txn.Labeled) error

	// Close flushes and releases resources.
	Close() error
}
