// Package txn defines the transaction record scored by the pipeline.
package txn

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid transaction")

// Transaction is an immutable payment record.
type Transaction struct {
	ID        string  `json:"txn_id"`
	Timestamp string  `json:"timestamp"`
	Amount    float64 `json:"amount"`
	Country   string  `json:"country"`
	Merchant  string  `json:"merchant"`
	CardNum   string  `json:"card_num,omitempty"`
}

// Labeled pairs a transaction with its ground-truth label.
// The label is only used for offline evaluation.
type Labeled struct {
	Transaction
	Label    int
	HasLabel bool
}

// TimestampLayout is the layout used when aegis itself stamps a transaction.
const TimestampLayout = "2006-01-02T15:04:05.000000"

// timestampLayouts are tried in order. Layouts without an offset are parsed as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 timestamp. The returned time keeps the
// stated offset so Hour() reports the wall-clock hour of the record.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty timestamp", ErrInvalid)
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparsable timestamp %q", ErrInvalid, s)
}

// Validate checks the fields the feature codec depends on.
func (t Transaction) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: txn_id is required", ErrInvalid)
	}
	if math.IsNaN(t.Amount) || math.IsInf(t.Amount, 0) {
		return fmt.Errorf("%w: amount must be finite", ErrInvalid)
	}
	if t.Amount < 0 {
		return fmt.Errorf("%w: amount %v is negative", ErrInvalid, t.Amount)
	}
	if _, err := ParseTimestamp(t.Timestamp); err != nil {
		return err
	}
	return nil
}

// Hour returns the hour of day of the transaction timestamp.
func (t Transaction) Hour() (int, error) {
	ts, err := ParseTimestamp(t.Timestamp)
	if err != nil {
		return 0, err
	}
	return ts.Hour(), nil
}
