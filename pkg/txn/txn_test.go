package txn

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantHour int
		wantErr  bool
	}{
		{name: "naive seconds", input: "2024-01-01T23:00:00", wantHour: 23},
		{name: "naive micros", input: "2024-03-05T07:15:42.123456", wantHour: 7},
		{name: "utc designator", input: "2024-01-01T00:30:00Z", wantHour: 0},
		{name: "offset keeps wall clock", input: "2024-01-01T05:00:00+05:30", wantHour: 5},
		{name: "space separator", input: "2024-01-01 12:00:00", wantHour: 12},
		{name: "date only", input: "2024-01-01", wantHour: 0},
		{name: "empty", input: "", wantErr: true},
		{name: "garbage", input: "yesterday", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, err := ParseTimestamp(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHour, ts.Hour())
		})
	}
}

func TestValidate(t *testing.T) {
	valid := Transaction{
		ID:        "tx00000001",
		Timestamp: "2024-01-01T23:00:00",
		Amount:    250,
		Country:   "US",
		Merchant:  "amazon",
	}

	tests := []struct {
		name    string
		mutate  func(*Transaction)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Transaction) {}},
		{name: "zero amount", mutate: func(tx *Transaction) { tx.Amount = 0 }},
		{name: "empty categories", mutate: func(tx *Transaction) { tx.Country, tx.Merchant = "", "" }},
		{name: "negative amount", mutate: func(tx *Transaction) { tx.Amount = -5 }, wantErr: true},
		{name: "nan amount", mutate: func(tx *Transaction) { tx.Amount = math.NaN() }, wantErr: true},
		{name: "inf amount", mutate: func(tx *Transaction) { tx.Amount = math.Inf(1) }, wantErr: true},
		{name: "missing id", mutate: func(tx *Transaction) { tx.ID = "" }, wantErr: true},
		{name: "bad timestamp", mutate: func(tx *Transaction) { tx.Timestamp = "01/02/2024" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := valid
			tt.mutate(&tx)
			err := tx.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalid)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
