// Package features implements the feature-vector contract shared by
// training and serving: the categorical vocabulary, the transaction
// encoder, and the standard scaler.
//
// Training and inference must both go through Encode. A vector produced
// any other way has no guaranteed column layout.
package features

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/hed1ad/aegis/pkg/txn"
)

// ErrDimension is returned when a vector does not match the expected width.
var ErrDimension = errors.New("feature dimension mismatch")

// Leading numeric columns, in order.
const (
	AmountLog = "amount_log"
	HourSin   = "hour_sin"
	HourCos   = "hour_cos"

	numericWidth = 3
)

// Vocabulary is the ordered set of categorical values recognized by the
// encoder. It is captured once at training time and never modified.
type Vocabulary struct {
	Countries []string `json:"countries"`
	Merchants []string `json:"merchants"`
}

// Width returns the length of every vector encoded with this vocabulary.
func (v Vocabulary) Width() int {
	return numericWidth + len(v.Countries) + len(v.Merchants)
}

// Names returns the column names in encoding order.
func (v Vocabulary) Names() []string {
	names := make([]string, 0, v.Width())
	names = append(names, AmountLog, HourSin, HourCos)
	for _, c := range v.Countries {
		names = append(names, "country_"+c)
	}
	for _, m := range v.Merchants {
		names = append(names, "merchant_"+m)
	}
	return names
}

// FitVocabulary keeps the topCountries most frequent countries and the
// topMerchants most frequent merchants of the corpus. Equal counts are
// ordered lexically.
func FitVocabulary(records []txn.Transaction, topCountries, topMerchants int) Vocabulary {
	countries := make(map[string]int)
	merchants := make(map[string]int)
	for _, r := range records {
		countries[r.Country]++
		merchants[r.Merchant]++
	}
	return Vocabulary{
		Countries: mostFrequent(countries, topCountries),
		Merchants: mostFrequent(merchants, topMerchants),
	}
}

func mostFrequent(counts map[string]int, n int) []string {
	values := make([]string, 0, len(counts))
	for v := range counts {
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool {
		if counts[values[i]] != counts[values[j]] {
			return counts[values[i]] > counts[values[j]]
		}
		return values[i] < values[j]
	})
	if n < len(values) {
		values = values[:n]
	}
	return values
}

// Encode maps a transaction to its feature vector:
//
//	[amount_log, hour_sin, hour_cos, country indicators..., merchant indicators...]
//
// Categories outside the vocabulary leave all their indicators at zero.
func Encode(t txn.Transaction, v Vocabulary) ([]float64, error) {
	if math.IsNaN(t.Amount) || math.IsInf(t.Amount, 0) || t.Amount < 0 {
		return nil, fmt.Errorf("%w: amount %v out of domain", txn.ErrInvalid, t.Amount)
	}
	hour, err := t.Hour()
	if err != nil {
		return nil, err
	}

	vec := make([]float64, v.Width())
	angle := 2 * math.Pi * float64(hour) / 24
	vec[0] = math.Log1p(t.Amount)
	vec[1] = math.Sin(angle)
	vec[2] = math.Cos(angle)

	offset := numericWidth
	for i, c := range v.Countries {
		if t.Country == c {
			vec[offset+i] = 1
		}
	}
	offset += len(v.Countries)
	for i, m := range v.Merchants {
		if t.Merchant == m {
			vec[offset+i] = 1
		}
	}
	return vec, nil
}

// EncodeBatch encodes every record with Encode. It fails on the first
// record that cannot be encoded.
func EncodeBatch(records []txn.Transaction, v Vocabulary) ([][]float64, error) {
	out := make([][]float64, len(records))
	for i, r := range records {
		vec, err := Encode(r, v)
		if err != nil {
			return nil, fmt.Errorf("record %d (%s): %w", i, r.ID, err)
		}
		out[i] = vec
	}
	return out, nil
}
