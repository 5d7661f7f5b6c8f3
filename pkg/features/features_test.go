package features

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/aegis/pkg/txn"
)

func testVocabulary() Vocabulary {
	return Vocabulary{
		Countries: []string{"US", "IN", "GB"},
		Merchants: []string{"amazon", "walmart", "airline", "local_shop"},
	}
}

func TestEncodeScenario(t *testing.T) {
	v := testVocabulary()
	tx := txn.Transaction{
		ID:        "tx1",
		Timestamp: "2024-01-01T23:00:00",
		Amount:    250.0,
		Country:   "US",
		Merchant:  "amazon",
	}

	vec, err := Encode(tx, v)
	require.NoError(t, err)

	want := []float64{
		math.Log(251),
		math.Sin(2 * math.Pi * 23 / 24),
		math.Cos(2 * math.Pi * 23 / 24),
		1, 0, 0,
		1, 0, 0, 0,
	}
	require.Len(t, vec, len(want))
	for i := range want {
		assert.InDelta(t, want[i], vec[i], 1e-12, "column %s", v.Names()[i])
	}
}

func TestEncodeDeterministic(t *testing.T) {
	v := testVocabulary()
	tx := txn.Transaction{ID: "a", Timestamp: "2024-06-01T04:12:00.5", Amount: 13.37, Country: "GB", Merchant: "airline"}

	a, err := Encode(tx, v)
	require.NoError(t, err)
	b, err := Encode(tx, v)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	batch, err := EncodeBatch([]txn.Transaction{tx, tx}, v)
	require.NoError(t, err)
	assert.Equal(t, a, batch[0])
	assert.Equal(t, a, batch[1])
}

func TestEncodeVocabularyClosure(t *testing.T) {
	v := testVocabulary()
	tx := txn.Transaction{ID: "a", Timestamp: "2024-01-01T10:00:00", Amount: 1, Country: "ZZ", Merchant: "casino"}

	vec, err := Encode(tx, v)
	require.NoError(t, err)
	assert.Len(t, vec, v.Width())
	for _, x := range vec[numericWidth:] {
		assert.Zero(t, x)
	}
}

func TestEncodeCyclicalHour(t *testing.T) {
	v := Vocabulary{}
	at := func(ts string) []float64 {
		vec, err := Encode(txn.Transaction{ID: "a", Timestamp: ts}, v)
		require.NoError(t, err)
		return vec
	}
	h23 := at("2024-01-01T23:00:00")
	h0 := at("2024-01-02T00:00:00")
	h12 := at("2024-01-02T12:00:00")

	dist := func(a, b []float64) float64 { return math.Hypot(a[1]-b[1], a[2]-b[2]) }
	assert.Less(t, dist(h23, h0), dist(h0, h12))
	assert.Zero(t, h0[0], "ln(1+0) is zero")
}

func TestEncodeRejects(t *testing.T) {
	v := testVocabulary()
	tests := []struct {
		name string
		tx   txn.Transaction
	}{
		{name: "negative amount", tx: txn.Transaction{ID: "a", Timestamp: "2024-01-01T00:00:00", Amount: -5}},
		{name: "bad timestamp", tx: txn.Transaction{ID: "a", Timestamp: "nope", Amount: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(tt.tx, v)
			assert.ErrorIs(t, err, txn.ErrInvalid)
		})
	}
}

func TestFitVocabulary(t *testing.T) {
	records := []txn.Transaction{
		{Country: "US", Merchant: "amazon"},
		{Country: "US", Merchant: "amazon"},
		{Country: "IN", Merchant: "walmart"},
		{Country: "IN", Merchant: "airline"},
		{Country: "GB", Merchant: "airline"},
		{Country: "DE", Merchant: "amazon"},
	}

	v := FitVocabulary(records, 2, 10)
	assert.Equal(t, []string{"IN", "US"}, v.Countries)
	assert.Equal(t, []string{"amazon", "airline", "walmart"}, v.Merchants)
	assert.Equal(t, []string{
		"amount_log", "hour_sin", "hour_cos",
		"country_IN", "country_US",
		"merchant_amazon", "merchant_airline", "merchant_walmart",
	}, v.Names())
}

func TestScaler(t *testing.T) {
	data := [][]float64{
		{1, 10, 0},
		{3, 10, 0},
		{5, 10, 0},
	}
	s, err := FitScaler(data)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 10, 0}, s.Mean)
	assert.InDelta(t, math.Sqrt(8.0/3.0), s.Std[0], 1e-12)
	assert.Zero(t, s.Std[1])

	t.Run("zero std passes through centered", func(t *testing.T) {
		out, err := Standardize([]float64{5, 12, 1}, s)
		require.NoError(t, err)
		assert.Len(t, out, s.Width())
		assert.InDelta(t, 2/math.Sqrt(8.0/3.0), out[0], 1e-12)
		assert.Equal(t, 2.0, out[1])
		assert.Equal(t, 1.0, out[2])
		for _, x := range out {
			assert.False(t, math.IsNaN(x) || math.IsInf(x, 0))
		}
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := Standardize([]float64{1, 2}, s)
		assert.ErrorIs(t, err, ErrDimension)
	})

	t.Run("ragged rows", func(t *testing.T) {
		_, err := FitScaler([][]float64{{1, 2}, {1}})
		assert.ErrorIs(t, err, ErrDimension)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := FitScaler(nil)
		assert.Error(t, err)
	})
}

func TestStandardizeEncodedWidth(t *testing.T) {
	v := testVocabulary()
	records := []txn.Transaction{
		{ID: "1", Timestamp: "2024-01-01T01:00:00", Amount: 10, Country: "US", Merchant: "amazon"},
		{ID: "2", Timestamp: "2024-01-01T13:00:00", Amount: 99, Country: "IN", Merchant: "walmart"},
	}
	matrix, err := EncodeBatch(records, v)
	require.NoError(t, err)
	s, err := FitScaler(matrix)
	require.NoError(t, err)

	vec, err := Encode(records[0], v)
	require.NoError(t, err)
	out, err := Standardize(vec, s)
	require.NoError(t, err)
	assert.Len(t, out, len(s.Mean))
}

func TestArtifactRoundTrip(t *testing.T) {
	v := testVocabulary()
	s := Scaler{Mean: make([]float64, v.Width()), Std: make([]float64, v.Width())}
	for i := range s.Mean {
		s.Mean[i] = 0.1 * float64(i)
		s.Std[i] = 1.0 / 3.0
	}
	a, err := NewArtifact(v, s)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, a.Write(&buf))
	loaded, err := ReadArtifact(&buf)
	require.NoError(t, err)
	assert.Equal(t, a, loaded)

	tx := txn.Transaction{ID: "x", Timestamp: "2024-01-01T08:00:00", Amount: 42, Country: "IN", Merchant: "local_shop"}
	want, err := a.Transform(tx)
	require.NoError(t, err)
	got, err := loaded.Transform(tx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestArtifactRejectsMismatch(t *testing.T) {
	v := testVocabulary()
	_, err := NewArtifact(v, Scaler{Mean: []float64{0}, Std: []float64{1}})
	assert.ErrorIs(t, err, ErrDimension)

	_, err = ReadArtifact(bytes.NewBufferString(`{"version":1,"names":["amount_log","hour_sin","hour_cos"],"vocabulary":{},"scaler":{"mean":[0,0],"std":[1,1]}}`))
	assert.ErrorIs(t, err, ErrDimension)

	_, err = ReadArtifact(bytes.NewBufferString(`{"version":9}`))
	assert.Error(t, err)
}

func BenchmarkEncode(b *testing.B) {
	v := testVocabulary()
	tx := txn.Transaction{ID: "a", Timestamp: "2024-01-01T23:00:00", Amount: 250, Country: "US", Merchant: "amazon"}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Encode(tx, v)
	}
}
