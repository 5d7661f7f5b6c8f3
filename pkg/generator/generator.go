// Package generator produces synthetic card transactions with a
// ground-truth fraud label.
package generator

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/hed1ad/aegis/pkg/txn"
)

var (
	// Countries are sampled uniformly.
	Countries = []string{"IN", "US", "GB", "CN", "DE", "FR", "JP"}
	// Merchants are sampled uniformly.
	Merchants = []string{"amazon", "walmart", "flipkart", "local_shop", "electronics_mall", "airline"}
)

// Generator builds transactions from a seeded source. It is not safe for
// concurrent use.
type Generator struct {
	rng *rand.Rand
	now func() time.Time

	amountScale float64
	lookback    int
}

// Option configures a Generator.
type Option func(*Generator)

// WithSeed sets the random seed for reproducibility.
func WithSeed(seed int64) Option {
	return func(g *Generator) {
		g.rng = rand.New(rand.NewSource(seed))
	}
}

// WithClock sets the reference time that timestamps are drawn back from.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// New creates a Generator.
func New(opts ...Option) *Generator {
	g := &Generator{
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		now:         time.Now,
		amountScale: 50,
		lookback:    30,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ID returns the transaction id of the i-th generated row.
func ID(i int) string {
	return fmt.Sprintf("tx%08d", i)
}

// Row generates the i-th transaction. Its timestamp falls within the last
// 30 days. Amounts above 200 outside IN are labeled fraud 60% of the time,
// and 0.5% of all rows are labeled fraud at random.
func (g *Generator) Row(i int) txn.Labeled {
	base := g.now().UTC().AddDate(0, 0, -g.rng.Intn(g.lookback+1))
	ts := base.Add(time.Duration(g.rng.Intn(86401)) * time.Second)

	amount := math.Round(g.rng.ExpFloat64()*g.amountScale*100) / 100
	country := Countries[g.rng.Intn(len(Countries))]
	merchant := Merchants[g.rng.Intn(len(Merchants))]
	card := strconv.FormatInt(4000000000000000+g.rng.Int63n(1000000000000000), 10)

	label := 0
	if amount > 200 && country != "IN" && g.rng.Float64() < 0.6 {
		label = 1
	}
	if g.rng.Float64() < 0.005 {
		label = 1
	}

	return txn.Labeled{
		Transaction: txn.Transaction{
			ID:        ID(i),
			Timestamp: ts.Format(txn.TimestampLayout),
			Amount:    amount,
			Country:   country,
			Merchant:  merchant,
			CardNum:   card,
		},
		Label:    label,
		HasLabel: true,
	}
}

// Generate returns n rows numbered from zero.
func (g *Generator) Generate(n int) []txn.Labeled {
	rows := make([]txn.Labeled, n)
	for i := range rows {
		rows[i] = g.Row(i)
	}
	return rows
}

// Stream emits count rows, numbered from zero, on the returned channel.
// A negative count streams until ctx is canceled.
func (g *Generator) Stream(ctx context.Context, count int) <-chan txn.Labeled {
	out := make(chan txn.Labeled)

	go func() {
		defer close(out)
		for i := 0; count < 0 || i < count; i++ {
			select {
			case out <- g.Row(i):
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
