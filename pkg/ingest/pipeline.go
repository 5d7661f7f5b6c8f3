package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hed1ad/aegis/pkg/logger"
	"github.com/hed1ad/aegis/pkg/metrics"
	"github.com/hed1ad/aegis/pkg/server"
	"github.com/hed1ad/aegis/pkg/store"
	"github.com/hed1ad/aegis/pkg/txn"
)

// State is the lifecycle position of one transaction.
type State string

const (
	StateGenerated State = "generated"
	StateSent      State = "sent"
	StateScored    State = "scored"
	StateDelivered State = "delivered"
	StateFailed    State = "failed"
)

// Scorer scores one transaction.
type Scorer interface {
	Score(ctx context.Context, t txn.Transaction) (server.PredictResponse, error)
}

// Sink persists scored results.
type Sink interface {
	Upsert(ctx context.Context, r store.Result) error
}

// Outcome is reported once per transaction when it reaches a terminal state.
type Outcome struct {
	TxnID string
	State State
	// Stage is the last state reached before failing.
	Stage State
	Err   error
}

// Stats counts terminal states.
type Stats struct {
	Delivered int
	Failed    int
}

// Config tunes a Pipeline.
type Config struct {
	// Delay is slept after every transaction.
	Delay time.Duration
	// StampNow replaces each timestamp with the current UTC time before sending.
	StampNow bool
	// Now defaults to time.Now.
	Now func() time.Time
	// Observer, if set, receives every Outcome.
	Observer func(Outcome)
}

// Pipeline moves transactions from a source through a Scorer into a Sink.
type Pipeline struct {
	scorer Scorer
	sink   Sink
	cfg    Config
}

// New creates a Pipeline.
func New(scorer Scorer, sink Sink, cfg Config) *Pipeline {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pipeline{scorer: scorer, sink: sink, cfg: cfg}
}

// Run processes src strictly in order until it is closed or ctx is
// canceled. A failed transaction is logged and skipped; it is never
// retried.
func (p *Pipeline) Run(ctx context.Context, src <-chan txn.Labeled) (Stats, error) {
	log := logger.FromContext(ctx)
	var stats Stats

	for {
		var (
			rec txn.Labeled
			ok  bool
		)
		select {
		case rec, ok = <-src:
		case <-ctx.Done():
			return stats, ctx.Err()
		}
		if !ok {
			log.Info().Int("delivered", stats.Delivered).Int("failed", stats.Failed).Msg("ingestion finished")
			return stats, nil
		}

		out := p.process(ctx, rec.Transaction)
		metrics.IngestOutcomes.WithLabelValues(string(out.State)).Inc()
		if out.State == StateDelivered {
			stats.Delivered++
		} else {
			stats.Failed++
			log.Warn().Err(out.Err).Str("txn_id", out.TxnID).Str("stage", string(out.Stage)).Msg("transaction failed")
		}
		if p.cfg.Observer != nil {
			p.cfg.Observer(out)
		}

		if p.cfg.Delay > 0 {
			select {
			case <-time.After(p.cfg.Delay):
			case <-ctx.Done():
				return stats, ctx.Err()
			}
		}
	}
}

// process drives one transaction to a terminal state.
func (p *Pipeline) process(ctx context.Context, t txn.Transaction) Outcome {
	log := logger.FromContext(ctx)
	fail := func(stage State, err error) Outcome {
		return Outcome{TxnID: t.ID, State: StateFailed, Stage: stage, Err: err}
	}

	if p.cfg.StampNow {
		t.Timestamp = p.cfg.Now().UTC().Format(txn.TimestampLayout)
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return fail(StateGenerated, err)
	}

	resp, err := p.scorer.Score(ctx, t)
	if err != nil {
		return fail(StateSent, err)
	}

	err = p.sink.Upsert(ctx, store.Result{
		TxnID:     resp.TxnID,
		Timestamp: t.Timestamp,
		Amount:    t.Amount,
		Country:   t.Country,
		Merchant:  t.Merchant,
		IFScore:   resp.IFScore,
		AEMSE:     resp.AEMSE,
		Label:     resp.Label,
		Raw:       string(raw),
	})
	if err != nil {
		return fail(StateScored, err)
	}

	log.Info().Str("txn_id", t.ID).Int("label", resp.Label).Msg("delivered")
	return Outcome{TxnID: t.ID, State: StateDelivered, Stage: StateScored}
}
