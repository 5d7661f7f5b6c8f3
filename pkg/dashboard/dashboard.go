// Package dashboard summarizes the result store for operators.
package dashboard

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/hed1ad/aegis/pkg/logger"
	"github.com/hed1ad/aegis/pkg/store"
)

const (
	topCountries  = 10
	latestFlagged = 50
	recentRows    = 200
	barWidth      = 40
)

// Source is the read side of the result store.
type Source interface {
	Recent(ctx context.Context, limit int) ([]store.Result, error)
}

// CountryCount is one bar of the flagged-by-country chart.
type CountryCount struct {
	Country string
	Count   int
}

// Snapshot is everything one dashboard frame shows.
type Snapshot struct {
	Total     int
	Flagged   int
	Latest    []store.Result
	Countries []CountryCount
	Recent    []store.Result
}

// Build aggregates results, which must be ordered most recent first.
func Build(results []store.Result) Snapshot {
	s := Snapshot{Total: len(results)}

	counts := make(map[string]int)
	for _, r := range results {
		if r.Label != 1 {
			continue
		}
		s.Flagged++
		counts[r.Country]++
		if len(s.Latest) < latestFlagged {
			s.Latest = append(s.Latest, r)
		}
	}

	for c, n := range counts {
		s.Countries = append(s.Countries, CountryCount{Country: c, Count: n})
	}
	sort.Slice(s.Countries, func(i, j int) bool {
		if s.Countries[i].Count != s.Countries[j].Count {
			return s.Countries[i].Count > s.Countries[j].Count
		}
		return s.Countries[i].Country < s.Countries[j].Country
	})
	if len(s.Countries) > topCountries {
		s.Countries = s.Countries[:topCountries]
	}

	s.Recent = results
	if len(s.Recent) > recentRows {
		s.Recent = s.Recent[:recentRows]
	}
	return s
}

// Render writes s as plain-text tables.
func Render(w io.Writer, s Snapshot) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	if s.Total == 0 {
		fmt.Fprintln(tw, "No transactions yet. Run `aegis produce` to stream transactions.")
		return tw.Flush()
	}

	fmt.Fprintf(tw, "Total transactions\t%d\n", s.Total)
	fmt.Fprintf(tw, "Flagged transactions\t%d\n\n", s.Flagged)

	fmt.Fprintln(tw, "== Latest flagged ==")
	if len(s.Latest) == 0 {
		fmt.Fprintln(tw, "No fraudulent transactions detected yet.")
	} else {
		fmt.Fprintln(tw, "TXN_ID\tTIMESTAMP\tAMOUNT\tCOUNTRY\tMERCHANT\tIF_SCORE\tAE_MSE")
		for _, r := range s.Latest {
			fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\t%s\t%.4f\t%.4f\n",
				r.TxnID, r.Timestamp, r.Amount, r.Country, r.Merchant, r.IFScore, r.AEMSE)
		}
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "== Flagged by country ==")
	if len(s.Countries) == 0 {
		fmt.Fprintln(tw, "No flagged data available.")
	} else {
		top := s.Countries[0].Count
		for _, c := range s.Countries {
			n := c.Count * barWidth / top
			if n == 0 {
				n = 1
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\n", c.Country, c.Count, strings.Repeat("#", n))
		}
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "== Recent txns ==")
	fmt.Fprintln(tw, "TXN_ID\tTIMESTAMP\tAMOUNT\tCOUNTRY\tMERCHANT\tLABEL")
	for _, r := range s.Recent {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\t%s\t%d\n",
			r.TxnID, r.Timestamp, r.Amount, r.Country, r.Merchant, r.Label)
	}

	return tw.Flush()
}

// WatchConfig tunes Watch.
type WatchConfig struct {
	Interval time.Duration
	// Limit is how many recent rows each frame loads.
	Limit int
	// StaticAfter stops refreshing once a frame holds at least this many
	// rows. Zero refreshes until ctx is canceled.
	StaticAfter int
}

// Watch renders a frame, then re-renders every Interval until the frame is
// full or ctx is canceled. A failed load renders an empty frame. It returns
// the last snapshot rendered.
func Watch(ctx context.Context, src Source, cfg WatchConfig, w io.Writer) (Snapshot, error) {
	log := logger.FromContext(ctx)
	if cfg.Interval <= 0 {
		return Snapshot{}, fmt.Errorf("dashboard interval %v must be positive", cfg.Interval)
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for frame := 0; ; frame++ {
		results, err := src.Recent(ctx, cfg.Limit)
		if err != nil {
			if ctx.Err() != nil {
				return Snapshot{}, ctx.Err()
			}
			log.Warn().Err(err).Msg("dashboard load failed")
			results = nil
		}

		snap := Build(results)
		if frame > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "Aegis - Live Fraud Dashboard (%s)\n\n", time.Now().UTC().Format(time.RFC3339))
		if err := Render(w, snap); err != nil {
			return snap, err
		}

		if cfg.StaticAfter > 0 && snap.Total >= cfg.StaticAfter {
			fmt.Fprintf(w, "\nLoaded %d transactions. Dashboard is now static (no auto-refresh).\n", snap.Total)
			return snap, nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}
