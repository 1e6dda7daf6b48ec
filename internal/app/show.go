package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
)

// Show prints the latest persisted summary per chain.
func (a *App) Show(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	summaries, err := store.ListSummaries(ctx)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Fprintln(os.Stdout, "no summaries found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Chain\tSamples\tPast%\tFuture%\tMean(ms)\tStddev(ms)\tMin(ms)\tMax(ms)\tP99(ms)\tErrors\tUpdated (UTC)")

	for _, s := range summaries {
		fmt.Fprintf(
			writer,
			"%s\t%d\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			s.Chain,
			s.SampleCount,
			formatDecimal(s.PastPct, 1),
			formatDecimal(s.FuturePct, 1),
			formatDecimal(s.MeanDelta, 1),
			formatDecimal(s.StddevDelta, 1),
			s.MinDelta,
			s.MaxDelta,
			s.P99Delta,
			s.FetchErrors,
			s.UpdatedAt.UTC().Format(time.RFC3339),
		)
	}

	writer.Flush()
	return nil
}

func formatDecimal(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places)
}
