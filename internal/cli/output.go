package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"migrator/internal/migrate"
)

// printSummary writes sum as one JSON line or as a short text report.
func printSummary(w io.Writer, format string, sum *migrate.Summary) error {
	if format == "json" {
		return json.NewEncoder(w).Encode(sum)
	}
	loaded, skipped, failed := sum.Totals()
	fmt.Fprintf(w, "%s date=%s warehouse=%s state=%s rows=%d loaded=%d skipped=%d failed=%d (%s)\n",
		sum.Document, sum.Date, sum.Warehouse, sum.State, sum.Rows,
		loaded, skipped, failed, sum.Duration.Truncate(time.Millisecond))
	if sum.DryRun {
		fmt.Fprintln(w, "  dry run: destination untouched")
	}
	if sum.Empty {
		fmt.Fprintln(w, "  source returned no rows; scope cleaned")
	}
	if sum.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", sum.Error)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  entity\textracted\tdedup\tabsent\tshape\tloaded\tskipped\tfailed\tbatches")
	for _, name := range sum.Order {
		e := sum.Entities[name]
		if e == nil {
			continue
		}
		fmt.Fprintf(tw, "  %s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
			name, e.Extracted, e.Deduplicated, e.Absent, e.ShapeErrors, e.Loaded, e.Skipped, e.Failed, e.Batches)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, name := range sum.Order {
		e := sum.Entities[name]
		if e == nil {
			continue
		}
		for i, s := range e.Errors {
			fmt.Fprintf(w, "  %s #%02d x%d: %s\n", name, i+1, s.Count, s.Message)
		}
	}
	for i, s := range sum.Cleanup.Errors {
		fmt.Fprintf(w, "  cleanup #%02d x%d: %s\n", i+1, s.Count, s.Message)
	}
	return nil
}
