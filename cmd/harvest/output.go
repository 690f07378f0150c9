package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/alfredjeanlab/harvest/internal/model"
	"github.com/alfredjeanlab/harvest/internal/ui"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printRuns renders ledger rows as an aligned table.
func printRuns(w io.Writer, runs []*model.Run) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, ui.RenderMuted("no runs recorded"))
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tFILTER\tADMITTED\tWRITTEN\tSTARTED\tDURATION\tOUTPUT")
	for _, r := range runs {
		duration := "-"
		if r.FinishedAt != nil {
			duration = r.Duration().Round(time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			r.ID,
			ui.RenderStatus(r.Status),
			r.Filter,
			r.EventsAdmitted,
			r.RecordsWritten,
			r.StartedAt.Local().Format(time.DateTime),
			duration,
			r.OutputPath,
		)
		if r.Error != "" {
			fmt.Fprintf(tw, "\t%s\n", ui.RenderMuted(r.Error))
		}
	}
	return tw.Flush()
}
