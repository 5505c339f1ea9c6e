package cmd

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
)

// writeResultsFile writes one CSV row per instance and communication point.
func writeResultsFile(path string, results []*InstanceResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating results file: %w", err)
	}
	if err := writeResults(f, results); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeResults(w io.Writer, results []*InstanceResult) error {
	cw := csv.NewWriter(w)
	var header []string
	for _, r := range results {
		if len(r.Outputs) > 0 {
			header = r.Outputs
			break
		}
	}
	if err := cw.Write(append([]string{"instance", "time"}, header...)); err != nil {
		return err
	}
	for _, r := range results {
		for _, row := range r.Rows {
			rec := make([]string, 0, len(row.Values)+2)
			rec = append(rec, r.Name, strconv.FormatFloat(row.Time, 'g', -1, 64))
			for _, v := range row.Values {
				rec = append(rec, strconv.FormatFloat(v, 'g', -1, 64))
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// printTraceSummaries prints one line of step statistics per instance.
func printTraceSummaries(w io.Writer, results []*InstanceResult) {
	fmt.Fprintln(w, "=== Trace Summary ===")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INSTANCE\tSTEPS\tACCEPTED\tREFUSED\tSENT\tRECEIVED\tLAST TIME\tFINAL")
	for _, r := range results {
		if r.Trace == nil {
			continue
		}
		s := r.Trace
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%g\t%s\n",
			r.Name, s.TotalSteps, s.AcceptedSteps, s.RefusedSteps, s.Sent, s.Received, s.LastAcceptedTime, r.Final)
	}
	_ = tw.Flush()
}
