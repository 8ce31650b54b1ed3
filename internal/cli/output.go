// output.go contains the text and JSON renderers for run results.

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/shinji-kodama/deepexport/internal/config"
	"github.com/shinji-kodama/deepexport/internal/model"
	"github.com/shinji-kodama/deepexport/internal/run"
)

// summaryJSON is the JSON shape of a run summary. Human-readable values
// are added next to the raw numbers.
type summaryJSON struct {
	*run.Summary
	BytesHuman string `json:"bytesHuman"`
	Elapsed    string `json:"elapsed"`
}

// printHeader writes the console banner shown before an export.
func printHeader(w io.Writer, cfg *config.Config, at time.Time) {
	fmt.Fprintf(w, "deepexport %s, started %s\n", Version, at.Format(time.DateTime))
	fmt.Fprintf(w, "Exporting %s from %s to %s\n", cfg.Source, cfg.Repository.Name, cfg.Target)
	if cfg.Versions {
		fmt.Fprintln(w, "All versions are exported")
	}
	fmt.Fprintln(w)
}

// printSummary writes the summary of an export run.
func printSummary(w io.Writer, sum *run.Summary, asJSON bool) error {
	if asJSON {
		return writeJSON(w, summaryJSON{
			Summary:    sum,
			BytesHuman: FormatBytes(sum.Counters.Bytes),
			Elapsed:    FormatDuration(sum.Duration),
		})
	}

	c := sum.Counters
	fmt.Fprintf(w, "%-16s %s\n", "Run ID:", sum.RunID)
	if sum.LogFile != "" {
		fmt.Fprintf(w, "%-16s %s\n", "Log file:", sum.LogFile)
	}
	fmt.Fprintf(w, "%-16s %s\n", "Expected:", FormatTotals(sum.Expected))
	fmt.Fprintf(w, "%-16s %d\n", "Folders:", c.Folders)
	fmt.Fprintf(w, "%-16s %d\n", "Documents:", c.Documents)
	fmt.Fprintf(w, "%-16s %d (%s)\n", "Exported:", c.Exported, FormatBytes(c.Bytes))
	fmt.Fprintf(w, "%-16s %d\n", "Skipped:", c.Skipped)
	fmt.Fprintf(w, "%-16s %d\n", "Failed:", c.Failed)
	fmt.Fprintf(w, "%-16s %s\n", "Total run time:", FormatDuration(sum.Duration))
	return nil
}

// printTotals writes the result of the count command.
func printTotals(w io.Writer, sum *run.Summary, asJSON bool) error {
	if asJSON {
		return writeJSON(w, struct {
			Repository string       `json:"repository"`
			Source     string       `json:"source"`
			Versions   bool         `json:"versions"`
			Expected   model.Totals `json:"expected"`
		}{sum.Repository, sum.Source, sum.Versions, sum.Expected})
	}

	fmt.Fprintf(w, "%s in %s: %s\n", sum.Source, sum.Repository, FormatTotals(sum.Expected))
	return nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// FormatTotals renders expected totals as "N folders, M documents".
func FormatTotals(t model.Totals) string {
	return fmt.Sprintf("%s, %s", plural(t.Folders, "folder"), plural(t.Documents, "document"))
}

// FormatBytes renders a byte count in SI units ("1.2 MB").
func FormatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

// FormatDuration renders a run time rounded to the millisecond.
func FormatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
