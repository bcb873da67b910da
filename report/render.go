package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/canopy-network/mocknet/lib"
	"github.com/fatih/color"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

/* This file renders results for a terminal (tables) or for CI (json) */

// Format selects how results are rendered
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

// ParseFormat() parses 'table' or 'json'
func ParseFormat(s string) (Format, lib.ErrorI) {
	switch Format(strings.ToLower(s)) {
	case "", FormatTable:
		return FormatTable, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", lib.ErrInvalidConfig(fmt.Sprintf("unknown output format %q", s))
}

var printer = message.NewPrinter(language.English)

// Number() formats n with thousands separators
func Number[T ~int | ~int64 | ~uint64 | ~uint32](n T) string { return printer.Sprintf("%d", n) }

// Table is a set of rows under a header
type Table struct {
	Header []string
	Rows   [][]string
}

// Render() writes the table with aligned columns
func (t Table) Render(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if len(t.Header) != 0 {
		fmt.Fprintln(tw, strings.Join(t.Header, "\t"))
	}
	for _, row := range t.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// Write() renders v in the format; tables are built by toTable
func Write(w io.Writer, format Format, v any, toTable func() Table) error {
	if format == FormatJSON {
		bz, err := lib.MarshalJSONIndent(v)
		if err != nil {
			return err
		}
		_, e := fmt.Fprintln(w, string(bz))
		return e
	}
	return toTable().Render(w)
}

// RenderResult() writes a scenario result
func RenderResult(w io.Writer, format Format, r *Result) error {
	if err := Write(w, format, r, r.Table); err != nil || format == FormatJSON {
		return err
	}
	passed, failed, skipped := r.Counts()
	summary := fmt.Sprintf("\n%s %s: %s passed, %s failed, %s skipped in %s", r.Scenario, r.RunID,
		Number(passed), Number(failed), Number(skipped), r.Took.Round(time.Millisecond))
	if r.Error != "" {
		summary += "\n" + r.Error
	}
	if r.Consistency != nil {
		summary += "\n"
	}
	if _, err := fmt.Fprintln(w, statusColor(r.Passed()).Sprint(summary)); err != nil {
		return err
	}
	if r.Consistency != nil {
		return RenderConsistency(w, FormatTable, r.Consistency)
	}
	return nil
}

// Table() lays a result out one step per row
func (r *Result) Table() Table {
	t := Table{Header: []string{"STEP", "KIND", "STATUS", "TOOK", "DETAIL"}}
	for _, s := range r.Steps {
		detail := s.Detail
		if s.Error != "" {
			detail = oneLine(s.Error)
		}
		t.Rows = append(t.Rows, []string{s.Name, s.Kind, statusColor(s.Status == Passed).Sprint(s.Status), s.Took.Round(time.Millisecond).String(), detail})
	}
	return t
}

// RenderConsistency() writes a consistency report
func RenderConsistency(w io.Writer, format Format, r *ConsistencyReport) error {
	if err := Write(w, format, r, r.Table); err != nil || format == FormatJSON {
		return err
	}
	for node, diff := range r.Diffs {
		if _, err := fmt.Fprintf(w, "\n%s vs %s:\n%s\n", node, r.Reference, diff); err != nil {
			return err
		}
	}
	return nil
}

// Table() lays a report out one divergence per row
func (r *ConsistencyReport) Table() Table {
	t := Table{Header: []string{"NODE", "FIELD", "EXPECTED", "OBSERVED"}}
	if r.Consistent() {
		t.Rows = append(t.Rows, []string{color.GreenString("consistent"), fmt.Sprintf("%s nodes", Number(len(r.Nodes))), "", ""})
	}
	for _, d := range r.Divergences {
		t.Rows = append(t.Rows, []string{d.Node, d.Field, d.Expected, color.RedString(oneLine(d.Observed))})
	}
	return t
}

func statusColor(ok bool) *color.Color {
	if ok {
		return color.New(color.FgGreen)
	}
	return color.New(color.FgRed)
}

// oneLine() flattens multi line error messages
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
