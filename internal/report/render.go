package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/leapstack-labs/duckstress/pkg/core"
)

// RenderSummary writes s as a table of counts per result and kind, followed
// by the verdict.
func RenderSummary(w io.Writer, s Summary) error {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{"Result", "Kind", "Count"})
	t.AppendRow(table.Row{core.ResultSuccess.String(), "", humanize.Comma(int64(s.Success))})

	kinds := sortedKinds(s.ByKind)
	for _, k := range kinds {
		if n := s.ByKind[k].Expected; n > 0 {
			t.AppendRow(table.Row{core.ResultExpectedError.String(), k.String(), humanize.Comma(int64(n))})
		}
	}
	for _, k := range kinds {
		if n := s.ByKind[k].Unexpected; n > 0 {
			t.AppendRow(table.Row{core.ResultUnexpectedError.String(), k.String(), humanize.Comma(int64(n))})
		}
	}
	t.AppendFooter(table.Row{"Total", "", humanize.Comma(int64(s.Total()))})
	t.Render()

	line := fmt.Sprintf("verdict: %s (%s unexpected of %s statements)",
		s.Verdict(), humanize.Comma(int64(s.Unexpected)), humanize.Comma(int64(s.Total())))
	if s.Elapsed > 0 {
		rate := float64(s.Total()) / s.Elapsed.Seconds()
		line += fmt.Sprintf(" in %s, %s statements/s", s.Elapsed.Round(time.Millisecond), humanize.CommafWithDigits(rate, 1))
	}
	if _, err := fmt.Fprintln(w, line); err != nil {
		return err
	}
	if len(s.Hung) > 0 {
		if _, err := fmt.Fprintf(w, "hung streams: %s\n", strings.Join(s.Hung, ", ")); err != nil {
			return err
		}
	}
	if len(s.Crashed) > 0 {
		if _, err := fmt.Fprintf(w, "crashed after last statement: %s\n", strings.Join(s.Crashed, ", ")); err != nil {
			return err
		}
	}
	return nil
}

// RenderJSON writes s as an indented JSON document without the detail log.
func RenderJSON(w io.Writer, s Summary) error {
	doc := struct {
		Verdict string `json:"verdict"`
		Total   int    `json:"total"`
		Summary
	}{Verdict: s.Verdict(), Total: s.Total(), Summary: s}
	doc.Detail = nil

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func sortedKinds(m map[core.Kind]KindCount) []core.Kind {
	kinds := make([]core.Kind, 0, len(m))
	for k := range m {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i].String() < kinds[j].String() })
	return kinds
}
