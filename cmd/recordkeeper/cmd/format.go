package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/solatis/recordkeeper/internal/core/db"
	"github.com/solatis/recordkeeper/internal/engine"
	"github.com/solatis/recordkeeper/internal/rules"
	"github.com/solatis/recordkeeper/internal/types"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	headerColor  = color.New(color.FgBlue, color.Bold)
	labelColor   = color.New(color.FgWhite, color.Bold)
	dimColor     = color.New(color.FgHiBlack)
)

func printSection(w io.Writer, title string) {
	fmt.Fprintln(w)
	_, _ = headerColor.Fprintf(w, "▸ %s\n", title)
}

func printLabelValue(w io.Writer, label string, value any) {
	_, _ = labelColor.Fprintf(w, "  %s: ", label)
	fmt.Fprintln(w, value)
}

func printWarning(w io.Writer, format string, args ...any) {
	_, _ = warningColor.Fprintf(w, "  ⚠ "+format+"\n", args...)
}

func printSuccess(w io.Writer, format string, args ...any) {
	_, _ = successColor.Fprintf(w, "✓ "+format+"\n", args...)
}

func priority(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%g", *p)
}

// printReport renders the result of a pass.
func printReport(w io.Writer, r *engine.Report) {
	printSection(w, "Run")
	printLabelValue(w, "id", r.RunID)
	printLabelValue(w, "fingerprint", r.Fingerprint)
	printLabelValue(w, "duration", r.Duration)

	printSection(w, "Selectors")
	for _, s := range r.Selectors {
		fmt.Fprintf(w, "  %-32s matched=%d affected=%d changes=%d records=%d",
			s.Name, s.Matched, s.Affected, s.Changes, s.Records)
		if s.Skipped > 0 {
			_, _ = dimColor.Fprintf(w, " (override-owned=%d)", s.Skipped)
		}
		fmt.Fprintln(w)
	}
	for _, name := range r.Invalid {
		printWarning(w, "selector %q is invalid and was skipped", name)
	}

	if len(r.Overrides) > 0 || len(r.Unresolved) > 0 {
		printSection(w, "Overrides")
		for _, o := range r.Overrides {
			fmt.Fprintf(w, "  %-32s record=%s changes=%d\n", o.Name, o.RecordID, o.Changes)
		}
		for _, name := range r.Unresolved {
			printWarning(w, "override %q was skipped", name)
		}
	}

	printConflicts(w, r.Conflicts)

	fmt.Fprintln(w)
	printSuccess(w, "%d properties changed across %d records", r.TotalChanges, r.TotalRecords)
}

// printAnalysis renders a dry run.
func printAnalysis(w io.Writer, a *engine.Analysis) {
	printSection(w, "Selectors")
	for _, m := range a.Selectors {
		if !m.Valid {
			printWarning(w, "%s: invalid", m.Name)
			continue
		}
		fmt.Fprintf(w, "  %-32s priority=%s matched=%d affected=%d properties=%s\n",
			m.Name, priority(m.Priority), len(m.Matched), len(m.Affected), strings.Join(m.Properties, ","))
	}

	if len(a.Overrides) > 0 || len(a.Unresolved) > 0 {
		printSection(w, "Overrides")
		for _, o := range a.Overrides {
			fmt.Fprintf(w, "  %-32s record=%s properties=%s\n", o.Name, o.RecordID, strings.Join(o.Properties, ","))
		}
		for _, name := range a.Unresolved {
			printWarning(w, "override %q is unresolved", name)
		}
	}

	printConflicts(w, a.Conflicts)
}

func printConflicts(w io.Writer, conflicts []engine.Conflict) {
	if len(conflicts) == 0 {
		return
	}
	printSection(w, "Conflicts")
	for _, c := range conflicts {
		printWarning(w, "%s / %s on %s", c.First, c.Second, strings.Join(c.Properties, ","))
		for _, rc := range c.Records {
			_, _ = dimColor.Fprintf(w, "      %s: %s\n", rc.RecordID, strings.Join(rc.Properties, ","))
		}
	}
}

// printTrace renders an expression evaluation tree.
func printTrace(w io.Writer, t rules.Trace, depth int) {
	indent := strings.Repeat("  ", depth+2)
	clr := warningColor
	if t.Result {
		clr = successColor
	}

	label := describe(t.Expression)
	_, _ = clr.Fprintf(w, "%s%t", indent, t.Result)
	fmt.Fprintf(w, " %s [%s]", label, t.Outcome)
	if t.Expression != nil && t.Expression.IsBasic() && t.Outcome != rules.OutcomeAbsent {
		fmt.Fprintf(w, " value=%v", t.Value)
	}
	if t.Cause != nil {
		_, _ = dimColor.Fprintf(w, " (%v)", t.Cause)
	}
	fmt.Fprintln(w)

	for _, child := range t.Children {
		printTrace(w, child, depth+1)
	}
}

func describe(e *types.Expression) string {
	if e == nil {
		return "<missing>"
	}
	neg := ""
	if e.Negation {
		neg = "not "
	}
	if e.IsLogical() {
		return neg + e.Condition
	}
	op := e.Operation
	if op == "" {
		op = types.OperationEquals
	}
	mode := "any"
	if e.Strict {
		mode = "all"
	}
	return fmt.Sprintf("%s%s %s %s%v", neg, e.Key, op, mode, e.Values)
}

func printRuns(w io.Writer, runs []db.RunSummary) {
	if len(runs) == 0 {
		_, _ = dimColor.Fprintln(w, "no recorded runs")
		return
	}
	for _, r := range runs {
		_, _ = labelColor.Fprintf(w, "%s", r.RunID)
		fmt.Fprintf(w, "  %s  changes=%d records=%d invalid=%d unresolved=%d conflicts=%d  %s\n",
			r.StartedAt.Format("2006-01-02 15:04:05"), r.TotalChanges, r.TotalRecords,
			r.Invalid, r.Unresolved, r.Conflicts, r.Duration)
	}
}

func printChanges(w io.Writer, changes []db.RunChange) {
	for _, c := range changes {
		switch c.Kind {
		case db.KindOverride:
			fmt.Fprintf(w, "  %-8s %-32s record=%s changes=%d\n", c.Kind, c.Name, c.RecordID, c.Changes)
		default:
			fmt.Fprintf(w, "  %-8s %-32s matched=%d affected=%d changes=%d records=%d skipped=%d\n",
				c.Kind, c.Name, c.Matched, c.Affected, c.Changes, c.Records, c.Skipped)
		}
	}
}
