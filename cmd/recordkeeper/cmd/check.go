package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/solatis/recordkeeper/internal/core/config"
	"github.com/solatis/recordkeeper/internal/rules"
	"github.com/solatis/recordkeeper/internal/types"
)

type checkOptions struct {
	inputs
	explain string
	strict  bool
}

var checkOpts checkOptions

// errCheckFailed is returned by check --strict when the analysis found problems.
var errCheckFailed = errors.New("check found invalid selectors, unresolved overrides or conflicts")

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Analyse selectors and overrides without changing records",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheck(cmd.OutOrStdout(), cfg, logger, checkOpts)
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
	addInputFlags(checkCmd, &checkOpts.inputs)
	checkCmd.Flags().StringVar(&checkOpts.explain, "explain", "", "print the query trace of this selector for every record")
	checkCmd.Flags().BoolVar(&checkOpts.strict, "strict", false, "fail when any selector is invalid, override unresolved or conflict found")
}

func runCheck(w io.Writer, c *config.Config, l *slog.Logger, opts checkOptions) error {
	records, selectors, overrides, err := opts.load()
	if err != nil {
		return err
	}

	analysis, err := newEngine(c, l).Analyze(records, selectors, overrides)
	if err != nil {
		return err
	}
	printAnalysis(w, analysis)

	if opts.explain != "" {
		if err := explain(w, c, records, selectors, opts.explain); err != nil {
			return err
		}
	}

	if opts.strict {
		invalid := 0
		for _, m := range analysis.Selectors {
			if !m.Valid {
				invalid++
			}
		}
		if invalid > 0 || len(analysis.Unresolved) > 0 || len(analysis.Conflicts) > 0 {
			return errCheckFailed
		}
	}
	return nil
}

func explain(w io.Writer, c *config.Config, records types.Records, selectors types.SelectorSet, name string) error {
	var sel *types.Selector
	for _, ns := range selectors {
		if ns.Name == name {
			sel = ns.Selector
			break
		}
	}
	if sel == nil {
		return fmt.Errorf("selector %q not found", name)
	}

	evaluator := rules.NewEvaluator(resolver(c.Engine))
	printSection(w, "Explain "+name)
	for _, id := range records.SortedIDs() {
		_, _ = labelColor.Fprintf(w, "  %s\n", id)
		printTrace(w, evaluator.Explain(sel.Query, records[id]), 0)
	}
	return nil
}
