package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/solatis/recordkeeper/internal/core/config"
	"github.com/solatis/recordkeeper/internal/core/db"
	"github.com/solatis/recordkeeper/internal/core/loader"
	"github.com/solatis/recordkeeper/internal/types"
)

// inputs names the files a pass reads.
type inputs struct {
	records   string
	selectors string
	overrides string
}

type applyOptions struct {
	inputs
	out     string
	history bool
}

var applyOpts applyOptions

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply selectors and overrides to a record collection",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := applyOpts
		if cmd.Flags().Changed("history") {
			cfg.History.Enabled = opts.history
		}
		return runApply(cmd.OutOrStdout(), cfg, logger, opts)
	},
}

func init() {
	rootCmd.AddCommand(applyCmd)
	addInputFlags(applyCmd, &applyOpts.inputs)
	applyCmd.Flags().StringVar(&applyOpts.out, "out", "", "output file (default: overwrite --records)")
	applyCmd.Flags().BoolVar(&applyOpts.history, "history", false, "record the run in the history database")
}

func addInputFlags(cmd *cobra.Command, in *inputs) {
	cmd.Flags().StringVar(&in.records, "records", "", "record collection (JSON)")
	cmd.Flags().StringVar(&in.selectors, "selectors", "", "selector definitions (YAML or JSON)")
	cmd.Flags().StringVar(&in.overrides, "overrides", "", "override definitions (YAML or JSON)")
	_ = cmd.MarkFlagRequired("records")
	_ = cmd.MarkFlagRequired("selectors")
}

// load reads the three inputs. Overrides are optional.
func (in inputs) load() (types.Records, types.SelectorSet, types.OverrideSet, error) {
	records, err := loader.LoadRecords(in.records)
	if err != nil {
		return nil, nil, nil, err
	}
	selectors, err := loader.LoadSelectors(in.selectors)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%s: %w", in.selectors, err)
	}
	var overrides types.OverrideSet
	if in.overrides != "" {
		overrides, err = loader.LoadOverrides(in.overrides)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("%s: %w", in.overrides, err)
		}
	}
	return records, selectors, overrides, nil
}

func runApply(w io.Writer, c *config.Config, l *slog.Logger, opts applyOptions) error {
	records, selectors, overrides, err := opts.load()
	if err != nil {
		return err
	}

	// open history before mutating so a bad database fails the run early
	var history *db.History
	if c.History.Enabled {
		h, closeFn, err := openHistory(c.History.DBURL)
		if err != nil {
			return err
		}
		defer closeFn()
		history = h
	}

	report, err := newEngine(c, l).Run(records, selectors, overrides)
	if err != nil {
		return err
	}

	out := opts.out
	if out == "" {
		out = opts.records
	}
	if err := loader.WriteRecords(out, records); err != nil {
		return err
	}

	if history != nil {
		if err := history.Save(report); err != nil {
			return fmt.Errorf("failed to record run: %w", err)
		}
	}

	printReport(w, report)
	return nil
}

// openHistory opens and checks a migrated history database.
func openHistory(url string) (*db.History, func(), error) {
	if url == "" {
		return nil, nil, fmt.Errorf("--db-url required for history")
	}
	database, err := db.Open(url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	closeFn := func() { database.Close() }

	statuses, err := db.MigrateStatus(database)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	for _, s := range statuses {
		if !s.Applied {
			closeFn()
			return nil, nil, fmt.Errorf("migration %s not applied - run 'recordkeeper migrate' first", s.ID)
		}
	}

	h, err := db.NewHistory(database)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return h, closeFn, nil
}
