package cmd

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/solatis/recordkeeper/internal/core/db"
	"github.com/solatis/recordkeeper/internal/types"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded runs, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHistory(cmd.OutOrStdout(), cfg.History.DBURL, historyLimit)
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show RUN_ID",
	Short: "Show per-selector and per-override results of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHistoryShow(cmd.OutOrStdout(), cfg.History.DBURL, args[0])
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of runs to list")
}

func runHistory(w io.Writer, url string, limit int) error {
	h, closeFn, err := openHistory(url)
	if err != nil {
		return err
	}
	defer closeFn()

	runs, err := h.List(limit)
	if err != nil {
		return err
	}
	printRuns(w, runs)
	return nil
}

func runHistoryShow(w io.Writer, url, id string) error {
	runID, err := types.ParseRunID(id)
	if err != nil {
		return err
	}

	h, closeFn, err := openHistory(url)
	if err != nil {
		return err
	}
	defer closeFn()

	run, err := h.Get(runID)
	if err != nil {
		return err
	}
	changes, err := h.Changes(runID)
	if err != nil {
		return err
	}

	printRuns(w, []db.RunSummary{run})
	printChanges(w, changes)
	return nil
}
