package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/docreview/internal/config"
	"github.com/dshills/docreview/internal/review"
	"github.com/dshills/docreview/internal/store"
)

var flagRunsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect recorded review runs",
}

// openRunStore opens the configured run database.
func openRunStore() (store.Store, error) {
	cfg, err := config.Load(nil)
	if err != nil {
		return nil, err
	}
	path, err := cfg.StorePath()
	if err != nil {
		return nil, err
	}
	return store.Open(path)
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openRunStore()
		if err != nil {
			return err
		}
		defer st.Close()

		runs, err := st.ListRuns(cmd.Context(), flagRunsLimit)
		if err != nil {
			return fmt.Errorf("listing runs: %w", err)
		}
		return writeRunTable(cmd.OutOrStdout(), runs)
	},
}

func writeRunTable(w io.Writer, runs []store.Run) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tMODE\tPROVIDER\tDOCS\tITEMS\tSTARTED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			r.ID, r.Status, r.Mode, r.Provider, r.Documents, r.Items,
			r.StartedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

type runDetail struct {
	store.Run
	Results []review.FinalRecord `json:"results"`
}

var runsShowCmd = &cobra.Command{
	Use:   "show <runID>",
	Short: "Show one run with its final results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openRunStore()
		if err != nil {
			return err
		}
		defer st.Close()

		run, err := st.GetRun(cmd.Context(), args[0])
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no run with id %s", args[0])
		}
		if err != nil {
			return err
		}
		results, err := st.FinalResults(cmd.Context(), run.ID)
		if err != nil {
			return fmt.Errorf("reading results: %w", err)
		}

		data, err := json.MarshalIndent(runDetail{Run: run, Results: results}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsListCmd.Flags().IntVarP(&flagRunsLimit, "limit", "n", 20, "Maximum number of runs to list (0 for all)")
}
