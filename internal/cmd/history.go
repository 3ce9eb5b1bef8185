// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dotandev/rpcmerge/internal/errors"
	"github.com/dotandev/rpcmerge/internal/store"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent transformation runs",
	Long: `Show the runs recorded in the local store, newest first.

Example:
  rpcmerge history --limit 5`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st := openStore(activeConfig)
		if st == nil {
			return errors.WrapStoreError("history is unavailable: cannot open "+activeConfig.CachePath, nil)
		}
		defer closeStore(st)

		runs, err := st.ListRuns(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
			return nil
		}
		return writeHistory(cmd.OutOrStdout(), runs)
	},
}

func writeHistory(w io.Writer, runs []*store.Run) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tWHEN\tMODE\tPROFILE\tINPUT\tCHANGED\tDIAGNOSTICS\n")
	for _, r := range runs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%t\t%d\n",
			r.ID, r.CreatedAt.Local().Format(time.DateTime), r.Mode, r.Profile, r.Input, r.Changed, len(r.Diagnostics))
	}
	return tw.Flush()
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of runs to show")
	rootCmd.AddCommand(historyCmd)
}
