package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newHistoryCommand(root *options) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history [job-id]",
		Short: "Print accounting records",
		Long: `Print the accounting records of one job, or of every job.

Each line is "time;type;job;message" where type is one of
Q (queued), S (started), E (ended), D (cleared), A (aborted), R (requeued).`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, root)
			if err != nil {
				return err
			}
			ac, err := openAcct(cfg)
			if err != nil {
				return err
			}
			defer ac.Close()

			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			recs, err := ac.Records(cmd.Context(), id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(recs)
			}
			for _, r := range recs {
				fmt.Fprintln(out, r.String())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON")
	return cmd
}
