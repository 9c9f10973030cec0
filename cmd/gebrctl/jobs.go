package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newListCommand(root *rootOptions) *cobra.Command {
	var queues bool

	cmd := &cobra.Command{
		Use:          "list",
		Short:        "List the jobs of every daemon",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := connect(cmd.Context(), root)
			if err != nil {
				return err
			}
			defer s.close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			if queues {
				fmt.Fprintln(tw, "SERVER\tQUEUE\tLABEL\tRUNNING")
				for _, sess := range s.ctx.Sessions() {
					for _, q := range sess.Queues() {
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", sess.Addr(), q.ID, q.Label, q.LastRunning)
					}
				}
				return tw.Flush()
			}
			fmt.Fprintln(tw, "SERVER\tID\tSTATUS\tTITLE\tHOST\tSTARTED\tFINISHED")
			for _, sess := range s.ctx.Sessions() {
				for _, j := range sess.Jobs() {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
						sess.Addr(), j.ID, j.Status, j.Title, j.Hostname, j.StartDate, j.FinishDate)
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&queues, "queues", false, "list queues instead of jobs")
	return cmd
}

func newCloseCommand(root *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:          "close <job-id>",
		Short:        "Clear a job that is no longer running",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := connect(cmd.Context(), root)
			if err != nil {
				return err
			}
			defer s.close()

			sess, h, err := s.find(args[0])
			if err != nil {
				return err
			}
			return sess.Close(h, force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "forget the job locally even if it is active")
	return cmd
}

func newCancelCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "cancel <job-id>",
		Short:        "Terminate a running job",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := connect(cmd.Context(), root)
			if err != nil {
				return err
			}
			defer s.close()

			sess, _, err := s.find(args[0])
			if err != nil {
				return err
			}
			return sess.Cancel(args[0])
		},
	}
}

func newKillCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "kill [job-id]",
		Short: "Kill a running job",
		Long: `Kill a running job. Without a job id every job started over this
connection is killed, which is none for a fresh gebrctl connection; pass
the id instead.`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := connect(cmd.Context(), root)
			if err != nil {
				return err
			}
			defer s.close()

			if len(args) == 0 {
				for _, sess := range s.ctx.Sessions() {
					if err := sess.Kill(""); err != nil {
						return err
					}
				}
				return nil
			}
			sess, _, err := s.find(args[0])
			if err != nil {
				return err
			}
			return sess.Kill(args[0])
		},
	}
}

func newStopCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "stop",
		Short:        "Quit; the daemon stops when it was the last client",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := connect(cmd.Context(), root)
			if err != nil {
				return err
			}
			defer s.close()

			for _, sess := range s.ctx.Sessions() {
				if err := sess.Quit(); err != nil {
					return fmt.Errorf("quit %s: %w", sess.Addr(), err)
				}
			}
			return nil
		},
	}
}
