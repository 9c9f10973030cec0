package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gebrproject/gebr/internal/job"
)

func newRunCommand(root *rootOptions) *cobra.Command {
	var (
		queueID string
		watch   bool
	)

	cmd := &cobra.Command{
		Use:   "run <flow.xml>",
		Short: "Submit a flow",
		Long: `Submit a flow to the first daemon given with --server.

The queue is a named queue ("q<name>") or the chain of a job ("j<job-id>").
With --watch the job's output is streamed until it ends.

Examples:
  gebrctl run stack.xml
  gebrctl run stack.xml --queue qnight --watch
  gebrctl run migrate.xml --queue j12`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			s, err := connect(cmd.Context(), root)
			if err != nil {
				return err
			}
			defer s.close()

			conn := s.conns[0]
			h, err := conn.Submit(data, queueID)
			if err != nil {
				return err
			}
			return follow(cmd, s, conn.Done(), conn.Session.Job, h, watch)
		},
	}
	cmd.Flags().StringVarP(&queueID, "queue", "q", "", "queue id to run in")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "stream output until the job ends")
	return cmd
}

// follow prints what happens to job h: its acceptance and, when watching,
// its output until it reaches a terminal status.
func follow(cmd *cobra.Command, s *session, done <-chan struct{}, lookup func(job.Handle) (job.Snapshot, bool), h job.Handle, watch bool) error {
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	for {
		select {
		case <-s.watch.ch:
		case <-done:
			return fmt.Errorf("connection lost")
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		}
		for _, ev := range s.watch.take() {
			if ev.JobHandle() != h {
				continue
			}
			switch ev := ev.(type) {
			case job.OutputAppended:
				fmt.Fprint(out, ev.Chunk)
			case job.IssueAppended:
				fmt.Fprint(errOut, ev.Text)
			case job.StatusChanged:
				snap, _ := lookup(h)
				if ev.Old == job.StatusUnknown {
					if snap.ID == job.NoID {
						return fmt.Errorf("job '%s' refused", snap.Title)
					}
					fmt.Fprintf(errOut, "Job %s %s\n", snap.ID, ev.New)
					if !watch {
						return nil
					}
					continue
				}
				if ev.New.IsTerminal() {
					fmt.Fprintf(errOut, "Job %s %s %s\n", snap.ID, ev.New, ev.Param)
					if ev.New == job.StatusFailed {
						return fmt.Errorf("job %s failed", snap.ID)
					}
					return nil
				}
			}
		}
	}
}
