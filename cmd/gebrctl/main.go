// Package main implements gebrctl, a command-line client for gebrd.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/gebrproject/gebr/internal/client"
	"github.com/gebrproject/gebr/internal/job"
	"github.com/gebrproject/gebr/internal/queue"
	"github.com/gebrproject/gebr/internal/xauth"
)

var version = "dev"

// rootOptions holds the flags shared by every command.
type rootOptions struct {
	Servers    []string
	Hostname   string
	ServerType string
	X11        bool
	Settle     time.Duration
	Verbose    bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	host, _ := os.Hostname()

	cmd := &cobra.Command{
		Use:     "gebrctl",
		Short:   "Submit and control jobs on gebrd daemons",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !opts.Verbose {
				log.SetOutput(io.Discard)
			}
			if len(opts.Servers) == 0 {
				return fmt.Errorf("at least one --server is required")
			}
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringSliceVarP(&opts.Servers, "server", "s", []string{"127.0.0.1"}, "daemon address host[:port], repeatable")
	pf.StringVar(&opts.Hostname, "hostname", host, "name this client reports at login")
	pf.StringVar(&opts.ServerType, "server-type", "regular", "queue policy of the daemons (regular|batch)")
	pf.BoolVar(&opts.X11, "x11", false, "ask the daemon to forward an X11 display")
	pf.DurationVar(&opts.Settle, "settle", 500*time.Millisecond, "time to wait for the job list after login")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "log protocol activity to stderr")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newListCommand(opts))
	cmd.AddCommand(newCloseCommand(opts))
	cmd.AddCommand(newCancelCommand(opts))
	cmd.AddCommand(newKillCommand(opts))
	cmd.AddCommand(newStopCommand(opts))
	return cmd
}

// watcher collects session events without ever blocking the reader.
type watcher struct {
	mu     sync.Mutex
	events []job.Event
	ch     chan struct{}
}

func newWatcher() *watcher {
	return &watcher{ch: make(chan struct{}, 1)}
}

func (w *watcher) observe(ev job.Event) {
	w.mu.Lock()
	w.events = append(w.events, ev)
	w.mu.Unlock()
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

func (w *watcher) take() []job.Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	evs := w.events
	w.events = nil
	return evs
}

// session is a set of logged-in connections.
type session struct {
	ctx   *client.Context
	conns []*client.Conn
	watch *watcher
}

// connect logs in to every server and waits for their job lists.
func connect(ctx context.Context, opts *rootOptions) (*session, error) {
	s := &session{ctx: client.NewContext(), watch: newWatcher()}
	cookie := ""
	if opts.X11 {
		c, err := xauth.NewCookie()
		if err != nil {
			return nil, err
		}
		cookie = c
	}
	for _, addr := range opts.Servers {
		c, err := client.Dial(ctx, addr, client.Options{
			Hostname:   opts.Hostname,
			Display:    os.Getenv("DISPLAY"),
			Cookie:     cookie,
			ServerType: queue.ParseServerType(opts.ServerType),
			Observer:   s.watch.observe,
		})
		if err != nil {
			s.close()
			return nil, err
		}
		s.conns = append(s.conns, c)
		if err := s.ctx.Add(c.Session); err != nil {
			s.close()
			return nil, err
		}
	}
	select {
	case <-time.After(opts.Settle):
	case <-ctx.Done():
	}
	return s, nil
}

func (s *session) close() {
	for _, c := range s.conns {
		c.Disconnect()
	}
}

// find resolves a job id over every connected daemon.
func (s *session) find(id string) (*client.Session, job.Handle, error) {
	sess, h, ok := s.ctx.FindJob("", id)
	if !ok {
		return nil, job.Handle{}, fmt.Errorf("job %s: %w", id, job.ErrJobNotFound)
	}
	return sess, h, nil
}
