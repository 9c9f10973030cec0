// Package daemon implements gebrd. It accepts client connections, runs
// submitted flows as jobs and pushes their output and status changes to every
// logged-in client.
//
// All daemon state (job registry, queue book, client list) belongs to one
// reactor goroutine. Connection readers, process pipes and process waits run
// in their own goroutines and only post events to the reactor.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gebrproject/gebr/internal/acct"
	"github.com/gebrproject/gebr/internal/comm"
	"github.com/gebrproject/gebr/internal/config"
	"github.com/gebrproject/gebr/internal/flow"
	"github.com/gebrproject/gebr/internal/hostinfo"
	"github.com/gebrproject/gebr/internal/job"
	"github.com/gebrproject/gebr/internal/queue"
	"github.com/gebrproject/gebr/internal/xauth"
)

// DateLayout formats start and finish dates.
const DateLayout = "2006-01-02T15:04:05"

// ErrStopped is returned by calls made after the daemon has shut down.
var ErrStopped = errors.New("daemon stopped")

// Options carries the collaborators a Daemon is built with. Zero values are
// replaced by the production implementations.
type Options struct {
	Launcher  Launcher
	Checker   flow.Checker
	Displays  *xauth.Allocator
	Registrar *xauth.Registrar
	Acct      *acct.Logger
	Host      hostinfo.Prober
	Now       func() time.Time
}

// Daemon is the gebrd process state.
type Daemon struct {
	cfg      *config.Config
	launcher Launcher
	checker  flow.Checker
	displays *xauth.Allocator
	xauth    *xauth.Registrar
	acct     *acct.Logger
	host     hostinfo.Prober
	now      func() time.Time

	// reactor-owned
	jobs       *job.Registry
	queues     *queue.Book
	runs       map[job.Handle]*run
	clients    []*client
	nextClient int

	events   chan event
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	listener net.Listener
	status   *http.Server
	runFile  string
}

// run is the execution state of a daemon job.
type run struct {
	spec     LaunchSpec
	owner    *client
	proc     Process
	canceled bool
}

// New creates a daemon. Nothing is started until Start.
func New(cfg *config.Config, opts Options) *Daemon {
	d := &Daemon{
		cfg:      cfg,
		launcher: opts.Launcher,
		checker:  opts.Checker,
		displays: opts.Displays,
		xauth:    opts.Registrar,
		acct:     opts.Acct,
		host:     opts.Host,
		now:      opts.Now,
		jobs:     job.NewRegistry(),
		queues:   queue.NewBook(queue.ParseServerType(cfg.ServerType)),
		runs:     make(map[job.Handle]*run),
		events:   make(chan event, 1024),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if d.launcher == nil {
		d.launcher = &ShellLauncher{Shell: cfg.Shell, Dir: cfg.Home}
	}
	if d.checker == nil {
		d.checker = flow.OSChecker{}
	}
	if d.displays == nil {
		d.displays = xauth.NewAllocator(cfg.DisplayBase, nil)
	}
	if d.xauth == nil {
		d.xauth = &xauth.Registrar{Cmd: cfg.XauthCmd}
	}
	if d.host == nil {
		d.host = hostinfo.New()
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// Start listens for clients, claims the run file and starts the reactor.
// When another daemon already owns the run file, Start returns an
// *AlreadyRunningError.
func (d *Daemon) Start() error {
	addr := net.JoinHostPort(d.cfg.Listen, strconv.Itoa(d.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	d.runFile = RunFilePath(d.cfg.RunDir, d.cfg.Hostname)
	if err := ClaimRunFile(d.runFile, port, PortAlive); err != nil {
		ln.Close()
		d.runFile = ""
		return err
	}
	d.listener = ln

	if d.cfg.StatusAddr != "" {
		if err := d.startStatus(d.cfg.StatusAddr); err != nil {
			ln.Close()
			RemoveRunFile(d.runFile)
			return err
		}
	}

	go d.loop()
	go d.acceptLoop()

	log.Printf("[DAEMON] gebrd is ready (host=%s, port=%d, type=%s)", d.cfg.Hostname, port, d.cfg.ServerType)
	return nil
}

// Port returns the listening port, or 0 before Start.
func (d *Daemon) Port() int {
	if d.listener == nil {
		return 0
	}
	return d.listener.Addr().(*net.TCPAddr).Port
}

// Shutdown asks the reactor to stop. It does not wait; use Done.
func (d *Daemon) Shutdown() {
	d.stopOnce.Do(func() {
		log.Printf("[DAEMON] Shutdown requested")
		close(d.stop)
	})
}

// Done is closed once the reactor has stopped and resources are released.
func (d *Daemon) Done() <-chan struct{} {
	return d.done
}

// do runs fn on the reactor and waits for it.
func (d *Daemon) do(ctx context.Context, fn func()) error {
	c := call{fn: fn, done: make(chan struct{})}
	select {
	case d.events <- c:
	case <-d.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-c.done:
		return nil
	case <-d.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post hands an event to the reactor. It drops the event once the reactor
// has stopped.
func (d *Daemon) post(ev event) {
	select {
	case d.events <- ev:
	case <-d.done:
	}
}

func (d *Daemon) loop() {
	defer close(d.done)
	for {
		select {
		case ev := <-d.events:
			d.process(ev)
		case <-d.stop:
			d.teardown()
			return
		}
	}
}

// drain processes every queued event without blocking.
func (d *Daemon) drain() {
	for {
		select {
		case ev := <-d.events:
			d.process(ev)
		default:
			return
		}
	}
}

func (d *Daemon) teardown() {
	for h, r := range d.runs {
		if r.proc == nil {
			continue
		}
		if j, ok := d.jobs.Get(h); ok {
			log.Printf("[DAEMON] Terminating job %s on shutdown", j.ID)
		}
		r.canceled = true
		if err := r.proc.Terminate(); err != nil {
			log.Printf("[EXEC] Terminate failed: %v", err)
		}
	}
	if d.listener != nil {
		d.listener.Close()
	}
	for _, c := range d.clients {
		c.peer.Close()
	}
	d.clients = nil
	if d.status != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		d.status.Shutdown(ctx)
		cancel()
	}
	if d.runFile != "" {
		RemoveRunFile(d.runFile)
	}
	log.Printf("[DAEMON] Shutdown complete")
}

// acceptLoop accepts incoming TCP connections and starts a reader for each.
func (d *Daemon) acceptLoop() {
	for {
		nc, err := d.listener.Accept()
		if err != nil {
			select {
			case <-d.stop:
				return
			case <-d.done:
				return
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			log.Printf("[DAEMON] Accept error: %v", err)
			return
		}
		cc := comm.NewConn(nc)
		c := &client{peer: cc, local: isLoopback(nc.RemoteAddr())}
		d.post(connected{c: c})
		go d.serve(c, cc)
	}
}

// serve reads frames from one connection until it fails.
func (d *Daemon) serve(c *client, cc *comm.Conn) {
	for {
		msgs, err := cc.ReadMessages()
		if len(msgs) > 0 || err != nil {
			d.post(received{c: c, msgs: msgs, err: err})
		}
		if err != nil {
			return
		}
	}
}

func isLoopback(a net.Addr) bool {
	if tcp, ok := a.(*net.TCPAddr); ok {
		return tcp.IP.IsLoopback()
	}
	return false
}

func (d *Daemon) date() string {
	return d.now().Format(DateLayout)
}
