package daemon

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/gebrproject/gebr/internal/comm"
	"github.com/gebrproject/gebr/internal/job"
	"github.com/gebrproject/gebr/internal/xauth"
)

// errQuit ends message processing for a client that sent QUT.
var errQuit = errors.New("client quit")

const xauthTimeout = 5 * time.Second

// handle processes one message from c. A returned error other than errQuit
// is a protocol error and the caller drops the connection.
func (d *Daemon) handle(c *client, msg comm.Message) error {
	if msg.Op != comm.OpIni && !c.logged {
		return comm.NewProtocolError(msg.Op, comm.ErrNotLoggedIn, "client %s", c)
	}
	args, err := msg.Args()
	if err != nil {
		return err
	}

	switch msg.Op {
	case comm.OpIni:
		return d.handleLogin(c, args)
	case comm.OpQut:
		d.handleQuit(c)
		return errQuit
	case comm.OpLst:
		d.handleList(c)
	case comm.OpRun:
		queueID := ""
		if len(args) > 1 {
			queueID = args[1]
		}
		d.handleRun(c, []byte(args[0]), queueID)
	case comm.OpFlw:
		log.Printf("[DAEMON] Rejected from %s: %v", c,
			comm.NewProtocolError(msg.Op, comm.ErrUnsupported, "flow messages are not implemented"))
	case comm.OpClr:
		d.handleClear(c, args[0])
	case comm.OpEnd:
		d.handleEnd(args[0])
	case comm.OpKil:
		d.handleKill(c, args)
	default:
		return comm.NewProtocolError(msg.Op, comm.ErrUnknownOpcode, "not accepted by the daemon")
	}
	return nil
}

// handleLogin authenticates c. With a cookie, a forwarded X11 display is
// allocated and the cookie registered for it.
func (d *Daemon) handleLogin(c *client, args []string) error {
	if c.logged {
		return comm.NewProtocolError(comm.OpIni, comm.ErrMalformed, "client %s is already logged in", c)
	}
	version, hostname, display, cookie := args[0], args[1], args[2], args[3]
	if version != comm.ProtocolVersion {
		log.Printf("[DAEMON] Client %s speaks protocol %q, daemon speaks %q", c, version, comm.ProtocolVersion)
	}

	c.logged = true
	c.hostname = hostname
	port := ""
	switch {
	case cookie != "":
		if n := d.allocateDisplay(c, cookie); n > 0 {
			port = strconv.Itoa(xauth.Port(n))
			c.display = ":" + strconv.Itoa(n)
			if !c.local {
				c.display = "127.0.0.1" + c.display
			}
		}
	case c.local:
		c.display = display
	}

	log.Printf("[DAEMON] Client %s logged in (display=%q)", c, c.display)
	c.send(comm.NewMessage(comm.OpRet, d.cfg.Hostname, port))
	return nil
}

func (d *Daemon) allocateDisplay(c *client, cookie string) int {
	n := d.displays.Allocate()
	if n == 0 {
		log.Printf("[DAEMON] No free X11 display for client %s", c)
		return 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), xauthTimeout)
	defer cancel()
	if err := d.xauth.Add(ctx, n, cookie); err != nil {
		log.Printf("[DAEMON] Display :%d for client %s: %v", n, c, err)
		return 0
	}
	return n
}

// handleQuit frees c. When it was the last client the daemon shuts down,
// unless configured to stay alive.
func (d *Daemon) handleQuit(c *client) {
	log.Printf("[DAEMON] Client %s quit", c)
	d.dropClient(c)
	if len(d.clients) == 0 && !d.cfg.KeepAlive {
		log.Printf("[DAEMON] Last client quit")
		d.Shutdown()
	}
}

func (d *Daemon) handleList(c *client) {
	d.jobs.ForEach(func(_ job.Handle, j *job.Job) bool {
		c.send(comm.NewMessage(comm.OpJob, j.Snapshot().JobArgs()...))
		return true
	})
}

func (d *Daemon) handleClear(c *client, id string) {
	h, j, ok := d.jobs.Find("", id, true)
	if !ok {
		log.Printf("[DAEMON] CLR %s from %s: %v", id, c, job.ErrJobNotFound)
		return
	}
	if err := job.CheckClose(j, false); err != nil {
		log.Printf("[DAEMON] CLR from %s rejected: %v", c, err)
		return
	}
	d.acct.RecordDeleted(j.ID, c.hostname)
	delete(d.runs, h)
	d.queues.Drop(h)
	d.jobs.Delete(h)
}

// handleEnd asks a running job to terminate. It becomes canceled when the
// process exits.
func (d *Daemon) handleEnd(id string) {
	h, j, ok := d.jobs.Find("", id, true)
	if !ok {
		log.Printf("[DAEMON] END %s: %v", id, job.ErrJobNotFound)
		return
	}
	r := d.runs[h]
	if r == nil || r.proc == nil || j.Status() != job.StatusRunning {
		log.Printf("[DAEMON] END %s ignored: job is %s", id, j.Status())
		return
	}
	r.canceled = true
	log.Printf("[EXEC] Terminating job %s", id)
	if err := r.proc.Terminate(); err != nil {
		log.Printf("[EXEC] Terminate job %s: %v", id, err)
	}
}

// handleKill kills one running job, or with no argument every running job
// started by c.
func (d *Daemon) handleKill(c *client, args []string) {
	if len(args) == 1 {
		h, j, ok := d.jobs.Find("", args[0], true)
		if !ok {
			log.Printf("[DAEMON] KIL %s: %v", args[0], job.ErrJobNotFound)
			return
		}
		d.kill(h, j)
		return
	}
	for h, r := range d.runs {
		if r.owner != c {
			continue
		}
		if j, ok := d.jobs.Get(h); ok {
			d.kill(h, j)
		}
	}
}

func (d *Daemon) kill(h job.Handle, j *job.Job) {
	r := d.runs[h]
	if r == nil || r.proc == nil || j.Status() != job.StatusRunning {
		log.Printf("[DAEMON] KIL %s ignored: job is %s", j.ID, j.Status())
		return
	}
	r.canceled = true
	log.Printf("[EXEC] Killing job %s", j.ID)
	if err := r.proc.Kill(); err != nil {
		log.Printf("[EXEC] Kill job %s: %v", j.ID, err)
	}
}
