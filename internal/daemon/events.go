package daemon

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"

	"github.com/gebrproject/gebr/internal/comm"
	"github.com/gebrproject/gebr/internal/job"
)

// event is anything the reactor processes.
type event interface{}

type connected struct {
	c *client
}

type received struct {
	c    *client
	msgs []comm.Message
	err  error
}

type produced struct {
	h     job.Handle
	chunk string
}

type exited struct {
	h      job.Handle
	status ExitStatus
}

type call struct {
	fn   func()
	done chan struct{}
}

// peer is the transport of one client connection.
type peer interface {
	comm.Sender
	Close() error
	RemoteAddr() string
}

// client is the daemon's view of one connection.
type client struct {
	id       int
	peer     peer
	local    bool
	logged   bool
	hostname string
	display  string
	gone     bool
}

func (c *client) String() string {
	if c.hostname != "" {
		return fmt.Sprintf("#%d(%s)", c.id, c.hostname)
	}
	return fmt.Sprintf("#%d(%s)", c.id, c.peer.RemoteAddr())
}

func (c *client) send(msg comm.Message) {
	if c.gone {
		return
	}
	if err := c.peer.Send(msg); err != nil {
		log.Printf("[DAEMON] Send %s to %s failed: %v", msg.Op, c, err)
	}
}

func (d *Daemon) process(ev event) {
	switch ev := ev.(type) {
	case connected:
		d.addClient(ev.c)
	case received:
		d.receive(ev.c, ev.msgs, ev.err)
	case produced:
		d.appendOutput(ev.h, ev.chunk)
	case exited:
		d.finish(ev.h, ev.status)
	case call:
		ev.fn()
		close(ev.done)
	default:
		log.Printf("[DAEMON] Unknown event %T", ev)
	}
}

func (d *Daemon) addClient(c *client) {
	d.nextClient++
	c.id = d.nextClient
	d.clients = append(d.clients, c)
	log.Printf("[DAEMON] Connection from %s as client #%d (local=%v)", c.peer.RemoteAddr(), c.id, c.local)
}

// receive dispatches the messages of one read in order and stops at the
// first error, dropping the client.
func (d *Daemon) receive(c *client, msgs []comm.Message, readErr error) {
	if c.gone {
		return
	}
	for _, msg := range msgs {
		err := d.handle(c, msg)
		if errors.Is(err, errQuit) {
			return
		}
		if err != nil {
			log.Printf("[DAEMON] Dropping client %s: %v", c, err)
			d.dropClient(c)
			return
		}
	}
	switch {
	case readErr == nil:
	case comm.IsProtocolError(readErr):
		log.Printf("[DAEMON] Dropping client %s: %v", c, readErr)
		d.dropClient(c)
	default:
		if !errors.Is(readErr, io.EOF) && !errors.Is(readErr, net.ErrClosed) {
			log.Printf("[DAEMON] Read error from %s: %v", c, readErr)
		}
		log.Printf("[DAEMON] Client %s disconnected", c)
		d.dropClient(c)
	}
}

// dropClient forgets c and closes its connection. Jobs it started keep
// running.
func (d *Daemon) dropClient(c *client) {
	if c.gone {
		return
	}
	c.gone = true
	for i, x := range d.clients {
		if x == c {
			d.clients = append(d.clients[:i], d.clients[i+1:]...)
			break
		}
	}
	for _, r := range d.runs {
		if r.owner == c {
			r.owner = nil
		}
	}
	c.peer.Close()
}

// broadcast sends msg to every logged-in client except skip.
func (d *Daemon) broadcast(msg comm.Message, skip *client) {
	for _, c := range d.clients {
		if c.logged && c != skip {
			c.send(msg)
		}
	}
}
