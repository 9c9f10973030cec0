package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/gebrproject/gebr/internal/comm"
	"github.com/gebrproject/gebr/internal/job"
	"github.com/gebrproject/gebr/internal/queue"
)

const (
	// DefaultPort is the port gebrctl assumes when the address has none.
	DefaultPort = 2125

	dialTimeout  = 10 * time.Second
	loginTimeout = 10 * time.Second
)

// Options configures Dial.
type Options struct {
	Hostname   string // this client's name, sent at login
	Display    string
	Cookie     string // X11 magic cookie; empty disables forwarding
	ServerType queue.ServerType
	Observer   job.Observer
}

// Conn is a Session bound to a TCP connection. A single goroutine reads the
// connection and feeds the session.
type Conn struct {
	*Session

	nc   net.Conn
	cc   *comm.Conn
	done chan struct{}

	mu  sync.Mutex
	err error
}

// Dial connects to the daemon at addr and logs in. It returns once the
// daemon has accepted the login.
func Dial(ctx context.Context, addr string, opts Options) (*Conn, error) {
	addr = withDefaultPort(addr)
	d := net.Dialer{Timeout: dialTimeout}
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}

	cc := comm.NewConn(nc)
	c := &Conn{
		Session: NewSession(addr, opts.ServerType, cc, opts.Observer),
		nc:      nc,
		cc:      cc,
		done:    make(chan struct{}),
	}
	if err := c.Login(opts.Hostname, opts.Display, opts.Cookie); err != nil {
		nc.Close()
		return nil, err
	}
	go c.readLoop()

	timer := time.NewTimer(loginTimeout)
	defer timer.Stop()
	select {
	case <-c.LoggedIn():
		return c, nil
	case <-c.done:
		err = c.Err()
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
	case <-timer.C:
		err = errors.New("timed out")
	case <-ctx.Done():
		err = ctx.Err()
	}
	nc.Close()
	<-c.done
	return nil, fmt.Errorf("login to %s: %w", addr, err)
}

func withDefaultPort(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, strconv.Itoa(DefaultPort))
}

func (c *Conn) readLoop() {
	defer close(c.done)
	for {
		msgs, err := c.cc.ReadMessages()
		if herr := c.Handle(msgs...); herr != nil {
			log.Printf("[CLIENT] Dropping connection to %s: %v", c.Addr(), herr)
			c.setErr(herr)
			c.nc.Close()
			return
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				c.setErr(err)
			}
			if comm.IsProtocolError(err) {
				c.nc.Close()
			}
			return
		}
	}
}

func (c *Conn) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

// Err returns the error that ended the connection, or nil after a clean
// close.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Done is closed when the connection ends.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Disconnect closes the connection without quitting; the daemon keeps
// running.
func (c *Conn) Disconnect() error {
	err := c.nc.Close()
	<-c.done
	return err
}
