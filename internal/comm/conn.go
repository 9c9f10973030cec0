package comm

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

const (
	writeTimeout = 30 * time.Second
	readChunk    = 32 << 10
)

// Sender is the transport primitive the protocol core depends on.
type Sender interface {
	Send(msg Message) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(msg Message) error

func (f SenderFunc) Send(msg Message) error {
	return f(msg)
}

// Conn frames messages over a stream socket. Send may be called from any
// goroutine; ReadMessages must be called from a single reader.
type Conn struct {
	nc     net.Conn
	mu     sync.Mutex
	framer Framer
	buf    []byte
}

// NewConn wraps an established stream connection.
func NewConn(nc net.Conn) *Conn {
	return &Conn{nc: nc, buf: make([]byte, readChunk)}
}

// Send writes one framed message.
func (c *Conn) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nc.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err := c.nc.Write(msg.Encode())
	return err
}

// ReadMessages blocks until at least one read returns, then yields every
// frame completed so far. It may return no messages and no error when a
// read delivered only part of a frame. A peer that closes in the middle of a
// frame yields io.ErrUnexpectedEOF rather than io.EOF.
func (c *Conn) ReadMessages() ([]Message, error) {
	n, err := c.nc.Read(c.buf)
	if n > 0 {
		msgs, ferr := c.framer.Feed(c.buf[:n])
		if ferr != nil {
			return msgs, ferr
		}
		if err == nil || len(msgs) > 0 {
			return msgs, nil
		}
	}
	if errors.Is(err, io.EOF) && c.framer.Pending() > 0 {
		err = fmt.Errorf("peer closed inside a frame, %d bytes dropped: %w", c.framer.Pending(), io.ErrUnexpectedEOF)
	}
	return nil, err
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string {
	return c.nc.RemoteAddr().String()
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.nc.Close()
}
