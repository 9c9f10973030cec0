package client

import (
	"fmt"
	"sync"

	"github.com/gebrproject/gebr/internal/job"
)

// Context holds the sessions of every daemon a client talks to. It only
// guards the session map; each Session guards itself.
type Context struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	order    []string
}

// NewContext creates an empty context.
func NewContext() *Context {
	return &Context{sessions: make(map[string]*Session)}
}

// Add registers s under its address.
func (c *Context) Add(s *Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.sessions[s.Addr()]; ok {
		return fmt.Errorf("already connected to %s", s.Addr())
	}
	c.sessions[s.Addr()] = s
	c.order = append(c.order, s.Addr())
	return nil
}

// Session returns the session for addr.
func (c *Context) Session(addr string) (*Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sessions[addr]
	return s, ok
}

// Remove forgets the session for addr.
func (c *Context) Remove(addr string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.sessions[addr]; !ok {
		return false
	}
	delete(c.sessions, addr)
	for i, a := range c.order {
		if a == addr {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

// Sessions returns the sessions in the order they were added.
func (c *Context) Sessions() []*Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Session, 0, len(c.order))
	for _, a := range c.order {
		out = append(out, c.sessions[a])
	}
	return out
}

// FindJob looks job id up on every session, or only on addr when given.
func (c *Context) FindJob(addr, id string) (*Session, job.Handle, bool) {
	for _, s := range c.Sessions() {
		if addr != "" && s.Addr() != addr {
			continue
		}
		if h, ok := s.Lookup(id); ok {
			return s, h, true
		}
	}
	return nil, job.Handle{}, false
}
