// Package xauth hands out forwarded X11 displays to logged-in clients and
// registers their magic cookies with xauth.
package xauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

const (
	// CookieSize is the number of random bytes in a magic cookie.
	CookieSize = 16

	// PortBase is the TCP port of display :0.
	PortBase = 6000

	// MaxDisplay is the last display number tried.
	MaxDisplay = 255
)

// NewCookie returns a random hex-encoded magic cookie.
func NewCookie() (string, error) {
	b := make([]byte, CookieSize)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate cookie: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// ValidCookie reports whether s looks like a magic cookie.
func ValidCookie(s string) bool {
	if s == "" || len(s)%2 != 0 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// Port returns the TCP port of display d.
func Port(d int) int {
	return PortBase + d
}

// PortFree reports whether a local TCP port can be bound.
func PortFree(port int) bool {
	l, err := net.Listen("tcp", "127.0.0.1:"+strconv.Itoa(port))
	if err != nil {
		return false
	}
	l.Close()
	return true
}

// Allocator picks free display numbers, starting at a base and wrapping
// back to it once MaxDisplay is passed.
type Allocator struct {
	mu   sync.Mutex
	base int
	next int
	free func(port int) bool
}

// NewAllocator creates an allocator starting at display base. A nil free
// uses PortFree.
func NewAllocator(base int, free func(port int) bool) *Allocator {
	if free == nil {
		free = PortFree
	}
	return &Allocator{base: base, next: base, free: free}
}

// Allocate returns a display whose port is free, or 0 when none is left.
// The search starts after the last display handed out and wraps back to
// the base once.
func (a *Allocator) Allocate() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := MaxDisplay - a.base + 1
	for i := 0; i < n; i++ {
		d := a.base + (a.next-a.base+i)%n
		if a.free(Port(d)) {
			a.next = d + 1
			if a.next > MaxDisplay {
				a.next = a.base
			}
			return d
		}
	}
	return 0
}

// Runner executes a command.
type Runner func(ctx context.Context, name string, args ...string) error

// ExecRunner runs the command with os/exec and reports its combined output
// on failure.
func ExecRunner(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Registrar adds cookies to the user's X authority file.
type Registrar struct {
	Cmd string
	Run Runner
}

// Add registers cookie for display d.
func (r *Registrar) Add(ctx context.Context, d int, cookie string) error {
	if !ValidCookie(cookie) {
		return fmt.Errorf("xauth: invalid cookie for display :%d", d)
	}
	run := r.Run
	if run == nil {
		run = ExecRunner
	}
	cmd := r.Cmd
	if cmd == "" {
		cmd = "xauth"
	}
	if err := run(ctx, cmd, "-i", "add", ":"+strconv.Itoa(d), ".", cookie); err != nil {
		return fmt.Errorf("xauth: %w", err)
	}
	return nil
}
