package daemon

import (
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// AlreadyRunningError reports a live daemon found through the run file.
type AlreadyRunningError struct {
	Port int
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("gebrd is already running on port %d", e.Port)
}

// RunFilePath returns the run file of the daemon for hostname.
func RunFilePath(runDir, hostname string) string {
	return filepath.Join(runDir, "gebrd-"+hostname+".run")
}

// ReadRunFile returns the port recorded in a run file.
func ReadRunFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	port, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("run file %s: %w", path, err)
	}
	return port, nil
}

// PortAlive reports whether something accepts connections on a local port.
func PortAlive(port int) bool {
	nc, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), time.Second)
	if err != nil {
		return false
	}
	nc.Close()
	return true
}

// ClaimRunFile writes port into the run file. A run file naming a port that
// still answers means another daemon owns it; a stale one is overwritten.
func ClaimRunFile(path string, port int, alive func(int) bool) error {
	if old, err := ReadRunFile(path); err == nil {
		if old != port && alive(old) {
			return &AlreadyRunningError{Port: old}
		}
		log.Printf("[DAEMON] Replacing stale run file %s (port %d)", path, old)
	} else if !errors.Is(err, os.ErrNotExist) {
		log.Printf("[DAEMON] Ignoring unreadable run file: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("run dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(port)+"\n"), 0o644); err != nil {
		return fmt.Errorf("write run file: %w", err)
	}
	return nil
}

// RemoveRunFile deletes the run file.
func RemoveRunFile(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[DAEMON] Remove run file: %v", err)
	}
}
