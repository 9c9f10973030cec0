// Package gebrlog writes the standard logger to per-day files named
// <prefix>-YYYYMMDD.log, switching files when the local date changes.
package gebrlog

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DatedLog is an io.Writer over a directory of dated log files.
type DatedLog struct {
	dir    string
	prefix string
	now    func() time.Time

	mu      sync.Mutex
	curDate string
	file    *os.File
}

// New creates a DatedLog in dir, creating the directory if needed.
func New(dir, prefix string) (*DatedLog, error) {
	return newAt(dir, prefix, time.Now)
}

func newAt(dir, prefix string, now func() time.Time) (*DatedLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("gebrlog: mkdir %s: %w", dir, err)
	}
	dl := &DatedLog{dir: dir, prefix: prefix, now: now}
	dl.mu.Lock()
	defer dl.mu.Unlock()
	if err := dl.openLocked(dl.today()); err != nil {
		return nil, err
	}
	return dl, nil
}

func (dl *DatedLog) today() string {
	return dl.now().Format("20060102")
}

// Path returns the file currently written to.
func (dl *DatedLog) Path() string {
	dl.mu.Lock()
	defer dl.mu.Unlock()
	return dl.pathFor(dl.curDate)
}

func (dl *DatedLog) pathFor(date string) string {
	return filepath.Join(dl.dir, dl.prefix+"-"+date+".log")
}

// Write implements io.Writer.
func (dl *DatedLog) Write(p []byte) (int, error) {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	if today := dl.today(); today != dl.curDate {
		if err := dl.openLocked(today); err != nil {
			return 0, err
		}
	}
	return dl.file.Write(p)
}

// Close closes the current log file.
func (dl *DatedLog) Close() error {
	dl.mu.Lock()
	defer dl.mu.Unlock()
	if dl.file == nil {
		return nil
	}
	err := dl.file.Close()
	dl.file = nil
	return err
}

func (dl *DatedLog) openLocked(date string) error {
	if dl.file != nil {
		dl.file.Close()
	}
	path := dl.pathFor(date)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("gebrlog: open %s: %w", path, err)
	}
	dl.file = f
	dl.curDate = date
	return nil
}

// Setup points the standard logger at a DatedLog in logDir. With tee set,
// output also goes to stderr. The caller closes the returned log on exit.
func Setup(logDir, prefix string, tee bool) (*DatedLog, error) {
	dl, err := New(logDir, prefix)
	if err != nil {
		return nil, err
	}
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	if tee {
		log.SetOutput(io.MultiWriter(os.Stderr, dl))
	} else {
		log.SetOutput(dl)
	}
	return dl, nil
}
