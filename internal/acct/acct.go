// Package acct keeps accounting records for daemon jobs in a SQLite
// database.
//
// Record types:
//   - Q  Job queued behind another job
//   - S  Job started
//   - E  Job ended on its own
//   - D  Job cleared by a client
//   - A  Job aborted (canceled, killed or failed to run)
//   - R  Job moved to another queue
package acct

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Record types.
const (
	RecordQueue  = "Q"
	RecordStart  = "S"
	RecordEnd    = "E"
	RecordDelete = "D"
	RecordAbort  = "A"
	RecordRerun  = "R"
)

// TimeLayout is the timestamp layout stored with each record.
const TimeLayout = "2006-01-02T15:04:05"

// Record is one stored accounting line.
type Record struct {
	Time    string
	Type    string
	JobID   string
	Message string
}

func (r Record) String() string {
	return fmt.Sprintf("%s;%s;%s;%s", r.Time, r.Type, r.JobID, r.Message)
}

// Logger writes accounting records.
type Logger struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens the accounting database at path.
func Open(path string) (*Logger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("acct: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	for _, stmt := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		schemaSQL,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("acct: init %s: %w", path, err)
		}
	}
	return &Logger{db: db, now: time.Now}, nil
}

// Close closes the database.
func (l *Logger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Record stores a single accounting record. Failures are logged, never
// returned: accounting must not stop a job.
func (l *Logger) Record(recType, jobID, message string) {
	if l == nil {
		return
	}
	ts := l.now().Format(TimeLayout)
	_, err := l.db.Exec(`INSERT INTO accounting (ts, type, job_id, message) VALUES (?, ?, ?, ?)`,
		ts, recType, jobID, message)
	if err != nil {
		log.Printf("[ACCT] Error writing %s record for job %s: %v", recType, jobID, err)
	}
}

// JobInfo holds the job fields written into record messages.
type JobInfo struct {
	Title      string
	Hostname   string // submitting client
	Queue      string
	CmdLine    string
	StartDate  string
	FinishDate string
	ExitStatus int
}

func (i *JobInfo) base() string {
	return fmt.Sprintf("title=%q host=%s queue=%s", i.Title, i.Hostname, orNone(i.Queue))
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// RecordQueued writes a Q record.
func (l *Logger) RecordQueued(jobID string, info *JobInfo) {
	l.Record(RecordQueue, jobID, info.base())
}

// RecordStarted writes an S record.
func (l *Logger) RecordStarted(jobID string, info *JobInfo) {
	l.Record(RecordStart, jobID, fmt.Sprintf("%s start=%s cmd=%q", info.base(), info.StartDate, info.CmdLine))
}

// RecordEnded writes an E record.
func (l *Logger) RecordEnded(jobID string, info *JobInfo) {
	l.Record(RecordEnd, jobID, fmt.Sprintf("%s start=%s end=%s exit_status=%d",
		info.base(), info.StartDate, info.FinishDate, info.ExitStatus))
}

// RecordDeleted writes a D record.
func (l *Logger) RecordDeleted(jobID, requester string) {
	l.Record(RecordDelete, jobID, "requestor="+requester)
}

// RecordAborted writes an A record.
func (l *Logger) RecordAborted(jobID string, info *JobInfo, reason string) {
	l.Record(RecordAbort, jobID, fmt.Sprintf("%s reason=%q", info.base(), strings.TrimSpace(reason)))
}

// RecordRequeued writes an R record.
func (l *Logger) RecordRequeued(jobID, from, to string) {
	l.Record(RecordRerun, jobID, fmt.Sprintf("from=%s to=%s", orNone(from), orNone(to)))
}

// Records returns the stored records of jobID in insertion order, or every
// record when jobID is empty.
func (l *Logger) Records(ctx context.Context, jobID string) ([]Record, error) {
	q := `SELECT ts, type, job_id, message FROM accounting`
	var args []any
	if jobID != "" {
		q += ` WHERE job_id = ?`
		args = append(args, jobID)
	}
	q += ` ORDER BY seq`

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("acct: query: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Time, &r.Type, &r.JobID, &r.Message); err != nil {
			return nil, fmt.Errorf("acct: scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
