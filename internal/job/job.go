// Package job implements the job record, its status machine and the
// registry that owns job records for one server connection.
package job

import (
	"fmt"
	"strings"
)

// OutputHeader prefixes a job's output once the first chunk arrives.
const OutputHeader = "Output:\n"

// NoID is the job id reported for a run request the daemon refused.
const NoID = "0"

// Job is one submitted execution of a flow. Status, output and issues only
// change through the methods below so the machine's invariants hold.
type Job struct {
	// Identity
	ID     string // server-assigned; empty until known, NoID when refused
	RunID  string // client-side request id used before ID is known
	Server string // address of the owning server connection

	Title      string
	Hostname   string
	StartDate  string
	FinishDate string
	CmdLine    string
	QueueID    string

	status Status
	issues strings.Builder
	output strings.Builder
}

func newJob(server, title, queue string) *Job {
	return &Job{Server: server, Title: title, QueueID: queue}
}

// Status returns the resting status.
func (j *Job) Status() Status {
	return j.status
}

// Issues returns the accumulated issue log.
func (j *Job) Issues() string {
	return j.issues.String()
}

// Output returns the output log including its header, or "" when no output
// was ever appended.
func (j *Job) Output() string {
	if j.output.Len() == 0 {
		return ""
	}
	return OutputHeader + j.output.String()
}

// RawOutput returns the output exactly as produced by the job, without the
// header. This is what travels on the wire.
func (j *Job) RawOutput() string {
	return j.output.String()
}

// HasRealID reports whether the daemon assigned an id to this job.
func (j *Job) HasRealID() bool {
	return j.ID != "" && j.ID != NoID
}

// AppendOutput appends chunk to the output log. Empty chunks are ignored;
// it reports whether anything was appended.
func (j *Job) AppendOutput(chunk string) bool {
	if chunk == "" {
		return false
	}
	j.output.WriteString(chunk)
	return true
}

// AppendIssue appends text to the issue log.
func (j *Job) AppendIssue(text string) bool {
	if text == "" {
		return false
	}
	j.issues.WriteString(text)
	return true
}

// Requeue moves the job to another queue and returns the previous one.
func (j *Job) Requeue(queueID string) string {
	old := j.QueueID
	j.QueueID = queueID
	return old
}

// Change describes what ApplyStatus did.
type Change struct {
	Old     Status // resting status before the call
	New     Status // status or pseudo-status applied
	Param   string
	Changed bool   // false when the call was an idempotent repeat
	Prev    string // previous queue id, for StatusRequeued
}

// ApplyStatus applies a status or pseudo-status reported for the job.
//
//   - StatusRunning records param as the start date.
//   - StatusFinished and StatusCanceled record param as the finish date,
//     falling back to the start date when param is empty.
//   - StatusRequeued moves the job to queue param; status is unchanged.
//   - StatusIssued appends param to the issues; status is unchanged.
//
// Repeating the current status is a no-op. A move the machine does not allow
// returns a *DesyncError and leaves the job untouched; ForceStatus applies it
// anyway.
func (j *Job) ApplyStatus(s Status, param string) (Change, error) {
	return j.applyStatus(s, param, false)
}

// ForceStatus is ApplyStatus without the transition check. It lets a job
// converge on the status its daemon reports after the two disagreed.
func (j *Job) ForceStatus(s Status, param string) (Change, error) {
	return j.applyStatus(s, param, true)
}

func (j *Job) applyStatus(s Status, param string, force bool) (Change, error) {
	c := Change{Old: j.status, New: s, Param: param}

	switch s {
	case StatusRequeued:
		c.Prev = j.Requeue(param)
		c.Changed = c.Prev != param
		return c, nil
	case StatusIssued:
		c.Changed = j.AppendIssue(param)
		return c, nil
	case StatusUnknown:
		return c, &DesyncError{ID: j.ID, From: j.status, To: s}
	}

	if s == j.status {
		return c, nil
	}
	if !force && !CanMove(j.status, s) {
		return c, &DesyncError{ID: j.ID, From: j.status, To: s}
	}
	if s.HasFinishDate() && param == "" && j.StartDate == "" {
		return c, fmt.Errorf("job %s %s: %w", j.ID, s, ErrNoFinishDate)
	}

	j.status = s
	c.Changed = true
	switch s {
	case StatusRunning:
		j.StartDate = param
		j.FinishDate = ""
	case StatusFinished, StatusCanceled:
		j.FinishDate = param
		if j.FinishDate == "" {
			j.FinishDate = j.StartDate
		}
	default:
		j.FinishDate = ""
	}
	return c, nil
}

// Load fills a freshly created job from a snapshot. The finish date is
// normalised so that it is set exactly for finished and canceled jobs.
func (j *Job) Load(s Snapshot) {
	j.ID = s.ID
	j.Title = s.Title
	j.Hostname = s.Hostname
	j.StartDate = s.StartDate
	j.FinishDate = s.FinishDate
	j.CmdLine = s.CmdLine
	j.status = ParseStatus(s.Status)
	j.AppendIssue(s.Issues)
	j.AppendOutput(s.Output)

	switch {
	case !j.status.HasFinishDate():
		j.FinishDate = ""
	case j.FinishDate == "":
		j.FinishDate = j.StartDate
	}
}

// Snapshot returns the job's full descriptor.
func (j *Job) Snapshot() Snapshot {
	return Snapshot{
		ID:         j.ID,
		Status:     j.status.String(),
		Title:      j.Title,
		StartDate:  j.StartDate,
		FinishDate: j.FinishDate,
		Hostname:   j.Hostname,
		Issues:     j.Issues(),
		CmdLine:    j.CmdLine,
		Output:     j.RawOutput(),
	}
}
