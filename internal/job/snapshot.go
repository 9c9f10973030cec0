package job

import "fmt"

// Snapshot is the wire descriptor of a job. Output carries the raw output
// without header.
type Snapshot struct {
	ID         string `json:"job_id"`
	Status     string `json:"status"`
	Title      string `json:"title"`
	StartDate  string `json:"start_date"`
	FinishDate string `json:"finish_date"`
	Hostname   string `json:"hostname"`
	Issues     string `json:"issues"`
	CmdLine    string `json:"cmd_line"`
	Output     string `json:"output"`
	QueueID    string `json:"queue_id,omitempty"`
}

// JobArgs returns the nine JOB arguments in wire order.
func (s Snapshot) JobArgs() []string {
	return []string{s.ID, s.Status, s.Title, s.StartDate, s.FinishDate,
		s.Hostname, s.Issues, s.CmdLine, s.Output}
}

// RunReplyArgs returns the seven arguments of a RET answering RUN.
func (s Snapshot) RunReplyArgs() []string {
	return []string{s.ID, s.Status, s.Title, s.StartDate, s.Issues, s.CmdLine, s.Output}
}

// SnapshotFromJobArgs decodes the nine JOB arguments.
func SnapshotFromJobArgs(args []string) (Snapshot, error) {
	if len(args) != 9 {
		return Snapshot{}, fmt.Errorf("job snapshot needs 9 arguments, got %d", len(args))
	}
	if ParseStatus(args[1]).HasFinishDate() && args[3] == "" && args[4] == "" {
		return Snapshot{}, fmt.Errorf("job %s: %s without dates: %w", args[0], args[1], ErrNoFinishDate)
	}
	return Snapshot{
		ID:         args[0],
		Status:     args[1],
		Title:      args[2],
		StartDate:  args[3],
		FinishDate: args[4],
		Hostname:   args[5],
		Issues:     args[6],
		CmdLine:    args[7],
		Output:     args[8],
	}, nil
}

// SnapshotFromRunReply decodes the seven arguments of a RET answering RUN.
func SnapshotFromRunReply(args []string) (Snapshot, error) {
	if len(args) != 7 {
		return Snapshot{}, fmt.Errorf("run reply needs 7 arguments, got %d", len(args))
	}
	return Snapshot{
		ID:        args[0],
		Status:    args[1],
		Title:     args[2],
		StartDate: args[3],
		Issues:    args[4],
		CmdLine:   args[5],
		Output:    args[6],
	}, nil
}
