package daemon

import (
	"errors"
	"fmt"
	"log"

	"github.com/gebrproject/gebr/internal/acct"
	"github.com/gebrproject/gebr/internal/comm"
	"github.com/gebrproject/gebr/internal/flow"
	"github.com/gebrproject/gebr/internal/job"
	"github.com/gebrproject/gebr/internal/queue"
)

// handleRun creates a job from a flow and starts it, or queues it behind
// the job occupying the requested queue. A flow that cannot run produces a
// failed reply and leaves no trace in the registry.
func (d *Daemon) handleRun(c *client, xml []byte, requested string) {
	start := d.date()
	cmd, err := flow.Build(xml, d.checker)
	if err != nil {
		d.refuseRun(c, err, start)
		return
	}

	h, j := d.jobs.Create("", cmd.Title, requested)
	j.ID = d.jobs.NextID("")
	j.Hostname = c.hostname
	j.CmdLine = cmd.CmdLine
	j.AppendIssue(cmd.Issues)
	r := &run{
		spec:  LaunchSpec{JobID: j.ID, CmdLine: cmd.CmdLine, Display: c.display},
		owner: c,
	}
	d.runs[h] = r

	if target := d.target(requested); target != "" && d.busy(target) {
		j.QueueID = target
		if _, err := j.ApplyStatus(job.StatusQueued, ""); err != nil {
			log.Printf("[JOB] %v", err)
		}
		d.queues.Enqueue(target, h)
		d.acct.RecordQueued(j.ID, d.info(j))
		log.Printf("[DAEMON] Job %s queued in %s", j.ID, target)
	} else {
		if target == "" || queue.IsImplicit(target) {
			target = queue.Implicit(j.ID)
		}
		j.QueueID = target
		if err := d.start(h, j, r); err != nil {
			delete(d.runs, h)
			d.jobs.Delete(h)
			issues := j.Issues() + fmt.Sprintf("Could not start job: %v.\n", err)
			d.refuseRun(c, &flow.Error{Title: cmd.Title, Issues: issues}, start)
			return
		}
		d.queues.Upsert(target, "", h)
	}

	snap := j.Snapshot()
	c.send(comm.NewMessage(comm.OpRet, snap.RunReplyArgs()...))
	d.broadcast(comm.NewMessage(comm.OpJob, snap.JobArgs()...), c)
	if j.QueueID != requested {
		d.acct.RecordRequeued(j.ID, requested, j.QueueID)
		d.broadcast(comm.NewMessage(comm.OpFin, j.ID, job.StatusRequeued.String(), j.QueueID), nil)
	}
}

func (d *Daemon) refuseRun(c *client, err error, start string) {
	var fe *flow.Error
	if !errors.As(err, &fe) {
		fe = &flow.Error{Issues: err.Error() + "\n"}
	}
	log.Printf("[DAEMON] Run request from %s failed: %v", c, err)
	d.acct.RecordAborted(job.NoID, &acct.JobInfo{Title: fe.Title, Hostname: c.hostname}, fe.Issues)
	c.send(comm.NewMessage(comm.OpRet,
		job.NoID, job.StatusFailed.String(), fe.Title, start, fe.Issues, "", ""))
}

// target resolves the queue a new job must wait in. "After job X" joins the
// queue X is in while X is active; otherwise there is nothing to wait for.
func (d *Daemon) target(requested string) string {
	if !queue.IsImplicit(requested) {
		return requested
	}
	_, anchor, ok := d.jobs.Find("", queue.Name(requested), true)
	if ok && anchor.Status().IsActive() {
		return anchor.QueueID
	}
	return ""
}

// busy reports whether a job in queue id is running or waiting.
func (d *Daemon) busy(id string) bool {
	e, ok := d.queues.Find(id)
	if !ok {
		return false
	}
	if len(e.Waiting()) > 0 {
		return true
	}
	j, ok := d.jobs.Get(e.LastRunning)
	return ok && j.Status().IsActive()
}

// start launches the job's process and marks it running. Clients are not
// notified here: a new job reaches them through RET and JOB, a queued one
// through the FIN sent by advance.
func (d *Daemon) start(h job.Handle, j *job.Job, r *run) error {
	proc, err := d.launcher.Launch(r.spec,
		func(chunk string) { d.post(produced{h: h, chunk: chunk}) },
		func(st ExitStatus) { d.post(exited{h: h, status: st}) })
	if err != nil {
		return err
	}
	r.proc = proc
	if _, err := j.ApplyStatus(job.StatusRunning, d.date()); err != nil {
		log.Printf("[JOB] %v", err)
	}
	d.acct.RecordStarted(j.ID, d.info(j))
	log.Printf("[EXEC] Job %s started in %s: %s", j.ID, j.QueueID, r.spec.CmdLine)
	return nil
}

// setStatus applies a status to a daemon job and pushes it to clients.
func (d *Daemon) setStatus(j *job.Job, s job.Status, param string) {
	c, err := j.ApplyStatus(s, param)
	if err != nil {
		log.Printf("[JOB] %v", err)
		return
	}
	if c.Changed {
		d.broadcast(comm.NewMessage(comm.OpFin, j.ID, s.String(), param), nil)
	}
}

func (d *Daemon) appendOutput(h job.Handle, chunk string) {
	j, ok := d.jobs.Get(h)
	if !ok || !j.AppendOutput(chunk) {
		return
	}
	d.broadcast(comm.NewMessage(comm.OpOut, j.ID, chunk), nil)
}

// finish records the end of a job's process and starts the next job of its
// queue.
func (d *Daemon) finish(h job.Handle, st ExitStatus) {
	r := d.runs[h]
	delete(d.runs, h)
	j, ok := d.jobs.Get(h)
	if !ok {
		return
	}

	canceled := r != nil && r.canceled
	if !canceled {
		if issue := st.Issue(); issue != "" {
			d.setStatus(j, job.StatusIssued, issue)
		}
	}
	info := d.info(j)
	info.ExitStatus = st.Code
	if canceled {
		d.setStatus(j, job.StatusCanceled, d.date())
		info.FinishDate = j.FinishDate
		d.acct.RecordAborted(j.ID, info, "canceled")
	} else {
		d.setStatus(j, job.StatusFinished, d.date())
		info.FinishDate = j.FinishDate
		d.acct.RecordEnded(j.ID, info)
	}
	log.Printf("[EXEC] Job %s %s (exit=%d)", j.ID, j.Status(), st.Code)
	d.advance(j.QueueID, h)
}

// advance starts the oldest job waiting in queueID. With none left the queue
// is released.
func (d *Daemon) advance(queueID string, prev job.Handle) {
	for {
		h, ok := d.queues.Dequeue(queueID)
		if !ok {
			break
		}
		j, ok := d.jobs.Get(h)
		r := d.runs[h]
		if !ok || r == nil || j.Status() != job.StatusQueued {
			continue
		}
		if err := d.start(h, j, r); err != nil {
			log.Printf("[EXEC] Job %s could not start: %v", j.ID, err)
			delete(d.runs, h)
			d.setStatus(j, job.StatusIssued, fmt.Sprintf("Could not start job: %v.\n", err))
			d.setStatus(j, job.StatusRunning, d.date())
			d.setStatus(j, job.StatusFailed, "")
			d.acct.RecordAborted(j.ID, d.info(j), err.Error())
			continue
		}
		d.broadcast(comm.NewMessage(comm.OpFin, j.ID, job.StatusRunning.String(), j.StartDate), nil)
		if e, ok := d.queues.Find(queueID); ok {
			e.LastRunning = h
		}
		return
	}
	d.queues.Release(queueID, prev)
}

func (d *Daemon) info(j *job.Job) *acct.JobInfo {
	return &acct.JobInfo{
		Title:      j.Title,
		Hostname:   j.Hostname,
		Queue:      j.QueueID,
		CmdLine:    j.CmdLine,
		StartDate:  j.StartDate,
		FinishDate: j.FinishDate,
	}
}
