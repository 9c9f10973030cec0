// Package client is the client side of the gebr protocol: one Session per
// daemon keeps the jobs and queues that daemon reports, and Conn binds a
// Session to a TCP connection.
package client

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/gebrproject/gebr/internal/comm"
	"github.com/gebrproject/gebr/internal/flow"
	"github.com/gebrproject/gebr/internal/job"
	"github.com/gebrproject/gebr/internal/queue"
)

// request is a message waiting for its RET.
type request struct {
	op comm.Opcode
	h  job.Handle // RUN only
}

// QueueView is a read-only copy of a queue entry.
type QueueView struct {
	ID          string
	Label       string
	LastRunning string // job id, empty when idle
}

// Session holds the state of one daemon connection. Its methods are safe for
// concurrent use; the observer runs outside the session lock and may call
// back into the session.
type Session struct {
	mu       sync.Mutex
	addr     string
	sender   comm.Sender
	labels   Labeler
	jobs     *job.Registry
	queues   *queue.Book
	observer job.Observer

	logged      bool
	loggedIn    chan struct{}
	localHost   string
	hostname    string
	displayPort string
	pending     []request
	events      []job.Event
}

// NewSession creates a session for the daemon at addr. Messages go out
// through sender; obs may be nil.
func NewSession(addr string, t queue.ServerType, sender comm.Sender, obs job.Observer) *Session {
	return &Session{
		addr:     addr,
		sender:   sender,
		labels:   Labeler{Type: t},
		jobs:     job.NewRegistry(),
		queues:   queue.NewBook(t),
		observer: obs,
		loggedIn: make(chan struct{}),
	}
}

// Addr returns the daemon address.
func (s *Session) Addr() string { return s.addr }

// Logged reports whether the daemon accepted the login.
func (s *Session) Logged() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logged
}

// LoggedIn is closed when the daemon accepts the login.
func (s *Session) LoggedIn() <-chan struct{} { return s.loggedIn }

// Hostname returns the hostname the daemon reported at login.
func (s *Session) Hostname() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hostname
}

// DisplayPort returns the forwarded X11 port, or "" without forwarding.
func (s *Session) DisplayPort() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.displayPort
}

// Login sends INI. hostname names this client; cookie, when set, asks the
// daemon to forward an X11 display.
func (s *Session) Login(hostname, display, cookie string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.logged {
		return nil
	}
	for _, r := range s.pending {
		if r.op == comm.OpIni {
			return nil
		}
	}
	if err := s.send(comm.NewMessage(comm.OpIni, comm.ProtocolVersion, hostname, display, cookie), job.Handle{}); err != nil {
		return fmt.Errorf("send login to %s: %w", s.addr, err)
	}
	s.localHost = hostname
	return nil
}

// Submit asks the daemon to run a flow, in queueID when not empty. The job
// is known by its run id until the daemon answers.
func (s *Session) Submit(flowXML []byte, queueID string) (job.Handle, error) {
	doc, err := flow.Parse(flowXML)
	if err != nil {
		return job.Handle{}, err
	}

	s.mu.Lock()
	if !s.logged {
		s.mu.Unlock()
		return job.Handle{}, fmt.Errorf("submit to %s: %w", s.addr, comm.ErrNotLoggedIn)
	}
	h, j := s.jobs.Create(s.addr, doc.Title, queueID)
	j.RunID = uuid.NewString()
	j.Hostname = s.localHost

	args := []string{string(flowXML)}
	if queueID != "" {
		args = append(args, queueID)
	}
	if err := s.send(comm.NewMessage(comm.OpRun, args...), h); err != nil {
		s.jobs.Delete(h)
		s.mu.Unlock()
		return job.Handle{}, fmt.Errorf("send run to %s: %w", s.addr, err)
	}
	s.registerQueue(queueID)
	s.events = append(s.events, job.JobCreated{Handle: h, Title: j.Title})
	log.Printf("[CLIENT] Submitted '%s' to %s (run %s, queue %q)", j.Title, s.addr, j.RunID, queueID)
	events := s.takeEvents()
	s.mu.Unlock()

	s.emit(events)
	return h, nil
}

// send writes msg. A message the daemon answers with RET is remembered so
// the reply can be matched to it; h is the job a RUN creates.
func (s *Session) send(msg comm.Message, h job.Handle) error {
	if err := s.sender.Send(msg); err != nil {
		return err
	}
	if msg.Op.ExpectsReply() {
		s.pending = append(s.pending, request{op: msg.Op, h: h})
	}
	return nil
}

// registerQueue adds a named queue the first time a job is put in it.
func (s *Session) registerQueue(queueID string) {
	if !queue.IsNamed(queueID) {
		return
	}
	if _, ok := s.queues.Find(queueID); !ok {
		s.queues.Upsert(queueID, s.labels.Idle(queueID), job.Handle{})
	}
}

// Handle processes messages from the daemon in order. It stops at the first
// protocol error and returns it; the caller drops the connection.
func (s *Session) Handle(msgs ...comm.Message) error {
	s.mu.Lock()
	var err error
	for _, msg := range msgs {
		if err = s.handle(msg); err != nil {
			break
		}
	}
	events := s.takeEvents()
	s.mu.Unlock()

	s.emit(events)
	return err
}

func (s *Session) handle(msg comm.Message) error {
	if !s.logged && msg.Op != comm.OpRet {
		return comm.NewProtocolError(msg.Op, comm.ErrNotLoggedIn, "from %s", s.addr)
	}
	args, err := msg.Args()
	if err != nil {
		return err
	}

	switch msg.Op {
	case comm.OpRet:
		return s.handleReturn(args)
	case comm.OpJob:
		return s.handleJob(args)
	case comm.OpOut:
		s.handleOutput(args[0], args[1])
	case comm.OpFin:
		return s.handleFinish(args[0], args[1], args[2])
	default:
		return comm.NewProtocolError(msg.Op, comm.ErrUnknownOpcode, "not accepted by the client")
	}
	return nil
}

func (s *Session) handleReturn(args []string) error {
	if len(s.pending) == 0 || (!s.logged && s.pending[0].op != comm.OpIni) {
		return comm.NewProtocolError(comm.OpRet, comm.ErrUnexpectedReply, "from %s", s.addr)
	}
	req := s.pending[0]
	s.pending = s.pending[1:]

	if req.op == comm.OpIni {
		if len(args) == 0 {
			return comm.NewProtocolError(comm.OpRet, comm.ErrMalformed, "login reply without hostname")
		}
		s.logged = true
		s.hostname = args[0]
		if len(args) > 1 {
			s.displayPort = args[1]
		}
		close(s.loggedIn)
		log.Printf("[CLIENT] Logged in to %s (%s)", s.addr, s.hostname)
		if err := s.sender.Send(comm.NewMessage(comm.OpLst)); err != nil {
			log.Printf("[CLIENT] List jobs of %s: %v", s.addr, err)
		}
		return nil
	}

	snap, err := job.SnapshotFromRunReply(args)
	if err != nil {
		return comm.NewProtocolError(comm.OpRet, comm.ErrMalformed, "%v", err)
	}
	j, ok := s.jobs.Get(req.h)
	if !ok {
		log.Printf("[CLIENT] Run reply for job %s of %s arrived after it was closed", snap.ID, s.addr)
		return nil
	}
	old := j.Status()
	queueID := j.QueueID
	snap.Hostname = j.Hostname
	j.Load(snap)
	j.QueueID = queueID
	s.events = append(s.events, job.StatusChanged{Handle: req.h, Old: old, New: j.Status(), Param: j.StartDate})
	if snap.Issues != "" {
		s.events = append(s.events, job.IssueAppended{Handle: req.h, Text: snap.Issues})
	}
	if snap.Output != "" {
		s.events = append(s.events, job.OutputAppended{Handle: req.h, Chunk: snap.Output})
	}
	if j.Status() == job.StatusRunning {
		s.running(req.h, j)
	}
	if j.ID == job.NoID {
		log.Printf("[CLIENT] %s refused '%s': %s", s.addr, j.Title, snap.Issues)
	}
	return nil
}

// handleJob records a job announced by the daemon. Jobs already known are
// left alone.
func (s *Session) handleJob(args []string) error {
	snap, err := job.SnapshotFromJobArgs(args)
	if err != nil {
		return comm.NewProtocolError(comm.OpJob, comm.ErrMalformed, "%v", err)
	}
	if _, _, ok := s.jobs.Find(s.addr, snap.ID, true); ok {
		return nil
	}
	h, j := s.jobs.Create(s.addr, snap.Title, "")
	j.Load(snap)
	s.events = append(s.events, job.JobCreated{Handle: h, ID: j.ID, Title: j.Title})
	return nil
}

func (s *Session) handleOutput(id, chunk string) {
	h, j, ok := s.jobs.Find(s.addr, id, true)
	if !ok {
		log.Printf("[CLIENT] Output for unknown job %s of %s", id, s.addr)
		return
	}
	if j.AppendOutput(chunk) {
		s.events = append(s.events, job.OutputAppended{Handle: h, Chunk: chunk})
	}
}

func (s *Session) handleFinish(id, status, param string) error {
	st := job.ParseStatus(status)
	if st == job.StatusUnknown {
		return comm.NewProtocolError(comm.OpFin, comm.ErrMalformed, "unknown status %q", status)
	}
	h, j, ok := s.jobs.Find(s.addr, id, true)
	if !ok {
		log.Printf("[CLIENT] Status %s for unknown job %s of %s", status, id, s.addr)
		return nil
	}
	c, err := j.ApplyStatus(st, param)
	var de *job.DesyncError
	if errors.As(err, &de) {
		log.Printf("[CLIENT] DESYNC with %s: %v; taking the daemon's status", s.addr, err)
		c, err = j.ForceStatus(st, param)
	}
	if errors.Is(err, job.ErrNoFinishDate) {
		return comm.NewProtocolError(comm.OpFin, comm.ErrMalformed, "%v", err)
	}
	if err != nil {
		return err
	}
	if !c.Changed {
		return nil
	}

	switch st {
	case job.StatusIssued:
		s.events = append(s.events, job.IssueAppended{Handle: h, Text: param})
		return nil
	case job.StatusRequeued:
		if j.Status() == job.StatusRunning {
			if e, ok := s.queues.Find(c.Prev); ok && e.LastRunning == h && queue.IsImplicit(c.Prev) {
				s.queues.Remove(c.Prev)
			}
			s.running(h, j)
		}
	case job.StatusRunning:
		s.running(h, j)
	case job.StatusFinished, job.StatusCanceled:
		if c.Old == job.StatusRunning {
			s.release(j.QueueID, h)
		}
	}
	if st.HasFinishDate() {
		param = j.FinishDate
	}
	s.events = append(s.events, job.StatusChanged{Handle: h, Old: c.Old, New: st, Param: param})
	return nil
}

// running points the job's queue at it.
func (s *Session) running(h job.Handle, j *job.Job) {
	s.queues.Upsert(j.QueueID, s.labels.Running(j), h)
}

// release applies the retention policy once h stops running in queueID.
func (s *Session) release(queueID string, h job.Handle) {
	if s.queues.Release(queueID, h) == queue.Idle {
		s.queues.Upsert(queueID, s.labels.Idle(queueID), job.Handle{})
	}
}

// Close removes a job. Without force a running or queued job is refused
// with a *job.CloseError; otherwise the daemon is told to clear the job when
// it has one.
func (s *Session) Close(h job.Handle, force bool) error {
	s.mu.Lock()
	j, ok := s.jobs.Get(h)
	if !ok {
		s.mu.Unlock()
		return job.ErrJobNotFound
	}
	if err := job.CheckClose(j, force); err != nil {
		s.mu.Unlock()
		return err
	}
	if !force && j.HasRealID() && s.logged {
		if err := s.sender.Send(comm.NewMessage(comm.OpClr, j.ID)); err != nil {
			log.Printf("[CLIENT] Clear job %s on %s: %v", j.ID, s.addr, err)
		}
	}
	if j.Status() == job.StatusRunning {
		s.release(j.QueueID, h)
	}
	id := j.ID
	s.jobs.Delete(h)
	s.events = append(s.events, job.JobDeleted{Handle: h, ID: id})
	events := s.takeEvents()
	s.mu.Unlock()

	s.emit(events)
	return nil
}

// Cancel asks the daemon to terminate job id.
func (s *Session) Cancel(id string) error {
	return s.request(comm.OpEnd, id)
}

// Kill asks the daemon to kill job id, or every job this client started
// when id is empty.
func (s *Session) Kill(id string) error {
	return s.request(comm.OpKil, id)
}

func (s *Session) request(op comm.Opcode, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.logged {
		return fmt.Errorf("%s to %s: %w", op, s.addr, comm.ErrNotLoggedIn)
	}
	var args []string
	if id != "" {
		if _, _, ok := s.jobs.Find(s.addr, id, true); !ok {
			return fmt.Errorf("%s %s: %w", op, id, job.ErrJobNotFound)
		}
		args = append(args, id)
	}
	return s.send(comm.NewMessage(op, args...), job.Handle{})
}

// Quit tells the daemon this client is leaving. The last client to quit
// stops a daemon that is not kept alive.
func (s *Session) Quit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.logged {
		return nil
	}
	s.logged = false
	return s.sender.Send(comm.NewMessage(comm.OpQut))
}

// Lookup resolves a job id.
func (s *Session) Lookup(id string) (job.Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, _, ok := s.jobs.Find(s.addr, id, true)
	return h, ok
}

// Job returns a copy of the job behind h.
func (s *Session) Job(h job.Handle) (job.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs.Get(h)
	if !ok {
		return job.Snapshot{}, false
	}
	return snapshot(j), true
}

// Jobs returns copies of every job in creation order.
func (s *Session) Jobs() []job.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]job.Snapshot, 0, s.jobs.Len())
	s.jobs.ForEach(func(_ job.Handle, j *job.Job) bool {
		out = append(out, snapshot(j))
		return true
	})
	return out
}

// Queues returns copies of the queue entries.
func (s *Session) Queues() []QueueView {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []QueueView
	for _, e := range s.queues.Entries() {
		v := QueueView{ID: e.ID, Label: e.Label}
		if j, ok := s.jobs.Get(e.LastRunning); ok {
			v.LastRunning = j.ID
		}
		out = append(out, v)
	}
	return out
}

func snapshot(j *job.Job) job.Snapshot {
	snap := j.Snapshot()
	snap.QueueID = j.QueueID
	return snap
}

func (s *Session) takeEvents() []job.Event {
	ev := s.events
	s.events = nil
	return ev
}

func (s *Session) emit(events []job.Event) {
	if s.observer == nil {
		return
	}
	for _, ev := range events {
		s.observer(ev)
	}
}
