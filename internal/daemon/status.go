package daemon

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gebrproject/gebr/internal/job"
)

// QueueStatus is the HTTP view of a queue.
type QueueStatus struct {
	ID          string `json:"queue_id"`
	LastRunning string `json:"last_running,omitempty"`
	Waiting     int    `json:"waiting"`
}

// StatusHandler serves a read-only JSON view of the daemon:
//
//	GET /jobs        every job
//	GET /jobs/{id}   one job
//	GET /queues      every queue
//	GET /host        load and capacity of this machine
func (d *Daemon) StatusHandler() http.Handler {
	r := chi.NewRouter()
	r.Get("/jobs", d.handleJobs)
	r.Get("/jobs/{id}", d.handleJob)
	r.Get("/queues", d.handleQueues)
	r.Get("/host", d.handleHost)
	return r
}

func (d *Daemon) startStatus(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("status listen on %s: %w", addr, err)
	}
	d.status = &http.Server{Handler: d.StatusHandler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := d.status.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("[STATUS] Serve: %v", err)
		}
	}()
	log.Printf("[STATUS] Listening on %s", ln.Addr())
	return nil
}

func (d *Daemon) handleJobs(w http.ResponseWriter, r *http.Request) {
	var jobs []job.Snapshot
	err := d.do(r.Context(), func() {
		d.jobs.ForEach(func(_ job.Handle, j *job.Job) bool {
			s := j.Snapshot()
			s.QueueID = j.QueueID
			jobs = append(jobs, s)
			return true
		})
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if jobs == nil {
		jobs = []job.Snapshot{}
	}
	writeJSON(w, jobs)
}

func (d *Daemon) handleJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var (
		snap  job.Snapshot
		found bool
	)
	err := d.do(r.Context(), func() {
		if _, j, ok := d.jobs.Find("", id, true); ok {
			snap = j.Snapshot()
			snap.QueueID = j.QueueID
			found = true
		}
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if !found {
		http.Error(w, job.ErrJobNotFound.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, snap)
}

func (d *Daemon) handleQueues(w http.ResponseWriter, r *http.Request) {
	queues := []QueueStatus{}
	err := d.do(r.Context(), func() {
		for _, e := range d.queues.Entries() {
			qs := QueueStatus{ID: e.ID, Waiting: len(e.Waiting())}
			if j, ok := d.jobs.Get(e.LastRunning); ok {
				qs.LastRunning = j.ID
			}
			queues = append(queues, qs)
		}
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, queues)
}

// handleHost does not go through the reactor: probing reads no daemon state.
func (d *Daemon) handleHost(w http.ResponseWriter, r *http.Request) {
	info, err := d.host.Probe()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if d.cfg.Hostname != "" {
		info.Hostname = d.cfg.Hostname
	}
	writeJSON(w, info)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[STATUS] Encode: %v", err)
	}
}
