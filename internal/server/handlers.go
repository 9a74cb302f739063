package server

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vnykmshr/uthread/pkg/threading/sched"
	"github.com/vnykmshr/uthread/pkg/threading/trace"
)

type healthResponse struct {
	Status    string `json:"status"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
	Instance  string `json:"instance"`
	Policy    string `json:"policy"`
	Live      int    `json:"live"`
	Halted    bool   `json:"halted"`
}

// handleHealth reports whether the scheduler is still running.
// GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.source.Snapshot()
	status := "running"
	if snap.Halted {
		status = "halted"
	}
	respondOK(w, RequestIDFromContext(r.Context()), healthResponse{
		Status:    status,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Instance:  snap.Instance,
		Policy:    snap.Policy,
		Live:      snap.Live(),
		Halted:    snap.Halted,
	})
}

// handleThreads returns the scheduler snapshot.
// GET /api/v1/threads
func (s *Server) handleThreads(w http.ResponseWriter, r *http.Request) {
	respondOK(w, RequestIDFromContext(r.Context()), s.source.Snapshot())
}

// handleThread returns one thread control block.
// GET /api/v1/threads/{id}
func (s *Server) handleThread(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, reqID, http.StatusBadRequest, "thread id must be an integer")
		return
	}
	for _, t := range s.source.Snapshot().Threads {
		if t.ID == sched.ThreadID(id) {
			respondOK(w, reqID, t)
			return
		}
	}
	respondError(w, reqID, http.StatusNotFound, "no such thread")
}

// handleTrace returns recorded events, optionally only those after a
// sequence number and of the given kinds.
// GET /api/v1/trace?since=N&kind=swap&kind=preempted
func (s *Server) handleTrace(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var since uint64
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			respondError(w, reqID, http.StatusBadRequest, "since must be a sequence number")
			return
		}
		since = n
	}

	kinds := make(map[string]bool)
	for _, k := range r.URL.Query()["kind"] {
		kinds[k] = true
	}

	events := make([]traceEvent, 0)
	for _, e := range s.source.Trace().Events() {
		if e.Seq <= since {
			continue
		}
		if len(kinds) > 0 && !kinds[e.Kind.String()] {
			continue
		}
		events = append(events, newTraceEvent(e))
	}
	respondOK(w, reqID, events)
}

// handleInvariants runs the scheduler consistency checks.
// GET /api/v1/invariants
func (s *Server) handleInvariants(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if err := s.source.CheckInvariants(); err != nil {
		respondError(w, reqID, http.StatusConflict, err.Error())
		return
	}
	respondOK(w, reqID, map[string]bool{"consistent": true})
}

type traceEvent struct {
	Seq    uint64 `json:"seq"`
	Kind   string `json:"kind"`
	From   int    `json:"from"`
	To     int    `json:"to"`
	Thread int    `json:"thread"`
	Reason string `json:"reason,omitempty"`
	Line   string `json:"line"`
}

func newTraceEvent(e trace.Event) traceEvent {
	return traceEvent{
		Seq:    e.Seq,
		Kind:   e.Kind.String(),
		From:   e.From,
		To:     e.To,
		Thread: e.Thread,
		Reason: e.Reason,
		Line:   e.String(),
	}
}
