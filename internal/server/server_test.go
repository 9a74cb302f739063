package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/vnykmshr/uthread/internal/testutil"
	"github.com/vnykmshr/uthread/pkg/metrics"
	"github.com/vnykmshr/uthread/pkg/threading/sched"
	"github.com/vnykmshr/uthread/pkg/threading/trace"
)

type fakeSource struct {
	snap  sched.Snapshot
	log   *trace.Log
	check error
}

func (f *fakeSource) Snapshot() sched.Snapshot { return f.snap }
func (f *fakeSource) Trace() *trace.Log        { return f.log }
func (f *fakeSource) CheckInvariants() error   { return f.check }

func newFake() *fakeSource {
	logger, _ := test.NewNullLogger()
	log := trace.NewWithConfig(trace.Config{Logger: logger})
	log.Record(trace.Event{Kind: trace.Created, Thread: 1, Reason: "low"})
	log.Record(trace.Event{Kind: trace.Terminated, From: 0, To: 1})
	log.Record(trace.Event{Kind: trace.Swap, From: 1, To: 2})

	return &fakeSource{
		log: log,
		snap: sched.Snapshot{
			Instance: "fake",
			Policy:   "rrfd",
			Running:  1,
			Threads: []sched.ThreadInfo{
				{ID: 0, State: sched.Free},
				{ID: 1, State: sched.Ready, Priority: sched.Low, Running: true},
				{ID: 2, State: sched.Waiting, Priority: sched.High},
				{ID: sched.IdleID, State: sched.Idle, Priority: sched.Reserved},
			},
			Waiting: []sched.ThreadID{2},
		},
	}
}

func testServer(src Source, opts ...Option) *Server {
	logger, _ := test.NewNullLogger()
	return New(src, logger, opts...)
}

// envelope is used to decode the standard response envelope.
type envelope struct {
	Status    string          `json:"status"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
}

func do(t *testing.T, srv *Server, path string, wantStatus int) envelope {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != wantStatus {
		t.Fatalf("GET %s: status=%d, want %d, body=%s", path, w.Code, wantStatus, w.Body.String())
	}
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("GET %s: invalid JSON: %v", path, err)
	}
	if env.RequestID == "" {
		t.Errorf("GET %s: request_id is empty", path)
	}
	return env
}

func TestHealth(t *testing.T) {
	env := do(t, testServer(newFake()), "/healthz", http.StatusOK)

	var data healthResponse
	testutil.AssertNoError(t, json.Unmarshal(env.Data, &data))
	testutil.AssertEqual(t, data.Status, "running")
	testutil.AssertEqual(t, data.Instance, "fake")
	testutil.AssertEqual(t, data.Live, 2)
}

func TestThreads(t *testing.T) {
	env := do(t, testServer(newFake()), "/api/v1/threads", http.StatusOK)

	var snap struct {
		Running int `json:"running"`
		Threads []struct {
			ID    int    `json:"id"`
			State string `json:"state"`
		} `json:"threads"`
		Waiting []int `json:"waiting"`
	}
	testutil.AssertNoError(t, json.Unmarshal(env.Data, &snap))
	testutil.AssertEqual(t, snap.Running, 1)
	testutil.AssertEqual(t, len(snap.Threads), 4)
	testutil.AssertEqual(t, snap.Threads[2].State, "waiting")
	testutil.AssertSliceEqual(t, snap.Waiting, []int{2})
}

func TestThread(t *testing.T) {
	srv := testServer(newFake())

	env := do(t, srv, "/api/v1/threads/-1", http.StatusOK)
	if !strings.Contains(string(env.Data), `"state":"idle"`) {
		t.Errorf("idle thread = %s", env.Data)
	}

	env = do(t, srv, "/api/v1/threads/9", http.StatusNotFound)
	testutil.AssertEqual(t, env.Status, "error")

	do(t, srv, "/api/v1/threads/x", http.StatusBadRequest)
}

func TestTrace(t *testing.T) {
	srv := testServer(newFake())

	var events []traceEvent
	env := do(t, srv, "/api/v1/trace", http.StatusOK)
	testutil.AssertNoError(t, json.Unmarshal(env.Data, &events))
	testutil.AssertEqual(t, len(events), 3)
	testutil.AssertEqual(t, events[1].Line, "*** THREAD 0 TERMINATED: SET CONTEXT OF 1")

	env = do(t, srv, "/api/v1/trace?since=1&kind=swap", http.StatusOK)
	testutil.AssertNoError(t, json.Unmarshal(env.Data, &events))
	testutil.AssertEqual(t, len(events), 1)
	testutil.AssertEqual(t, events[0].Line, "*** SWAPCONTEXT FROM 1 TO 2")

	do(t, srv, "/api/v1/trace?since=x", http.StatusBadRequest)
}

func TestInvariants(t *testing.T) {
	src := newFake()
	srv := testServer(src)
	do(t, srv, "/api/v1/invariants", http.StatusOK)

	src.check = errors.New("thread 2 is Waiting but not in the wait queue")
	env := do(t, srv, "/api/v1/invariants", http.StatusConflict)
	testutil.AssertEqual(t, env.Error, src.check.Error())
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	observer := metrics.NewObserver(metrics.NewRegistry(reg), "debug")
	observer.SetLive(3)

	srv := testServer(newFake(), WithGatherer(reg))
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	testutil.AssertEqual(t, w.Code, http.StatusOK)
	if !strings.Contains(w.Body.String(), `uthread_threads_live{scheduler_name="debug"} 3`) {
		t.Errorf("metrics body missing live gauge:\n%s", w.Body.String())
	}
}

func TestRealSystem(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cfg := sched.DefaultConfig()
	cfg.Logger = logger
	cfg.Policy = sched.PolicyRRF
	s, err := sched.New(cfg)
	testutil.AssertNoError(t, err)

	env := do(t, testServer(s), "/api/v1/threads", http.StatusOK)
	if !strings.Contains(string(env.Data), `"policy":"rrf"`) {
		t.Errorf("snapshot = %s", env.Data)
	}
}

func TestListenAndServeStops(t *testing.T) {
	srv := testServer(newFake())
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe(ctx, "127.0.0.1:0") }()

	cancel()
	select {
	case err := <-errc:
		testutil.AssertNoError(t, err)
	case <-time.After(testutil.TestTimeout):
		t.Fatal("server did not stop")
	}
}
