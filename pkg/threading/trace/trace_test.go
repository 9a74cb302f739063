package trace

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/vnykmshr/uthread/internal/testutil"
)

func newTestLog(capacity int) (*Log, *test.Hook) {
	logger, hook := test.NewNullLogger()
	return NewWithConfig(Config{Logger: logger, InstanceID: "test", Capacity: capacity}), hook
}

func TestEventString(t *testing.T) {
	tests := []struct {
		event Event
		want  string
	}{
		{Event{Kind: Created, Thread: 1}, "*** THREAD 1 CREATED"},
		{Event{Kind: Finished, Thread: 1}, "*** THREAD 1 FINISHED"},
		{Event{Kind: Terminated, From: 1, To: 2}, "*** THREAD 1 TERMINATED: SET CONTEXT OF 2"},
		{Event{Kind: Ready, Thread: 4}, "*** THREAD 4 READY"},
		{Event{Kind: Preempted, From: 2, To: 3}, "*** THREAD 2 PREEMPTED: SET CONTEXT OF 3"},
		{Event{Kind: Swap, From: 2, To: 3}, "*** SWAPCONTEXT FROM 2 TO 3"},
		{Event{Kind: Blocked, Thread: 5}, "*** THREAD 5 READ FROM DISK"},
		{Event{Kind: Idle, From: 5, To: -1}, "*** THREAD 5 IDLE: SET CONTEXT OF -1"},
		{Event{Kind: Exhausted, Reason: ReasonComplete}, "*** FINISH"},
	}

	for _, tt := range tests {
		t.Run(tt.event.Kind.String(), func(t *testing.T) {
			testutil.AssertEqual(t, tt.event.String(), tt.want)
		})
	}
}

func TestRecordOrder(t *testing.T) {
	l, _ := newTestLog(0)

	l.Record(Event{Kind: Created, Thread: 1})
	l.Record(Event{Kind: Swap, From: 0, To: 1})
	e := l.Record(Event{Kind: Finished, Thread: 1})

	testutil.AssertEqual(t, e.Seq, uint64(3))
	testutil.AssertSliceEqual(t, l.Kinds(), []Kind{Created, Swap, Finished})
	testutil.AssertEqual(t, len(l.Filter(Swap, Finished)), 2)
	testutil.AssertEqual(t, l.Len(), uint64(3))
}

func TestCapacity(t *testing.T) {
	l, _ := newTestLog(2)

	for i := 0; i < 5; i++ {
		l.Record(Event{Kind: Created, Thread: i})
	}

	events := l.Events()
	testutil.AssertEqual(t, len(events), 2)
	testutil.AssertEqual(t, events[0].Thread, 3)
	testutil.AssertEqual(t, events[1].Seq, uint64(5))

	testutil.AssertEqual(t, l.Record(Event{Kind: Created}).Seq, uint64(6))
}

func TestLogFields(t *testing.T) {
	l, hook := newTestLog(0)

	l.Record(Event{Kind: Swap, From: 1, To: 2})
	entry := hook.LastEntry()
	testutil.AssertEqual(t, entry.Level, logrus.InfoLevel)
	testutil.AssertEqual(t, entry.Message, "*** SWAPCONTEXT FROM 1 TO 2")
	testutil.AssertEqual(t, entry.Data["event"], interface{}("swap"))
	testutil.AssertEqual(t, entry.Data["from"], interface{}(1))
	testutil.AssertEqual(t, entry.Data["to"], interface{}(2))
	testutil.AssertEqual(t, entry.Data["instance"], interface{}("test"))

	l.Record(Event{Kind: Blocked, Thread: 7})
	testutil.AssertEqual(t, hook.LastEntry().Data["thread"], interface{}(7))
}

func TestExhaustedLevels(t *testing.T) {
	l, hook := newTestLog(0)

	l.Record(Event{Kind: Exhausted, Reason: ReasonComplete})
	testutil.AssertEqual(t, hook.LastEntry().Level, logrus.InfoLevel)

	l.Record(Event{Kind: Exhausted, Reason: ReasonDeadlocked})
	testutil.AssertEqual(t, hook.LastEntry().Level, logrus.WarnLevel)
	testutil.AssertEqual(t, hook.LastEntry().Data["reason"], interface{}(ReasonDeadlocked))
}

func TestWaitFor(t *testing.T) {
	l, _ := newTestLog(0)
	l.Record(Event{Kind: Created, Thread: 1})

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	// Already recorded.
	e, err := l.WaitFor(ctx, func(e Event) bool { return e.Kind == Created })
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, e.Thread, 1)

	go func() {
		time.Sleep(5 * time.Millisecond)
		l.Record(Event{Kind: Swap, From: 0, To: 1})
		l.Record(Event{Kind: Finished, Thread: 1})
	}()

	e, err = l.WaitFor(ctx, func(e Event) bool { return e.Kind == Finished })
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, e.Seq, uint64(3))
}

func TestWaitForCancelled(t *testing.T) {
	l, _ := newTestLog(0)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := l.WaitFor(ctx, func(Event) bool { return true })
	testutil.AssertErrorIs(t, err, context.DeadlineExceeded)
}

func TestSubscribe(t *testing.T) {
	l, _ := newTestLog(0)

	var first, second []Kind
	unsubscribe := l.Subscribe(func(e Event) { first = append(first, e.Kind) })
	l.Subscribe(func(e Event) { second = append(second, e.Kind) })

	l.Record(Event{Kind: Created})
	unsubscribe()
	l.Record(Event{Kind: Finished})

	testutil.AssertSliceEqual(t, first, []Kind{Created})
	testutil.AssertSliceEqual(t, second, []Kind{Created, Finished})
}

func TestKindString(t *testing.T) {
	testutil.AssertEqual(t, Exhausted.String(), "exhausted")
	testutil.AssertEqual(t, Kind(42).String(), "kind(42)")
}
