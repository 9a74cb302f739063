package testutil

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestEventually(t *testing.T) {
	t.Run("condition met immediately", func(t *testing.T) {
		called := false
		Eventually(t, func() bool {
			called = true
			return true
		}, 100*time.Millisecond, 10*time.Millisecond)

		if !called {
			t.Error("condition function should be called")
		}
	})

	t.Run("condition met after delay", func(t *testing.T) {
		var counter int32
		go func() {
			time.Sleep(50 * time.Millisecond)
			atomic.StoreInt32(&counter, 1)
		}()

		Eventually(t, func() bool {
			return atomic.LoadInt32(&counter) == 1
		}, 2*time.Second, 10*time.Millisecond)
	})
}

func TestNever(t *testing.T) {
	Never(t, func() bool { return false }, 30*time.Millisecond, 10*time.Millisecond)
}

func TestAssertSliceEqual(t *testing.T) {
	AssertSliceEqual(t, []int{1, 2, 3}, []int{1, 2, 3})
	AssertSliceEqual(t, []string{}, []string{})
}

func TestMockWriter(t *testing.T) {
	w := NewMockWriter()
	if _, err := w.Write([]byte("hello")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	AssertEqual(t, w.String(), "hello")

	w.SetErrorOnNth(2)
	if _, err := w.Write([]byte("x")); err == nil {
		t.Error("second write should fail")
	}
	AssertEqual(t, w.WriteCount(), 2)
}

func TestMockStore(t *testing.T) {
	ctx := context.Background()
	s := NewMockStore()
	s.Put(3, []byte("abc"))

	data, err := s.Load(ctx, 3)
	AssertNoError(t, err)
	AssertEqual(t, string(data), "abc")

	missing, err := s.Load(ctx, 4)
	AssertNoError(t, err)
	AssertEqual(t, len(missing), 0)

	boom := errors.New("boom")
	s.SetError(boom)
	_, err = s.Load(ctx, 3)
	AssertErrorIs(t, err, boom)
	AssertEqual(t, s.Loads(), 3)
}

func TestMockStoreHold(t *testing.T) {
	s := NewMockStore()
	release := s.Hold()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Load(context.Background(), 1)
	}()

	select {
	case <-done:
		t.Fatal("load should block while held")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	release() // idempotent

	select {
	case <-done:
	case <-time.After(TestTimeout):
		t.Fatal("load did not complete after release")
	}
}
