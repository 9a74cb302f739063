package testutil

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"
)

// MockWriter is a test writer that can simulate various write conditions
// including delays, errors, and write counting.
type MockWriter struct {
	buf         *bytes.Buffer
	mu          sync.Mutex
	writeDelay  time.Duration
	errorOnNth  int
	writeCount  int
	shouldError bool
	err         error
}

// NewMockWriter creates a new MockWriter.
func NewMockWriter() *MockWriter {
	return &MockWriter{
		buf: &bytes.Buffer{},
	}
}

// Write implements io.Writer interface with configurable behavior.
func (mw *MockWriter) Write(p []byte) (int, error) {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	mw.writeCount++

	if mw.writeDelay > 0 {
		time.Sleep(mw.writeDelay)
	}

	if mw.shouldError {
		return 0, mw.err
	}

	if mw.errorOnNth > 0 && mw.writeCount == mw.errorOnNth {
		return 0, errors.New("simulated error")
	}

	return mw.buf.Write(p)
}

// String returns the current buffer contents.
func (mw *MockWriter) String() string {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.buf.String()
}

// WriteCount returns the number of Write calls.
func (mw *MockWriter) WriteCount() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.writeCount
}

// SetErrorOnNth configures the writer to error on the nth write.
func (mw *MockWriter) SetErrorOnNth(n int) {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.errorOnNth = n
}

// SetAlwaysError configures the writer to always return the given error.
func (mw *MockWriter) SetAlwaysError(err error) {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.shouldError = true
	mw.err = err
}

// MockStore is a block store for disk tests. It serves blocks from a map,
// counts loads and can be told to fail or to hold every load until released.
type MockStore struct {
	mu     sync.Mutex
	blocks map[uint64][]byte
	loads  int
	err    error
	gate   chan struct{}
}

// NewMockStore creates an empty MockStore.
func NewMockStore() *MockStore {
	return &MockStore{blocks: make(map[uint64][]byte)}
}

// Put stores data for block.
func (ms *MockStore) Put(block uint64, data []byte) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.blocks[block] = append([]byte(nil), data...)
}

// Load returns the stored block, honoring the configured failure and gate.
func (ms *MockStore) Load(ctx context.Context, block uint64) ([]byte, error) {
	ms.mu.Lock()
	ms.loads++
	gate := ms.gate
	err := ms.err
	data := append([]byte(nil), ms.blocks[block]...)
	ms.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Loads returns the number of Load calls.
func (ms *MockStore) Loads() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.loads
}

// SetError makes every subsequent Load fail with err.
func (ms *MockStore) SetError(err error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.err = err
}

// Hold makes subsequent loads block until the returned release func is called.
func (ms *MockStore) Hold() (release func()) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	gate := make(chan struct{})
	ms.gate = gate
	var once sync.Once
	return func() {
		once.Do(func() {
			ms.mu.Lock()
			if ms.gate == gate {
				ms.gate = nil
			}
			ms.mu.Unlock()
			close(gate)
		})
	}
}
