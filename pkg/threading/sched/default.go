package sched

import (
	"os"
	"sync"
)

var (
	defaultOnce   sync.Once
	defaultSystem *System
)

// Default returns the process-wide System used by the package-level
// functions. It runs DefaultConfig and is initialized by the first thread
// operation, which makes the calling goroutine thread 0. When it halts the
// process exits with ExitCode of the halt error.
func Default() *System {
	defaultOnce.Do(func() {
		cfg := DefaultConfig()
		cfg.OnHalt = exitProcess
		s, err := New(cfg)
		if err != nil {
			panic(err)
		}
		defaultSystem = s
	})
	return defaultSystem
}

func exitProcess(err error) {
	os.Exit(ExitCode(err))
}

// Create starts a thread on the default System.
func Create(entry func(), p Priority) (ThreadID, error) {
	return Default().Create(entry, p)
}

// Exit finishes the calling thread of the default System.
func Exit() {
	Default().Exit()
}

// CurrentID returns the calling thread id on the default System.
func CurrentID() ThreadID {
	return Default().CurrentID()
}

// SetPriority changes the calling thread's priority on the default System.
func SetPriority(p Priority) error {
	return Default().SetPriority(p)
}

// GetPriority returns the calling thread's priority on the default System.
func GetPriority() Priority {
	return Default().Priority()
}

// Read performs a blocking read on the default System.
func Read(block uint64) ([]byte, error) {
	return Default().Read(block)
}

// Checkpoint is a safe point on the default System.
func Checkpoint() {
	Default().Checkpoint()
}
