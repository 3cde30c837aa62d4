package core

import (
	"fmt"
	"strings"
)

// IsolationMode selects what state concurrently running workers share.
type IsolationMode int

// Isolation modes.
const (
	// IsolationThreadShared runs workers as goroutines that derive their
	// connections from one shared engine session.
	IsolationThreadShared IsolationMode = iota
	// IsolationThreadIndependent runs workers as goroutines that each open
	// their own engine session.
	IsolationThreadIndependent
	// IsolationProcess runs each worker in its own child process. Workers
	// share only the filesystem.
	IsolationProcess
)

// String returns the configuration name of the mode.
func (m IsolationMode) String() string {
	switch m {
	case IsolationThreadShared:
		return "thread-shared"
	case IsolationThreadIndependent:
		return "thread-independent"
	case IsolationProcess:
		return "process"
	default:
		return fmt.Sprintf("isolation(%d)", int(m))
	}
}

// Threaded reports whether workers run inside the current process.
func (m IsolationMode) Threaded() bool {
	return m == IsolationThreadShared || m == IsolationThreadIndependent
}

// ParseIsolationMode converts a configuration name to an IsolationMode.
func ParseIsolationMode(s string) (IsolationMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "thread-shared", "shared":
		return IsolationThreadShared, nil
	case "thread-independent", "independent", "thread":
		return IsolationThreadIndependent, nil
	case "process", "process-isolated":
		return IsolationProcess, nil
	default:
		return 0, fmt.Errorf("unknown isolation mode %q (use thread-shared, thread-independent or process)", s)
	}
}
