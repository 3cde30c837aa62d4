package harness

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"testing"
	"time"
)

// helperEnv selects a misbehaving worker process in TestMain.
const helperEnv = "DUCKSTRESS_TEST_HELPER"

const (
	helperServe = "serve"
	helperCrash = "crash"
	helperQuit  = "quit"
	helperHang  = "hang"

	// helperServeCrash serves the whole stream, then exits abnormally.
	helperServeCrash = "serve-crash"
)

// TestMain lets the test binary act as a worker process, the same way the
// duckstress binary answers to its hidden worker command.
func TestMain(m *testing.M) {
	if os.Getenv(WorkerEnv) == "1" {
		os.Exit(runHelper(os.Getenv(helperEnv)))
	}
	os.Exit(m.Run())
}

func runHelper(mode string) int {
	switch mode {
	case helperCrash:
		_, _ = io.Copy(io.Discard, os.Stdin)
		fmt.Fprintln(os.Stderr, "helper: simulated crash")
		return 3
	case helperQuit:
		_, _ = io.Copy(io.Discard, os.Stdin)
		return 0
	case helperServeCrash:
		if err := ServeWorker(context.Background(), os.Stdin, os.Stdout, nil); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
		return 3
	case helperHang:
		_, _ = io.Copy(io.Discard, os.Stdin)
		time.Sleep(time.Hour)
		return 0
	default:
		if err := ServeWorker(context.Background(), os.Stdin, os.Stdout, nil); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		return 0
	}
}

// helperCommand starts this test binary as a worker process in mode.
func helperCommand(mode string) CommandFunc {
	return func(ctx context.Context) (*exec.Cmd, error) {
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=^$")
		cmd.Env = append(os.Environ(), WorkerEnv+"=1", helperEnv+"="+mode)
		return cmd, nil
	}
}
