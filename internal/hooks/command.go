package hooks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"
)

// defaultTimeout is used when the hook's Timeout field is nil.
const defaultTimeout = 30 * time.Second

// runCommand executes command through the system shell (sh -c on Unix,
// cmd /C on Windows) with APPICON_* environment variables describing the
// run. Run data is passed only via the environment; the command string is
// never template-expanded, so file names cannot inject shell syntax.
//
// Timeout behavior:
//   - nil  → 30-second default
//   - 0    → no timeout
//   - >0   → that many seconds
func runCommand(ctx context.Context, command string, timeoutSec *int, ev Event) error {
	timeout := defaultTimeout
	if timeoutSec != nil {
		timeout = time.Duration(*timeoutSec) * time.Second
	}

	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/C", command)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", command)
	}
	cmd.Env = buildEnv(ev)
	cmd.WaitDelay = time.Second

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("command %q timed out after %v", command, timeout)
		}
		if stderr.Len() > 0 {
			return fmt.Errorf("command %q: %s", command, bytes.TrimSpace(stderr.Bytes()))
		}
		return fmt.Errorf("command %q: %w", command, err)
	}
	return nil
}

// buildEnv returns the current process environment augmented with
// APPICON_* variables for the event. Optional fields are only set when
// non-empty.
func buildEnv(ev Event) []string {
	v := ev.Vars()
	env := os.Environ()

	// Always present.
	env = append(env,
		"APPICON_STATUS="+v.Status,
		"APPICON_SOURCE="+v.Source,
		"APPICON_COUNT="+v.Count,
		"APPICON_BYTES="+fmt.Sprint(ev.Bytes),
		"APPICON_DURATION="+v.Duration,
	)

	// Present when non-empty.
	if v.Output != "" {
		env = append(env, "APPICON_OUTPUT="+v.Output)
	}
	if ev.RunID != "" {
		env = append(env, "APPICON_RUN_ID="+ev.RunID)
	}
	if v.Error != "" {
		env = append(env, "APPICON_ERROR="+v.Error)
	}
	return env
}
