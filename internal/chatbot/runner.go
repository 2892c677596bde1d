// Package chatbot bridges the HTTP API to the out-of-process assistant.
package chatbot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds an assistant run when Runner.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// ErrTimeout is returned when the assistant does not finish in time.
var ErrTimeout = errors.New("assistant timed out")

// ExitError reports an assistant process that ran but failed.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("assistant exited with code %d", e.Code)
}

// TokenEnv names the environment variable that carries the caller's
// delegated token to the assistant. It is kept out of argv so it does not
// show up in process listings.
const TokenEnv = "CALORIE_TRACKER_TOKEN"

// QueryAddressEnv tells the assistant where the meal query server listens.
const QueryAddressEnv = "CALORIE_TRACKER_QUERY_ADDRESS"

// Runner invokes the assistant as `Command Args... <query> <userID>`.
type Runner struct {
	Command string
	Args    []string
	Dir     string
	Timeout time.Duration
	// Env is appended to the inherited environment, e.g. the query server address.
	Env []string
}

// Ask runs the assistant for one query and returns its trimmed stdout.
// The process is killed when the timeout elapses or ctx is cancelled.
// A non-empty token is exported as TokenEnv.
func (r *Runner) Ask(ctx context.Context, query string, userID int64, token string) (string, error) {
	if r.Command == "" {
		return "", errors.New("assistant command is not configured")
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string{}, r.Args...), query, strconv.FormatInt(userID, 10))
	cmd := exec.CommandContext(ctx, r.Command, args...)
	cmd.Dir = r.Dir
	cmd.Env = append(os.Environ(), r.Env...)
	if token != "" {
		cmd.Env = append(cmd.Env, TokenEnv+"="+token)
	}
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", &ExitError{Code: exitErr.ExitCode(), Stderr: strings.TrimSpace(stderr.String())}
		}
		return "", fmt.Errorf("start assistant: %w", err)
	}
	return strings.TrimSpace(stdout.String()), nil
}
