package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cmd := newRootCommand()
	err := cmd.ExecuteContext(ctx)
	stop()
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		if exitErr.message != "" {
			fmt.Fprintln(os.Stderr, exitErr.message)
		}
		return exitErr.code
	}
	if !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
	}
	return 1
}

// Exit codes beyond the generic failure.
const (
	exitInterrupted = 2
	exitUnsaved     = 3
)

// exitError ends the process with a specific status after output has
// already been written.
type exitError struct {
	code    int
	message string
}

func (e *exitError) Error() string {
	if e.message != "" {
		return e.message
	}
	return fmt.Sprintf("exit status %d", e.code)
}
