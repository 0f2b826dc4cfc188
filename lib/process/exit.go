// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"syscall"
)

// Exit codes returned by the shim for conditions other than the
// child's own exit.
const (
	ExitFailure       = 1
	ExitUsage         = 2
	ExitCannotExecute = 126
	ExitNotFound      = 127
)

// Report writes "ptyshim: err" to stderr. The binary uses it for
// errors that occur before its logger exists; afterwards stderr
// belongs to the child's relayed output.
func Report(err error) {
	fmt.Fprintf(os.Stderr, "ptyshim: %v\n", err)
}

// ExitCode translates a finished child's state into the shim's exit
// code: the child's code if it exited normally, ExitFailure otherwise.
func ExitCode(state *os.ProcessState) int {
	if state == nil {
		return ExitFailure
	}
	if status, ok := state.Sys().(syscall.WaitStatus); ok {
		if status.Exited() {
			return status.ExitStatus()
		}
		return ExitFailure
	}
	if code := state.ExitCode(); code >= 0 {
		return code
	}
	return ExitFailure
}

// StartFailureCode returns the exit code for a command that could not
// be started.
func StartFailureCode(err error) int {
	if IsNotFound(err) {
		return ExitNotFound
	}
	return ExitCannotExecute
}

// IsNotFound reports whether a start error means the command does not
// exist, as opposed to existing but failing to execute.
func IsNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}

// Errno extracts the system error number from err, if it carries one.
func Errno(err error) (syscall.Errno, bool) {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno, true
	}
	return 0, false
}
