// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"io"
	"log/slog"
	"runtime"
)

// Build stamps, overridden by the release build:
//
//	go build -ldflags "-X github.com/bureau-foundation/ptyshim/lib/version.GitCommit=$(git rev-parse --short HEAD)" ./cmd/ptyshim
var (
	GitCommit = "unknown"
	GitDirty  = "false"
	BuildTime = "unknown"
	Version   = "0.1.0-dev"
)

func dirty() bool { return GitDirty == "true" }

// Info is the one-line build identity: "0.1.0 (abc1234-dirty, <time>)".
func Info() string {
	commit := GitCommit
	if dirty() {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (%s, %s)", Version, commit, BuildTime)
}

// Full is Info followed by the Go toolchain and platform.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Print writes the --version output for binary to w.
func Print(w io.Writer, binary string) {
	fmt.Fprintf(w, "%s %s\n", binary, Full())
}

// Attr is the build identity as a log attribute group, attached to the
// first record of every session log.
func Attr() slog.Attr {
	return slog.Group("build",
		"version", Version,
		"commit", GitCommit,
		"dirty", dirty(),
		"time", BuildTime,
	)
}
