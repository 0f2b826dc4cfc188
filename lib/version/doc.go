// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version identifies a ptyshim build.
//
// The release build stamps [Version], [GitCommit], [GitDirty] and
// [BuildTime] with -ldflags -X; development builds keep the defaults.
// The binary prints [Full] for --version and logs [Attr] when a session
// starts, so a log file can be matched to the build that wrote it.
package version
