// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the shim's process-level conventions: how a
// child's termination is turned into the shim's own exit code, and
// how the binary reports an error before its logger exists.
//
// Exit codes follow the shell: the child's own code when it exited,
// 126 when the command could not be started, 127 when it was not
// found, and 1 for anything else (including death by signal).
package process
