// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// ptyshim sits between a terminal emulator and the command running in
// one of its panes. The child's stdout and stderr are relayed to the
// terminal through a filter that removes OSC 52 clipboard writes and
// reports them on a side pipe instead, so the embedding application
// decides whether a program may set the clipboard.
//
// Usage:
//
//	ptyshim [flags] <fd> [--] <command> [args...]
//
// <fd> is an already open, writable descriptor inherited from the
// parent: the back-channel. Each message on it is a 4-byte
// little-endian length followed by the message text:
//
//	OK <pid>                  the child is running
//	ERR <domain>,<code>,<msg> the child could not be started
//	OSC52 <selection>;<data>  the child asked to set the clipboard
//	END                       the child exited and its output drained
//
// The back-channel is closed on exec, so the child never sees it.
//
// Stdin is inherited by the child untouched. Signals that would end
// the shim (SIGINT, SIGTERM, SIGHUP, SIGQUIT) are forwarded to the
// child instead. The shim exits with the child's exit code, 1 if the
// child was killed by a signal, 126 if it could not be executed, 127 if
// it was not found, and 2 on a usage error.
//
// Logs go to a rotating file, $XDG_CACHE_HOME/ptyshim/ptyshim.log by
// default, never to the terminal. See lib/config for the configuration
// file and PTYSHIM_* environment variables.
package main
