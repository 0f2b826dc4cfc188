// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package supervisor starts the child command behind the relay and
// sees it through to exit.
//
// [Run] performs the whole lifecycle:
//
//  1. Create one close-on-exec pipe per filtered stream. The child
//     gets the write end as its stdout or stderr; streams that are not
//     filtered are inherited directly. Stdin is always inherited.
//  2. Start the child. A start failure is reported on the back-channel
//     as "ERR domain,code,message" and the shim exits 126 or 127.
//  3. Close the child's pipe ends in the parent, start a
//     [stream.Processor] per pipe, and report "OK <pid>".
//  4. Forward termination signals to the child until it exits.
//  5. Wait for the pipelines to reach EOF. Grandchildren that inherited
//     the child's stdout can hold a pipe open indefinitely, so after
//     the drain timeout the remaining pipelines are stopped.
//  6. Report "END", flush the back-channel, and return the child's exit
//     code.
package supervisor
