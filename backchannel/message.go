// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package backchannel

import (
	"fmt"
	"strconv"

	"github.com/bureau-foundation/ptyshim/lib/arena"
)

// Message prefixes. Each frame starts with exactly one of these.
const (
	prefixStarted   = "OK "
	prefixFailed    = "ERR "
	prefixEnd       = "END"
	prefixClipboard = "OSC52 "
)

// Kind identifies which variant a Message is.
type Kind int

const (
	// KindStop is the zero Message: the sender's shutdown sentinel.
	// It is never written to the pipe.
	KindStop Kind = iota
	KindStarted
	KindSpawnFailed
	KindEnd
	KindClipboard
)

func (k Kind) String() string {
	switch k {
	case KindStop:
		return "stop"
	case KindStarted:
		return "started"
	case KindSpawnFailed:
		return "spawn-failed"
	case KindEnd:
		return "end"
	case KindClipboard:
		return "clipboard"
	default:
		return "unknown"
	}
}

// ErrorDomain classifies the code carried by a spawn failure.
type ErrorDomain int

const (
	// DomainErrno: code is an errno value from the failed system call.
	DomainErrno ErrorDomain = 1

	// DomainShim: code is one of the Code* constants below.
	DomainShim ErrorDomain = 2
)

// Codes used with DomainShim when no errno is available.
const (
	CodeSetup    = 1
	CodeNotFound = 2
	CodeStart    = 3
)

// Message is one back-channel message. The zero Message is the stop
// sentinel.
type Message struct {
	kind    Kind
	prefix  string
	payload []arena.Slice
}

// Started reports that the child is running with the given pid.
func Started(pid int) Message {
	return Message{kind: KindStarted, prefix: prefixStarted + strconv.Itoa(pid)}
}

// SpawnFailed reports that the child could not be started.
func SpawnFailed(domain ErrorDomain, code int, text string) Message {
	return Message{kind: KindSpawnFailed, prefix: fmt.Sprintf("%s%d,%d,%s", prefixFailed, domain, code, text)}
}

// End reports that the child has exited and output has drained.
func End() Message {
	return Message{kind: KindEnd, prefix: prefixEnd}
}

// Clipboard carries a captured OSC 52 payload. The message takes
// ownership of the slices.
func Clipboard(payload []arena.Slice) Message {
	return Message{kind: KindClipboard, prefix: prefixClipboard, payload: payload}
}

// Kind returns the message variant.
func (m Message) Kind() Kind { return m.kind }

// Len returns the encoded message length, excluding the frame header.
// Only the stop sentinel has length zero.
func (m Message) Len() int {
	length := len(m.prefix)
	for _, slice := range m.payload {
		length += slice.Len()
	}
	return length
}

// Bytes returns a copy of the encoded message body.
func (m Message) Bytes() []byte {
	body := make([]byte, 0, m.Len())
	body = append(body, m.prefix...)
	for _, slice := range m.payload {
		body = append(body, slice.Bytes()...)
	}
	return body
}

// Release drops the message's payload references.
func (m Message) Release() {
	for _, slice := range m.payload {
		slice.Release()
	}
}
