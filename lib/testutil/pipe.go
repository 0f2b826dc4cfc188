// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"sync"
	"testing"

	"golang.org/x/sys/unix"
)

// PipeEnds is a raw pipe created for a test. Close either end early
// with CloseRead or CloseWrite; whatever remains open is closed at
// test cleanup.
type PipeEnds struct {
	Read  int
	Write int

	mu     sync.Mutex
	closed [2]bool
}

// Pipe creates a blocking, close-on-exec pipe.
func Pipe(t *testing.T) *PipeEnds {
	t.Helper()
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		t.Fatalf("creating pipe: %v", err)
	}
	ends := &PipeEnds{Read: fds[0], Write: fds[1]}
	t.Cleanup(func() {
		ends.CloseRead()
		ends.CloseWrite()
	})
	return ends
}

// Disown marks the read end as owned by the code under test, which
// will close it. Cleanup will not close it again.
func (p *PipeEnds) Disown() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed[0] = true
	return p.Read
}

// CloseRead closes the read end if it is still open.
func (p *PipeEnds) CloseRead() { p.close(0, p.Read) }

// CloseWrite closes the write end if it is still open.
func (p *PipeEnds) CloseWrite() { p.close(1, p.Write) }

func (p *PipeEnds) close(index, fd int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed[index] {
		return
	}
	p.closed[index] = true
	unix.Close(fd)
}

// WriteString writes s to the write end, failing the test on error.
func (p *PipeEnds) WriteString(t TestingT, s string) {
	t.Helper()
	data := []byte(s)
	for len(data) > 0 {
		count, err := unix.Write(p.Write, data)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			t.Fatalf("writing to pipe: %v", err)
		}
		data = data[count:]
	}
}

// ReadAll reads from fd until EOF and returns everything read.
func ReadAll(t TestingT, fd int) []byte {
	t.Helper()
	var collected []byte
	chunk := make([]byte, 4096)
	for {
		count, err := unix.Read(fd, chunk)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			t.Fatalf("reading fd %d: %v", fd, err)
		}
		if count == 0 {
			return collected
		}
		collected = append(collected, chunk[:count]...)
	}
}
