// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// PipePair is the plumbing for one filtered stream: the child writes
// into childEnd (installed as its stdout or stderr) and the relay reads
// from parentEnd. Both ends are close-on-exec; exec.Cmd dups the child
// end onto the standard descriptor, which clears the flag on the copy.
type PipePair struct {
	stream    string
	parentEnd int
	childEnd  *os.File
}

// NewPipePair creates the pipe for stream.
func NewPipePair(stream string) (*PipePair, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		return nil, fmt.Errorf("create %s pipe: %w", stream, err)
	}
	return &PipePair{
		stream:    stream,
		parentEnd: fds[0],
		childEnd:  os.NewFile(uintptr(fds[1]), "ptyshim-"+stream),
	}, nil
}

// Stream returns the name of the stream the pipe carries.
func (p *PipePair) Stream() string { return p.stream }

// ChildEnd returns the file to install as the child's descriptor.
func (p *PipePair) ChildEnd() *os.File { return p.childEnd }

// CloseChildEnd closes the parent's copy of the child end, so that the
// relay sees EOF once every process holding it has exited.
func (p *PipePair) CloseChildEnd() error {
	if p.childEnd == nil {
		return nil
	}
	err := p.childEnd.Close()
	p.childEnd = nil
	if err != nil {
		return fmt.Errorf("close %s child end: %w", p.stream, err)
	}
	return nil
}

// TakeParentEnd transfers ownership of the read end to the caller.
// Subsequent calls return -1.
func (p *PipePair) TakeParentEnd() int {
	fd := p.parentEnd
	p.parentEnd = -1
	return fd
}

// Close releases whatever ends are still owned by the pair.
func (p *PipePair) Close() {
	p.CloseChildEnd()
	if p.parentEnd >= 0 {
		unix.Close(p.parentEnd)
		p.parentEnd = -1
	}
}
