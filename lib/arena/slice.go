// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package arena

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// maxReadStep bounds a single read so a chatty child cannot keep one
// slice growing while the rest of the pipeline waits.
const maxReadStep = 4096

// ErrEndOfStream is returned by ReadFD when the descriptor reports EOF.
var ErrEndOfStream = errors.New("end of stream")

// Slice is a view of length bytes starting at offset in one Buffer.
// A non-zero Slice owns one reference to its buffer.
type Slice struct {
	buffer *Buffer
	offset int
	length int
}

// Len returns the number of bytes the slice covers.
func (s Slice) Len() int { return s.length }

// IsSentinel reports whether s is the end-of-stream marker.
func (s Slice) IsSentinel() bool { return s.length == 0 }

// Bytes returns the bytes covered by the slice. The returned memory
// is only valid until the slice is released.
func (s Slice) Bytes() []byte {
	if s.buffer == nil {
		return nil
	}
	return s.buffer.data[s.offset : s.offset+s.length]
}

// Generation returns the generation of the buffer at the time of the
// call. It is stable for as long as the slice is held.
func (s Slice) Generation() uint64 {
	if s.buffer == nil {
		return 0
	}
	return s.buffer.generation
}

// Sub returns a new slice over bytes [offset, offset+length) of s,
// holding its own reference. It panics if the range falls outside s.
func (s Slice) Sub(offset, length int) Slice {
	if offset < 0 || length < 0 || offset+length > s.length {
		panic(fmt.Sprintf("arena: sub-slice [%d:%d] out of range for length %d", offset, offset+length, s.length))
	}
	if s.buffer == nil {
		return Slice{}
	}
	s.buffer.retain()
	return Slice{buffer: s.buffer, offset: s.offset + offset, length: length}
}

// Retain returns another owned reference to the same bytes.
func (s Slice) Retain() Slice {
	if s.buffer != nil {
		s.buffer.retain()
	}
	return s
}

// Release drops the slice's reference. Releasing the zero Slice is a
// no-op.
func (s Slice) Release() {
	if s.buffer != nil {
		s.buffer.release()
	}
}

// ReadFD performs one bounded read from fd into the slice, which must
// start at its buffer's fill cursor. On success the fill cursor
// advances and the slice shrinks to the bytes actually read. On EOF
// it returns ErrEndOfStream; on failure the underlying error. In both
// cases the slice length becomes zero but the reference is still held
// and must be released.
func (s *Slice) ReadFD(fd int) error {
	if s.buffer == nil {
		return fmt.Errorf("read fd %d: slice has no buffer", fd)
	}
	if s.offset != s.buffer.filled {
		return fmt.Errorf("read fd %d: slice offset %d is not at fill cursor %d", fd, s.offset, s.buffer.filled)
	}
	step := min(s.length, maxReadStep)
	region := s.buffer.data[s.offset : s.offset+step]
	for {
		bytesRead, err := unix.Read(fd, region)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			s.length = 0
			return fmt.Errorf("read fd %d: %w", fd, err)
		}
		if bytesRead <= 0 {
			s.length = 0
			return ErrEndOfStream
		}
		s.buffer.filled += bytesRead
		s.length = bytesRead
		return nil
	}
}

// WriteFD writes every byte of the slice to fd, blocking until done
// or until a write fails.
func (s Slice) WriteFD(fd int) error {
	data := s.Bytes()
	for len(data) > 0 {
		bytesWritten, err := unix.Write(fd, data)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			if err := waitWritable(fd); err != nil {
				return fmt.Errorf("write fd %d: %w", fd, err)
			}
			continue
		case err != nil:
			return fmt.Errorf("write fd %d: %w", fd, err)
		}
		data = data[bytesWritten:]
	}
	return nil
}

// waitWritable blocks until a non-blocking fd accepts more data.
func waitWritable(fd int) error {
	descriptors := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	for {
		_, err := unix.Poll(descriptors, -1)
		if err == unix.EINTR {
			continue
		}
		return err
	}
}
