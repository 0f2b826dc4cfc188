// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package backchannel

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
)

// frameHeaderLength is the size of the little-endian length prefix.
const frameHeaderLength = 4

// MaxFrameLength is the largest message either side will handle. It
// leaves room for the largest configurable OSC 52 payload plus prefix.
const MaxFrameLength = 16 * 1024 * 1024

// MaxClipboardPayload is the largest OSC 52 payload that fits in a
// single clipboard frame.
const MaxClipboardPayload = MaxFrameLength - len(prefixClipboard)

var (
	// ErrFrameTooLarge is returned for frames longer than MaxFrameLength.
	ErrFrameTooLarge = errors.New("back-channel frame too large")

	// ErrReadRequest is returned by ParseEvent for an OSC 52 clipboard
	// read request, which is never a valid clipboard write.
	ErrReadRequest = errors.New("clipboard read request")
)

// WriteMessage writes one framed message to w. The payload slices are
// written in place without being gathered into a single buffer.
func WriteMessage(w io.Writer, message Message) error {
	length := message.Len()
	if length == 0 {
		return fmt.Errorf("write back-channel frame: refusing to write the stop sentinel")
	}
	if length > MaxFrameLength {
		return fmt.Errorf("write back-channel frame: %w (%d > %d)", ErrFrameTooLarge, length, MaxFrameLength)
	}

	var header [frameHeaderLength]byte
	binary.LittleEndian.PutUint32(header[:], uint32(length))

	buffers := make(net.Buffers, 0, 2+len(message.payload))
	buffers = append(buffers, header[:], []byte(message.prefix))
	for _, slice := range message.payload {
		buffers = append(buffers, slice.Bytes())
	}
	if _, err := buffers.WriteTo(w); err != nil {
		return fmt.Errorf("write back-channel frame: %w", err)
	}
	return nil
}

// ReadFrame reads one frame from r and returns its body.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [frameHeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read back-channel header: %w", err)
	}
	length := binary.LittleEndian.Uint32(header[:])
	if length > MaxFrameLength {
		return nil, fmt.Errorf("read back-channel frame: %w (%d > %d)", ErrFrameTooLarge, length, MaxFrameLength)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("read back-channel body: %w", err)
	}
	return body, nil
}

// EventKind identifies a decoded back-channel message.
type EventKind int

const (
	// EventUnknown is a frame with an unrecognized prefix. Readers
	// ignore these so that new message kinds can be added.
	EventUnknown EventKind = iota
	EventStarted
	EventSpawnFailed
	EventEnd
	EventClipboard
)

// Event is a decoded back-channel message.
type Event struct {
	Kind EventKind

	// PID is set for EventStarted.
	PID int

	// Domain, Code, and Message are set for EventSpawnFailed.
	Domain  ErrorDomain
	Code    int
	Message string

	// Selection and Data are set for EventClipboard. Selection is the
	// OSC 52 selection parameter ("c", "p", "s0", ... or empty); Data
	// is the decoded clipboard content.
	Selection string
	Data      []byte
}

// ParseEvent decodes a frame body produced by WriteMessage.
func ParseEvent(body []byte) (Event, error) {
	text := string(body)
	switch {
	case text == prefixEnd:
		return Event{Kind: EventEnd}, nil

	case strings.HasPrefix(text, prefixStarted):
		pid, err := strconv.Atoi(text[len(prefixStarted):])
		if err != nil || pid <= 0 {
			return Event{}, fmt.Errorf("parse started message %q: invalid pid", text)
		}
		return Event{Kind: EventStarted, PID: pid}, nil

	case strings.HasPrefix(text, prefixFailed):
		fields := strings.SplitN(text[len(prefixFailed):], ",", 3)
		if len(fields) != 3 {
			return Event{}, fmt.Errorf("parse spawn failure %q: expected domain,code,message", text)
		}
		domain, err := strconv.Atoi(fields[0])
		if err != nil {
			return Event{}, fmt.Errorf("parse spawn failure domain %q: %w", fields[0], err)
		}
		code, err := strconv.Atoi(fields[1])
		if err != nil {
			return Event{}, fmt.Errorf("parse spawn failure code %q: %w", fields[1], err)
		}
		return Event{Kind: EventSpawnFailed, Domain: ErrorDomain(domain), Code: code, Message: fields[2]}, nil

	case strings.HasPrefix(text, prefixClipboard):
		return parseClipboard(body[len(prefixClipboard):])

	default:
		return Event{Kind: EventUnknown}, nil
	}
}

// parseClipboard decodes "<selection>;<base64>".
func parseClipboard(payload []byte) (Event, error) {
	separator := bytes.IndexByte(payload, ';')
	if separator < 0 {
		return Event{}, fmt.Errorf("parse clipboard payload: missing ';' separator")
	}
	selection := string(payload[:separator])
	encoded := payload[separator+1:]
	if string(encoded) == "?" {
		return Event{}, ErrReadRequest
	}
	data := make([]byte, base64.StdEncoding.DecodedLen(len(encoded)))
	count, err := base64.StdEncoding.Decode(data, encoded)
	if err != nil {
		return Event{}, fmt.Errorf("parse clipboard payload: %w", err)
	}
	return Event{Kind: EventClipboard, Selection: selection, Data: data[:count]}, nil
}

// Decoder reads events from a back-channel pipe.
type Decoder struct {
	reader io.Reader
}

// NewDecoder returns a Decoder reading frames from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{reader: r}
}

// Next returns the next recognized event, skipping unknown frames.
// It returns io.EOF when the pipe closes cleanly between frames.
func (d *Decoder) Next() (Event, error) {
	for {
		body, err := ReadFrame(d.reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Event{}, io.EOF
			}
			return Event{}, err
		}
		event, err := ParseEvent(body)
		if err != nil {
			return Event{}, err
		}
		if event.Kind == EventUnknown {
			continue
		}
		return event, nil
	}
}
