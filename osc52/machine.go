// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package osc52

import (
	"github.com/bureau-foundation/ptyshim/lib/arena"
)

// Control bytes that drive the state machine.
const (
	esc                  = 0x1b
	bel                  = 0x07
	oscIntroducer8Bit    = 0x9d
	stringTerminator8Bit = 0x9c
)

// DefaultLimit is the largest payload collected before a sequence is
// discarded.
const DefaultLimit = 1024 * 1024

// maxParameterLength bounds the digits held while an OSC is being
// classified. Anything longer cannot be 52.
const maxParameterLength = 8

// State is the filter's position within the escape-sequence grammar.
type State int

const (
	Filtering State = iota
	PotentialMatch
	ProcessingMatchedSequence
	CollectingOsc52
	Discarding
	CopyingIgnoredEsc
)

func (s State) String() string {
	switch s {
	case Filtering:
		return "filtering"
	case PotentialMatch:
		return "potential-match"
	case ProcessingMatchedSequence:
		return "processing-matched-sequence"
	case CollectingOsc52:
		return "collecting-osc52"
	case Discarding:
		return "discarding"
	case CopyingIgnoredEsc:
		return "copying-ignored-esc"
	default:
		return "unknown"
	}
}

// DiscardReason says why a matched OSC 52 sequence produced no capture.
type DiscardReason int

const (
	// DiscardOversized: the payload grew past the limit.
	DiscardOversized DiscardReason = iota

	// DiscardAborted: an ESC other than a string terminator interrupted
	// the payload.
	DiscardAborted

	// DiscardTruncated: the stream ended mid-payload.
	DiscardTruncated

	// DiscardEmpty: the sequence was terminated with no payload.
	DiscardEmpty
)

func (r DiscardReason) String() string {
	switch r {
	case DiscardOversized:
		return "oversized"
	case DiscardAborted:
		return "aborted"
	case DiscardTruncated:
		return "truncated"
	case DiscardEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// Sink receives the machine's output. Forward and Capture transfer
// ownership of their slices to the sink.
type Sink interface {
	// Forward is called with bytes that belong on the terminal-facing
	// stream, in input order. Slices are never empty.
	Forward(slice arena.Slice)

	// Capture is called once per complete OSC 52 sequence with the
	// bytes between "52;" and the terminator.
	Capture(capture Capture)

	// Discard is called when a matched OSC 52 sequence is dropped.
	// size is the number of payload bytes seen before the drop.
	Discard(reason DiscardReason, size int)
}

// Machine is the streaming OSC 52 filter for one stream. It is not
// safe for concurrent use; one filter goroutine owns it.
type Machine struct {
	sink  Sink
	limit int
	state State

	// lead holds bytes that are suppressed pending a decision: the
	// introducer and parameter of an OSC being classified, or the ESC
	// of a possible 7-bit string terminator.
	lead []arena.Slice

	parameter []byte

	// escapePending is set after an ESC inside a sequence; the next
	// byte decides whether it was a string terminator.
	escapePending bool

	payload     []arena.Slice
	payloadSize int
}

// NewMachine creates a Machine that reports to sink and discards
// payloads larger than limit bytes. A limit of zero or less selects
// DefaultLimit.
func NewMachine(sink Sink, limit int) *Machine {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Machine{
		sink:      sink,
		limit:     limit,
		parameter: make([]byte, 0, maxParameterLength),
	}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Feed runs one chunk of output through the machine. Feed takes
// ownership of chunk.
func (m *Machine) Feed(chunk arena.Slice) {
	defer chunk.Release()

	data := chunk.Bytes()
	start := 0
	index := 0
	for index < len(data) {
		current := data[index]

		if m.escapePending {
			m.escapePending = false
			if current == '\\' {
				index++
				m.finishWithStringTerminator(chunk, start, index)
				start = index
				continue
			}
			// Reprocess current as the byte after a fresh ESC.
			m.abortSequence()
			continue
		}

		switch m.state {
		case Filtering:
			offset := indexIntroducer(data[index:])
			if offset < 0 {
				index = len(data)
				continue
			}
			index += offset
			m.route(chunk, start, index)
			start = index
			if data[index] == esc {
				m.state = PotentialMatch
			} else {
				m.beginParameter()
			}
			index++

		case PotentialMatch:
			if current == ']' {
				index++
				m.beginParameter()
				continue
			}
			// Not an OSC: release the held ESC unchanged and look at
			// current again as ordinary output.
			m.route(chunk, start, index)
			start = index
			m.flushLead()
			m.state = Filtering

		case ProcessingMatchedSequence:
			switch {
			case current >= '0' && current <= '9' && len(m.parameter) < maxParameterLength:
				m.parameter = append(m.parameter, current)
				index++
			case current == ';':
				index++
				m.route(chunk, start, index)
				start = index
				if string(m.parameter) == "52" {
					m.releaseLead()
					m.state = CollectingOsc52
					m.payloadSize = 0
				} else {
					m.flushLead()
					m.state = CopyingIgnoredEsc
				}
			default:
				m.route(chunk, start, index)
				start = index
				m.flushLead()
				m.state = CopyingIgnoredEsc
			}

		case CollectingOsc52, Discarding, CopyingIgnoredEsc:
			offset := indexTerminator(data[index:])
			if offset < 0 {
				index = len(data)
				continue
			}
			index += offset
			if data[index] == esc {
				m.route(chunk, start, index)
				m.lead = append(m.lead, chunk.Sub(index, 1))
				m.escapePending = true
				index++
				start = index
				continue
			}
			if m.state == CopyingIgnoredEsc {
				index++
				m.route(chunk, start, index)
			} else {
				m.route(chunk, start, index)
				index++
			}
			start = index
			m.completeSequence()
		}
	}
	m.route(chunk, start, len(data))
}

// Abandon discards any partial sequence at end of stream and resets
// the machine. It returns the state the machine was in.
func (m *Machine) Abandon() State {
	state := m.state
	if state == CollectingOsc52 {
		m.sink.Discard(DiscardTruncated, m.payloadSize)
	}
	m.releaseLead()
	m.releasePayload()
	m.escapePending = false
	m.parameter = m.parameter[:0]
	m.state = Filtering
	return state
}

// route hands chunk[from:to] to wherever bytes go in the current state.
func (m *Machine) route(chunk arena.Slice, from, to int) {
	if to <= from {
		return
	}
	switch m.state {
	case Filtering, CopyingIgnoredEsc:
		m.sink.Forward(chunk.Sub(from, to-from))
	case PotentialMatch, ProcessingMatchedSequence:
		m.lead = append(m.lead, chunk.Sub(from, to-from))
	case CollectingOsc52:
		size := m.payloadSize + (to - from)
		if size > m.limit {
			m.releasePayload()
			m.state = Discarding
			m.sink.Discard(DiscardOversized, size)
			return
		}
		m.payload = append(m.payload, chunk.Sub(from, to-from))
		m.payloadSize = size
	case Discarding:
	}
}

func (m *Machine) beginParameter() {
	m.state = ProcessingMatchedSequence
	m.parameter = m.parameter[:0]
}

// finishWithStringTerminator ends the current sequence at ESC '\'.
// end is the index just past the backslash.
func (m *Machine) finishWithStringTerminator(chunk arena.Slice, start, end int) {
	if m.state == CopyingIgnoredEsc {
		m.flushLead()
		m.route(chunk, start, end)
	} else {
		m.releaseLead()
	}
	m.completeSequence()
}

// abortSequence handles an ESC inside a sequence that was not a string
// terminator. The ESC stays in lead as the start of a new potential
// match.
func (m *Machine) abortSequence() {
	if m.state == CollectingOsc52 {
		size := m.payloadSize
		m.releasePayload()
		m.sink.Discard(DiscardAborted, size)
	}
	m.state = PotentialMatch
}

func (m *Machine) completeSequence() {
	if m.state == CollectingOsc52 {
		if m.payloadSize == 0 {
			m.sink.Discard(DiscardEmpty, 0)
		} else {
			capture := Capture{Payload: m.payload, Size: m.payloadSize}
			m.payload = nil
			m.payloadSize = 0
			m.sink.Capture(capture)
		}
	}
	m.state = Filtering
}

func (m *Machine) flushLead() {
	for index, slice := range m.lead {
		m.sink.Forward(slice)
		m.lead[index] = arena.Slice{}
	}
	m.lead = m.lead[:0]
}

func (m *Machine) releaseLead() {
	for index, slice := range m.lead {
		slice.Release()
		m.lead[index] = arena.Slice{}
	}
	m.lead = m.lead[:0]
}

func (m *Machine) releasePayload() {
	for _, slice := range m.payload {
		slice.Release()
	}
	m.payload = nil
	m.payloadSize = 0
}

// indexIntroducer returns the index of the first byte that can start
// an escape sequence, or -1.
func indexIntroducer(data []byte) int {
	for index, value := range data {
		if value == esc || value == oscIntroducer8Bit {
			return index
		}
	}
	return -1
}

// indexTerminator returns the index of the first byte that can end a
// sequence (BEL, 8-bit ST, or the ESC of a 7-bit ST), or -1.
func indexTerminator(data []byte) int {
	for index, value := range data {
		if value == bel || value == stringTerminator8Bit || value == esc {
			return index
		}
	}
	return -1
}
