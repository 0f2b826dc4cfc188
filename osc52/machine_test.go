// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package osc52

import (
	"bytes"
	"slices"
	"testing"

	"github.com/bureau-foundation/ptyshim/lib/arena"
)

type recorder struct {
	t        *testing.T
	output   bytes.Buffer
	captures []string
	discards []DiscardReason
}

func (r *recorder) Forward(slice arena.Slice) {
	if slice.Len() == 0 {
		r.t.Fatal("Forward called with an empty slice")
	}
	r.output.Write(slice.Bytes())
	slice.Release()
}

func (r *recorder) Capture(capture Capture) {
	r.captures = append(r.captures, string(capture.Bytes()))
	capture.Release()
}

func (r *recorder) Discard(reason DiscardReason, size int) {
	r.discards = append(r.discards, reason)
}

type harness struct {
	pool     *arena.Pool
	recorder *recorder
	machine  *Machine
}

func newHarness(t *testing.T, limit int) *harness {
	t.Helper()
	pool, err := arena.NewPool(4096, 16, 4)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	sink := &recorder{t: t}
	return &harness{pool: pool, recorder: sink, machine: NewMachine(sink, limit)}
}

// feed runs each chunk through the machine in its own buffer.
func (h *harness) feed(t *testing.T, chunks ...string) {
	t.Helper()
	for _, chunk := range chunks {
		if chunk == "" {
			continue
		}
		buffer := h.pool.Acquire()
		slice, err := buffer.Append([]byte(chunk))
		buffer.Release()
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		h.machine.Feed(slice)
	}
}

// finish abandons any partial sequence and checks that every buffer
// made it back to the pool.
func (h *harness) finish(t *testing.T) {
	t.Helper()
	h.machine.Abandon()
	if live := h.pool.Stats().Live; live != 0 {
		t.Errorf("%d buffers still referenced after finishing", live)
	}
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name         string
		chunks       []string
		limit        int
		wantOutput   string
		wantCaptures []string
		wantDiscards []DiscardReason
		wantState    State
	}{
		{
			name:       "plain text",
			chunks:     []string{"hello\n"},
			wantOutput: "hello\n",
		},
		{
			name:         "osc 52 with BEL",
			chunks:       []string{"\x1b]52;c;aGVsbG8=\x07"},
			wantCaptures: []string{"c;aGVsbG8="},
		},
		{
			name:       "other osc is copied verbatim",
			chunks:     []string{"\x1b]0;title\x07"},
			wantOutput: "\x1b]0;title\x07",
		},
		{
			name:         "split inside the parameter",
			chunks:       []string{"\x1b]5", "2;c;aGVsbG8=\x07"},
			wantCaptures: []string{"c;aGVsbG8="},
		},
		{
			name:         "oversized payload is discarded",
			chunks:       []string{"\x1b]52;c;aGVsbG8gd29ybGQ=", "more\x07after"},
			limit:        8,
			wantOutput:   "after",
			wantDiscards: []DiscardReason{DiscardOversized},
		},
		{
			name:         "payload exactly at the limit is captured",
			chunks:       []string{"\x1b]52;c;eA==\x07"},
			limit:        6,
			wantCaptures: []string{"c;eA=="},
		},
		{
			name:         "text around a capture is kept",
			chunks:       []string{"before\x1b]52;c;eA==\x07after"},
			wantOutput:   "beforeafter",
			wantCaptures: []string{"c;eA=="},
		},
		{
			name:         "7-bit string terminator",
			chunks:       []string{"a\x1b]52;p;eA==\x1b\\b"},
			wantOutput:   "ab",
			wantCaptures: []string{"p;eA=="},
		},
		{
			name:         "7-bit string terminator split after ESC",
			chunks:       []string{"\x1b]52;c;eA==\x1b", "\\tail"},
			wantOutput:   "tail",
			wantCaptures: []string{"c;eA=="},
		},
		{
			name:         "8-bit introducer and terminator",
			chunks:       []string{"a\x9d52;c;eA==\x9cb"},
			wantOutput:   "ab",
			wantCaptures: []string{"c;eA=="},
		},
		{
			name:       "8-bit introducer on another osc",
			chunks:     []string{"\x9d0;t\x07"},
			wantOutput: "\x9d0;t\x07",
		},
		{
			name:       "csi sequences pass through",
			chunks:     []string{"\x1b[1mbold\x1b[0m"},
			wantOutput: "\x1b[1mbold\x1b[0m",
		},
		{
			name:         "capture directly after a csi sequence",
			chunks:       []string{"\x1b[1m\x1b]52;c;eA==\x07x"},
			wantOutput:   "\x1b[1mx",
			wantCaptures: []string{"c;eA=="},
		},
		{
			name:         "escape before a capture introducer",
			chunks:       []string{"\x1b\x1b]52;c;eA==\x07"},
			wantOutput:   "\x1b",
			wantCaptures: []string{"c;eA=="},
		},
		{
			name:       "other osc with 7-bit terminator",
			chunks:     []string{"\x1b]2;title\x1b\\x"},
			wantOutput: "\x1b]2;title\x1b\\x",
		},
		{
			name:       "overlong parameter is not 52",
			chunks:     []string{"\x1b]123456789;x\x07"},
			wantOutput: "\x1b]123456789;x\x07",
		},
		{
			name:       "parameter with trailing garbage",
			chunks:     []string{"\x1b]52x\x07"},
			wantOutput: "\x1b]52x\x07",
		},
		{
			name:       "parameter 520 is not 52",
			chunks:     []string{"\x1b]520;c;eA==\x07"},
			wantOutput: "\x1b]520;c;eA==\x07",
		},
		{
			name:         "empty payload",
			chunks:       []string{"\x1b]52;\x07"},
			wantDiscards: []DiscardReason{DiscardEmpty},
		},
		{
			name:         "read request is captured, never forwarded",
			chunks:       []string{"\x1b]52;c;?\x07"},
			wantCaptures: []string{"c;?"},
		},
		{
			name:         "double ESC forwards the first",
			chunks:       []string{"\x1b\x1b]52;c;eA==\x07"},
			wantOutput:   "\x1b",
			wantCaptures: []string{"c;eA=="},
		},
		{
			name:         "ESC inside payload aborts and rematches",
			chunks:       []string{"\x1b]52;c;AAAA\x1b]52;c;eA==\x07"},
			wantCaptures: []string{"c;eA=="},
			wantDiscards: []DiscardReason{DiscardAborted},
		},
		{
			name:         "ESC inside another osc cannot hide osc 52",
			chunks:       []string{"\x1b]0;t\x1b]52;c;eA==\x07z"},
			wantOutput:   "\x1b]0;tz",
			wantCaptures: []string{"c;eA=="},
		},
		{
			name:         "ESC inside an oversized payload restarts matching",
			chunks:       []string{"\x1b]52;c;0123456789", "\x1b[0m"},
			limit:        4,
			wantOutput:   "\x1b[0m",
			wantDiscards: []DiscardReason{DiscardOversized},
		},
		{
			name:       "unterminated other osc stays pending at end",
			chunks:     []string{"x\x1b]0;partial"},
			wantOutput: "x\x1b]0;partial",
			wantState:  CopyingIgnoredEsc,
		},
		{
			name:       "lead is held until classified",
			chunks:     []string{"x\x1b]5"},
			wantOutput: "x",
			wantState:  ProcessingMatchedSequence,
		},
		{
			name:         "two captures in one chunk",
			chunks:       []string{"\x1b]52;c;YQ==\x07\x1b]52;s;Yg==\x1b\\"},
			wantCaptures: []string{"c;YQ==", "s;Yg=="},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			h := newHarness(t, test.limit)
			h.feed(t, test.chunks...)

			if got := h.recorder.output.String(); got != test.wantOutput {
				t.Errorf("output = %q, want %q", got, test.wantOutput)
			}
			if !slices.Equal(h.recorder.captures, test.wantCaptures) {
				t.Errorf("captures = %q, want %q", h.recorder.captures, test.wantCaptures)
			}
			if !slices.Equal(h.recorder.discards, test.wantDiscards) {
				t.Errorf("discards = %v, want %v", h.recorder.discards, test.wantDiscards)
			}
			if state := h.machine.State(); state != test.wantState {
				t.Errorf("state = %v, want %v", state, test.wantState)
			}
			h.finish(t)
		})
	}
}

// TestChunkBoundaryIndependence checks that every way of splitting an
// input into two chunks, and splitting it into single bytes, gives the
// same result as feeding it whole.
func TestChunkBoundaryIndependence(t *testing.T) {
	inputs := []string{
		"hello\x1b]52;c;aGVsbG8=\x07world",
		"\x1b]0;title\x1b\\text\x9d52;p;eA==\x9c",
		"a\x1b[31mred\x1b]52;c;AA\x1b]52;c;eA==\x1b\\z",
		"\x1b\x1b\x1b]52;;\x07\x1b]7;file://host/\x07",
	}
	for _, input := range inputs {
		whole := newHarness(t, 0)
		whole.feed(t, input)
		wantOutput := whole.recorder.output.String()
		wantCaptures := whole.recorder.captures
		whole.finish(t)

		check := func(label string, h *harness) {
			t.Helper()
			if got := h.recorder.output.String(); got != wantOutput {
				t.Errorf("%s of %q: output = %q, want %q", label, input, got, wantOutput)
			}
			if !slices.Equal(h.recorder.captures, wantCaptures) {
				t.Errorf("%s of %q: captures = %q, want %q", label, input, h.recorder.captures, wantCaptures)
			}
			h.finish(t)
		}

		for split := 1; split < len(input); split++ {
			h := newHarness(t, 0)
			h.feed(t, input[:split], input[split:])
			check("split", h)
		}

		bytewise := newHarness(t, 0)
		for index := range len(input) {
			bytewise.feed(t, input[index:index+1])
		}
		check("bytewise", bytewise)
	}
}

func TestAbandonMidSequence(t *testing.T) {
	h := newHarness(t, 0)
	h.feed(t, "abc\x1b]52;c;aG")

	if state := h.machine.Abandon(); state != CollectingOsc52 {
		t.Errorf("Abandon returned %v, want %v", state, CollectingOsc52)
	}
	if got := h.recorder.output.String(); got != "abc" {
		t.Errorf("output = %q, want %q", got, "abc")
	}
	if len(h.recorder.captures) != 0 {
		t.Errorf("incomplete sequence produced captures %q", h.recorder.captures)
	}
	if !slices.Equal(h.recorder.discards, []DiscardReason{DiscardTruncated}) {
		t.Errorf("discards = %v, want [truncated]", h.recorder.discards)
	}
	if live := h.pool.Stats().Live; live != 0 {
		t.Errorf("%d buffers leaked", live)
	}

	// The machine is usable again after abandoning.
	h.feed(t, "\x1b]52;c;eA==\x07")
	if !slices.Equal(h.recorder.captures, []string{"c;eA=="}) {
		t.Errorf("captures after reset = %q", h.recorder.captures)
	}
	h.finish(t)
}

func TestForwardedSlicesShareInputBuffer(t *testing.T) {
	h := newHarness(t, 0)
	h.feed(t, "plain text with no escapes")
	if stats := h.pool.Stats(); stats.Allocated != 1 {
		t.Errorf("Allocated = %d, want 1 (forwarding must not copy)", stats.Allocated)
	}
	h.finish(t)
}

func TestCaptureIsReadRequest(t *testing.T) {
	tests := []struct {
		payload string
		want    bool
	}{
		{payload: "c;?", want: true},
		{payload: ";?", want: true},
		{payload: "?", want: true},
		{payload: "c;eA==", want: false},
		{payload: "c;??", want: false},
		{payload: "?;eA==", want: false},
	}
	for _, test := range tests {
		t.Run(test.payload, func(t *testing.T) {
			h := newHarness(t, 0)
			h.feed(t, "\x1b]52;"+test.payload+"\x07")
			if len(h.recorder.captures) != 1 {
				t.Fatalf("captures = %q", h.recorder.captures)
			}
			h.finish(t)

			pool, err := arena.NewPool(64, 8, 1)
			if err != nil {
				t.Fatalf("NewPool: %v", err)
			}
			buffer := pool.Acquire()
			slice, err := buffer.Append([]byte(test.payload))
			buffer.Release()
			if err != nil {
				t.Fatalf("Append: %v", err)
			}
			capture := Capture{Payload: []arena.Slice{slice}, Size: slice.Len()}
			defer capture.Release()
			if got := capture.IsReadRequest(); got != test.want {
				t.Errorf("IsReadRequest(%q) = %v, want %v", test.payload, got, test.want)
			}
		})
	}
}
