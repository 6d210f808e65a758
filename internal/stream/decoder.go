// Package stream implements incremental decoding and interpretation of the
// event stream produced by a remote agent endpoint.
//
// The endpoint's streaming responses come in one of two framings: a sequence
// of JSON objects concatenated back-to-back with no delimiter, or newline
// framed "data:" events in the Server-Sent-Events style. Both are decoded
// behind the same Decoder interface; callers feed raw body chunks as they
// arrive and pull complete frames out, regardless of where chunk boundaries
// fall.
package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Framing selects how the byte stream is split into event frames.
type Framing int

const (
	// FramingJSON decodes concatenated JSON objects with no delimiter between
	// them. Frame completeness is determined purely by whether the buffered
	// bytes parse as a self-contained value.
	FramingJSON Framing = iota
	// FramingSSE decodes newline-framed events where payload lines carry a
	// "data:" prefix. Lines without the prefix (comments, event names, ids,
	// blanks) are ignored.
	FramingSSE
)

// ErrMoreData reports that the buffered bytes do not yet contain a complete
// frame. It is not a failure; feed more bytes and call Next again.
var ErrMoreData = errors.New("stream: need more data")

// ErrTruncated reports that the stream ended with a non-empty tail that never
// became a complete frame.
var ErrTruncated = errors.New("stream: truncated event stream")

// MalformedError reports a region of the stream that could not be decoded as
// an event frame. The decoder resyncs past the bad region and remains usable.
type MalformedError struct {
	Offset int64 // absolute byte offset of the failure in the stream
	Err    error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("stream: malformed event at byte %d: %v", e.Offset, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// Decoder incrementally decodes event frames from a chunked byte stream.
// It is not safe for concurrent use.
type Decoder struct {
	framing  Framing
	buf      []byte
	consumed int64 // absolute offset of buf[0] in the stream
}

// NewDecoder returns a decoder for the given framing.
func NewDecoder(framing Framing) *Decoder {
	return &Decoder{framing: framing}
}

// Feed appends a chunk of response-body bytes to the decode buffer. An empty
// or nil chunk is allowed and has no effect.
func (d *Decoder) Feed(p []byte) {
	if len(p) > 0 {
		d.buf = append(d.buf, p...)
	}
}

// Next returns the next complete frame from the buffer.
//
// It returns ErrMoreData when the buffer holds no complete frame yet — the
// caller should feed another chunk and retry. A *MalformedError means a region
// of the buffer could not be decoded; the decoder has skipped past it and the
// next call may still succeed. A single fed chunk can yield several frames, so
// callers drain Next until ErrMoreData.
func (d *Decoder) Next() (json.RawMessage, error) {
	switch d.framing {
	case FramingSSE:
		return d.nextSSE()
	default:
		return d.nextJSON()
	}
}

// Close checks that the stream ended on a frame boundary. A non-whitespace
// tail means the connection closed mid-frame and the turn's output cannot be
// trusted.
func (d *Decoder) Close() error {
	if len(bytes.TrimSpace(d.buf)) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d unconsumed bytes", ErrTruncated, len(bytes.TrimSpace(d.buf)))
}

func (d *Decoder) nextJSON() (json.RawMessage, error) {
	d.trimLeadingSpace()
	if len(d.buf) == 0 {
		return nil, ErrMoreData
	}

	dec := json.NewDecoder(bytes.NewReader(d.buf))
	var raw json.RawMessage
	err := dec.Decode(&raw)
	if err == nil {
		d.advance(int(dec.InputOffset()))
		return raw, nil
	}

	// An unexpected end of the buffer is not an error: the object simply has
	// not finished arriving. Keep the buffer intact and wait for more bytes.
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, ErrMoreData
	}

	var syn *json.SyntaxError
	if errors.As(err, &syn) {
		merr := &MalformedError{Offset: d.consumed + syn.Offset, Err: err}
		skip := int(syn.Offset)
		if skip < 1 {
			skip = 1
		}
		if skip > len(d.buf) {
			skip = len(d.buf)
		}
		// Resync at the next possible frame start so a long garbage run
		// costs one error, not one per byte.
		if i := bytes.IndexByte(d.buf[skip:], '{'); i >= 0 {
			skip += i
		} else {
			skip = len(d.buf)
		}
		d.advance(skip)
		return nil, merr
	}

	// Decoding into a RawMessage should only ever fail with a syntax error or
	// a short buffer; report anything else as malformed at the current spot.
	merr := &MalformedError{Offset: d.consumed, Err: err}
	d.advance(1)
	return nil, merr
}

func (d *Decoder) nextSSE() (json.RawMessage, error) {
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			return nil, ErrMoreData
		}
		line := bytes.TrimRight(d.buf[:i], "\r")
		d.advance(i + 1)

		payload, ok := bytes.CutPrefix(line, []byte("data:"))
		if !ok {
			continue // blank line, comment, or a non-data field
		}
		payload = bytes.TrimSpace(payload)
		if len(payload) == 0 {
			continue
		}
		frame := make(json.RawMessage, len(payload))
		copy(frame, payload)
		return frame, nil
	}
}

func (d *Decoder) trimLeadingSpace() {
	n := 0
	for n < len(d.buf) && isSpace(d.buf[n]) {
		n++
	}
	if n > 0 {
		d.advance(n)
	}
}

func (d *Decoder) advance(n int) {
	d.buf = d.buf[n:]
	d.consumed += int64(n)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}
