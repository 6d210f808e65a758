package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

// drain pulls every currently decodable frame and any malformed-region errors.
func drain(t *testing.T, d *Decoder) (frames []string, malformed []error) {
	t.Helper()
	for {
		frame, err := d.Next()
		if errors.Is(err, ErrMoreData) {
			return frames, malformed
		}
		if err != nil {
			var merr *MalformedError
			if !errors.As(err, &merr) {
				t.Fatalf("unexpected error from Next: %v", err)
			}
			malformed = append(malformed, err)
			continue
		}
		frames = append(frames, string(frame))
	}
}

func TestDecoderSingleChunk(t *testing.T) {
	d := NewDecoder(FramingJSON)
	d.Feed([]byte(`{"a":1}{"b":2} {"c":3}`))

	frames, malformed := drain(t, d)
	if len(malformed) != 0 {
		t.Fatalf("unexpected malformed regions: %v", malformed)
	}
	want := []string{`{"a":1}`, `{"b":2}`, `{"c":3}`}
	if len(frames) != len(want) {
		t.Fatalf("got %d frames, want %d: %v", len(frames), len(want), frames)
	}
	for i := range want {
		if frames[i] != want[i] {
			t.Errorf("frame %d = %q, want %q", i, frames[i], want[i])
		}
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}

// Every possible two-way split of the stream, plus byte-at-a-time delivery,
// must produce the identical ordered frame sequence.
func TestDecoderChunkingEquivalence(t *testing.T) {
	input := []byte(`{"content":{"parts":[{"text":"hel"}]}} {"content":{"parts":[{"text":"lo"}]}}{"done":true}`)

	reference := func() []string {
		d := NewDecoder(FramingJSON)
		d.Feed(input)
		frames, _ := drain(t, d)
		return frames
	}()
	if len(reference) != 3 {
		t.Fatalf("reference decode yielded %d frames, want 3", len(reference))
	}

	check := func(t *testing.T, chunks [][]byte) {
		t.Helper()
		d := NewDecoder(FramingJSON)
		var frames []string
		for _, chunk := range chunks {
			d.Feed(chunk)
			got, malformed := drain(t, d)
			if len(malformed) != 0 {
				t.Fatalf("unexpected malformed regions: %v", malformed)
			}
			frames = append(frames, got...)
		}
		if err := d.Close(); err != nil {
			t.Fatalf("Close() = %v, want nil", err)
		}
		if len(frames) != len(reference) {
			t.Fatalf("got %d frames, want %d", len(frames), len(reference))
		}
		for i := range reference {
			if frames[i] != reference[i] {
				t.Errorf("frame %d = %q, want %q", i, frames[i], reference[i])
			}
		}
	}

	for split := 1; split < len(input); split++ {
		t.Run(fmt.Sprintf("split_at_%d", split), func(t *testing.T) {
			check(t, [][]byte{input[:split], input[split:]})
		})
	}

	t.Run("byte_at_a_time", func(t *testing.T) {
		var chunks [][]byte
		for i := range input {
			chunks = append(chunks, input[i:i+1])
		}
		check(t, chunks)
	})
}

func TestDecoderIncompleteObjectWaits(t *testing.T) {
	d := NewDecoder(FramingJSON)
	d.Feed([]byte(`{"text":"hal`))

	if _, err := d.Next(); !errors.Is(err, ErrMoreData) {
		t.Fatalf("Next() on partial object = %v, want ErrMoreData", err)
	}

	d.Feed([]byte(`f"}`))
	frame, err := d.Next()
	if err != nil {
		t.Fatalf("Next() after completing object: %v", err)
	}
	if string(frame) != `{"text":"half"}` {
		t.Errorf("frame = %q", frame)
	}
}

func TestDecoderWhitespaceTailIsClean(t *testing.T) {
	d := NewDecoder(FramingJSON)
	d.Feed([]byte("{\"a\":1}\n  \t\r\n"))
	if frames, _ := drain(t, d); len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close() with whitespace tail = %v, want nil", err)
	}
}

func TestDecoderTruncatedTail(t *testing.T) {
	d := NewDecoder(FramingJSON)
	d.Feed([]byte(`{"a":1}{"b":`))
	if frames, _ := drain(t, d); len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if err := d.Close(); !errors.Is(err, ErrTruncated) {
		t.Errorf("Close() = %v, want ErrTruncated", err)
	}
}

func TestDecoderMalformedRegionIsSkipped(t *testing.T) {
	d := NewDecoder(FramingJSON)
	d.Feed([]byte(`{"a":1}!?{"b":2}`))

	frames, malformed := drain(t, d)
	if len(malformed) == 0 {
		t.Fatal("expected at least one malformed-region error")
	}
	var merr *MalformedError
	if !errors.As(malformed[0], &merr) {
		t.Fatalf("error %v is not a *MalformedError", malformed[0])
	}
	want := []string{`{"a":1}`, `{"b":2}`}
	if len(frames) != 2 || frames[0] != want[0] || frames[1] != want[1] {
		t.Errorf("frames = %v, want %v", frames, want)
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close() after recovery = %v, want nil", err)
	}
}

func TestDecoderLongGarbageRunCostsOneError(t *testing.T) {
	d := NewDecoder(FramingJSON)
	garbage := bytes.Repeat([]byte("<garbage!>"), 100)
	d.Feed([]byte(`{"a":1}`))
	d.Feed(garbage)
	d.Feed([]byte(`{"b":2}`))

	frames, malformed := drain(t, d)
	want := []string{`{"a":1}`, `{"b":2}`}
	if len(frames) != 2 || frames[0] != want[0] || frames[1] != want[1] {
		t.Fatalf("frames = %v, want %v", frames, want)
	}
	// The whole run resyncs in one jump to the next frame start.
	if len(malformed) != 1 {
		t.Errorf("got %d malformed-region errors for one garbage run, want 1", len(malformed))
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close() after recovery = %v, want nil", err)
	}
}

func TestDecoderSSE(t *testing.T) {
	d := NewDecoder(FramingSSE)
	d.Feed([]byte("event: message\r\ndata: {\"a\":1}\r\n\r\nid: 7\ndata: {\"b\":2}\n\n"))

	frames, malformed := drain(t, d)
	if len(malformed) != 0 {
		t.Fatalf("unexpected malformed regions: %v", malformed)
	}
	want := []string{`{"a":1}`, `{"b":2}`}
	if len(frames) != 2 || frames[0] != want[0] || frames[1] != want[1] {
		t.Fatalf("frames = %v, want %v", frames, want)
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}

func TestDecoderSSESplitMidLine(t *testing.T) {
	d := NewDecoder(FramingSSE)
	d.Feed([]byte(`data: {"text":"he`))

	if _, err := d.Next(); !errors.Is(err, ErrMoreData) {
		t.Fatalf("Next() on partial line = %v, want ErrMoreData", err)
	}

	d.Feed([]byte("llo\"}\n"))
	frame, err := d.Next()
	if err != nil {
		t.Fatalf("Next() after completing line: %v", err)
	}
	if string(frame) != `{"text":"hello"}` {
		t.Errorf("frame = %q", frame)
	}
}

func TestDecoderSSEUnterminatedTail(t *testing.T) {
	d := NewDecoder(FramingSSE)
	d.Feed([]byte("data: {\"a\":1}\ndata: {\"b\":"))
	if frames, _ := drain(t, d); len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if err := d.Close(); !errors.Is(err, ErrTruncated) {
		t.Errorf("Close() = %v, want ErrTruncated", err)
	}
}

func TestDecoderSSEFramesAreValidJSON(t *testing.T) {
	d := NewDecoder(FramingSSE)
	d.Feed([]byte("data: {\"content\":{\"parts\":[{\"text\":\"ok\"}]}}\n"))
	frame, err := d.Next()
	if err != nil {
		t.Fatalf("Next(): %v", err)
	}
	var v map[string]any
	if err := json.Unmarshal(frame, &v); err != nil {
		t.Errorf("frame is not valid JSON: %v", err)
	}
}
