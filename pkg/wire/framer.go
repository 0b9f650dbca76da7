package wire

import (
	"bytes"
	"encoding/json"

	"github.com/MarkKirilenko/tranning-app/pkg/errors"
)

const delimiter = '\n'

// Encode serializes a message as compact JSON followed by a single '\n'.
// Standard JSON serialization never emits a raw newline inside the payload,
// so the delimiter is unambiguous for the value shapes this protocol allows.
func Encode(m Message) ([]byte, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return append(payload, delimiter), nil
}

// Frame is one decoded segment of the byte stream: either a parsed message or
// a protocol error for a segment that was not valid JSON. The caller decides
// how to surface the error; the server answers with an error message and
// keeps the connection open.
type Frame struct {
	Msg Message
	Err *errors.ProtocolError
}

// Decoder accumulates received chunks and splits them into framed messages.
// It holds at most one partial (undelimited) segment between Feed calls and
// is not safe for concurrent use; each connection owns exactly one Decoder.
type Decoder struct {
	buf []byte
}

// Feed appends chunk to the receive buffer and extracts every complete
// delimiter-terminated segment, in arrival order. Blank lines are skipped.
// A segment that fails to parse yields a Frame with Err set. Feeding an
// empty chunk returns no frames.
func (d *Decoder) Feed(chunk []byte) []Frame {
	if len(chunk) == 0 {
		return nil
	}

	d.buf = append(d.buf, chunk...)

	var frames []Frame
	for {
		idx := bytes.IndexByte(d.buf, delimiter)
		if idx < 0 {
			return frames
		}

		line := d.buf[:idx]
		d.buf = d.buf[idx+1:]

		segment := bytes.TrimSpace(line)
		if len(segment) == 0 {
			continue
		}

		var msg Message
		if err := json.Unmarshal(segment, &msg); err != nil {
			frames = append(frames, Frame{Err: &errors.ProtocolError{
				Segment: string(segment),
				Cause:   err,
			}})
			continue
		}

		frames = append(frames, Frame{Msg: msg})
	}
}

// Buffered reports how many undelimited bytes are pending in the decoder.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}
