package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_AppendsSingleDelimiter(t *testing.T) {
	raw, err := Encode(Message{"action": "login", "username": "mark"})
	require.NoError(t, err)

	assert.Equal(t, byte('\n'), raw[len(raw)-1])
	assert.NotContains(t, string(raw[:len(raw)-1]), "\n")
}

func TestRoundTrip(t *testing.T) {
	msg := Message{
		"action":   "save_plan",
		"username": "mark",
		"level":    "beginner",
		"success":  true,
		"duration": float64(45),
		"exercises": []any{
			map[string]any{"name": "Push-ups", "sets": float64(3)},
			map[string]any{"name": "Squats", "sets": float64(4)},
		},
	}

	raw, err := Encode(msg)
	require.NoError(t, err)

	d := &Decoder{}
	frames := d.Feed(raw)
	require.Len(t, frames, 1)
	require.Nil(t, frames[0].Err)
	assert.Equal(t, msg, frames[0].Msg)
	assert.Zero(t, d.Buffered())
}

func TestFeed_MultipleMessagesInOneChunk(t *testing.T) {
	m1, err := Encode(Message{"action": "login"})
	require.NoError(t, err)
	m2, err := Encode(Message{"action": "register"})
	require.NoError(t, err)

	d := &Decoder{}
	frames := d.Feed(append(m1, m2...))
	require.Len(t, frames, 2)
	assert.Equal(t, "login", frames[0].Msg.Action())
	assert.Equal(t, "register", frames[1].Msg.Action())
}

func TestFeed_ChunkBoundaryIndependence(t *testing.T) {
	m1, err := Encode(Message{"action": "login", "username": "mark"})
	require.NoError(t, err)
	m2, err := Encode(Message{"action": "get_user_plans", "username": "mark"})
	require.NoError(t, err)
	stream := append(m1, m2...)

	// Every possible split point must yield the same two messages in order.
	for cut := 0; cut <= len(stream); cut++ {
		d := &Decoder{}
		frames := d.Feed(stream[:cut])
		frames = append(frames, d.Feed(stream[cut:])...)

		require.Len(t, frames, 2, "split at byte %d", cut)
		require.Nil(t, frames[0].Err)
		require.Nil(t, frames[1].Err)
		assert.Equal(t, "login", frames[0].Msg.Action())
		assert.Equal(t, "get_user_plans", frames[1].Msg.Action())
	}
}

func TestFeed_PartialMessageIsBuffered(t *testing.T) {
	d := &Decoder{}

	frames := d.Feed([]byte(`{"action":"log`))
	assert.Empty(t, frames)
	assert.Positive(t, d.Buffered())

	frames = d.Feed([]byte("in\"}\n"))
	require.Len(t, frames, 1)
	assert.Equal(t, "login", frames[0].Msg.Action())
	assert.Zero(t, d.Buffered())
}

func TestFeed_BlankLinesSkipped(t *testing.T) {
	d := &Decoder{}
	frames := d.Feed([]byte("\n\r\n{\"action\":\"login\"}\n\n"))
	require.Len(t, frames, 1)
	assert.Equal(t, "login", frames[0].Msg.Action())
}

func TestFeed_MalformedSegmentYieldsProtocolError(t *testing.T) {
	d := &Decoder{}
	frames := d.Feed([]byte("not json at all\n{\"action\":\"login\"}\n"))
	require.Len(t, frames, 2)

	require.NotNil(t, frames[0].Err)
	assert.Equal(t, "not json at all", frames[0].Err.Segment)
	assert.Nil(t, frames[0].Msg)

	// Decoding recovers on the next segment.
	require.Nil(t, frames[1].Err)
	assert.Equal(t, "login", frames[1].Msg.Action())
}

func TestFeed_EmptyChunk(t *testing.T) {
	d := &Decoder{}
	assert.Empty(t, d.Feed(nil))
	assert.Empty(t, d.Feed([]byte{}))
}

func TestMessage_Accessors(t *testing.T) {
	m := Message{"action": "load_existing_plan", "plan_id": float64(7), "ok": true}

	assert.Equal(t, "load_existing_plan", m.Action())
	assert.Equal(t, int64(7), m.Int("plan_id"))
	assert.True(t, m.Bool("ok"))
	assert.Equal(t, "", m.String("missing"))
	assert.Equal(t, int64(0), m.Int("missing"))
}
