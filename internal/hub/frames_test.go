package hub

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrame(t *testing.T) {
	f, err := parseFrame([]byte(`{"type":"subscribe","pollId":"p1"}`))
	require.NoError(t, err)
	assert.Equal(t, kindSubscribe, f.Type)
	assert.Equal(t, "p1", f.PollID)
}

func TestParseFrame_Malformed(t *testing.T) {
	_, err := parseFrame([]byte(`{not json`))
	assert.Error(t, err)
}

func TestParseFrame_MissingType(t *testing.T) {
	_, err := parseFrame([]byte(`{"pollId":"p1"}`))
	assert.ErrorIs(t, err, errMissingType)
}

func TestFrameKindLabel(t *testing.T) {
	assert.Equal(t, "subscribe", kindSubscribe.label())
	assert.Equal(t, "ping", kindPing.label())

	// Client-invented types share one bucket.
	assert.Equal(t, "unknown", frameKind("teleport").label())
	assert.Equal(t, "unknown", frameKind("x9f2c").label())
	assert.Equal(t, "unknown", frameKind("").label())
}

func TestPollUpdateFrameShape(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	payload := json.RawMessage(`{"question":"?","votes":3}`)

	data, err := json.Marshal(newPollUpdateFrame("p1", payload, now))
	require.NoError(t, err)

	assert.JSONEq(t,
		`{"type":"pollUpdate","pollId":"p1","poll":{"question":"?","votes":3},"timestamp":"2025-03-14T09:26:53Z"}`,
		string(data))
}

func TestErrorFrameShape(t *testing.T) {
	data, err := json.Marshal(newErrorFrame("Missing pollId"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","message":"Missing pollId"}`, string(data))
}
