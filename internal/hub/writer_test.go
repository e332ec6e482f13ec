package hub

import (
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWriter(t *testing.T) (*clientWriter, *ws.Conn) {
	t.Helper()
	serverConns, clientConns := connPairs(t, 1)
	cw := newClientWriter(serverConns[0], clockwork.NewRealClock(), nil)
	t.Cleanup(cw.stop)
	return cw, clientConns[0]
}

func TestClientWriter_DeliversEnqueuedMessages(t *testing.T) {
	cw, client := newTestWriter(t)

	require.NoError(t, cw.enqueue([]byte(`{"type":"pong"}`)))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"pong"}`, string(data))
}

func TestClientWriter_EnqueueAfterStop(t *testing.T) {
	cw, _ := newTestWriter(t)

	cw.stop()
	assert.ErrorIs(t, cw.enqueue([]byte("x")), errWriterStopped)
}

func TestClientWriter_EnqueueOnFullBuffer(t *testing.T) {
	serverConns, _ := connPairs(t, 1)
	// Freeze the write pump with a fake clock whose frozen time makes
	// every write deadline already expired, so run() exits on the first
	// message and the buffer stops draining.
	clock := clockwork.NewFakeClockAt(time.Unix(0, 0))
	cw := newClientWriter(serverConns[0], clock, nil)
	t.Cleanup(cw.stop)

	var full bool
	for i := 0; i < messageBufferSize+2; i++ {
		if err := cw.enqueue([]byte("x")); err != nil {
			require.ErrorIs(t, err, errSendBufferFull)
			full = true
			break
		}
	}
	assert.True(t, full, "enqueue must fail once the buffer cannot drain")
}

func TestClientWriter_StopGracefulSendsCloseFrame(t *testing.T) {
	cw, client := newTestWriter(t)

	cw.stopGraceful("test reason")

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := client.ReadMessage()
	var closeErr *ws.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, ws.CloseNormalClosure, closeErr.Code)
	assert.Equal(t, "test reason", closeErr.Text)
}

func TestClientWriter_StopIsIdempotent(t *testing.T) {
	cw, _ := newTestWriter(t)

	cw.stop()
	cw.stop()
	cw.stopGraceful("late")
}
