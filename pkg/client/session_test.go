package client

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MarkKirilenko/tranning-app/pkg/wire"
)

// echoLines answers every JSON line on conn with the same object plus an
// "echo": true marker.
func echoLines(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var msg wire.Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}
		msg["echo"] = true
		raw, _ := wire.Encode(msg)
		if _, err := conn.Write(raw); err != nil {
			return
		}
	}
}

// startEchoPeer runs a single-connection echo server.
func startEchoPeer(t *testing.T) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		echoLines(conn)
	}()

	return listener.Addr().String()
}

// startFlakyEchoPeer drops its first connection immediately, then echoes on
// the second.
func startFlakyEchoPeer(t *testing.T) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		first, err := listener.Accept()
		if err != nil {
			return
		}
		first.Close()

		second, err := listener.Accept()
		if err != nil {
			return
		}
		echoLines(second)
	}()

	return listener.Addr().String()
}

func newTestSession(t *testing.T, addr string) *Session {
	t.Helper()

	s := CreateSession(SessionParams{
		ServerAddress: addr,
		Logger:        zap.NewNop(),
	})
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// waitDisconnected blocks until the session has noticed its connection is
// gone.
func waitDisconnected(t *testing.T, s *Session) {
	t.Helper()
	require.Eventually(t, func() bool { return !s.Connected() }, 5*time.Second, 10*time.Millisecond)
}

func TestSession_RequestRoundTrip(t *testing.T) {
	addr := startEchoPeer(t)
	s := newTestSession(t, addr)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := s.Request(ctx, wire.Message{"action": "login", "username": "mark"})
	require.NoError(t, err)
	assert.Equal(t, "login", resp.Action())
	assert.True(t, resp.Bool("echo"))
	assert.Equal(t, "mark", resp.String("username"))
}

func TestSession_ConnectIsIdempotent(t *testing.T) {
	addr := startEchoPeer(t)
	s := newTestSession(t, addr)

	require.NoError(t, s.Connect())
	require.NoError(t, s.Connect())
}

func TestSession_SendAutoConnects(t *testing.T) {
	addr := startEchoPeer(t)
	s := newTestSession(t, addr)

	require.NoError(t, s.Send(wire.Message{"action": "ping"}))

	select {
	case resp := <-s.Responses():
		assert.Equal(t, "ping", resp.Action())
	case <-time.After(5 * time.Second):
		t.Fatal("no response delivered")
	}
}

func TestSession_ResponsesArriveInOrder(t *testing.T) {
	addr := startEchoPeer(t)
	s := newTestSession(t, addr)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Send(wire.Message{"action": "seq", "n": i}))
	}

	for i := 0; i < 5; i++ {
		select {
		case resp := <-s.Responses():
			assert.Equal(t, int64(i), resp.Int("n"))
		case <-time.After(5 * time.Second):
			t.Fatalf("response %d never arrived", i)
		}
	}
}

func TestSession_SendAfterConnectionLossReconnects(t *testing.T) {
	addr := startFlakyEchoPeer(t)
	s := newTestSession(t, addr)

	require.NoError(t, s.Connect())
	waitDisconnected(t, s)

	// The next request dials again; the response arrives on the same
	// channel, not a panic on a closed one.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := s.Request(ctx, wire.Message{"action": "ping"})
	require.NoError(t, err)
	assert.True(t, resp.Bool("echo"))
	assert.True(t, s.Connected())
	assert.NoError(t, s.Err())
}

func TestSession_CloseAfterRemoteClose(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		conn.Close()
	}()

	s := newTestSession(t, listener.Addr().String())
	require.NoError(t, s.Connect())
	waitDisconnected(t, s)

	// The channel survives the connection and is closed exactly once,
	// by Close.
	select {
	case <-s.Responses():
		t.Fatal("channel must stay open until the session is closed")
	default:
	}

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, more := <-s.Responses()
	assert.False(t, more)
	assert.NoError(t, s.Err())
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	addr := startEchoPeer(t)
	s := newTestSession(t, addr)

	require.NoError(t, s.Connect())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Send(wire.Message{"action": "late"}), net.ErrClosed)

	_, more := <-s.Responses()
	assert.False(t, more)
}

func TestSession_CloseWithoutConnect(t *testing.T) {
	s := CreateSession(SessionParams{ServerAddress: "127.0.0.1:1", Logger: zap.NewNop()})
	require.NoError(t, s.Close())

	_, more := <-s.Responses()
	assert.False(t, more)
}

func TestSession_DialFailure(t *testing.T) {
	s := CreateSession(SessionParams{
		ServerAddress: "127.0.0.1:1",
		DialTimeout:   200 * time.Millisecond,
		Logger:        zap.NewNop(),
	})
	defer s.Close()

	assert.Error(t, s.Connect())
}
