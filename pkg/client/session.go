// Package client implements the connection side of the fitness protocol: a
// Session dials the server, writes one JSON request per line, and delivers
// decoded responses in arrival order on a channel.
package client

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MarkKirilenko/tranning-app/pkg/wire"
)

const (
	defaultDialTimeout    = 5 * time.Second
	defaultReadChunkSize  = 1024
	defaultResponseBuffer = 16
)

type SessionParams struct {
	ServerAddress string

	// DialTimeout bounds Connect. Defaults to five seconds.
	DialTimeout time.Duration

	// ReadChunkSize bounds a single read from the connection. Defaults to
	// 1024 bytes.
	ReadChunkSize int

	// ResponseBuffer sets the capacity of the Responses channel. Defaults
	// to 16.
	ResponseBuffer int

	Logger *zap.Logger
}

// Session lives across connections: when a connection is lost, the next Send
// dials again and responses keep flowing on the same channel. Only Close
// ends the session.
type Session struct {
	params SessionParams
	log    *zap.Logger

	mut_conn sync.Mutex
	conn     net.Conn
	readers  sync.WaitGroup
	closed   bool

	quit      chan struct{}
	responses chan wire.Message

	mut_readErr sync.Mutex
	readErr     error
}

func CreateSession(params SessionParams) *Session {
	logger := params.Logger
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}

	if params.DialTimeout <= 0 {
		params.DialTimeout = defaultDialTimeout
	}
	if params.ReadChunkSize <= 0 {
		params.ReadChunkSize = defaultReadChunkSize
	}
	if params.ResponseBuffer <= 0 {
		params.ResponseBuffer = defaultResponseBuffer
	}

	return &Session{
		params:    params,
		log:       logger.With(zap.String("handler", "ClientSession")),
		quit:      make(chan struct{}),
		responses: make(chan wire.Message, params.ResponseBuffer),
	}
}

// Responses carries server messages in the order they arrived. The channel
// spans reconnects and is closed only when the session itself is closed.
func (s *Session) Responses() <-chan wire.Message {
	return s.responses
}

// Connect dials the server and starts the read loop. Calling it on an
// already-connected session is a no-op.
func (s *Session) Connect() error {
	s.mut_conn.Lock()
	defer s.mut_conn.Unlock()
	return s.connectLocked()
}

func (s *Session) connectLocked() error {
	if s.closed {
		return net.ErrClosed
	}
	if s.conn != nil {
		return nil
	}

	conn, err := net.DialTimeout("tcp", s.params.ServerAddress, s.params.DialTimeout)
	if err != nil {
		s.log.Error("Failed to connect", zap.String("address", s.params.ServerAddress), zap.Error(err))
		return err
	}

	s.log.Info("Connected", zap.String("address", conn.RemoteAddr().String()))
	s.conn = conn
	s.readers.Add(1)
	go s.readLoop(conn)
	return nil
}

// Connected reports whether the session currently holds a live connection.
func (s *Session) Connected() bool {
	s.mut_conn.Lock()
	defer s.mut_conn.Unlock()
	return s.conn != nil
}

// Send encodes one request and writes it to the server, connecting first if
// needed. A write failure tears the connection down; the next Send dials
// again.
func (s *Session) Send(msg wire.Message) error {
	raw, err := wire.Encode(msg)
	if err != nil {
		return err
	}

	s.mut_conn.Lock()
	defer s.mut_conn.Unlock()

	if err := s.connectLocked(); err != nil {
		return err
	}

	if _, err := s.conn.Write(raw); err != nil {
		s.log.Error("Write failed, dropping connection", zap.Error(err))
		s.conn.Close()
		s.conn = nil
		return err
	}

	return nil
}

// Request sends one message and waits for the next response. It assumes the
// strict request/response cadence of the protocol and must not be mixed with
// concurrent Send calls on the same session.
func (s *Session) Request(ctx context.Context, msg wire.Message) (wire.Message, error) {
	if err := s.Send(msg); err != nil {
		return nil, err
	}

	select {
	case resp, more := <-s.responses:
		if !more {
			return nil, net.ErrClosed
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Err reports the error that ended the most recent read loop, if any. A
// clean remote close reports nil.
func (s *Session) Err() error {
	s.mut_readErr.Lock()
	defer s.mut_readErr.Unlock()
	return s.readErr
}

// Close shuts the session down and closes the Responses channel. Safe to
// call more than once. Only Close closes the channel: a read loop that ends
// on connection loss leaves it open for the next connection.
func (s *Session) Close() error {
	s.mut_conn.Lock()
	if s.closed {
		s.mut_conn.Unlock()
		return nil
	}
	s.closed = true
	close(s.quit)

	conn := s.conn
	s.conn = nil
	s.mut_conn.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}

	// The channel is closed only after every read loop has stopped
	// delivering on it.
	s.readers.Wait()
	close(s.responses)
	return err
}

func (s *Session) readLoop(conn net.Conn) {
	defer s.readers.Done()

	var decoder wire.Decoder
	buf := make([]byte, s.params.ReadChunkSize)

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			for _, frame := range decoder.Feed(buf[:n]) {
				if frame.Err != nil {
					s.log.Warn("Discarding malformed server line", zap.Error(frame.Err))
					continue
				}

				select {
				case s.responses <- frame.Msg:
				case <-s.quit:
					return
				}
			}
		}

		if err != nil {
			s.finish(conn, err)
			return
		}
	}
}

func (s *Session) finish(conn net.Conn, readErr error) {
	s.mut_conn.Lock()
	closed := s.closed
	if s.conn == conn {
		s.conn.Close()
		s.conn = nil
	}
	s.mut_conn.Unlock()

	if errors.Is(readErr, io.EOF) || closed || errors.Is(readErr, net.ErrClosed) {
		s.log.Info("Connection closed")
		return
	}

	s.mut_readErr.Lock()
	s.readErr = readErr
	s.mut_readErr.Unlock()
	s.log.Warn("Connection lost", zap.Error(readErr))
}
