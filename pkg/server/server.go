// Package server hosts the fitness protocol over TCP and, optionally, over
// WebSocket. The TCP listener accepts connections in a poll loop so shutdown
// can interrupt it, and spawns one handler goroutine per connection.
package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MarkKirilenko/tranning-app/internal"
	"github.com/MarkKirilenko/tranning-app/pkg/router"
)

const (
	defaultAcceptPollInterval = 1 * time.Second
	defaultReadChunkSize      = 1024
)

type TcpServerParams struct {
	ListenAddress string

	// AcceptPollInterval bounds how long Accept blocks before the loop
	// re-checks for shutdown. Defaults to one second.
	AcceptPollInterval time.Duration

	// ReadChunkSize bounds a single read from a connection. Defaults to
	// 1024 bytes.
	ReadChunkSize int

	Logger *zap.Logger
}

type tcpServer struct {
	params TcpServerParams
	router *router.Router
	conns  *internal.ConnStore

	log *zap.Logger

	mut_boundAddr sync.Mutex
	boundAddr     net.Addr
	ready         chan struct{}
}

func CreateTcpServer(rt *router.Router, params TcpServerParams) (*tcpServer, error) {
	logger := params.Logger
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}

	if params.AcceptPollInterval <= 0 {
		params.AcceptPollInterval = defaultAcceptPollInterval
	}
	if params.ReadChunkSize <= 0 {
		params.ReadChunkSize = defaultReadChunkSize
	}

	return &tcpServer{
		params: params,
		router: rt,
		conns:  internal.CreateConnStore(),

		log: logger.With(zap.String("handler", "TCP")),

		ready: make(chan struct{}),
	}, nil
}

// Ready is closed once the listener is bound; BoundAddr is valid after that.
func (s *tcpServer) Ready() <-chan struct{} {
	return s.ready
}

func (s *tcpServer) BoundAddr() net.Addr {
	s.mut_boundAddr.Lock()
	defer s.mut_boundAddr.Unlock()
	return s.boundAddr
}

// ActiveConnections reports how many connection handlers are currently live.
func (s *tcpServer) ActiveConnections() int {
	return s.conns.Count()
}

// Start binds the listener and runs the accept loop until ctx is canceled.
// Cancelation stops accepting new connections; handlers already running are
// not interrupted and drain when their peer disconnects.
func (s *tcpServer) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.params.ListenAddress)
	if err != nil {
		s.log.Error("Failed to bind TCP listener", zap.String("address", s.params.ListenAddress), zap.Error(err))
		return err
	}
	defer listener.Close()

	s.mut_boundAddr.Lock()
	s.boundAddr = listener.Addr()
	s.mut_boundAddr.Unlock()
	close(s.ready)

	s.log.Info("TCP server listening", zap.String("address", listener.Addr().String()))

	tcpListener, isTcp := listener.(*net.TCPListener)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Shutdown requested, TCP accept loop exiting",
				zap.Int("liveConnections", s.conns.Count()))
			return nil
		default:
		}

		if isTcp {
			if err := tcpListener.SetDeadline(time.Now().Add(s.params.AcceptPollInterval)); err != nil {
				s.log.Error("Failed to arm accept deadline", zap.Error(err))
				return err
			}
		}

		conn, err := listener.Accept()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}

			if ctx.Err() != nil {
				return nil
			}

			s.log.Error("Accept failed", zap.Error(err))
			return err
		}

		handler := &connHandler{
			id:        uuid.NewString(),
			conn:      conn,
			router:    s.router,
			chunkSize: s.params.ReadChunkSize,
			conns:     s.conns,
			log:       s.log,
		}

		// Shutdown stops the accept loop only; requests on connections
		// that are already open must not see the cancelation.
		go handler.serve(context.WithoutCancel(ctx))
	}
}
