package server

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/MarkKirilenko/tranning-app/internal"
	"github.com/MarkKirilenko/tranning-app/pkg/router"
	"github.com/MarkKirilenko/tranning-app/pkg/wire"
)

// connHandler owns one accepted connection for its whole lifetime. Requests
// on the connection are processed strictly sequentially: each response is
// fully written before the next request is read.
type connHandler struct {
	id        string
	conn      net.Conn
	router    *router.Router
	decoder   wire.Decoder
	chunkSize int
	conns     *internal.ConnStore
	log       *zap.Logger
}

func (h *connHandler) serve(ctx context.Context) {
	remoteAddr := h.conn.RemoteAddr().String()
	log := h.log.With(zap.String("connId", h.id), zap.String("remoteAddr", remoteAddr))

	if err := h.conns.Add(h.id, remoteAddr, time.Now()); err != nil {
		log.Error("Failed to register connection", zap.Error(err))
	}

	log.Info("Client connected")

	defer func() {
		h.conns.Remove(h.id)
		h.conn.Close()

		log.Info("Client disconnected")
	}()

	buf := make([]byte, h.chunkSize)
	for {
		n, readErr := h.conn.Read(buf)

		if n > 0 {
			for _, frame := range h.decoder.Feed(buf[:n]) {
				if writeErr := h.handleFrame(ctx, log, frame); writeErr != nil {
					log.Warn("Failed to write response, dropping connection", zap.Error(writeErr))
					return
				}

				if touchErr := h.conns.Touch(h.id, time.Now()); touchErr != nil {
					log.Debug("Failed to record connection activity", zap.Error(touchErr))
				}
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				log.Debug("Peer closed connection")
			} else {
				log.Warn("Read failed, dropping connection", zap.Error(readErr))
			}
			return
		}
	}
}

// handleFrame answers a single decoded frame. A malformed segment gets the
// fixed "Invalid JSON" error reply and the connection stays open.
func (h *connHandler) handleFrame(ctx context.Context, log *zap.Logger, frame wire.Frame) error {
	if frame.Err != nil {
		log.Warn("Malformed request line", zap.Error(frame.Err))
		return h.writeMessage(wire.Message{wire.FieldError: "Invalid JSON"})
	}

	return h.writeMessage(h.router.Route(ctx, frame.Msg))
}

func (h *connHandler) writeMessage(msg wire.Message) error {
	raw, err := wire.Encode(msg)
	if err != nil {
		return err
	}

	_, err = h.conn.Write(raw)
	return err
}
