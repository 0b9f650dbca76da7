package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/MarkKirilenko/tranning-app/pkg/router"
	"github.com/MarkKirilenko/tranning-app/pkg/wire"
)

// WebsocketServerParams configures the browser-facing gateway. It serves the
// same action protocol as the TCP listener, one JSON object per text frame;
// frames are self-delimiting so no newline framing is involved.
type WebsocketServerParams struct {
	ListenAddress  string
	ListenEndpoint string

	AllowAllHosts    bool
	AllowlistedHosts []string
	DenylistedHosts  []string

	MaxReadMessageSize int64

	Logger *zap.Logger
}

type websocketServer struct {
	upgrader *websocket.Upgrader
	params   WebsocketServerParams
	router   *router.Router

	log *zap.Logger
}

func checkOrigin(r *http.Request, params WebsocketServerParams) bool {
	origin := r.Header.Get("Origin")
	if contains(origin, params.DenylistedHosts) {
		return false
	}

	if params.AllowAllHosts {
		return true
	}

	return contains(origin, params.AllowlistedHosts)
}

func contains(needle string, haystack []string) bool {
	for _, entry := range haystack {
		if entry == needle {
			return true
		}
	}
	return false
}

func CreateWebsocketServer(rt *router.Router, params WebsocketServerParams) (*websocketServer, error) {
	logger := params.Logger
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}

	return &websocketServer{
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return checkOrigin(r, params)
			},
		},
		params: params,
		router: rt,

		log: logger.With(zap.String("handler", "WebSocket")),
	}, nil
}

func (ws *websocketServer) onWsRequest(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	log := ws.log.With(zap.String("connId", uuid.NewString()))

	log.Info("New WebSocket request")
	c, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("Failed to upgrade HTTP request to WebSocket connection", zap.Error(err))
		return
	}

	defer c.Close()

	if ws.params.MaxReadMessageSize > 0 {
		c.SetReadLimit(ws.params.MaxReadMessageSize)
	}

	expectedCloseErrors := []int{websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived}
	for {
		msgType, payload, msgErr := c.ReadMessage()
		if msgErr != nil {
			if websocket.IsCloseError(msgErr, expectedCloseErrors...) {
				log.Info("Received close request, shutting down connection")
				return
			}

			if websocket.IsUnexpectedCloseError(msgErr, expectedCloseErrors...) {
				log.Warn("Received unexpected close from client", zap.Error(msgErr))
				return
			}

			if strings.Contains(msgErr.Error(), "use of closed network connection") {
				log.Info("Closing connection, probably from server-initiated 'close' call")
				return
			}

			log.Error("Received unexpected WebSocket error on message read", zap.Error(msgErr))
			return
		}

		if msgType != websocket.TextMessage {
			log.Info("Received non-text message, ignoring", zap.Int("size", len(payload)))
			continue
		}

		resp := ws.handlePayload(ctx, log, payload)

		raw, encodeErr := json.Marshal(resp)
		if encodeErr != nil {
			log.Error("Failed to encode response", zap.Error(encodeErr))
			return
		}
		if writeErr := c.WriteMessage(websocket.TextMessage, raw); writeErr != nil {
			log.Warn("Failed to write response, dropping connection", zap.Error(writeErr))
			return
		}
	}
}

func (ws *websocketServer) handlePayload(ctx context.Context, log *zap.Logger, payload []byte) wire.Message {
	var req wire.Message
	if err := json.Unmarshal(payload, &req); err != nil {
		log.Warn("Malformed request frame", zap.Error(err))
		return wire.Message{wire.FieldError: "Invalid JSON"}
	}

	return ws.router.Route(ctx, req)
}

func (ws *websocketServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc(ws.params.ListenEndpoint, func(w http.ResponseWriter, r *http.Request) {
		ws.onWsRequest(ctx, w, r)
	})

	server := &http.Server{
		Addr:    ws.params.ListenAddress,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		ws.log.Sugar().Infof("Starting WebSocket server at %s", ws.params.ListenAddress)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			ws.log.Error("Unexpected WebSocket server close!", zap.Error(err))
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownRelease := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownRelease()
	ws.log.Info("Attempting to trigger shutdown of WebSocket server")

	if err := server.Shutdown(shutdownCtx); err != nil {
		ws.log.Error("Failed to gracefully shut down WebSocket server", zap.Error(err))
		return err
	}

	ws.log.Info("Successfully shutdown WebSocket server")
	return <-errCh
}
