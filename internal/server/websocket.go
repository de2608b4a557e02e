package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/goevery/chatrelay/internal/broadcaster"
	"github.com/goevery/chatrelay/internal/rpc"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var (
	errConnectionClosed = errors.New("connection closed")
	errSendBufferFull   = errors.New("send buffer full")
)

type WebSocketOptions struct {
	SendBufferSize int
	ReadLimit      int64
}

type WebSocketServer struct {
	logger    *zap.Logger
	upgrader  *websocket.Upgrader
	lifecycle *broadcaster.Lifecycle
	router    *Router
	options   WebSocketOptions
}

func NewWebSocketServer(
	logger *zap.Logger,
	upgrader *websocket.Upgrader,
	lifecycle *broadcaster.Lifecycle,
	router *Router,
	options WebSocketOptions,
) *WebSocketServer {
	if options.SendBufferSize <= 0 {
		options.SendBufferSize = 256
	}
	if options.ReadLimit <= 0 {
		options.ReadLimit = 64 * 1024
	}

	return &WebSocketServer{
		logger,
		upgrader,
		lifecycle,
		router,
		options,
	}
}

func (s *WebSocketServer) Register(router *mux.Router) {
	router.HandleFunc("/websocket", s.serve)
}

func (s *WebSocketServer) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(gonanoid.Must(), conn, s.options.SendBufferSize)
	logger := s.logger.With(
		zap.String("connectionId", client.Id()),
		zap.String("clientIp", clientIp(r)))

	err = s.lifecycle.Open(client)
	if err != nil {
		logger.Error("failed to register connection", zap.Error(err))
		conn.Close()
		return
	}

	logger.Info("websocket connection established")

	ctx, cancel := context.WithCancel(broadcaster.WithConnection(r.Context(), client))
	defer cancel()

	go client.writePump(logger)

	s.readLoop(ctx, logger, client)

	err = s.lifecycle.Close(ctx, client.Id())
	if err != nil {
		logger.Error("failed to close connection", zap.Error(err))
	}

	client.close()

	logger.Info("websocket connection closed")
}

func (s *WebSocketServer) readLoop(ctx context.Context, logger *zap.Logger, client *client) {
	conn := client.conn

	conn.SetReadLimit(s.options.ReadLimit)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		var request rpc.Request
		err = json.Unmarshal(data, &request)
		if err != nil {
			logger.Warn("closing connection after invalid frame", zap.Error(err))

			closeMessage := websocket.FormatCloseMessage(websocket.CloseUnsupportedData, "invalid frame")
			_ = conn.WriteControl(websocket.CloseMessage, closeMessage, time.Now().Add(writeWait))
			return
		}

		response := s.router.RouteRequest(ctx, request)
		if response == nil {
			continue
		}

		frame, err := json.Marshal(response)
		if err != nil {
			logger.Error("failed to encode response", zap.Error(err))
			continue
		}

		err = client.enqueue(frame)
		if err != nil {
			logger.Warn("failed to queue response", zap.Error(err))
		}
	}
}

// client is the websocket side of a connection. The write pump is its only writer.
type client struct {
	id   string
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

func newClient(id string, conn *websocket.Conn, bufferSize int) *client {
	return &client{
		id:   id,
		conn: conn,
		send: make(chan []byte, bufferSize),
	}
}

func (c *client) Id() string {
	return c.id
}

func (c *client) Send(ctx context.Context, message broadcaster.Message) error {
	frame, err := rpc.EncodeNotification(message.Event, message.Payload)
	if err != nil {
		return err
	}

	return c.enqueue(frame)
}

func (c *client) enqueue(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errConnectionClosed
	}

	select {
	case c.send <- frame:
		return nil
	default:
		return errSendBufferFull
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	close(c.send)
}

func (c *client) writePump(logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			err := c.conn.WriteMessage(websocket.TextMessage, frame)
			if err != nil {
				logger.Warn("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			if err != nil {
				return
			}
		}
	}
}

func clientIp(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
