package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/moonbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/moonbridge/internal/shared/id"
	"github.com/GriffinCanCode/moonbridge/internal/shared/types"
	"github.com/GriffinCanCode/moonbridge/internal/surface"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	queueSize  = 64
)

// Subscriber is the event source of the stream. Done is closed when the
// source stops producing events.
type Subscriber interface {
	Subscribe(fn func(surface.Event)) (cancel func())
	Done() <-chan struct{}
}

// Handler manages WebSocket connections
type Handler struct {
	source   Subscriber
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket handler
func NewHandler(source Subscriber, metrics *monitoring.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		source:  source,
		metrics: metrics,
		logger:  logger.Named("ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // CORS middleware governs browser access
			},
		},
	}
}

// HandleConnection upgrades the request and streams events until the
// client goes away or the source closes.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sub := id.NewSubscriberID()
	logger := h.logger.With(zap.String("subscriber", sub.String()))
	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	out := make(chan types.WSMessage, queueSize)
	out <- types.WSMessage{
		Type:       types.WSWelcome,
		Subscriber: sub.String(),
		Timestamp:  time.Now().Unix(),
	}
	cancel := h.source.Subscribe(func(ev surface.Event) {
		select {
		case out <- registeredMessage(ev):
		default:
			logger.Warn("subscriber queue full, dropping event", zap.String("type", ev.Type))
		}
	})
	defer cancel()

	done := make(chan struct{})
	go h.readLoop(conn, out, done, logger)

	logger.Debug("subscriber connected")
	h.writeLoop(conn, out, done, logger)
	logger.Debug("subscriber disconnected")
}

// readLoop answers pings and ends the stream when the client disconnects.
func (h *Handler) readLoop(conn *websocket.Conn, out chan<- types.WSMessage, done chan<- struct{}, logger *zap.Logger) {
	defer close(done)

	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg types.WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}
		h.metrics.RecordWSMessage("in", msg.Type)

		var reply types.WSMessage
		switch msg.Type {
		case types.WSPing:
			reply = types.WSMessage{Type: types.WSPong, Timestamp: time.Now().Unix()}
		default:
			reply = types.WSMessage{Type: types.WSError, Message: "unknown message type", Timestamp: time.Now().Unix()}
		}
		select {
		case out <- reply:
		default:
		}
	}
}

func (h *Handler) writeLoop(conn *websocket.Conn, out <-chan types.WSMessage, done <-chan struct{}, logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	write := func(msg types.WSMessage) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			logger.Debug("WebSocket write failed", zap.Error(err))
			return err
		}
		h.metrics.RecordWSMessage("out", msg.Type)
		return nil
	}

	for {
		select {
		case <-done:
			return
		case msg := <-out:
			if write(msg) != nil {
				return
			}
		case <-h.source.Done():
		flush:
			for {
				select {
				case msg := <-out:
					if write(msg) != nil {
						return
					}
				default:
					break flush
				}
			}
			logger.Debug("event source closed")
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "surface closed"),
				time.Now().Add(writeWait))
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func registeredMessage(ev surface.Event) types.WSMessage {
	return types.WSMessage{
		Type: types.WSRegistered,
		Event: &types.TypeEvent{
			Surface:      ev.Surface,
			Type:         ev.Type,
			Parent:       ev.Parent,
			NativeHandle: int32(ev.NativeHandle),
			ParentHandle: int32(ev.ParentHandle),
			Time:         ev.Time,
		},
		Timestamp: ev.Time.Unix(),
	}
}
