package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-ops-api/internal/models"
	"github.com/noah-isme/campus-ops-api/internal/realtime"
	appErrors "github.com/noah-isme/campus-ops-api/pkg/errors"
	"github.com/noah-isme/campus-ops-api/pkg/logger"
	"github.com/noah-isme/campus-ops-api/pkg/response"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

type subscriber interface {
	Subscribe(ctx context.Context, collection models.Collection, actor models.Actor) (*realtime.Subscription, error)
}

// StreamMessage is one frame on the realtime socket.
type StreamMessage struct {
	Type       string              `json:"type"`
	Collection models.Collection   `json:"collection"`
	Seq        uint64              `json:"seq,omitempty"`
	Items      []realtime.Document `json:"items,omitempty"`
	At         time.Time           `json:"at"`
	Error      *appErrors.Error    `json:"error,omitempty"`
}

// RealtimeHandler streams collection snapshots over WebSocket.
type RealtimeHandler struct {
	streams  subscriber
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewRealtimeHandler builds a handler. checkOrigin guards the upgrade and
// is usually the CORS policy.
func NewRealtimeHandler(streams subscriber, checkOrigin func(*http.Request) bool, logger *zap.Logger) *RealtimeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RealtimeHandler{
		streams:  streams,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     checkOrigin,
		},
		logger: logger,
	}
}

// Stream godoc
// @Summary Subscribe to live snapshots of a collection
// @Description Upgrades to WebSocket. Every frame carries the full scoped collection.
// @Tags Realtime
// @Param collection path string true "tasks, exams or auditLogs"
// @Param access_token query string false "Bearer token for browsers"
// @Success 101
// @Failure 403 {object} response.Envelope
// @Router /realtime/{collection} [get]
func (h *RealtimeHandler) Stream(c *gin.Context) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collection := models.Collection(c.Param("collection"))
	sub, err := h.streams.Subscribe(ctx, collection, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer sub.Close()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logger.WithContext(c.Request.Context(), h.logger).Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	log := logger.WithContext(c.Request.Context(), h.logger).With(zap.String("collection", string(collection)))
	log.Info("realtime stream opened")

	go h.readPump(conn, cancel)
	h.writeLoop(conn, sub, log)
	log.Info("realtime stream closed")
}

// readPump discards client frames and keeps the pong deadline fresh. Any read
// error ends the stream.
func (h *RealtimeHandler) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func (h *RealtimeHandler) writeLoop(conn *websocket.Conn, sub *realtime.Subscription, log *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case snap, ok := <-sub.Updates():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(frameFor(snap)); err != nil {
				log.Debug("realtime write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func frameFor(snap realtime.Snapshot) StreamMessage {
	if snap.Err != nil {
		return StreamMessage{Type: "error", Collection: snap.Collection, At: snap.At, Error: appErrors.FromError(snap.Err)}
	}
	items := snap.Items
	if items == nil {
		items = []realtime.Document{}
	}
	return StreamMessage{Type: "snapshot", Collection: snap.Collection, Seq: snap.Seq, Items: items, At: snap.At}
}
