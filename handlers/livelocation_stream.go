package handlers

import (
	"net/http"
	"time"

	"snapnow/middleware"
	"snapnow/models"
	"snapnow/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingPeriod   = (wsPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkStreamOrigin,
}

// checkStreamOrigin admits non-browser clients, which send no Origin,
// and browsers on an allowed origin.
func checkStreamOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return middleware.OriginAllowed(origin)
}

// StreamCounterpartyLocation upgrades to a WebSocket and pushes the other
// party's location whenever it changes. The first frame is the current
// value; a frame with a null location means the party stopped sharing.
func (h *LiveLocationHandler) StreamCounterpartyLocation(c *gin.Context) {
	logger := getLogger(c)
	bookingID := c.Param("id")

	ctx := c.Request.Context()
	watch, err := h.Service.Watch(ctx, bookingID, c.GetString(utils.ContextUserID))
	if err != nil {
		h.respondError(c, bookingID, err)
		return
	}
	defer watch.Close()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed", zap.String("bookingID", bookingID), zap.Error(err))
		return
	}
	defer conn.Close()

	other := models.Counterparty(watch.Role)
	logger = logger.With(zap.String("bookingID", bookingID), zap.String("watching", other))
	logger.Debug("Live location stream opened")

	// The read pump only handles control frames and notices the client leaving.
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(ev models.LiveLocationEvent) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(ev)
	}

	if err := write(models.LiveLocationEvent{BookingID: bookingID, UserType: other, Location: watch.Initial.Response()}); err != nil {
		return
	}

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			logger.Debug("Live location stream closed by client")
			return
		case <-ctx.Done():
			return
		case ev, ok := <-watch.Events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream ended"),
					time.Now().Add(wsWriteTimeout))
				return
			}
			if err := write(ev); err != nil {
				logger.Debug("Live location stream write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}
