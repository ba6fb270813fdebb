package api

import (
	"github.com/gin-gonic/gin"

	"eventhub/internal/connection"
	"eventhub/internal/hub"
	"eventhub/pkg/errors"
	"eventhub/pkg/logging"
)

// ServeWS godoc
// @Summary      Open a websocket connection
// @Description  Upgrades to a websocket that carries subscribe, unsubscribe and ping frames in and event frames out. Reusing a session_id resumes its persistent subscriptions.
// @Tags         websocket
// @Param        owner_id    query  string  true   "Owner ID"
// @Param        session_id  query  string  false  "Session ID to resume"
// @Success      101  "Switching Protocols"
// @Failure      400  {object}  errors.ErrorResponse
// @Router       /ws [get]
func (h *Handler) ServeWS(c *gin.Context) {
	ownerID := c.Query("owner_id")
	if ownerID == "" {
		h.HandleError(c, errors.ErrValidation.
			WithDetail("field", "owner_id").
			WithDetail("message", "owner_id is required"))
		return
	}

	ws, err := connection.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.WarnwCtx(c.Request.Context(), "Websocket upgrade failed", "error", err)
		return
	}
	transport := connection.NewWebsocketTransport(ws, h.connCfg.WriteWait)

	ctx := c.Request.Context()
	conn, _, err := h.hub.Connect(ctx, hub.ConnectRequest{
		OwnerID:   ownerID,
		SessionID: c.Query("session_id"),
		Metadata: map[string]string{
			"remote_addr": c.ClientIP(),
			"user_agent":  c.Request.UserAgent(),
		},
	}, transport)
	if err != nil {
		h.rejectSocket(transport, err)
		return
	}
	ctx = logging.WithConnectionID(ctx, conn.ID())

	go conn.WritePump(h.connCfg.PingPeriod)

	readErr := connection.ReadPump(ws, h.connCfg, func(data []byte) {
		if err := h.hub.HandleFrame(ctx, conn.ID(), data); err != nil {
			h.Logger.DebugwCtx(ctx, "Frame not answered", "error", err)
		}
	})
	if readErr != nil {
		h.Logger.WarnwCtx(ctx, "Websocket closed unexpectedly", "error", readErr)
	}

	if err := h.hub.Disconnect(ctx, conn.ID()); err != nil && !errors.IsNotFound(err) {
		h.Logger.WarnwCtx(ctx, "Disconnect failed", "error", err)
	}
}

// rejectSocket reports a connect failure on an already upgraded socket and
// closes it.
func (h *Handler) rejectSocket(t *connection.WebsocketTransport, err error) {
	code, msg := errors.ErrInternal.Code, err.Error()
	var appErr *errors.Error
	if errors.As(err, &appErr) {
		code, msg = appErr.Code, appErr.Message
		if detail, ok := appErr.Details["message"].(string); ok && detail != "" {
			msg = detail
		}
	}
	if data, encErr := connection.Encode(connection.ErrorFrame("", code, msg)); encErr == nil {
		_ = t.WriteFrame(data)
	}
	_ = t.Close()
}
