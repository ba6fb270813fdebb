// Package api exposes the hub over HTTP: the REST surface for publishing,
// subscription management, queues and monitoring, plus the websocket route.
package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"eventhub/internal/config"
	"eventhub/internal/hub"
	"eventhub/internal/logger"
	"eventhub/pkg/errors"
)

type BaseHandler struct {
	Logger logger.Logger
}

func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	status := errors.ToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.Logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	} else {
		h.Logger.DebugwCtx(c.Request.Context(), "Request rejected", "error", err, "path", c.Request.URL.Path)
	}
	c.JSON(status, errors.ToErrorResponse(err))
}

func (h *BaseHandler) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errors.ToErrorResponse(
		errors.ErrValidation.WithCause(err).WithDetail("message", err.Error()),
	))
}

type Handler struct {
	BaseHandler
	hub     *hub.Hub
	connCfg config.ConnectionConfig
}

func NewHandler(h *hub.Hub, connCfg config.ConnectionConfig, log logger.Logger) *Handler {
	return &Handler{
		BaseHandler: BaseHandler{Logger: logger.Named(log, "api")},
		hub:         h,
		connCfg:     connCfg,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/ws", h.ServeWS)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/events", h.PublishEvent)

		subs := v1.Group("/subscriptions")
		{
			subs.POST("", h.CreateSubscription)
			subs.GET("", h.ListSubscriptions)
			subs.GET("/:id", h.GetSubscription)
			subs.PATCH("/:id", h.UpdateSubscription)
			subs.DELETE("/:id", h.DeleteSubscription)
			subs.POST("/:id/pause", h.PauseSubscription)
			subs.POST("/:id/resume", h.ResumeSubscription)
		}

		v1.GET("/connections", h.ListConnections)
		v1.GET("/connections/:id", h.GetConnection)

		queues := v1.Group("/queues")
		{
			queues.GET("", h.ListQueues)
			queues.GET("/:id", h.GetQueue)
			queues.GET("/:id/messages", h.GetQueueMessages)
			queues.POST("/:id/pause", h.PauseQueue)
			queues.POST("/:id/resume", h.ResumeQueue)
			queues.POST("/:id/drain", h.DrainQueue)
		}

		m := v1.Group("/metrics")
		{
			m.GET("/current", h.CurrentMetrics)
			m.GET("/history", h.MetricsHistory)
			m.GET("/breakdown/:domain", h.MetricsBreakdown)
			m.GET("/health-score", h.HealthScore)
			m.GET("/trend", h.MetricsTrend)
			m.GET("/export", h.ExportMetrics)
		}

		alerts := v1.Group("/alerts")
		{
			alerts.GET("/rules", h.ListAlertRules)
			alerts.POST("/rules", h.CreateAlertRule)
			alerts.GET("/rules/:id", h.GetAlertRule)
			alerts.PUT("/rules/:id", h.UpdateAlertRule)
			alerts.DELETE("/rules/:id", h.DeleteAlertRule)
			alerts.GET("/active", h.ActiveAlerts)
		}
	}
}

// intQuery parses an optional integer query parameter.
func intQuery(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.ErrValidation.
			WithDetail("field", name).
			WithDetail("message", name+" must be an integer")
	}
	return n, nil
}
