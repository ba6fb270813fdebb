package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"eventhub/internal/monitoring"
)

const defaultWindowHours = 1

// CurrentMetrics godoc
// @Summary      Current metrics snapshot
// @Tags         metrics
// @Produce      json
// @Success      200  {object}  monitoring.Snapshot
// @Router       /metrics/current [get]
func (h *Handler) CurrentMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.Monitor.Current(c.Request.Context()))
}

// MetricsHistory godoc
// @Summary      Metrics history
// @Tags         metrics
// @Produce      json
// @Param        hours  query     int  false  "Window in hours"  default(1)
// @Success      200    {array}   monitoring.Snapshot
// @Failure      400    {object}  errors.ErrorResponse
// @Router       /metrics/history [get]
func (h *Handler) MetricsHistory(c *gin.Context) {
	hours, err := intQuery(c, "hours", defaultWindowHours)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	history, err := h.hub.Monitor.History(hours)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

// MetricsBreakdown godoc
// @Summary      Metrics of one domain
// @Description  Current, average and peak values for connections, subscriptions, queues or performance
// @Tags         metrics
// @Produce      json
// @Param        domain  path      string  true  "Domain"
// @Success      200     {object}  monitoring.Breakdown
// @Failure      400     {object}  errors.ErrorResponse
// @Router       /metrics/breakdown/{domain} [get]
func (h *Handler) MetricsBreakdown(c *gin.Context) {
	b, err := h.hub.Monitor.Breakdown(c.Request.Context(), c.Param("domain"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// HealthScore godoc
// @Summary      Hub health score
// @Tags         metrics
// @Produce      json
// @Success      200  {object}  monitoring.Health
// @Router       /metrics/health-score [get]
func (h *Handler) HealthScore(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.Monitor.Health(c.Request.Context()))
}

// MetricsTrend godoc
// @Summary      Trend of one metric
// @Tags         metrics
// @Produce      json
// @Param        path   query     string  true   "Metric path, e.g. queues.total_size"
// @Param        hours  query     int     false  "Window in hours"  default(1)
// @Success      200    {object}  monitoring.Trend
// @Failure      400    {object}  errors.ErrorResponse
// @Router       /metrics/trend [get]
func (h *Handler) MetricsTrend(c *gin.Context) {
	hours, err := intQuery(c, "hours", defaultWindowHours)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	trend, err := h.hub.Monitor.Trend(c.Query("path"), hours)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, trend)
}

// ExportMetrics godoc
// @Summary      Export metrics as text
// @Description  One "name value" line per metric of the current snapshot
// @Tags         metrics
// @Produce      plain
// @Success      200  {string}  string
// @Router       /metrics/export [get]
func (h *Handler) ExportMetrics(c *gin.Context) {
	c.String(http.StatusOK, h.hub.Monitor.Export(c.Request.Context()))
}

// ListAlertRules godoc
// @Summary      List alert rules
// @Tags         alerts
// @Produce      json
// @Success      200  {array}   monitoring.Rule
// @Failure      500  {object}  errors.ErrorResponse
// @Router       /alerts/rules [get]
func (h *Handler) ListAlertRules(c *gin.Context) {
	rules, err := h.hub.Monitor.ListRules(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rules)
}

// CreateAlertRule godoc
// @Summary      Create an alert rule
// @Tags         alerts
// @Accept       json
// @Produce      json
// @Param        rule  body      monitoring.RuleRequest  true  "Rule data"
// @Success      201   {object}  monitoring.Rule
// @Failure      400   {object}  errors.ErrorResponse
// @Failure      409   {object}  errors.ErrorResponse
// @Router       /alerts/rules [post]
func (h *Handler) CreateAlertRule(c *gin.Context) {
	var req monitoring.RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	rule, err := h.hub.Monitor.CreateRule(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

// GetAlertRule godoc
// @Summary      Get an alert rule
// @Tags         alerts
// @Produce      json
// @Param        id   path      string  true  "Rule ID"
// @Success      200  {object}  monitoring.Rule
// @Failure      404  {object}  errors.ErrorResponse
// @Router       /alerts/rules/{id} [get]
func (h *Handler) GetAlertRule(c *gin.Context) {
	rule, err := h.hub.Monitor.GetRule(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// UpdateAlertRule godoc
// @Summary      Replace an alert rule
// @Description  Replacing a rule resets any alert it has in flight
// @Tags         alerts
// @Accept       json
// @Produce      json
// @Param        id    path      string                  true  "Rule ID"
// @Param        rule  body      monitoring.RuleRequest  true  "Rule data"
// @Success      200   {object}  monitoring.Rule
// @Failure      400   {object}  errors.ErrorResponse
// @Failure      404   {object}  errors.ErrorResponse
// @Router       /alerts/rules/{id} [put]
func (h *Handler) UpdateAlertRule(c *gin.Context) {
	var req monitoring.RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	rule, err := h.hub.Monitor.UpdateRule(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// DeleteAlertRule godoc
// @Summary      Delete an alert rule
// @Tags         alerts
// @Param        id   path  string  true  "Rule ID"
// @Success      204  "No Content"
// @Failure      404  {object}  errors.ErrorResponse
// @Router       /alerts/rules/{id} [delete]
func (h *Handler) DeleteAlertRule(c *gin.Context) {
	if err := h.hub.Monitor.DeleteRule(c.Request.Context(), c.Param("id")); err != nil {
		h.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ActiveAlerts godoc
// @Summary      Alerts currently firing
// @Tags         alerts
// @Produce      json
// @Success      200  {array}  monitoring.Alert
// @Router       /alerts/active [get]
func (h *Handler) ActiveAlerts(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.Monitor.ActiveAlerts(c.Request.Context()))
}
