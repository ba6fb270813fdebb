package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"eventhub/internal/constants"
	"eventhub/pkg/errors"
)

// ListConnections godoc
// @Summary      List live connections
// @Tags         connections
// @Produce      json
// @Success      200  {array}  connection.Info
// @Router       /connections [get]
func (h *Handler) ListConnections(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.Registry.Snapshot())
}

// GetConnection godoc
// @Summary      Get a live connection
// @Tags         connections
// @Produce      json
// @Param        id   path      string  true  "Connection ID"
// @Success      200  {object}  connection.Info
// @Failure      404  {object}  errors.ErrorResponse
// @Router       /connections/{id} [get]
func (h *Handler) GetConnection(c *gin.Context) {
	info, err := h.hub.Registry.Get(c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// ListQueues godoc
// @Summary      List message queues
// @Tags         queues
// @Produce      json
// @Success      200  {array}  queue.Info
// @Router       /queues [get]
func (h *Handler) ListQueues(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.Queues.List())
}

// GetQueue godoc
// @Summary      Get a message queue
// @Tags         queues
// @Produce      json
// @Param        id   path      string  true  "Queue ID"
// @Success      200  {object}  queue.Info
// @Failure      404  {object}  errors.ErrorResponse
// @Router       /queues/{id} [get]
func (h *Handler) GetQueue(c *gin.Context) {
	info, err := h.hub.Queues.Get(c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// GetQueueMessages godoc
// @Summary      List pending messages of a queue
// @Tags         queues
// @Produce      json
// @Param        id     path      string  true   "Queue ID"
// @Param        limit  query     int     false  "Maximum messages returned (1-1000, default 100)"
// @Success      200  {array}   queue.Message
// @Failure      400  {object}  errors.ErrorResponse
// @Failure      404  {object}  errors.ErrorResponse
// @Router       /queues/{id}/messages [get]
func (h *Handler) GetQueueMessages(c *gin.Context) {
	limit, err := intQuery(c, "limit", constants.DefaultLimit)
	if err == nil && (limit < 1 || limit > constants.MaxLimit) {
		err = errors.ErrValidation.
			WithDetail("field", "limit").
			WithDetail("message", fmt.Sprintf("limit must be between 1 and %d", constants.MaxLimit))
	}
	if err != nil {
		h.HandleError(c, err)
		return
	}
	msgs, err := h.hub.Queues.Messages(c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	c.JSON(http.StatusOK, msgs)
}

// PauseQueue godoc
// @Summary      Pause a queue
// @Description  Stop the consumer from processing the queue. Enqueueing continues.
// @Tags         queues
// @Produce      json
// @Param        id   path      string  true  "Queue ID"
// @Success      200  {object}  queue.Info
// @Failure      404  {object}  errors.ErrorResponse
// @Failure      409  {object}  errors.ErrorResponse
// @Router       /queues/{id}/pause [post]
func (h *Handler) PauseQueue(c *gin.Context) {
	info, err := h.hub.Queues.Pause(c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// ResumeQueue godoc
// @Summary      Resume a paused queue
// @Tags         queues
// @Produce      json
// @Param        id   path      string  true  "Queue ID"
// @Success      200  {object}  queue.Info
// @Failure      404  {object}  errors.ErrorResponse
// @Failure      409  {object}  errors.ErrorResponse
// @Router       /queues/{id}/resume [post]
func (h *Handler) ResumeQueue(c *gin.Context) {
	info, err := h.hub.Queues.Resume(c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// DrainQueue godoc
// @Summary      Drain a queue
// @Description  Refuse new messages and process what is left
// @Tags         queues
// @Produce      json
// @Param        id   path      string  true  "Queue ID"
// @Success      200  {object}  queue.Info
// @Failure      404  {object}  errors.ErrorResponse
// @Failure      409  {object}  errors.ErrorResponse
// @Router       /queues/{id}/drain [post]
func (h *Handler) DrainQueue(c *gin.Context) {
	info, err := h.hub.Queues.Drain(c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}
