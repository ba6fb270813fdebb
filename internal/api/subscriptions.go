package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"eventhub/internal/subscription"
	"eventhub/pkg/errors"
	"eventhub/pkg/models"
)

// PublishEvent godoc
// @Summary      Publish an event
// @Description  Validate an event and distribute it to every matching subscription
// @Tags         events
// @Accept       json
// @Produce      json
// @Param        event  body      models.Event  true  "Event to publish"
// @Success      202    {object}  models.Event
// @Failure      400    {object}  errors.ErrorResponse
// @Failure      503    {object}  errors.ErrorResponse
// @Router       /events [post]
func (h *Handler) PublishEvent(c *gin.Context) {
	var event models.Event
	if err := c.ShouldBindJSON(&event); err != nil {
		h.badRequest(c, err)
		return
	}

	published, err := h.hub.Publish(c.Request.Context(), event)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, published)
}

// CreateSubscription godoc
// @Summary      Create a subscription
// @Description  Create a subscription, or return the existing one for the same owner and topic when dedup is set
// @Tags         subscriptions
// @Accept       json
// @Produce      json
// @Param        subscription  body      subscription.CreateRequest  true  "Subscription data"
// @Success      201           {object}  subscription.Subscription
// @Success      200           {object}  subscription.Subscription
// @Failure      400           {object}  errors.ErrorResponse
// @Failure      429           {object}  errors.ErrorResponse
// @Router       /subscriptions [post]
func (h *Handler) CreateSubscription(c *gin.Context) {
	var req subscription.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	sub, created, err := h.hub.Store.Create(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if sub.ConnectionID != "" {
		_ = h.hub.Registry.AddTopic(sub.ConnectionID, sub.TopicPattern)
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, sub)
}

// ListSubscriptions godoc
// @Summary      List subscriptions of an owner
// @Tags         subscriptions
// @Produce      json
// @Param        owner_id  query     string  true   "Owner ID"
// @Param        status    query     string  false  "Filter by status"
// @Param        topic     query     string  false  "Filter by topic pattern"
// @Success      200       {array}   subscription.Subscription
// @Failure      400       {object}  errors.ErrorResponse
// @Router       /subscriptions [get]
func (h *Handler) ListSubscriptions(c *gin.Context) {
	ownerID := c.Query("owner_id")
	if ownerID == "" {
		h.HandleError(c, errors.ErrValidation.
			WithDetail("field", "owner_id").
			WithDetail("message", "owner_id is required"))
		return
	}

	status := subscription.Status(c.Query("status"))
	if status != "" && !status.Valid() {
		h.HandleError(c, errors.ErrValidation.
			WithDetail("field", "status").
			WithDetail("message", "unknown subscription status "+string(status)))
		return
	}

	subs := h.hub.Store.ListByOwner(ownerID, subscription.ListFilter{
		Status: status,
		Topic:  c.Query("topic"),
	})
	c.JSON(http.StatusOK, subs)
}

// GetSubscription godoc
// @Summary      Get a subscription
// @Tags         subscriptions
// @Produce      json
// @Param        id   path      string  true  "Subscription ID"
// @Success      200  {object}  subscription.Subscription
// @Failure      404  {object}  errors.ErrorResponse
// @Router       /subscriptions/{id} [get]
func (h *Handler) GetSubscription(c *gin.Context) {
	sub, err := h.hub.Store.Get(c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// UpdateSubscription godoc
// @Summary      Update a subscription
// @Description  Patch filters, expression, config or status. Omitted fields are left untouched.
// @Tags         subscriptions
// @Accept       json
// @Produce      json
// @Param        id      path      string                      true  "Subscription ID"
// @Param        update  body      subscription.UpdateRequest  true  "Fields to change"
// @Success      200     {object}  subscription.Subscription
// @Failure      400     {object}  errors.ErrorResponse
// @Failure      404     {object}  errors.ErrorResponse
// @Router       /subscriptions/{id} [patch]
func (h *Handler) UpdateSubscription(c *gin.Context) {
	var req subscription.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	sub, err := h.hub.Store.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// DeleteSubscription godoc
// @Summary      Delete a subscription
// @Tags         subscriptions
// @Param        id   path  string  true  "Subscription ID"
// @Success      204  "No Content"
// @Failure      404  {object}  errors.ErrorResponse
// @Router       /subscriptions/{id} [delete]
func (h *Handler) DeleteSubscription(c *gin.Context) {
	id := c.Param("id")
	sub, err := h.hub.Store.Get(id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if err := h.hub.Store.Delete(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	if sub.ConnectionID != "" {
		_ = h.hub.Registry.RemoveTopic(sub.ConnectionID, sub.TopicPattern)
	}
	c.Status(http.StatusNoContent)
}

// PauseSubscription godoc
// @Summary      Pause a subscription
// @Description  Stop deliveries. Persistent subscriptions keep queuing matched events.
// @Tags         subscriptions
// @Produce      json
// @Param        id   path      string  true  "Subscription ID"
// @Success      200  {object}  subscription.Subscription
// @Failure      404  {object}  errors.ErrorResponse
// @Failure      409  {object}  errors.ErrorResponse
// @Router       /subscriptions/{id}/pause [post]
func (h *Handler) PauseSubscription(c *gin.Context) {
	sub, err := h.hub.Store.Pause(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// ResumeSubscription godoc
// @Summary      Resume a subscription
// @Tags         subscriptions
// @Produce      json
// @Param        id   path      string  true  "Subscription ID"
// @Success      200  {object}  subscription.Subscription
// @Failure      404  {object}  errors.ErrorResponse
// @Failure      409  {object}  errors.ErrorResponse
// @Router       /subscriptions/{id}/resume [post]
func (h *Handler) ResumeSubscription(c *gin.Context) {
	sub, err := h.hub.Store.Resume(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}
