package webhook

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rwaswift/compliance-api/internal/handler"
	"github.com/rwaswift/compliance-api/internal/middleware"
	"github.com/rwaswift/compliance-api/internal/model"
	webhookService "github.com/rwaswift/compliance-api/internal/service/webhook"
)

type Handler struct {
	service *webhookService.Service
}

func NewHandler(service *webhookService.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	webhooks := r.Group("/webhooks")
	{
		webhooks.POST("", h.CreateWebhook)
		webhooks.GET("", h.ListWebhooks)
		webhooks.GET("/:id", h.GetWebhook)
		webhooks.PATCH("/:id", h.UpdateWebhook)
		webhooks.DELETE("/:id", h.DeleteWebhook)
		webhooks.POST("/:id/test", h.TestWebhook)
		webhooks.GET("/:id/deliveries", h.ListDeliveries)
	}
}

func (h *Handler) CreateWebhook(c *gin.Context) {
	orgID, ok := middleware.OrganizationID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing organization context"))
		return
	}

	var req model.CreateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	created, err := h.service.Register(c.Request.Context(), orgID, &req)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(created))
}

func (h *Handler) ListWebhooks(c *gin.Context) {
	orgID, ok := middleware.OrganizationID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing organization context"))
		return
	}

	webhooks, err := h.service.List(c.Request.Context(), orgID)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(webhooks))
}

func (h *Handler) GetWebhook(c *gin.Context) {
	orgID, id, ok := h.scoped(c)
	if !ok {
		return
	}

	wh, err := h.service.Get(c.Request.Context(), id, orgID)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(wh))
}

func (h *Handler) UpdateWebhook(c *gin.Context) {
	orgID, id, ok := h.scoped(c)
	if !ok {
		return
	}

	var req model.UpdateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	wh, err := h.service.Update(c.Request.Context(), id, orgID, &req)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(wh))
}

func (h *Handler) DeleteWebhook(c *gin.Context) {
	orgID, id, ok := h.scoped(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), id, orgID); err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"deleted": true}))
}

func (h *Handler) TestWebhook(c *gin.Context) {
	orgID, id, ok := h.scoped(c)
	if !ok {
		return
	}

	result, err := h.service.SendTest(c.Request.Context(), id, orgID)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(result))
}

func (h *Handler) ListDeliveries(c *gin.Context) {
	orgID, id, ok := h.scoped(c)
	if !ok {
		return
	}

	var page model.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	logs, err := h.service.DeliveryLogs(c.Request.Context(), id, orgID, page)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(logs))
}

func (h *Handler) scoped(c *gin.Context) (orgID, id uuid.UUID, ok bool) {
	orgID, ok = middleware.OrganizationID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing organization context"))
		return uuid.Nil, uuid.Nil, false
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid webhook ID"))
		return uuid.Nil, uuid.Nil, false
	}
	return orgID, id, true
}
