package verification

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rwaswift/compliance-api/internal/handler"
	"github.com/rwaswift/compliance-api/internal/middleware"
	"github.com/rwaswift/compliance-api/internal/model"
	verificationService "github.com/rwaswift/compliance-api/internal/service/verification"
)

type Handler struct {
	service *verificationService.Service
}

func NewHandler(service *verificationService.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	verify := r.Group("/verify")
	{
		verify.POST("", h.CreateVerification)
		verify.GET("", h.ListVerifications)
		verify.GET("/stats", h.GetStats)
		verify.GET("/:id", h.GetVerification)
	}
}

// createResponse wraps the pending record with polling links.
type createResponse struct {
	*model.Verification
	Links map[string]string `json:"links"`
}

func (h *Handler) CreateVerification(c *gin.Context) {
	orgID, ok := middleware.OrganizationID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing organization context"))
		return
	}

	var req model.CreateVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	ctx := verificationService.WithClientIP(c.Request.Context(), c.ClientIP())
	v, err := h.service.Create(ctx, orgID, &req)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(createResponse{
		Verification: v,
		Links: map[string]string{
			"self": fmt.Sprintf("/api/v1/verify/%s", v.ID),
		},
	}))
}

func (h *Handler) GetVerification(c *gin.Context) {
	orgID, ok := middleware.OrganizationID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing organization context"))
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid verification ID"))
		return
	}

	v, err := h.service.Get(c.Request.Context(), id, orgID)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(v))
}

func (h *Handler) ListVerifications(c *gin.Context) {
	orgID, ok := middleware.OrganizationID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing organization context"))
		return
	}

	var filter model.VerificationFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	verifications, total, err := h.service.List(c.Request.Context(), orgID, &filter)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(handler.ListResponse{
		Items:  verifications,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}))
}

func (h *Handler) GetStats(c *gin.Context) {
	orgID, ok := middleware.OrganizationID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing organization context"))
		return
	}

	stats, err := h.service.Stats(c.Request.Context(), orgID)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(stats))
}
