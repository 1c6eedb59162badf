package request

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tip-mds/clinic-api/internal/handler"
	"github.com/tip-mds/clinic-api/internal/middleware"
	"github.com/tip-mds/clinic-api/internal/model"
	"github.com/tip-mds/clinic-api/internal/service/request"
)

type Handler struct {
	svc *request.Service
}

func NewHandler(svc *request.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Create(c *gin.Context) {
	var req model.CreateUpdateRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	userID, _ := middleware.CurrentUserID(c)

	ur, err := h.svc.Create(c.Request.Context(), userID, &req)
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(ur))
}

func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid request id"))
		return
	}
	userID, _ := middleware.CurrentUserID(c)
	role, _ := middleware.CurrentRole(c)

	ur, err := h.svc.Get(c.Request.Context(), id, userID, role)
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(ur))
}

// ListMine returns the caller's own requests.
func (h *Handler) ListMine(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)
	requests, err := h.svc.List(c.Request.Context(), userID, model.UpdateRequestStatus(c.Query("status")))
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(requests))
}

// ListPending returns the staff review queue.
func (h *Handler) ListPending(c *gin.Context) {
	requests, err := h.svc.List(c.Request.Context(), uuid.Nil, model.UpdateRequestStatusPending)
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(requests))
}

func (h *Handler) Review(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid request id"))
		return
	}

	var req model.ReviewUpdateRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	if req.ApplyChanges == nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("apply_changes is required"))
		return
	}
	reviewerID, _ := middleware.CurrentUserID(c)

	ur, err := h.svc.Review(c.Request.Context(), id, reviewerID, *req.ApplyChanges, req.Notes)
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(ur))
}
