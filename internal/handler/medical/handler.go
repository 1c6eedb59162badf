package medical

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tip-mds/clinic-api/internal/handler"
	"github.com/tip-mds/clinic-api/internal/middleware"
	"github.com/tip-mds/clinic-api/internal/model"
	"github.com/tip-mds/clinic-api/internal/service/medical"
)

type Handler struct {
	svc *medical.Service
}

func NewHandler(svc *medical.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Create(c *gin.Context) {
	var req model.CreateMedicalRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	doctorID, _ := middleware.CurrentUserID(c)

	rec, err := h.svc.Create(c.Request.Context(), &req, doctorID)
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(rec))
}

func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid record id"))
		return
	}
	userID, _ := middleware.CurrentUserID(c)
	role, _ := middleware.CurrentRole(c)

	rec, err := h.svc.Get(c.Request.Context(), id, userID, role)
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(rec))
}

func (h *Handler) List(c *gin.Context) {
	filters := &model.MedicalRecordFilters{
		RecordType: model.RecordType(c.Query("record_type")),
		Status:     model.RecordStatus(c.Query("status")),
	}
	if sid := c.Query("student_id"); sid != "" {
		id, err := uuid.Parse(sid)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid student id"))
			return
		}
		filters.StudentID = id
	}
	if from := c.Query("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("from must be YYYY-MM-DD"))
			return
		}
		filters.From = t
	}
	if to := c.Query("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("to must be YYYY-MM-DD"))
			return
		}
		filters.To = t
	}

	userID, _ := middleware.CurrentUserID(c)
	role, _ := middleware.CurrentRole(c)

	records, err := h.svc.List(c.Request.Context(), filters, userID, role)
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(records))
}

func (h *Handler) Approve(c *gin.Context) {
	h.resolve(c, true)
}

func (h *Handler) Decline(c *gin.Context) {
	h.resolve(c, false)
}

func (h *Handler) resolve(c *gin.Context, approve bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid record id"))
		return
	}
	reviewerID, _ := middleware.CurrentUserID(c)

	var (
		rec *model.MedicalRecord
	)
	if approve {
		rec, err = h.svc.Approve(c.Request.Context(), id, reviewerID)
	} else {
		rec, err = h.svc.Decline(c.Request.Context(), id, reviewerID)
	}
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(rec))
}
