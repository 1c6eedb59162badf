package document

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tip-mds/clinic-api/internal/handler"
	"github.com/tip-mds/clinic-api/internal/middleware"
	"github.com/tip-mds/clinic-api/internal/model"
	"github.com/tip-mds/clinic-api/internal/service/document"
)

type Handler struct {
	svc *document.Service
}

func NewHandler(svc *document.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) IssueCertificate(c *gin.Context) {
	var req model.IssueCertificateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	doctorID, _ := middleware.CurrentUserID(c)

	cert, err := h.svc.IssueCertificate(c.Request.Context(), doctorID, &req)
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(cert))
}

func (h *Handler) IssuePrescription(c *gin.Context) {
	var req model.IssuePrescriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	doctorID, _ := middleware.CurrentUserID(c)

	rx, err := h.svc.IssuePrescription(c.Request.Context(), doctorID, &req)
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(rx))
}

func (h *Handler) GetCertificate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid certificate id"))
		return
	}
	userID, _ := middleware.CurrentUserID(c)
	role, _ := middleware.CurrentRole(c)

	cert, err := h.svc.GetCertificate(c.Request.Context(), id, userID, role)
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(cert))
}

// DownloadCertificate streams the rendered PDF.
func (h *Handler) DownloadCertificate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid certificate id"))
		return
	}
	userID, _ := middleware.CurrentUserID(c)
	role, _ := middleware.CurrentRole(c)

	cert, err := h.svc.GetCertificate(c.Request.Context(), id, userID, role)
	if err != nil {
		handler.WriteError(c, err)
		return
	}

	pdfBytes, err := h.svc.CertificatePDF(c.Request.Context(), cert)
	if err != nil {
		handler.WriteError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.pdf"`, cert.CertificateNumber))
	c.Data(http.StatusOK, "application/pdf", pdfBytes)
}

// VerifyCertificate is unauthenticated so third parties can check a
// certificate by its printed number. The response carries validity and the
// issue metadata only.
func (h *Handler) VerifyCertificate(c *gin.Context) {
	cert, valid, err := h.svc.VerifyCertificate(c.Request.Context(), c.Param("number"))
	if err != nil {
		handler.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{
		"certificate_number": cert.CertificateNumber,
		"title":              cert.Title,
		"date_issued":        cert.DateIssued,
		"valid_until":        cert.ValidUntil,
		"status":             cert.Status,
		"valid":              valid,
	}))
}

func (h *Handler) ListCertificates(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)
	role, _ := middleware.CurrentRole(c)

	studentID := userID
	if role.IsStaff() {
		studentID = uuid.Nil
		if sid := c.Query("student_id"); sid != "" {
			id, err := uuid.Parse(sid)
			if err != nil {
				c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid student id"))
				return
			}
			studentID = id
		}
	}

	certs, err := h.svc.ListCertificates(c.Request.Context(), studentID)
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(certs))
}

type revokeRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

func (h *Handler) RevokeCertificate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid certificate id"))
		return
	}

	var req revokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	cert, err := h.svc.RevokeCertificate(c.Request.Context(), id, req.Reason)
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(cert))
}

func (h *Handler) GetPrescription(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid prescription id"))
		return
	}
	userID, _ := middleware.CurrentUserID(c)
	role, _ := middleware.CurrentRole(c)

	rx, err := h.svc.GetPrescription(c.Request.Context(), id, userID, role)
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(rx))
}

func (h *Handler) ListPrescriptions(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)
	role, _ := middleware.CurrentRole(c)

	studentID := userID
	if role.IsStaff() {
		studentID = uuid.Nil
		if sid := c.Query("student_id"); sid != "" {
			id, err := uuid.Parse(sid)
			if err != nil {
				c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid student id"))
				return
			}
			studentID = id
		}
	}

	prescriptions, err := h.svc.ListPrescriptions(c.Request.Context(), studentID)
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(prescriptions))
}

func (h *Handler) CreateTemplate(c *gin.Context) {
	var tpl model.Template
	if err := c.ShouldBindJSON(&tpl); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	userID, _ := middleware.CurrentUserID(c)
	tpl.CreatedBy = &userID

	if err := h.svc.CreateTemplate(c.Request.Context(), &tpl); err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(&tpl))
}

func (h *Handler) ListTemplates(c *gin.Context) {
	templates, err := h.svc.ListTemplates(c.Request.Context(), model.TemplateType(c.Query("type")))
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(templates))
}
