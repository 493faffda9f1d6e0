package appointment

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ayurflow/clinic-api/internal/handler"
	"github.com/ayurflow/clinic-api/internal/model"
	"github.com/ayurflow/clinic-api/internal/service/appointment"
	apperrors "github.com/ayurflow/clinic-api/pkg/errors"
	"github.com/ayurflow/clinic-api/pkg/httputil"
)

type Handler struct {
	service *appointment.Service
}

func NewHandler(service *appointment.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	appointments := r.Group("/appointments")
	{
		appointments.POST("", h.Create)
		appointments.GET("", h.List)
		appointments.GET("/availability", h.GetAvailability)
		appointments.GET("/:id", h.Get)
		appointments.PATCH("/:id", h.Update)
		appointments.POST("/:id/confirm", h.Confirm)
		appointments.POST("/:id/checkin", h.CheckIn)
		appointments.POST("/:id/start", h.Start)
		appointments.POST("/:id/complete", h.Complete)
		appointments.POST("/:id/cancel", h.Cancel)
		appointments.POST("/:id/no-show", h.NoShow)
	}
}

func (h *Handler) Create(c *gin.Context) {
	var req model.CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.RespondBindError(c, err)
		return
	}

	apt, err := h.service.Create(c.Request.Context(), handler.SessionFrom(c), &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	handler.RespondCreated(c, apt)
}

func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.RespondError(c, apperrors.NewValidation("id", "invalid appointment ID"))
		return
	}

	apt, err := h.service.Get(c.Request.Context(), handler.SessionFrom(c), id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	handler.RespondOK(c, apt)
}

func (h *Handler) List(c *gin.Context) {
	filters, err := parseFilters(c)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	appointments, total, err := h.service.List(c.Request.Context(), handler.SessionFrom(c), filters)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	page := httputil.PageRequest{Page: filters.Page, PageSize: filters.PageSize}
	handler.RespondOK(c, gin.H{
		"appointments": appointments,
		"pagination":   httputil.NewPagination(page, total),
	})
}

func (h *Handler) GetAvailability(c *gin.Context) {
	doctorID, err := uuid.Parse(c.Query("doctor_id"))
	if err != nil {
		handler.RespondError(c, apperrors.NewValidation("doctor_id", "invalid doctor ID"))
		return
	}
	date := c.Query("date")
	if date == "" {
		handler.RespondError(c, apperrors.NewValidation("date", "required"))
		return
	}

	availability, err := h.service.GetDoctorAvailability(c.Request.Context(), handler.SessionFrom(c), doctorID, date)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	handler.RespondOK(c, availability)
}

func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.RespondError(c, apperrors.NewValidation("id", "invalid appointment ID"))
		return
	}

	var req model.UpdateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.RespondBindError(c, err)
		return
	}

	apt, err := h.service.Update(c.Request.Context(), handler.SessionFrom(c), id, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	handler.RespondOK(c, apt)
}

func (h *Handler) Confirm(c *gin.Context) {
	h.transition(c, h.service.Confirm)
}

func (h *Handler) CheckIn(c *gin.Context) {
	h.transition(c, h.service.CheckIn)
}

func (h *Handler) Start(c *gin.Context) {
	h.transition(c, h.service.Start)
}

func (h *Handler) NoShow(c *gin.Context) {
	h.transition(c, h.service.MarkNoShow)
}

func (h *Handler) Complete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.RespondError(c, apperrors.NewValidation("id", "invalid appointment ID"))
		return
	}

	var req model.CompleteAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.RespondBindError(c, err)
		return
	}

	apt, err := h.service.Complete(c.Request.Context(), handler.SessionFrom(c), id, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	handler.RespondOK(c, apt)
}

func (h *Handler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.RespondError(c, apperrors.NewValidation("id", "invalid appointment ID"))
		return
	}

	// Body is optional; a bare cancel carries no reason.
	var req model.CancelAppointmentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			handler.RespondBindError(c, err)
			return
		}
	}

	apt, err := h.service.Cancel(c.Request.Context(), handler.SessionFrom(c), id, req.Reason)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	handler.RespondOK(c, apt)
}

type transitionFunc func(ctx context.Context, sess *model.Session, id uuid.UUID) (*model.Appointment, error)

func (h *Handler) transition(c *gin.Context, fn transitionFunc) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.RespondError(c, apperrors.NewValidation("id", "invalid appointment ID"))
		return
	}

	apt, err := fn(c.Request.Context(), handler.SessionFrom(c), id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	handler.RespondOK(c, apt)
}

func parseFilters(c *gin.Context) (*model.AppointmentFilters, error) {
	filters := &model.AppointmentFilters{}

	if v := c.Query("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, apperrors.NewValidation("patient_id", "invalid patient ID")
		}
		filters.PatientID = &id
	}
	if v := c.Query("doctor_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, apperrors.NewValidation("doctor_id", "invalid doctor ID")
		}
		filters.DoctorID = &id
	}
	if v := c.Query("status"); v != "" {
		filters.Status = model.AppointmentStatus(v)
	}
	filters.DateFrom = c.Query("date_from")
	filters.DateTo = c.Query("date_to")

	page := httputil.ParsePageRequest(c)
	filters.Page = page.Page
	filters.PageSize = page.PageSize
	return filters, nil
}
