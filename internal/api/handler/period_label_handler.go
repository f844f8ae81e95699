package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"juku-attendance/backend/internal/dto"
	"juku-attendance/backend/internal/service"
	"juku-attendance/backend/pkg/response"
)

// PeriodLabelHandler 时段标签 HTTP 处理器
type PeriodLabelHandler struct {
	periodLabelSvc service.PeriodLabelService
}

// NewPeriodLabelHandler 创建 PeriodLabelHandler
func NewPeriodLabelHandler(periodLabelSvc service.PeriodLabelService) *PeriodLabelHandler {
	return &PeriodLabelHandler{periodLabelSvc: periodLabelSvc}
}

// Get 获取教室时段标签
// GET /api/v1/classrooms/:code/period-labels
func (h *PeriodLabelHandler) Get(c *gin.Context) {
	code, ok := classroomParam(c)
	if !ok {
		return
	}

	result, err := h.periodLabelSvc.Get(c.Request.Context(), code)
	if err != nil {
		h.handlePeriodLabelError(c, err)
		return
	}

	response.OK(c, result)
}

// Update 覆盖教室时段标签
// PUT /api/v1/classrooms/:code/period-labels
func (h *PeriodLabelHandler) Update(c *gin.Context) {
	code, ok := classroomParam(c)
	if !ok {
		return
	}

	var req dto.UpdatePeriodLabelsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.periodLabelSvc.Update(c.Request.Context(), code, &req)
	if err != nil {
		h.handlePeriodLabelError(c, err)
		return
	}

	response.OK(c, result)
}

func (h *PeriodLabelHandler) handlePeriodLabelError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrPeriodLabelsNotConfigured):
		response.NotFound(c, 20201, err.Error())
	case errors.Is(err, service.ErrPeriodLabelEmpty):
		response.BadRequest(c, 20202, err.Error())
	case errors.Is(err, service.ErrPeriodLabelDuplicate):
		response.BadRequest(c, 20203, err.Error())
	case errors.Is(err, service.ErrPeriodLabelTooMany):
		response.BadRequest(c, 20204, err.Error())
	default:
		_ = c.Error(err)
		response.InternalError(c)
	}
}
