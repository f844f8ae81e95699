package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"juku-attendance/backend/internal/dto"
	"juku-attendance/backend/internal/service"
	apperrors "juku-attendance/backend/pkg/errors"
	"juku-attendance/backend/pkg/response"
)

// AttendanceHandler 出欠模块 HTTP 处理器
type AttendanceHandler struct {
	attendanceSvc service.AttendanceService
}

// NewAttendanceHandler 创建 AttendanceHandler
func NewAttendanceHandler(attendanceSvc service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendanceSvc: attendanceSvc}
}

// Save 保存出欠修改
// POST /api/v1/classrooms/:code/attendance/save
func (h *AttendanceHandler) Save(c *gin.Context) {
	code, ok := classroomParam(c)
	if !ok {
		return
	}

	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}
	role, ok := MustGetRole(c)
	if !ok {
		return
	}

	var req dto.SaveAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.attendanceSvc.Save(c.Request.Context(), code, service.Operator{UserID: userID, Role: role}, &req)
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}

	response.OK(c, result)
}

// ListStudentAttendance 查询学生出欠列表
// GET /api/v1/classrooms/:code/students/:studentId/attendance?from=&to=
func (h *AttendanceHandler) ListStudentAttendance(c *gin.Context) {
	code, ok := classroomParam(c)
	if !ok {
		return
	}

	var q dto.AttendanceRangeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, 10001, "from 与 to 不能为空")
		return
	}

	result, err := h.attendanceSvc.ListStudentAttendance(c.Request.Context(), code, c.Param("studentId"), q.From, q.To)
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}

	response.OK(c, result)
}

// GetDailySchedule 查询某日排课
// GET /api/v1/classrooms/:code/schedules/:date
func (h *AttendanceHandler) GetDailySchedule(c *gin.Context) {
	code, ok := classroomParam(c)
	if !ok {
		return
	}

	result, err := h.attendanceSvc.GetDailySchedule(c.Request.Context(), code, c.Param("date"))
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}

	response.OK(c, result)
}

// handleAttendanceError 业务错误 → HTTP 响应
// message 直接作为前端提示文本
func (h *AttendanceHandler) handleAttendanceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNoChanges):
		response.BadRequest(c, 20101, err.Error())
	case errors.Is(err, service.ErrDuplicateLesson):
		response.Conflict(c, 20102, err.Error())
	case errors.Is(err, service.ErrCapacityExceeded):
		response.Conflict(c, 20103, err.Error())
	case errors.Is(err, service.ErrUnknownPeriodLabel):
		response.BadRequest(c, 20104, err.Error())
	case errors.Is(err, service.ErrTeacherNotFound):
		response.BadRequest(c, 20105, err.Error())
	case errors.Is(err, service.ErrEntryNotInList):
		response.BadRequest(c, 20106, err.Error())
	case errors.Is(err, service.ErrSessionMismatch):
		response.BadRequest(c, 20107, err.Error())
	case errors.Is(err, service.ErrInvalidDate):
		response.BadRequest(c, 20108, err.Error())
	case errors.Is(err, service.ErrInvalidStatus):
		response.BadRequest(c, 20109, err.Error())
	case errors.Is(err, service.ErrDateRangeInvalid):
		response.BadRequest(c, 20110, err.Error())
	case errors.Is(err, service.ErrEditInProgress):
		response.Conflict(c, 20111, err.Error())
	case errors.Is(err, apperrors.ErrOptimisticLock):
		response.Conflict(c, 20112, err.Error())
	case errors.Is(err, service.ErrPeriodLabelsNotConfigured):
		response.NotFound(c, 20201, err.Error())
	case errors.Is(err, apperrors.ErrStoreUnavailable):
		response.Error(c, http.StatusServiceUnavailable, 50300, err.Error())
	default:
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, 50000, "保存失败，请稍后重试")
	}
}
