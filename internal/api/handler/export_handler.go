package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"juku-attendance/backend/internal/dto"
	"juku-attendance/backend/internal/service"
	"juku-attendance/backend/pkg/response"
)

// ExportHandler 导出模块 HTTP 处理器（Excel 下载与日历订阅）
type ExportHandler struct {
	exportSvc   service.ExportService
	calendarSvc service.CalendarService
}

// NewExportHandler 创建 ExportHandler
func NewExportHandler(exportSvc service.ExportService, calendarSvc service.CalendarService) *ExportHandler {
	return &ExportHandler{exportSvc: exportSvc, calendarSvc: calendarSvc}
}

// ExportAttendance 导出学生出欠表
// GET /api/v1/classrooms/:code/students/:studentId/attendance/export?from=&to=
func (h *ExportHandler) ExportAttendance(c *gin.Context) {
	code, ok := classroomParam(c)
	if !ok {
		return
	}
	var q dto.AttendanceRangeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, 10001, "from 与 to 不能为空")
		return
	}

	buf, filename, err := h.exportSvc.ExportAttendance(c.Request.Context(), code, c.Param("studentId"), q.From, q.To)
	if err != nil {
		h.handleExportError(c, err)
		return
	}

	// 设置下载响应头
	encodedFilename := url.QueryEscape(filename)
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+encodedFilename)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

// StudentCalendar 学生出欠日历订阅
// GET /api/v1/classrooms/:code/students/:studentId/calendar.ics?from=&to=
func (h *ExportHandler) StudentCalendar(c *gin.Context) {
	code, ok := classroomParam(c)
	if !ok {
		return
	}
	var q dto.AttendanceRangeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, 10001, "from 与 to 不能为空")
		return
	}

	body, err := h.calendarSvc.StudentCalendar(c.Request.Context(), code, c.Param("studentId"), q.From, q.To)
	if err != nil {
		h.handleExportError(c, err)
		return
	}

	c.Header("Content-Disposition", "inline; filename=attendance.ics")
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(body))
}

func (h *ExportHandler) handleExportError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrExportNoEntries):
		response.NotFound(c, 16101, "该期间没有出欠记录")
	case errors.Is(err, service.ErrDateRangeInvalid):
		response.BadRequest(c, 20110, err.Error())
	case errors.Is(err, service.ErrInvalidDate):
		response.BadRequest(c, 20108, err.Error())
	case errors.Is(err, service.ErrPeriodLabelsNotConfigured):
		response.NotFound(c, 20201, err.Error())
	default:
		_ = c.Error(err)
		response.InternalError(c)
	}
}
