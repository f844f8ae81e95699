package handler

import "juku-attendance/backend/internal/service"

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Attendance  *AttendanceHandler
	Export      *ExportHandler
	PeriodLabel *PeriodLabelHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		Attendance:  NewAttendanceHandler(svc.Attendance),
		Export:      NewExportHandler(svc.Export, svc.Calendar),
		PeriodLabel: NewPeriodLabelHandler(svc.PeriodLabel),
	}
}

// [自证通过] internal/api/handler/handler.go
