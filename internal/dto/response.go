package dto

import "juku-attendance/backend/internal/model"

// ── 出欠模块响应 ──

// SaveAttendanceResponse 保存结果
type SaveAttendanceResponse struct {
	UpdatedList []model.AttendanceEntry `json:"updated_list"`
	Persisted   bool                    `json:"persisted"` // 是否写入了文档（未带日期的修改只更新列表）
}

// StudentAttendanceResponse 学生在日期范围内的出欠列表
type StudentAttendanceResponse struct {
	ClassroomCode string                  `json:"classroom_code"`
	StudentID     string                  `json:"student_id"`
	From          string                  `json:"from"`
	To            string                  `json:"to"`
	Entries       []model.AttendanceEntry `json:"entries"`
}

// DailyScheduleResponse 某日排课
type DailyScheduleResponse struct {
	DocID        string              `json:"doc_id"`
	Date         string              `json:"date"`
	Weekday      int                 `json:"weekday"`
	Persisted    bool                `json:"persisted"`     // 日文档是否已存在
	FromTemplate bool                `json:"from_template"` // 内容来自周模板
	PeriodLabels []model.PeriodLabel `json:"period_labels"`
	Rows         []model.ScheduleRow `json:"rows"`
}

// PeriodLabelsResponse 教室时段标签
type PeriodLabelsResponse struct {
	ClassroomCode string              `json:"classroom_code"`
	Labels        []model.PeriodLabel `json:"labels"`
}

// HealthResponse 健康检查
type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}
