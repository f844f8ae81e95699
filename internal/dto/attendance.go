package dto

import "juku-attendance/backend/internal/model"

// ── 出欠编辑 ──

// SaveAttendanceRequest 保存出欠修改请求
// attendance_list 为前端当前持有的完整列表（常规 + 调课），服务端据此返回更新后的列表
type SaveAttendanceRequest struct {
	Session        model.EditSession       `json:"session"         binding:"required"`
	Proposed       model.AttendancePatch   `json:"proposed"`
	AttendanceList []model.AttendanceEntry `json:"attendance_list" binding:"required,min=1"`
	Teachers       []model.Teacher         `json:"teachers"`
	PeriodLabels   []model.PeriodLabel     `json:"period_labels"` // 为空时使用教室配置
	StudentName    string                  `json:"student_name"`
}

// AttendanceRangeQuery 出欠查询日期范围（闭区间，YYYY-MM-DD）
type AttendanceRangeQuery struct {
	From string `form:"from" binding:"required"`
	To   string `form:"to"   binding:"required"`
}

// ── 时段标签 ──

// UpdatePeriodLabelsRequest 覆盖教室时段标签
type UpdatePeriodLabelsRequest struct {
	Labels []model.PeriodLabel `json:"labels" binding:"required,min=1,max=8,dive"`
}
