package model

// AttendanceEntry 前端使用的统一出欠条目（常规 + 调课），不落库
type AttendanceEntry struct {
	StudentID   string   `json:"student_id"`
	Name        string   `json:"name,omitempty"`
	Status      string   `json:"status"`
	PeriodLabel string   `json:"period_label"`
	Period      int      `json:"period"` // 1-based，对应 periodN
	Date        string   `json:"date"`   // YYYY-MM-DD
	Teacher     *Teacher `json:"teacher"`
	ClassType   string   `json:"class_type,omitempty"`
	Duration    string   `json:"duration,omitempty"`
	Seat        string   `json:"seat,omitempty"`
	Grade       string   `json:"grade,omitempty"`
	Subject     string   `json:"subject,omitempty"`
}

// TeacherCode 老师代码，无老师时为空
func (e AttendanceEntry) TeacherCode() string {
	if e.Teacher == nil {
		return ""
	}
	return e.Teacher.Code
}

// IsMakeup 是否为调课条目
func (e AttendanceEntry) IsMakeup() bool {
	return e.Status == StatusMakeup
}

// SameSlot 判断两条目是否指向同一上课记录（学生 + 日期 + 时段 + 状态）
func (e AttendanceEntry) SameSlot(o AttendanceEntry) bool {
	return e.StudentID == o.StudentID &&
		e.Date == o.Date &&
		e.PeriodLabel == o.PeriodLabel &&
		e.Status == o.Status
}

// EditSessionKind 编辑会话类型
type EditSessionKind string

const (
	EditSessionRegular EditSessionKind = "regular"
	EditSessionMakeup  EditSessionKind = "makeup"
)

// EditSession 当前编辑目标：常规列表或调课列表中的某一条
type EditSession struct {
	Kind   EditSessionKind `json:"kind"   binding:"required,oneof=regular makeup"`
	Target AttendanceEntry `json:"target"`
}

// AttendancePatch 对条目的部分修改，nil 表示不修改
type AttendancePatch struct {
	Status      *string `json:"status,omitempty"`
	PeriodLabel *string `json:"period_label,omitempty"`
	Date        *string `json:"date,omitempty"`
	TeacherCode *string `json:"teacher_code,omitempty"`
	ClassType   *string `json:"class_type,omitempty"`
	Duration    *string `json:"duration,omitempty"`
	Seat        *string `json:"seat,omitempty"`
	Grade       *string `json:"grade,omitempty"`
	Subject     *string `json:"subject,omitempty"`
}

// Apply 将修改覆盖到条目副本上（teacher 与 period 由调用方重新计算）
func (p AttendancePatch) Apply(e AttendanceEntry) AttendanceEntry {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&e.Status, p.Status)
	set(&e.PeriodLabel, p.PeriodLabel)
	set(&e.Date, p.Date)
	set(&e.ClassType, p.ClassType)
	set(&e.Duration, p.Duration)
	set(&e.Seat, p.Seat)
	set(&e.Grade, p.Grade)
	set(&e.Subject, p.Subject)
	return e
}

// HasDate 修改中是否带有日期（无日期时只更新内存列表）
func (p AttendancePatch) HasDate() bool {
	return p.Date != nil && *p.Date != ""
}
