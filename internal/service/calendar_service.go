package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"go.uber.org/zap"

	"juku-attendance/backend/internal/model"
)

// ── 日历订阅 ──────────────────────────────────────────────
//
// 将学生出欠列表输出为 iCalendar (RFC 5545)：
//   - 每个条目一个 VEVENT，UID 由教室 + 学生 + 日期 + 时段确定，重复订阅不产生重复事件
//   - 时段标签带时间（"13:00-14:20"）时生成定时事件，否则生成全天事件
//   - 欠席条目标记为 CANCELLED
// ─────────────────────────────────────────────────────────────

// CalendarService 日历订阅业务接口
type CalendarService interface {
	// StudentCalendar 生成学生出欠的 ICS 文本
	StudentCalendar(ctx context.Context, classroomCode, studentID, from, to string) (string, error)
}

type calendarService struct {
	attendance AttendanceService
	labels     PeriodLabelService
	loc        *time.Location
	logger     *zap.Logger
}

// NewCalendarService 创建 CalendarService 实例
func NewCalendarService(attendance AttendanceService, labels PeriodLabelService, loc *time.Location, logger *zap.Logger) CalendarService {
	if loc == nil {
		loc = time.UTC
	}
	return &calendarService{attendance: attendance, labels: labels, loc: loc, logger: logger}
}

func (s *calendarService) StudentCalendar(ctx context.Context, classroomCode, studentID, from, to string) (string, error) {
	list, err := s.attendance.ListStudentAttendance(ctx, classroomCode, studentID, from, to)
	if err != nil {
		return "", err
	}
	labels, err := s.labels.Labels(ctx, classroomCode)
	if err != nil {
		return "", err
	}
	timeByLabel := make(map[string]string, len(labels))
	for _, l := range labels {
		timeByLabel[l.Label] = l.Time
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//juku-attendance//attendance calendar//JA")
	cal.SetXWRCalName(fmt.Sprintf("%s %s", classroomCode, studentID))
	cal.SetXWRTimezone(s.loc.String())

	now := time.Now().UTC()
	skipped := 0
	for _, e := range list.Entries {
		day, err := time.ParseInLocation(dateLayout, e.Date, s.loc)
		if err != nil {
			skipped++
			continue
		}

		uid := fmt.Sprintf("%s-%s-%s-%d@juku-attendance", classroomCode, e.StudentID, e.Date, e.Period)
		event := cal.AddEvent(uid)
		event.SetDtStampTime(now)
		event.SetSummary(eventSummary(e))
		if desc := eventDescription(e); desc != "" {
			event.SetDescription(desc)
		}
		if e.Status == model.StatusAbsent {
			event.SetStatus(ics.ObjectStatusCancelled)
		}

		start, end, ok := parseTimeRange(timeByLabel[e.PeriodLabel])
		if ok {
			event.SetStartAt(day.Add(start))
			event.SetEndAt(day.Add(end))
		} else {
			event.SetAllDayStartAt(day)
			event.SetAllDayEndAt(day.AddDate(0, 0, 1))
		}
	}
	if skipped > 0 {
		s.logger.Warn("日历生成时跳过日期无效的条目", zap.String("student_id", studentID), zap.Int("skipped", skipped))
	}

	return cal.Serialize(), nil
}

func eventSummary(e model.AttendanceEntry) string {
	parts := make([]string, 0, 3)
	if e.PeriodLabel != "" {
		parts = append(parts, e.PeriodLabel)
	}
	if e.Subject != "" {
		parts = append(parts, e.Subject)
	}
	parts = append(parts, "("+e.Status+")")
	return strings.Join(parts, " ")
}

func eventDescription(e model.AttendanceEntry) string {
	var lines []string
	if e.Teacher != nil && e.Teacher.Name != "" {
		lines = append(lines, "老师: "+e.Teacher.Name)
	}
	if e.ClassType != "" {
		lines = append(lines, "班型: "+e.ClassType)
	}
	if e.Duration != "" {
		lines = append(lines, "时长: "+e.Duration)
	}
	if e.Seat != "" {
		lines = append(lines, "座位: "+e.Seat)
	}
	return strings.Join(lines, "\n")
}

// timeRangePattern "13:00-14:20" / "13:00〜14:20" / "13:00 ~ 14:20"
var timeRangePattern = regexp.MustCompile(`^\s*(\d{1,2}):(\d{2})\s*[-~〜～]\s*(\d{1,2}):(\d{2})\s*$`)

// parseTimeRange 解析时段时间，返回相对当天零点的起止偏移
func parseTimeRange(s string) (time.Duration, time.Duration, bool) {
	m := timeRangePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, false
	}
	start, ok1 := clock(m[1], m[2])
	end, ok2 := clock(m[3], m[4])
	if !ok1 || !ok2 || end <= start {
		return 0, 0, false
	}
	return start, end, true
}

func clock(h, m string) (time.Duration, bool) {
	var hh, mm int
	if _, err := fmt.Sscanf(h+":"+m, "%d:%d", &hh, &mm); err != nil {
		return 0, false
	}
	if hh > 23 || mm > 59 {
		return 0, false
	}
	return time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute, true
}
