package model

import (
	"strconv"
	"strings"
)

// PeriodLabel 时段标签（如 "2限"），下标 i 对应 period{i+1}
type PeriodLabel struct {
	Label string `json:"label"          firestore:"label"`
	Time  string `json:"time,omitempty" firestore:"time,omitempty"`
}

// PeriodLabelDoc periodLabelsBySchool/{classroomCode} 与 common/periodLabels 文档
type PeriodLabelDoc struct {
	Labels []PeriodLabel `json:"labels" firestore:"labels"`
}

// PeriodKey 1-based 序号 → "periodN"
func PeriodKey(n int) string {
	return "period" + strconv.Itoa(n)
}

// ParsePeriodKey "periodN" → N；非法时返回 0
func ParsePeriodKey(key string) int {
	s, ok := strings.CutPrefix(key, "period")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > MaxPeriods {
		return 0
	}
	return n
}
