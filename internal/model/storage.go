package model

import "gorm.io/datatypes"

// ── PostgreSQL 文档存储表 ──
// 与 Firestore 的集合/文档结构一一对应，文档体以 JSONB 保存

// ScheduleDocument 排课文档表 — 对应 schedule_documents
// Collection: dailySchedules | weeklySchedules
type ScheduleDocument struct {
	Collection string                          `gorm:"type:varchar(32);primaryKey"  json:"collection"`
	DocID      string                          `gorm:"type:varchar(128);primaryKey" json:"doc_id"`
	Data       datatypes.JSONType[ScheduleDoc] `gorm:"type:jsonb;not null"          json:"data"`
	VersionedModel
}

func (ScheduleDocument) TableName() string { return "schedule_documents" }

// MakeupLessonRecord 调课文档表 — 对应 makeup_lessons
type MakeupLessonRecord struct {
	StudentID string                       `gorm:"type:varchar(64);primaryKey"  json:"student_id"`
	DocID     string                       `gorm:"type:varchar(128);primaryKey" json:"doc_id"`
	Lessons   datatypes.JSONType[[]Lesson] `gorm:"type:jsonb;not null"          json:"lessons"`
	VersionedModel
}

func (MakeupLessonRecord) TableName() string { return "makeup_lessons" }

// MakeupLessonArchive 调课归档表 — 对应 makeup_lesson_archives（只写不合并）
type MakeupLessonArchive struct {
	StudentID string                       `gorm:"type:varchar(64);primaryKey"  json:"student_id"`
	DocID     string                       `gorm:"type:varchar(128);primaryKey" json:"doc_id"`
	Lessons   datatypes.JSONType[[]Lesson] `gorm:"type:jsonb;not null"          json:"lessons"`
	BaseModel
}

func (MakeupLessonArchive) TableName() string { return "makeup_lesson_archives" }

// PeriodLabelSet 时段标签表 — 对应 period_label_sets
// Collection: periodLabelsBySchool（DocID=教室代码）| common（DocID=periodLabels）
type PeriodLabelSet struct {
	Collection string                            `gorm:"type:varchar(32);primaryKey"  json:"collection"`
	DocID      string                            `gorm:"type:varchar(128);primaryKey" json:"doc_id"`
	Labels     datatypes.JSONType[[]PeriodLabel] `gorm:"type:jsonb;not null"          json:"labels"`
	BaseModel
}

func (PeriodLabelSet) TableName() string { return "period_label_sets" }

// [自证通过] internal/model/storage.go
