package repository

import (
	"context"

	"juku-attendance/backend/internal/model"
)

// 集合名称（与旧版 Firestore 路径保持一致）
const (
	CollectionDailySchedules  = "dailySchedules"
	CollectionWeeklySchedules = "weeklySchedules"
	CollectionStudents        = "students"
	SubCollectionMakeup       = "makeupLessons"
	SubCollectionArchive      = "makeupLessonsArchive"
	CollectionPeriodLabels    = "periodLabelsBySchool"
	CollectionCommon          = "common"
	DocCommonPeriodLabels     = "periodLabels"
)

// ScheduleStore 排课文档存储
//
// 所有对出欠相关文档的读写都在 RunInTx / ReadOnly 的回调中完成：
//   - RunInTx 内的全部写入要么一起提交，要么全部不生效
//   - 回调内必须先完成全部读取再写入（Firestore 事务的约束）
//   - 回调可能因并发冲突被重试，不得产生事务外的副作用
type ScheduleStore interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx ScheduleTx) error) error
	ReadOnly(ctx context.Context, fn func(ctx context.Context, tx ScheduleTx) error) error

	// GetPeriodLabels 读取教室时段标签，未配置时回退到 common/periodLabels
	GetPeriodLabels(ctx context.Context, classroomCode string) ([]model.PeriodLabel, error)
	// SavePeriodLabels 覆盖教室时段标签
	SavePeriodLabels(ctx context.Context, classroomCode string, labels []model.PeriodLabel) error
}

// ScheduleTx 事务内的文档操作
type ScheduleTx interface {
	// FetchDoc 读取 dailySchedules / weeklySchedules 文档，不存在时返回 (nil, nil)
	FetchDoc(ctx context.Context, collection, id string) (*model.ScheduleDoc, error)
	// SaveDoc 整体覆盖写入（非合并），保证被移除的学生真正消失
	SaveDoc(ctx context.Context, collection, id string, doc *model.ScheduleDoc) error

	// FetchMakeupDoc 读取学生调课文档，不存在时返回 (nil, nil)
	FetchMakeupDoc(ctx context.Context, studentID, id string) (*model.MakeupLessonDoc, error)
	// SaveMakeupDoc 覆盖写入调课文档；lessons 为空时删除文档
	SaveMakeupDoc(ctx context.Context, studentID, id string, lessons []model.Lesson) error
	// SaveArchiveDoc 以单条记录覆盖写入归档文档
	SaveArchiveDoc(ctx context.Context, studentID, id string, lesson model.Lesson) error
}
