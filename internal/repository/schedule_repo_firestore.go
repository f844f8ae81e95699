package repository

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"juku-attendance/backend/internal/model"
	pkgerrors "juku-attendance/backend/pkg/errors"
)

// ── Firestore ScheduleStore 实现 ──
// 文档路径与旧版前端完全一致，可与仍直接读写 Firestore 的页面共存

type firestoreScheduleRepo struct {
	client *firestore.Client
}

// NewFirestoreScheduleRepo 创建 Firestore 文档存储
func NewFirestoreScheduleRepo(client *firestore.Client) ScheduleStore {
	return &firestoreScheduleRepo{client: client}
}

func (r *firestoreScheduleRepo) RunInTx(ctx context.Context, fn func(ctx context.Context, tx ScheduleTx) error) error {
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(ctx, &firestoreScheduleTx{client: r.client, tx: tx})
	})
	return wrapFirestoreErr(err)
}

func (r *firestoreScheduleRepo) ReadOnly(ctx context.Context, fn func(ctx context.Context, tx ScheduleTx) error) error {
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(ctx, &firestoreScheduleTx{client: r.client, tx: tx})
	}, firestore.ReadOnly)
	return wrapFirestoreErr(err)
}

func (r *firestoreScheduleRepo) GetPeriodLabels(ctx context.Context, classroomCode string) ([]model.PeriodLabel, error) {
	for _, ref := range periodLabelRefs(r.client, classroomCode) {
		snap, err := ref.Get(ctx)
		if status.Code(err) == codes.NotFound {
			continue
		}
		if err != nil {
			return nil, wrapFirestoreErr(err)
		}
		var doc model.PeriodLabelDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("解析时段标签文档 %s 失败: %w", ref.Path, err)
		}
		return doc.Labels, nil
	}
	return nil, nil
}

func (r *firestoreScheduleRepo) SavePeriodLabels(ctx context.Context, classroomCode string, labels []model.PeriodLabel) error {
	_, err := periodLabelRefs(r.client, classroomCode)[0].
		Set(ctx, model.PeriodLabelDoc{Labels: labels})
	return wrapFirestoreErr(err)
}

// ── 事务内操作 ──

type firestoreScheduleTx struct {
	client *firestore.Client
	tx     *firestore.Transaction
}

// ── 文档路径 ──

// periodLabelRefs 教室时段标签，及其回退的公共默认值（按读取顺序）
func periodLabelRefs(client *firestore.Client, classroomCode string) []*firestore.DocumentRef {
	return []*firestore.DocumentRef{
		client.Collection(CollectionPeriodLabels).Doc(classroomCode),
		client.Collection(CollectionCommon).Doc(DocCommonPeriodLabels),
	}
}

// scheduleRef dailySchedules/{id} 或 weeklySchedules/{id}
func scheduleRef(client *firestore.Client, collection, id string) *firestore.DocumentRef {
	return client.Collection(collection).Doc(id)
}

// makeupRef students/{studentId}/{makeupLessons|makeupLessonsArchive}/{id}
func makeupRef(client *firestore.Client, sub, studentID, id string) *firestore.DocumentRef {
	return client.Collection(CollectionStudents).Doc(studentID).Collection(sub).Doc(id)
}

func (t *firestoreScheduleTx) FetchDoc(_ context.Context, collection, id string) (*model.ScheduleDoc, error) {
	ref := scheduleRef(t.client, collection, id)
	snap, err := t.tx.Get(ref)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var doc model.ScheduleDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("解析排课文档 %s 失败: %w", ref.Path, err)
	}
	return &doc, nil
}

func (t *firestoreScheduleTx) SaveDoc(_ context.Context, collection, id string, doc *model.ScheduleDoc) error {
	// Set 不带 MergeAll：整体覆盖
	return t.tx.Set(scheduleRef(t.client, collection, id), doc)
}

func (t *firestoreScheduleTx) FetchMakeupDoc(_ context.Context, studentID, id string) (*model.MakeupLessonDoc, error) {
	ref := makeupRef(t.client, SubCollectionMakeup, studentID, id)
	snap, err := t.tx.Get(ref)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var doc model.MakeupLessonDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("解析调课文档 %s 失败: %w", ref.Path, err)
	}
	return &doc, nil
}

func (t *firestoreScheduleTx) SaveMakeupDoc(_ context.Context, studentID, id string, lessons []model.Lesson) error {
	ref := makeupRef(t.client, SubCollectionMakeup, studentID, id)
	if len(lessons) == 0 {
		return t.tx.Delete(ref)
	}
	return t.tx.Set(ref, model.MakeupLessonDoc{Lessons: lessons})
}

func (t *firestoreScheduleTx) SaveArchiveDoc(_ context.Context, studentID, id string, lesson model.Lesson) error {
	ref := makeupRef(t.client, SubCollectionArchive, studentID, id)
	return t.tx.Set(ref, model.MakeupLessonDoc{Lessons: []model.Lesson{lesson}})
}

// wrapFirestoreErr 将连接类错误归一为 ErrStoreUnavailable，事务冲突归一为 ErrOptimisticLock
func wrapFirestoreErr(err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %v", pkgerrors.ErrStoreUnavailable, err)
	case codes.Aborted:
		return fmt.Errorf("%w: %v", pkgerrors.ErrOptimisticLock, err)
	}
	return err
}
