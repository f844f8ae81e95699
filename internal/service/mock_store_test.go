package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"juku-attendance/backend/internal/model"
	"juku-attendance/backend/internal/repository"
)

// ── Mock ScheduleStore ──
//
// 内存实现：事务内的写入先缓存，回调成功后一次性提交，失败则全部丢弃

var errInjected = errors.New("injected store failure")

type mockStore struct {
	mu       sync.Mutex
	docs     map[string]*model.ScheduleDoc // "collection/id"
	makeups  map[string][]model.Lesson     // "studentID/id"
	archives map[string][]model.Lesson     // "studentID/id"
	labels   map[string][]model.PeriodLabel

	writes     int             // 已提交的写操作数
	failOn     map[string]bool // 操作名 → 注入失败
	labelReads int
}

func newMockStore() *mockStore {
	return &mockStore{
		docs:     make(map[string]*model.ScheduleDoc),
		makeups:  make(map[string][]model.Lesson),
		archives: make(map[string][]model.Lesson),
		labels:   make(map[string][]model.PeriodLabel),
		failOn:   make(map[string]bool),
	}
}

func (m *mockStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repository.ScheduleTx) error) error {
	tx := &mockTx{store: m}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range tx.pending {
		op()
		m.writes++
	}
	return nil
}

func (m *mockStore) ReadOnly(ctx context.Context, fn func(ctx context.Context, tx repository.ScheduleTx) error) error {
	return fn(ctx, &mockTx{store: m, readOnly: true})
}

func (m *mockStore) GetPeriodLabels(_ context.Context, classroomCode string) ([]model.PeriodLabel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.labelReads++
	if m.failOn["GetPeriodLabels"] {
		return nil, errInjected
	}
	if l, ok := m.labels[classroomCode]; ok {
		return l, nil
	}
	return m.labels["common"], nil
}

func (m *mockStore) SavePeriodLabels(_ context.Context, classroomCode string, labels []model.PeriodLabel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn["SavePeriodLabels"] {
		return errInjected
	}
	m.labels[classroomCode] = labels
	return nil
}

// ── 测试辅助 ──

func (m *mockStore) putDoc(collection, id string, doc *model.ScheduleDoc) {
	m.docs[collection+"/"+id] = doc
}

func (m *mockStore) doc(collection, id string) *model.ScheduleDoc {
	return m.docs[collection+"/"+id]
}

func (m *mockStore) putMakeup(studentID, id string, lessons ...model.Lesson) {
	m.makeups[studentID+"/"+id] = lessons
}

func (m *mockStore) makeup(studentID, id string) ([]model.Lesson, bool) {
	l, ok := m.makeups[studentID+"/"+id]
	return l, ok
}

func (m *mockStore) archive(studentID, id string) ([]model.Lesson, bool) {
	l, ok := m.archives[studentID+"/"+id]
	return l, ok
}

// ── 事务 ──

type mockTx struct {
	store    *mockStore
	readOnly bool
	pending  []func()
}

var errReadOnlyTx = errors.New("write in read-only transaction")

func (t *mockTx) FetchDoc(_ context.Context, collection, id string) (*model.ScheduleDoc, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.store.failOn["FetchDoc"] {
		return nil, errInjected
	}
	return t.store.docs[collection+"/"+id].Clone(), nil
}

func (t *mockTx) SaveDoc(_ context.Context, collection, id string, doc *model.ScheduleDoc) error {
	if t.readOnly {
		return errReadOnlyTx
	}
	if t.store.failOn["SaveDoc"] {
		return errInjected
	}
	cp := doc.Clone()
	t.pending = append(t.pending, func() { t.store.docs[collection+"/"+id] = cp })
	return nil
}

func (t *mockTx) FetchMakeupDoc(_ context.Context, studentID, id string) (*model.MakeupLessonDoc, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	lessons, ok := t.store.makeups[studentID+"/"+id]
	if !ok {
		return nil, nil
	}
	return (&model.MakeupLessonDoc{Lessons: lessons}).Clone(), nil
}

func (t *mockTx) SaveMakeupDoc(_ context.Context, studentID, id string, lessons []model.Lesson) error {
	if t.readOnly {
		return errReadOnlyTx
	}
	if t.store.failOn["SaveMakeupDoc"] {
		return errInjected
	}
	key := studentID + "/" + id
	if len(lessons) == 0 {
		t.pending = append(t.pending, func() { delete(t.store.makeups, key) })
		return nil
	}
	cp := (&model.MakeupLessonDoc{Lessons: lessons}).Clone().Lessons
	t.pending = append(t.pending, func() { t.store.makeups[key] = cp })
	return nil
}

func (t *mockTx) SaveArchiveDoc(_ context.Context, studentID, id string, lesson model.Lesson) error {
	if t.readOnly {
		return errReadOnlyTx
	}
	if t.store.failOn["SaveArchiveDoc"] {
		return errInjected
	}
	key := studentID + "/" + id
	t.pending = append(t.pending, func() { t.store.archives[key] = []model.Lesson{lesson} })
	return nil
}

// ── Mock Redis（缓存 + 编辑锁） ──

type mockRedis struct {
	mu      sync.Mutex
	labels  map[string][]model.PeriodLabel
	locks   map[string]bool
	sets    int
	lockErr error
}

func newMockRedis() *mockRedis {
	return &mockRedis{labels: make(map[string][]model.PeriodLabel), locks: make(map[string]bool)}
}

func (r *mockRedis) GetPeriodLabels(_ context.Context, classroomCode string) ([]model.PeriodLabel, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.labels[classroomCode]
	return l, ok, nil
}

func (r *mockRedis) SetPeriodLabels(_ context.Context, classroomCode string, labels []model.PeriodLabel, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.labels[classroomCode] = labels
	r.sets++
	return nil
}

func (r *mockRedis) InvalidatePeriodLabels(_ context.Context, classroomCode string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.labels, classroomCode)
	return nil
}

func (r *mockRedis) AcquireLock(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lockErr != nil {
		return nil, false, r.lockErr
	}
	if r.locks[key] {
		return nil, false, nil
	}
	r.locks[key] = true
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.locks, key)
	}, true, nil
}
