package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"juku-attendance/backend/internal/dto"
	"juku-attendance/backend/internal/model"
	"juku-attendance/backend/internal/repository"
)

// ── 出欠模块业务错误 ──

var (
	ErrNoChanges          = errors.New("没有需要保存的变更")
	ErrDuplicateLesson    = errors.New("该学生在目标日期的同一时段已有课程")
	ErrCapacityExceeded   = errors.New("目标时段超出班型容量或班型不可混排")
	ErrUnknownPeriodLabel = errors.New("时段标签不存在")
	ErrTeacherNotFound    = errors.New("老师不存在")
	ErrEntryNotInList     = errors.New("编辑目标不在当前出欠列表中")
	ErrSessionMismatch    = errors.New("编辑会话类型与条目状态不符")
	ErrInvalidDate        = errors.New("日期格式无效，应为 YYYY-MM-DD")
	ErrInvalidStatus      = errors.New("出欠状态无效")
	ErrEditInProgress     = errors.New("该学生正在被其他用户编辑，请稍后重试")
	ErrDateRangeInvalid   = errors.New("日期范围无效")
)

// EditLocker 按学生加编辑锁（由 Redis 实现）
type EditLocker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// Operator 发起编辑的用户（来自 JWT），用于出欠修改的审计日志
type Operator struct {
	UserID string
	Role   string
}

// AttendanceService 出欠业务接口
type AttendanceService interface {
	// 保存一次出欠编辑：改写排课文档与调课子集合，返回更新后的列表
	Save(ctx context.Context, classroomCode string, operator Operator, req *dto.SaveAttendanceRequest) (*dto.SaveAttendanceResponse, error)
	// 汇总学生在日期范围内的常规与调课条目
	ListStudentAttendance(ctx context.Context, classroomCode, studentID, from, to string) (*dto.StudentAttendanceResponse, error)
	// 读取某日排课（无日文档时回退到周模板）
	GetDailySchedule(ctx context.Context, classroomCode, date string) (*dto.DailyScheduleResponse, error)
}

type attendanceService struct {
	store        repository.ScheduleStore
	labels       PeriodLabelService
	locker       EditLocker // 可为 nil
	lockTTL      time.Duration
	maxRangeDays int
	logger       *zap.Logger
}

// NewAttendanceService 创建 AttendanceService 实例
// locker 为 nil 时不加编辑锁，仅依赖存储事务
func NewAttendanceService(
	store repository.ScheduleStore,
	labels PeriodLabelService,
	locker EditLocker,
	lockTTL time.Duration,
	maxRangeDays int,
	logger *zap.Logger,
) AttendanceService {
	return &attendanceService{
		store:        store,
		labels:       labels,
		locker:       locker,
		lockTTL:      lockTTL,
		maxRangeDays: maxRangeDays,
		logger:       logger,
	}
}

// ════════════════════════════════════════════════════════════
// Save — 出欠调整
// ════════════════════════════════════════════════════════════

// saveChange 一次编辑解析后的起点与终点
type saveChange struct {
	classroomCode string
	studentID     string
	from          model.AttendanceEntry // period 已解析
	to            model.AttendanceEntry // period / teacher 已解析
	fromDocID     string                // 原条目无日期时为空
	toDocID       string
}

func (s *attendanceService) Save(ctx context.Context, classroomCode string, operator Operator, req *dto.SaveAttendanceRequest) (*dto.SaveAttendanceResponse, error) {
	target := req.Session.Target

	// 1. 会话校验
	if err := validateSession(req.Session, req.AttendanceList); err != nil {
		return nil, err
	}

	// 2. 时段标签：优先使用请求携带的，否则读取教室配置
	labels := req.PeriodLabels
	if len(labels) == 0 {
		var err error
		if labels, err = s.labels.Labels(ctx, classroomCode); err != nil {
			return nil, err
		}
	}

	// 3. 解析修改后的条目
	change, err := resolveChange(classroomCode, target, req, labels)
	if err != nil {
		return nil, err
	}

	// 4. 无变更
	if change.from.Date == change.to.Date &&
		change.from.Period == change.to.Period &&
		change.from.Status == change.to.Status &&
		change.from.TeacherCode() == change.to.TeacherCode() {
		return nil, ErrNoChanges
	}

	// 5. 未带日期：不写文档，只更新列表
	if !req.Proposed.HasDate() {
		return &dto.SaveAttendanceResponse{
			UpdatedList: applyToList(req.AttendanceList, target, req.Proposed, change.to),
		}, nil
	}

	// 6. 编辑锁
	if s.locker != nil {
		release, ok, err := s.locker.AcquireLock(ctx, classroomCode+":"+change.studentID, s.lockTTL)
		switch {
		case err != nil:
			// Redis 不可用时放行，由存储事务兜底
			s.logger.Warn("获取编辑锁失败，继续保存", zap.String("student_id", change.studentID), zap.Error(err))
		case !ok:
			return nil, ErrEditInProgress
		default:
			defer release()
		}
	}

	// 7. 事务：先读全部文档，再在内存中计算，最后统一写入
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repository.ScheduleTx) error {
		ws, err := readWorkingSet(ctx, tx, change)
		if err != nil {
			return err
		}
		if err := ws.apply(change); err != nil {
			return err
		}
		return ws.flush(ctx, tx, change.studentID)
	})
	if err != nil {
		if isValidationErr(err) {
			s.logger.Info("出欠保存被拒绝",
				zap.String("classroom", classroomCode),
				zap.String("operator", operator.UserID),
				zap.String("operator_role", operator.Role),
				zap.String("student_id", change.studentID),
				zap.String("reason", err.Error()))
			return nil, err
		}
		s.logger.Error("出欠保存失败",
			zap.String("classroom", classroomCode),
			zap.String("operator", operator.UserID),
			zap.String("student_id", change.studentID),
			zap.Error(err))
		return nil, fmt.Errorf("保存出欠失败: %w", err)
	}

	s.logger.Info("出欠已保存",
		zap.String("classroom", classroomCode),
		zap.String("operator", operator.UserID),
		zap.String("operator_role", operator.Role),
		zap.String("student_id", change.studentID),
		zap.String("from", fmt.Sprintf("%s %s %s", change.from.Date, model.PeriodKey(change.from.Period), change.from.Status)),
		zap.String("to", fmt.Sprintf("%s %s %s", change.to.Date, model.PeriodKey(change.to.Period), change.to.Status)))

	return &dto.SaveAttendanceResponse{
		UpdatedList: applyToList(req.AttendanceList, target, req.Proposed, change.to),
		Persisted:   true,
	}, nil
}

// validateSession 编辑目标必须在列表中，且会话类型与状态一致
func validateSession(session model.EditSession, list []model.AttendanceEntry) error {
	switch session.Kind {
	case model.EditSessionMakeup:
		if !session.Target.IsMakeup() {
			return ErrSessionMismatch
		}
	case model.EditSessionRegular:
		if session.Target.IsMakeup() {
			return ErrSessionMismatch
		}
	default:
		return ErrSessionMismatch
	}
	for _, e := range list {
		if e.SameSlot(session.Target) {
			return nil
		}
	}
	return ErrEntryNotInList
}

// resolveChange 将修改覆盖到编辑目标上并解析时段、老师、文档 ID
func resolveChange(classroomCode string, target model.AttendanceEntry, req *dto.SaveAttendanceRequest, labels []model.PeriodLabel) (*saveChange, error) {
	to := req.Proposed.Apply(target)
	if !knownStatuses[to.Status] {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, to.Status)
	}

	from := target
	if n, ok := resolvePeriod(labels, from.PeriodLabel, from.Period); ok {
		from.Period = n
	} else if from.Date != "" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPeriodLabel, from.PeriodLabel)
	}

	// 未修改标签时允许按原序号兜底（标签被改名的情况）
	fallback := 0
	if req.Proposed.PeriodLabel == nil {
		fallback = from.Period
	}
	n, ok := resolvePeriod(labels, to.PeriodLabel, fallback)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPeriodLabel, to.PeriodLabel)
	}
	to.Period = n
	to.PeriodLabel = periodLabelOf(labels, n).Label
	if to.Name == "" {
		to.Name = req.StudentName
	}

	teacher, err := resolveTeacher(to.Status, target, req)
	if err != nil {
		return nil, err
	}
	to.Teacher = teacher

	change := &saveChange{
		classroomCode: classroomCode,
		studentID:     target.StudentID,
		from:          from,
		to:            to,
	}
	if from.Date != "" {
		if change.fromDocID, err = DailyDocID(classroomCode, from.Date); err != nil {
			return nil, err
		}
	}
	if req.Proposed.HasDate() {
		if change.toDocID, err = DailyDocID(classroomCode, to.Date); err != nil {
			return nil, err
		}
	}
	return change, nil
}

// resolvePeriod 标签 → 序号；标签无效时使用合法的 fallback 序号
func resolvePeriod(labels []model.PeriodLabel, label string, fallback int) (int, bool) {
	if n, ok := periodNumber(labels, label); ok {
		return n, true
	}
	if fallback >= 1 && fallback <= model.MaxPeriods && fallback <= len(labels) {
		return fallback, true
	}
	return 0, false
}

// resolveTeacher 予定 需要完整的老师对象，其余状态不挂老师
func resolveTeacher(status string, target model.AttendanceEntry, req *dto.SaveAttendanceRequest) (*model.Teacher, error) {
	if status != model.StatusScheduled {
		return nil, nil
	}
	code := target.TeacherCode()
	if req.Proposed.TeacherCode != nil {
		code = *req.Proposed.TeacherCode
	}
	if code == "" {
		return nil, ErrTeacherNotFound
	}
	for _, t := range req.Teachers {
		if t.Code == code {
			tc := t
			return &tc, nil
		}
	}
	if target.Teacher != nil && target.Teacher.Code == code {
		tc := *target.Teacher
		return &tc, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrTeacherNotFound, code)
}

// applyToList 对列表中与编辑目标相同的每个条目套用修改
func applyToList(list []model.AttendanceEntry, target model.AttendanceEntry, patch model.AttendancePatch, resolved model.AttendanceEntry) []model.AttendanceEntry {
	out := make([]model.AttendanceEntry, len(list))
	for i, e := range list {
		if !e.SameSlot(target) {
			out[i] = e
			continue
		}
		u := patch.Apply(e)
		u.Period = resolved.Period
		u.PeriodLabel = resolved.PeriodLabel
		u.Teacher = resolved.Teacher
		out[i] = u
	}
	return out
}

// isValidationErr 校验类拒绝（不记为错误日志）
func isValidationErr(err error) bool {
	return errors.Is(err, ErrDuplicateLesson) ||
		errors.Is(err, ErrCapacityExceeded) ||
		errors.Is(err, ErrEntryNotInList)
}

// ── 事务工作集 ──

type docState struct {
	doc   *model.ScheduleDoc
	dirty bool
}

type makeupState struct {
	lessons []model.Lesson
	dirty   bool
}

// workingSet 一次事务内读取到的文档副本
type workingSet struct {
	docs    map[string]*docState    // dailySchedules 文档 ID → 状态
	makeups map[string]*makeupState // makeupLessons 文档 ID → 状态

	archive   *model.Lesson
	archiveID string
}

// readWorkingSet 读取本次编辑涉及的全部文档
func readWorkingSet(ctx context.Context, tx repository.ScheduleTx, c *saveChange) (*workingSet, error) {
	ws := &workingSet{
		docs:    make(map[string]*docState),
		makeups: make(map[string]*makeupState),
	}

	// 目标日期：排课文档与调课文档都要读，用于重复检查
	if err := ws.loadDoc(ctx, tx, c.classroomCode, c.toDocID, c.to.Date); err != nil {
		return nil, err
	}
	if err := ws.loadMakeup(ctx, tx, c.studentID, c.toDocID); err != nil {
		return nil, err
	}

	if c.fromDocID != "" {
		if c.from.IsMakeup() {
			if err := ws.loadMakeup(ctx, tx, c.studentID, c.fromDocID); err != nil {
				return nil, err
			}
		} else if err := ws.loadDoc(ctx, tx, c.classroomCode, c.fromDocID, c.from.Date); err != nil {
			return nil, err
		}
	}
	return ws, nil
}

func (ws *workingSet) loadDoc(ctx context.Context, tx repository.ScheduleTx, classroomCode, docID, date string) error {
	if _, ok := ws.docs[docID]; ok {
		return nil
	}
	doc, _, err := loadDailyDoc(ctx, tx, classroomCode, date)
	if err != nil {
		return err
	}
	ws.docs[docID] = &docState{doc: doc}
	return nil
}

func (ws *workingSet) loadMakeup(ctx context.Context, tx repository.ScheduleTx, studentID, docID string) error {
	if _, ok := ws.makeups[docID]; ok {
		return nil
	}
	doc, err := tx.FetchMakeupDoc(ctx, studentID, docID)
	if err != nil {
		return fmt.Errorf("读取调课文档 %s 失败: %w", docID, err)
	}
	st := &makeupState{}
	if doc != nil {
		st.lessons = doc.Clone().Lessons
	}
	ws.makeups[docID] = st
	return nil
}

// apply 在内存中完成移除、重复检查、容量检查、插入与归档
// 返回错误时不做任何写入
func (ws *workingSet) apply(c *saveChange) error {
	// 从原位置移除
	if c.fromDocID != "" {
		if c.from.IsMakeup() {
			// 调课记录已不在存储中（列表过期）时不得凭请求内容写归档
			st := ws.makeups[c.fromDocID]
			i := findLesson(st.lessons, c.studentID, c.from.Period)
			if i < 0 {
				return ErrEntryNotInList
			}
			removed := st.lessons[i]
			st.lessons = append(st.lessons[:i:i], st.lessons[i+1:]...)
			st.dirty = true
			if !c.to.IsMakeup() {
				ws.archive = &removed
				ws.archiveID = c.fromDocID
			}
		} else {
			st := ws.docs[c.fromDocID]
			if removeStudent(st.doc, model.PeriodKey(c.from.Period), c.studentID) != nil {
				st.dirty = true
			}
		}
	}

	// 重复检查：目标日期同一时段不得已有该学生（排课行或调课记录）
	key := model.PeriodKey(c.to.Period)
	dest := ws.docs[c.toDocID]
	makeup := ws.makeups[c.toDocID]
	if studentInSlot(dest.doc, key, c.studentID) || findLesson(makeup.lessons, c.studentID, c.to.Period) >= 0 {
		return ErrDuplicateLesson
	}

	// 插入
	if c.to.IsMakeup() {
		makeup.lessons = append(makeup.lessons, lessonFromEntry(c.to))
		makeup.dirty = true
		return nil
	}

	idx := findOrCreateRow(dest.doc, rowGroupFor(c.to.Status, c.to.Teacher))
	slot := dest.doc.Rows[idx].Periods[key]
	if c.to.Status == model.StatusScheduled && !capacityAllows(slot, c.to.ClassType) {
		return ErrCapacityExceeded
	}
	dest.doc.Rows[idx].Periods[key] = append(slot, studentInfoFromEntry(c.to))
	dest.dirty = true
	return nil
}

// flush 写入所有被修改的文档（排课文档整体覆盖）
func (ws *workingSet) flush(ctx context.Context, tx repository.ScheduleTx, studentID string) error {
	for _, id := range sortedKeys(ws.docs) {
		st := ws.docs[id]
		if !st.dirty {
			continue
		}
		if err := tx.SaveDoc(ctx, repository.CollectionDailySchedules, id, st.doc); err != nil {
			return fmt.Errorf("写入排课文档 %s 失败: %w", id, err)
		}
	}
	for _, id := range sortedKeys(ws.makeups) {
		st := ws.makeups[id]
		if !st.dirty {
			continue
		}
		if err := tx.SaveMakeupDoc(ctx, studentID, id, st.lessons); err != nil {
			return fmt.Errorf("写入调课文档 %s 失败: %w", id, err)
		}
	}
	if ws.archive != nil {
		if err := tx.SaveArchiveDoc(ctx, studentID, ws.archiveID, *ws.archive); err != nil {
			return fmt.Errorf("写入调课归档 %s 失败: %w", ws.archiveID, err)
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// loadDailyDoc 读取日排课文档；不存在时以周模板副本代替（标记 createdFromWeeklyTemplate），
// 模板也不存在时返回空文档。第二个返回值表示日文档本身是否存在
func loadDailyDoc(ctx context.Context, tx repository.ScheduleTx, classroomCode, date string) (*model.ScheduleDoc, bool, error) {
	dailyID, err := DailyDocID(classroomCode, date)
	if err != nil {
		return nil, false, err
	}
	doc, err := tx.FetchDoc(ctx, repository.CollectionDailySchedules, dailyID)
	if err != nil {
		return nil, false, fmt.Errorf("读取排课文档 %s 失败: %w", dailyID, err)
	}
	if doc != nil {
		return doc.Clone(), true, nil
	}

	weeklyID, err := WeeklyDocID(classroomCode, date)
	if err != nil {
		return nil, false, err
	}
	tpl, err := tx.FetchDoc(ctx, repository.CollectionWeeklySchedules, weeklyID)
	if err != nil {
		return nil, false, fmt.Errorf("读取周模板 %s 失败: %w", weeklyID, err)
	}
	if tpl != nil {
		out := tpl.Clone()
		out.CreatedFromWeeklyTemplate = true
		return out, false, nil
	}
	return &model.ScheduleDoc{Rows: []model.ScheduleRow{}}, false, nil
}

func lessonFromEntry(e model.AttendanceEntry) model.Lesson {
	return model.Lesson{
		StudentID: e.StudentID,
		Name:      e.Name,
		Subject:   e.Subject,
		Status:    e.Status,
		Seat:      e.Seat,
		Grade:     e.Grade,
		ClassType: e.ClassType,
		Duration:  e.Duration,
		Teacher:   e.Teacher,
		Period:    e.Period,
		Date:      e.Date,
	}
}

func studentInfoFromEntry(e model.AttendanceEntry) model.StudentInfo {
	return model.StudentInfo{
		StudentID: e.StudentID,
		Name:      e.Name,
		Subject:   e.Subject,
		Status:    e.Status,
		Seat:      e.Seat,
		Grade:     e.Grade,
		ClassType: e.ClassType,
		Duration:  e.Duration,
		Teacher:   e.Teacher,
	}
}

// ════════════════════════════════════════════════════════════
// 查询
// ════════════════════════════════════════════════════════════

func (s *attendanceService) ListStudentAttendance(ctx context.Context, classroomCode, studentID, from, to string) (*dto.StudentAttendanceResponse, error) {
	dates, err := s.dateRange(from, to)
	if err != nil {
		return nil, err
	}
	labels, err := s.labels.Labels(ctx, classroomCode)
	if err != nil {
		return nil, err
	}

	var entries []model.AttendanceEntry
	err = s.store.ReadOnly(ctx, func(ctx context.Context, tx repository.ScheduleTx) error {
		entries = entries[:0]
		for _, date := range dates {
			doc, _, err := loadDailyDoc(ctx, tx, classroomCode, date)
			if err != nil {
				return err
			}
			entries = append(entries, inlineEntries(doc, studentID, date, labels)...)

			docID, _ := DailyDocID(classroomCode, date)
			makeup, err := tx.FetchMakeupDoc(ctx, studentID, docID)
			if err != nil {
				return fmt.Errorf("读取调课文档 %s 失败: %w", docID, err)
			}
			if makeup != nil {
				for _, l := range makeup.Lessons {
					entries = append(entries, entryFromLesson(l, date, labels))
				}
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("查询学生出欠失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Date != entries[j].Date {
			return entries[i].Date < entries[j].Date
		}
		return entries[i].Period < entries[j].Period
	})
	if entries == nil {
		entries = []model.AttendanceEntry{}
	}

	return &dto.StudentAttendanceResponse{
		ClassroomCode: classroomCode,
		StudentID:     studentID,
		From:          from,
		To:            to,
		Entries:       entries,
	}, nil
}

func (s *attendanceService) GetDailySchedule(ctx context.Context, classroomCode, date string) (*dto.DailyScheduleResponse, error) {
	t, err := parseDate(date)
	if err != nil {
		return nil, err
	}
	docID, _ := DailyDocID(classroomCode, date)
	labels, err := s.labels.Labels(ctx, classroomCode)
	if err != nil {
		return nil, err
	}

	var (
		doc     *model.ScheduleDoc
		existed bool
	)
	err = s.store.ReadOnly(ctx, func(ctx context.Context, tx repository.ScheduleTx) error {
		var err error
		doc, existed, err = loadDailyDoc(ctx, tx, classroomCode, date)
		return err
	})
	if err != nil {
		s.logger.Error("查询日排课失败", zap.String("doc_id", docID), zap.Error(err))
		return nil, err
	}

	return &dto.DailyScheduleResponse{
		DocID:        docID,
		Date:         date,
		Weekday:      int(t.Weekday()),
		Persisted:    existed,
		FromTemplate: !existed && doc.CreatedFromWeeklyTemplate,
		PeriodLabels: labels,
		Rows:         doc.Rows,
	}, nil
}

// dateRange 展开 [from, to] 为日期列表
func (s *attendanceService) dateRange(from, to string) ([]string, error) {
	start, err := parseDate(from)
	if err != nil {
		return nil, err
	}
	end, err := parseDate(to)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: 结束日期早于开始日期", ErrDateRangeInvalid)
	}
	days := int(end.Sub(start).Hours()/24) + 1
	if s.maxRangeDays > 0 && days > s.maxRangeDays {
		return nil, fmt.Errorf("%w: 最多 %d 天", ErrDateRangeInvalid, s.maxRangeDays)
	}
	dates := make([]string, 0, days)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(dateLayout))
	}
	return dates, nil
}

// inlineEntries 收集文档中属于该学生的排课条目
func inlineEntries(doc *model.ScheduleDoc, studentID, date string, labels []model.PeriodLabel) []model.AttendanceEntry {
	var out []model.AttendanceEntry
	// 按行、再按 period1..period8 顺序遍历，保证同一时段内的条目顺序稳定
	for _, row := range doc.Rows {
		for n := 1; n <= model.MaxPeriods; n++ {
			for _, st := range row.Periods[model.PeriodKey(n)] {
				if st.StudentID != studentID {
					continue
				}
				status := st.Status
				if status == "" {
					status = row.Status
				}
				if status == "" && row.Teacher != nil {
					status = model.StatusScheduled
				}
				var teacher *model.Teacher
				if status == model.StatusScheduled && row.Teacher != nil {
					tc := *row.Teacher
					teacher = &tc
				}
				out = append(out, model.AttendanceEntry{
					StudentID:   st.StudentID,
					Name:        st.Name,
					Status:      status,
					PeriodLabel: periodLabelOf(labels, n).Label,
					Period:      n,
					Date:        date,
					Teacher:     teacher,
					ClassType:   st.ClassType,
					Duration:    st.Duration,
					Seat:        st.Seat,
					Grade:       st.Grade,
					Subject:     st.Subject,
				})
			}
		}
	}
	return out
}

func entryFromLesson(l model.Lesson, date string, labels []model.PeriodLabel) model.AttendanceEntry {
	status := l.Status
	if status == "" {
		status = model.StatusMakeup
	}
	if l.Date != "" {
		date = l.Date
	}
	return model.AttendanceEntry{
		StudentID:   l.StudentID,
		Name:        l.Name,
		Status:      status,
		PeriodLabel: periodLabelOf(labels, l.Period).Label,
		Period:      l.Period,
		Date:        date,
		ClassType:   l.ClassType,
		Duration:    l.Duration,
		Seat:        l.Seat,
		Grade:       l.Grade,
		Subject:     l.Subject,
	}
}
