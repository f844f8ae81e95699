package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"juku-attendance/backend/internal/model"
)

// ── 导出模块业务错误 ──

var (
	ErrExportNoEntries    = errors.New("该期间内没有出欠记录")
	ErrExportGenerateFail = errors.New("生成 Excel 文件失败")
)

// ExportService 导出业务接口
//
// 设计说明：
//   - 导出学生在日期范围内的出欠列表为 Excel (.xlsx)
//   - 数据来源与 ListStudentAttendance 一致（常规 + 调课）
//   - 导出以 bytes.Buffer 返回，由 Handler 层设置 HTTP 响应头后写入 Response
type ExportService interface {
	// ExportAttendance 导出学生出欠为 Excel，返回内容与建议文件名
	ExportAttendance(ctx context.Context, classroomCode, studentID, from, to string) (*bytes.Buffer, string, error)
}

type exportService struct {
	attendance AttendanceService
	labels     PeriodLabelService
	logger     *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(attendance AttendanceService, labels PeriodLabelService, logger *zap.Logger) ExportService {
	return &exportService{attendance: attendance, labels: labels, logger: logger}
}

var weekdayNames = [...]string{"日", "月", "火", "水", "木", "金", "土"}

// exportStatuses 汇总表中的状态顺序
var exportStatuses = []string{
	model.StatusScheduled,
	model.StatusAttended,
	model.StatusAbsent,
	model.StatusMakeup,
	model.StatusUndecided,
}

// ═══════════════════════════════════════════════════════════
// ExportAttendance — 导出出欠为 Excel
// ═══════════════════════════════════════════════════════════
//
// 输出格式：
//   - Sheet "出欠一覧"：日期 / 星期 / 时段 / 时间 / 状态 / 老师 / 科目 / 班型 / 时长 / 座位
//   - Sheet "集計"：按状态统计条目数

func (s *exportService) ExportAttendance(ctx context.Context, classroomCode, studentID, from, to string) (*bytes.Buffer, string, error) {
	// 1. 查询出欠
	list, err := s.attendance.ListStudentAttendance(ctx, classroomCode, studentID, from, to)
	if err != nil {
		return nil, "", err
	}
	if len(list.Entries) == 0 {
		return nil, "", ErrExportNoEntries
	}

	// 2. 时段时间
	labels, err := s.labels.Labels(ctx, classroomCode)
	if err != nil {
		return nil, "", err
	}
	timeByLabel := make(map[string]string, len(labels))
	for _, l := range labels {
		timeByLabel[l.Label] = l.Time
	}

	studentName := studentID
	for _, e := range list.Entries {
		if e.Name != "" {
			studentName = e.Name
			break
		}
	}

	// 3. 生成 Excel
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "出欠一覧"
	idx, _ := f.NewSheet(sheetName)
	f.SetActiveSheet(idx)
	// 删除默认 Sheet1
	f.DeleteSheet("Sheet1")

	headers := []string{"日期", "星期", "时段", "时间", "状态", "老师", "科目", "班型", "时长", "座位"}
	widths := []float64{12, 6, 8, 14, 8, 14, 10, 12, 8, 8}
	for i, w := range widths {
		col := colName(i)
		f.SetColWidth(sheetName, col, col, w)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	// 标题行
	f.SetCellValue(sheetName, "A1", fmt.Sprintf("%s（%s）%s ~ %s", studentName, studentID, from, to))
	f.MergeCell(sheetName, "A1", cell(colName(len(headers)-1), 1))
	f.SetCellStyle(sheetName, "A1", "A1", headerStyle)

	// 表头
	row := 2
	for i, h := range headers {
		f.SetCellValue(sheetName, cell(colName(i), row), h)
	}
	f.SetCellStyle(sheetName, cell("A", row), cell(colName(len(headers)-1), row), headerStyle)

	// 数据行
	counts := make(map[string]int)
	row = 3
	for _, e := range list.Entries {
		counts[e.Status]++

		weekday := ""
		if t, err := time.Parse(dateLayout, e.Date); err == nil {
			weekday = weekdayNames[t.Weekday()]
		}
		teacher := "-"
		if e.Teacher != nil {
			teacher = e.Teacher.Name
		}
		values := []interface{}{
			e.Date, weekday, e.PeriodLabel, timeByLabel[e.PeriodLabel], e.Status,
			teacher, e.Subject, e.ClassType, e.Duration, e.Seat,
		}
		for i, v := range values {
			f.SetCellValue(sheetName, cell(colName(i), row), v)
		}
		row++
	}

	// 汇总
	summary := "集計"
	f.NewSheet(summary)
	f.SetColWidth(summary, "A", "B", 12)
	f.SetCellValue(summary, "A1", "状态")
	f.SetCellValue(summary, "B1", "件数")
	f.SetCellStyle(summary, "A1", "B1", headerStyle)
	for i, st := range exportStatuses {
		f.SetCellValue(summary, cell("A", i+2), st)
		f.SetCellValue(summary, cell("B", i+2), counts[st])
	}
	totalRow := len(exportStatuses) + 2
	f.SetCellValue(summary, cell("A", totalRow), "合计")
	f.SetCellValue(summary, cell("B", totalRow), len(list.Entries))

	// 写入 buffer
	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	filename := fmt.Sprintf("出欠_%s_%s_%s.xlsx", studentID, from, to)
	return buf, filename, nil
}

// ── 辅助函数 ──

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
