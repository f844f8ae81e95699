package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"juku-attendance/backend/internal/dto"
	"juku-attendance/backend/internal/model"
	"juku-attendance/backend/internal/service"
	apperrors "juku-attendance/backend/pkg/errors"
	"juku-attendance/backend/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ═══════════════════════════════════════════════════════════
// Mock Services
// ═══════════════════════════════════════════════════════════

// ── Mock AttendanceService ──

type mockAttendanceService struct {
	saveResult  *dto.SaveAttendanceResponse
	saveErr     error
	saveCode    string
	saveOp      service.Operator
	saveReq     *dto.SaveAttendanceRequest
	listResult  *dto.StudentAttendanceResponse
	listErr     error
	listArgs    []string
	dailyResult *dto.DailyScheduleResponse
	dailyErr    error
	dailyDate   string
}

func (m *mockAttendanceService) Save(_ context.Context, code string, op service.Operator, req *dto.SaveAttendanceRequest) (*dto.SaveAttendanceResponse, error) {
	m.saveCode = code
	m.saveOp = op
	m.saveReq = req
	return m.saveResult, m.saveErr
}
func (m *mockAttendanceService) ListStudentAttendance(_ context.Context, code, studentID, from, to string) (*dto.StudentAttendanceResponse, error) {
	m.listArgs = []string{code, studentID, from, to}
	return m.listResult, m.listErr
}
func (m *mockAttendanceService) GetDailySchedule(_ context.Context, _ string, date string) (*dto.DailyScheduleResponse, error) {
	m.dailyDate = date
	return m.dailyResult, m.dailyErr
}

// ── Mock ExportService / CalendarService ──

type mockExportService struct {
	buf      *bytes.Buffer
	filename string
	err      error
}

func (m *mockExportService) ExportAttendance(_ context.Context, _, _, _, _ string) (*bytes.Buffer, string, error) {
	return m.buf, m.filename, m.err
}

type mockCalendarService struct {
	body string
	err  error
}

func (m *mockCalendarService) StudentCalendar(_ context.Context, _, _, _, _ string) (string, error) {
	return m.body, m.err
}

// ── Mock PeriodLabelService ──

type mockPeriodLabelService struct {
	getResult    *dto.PeriodLabelsResponse
	getErr       error
	updateResult *dto.PeriodLabelsResponse
	updateErr    error
	updateReq    *dto.UpdatePeriodLabelsRequest
}

func (m *mockPeriodLabelService) Get(_ context.Context, _ string) (*dto.PeriodLabelsResponse, error) {
	return m.getResult, m.getErr
}
func (m *mockPeriodLabelService) Update(_ context.Context, _ string, req *dto.UpdatePeriodLabelsRequest) (*dto.PeriodLabelsResponse, error) {
	m.updateReq = req
	return m.updateResult, m.updateErr
}
func (m *mockPeriodLabelService) Labels(_ context.Context, _ string) ([]model.PeriodLabel, error) {
	if m.getResult == nil {
		return nil, m.getErr
	}
	return m.getResult.Labels, m.getErr
}

// ═══════════════════════════════════════════════════════════
// Helpers
// ═══════════════════════════════════════════════════════════

func jsonBody(v interface{}) io.Reader {
	b, _ := json.Marshal(v)
	return bytes.NewReader(b)
}

func parseResponse(w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	json.Unmarshal(w.Body.Bytes(), &resp)
	return resp
}

func strPtr(s string) *string { return &s }

// setAuth 模拟 JWT 中间件注入的用户信息
func setAuth(c *gin.Context) {
	c.Set("user_id", "t0240001")
	c.Set("role", "teacher")
	c.Set("classroom_code", "024")
}

func validSaveRequest() dto.SaveAttendanceRequest {
	entry := model.AttendanceEntry{
		StudentID:   "s0241234",
		Status:      model.StatusScheduled,
		PeriodLabel: "1限",
		Period:      1,
		Date:        "2026-10-19",
		Teacher:     &model.Teacher{Code: "t0240001", Name: "佐藤"},
		ClassType:   "1:2",
	}
	return dto.SaveAttendanceRequest{
		Session:        model.EditSession{Kind: model.EditSessionRegular, Target: entry},
		Proposed:       model.AttendancePatch{PeriodLabel: strPtr("2限")},
		AttendanceList: []model.AttendanceEntry{entry},
	}
}

func serveSave(h *AttendanceHandler, body io.Reader) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/classrooms/024/attendance/save", body)
	req.Header.Set("Content-Type", "application/json")

	r := gin.New()
	r.POST("/classrooms/:code/attendance/save", func(c *gin.Context) {
		setAuth(c)
		h.Save(c)
	})
	r.ServeHTTP(w, req)
	return w
}

// ═══════════════════════════════════════════════════════════
// AttendanceHandler Tests
// ═══════════════════════════════════════════════════════════

func TestAttendanceHandler_Save_Success(t *testing.T) {
	mock := &mockAttendanceService{
		saveResult: &dto.SaveAttendanceResponse{Persisted: true},
	}
	h := NewAttendanceHandler(mock)

	w := serveSave(h, jsonBody(validSaveRequest()))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if resp := parseResponse(w); resp.Code != 0 {
		t.Errorf("expected code 0, got %d", resp.Code)
	}
	if mock.saveCode != "024" {
		t.Errorf("expected classroom 024, got %q", mock.saveCode)
	}
	if mock.saveReq == nil || mock.saveReq.Proposed.PeriodLabel == nil || *mock.saveReq.Proposed.PeriodLabel != "2限" {
		t.Errorf("proposed patch not passed through: %+v", mock.saveReq)
	}
	if mock.saveOp.UserID != "t0240001" || mock.saveOp.Role != "teacher" {
		t.Errorf("operator not passed through: %+v", mock.saveOp)
	}
}

func TestAttendanceHandler_Save_Unauthenticated(t *testing.T) {
	mock := &mockAttendanceService{}
	h := NewAttendanceHandler(mock)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/classrooms/024/attendance/save", jsonBody(validSaveRequest()))
	req.Header.Set("Content-Type", "application/json")

	r := gin.New()
	r.POST("/classrooms/:code/attendance/save", h.Save)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
	if mock.saveReq != nil {
		t.Error("service should not be called without an authenticated user")
	}
}

func TestAttendanceHandler_Save_BadJSON(t *testing.T) {
	h := NewAttendanceHandler(&mockAttendanceService{})

	w := serveSave(h, bytes.NewReader([]byte("invalid json")))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if resp := parseResponse(w); resp.Code != 10001 {
		t.Errorf("expected error code 10001, got %d", resp.Code)
	}
}

func TestAttendanceHandler_Save_EmptyList(t *testing.T) {
	mock := &mockAttendanceService{}
	h := NewAttendanceHandler(mock)

	req := validSaveRequest()
	req.AttendanceList = nil
	w := serveSave(h, jsonBody(req))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if mock.saveReq != nil {
		t.Error("service should not be called when binding fails")
	}
}

func TestAttendanceHandler_Save_InvalidSessionKind(t *testing.T) {
	h := NewAttendanceHandler(&mockAttendanceService{})

	req := validSaveRequest()
	req.Session.Kind = "weekly"
	w := serveSave(h, jsonBody(req))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestAttendanceHandler_Save_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   int
	}{
		{"no changes", service.ErrNoChanges, http.StatusBadRequest, 20101},
		{"duplicate", service.ErrDuplicateLesson, http.StatusConflict, 20102},
		{"capacity", service.ErrCapacityExceeded, http.StatusConflict, 20103},
		{"unknown label", service.ErrUnknownPeriodLabel, http.StatusBadRequest, 20104},
		{"teacher", service.ErrTeacherNotFound, http.StatusBadRequest, 20105},
		{"not in list", service.ErrEntryNotInList, http.StatusBadRequest, 20106},
		{"session", service.ErrSessionMismatch, http.StatusBadRequest, 20107},
		{"date", service.ErrInvalidDate, http.StatusBadRequest, 20108},
		{"status", service.ErrInvalidStatus, http.StatusBadRequest, 20109},
		{"edit lock", service.ErrEditInProgress, http.StatusConflict, 20111},
		{"optimistic lock", apperrors.ErrOptimisticLock, http.StatusConflict, 20112},
		{"wrapped optimistic lock", errors.Join(errors.New("保存出欠失败"), apperrors.ErrOptimisticLock), http.StatusConflict, 20112},
		{"store unavailable", apperrors.ErrStoreUnavailable, http.StatusServiceUnavailable, 50300},
		{"io failure", errors.New("connection reset"), http.StatusInternalServerError, 50000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAttendanceHandler(&mockAttendanceService{saveErr: tt.err})

			w := serveSave(h, jsonBody(validSaveRequest()))

			if w.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, w.Code)
			}
			resp := parseResponse(w)
			if resp.Code != tt.wantCode {
				t.Errorf("expected error code %d, got %d", tt.wantCode, resp.Code)
			}
			if resp.Message == "" {
				t.Error("expected toast message")
			}
		})
	}
}

func TestAttendanceHandler_ListStudentAttendance_Success(t *testing.T) {
	mock := &mockAttendanceService{
		listResult: &dto.StudentAttendanceResponse{ClassroomCode: "024", StudentID: "s0241234"},
	}
	h := NewAttendanceHandler(mock)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/classrooms/024/students/s0241234/attendance?from=2026-10-01&to=2026-10-31", nil)

	r := gin.New()
	r.GET("/classrooms/:code/students/:studentId/attendance", h.ListStudentAttendance)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	want := []string{"024", "s0241234", "2026-10-01", "2026-10-31"}
	if strings.Join(mock.listArgs, ",") != strings.Join(want, ",") {
		t.Errorf("expected args %v, got %v", want, mock.listArgs)
	}
}

func TestAttendanceHandler_ListStudentAttendance_MissingRange(t *testing.T) {
	mock := &mockAttendanceService{}
	h := NewAttendanceHandler(mock)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/classrooms/024/students/s0241234/attendance?from=2026-10-01", nil)

	r := gin.New()
	r.GET("/classrooms/:code/students/:studentId/attendance", h.ListStudentAttendance)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if mock.listArgs != nil {
		t.Error("service should not be called without a full range")
	}
}

func TestAttendanceHandler_ListStudentAttendance_InvalidRange(t *testing.T) {
	h := NewAttendanceHandler(&mockAttendanceService{listErr: service.ErrDateRangeInvalid})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/classrooms/024/students/s0241234/attendance?from=2026-10-31&to=2026-10-01", nil)

	r := gin.New()
	r.GET("/classrooms/:code/students/:studentId/attendance", h.ListStudentAttendance)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if resp := parseResponse(w); resp.Code != 20110 {
		t.Errorf("expected error code 20110, got %d", resp.Code)
	}
}

func TestAttendanceHandler_GetDailySchedule(t *testing.T) {
	mock := &mockAttendanceService{
		dailyResult: &dto.DailyScheduleResponse{DocID: "024_2026-10-19_1", Date: "2026-10-19", Weekday: 1},
	}
	h := NewAttendanceHandler(mock)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/classrooms/024/schedules/2026-10-19", nil)

	r := gin.New()
	r.GET("/classrooms/:code/schedules/:date", h.GetDailySchedule)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if mock.dailyDate != "2026-10-19" {
		t.Errorf("expected date 2026-10-19, got %q", mock.dailyDate)
	}
}

// ═══════════════════════════════════════════════════════════
// ExportHandler Tests
// ═══════════════════════════════════════════════════════════

func serveExport(h *ExportHandler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", path, nil)

	r := gin.New()
	r.GET("/classrooms/:code/students/:studentId/attendance/export", h.ExportAttendance)
	r.GET("/classrooms/:code/students/:studentId/calendar.ics", h.StudentCalendar)
	r.ServeHTTP(w, req)
	return w
}

func TestExportHandler_ExportAttendance_Success(t *testing.T) {
	h := NewExportHandler(&mockExportService{
		buf:      bytes.NewBufferString("xlsx-bytes"),
		filename: "出欠_s0241234_2026-10-01_2026-10-31.xlsx",
	}, &mockCalendarService{})

	w := serveExport(h, "/classrooms/024/students/s0241234/attendance/export?from=2026-10-01&to=2026-10-31")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Errorf("unexpected content type %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment; filename*=UTF-8''") {
		t.Errorf("unexpected content disposition %q", cd)
	}
	if w.Body.String() != "xlsx-bytes" {
		t.Errorf("unexpected body %q", w.Body.String())
	}
}

func TestExportHandler_ExportAttendance_NoEntries(t *testing.T) {
	h := NewExportHandler(&mockExportService{err: service.ErrExportNoEntries}, &mockCalendarService{})

	w := serveExport(h, "/classrooms/024/students/s0241234/attendance/export?from=2026-10-01&to=2026-10-31")

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	if resp := parseResponse(w); resp.Code != 16101 {
		t.Errorf("expected error code 16101, got %d", resp.Code)
	}
}

func TestExportHandler_ExportAttendance_GenerateFail(t *testing.T) {
	h := NewExportHandler(&mockExportService{err: service.ErrExportGenerateFail}, &mockCalendarService{})

	w := serveExport(h, "/classrooms/024/students/s0241234/attendance/export?from=2026-10-01&to=2026-10-31")

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

func TestExportHandler_StudentCalendar(t *testing.T) {
	body := "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"
	h := NewExportHandler(&mockExportService{}, &mockCalendarService{body: body})

	w := serveExport(h, "/classrooms/024/students/s0241234/calendar.ics?from=2026-10-01&to=2026-10-31")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Errorf("unexpected content type %q", ct)
	}
	if w.Body.String() != body {
		t.Errorf("unexpected body %q", w.Body.String())
	}
}

func TestExportHandler_StudentCalendar_MissingRange(t *testing.T) {
	h := NewExportHandler(&mockExportService{}, &mockCalendarService{})

	w := serveExport(h, "/classrooms/024/students/s0241234/calendar.ics")

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// ═══════════════════════════════════════════════════════════
// PeriodLabelHandler Tests
// ═══════════════════════════════════════════════════════════

func TestPeriodLabelHandler_Get(t *testing.T) {
	h := NewPeriodLabelHandler(&mockPeriodLabelService{
		getResult: &dto.PeriodLabelsResponse{ClassroomCode: "024", Labels: []model.PeriodLabel{{Label: "1限"}}},
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/classrooms/024/period-labels", nil)

	r := gin.New()
	r.GET("/classrooms/:code/period-labels", h.Get)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestPeriodLabelHandler_Get_NotConfigured(t *testing.T) {
	h := NewPeriodLabelHandler(&mockPeriodLabelService{getErr: service.ErrPeriodLabelsNotConfigured})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/classrooms/024/period-labels", nil)

	r := gin.New()
	r.GET("/classrooms/:code/period-labels", h.Get)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	if resp := parseResponse(w); resp.Code != 20201 {
		t.Errorf("expected error code 20201, got %d", resp.Code)
	}
}

func TestPeriodLabelHandler_Update(t *testing.T) {
	tests := []struct {
		name       string
		body       interface{}
		svcErr     error
		wantStatus int
		wantCode   int
	}{
		{
			name:       "success",
			body:       dto.UpdatePeriodLabelsRequest{Labels: []model.PeriodLabel{{Label: "1限", Time: "13:00-14:20"}}},
			wantStatus: http.StatusOK,
		},
		{
			name:       "empty list",
			body:       dto.UpdatePeriodLabelsRequest{},
			wantStatus: http.StatusBadRequest,
			wantCode:   10001,
		},
		{
			name: "too many",
			body: dto.UpdatePeriodLabelsRequest{Labels: []model.PeriodLabel{
				{Label: "1"}, {Label: "2"}, {Label: "3"}, {Label: "4"}, {Label: "5"},
				{Label: "6"}, {Label: "7"}, {Label: "8"}, {Label: "9"},
			}},
			wantStatus: http.StatusBadRequest,
			wantCode:   10001,
		},
		{
			name:       "duplicate",
			body:       dto.UpdatePeriodLabelsRequest{Labels: []model.PeriodLabel{{Label: "1限"}, {Label: "1限"}}},
			svcErr:     service.ErrPeriodLabelDuplicate,
			wantStatus: http.StatusBadRequest,
			wantCode:   20203,
		},
		{
			name:       "store failure",
			body:       dto.UpdatePeriodLabelsRequest{Labels: []model.PeriodLabel{{Label: "1限"}}},
			svcErr:     errors.New("db down"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   50000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockPeriodLabelService{
				updateResult: &dto.PeriodLabelsResponse{ClassroomCode: "024"},
				updateErr:    tt.svcErr,
			}
			h := NewPeriodLabelHandler(mock)

			w := httptest.NewRecorder()
			req := httptest.NewRequest("PUT", "/classrooms/024/period-labels", jsonBody(tt.body))
			req.Header.Set("Content-Type", "application/json")

			r := gin.New()
			r.PUT("/classrooms/:code/period-labels", h.Update)
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, w.Code)
			}
			if resp := parseResponse(w); resp.Code != tt.wantCode {
				t.Errorf("expected code %d, got %d", tt.wantCode, resp.Code)
			}
		})
	}
}

func TestBindError_BodyTooLarge(t *testing.T) {
	h := NewAttendanceHandler(&mockAttendanceService{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/classrooms/024/attendance/save", jsonBody(validSaveRequest()))
	req.Header.Set("Content-Type", "application/json")

	r := gin.New()
	r.POST("/classrooms/:code/attendance/save", func(c *gin.Context) {
		setAuth(c)
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 16)
		h.Save(c)
	})
	r.ServeHTTP(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", w.Code)
	}
}
