package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"juku-attendance/backend/internal/dto"
	"juku-attendance/backend/internal/model"
	"juku-attendance/backend/internal/repository"
)

// ── 时段标签模块业务错误 ──

var (
	ErrPeriodLabelsNotConfigured = errors.New("教室未配置时段标签")
	ErrPeriodLabelEmpty          = errors.New("时段标签不能为空")
	ErrPeriodLabelDuplicate      = errors.New("时段标签重复")
	ErrPeriodLabelTooMany        = errors.New("时段标签数量必须在 1-8 之间")
)

// PeriodLabelCache 时段标签缓存（由 Redis 实现）
type PeriodLabelCache interface {
	GetPeriodLabels(ctx context.Context, classroomCode string) ([]model.PeriodLabel, bool, error)
	SetPeriodLabels(ctx context.Context, classroomCode string, labels []model.PeriodLabel, ttl time.Duration) error
	InvalidatePeriodLabels(ctx context.Context, classroomCode string) error
}

// PeriodLabelService 时段标签业务接口
type PeriodLabelService interface {
	// 读取教室时段标签（教室未配置时回退到公共默认值）
	Get(ctx context.Context, classroomCode string) (*dto.PeriodLabelsResponse, error)
	// 覆盖教室时段标签
	Update(ctx context.Context, classroomCode string, req *dto.UpdatePeriodLabelsRequest) (*dto.PeriodLabelsResponse, error)
	// 供其他模块使用的原始标签列表
	Labels(ctx context.Context, classroomCode string) ([]model.PeriodLabel, error)
}

type periodLabelService struct {
	store  repository.ScheduleStore
	cache  PeriodLabelCache // 可为 nil
	ttl    time.Duration
	logger *zap.Logger
}

// NewPeriodLabelService 创建 PeriodLabelService 实例
// cache 为 nil 时每次直接读存储
func NewPeriodLabelService(store repository.ScheduleStore, cache PeriodLabelCache, ttl time.Duration, logger *zap.Logger) PeriodLabelService {
	return &periodLabelService{store: store, cache: cache, ttl: ttl, logger: logger}
}

func (s *periodLabelService) Get(ctx context.Context, classroomCode string) (*dto.PeriodLabelsResponse, error) {
	labels, err := s.Labels(ctx, classroomCode)
	if err != nil {
		return nil, err
	}
	return &dto.PeriodLabelsResponse{ClassroomCode: classroomCode, Labels: labels}, nil
}

func (s *periodLabelService) Labels(ctx context.Context, classroomCode string) ([]model.PeriodLabel, error) {
	if s.cache != nil {
		labels, hit, err := s.cache.GetPeriodLabels(ctx, classroomCode)
		if err != nil {
			// 缓存故障不影响读取
			s.logger.Warn("读取时段标签缓存失败", zap.String("classroom", classroomCode), zap.Error(err))
		} else if hit {
			return labels, nil
		}
	}

	labels, err := s.store.GetPeriodLabels(ctx, classroomCode)
	if err != nil {
		s.logger.Error("查询时段标签失败", zap.String("classroom", classroomCode), zap.Error(err))
		return nil, err
	}
	if len(labels) == 0 {
		return nil, ErrPeriodLabelsNotConfigured
	}

	if s.cache != nil {
		if err := s.cache.SetPeriodLabels(ctx, classroomCode, labels, s.ttl); err != nil {
			s.logger.Warn("写入时段标签缓存失败", zap.String("classroom", classroomCode), zap.Error(err))
		}
	}
	return labels, nil
}

func (s *periodLabelService) Update(ctx context.Context, classroomCode string, req *dto.UpdatePeriodLabelsRequest) (*dto.PeriodLabelsResponse, error) {
	labels, err := normalizePeriodLabels(req.Labels)
	if err != nil {
		return nil, err
	}

	if err := s.store.SavePeriodLabels(ctx, classroomCode, labels); err != nil {
		s.logger.Error("保存时段标签失败", zap.String("classroom", classroomCode), zap.Error(err))
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.InvalidatePeriodLabels(ctx, classroomCode); err != nil {
			s.logger.Warn("清除时段标签缓存失败", zap.String("classroom", classroomCode), zap.Error(err))
		}
	}

	s.logger.Info("时段标签已更新", zap.String("classroom", classroomCode), zap.Int("count", len(labels)))
	return &dto.PeriodLabelsResponse{ClassroomCode: classroomCode, Labels: labels}, nil
}

// normalizePeriodLabels 去除首尾空白并校验数量、非空、唯一
func normalizePeriodLabels(in []model.PeriodLabel) ([]model.PeriodLabel, error) {
	if len(in) == 0 || len(in) > model.MaxPeriods {
		return nil, ErrPeriodLabelTooMany
	}
	out := make([]model.PeriodLabel, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, l := range in {
		label := strings.TrimSpace(l.Label)
		if label == "" {
			return nil, ErrPeriodLabelEmpty
		}
		if seen[label] {
			return nil, ErrPeriodLabelDuplicate
		}
		seen[label] = true
		out = append(out, model.PeriodLabel{Label: label, Time: strings.TrimSpace(l.Time)})
	}
	return out, nil
}
