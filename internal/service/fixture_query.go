package service

import (
	"context"
	"errors"
	"fmt"

	"MatchPulse/internal/model"
	"MatchPulse/internal/queue"
	"MatchPulse/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrFixtureNotFound 查询的赛事不存在
var ErrFixtureNotFound = errors.New("fixture not found")

// FixtureQueryService 面向 API 的赛事与预测查询
type FixtureQueryService struct {
	fixtures    repository.FixtureRepository
	predictions repository.PredictionRepository
	odds        repository.OddsRepository
	queue       FixtureQueue
	logger      *logrus.Logger
}

// NewFixtureQueryService 创建 FixtureQueryService
func NewFixtureQueryService(fixtures repository.FixtureRepository, predictions repository.PredictionRepository, odds repository.OddsRepository, q FixtureQueue, logger *logrus.Logger) *FixtureQueryService {
	return &FixtureQueryService{
		fixtures:    fixtures,
		predictions: predictions,
		odds:        odds,
		queue:       q,
		logger:      logger,
	}
}

// FixtureSummary 列表页单场赛事
type FixtureSummary struct {
	ID            uint64 `json:"id"`
	LeagueID      uint64 `json:"league_id"`
	HomeTeam      string `json:"home_team"`
	AwayTeam      string `json:"away_team"`
	KickoffTime   int64  `json:"kickoff_time"` // 毫秒
	Status        string `json:"status"`
	HasPrediction bool   `json:"has_prediction"`
}

// FixtureListResult 列表返回
type FixtureListResult struct {
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
	Total    int64            `json:"total"`
	Items    []FixtureSummary `json:"items"`
}

// FixtureDetail 赛事详情：最新赔率与预测视图
type FixtureDetail struct {
	FixtureSummary
	ScoreHome  *int                  `json:"score_home,omitempty"`
	ScoreAway  *int                  `json:"score_away,omitempty"`
	Odds       model.MarketOdds      `json:"odds,omitempty"`
	Prediction *model.PredictionView `json:"prediction"`
}

func summarize(f *model.Fixture) FixtureSummary {
	return FixtureSummary{
		ID:          f.ID,
		LeagueID:    f.LeagueID,
		HomeTeam:    f.HomeName(),
		AwayTeam:    f.AwayName(),
		KickoffTime: f.KickoffTime.UnixMilli(),
		Status:      f.Status,
	}
}

// ListFixtures 分页返回赛事，并标记是否已有当前预测
func (s *FixtureQueryService) ListFixtures(ctx context.Context, filter repository.FixtureFilter, page, pageSize int) (*FixtureListResult, error) {
	list, total, err := s.fixtures.ListFixtures(ctx, filter, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("查询赛事列表失败: %w", err)
	}
	result := &FixtureListResult{
		Page:     page,
		PageSize: pageSize,
		Total:    total,
		Items:    make([]FixtureSummary, 0, len(list)),
	}
	if len(list) == 0 {
		return result, nil
	}

	ids := make([]uint64, 0, len(list))
	for _, f := range list {
		ids = append(ids, f.ID)
	}
	hasCurrent, err := s.predictions.FixturesWithCurrent(ctx, ids)
	if err != nil {
		s.logger.WithError(err).Warn("FixturesWithCurrent")
		hasCurrent = map[uint64]bool{}
	}
	for _, f := range list {
		item := summarize(f)
		item.HasPrediction = hasCurrent[f.ID]
		result.Items = append(result.Items, item)
	}
	return result, nil
}

// GetFixture 赛事详情；赔率读取失败只记日志
func (s *FixtureQueryService) GetFixture(ctx context.Context, id uint64) (*FixtureDetail, error) {
	f, err := s.getFixture(ctx, id)
	if err != nil {
		return nil, err
	}
	view, err := s.predictions.View(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("查询预测失败: %w", err)
	}
	detail := &FixtureDetail{
		FixtureSummary: summarize(f),
		ScoreHome:      f.ScoreHome,
		ScoreAway:      f.ScoreAway,
		Prediction:     view,
	}
	detail.HasPrediction = view.Status == model.StatusCurrent
	odds, err := s.odds.Latest(ctx, id)
	if err != nil {
		s.logger.WithError(err).WithField("fixture_id", id).Warn("读取赔率快照失败")
	} else {
		detail.Odds = odds
	}
	return detail, nil
}

// GetPrediction 对外可展示的预测；stale 的预测只会以 pending 状态出现
func (s *FixtureQueryService) GetPrediction(ctx context.Context, fixtureID uint64) (*model.PredictionView, error) {
	if _, err := s.getFixture(ctx, fixtureID); err != nil {
		return nil, err
	}
	view, err := s.predictions.View(ctx, fixtureID)
	if err != nil {
		return nil, fmt.Errorf("查询预测失败: %w", err)
	}
	return view, nil
}

// RequestGeneration 将赛事放入工作队列；已在队列中时不重复入队，返回 false
func (s *FixtureQueryService) RequestGeneration(ctx context.Context, fixtureID uint64, p queue.Priority) (bool, error) {
	if _, err := s.getFixture(ctx, fixtureID); err != nil {
		return false, err
	}
	queued, err := s.queue.Contains(ctx, fixtureID)
	if err != nil {
		return false, err
	}
	if queued {
		return false, nil
	}
	if err := s.queue.Push(ctx, fixtureID, p); err != nil {
		return false, err
	}
	s.logger.WithFields(logrus.Fields{"fixture_id": fixtureID, "priority": p}).Info("赛事已按请求入队")
	return true, nil
}

func (s *FixtureQueryService) getFixture(ctx context.Context, id uint64) (*model.Fixture, error) {
	f, err := s.fixtures.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFixtureNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询赛事 %d 失败: %w", id, err)
	}
	return f, nil
}
