package service

import (
	"context"
	"fmt"
	"time"

	"MatchPulse/internal/queue"
	"MatchPulse/internal/repository"

	"github.com/sirupsen/logrus"
)

// FixtureQueue 扫描器用到的队列操作
type FixtureQueue interface {
	FixtureEnqueuer
	Contains(ctx context.Context, fixtureID uint64) (bool, error)
}

// Scanner 定时扫描即将开赛且没有当前预测的赛事，放入普通队列
type Scanner struct {
	fixtures    repository.FixtureRepository
	predictions repository.PredictionRepository
	queue       FixtureQueue
	horizon     time.Duration
	logger      *logrus.Logger
	now         func() time.Time
}

func NewScanner(fixtures repository.FixtureRepository, predictions repository.PredictionRepository, q FixtureQueue, horizon time.Duration, logger *logrus.Logger) *Scanner {
	if horizon <= 0 {
		horizon = 72 * time.Hour
	}
	return &Scanner{
		fixtures:    fixtures,
		predictions: predictions,
		queue:       q,
		horizon:     horizon,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Run 返回本次入队数量；单场赛事入队失败不影响其它赛事
func (s *Scanner) Run(ctx context.Context) (int, error) {
	now := s.now()
	upcoming, err := s.fixtures.ListUpcoming(ctx, now, now.Add(s.horizon), 1000)
	if err != nil {
		return 0, fmt.Errorf("拉取待开赛赛事失败: %w", err)
	}
	if len(upcoming) == 0 {
		s.logger.Debug("赛事扫描：窗口内无待开赛赛事")
		return 0, nil
	}
	ids := make([]uint64, 0, len(upcoming))
	for _, f := range upcoming {
		ids = append(ids, f.ID)
	}
	hasCurrent, err := s.predictions.FixturesWithCurrent(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("查询已有预测失败: %w", err)
	}

	enqueued := 0
	for _, id := range ids {
		if hasCurrent[id] {
			continue
		}
		queued, err := s.queue.Contains(ctx, id)
		if err != nil {
			s.logger.WithError(err).WithField("fixture_id", id).Warn("检查队列失败，跳过")
			continue
		}
		if queued {
			continue
		}
		if err := s.queue.Push(ctx, id, queue.Normal); err != nil {
			s.logger.WithError(err).WithField("fixture_id", id).Warn("赛事入队失败")
			continue
		}
		enqueued++
	}
	s.logger.Infof("赛事扫描完成：%d 场待开赛，%d 场入队", len(ids), enqueued)
	return enqueued, nil
}
