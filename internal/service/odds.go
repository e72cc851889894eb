package service

import (
	"context"
	"errors"
	"fmt"

	"MatchPulse/internal/model"
	"MatchPulse/internal/repository"
	"MatchPulse/internal/retry"

	"github.com/sirupsen/logrus"
)

// OddsService 处理事件流中的 odds 事件，维护每场赛事最新赔率快照
type OddsService struct {
	fixtures repository.FixtureRepository
	odds     repository.OddsRepository
	logger   *logrus.Logger
}

func NewOddsService(fixtures repository.FixtureRepository, odds repository.OddsRepository, logger *logrus.Logger) *OddsService {
	return &OddsService{fixtures: fixtures, odds: odds, logger: logger}
}

// Apply 赛事不存在或赔率非法视为永久错误
func (s *OddsService) Apply(ctx context.Context, ev *model.RawEvent) error {
	if ev.FixtureID == 0 || len(ev.Odds) == 0 {
		return retry.Permanent(errors.New("odds 事件缺少 fixture_id 或 odds"))
	}
	clean := make(model.MarketOdds, len(ev.Odds))
	for market, outcomes := range ev.Odds {
		for outcome, price := range outcomes {
			if price < 1 {
				s.logger.WithFields(logrus.Fields{
					"fixture_id": ev.FixtureID,
					"market":     market,
					"outcome":    outcome,
					"price":      price,
				}).Warn("赔率小于 1，已忽略")
				continue
			}
			if clean[market] == nil {
				clean[market] = make(map[string]float64)
			}
			clean[market][outcome] = price
		}
	}
	if len(clean) == 0 {
		return retry.Permanent(fmt.Errorf("fixture %d 的赔率全部非法", ev.FixtureID))
	}
	if _, err := s.fixtures.GetByID(ctx, ev.FixtureID); err != nil {
		return missingEntity(err, "查询赛事 %d 失败", ev.FixtureID)
	}
	if err := s.odds.Upsert(ctx, ev.FixtureID, ev.Source, clean, ev.Timestamp()); err != nil {
		return fmt.Errorf("更新赔率快照失败: %w", err)
	}
	s.logger.WithFields(logrus.Fields{"fixture_id": ev.FixtureID, "markets": len(clean)}).Debug("赔率快照已更新")
	return nil
}
