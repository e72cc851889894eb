package service

import (
	"context"
	"fmt"
	"time"

	"MatchPulse/internal/interfaces"
	"MatchPulse/internal/model"
	"MatchPulse/internal/reasoning"
	"MatchPulse/internal/repository"
	"MatchPulse/internal/retry"

	"github.com/sirupsen/logrus"
)

// maxFixtureOptions 分类请求中最多列出的候选赛事
const maxFixtureOptions = 50

// Classifier 内容分类（突发新闻检测）
type Classifier struct {
	reasoning interfaces.ReasoningService
	fixtures  repository.FixtureRepository
	policy    retry.Policy
	threshold int
	lookahead time.Duration
	logger    *logrus.Logger
	now       func() time.Time
}

func NewClassifier(rs interfaces.ReasoningService, fixtures repository.FixtureRepository, policy retry.Policy, threshold int, lookahead time.Duration, logger *logrus.Logger) *Classifier {
	return &Classifier{
		reasoning: rs,
		fixtures:  fixtures,
		policy:    policy,
		threshold: threshold,
		lookahead: lookahead,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Classify 打分；暂时性错误按策略重试，响应校验失败直接返回保守默认值 {1, NORMAL}
func (c *Classifier) Classify(ctx context.Context, text, author string) (*model.Classification, error) {
	now := c.now()
	upcoming, err := c.fixtures.ListUpcoming(ctx, now, now.Add(c.lookahead), maxFixtureOptions)
	if err != nil {
		return nil, fmt.Errorf("查询前瞻窗口内赛事失败: %w", err)
	}
	req := &model.ClassifyRequest{Text: text, Author: author, Fixtures: make([]model.FixtureOption, 0, len(upcoming))}
	for _, f := range upcoming {
		req.Fixtures = append(req.Fixtures, model.FixtureOption{
			ID:          f.ID,
			HomeTeam:    f.HomeName(),
			AwayTeam:    f.AwayName(),
			KickoffTime: f.KickoffTime,
		})
	}

	var result *model.Classification
	attempts, err := c.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		res, err := c.reasoning.Classify(ctx, req)
		if err != nil {
			if retry.IsTransient(err) {
				c.logger.WithError(err).WithField("attempt", attempt).Warn("分类调用失败，准备重试")
			}
			return err
		}
		result = res
		return nil
	})
	if reasoning.IsParseError(err) {
		c.logger.WithError(err).WithField("author", author).Warn("分类响应校验失败，使用默认分类")
		def := model.DefaultClassification()
		def.CandidateFixtureIDs = []uint64{}
		return &def, nil
	}
	if err != nil {
		return nil, fmt.Errorf("分类失败（尝试 %d 次）: %w", attempts, err)
	}
	return result, nil
}

// ShouldTrigger 是否达到突发新闻阈值
func (c *Classifier) ShouldTrigger(cl *model.Classification) bool {
	return cl != nil && cl.Importance >= c.threshold
}
