package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"MatchPulse/internal/interfaces"
	"MatchPulse/internal/model"
	"MatchPulse/internal/repository"
	"MatchPulse/internal/retry"

	"github.com/sirupsen/logrus"
)

// maxChunksPerSection 预测请求中每个类别最多带入的切块数
const maxChunksPerSection = 3

// sectionOrder 预测请求中上下文类别的排列顺序，未列出的类别按 model.Categories 顺序排在后面
var sectionOrder = []string{
	model.CategoryInjury,
	model.CategoryTeamNews,
	model.CategoryTransfer,
	model.CategoryPreview,
	model.CategoryPerformance,
	model.CategoryManagerial,
	model.CategoryMatchResult,
}

// ContextRetriever 赛事上下文检索
type ContextRetriever interface {
	Retrieve(ctx context.Context, fixtureID uint64, daysBack int) (*model.RankedContext, error)
}

// Reasoner 组装上下文与赔率请求推理服务，校验后落库为新的当前 pre-match 预测
type Reasoner struct {
	retriever   ContextRetriever
	reasoning   interfaces.ReasoningService
	predictions repository.PredictionRepository
	odds        repository.OddsRepository
	policy      retry.Policy
	logger      *logrus.Logger
	now         func() time.Time
}

func NewReasoner(retriever ContextRetriever, rs interfaces.ReasoningService, predictions repository.PredictionRepository,
	odds repository.OddsRepository, policy retry.Policy, logger *logrus.Logger) *Reasoner {
	return &Reasoner{
		retriever:   retriever,
		reasoning:   rs,
		predictions: predictions,
		odds:        odds,
		policy:      policy,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// GenerateForFixture 赛事队列的处理入口：检索上下文、读取最新赔率、生成并落库
func (r *Reasoner) GenerateForFixture(ctx context.Context, fixtureID uint64) (*model.Prediction, error) {
	rc, err := r.retriever.Retrieve(ctx, fixtureID, 0)
	if err != nil {
		return nil, err
	}
	odds, err := r.odds.Latest(ctx, fixtureID)
	if err != nil {
		r.logger.WithError(err).WithField("fixture_id", fixtureID).Warn("读取赔率快照失败，按无赔率处理")
		odds = nil
	}
	return r.Predict(ctx, rc, odds)
}

// Predict 校验失败或重试耗尽时不落库任何预测
func (r *Reasoner) Predict(ctx context.Context, rc *model.RankedContext, odds model.MarketOdds) (*model.Prediction, error) {
	req := &model.PredictRequest{
		Match:    rc.Match,
		Odds:     odds,
		Summary:  rc.Summary,
		Sections: BuildSections(rc),
	}
	var draft *model.PredictionDraft
	attempts, err := r.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		d, err := r.reasoning.Predict(ctx, req)
		if err != nil {
			return err
		}
		draft = d
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("生成预测失败 fixture_id=%d（尝试 %d 次）: %w", rc.Match.FixtureID, attempts, err)
	}

	p, err := r.toPrediction(rc, draft)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	if err := r.predictions.CreatePreMatch(ctx, p); err != nil {
		return nil, fmt.Errorf("保存预测失败: %w", err)
	}
	r.logger.WithFields(logrus.Fields{
		"fixture_id":    p.FixtureID,
		"prediction_id": p.ID,
		"confidence":    p.Confidence,
		"value_bets":    len(draft.ValueBets),
		"context":       rc.Summary.TotalChunks,
	}).Info("赛前预测已生成")
	return p, nil
}

func (r *Reasoner) toPrediction(rc *model.RankedContext, d *model.PredictionDraft) (*model.Prediction, error) {
	bets, err := json.Marshal(d.ValueBets)
	if err != nil {
		return nil, err
	}
	risks, err := json.Marshal(d.RiskFactors)
	if err != nil {
		return nil, err
	}
	insights, err := json.Marshal(d.KeyInsights)
	if err != nil {
		return nil, err
	}
	quality := d.ContextQuality
	if quality == "" {
		quality = contextQuality(rc.Summary.TotalChunks)
	}
	return &model.Prediction{
		FixtureID:      rc.Match.FixtureID,
		Kind:           model.KindPreMatch,
		Narrative:      d.Narrative,
		FinalSummary:   d.FinalSummary,
		Confidence:     d.Confidence,
		ValueBets:      bets,
		RiskFactors:    risks,
		KeyInsights:    insights,
		ContextQuality: quality,
		ModelVersion:   r.reasoning.ModelVersion(),
		GeneratedAt:    r.now(),
	}, nil
}

func contextQuality(total int) string {
	switch {
	case total >= 10:
		return "high"
	case total >= 4:
		return "medium"
	default:
		return "low"
	}
}

// BuildSections 按类别优先级分组，每类最多 3 个切块，保持排序结果内的先后
func BuildSections(rc *model.RankedContext) []model.ContextSection {
	order := append([]string{}, sectionOrder...)
	listed := make(map[string]bool, len(order))
	for _, c := range order {
		listed[c] = true
	}
	for _, c := range model.Categories {
		if !listed[c] {
			order = append(order, c)
		}
	}

	var sections []model.ContextSection
	for _, cat := range order {
		chunks := rc.ByCategory[cat]
		if len(chunks) == 0 {
			continue
		}
		if len(chunks) > maxChunksPerSection {
			chunks = chunks[:maxChunksPerSection]
		}
		sections = append(sections, model.ContextSection{Category: cat, Chunks: chunks})
	}
	return sections
}
