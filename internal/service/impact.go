package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"MatchPulse/internal/interfaces"
	"MatchPulse/internal/linker"
	"MatchPulse/internal/model"
	"MatchPulse/internal/queue"
	"MatchPulse/internal/repository"
	"MatchPulse/internal/retry"

	"github.com/sirupsen/logrus"
)

// ImpactStatus 影响分析的结果状态
type ImpactStatus string

const (
	ImpactNoEntities    ImpactStatus = "no_entities"
	ImpactNoPredictions ImpactStatus = "no_predictions"
	ImpactNone          ImpactStatus = "no_impact"
	ImpactSuccess       ImpactStatus = "success"
)

// FixtureImpact 单场赛事的评估结果
type FixtureImpact struct {
	FixtureID    uint64              `json:"fixture_id"`
	PredictionID uint64              `json:"prediction_id"`
	Rating       *model.ImpactRating `json:"rating,omitempty"`
	Invalidated  bool                `json:"invalidated"`
	PatchID      uint64              `json:"patch_id,omitempty"`
	Error        string              `json:"error,omitempty"`
}

// ImpactReport 影响分析报告
type ImpactReport struct {
	Status      ImpactStatus    `json:"status"`
	EntityNames []string        `json:"entity_names"`
	TeamIDs     []uint64        `json:"team_ids"`
	FixtureIDs  []uint64        `json:"fixture_ids"`
	Fixtures    []FixtureImpact `json:"fixtures"`
	Invalidated int             `json:"invalidated"`
}

// FixtureEnqueuer 赛事工作队列写入
type FixtureEnqueuer interface {
	Push(ctx context.Context, fixtureID uint64, p queue.Priority) error
}

// ImpactOptions 影响分析阈值
type ImpactOptions struct {
	ConfidenceThreshold float64
	Lookahead           time.Duration
}

// ImpactAnalyzer 突发新闻与前瞻窗口内赛事关联，判断现有预测是否失效
type ImpactAnalyzer struct {
	extractor   interfaces.EntityExtractor
	linker      *linker.Linker
	entities    repository.EntityRepository
	fixtures    repository.FixtureRepository
	predictions repository.PredictionRepository
	reasoning   interfaces.ReasoningService
	queue       FixtureEnqueuer
	notifier    interfaces.Notifier
	policy      retry.Policy
	opts        ImpactOptions
	logger      *logrus.Logger
	now         func() time.Time
}

func NewImpactAnalyzer(extractor interfaces.EntityExtractor, lk *linker.Linker, entities repository.EntityRepository,
	fixtures repository.FixtureRepository, predictions repository.PredictionRepository, rs interfaces.ReasoningService,
	q FixtureEnqueuer, notifier interfaces.Notifier, policy retry.Policy, opts ImpactOptions, logger *logrus.Logger) *ImpactAnalyzer {
	if opts.Lookahead <= 0 {
		opts.Lookahead = 48 * time.Hour
	}
	return &ImpactAnalyzer{
		extractor:   extractor,
		linker:      lk,
		entities:    entities,
		fixtures:    fixtures,
		predictions: predictions,
		reasoning:   rs,
		queue:       q,
		notifier:    notifier,
		policy:      policy,
		opts:        opts,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Analyze 实体抽取 -> 赛事定位 -> 当前预测 -> 影响评分 -> 失效处理。
// "无事可做" 通过状态返回；error 只表示实体或赛事查询本身失败（可重试）。单场赛事的失败记录在报告中，不影响其它赛事。
func (a *ImpactAnalyzer) Analyze(ctx context.Context, ev *model.RawEvent, cl *model.Classification) (*ImpactReport, error) {
	text := ev.FullText
	if ev.Title != "" {
		text = ev.Title + ". " + text
	}
	report := &ImpactReport{EntityNames: a.extractor.ExtractNames(text)}

	teamIDs, err := a.resolveTeams(ctx, report.EntityNames)
	if err != nil {
		return nil, err
	}
	report.TeamIDs = teamIDs
	var candidates []uint64
	if cl != nil {
		candidates = cl.CandidateFixtureIDs
	}
	if len(teamIDs) == 0 && len(candidates) == 0 {
		report.Status = ImpactNoEntities
		return report, nil
	}

	now := a.now()
	fixtures, err := a.affectedFixtures(ctx, teamIDs, candidates, now, now.Add(a.opts.Lookahead))
	if err != nil {
		return nil, err
	}
	type target struct {
		fixture    *model.Fixture
		prediction *model.Prediction
	}
	var targets []target
	for _, f := range fixtures {
		report.FixtureIDs = append(report.FixtureIDs, f.ID)
		p, err := a.predictions.CurrentPreMatch(ctx, f.ID)
		if err != nil {
			a.logger.WithError(err).WithField("fixture_id", f.ID).Warn("查询当前预测失败，跳过该赛事")
			report.Fixtures = append(report.Fixtures, FixtureImpact{FixtureID: f.ID, Error: err.Error()})
			continue
		}
		if p != nil {
			targets = append(targets, target{fixture: f, prediction: p})
		}
	}
	if len(targets) == 0 {
		report.Status = ImpactNoPredictions
		return report, nil
	}

	for _, t := range targets {
		fi := a.assess(ctx, ev, report.EntityNames, t.fixture, t.prediction)
		if fi.Invalidated {
			report.Invalidated++
		}
		report.Fixtures = append(report.Fixtures, fi)
	}
	if report.Invalidated > 0 {
		report.Status = ImpactSuccess
	} else {
		report.Status = ImpactNone
	}
	a.logger.WithFields(logrus.Fields{
		"status":      report.Status,
		"fixtures":    len(report.FixtureIDs),
		"invalidated": report.Invalidated,
	}).Info("突发新闻影响分析完成")
	return report, nil
}

// resolveTeams 先解析球队，再以球队为上下文解析球员/教练，并把他们的当前球队并入
func (a *ImpactAnalyzer) resolveTeams(ctx context.Context, names []string) ([]uint64, error) {
	if len(names) == 0 {
		return nil, nil
	}
	teams, err := a.linker.LinkAll(ctx, names, model.EntityTeam, nil)
	if err != nil {
		return nil, err
	}
	set := make(map[uint64]struct{})
	for _, id := range teams {
		set[id] = struct{}{}
	}
	for _, kind := range []model.EntityKind{model.EntityPlayer, model.EntityCoach} {
		ids, err := a.linker.LinkAll(ctx, names, kind, teams)
		if err != nil {
			return nil, err
		}
		current, err := a.entities.CurrentTeamIDs(ctx, kind, ids)
		if err != nil {
			return nil, fmt.Errorf("查询%s当前球队失败: %w", kind, err)
		}
		for _, id := range current {
			set[id] = struct{}{}
		}
	}
	out := make([]uint64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (a *ImpactAnalyzer) affectedFixtures(ctx context.Context, teamIDs, candidates []uint64, from, to time.Time) ([]*model.Fixture, error) {
	byTeam, err := a.fixtures.ListByTeamsInWindow(ctx, teamIDs, from, to)
	if err != nil {
		return nil, fmt.Errorf("查询受影响赛事失败: %w", err)
	}
	byID, err := a.fixtures.ListByIDsInWindow(ctx, candidates, from, to)
	if err != nil {
		return nil, fmt.Errorf("查询候选赛事失败: %w", err)
	}
	seen := make(map[uint64]struct{})
	var out []*model.Fixture
	for _, f := range append(byTeam, byID...) {
		if _, ok := seen[f.ID]; ok {
			continue
		}
		seen[f.ID] = struct{}{}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].KickoffTime.Equal(out[j].KickoffTime) {
			return out[i].KickoffTime.Before(out[j].KickoffTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (a *ImpactAnalyzer) assess(ctx context.Context, ev *model.RawEvent, names []string, f *model.Fixture, p *model.Prediction) FixtureImpact {
	fi := FixtureImpact{FixtureID: f.ID, PredictionID: p.ID}
	log := a.logger.WithFields(logrus.Fields{"fixture_id": f.ID, "prediction_id": p.ID})

	req := &model.ImpactRequest{
		NewsText:    ev.FullText,
		Author:      ev.Author,
		Match:       matchInfo(f),
		Prediction:  p,
		EntityNames: names,
	}
	var rating *model.ImpactRating
	if _, err := a.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		r, err := a.reasoning.RateImpact(ctx, req)
		if err != nil {
			return err
		}
		rating = r
		return nil
	}); err != nil {
		log.WithError(err).Warn("影响评分失败")
		fi.Error = err.Error()
		return fi
	}
	fi.Rating = rating
	if !a.RequiresUpdate(rating) {
		return fi
	}

	now := a.now()
	// 1. 置 stale；并发场景下可能已被其它实例置位，此时跳过后续步骤
	staled, err := a.predictions.MarkStale(ctx, p.ID, now)
	if err != nil {
		log.WithError(err).Warn("预测置 stale 失败")
		fi.Error = err.Error()
		return fi
	}
	if !staled {
		log.Info("预测已被其它实例置为 stale，跳过")
		return fi
	}
	fi.Invalidated = true

	// 2. 优先队列
	if err := a.queue.Push(ctx, f.ID, queue.High); err != nil {
		log.WithError(err).Warn("赛事加入优先队列失败")
		fi.Error = err.Error()
	}

	// 3. 临时 patch 预测
	patch := a.buildPatch(f.ID, rating, now)
	if err := a.predictions.CreatePatch(ctx, patch); err != nil {
		log.WithError(err).Warn("写入 breaking-patch 失败")
		fi.Error = err.Error()
	} else {
		fi.PatchID = patch.ID
	}

	// 4. 通知
	n := &model.Notification{
		Type:      "breaking_update",
		FixtureID: f.ID,
		Content:   notificationContent(f, rating),
		Priority:  "high",
		Timestamp: now,
	}
	if err := a.notifier.Notify(ctx, n); err != nil {
		log.WithError(err).Warn("发送通知失败")
		fi.Error = err.Error()
	}
	log.WithFields(logrus.Fields{
		"impact_level": rating.Level,
		"confidence":   rating.Confidence,
	}).Info("预测已失效，等待重新生成")
	return fi
}

// RequiresUpdate HIGH/MEDIUM 且置信度达到阈值
func (a *ImpactAnalyzer) RequiresUpdate(r *model.ImpactRating) bool {
	if r == nil {
		return false
	}
	return (r.Level == model.ImpactHigh || r.Level == model.ImpactMedium) && r.Confidence >= a.opts.ConfidenceThreshold
}

func (a *ImpactAnalyzer) buildPatch(fixtureID uint64, r *model.ImpactRating, now time.Time) *model.Prediction {
	insights, _ := json.Marshal([]string{r.KeyInsight})
	return &model.Prediction{
		FixtureID:      fixtureID,
		Kind:           model.KindBreakingPatch,
		Narrative:      r.Reasoning,
		FinalSummary:   "QUICK UPDATE: " + r.KeyInsight,
		Confidence:     int(math.Round(r.Confidence * 100)),
		ValueBets:      []byte("[]"),
		RiskFactors:    []byte("[]"),
		KeyInsights:    insights,
		ContextQuality: "breaking",
		ModelVersion:   "quick_patch_" + a.reasoning.ModelVersion(),
		GeneratedAt:    now,
	}
}

func notificationContent(f *model.Fixture, r *model.ImpactRating) string {
	head := r.Headline
	if head == "" {
		head = fmt.Sprintf("%s impact on prediction", r.Level)
	}
	match := fmt.Sprintf("fixture %d", f.ID)
	if f.HomeName() != "" && f.AwayName() != "" {
		match = f.HomeName() + " vs " + f.AwayName()
	}
	return fmt.Sprintf("%s (%s): %s", head, match, r.KeyInsight)
}

func matchInfo(f *model.Fixture) model.MatchInfo {
	return model.MatchInfo{
		FixtureID:   f.ID,
		HomeTeamID:  f.HomeTeamID,
		AwayTeamID:  f.AwayTeamID,
		HomeTeam:    f.HomeName(),
		AwayTeam:    f.AwayName(),
		LeagueID:    f.LeagueID,
		KickoffTime: f.KickoffTime,
		Status:      f.Status,
	}
}
