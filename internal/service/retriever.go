package service

import (
	"context"
	"math"
	"sort"
	"time"

	"MatchPulse/internal/interfaces"
	"MatchPulse/internal/model"
	"MatchPulse/internal/repository"

	"github.com/sirupsen/logrus"
)

// 类别加分：伤病 > 转会 > 球队新闻/战术 > 赛前分析 > 球员表现 > 其它
var categoryBonus = map[string]float64{
	model.CategoryInjury:      15,
	model.CategoryTransfer:    12,
	model.CategoryTeamNews:    10,
	model.CategoryPreview:     8,
	model.CategoryPerformance: 5,
}

// maxAgePenalty 时间衰减上限（天）
const maxAgePenalty = 10

// RetrieverOptions 检索参数
type RetrieverOptions struct {
	DaysBack           int
	MaxChunksPerSearch int
	TopChunks          int
}

// Retriever 赛事上下文检索与重排；无缓存，同一索引内容下结果确定
type Retriever struct {
	fixtures repository.FixtureRepository
	vectors  interfaces.VectorIndex
	opts     RetrieverOptions
	logger   *logrus.Logger
}

func NewRetriever(fixtures repository.FixtureRepository, vectors interfaces.VectorIndex, opts RetrieverOptions, logger *logrus.Logger) *Retriever {
	if opts.DaysBack <= 0 {
		opts.DaysBack = 14
	}
	if opts.MaxChunksPerSearch <= 0 {
		opts.MaxChunksPerSearch = 100
	}
	if opts.TopChunks <= 0 {
		opts.TopChunks = 20
	}
	return &Retriever{fixtures: fixtures, vectors: vectors, opts: opts, logger: logger}
}

// Retrieve 检索赛事双方在 [kickoff-daysBack, kickoff] 内的切块并排序；daysBack<=0 使用默认值
func (r *Retriever) Retrieve(ctx context.Context, fixtureID uint64, daysBack int) (*model.RankedContext, error) {
	if daysBack <= 0 {
		daysBack = r.opts.DaysBack
	}
	fixture, err := r.fixtures.GetByID(ctx, fixtureID)
	if err != nil {
		return nil, missingEntity(err, "查询赛事 %d 失败", fixtureID)
	}
	kickoff := fixture.KickoffTime.UTC()
	matches, err := r.vectors.Query(ctx, model.VectorFilter{
		AnyTeamIDs: fixture.TeamIDs(),
		From:       kickoff.Add(-time.Duration(daysBack) * 24 * time.Hour),
		To:         kickoff,
	}, r.opts.MaxChunksPerSearch)
	if err != nil {
		return nil, err
	}

	ranked := Rank(matches, kickoff)
	if len(ranked) > r.opts.TopChunks {
		ranked = ranked[:r.opts.TopChunks]
	}
	rc := &model.RankedContext{
		Match: model.MatchInfo{
			FixtureID:   fixture.ID,
			HomeTeamID:  fixture.HomeTeamID,
			AwayTeamID:  fixture.AwayTeamID,
			HomeTeam:    fixture.HomeName(),
			AwayTeam:    fixture.AwayName(),
			LeagueID:    fixture.LeagueID,
			KickoffTime: kickoff,
			Status:      fixture.Status,
		},
		DaysBack:   daysBack,
		Summary:    Summarize(ranked),
		ByCategory: make(map[string][]model.RankedChunk),
		All:        ranked,
	}
	for _, c := range ranked {
		rc.ByCategory[c.Category] = append(rc.ByCategory[c.Category], c)
	}
	r.logger.WithFields(logrus.Fields{
		"fixture_id": fixtureID,
		"candidates": len(matches),
		"selected":   len(ranked),
	}).Debug("上下文检索完成")
	return rc, nil
}

// Score 20*importance + 类别加分 - min(文档距开赛天数, 10)
func Score(importance int, category string, docTime, kickoff time.Time) (float64, int) {
	age := 0
	if d := kickoff.Sub(docTime); d > 0 {
		age = int(math.Floor(d.Hours() / 24))
	}
	penalty := age
	if penalty > maxAgePenalty {
		penalty = maxAgePenalty
	}
	return 20*float64(importance) + categoryBonus[category] - float64(penalty), age
}

// Rank 去重、打分并排序。平分时依次按重要度降序、文档时间降序、切块 id 升序。
func Rank(matches []model.VectorMatch, kickoff time.Time) []model.RankedChunk {
	seen := make(map[string]struct{}, len(matches))
	out := make([]model.RankedChunk, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		meta := m.Metadata
		category := model.NormalizeCategory(meta.Category)
		score, age := Score(meta.Importance, category, meta.DocumentTimestamp, kickoff)
		out = append(out, model.RankedChunk{
			ID:                m.ID,
			Score:             score,
			AgeDays:           age,
			Category:          category,
			Tone:              meta.Tone,
			Importance:        meta.Importance,
			Text:              meta.Text,
			Summary:           meta.Summary,
			Source:            meta.Source,
			DocumentTitle:     meta.DocumentTitle,
			DocumentURL:       meta.DocumentURL,
			DocumentTimestamp: meta.DocumentTimestamp.UTC(),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Importance != b.Importance {
			return a.Importance > b.Importance
		}
		if !a.DocumentTimestamp.Equal(b.DocumentTimestamp) {
			return a.DocumentTimestamp.After(b.DocumentTimestamp)
		}
		return a.ID < b.ID
	})
	return out
}

// Summarize 来源、类别、平均重要度（保留 1 位小数）与时间跨度
func Summarize(chunks []model.RankedChunk) model.ContextSummary {
	s := model.ContextSummary{TotalChunks: len(chunks), Sources: []string{}, Categories: []string{}}
	if len(chunks) == 0 {
		return s
	}
	sources := map[string]struct{}{}
	categories := map[string]struct{}{}
	total := 0
	earliest, latest := chunks[0].DocumentTimestamp, chunks[0].DocumentTimestamp
	for _, c := range chunks {
		sources[c.Source] = struct{}{}
		categories[c.Category] = struct{}{}
		total += c.Importance
		if c.DocumentTimestamp.Before(earliest) {
			earliest = c.DocumentTimestamp
		}
		if c.DocumentTimestamp.After(latest) {
			latest = c.DocumentTimestamp
		}
	}
	for k := range sources {
		s.Sources = append(s.Sources, k)
	}
	for k := range categories {
		s.Categories = append(s.Categories, k)
	}
	sort.Strings(s.Sources)
	sort.Strings(s.Categories)
	s.AvgImportance = math.Round(float64(total)/float64(len(chunks))*10) / 10
	s.Earliest = &earliest
	s.Latest = &latest
	return s
}
