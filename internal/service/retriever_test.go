package service

import (
	"context"
	"testing"
	"time"

	"MatchPulse/internal/model"
	"MatchPulse/internal/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func match(id string, importance int, category string, at time.Time) model.VectorMatch {
	return model.VectorMatch{ID: id, Metadata: model.ChunkVectorMeta{
		Importance:        importance,
		Category:          category,
		DocumentTimestamp: at,
		Source:            "bbc",
		Text:              "text " + id,
	}}
}

func TestScore(t *testing.T) {
	kickoff := time.Date(2026, 3, 11, 15, 0, 0, 0, time.UTC)

	score, age := Score(5, model.CategoryInjury, kickoff.Add(-36*time.Hour), kickoff)
	assert.Equal(t, 1, age)
	assert.Equal(t, 100.0+15-1, score)

	score, age = Score(3, model.CategoryOpinion, kickoff.Add(-20*24*time.Hour), kickoff)
	assert.Equal(t, 20, age)
	assert.Equal(t, 60.0-10, score)

	// 开赛后发布的文档不扣分
	score, age = Score(2, model.CategoryPreview, kickoff.Add(time.Hour), kickoff)
	assert.Equal(t, 0, age)
	assert.Equal(t, 48.0, score)
}

func TestRank_DeterministicTieBreaks(t *testing.T) {
	kickoff := time.Date(2026, 3, 11, 15, 0, 0, 0, time.UTC)
	day := 24 * time.Hour
	matches := []model.VectorMatch{
		match("c", 4, model.CategoryOther, kickoff.Add(-2*day)),
		match("a", 4, model.CategoryOther, kickoff.Add(-2*day)),
		match("b", 4, model.CategoryOther, kickoff.Add(-2*day-time.Hour)),
		match("inj", 4, model.CategoryInjury, kickoff.Add(-5*day)),
		match("a", 4, model.CategoryOther, kickoff.Add(-2*day)),
		match("low", 1, "not a category", kickoff),
	}

	first := Rank(matches, kickoff)
	ids := make([]string, 0, len(first))
	for _, c := range first {
		ids = append(ids, c.ID)
	}
	// b 与 a/c 同分同重要度，但更早；a 与 c 完全相同时按 id 升序
	assert.Equal(t, []string{"inj", "a", "c", "b", "low"}, ids)
	assert.Equal(t, model.CategoryOther, first[4].Category)

	reversed := make([]model.VectorMatch, len(matches))
	for i, m := range matches {
		reversed[len(matches)-1-i] = m
	}
	assert.Equal(t, first, Rank(reversed, kickoff))
}

func TestSummarize(t *testing.T) {
	t1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(48 * time.Hour)
	s := Summarize([]model.RankedChunk{
		{Source: "bbc", Category: model.CategoryInjury, Importance: 5, DocumentTimestamp: t2},
		{Source: "espn", Category: model.CategoryInjury, Importance: 4, DocumentTimestamp: t1},
		{Source: "bbc", Category: model.CategoryPreview, Importance: 4, DocumentTimestamp: t1},
	})
	assert.Equal(t, 3, s.TotalChunks)
	assert.Equal(t, []string{"bbc", "espn"}, s.Sources)
	assert.Equal(t, 4.3, s.AvgImportance)
	assert.Equal(t, t1, *s.Earliest)
	assert.Equal(t, t2, *s.Latest)

	empty := Summarize(nil)
	assert.Zero(t, empty.TotalChunks)
	assert.NotNil(t, empty.Sources)
}

func TestRetriever_FiltersByTeamsAndWindow(t *testing.T) {
	f := arsenalChelsea()
	vec := newFakeVectors()
	vec.matches = []model.VectorMatch{
		match("x", 3, model.CategoryPreview, f.KickoffTime.Add(-24*time.Hour)),
		match("y", 5, model.CategoryInjury, f.KickoffTime.Add(-48*time.Hour)),
	}
	r := NewRetriever(newFakeFixtures(f), vec, RetrieverOptions{TopChunks: 1}, quietLogger())

	rc, err := r.Retrieve(context.Background(), f.ID, 7)
	require.NoError(t, err)
	require.Len(t, vec.filters, 1)
	assert.Equal(t, []uint64{42, 49}, vec.filters[0].AnyTeamIDs)
	assert.Equal(t, f.KickoffTime.Add(-7*24*time.Hour), vec.filters[0].From)
	assert.Equal(t, f.KickoffTime, vec.filters[0].To)

	require.Len(t, rc.All, 1)
	assert.Equal(t, "y", rc.All[0].ID)
	assert.Equal(t, "Arsenal", rc.Match.HomeTeam)
	assert.Len(t, rc.ByCategory[model.CategoryInjury], 1)
	assert.Equal(t, 7, rc.DaysBack)
}

func TestRetriever_UnknownFixtureIsPermanent(t *testing.T) {
	r := NewRetriever(newFakeFixtures(), newFakeVectors(), RetrieverOptions{}, quietLogger())
	_, err := r.Retrieve(context.Background(), 999, 0)
	require.Error(t, err)
	assert.True(t, retry.IsPermanent(err))
}
