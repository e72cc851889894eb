package service

import (
	"context"
	"testing"
	"time"

	"MatchPulse/internal/linker"
	"MatchPulse/internal/model"
	"MatchPulse/internal/retry"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndexer(rs *fakeReasoning, emb *fakeEmbedder, vec *fakeVectors, docs *fakeDocs) *Indexer {
	entities := &fakeEntities{candidates: map[model.EntityKind][]model.EntityCandidate{
		model.EntityTeam: {
			{ID: 42, Name: "Arsenal"},
			{ID: 49, Name: "Chelsea"},
		},
		model.EntityPlayer: {
			{ID: 7, Name: "Bukayo Saka", CurrentTeamID: u64(42)},
		},
	}}
	return NewIndexer(rs, emb, vec, docs, linker.NewLinker(entities), fastPolicy(), IndexerOptions{}, quietLogger())
}

func seedDoc(t *testing.T, docs *fakeDocs) *model.ProcessedDocument {
	doc, created, err := docs.GetOrCreate(context.Background(), &model.ProcessedDocument{
		Source:            "bbc",
		DocumentURL:       "https://bbc.example/arsenal-chelsea",
		Title:             "Arsenal v Chelsea preview",
		DocumentTimestamp: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.True(t, created)
	return doc
}

func TestIndexer_IndexWritesChunksVectorsAndLinks(t *testing.T) {
	rs := &fakeReasoning{segments: []model.Segment{
		{Text: words(200, 20), Summary: "injury", Category: model.CategoryInjury, Tone: "Negative", Importance: 5,
			LinkedTeamNames: []string{"Arsenal"}, LinkedPlayerNames: []string{"Saka's"}, MentionedDate: "2026-03-12"},
		{Text: words(200, 20), Summary: "preview", Category: model.CategoryPreview, Tone: "Neutral", Importance: 3,
			LinkedTeamNames: []string{"Chelsea", "Unknown FC"}},
	}}
	emb := &fakeEmbedder{}
	vec := newFakeVectors()
	docs := newFakeDocs()
	doc := seedDoc(t, docs)
	x := newTestIndexer(rs, emb, vec, docs)

	chunks, err := x.Index(context.Background(), doc, words(400, 20))
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	require.NotNil(t, doc.SegmentedAt)

	assert.Equal(t, []uint64{42}, chunks[0].EntityIDs(model.EntityTeam))
	assert.Equal(t, []uint64{7}, chunks[0].EntityIDs(model.EntityPlayer))
	assert.Equal(t, []uint64{49}, chunks[1].EntityIDs(model.EntityTeam))
	require.NotNil(t, chunks[0].MentionedDate)
	assert.Equal(t, 12, chunks[0].MentionedDate.Day())

	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
		require.NotNil(t, c.VectorID)
		assert.Equal(t, c.ID, *c.VectorID)
		meta, ok := vec.objects[c.ID]
		require.True(t, ok)
		assert.Equal(t, doc.ID, meta.DocumentID)
		assert.Equal(t, c.Category, meta.Category)
		assert.Equal(t, "bbc", meta.Source)
		assert.NotNil(t, meta.LinkedCoachIDs)
	}
	stored, err := docs.ListChunks(context.Background(), doc.ID)
	require.NoError(t, err)
	for _, c := range stored {
		assert.NotNil(t, c.VectorID)
	}
}

func TestIndexer_PartialFailureThenResume(t *testing.T) {
	rs := &fakeReasoning{segments: []model.Segment{
		{Text: "alpha " + words(199, 20), Category: model.CategoryInjury, Importance: 4},
		{Text: "beta " + words(199, 20), Category: model.CategoryPreview, Importance: 2},
	}}
	emb := &fakeEmbedder{failFor: map[string]bool{"beta": true}}
	vec := newFakeVectors()
	docs := newFakeDocs()
	doc := seedDoc(t, docs)
	x := newTestIndexer(rs, emb, vec, docs)

	_, err := x.Index(context.Background(), doc, words(400, 20))
	require.Error(t, err)
	assert.True(t, retry.IsTransient(err))
	var pf *PartialFailureError
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, 1, pf.Failed)
	assert.Equal(t, 2, pf.Total)
	assert.Len(t, vec.objects, 1)

	// 重试：不再切分，只补齐失败的切块
	emb.failFor = nil
	reloaded, err := docs.GetByID(context.Background(), doc.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.SegmentedAt)
	chunks, err := x.Index(context.Background(), reloaded, words(400, 20))
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
	assert.Equal(t, 1, rs.segmentCalls)
	assert.Equal(t, 1, docs.saveCalls)
	assert.Len(t, vec.objects, 2)
}

func TestIndexer_SegmentParseFailureIsNotRetried(t *testing.T) {
	rs := &fakeReasoning{segmentErr: retry.Permanent(assert.AnError)}
	docs := newFakeDocs()
	doc := seedDoc(t, docs)
	x := newTestIndexer(rs, &fakeEmbedder{}, newFakeVectors(), docs)

	_, err := x.Index(context.Background(), doc, "short text")
	require.Error(t, err)
	assert.True(t, retry.IsPermanent(err))
	assert.Equal(t, 1, rs.segmentCalls)
	assert.Equal(t, 0, docs.saveCalls)
}

func TestReconciler_EmbedsMissingChunks(t *testing.T) {
	rs := &fakeReasoning{segments: []model.Segment{
		{Text: "alpha " + words(199, 20), Importance: 4},
		{Text: "beta " + words(199, 20), Importance: 2},
	}}
	emb := &fakeEmbedder{failFor: map[string]bool{"alpha": true, "beta": true}}
	vec := newFakeVectors()
	docs := newFakeDocs()
	doc := seedDoc(t, docs)
	x := newTestIndexer(rs, emb, vec, docs)
	_, err := x.Index(context.Background(), doc, words(400, 20))
	require.Error(t, err)

	emb.failFor = map[string]bool{"beta": true}
	logger, hook := logtest.NewNullLogger()
	r := NewReconciler(docs, x, 0, logger)
	fixed, failed, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fixed)
	assert.Equal(t, 1, failed)

	var warned *logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warned = e
		}
	}
	require.NotNil(t, warned)
	var partial *PartialFailureError
	require.ErrorAs(t, warned.Data[logrus.ErrorKey].(error), &partial)
	assert.Equal(t, 1, partial.Failed)
	hook.Reset()

	emb.failFor = nil
	fixed, failed, err = r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fixed)
	assert.Equal(t, 0, failed)
	for _, e := range hook.AllEntries() {
		assert.NotEqual(t, logrus.WarnLevel, e.Level)
	}

	fixed, failed, err = r.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, fixed+failed)
}
