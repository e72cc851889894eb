package service

import (
	"strings"
	"testing"

	"MatchPulse/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(n int, sentenceLen int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString("word")
		if sentenceLen > 0 && (i+1)%sentenceLen == 0 {
			b.WriteByte('.')
		}
	}
	return b.String()
}

func TestNormalizeSegments_ShortDocumentBecomesOneChunk(t *testing.T) {
	doc := words(80, 10)
	segments := []model.Segment{
		{Text: words(40, 10), Category: model.CategoryPreview, Importance: 2, LinkedTeamNames: []string{"Arsenal"}},
		{Text: words(40, 10), Category: model.CategoryInjury, Importance: 4, LinkedTeamNames: []string{"arsenal", "Chelsea"}, LinkedPlayerNames: []string{"Saka"}},
	}

	out := NormalizeSegments(doc, segments, 150, 700)

	require.Len(t, out, 1)
	assert.Equal(t, doc, out[0].Text)
	assert.Equal(t, model.CategoryInjury, out[0].Category)
	assert.Equal(t, 4, out[0].Importance)
	assert.Equal(t, []string{"Arsenal", "Chelsea"}, out[0].LinkedTeamNames)
	assert.Equal(t, []string{"Saka"}, out[0].LinkedPlayerNames)
}

func TestNormalizeSegments_LongSegmentSplitOnSentences(t *testing.T) {
	doc := words(2000, 25)
	segments := []model.Segment{{Text: doc, Category: model.CategoryPreview, Importance: 3, Tone: "Analytical"}}

	out := NormalizeSegments(doc, segments, 150, 700)

	require.Greater(t, len(out), 1)
	total := 0
	for _, s := range out {
		n := WordCount(s.Text)
		assert.LessOrEqual(t, n, 700)
		assert.True(t, strings.HasSuffix(s.Text, "."), "piece should end on a sentence boundary")
		assert.Equal(t, model.CategoryPreview, s.Category)
		assert.Equal(t, "Analytical", s.Tone)
		total += n
	}
	assert.Equal(t, 2000, total)
}

func TestNormalizeSegments_KeepsMidSizedSegments(t *testing.T) {
	doc := words(400, 20)
	segments := []model.Segment{{Text: words(200, 20)}, {Text: words(200, 20)}}
	out := NormalizeSegments(doc, segments, 150, 700)
	assert.Len(t, out, 2)
}

func TestNormalizeSegments_Empty(t *testing.T) {
	assert.Nil(t, NormalizeSegments("anything", nil, 150, 700))
}

func TestSplitSentences_HardSplitsRunOnSentence(t *testing.T) {
	pieces := SplitSentences(words(25, 0), 10)
	require.Len(t, pieces, 3)
	assert.Equal(t, 10, WordCount(pieces[0]))
	assert.Equal(t, 10, WordCount(pieces[1]))
	assert.Equal(t, 5, WordCount(pieces[2]))
}

func TestSplitSentences_QuotedSentenceEnd(t *testing.T) {
	pieces := SplitSentences(`He said "we are ready." Then he left!`, 5)
	assert.Equal(t, []string{`He said "we are ready."`, "Then he left!"}, pieces)
}
