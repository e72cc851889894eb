package reasoning

import (
	"testing"

	"MatchPulse/internal/model"
	"MatchPulse/internal/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeClassification(t *testing.T) {
	raw := "```json\n{\"importance_score\": 9, \"urgency_level\": \"breaking\", \"impact_reason\": \"Key striker out\", \"candidate_fixture_ids\": [501, 999, 501,]}\n```"

	c, err := DecodeClassification(raw, []uint64{501, 502})
	require.NoError(t, err)
	assert.Equal(t, 9, c.Importance)
	assert.Equal(t, model.UrgencyBreaking, c.Urgency)
	assert.Equal(t, "Key striker out", c.Reason)
	assert.Equal(t, []uint64{501}, c.CandidateFixtureIDs, "unknown and repeated ids are dropped")
}

func TestDecodeClassificationRejects(t *testing.T) {
	cases := map[string]string{
		"not json":         "the model refused",
		"missing urgency":  `{"importance_score": 5, "impact_reason": "x", "candidate_fixture_ids": []}`,
		"fractional score": `{"importance_score": 7.5, "urgency_level": "NORMAL", "impact_reason": "x", "candidate_fixture_ids": []}`,
		"score too high":   `{"importance_score": 11, "urgency_level": "NORMAL", "impact_reason": "x", "candidate_fixture_ids": []}`,
		"bad urgency":      `{"importance_score": 5, "urgency_level": "URGENT", "impact_reason": "x", "candidate_fixture_ids": []}`,
		"bad fixture id":   `{"importance_score": 5, "urgency_level": "NORMAL", "impact_reason": "x", "candidate_fixture_ids": [1.5]}`,
		"missing ids":      `{"importance_score": 5, "urgency_level": "NORMAL", "impact_reason": "x"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeClassification(raw, []uint64{1})
			require.Error(t, err)
			assert.True(t, IsParseError(err))
			assert.True(t, retry.IsPermanent(err))
		})
	}
}

func TestDecodeSegments(t *testing.T) {
	raw := `{"chunks": [
		{"chunk_text": "Arsenal confirmed Saka is out.", "summary": "Saka out", "chunk_type": "injury update", "tone": "negative",
		 "importance_score": 5, "event_date_mentioned": "2026-10-12",
		 "linked_team_names": ["Arsenal", " arsenal ", ""], "linked_player_names": ["Saka"], "linked_coach_names": []},
		{"chunk_text": "Fans are worried.", "summary": "", "chunk_type": "Gossip", "tone": "grumpy",
		 "importance_score": 1, "linked_team_names": [], "linked_player_names": [], "linked_coach_names": []}
	]}`

	segs, err := DecodeSegments(raw)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, model.CategoryInjury, segs[0].Category)
	assert.Equal(t, "Negative", segs[0].Tone)
	assert.Equal(t, []string{"Arsenal"}, segs[0].LinkedTeamNames)
	assert.Equal(t, "2026-10-12", segs[0].MentionedDate)
	assert.Equal(t, model.CategoryOther, segs[1].Category)
	assert.Equal(t, "Neutral", segs[1].Tone)
}

func TestDecodeSegmentsRejects(t *testing.T) {
	for name, raw := range map[string]string{
		"empty":         `{"chunks": []}`,
		"no text":       `{"chunks": [{"chunk_text": " ", "importance_score": 3}]}`,
		"importance 0":  `{"chunks": [{"chunk_text": "x", "importance_score": 0}]}`,
		"importance 6":  `{"chunks": [{"chunk_text": "x", "importance_score": 6}]}`,
		"no importance": `{"chunks": [{"chunk_text": "x"}]}`,
		"wrong shape":   `{"chunks": "x"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeSegments(raw)
			assert.True(t, IsParseError(err), "%v", err)
		})
	}
}

func TestDecodePrediction(t *testing.T) {
	raw := `{"chain_of_thought": "Home side strong", "final_prediction": "Arsenal win", "confidence_score": 72,
		"value_bets": [{"market": "1X2", "selection": "Home", "recommended_probability": 0.6, "bookmaker_odds": 1.9,
		"implied_probability": 0.52, "confidence": 70, "stake_percentage": 2, "reasoning": "edge"}]}`

	d, err := DecodePrediction(raw)
	require.NoError(t, err)
	assert.Equal(t, 72, d.Confidence)
	require.Len(t, d.ValueBets, 1)
	assert.InDelta(t, 1.9, *d.ValueBets[0].BookmakerOdds, 1e-9)
	assert.Empty(t, d.RiskFactors)
	assert.NotNil(t, d.RiskFactors)
}

func TestDecodePredictionRejects(t *testing.T) {
	base := `"chain_of_thought": "x", "final_prediction": "y"`
	for name, raw := range map[string]string{
		"no bets":        `{` + base + `, "confidence_score": 50}`,
		"confidence":     `{` + base + `, "confidence_score": 120, "value_bets": []}`,
		"no market":      `{` + base + `, "confidence_score": 50, "value_bets": [{"market": "", "confidence": 10, "reasoning": "r"}]}`,
		"odds below one": `{` + base + `, "confidence_score": 50, "value_bets": [{"market": "1X2", "bookmaker_odds": 0.8, "confidence": 10, "reasoning": "r"}]}`,
		"probability":    `{` + base + `, "confidence_score": 50, "value_bets": [{"market": "1X2", "recommended_probability": 1.2, "confidence": 10, "reasoning": "r"}]}`,
		"stake":          `{` + base + `, "confidence_score": 50, "value_bets": [{"market": "1X2", "stake_percentage": 150, "confidence": 10, "reasoning": "r"}]}`,
		"no summary":     `{"chain_of_thought": "x", "confidence_score": 50, "value_bets": []}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodePrediction(raw)
			assert.True(t, IsParseError(err), "%v", err)
		})
	}
}

func TestDecodeImpact(t *testing.T) {
	r, err := DecodeImpact(`{"impact_level": "high", "confidence": 0.85, "key_insight": "Striker out", "reasoning": "Loses 40% of goals"}`)
	require.NoError(t, err)
	assert.Equal(t, model.ImpactHigh, r.Level)
	assert.InDelta(t, 0.85, r.Confidence, 1e-9)

	_, err = DecodeImpact(`{"impact_level": "HIGH", "confidence": 85, "key_insight": "x", "reasoning": "y"}`)
	assert.True(t, IsParseError(err))
	_, err = DecodeImpact(`{"impact_level": "SEVERE", "confidence": 0.5, "key_insight": "x", "reasoning": "y"}`)
	assert.True(t, IsParseError(err))
}

func TestFormatOdds(t *testing.T) {
	assert.Equal(t, NoOddsMarker, FormatOdds(nil))
	got := FormatOdds(model.MarketOdds{
		"1X2":        {"Home": 1.9, "Draw": 3.4, "Away": 4.2},
		"Over/Under": {"Over 2.5": 1.8},
	})
	assert.Equal(t, "1X2: Away 4.20, Draw 3.40, Home 1.90\nOver/Under: Over 2.5 1.80", got)
}
