package reasoning

import (
	"encoding/json"
	"math"
	"strings"

	"MatchPulse/internal/model"
)

type classificationWire struct {
	Importance          *float64  `json:"importance_score"`
	Urgency             *string   `json:"urgency_level"`
	Reason              *string   `json:"impact_reason"`
	CandidateFixtureIDs []float64 `json:"candidate_fixture_ids"`
}

// DecodeClassification 校验分类响应；候选赛事只保留请求中提供过的 ID
func DecodeClassification(raw string, offered []uint64) (*model.Classification, error) {
	var w classificationWire
	if err := unmarshal(ContractClassification, raw, &w); err != nil {
		return nil, err
	}
	switch {
	case w.Importance == nil:
		return nil, parseErrorf(ContractClassification, raw, "缺少 importance_score")
	case w.Urgency == nil:
		return nil, parseErrorf(ContractClassification, raw, "缺少 urgency_level")
	case w.Reason == nil:
		return nil, parseErrorf(ContractClassification, raw, "缺少 impact_reason")
	case w.CandidateFixtureIDs == nil:
		return nil, parseErrorf(ContractClassification, raw, "缺少 candidate_fixture_ids")
	}
	if !isInteger(*w.Importance) || *w.Importance < 1 || *w.Importance > 10 {
		return nil, parseErrorf(ContractClassification, raw, "importance_score 越界: %v", *w.Importance)
	}
	urgency := model.Urgency(strings.ToUpper(strings.TrimSpace(*w.Urgency)))
	switch urgency {
	case model.UrgencyBreaking, model.UrgencyImportant, model.UrgencyNormal:
	default:
		return nil, parseErrorf(ContractClassification, raw, "未知 urgency_level: %q", *w.Urgency)
	}

	allowed := make(map[uint64]struct{}, len(offered))
	for _, id := range offered {
		allowed[id] = struct{}{}
	}
	out := &model.Classification{
		Importance:          int(*w.Importance),
		Urgency:             urgency,
		Reason:              strings.TrimSpace(*w.Reason),
		CandidateFixtureIDs: []uint64{},
	}
	for _, f := range w.CandidateFixtureIDs {
		if !isInteger(f) || f <= 0 {
			return nil, parseErrorf(ContractClassification, raw, "candidate_fixture_ids 含非整数: %v", f)
		}
		id := uint64(f)
		if _, ok := allowed[id]; ok {
			out.CandidateFixtureIDs = append(out.CandidateFixtureIDs, id)
			delete(allowed, id)
		}
	}
	return out, nil
}

type segmentWire struct {
	Text              *string  `json:"chunk_text"`
	Summary           string   `json:"summary"`
	Category          string   `json:"chunk_type"`
	Tone              string   `json:"tone"`
	Importance        *float64 `json:"importance_score"`
	MentionedDate     string   `json:"event_date_mentioned"`
	LinkedTeamNames   []string `json:"linked_team_names"`
	LinkedPlayerNames []string `json:"linked_player_names"`
	LinkedCoachNames  []string `json:"linked_coach_names"`
	QuotedPerson      string   `json:"quoted_person"`
	SourceReference   string   `json:"source_reference"`
}

// DecodeSegments 校验切分响应；至少一个切块，每块正文非空且重要度为 1-5 的整数
func DecodeSegments(raw string) ([]model.Segment, error) {
	var w struct {
		Chunks []segmentWire `json:"chunks"`
	}
	if err := unmarshal(ContractSegmentation, raw, &w); err != nil {
		return nil, err
	}
	if len(w.Chunks) == 0 {
		return nil, parseErrorf(ContractSegmentation, raw, "chunks 为空")
	}
	out := make([]model.Segment, 0, len(w.Chunks))
	for i, c := range w.Chunks {
		if c.Text == nil || strings.TrimSpace(*c.Text) == "" {
			return nil, parseErrorf(ContractSegmentation, raw, "第 %d 个切块缺少 chunk_text", i)
		}
		if c.Importance == nil || !isInteger(*c.Importance) || *c.Importance < 1 || *c.Importance > 5 {
			return nil, parseErrorf(ContractSegmentation, raw, "第 %d 个切块 importance_score 非法", i)
		}
		out = append(out, model.Segment{
			Text:              strings.TrimSpace(*c.Text),
			Summary:           strings.TrimSpace(c.Summary),
			Category:          model.NormalizeCategory(c.Category),
			Tone:              normalizeTone(c.Tone),
			Importance:        int(*c.Importance),
			MentionedDate:     strings.TrimSpace(c.MentionedDate),
			LinkedTeamNames:   cleanNames(c.LinkedTeamNames),
			LinkedPlayerNames: cleanNames(c.LinkedPlayerNames),
			LinkedCoachNames:  cleanNames(c.LinkedCoachNames),
			QuotedPerson:      strings.TrimSpace(c.QuotedPerson),
			SourceReference:   strings.TrimSpace(c.SourceReference),
		})
	}
	return out, nil
}

type predictionWire struct {
	Narrative      *string          `json:"chain_of_thought"`
	FinalSummary   *string          `json:"final_prediction"`
	Confidence     *float64         `json:"confidence_score"`
	ValueBets      []model.ValueBet `json:"value_bets"`
	RiskFactors    []string         `json:"risk_factors"`
	KeyInsights    []string         `json:"key_insights"`
	ContextQuality string           `json:"context_quality"`
}

// DecodePrediction 校验预测响应：必填字段、置信度 0-100、投注项结构与概率范围
func DecodePrediction(raw string) (*model.PredictionDraft, error) {
	var w predictionWire
	if err := unmarshal(ContractPrediction, raw, &w); err != nil {
		return nil, err
	}
	switch {
	case w.Narrative == nil || strings.TrimSpace(*w.Narrative) == "":
		return nil, parseErrorf(ContractPrediction, raw, "缺少 chain_of_thought")
	case w.FinalSummary == nil || strings.TrimSpace(*w.FinalSummary) == "":
		return nil, parseErrorf(ContractPrediction, raw, "缺少 final_prediction")
	case w.Confidence == nil:
		return nil, parseErrorf(ContractPrediction, raw, "缺少 confidence_score")
	case w.ValueBets == nil:
		return nil, parseErrorf(ContractPrediction, raw, "缺少 value_bets")
	}
	if *w.Confidence < 0 || *w.Confidence > 100 {
		return nil, parseErrorf(ContractPrediction, raw, "confidence_score 越界: %v", *w.Confidence)
	}
	for i, b := range w.ValueBets {
		if reason := validateBet(&b); reason != "" {
			return nil, parseErrorf(ContractPrediction, raw, "value_bets[%d] %s", i, reason)
		}
	}
	if w.RiskFactors == nil {
		w.RiskFactors = []string{}
	}
	if w.KeyInsights == nil {
		w.KeyInsights = []string{}
	}
	return &model.PredictionDraft{
		Narrative:      strings.TrimSpace(*w.Narrative),
		FinalSummary:   strings.TrimSpace(*w.FinalSummary),
		Confidence:     int(math.Round(*w.Confidence)),
		ValueBets:      w.ValueBets,
		RiskFactors:    w.RiskFactors,
		KeyInsights:    w.KeyInsights,
		ContextQuality: strings.ToLower(strings.TrimSpace(w.ContextQuality)),
	}, nil
}

func validateBet(b *model.ValueBet) string {
	inUnit := func(p *float64) bool { return p == nil || (*p >= 0 && *p <= 1) }
	switch {
	case strings.TrimSpace(b.Market) == "":
		return "缺少 market"
	case b.BookmakerOdds != nil && *b.BookmakerOdds < 1:
		return "bookmaker_odds 小于 1"
	case !inUnit(b.RecommendedProbability):
		return "recommended_probability 越界"
	case !inUnit(b.ImpliedProbability):
		return "implied_probability 越界"
	case b.Confidence < 0 || b.Confidence > 100:
		return "confidence 越界"
	case b.StakePercentage < 0 || b.StakePercentage > 100:
		return "stake_percentage 越界"
	}
	return ""
}

type impactWire struct {
	Level             *string  `json:"impact_level"`
	Confidence        *float64 `json:"confidence"`
	KeyInsight        *string  `json:"key_insight"`
	Reasoning         *string  `json:"reasoning"`
	ProbabilityChange string   `json:"probability_change"`
	Headline          string   `json:"headline"`
}

// DecodeImpact 校验影响评估响应
func DecodeImpact(raw string) (*model.ImpactRating, error) {
	var w impactWire
	if err := unmarshal(ContractImpact, raw, &w); err != nil {
		return nil, err
	}
	switch {
	case w.Level == nil:
		return nil, parseErrorf(ContractImpact, raw, "缺少 impact_level")
	case w.Confidence == nil:
		return nil, parseErrorf(ContractImpact, raw, "缺少 confidence")
	case w.KeyInsight == nil || strings.TrimSpace(*w.KeyInsight) == "":
		return nil, parseErrorf(ContractImpact, raw, "缺少 key_insight")
	case w.Reasoning == nil:
		return nil, parseErrorf(ContractImpact, raw, "缺少 reasoning")
	}
	level := model.ImpactLevel(strings.ToUpper(strings.TrimSpace(*w.Level)))
	switch level {
	case model.ImpactHigh, model.ImpactMedium, model.ImpactLow:
	default:
		return nil, parseErrorf(ContractImpact, raw, "未知 impact_level: %q", *w.Level)
	}
	if *w.Confidence < 0 || *w.Confidence > 1 {
		return nil, parseErrorf(ContractImpact, raw, "confidence 越界: %v", *w.Confidence)
	}
	return &model.ImpactRating{
		Level:             level,
		Confidence:        *w.Confidence,
		KeyInsight:        strings.TrimSpace(*w.KeyInsight),
		Reasoning:         strings.TrimSpace(*w.Reasoning),
		ProbabilityChange: strings.TrimSpace(w.ProbabilityChange),
		Headline:          strings.TrimSpace(w.Headline),
	}, nil
}

func unmarshal(contract, raw string, v interface{}) error {
	body := ExtractJSON(raw)
	if body == "" {
		return parseErrorf(contract, raw, "响应中没有 JSON 对象")
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return parseErrorf(contract, raw, "JSON 解析失败: %v", err)
	}
	return nil
}

func isInteger(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f == math.Trunc(f)
}

func normalizeTone(t string) string {
	for _, known := range model.Tones {
		if strings.EqualFold(strings.TrimSpace(t), known) {
			return known
		}
	}
	return "Neutral"
}

func cleanNames(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		key := strings.ToLower(n)
		if n == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, n)
	}
	return out
}
