package model

import "time"

// Urgency 紧急程度
type Urgency string

const (
	UrgencyBreaking  Urgency = "BREAKING"
	UrgencyImportant Urgency = "IMPORTANT"
	UrgencyNormal    Urgency = "NORMAL"
)

// Classification 内容分类结果
type Classification struct {
	Importance          int      `json:"importance_score"`
	Urgency             Urgency  `json:"urgency_level"`
	Reason              string   `json:"impact_reason"`
	CandidateFixtureIDs []uint64 `json:"candidate_fixture_ids"`
}

// DefaultClassification 解析失败时的保守结果
func DefaultClassification() Classification {
	return Classification{Importance: 1, Urgency: UrgencyNormal, Reason: "classification unavailable"}
}

// Segment 推理服务返回的单个语义切块
type Segment struct {
	Text              string   `json:"chunk_text"`
	Summary           string   `json:"summary"`
	Category          string   `json:"chunk_type"`
	Tone              string   `json:"tone"`
	Importance        int      `json:"importance_score"`
	MentionedDate     string   `json:"event_date_mentioned,omitempty"`
	LinkedTeamNames   []string `json:"linked_team_names"`
	LinkedPlayerNames []string `json:"linked_player_names"`
	LinkedCoachNames  []string `json:"linked_coach_names"`
	QuotedPerson      string   `json:"quoted_person,omitempty"`
	SourceReference   string   `json:"source_reference,omitempty"`
}

// PredictionDraft 推理服务返回的预测内容（尚未落库）
type PredictionDraft struct {
	Narrative      string     `json:"chain_of_thought"`
	FinalSummary   string     `json:"final_prediction"`
	Confidence     int        `json:"confidence_score"`
	ValueBets      []ValueBet `json:"value_bets"`
	RiskFactors    []string   `json:"risk_factors"`
	KeyInsights    []string   `json:"key_insights"`
	ContextQuality string     `json:"context_quality,omitempty"`
}

// ImpactLevel 影响等级
type ImpactLevel string

const (
	ImpactHigh   ImpactLevel = "HIGH"
	ImpactMedium ImpactLevel = "MEDIUM"
	ImpactLow    ImpactLevel = "LOW"
)

// ImpactRating 突发新闻对现有预测的影响评估
type ImpactRating struct {
	Level             ImpactLevel `json:"impact_level"`
	Confidence        float64     `json:"confidence"`
	KeyInsight        string      `json:"key_insight"`
	Reasoning         string      `json:"reasoning"`
	ProbabilityChange string      `json:"probability_change,omitempty"`
	Headline          string      `json:"headline,omitempty"`
}

// ChunkVectorMeta 向量库中与切块一起保存的元数据，须与关系库行保持一致
type ChunkVectorMeta struct {
	DocumentID        uint64    `json:"processed_document_id"`
	ChunkIndex        int       `json:"chunk_index"`
	Source            string    `json:"source"`
	DocumentURL       string    `json:"document_url"`
	DocumentTitle     string    `json:"document_title"`
	DocumentTimestamp time.Time `json:"document_timestamp"`
	Category          string    `json:"chunk_type"`
	Tone              string    `json:"tone"`
	Importance        int       `json:"importance_score"`
	Text              string    `json:"text"`
	Summary           string    `json:"summary"`
	LinkedTeamIDs     []uint64  `json:"linked_team_ids"`
	LinkedPlayerIDs   []uint64  `json:"linked_player_ids"`
	LinkedCoachIDs    []uint64  `json:"linked_coach_ids"`
}

// VectorFilter 向量检索过滤条件
type VectorFilter struct {
	AnyTeamIDs []uint64
	From       time.Time
	To         time.Time
}

// VectorMatch 向量检索结果
type VectorMatch struct {
	ID       string
	Score    float64
	Metadata ChunkVectorMeta
}

// MatchInfo 赛事基础信息
type MatchInfo struct {
	FixtureID   uint64    `json:"fixture_id"`
	HomeTeamID  uint64    `json:"home_team_id"`
	AwayTeamID  uint64    `json:"away_team_id"`
	HomeTeam    string    `json:"home_team_name"`
	AwayTeam    string    `json:"away_team_name"`
	LeagueID    uint64    `json:"league_id"`
	KickoffTime time.Time `json:"event_date"`
	Status      string    `json:"status"`
}

// RankedChunk 排序后的上下文切块
type RankedChunk struct {
	ID                string    `json:"id"`
	Score             float64   `json:"score"`
	AgeDays           int       `json:"age_days"`
	Category          string    `json:"chunk_type"`
	Tone              string    `json:"tone"`
	Importance        int       `json:"importance_score"`
	Text              string    `json:"text"`
	Summary           string    `json:"summary"`
	Source            string    `json:"source"`
	DocumentTitle     string    `json:"document_title"`
	DocumentURL       string    `json:"document_url"`
	DocumentTimestamp time.Time `json:"document_timestamp"`
}

// ContextSummary 上下文统计
type ContextSummary struct {
	TotalChunks   int        `json:"total_chunks"`
	Sources       []string   `json:"sources"`
	Categories    []string   `json:"content_types"`
	AvgImportance float64    `json:"avg_importance"`
	Earliest      *time.Time `json:"earliest,omitempty"`
	Latest        *time.Time `json:"latest,omitempty"`
}

// RankedContext 检索器输出
type RankedContext struct {
	Match      MatchInfo                `json:"match_info"`
	DaysBack   int                      `json:"days_back"`
	Summary    ContextSummary           `json:"content_summary"`
	ByCategory map[string][]RankedChunk `json:"structured_content"`
	All        []RankedChunk            `json:"all_content"`
}

// FixtureOption 分类请求中提供给推理服务的候选赛事
type FixtureOption struct {
	ID          uint64
	HomeTeam    string
	AwayTeam    string
	KickoffTime time.Time
}

// ClassifyRequest 内容分类请求
type ClassifyRequest struct {
	Text     string
	Author   string
	Source   string
	Fixtures []FixtureOption
}

// SegmentRequest 文档切分请求
type SegmentRequest struct {
	Source    string
	Title     string
	Text      string
	Timestamp time.Time
}

// ContextSection 预测请求中按类别分组的上下文
type ContextSection struct {
	Category string
	Chunks   []RankedChunk
}

// PredictRequest 预测请求；Odds 为空时提示无赔率
type PredictRequest struct {
	Match    MatchInfo
	Odds     MarketOdds
	Summary  ContextSummary
	Sections []ContextSection
}

// ImpactRequest 影响评估请求
type ImpactRequest struct {
	NewsText    string
	Author      string
	Match       MatchInfo
	Prediction  *Prediction
	EntityNames []string
}
