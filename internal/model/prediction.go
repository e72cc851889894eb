package model

import (
	"time"

	"gorm.io/datatypes"
)

// PredictionKind 预测类型
type PredictionKind string

const (
	KindPreMatch      PredictionKind = "pre-match"
	KindBreakingPatch PredictionKind = "breaking-patch"
)

// Prediction 赛事预测；只会被置为 stale，从不删除。
// 每场赛事至多一条非 stale 的 pre-match 预测（部分唯一索引保证）。
type Prediction struct {
	ID             uint64         `gorm:"column:id;primaryKey;autoIncrement"`
	FixtureID      uint64         `gorm:"column:fixture_id;type:bigint;not null;index;uniqueIndex:uq_prediction_current_prematch,where:kind = 'pre-match' AND stale = false"`
	Kind           PredictionKind `gorm:"column:kind;type:varchar(16);not null;index"`
	Narrative      string         `gorm:"column:narrative;type:text"`
	FinalSummary   string         `gorm:"column:final_summary;type:text;not null"`
	Confidence     int            `gorm:"column:confidence;type:int;not null"`
	ValueBets      datatypes.JSON `gorm:"column:value_bets;type:jsonb"`
	RiskFactors    datatypes.JSON `gorm:"column:risk_factors;type:jsonb"`
	KeyInsights    datatypes.JSON `gorm:"column:key_insights;type:jsonb"`
	ContextQuality string         `gorm:"column:context_quality;type:varchar(32)"`
	ModelVersion   string         `gorm:"column:model_version;type:varchar(64)"`
	GeneratedAt    time.Time      `gorm:"column:generated_at;type:timestamp;not null"`
	Stale          bool           `gorm:"column:stale;type:boolean;default:false;not null"`
	StaledAt       *time.Time     `gorm:"column:staled_at;type:timestamp"`
}

func (Prediction) TableName() string { return "predictions" }

// ValueBet 价值投注建议
type ValueBet struct {
	Market                 string   `json:"market"`
	Selection              string   `json:"selection,omitempty"`
	RecommendedProbability *float64 `json:"recommended_probability,omitempty"`
	BookmakerOdds          *float64 `json:"bookmaker_odds,omitempty"`
	ImpliedProbability     *float64 `json:"implied_probability,omitempty"`
	Confidence             float64  `json:"confidence"`
	StakePercentage        float64  `json:"stake_percentage,omitempty"`
	Reasoning              string   `json:"reasoning"`
}

// PredictionStatus 读路径返回的预测状态
type PredictionStatus string

const (
	StatusCurrent PredictionStatus = "current" // 存在非 stale 的 pre-match
	StatusPending PredictionStatus = "pending" // 旧预测已过期，等待重新生成
	StatusNone    PredictionStatus = "none"    // 尚无任何预测
)

// PredictionView 某场赛事当前可对外展示的预测
type PredictionView struct {
	FixtureID uint64           `json:"fixture_id"`
	Status    PredictionStatus `json:"status"`
	Current   *Prediction      `json:"current,omitempty"`
	Patch     *Prediction      `json:"patch,omitempty"`
}

// OddsSnapshot 每场赛事最新一份赔率快照（来自事件流中的 odds 事件）
type OddsSnapshot struct {
	ID         uint64         `gorm:"column:id;primaryKey;autoIncrement"`
	FixtureID  uint64         `gorm:"column:fixture_id;type:bigint;not null;uniqueIndex"`
	Source     string         `gorm:"column:source;type:varchar(64)"`
	Odds       datatypes.JSON `gorm:"column:odds;type:jsonb;not null"`
	CapturedAt time.Time      `gorm:"column:captured_at;type:timestamp;not null"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;type:timestamp;default:now()"`
}

func (OddsSnapshot) TableName() string { return "odds_snapshots" }

// MarketOdds 市场 -> 选项 -> 小数赔率
type MarketOdds map[string]map[string]float64
