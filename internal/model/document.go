package model

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// ProcessedDocument 已处理文档，(source, document_url) 唯一
type ProcessedDocument struct {
	ID                  uint64         `gorm:"column:id;primaryKey;autoIncrement"`
	Source              string         `gorm:"column:source;type:varchar(64);not null;uniqueIndex:uq_document_source_url"`
	DocumentURL         string         `gorm:"column:document_url;type:varchar(1024);not null;uniqueIndex:uq_document_source_url"`
	Title               string         `gorm:"column:title;type:varchar(512)"`
	Author              string         `gorm:"column:author;type:varchar(128)"`
	DocumentTimestamp   time.Time      `gorm:"column:document_timestamp;type:timestamp;not null"`
	SourceReliability   float64        `gorm:"column:source_reliability;type:numeric(4,2);default:0.5"`
	ImportanceScore     int            `gorm:"column:importance_score;type:int"`
	UrgencyLevel        string         `gorm:"column:urgency_level;type:varchar(16)"`
	ImpactReason        string         `gorm:"column:impact_reason;type:text"`
	CandidateFixtureIDs datatypes.JSON `gorm:"column:candidate_fixture_ids;type:jsonb"`
	ClassifiedAt        *time.Time     `gorm:"column:classified_at;type:timestamp"`
	SegmentedAt         *time.Time     `gorm:"column:segmented_at;type:timestamp"`
	ImpactCheckedAt     *time.Time     `gorm:"column:impact_checked_at;type:timestamp"`
	CreatedAt           time.Time      `gorm:"column:created_at;type:timestamp;default:now()"`
	UpdatedAt           time.Time      `gorm:"column:updated_at;type:timestamp;default:now()"`
}

func (ProcessedDocument) TableName() string { return "processed_documents" }

// ContentChunk 文档切块；id 同时作为向量库中的对象 id
type ContentChunk struct {
	ID                string     `gorm:"column:id;type:varchar(36);primaryKey"`
	DocumentID        uint64     `gorm:"column:document_id;type:bigint;not null;uniqueIndex:uq_chunk_document_index"`
	ChunkIndex        int        `gorm:"column:chunk_index;type:int;not null;uniqueIndex:uq_chunk_document_index"`
	Text              string     `gorm:"column:text;type:text;not null"`
	Summary           string     `gorm:"column:summary;type:text"`
	Category          string     `gorm:"column:category;type:varchar(64);index"`
	Tone              string     `gorm:"column:tone;type:varchar(32)"`
	Importance        int        `gorm:"column:importance;type:int;not null"`
	MentionedDate     *time.Time `gorm:"column:mentioned_date;type:timestamp"`
	QuotedPerson      string     `gorm:"column:quoted_person;type:varchar(128)"`
	SourceReference   string     `gorm:"column:source_reference;type:varchar(256)"`
	DocumentTimestamp time.Time  `gorm:"column:document_timestamp;type:timestamp;not null;index"`
	VectorID          *string    `gorm:"column:vector_id;type:varchar(36);index"`
	CreatedAt         time.Time  `gorm:"column:created_at;type:timestamp;default:now()"`

	Links []ChunkEntityLink `gorm:"foreignKey:ChunkID"`
}

func (ContentChunk) TableName() string { return "content_chunks" }

// EntityIDs 按类型取出关联实体 ID（保持写入顺序）
func (c *ContentChunk) EntityIDs(kind EntityKind) []uint64 {
	var ids []uint64
	for _, l := range c.Links {
		if l.EntityKind == kind {
			ids = append(ids, l.EntityID)
		}
	}
	return ids
}

// ChunkEntityLink 切块与实体的关联，entity_kind 区分球队/球员/教练
type ChunkEntityLink struct {
	ChunkID    string     `gorm:"column:chunk_id;type:varchar(36);primaryKey"`
	EntityKind EntityKind `gorm:"column:entity_kind;type:varchar(16);primaryKey"`
	EntityID   uint64     `gorm:"column:entity_id;type:bigint;primaryKey;index"`
}

func (ChunkEntityLink) TableName() string { return "chunk_entity_links" }

// 切块类别
const (
	CategoryMatchResult = "Match Result/Report"
	CategoryInjury      = "Injury Update"
	CategoryTransfer    = "Transfer News/Rumor"
	CategoryPerformance = "Player Performance/Praise"
	CategoryTeamNews    = "Team News/Strategy"
	CategoryManagerial  = "Managerial News"
	CategoryPreview     = "Pre-Match Analysis/Preview"
	CategoryReaction    = "Post-Match Reaction/Quotes"
	CategoryCompetition = "League/Competition News"
	CategoryOffPitch    = "Off-Pitch Event"
	CategoryHistorical  = "Historical Fact/Retrospective"
	CategoryStatistical = "Statistical Highlight"
	CategoryOpinion     = "Fan/Pundit Opinion"
	CategoryOther       = "Other"
)

// Categories 全部合法类别
var Categories = []string{
	CategoryMatchResult, CategoryInjury, CategoryTransfer, CategoryPerformance,
	CategoryTeamNews, CategoryManagerial, CategoryPreview, CategoryReaction,
	CategoryCompetition, CategoryOffPitch, CategoryHistorical, CategoryStatistical,
	CategoryOpinion, CategoryOther,
}

// Tones 全部合法语气
var Tones = []string{"Positive", "Negative", "Neutral", "Speculative", "Analytical", "Objective"}

// NormalizeCategory 未知类别归为 Other
func NormalizeCategory(c string) string {
	for _, known := range Categories {
		if strings.EqualFold(strings.TrimSpace(c), known) {
			return known
		}
	}
	return CategoryOther
}

// sourceReliability 按顺序匹配，先精确后包含
var sourceReliability = []struct {
	source string
	score  float64
}{
	{"api-football", 0.9},
	{"bbc", 0.8},
	{"guardian", 0.8},
	{"espn", 0.75},
	{"sky-sports", 0.75},
	{"telegraph", 0.75},
	{"twitter", 0.6},
	{"rss-feed", 0.5},
}

// SourceReliability 来源可信度，未知来源默认 0.5
func SourceReliability(source string) float64 {
	s := strings.ToLower(strings.TrimSpace(source))
	for _, r := range sourceReliability {
		if s == r.source {
			return r.score
		}
	}
	for _, r := range sourceReliability {
		if strings.Contains(s, r.source) {
			return r.score
		}
	}
	return 0.5
}
