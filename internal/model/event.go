package model

import "time"

// RawEventKind 原始事件类型
type RawEventKind string

const (
	RawArticle RawEventKind = "article"
	RawSocial  RawEventKind = "social"
	RawOdds    RawEventKind = "odds"
)

// RawEvent 抓取器写入事件流的原始内容，不可变
type RawEvent struct {
	ID          string       `json:"-"` // 事件流条目 ID，读取时填充
	Kind        RawEventKind `json:"kind"`
	Source      string       `json:"source"`
	ExternalURL string       `json:"external_url,omitempty"`
	Title       string       `json:"title,omitempty"`
	FullText    string       `json:"full_text,omitempty"`
	Author      string       `json:"author,omitempty"`
	FixtureID   uint64       `json:"fixture_id,omitempty"`
	Odds        MarketOdds   `json:"odds,omitempty"`
	PublishedAt *time.Time   `json:"published_at,omitempty"`
	ReceivedAt  time.Time    `json:"received_at"`
}

// Timestamp 文档时间：优先发布时间，否则接收时间
func (e *RawEvent) Timestamp() time.Time {
	if e.PublishedAt != nil && !e.PublishedAt.IsZero() {
		return e.PublishedAt.UTC()
	}
	return e.ReceivedAt.UTC()
}

// Notification 输出到通知流的事件
type Notification struct {
	Type      string    `json:"type"`
	FixtureID uint64    `json:"fixture_id"`
	Content   string    `json:"content"`
	Priority  string    `json:"priority"`
	Timestamp time.Time `json:"timestamp"`
}
