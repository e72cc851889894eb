package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"MatchPulse/internal/model"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const eventField = "event"

// Options 事件流与消费组参数
type Options struct {
	Stream       string
	Group        string
	Consumer     string
	ReadCount    int64
	Block        time.Duration // <=0 时不阻塞
	ReclaimIdle  time.Duration
	ReclaimCount int64
}

// Entry 从事件流读到的一条记录；DecodeErr 非空表示载荷无法解析
type Entry struct {
	ID        string
	Event     *model.RawEvent
	DecodeErr error
}

// Log 基于 Redis Stream 的追加式事件日志，支持多个消费组
type Log struct {
	rdb    redis.Cmdable
	opts   Options
	logger *logrus.Logger
}

// NewLog 创建事件日志
func NewLog(rdb redis.Cmdable, opts Options, logger *logrus.Logger) *Log {
	if opts.ReadCount <= 0 {
		opts.ReadCount = 10
	}
	if opts.ReclaimCount <= 0 {
		opts.ReclaimCount = 10
	}
	return &Log{rdb: rdb, opts: opts, logger: logger}
}

// EnsureGroup 创建消费组（流不存在时一并创建），已存在则忽略
func (l *Log) EnsureGroup(ctx context.Context) error {
	err := l.rdb.XGroupCreateMkStream(ctx, l.opts.Stream, l.opts.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("创建消费组 %s 失败: %w", l.opts.Group, err)
	}
	return nil
}

// Append 抓取器写入一条原始事件，返回条目 ID
func (l *Log) Append(ctx context.Context, ev *model.RawEvent) (string, error) {
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("序列化事件失败: %w", err)
	}
	id, err := l.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: l.opts.Stream,
		Values: map[string]interface{}{eventField: string(data)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("写入事件流失败: %w", err)
	}
	return id, nil
}

// Read 以消费组身份读取最多 ReadCount 条新事件；超时无数据时返回空
func (l *Log) Read(ctx context.Context) ([]Entry, error) {
	block := l.opts.Block
	if block <= 0 {
		block = -1
	}
	streams, err := l.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    l.opts.Group,
		Consumer: l.opts.Consumer,
		Streams:  []string{l.opts.Stream, ">"},
		Count:    l.opts.ReadCount,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取事件流失败: %w", err)
	}
	var entries []Entry
	for _, s := range streams {
		for _, msg := range s.Messages {
			entries = append(entries, decode(msg))
		}
	}
	return entries, nil
}

// Ack 确认已处理的条目
func (l *Log) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := l.rdb.XAck(ctx, l.opts.Stream, l.opts.Group, ids...).Err(); err != nil {
		return fmt.Errorf("确认事件失败: %w", err)
	}
	return nil
}

// Reclaim 将空闲超过 ReclaimIdle 的未确认条目转移给当前消费者
func (l *Log) Reclaim(ctx context.Context) ([]Entry, error) {
	msgs, _, err := l.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   l.opts.Stream,
		Group:    l.opts.Group,
		Consumer: l.opts.Consumer,
		MinIdle:  l.opts.ReclaimIdle,
		Start:    "0-0",
		Count:    l.opts.ReclaimCount,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("回收未确认事件失败: %w", err)
	}
	entries := make([]Entry, 0, len(msgs))
	for _, msg := range msgs {
		entries = append(entries, decode(msg))
	}
	if len(entries) > 0 {
		l.logger.WithFields(logrus.Fields{
			"stream":   l.opts.Stream,
			"consumer": l.opts.Consumer,
			"count":    len(entries),
		}).Info("回收了空闲的未确认事件")
	}
	return entries, nil
}

// Renew 续期仍归当前消费者的未确认条目：空闲时间清零，使其不会被其它消费者的 Reclaim 接管。
// 返回仍归属本消费者的条目集合；已确认或已被接管的条目不在其中，也不会被抢回。
func (l *Log) Renew(ctx context.Context, ids ...string) (map[string]bool, error) {
	owned := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return owned, nil
	}
	cmds := make([]*redis.XPendingExtCmd, len(ids))
	if _, err := l.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.XPendingExt(ctx, &redis.XPendingExtArgs{
				Stream:   l.opts.Stream,
				Group:    l.opts.Group,
				Start:    id,
				End:      id,
				Count:    1,
				Consumer: l.opts.Consumer,
			})
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("查询未确认条目归属失败: %w", err)
	}

	var mine []string
	for i, cmd := range cmds {
		if p := cmd.Val(); len(p) == 1 && p[0].ID == ids[i] {
			mine = append(mine, ids[i])
		}
	}
	if len(mine) == 0 {
		return owned, nil
	}
	claimed, err := l.rdb.XClaimJustID(ctx, &redis.XClaimArgs{
		Stream:   l.opts.Stream,
		Group:    l.opts.Group,
		Consumer: l.opts.Consumer,
		MinIdle:  0,
		Messages: mine,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("续期未确认条目失败: %w", err)
	}
	for _, id := range claimed {
		owned[id] = true
	}
	return owned, nil
}

// Pending 消费组中未确认条目数
func (l *Log) Pending(ctx context.Context) (int64, error) {
	p, err := l.rdb.XPending(ctx, l.opts.Stream, l.opts.Group).Result()
	if err != nil {
		return 0, err
	}
	return p.Count, nil
}

func decode(msg redis.XMessage) Entry {
	entry := Entry{ID: msg.ID}
	raw, ok := msg.Values[eventField].(string)
	if !ok || raw == "" {
		entry.DecodeErr = fmt.Errorf("条目 %s 缺少 %s 字段", msg.ID, eventField)
		return entry
	}
	var ev model.RawEvent
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		entry.DecodeErr = fmt.Errorf("条目 %s 载荷无法解析: %w", msg.ID, err)
		return entry
	}
	if err := validate(&ev); err != nil {
		entry.DecodeErr = fmt.Errorf("条目 %s 载荷不合法: %w", msg.ID, err)
		return entry
	}
	ev.ID = msg.ID
	entry.Event = &ev
	return entry
}

func validate(ev *model.RawEvent) error {
	switch ev.Kind {
	case model.RawOdds:
		if ev.FixtureID == 0 || len(ev.Odds) == 0 {
			return errors.New("odds 事件需要 fixture_id 与 odds")
		}
	case model.RawArticle, model.RawSocial:
		if strings.TrimSpace(ev.FullText) == "" {
			return errors.New("缺少 full_text")
		}
		if ev.Kind == model.RawArticle && ev.ExternalURL == "" {
			return errors.New("文章事件缺少 external_url")
		}
	default:
		return fmt.Errorf("未知事件类型 %q", ev.Kind)
	}
	if ev.Source == "" {
		return errors.New("缺少 source")
	}
	return nil
}
