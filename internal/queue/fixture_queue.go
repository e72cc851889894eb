package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"MatchPulse/internal/retry"

	"github.com/redis/go-redis/v9"
)

// Priority 队列等级
type Priority string

const (
	Normal Priority = "normal"
	High   Priority = "high"
)

// Item 赛事工作项
type Item struct {
	FixtureID uint64
	Priority  Priority
}

// Options 队列参数
type Options struct {
	NormalKey              string
	PriorityKey            string
	PopTimeout             time.Duration
	MaxConsecutivePriority int // 连续从优先队列出队的上限，0 表示严格优先
}

// FixtureQueue 两级持久化 FIFO（Redis List），多个调度实例通过原子 pop 共享
type FixtureQueue struct {
	rdb  redis.Cmdable
	opts Options

	mu          sync.Mutex
	consecutive int // 本实例连续从优先队列出队的次数
}

// NewFixtureQueue 创建赛事队列
func NewFixtureQueue(rdb redis.Cmdable, opts Options) *FixtureQueue {
	if opts.PopTimeout <= 0 {
		opts.PopTimeout = time.Second
	}
	return &FixtureQueue{rdb: rdb, opts: opts}
}

func (q *FixtureQueue) key(p Priority) string {
	if p == High {
		return q.opts.PriorityKey
	}
	return q.opts.NormalKey
}

// Push 追加到对应队列尾部
func (q *FixtureQueue) Push(ctx context.Context, fixtureID uint64, p Priority) error {
	if err := q.rdb.RPush(ctx, q.key(p), strconv.FormatUint(fixtureID, 10)).Err(); err != nil {
		return fmt.Errorf("赛事 %d 入队失败: %w", fixtureID, err)
	}
	return nil
}

// Requeue 处理失败后放回原队列尾部
func (q *FixtureQueue) Requeue(ctx context.Context, item *Item) error {
	return q.Push(ctx, item.FixtureID, item.Priority)
}

// Pop 取一个工作项：默认优先队列先于普通队列；
// 连续优先出队达到上限后，本次先尝试普通队列（非阻塞），避免普通队列被饿死。
// 两个队列都为空时返回 nil, nil。
func (q *FixtureQueue) Pop(ctx context.Context) (*Item, error) {
	q.mu.Lock()
	yieldToNormal := q.opts.MaxConsecutivePriority > 0 && q.consecutive >= q.opts.MaxConsecutivePriority
	q.mu.Unlock()

	if yieldToNormal {
		val, err := q.rdb.LPop(ctx, q.opts.NormalKey).Result()
		switch {
		case err == nil:
			q.served(Normal)
			return parseItem(val, Normal)
		case !errors.Is(err, redis.Nil):
			return nil, fmt.Errorf("普通队列出队失败: %w", err)
		}
	}

	item, err := q.blockingPop(ctx, High)
	if err != nil || item != nil {
		return item, err
	}
	q.served(Normal) // 优先队列为空，计数清零
	return q.blockingPop(ctx, Normal)
}

func (q *FixtureQueue) blockingPop(ctx context.Context, p Priority) (*Item, error) {
	res, err := q.rdb.BLPop(ctx, q.opts.PopTimeout, q.key(p)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s 队列出队失败: %w", p, err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("%s 队列返回异常: %v", p, res)
	}
	q.served(p)
	return parseItem(res[1], p)
}

func (q *FixtureQueue) served(p Priority) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if p == High {
		q.consecutive++
		return
	}
	q.consecutive = 0
}

func parseItem(val string, p Priority) (*Item, error) {
	id, err := strconv.ParseUint(val, 10, 64)
	if err != nil || id == 0 {
		return nil, retry.Permanent(fmt.Errorf("队列中存在非法赛事 ID %q", val))
	}
	return &Item{FixtureID: id, Priority: p}, nil
}

// Contains 赛事是否已在任一队列中（扫描列表，队列规模较小）
func (q *FixtureQueue) Contains(ctx context.Context, fixtureID uint64) (bool, error) {
	want := strconv.FormatUint(fixtureID, 10)
	for _, key := range []string{q.opts.PriorityKey, q.opts.NormalKey} {
		vals, err := q.rdb.LRange(ctx, key, 0, -1).Result()
		if err != nil {
			return false, fmt.Errorf("读取队列 %s 失败: %w", key, err)
		}
		for _, v := range vals {
			if v == want {
				return true, nil
			}
		}
	}
	return false, nil
}

// Len 两个队列的长度
func (q *FixtureQueue) Len(ctx context.Context) (normal, priority int64, err error) {
	if normal, err = q.rdb.LLen(ctx, q.opts.NormalKey).Result(); err != nil {
		return 0, 0, err
	}
	if priority, err = q.rdb.LLen(ctx, q.opts.PriorityKey).Result(); err != nil {
		return 0, 0, err
	}
	return normal, priority, nil
}
