package retry

import (
	"context"
	"math/rand/v2"
	"time"
)

// Policy 指数退避重试策略，所有调用推理服务的组件共用
type Policy struct {
	MaxAttempts int           // 最大尝试次数（含首次）
	BaseDelay   time.Duration // 第一次重试前的等待
	Multiplier  float64       // 每次重试的放大倍数
	MaxDelay    time.Duration // 单次等待上限
	Jitter      float64       // 抖动比例，0.25 表示 ±25%
}

// DefaultPolicy 3 次尝试，2s 起步，翻倍，上限 30s，±25% 抖动
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		Multiplier:  2.0,
		MaxDelay:    30 * time.Second,
		Jitter:      0.25,
	}
}

// Backoff 第 attempt 次失败后的基础等待时间（不含抖动），attempt 从 1 开始
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.Multiplier
	if mult <= 0 {
		mult = 2.0
	}
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= mult
	}
	backoff := time.Duration(d)
	if p.MaxDelay > 0 && backoff > p.MaxDelay {
		backoff = p.MaxDelay
	}
	return backoff
}

func (p Policy) jittered(attempt int) time.Duration {
	backoff := p.Backoff(attempt)
	if p.Jitter <= 0 {
		return backoff
	}
	jitter := float64(backoff) * p.Jitter * (rand.Float64()*2 - 1)
	return backoff + time.Duration(jitter)
}

// Do 执行 fn，仅在临时错误时按退避重试；永久错误或其它错误立即返回。
// 返回最后一次的错误；attempts 为实际尝试次数。
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) (attempts int, err error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt
		err = fn(ctx, attempt)
		if err == nil || !IsTransient(err) {
			return attempts, err
		}
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return attempts, ctx.Err()
		case <-time.After(p.jittered(attempt)):
		}
	}
	return attempts, err
}
