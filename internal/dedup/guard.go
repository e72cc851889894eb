package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guard 带 TTL 的去重集合；同一身份键在 TTL 内只会被放行一次
type Guard struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewGuard 创建去重守卫
func NewGuard(rdb redis.Cmdable, prefix string, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Guard{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Seen 若未见过则原子地标记并返回 false；已见过返回 true。
// 只有 SET NX 明确失败才算见过，因此不会误判。
func (g *Guard) Seen(ctx context.Context, identityKey string) (bool, error) {
	set, err := g.rdb.SetNX(ctx, g.prefix+identityKey, 1, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("去重检查失败: %w", err)
	}
	return !set, nil
}

// Claim 与 Seen 相同，但标记值记录 owner（事件流条目 ID）。
// 同一条目被回收重投时不算重复，只有其它条目持有标记才返回 true。
func (g *Guard) Claim(ctx context.Context, identityKey, owner string) (bool, error) {
	key := g.prefix + identityKey
	set, err := g.rdb.SetNX(ctx, key, owner, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("去重检查失败: %w", err)
	}
	if set {
		return false, nil
	}
	holder, err := g.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// 标记恰好过期或被释放，重新抢占
		return g.Claim(ctx, identityKey, owner)
	}
	if err != nil {
		return false, fmt.Errorf("读取去重标记失败: %w", err)
	}
	return holder != owner, nil
}

// Release 处理失败需要重投时撤销标记
func (g *Guard) Release(ctx context.Context, identityKey string) error {
	return g.rdb.Del(ctx, g.prefix+identityKey).Err()
}

var (
	trailingSlash = regexp.MustCompile(`/+$`)
	whitespace    = regexp.MustCompile(`\s+`)
)

// IdentityKey 内容身份键：source + 规范化 URL；无 URL 的社交内容退化为 source + author + 正文
func IdentityKey(source, externalURL, author, text string) string {
	source = strings.ToLower(strings.TrimSpace(source))
	var data string
	if u := normalizeURL(externalURL); u != "" {
		data = source + "|" + u
	} else {
		body := whitespace.ReplaceAllString(strings.TrimSpace(text), " ")
		data = source + "|" + strings.ToLower(strings.TrimSpace(author)) + "|" + body
	}
	h := sha256.Sum256([]byte(data))
	return hex.EncodeToString(h[:])
}

func normalizeURL(u string) string {
	u = strings.TrimSpace(u)
	if i := strings.Index(u, "#"); i >= 0 {
		u = u[:i]
	}
	return trailingSlash.ReplaceAllString(u, "")
}
