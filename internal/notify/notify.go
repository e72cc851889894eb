package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"MatchPulse/internal/interfaces"
	"MatchPulse/internal/model"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisStream 把通知写入 Redis 输出流，字段扁平化，timestamp 为 unix 秒
type RedisStream struct {
	rdb    redis.Cmdable
	stream string
	maxLen int64
}

func NewRedisStream(rdb redis.Cmdable, stream string, maxLen int64) *RedisStream {
	return &RedisStream{rdb: rdb, stream: stream, maxLen: maxLen}
}

func (s *RedisStream) Notify(ctx context.Context, n *model.Notification) error {
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"type":       n.Type,
			"fixture_id": strconv.FormatUint(n.FixtureID, 10),
			"content":    n.Content,
			"priority":   n.Priority,
			"timestamp":  strconv.FormatInt(n.Timestamp.Unix(), 10),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("写入通知流失败: %w", err)
	}
	return nil
}

// Publisher NATS 发布接口，*nats.Conn 满足
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSMirror 把通知以 JSON 镜像到 NATS 主题
type NATSMirror struct {
	pub     Publisher
	subject string
}

func NewNATSMirror(pub Publisher, subject string) *NATSMirror {
	return &NATSMirror{pub: pub, subject: subject}
}

// ConnectNATS 连接 NATS，断线后无限重连
func ConnectNATS(url string) (*nats.Conn, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	return nats.Connect(url,
		nats.Name("matchpulse-notify"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}

func (m *NATSMirror) Notify(_ context.Context, n *model.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	if err := m.pub.Publish(m.subject, data); err != nil {
		return fmt.Errorf("发布 NATS 通知失败: %w", err)
	}
	return nil
}

// Fanout 主通道失败返回错误；镜像通道失败只记日志
type Fanout struct {
	primary interfaces.Notifier
	mirrors []interfaces.Notifier
	logger  *logrus.Logger
}

func NewFanout(primary interfaces.Notifier, logger *logrus.Logger, mirrors ...interfaces.Notifier) *Fanout {
	return &Fanout{primary: primary, mirrors: mirrors, logger: logger}
}

func (f *Fanout) Notify(ctx context.Context, n *model.Notification) error {
	if n == nil {
		return errors.New("notification 为空")
	}
	if err := f.primary.Notify(ctx, n); err != nil {
		return err
	}
	for _, m := range f.mirrors {
		if err := m.Notify(ctx, n); err != nil {
			f.logger.WithError(err).WithField("fixture_id", n.FixtureID).Warn("通知镜像发送失败")
		}
	}
	return nil
}
