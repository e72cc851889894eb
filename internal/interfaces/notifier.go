package interfaces

import (
	"context"

	"MatchPulse/internal/model"
)

// Notifier 通知事件输出；投递到具体渠道不在本服务范围内
type Notifier interface {
	Notify(ctx context.Context, n *model.Notification) error
}
