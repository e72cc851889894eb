package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// DefaultQueryTimeout 未配置 database.query_timeout 时单次仓储调用的超时
const DefaultQueryTimeout = 10 * time.Second

// conn 各仓储共用的连接；每次调用通过 session 派生带超时的 gorm 会话
type conn struct {
	db      *gorm.DB
	timeout time.Duration
}

func newConn(db *gorm.DB, timeout time.Duration) conn {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return conn{db: db, timeout: timeout}
}

// session 返回绑定了超时 ctx 的会话，调用方须在本次调用结束时 cancel
func (c conn) session(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	return c.db.WithContext(ctx), cancel
}
