package service

import (
	"errors"
	"fmt"
	"strings"

	"MatchPulse/internal/retry"

	"gorm.io/gorm"
)

// PartialFailureError 文档部分切块写入向量库失败；关系库行已落库，重试只补齐缺失部分
type PartialFailureError struct {
	DocumentID uint64
	Failed     int
	Total      int
	Errs       []error
}

func (e *PartialFailureError) Error() string {
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("document %d: %d/%d 个切块向量化失败: %s", e.DocumentID, e.Failed, e.Total, strings.Join(msgs, "; "))
}

// missingEntity 引用的赛事/实体不存在属于永久错误，其余数据库错误按可重试处理
func missingEntity(err error, format string, args ...interface{}) error {
	wrapped := fmt.Errorf(format+": %w", append(args, err)...)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return retry.Permanent(wrapped)
	}
	return wrapped
}
