package service

import (
	"context"
	"fmt"

	"MatchPulse/internal/model"
	"MatchPulse/internal/repository"

	"github.com/sirupsen/logrus"
)

// Reconciler 补齐关系库中尚未写入向量库的切块（双写中断后的修复）
type Reconciler struct {
	docs    repository.DocumentRepository
	indexer *Indexer
	batch   int
	logger  *logrus.Logger
}

func NewReconciler(docs repository.DocumentRepository, indexer *Indexer, batch int, logger *logrus.Logger) *Reconciler {
	if batch <= 0 {
		batch = 200
	}
	return &Reconciler{docs: docs, indexer: indexer, batch: batch, logger: logger}
}

// Run 返回本次补齐成功与失败的切块数
func (r *Reconciler) Run(ctx context.Context) (fixed, failed int, err error) {
	chunks, err := r.docs.ListChunksMissingVector(ctx, r.batch)
	if err != nil {
		return 0, 0, fmt.Errorf("查询缺少向量的切块失败: %w", err)
	}
	if len(chunks) == 0 {
		r.logger.Debug("向量补齐：无待处理切块")
		return 0, 0, nil
	}

	byDoc := make(map[uint64][]*model.ContentChunk)
	var order []uint64
	for _, c := range chunks {
		if _, ok := byDoc[c.DocumentID]; !ok {
			order = append(order, c.DocumentID)
		}
		byDoc[c.DocumentID] = append(byDoc[c.DocumentID], c)
	}
	for _, docID := range order {
		group := byDoc[docID]
		doc, err := r.docs.GetByID(ctx, docID)
		if err != nil {
			r.logger.WithError(err).WithField("document_id", docID).Warn("向量补齐：读取文档失败")
			failed += len(group)
			continue
		}
		if err := r.indexer.EmbedMissing(ctx, doc, group); err != nil {
			r.logger.WithError(err).WithField("document_id", docID).Warn("向量补齐：部分切块仍未写入向量库")
		}
		for _, c := range group {
			if c.VectorID != nil {
				fixed++
			} else {
				failed++
			}
		}
	}
	r.logger.WithFields(logrus.Fields{"fixed": fixed, "failed": failed}).Info("向量补齐完成")
	return fixed, failed, nil
}
