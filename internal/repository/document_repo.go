package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"MatchPulse/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DocumentRepository 已处理文档与切块仓储
type DocumentRepository interface {
	// GetOrCreate 按 (source, document_url) upsert，已存在时返回原行（created=false）
	GetOrCreate(ctx context.Context, doc *model.ProcessedDocument) (*model.ProcessedDocument, bool, error)
	GetByID(ctx context.Context, id uint64) (*model.ProcessedDocument, error)
	// SaveClassification 写入分类结果并设置 classified_at
	SaveClassification(ctx context.Context, docID uint64, c *model.Classification, at time.Time) error
	// MarkImpactChecked 设置 impact_checked_at
	MarkImpactChecked(ctx context.Context, docID uint64, at time.Time) error
	// SaveChunks 单事务写入全部切块及实体关联，并设置 segmented_at；
	// 某个 chunk_index 已有行时，对应的 chunk 被替换为库中的原行
	SaveChunks(ctx context.Context, docID uint64, chunks []*model.ContentChunk, at time.Time) error
	// ListChunks 文档下的全部切块（含实体关联），按 chunk_index 升序
	ListChunks(ctx context.Context, docID uint64) ([]*model.ContentChunk, error)
	// ListChunksMissingVector 尚未写入向量库的切块（供补齐任务）
	ListChunksMissingVector(ctx context.Context, limit int) ([]*model.ContentChunk, error)
	// SetVectorID 向量写入成功后回写 vector_id；切块行不存在时返回 gorm.ErrRecordNotFound
	SetVectorID(ctx context.Context, chunkID, vectorID string) error
}

type documentRepository struct {
	conn
}

func NewDocumentRepository(db *gorm.DB, queryTimeout time.Duration) DocumentRepository {
	return &documentRepository{conn: newConn(db, queryTimeout)}
}

func (r *documentRepository) GetOrCreate(ctx context.Context, doc *model.ProcessedDocument) (*model.ProcessedDocument, bool, error) {
	db, cancel := r.session(ctx)
	defer cancel()
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source"}, {Name: "document_url"}},
		DoNothing: true,
	}).Create(doc)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 1 {
		return doc, true, nil
	}
	var existing model.ProcessedDocument
	if err := db.
		Where("source = ? AND document_url = ?", doc.Source, doc.DocumentURL).
		First(&existing).Error; err != nil {
		return nil, false, err
	}
	return &existing, false, nil
}

func (r *documentRepository) GetByID(ctx context.Context, id uint64) (*model.ProcessedDocument, error) {
	db, cancel := r.session(ctx)
	defer cancel()
	var doc model.ProcessedDocument
	if err := db.Where("id = ?", id).First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) SaveClassification(ctx context.Context, docID uint64, c *model.Classification, at time.Time) error {
	db, cancel := r.session(ctx)
	defer cancel()
	ids, err := json.Marshal(c.CandidateFixtureIDs)
	if err != nil {
		return err
	}
	return db.Model(&model.ProcessedDocument{}).
		Where("id = ?", docID).
		Updates(map[string]interface{}{
			"importance_score":      c.Importance,
			"urgency_level":         string(c.Urgency),
			"impact_reason":         c.Reason,
			"candidate_fixture_ids": datatypes.JSON(ids),
			"classified_at":         at,
			"updated_at":            at,
		}).Error
}

func (r *documentRepository) MarkImpactChecked(ctx context.Context, docID uint64, at time.Time) error {
	db, cancel := r.session(ctx)
	defer cancel()
	return db.Model(&model.ProcessedDocument{}).
		Where("id = ?", docID).
		Updates(map[string]interface{}{"impact_checked_at": at, "updated_at": at}).Error
}

func (r *documentRepository) SaveChunks(ctx context.Context, docID uint64, chunks []*model.ContentChunk, at time.Time) error {
	db, cancel := r.session(ctx)
	defer cancel()
	tx := db.Begin()
	if tx.Error != nil {
		return fmt.Errorf("开启事务失败: %w", tx.Error)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	// 1. 切块行；(document_id, chunk_index) 已存在时以库中的行为准，c 被替换为原行（含 id 与实体关联）
	inserted := make([]*model.ContentChunk, 0, len(chunks))
	for _, c := range chunks {
		c.DocumentID = docID
		links := c.Links
		c.Links = nil
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(c)
		c.Links = links
		if res.Error != nil {
			tx.Rollback()
			return fmt.Errorf("保存切块失败: %w, document_id: %d, index: %d", res.Error, docID, c.ChunkIndex)
		}
		if res.RowsAffected == 1 {
			inserted = append(inserted, c)
			continue
		}
		var existing model.ContentChunk
		if err := tx.Preload("Links").
			Where("document_id = ? AND chunk_index = ?", docID, c.ChunkIndex).
			First(&existing).Error; err != nil {
			tx.Rollback()
			return fmt.Errorf("读取已有切块失败: %w, document_id: %d, index: %d", err, docID, c.ChunkIndex)
		}
		*c = existing
	}

	// 2. 新写入切块的实体关联
	var links []model.ChunkEntityLink
	for _, c := range inserted {
		for _, l := range c.Links {
			l.ChunkID = c.ID
			links = append(links, l)
		}
	}
	if len(links) > 0 {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&links).Error; err != nil {
			tx.Rollback()
			return fmt.Errorf("保存实体关联失败: %w, document_id: %d", err, docID)
		}
	}

	// 3. 标记已切分
	if err := tx.Model(&model.ProcessedDocument{}).Where("id = ?", docID).
		Updates(map[string]interface{}{"segmented_at": at, "updated_at": at}).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("更新 segmented_at 失败: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}

func (r *documentRepository) ListChunks(ctx context.Context, docID uint64) ([]*model.ContentChunk, error) {
	db, cancel := r.session(ctx)
	defer cancel()
	var list []*model.ContentChunk
	if err := db.Preload("Links").
		Where("document_id = ?", docID).
		Order("chunk_index ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *documentRepository) ListChunksMissingVector(ctx context.Context, limit int) ([]*model.ContentChunk, error) {
	db, cancel := r.session(ctx)
	defer cancel()
	if limit <= 0 {
		limit = 200
	}
	var list []*model.ContentChunk
	if err := db.Preload("Links").
		Where("vector_id IS NULL").
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *documentRepository) SetVectorID(ctx context.Context, chunkID, vectorID string) error {
	db, cancel := r.session(ctx)
	defer cancel()
	res := db.Model(&model.ContentChunk{}).
		Where("id = ?", chunkID).
		Update("vector_id", vectorID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("切块 %s 不存在: %w", chunkID, gorm.ErrRecordNotFound)
	}
	return nil
}
