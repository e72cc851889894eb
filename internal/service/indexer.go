package service

import (
	"context"
	"fmt"
	"time"

	"MatchPulse/internal/interfaces"
	"MatchPulse/internal/linker"
	"MatchPulse/internal/model"
	"MatchPulse/internal/repository"
	"MatchPulse/internal/retry"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// IndexerOptions 切块大小约束
type IndexerOptions struct {
	ShortDocWords int
	MaxChunkWords int
}

// Indexer 文档切块与索引：先写关系库，再写向量库，最后回写 vector_id
type Indexer struct {
	reasoning interfaces.ReasoningService
	embedder  interfaces.Embedder
	vectors   interfaces.VectorIndex
	docs      repository.DocumentRepository
	linker    *linker.Linker
	policy    retry.Policy
	opts      IndexerOptions
	logger    *logrus.Logger
	now       func() time.Time
}

func NewIndexer(rs interfaces.ReasoningService, embedder interfaces.Embedder, vectors interfaces.VectorIndex,
	docs repository.DocumentRepository, lk *linker.Linker, policy retry.Policy, opts IndexerOptions, logger *logrus.Logger) *Indexer {
	if opts.ShortDocWords <= 0 {
		opts.ShortDocWords = 150
	}
	if opts.MaxChunkWords <= 0 {
		opts.MaxChunkWords = 700
	}
	return &Indexer{
		reasoning: rs,
		embedder:  embedder,
		vectors:   vectors,
		docs:      docs,
		linker:    lk,
		policy:    policy,
		opts:      opts,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Index 处理一篇文档。已切分过的文档（重试）只补齐缺少向量的切块，不会重复写切块行。
func (x *Indexer) Index(ctx context.Context, doc *model.ProcessedDocument, text string) ([]*model.ContentChunk, error) {
	var chunks []*model.ContentChunk
	if doc.SegmentedAt == nil {
		built, err := x.segment(ctx, doc, text)
		if err != nil {
			return nil, err
		}
		at := x.now()
		if err := x.docs.SaveChunks(ctx, doc.ID, built, at); err != nil {
			return nil, fmt.Errorf("保存切块失败: %w", err)
		}
		doc.SegmentedAt = &at
		chunks = built
		x.logger.WithFields(logrus.Fields{
			"document_id": doc.ID,
			"chunks":      len(chunks),
			"words":       WordCount(text),
		}).Info("文档切块已落库")
	} else {
		existing, err := x.docs.ListChunks(ctx, doc.ID)
		if err != nil {
			return nil, fmt.Errorf("读取已有切块失败: %w", err)
		}
		chunks = existing
	}

	if err := x.EmbedMissing(ctx, doc, chunks); err != nil {
		return chunks, err
	}
	return chunks, nil
}

func (x *Indexer) segment(ctx context.Context, doc *model.ProcessedDocument, text string) ([]*model.ContentChunk, error) {
	req := &model.SegmentRequest{Source: doc.Source, Title: doc.Title, Text: text, Timestamp: doc.DocumentTimestamp}
	var segments []model.Segment
	if _, err := x.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		res, err := x.reasoning.Segment(ctx, req)
		if err != nil {
			return err
		}
		segments = res
		return nil
	}); err != nil {
		return nil, fmt.Errorf("文档切分失败: %w", err)
	}

	segments = NormalizeSegments(text, segments, x.opts.ShortDocWords, x.opts.MaxChunkWords)
	chunks := make([]*model.ContentChunk, 0, len(segments))
	for i, seg := range segments {
		links, err := x.resolveLinks(ctx, &seg)
		if err != nil {
			return nil, err
		}
		c := &model.ContentChunk{
			ID:                uuid.NewString(),
			DocumentID:        doc.ID,
			ChunkIndex:        i,
			Text:              seg.Text,
			Summary:           seg.Summary,
			Category:          seg.Category,
			Tone:              seg.Tone,
			Importance:        seg.Importance,
			MentionedDate:     parseMentionedDate(seg.MentionedDate),
			QuotedPerson:      seg.QuotedPerson,
			SourceReference:   seg.SourceReference,
			DocumentTimestamp: doc.DocumentTimestamp,
			Links:             links,
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// resolveLinks 先解析球队，再以球队作为上下文解析球员和教练
func (x *Indexer) resolveLinks(ctx context.Context, seg *model.Segment) ([]model.ChunkEntityLink, error) {
	teams, err := x.linker.LinkAll(ctx, seg.LinkedTeamNames, model.EntityTeam, nil)
	if err != nil {
		return nil, err
	}
	players, err := x.linker.LinkAll(ctx, seg.LinkedPlayerNames, model.EntityPlayer, teams)
	if err != nil {
		return nil, err
	}
	coaches, err := x.linker.LinkAll(ctx, seg.LinkedCoachNames, model.EntityCoach, teams)
	if err != nil {
		return nil, err
	}
	links := make([]model.ChunkEntityLink, 0, len(teams)+len(players)+len(coaches))
	for _, g := range []struct {
		kind model.EntityKind
		ids  []uint64
	}{{model.EntityTeam, teams}, {model.EntityPlayer, players}, {model.EntityCoach, coaches}} {
		for _, id := range g.ids {
			links = append(links, model.ChunkEntityLink{EntityKind: g.kind, EntityID: id})
		}
	}
	return links, nil
}

// EmbedMissing 为没有 vector_id 的切块计算向量、写向量库并回写；单个切块失败不影响其它切块
func (x *Indexer) EmbedMissing(ctx context.Context, doc *model.ProcessedDocument, chunks []*model.ContentChunk) error {
	var pending []*model.ContentChunk
	for _, c := range chunks {
		if c.VectorID == nil {
			pending = append(pending, c)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	var errs []error
	for _, c := range pending {
		if err := x.embedOne(ctx, doc, c); err != nil {
			x.logger.WithError(err).WithFields(logrus.Fields{
				"document_id": doc.ID,
				"chunk_id":    c.ID,
				"chunk_index": c.ChunkIndex,
			}).Warn("切块向量化失败，等待重试")
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return retry.Transient(&PartialFailureError{DocumentID: doc.ID, Failed: len(errs), Total: len(pending), Errs: errs})
	}
	return nil
}

func (x *Indexer) embedOne(ctx context.Context, doc *model.ProcessedDocument, c *model.ContentChunk) error {
	var vec []float32
	if _, err := x.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		vecs, err := x.embedder.Embed(ctx, []string{embeddingText(c)})
		if err != nil {
			return err
		}
		vec = vecs[0]
		return nil
	}); err != nil {
		return fmt.Errorf("embedding 失败: %w", err)
	}
	if err := x.vectors.Upsert(ctx, c.ID, vec, VectorMeta(doc, c)); err != nil {
		return fmt.Errorf("写向量库失败: %w", err)
	}
	if err := x.docs.SetVectorID(ctx, c.ID, c.ID); err != nil {
		return fmt.Errorf("回写 vector_id 失败: %w", err)
	}
	id := c.ID
	c.VectorID = &id
	return nil
}

// VectorMeta 向量库元数据，与关系库行保持一致
func VectorMeta(doc *model.ProcessedDocument, c *model.ContentChunk) model.ChunkVectorMeta {
	return model.ChunkVectorMeta{
		DocumentID:        doc.ID,
		ChunkIndex:        c.ChunkIndex,
		Source:            doc.Source,
		DocumentURL:       doc.DocumentURL,
		DocumentTitle:     doc.Title,
		DocumentTimestamp: c.DocumentTimestamp,
		Category:          c.Category,
		Tone:              c.Tone,
		Importance:        c.Importance,
		Text:              c.Text,
		Summary:           c.Summary,
		LinkedTeamIDs:     nonNil(c.EntityIDs(model.EntityTeam)),
		LinkedPlayerIDs:   nonNil(c.EntityIDs(model.EntityPlayer)),
		LinkedCoachIDs:    nonNil(c.EntityIDs(model.EntityCoach)),
	}
}

func embeddingText(c *model.ContentChunk) string {
	if c.Summary == "" {
		return c.Text
	}
	return c.Summary + "\n\n" + c.Text
}

func parseMentionedDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func nonNil(ids []uint64) []uint64 {
	if ids == nil {
		return []uint64{}
	}
	return ids
}
