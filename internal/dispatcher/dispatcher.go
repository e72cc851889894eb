package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"MatchPulse/internal/dedup"
	"MatchPulse/internal/ingest"
	"MatchPulse/internal/model"
	"MatchPulse/internal/queue"
	"MatchPulse/internal/repository"
	"MatchPulse/internal/retry"
	"MatchPulse/internal/service"

	"github.com/sirupsen/logrus"
)

// EventLog 原始事件日志（消费端）
type EventLog interface {
	Read(ctx context.Context) ([]ingest.Entry, error)
	Ack(ctx context.Context, ids ...string) error
	Reclaim(ctx context.Context) ([]ingest.Entry, error)
	Renew(ctx context.Context, ids ...string) (map[string]bool, error)
}

// WorkQueue 赛事工作队列（消费端）
type WorkQueue interface {
	Pop(ctx context.Context) (*queue.Item, error)
	Requeue(ctx context.Context, item *queue.Item) error
}

// DedupGuard 事件去重
type DedupGuard interface {
	Claim(ctx context.Context, identityKey, owner string) (bool, error)
	Release(ctx context.Context, identityKey string) error
}

type ContentClassifier interface {
	Classify(ctx context.Context, text, author string) (*model.Classification, error)
	ShouldTrigger(cl *model.Classification) bool
}

type DocumentIndexer interface {
	Index(ctx context.Context, doc *model.ProcessedDocument, text string) ([]*model.ContentChunk, error)
}

type ImpactChecker interface {
	Analyze(ctx context.Context, ev *model.RawEvent, cl *model.Classification) (*service.ImpactReport, error)
}

type PredictionGenerator interface {
	GenerateForFixture(ctx context.Context, fixtureID uint64) (*model.Prediction, error)
}

type OddsApplier interface {
	Apply(ctx context.Context, ev *model.RawEvent) error
}

// Options 调度节奏
type Options struct {
	IdleSleep       time.Duration
	ReclaimInterval time.Duration
	// RenewInterval 处理期间续期本批未确认条目的间隔，须小于事件流的 reclaim_idle
	RenewInterval time.Duration
}

// Deps 调度器依赖
type Deps struct {
	Log        EventLog
	Queue      WorkQueue
	Dedup      DedupGuard
	Docs       repository.DocumentRepository
	Odds       OddsApplier
	Classifier ContentClassifier
	Impact     ImpactChecker
	Indexer    DocumentIndexer
	Reasoner   PredictionGenerator
}

// Dispatcher 单个 worker 的主循环：交替处理赛事队列与事件日志，定期回收其它消费者遗留的未确认条目。
// 多个 Dispatcher 可并行运行，事件流消费组与 Redis 列表保证同一工作项只被一个实例取走。
type Dispatcher struct {
	Deps
	opts    Options
	metrics *Metrics
	logger  *logrus.Logger
	now     func() time.Time
}

func New(deps Deps, opts Options, metrics *Metrics, logger *logrus.Logger) *Dispatcher {
	if opts.IdleSleep <= 0 {
		opts.IdleSleep = 5 * time.Second
	}
	if opts.ReclaimInterval <= 0 {
		opts.ReclaimInterval = 30 * time.Second
	}
	if opts.RenewInterval <= 0 {
		opts.RenewInterval = 20 * time.Second
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Dispatcher{
		Deps:    deps,
		opts:    opts,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Run 阻塞直到 ctx 取消
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("worker dispatcher 启动")
	var lastReclaim time.Time
	for {
		if ctx.Err() != nil {
			d.logger.Info("worker dispatcher 退出")
			return nil
		}
		if d.now().Sub(lastReclaim) >= d.opts.ReclaimInterval {
			if _, err := d.ReclaimStale(ctx); err != nil && ctx.Err() == nil {
				d.logger.WithError(err).Warn("回收未确认事件失败")
			}
			lastReclaim = d.now()
		}

		gotFixture, err := d.PollFixture(ctx)
		if err != nil && ctx.Err() == nil {
			d.logger.WithError(err).Warn("赛事队列出队失败")
		}
		entries, err := d.PollLog(ctx)
		if err != nil && ctx.Err() == nil {
			d.logger.WithError(err).Warn("读取事件流失败")
		}
		if !gotFixture && entries == 0 {
			select {
			case <-ctx.Done():
			case <-time.After(d.opts.IdleSleep):
			}
		}
	}
}

// PollFixture 取一个赛事生成预测。可重试失败放回原队列尾部，永久失败丢弃。
func (d *Dispatcher) PollFixture(ctx context.Context) (bool, error) {
	item, err := d.Queue.Pop(ctx)
	if err != nil {
		return false, err
	}
	if item == nil {
		return false, nil
	}
	d.metrics.QueuePops.WithLabelValues(string(item.Priority)).Inc()
	log := d.logger.WithFields(logrus.Fields{"fixture_id": item.FixtureID, "priority": item.Priority})

	if _, err := d.Reasoner.GenerateForFixture(ctx, item.FixtureID); err != nil {
		if retry.IsPermanent(err) {
			log.WithError(err).Error("赛事预测永久失败，已丢弃")
			d.metrics.Fixtures.WithLabelValues(string(item.Priority), outcomeDropped).Inc()
			return true, nil
		}
		log.WithError(err).Warn("赛事预测失败，放回队列")
		d.metrics.Fixtures.WithLabelValues(string(item.Priority), outcomeRequeued).Inc()
		if rqErr := d.Queue.Requeue(ctx, item); rqErr != nil {
			return true, fmt.Errorf("赛事 %d 重新入队失败: %w", item.FixtureID, rqErr)
		}
		return true, nil
	}
	d.metrics.Fixtures.WithLabelValues(string(item.Priority), outcomeProcessed).Inc()
	return true, nil
}

// PollLog 读取一批新事件并逐条处理，返回读到的条数
func (d *Dispatcher) PollLog(ctx context.Context) (int, error) {
	entries, err := d.Log.Read(ctx)
	if err != nil {
		return 0, err
	}
	d.handleBatch(ctx, entries)
	return len(entries), nil
}

// ReclaimStale 接管空闲超时的未确认条目并处理
func (d *Dispatcher) ReclaimStale(ctx context.Context) (int, error) {
	entries, err := d.Log.Reclaim(ctx)
	if err != nil {
		return 0, err
	}
	d.metrics.Reclaimed.Add(float64(len(entries)))
	d.handleBatch(ctx, entries)
	return len(entries), nil
}

// handleBatch 逐条处理一批未确认条目。每条开始前确认它仍归本消费者并续期本批剩余条目，
// 处理期间按 RenewInterval 持续续期；已被其它 worker 接管的条目直接跳过。
func (d *Dispatcher) handleBatch(ctx context.Context, entries []ingest.Entry) {
	for i, e := range entries {
		rest := make([]string, 0, len(entries)-i)
		for _, r := range entries[i:] {
			rest = append(rest, r.ID)
		}
		owned, err := d.Log.Renew(ctx, rest...)
		if err != nil {
			if ctx.Err() == nil {
				d.logger.WithError(err).WithField("entry_id", e.ID).Warn("续期未确认事件失败，剩余条目留待回收")
			}
			return
		}
		if !owned[e.ID] {
			d.logger.WithField("entry_id", e.ID).Info("事件已被其它 worker 接管，跳过")
			d.metrics.LogEntries.WithLabelValues(entryKind(e), outcomeLost).Inc()
			continue
		}

		stop := d.keepAlive(ctx, rest)
		d.handleEntry(ctx, e)
		stop()
	}
}

// keepAlive 后台定期续期 ids，返回的 stop 会等待续期协程退出
func (d *Dispatcher) keepAlive(ctx context.Context, ids []string) (stop func()) {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(d.opts.RenewInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				owned, err := d.Log.Renew(ctx, ids...)
				if err != nil {
					if ctx.Err() == nil {
						d.logger.WithError(err).WithField("entry_id", ids[0]).Warn("续期未确认事件失败")
					}
					continue
				}
				if !owned[ids[0]] {
					d.logger.WithField("entry_id", ids[0]).Warn("处理中的事件已不归本 worker")
				}
			}
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}

func entryKind(e ingest.Entry) string {
	if e.Event == nil {
		return "unknown"
	}
	return string(e.Event.Kind)
}

// handleEntry 成功、重复与永久失败都确认；可重试失败保持未确认，等待回收重投
func (d *Dispatcher) handleEntry(ctx context.Context, e ingest.Entry) {
	log := d.logger.WithField("entry_id", e.ID)
	if e.DecodeErr != nil {
		log.WithError(e.DecodeErr).Error("事件载荷不合法，确认并丢弃")
		d.metrics.LogEntries.WithLabelValues("unknown", outcomeMalformed).Inc()
		d.ack(ctx, e.ID)
		return
	}

	kind := string(e.Event.Kind)
	outcome, err := d.process(ctx, e.Event)
	switch {
	case err == nil:
		d.metrics.LogEntries.WithLabelValues(kind, outcome).Inc()
		d.ack(ctx, e.ID)
	case retry.IsPermanent(err):
		log.WithError(err).WithField("kind", kind).Error("事件处理永久失败，确认并丢弃")
		d.metrics.LogEntries.WithLabelValues(kind, outcomeFailed).Inc()
		d.ack(ctx, e.ID)
	default:
		log.WithError(err).WithField("kind", kind).Warn("事件处理失败，保留未确认等待重投")
		d.metrics.LogEntries.WithLabelValues(kind, outcomeRetry).Inc()
	}
}

func (d *Dispatcher) ack(ctx context.Context, id string) {
	if err := d.Log.Ack(ctx, id); err != nil {
		d.logger.WithError(err).WithField("entry_id", id).Warn("确认事件失败")
	}
}

func (d *Dispatcher) process(ctx context.Context, ev *model.RawEvent) (string, error) {
	if ev.Kind == model.RawOdds {
		if err := d.Odds.Apply(ctx, ev); err != nil {
			return "", err
		}
		return outcomeProcessed, nil
	}

	key := dedup.IdentityKey(ev.Source, ev.ExternalURL, ev.Author, ev.FullText)
	dup, err := d.Dedup.Claim(ctx, key, ev.ID)
	if err != nil {
		return "", err
	}
	if dup {
		d.logger.WithFields(logrus.Fields{"entry_id": ev.ID, "source": ev.Source}).Debug("重复事件，跳过")
		return outcomeDuplicate, nil
	}

	if err := d.processContent(ctx, ev, key); err != nil {
		if !retry.IsPermanent(err) {
			if relErr := d.Dedup.Release(ctx, key); relErr != nil {
				d.logger.WithError(relErr).WithField("entry_id", ev.ID).Warn("释放去重标记失败")
			}
		}
		return "", err
	}
	return outcomeProcessed, nil
}

// processContent 文档落库 -> 分类 -> (突发) 影响分析 -> 切块索引。
// 每一步完成后记录时间戳，重投时跳过已完成的步骤。
func (d *Dispatcher) processContent(ctx context.Context, ev *model.RawEvent, key string) error {
	doc, _, err := d.Docs.GetOrCreate(ctx, &model.ProcessedDocument{
		Source:            ev.Source,
		DocumentURL:       documentURL(ev, key),
		Title:             ev.Title,
		Author:            ev.Author,
		DocumentTimestamp: ev.Timestamp(),
		SourceReliability: model.SourceReliability(ev.Source),
	})
	if err != nil {
		return fmt.Errorf("保存文档失败: %w", err)
	}

	var cl *model.Classification
	if doc.ClassifiedAt == nil {
		cl, err = d.Classifier.Classify(ctx, ev.FullText, ev.Author)
		if err != nil {
			return err
		}
		if err := d.Docs.SaveClassification(ctx, doc.ID, cl, d.now()); err != nil {
			return fmt.Errorf("保存分类结果失败: %w", err)
		}
	} else {
		cl = storedClassification(doc)
	}

	if d.Classifier.ShouldTrigger(cl) && doc.ImpactCheckedAt == nil {
		report, err := d.Impact.Analyze(ctx, ev, cl)
		if err != nil {
			return err
		}
		d.logger.WithFields(logrus.Fields{
			"document_id": doc.ID,
			"importance":  cl.Importance,
			"status":      report.Status,
			"invalidated": report.Invalidated,
		}).Info("突发新闻已完成影响分析")
		if err := d.Docs.MarkImpactChecked(ctx, doc.ID, d.now()); err != nil {
			return fmt.Errorf("记录影响分析完成失败: %w", err)
		}
	}

	if _, err := d.Indexer.Index(ctx, doc, ev.FullText); err != nil {
		return err
	}
	return nil
}

// documentURL 没有链接的社交内容以身份键构造稳定的伪 URL
func documentURL(ev *model.RawEvent, key string) string {
	if ev.ExternalURL != "" {
		return ev.ExternalURL
	}
	return "urn:" + string(ev.Kind) + ":" + key
}

func storedClassification(doc *model.ProcessedDocument) *model.Classification {
	cl := &model.Classification{
		Importance:          doc.ImportanceScore,
		Urgency:             model.Urgency(doc.UrgencyLevel),
		Reason:              doc.ImpactReason,
		CandidateFixtureIDs: []uint64{},
	}
	if len(doc.CandidateFixtureIDs) > 0 {
		var ids []uint64
		if err := json.Unmarshal(doc.CandidateFixtureIDs, &ids); err == nil && ids != nil {
			cl.CandidateFixtureIDs = ids
		}
	}
	return cl
}
