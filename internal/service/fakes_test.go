package service

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"MatchPulse/internal/model"
	"MatchPulse/internal/queue"
	"MatchPulse/internal/repository"
	"MatchPulse/internal/retry"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2, MaxDelay: 5 * time.Millisecond}
}

// ---- reasoning ----

type fakeReasoning struct {
	mu sync.Mutex

	classification *model.Classification
	classifyErrs   []error
	segments       []model.Segment
	segmentErr     error
	draft          *model.PredictionDraft
	predictErrs    []error
	rating         *model.ImpactRating
	ratingErr      error

	classifyCalls int
	segmentCalls  int
	predictCalls  int
	impactCalls   int
	lastClassify  *model.ClassifyRequest
	lastPredict   *model.PredictRequest
}

func (f *fakeReasoning) Classify(_ context.Context, req *model.ClassifyRequest) (*model.Classification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.classifyCalls++
	f.lastClassify = req
	if len(f.classifyErrs) > 0 {
		err := f.classifyErrs[0]
		f.classifyErrs = f.classifyErrs[1:]
		return nil, err
	}
	c := *f.classification
	return &c, nil
}

func (f *fakeReasoning) Segment(_ context.Context, _ *model.SegmentRequest) ([]model.Segment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.segmentCalls++
	if f.segmentErr != nil {
		return nil, f.segmentErr
	}
	return append([]model.Segment(nil), f.segments...), nil
}

func (f *fakeReasoning) Predict(_ context.Context, req *model.PredictRequest) (*model.PredictionDraft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.predictCalls++
	f.lastPredict = req
	if len(f.predictErrs) > 0 {
		err := f.predictErrs[0]
		f.predictErrs = f.predictErrs[1:]
		return nil, err
	}
	d := *f.draft
	return &d, nil
}

func (f *fakeReasoning) RateImpact(_ context.Context, _ *model.ImpactRequest) (*model.ImpactRating, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.impactCalls++
	if f.ratingErr != nil {
		return nil, f.ratingErr
	}
	r := *f.rating
	return &r, nil
}

func (f *fakeReasoning) ModelVersion() string { return "gemini-test" }

// ---- embedder / vectors ----

type fakeEmbedder struct {
	failFor map[string]bool
	calls   int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		for k := range f.failFor {
			if strings.Contains(t, k) {
				return nil, retry.Permanent(errors.New("embedding rejected"))
			}
		}
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

type fakeVectors struct {
	mu      sync.Mutex
	objects map[string]model.ChunkVectorMeta
	matches []model.VectorMatch
	filters []model.VectorFilter
}

func newFakeVectors() *fakeVectors {
	return &fakeVectors{objects: map[string]model.ChunkVectorMeta{}}
}

func (f *fakeVectors) Upsert(_ context.Context, id string, _ []float32, meta model.ChunkVectorMeta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[id] = meta
	return nil
}

func (f *fakeVectors) Query(_ context.Context, filter model.VectorFilter, topK int) ([]model.VectorMatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
	out := append([]model.VectorMatch(nil), f.matches...)
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// ---- repositories ----

type fakeFixtures struct {
	byID map[uint64]*model.Fixture
}

func newFakeFixtures(fs ...*model.Fixture) *fakeFixtures {
	f := &fakeFixtures{byID: map[uint64]*model.Fixture{}}
	for _, x := range fs {
		f.byID[x.ID] = x
	}
	return f
}

func (f *fakeFixtures) sorted(keep func(*model.Fixture) bool) []*model.Fixture {
	var out []*model.Fixture
	for _, x := range f.byID {
		if keep(x) {
			out = append(out, x)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeFixtures) GetByID(_ context.Context, id uint64) (*model.Fixture, error) {
	x, ok := f.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return x, nil
}

func inWindow(t, from, to time.Time) bool { return !t.Before(from) && !t.After(to) }

func (f *fakeFixtures) ListByTeamsInWindow(_ context.Context, teamIDs []uint64, from, to time.Time) ([]*model.Fixture, error) {
	set := map[uint64]bool{}
	for _, id := range teamIDs {
		set[id] = true
	}
	return f.sorted(func(x *model.Fixture) bool {
		return (set[x.HomeTeamID] || set[x.AwayTeamID]) && inWindow(x.KickoffTime, from, to)
	}), nil
}

func (f *fakeFixtures) ListByIDsInWindow(_ context.Context, ids []uint64, from, to time.Time) ([]*model.Fixture, error) {
	set := map[uint64]bool{}
	for _, id := range ids {
		set[id] = true
	}
	return f.sorted(func(x *model.Fixture) bool { return set[x.ID] && inWindow(x.KickoffTime, from, to) }), nil
}

func (f *fakeFixtures) ListUpcoming(_ context.Context, from, to time.Time, limit int) ([]*model.Fixture, error) {
	out := f.sorted(func(x *model.Fixture) bool { return inWindow(x.KickoffTime, from, to) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeFixtures) ListFixtures(_ context.Context, _ repository.FixtureFilter, _, _ int) ([]*model.Fixture, int64, error) {
	out := f.sorted(func(*model.Fixture) bool { return true })
	return out, int64(len(out)), nil
}

type fakeEntities struct {
	candidates map[model.EntityKind][]model.EntityCandidate
}

func (f *fakeEntities) FindCandidates(_ context.Context, kind model.EntityKind, name string) ([]model.EntityCandidate, error) {
	var out []model.EntityCandidate
	for _, c := range f.candidates[kind] {
		if strings.Contains(strings.ToLower(c.Name), strings.ToLower(name)) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeEntities) CurrentTeamIDs(_ context.Context, kind model.EntityKind, ids []uint64) ([]uint64, error) {
	var out []uint64
	for _, c := range f.candidates[kind] {
		for _, id := range ids {
			if c.ID == id && c.CurrentTeamID != nil {
				out = append(out, *c.CurrentTeamID)
			}
		}
	}
	return out, nil
}

type fakeDocs struct {
	mu        sync.Mutex
	nextID    uint64
	docs      map[uint64]*model.ProcessedDocument
	chunks    map[uint64][]*model.ContentChunk
	saveCalls int
	saveErr   error
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{docs: map[uint64]*model.ProcessedDocument{}, chunks: map[uint64][]*model.ContentChunk{}}
}

func (f *fakeDocs) GetOrCreate(_ context.Context, doc *model.ProcessedDocument) (*model.ProcessedDocument, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.docs {
		if d.Source == doc.Source && d.DocumentURL == doc.DocumentURL {
			cp := *d
			return &cp, false, nil
		}
	}
	f.nextID++
	doc.ID = f.nextID
	cp := *doc
	f.docs[doc.ID] = &cp
	return doc, true, nil
}

func (f *fakeDocs) GetByID(_ context.Context, id uint64) (*model.ProcessedDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDocs) SaveClassification(_ context.Context, id uint64, c *model.Classification, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.docs[id]
	d.ImportanceScore = c.Importance
	d.UrgencyLevel = string(c.Urgency)
	d.ImpactReason = c.Reason
	d.ClassifiedAt = &at
	return nil
}

func (f *fakeDocs) MarkImpactChecked(_ context.Context, id uint64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[id].ImpactCheckedAt = &at
	return nil
}

func (f *fakeDocs) SaveChunks(_ context.Context, docID uint64, chunks []*model.ContentChunk, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveCalls++
	if f.saveErr != nil {
		return f.saveErr
	}
	for _, c := range chunks {
		cp := *c
		f.chunks[docID] = append(f.chunks[docID], &cp)
	}
	f.docs[docID].SegmentedAt = &at
	return nil
}

func (f *fakeDocs) ListChunks(_ context.Context, docID uint64) ([]*model.ContentChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.ContentChunk
	for _, c := range f.chunks[docID] {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeDocs) ListChunksMissingVector(_ context.Context, limit int) ([]*model.ContentChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uint64
	for id := range f.chunks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var out []*model.ContentChunk
	for _, id := range ids {
		for _, c := range f.chunks[id] {
			if c.VectorID == nil && len(out) < limit {
				cp := *c
				out = append(out, &cp)
			}
		}
	}
	return out, nil
}

func (f *fakeDocs) SetVectorID(_ context.Context, chunkID, vectorID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, cs := range f.chunks {
		for _, c := range cs {
			if c.ID == chunkID {
				v := vectorID
				c.VectorID = &v
				return nil
			}
		}
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeDocs) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs)
}

type fakePredictions struct {
	mu     sync.Mutex
	nextID uint64
	rows   []*model.Prediction
}

func (f *fakePredictions) insert(p *model.Prediction) {
	f.nextID++
	p.ID = f.nextID
	f.rows = append(f.rows, p)
}

func (f *fakePredictions) CreatePreMatch(_ context.Context, p *model.Prediction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.FixtureID == p.FixtureID && !r.Stale {
			r.Stale = true
		}
	}
	p.Kind = model.KindPreMatch
	f.insert(p)
	return nil
}

func (f *fakePredictions) CreatePatch(_ context.Context, p *model.Prediction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.Kind = model.KindBreakingPatch
	f.insert(p)
	return nil
}

func (f *fakePredictions) MarkStale(_ context.Context, id uint64, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.ID == id && !r.Stale {
			r.Stale = true
			r.StaledAt = &at
			return true, nil
		}
	}
	return false, nil
}

func (f *fakePredictions) CurrentPreMatch(_ context.Context, fixtureID uint64) (*model.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.rows) - 1; i >= 0; i-- {
		r := f.rows[i]
		if r.FixtureID == fixtureID && r.Kind == model.KindPreMatch && !r.Stale {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakePredictions) FixturesWithCurrent(ctx context.Context, ids []uint64) (map[uint64]bool, error) {
	out := map[uint64]bool{}
	for _, id := range ids {
		if p, _ := f.CurrentPreMatch(ctx, id); p != nil {
			out[id] = true
		}
	}
	return out, nil
}

func (f *fakePredictions) View(_ context.Context, fixtureID uint64) (*model.PredictionView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var rows []*model.Prediction
	for i := len(f.rows) - 1; i >= 0; i-- {
		if f.rows[i].FixtureID == fixtureID {
			rows = append(rows, f.rows[i])
		}
	}
	return repository.BuildView(fixtureID, rows), nil
}

func (f *fakePredictions) byKind(kind model.PredictionKind) []*model.Prediction {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Prediction
	for _, r := range f.rows {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

type fakeOdds struct {
	snapshots map[uint64]model.MarketOdds
}

func (f *fakeOdds) Upsert(_ context.Context, fixtureID uint64, _ string, odds model.MarketOdds, _ time.Time) error {
	if f.snapshots == nil {
		f.snapshots = map[uint64]model.MarketOdds{}
	}
	f.snapshots[fixtureID] = odds
	return nil
}

func (f *fakeOdds) Latest(_ context.Context, fixtureID uint64) (model.MarketOdds, error) {
	return f.snapshots[fixtureID], nil
}

// ---- queue / notifier / extractor ----

type fakeQueue struct {
	mu    sync.Mutex
	items []queue.Item
}

func (f *fakeQueue) Push(_ context.Context, fixtureID uint64, p queue.Priority) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, queue.Item{FixtureID: fixtureID, Priority: p})
	return nil
}

func (f *fakeQueue) Contains(_ context.Context, fixtureID uint64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range f.items {
		if it.FixtureID == fixtureID {
			return true, nil
		}
	}
	return false, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []*model.Notification
}

func (f *fakeNotifier) Notify(_ context.Context, n *model.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return nil
}

type fakeExtractor struct {
	names []string
}

func (f *fakeExtractor) ExtractNames(string) []string { return f.names }

func u64(v uint64) *uint64 { return &v }
