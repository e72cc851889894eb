package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"MatchPulse/internal/model"

	"gorm.io/gorm"
)

// PredictionRepository 预测仓储；预测只会被置为 stale，从不删除
type PredictionRepository interface {
	// CreatePreMatch 单事务：旧的当前 pre-match 与未关闭的 breaking-patch 置 stale，再写入新预测
	CreatePreMatch(ctx context.Context, p *model.Prediction) error
	// CreatePatch 写入 breaking-patch 预测
	CreatePatch(ctx context.Context, p *model.Prediction) error
	// MarkStale 仅当仍为非 stale 时置 stale，返回是否由本次调用置位
	MarkStale(ctx context.Context, id uint64, at time.Time) (bool, error)
	// CurrentPreMatch 当前非 stale 的 pre-match，不存在返回 nil, nil
	CurrentPreMatch(ctx context.Context, fixtureID uint64) (*model.Prediction, error)
	// FixturesWithCurrent 给定赛事中已有当前 pre-match 的集合
	FixturesWithCurrent(ctx context.Context, fixtureIDs []uint64) (map[uint64]bool, error)
	// View 读路径：当前预测、未关闭的 patch 与状态
	View(ctx context.Context, fixtureID uint64) (*model.PredictionView, error)
}

type predictionRepository struct {
	conn
}

func NewPredictionRepository(db *gorm.DB, queryTimeout time.Duration) PredictionRepository {
	return &predictionRepository{conn: newConn(db, queryTimeout)}
}

func (r *predictionRepository) CreatePreMatch(ctx context.Context, p *model.Prediction) error {
	db, cancel := r.session(ctx)
	defer cancel()
	p.Kind = model.KindPreMatch
	p.Stale = false
	if p.GeneratedAt.IsZero() {
		p.GeneratedAt = time.Now().UTC()
	}
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Prediction{}).
			Where("fixture_id = ? AND stale = ?", p.FixtureID, false).
			Updates(map[string]interface{}{"stale": true, "staled_at": p.GeneratedAt}).Error; err != nil {
			return fmt.Errorf("置旧预测 stale 失败: %w", err)
		}
		if err := tx.Create(p).Error; err != nil {
			return fmt.Errorf("保存预测失败: %w, fixture_id: %d", err, p.FixtureID)
		}
		return nil
	})
}

func (r *predictionRepository) CreatePatch(ctx context.Context, p *model.Prediction) error {
	db, cancel := r.session(ctx)
	defer cancel()
	p.Kind = model.KindBreakingPatch
	p.Stale = false
	return db.Create(p).Error
}

func (r *predictionRepository) MarkStale(ctx context.Context, id uint64, at time.Time) (bool, error) {
	db, cancel := r.session(ctx)
	defer cancel()
	res := db.Model(&model.Prediction{}).
		Where("id = ? AND stale = ?", id, false).
		Updates(map[string]interface{}{"stale": true, "staled_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *predictionRepository) CurrentPreMatch(ctx context.Context, fixtureID uint64) (*model.Prediction, error) {
	db, cancel := r.session(ctx)
	defer cancel()
	var p model.Prediction
	err := db.
		Where("fixture_id = ? AND kind = ? AND stale = ?", fixtureID, model.KindPreMatch, false).
		Order("generated_at DESC").
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *predictionRepository) FixturesWithCurrent(ctx context.Context, fixtureIDs []uint64) (map[uint64]bool, error) {
	db, cancel := r.session(ctx)
	defer cancel()
	out := make(map[uint64]bool, len(fixtureIDs))
	if len(fixtureIDs) == 0 {
		return out, nil
	}
	var ids []uint64
	if err := db.Model(&model.Prediction{}).
		Where("fixture_id IN ? AND kind = ? AND stale = ?", fixtureIDs, model.KindPreMatch, false).
		Distinct("fixture_id").
		Pluck("fixture_id", &ids).Error; err != nil {
		return nil, err
	}
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

func (r *predictionRepository) View(ctx context.Context, fixtureID uint64) (*model.PredictionView, error) {
	db, cancel := r.session(ctx)
	defer cancel()
	var rows []*model.Prediction
	if err := db.
		Where("fixture_id = ?", fixtureID).
		Order("generated_at DESC, id DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return BuildView(fixtureID, rows), nil
}

// BuildView 由某场赛事的全部预测（新到旧）计算对外视图：
// stale 行永远不会作为 current 返回；只有 stale 行时状态为 pending。
func BuildView(fixtureID uint64, rows []*model.Prediction) *model.PredictionView {
	view := &model.PredictionView{FixtureID: fixtureID, Status: model.StatusNone}
	if len(rows) == 0 {
		return view
	}
	for _, p := range rows {
		if p.Stale {
			continue
		}
		switch p.Kind {
		case model.KindPreMatch:
			if view.Current == nil {
				view.Current = p
			}
		case model.KindBreakingPatch:
			if view.Patch == nil {
				view.Patch = p
			}
		}
	}
	if view.Current != nil {
		view.Status = model.StatusCurrent
	} else {
		view.Status = model.StatusPending
	}
	return view
}
