package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"MatchPulse/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OddsRepository 每场赛事最新赔率快照
type OddsRepository interface {
	Upsert(ctx context.Context, fixtureID uint64, source string, odds model.MarketOdds, capturedAt time.Time) error
	// Latest 不存在返回 nil, nil
	Latest(ctx context.Context, fixtureID uint64) (model.MarketOdds, error)
}

type oddsRepository struct {
	conn
}

func NewOddsRepository(db *gorm.DB, queryTimeout time.Duration) OddsRepository {
	return &oddsRepository{conn: newConn(db, queryTimeout)}
}

// Upsert 按 fixture_id 覆盖；较旧的快照不会覆盖较新的
func (r *oddsRepository) Upsert(ctx context.Context, fixtureID uint64, source string, odds model.MarketOdds, capturedAt time.Time) error {
	db, cancel := r.session(ctx)
	defer cancel()
	payload, err := json.Marshal(odds)
	if err != nil {
		return err
	}
	snap := &model.OddsSnapshot{
		FixtureID:  fixtureID,
		Source:     source,
		Odds:       datatypes.JSON(payload),
		CapturedAt: capturedAt,
		UpdatedAt:  time.Now().UTC(),
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "fixture_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"source", "odds", "captured_at", "updated_at"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "odds_snapshots.captured_at <= excluded.captured_at"},
		}},
	}).Create(snap).Error
}

func (r *oddsRepository) Latest(ctx context.Context, fixtureID uint64) (model.MarketOdds, error) {
	db, cancel := r.session(ctx)
	defer cancel()
	var snap model.OddsSnapshot
	err := db.Where("fixture_id = ?", fixtureID).First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var odds model.MarketOdds
	if err := json.Unmarshal(snap.Odds, &odds); err != nil {
		return nil, err
	}
	return odds, nil
}
