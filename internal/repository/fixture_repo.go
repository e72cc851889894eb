package repository

import (
	"context"
	"time"

	"MatchPulse/internal/model"

	"gorm.io/gorm"
)

// FixtureFilter 赛事列表筛选
type FixtureFilter struct {
	LeagueID uint64
	Status   string
	FromTime *time.Time // 开赛时间起
	ToTime   *time.Time // 开赛时间止
}

// FixtureRepository 赛事仓储（读多写少）
type FixtureRepository interface {
	GetByID(ctx context.Context, id uint64) (*model.Fixture, error)
	// ListByTeamsInWindow 主队或客队在 teamIDs 中且开赛时间在 [from, to] 内
	ListByTeamsInWindow(ctx context.Context, teamIDs []uint64, from, to time.Time) ([]*model.Fixture, error)
	// ListByIDsInWindow 指定 ID 且开赛时间在 [from, to] 内
	ListByIDsInWindow(ctx context.Context, ids []uint64, from, to time.Time) ([]*model.Fixture, error)
	// ListUpcoming 窗口内尚未开赛的赛事（带球队名）
	ListUpcoming(ctx context.Context, from, to time.Time, limit int) ([]*model.Fixture, error)
	ListFixtures(ctx context.Context, filter FixtureFilter, page, pageSize int) ([]*model.Fixture, int64, error)
}

type fixtureRepository struct {
	conn
}

func NewFixtureRepository(db *gorm.DB, queryTimeout time.Duration) FixtureRepository {
	return &fixtureRepository{conn: newConn(db, queryTimeout)}
}

func withTeams(db *gorm.DB) *gorm.DB {
	return db.Preload("HomeTeam").Preload("AwayTeam")
}

func (r *fixtureRepository) GetByID(ctx context.Context, id uint64) (*model.Fixture, error) {
	db, cancel := r.session(ctx)
	defer cancel()
	var f model.Fixture
	if err := withTeams(db).Where("id = ?", id).First(&f).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *fixtureRepository) ListByTeamsInWindow(ctx context.Context, teamIDs []uint64, from, to time.Time) ([]*model.Fixture, error) {
	db, cancel := r.session(ctx)
	defer cancel()
	if len(teamIDs) == 0 {
		return nil, nil
	}
	var list []*model.Fixture
	if err := withTeams(db).
		Where("(home_team_id IN ? OR away_team_id IN ?) AND kickoff_time BETWEEN ? AND ?", teamIDs, teamIDs, from, to).
		Order("kickoff_time ASC, id ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *fixtureRepository) ListByIDsInWindow(ctx context.Context, ids []uint64, from, to time.Time) ([]*model.Fixture, error) {
	db, cancel := r.session(ctx)
	defer cancel()
	if len(ids) == 0 {
		return nil, nil
	}
	var list []*model.Fixture
	if err := withTeams(db).
		Where("id IN ? AND kickoff_time BETWEEN ? AND ?", ids, from, to).
		Order("kickoff_time ASC, id ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *fixtureRepository) ListUpcoming(ctx context.Context, from, to time.Time, limit int) ([]*model.Fixture, error) {
	db, cancel := r.session(ctx)
	defer cancel()
	if limit <= 0 {
		limit = 200
	}
	var list []*model.Fixture
	if err := withTeams(db).
		Where("kickoff_time BETWEEN ? AND ? AND status = ?", from, to, "NS").
		Order("kickoff_time ASC, id ASC").
		Limit(limit).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *fixtureRepository) ListFixtures(ctx context.Context, filter FixtureFilter, page, pageSize int) ([]*model.Fixture, int64, error) {
	db, cancel := r.session(ctx)
	defer cancel()
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	db = db.Model(&model.Fixture{})
	if filter.LeagueID != 0 {
		db = db.Where("league_id = ?", filter.LeagueID)
	}
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if filter.FromTime != nil {
		db = db.Where("kickoff_time >= ?", *filter.FromTime)
	}
	if filter.ToTime != nil {
		db = db.Where("kickoff_time <= ?", *filter.ToTime)
	}
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []*model.Fixture
	if err := db.Preload("HomeTeam").Preload("AwayTeam").
		Order("kickoff_time ASC, id ASC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}
