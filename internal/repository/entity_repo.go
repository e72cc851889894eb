package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"MatchPulse/internal/model"

	"gorm.io/gorm"
)

// EntityRepository 球队/球员/教练注册表（只读）
type EntityRepository interface {
	// FindCandidates 名称不区分大小写子串匹配，按 id 升序；球员/教练附带历史赛季球队
	FindCandidates(ctx context.Context, kind model.EntityKind, name string) ([]model.EntityCandidate, error)
	// CurrentTeamIDs 球员/教练当前所属球队（无归属的跳过）
	CurrentTeamIDs(ctx context.Context, kind model.EntityKind, ids []uint64) ([]uint64, error)
}

type entityRepository struct {
	conn
}

func NewEntityRepository(db *gorm.DB, queryTimeout time.Duration) EntityRepository {
	return &entityRepository{conn: newConn(db, queryTimeout)}
}

// candidateLimit 单次匹配最多返回的候选数
const candidateLimit = 50

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (r *entityRepository) table(kind model.EntityKind) (string, error) {
	switch kind {
	case model.EntityTeam:
		return model.Team{}.TableName(), nil
	case model.EntityPlayer:
		return model.Player{}.TableName(), nil
	case model.EntityCoach:
		return model.Coach{}.TableName(), nil
	}
	return "", fmt.Errorf("未知实体类型: %q", kind)
}

func (r *entityRepository) FindCandidates(ctx context.Context, kind model.EntityKind, name string) ([]model.EntityCandidate, error) {
	db, cancel := r.session(ctx)
	defer cancel()
	table, err := r.table(kind)
	if err != nil {
		return nil, err
	}
	type row struct {
		ID            uint64
		Name          string
		CurrentTeamID *uint64
	}
	var rows []row
	q := db.Table(table).
		Where(`name ILIKE ? ESCAPE '\'`, "%"+likeEscaper.Replace(name)+"%").
		Order("id ASC").Limit(candidateLimit)
	if kind == model.EntityTeam {
		q = q.Select("id, name")
	} else {
		q = q.Select("id, name, current_team_id")
	}
	if err := q.Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	out := make([]model.EntityCandidate, len(rows))
	ids := make([]uint64, len(rows))
	for i, rw := range rows {
		out[i] = model.EntityCandidate{ID: rw.ID, Name: rw.Name, CurrentTeamID: rw.CurrentTeamID}
		ids[i] = rw.ID
	}
	if kind == model.EntityTeam {
		return out, nil
	}

	var seasons []model.EntityTeamSeason
	if err := db.
		Where("entity_kind = ? AND entity_id IN ?", kind, ids).
		Order("season DESC, team_id ASC").
		Find(&seasons).Error; err != nil {
		return nil, err
	}
	byEntity := make(map[uint64][]uint64, len(rows))
	for _, s := range seasons {
		byEntity[s.EntityID] = append(byEntity[s.EntityID], s.TeamID)
	}
	for i := range out {
		out[i].SeasonTeamIDs = byEntity[out[i].ID]
	}
	return out, nil
}

func (r *entityRepository) CurrentTeamIDs(ctx context.Context, kind model.EntityKind, ids []uint64) ([]uint64, error) {
	db, cancel := r.session(ctx)
	defer cancel()
	if len(ids) == 0 || kind == model.EntityTeam {
		return nil, nil
	}
	table, err := r.table(kind)
	if err != nil {
		return nil, err
	}
	var teamIDs []uint64
	if err := db.Table(table).
		Where("id IN ? AND current_team_id IS NOT NULL", ids).
		Distinct("current_team_id").Order("current_team_id ASC").
		Pluck("current_team_id", &teamIDs).Error; err != nil {
		return nil, err
	}
	return teamIDs, nil
}
