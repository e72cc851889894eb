package model

import "time"

// Fixture 赛事（读多写少），id 为数据源原生 ID
type Fixture struct {
	ID          uint64    `gorm:"column:id;primaryKey"`
	LeagueID    uint64    `gorm:"column:league_id;type:bigint;index"`
	HomeTeamID  uint64    `gorm:"column:home_team_id;type:bigint;not null;index"`
	AwayTeamID  uint64    `gorm:"column:away_team_id;type:bigint;not null;index"`
	KickoffTime time.Time `gorm:"column:kickoff_time;type:timestamp;not null;index"`
	Status      string    `gorm:"column:status;type:varchar(16);default:NS"` // NS=未开赛
	ScoreHome   *int      `gorm:"column:score_home;type:int"`
	ScoreAway   *int      `gorm:"column:score_away;type:int"`
	UpdatedAt   time.Time `gorm:"column:updated_at;type:timestamp;default:now()"`

	HomeTeam *Team `gorm:"foreignKey:HomeTeamID"`
	AwayTeam *Team `gorm:"foreignKey:AwayTeamID"`
}

func (Fixture) TableName() string { return "fixtures" }

// TeamIDs 主客队 ID
func (f *Fixture) TeamIDs() []uint64 {
	return []uint64{f.HomeTeamID, f.AwayTeamID}
}

// HomeName 主队名称（未预加载时返回空串）
func (f *Fixture) HomeName() string {
	if f.HomeTeam == nil {
		return ""
	}
	return f.HomeTeam.Name
}

// AwayName 客队名称（未预加载时返回空串）
func (f *Fixture) AwayName() string {
	if f.AwayTeam == nil {
		return ""
	}
	return f.AwayTeam.Name
}
