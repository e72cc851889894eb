package model

import "time"

// EntityKind 实体类型：球队/球员/教练
type EntityKind string

const (
	EntityTeam   EntityKind = "team"
	EntityPlayer EntityKind = "player"
	EntityCoach  EntityKind = "coach"
)

// Valid 是否为已知实体类型
func (k EntityKind) Valid() bool {
	return k == EntityTeam || k == EntityPlayer || k == EntityCoach
}

// Team 球队注册表（只读）
type Team struct {
	ID        uint64    `gorm:"column:id;primaryKey"`
	Name      string    `gorm:"column:name;type:varchar(128);index;not null"`
	ShortName string    `gorm:"column:short_name;type:varchar(32)"`
	Country   string    `gorm:"column:country;type:varchar(64)"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:now()"`
}

func (Team) TableName() string { return "teams" }

// Player 球员注册表，current_team_id 可为空
type Player struct {
	ID            uint64    `gorm:"column:id;primaryKey"`
	Name          string    `gorm:"column:name;type:varchar(128);index;not null"`
	CurrentTeamID *uint64   `gorm:"column:current_team_id;type:bigint;index"`
	Position      string    `gorm:"column:position;type:varchar(32)"`
	CreatedAt     time.Time `gorm:"column:created_at;type:timestamp;default:now()"`
}

func (Player) TableName() string { return "players" }

// Coach 教练注册表
type Coach struct {
	ID            uint64    `gorm:"column:id;primaryKey"`
	Name          string    `gorm:"column:name;type:varchar(128);index;not null"`
	CurrentTeamID *uint64   `gorm:"column:current_team_id;type:bigint;index"`
	CreatedAt     time.Time `gorm:"column:created_at;type:timestamp;default:now()"`
}

func (Coach) TableName() string { return "coaches" }

// EntityTeamSeason 球员/教练的历史赛季归属，用于同名消歧
type EntityTeamSeason struct {
	ID         uint64     `gorm:"column:id;primaryKey;autoIncrement"`
	EntityKind EntityKind `gorm:"column:entity_kind;type:varchar(16);not null;uniqueIndex:uq_entity_team_season"`
	EntityID   uint64     `gorm:"column:entity_id;type:bigint;not null;uniqueIndex:uq_entity_team_season"`
	TeamID     uint64     `gorm:"column:team_id;type:bigint;not null;uniqueIndex:uq_entity_team_season"`
	Season     int        `gorm:"column:season;type:int;not null;uniqueIndex:uq_entity_team_season"`
}

func (EntityTeamSeason) TableName() string { return "entity_team_seasons" }

// EntityCandidate 名称匹配得到的候选实体（含消歧所需的球队信息）
type EntityCandidate struct {
	ID            uint64
	Name          string
	CurrentTeamID *uint64
	SeasonTeamIDs []uint64
}
