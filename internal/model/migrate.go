package model

// AllModels 按依赖顺序返回需要 AutoMigrate 的表
func AllModels() []interface{} {
	return []interface{}{
		&Team{},
		&Player{},
		&Coach{},
		&EntityTeamSeason{},
		&Fixture{},
		&ProcessedDocument{},
		&ContentChunk{},
		&ChunkEntityLink{},
		&Prediction{},
		&OddsSnapshot{},
	}
}
