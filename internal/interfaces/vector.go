package interfaces

import (
	"context"

	"MatchPulse/internal/model"
)

// VectorIndex 向量库：切块向量是关系库行的派生投影，id 与切块 id 相同
type VectorIndex interface {
	Upsert(ctx context.Context, id string, vector []float32, meta model.ChunkVectorMeta) error
	Query(ctx context.Context, filter model.VectorFilter, topK int) ([]model.VectorMatch, error)
}
