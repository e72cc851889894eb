package interfaces

import (
	"context"

	"MatchPulse/internal/model"
)

// ReasoningService 外部推理服务的四类契约；实现方负责响应校验，校验失败返回 reasoning.ParseError
type ReasoningService interface {
	Classify(ctx context.Context, req *model.ClassifyRequest) (*model.Classification, error) // 内容分类
	Segment(ctx context.Context, req *model.SegmentRequest) ([]model.Segment, error)         // 文档切分
	Predict(ctx context.Context, req *model.PredictRequest) (*model.PredictionDraft, error)  // 赛前预测
	RateImpact(ctx context.Context, req *model.ImpactRequest) (*model.ImpactRating, error)   // 影响评估
	ModelVersion() string                                                                    // 模型版本
}

// Embedder 文本向量化，返回顺序与输入一致
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
