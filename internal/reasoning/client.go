package reasoning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"MatchPulse/internal/model"
	"MatchPulse/internal/retry"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"
)

// Models genai.Models 中用到的方法，测试时可替换
type Models interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Options 推理服务参数
type Options struct {
	Model          string
	EmbeddingModel string
	EmbeddingDim   int32
	Timeout        time.Duration
}

// Client 推理服务客户端（Gemini），每次调用单独超时，不做重试；重试由调用方的 retry.Policy 负责
type Client struct {
	models Models
	opts   Options
	logger *logrus.Logger
}

// NewGeminiClient 使用 API Key 创建 Gemini 客户端
func NewGeminiClient(ctx context.Context, apiKey string, opts Options, logger *logrus.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key 未配置")
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 gemini 客户端失败: %w", err)
	}
	return NewClient(gc.Models, opts, logger), nil
}

func NewClient(models Models, opts Options, logger *logrus.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Client{models: models, opts: opts, logger: logger}
}

// ModelVersion 生成内容所用模型
func (c *Client) ModelVersion() string { return c.opts.Model }

// Classify 内容分类
func (c *Client) Classify(ctx context.Context, req *model.ClassifyRequest) (*model.Classification, error) {
	raw, err := c.generate(ctx, ContractClassification, classifySystem, classifyPrompt(req), classificationSchema())
	if err != nil {
		return nil, err
	}
	offered := make([]uint64, 0, len(req.Fixtures))
	for _, f := range req.Fixtures {
		offered = append(offered, f.ID)
	}
	return DecodeClassification(raw, offered)
}

// Segment 文档切分
func (c *Client) Segment(ctx context.Context, req *model.SegmentRequest) ([]model.Segment, error) {
	raw, err := c.generate(ctx, ContractSegmentation, segmentSystem, segmentPrompt(req), segmentationSchema())
	if err != nil {
		return nil, err
	}
	return DecodeSegments(raw)
}

// Predict 生成赛前预测
func (c *Client) Predict(ctx context.Context, req *model.PredictRequest) (*model.PredictionDraft, error) {
	raw, err := c.generate(ctx, ContractPrediction, predictSystem, predictPrompt(req), predictionSchema())
	if err != nil {
		return nil, err
	}
	return DecodePrediction(raw)
}

// RateImpact 评估突发新闻对现有预测的影响
func (c *Client) RateImpact(ctx context.Context, req *model.ImpactRequest) (*model.ImpactRating, error) {
	raw, err := c.generate(ctx, ContractImpact, impactSystem, impactPrompt(req), impactSchema())
	if err != nil {
		return nil, err
	}
	return DecodeImpact(raw)
}

// Embed 批量计算向量，返回顺序与输入一致
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, userContent(t))
	}
	cfg := &genai.EmbedContentConfig{TaskType: "RETRIEVAL_DOCUMENT"}
	if c.opts.EmbeddingDim > 0 {
		dim := c.opts.EmbeddingDim
		cfg.OutputDimensionality = &dim
	}
	resp, err := c.models.EmbedContent(ctx, c.opts.EmbeddingModel, contents, cfg)
	if err != nil {
		return nil, classifyProviderError(fmt.Errorf("embedding 调用失败: %w", err))
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		got := 0
		if resp != nil {
			got = len(resp.Embeddings)
		}
		return nil, retry.Transient(fmt.Errorf("embedding 数量不符: 期望 %d, 实际 %d", len(texts), got))
	}
	out := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, retry.Transient(fmt.Errorf("第 %d 个 embedding 为空", i))
		}
		out[i] = e.Values
	}
	return out, nil
}

func (c *Client) generate(ctx context.Context, contract, system, prompt string, schema *genai.Schema) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.models.GenerateContent(ctx, c.opts.Model, []*genai.Content{userContent(prompt)}, &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
		ResponseMIMEType:  "application/json",
		ResponseSchema:    schema,
	})
	if err != nil {
		return "", classifyProviderError(fmt.Errorf("%s 调用失败: %w", contract, err))
	}
	text := resp.Text()
	c.logger.WithFields(logrus.Fields{
		"contract": contract,
		"model":    c.opts.Model,
		"elapsed":  time.Since(start).String(),
	}).Debug("推理服务调用完成")
	if text == "" {
		return "", parseErrorf(contract, "", "响应为空")
	}
	return text, nil
}

func userContent(text string) *genai.Content {
	return &genai.Content{Role: "user", Parts: []*genai.Part{{Text: text}}}
}
