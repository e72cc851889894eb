package weaviate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"MatchPulse/internal/config"
	"MatchPulse/internal/interfaces"
	"MatchPulse/internal/model"
	"MatchPulse/internal/retry"
	"MatchPulse/internal/utils/httpclient"

	"github.com/sirupsen/logrus"
)

// Store 基于 Weaviate REST/GraphQL 的切块向量库；对象 id 即切块 id，重复写入为覆盖
type Store struct {
	baseURL    string
	class      string
	apiKey     string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewStore(cfg *config.VectorConfig, logger *logrus.Logger) *Store {
	return NewStoreWithClient(cfg, httpclient.NewHTTPClient(httpclient.Options{Timeout: cfg.Timeout, Proxy: cfg.Proxy}, logger), logger)
}

func NewStoreWithClient(cfg *config.VectorConfig, client *http.Client, logger *logrus.Logger) *Store {
	class := cfg.Class
	if class == "" {
		class = "ContentChunk"
	}
	return &Store{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		class:      class,
		apiKey:     cfg.APIKey,
		httpClient: client,
		logger:     logger,
	}
}

var _ interfaces.VectorIndex = (*Store)(nil)

// chunkProperties Weaviate 中的属性名（camelCase）
type chunkProperties struct {
	ProcessedDocumentID uint64   `json:"processedDocumentId"`
	ChunkIndex          int      `json:"chunkIndex"`
	Source              string   `json:"source"`
	DocumentURL         string   `json:"documentUrl"`
	DocumentTitle       string   `json:"documentTitle"`
	DocumentTimestamp   string   `json:"documentTimestamp"`
	ChunkType           string   `json:"chunkType"`
	Tone                string   `json:"tone"`
	ImportanceScore     int      `json:"importanceScore"`
	Text                string   `json:"text"`
	Summary             string   `json:"summary"`
	LinkedTeamIDs       []uint64 `json:"linkedTeamIds"`
	LinkedPlayerIDs     []uint64 `json:"linkedPlayerIds"`
	LinkedCoachIDs      []uint64 `json:"linkedCoachIds"`
}

func toProperties(m model.ChunkVectorMeta) chunkProperties {
	return chunkProperties{
		ProcessedDocumentID: m.DocumentID,
		ChunkIndex:          m.ChunkIndex,
		Source:              m.Source,
		DocumentURL:         m.DocumentURL,
		DocumentTitle:       m.DocumentTitle,
		DocumentTimestamp:   m.DocumentTimestamp.UTC().Format(time.RFC3339),
		ChunkType:           m.Category,
		Tone:                m.Tone,
		ImportanceScore:     m.Importance,
		Text:                m.Text,
		Summary:             m.Summary,
		LinkedTeamIDs:       nonNil(m.LinkedTeamIDs),
		LinkedPlayerIDs:     nonNil(m.LinkedPlayerIDs),
		LinkedCoachIDs:      nonNil(m.LinkedCoachIDs),
	}
}

func (p chunkProperties) toMeta() model.ChunkVectorMeta {
	ts, _ := time.Parse(time.RFC3339, p.DocumentTimestamp)
	return model.ChunkVectorMeta{
		DocumentID:        p.ProcessedDocumentID,
		ChunkIndex:        p.ChunkIndex,
		Source:            p.Source,
		DocumentURL:       p.DocumentURL,
		DocumentTitle:     p.DocumentTitle,
		DocumentTimestamp: ts.UTC(),
		Category:          p.ChunkType,
		Tone:              p.Tone,
		Importance:        p.ImportanceScore,
		Text:              p.Text,
		Summary:           p.Summary,
		LinkedTeamIDs:     nonNil(p.LinkedTeamIDs),
		LinkedPlayerIDs:   nonNil(p.LinkedPlayerIDs),
		LinkedCoachIDs:    nonNil(p.LinkedCoachIDs),
	}
}

// EnsureSchema 类不存在时创建（vectorizer=none，向量由调用方提供）
func (s *Store) EnsureSchema(ctx context.Context) error {
	resp, err := s.do(ctx, http.MethodGet, "/v1/schema/"+s.class, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	if resp.StatusCode != http.StatusNotFound {
		return statusError("查询 schema", resp)
	}

	prop := func(name, dataType string) map[string]interface{} {
		return map[string]interface{}{"name": name, "dataType": []string{dataType}}
	}
	class := map[string]interface{}{
		"class":      s.class,
		"vectorizer": "none",
		"properties": []map[string]interface{}{
			prop("processedDocumentId", "int"),
			prop("chunkIndex", "int"),
			prop("source", "text"),
			prop("documentUrl", "text"),
			prop("documentTitle", "text"),
			prop("documentTimestamp", "date"),
			prop("chunkType", "text"),
			prop("tone", "text"),
			prop("importanceScore", "int"),
			prop("text", "text"),
			prop("summary", "text"),
			prop("linkedTeamIds", "int[]"),
			prop("linkedPlayerIds", "int[]"),
			prop("linkedCoachIds", "int[]"),
		},
	}
	resp, err = s.do(ctx, http.MethodPost, "/v1/schema", class)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return statusError("创建 schema", resp)
	}
	s.logger.WithField("class", s.class).Info("Weaviate class 已创建")
	return nil
}

type batchObject struct {
	Class      string          `json:"class"`
	ID         string          `json:"id"`
	Properties chunkProperties `json:"properties"`
	Vector     []float32       `json:"vector"`
}

type batchResult struct {
	ID     string `json:"id"`
	Result struct {
		Errors *struct {
			Error []struct {
				Message string `json:"message"`
			} `json:"error"`
		} `json:"errors"`
	} `json:"result"`
}

// Upsert 通过批量接口写入单个对象；同 id 重复写入覆盖旧对象
func (s *Store) Upsert(ctx context.Context, id string, vector []float32, meta model.ChunkVectorMeta) error {
	body := map[string]interface{}{
		"objects": []batchObject{{Class: s.class, ID: id, Properties: toProperties(meta), Vector: vector}},
	}
	resp, err := s.do(ctx, http.MethodPost, "/v1/batch/objects", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return statusError("写入对象", resp)
	}

	var results []batchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return retry.Transient(fmt.Errorf("解析批量写入响应失败: %w", err))
	}
	for _, r := range results {
		if r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			return retry.Permanent(fmt.Errorf("weaviate 拒绝对象 %s: %s", id, r.Result.Errors.Error[0].Message))
		}
	}
	return nil
}

type graphQLResponse struct {
	Data struct {
		Get map[string][]graphQLObject `json:"Get"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type graphQLObject struct {
	chunkProperties
	Additional struct {
		ID string `json:"id"`
	} `json:"_additional"`
}

// Query 按球队（任一命中）与文档时间范围过滤；只做过滤不做相似度检索，排序由调用方完成
func (s *Store) Query(ctx context.Context, filter model.VectorFilter, topK int) ([]model.VectorMatch, error) {
	if topK <= 0 {
		topK = 100
	}
	query := fmt.Sprintf(`{
  Get {
    %s(limit: %d, where: %s) {
      _additional { id }
      processedDocumentId chunkIndex source documentUrl documentTitle documentTimestamp
      chunkType tone importanceScore text summary linkedTeamIds linkedPlayerIds linkedCoachIds
    }
  }
}`, s.class, topK, BuildWhere(filter))

	resp, err := s.do(ctx, http.MethodPost, "/v1/graphql", map[string]string{"query": query})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, statusError("检索", resp)
	}

	var result graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, retry.Transient(fmt.Errorf("解析检索响应失败: %w", err))
	}
	if len(result.Errors) > 0 {
		msgs := make([]string, 0, len(result.Errors))
		for _, e := range result.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, retry.Permanent(fmt.Errorf("weaviate graphql 错误: %s", strings.Join(msgs, "; ")))
	}

	objects := result.Data.Get[s.class]
	out := make([]model.VectorMatch, 0, len(objects))
	for _, o := range objects {
		out = append(out, model.VectorMatch{ID: o.Additional.ID, Metadata: o.toMeta()})
	}
	return out, nil
}

// BuildWhere 生成 GraphQL where 子句
func BuildWhere(filter model.VectorFilter) string {
	var operands []string
	if len(filter.AnyTeamIDs) > 0 {
		ids := make([]string, 0, len(filter.AnyTeamIDs))
		for _, id := range filter.AnyTeamIDs {
			ids = append(ids, fmt.Sprintf("%d", id))
		}
		operands = append(operands, fmt.Sprintf(`{path: ["linkedTeamIds"], operator: ContainsAny, valueInt: [%s]}`, strings.Join(ids, ", ")))
	}
	if !filter.From.IsZero() {
		operands = append(operands, fmt.Sprintf(`{path: ["documentTimestamp"], operator: GreaterThanEqual, valueDate: %q}`, filter.From.UTC().Format(time.RFC3339)))
	}
	if !filter.To.IsZero() {
		operands = append(operands, fmt.Sprintf(`{path: ["documentTimestamp"], operator: LessThanEqual, valueDate: %q}`, filter.To.UTC().Format(time.RFC3339)))
	}
	switch len(operands) {
	case 0:
		return `{path: ["importanceScore"], operator: GreaterThanEqual, valueInt: 0}`
	case 1:
		return operands[0]
	}
	return fmt.Sprintf("{operator: And, operands: [%s]}", strings.Join(operands, ", "))
}

func (s *Store) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, retry.Permanent(fmt.Errorf("序列化请求失败: %w", err))
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("weaviate 请求失败 %s %s: %w", method, path, err))
	}
	return resp, nil
}

// statusError 429/5xx 可重试，其余 4xx 不重试
func statusError(op string, resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err := fmt.Errorf("weaviate %s失败: %s %s", op, resp.Status, strings.TrimSpace(string(msg)))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return retry.Transient(err)
	}
	return retry.Permanent(err)
}

func nonNil(ids []uint64) []uint64 {
	if ids == nil {
		return []uint64{}
	}
	return ids
}
