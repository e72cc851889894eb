package reasoning

import (
	"errors"
	"fmt"
	"net/http"

	"MatchPulse/internal/retry"

	"google.golang.org/genai"
)

// 四类响应契约
const (
	ContractClassification = "classification"
	ContractSegmentation   = "segmentation"
	ContractPrediction     = "prediction"
	ContractImpact         = "impact"
)

// ParseError 推理服务的响应不符合契约；不会重试
type ParseError struct {
	Contract string
	Reason   string
	Raw      string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s 响应校验失败: %s", e.Contract, e.Reason)
}

func parseErrorf(contract, raw, format string, args ...interface{}) error {
	return retry.Permanent(&ParseError{Contract: contract, Reason: fmt.Sprintf(format, args...), Raw: truncate(raw, 500)})
}

// IsParseError 判断是否为契约校验失败
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// classifyProviderError 429/5xx/超时视为暂时性错误，其余 4xx 为永久错误
func classifyProviderError(err error) error {
	if err == nil {
		return nil
	}
	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	}
	switch {
	case code == http.StatusTooManyRequests, code >= 500:
		return retry.Transient(err)
	case code >= 400:
		return retry.Permanent(err)
	case retry.IsTransient(err):
		return retry.Transient(err)
	}
	// 网络层错误（连接重置等）按暂时性处理
	return retry.Transient(err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
