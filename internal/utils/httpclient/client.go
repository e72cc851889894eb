package httpclient

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultUserAgent = "matchpulse/1.0"

// Options 外部 HTTP 依赖（向量库等）的连接参数
type Options struct {
	Timeout   time.Duration // 整体请求超时，<=0 时 15s
	Proxy     string        // 可选代理
	UserAgent string
}

// NewHTTPClient 带代理、超时与 gzip 自动解压的客户端；每个请求以 debug 级别记录耗时
func NewHTTPClient(opts Options, logger *logrus.Logger) *http.Client {
	base := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if opts.Proxy != "" {
		if proxyURL, err := url.Parse(opts.Proxy); err != nil || proxyURL.Host == "" {
			logger.WithError(err).WithField("proxy", opts.Proxy).Warn("代理地址解析失败，将不使用代理")
		} else {
			base.Proxy = http.ProxyURL(proxyURL)
			logger.WithField("proxy", proxyURL.Host).Info("HTTP客户端已配置代理")
		}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: &transport{next: base, userAgent: opts.UserAgent, logger: logger},
	}
}

type transport struct {
	next      http.RoundTripper
	userAgent string
	logger    *logrus.Logger
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTripper 不得修改调用方的请求
	req = req.Clone(req.Context())
	req.Header.Set("Accept-Encoding", "gzip")
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	fields := logrus.Fields{"method": req.Method, "host": req.URL.Host, "path": req.URL.Path, "elapsed": time.Since(start).String()}
	if err != nil {
		t.logger.WithError(err).WithFields(fields).Debug("HTTP 请求失败")
		return nil, err
	}
	fields["status"] = resp.StatusCode
	t.logger.WithFields(fields).Debug("HTTP 请求完成")

	if resp.Header.Get("Content-Encoding") != "gzip" {
		return resp, nil
	}
	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		t.logger.WithError(err).Warn("gzip解压失败，返回原始响应")
		return resp, nil
	}
	resp.Body = &gzipBody{Reader: gz, raw: resp.Body}
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return resp, nil
}

// gzipBody 关闭时同时关闭解压 reader 与原始响应体
type gzipBody struct {
	*gzip.Reader
	raw io.ReadCloser
}

func (g *gzipBody) Close() error {
	gzErr := g.Reader.Close()
	if err := g.raw.Close(); err != nil {
		return err
	}
	return gzErr
}
