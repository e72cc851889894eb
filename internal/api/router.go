package api

import (
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter 注册全部路由；gatherer 为 nil 时使用默认注册表
func NewRouter(fixtures *FixtureHandler, health *HealthHandler, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	registerOps(r, health, gatherer)

	r.GET("/fixtures", fixtures.ListFixtures)
	r.GET("/fixtures/:id", fixtures.GetFixture)
	r.GET("/predictions/:fixture_id", fixtures.GetPrediction)
	r.POST("/predictions/:fixture_id/generate", fixtures.GeneratePrediction)
	return r
}

// NewOpsRouter worker 进程的运维端口：只有指标、健康检查与 pprof
func NewOpsRouter(health *HealthHandler, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	registerOps(r, health, gatherer)
	return r
}

func registerOps(r *gin.Engine, health *HealthHandler, gatherer prometheus.Gatherer) {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	// 注册ppof 方便调试和监测性能问题
	pprof.Register(r)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	r.GET("/health", health.Health)
	r.GET("/ready", health.Ready)
}
