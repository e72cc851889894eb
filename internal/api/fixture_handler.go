package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"MatchPulse/internal/model"
	"MatchPulse/internal/queue"
	"MatchPulse/internal/repository"
	"MatchPulse/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// FixtureQuerier 赛事与预测查询
type FixtureQuerier interface {
	ListFixtures(ctx context.Context, filter repository.FixtureFilter, page, pageSize int) (*service.FixtureListResult, error)
	GetFixture(ctx context.Context, id uint64) (*service.FixtureDetail, error)
	GetPrediction(ctx context.Context, fixtureID uint64) (*model.PredictionView, error)
	RequestGeneration(ctx context.Context, fixtureID uint64, p queue.Priority) (bool, error)
}

// FixtureHandler 提供给前端的赛事与预测接口
type FixtureHandler struct {
	svc    FixtureQuerier
	logger *logrus.Logger
}

// NewFixtureHandler 创建 FixtureHandler
func NewFixtureHandler(svc FixtureQuerier, logger *logrus.Logger) *FixtureHandler {
	return &FixtureHandler{svc: svc, logger: logger}
}

// ListFixtures 赛事列表
// GET /fixtures?from=2026-03-10T00:00:00Z&to=...&league_id=39&status=NS&page=1&page_size=20
func (h *FixtureHandler) ListFixtures(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	filter := repository.FixtureFilter{Status: c.Query("status")}
	if v := c.Query("league_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid league_id"})
			return
		}
		filter.LeagueID = id
	}
	for name, dst := range map[string]**time.Time{"from": &filter.FromTime, "to": &filter.ToTime} {
		v := c.Query(name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name + ", expected RFC3339"})
			return
		}
		*dst = &t
	}

	result, err := h.svc.ListFixtures(c.Request.Context(), filter, page, pageSize)
	if err != nil {
		h.logger.WithError(err).Error("ListFixtures failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetFixture 赛事详情（含最新赔率与预测状态）
// GET /fixtures/:id
func (h *FixtureHandler) GetFixture(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	result, err := h.svc.GetFixture(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "GetFixture", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetPrediction 当前预测；旧预测已失效时返回 status=pending
// GET /predictions/:fixture_id
func (h *FixtureHandler) GetPrediction(c *gin.Context) {
	id, ok := parseID(c, "fixture_id")
	if !ok {
		return
	}
	view, err := h.svc.GetPrediction(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "GetPrediction", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// GeneratePrediction 请求(重新)生成预测
// POST /predictions/:fixture_id/generate?priority=high
func (h *FixtureHandler) GeneratePrediction(c *gin.Context) {
	id, ok := parseID(c, "fixture_id")
	if !ok {
		return
	}
	p := queue.Normal
	switch c.DefaultQuery("priority", string(queue.Normal)) {
	case string(queue.Normal):
	case string(queue.High):
		p = queue.High
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "priority must be normal or high"})
		return
	}

	queued, err := h.svc.RequestGeneration(c.Request.Context(), id, p)
	if err != nil {
		h.fail(c, "GeneratePrediction", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"fixture_id": id, "priority": p, "queued": queued})
}

func (h *FixtureHandler) fail(c *gin.Context, op string, err error) {
	if errors.Is(err, service.ErrFixtureNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	h.logger.WithError(err).Error(op + " failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func parseID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a positive integer"})
		return 0, false
	}
	return id, true
}
