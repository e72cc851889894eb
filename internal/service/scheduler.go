package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// jobTimeout 单次定时任务的最长执行时间
const jobTimeout = 5 * time.Minute

// Scheduler 定时任务：赛事扫描与向量补齐
type Scheduler struct {
	cron   *cron.Cron
	logger *logrus.Logger
}

func NewScheduler(logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger: logger,
	}
}

// AddScan 注册赛事扫描；表达式为空则不注册
func (s *Scheduler) AddScan(expr string, scanner *Scanner) error {
	return s.add("scan", expr, func(ctx context.Context) {
		if _, err := scanner.Run(ctx); err != nil {
			s.logger.WithError(err).Warn("定时赛事扫描失败")
		}
	})
}

// AddReconcile 注册向量补齐
func (s *Scheduler) AddReconcile(expr string, r *Reconciler) error {
	return s.add("reconcile", expr, func(ctx context.Context) {
		if _, _, err := r.Run(ctx); err != nil {
			s.logger.WithError(err).Warn("定时向量补齐失败")
		}
	})
}

func (s *Scheduler) add(name, expr string, job func(ctx context.Context)) error {
	if expr == "" {
		return nil
	}
	_, err := s.cron.AddFunc(expr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		start := time.Now()
		job(ctx)
		s.logger.WithFields(logrus.Fields{"job": name, "elapsed": time.Since(start).String()}).Debug("定时任务执行完成")
	})
	if err != nil {
		return err
	}
	s.logger.Infof("定时任务已注册: %s (%s)", name, expr)
	return nil
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop 等待正在执行的任务结束
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
