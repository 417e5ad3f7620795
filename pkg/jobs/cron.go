// Package jobs runs scheduled background work.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/robfig/cron/v3"
)

// CronManager manages scheduled jobs
type CronManager struct {
	cron    *cron.Cron
	monitor *SLAMonitor
	logger  logger.Logger
}

// NewCronManager creates a new cron manager
func NewCronManager(monitor *SLAMonitor, log logger.Logger) *CronManager {
	if log == nil {
		log = logger.Nop()
	}

	return &CronManager{
		cron:    cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger))),
		monitor: monitor,
		logger:  log,
	}
}

// SetupJobs configures all scheduled jobs
func (cm *CronManager) SetupJobs(slaScanSpec string) error {
	_, err := cm.cron.AddFunc(slaScanSpec, cm.runSLAScan)
	if err != nil {
		return fmt.Errorf("invalid SLA scan schedule %q: %w", slaScanSpec, err)
	}

	cm.logger.Info("cron jobs configured", "sla_scan", slaScanSpec)
	return nil
}

func (cm *CronManager) runSLAScan() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	start := time.Now()
	n, err := cm.monitor.Scan(ctx)
	if err != nil {
		cm.logger.Error("SLA scan failed", "flagged", n, "error", err)
		return
	}
	cm.logger.Debug("SLA scan completed", "flagged", n, "duration", time.Since(start).String())
}

// Entries returns the number of scheduled jobs.
func (cm *CronManager) Entries() int {
	return len(cm.cron.Entries())
}

// Start starts the cron scheduler
func (cm *CronManager) Start() {
	cm.logger.Info("starting cron scheduler")
	cm.cron.Start()
}

// Stop stops the scheduler and returns a context done once running jobs finish.
func (cm *CronManager) Stop() context.Context {
	cm.logger.Info("stopping cron scheduler")
	return cm.cron.Stop()
}

// GetMonitor returns the SLA monitor for manual triggers
func (cm *CronManager) GetMonitor() *SLAMonitor {
	return cm.monitor
}
