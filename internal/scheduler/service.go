package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/postprober/dashboard-core/internal/config"
	"github.com/postprober/dashboard-core/internal/monitoring"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Jobs is the work the scheduler triggers
type Jobs interface {
	RefreshSnapshot(ctx context.Context) error
	SendDigest() error
}

// Ensure the monitoring service can be scheduled
var _ Jobs = (*monitoring.Service)(nil)

const snapshotTimeout = 30 * time.Second

// Service handles scheduling of snapshot refreshes and health digests
type Service struct {
	config *config.Config
	jobs   Jobs
	cron   *cron.Cron
}

// NewService creates a new scheduler service
func NewService(cfg *config.Config, jobs Jobs) *Service {
	return &Service{
		config: cfg,
		jobs:   jobs,
		cron:   cron.New(cron.WithSeconds()),
	}
}

// Start registers the configured jobs and starts the cron runner. An empty
// schedule disables that job.
func (s *Service) Start() error {
	if s.config.SnapshotSchedule != "" {
		if _, err := s.cron.AddFunc(s.config.SnapshotSchedule, s.refreshSnapshot); err != nil {
			return fmt.Errorf("invalid snapshot schedule %q: %w", s.config.SnapshotSchedule, err)
		}
	}

	if s.config.DigestSchedule != "" {
		if _, err := s.cron.AddFunc(s.config.DigestSchedule, s.sendDigest); err != nil {
			return fmt.Errorf("invalid digest schedule %q: %w", s.config.DigestSchedule, err)
		}
	}

	s.cron.Start()
	logrus.Infof("Scheduler started (snapshot: %q, digest: %q)", s.config.SnapshotSchedule, s.config.DigestSchedule)
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *Service) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
		logrus.Info("Scheduler stopped")
	}
}

func (s *Service) refreshSnapshot() {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	logrus.Debug("Starting scheduled health snapshot refresh")
	if err := s.jobs.RefreshSnapshot(ctx); err != nil {
		if errors.Is(err, monitoring.ErrNoSnapshotSource) {
			return
		}
		logrus.Errorf("Scheduled snapshot refresh failed: %v", err)
	}
}

func (s *Service) sendDigest() {
	logrus.Info("Starting scheduled health digest")
	if err := s.jobs.SendDigest(); err != nil {
		logrus.Errorf("Scheduled health digest failed: %v", err)
	}
}
