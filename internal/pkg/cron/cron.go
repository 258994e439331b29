package cron

import (
	"context"
	"log"
	"time"

	"github.com/qzr8/dealer_go_portal/internal/auth"
	"github.com/qzr8/dealer_go_portal/internal/repository"
	"github.com/qzr8/dealer_go_portal/internal/tracker"
)

type Service struct {
	tracker        *tracker.Tracker
	jobRepo        *repository.JobRepository
	sessions       *auth.Store
	reconcileEvery time.Duration
	retentionDays  int
	stopChan       chan struct{}
}

func NewService(
	tr *tracker.Tracker,
	jobRepo *repository.JobRepository,
	sessions *auth.Store,
	reconcileEvery time.Duration,
	retentionDays int,
) *Service {
	if reconcileEvery <= 0 {
		reconcileEvery = 10 * time.Minute
	}
	return &Service{
		tracker:        tr,
		jobRepo:        jobRepo,
		sessions:       sessions,
		reconcileEvery: reconcileEvery,
		retentionDays:  retentionDays,
		stopChan:       make(chan struct{}),
	}
}

// Start launches the background loops.
func (s *Service) Start() {
	go s.runReconcile()
	go s.runRetention()
	log.Println("Cron service started (reconcile + retention)")
}

// Stop terminates the background loops.
func (s *Service) Stop() {
	close(s.stopChan)
	log.Println("Cron service stopped")
}

// runReconcile periodically re-syncs every logged-in owner with the server,
// catching drift the per-job pollers may have missed.
func (s *Service) runReconcile() {
	ticker := time.NewTicker(s.reconcileEvery)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.sessions.PruneExpired()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			s.tracker.ReconcileAll(ctx)
			cancel()
		}
	}
}

// runRetention prunes settled jobs past the retention window, once a day.
func (s *Service) runRetention() {
	if s.retentionDays <= 0 {
		return
	}
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.pruneOldJobs()
		}
	}
}

func (s *Service) pruneOldJobs() {
	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	removed, err := s.jobRepo.DeleteTerminalBefore(cutoff)
	if err != nil {
		log.Printf("Retention: %v", err)
		return
	}
	if removed > 0 {
		log.Printf("Retention: removed %d settled jobs older than %s", removed, cutoff.Format("2006-01-02"))
	}
}
