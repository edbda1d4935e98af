package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/workmate/workmate/internal/config"
	"github.com/workmate/workmate/internal/db"
	calsync "github.com/workmate/workmate/internal/sync"
	"github.com/workmate/workmate/internal/taskevent"
)

const (
	maintenanceInterval = 24 * time.Hour
	syncAllConcurrency  = 4
)

// Job represents a scheduled sync job for one integration.
type Job struct {
	integrationID string
	interval      time.Duration
	ticker        *time.Ticker
	stopCh        chan struct{}
}

// Scheduler manages background sync jobs and nightly maintenance.
type Scheduler struct {
	db     *db.DB
	engine *calsync.Engine
	mapper *taskevent.Mapper
	cfg    *config.Config

	mu        sync.RWMutex
	jobs      map[string]*Job
	syncLocks map[string]*sync.Mutex // Per-integration locks to prevent concurrent syncs
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	started   bool
}

// New creates a new scheduler.
func New(database *db.DB, engine *calsync.Engine, mapper *taskevent.Mapper, cfg *config.Config) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		db:        database,
		engine:    engine,
		mapper:    mapper,
		cfg:       cfg,
		jobs:      make(map[string]*Job),
		syncLocks: make(map[string]*sync.Mutex),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start loads all auto-sync integrations and starts their jobs.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	integrations, err := s.db.GetAutoSyncIntegrations()
	if err != nil {
		return err
	}

	for _, integration := range integrations {
		s.AddJob(integration.ID, s.clampInterval(integration.SyncIntervalMinutes))
	}

	s.wg.Add(1)
	go s.maintenanceRoutine()

	log.Printf("Scheduler started with %d jobs", len(integrations))
	return nil
}

// Stop gracefully shuts down all jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	s.cancel()

	s.mu.Lock()
	for _, job := range s.jobs {
		close(job.stopCh)
		job.ticker.Stop()
	}
	s.jobs = make(map[string]*Job)
	s.mu.Unlock()

	s.wg.Wait()
	log.Println("Scheduler stopped")
}

// AddJob adds or replaces a sync job for an integration.
func (s *Scheduler) AddJob(integrationID string, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, exists := s.jobs[integrationID]; exists {
		close(existing.stopCh)
		existing.ticker.Stop()
	}

	job := &Job{
		integrationID: integrationID,
		interval:      interval,
		ticker:        time.NewTicker(interval),
		stopCh:        make(chan struct{}),
	}

	s.jobs[integrationID] = job

	s.wg.Add(1)
	go s.runJob(job)

	log.Printf("Added sync job for integration %s with interval %v", integrationID, interval)
}

// RemoveJob removes a sync job.
func (s *Scheduler) RemoveJob(integrationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job, exists := s.jobs[integrationID]; exists {
		close(job.stopCh)
		job.ticker.Stop()
		delete(s.jobs, integrationID)
		log.Printf("Removed sync job for integration %s", integrationID)
	}
}

// UpdateJobInterval updates the interval for an existing job.
func (s *Scheduler) UpdateJobInterval(integrationID string, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job, exists := s.jobs[integrationID]; exists {
		job.ticker.Stop()
		job.interval = interval
		job.ticker = time.NewTicker(interval)
		log.Printf("Updated sync interval for integration %s to %v", integrationID, interval)
	}
}

// RefreshJob reconciles the job for an integration with its stored settings.
// Integrations that lost auto-sync or got disabled have their job removed.
func (s *Scheduler) RefreshJob(integration *db.Integration) {
	if integration.Enabled && integration.AutoSync {
		s.AddJob(integration.ID, s.clampInterval(integration.SyncIntervalMinutes))
		return
	}
	s.RemoveJob(integration.ID)
}

// TriggerSync manually triggers a sync for an integration.
func (s *Scheduler) TriggerSync(integrationID string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.executeSync(integrationID)
	}()
}

// SyncAll runs a sync for every auto-sync integration, a few at a time.
func (s *Scheduler) SyncAll() error {
	integrations, err := s.db.GetAutoSyncIntegrations()
	if err != nil {
		return err
	}

	g := new(errgroup.Group)
	g.SetLimit(syncAllConcurrency)
	for _, integration := range integrations {
		id := integration.ID
		g.Go(func() error {
			s.executeSync(id)
			return nil
		})
	}
	return g.Wait()
}

// GetJobCount returns the number of active jobs.
func (s *Scheduler) GetJobCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// runJob runs the sync job loop.
func (s *Scheduler) runJob(job *Job) {
	defer s.wg.Done()

	// Run immediately on start
	s.executeSync(job.integrationID)

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-job.stopCh:
			return
		case <-job.ticker.C:
			s.executeSync(job.integrationID)
		}
	}
}

// getSyncLock returns the mutex for an integration, creating one if needed.
func (s *Scheduler) getSyncLock(integrationID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lock, exists := s.syncLocks[integrationID]; exists {
		return lock
	}

	lock := &sync.Mutex{}
	s.syncLocks[integrationID] = lock
	return lock
}

// executeSync runs the sync for an integration.
func (s *Scheduler) executeSync(integrationID string) {
	lock := s.getSyncLock(integrationID)

	// Skip if another sync for this integration is already in progress
	if !lock.TryLock() {
		log.Printf("Skipping sync for integration %s - another sync is already in progress", integrationID)
		return
	}
	defer lock.Unlock()

	integration, err := s.db.GetIntegrationByID(integrationID)
	if err != nil {
		log.Printf("Failed to get integration %s: %v", integrationID, err)
		return
	}

	if !integration.Enabled {
		return
	}

	log.Printf("Starting sync for integration %s (%s)", integration.Name, integrationID)

	ctx, cancel := context.WithTimeout(s.ctx, s.syncTimeout())
	defer cancel()

	result := s.engine.SyncIntegration(ctx, integration)

	if result.Success {
		log.Printf("Sync completed for integration %s: %d pushed, %d pulled, %d updated, %d conflicts in %v",
			integration.Name, result.Pushed, result.Pulled, result.Updated, result.Conflicts, result.Duration)
	} else {
		log.Printf("Sync failed for integration %s: %s", integration.Name, result.Message)
	}
}

// RunSyncNow runs a sync cycle for an integration synchronously and returns
// its result. It holds the same per-integration lock as scheduled cycles, so
// at most one cycle runs per integration at a time; callers block until any
// in-flight scheduled cycle finishes.
func (s *Scheduler) RunSyncNow(ctx context.Context, integration *db.Integration) *calsync.Result {
	lock := s.getSyncLock(integration.ID)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.syncTimeout())
	defer cancel()

	return s.engine.SyncIntegration(ctx, integration)
}

// clampInterval converts a per-integration interval to a duration within
// the configured bounds.
func (s *Scheduler) clampInterval(minutes int) time.Duration {
	if s.cfg != nil {
		if minutes < s.cfg.Sync.MinIntervalMinutes {
			minutes = s.cfg.Sync.MinIntervalMinutes
		}
		if minutes > s.cfg.Sync.MaxIntervalMinutes {
			minutes = s.cfg.Sync.MaxIntervalMinutes
		}
	}
	return time.Duration(minutes) * time.Minute
}

func (s *Scheduler) syncTimeout() time.Duration {
	if s.cfg != nil && s.cfg.Sync.TimeoutSeconds > 0 {
		return time.Duration(s.cfg.Sync.TimeoutSeconds) * time.Second
	}
	return 5 * time.Minute
}

// maintenanceRoutine runs periodic cleanup of old sync logs and stale
// completed-task events.
func (s *Scheduler) maintenanceRoutine() {
	defer s.wg.Done()

	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.runMaintenance()
		}
	}
}

// runMaintenance performs one maintenance pass.
func (s *Scheduler) runMaintenance() {
	logRetention := 30
	eventRetention := 7
	if s.cfg != nil {
		logRetention = s.cfg.Maintenance.SyncLogRetentionDays
		eventRetention = s.cfg.Maintenance.CompletedEventRetentionDays
	}

	cutoff := time.Now().AddDate(0, 0, -logRetention)
	deleted, err := s.db.CleanOldSyncLogs(cutoff)
	if err != nil {
		log.Printf("Failed to clean old sync logs: %v", err)
	} else if deleted > 0 {
		log.Printf("Cleaned %d old sync logs", deleted)
	}

	if s.mapper == nil {
		return
	}

	users, err := s.db.ListUsers()
	if err != nil {
		log.Printf("Failed to list users for maintenance: %v", err)
		return
	}

	for _, user := range users {
		removed, err := s.mapper.RemoveCompletedEvents(user.ID, eventRetention)
		if err != nil {
			log.Printf("Failed to remove completed-task events for user %s: %v", user.ID, err)
			continue
		}
		if removed > 0 {
			log.Printf("Removed %d completed-task events for user %s", removed, user.ID)
		}
	}
}
