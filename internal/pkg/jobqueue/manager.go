package jobqueue

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/marketly-hq/marketly/app/models"
	"github.com/marketly-hq/marketly/internal/pkg/env"
)

const (
	// stalePendingAge is how long a payment may sit pending before the
	// reconciler assumes the webhook was missed.
	stalePendingAge = 30 * time.Minute

	// reconcileBatchSize caps how many stale orders one sweep enqueues.
	reconcileBatchSize = 50
)

// Manager manages the global job queue and background tasks
type Manager struct {
	queue           *Queue
	reconcileTicker *time.Ticker
	stopCh          chan struct{}
	wg              sync.WaitGroup
	mu              sync.Mutex
	running         bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		globalManager = &Manager{
			queue:  NewQueue(getWorkerCount()),
			stopCh: make(chan struct{}),
		}
	})
	return globalManager
}

func getWorkerCount() int {
	if raw := env.GetEnv("JOBQUEUE_WORKERS", ""); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return 3
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	// Start the job queue
	m.queue.Start()

	// Start reconcile sweep - configurable interval
	interval := 5 * time.Minute
	if raw := env.GetEnv("RECONCILE_INTERVAL_MINUTES", ""); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			interval = time.Duration(n) * time.Minute
		}
	}
	m.reconcileTicker = time.NewTicker(interval)
	m.wg.Add(1)
	go m.reconcileWorker()

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.reconcileTicker != nil {
		m.reconcileTicker.Stop()
	}

	// Signal workers to stop
	close(m.stopCh)
	m.stopCh = nil
	m.running = false

	// Wait for background workers to finish
	m.wg.Wait()

	// Stop the job queue
	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// reconcileWorker runs periodically to find payments that never got a webhook
func (m *Manager) reconcileWorker() {
	defer m.wg.Done()
	log.Info("[JobQueue Manager] Started reconcile worker")

	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Reconcile worker stopping")
			return
		case <-m.reconcileTicker.C:
			if err := m.runReconcileSweepOnce(); err != nil {
				log.Errorf("[JobQueue Manager] Reconcile sweep error: %v", err)
			}
		}
	}
}

// runReconcileSweepOnce enqueues one reconcile job per stale pending Cashfree
// order and logs stale PayU orders, which have no poll API.
func (m *Manager) runReconcileSweepOnce() error {
	svc := getPaymentService()

	stale, err := svc.StalePendingPayments(models.PaymentProviderCashfree, stalePendingAge, reconcileBatchSize)
	if err != nil {
		return err
	}
	for _, p := range stale {
		payload := PaymentReconcileJobPayload{
			TransactionID: p.TransactionID,
			Provider:      p.Provider,
		}
		if _, err := m.queue.EnqueueJob(JobTypePaymentReconcile, payload.ToMap()); err != nil {
			log.Errorf("[JobQueue Manager] Failed to enqueue reconcile for %s: %v", p.TransactionID, err)
		}
	}
	if len(stale) > 0 {
		log.Infof("[JobQueue Manager] Enqueued %d stale Cashfree orders for reconcile", len(stale))
	}

	payuStale, err := svc.StalePendingPayments(models.PaymentProviderPayU, stalePendingAge, reconcileBatchSize)
	if err != nil {
		return err
	}
	for _, p := range payuStale {
		log.Warnf("[JobQueue Manager] PayU payment %s pending since %s, needs manual review", p.TransactionID, p.CreatedAt.Format(time.RFC3339))
	}

	return nil
}

// RunReconcileSweepOnce exposes a manual trigger for a single sweep (admin use).
func (m *Manager) RunReconcileSweepOnce() error {
	return m.runReconcileSweepOnce()
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
