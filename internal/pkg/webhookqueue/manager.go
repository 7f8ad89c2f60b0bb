package webhookqueue

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// Options tune the manager. Zero values fall back to the defaults.
type Options struct {
	Workers       int
	PollInterval  time.Duration
	LeaseDuration time.Duration
	SweepInterval time.Duration
}

// Manager owns a set of processor loops plus the lease sweeper and handles
// their lifecycle. It is constructed explicitly with its store and router;
// there is no package-level singleton.
type Manager struct {
	store   Store
	router  *Router
	opts    Options
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewManager creates a manager for the given store and router.
func NewManager(store Store, router *Router, opts Options) *Manager {
	if opts.Workers <= 0 {
		opts.Workers = 3
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.LeaseDuration <= 0 {
		opts.LeaseDuration = DefaultLeaseDuration
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	return &Manager{
		store:  store,
		router: router,
		opts:   opts,
	}
}

// Start launches the processor loops and the lease sweeper.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	m.running = true

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	log.Infof("[WebhookQueue Manager] Starting %d processors", m.opts.Workers)
	for i := 0; i < m.opts.Workers; i++ {
		p := NewProcessor(i, m.store, m.router, m.opts.PollInterval)
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			p.Run(ctx)
		}()
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.sweeper(ctx)
	}()

	log.Info("[WebhookQueue Manager] Started successfully")
}

// Stop signals all loops to finish and waits for them. In-flight items are
// finished, not abandoned; a crash between claim and outcome is what the
// lease sweeper exists for.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.mu.Unlock()

	log.Info("[WebhookQueue Manager] Stopping...")
	cancel()
	m.wg.Wait()
	log.Info("[WebhookQueue Manager] Stopped")
}

// IsRunning returns whether the manager is currently running.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// sweeper periodically recovers items whose processing lease expired,
// typically after a worker crash mid-handler.
func (m *Manager) sweeper(ctx context.Context) {
	log.Infof("[WebhookQueue Manager] Lease sweeper running (lease=%s, interval=%s)", m.opts.LeaseDuration, m.opts.SweepInterval)

	ticker := time.NewTicker(m.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("[WebhookQueue Manager] Lease sweeper stopping")
			return
		case <-ticker.C:
			recovered, err := m.store.ResetExpiredLeases(ctx, m.opts.LeaseDuration)
			if err != nil {
				log.Errorf("[WebhookQueue Manager] Sweeper error: %v", err)
				continue
			}
			if recovered > 0 {
				log.Warnf("[WebhookQueue Manager] Recovered %d items with expired leases", recovered)
			}
		}
	}
}
