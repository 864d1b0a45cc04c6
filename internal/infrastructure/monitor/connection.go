package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Probe checks one dependency. A failing required probe takes the monitor
// offline; a failing optional probe only marks it degraded.
type Probe struct {
	Name     string
	Required bool
	Timeout  time.Duration
	Check    func(ctx context.Context) error
}

// PostgresProbe pings a pgx pool.
func PostgresProbe(pool *pgxpool.Pool) Probe {
	return Probe{
		Name:     "postgresql",
		Required: true,
		Timeout:  3 * time.Second,
		Check: func(ctx context.Context) error {
			return pool.Ping(ctx)
		},
	}
}

// RedisProbe pings the snapshot cache. The cache fails open, so it is optional.
func RedisProbe(client *redislib.Client) Probe {
	return Probe{
		Name:    "redis",
		Timeout: 2 * time.Second,
		Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
	}
}

type Monitor struct {
	probes    []Probe
	queueSize func() (int, error)

	status   Status
	checked  bool
	mu       sync.RWMutex
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger

	listenersMu sync.Mutex
	listeners   []func(online bool)
}

func New(interval time.Duration, logger *zap.Logger, probes ...Probe) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		probes:   probes,
		interval: interval,
		stopCh:   make(chan struct{}),
		logger:   logger,
	}
}

// WithQueueSize reports the local offline queue depth alongside probe results.
func (m *Monitor) WithQueueSize(fn func() (int, error)) *Monitor {
	m.queueSize = fn
	return m
}

// OnChange registers fn to run whenever the online flag flips.
func (m *Monitor) OnChange(fn func(online bool)) {
	if fn == nil {
		return
	}
	m.listenersMu.Lock()
	m.listeners = append(m.listeners, fn)
	m.listenersMu.Unlock()
}

func (m *Monitor) Start() {
	go m.loop()
}

func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.Online
}

func (m *Monitor) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.clone()
}

// Refresh runs every probe once and publishes the result.
func (m *Monitor) Refresh(ctx context.Context) Status {
	status := Status{
		Online:    true,
		Services:  make(map[string]bool, len(m.probes)),
		LastCheck: time.Now(),
	}
	for _, p := range m.probes {
		ok := m.run(ctx, p)
		status.Services[p.Name] = ok
		if ok {
			continue
		}
		if p.Required {
			status.Online = false
		} else {
			status.Degraded = true
		}
	}
	if m.queueSize != nil {
		size, err := m.queueSize()
		if err != nil {
			m.logger.Warn("queue size check failed", zap.Error(err))
		}
		status.QueueSize = size
	}

	m.mu.Lock()
	previous := m.status.Online
	first := !m.checked
	m.status = status
	m.checked = true
	m.mu.Unlock()

	if first || previous != status.Online {
		m.logger.Info("connectivity changed",
			zap.Bool("online", status.Online),
			zap.Bool("degraded", status.Degraded))
		m.notify(status.Online)
	}
	return status.clone()
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Refresh(context.Background())
	for {
		select {
		case <-ticker.C:
			m.Refresh(context.Background())
		case <-m.stopCh:
			return
		}
	}
}

func (m *Monitor) run(ctx context.Context, p Probe) bool {
	if p.Check == nil {
		return false
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := p.Check(probeCtx); err != nil {
		m.logger.Debug("probe failed", zap.String("probe", p.Name), zap.Error(err))
		return false
	}
	return true
}

func (m *Monitor) notify(online bool) {
	m.listenersMu.Lock()
	listeners := append([]func(bool){}, m.listeners...)
	m.listenersMu.Unlock()
	for _, fn := range listeners {
		fn(online)
	}
}
