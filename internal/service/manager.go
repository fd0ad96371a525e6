package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/condorshop/storefront/internal/domain"
	"github.com/condorshop/storefront/internal/event"
	"github.com/condorshop/storefront/internal/gateway"
	redisrepo "github.com/condorshop/storefront/internal/repository/redis"
	"github.com/condorshop/storefront/internal/session"
	"github.com/condorshop/storefront/internal/store"
	cartsync "github.com/condorshop/storefront/internal/sync"
	"github.com/condorshop/storefront/pkg/httpclient"
	pkgkafka "github.com/condorshop/storefront/pkg/kafka"
)

// ManagerConfig holds the per-session wiring parameters.
type ManagerConfig struct {
	BackendBaseURL string
	Debounce       time.Duration
	CartTTL        time.Duration
	SessionIdleTTL time.Duration
	ShippingPolicy domain.ShippingPolicy
}

// Manager lazily builds and caches one ShopperSession per storefront session
// ID, and evicts sessions that have been idle past the configured TTL. The
// persisted cart in Redis outlives the in-memory session, so eviction only
// drops timers and buffers, never cart contents.
type Manager struct {
	cfg    ManagerConfig
	rdb    *redis.Client
	http   *httpclient.CircuitBreakerClient
	kafka  *pkgkafka.Producer
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*ShopperSession
}

// NewManager creates a session manager. kafka may be nil to disable events.
func NewManager(
	cfg ManagerConfig,
	rdb *redis.Client,
	httpClient *httpclient.CircuitBreakerClient,
	kafkaProducer *pkgkafka.Producer,
	logger *slog.Logger,
) *Manager {
	if cfg.Debounce <= 0 {
		cfg.Debounce = cartsync.DefaultDebounce
	}
	if cfg.SessionIdleTTL <= 0 {
		cfg.SessionIdleTTL = 30 * time.Minute
	}
	return &Manager{
		cfg:      cfg,
		rdb:      rdb,
		http:     httpClient,
		kafka:    kafkaProducer,
		logger:   logger,
		sessions: make(map[string]*ShopperSession),
	}
}

// Session returns the engine for the given storefront session ID, building
// it on first use. Construction loads the persisted cart, so a shopper
// returning after a reload sees their items before any backend round trip.
func (m *Manager) Session(ctx context.Context, sessionID string) *ShopperSession {
	now := time.Now()

	m.mu.Lock()
	if s, ok := m.sessions[sessionID]; ok {
		m.mu.Unlock()
		s.touch(now)
		return s
	}
	m.mu.Unlock()

	s := m.build(ctx, sessionID)
	s.touch(now)

	m.mu.Lock()
	defer m.mu.Unlock()
	// A concurrent request may have built the same session; first one wins.
	if existing, ok := m.sessions[sessionID]; ok {
		return existing
	}
	m.sessions[sessionID] = s
	return s
}

func (m *Manager) build(ctx context.Context, sessionID string) *ShopperSession {
	logger := m.logger.With(slog.String("shopper_session", sessionID))

	persister := redisrepo.NewCartPersister(m.rdb, sessionID, m.cfg.CartTTL)
	cartStore := store.New(m.cfg.ShippingPolicy, persister, logger)
	cartStore.Load(ctx)

	resolver := session.NewResolver(logger)
	gw := gateway.NewClient(m.cfg.BackendBaseURL, m.http, resolver, logger)
	notices := &NoticeBuffer{}

	var events *event.Producer
	var publisher cartsync.EventPublisher
	if m.kafka != nil {
		events = event.NewProducer(m.kafka, sessionID, logger)
		publisher = events
	}

	controller := cartsync.NewController(
		cartStore, gw, resolver, notices, publisher, m.cfg.Debounce, logger,
	)

	// Identity transitions force a refetch: the backend's current cart
	// depends on which credential is presented. The forced fetch may race an
	// in-flight one; the controller's sequencing lets the latest win.
	resolver.SetIdentityChangeHook(func(session.Mode) {
		go func() {
			if err := controller.Refresh(context.Background(), true); err != nil {
				logger.Warn("identity-change cart refetch failed",
					slog.String("error", err.Error()),
				)
			}
		}()
	})

	return &ShopperSession{
		ID:         sessionID,
		Store:      cartStore,
		Resolver:   resolver,
		Controller: controller,
		Gateway:    gw,
		Notices:    notices,
		events:     events,
		logger:     logger,
	}
}

// RunJanitor evicts idle sessions until the context is canceled.
func (m *Manager) RunJanitor(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SessionIdleTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.evictIdle(now)
		}
	}
}

func (m *Manager) evictIdle(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, s := range m.sessions {
		if s.idleSince(now) > m.cfg.SessionIdleTTL {
			delete(m.sessions, id)
			m.logger.Debug("evicted idle shopper session", slog.String("shopper_session", id))
		}
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
