/**
 * @description
 * Session lifecycle: one user session owns its own aggregation store, stream
 * ingestor, snapshot refresh loop, and activity runner. Nothing is shared
 * across sessions, and Close tears the whole unit down as one: the session
 * context is cancelled, the stream is closed, and no callback scheduled before
 * teardown mutates session state afterwards.
 *
 * @dependencies
 * - github.com/google/uuid
 * - backend/internal/market
 * - backend/internal/venue/stream
 * - backend/internal/activity
 */

package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veristat-project/backend/internal/activity"
	"github.com/veristat-project/backend/internal/config"
	"github.com/veristat-project/backend/internal/logger"
	"github.com/veristat-project/backend/internal/market"
	"github.com/veristat-project/backend/internal/models"
	"github.com/veristat-project/backend/internal/venue"
	"github.com/veristat-project/backend/internal/venue/stream"
)

// SnapshotRefreshInterval is how often the REST snapshot is refilled. It runs
// independently of stream message processing; a slow fill never blocks the
// ingestor.
const SnapshotRefreshInterval = 60 * time.Second

// Session is one user's analytics engine instance.
type Session struct {
	ID      string
	Address string

	Store  *market.Store
	Runner *activity.Runner

	streamClient *stream.Client
	cancel       context.CancelFunc
	closeOnce    sync.Once
}

// StreamState reports the ingestor's connection state.
func (s *Session) StreamState() stream.State {
	return s.streamClient.State()
}

// Close tears the session down. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		if err := s.streamClient.Close(); err != nil {
			logger.Error("session %s: stream close: %v", s.ID, err)
		}
		logger.Info("Session %s closed", s.ID)
	})
}

// Manager creates and owns sessions, keyed by user address.
type Manager struct {
	cfg    *config.Config
	client *venue.Client
	ledger *activity.BadgeLedger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager wires the shared read-only collaborators. Stores and runners are
// per-session; only the venue client and the badge ledger are shared.
func NewManager(cfg *config.Config, client *venue.Client, ledger *activity.BadgeLedger) *Manager {
	return &Manager{
		cfg:      cfg,
		client:   client,
		ledger:   ledger,
		sessions: make(map[string]*Session),
	}
}

// Open returns the existing session for address or builds a new one: snapshot
// fill, stream connect, activity loop.
func (m *Manager) Open(ctx context.Context, address string) *Session {
	key := strings.ToLower(address)

	m.mu.Lock()
	if existing, ok := m.sessions[key]; ok {
		m.mu.Unlock()
		return existing
	}
	m.mu.Unlock()

	store := market.NewStore()
	snapshotter := market.NewSnapshotter(m.client, store)

	sctx, cancel := context.WithCancel(context.Background())

	// Initial fill runs synchronously on the caller's context so an abandoned
	// request aborts the blocking snapshot. A failure degrades to global
	// topics only; the refresh loop retries.
	if err := snapshotter.Fill(ctx); err != nil {
		logger.Error("session: initial snapshot failed, continuing degraded: %v", err)
	}

	markets := make([]string, 0)
	for _, inst := range store.Instruments() {
		markets = append(markets, inst.Address)
	}

	streamClient := stream.NewClient(m.cfg.Venue.StreamURL, stream.NewHandler(store), markets)

	aggregator := activity.NewAggregator(m.client, m.cfg.Activity.FetchTimeout)
	runner := activity.NewRunner(aggregator, store, m.ledger, key, m.cfg.Activity.RefreshInterval)

	sess := &Session{
		ID:           uuid.NewString(),
		Address:      key,
		Store:        store,
		Runner:       runner,
		streamClient: streamClient,
		cancel:       cancel,
	}

	m.mu.Lock()
	if existing, ok := m.sessions[key]; ok {
		// Lost the race; discard ours.
		m.mu.Unlock()
		cancel()
		_ = streamClient.Close()
		return existing
	}
	m.sessions[key] = sess
	m.mu.Unlock()

	go func() {
		if err := streamClient.Connect(sctx); err != nil {
			logger.Error("session %s: stream connect: %v", sess.ID, err)
		}
	}()
	go runner.Run(sctx)
	go m.refreshLoop(sctx, snapshotter)

	logger.Info("Session %s opened for %s (%d instruments)", sess.ID, key, len(markets))
	return sess
}

// Lookup returns the session for address, if any.
func (m *Manager) Lookup(address string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[strings.ToLower(address)]
	return sess, ok
}

// CloseSession tears down and forgets the session for address.
func (m *Manager) CloseSession(address string) {
	key := strings.ToLower(address)

	m.mu.Lock()
	sess, ok := m.sessions[key]
	delete(m.sessions, key)
	m.mu.Unlock()

	if ok {
		sess.Close()
	}
}

// CloseAll tears down every session (shutdown path).
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		all = append(all, sess)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, sess := range all {
		sess.Close()
	}
}

// refreshLoop refills the snapshot on a fixed interval. The first fill already
// happened during Open.
func (m *Manager) refreshLoop(ctx context.Context, snapshotter *market.Snapshotter) {
	ticker := time.NewTicker(SnapshotRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := snapshotter.Fill(ctx); err != nil {
				logger.Error("snapshot refresh failed: %v", err)
			}
		}
	}
}

// Snapshot is a convenience passthrough for consumers that only have the
// manager.
func (m *Manager) Snapshot(address string) (models.MarketSnapshot, bool) {
	sess, ok := m.Lookup(address)
	if !ok {
		return models.MarketSnapshot{}, false
	}
	return sess.Store.Snapshot(), true
}
