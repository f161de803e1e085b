package platforms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/postprober/dashboard-core/internal/metrics"
	"github.com/postprober/dashboard-core/internal/models"
	"github.com/postprober/dashboard-core/internal/storage"
	"github.com/sirupsen/logrus"
)

// Listener receives the full platform list after every successful mutation
type Listener func(platforms []models.Platform)

type listenerEntry struct {
	id uint64
	fn Listener
}

// platformRecord is the persisted shape of one platform's connection state
type platformRecord struct {
	ID          string                `json:"id"`
	Status      models.PlatformStatus `json:"status"`
	Username    string                `json:"username,omitempty"`
	UserID      string                `json:"user_id,omitempty"`
	ConnectedAt *time.Time            `json:"connected_at,omitempty"`
}

func recordKey(id string) string {
	return "platforms/" + id + ".json"
}

// Registry is the single source of truth for which platforms are connected.
//
// Mutations are serialized by writeMu and hold it across persistence and
// listener notification, so listeners never observe an interleaved mutation.
// Listeners may query the registry but must not call Connect, Disconnect or
// MarkOnboardingComplete.
type Registry struct {
	store   storage.StorageInterface
	auth    Authenticator
	metrics *metrics.Metrics
	now     func() time.Time

	writeMu sync.Mutex

	mu        sync.RWMutex
	platforms []models.Platform
	flags     onboardingFlags

	listenersMu    sync.Mutex
	listeners      []listenerEntry
	nextListenerID uint64
}

// Option configures a Registry
type Option func(*Registry)

// WithMetrics records mutation outcomes on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithClock overrides the time source used for connected_at
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry seeds the catalog and overlays whatever connection state was
// persisted. Missing or unreadable records default to disconnected.
func NewRegistry(store storage.StorageInterface, auth Authenticator, opts ...Option) (*Registry, error) {
	if store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if auth == nil {
		auth = StaticAuthenticator{}
	}

	r := &Registry{
		store: store,
		auth:  auth,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = metrics.NewMetrics(nil)
	}

	if err := r.load(); err != nil {
		return nil, err
	}

	r.metrics.ConnectedPlatforms.Set(float64(len(r.GetConnected())))
	return r, nil
}

func (r *Registry) load() error {
	r.platforms = make([]models.Platform, 0, len(defaultCatalog))

	for _, entry := range defaultCatalog {
		platform := entry.disconnected()

		data, err := r.store.Retrieve(recordKey(entry.ID))
		switch {
		case errors.Is(err, storage.ErrNotFound):
			// never connected
		case err != nil:
			return fmt.Errorf("failed to load state for %s: %w", entry.ID, err)
		default:
			var rec platformRecord
			if err := json.Unmarshal(data, &rec); err != nil {
				logrus.Warnf("Ignoring unreadable state for %s: %v", entry.ID, err)
			} else if rec.Status == models.StatusConnected && rec.Username != "" {
				platform.Status = models.StatusConnected
				platform.Username = rec.Username
				platform.UserID = rec.UserID
				platform.ConnectedAt = rec.ConnectedAt
			}
		}

		r.platforms = append(r.platforms, platform)
	}

	flags, err := loadOnboardingFlags(r.store)
	if err != nil {
		return err
	}
	r.flags = flags

	logrus.Infof("Loaded %d platforms (%d connected)", len(r.platforms), countConnected(r.platforms))
	return nil
}

// GetAll returns the full catalog with current status
func (r *Registry) GetAll() []models.Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return copyPlatforms(r.platforms)
}

// GetConnected returns connected platforms in catalog order
func (r *Registry) GetConnected() []models.Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connected := make([]models.Platform, 0, len(r.platforms))
	for _, p := range r.platforms {
		if p.IsConnected() {
			connected = append(connected, p)
		}
	}
	return connected
}

// Get returns a single platform
func (r *Registry) Get(id string) (models.Platform, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.platforms {
		if p.ID == id {
			return p, nil
		}
	}
	return models.Platform{}, fmt.Errorf("%w: %s", ErrUnknownPlatform, id)
}

// IsConnected reports whether id is currently connected. Unknown ids are not.
func (r *Registry) IsConnected(id string) bool {
	p, err := r.Get(id)
	return err == nil && p.IsConnected()
}

// Connect links a platform. Connecting an already connected platform
// overwrites its identity (last write wins) and notifies once.
func (r *Registry) Connect(ctx context.Context, id string, creds models.Credentials) (models.Platform, error) {
	idx := r.indexOf(id)
	if idx < 0 {
		r.metrics.RegistryMutations.WithLabelValues("connect", "unknown_platform").Inc()
		return models.Platform{}, fmt.Errorf("%w: %s", ErrUnknownPlatform, id)
	}

	identity, err := r.auth.Authenticate(ctx, id, creds)
	if err != nil {
		r.metrics.RegistryMutations.WithLabelValues("connect", "auth_failed").Inc()
		if errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrCredentialExchange) {
			return models.Platform{}, err
		}
		return models.Platform{}, fmt.Errorf("%w: %v", ErrCredentialExchange, err)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		r.metrics.RegistryMutations.WithLabelValues("connect", "cancelled").Inc()
		return models.Platform{}, err
	}

	connectedAt := r.now().UTC()
	updated := r.snapshotAt(idx)
	updated.Status = models.StatusConnected
	updated.Username = identity.Username
	updated.UserID = identity.UserID
	updated.ConnectedAt = &connectedAt

	if err := r.persist(updated); err != nil {
		r.metrics.RegistryMutations.WithLabelValues("connect", "persist_failed").Inc()
		logrus.Errorf("Failed to persist connection for %s: %v", id, err)
		return models.Platform{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	all := r.apply(idx, updated)
	r.metrics.RegistryMutations.WithLabelValues("connect", "ok").Inc()
	logrus.Infof("Connected %s as %s", id, identity.Username)

	r.notify(all)
	return updated, nil
}

// Disconnect unlinks a platform. Disconnecting a platform that is not
// connected is a no-op and does not notify.
func (r *Registry) Disconnect(ctx context.Context, id string) error {
	idx := r.indexOf(id)
	if idx < 0 {
		r.metrics.RegistryMutations.WithLabelValues("disconnect", "unknown_platform").Inc()
		return fmt.Errorf("%w: %s", ErrUnknownPlatform, id)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	current := r.snapshotAt(idx)
	if !current.IsConnected() {
		r.metrics.RegistryMutations.WithLabelValues("disconnect", "noop").Inc()
		return nil
	}

	updated := defaultCatalog[idx].disconnected()

	if err := r.persist(updated); err != nil {
		r.metrics.RegistryMutations.WithLabelValues("disconnect", "persist_failed").Inc()
		logrus.Errorf("Failed to persist disconnect for %s: %v", id, err)
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	all := r.apply(idx, updated)

	// The token is only revoked once the disconnect is durable. Revocation is
	// best effort: a dead token must not keep the platform linked.
	if err := r.auth.Revoke(ctx, id, Identity{Username: current.Username, UserID: current.UserID}); err != nil {
		logrus.Warnf("Failed to revoke %s token, disconnected anyway: %v", id, err)
	}
	r.metrics.RegistryMutations.WithLabelValues("disconnect", "ok").Inc()
	logrus.Infof("Disconnected %s", id)

	r.notify(all)
	return nil
}

// Subscribe registers a listener and returns a function removing exactly that
// listener. Calling the returned function more than once is a no-op.
//
// Removal takes effect at the next lookup: a notification whose lookup already
// found the listener still delivers to it, even if unsubscribe returns first.
// Unsubscribe never waits for that call, so a listener may remove itself or
// others while being notified.
func (r *Registry) Subscribe(listener Listener) func() {
	r.listenersMu.Lock()
	r.nextListenerID++
	id := r.nextListenerID
	r.listeners = append(r.listeners, listenerEntry{id: id, fn: listener})
	r.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.listenersMu.Lock()
			defer r.listenersMu.Unlock()
			for i, entry := range r.listeners {
				if entry.id == id {
					r.listeners = append(r.listeners[:i:i], r.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// notify calls listeners in subscription order. Each listener is looked up
// again right before its call so one removed earlier in the round, or by
// another goroutine before the lookup, is skipped.
func (r *Registry) notify(all []models.Platform) {
	r.listenersMu.Lock()
	ids := make([]uint64, len(r.listeners))
	for i, entry := range r.listeners {
		ids[i] = entry.id
	}
	r.listenersMu.Unlock()

	for _, id := range ids {
		fn, ok := r.listener(id)
		if !ok {
			continue
		}
		fn(copyPlatforms(all))
	}
}

func (r *Registry) listener(id uint64) (Listener, bool) {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()

	for _, entry := range r.listeners {
		if entry.id == id {
			return entry.fn, true
		}
	}
	return nil, false
}

func (r *Registry) persist(p models.Platform) error {
	rec := platformRecord{
		ID:          p.ID,
		Status:      p.Status,
		Username:    p.Username,
		UserID:      p.UserID,
		ConnectedAt: p.ConnectedAt,
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	return r.store.Store(recordKey(p.ID), data)
}

// apply swaps in the updated platform and returns a copy of the new state
func (r *Registry) apply(idx int, updated models.Platform) []models.Platform {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.platforms[idx] = updated
	r.metrics.ConnectedPlatforms.Set(float64(countConnected(r.platforms)))
	return copyPlatforms(r.platforms)
}

func (r *Registry) snapshotAt(idx int) models.Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.platforms[idx]
}

func (r *Registry) indexOf(id string) int {
	for i, entry := range defaultCatalog {
		if entry.ID == id {
			return i
		}
	}
	return -1
}

func copyPlatforms(in []models.Platform) []models.Platform {
	out := make([]models.Platform, len(in))
	copy(out, in)
	return out
}

func countConnected(platforms []models.Platform) int {
	n := 0
	for _, p := range platforms {
		if p.IsConnected() {
			n++
		}
	}
	return n
}
