package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/postprober/dashboard-core/internal/config"
	"github.com/postprober/dashboard-core/internal/health"
	"github.com/postprober/dashboard-core/internal/metrics"
	"github.com/postprober/dashboard-core/internal/models"
	"github.com/postprober/dashboard-core/internal/notifications"
	"github.com/postprober/dashboard-core/internal/platforms"
	"github.com/sirupsen/logrus"
)

// PlatformSource is the part of the platform registry the consumer reads
type PlatformSource interface {
	GetConnected() []models.Platform
	IsConnected(id string) bool
	Subscribe(listener platforms.Listener) func()
}

// HealthStream is the part of the stream client the consumer drives
type HealthStream interface {
	Connect()
	DisconnectAll()
	On(t health.EventType, handler health.Handler) func()
	State() health.State
}

// SnapshotFetcher returns the monitor's current health table
type SnapshotFetcher interface {
	Fetch(ctx context.Context) ([]models.HealthUpdate, error)
}

// ErrNoSnapshotSource is returned by RefreshSnapshot when no fetcher is configured
var ErrNoSnapshotSource = errors.New("health snapshot source not configured")

// Ensure the concrete types satisfy the consumer's interfaces
var (
	_ PlatformSource  = (*platforms.Registry)(nil)
	_ HealthStream    = (*health.StreamClient)(nil)
	_ SnapshotFetcher = (*health.SnapshotClient)(nil)
)

const alertQueueSize = 32

// Service turns the health stream into dashboard state for connected
// platforms: the health board, the recent-alert buffer and outbound alerts.
// It connects the stream while at least one platform is connected and tears
// it down when none are.
type Service struct {
	config              *config.Config
	registry            PlatformSource
	stream              HealthStream
	snapshots           SnapshotFetcher
	notificationService notifications.NotificationInterface
	promMetrics         *metrics.Metrics
	now                 func() time.Time

	board  *Board
	alerts *AlertBuffer
	gate   *alertGate

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool
	attached    bool
	unsubscribe func()

	outbound chan models.Alert
	workerWg sync.WaitGroup

	mu      sync.RWMutex
	metrics *Metrics
}

// Metrics holds consumer metrics exposed as JSON
type Metrics struct {
	StreamState        string         `json:"stream_state"`
	ConnectedPlatforms int            `json:"connected_platforms"`
	EventsReceived     map[string]int `json:"events_received"`
	EventsFiltered     int            `json:"events_filtered"`
	AlertsForwarded    int            `json:"alerts_forwarded"`
	AlertsSuppressed   int            `json:"alerts_suppressed"`
	Reconnects         int            `json:"reconnects"`
	LastSnapshot       time.Time      `json:"last_snapshot"`
	LastDigest         time.Time      `json:"last_digest"`
	ErrorCount         int            `json:"error_count"`
}

// Option configures a Service
type Option func(*Service)

// WithMetrics records filtered events and buffer fill on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.promMetrics = m }
}

// WithClock overrides the time source used for alert cooldowns and reports
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new health consumer. snapshots and notificationService
// may be nil.
func NewService(cfg *config.Config, registry PlatformSource, stream HealthStream, snapshots SnapshotFetcher, notificationService notifications.NotificationInterface, opts ...Option) *Service {
	service := &Service{
		config:              cfg,
		registry:            registry,
		stream:              stream,
		snapshots:           snapshots,
		notificationService: notificationService,
		now:                 time.Now,
		board:               NewBoard(),
		alerts:              NewAlertBuffer(cfg.AlertBufferSize),
		gate:                newAlertGate(cfg.AlertCooldown),
		outbound:            make(chan models.Alert, alertQueueSize),
		metrics: &Metrics{
			StreamState:    health.StateIdle.String(),
			EventsReceived: make(map[string]int),
		},
	}
	for _, opt := range opts {
		opt(service)
	}
	if service.promMetrics == nil {
		service.promMetrics = metrics.NewMetrics(nil)
	}
	return service
}

// Start subscribes to platform changes and brings the stream in line with the
// current set of connected platforms. Calling Start again is a no-op.
func (s *Service) Start() {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.started || s.stopped {
		return
	}
	s.started = true

	s.workerWg.Add(1)
	go s.forwardAlerts()

	s.unsubscribe = s.registry.Subscribe(s.onPlatformsChanged)
	connected := s.registry.GetConnected()
	s.syncStreamLocked(connected)

	logrus.Infof("Health monitoring started with %d connected platforms", len(connected))
}

// Stop detaches from the registry, tears the stream down and drains pending
// alert notifications. A stopped service cannot be started again.
func (s *Service) Stop() {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if !s.started || s.stopped {
		return
	}
	s.stopped = true

	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.stream.DisconnectAll()
	s.attached = false

	close(s.outbound)
	s.workerWg.Wait()

	s.setStreamState(health.StateClosed)
	logrus.Info("Health monitoring stopped")
}

func (s *Service) onPlatformsChanged(all []models.Platform) {
	connected := make([]models.Platform, 0, len(all))
	for _, p := range all {
		if p.IsConnected() {
			connected = append(connected, p)
		}
	}

	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.stopped {
		return
	}
	s.syncStreamLocked(connected)
}

func (s *Service) syncStreamLocked(connected []models.Platform) {
	keep := make(map[string]bool, len(connected))
	for _, p := range connected {
		keep[p.ID] = true
	}
	s.board.Retain(keep)

	s.mu.Lock()
	s.metrics.ConnectedPlatforms = len(connected)
	s.mu.Unlock()

	if len(connected) == 0 {
		if s.attached || s.stream.State() != health.StateIdle {
			logrus.Info("No platforms connected, closing health stream")
			s.stream.DisconnectAll()
			s.attached = false
		}
		s.setStreamState(s.stream.State())
		return
	}

	if !s.attached {
		s.attachLocked()
	}
	s.stream.Connect()
	s.setStreamState(s.stream.State())
}

// attachLocked registers the stream handlers. DisconnectAll drops them, so
// they are attached again before every fresh connect.
func (s *Service) attachLocked() {
	s.stream.On(health.EventConnection, s.handleConnection)
	s.stream.On(health.EventDisconnect, s.handleDisconnect)
	s.stream.On(health.EventHealthUpdate, s.handleHealthUpdate)
	s.stream.On(health.EventHealthAlert, s.handleHealthAlert)
	s.stream.On(health.EventHistory, s.handleHistory)
	s.attached = true
}

func (s *Service) handleConnection(e health.Event) {
	s.countEvent(e.Type)
	s.setStreamState(health.StateOpen)
}

func (s *Service) handleDisconnect(e health.Event) {
	s.countEvent(e.Type)
	s.setStreamState(health.StateConnecting)

	s.mu.Lock()
	s.metrics.Reconnects++
	s.mu.Unlock()
}

func (s *Service) handleHealthUpdate(e health.Event) {
	s.countEvent(e.Type)
	if e.Update == nil {
		return
	}
	if !s.registry.IsConnected(e.Update.Platform) {
		s.filtered(e.Type)
		return
	}

	s.board.ApplyStream(*e.Update)
	if e.Update.Status == models.HealthHealthy {
		s.gate.clear(e.Update.Platform)
	}
	logrus.Debugf("Health update for %s: %s", e.Update.Platform, e.Update.Status)
}

func (s *Service) handleHealthAlert(e health.Event) {
	s.countEvent(e.Type)
	if e.Alert == nil {
		return
	}
	if !s.registry.IsConnected(e.Alert.Platform) {
		s.filtered(e.Type)
		return
	}

	alert := *e.Alert
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	s.alerts.Push(alert)
	s.promMetrics.AlertBufferFill.Set(float64(s.alerts.Len()))
	logrus.Warnf("Health alert for %s: %s - %s", alert.Platform, alert.Severity, alert.Message)

	s.maybeForward(alert)
}

func (s *Service) handleHistory(e health.Event) {
	s.countEvent(e.Type)

	relevant := make([]models.Alert, 0, len(e.Alerts))
	for _, alert := range e.Alerts {
		if !s.registry.IsConnected(alert.Platform) {
			continue
		}
		if alert.ID == "" {
			alert.ID = uuid.NewString()
		}
		relevant = append(relevant, alert)
	}

	if s.alerts.Seed(relevant) {
		s.promMetrics.AlertBufferFill.Set(float64(s.alerts.Len()))
		logrus.Infof("Seeded alert buffer with %d historical alerts", s.alerts.Len())
	}
}

func (s *Service) maybeForward(alert models.Alert) {
	if alert.Severity == models.SeverityInfo {
		s.gate.clear(alert.Platform)
		return
	}
	if s.notificationService == nil {
		return
	}
	if !s.gate.allow(alert.Platform, alert.Severity, s.now()) {
		s.mu.Lock()
		s.metrics.AlertsSuppressed++
		s.mu.Unlock()
		logrus.Debugf("Suppressing repeat %s alert for %s", alert.Severity, alert.Platform)
		return
	}

	select {
	case s.outbound <- alert:
	default:
		logrus.Warnf("Alert queue full, dropping notification for %s", alert.Platform)
		s.recordError()
	}
}

// forwardAlerts sends queued alerts one at a time so a slow channel never
// blocks the stream goroutine
func (s *Service) forwardAlerts() {
	defer s.workerWg.Done()

	for alert := range s.outbound {
		alert := alert
		if err := s.notificationService.SendAlert(&alert); err != nil {
			logrus.Errorf("Failed to send alert for %s: %v", alert.Platform, err)
			s.recordError()
			continue
		}

		s.mu.Lock()
		s.metrics.AlertsForwarded++
		s.mu.Unlock()
	}
}

// ApplySnapshot merges snapshot values for connected platforms into the board
func (s *Service) ApplySnapshot(updates []models.HealthUpdate) int {
	relevant := make([]models.HealthUpdate, 0, len(updates))
	for _, u := range updates {
		if !s.registry.IsConnected(u.Platform) {
			s.filtered(health.EventHealthUpdate)
			continue
		}
		relevant = append(relevant, u)
	}
	return s.board.ApplySnapshot(relevant)
}

// RefreshSnapshot fetches the monitor's health table and applies it
func (s *Service) RefreshSnapshot(ctx context.Context) error {
	if s.snapshots == nil {
		return ErrNoSnapshotSource
	}

	updates, err := s.snapshots.Fetch(ctx)
	if err != nil {
		s.recordError()
		return fmt.Errorf("failed to refresh health snapshot: %w", err)
	}

	applied := s.ApplySnapshot(updates)

	s.mu.Lock()
	s.metrics.LastSnapshot = s.now()
	s.mu.Unlock()

	logrus.Infof("Applied health snapshot: %d of %d platforms", applied, len(updates))
	return nil
}

// Health returns the latest health for a connected platform
func (s *Service) Health(platform string) (models.HealthUpdate, bool) {
	if !s.registry.IsConnected(platform) {
		return models.HealthUpdate{}, false
	}
	u, _, ok := s.board.Get(platform)
	return u, ok
}

// CurrentHealth returns health for connected platforms in catalog order.
// Platforms nothing has been reported for yet are omitted.
func (s *Service) CurrentHealth() []models.HealthUpdate {
	connected := s.registry.GetConnected()
	out := make([]models.HealthUpdate, 0, len(connected))
	for _, p := range connected {
		if u, _, ok := s.board.Get(p.ID); ok {
			out = append(out, u)
		}
	}
	return out
}

// RecentAlerts returns the buffered alerts for connected platforms, newest first
func (s *Service) RecentAlerts() []models.Alert {
	items := s.alerts.Items()
	out := make([]models.Alert, 0, len(items))
	for _, alert := range items {
		if s.registry.IsConnected(alert.Platform) {
			out = append(out, alert)
		}
	}
	return out
}

// StreamState returns the health stream's state
func (s *Service) StreamState() health.State {
	return s.stream.State()
}

// GenerateDigest builds a health report from the current board and alerts
func (s *Service) GenerateDigest(period string) *models.Report {
	current := s.CurrentHealth()
	alerts := s.RecentAlerts()

	report := &models.Report{
		GeneratedAt: s.now(),
		Period:      period,
		Platforms:   current,
		Alerts:      alerts,
		Summary:     make(map[string]interface{}),
	}

	statusCount := make(map[string]int)
	for _, u := range current {
		statusCount[string(u.Status)]++
	}
	severityCount := make(map[string]int)
	for _, alert := range alerts {
		severityCount[string(alert.Severity)]++
	}

	report.Summary["connected_platforms"] = len(s.registry.GetConnected())
	report.Summary["status"] = statusCount
	report.Summary["alerts_by_severity"] = severityCount
	report.Summary["needs_attention"] = needsAttention(current)

	return report
}

// SendDigest generates the periodic digest and hands it to the notifiers
func (s *Service) SendDigest() error {
	if s.notificationService == nil {
		logrus.Debug("No notification channels configured, skipping digest")
		return nil
	}

	report := s.GenerateDigest("daily")
	if err := s.notificationService.SendReport(report); err != nil {
		s.recordError()
		return fmt.Errorf("failed to send health digest: %w", err)
	}

	s.mu.Lock()
	s.metrics.LastDigest = report.GeneratedAt
	s.mu.Unlock()

	logrus.Infof("Sent health digest covering %d platforms", len(report.Platforms))
	return nil
}

// GetMetrics returns current metrics as JSON
func (s *Service) GetMetrics() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, _ := json.MarshalIndent(s.metrics, "", "  ")
	return string(data)
}

// needsAttention lists non-healthy platforms, worst first
func needsAttention(updates []models.HealthUpdate) []string {
	var unhealthy []models.HealthUpdate
	for _, u := range updates {
		if u.Status != models.HealthHealthy {
			unhealthy = append(unhealthy, u)
		}
	}

	sort.SliceStable(unhealthy, func(i, j int) bool {
		if rank(unhealthy[i].Status) != rank(unhealthy[j].Status) {
			return rank(unhealthy[i].Status) > rank(unhealthy[j].Status)
		}
		return unhealthy[i].ResponseTimeMS > unhealthy[j].ResponseTimeMS
	})

	names := make([]string, 0, len(unhealthy))
	for _, u := range unhealthy {
		names = append(names, fmt.Sprintf("%s (%s)", u.Platform, u.Status))
	}
	return names
}

func rank(status models.HealthStatus) int {
	switch status {
	case models.HealthCritical:
		return 2
	case models.HealthWarning:
		return 1
	default:
		return 0
	}
}

func (s *Service) countEvent(t health.EventType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.EventsReceived[string(t)]++
}

func (s *Service) filtered(t health.EventType) {
	s.promMetrics.FilteredEvents.WithLabelValues(string(t)).Inc()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.EventsFiltered++
}

func (s *Service) recordError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.ErrorCount++
}

func (s *Service) setStreamState(state health.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.StreamState = state.String()
}
