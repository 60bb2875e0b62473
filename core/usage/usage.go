// Package usage polls provider quota endpoints on a timer and caches the
// latest decoded usage windows for display. Fetching is best-effort: a
// provider without a reachable or recognizable quota shape produces a
// snapshot carrying an explanatory error string, never a crash or a silent
// gap.
package usage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/relayai/relay/internal/utils"
)

// Window is one quota window reported by a provider, for example a rolling
// five-hour window or a weekly allowance.
type Window struct {
	Label string `json:"label"`

	// UsedPercent is clamped to [0,100].
	UsedPercent float64 `json:"used_percent"`

	// ResetsAt is the window reset instant in epoch milliseconds, when the
	// provider reports one.
	ResetsAt *int64 `json:"resets_at,omitempty"`
}

// Snapshot is the cached result of the most recent fetch for one provider.
type Snapshot struct {
	Windows   []Window  `json:"windows"`
	FetchedAt time.Time `json:"fetched_at"`

	// Err carries a human-readable explanation when the fetch or decode
	// failed; Windows is empty in that case.
	Err string `json:"error,omitempty"`
}

// Fetcher retrieves and decodes one provider's quota state. Implementations
// wrap a provider-specific HTTP call plus one of the decoders in this
// package.
type Fetcher func(ctx context.Context) ([]Window, error)

const defaultRefreshInterval = 5 * time.Minute

// Monitor periodically refreshes usage snapshots for registered providers.
// Readers always get the cached snapshot; a fetch for a given provider never
// overlaps with another fetch for the same provider.
type Monitor struct {
	mu        sync.Mutex
	fetchers  map[string]Fetcher
	snapshots map[string]*Snapshot
	inFlight  map[string]bool

	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithRefreshInterval overrides the default 5-minute polling interval.
func WithRefreshInterval(interval time.Duration) MonitorOption {
	return func(m *Monitor) {
		if interval > 0 {
			m.interval = interval
		}
	}
}

// NewMonitor creates a Monitor. Call [Monitor.Start] to begin background
// polling; [Monitor.Refresh] works without it.
func NewMonitor(opts ...MonitorOption) *Monitor {
	m := &Monitor{
		fetchers:  make(map[string]Fetcher),
		snapshots: make(map[string]*Snapshot),
		inFlight:  make(map[string]bool),
		interval:  defaultRefreshInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds or replaces the fetcher for a provider and clears any stale
// snapshot.
func (m *Monitor) Register(providerID string, fetcher Fetcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchers[providerID] = fetcher
	delete(m.snapshots, providerID)
}

// Unregister removes a provider from polling.
func (m *Monitor) Unregister(providerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.fetchers, providerID)
	delete(m.snapshots, providerID)
}

// Latest returns the cached snapshot for a provider. ok is false when no
// fetch has completed yet.
func (m *Monitor) Latest(providerID string) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot, ok := m.snapshots[providerID]
	if !ok {
		return Snapshot{}, false
	}
	return *snapshot, true
}

// Refresh fetches a provider's usage immediately and returns the fresh
// snapshot. When a fetch for the same provider is already running, the
// current cached snapshot is returned instead of starting a second fetch.
func (m *Monitor) Refresh(ctx context.Context, providerID string) (Snapshot, bool) {
	m.mu.Lock()
	fetcher, registered := m.fetchers[providerID]
	if !registered {
		m.mu.Unlock()
		return Snapshot{}, false
	}
	if m.inFlight[providerID] {
		snapshot, ok := m.snapshots[providerID]
		m.mu.Unlock()
		if !ok {
			return Snapshot{}, false
		}
		return *snapshot, true
	}
	m.inFlight[providerID] = true
	m.mu.Unlock()

	snapshot := m.fetch(ctx, providerID, fetcher)

	m.mu.Lock()
	m.inFlight[providerID] = false
	m.snapshots[providerID] = snapshot
	m.mu.Unlock()
	return *snapshot, true
}

// Start launches the background polling loop. The loop runs every provider's
// fetcher once per interval and stops when ctx is cancelled or
// [Monitor.Stop] is called.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	go m.loop(ctx, done)
}

// Stop halts background polling and waits for the loop to exit. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// loop owns the done channel it was handed; reading it back off the struct
// would race with Stop clearing the field.
func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.refreshAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.refreshAll(ctx)
		}
	}
}

func (m *Monitor) refreshAll(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.fetchers))
	for id := range m.fetchers {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		m.Refresh(ctx, id)
	}
}

func (m *Monitor) fetch(ctx context.Context, providerID string, fetcher Fetcher) *Snapshot {
	timer := utils.NewTimer()
	windows, err := fetcher(ctx)
	timer.Stop()
	elapsed := timer.GetDuration()

	snapshot := &Snapshot{FetchedAt: time.Now().UTC()}
	if err != nil {
		snapshot.Err = err.Error()
		slog.Warn("usage fetch failed", "provider", providerID, "duration", elapsed, "error", err)
		return snapshot
	}
	snapshot.Windows = clampWindows(windows)
	slog.Debug("usage fetch completed", "provider", providerID, "windows", len(snapshot.Windows), "duration", elapsed)
	return snapshot
}

func clampWindows(windows []Window) []Window {
	out := make([]Window, len(windows))
	for i, window := range windows {
		if window.UsedPercent < 0 {
			window.UsedPercent = 0
		}
		if window.UsedPercent > 100 {
			window.UsedPercent = 100
		}
		out[i] = window
	}
	return out
}
