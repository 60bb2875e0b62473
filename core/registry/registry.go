package registry

import (
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/relayai/relay/core/rotation"
	"github.com/relayai/relay/providers/ai"
	"github.com/relayai/relay/providers/ai/anthropic"
	"github.com/relayai/relay/providers/ai/custom"
	"github.com/relayai/relay/providers/ai/ollama"
	"github.com/relayai/relay/providers/ai/openaicompat"
	"github.com/relayai/relay/secrets"
)

// Manager holds the provider configuration set and the adapter cache. A
// single mutex serializes every mutation; reads take the same lock because
// configuration churn is rare and never on a hot path.
type Manager struct {
	mu        sync.Mutex
	providers []*ProviderConfiguration
	adapters  map[string]cachedAdapter

	store    secrets.Store
	rotation *rotation.Policy
	client   *http.Client
}

// cachedAdapter pairs a built adapter with the rotation key its snapshot was
// resolved against, so exchange accounting can charge the right key.
type cachedAdapter struct {
	adapter ai.Adapter
	keyID   string
}

// Option configures a Manager.
type Option func(*Manager)

// WithHTTPClient sets the HTTP client handed to every adapter the Manager
// builds. Defaults to [http.DefaultClient].
func WithHTTPClient(client *http.Client) Option {
	return func(m *Manager) { m.client = client }
}

// NewManager creates a Manager backed by the given credential store.
func NewManager(store secrets.Store, opts ...Option) *Manager {
	m := &Manager{
		adapters: make(map[string]cachedAdapter),
		store:    store,
		rotation: rotation.NewPolicy(store),
		client:   http.DefaultClient,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load replaces the configuration set, evicting every cached adapter.
func (m *Manager) Load(providers []*ProviderConfiguration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.providers = m.providers[:0]
	for _, provider := range providers {
		m.providers = append(m.providers, provider.clone())
	}
	m.adapters = make(map[string]cachedAdapter)
}

// Providers returns the configured providers ordered by SortOrder, then ID.
func (m *Manager) Providers() []*ProviderConfiguration {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*ProviderConfiguration, 0, len(m.providers))
	for _, provider := range m.providers {
		out = append(out, provider.clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Provider returns the configuration with the given id.
func (m *Manager) Provider(id string) (*ProviderConfiguration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	provider := m.find(id)
	if provider == nil {
		return nil, fmt.Errorf("no provider configured with id %q", id)
	}
	return provider.clone(), nil
}

// DefaultProvider returns the provider flagged as default. When no provider
// carries the flag the first configured provider stands in; nil means nothing
// is configured at all.
func (m *Manager) DefaultProvider() *ProviderConfiguration {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, provider := range m.providers {
		if provider.Default {
			return provider.clone()
		}
	}
	if len(m.providers) > 0 {
		return m.providers[0].clone()
	}
	return nil
}

// SetDefault marks one provider as default and clears the flag everywhere
// else, so exactly one provider carries it afterwards.
func (m *Manager) SetDefault(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	target := m.find(id)
	if target == nil {
		return fmt.Errorf("no provider configured with id %q", id)
	}
	now := time.Now().UTC()
	for _, provider := range m.providers {
		was := provider.Default
		provider.Default = provider.ID == id
		if provider.Default != was {
			provider.UpdatedAt = now
		}
	}
	return nil
}

// Create adds a new provider configuration. The id must be unused.
func (m *Manager) Create(config *ProviderConfiguration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if config.ID == "" {
		return fmt.Errorf("provider id must not be empty")
	}
	if m.find(config.ID) != nil {
		return fmt.Errorf("provider %q already exists", config.ID)
	}

	stored := config.clone()
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	if stored.Default {
		for _, provider := range m.providers {
			provider.Default = false
		}
	}
	m.providers = append(m.providers, stored)
	return nil
}

// Update replaces an existing provider configuration, stamps UpdatedAt, and
// evicts the cached adapter so the next use sees the new settings.
func (m *Manager) Update(config *ProviderConfiguration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, provider := range m.providers {
		if provider.ID != config.ID {
			continue
		}
		stored := config.clone()
		stored.CreatedAt = provider.CreatedAt
		stored.UpdatedAt = time.Now().UTC()
		if stored.Default {
			for _, other := range m.providers {
				other.Default = false
			}
		}
		m.providers[i] = stored
		m.evictLocked(config.ID)
		return nil
	}
	return fmt.Errorf("no provider configured with id %q", config.ID)
}

// Delete removes a provider, its cached adapter, and every secret stored
// under its namespace.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	index := -1
	for i, provider := range m.providers {
		if provider.ID == id {
			index = i
			break
		}
	}
	if index == -1 {
		return fmt.Errorf("no provider configured with id %q", id)
	}

	for _, key := range secrets.ProviderKeys(id) {
		if err := m.store.Delete(key); err != nil {
			slog.Warn("failed to delete provider secret", "provider", id, "key", key, "error", err)
		}
	}
	m.providers = append(m.providers[:index], m.providers[index+1:]...)
	m.evictLocked(id)
	return nil
}

// Adapter returns the cached adapter for a provider, building one on first
// use. Configuration or credential changes must be followed by
// [Manager.InvalidateAdapter] (Update and Delete do this themselves).
func (m *Manager) Adapter(id string) (ai.Adapter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cached, ok := m.adapters[id]; ok {
		return cached.adapter, nil
	}

	provider := m.find(id)
	if provider == nil {
		return nil, fmt.Errorf("no provider configured with id %q", id)
	}
	if !provider.Enabled {
		return nil, ai.NewError(ai.ErrNotSupported, fmt.Sprintf("provider %q is disabled", id))
	}

	snapshot := m.snapshotLocked(provider)
	adapter, err := buildAdapter(provider.Family, snapshot, m.client)
	if err != nil {
		return nil, err
	}
	m.adapters[id] = cachedAdapter{adapter: adapter, keyID: snapshot.RotationKeyID}
	return adapter, nil
}

// ActiveKeyID returns the rotation key id the cached adapter for a provider
// was built with, or "" when there is no cached adapter or rotation is not in
// play. Capture it before calling [Manager.RecordExchange], which evicts the
// cache entry.
func (m *Manager) ActiveKeyID(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adapters[id].keyID
}

// InvalidateAdapter drops the cached adapter for a provider; call it after a
// credential change so the next exchange picks up the new secret.
func (m *Manager) InvalidateAdapter(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictLocked(id)
}

// RecordExchange charges tokens against the rotation key an adapter was
// built with and evicts that provider's cached adapter, so the next exchange
// re-selects the least-used active key. A no-op when the snapshot carried no
// rotation key.
func (m *Manager) RecordExchange(providerID, keyID string, tokens int64) error {
	if keyID == "" {
		return nil
	}
	if err := m.rotation.RecordUsage(providerID, keyID, tokens); err != nil {
		return err
	}
	m.InvalidateAdapter(providerID)
	return nil
}

// Rotation exposes the key rotation policy for key management commands.
func (m *Manager) Rotation() *rotation.Policy {
	return m.rotation
}

// SnapshotFor resolves a provider's credentials into a fresh snapshot without
// touching the adapter cache. Returns nil for unknown providers.
func (m *Manager) SnapshotFor(id string) *ai.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	provider := m.find(id)
	if provider == nil {
		return nil
	}
	return m.snapshotLocked(provider)
}

func (m *Manager) find(id string) *ProviderConfiguration {
	for _, provider := range m.providers {
		if provider.ID == id {
			return provider
		}
	}
	return nil
}

func (m *Manager) evictLocked(id string) {
	if cached, ok := m.adapters[id]; ok {
		cached.adapter.Cancel()
		delete(m.adapters, id)
	}
}

// snapshotLocked resolves credentials and freezes the configuration into an
// immutable snapshot for adapter construction. A missing secret is logged
// rather than fatal: local backends need none, and remote backends will
// surface a proper auth error on first use.
func (m *Manager) snapshotLocked(provider *ProviderConfiguration) *ai.Snapshot {
	snapshot := &ai.Snapshot{
		ProviderID:          provider.ID,
		DisplayName:         provider.DisplayName,
		Family:              provider.Family,
		BaseURL:             provider.BaseURL,
		AuthMethod:          provider.AuthMethod,
		Headers:             maps.Clone(provider.Headers),
		Models:              append([]ai.ModelDescriptor(nil), provider.Models...),
		DefaultModel:        provider.DefaultModelID,
		SubscriptionBilling: provider.SubscriptionBilling,
	}
	if provider.Custom != nil {
		spec := *provider.Custom
		snapshot.Custom = &spec
	}

	if provider.AuthMethod == ai.AuthNone {
		return snapshot
	}

	if provider.RotationEnabled {
		entry, ok, err := m.rotation.Select(provider.ID)
		if err != nil {
			slog.Warn("key rotation lookup failed", "provider", provider.ID, "error", err)
		} else if ok {
			snapshot.APIKey = strings.TrimSpace(entry.Secret)
			snapshot.RotationKeyID = entry.ID
			return snapshot
		}
		// Fall through to the single stored secret when the key list is
		// empty or every entry is deactivated.
	}

	secretKey := secrets.APIKeyKey(provider.ID)
	if provider.AuthMethod == ai.AuthOAuth {
		secretKey = secrets.OAuthAccessKey(provider.ID)
	}
	value, ok := m.store.Read(secretKey)
	if !ok || strings.TrimSpace(value) == "" {
		slog.Warn("no credential stored for provider", "provider", provider.ID, "auth", provider.AuthMethod)
		return snapshot
	}
	snapshot.APIKey = strings.TrimSpace(value)
	return snapshot
}

// buildAdapter dispatches on the provider family. Every family named in the
// ai package must have an arm here.
func buildAdapter(family ai.Family, snapshot *ai.Snapshot, client *http.Client) (ai.Adapter, error) {
	switch family {
	case ai.FamilyAnthropic:
		return anthropic.New(snapshot, client), nil
	case ai.FamilyOpenAI, ai.FamilyOpenRouter, ai.FamilyGroq, ai.FamilyMistral, ai.FamilyDeepSeek:
		return openaicompat.New(snapshot, client), nil
	case ai.FamilyOllama:
		return ollama.New(snapshot, client), nil
	case ai.FamilyCustom:
		return custom.New(snapshot, client), nil
	default:
		return nil, ai.NewError(ai.ErrNotSupported, fmt.Sprintf("unknown provider family %q", family))
	}
}
