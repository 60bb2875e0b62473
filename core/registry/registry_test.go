package registry

import (
	"testing"

	"github.com/relayai/relay/core/rotation"
	"github.com/relayai/relay/providers/ai"
	"github.com/relayai/relay/secrets"
)

func testManager(t *testing.T, providers ...*ProviderConfiguration) (*Manager, secrets.Store) {
	t.Helper()
	store := secrets.NewMemoryStore()
	manager := NewManager(store)
	for _, provider := range providers {
		if err := manager.Create(provider); err != nil {
			t.Fatalf("Create(%s): %v", provider.ID, err)
		}
	}
	return manager, store
}

func anthropicConfig(id string) *ProviderConfiguration {
	return &ProviderConfiguration{
		ID:          id,
		DisplayName: "Anthropic",
		Family:      ai.FamilyAnthropic,
		Enabled:     true,
		AuthMethod:  ai.AuthAPIKey,
	}
}

// TestDefaultProvider verifies the resolution order: flagged provider first,
// then the first configured provider, then nil on an empty manager.
func TestDefaultProvider(t *testing.T) {
	manager, _ := testManager(t)
	if got := manager.DefaultProvider(); got != nil {
		t.Errorf("empty manager: got %q, want nil", got.ID)
	}

	first := anthropicConfig("first")
	second := anthropicConfig("second")
	second.Default = true
	manager, _ = testManager(t, first, second)

	if got := manager.DefaultProvider(); got == nil || got.ID != "second" {
		t.Errorf("flagged default: got %v, want second", got)
	}

	// Without a flag the first configured provider stands in.
	manager, _ = testManager(t, anthropicConfig("only"))
	if got := manager.DefaultProvider(); got == nil || got.ID != "only" {
		t.Errorf("fallback default: got %v, want only", got)
	}
}

// TestSetDefault verifies that exactly one provider carries the default flag
// afterwards.
func TestSetDefault(t *testing.T) {
	a := anthropicConfig("a")
	a.Default = true
	b := anthropicConfig("b")
	c := anthropicConfig("c")
	manager, _ := testManager(t, a, b, c)

	if err := manager.SetDefault("c"); err != nil {
		t.Fatalf("SetDefault: %v", err)
	}

	flagged := 0
	for _, provider := range manager.Providers() {
		if provider.Default {
			flagged++
			if provider.ID != "c" {
				t.Errorf("default flag on %q, want c", provider.ID)
			}
		}
	}
	if flagged != 1 {
		t.Errorf("default flags: got %d, want exactly 1", flagged)
	}

	if err := manager.SetDefault("missing"); err == nil {
		t.Error("expected an error for an unknown id")
	}
}

// TestAdapterCache verifies that repeated Adapter calls return the identical
// instance and that Update evicts the entry.
func TestAdapterCache(t *testing.T) {
	manager, store := testManager(t, anthropicConfig("claude"))
	if err := store.Save(secrets.APIKeyKey("claude"), "sk-test"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	first, err := manager.Adapter("claude")
	if err != nil {
		t.Fatalf("Adapter: %v", err)
	}
	second, err := manager.Adapter("claude")
	if err != nil {
		t.Fatalf("Adapter: %v", err)
	}
	if first != second {
		t.Error("expected the cached adapter instance on the second call")
	}

	updated := anthropicConfig("claude")
	updated.DisplayName = "Anthropic (renamed)"
	if err := manager.Update(updated); err != nil {
		t.Fatalf("Update: %v", err)
	}

	third, err := manager.Adapter("claude")
	if err != nil {
		t.Fatalf("Adapter after update: %v", err)
	}
	if third == first {
		t.Error("expected a fresh adapter after Update")
	}

	// Explicit invalidation does the same after a secret change.
	if err := store.Save(secrets.APIKeyKey("claude"), "sk-rotated"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	manager.InvalidateAdapter("claude")
	fourth, err := manager.Adapter("claude")
	if err != nil {
		t.Fatalf("Adapter after invalidation: %v", err)
	}
	if fourth == third {
		t.Error("expected a fresh adapter after InvalidateAdapter")
	}
}

// TestAdapter_FamilyDispatch verifies that every family resolves to an
// adapter and that a disabled provider is refused.
func TestAdapter_FamilyDispatch(t *testing.T) {
	families := []ai.Family{
		ai.FamilyAnthropic, ai.FamilyOpenAI, ai.FamilyOpenRouter,
		ai.FamilyGroq, ai.FamilyMistral, ai.FamilyDeepSeek, ai.FamilyOllama,
	}

	for _, family := range families {
		config := anthropicConfig(string(family))
		config.Family = family
		if family == ai.FamilyOllama {
			config.AuthMethod = ai.AuthNone
		}
		manager, _ := testManager(t, config)
		if _, err := manager.Adapter(string(family)); err != nil {
			t.Errorf("Adapter(%s): %v", family, err)
		}
	}

	custom := anthropicConfig("mine")
	custom.Family = ai.FamilyCustom
	custom.BaseURL = "http://localhost:9999"
	custom.Custom = &ai.CustomSpec{ChatPath: "/chat", StreamFormat: "sse"}
	manager, _ := testManager(t, custom)
	if _, err := manager.Adapter("mine"); err != nil {
		t.Errorf("Adapter(custom): %v", err)
	}

	disabled := anthropicConfig("off")
	disabled.Enabled = false
	manager, _ = testManager(t, disabled)
	if _, err := manager.Adapter("off"); err == nil {
		t.Error("expected an error for a disabled provider")
	}
}

// TestCRUD verifies create/update/delete plus the secret sweep on delete.
func TestCRUD(t *testing.T) {
	manager, store := testManager(t)

	if err := manager.Create(anthropicConfig("a")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := manager.Create(anthropicConfig("a")); err == nil {
		t.Error("expected duplicate-id error")
	}
	if err := manager.Create(&ProviderConfiguration{}); err == nil {
		t.Error("expected empty-id error")
	}

	config, err := manager.Provider("a")
	if err != nil {
		t.Fatalf("Provider: %v", err)
	}
	if config.CreatedAt.IsZero() || config.UpdatedAt.IsZero() {
		t.Error("expected timestamps on create")
	}

	config.DisplayName = "renamed"
	if err := manager.Update(config); err != nil {
		t.Fatalf("Update: %v", err)
	}
	updated, _ := manager.Provider("a")
	if updated.DisplayName != "renamed" {
		t.Errorf("DisplayName after update: got %q", updated.DisplayName)
	}
	if !updated.UpdatedAt.After(updated.CreatedAt) && !updated.UpdatedAt.Equal(updated.CreatedAt) {
		t.Error("UpdatedAt regressed")
	}

	// Secrets are swept on delete.
	if err := store.Save(secrets.APIKeyKey("a"), "sk-test"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := manager.Delete("a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if store.Exists(secrets.APIKeyKey("a")) {
		t.Error("expected the provider's secrets to be deleted")
	}
	if _, err := manager.Provider("a"); err == nil {
		t.Error("expected lookup failure after delete")
	}
}

// TestSnapshotUsesRotation verifies that an enabled rotation policy feeds the
// least-used key into the snapshot.
func TestSnapshotUsesRotation(t *testing.T) {
	config := anthropicConfig("rotating")
	config.RotationEnabled = true
	manager, store := testManager(t, config)

	policy := rotation.NewPolicy(store)
	err := policy.SaveKeys("rotating", []rotation.APIKeyEntry{
		{Label: "busy", Secret: "sk-busy", TokensUsed: 900, Active: true},
		{Label: "fresh", Secret: "sk-fresh", TokensUsed: 5, Active: true},
	})
	if err != nil {
		t.Fatalf("SaveKeys: %v", err)
	}

	provider, err := manager.Provider("rotating")
	if err != nil {
		t.Fatalf("Provider: %v", err)
	}
	snapshot := manager.snapshotLocked(provider)
	if snapshot.APIKey != "sk-fresh" {
		t.Errorf("rotation key: got %q, want sk-fresh", snapshot.APIKey)
	}
	if snapshot.RotationKeyID == "" {
		t.Error("expected the rotation key id on the snapshot")
	}
}

// TestRecordExchange_ReselectsKey verifies that charging an exchange against
// a rotation key evicts the cached adapter, so the next request is built with
// the now least-used key.
func TestRecordExchange_ReselectsKey(t *testing.T) {
	config := anthropicConfig("rotating")
	config.RotationEnabled = true
	manager, store := testManager(t, config)

	policy := rotation.NewPolicy(store)
	err := policy.SaveKeys("rotating", []rotation.APIKeyEntry{
		{Label: "k1", Secret: "sk-one", TokensUsed: 10, Active: true},
		{Label: "k2", Secret: "sk-two", TokensUsed: 30, Active: true},
	})
	if err != nil {
		t.Fatalf("SaveKeys: %v", err)
	}
	entries, err := policy.Keys("rotating")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}

	first, err := manager.Adapter("rotating")
	if err != nil {
		t.Fatalf("Adapter: %v", err)
	}
	if got := manager.ActiveKeyID("rotating"); got != entries[0].ID {
		t.Fatalf("active key: got %q, want k1 (%q)", got, entries[0].ID)
	}

	// Pushing k1 past k2's counter must evict the cached adapter.
	if err := manager.RecordExchange("rotating", entries[0].ID, 40); err != nil {
		t.Fatalf("RecordExchange: %v", err)
	}
	if got := manager.ActiveKeyID("rotating"); got != "" {
		t.Errorf("active key after RecordExchange: got %q, want none cached", got)
	}

	second, err := manager.Adapter("rotating")
	if err != nil {
		t.Fatalf("Adapter after RecordExchange: %v", err)
	}
	if second == first {
		t.Error("expected a fresh adapter after RecordExchange")
	}
	if got := manager.ActiveKeyID("rotating"); got != entries[1].ID {
		t.Errorf("re-selected key: got %q, want k2 (%q)", got, entries[1].ID)
	}
}

// TestSnapshotHeadersDoNotAlias verifies that mutating a snapshot's header
// map leaves the stored configuration untouched.
func TestSnapshotHeadersDoNotAlias(t *testing.T) {
	config := anthropicConfig("a")
	config.Headers = map[string]string{"X-Org": "one"}
	manager, _ := testManager(t, config)

	snapshot := manager.snapshotLocked(manager.find("a"))
	snapshot.Headers["X-Org"] = "two"

	fresh, _ := manager.Provider("a")
	if fresh.Headers["X-Org"] != "one" {
		t.Error("snapshot headers alias the stored configuration")
	}
}

// TestConfigClone verifies that mutating a returned configuration does not
// leak into manager state.
func TestConfigClone(t *testing.T) {
	config := anthropicConfig("a")
	config.Headers = map[string]string{"X-Org": "one"}
	manager, _ := testManager(t, config)

	leaked, _ := manager.Provider("a")
	leaked.Headers["X-Org"] = "two"
	leaked.DisplayName = "mutated"

	fresh, _ := manager.Provider("a")
	if fresh.Headers["X-Org"] != "one" || fresh.DisplayName == "mutated" {
		t.Error("returned configuration aliases manager state")
	}
}
