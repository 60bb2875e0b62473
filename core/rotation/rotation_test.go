package rotation

import (
	"testing"

	"github.com/relayai/relay/secrets"
)

func testPolicy(t *testing.T, entries []APIKeyEntry) *Policy {
	t.Helper()
	policy := NewPolicy(secrets.NewMemoryStore())
	if err := policy.SaveKeys("prov", entries); err != nil {
		t.Fatalf("SaveKeys: %v", err)
	}
	return policy
}

// TestSelect_LowestCounter verifies that the active key with the lowest
// cumulative token counter wins.
func TestSelect_LowestCounter(t *testing.T) {
	policy := testPolicy(t, []APIKeyEntry{
		{Label: "a", Secret: "sk-a", TokensUsed: 50, Active: true},
		{Label: "b", Secret: "sk-b", TokensUsed: 10, Active: true},
		{Label: "c", Secret: "sk-c", TokensUsed: 30, Active: true},
	})

	entry, ok, err := policy.Select("prov")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if !ok {
		t.Fatal("expected a selected key")
	}
	if entry.Label != "b" {
		t.Errorf("selected key: got %q, want %q", entry.Label, "b")
	}
}

// TestSelect_TiesByStoredOrder verifies the tie-break.
func TestSelect_TiesByStoredOrder(t *testing.T) {
	policy := testPolicy(t, []APIKeyEntry{
		{Label: "first", Secret: "sk-1", TokensUsed: 20, Active: true},
		{Label: "second", Secret: "sk-2", TokensUsed: 20, Active: true},
	})

	entry, ok, err := policy.Select("prov")
	if err != nil || !ok {
		t.Fatalf("Select: ok=%v err=%v", ok, err)
	}
	if entry.Label != "first" {
		t.Errorf("tie-break: got %q, want %q", entry.Label, "first")
	}
}

// TestSelect_SkipsInactive verifies that deactivated keys never win, and that
// an all-inactive list reports no selection rather than an error.
func TestSelect_SkipsInactive(t *testing.T) {
	policy := testPolicy(t, []APIKeyEntry{
		{Label: "cheap-but-disabled", Secret: "sk-1", TokensUsed: 0, Active: false},
		{Label: "active", Secret: "sk-2", TokensUsed: 500, Active: true},
	})

	entry, ok, err := policy.Select("prov")
	if err != nil || !ok {
		t.Fatalf("Select: ok=%v err=%v", ok, err)
	}
	if entry.Label != "active" {
		t.Errorf("selected key: got %q, want %q", entry.Label, "active")
	}

	policy = testPolicy(t, []APIKeyEntry{
		{Label: "off", Secret: "sk-1", Active: false},
	})
	_, ok, err = policy.Select("prov")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if ok {
		t.Error("expected no selection from an all-inactive list")
	}
}

// TestRecordUsage verifies the read-modify-write of the token counter: after
// charging 40 tokens against the 10-token key, its counter reads 50.
func TestRecordUsage(t *testing.T) {
	policy := testPolicy(t, []APIKeyEntry{
		{Label: "a", Secret: "sk-a", TokensUsed: 50, Active: true},
		{Label: "b", Secret: "sk-b", TokensUsed: 10, Active: true},
		{Label: "c", Secret: "sk-c", TokensUsed: 30, Active: true},
	})

	selected, ok, err := policy.Select("prov")
	if err != nil || !ok {
		t.Fatalf("Select: ok=%v err=%v", ok, err)
	}
	if err := policy.RecordUsage("prov", selected.ID, 40); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}

	entries, err := policy.Keys("prov")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	for _, entry := range entries {
		if entry.ID == selected.ID && entry.TokensUsed != 50 {
			t.Errorf("counter after charge: got %d, want 50", entry.TokensUsed)
		}
	}
}

// TestRecordUsage_UnknownKey verifies the error path for a stale key id.
func TestRecordUsage_UnknownKey(t *testing.T) {
	policy := testPolicy(t, []APIKeyEntry{
		{Label: "a", Secret: "sk-a", Active: true},
	})
	if err := policy.RecordUsage("prov", "no-such-id", 10); err == nil {
		t.Error("expected an error charging an unknown key id")
	}
}

// TestKeys_EmptyProvider verifies that a provider with no stored key list
// reads as empty, not as an error.
func TestKeys_EmptyProvider(t *testing.T) {
	policy := NewPolicy(secrets.NewMemoryStore())
	entries, err := policy.Keys("nothing-here")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %d", len(entries))
	}
}
