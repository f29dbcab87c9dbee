package credentials

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStoreSetResolveDelete(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "credentials.json"))

	if err := store.Set("ai-key:anthropic-default", "sk-test-123"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	secret, err := store.Resolve("ai-key:anthropic-default")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if secret != "sk-test-123" {
		t.Errorf("expected sk-test-123, got %q", secret)
	}

	if err := store.Delete("ai-key:anthropic-default"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	secret, err = store.Resolve("ai-key:anthropic-default")
	if err != nil {
		t.Fatalf("Resolve after delete failed: %v", err)
	}
	if secret != "" {
		t.Errorf("expected empty secret after delete, got %q", secret)
	}
}

func TestStoreUnknownRefIsEmpty(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "credentials.json"))

	secret, err := store.Resolve("ai-key:never-set")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if secret != "" {
		t.Errorf("expected empty secret for unknown ref, got %q", secret)
	}
}

func TestStoreDeleteUnknownRefIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	store := NewStore(path)

	if err := store.Delete("ai-key:missing"); err != nil {
		t.Fatalf("Delete of unknown ref failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("deleting an unknown ref should not create the file")
	}
}

func TestStoreFilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	store := NewStore(path)

	if err := store.Set("ai-key:openai-default", "sk-abc"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("expected 0600 permissions, got %o", perm)
	}
}

func TestStoreList(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "credentials.json"))

	for _, ref := range []string{"ai-key:b", "ai-key:a", "ai-key:c"} {
		if err := store.Set(ref, "secret"); err != nil {
			t.Fatalf("Set %s failed: %v", ref, err)
		}
	}

	refs, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{"ai-key:a", "ai-key:b", "ai-key:c"}
	if len(refs) != len(want) {
		t.Fatalf("expected %d refs, got %d", len(want), len(refs))
	}
	for i, ref := range want {
		if refs[i] != ref {
			t.Errorf("refs[%d] = %q, want %q", i, refs[i], ref)
		}
	}
}

func TestKeyForConfig(t *testing.T) {
	if got := KeyForConfig("anthropic-default"); got != "ai-key:anthropic-default" {
		t.Errorf("KeyForConfig = %q", got)
	}
}
