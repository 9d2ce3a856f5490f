package history

import (
	"os"
	"path/filepath"
	"testing"
)

// TestTouchRecentOrder verifies targets come back most-recent first. The
// timestamps have second resolution, so the older entry is backdated directly
// in the persisted file instead of sleeping across a second boundary.
func TestTouchRecentOrder(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if err := Touch("192.168.1.50"); err != nil {
		t.Fatal(err)
	}
	if err := Touch("192.168.1.111"); err != nil {
		t.Fatal(err)
	}

	st, err := load()
	if err != nil {
		t.Fatal(err)
	}
	st.LastScanned["192.168.1.50"] -= 60
	if err := save(st); err != nil {
		t.Fatal(err)
	}

	recent, err := Recent()
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0] != "192.168.1.111" || recent[1] != "192.168.1.50" {
		t.Fatalf("unexpected order: %v", recent)
	}
}

// TestRecentTiesSortByName verifies the deterministic tiebreak when two
// targets share a timestamp.
func TestRecentTiesSortByName(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	st := store{LastScanned: map[string]int64{"b-host": 100, "a-host": 100}}
	if err := save(st); err != nil {
		t.Fatal(err)
	}

	recent, err := Recent()
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0] != "a-host" || recent[1] != "b-host" {
		t.Fatalf("unexpected order: %v", recent)
	}
}

// TestRecentEmpty verifies a never-written history reads as empty.
func TestRecentEmpty(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	recent, err := Recent()
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 0 {
		t.Fatalf("expected empty history, got %v", recent)
	}
}

// TestCorruptFileResets verifies a mangled history file is treated as empty
// instead of surfacing a parse error to the caller.
func TestCorruptFileResets(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	appDir := filepath.Join(dir, "sshscope")
	if err := os.MkdirAll(appDir, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(appDir, "history.json"), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	recent, err := Recent()
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 0 {
		t.Fatalf("expected empty history, got %v", recent)
	}
	if err := Touch("192.168.1.111"); err != nil {
		t.Fatal(err)
	}
}
