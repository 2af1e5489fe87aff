package rules

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(path, []byte("rules: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := Watch(ctx, path)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	doc := "rules:\n  - {name: x, kind: domain, pattern: a.example.com, category: important}\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case rs := <-ch:
		if len(rs) != 1 || rs[0].Pattern != "a.example.com" {
			t.Errorf("reloaded rules = %+v", rs)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for rules reload")
	}
}

// A broken edit must not deliver anything; the previous rules stay live.
func TestWatchIgnoresBrokenFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(path, []byte("rules: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := Watch(ctx, path)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	bad := "rules:\n  - {name: x, kind: bogus, pattern: p, category: important}\n"
	if err := os.WriteFile(path, []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case rs, ok := <-ch:
		if ok {
			t.Errorf("unexpected delivery of %d rules from a broken file", len(rs))
		}
	case <-time.After(600 * time.Millisecond):
	}
}
