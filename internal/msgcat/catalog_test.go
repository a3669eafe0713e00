package msgcat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEmbeddedDefaultsLoad(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	got, err := c.Render("error.already_answered", nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if got == "" {
		t.Fatalf("empty message for known key")
	}
}

func TestRenderWithData(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	got, err := c.Render("battle.opponent_disconnected", map[string]any{"Opponent": "bob"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(got, "bob") {
		t.Fatalf("opponent name missing: %q", got)
	}
}

func TestOverrideDirReplacesKey(t *testing.T) {
	dir := t.TempDir()
	override := "error:\n  internal: \"custom internal error\"\n"
	if err := os.WriteFile(filepath.Join(dir, "custom.yaml"), []byte(override), 0o644); err != nil {
		t.Fatalf("write override: %v", err)
	}

	c, err := New(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	got, err := c.Render("error.internal", nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if got != "custom internal error" {
		t.Fatalf("override not applied: %q", got)
	}
	// Untouched keys keep their embedded defaults.
	if _, err := c.Render("queue.joined", nil); err != nil {
		t.Fatalf("default key lost: %v", err)
	}
}

func TestDuplicateOverrideKeyFails(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yaml", "b.yaml"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("queue:\n  joined: \"x\"\n"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if _, err := New(dir); err == nil {
		t.Fatalf("duplicate key across override files should fail")
	}
}

func TestMustRenderFallsBackToKey(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := c.MustRender("no.such.key", nil); got != "no.such.key" {
		t.Fatalf("fallback = %q", got)
	}
}
