package msgcat

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRender_Embedded(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	got, err := c.Render("room.not_found", map[string]any{"RoomID": "abcdef"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if got != "Room abcdef not found." {
		t.Fatalf("got %q", got)
	}
	if _, err := c.Render("room.not_found", map[string]any{}); err == nil {
		t.Fatalf("expected missing field error")
	}
	if _, err := c.Render("nope.nope", nil); err == nil {
		t.Fatalf("expected unknown key error")
	}
}

func TestText_Fallback(t *testing.T) {
	c := MustDefault()
	if got := c.Text("missing.key", nil, "fallback"); got != "fallback" {
		t.Fatalf("got %q", got)
	}
	var nilCat *Catalog
	if got := nilCat.Text("room.forbidden", nil, "fb"); got != "fb" {
		t.Fatalf("nil catalog got %q", got)
	}
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("room:\n  forbidden: \"Owner only.\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := New(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := c.Text("room.forbidden", nil, ""); got != "Owner only." {
		t.Fatalf("override not applied: %q", got)
	}
	if got := c.Text("auth.unauthorized", nil, ""); got != "Authentication required." {
		t.Fatalf("embedded key lost: %q", got)
	}
}

func TestOverrideDir_DuplicateKeys(t *testing.T) {
	dir := t.TempDir()
	body := []byte("server:\n  error: \"x\"\n")
	for _, n := range []string{"a.yaml", "b.yml"} {
		if err := os.WriteFile(filepath.Join(dir, n), body, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := New(dir); err == nil {
		t.Fatalf("expected duplicate key error")
	}
}
