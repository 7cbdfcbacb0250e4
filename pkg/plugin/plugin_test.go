package plugin

import (
	"os"
	"path/filepath"
	"testing"
)

func writePluginFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	os.MkdirAll(dir, 0o755)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseFile_DerivesIDFromFilename(t *testing.T) {
	dir := t.TempDir()
	path := writePluginFile(t, dir, "fs-helper.md", `---
description: filesystem helper plugin
capabilities:
  - read_file
  - write_file
---
`)

	m, warnings, err := ParseFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
	if m.ID != "fs-helper" {
		t.Errorf("ID = %q, want fs-helper", m.ID)
	}
	if len(m.Capabilities) != 2 {
		t.Errorf("Capabilities = %v, want 2 entries", m.Capabilities)
	}
	if m.Hash == "" {
		t.Error("expected non-empty content hash")
	}
}

func TestParseFile_RejectsColonInID(t *testing.T) {
	dir := t.TempDir()
	path := writePluginFile(t, dir, "bad.md", `---
id: has:colon
description: bad plugin
---
`)

	_, _, err := ParseFile(path)
	if err == nil {
		t.Fatal("expected error for colon in plugin id")
	}
}

func TestParseFile_UnknownFieldWarns(t *testing.T) {
	dir := t.TempDir()
	path := writePluginFile(t, dir, "typo.md", `---
description: plugin with a typo
capabilites:
  - x
---
`)

	_, warnings, err := ParseFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", warnings)
	}
}

func TestParseQualifiedTool(t *testing.T) {
	cases := []struct {
		in       string
		wantID   string
		wantTool string
		wantOK   bool
	}{
		{"plugin:fs-helper:read_file", "fs-helper", "read_file", true},
		{"plugin:fs-helper:namespace:tool", "fs-helper", "namespace:tool", true},
		{"mcp__server__tool", "", "", false},
		{"plugin:no-colon-tool", "no-colon-tool", "", false},
	}
	for _, c := range cases {
		id, tool, ok := ParseQualifiedTool(c.in)
		if ok != c.wantOK || id != c.wantID || tool != c.wantTool {
			t.Errorf("ParseQualifiedTool(%q) = (%q, %q, %v), want (%q, %q, %v)", c.in, id, tool, ok, c.wantID, c.wantTool, c.wantOK)
		}
	}
}

func TestLockfile_MissingFileIsEmpty(t *testing.T) {
	lf, err := LoadLockfile(filepath.Join(t.TempDir(), "plugin.lock"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lf.Plugins) != 0 {
		t.Errorf("expected empty lockfile, got %v", lf.Plugins)
	}
}

func TestLockfile_VerifyDetectsMismatch(t *testing.T) {
	dir := t.TempDir()
	path := writePluginFile(t, dir, "fs-helper.md", `---
description: filesystem helper
capabilities: [read_file]
---
`)
	m, _, err := ParseFile(path)
	if err != nil {
		t.Fatal(err)
	}

	lf := &Lockfile{Plugins: map[string]LockEntry{}}
	lf.Pin(m)

	verified, known := lf.Verify(m)
	if !known || !verified {
		t.Fatalf("expected known+verified immediately after Pin, got known=%v verified=%v", known, verified)
	}

	// Mutate the manifest's recorded hash to simulate the file changing on disk.
	m.Hash = "deadbeef"
	verified, known = lf.Verify(m)
	if !known {
		t.Fatal("expected known=true")
	}
	if verified {
		t.Fatal("expected verified=false after hash mismatch")
	}
}

func TestRegistry_LoadAndFindTool(t *testing.T) {
	dir := t.TempDir()
	writePluginFile(t, dir, "fs-helper.md", `---
description: filesystem helper
capabilities: [read_file, write_file]
---
`)

	lockPath := filepath.Join(dir, "plugin.lock")
	reg, err := NewRegistry(lockPath, dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	warnings, err := reg.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}

	def, ok := reg.FindTool("plugin:fs-helper:read_file")
	if !ok {
		t.Fatal("expected to find plugin:fs-helper:read_file")
	}
	if def.PluginID != "fs-helper" || def.Tool != "read_file" {
		t.Errorf("def = %+v, want PluginID=fs-helper Tool=read_file", def)
	}
	if def.Trusted {
		t.Error("unpinned plugin should load untrusted")
	}

	if len(reg.AllToolDefinitions()) != 2 {
		t.Errorf("expected 2 tool definitions, got %d", len(reg.AllToolDefinitions()))
	}
}

func TestRegistry_TrustPinsAndPersists(t *testing.T) {
	dir := t.TempDir()
	writePluginFile(t, dir, "fs-helper.md", `---
description: filesystem helper
capabilities: [read_file]
---
`)

	lockPath := filepath.Join(dir, "plugin.lock")
	reg, err := NewRegistry(lockPath, dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Load(); err != nil {
		t.Fatal(err)
	}

	if err := reg.Trust("fs-helper"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reg.IsTrusted("fs-helper") {
		t.Error("expected fs-helper to be trusted after Trust")
	}

	// A second registry reloading from the same lockfile should see it as
	// verified (though still not Trusted until re-pinned, since loading
	// only marks hash verification, not operator trust).
	reg2, err := NewRegistry(lockPath, dir)
	if err != nil {
		t.Fatal(err)
	}
	warnings, err := reg2.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(warnings) != 0 {
		t.Errorf("expected no warnings after trust, got %v", warnings)
	}
}

func TestRegistry_MissingDirIsNotAnError(t *testing.T) {
	reg, err := NewRegistry(filepath.Join(t.TempDir(), "plugin.lock"), filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatal(err)
	}
	warnings, err := reg.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
}
