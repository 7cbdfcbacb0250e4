package security

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/astralis-run/astrid/pkg/audit"
)

func TestBootstrap_ChecksViaInterceptor(t *testing.T) {
	stack, err := Bootstrap(Config{
		SessionID:     "s1",
		WorkspaceRoot: "/ws",
		StateDir:      t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	defer stack.Close()

	result, err := stack.Checker.Check(context.Background(), "mcp__fs__read_file", map[string]any{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if result.Behavior != "allow" {
		t.Errorf("Behavior = %q, want allow (no policy configured)", result.Behavior)
	}

	entries, err := stack.Audit.GetSessionEntries("s1")
	if err != nil {
		t.Fatalf("GetSessionEntries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d audit entries, want 1 (the interceptor must record its decision)", len(entries))
	}
}

func TestBootstrap_CapabilityViolationWritesAuditEntry(t *testing.T) {
	stack, err := Bootstrap(Config{
		SessionID:     "s1",
		WorkspaceRoot: "/ws",
		StateDir:      t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	defer stack.Close()

	stack.Capabilities.OnSecurityViolation("forged token abc123")

	entries, err := stack.Audit.GetSessionEntries("s1")
	if err != nil {
		t.Fatalf("GetSessionEntries: %v", err)
	}
	var found bool
	for _, e := range entries {
		if e.Action.Type == audit.TypeSecurityViolation && !e.Outcome.Success {
			found = true
		}
	}
	if !found {
		t.Error("expected a failed security_violation audit entry for the capability signature mismatch")
	}
}

func TestBootstrap_StateDirLayout(t *testing.T) {
	dir := t.TempDir()
	stack, err := Bootstrap(Config{SessionID: "s1", WorkspaceRoot: "/ws", StateDir: dir})
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	defer stack.Close()

	for _, name := range []string{"signing.key", "audit.db", "capabilities.db", "deferred.db"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s to exist under StateDir: %v", name, err)
		}
	}
}
