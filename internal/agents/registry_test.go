package agents

import (
	"strings"
	"testing"
	"time"
)

func TestLoadRegistry_AllCapabilitiesPresent(t *testing.T) {
	reg, err := LoadRegistry()
	if err != nil {
		t.Fatalf("LoadRegistry failed: %v", err)
	}

	for _, id := range []string{CapDiscovery, CapAnalysis, CapPrefill, CapSubmit} {
		c, ok := reg.Capability(id)
		if !ok {
			t.Fatalf("capability %q missing from registry", id)
		}
		if !strings.HasPrefix(c.Path, "/api/run_") || !strings.HasSuffix(c.Path, "_agent") {
			t.Fatalf("capability %q has unexpected path %q", id, c.Path)
		}
		if c.Timeout() <= 0 {
			t.Fatalf("capability %q has non-positive timeout", id)
		}
	}
}

func TestCapabilityConfig_TimeoutDefault(t *testing.T) {
	c := CapabilityConfig{ID: "x", Path: "/api/run_x_agent"}
	if got := c.Timeout(); got != 30*time.Second {
		t.Fatalf("default timeout = %v, want 30s", got)
	}

	c.TimeoutSeconds = 45
	if got := c.Timeout(); got != 45*time.Second {
		t.Fatalf("timeout = %v, want 45s", got)
	}
}

func TestRegistry_UnknownCapability(t *testing.T) {
	reg, err := LoadRegistry()
	if err != nil {
		t.Fatalf("LoadRegistry failed: %v", err)
	}
	if _, ok := reg.Capability("notifications"); ok {
		t.Fatal("unexpected capability in registry")
	}
}
