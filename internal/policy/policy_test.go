package policy

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func intPtr(v int) *int { return &v }

func TestDefaultNetworkPolicy(t *testing.T) {
	p := DefaultNetworkPolicy()

	for _, port := range []int{3000, 3500, 3999, 8000, 8080, 8999} {
		if !p.AllowedInboundPorts.Contains(port) {
			t.Errorf("expected inbound port %d to be allowed", port)
		}
	}
	for _, port := range []int{22, 2999, 4000, 7999, 9000} {
		if p.AllowedInboundPorts.Contains(port) {
			t.Errorf("expected inbound port %d to be denied", port)
		}
	}
	if got := p.AllowedOutboundPorts.Sorted(); !reflect.DeepEqual(got, []int{80, 443, 8080}) {
		t.Errorf("outbound ports = %v, want [80 443 8080]", got)
	}
	if len(p.AllowedDomains) != 0 {
		t.Errorf("expected no domain allowlist, got %v", p.AllowedDomains)
	}
	if p.MaxConnectionsPerMinute != 60 {
		t.Errorf("rate limit = %d, want 60", p.MaxConnectionsPerMinute)
	}
	if !p.DetectPortHijacking || !p.DetectReverseShells || !p.BlockPrivilegedPorts || !p.BlockPrivateNetworks || !p.LogAllActivity {
		t.Errorf("expected every detection enabled: %+v", p)
	}
}

func TestStrictNetworkPolicy(t *testing.T) {
	p := StrictNetworkPolicy()

	if !p.AllowedInboundPorts.Contains(3000) || !p.AllowedInboundPorts.Contains(3010) {
		t.Error("expected 3000-3010 inbound")
	}
	if p.AllowedInboundPorts.Contains(3011) {
		t.Error("3011 must not be in the strict inbound range")
	}
	if got := p.AllowedOutboundPorts.Sorted(); !reflect.DeepEqual(got, []int{443}) {
		t.Errorf("outbound ports = %v, want [443]", got)
	}
	for _, d := range []string{"api.openai.com", "api.anthropic.com", "tork.network"} {
		found := false
		for _, a := range p.AllowedDomains {
			if a == d {
				found = true
			}
		}
		if !found {
			t.Errorf("expected %s in strict allowlist", d)
		}
	}
	if p.MaxConnectionsPerMinute != 20 {
		t.Errorf("rate limit = %d, want 20", p.MaxConnectionsPerMinute)
	}
}

func TestResolveNetwork_Profiles(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowedDomains = []string{"ignored.example"}

	if got := ResolveNetwork(cfg); !reflect.DeepEqual(got, DefaultNetworkPolicy()) {
		t.Errorf("default profile should resolve verbatim, overrides ignored")
	}

	cfg.NetworkPolicy = NetworkStrict
	if got := ResolveNetwork(cfg); !reflect.DeepEqual(got, StrictNetworkPolicy()) {
		t.Errorf("strict profile should resolve verbatim, overrides ignored")
	}
}

func TestResolveNetwork_CustomOverlaysDefault(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NetworkPolicy = NetworkCustom
	cfg.MaxConnectionsPerMinute = intPtr(3)
	cfg.BlockedDomains = []string{"evil.com"}

	p := ResolveNetwork(cfg)
	def := DefaultNetworkPolicy()

	if p.Profile != NetworkCustom {
		t.Errorf("profile = %s, want custom", p.Profile)
	}
	if p.MaxConnectionsPerMinute != 3 {
		t.Errorf("rate limit = %d, want 3", p.MaxConnectionsPerMinute)
	}
	if !reflect.DeepEqual(p.BlockedDomains, []string{"evil.com"}) {
		t.Errorf("blocked domains = %v", p.BlockedDomains)
	}
	// Everything not supplied keeps the default value, never strict's.
	if !reflect.DeepEqual(p.AllowedInboundPorts, def.AllowedInboundPorts) {
		t.Error("inbound ports should come from the default profile")
	}
	if !reflect.DeepEqual(p.AllowedOutboundPorts, def.AllowedOutboundPorts) {
		t.Error("outbound ports should come from the default profile")
	}
	if len(p.AllowedDomains) != 0 {
		t.Errorf("custom must not inherit strict's allowlist, got %v", p.AllowedDomains)
	}
}

func TestResolveNetwork_CustomEmptyListIsSupplied(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NetworkPolicy = NetworkCustom
	cfg.AllowedOutboundPorts = PortList{}

	p := ResolveNetwork(cfg)
	if len(p.AllowedOutboundPorts) != 0 {
		t.Errorf("an explicitly empty list must replace the default, got %v", p.AllowedOutboundPorts.Sorted())
	}
}

func TestResolveTool(t *testing.T) {
	cfg := DefaultConfig()
	tp := ResolveTool(cfg)
	if tp.Mode != ToolModeStandard {
		t.Errorf("mode = %s, want standard", tp.Mode)
	}
	if tp.BlockShellCommands[0] != "rm -rf" {
		t.Errorf("expected rm -rf first, got %v", tp.BlockShellCommands)
	}

	tp.BlockedPaths[0] = "mutated"
	if cfg.BlockedPaths[0] == "mutated" {
		t.Error("ResolveTool must copy slices")
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("api_key: tork_test_123\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.APIKey != "tork_test_123" {
		t.Errorf("api key = %q", cfg.APIKey)
	}
	if cfg.Policy != ToolModeStandard || cfg.NetworkPolicy != NetworkDefault {
		t.Errorf("unexpected modes: %s / %s", cfg.Policy, cfg.NetworkPolicy)
	}
	if !cfg.RedactPII {
		t.Error("redact_pii should default to true")
	}
	if cfg.BaseURL != DefaultBaseURL {
		t.Errorf("base url = %q", cfg.BaseURL)
	}
	if len(cfg.AllowedPaths) != 0 {
		t.Errorf("allowed paths should default empty, got %v", cfg.AllowedPaths)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config: %v", err)
	}
}

func TestParse_Overrides(t *testing.T) {
	doc := `
api_key: key
policy: strict
network_policy: custom
max_connections_per_minute: 10
allowed_domains: [api.openai.com]
allowed_inbound_ports: [3000, "8000-8002"]
`
	cfg, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Policy != ToolModeStrict {
		t.Errorf("policy = %s", cfg.Policy)
	}
	if cfg.MaxConnectionsPerMinute == nil || *cfg.MaxConnectionsPerMinute != 10 {
		t.Errorf("max connections = %v", cfg.MaxConnectionsPerMinute)
	}
	if !reflect.DeepEqual([]int(cfg.AllowedInboundPorts), []int{3000, 8000, 8001, 8002}) {
		t.Errorf("inbound ports = %v", cfg.AllowedInboundPorts)
	}
	if cfg.AllowedOutboundPorts != nil {
		t.Errorf("outbound ports were not supplied and must stay nil, got %v", cfg.AllowedOutboundPorts)
	}
}

func TestParse_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown tool policy", "policy: paranoid\n"},
		{"unknown network profile", "network_policy: open\n"},
		{"empty api key", "api_key: \"\"\n"},
		{"unknown field", "allowed_ports: [80]\n"},
		{"port out of range", "allowed_inbound_ports: [70000]\n"},
		{"timeout too long", "timeout_seconds: 60\n"},
		{"domain with scheme", "allowed_domains: [\"https://evil.com\"]\n"},
	}

	for _, tt := range tests {
		_, err := Parse([]byte(tt.doc))
		if err == nil {
			t.Errorf("%s: expected error", tt.name)
			continue
		}
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("%s: expected *ValidationError, got %T: %v", tt.name, err, err)
		}
	}
}

func TestParse_InvalidRange(t *testing.T) {
	if _, err := Parse([]byte("allowed_inbound_ports: [\"4000-3000\"]\n")); err == nil {
		t.Error("expected reversed range to be rejected")
	}
}

func TestValidate_RequiresAPIKey(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.Validate()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if verr.Problems[0] != "api_key is required" {
		t.Errorf("problems = %v", verr.Problems)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Error("expected DefaultConfig for a missing file")
	}
}

func TestMarshal_RoundTrip(t *testing.T) {
	cfg, err := Preset("enterprise")
	if err != nil {
		t.Fatal(err)
	}
	cfg.APIKey = "secret"
	cfg.AllowedInboundPorts = PortList{3000, 3001, 3002, 9000}

	data, err := Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
	back, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v\n%s", err, data)
	}
	if back.APIKey != "" {
		t.Error("Marshal must not write the API key")
	}
	if back.Policy != ToolModeStrict || back.NetworkPolicy != NetworkStrict {
		t.Errorf("modes lost in round trip: %s / %s", back.Policy, back.NetworkPolicy)
	}
	if !reflect.DeepEqual([]int(back.AllowedInboundPorts), []int{3000, 3001, 3002, 9000}) {
		t.Errorf("ports = %v", back.AllowedInboundPorts)
	}
	if back.MaxConnectionsPerMinute == nil || *back.MaxConnectionsPerMinute != 20 {
		t.Errorf("max connections lost in round trip")
	}
}

func TestPresets(t *testing.T) {
	dev, _ := Preset("development")
	if dev.Policy != ToolModeMinimal || dev.NetworkPolicy != NetworkDefault {
		t.Errorf("development preset = %s/%s", dev.Policy, dev.NetworkPolicy)
	}

	prod, _ := Preset("production")
	blocked := map[string]bool{}
	for _, d := range prod.BlockedDomains {
		blocked[d] = true
	}
	for _, d := range []string{"pastebin.com", "ngrok.io", "webhook.site"} {
		if !blocked[d] {
			t.Errorf("production preset should block %s", d)
		}
	}

	ent, _ := Preset("enterprise")
	if ent.Policy != ToolModeStrict || ent.NetworkPolicy != NetworkStrict {
		t.Errorf("enterprise preset = %s/%s", ent.Policy, ent.NetworkPolicy)
	}

	if _, err := Preset("nope"); err == nil {
		t.Error("expected unknown preset error")
	}
}

func TestPortSet_Ranges(t *testing.T) {
	tests := []struct {
		set  PortSet
		want string
	}{
		{NewPortSet(), ""},
		{NewPortSet(443), "443"},
		{NewPortSet(80, 443, 8080), "80,443,8080"},
		{PortRange(3000, 3999).Union(PortRange(8000, 8999)), "3000-3999,8000-8999"},
		{NewPortSet(1, 2, 3, 5), "1-3,5"},
	}
	for _, tt := range tests {
		if got := strings.Join(tt.set.Ranges(), ","); got != tt.want {
			t.Errorf("Ranges() = %q, want %q", got, tt.want)
		}
	}

	data, err := json.Marshal(NewPortSet(22, 23))
	if err != nil || string(data) != `["22-23"]` {
		t.Errorf("MarshalJSON = %s (%v)", data, err)
	}
}

func TestPortRange_Inverted(t *testing.T) {
	if s := PortRange(4000, 3000); len(s) != 0 {
		t.Errorf("PortRange(4000, 3000) = %v, want empty", s.Sorted())
	}
	if s := PortRange(3000, 3000); !s.Contains(3000) || len(s) != 1 {
		t.Errorf("PortRange(3000, 3000) = %v", s.Sorted())
	}
}
