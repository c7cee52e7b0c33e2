package interceptor

import (
	"strings"
	"testing"

	"github.com/torkjacobs/tork-guardian/internal/policy"
)

func toolPolicy(mode policy.ToolMode) policy.ToolPolicy {
	cfg := policy.DefaultConfig()
	cfg.Policy = mode
	return policy.ResolveTool(cfg)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		want ToolClass
	}{
		{"bash", ClassShell},
		{"Run_Command", ClassShell},
		{"write_file", ClassFile},
		{"list_files", ClassFile},
		{"web_fetch", ClassNetwork},
		{"curl", ClassNetwork},
		{"search_docs", ClassUnknown},
	}
	for _, tt := range tests {
		if got := Classify(tt.name); got != tt.want {
			t.Errorf("Classify(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestGovernToolCall_Shell(t *testing.T) {
	standard := toolPolicy(policy.ToolModeStandard)
	strict := toolPolicy(policy.ToolModeStrict)

	call := ToolCall{Name: "shell_execute", Args: map[string]any{"command": "ls -la /tmp"}}
	if d := GovernToolCall(call, standard); !d.Allowed {
		t.Errorf("standard: got %+v", d)
	}
	if d := GovernToolCall(call, strict); d.Allowed || !strings.Contains(d.Reason, "Strict policy") {
		t.Errorf("strict: got %+v", d)
	}

	tests := []struct {
		args    map[string]any
		pattern string
	}{
		{map[string]any{"command": "rm -rf /"}, "rm -rf"},
		{map[string]any{"cmd": "sudo shutdown -h now"}, "shutdown"},
		{map[string]any{"script": "dd if=/dev/zero of=/dev/sda"}, "dd if="},
		{map[string]any{"command": []any{"chmod", "777", "/srv"}}, "chmod 777"},
	}
	for _, tt := range tests {
		d := GovernToolCall(ToolCall{Name: "bash", Args: tt.args}, standard)
		if d.Allowed || !strings.Contains(d.Reason, tt.pattern) {
			t.Errorf("args %v: got %+v, want denial naming %q", tt.args, d, tt.pattern)
		}
	}
}

func TestGovernToolCall_ShellFirstPatternWins(t *testing.T) {
	tp := policy.ToolPolicy{Mode: policy.ToolModeStandard, BlockShellCommands: []string{"reboot", "rm -rf"}}
	d := GovernToolCall(ToolCall{Name: "bash", Args: map[string]any{"command": "rm -rf / && reboot"}}, tp)
	if d.Reason != "Shell command contains blocked pattern: reboot" {
		t.Errorf("reason = %q", d.Reason)
	}

	// Case-sensitive.
	d = GovernToolCall(ToolCall{Name: "bash", Args: map[string]any{"command": "RM -RF /"}}, tp)
	if !d.Allowed {
		t.Errorf("expected case-sensitive match, got %+v", d)
	}

	// Plain substring: incidental text still matches.
	d = GovernToolCall(ToolCall{Name: "bash", Args: map[string]any{"command": `cat "notes about rm -rf.txt"`}}, tp)
	if d.Allowed {
		t.Errorf("expected substring match inside quoted argument, got %+v", d)
	}
}

func TestGovernToolCall_BlockedPaths(t *testing.T) {
	tp := toolPolicy(policy.ToolModeStandard)

	tests := []struct {
		path  string
		entry string
	}{
		{".env", ".env"},
		{"/app/config/.env.local", ".env"},
		{"~/.ssh/id_rsa", ".ssh"},
		{"/etc/passwd", "/etc/passwd"},
		{"/tmp/../etc/shadow", "/etc/shadow"},
		{"/home/u/.aws/credentials", ".aws/credentials"},
	}
	for _, tt := range tests {
		d := GovernToolCall(ToolCall{Name: "read_file", Args: map[string]any{"path": tt.path}}, tp)
		if d.Allowed || !strings.Contains(d.Reason, tt.entry) {
			t.Errorf("path %q: got %+v, want denial naming %q", tt.path, d, tt.entry)
		}
	}

	if d := GovernToolCall(ToolCall{Name: "write_file", Args: map[string]any{"file_path": "/srv/app/main.go"}}, tp); !d.Allowed {
		t.Errorf("unrestricted path denied: %+v", d)
	}
}

func TestGovernToolCall_AllowedPaths(t *testing.T) {
	tp := toolPolicy(policy.ToolModeStandard)
	tp.AllowedPaths = []string{"/workspace", "/data/"}

	tests := []struct {
		path    string
		allowed bool
	}{
		{"/workspace", true},
		{"/workspace/src/main.go", true},
		{"/data/in.csv", true},
		{"/database/dump.sql", false},
		{"/workspace-other/x", false},
		{"/workspace/../etc/hosts", false},
		{"/tmp/x", false},
	}
	for _, tt := range tests {
		d := GovernToolCall(ToolCall{Name: "file_read", Args: map[string]any{"filename": tt.path}}, tp)
		if d.Allowed != tt.allowed {
			t.Errorf("path %q: got %+v, want allowed=%v", tt.path, d, tt.allowed)
		}
		if !tt.allowed && !strings.Contains(d.Reason, "not in the allowed paths") {
			t.Errorf("path %q: reason = %q", tt.path, d.Reason)
		}
	}
}

func TestGovernToolCall_NetworkAndUnknown(t *testing.T) {
	call := ToolCall{Name: "http_request", Args: map[string]any{"url": "https://example.com"}}
	if d := GovernToolCall(call, toolPolicy(policy.ToolModeStandard)); !d.Allowed {
		t.Errorf("standard network: got %+v", d)
	}
	if d := GovernToolCall(call, toolPolicy(policy.ToolModeStrict)); d.Allowed || !strings.Contains(d.Reason, "Strict policy") {
		t.Errorf("strict network: got %+v", d)
	}

	unknown := ToolCall{Name: "launch_missiles", Args: map[string]any{"command": "rm -rf /"}}
	if d := GovernToolCall(unknown, toolPolicy(policy.ToolModeStrict)); !d.Allowed || d.Class != ClassUnknown {
		t.Errorf("unknown tool: got %+v", d)
	}
}

func TestGovernToolCall_MinimalAllowsEverything(t *testing.T) {
	tp := toolPolicy(policy.ToolModeMinimal)
	calls := []ToolCall{
		{Name: "bash", Args: map[string]any{"command": "rm -rf /"}},
		{Name: "read_file", Args: map[string]any{"path": ".env"}},
		{Name: "fetch"},
	}
	for _, c := range calls {
		if d := GovernToolCall(c, tp); !d.Allowed {
			t.Errorf("%s: got %+v", c.Name, d)
		}
	}
}
