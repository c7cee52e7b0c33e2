package guardian

import (
	"errors"
	"strings"
	"testing"

	"github.com/torkjacobs/tork-guardian/internal/policy"
)

func TestDecide(t *testing.T) {
	g := newTestGuardian(policy.DefaultConfig(), &stubGovernor{})
	defer g.Close()

	tests := []struct {
		name    string
		event   Event
		allowed bool
		reason  string
	}{
		{"bind", Event{Type: EventPortBind, SkillID: "a", Port: 3000}, true, "Port 3000/tcp bound"},
		{"bind privileged", Event{Type: EventPortBind, SkillID: "a", Port: 80}, false, "Privileged port 80"},
		{"egress", Event{Type: EventEgress, SkillID: "a", Host: "api.example.com", Port: 443}, true, "Egress to api.example.com:443 allowed"},
		{"egress private", Event{Type: EventEgress, SkillID: "a", Host: "169.254.169.254", Port: 80}, false, "Private network access blocked"},
		{"dns raw ip", Event{Type: EventDNS, SkillID: "a", Host: "1.2.3.4"}, false, "Raw IP address"},
		{"tool blocked path", Event{Type: EventTool, SkillID: "a", Tool: "read_file", Args: map[string]any{"path": "/etc/passwd"}}, false, "/etc/passwd"},
		{"shell blocked", Event{Type: EventShell, SkillID: "a", Command: "rm -rf /"}, false, "rm -rf"},
		{"shell ok", Event{Type: EventShell, SkillID: "a", Command: "ls"}, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := g.Decide(tt.event)
			if err != nil {
				t.Fatalf("Decide: %v", err)
			}
			if v.Allowed != tt.allowed || !strings.Contains(v.Reason, tt.reason) || v.Type != tt.event.Type {
				t.Errorf("verdict = %+v, want allowed=%v reason~%q", v, tt.allowed, tt.reason)
			}
		})
	}

	if r := g.NetworkReport(); len(r.RecentShellCommands) != 1 || r.RecentShellCommands[0].Command != "ls" {
		t.Errorf("shell history = %+v", r.RecentShellCommands)
	}
}

func TestDecide_InvalidEvents(t *testing.T) {
	g := newTestGuardian(policy.DefaultConfig(), &stubGovernor{})
	defer g.Close()

	events := []Event{
		{Type: "mount"},
		{Type: EventPortBind, Port: 0},
		{Type: EventPortBind, Port: 70000},
		{Type: EventPortBind, Port: 3000, Protocol: "sctp"},
		{Type: EventEgress, Port: 443},
		{Type: EventEgress, Host: "example.com"},
		{Type: EventDNS},
		{Type: EventTool},
		{Type: EventShell},
	}
	for _, ev := range events {
		if _, err := g.Decide(ev); !errors.Is(err, ErrInvalidEvent) {
			t.Errorf("Decide(%+v) err = %v, want ErrInvalidEvent", ev, err)
		}
	}
	if len(g.ActivityLog()) != 0 {
		t.Error("invalid events must not reach the decision engine")
	}
}
