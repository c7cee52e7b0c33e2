// Package netaccess decides whether a skill may bind a port, open an
// outbound connection or resolve a hostname.
//
// Each decision runs its checks in a fixed order and stops at the first
// failing one. Allowed operations update the monitor; denials are always
// recorded in the activity log.
package netaccess

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/torkjacobs/tork-guardian/internal/monitor"
	"github.com/torkjacobs/tork-guardian/internal/policy"
	"github.com/torkjacobs/tork-guardian/internal/threat"
)

type Action string

const (
	ActionPortBind Action = "port_bind"
	ActionEgress   Action = "egress"
	ActionDNS      Action = "dns"
)

const privilegedPortLimit = 1024

type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

type ActivityEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	SkillID   string    `json:"skill_id"`
	Action    Action    `json:"action"`
	Allowed   bool      `json:"allowed"`
	Reason    string    `json:"reason"`
}

// ActivitySink receives a copy of every activity log entry.
type ActivitySink interface {
	Record(entry ActivityEntry) error
}

// ThreatReporter accepts threat reports without blocking.
type ThreatReporter interface {
	Report(skillID string, kind threat.Type, detail string) bool
}

// Handler is safe for concurrent use. A single mutex serializes decisions
// so that checking and updating the port and connection registries is
// atomic with respect to other skills.
type Handler struct {
	mu       sync.Mutex
	policy   policy.NetworkPolicy
	monitor  *monitor.Monitor
	threats  ThreatReporter
	sinks    []ActivitySink
	logger   *slog.Logger
	now      func() time.Time
	activity []ActivityEntry
}

type Option func(*Handler)

// WithMonitor shares an existing monitor. By default each handler owns a
// fresh one.
func WithMonitor(m *monitor.Monitor) Option {
	return func(h *Handler) {
		if m != nil {
			h.monitor = m
		}
	}
}

func WithThreatReporter(r ThreatReporter) Option {
	return func(h *Handler) { h.threats = r }
}

func WithSinks(sinks ...ActivitySink) Option {
	return func(h *Handler) { h.sinks = append(h.sinks, sinks...) }
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

func NewHandler(np policy.NetworkPolicy, opts ...Option) *Handler {
	h := &Handler{
		policy: np,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.monitor == nil {
		h.monitor = monitor.New(monitor.WithClock(h.now))
	}
	return h
}

func (h *Handler) Policy() policy.NetworkPolicy { return h.policy }

func (h *Handler) Monitor() *monitor.Monitor { return h.monitor }

func (h *Handler) ValidatePortBind(skillID string, port int, protocol monitor.Protocol) Decision {
	if protocol == "" {
		protocol = monitor.TCP
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.policy.BlockPrivilegedPorts && port < privilegedPortLimit {
		return h.deny(skillID, ActionPortBind, fmt.Sprintf("Privileged port %d is blocked (< %d)", port, privilegedPortLimit))
	}

	if !h.policy.AllowedInboundPorts.Contains(port) {
		return h.deny(skillID, ActionPortBind, fmt.Sprintf("Port %d is not in the inbound allowlist", port))
	}

	if h.policy.DetectPortHijacking {
		if owner, ok := h.monitor.PortOwner(port); ok && owner.SkillID != skillID {
			msg := fmt.Sprintf("Port hijacking detected: port %d is owned by skill %q, attempted by %q", port, owner.SkillID, skillID)
			h.reportThreat(skillID, threat.PortHijacking, msg)
			return h.deny(skillID, ActionPortBind, msg)
		}
	}

	h.monitor.RegisterPort(port, protocol, skillID)
	return h.allow(skillID, ActionPortBind, fmt.Sprintf("Port %d/%s bound", port, protocol))
}

func (h *Handler) ValidateEgress(skillID, host string, port int) Decision {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.policy.BlockPrivateNetworks && isPrivateNetwork(host) {
		return h.deny(skillID, ActionEgress, fmt.Sprintf("Private network access blocked: %s", host))
	}

	if !h.policy.AllowedOutboundPorts.Contains(port) {
		return h.deny(skillID, ActionEgress, fmt.Sprintf("Outbound port %d is not allowed", port))
	}

	if matchesDomain(host, h.policy.BlockedDomains) {
		return h.deny(skillID, ActionEgress, fmt.Sprintf("Domain %q is blocked", host))
	}

	if len(h.policy.AllowedDomains) > 0 && !matchesDomain(host, h.policy.AllowedDomains) {
		return h.deny(skillID, ActionEgress, fmt.Sprintf("Domain %q is not in the allowlist", host))
	}

	if h.policy.DetectReverseShells && h.monitor.CheckRecentShellActivity(skillID).Suspicious {
		msg := fmt.Sprintf("Reverse shell pattern detected for skill %q during egress to %s:%d", skillID, host, port)
		h.reportThreat(skillID, threat.ReverseShell, msg)
		return h.deny(skillID, ActionEgress, msg)
	}

	limit := h.policy.MaxConnectionsPerMinute
	if rate := h.monitor.ConnectionsPerMinute(skillID); rate >= limit {
		return h.deny(skillID, ActionEgress, fmt.Sprintf("Rate limit exceeded: %d/%d connections/min", rate, limit))
	}

	h.monitor.RecordConnection(host, port, skillID)
	return h.allow(skillID, ActionEgress, fmt.Sprintf("Egress to %s:%d allowed", host, port))
}

func (h *Handler) ValidateDNS(skillID, hostname string) Decision {
	h.mu.Lock()
	defer h.mu.Unlock()

	if isRawIP(hostname) {
		msg := fmt.Sprintf("Raw IP address %q used instead of hostname, potential SSRF or C2 channel", hostname)
		h.reportThreat(skillID, threat.RawIPUsage, msg)
		return h.deny(skillID, ActionDNS, msg)
	}

	if matchesDomain(hostname, h.policy.BlockedDomains) {
		return h.deny(skillID, ActionDNS, fmt.Sprintf("DNS lookup for blocked domain: %s", hostname))
	}

	if len(h.policy.AllowedDomains) > 0 && !matchesDomain(hostname, h.policy.AllowedDomains) {
		return h.deny(skillID, ActionDNS, fmt.Sprintf("DNS lookup for domain not in allowlist: %s", hostname))
	}

	return h.allow(skillID, ActionDNS, fmt.Sprintf("DNS lookup for %s allowed", hostname))
}

// ActivityLog returns a copy of the entries recorded so far, oldest first.
func (h *Handler) ActivityLog() []ActivityEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]ActivityEntry, len(h.activity))
	copy(out, h.activity)
	return out
}

// ClearActivityLog empties the in-memory log. Monitor state and sinks are
// left untouched.
func (h *Handler) ClearActivityLog() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.activity = nil
}

func (h *Handler) allow(skillID string, action Action, reason string) Decision {
	if h.policy.LogAllActivity {
		h.record(skillID, action, true, reason)
	}
	h.logger.Debug("network access allowed", "skill", skillID, "action", action, "reason", reason)
	return Decision{Allowed: true, Reason: reason}
}

func (h *Handler) deny(skillID string, action Action, reason string) Decision {
	h.record(skillID, action, false, reason)
	h.logger.Info("network access denied", "skill", skillID, "action", action, "reason", reason)
	return Decision{Allowed: false, Reason: reason}
}

func (h *Handler) record(skillID string, action Action, allowed bool, reason string) {
	entry := ActivityEntry{
		ID:        uuid.NewString(),
		Timestamp: h.now().UTC(),
		SkillID:   skillID,
		Action:    action,
		Allowed:   allowed,
		Reason:    reason,
	}
	h.activity = append(h.activity, entry)
	for _, s := range h.sinks {
		if err := s.Record(entry); err != nil {
			h.logger.Warn("activity sink failed", "error", err, "action", action)
		}
	}
}

func (h *Handler) reportThreat(skillID string, kind threat.Type, detail string) {
	if h.threats == nil {
		return
	}
	h.threats.Report(skillID, kind, detail)
}

// ValidatePortBind evaluates a single bind against cfg with fresh state.
func ValidatePortBind(cfg *policy.Config, skillID string, port int, protocol monitor.Protocol) Decision {
	return NewHandler(policy.ResolveNetwork(cfg)).ValidatePortBind(skillID, port, protocol)
}

// ValidateEgress evaluates a single connection against cfg with fresh state.
func ValidateEgress(cfg *policy.Config, skillID, host string, port int) Decision {
	return NewHandler(policy.ResolveNetwork(cfg)).ValidateEgress(skillID, host, port)
}

// ValidateDNS evaluates a single lookup against cfg.
func ValidateDNS(cfg *policy.Config, skillID, hostname string) Decision {
	return NewHandler(policy.ResolveNetwork(cfg)).ValidateDNS(skillID, hostname)
}
