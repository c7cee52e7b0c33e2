// Package monitor tracks the network-relevant state of running skills:
// which skill owns which bound port, a sliding window of outbound
// connections per skill, and a short history of shell commands used to
// correlate egress with reverse-shell setups.
//
// All state is in memory and owned by one Monitor value. Nothing is shared
// between instances.
package monitor

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

const (
	// RateWindow is the trailing interval for connection counting and
	// shell-activity correlation.
	RateWindow = time.Minute

	// Retention bounds how long connection and shell records are kept.
	Retention = 5 * time.Minute

	// highRateThreshold flags a report anomaly across all skills.
	highRateThreshold = 100
)

type Protocol string

const (
	TCP Protocol = "tcp"
	UDP Protocol = "udp"
)

type PortBinding struct {
	Port     int       `json:"port"`
	Protocol Protocol  `json:"protocol"`
	SkillID  string    `json:"skill_id"`
	BoundAt  time.Time `json:"bound_at"`
}

type ConnectionRecord struct {
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	SkillID   string    `json:"skill_id"`
	Timestamp time.Time `json:"timestamp"`
}

type ShellRecord struct {
	Command   string    `json:"command"`
	SkillID   string    `json:"skill_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ShellCheck is the result of CheckRecentShellActivity.
type ShellCheck struct {
	Suspicious bool
	Matches    []string
}

// Report is a point-in-time view of monitor state for compliance output.
type Report struct {
	Timestamp               time.Time          `json:"timestamp"`
	ActivePorts             []PortBinding      `json:"active_ports"`
	RecentConnections       []ConnectionRecord `json:"recent_connections"`
	RecentShellCommands     []ShellRecord      `json:"recent_shell_commands"`
	ConnectionRatePerMinute int                `json:"connection_rate_per_minute"`
	Anomalies               []string           `json:"anomalies"`
}

// Monitor is safe for concurrent use.
type Monitor struct {
	mu           sync.RWMutex
	now          func() time.Time
	startupPorts map[int]struct{}
	ports        map[int]PortBinding
	connections  []ConnectionRecord
	shell        []ShellRecord
	signatures   *SignatureSet
}

type Option func(*Monitor)

// WithClock replaces time.Now, mainly for tests of the sliding window.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithSignatures replaces the built-in reverse-shell signature set.
func WithSignatures(s *SignatureSet) Option {
	return func(m *Monitor) { m.signatures = s }
}

func New(opts ...Option) *Monitor {
	m := &Monitor{
		now:          time.Now,
		startupPorts: make(map[int]struct{}),
		ports:        make(map[int]PortBinding),
		signatures:   DefaultSignatures(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SnapshotStartupPorts records the ports that were already open when the
// host started. Ports bound later show up as report anomalies.
func (m *Monitor) SnapshotStartupPorts(ports []int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.startupPorts = make(map[int]struct{}, len(ports))
	for _, p := range ports {
		m.startupPorts[p] = struct{}{}
	}
}

func (m *Monitor) StartupPorts() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]int, 0, len(m.startupPorts))
	for p := range m.startupPorts {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

// RegisterPort records that skillID holds port. Registering the same port
// for the same skill again keeps the original BoundAt. Hijack detection is
// the caller's job.
func (m *Monitor) RegisterPort(port int, protocol Protocol, skillID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.ports[port]; ok && existing.SkillID == skillID {
		existing.Protocol = protocol
		m.ports[port] = existing
		return
	}
	m.ports[port] = PortBinding{
		Port:     port,
		Protocol: protocol,
		SkillID:  skillID,
		BoundAt:  m.now(),
	}
}

func (m *Monitor) UnregisterPort(port int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.ports, port)
}

// PortOwner returns the current binding for port, if any.
func (m *Monitor) PortOwner(port int) (PortBinding, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.ports[port]
	return b, ok
}

// ActivePorts returns all bindings ordered by port.
func (m *Monitor) ActivePorts() []PortBinding {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activePortsLocked()
}

func (m *Monitor) activePortsLocked() []PortBinding {
	out := make([]PortBinding, 0, len(m.ports))
	for _, b := range m.ports {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Port < out[j].Port })
	return out
}

func (m *Monitor) RecordConnection(host string, port int, skillID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.pruneLocked(now)
	m.connections = append(m.connections, ConnectionRecord{
		Host:      host,
		Port:      port,
		SkillID:   skillID,
		Timestamp: now,
	})
}

// ConnectionsPerMinute counts connections by skillID in the trailing
// RateWindow. An empty skillID counts every skill.
func (m *Monitor) ConnectionsPerMinute(skillID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connectionsPerMinuteLocked(skillID, m.now())
}

func (m *Monitor) connectionsPerMinuteLocked(skillID string, now time.Time) int {
	cutoff := now.Add(-RateWindow)
	n := 0
	for _, c := range m.connections {
		if c.Timestamp.Before(cutoff) {
			continue
		}
		if skillID != "" && c.SkillID != skillID {
			continue
		}
		n++
	}
	return n
}

func (m *Monitor) RecordShellCommand(command, skillID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.pruneLocked(now)
	m.shell = append(m.shell, ShellRecord{
		Command:   command,
		SkillID:   skillID,
		Timestamp: now,
	})
}

// CheckRecentShellActivity reports whether any command skillID issued in
// the trailing RateWindow matches a reverse-shell signature. An empty
// skillID checks every skill. This is a heuristic: it can miss obfuscated
// payloads and flag benign ones.
func (m *Monitor) CheckRecentShellActivity(skillID string) ShellCheck {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.checkShellLocked(skillID, m.now())
}

func (m *Monitor) checkShellLocked(skillID string, now time.Time) ShellCheck {
	cutoff := now.Add(-RateWindow)
	var matches []string
	for _, rec := range m.shell {
		if rec.Timestamp.Before(cutoff) {
			continue
		}
		if skillID != "" && rec.SkillID != skillID {
			continue
		}
		if m.signatures.Match(rec.Command) {
			matches = append(matches, rec.Command)
		}
	}
	return ShellCheck{Suspicious: len(matches) > 0, Matches: matches}
}

// Report prunes expired records and summarizes current state.
func (m *Monitor) Report() Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.pruneLocked(now)

	var anomalies []string
	active := m.activePortsLocked()
	for _, b := range active {
		if _, ok := m.startupPorts[b.Port]; !ok {
			anomalies = append(anomalies, fmt.Sprintf("Port %d opened after startup by skill %s", b.Port, b.SkillID))
		}
	}

	rate := m.connectionsPerMinuteLocked("", now)
	if rate > highRateThreshold {
		anomalies = append(anomalies, fmt.Sprintf("High connection rate: %d connections/min", rate))
	}

	if check := m.checkShellLocked("", now); check.Suspicious {
		anomalies = append(anomalies, fmt.Sprintf("Reverse shell patterns detected: %d suspicious commands", len(check.Matches)))
	}

	conns := make([]ConnectionRecord, len(m.connections))
	copy(conns, m.connections)
	shell := make([]ShellRecord, len(m.shell))
	copy(shell, m.shell)

	return Report{
		Timestamp:               now.UTC(),
		ActivePorts:             active,
		RecentConnections:       conns,
		RecentShellCommands:     shell,
		ConnectionRatePerMinute: rate,
		Anomalies:               anomalies,
	}
}

// Reset drops all tracked state, including the startup snapshot.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.startupPorts = make(map[int]struct{})
	m.ports = make(map[int]PortBinding)
	m.connections = nil
	m.shell = nil
}

func (m *Monitor) pruneLocked(now time.Time) {
	cutoff := now.Add(-Retention)

	conns := m.connections[:0]
	for _, c := range m.connections {
		if c.Timestamp.After(cutoff) {
			conns = append(conns, c)
		}
	}
	m.connections = conns

	shell := m.shell[:0]
	for _, s := range m.shell {
		if s.Timestamp.After(cutoff) {
			shell = append(shell, s)
		}
	}
	m.shell = shell
}
