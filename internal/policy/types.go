package policy

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ToolMode selects how aggressively tool calls are governed.
type ToolMode string

const (
	ToolModeStrict   ToolMode = "strict"
	ToolModeStandard ToolMode = "standard"
	ToolModeMinimal  ToolMode = "minimal"
)

// NetworkProfile selects which built-in network policy is active.
type NetworkProfile string

const (
	NetworkDefault NetworkProfile = "default"
	NetworkStrict  NetworkProfile = "strict"
	NetworkCustom  NetworkProfile = "custom"
)

// Config is the top-level guardian configuration. It is expected to have
// passed Parse/Validate before it reaches any decision component.
//
// The network override fields are only consulted when NetworkPolicy is
// "custom". A nil slice (or nil pointer) means "not supplied".
type Config struct {
	APIKey         string `yaml:"api_key,omitempty"`
	BaseURL        string `yaml:"base_url,omitempty"`
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty"`

	Policy             ToolMode `yaml:"policy"`
	RedactPII          bool     `yaml:"redact_pii"`
	BlockShellCommands []string `yaml:"block_shell_commands"`
	AllowedPaths       []string `yaml:"allowed_paths"`
	BlockedPaths       []string `yaml:"blocked_paths"`

	NetworkPolicy           NetworkProfile `yaml:"network_policy"`
	AllowedInboundPorts     PortList       `yaml:"allowed_inbound_ports,omitempty"`
	AllowedOutboundPorts    PortList       `yaml:"allowed_outbound_ports,omitempty"`
	AllowedDomains          []string       `yaml:"allowed_domains,omitempty"`
	BlockedDomains          []string       `yaml:"blocked_domains,omitempty"`
	MaxConnectionsPerMinute *int           `yaml:"max_connections_per_minute,omitempty"`
}

// NetworkPolicy is the resolved network policy. Treat it as immutable for
// the lifetime of a decision cycle.
type NetworkPolicy struct {
	Profile                 NetworkProfile
	AllowedInboundPorts     PortSet
	AllowedOutboundPorts    PortSet
	AllowedDomains          []string
	BlockedDomains          []string
	MaxConnectionsPerMinute int
	DetectPortHijacking     bool
	DetectReverseShells     bool
	BlockPrivilegedPorts    bool
	BlockPrivateNetworks    bool
	LogAllActivity          bool
}

// ToolPolicy is the resolved tool-call policy.
type ToolPolicy struct {
	Mode               ToolMode
	BlockShellCommands []string
	AllowedPaths       []string
	BlockedPaths       []string
}

// PortSet is a set of TCP/UDP port numbers.
type PortSet map[int]struct{}

// NewPortSet builds a set from the given ports.
func NewPortSet(ports ...int) PortSet {
	s := make(PortSet, len(ports))
	for _, p := range ports {
		s[p] = struct{}{}
	}
	return s
}

// PortRange returns the inclusive range lo..hi as a set. An inverted
// range yields an empty set.
func PortRange(lo, hi int) PortSet {
	if hi < lo {
		return PortSet{}
	}
	s := make(PortSet, hi-lo+1)
	for p := lo; p <= hi; p++ {
		s[p] = struct{}{}
	}
	return s
}

func (s PortSet) Contains(port int) bool {
	_, ok := s[port]
	return ok
}

// Union returns a new set holding the ports of s and other.
func (s PortSet) Union(other PortSet) PortSet {
	out := make(PortSet, len(s)+len(other))
	for p := range s {
		out[p] = struct{}{}
	}
	for p := range other {
		out[p] = struct{}{}
	}
	return out
}

// Sorted returns the ports in ascending order.
func (s PortSet) Sorted() []int {
	out := make([]int, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

// Ranges renders the set as ascending entries, collapsing consecutive
// ports into "lo-hi".
func (s PortSet) Ranges() []string {
	ports := s.Sorted()
	out := []string{}
	for i := 0; i < len(ports); {
		j := i
		for j+1 < len(ports) && ports[j+1] == ports[j]+1 {
			j++
		}
		if i == j {
			out = append(out, strconv.Itoa(ports[i]))
		} else {
			out = append(out, fmt.Sprintf("%d-%d", ports[i], ports[j]))
		}
		i = j + 1
	}
	return out
}

func (s PortSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Ranges())
}

// PortList is the configuration form of a port set. In YAML each entry may
// be a single port or an inclusive "lo-hi" range:
//
//	allowed_inbound_ports: [3000, "8000-8099"]
type PortList []int

func (l *PortList) UnmarshalYAML(node *yaml.Node) error {
	var raw []string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	ports := make([]int, 0, len(raw))
	for _, entry := range raw {
		expanded, err := parsePortEntry(entry)
		if err != nil {
			return err
		}
		ports = append(ports, expanded...)
	}
	*l = ports
	return nil
}

// MarshalYAML collapses consecutive ports back into ranges.
func (l PortList) MarshalYAML() (interface{}, error) {
	sorted := NewPortSet(l...).Sorted()
	var out []interface{}
	for i := 0; i < len(sorted); {
		j := i
		for j+1 < len(sorted) && sorted[j+1] == sorted[j]+1 {
			j++
		}
		if j == i {
			out = append(out, sorted[i])
		} else {
			out = append(out, fmt.Sprintf("%d-%d", sorted[i], sorted[j]))
		}
		i = j + 1
	}
	return out, nil
}

// Set converts the list to a PortSet.
func (l PortList) Set() PortSet {
	return NewPortSet(l...)
}

func parsePortEntry(entry string) ([]int, error) {
	entry = strings.TrimSpace(entry)
	lo, hi, isRange := strings.Cut(entry, "-")
	if !isRange {
		p, err := parsePort(entry)
		if err != nil {
			return nil, err
		}
		return []int{p}, nil
	}
	start, err := parsePort(lo)
	if err != nil {
		return nil, err
	}
	end, err := parsePort(hi)
	if err != nil {
		return nil, err
	}
	if end < start {
		return nil, fmt.Errorf("invalid port range %q: end before start", entry)
	}
	return PortRange(start, end).Sorted(), nil
}

func parsePort(s string) (int, error) {
	p, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	if p < 1 || p > 65535 {
		return 0, fmt.Errorf("port %d out of range 1-65535", p)
	}
	return p, nil
}
