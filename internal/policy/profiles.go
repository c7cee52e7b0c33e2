package policy

const (
	DefaultBaseURL        = "https://tork.network"
	DefaultTimeoutSeconds = 5
	MaxTimeoutSeconds     = 10
)

// DefaultNetworkPolicy is the built-in "default" profile: two inbound
// development ranges, plain web egress, no domain lists, every detection on.
func DefaultNetworkPolicy() NetworkPolicy {
	return NetworkPolicy{
		Profile:                 NetworkDefault,
		AllowedInboundPorts:     PortRange(3000, 3999).Union(PortRange(8000, 8999)),
		AllowedOutboundPorts:    NewPortSet(80, 443, 8080),
		AllowedDomains:          []string{},
		BlockedDomains:          []string{},
		MaxConnectionsPerMinute: 60,
		DetectPortHijacking:     true,
		DetectReverseShells:     true,
		BlockPrivilegedPorts:    true,
		BlockPrivateNetworks:    true,
		LogAllActivity:          true,
	}
}

// StrictNetworkPolicy is the built-in "strict" profile: a narrow inbound
// range, TLS-only egress to an explicit domain allowlist, tight rate limit.
func StrictNetworkPolicy() NetworkPolicy {
	return NetworkPolicy{
		Profile:              NetworkStrict,
		AllowedInboundPorts:  PortRange(3000, 3010),
		AllowedOutboundPorts: NewPortSet(443),
		AllowedDomains: []string{
			"api.openai.com",
			"api.anthropic.com",
			"tork.network",
			"github.com",
			"api.github.com",
			"registry.npmjs.org",
			"pypi.org",
		},
		BlockedDomains:          []string{},
		MaxConnectionsPerMinute: 20,
		DetectPortHijacking:     true,
		DetectReverseShells:     true,
		BlockPrivilegedPorts:    true,
		BlockPrivateNetworks:    true,
		LogAllActivity:          true,
	}
}

// DefaultBlockShellCommands are matched as plain substrings, in order.
func DefaultBlockShellCommands() []string {
	return []string{
		"rm -rf",
		"mkfs",
		"dd if=",
		"chmod 777",
		"shutdown",
		"reboot",
		":(){ :|:& };:",
		"> /dev/sda",
	}
}

func DefaultBlockedPaths() []string {
	return []string{
		".env",
		".ssh",
		"id_rsa",
		"/etc/passwd",
		"/etc/shadow",
		".aws/credentials",
		".gnupg",
	}
}

// DefaultConfig returns a configuration with every default applied and no
// API key.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:            DefaultBaseURL,
		TimeoutSeconds:     DefaultTimeoutSeconds,
		Policy:             ToolModeStandard,
		RedactPII:          true,
		BlockShellCommands: DefaultBlockShellCommands(),
		AllowedPaths:       []string{},
		BlockedPaths:       DefaultBlockedPaths(),
		NetworkPolicy:      NetworkDefault,
	}
}
