package policy

// ResolveNetwork returns the concrete network policy selected by cfg.
//
// "custom" starts from the default profile and replaces only the fields the
// caller supplied. It never inherits from strict: leaving a field out must
// not silently grant strict's domain trust list. Unknown profile names are
// rejected by Validate, so resolution itself cannot fail; anything it does
// not recognize resolves to the default profile.
func ResolveNetwork(cfg *Config) NetworkPolicy {
	switch cfg.NetworkPolicy {
	case NetworkStrict:
		return StrictNetworkPolicy()
	case NetworkCustom:
		return resolveCustom(cfg)
	default:
		return DefaultNetworkPolicy()
	}
}

func resolveCustom(cfg *Config) NetworkPolicy {
	p := DefaultNetworkPolicy()
	p.Profile = NetworkCustom
	if cfg.AllowedInboundPorts != nil {
		p.AllowedInboundPorts = cfg.AllowedInboundPorts.Set()
	}
	if cfg.AllowedOutboundPorts != nil {
		p.AllowedOutboundPorts = cfg.AllowedOutboundPorts.Set()
	}
	if cfg.AllowedDomains != nil {
		p.AllowedDomains = cloneStrings(cfg.AllowedDomains)
	}
	if cfg.BlockedDomains != nil {
		p.BlockedDomains = cloneStrings(cfg.BlockedDomains)
	}
	if cfg.MaxConnectionsPerMinute != nil {
		p.MaxConnectionsPerMinute = *cfg.MaxConnectionsPerMinute
	}
	return p
}

// ResolveTool returns the tool-call policy carried by cfg.
func ResolveTool(cfg *Config) ToolPolicy {
	mode := cfg.Policy
	if mode == "" {
		mode = ToolModeStandard
	}
	return ToolPolicy{
		Mode:               mode,
		BlockShellCommands: cloneStrings(cfg.BlockShellCommands),
		AllowedPaths:       cloneStrings(cfg.AllowedPaths),
		BlockedPaths:       cloneStrings(cfg.BlockedPaths),
	}
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
