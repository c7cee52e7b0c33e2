// Package guardian is the single entry point a host runtime calls before
// letting a skill touch the network, run a tool or talk to a model.
//
// A Guardian owns all of its state: the port registry, connection window,
// shell history and activity log live in the instance, so several
// guardians in one process never interfere.
package guardian

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/torkjacobs/tork-guardian/internal/client"
	"github.com/torkjacobs/tork-guardian/internal/interceptor"
	"github.com/torkjacobs/tork-guardian/internal/monitor"
	"github.com/torkjacobs/tork-guardian/internal/netaccess"
	"github.com/torkjacobs/tork-guardian/internal/policy"
	"github.com/torkjacobs/tork-guardian/internal/threat"
)

// Governor submits content to the governance service. *client.Client
// satisfies it.
type Governor interface {
	Govern(ctx context.Context, content string, opts *client.Options) client.GovernResponse
}

type Guardian struct {
	cfg      *policy.Config
	tools    policy.ToolPolicy
	governor Governor
	threats  *threat.Reporter
	network  *netaccess.Handler
	monitor  *monitor.Monitor
	logger   *slog.Logger
}

type options struct {
	logger       *slog.Logger
	governor     Governor
	httpClient   *http.Client
	sinks        []netaccess.ActivitySink
	clock        func() time.Time
	startupPorts []int
	threatQueue  int
}

type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithGovernor replaces the HTTP governance client.
func WithGovernor(g Governor) Option {
	return func(o *options) { o.governor = g }
}

// WithHTTPClient sets the transport used by the default governance client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithActivitySinks forwards every activity entry to sinks as well as the
// in-memory log.
func WithActivitySinks(sinks ...netaccess.ActivitySink) Option {
	return func(o *options) { o.sinks = append(o.sinks, sinks...) }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// WithStartupPorts records ports already bound when the host started, so
// the network report can tell them apart from ports opened later.
func WithStartupPorts(ports ...int) Option {
	return func(o *options) { o.startupPorts = append(o.startupPorts, ports...) }
}

func WithThreatQueueSize(n int) Option {
	return func(o *options) { o.threatQueue = n }
}

// New builds a Guardian for cfg. cfg should already have passed
// policy.Parse or Validate; New does not re-check it.
func New(cfg *policy.Config, opts ...Option) *Guardian {
	o := options{logger: slog.Default(), clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg == nil {
		cfg = policy.DefaultConfig()
	}

	governor := o.governor
	if governor == nil {
		copts := []client.Option{
			client.WithBaseURL(cfg.BaseURL),
			client.WithLogger(o.logger),
		}
		if o.httpClient != nil {
			copts = append(copts, client.WithHTTPClient(o.httpClient))
		} else {
			copts = append(copts, client.WithTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second))
		}
		governor = client.New(cfg.APIKey, copts...)
	}

	mon := monitor.New(monitor.WithClock(o.clock))
	if len(o.startupPorts) > 0 {
		mon.SnapshotStartupPorts(o.startupPorts)
	}

	reporter := threat.NewReporter(governor,
		threat.WithLogger(o.logger),
		threat.WithQueueSize(o.threatQueue),
	)

	handler := netaccess.NewHandler(policy.ResolveNetwork(cfg),
		netaccess.WithMonitor(mon),
		netaccess.WithThreatReporter(reporter),
		netaccess.WithSinks(o.sinks...),
		netaccess.WithLogger(o.logger),
		netaccess.WithClock(o.clock),
	)

	return &Guardian{
		cfg:      cfg,
		tools:    policy.ResolveTool(cfg),
		governor: governor,
		threats:  reporter,
		network:  handler,
		monitor:  mon,
		logger:   o.logger,
	}
}

func (g *Guardian) Config() *policy.Config { return g.cfg }

func (g *Guardian) NetworkPolicy() policy.NetworkPolicy { return g.network.Policy() }

func (g *Guardian) ToolPolicy() policy.ToolPolicy { return g.tools }

func (g *Guardian) ValidatePortBind(skillID string, port int, protocol monitor.Protocol) netaccess.Decision {
	return g.network.ValidatePortBind(skillID, port, protocol)
}

func (g *Guardian) ValidateEgress(skillID, host string, port int) netaccess.Decision {
	return g.network.ValidateEgress(skillID, host, port)
}

func (g *Guardian) ValidateDNS(skillID, hostname string) netaccess.Decision {
	return g.network.ValidateDNS(skillID, hostname)
}

// ReleasePort forgets the binding for port, typically when the owning
// skill shuts its listener down.
func (g *Guardian) ReleasePort(port int) {
	g.monitor.UnregisterPort(port)
}

// GovernTool decides on a tool call. An allowed shell call that names its
// skill is remembered for reverse-shell correlation on later egress.
func (g *Guardian) GovernTool(call interceptor.ToolCall) interceptor.ToolDecision {
	d := interceptor.GovernToolCall(call, g.tools)
	if !d.Allowed {
		g.logger.Info("tool call denied", "skill", call.SkillID, "tool", call.Name, "reason", d.Reason)
		return d
	}
	if d.Class == interceptor.ClassShell && call.SkillID != "" {
		if cmd := call.Command(); cmd != "" {
			g.monitor.RecordShellCommand(cmd, call.SkillID)
		}
	}
	return d
}

// RecordShellCommand notes a command a skill ran outside GovernTool.
// Arguments follow monitor.RecordShellCommand.
func (g *Guardian) RecordShellCommand(command, skillID string) {
	g.monitor.RecordShellCommand(command, skillID)
}

// GovernLLM runs every message of req through content governance.
func (g *Guardian) GovernLLM(ctx context.Context, req interceptor.LLMRequest) (interceptor.GovernedRequest, error) {
	out, err := interceptor.GovernLLMRequest(ctx, g.governor, req, g.cfg)
	if err != nil {
		g.logger.Info("llm request denied by governance", "error", err)
	}
	return out, err
}

// RedactPII asks the governance service to mask PII in text. It is an
// explicit request, so it ignores Config.RedactPII, which only steers LLM
// traffic. If the service is unavailable the text comes back unchanged and
// the response reports FailedOpen.
func (g *Guardian) RedactPII(ctx context.Context, text string) client.GovernResponse {
	return g.governor.Govern(ctx, text, &client.Options{Mode: "redact"})
}

// GenerateReceipt governs content and returns the full verdict. The
// compliance receipt, when issued, is in Receipt; callers must still check
// Action, since the service can deny content and receipt it in one reply.
func (g *Guardian) GenerateReceipt(ctx context.Context, content string) client.GovernResponse {
	return g.governor.Govern(ctx, content, nil)
}

func (g *Guardian) ActivityLog() []netaccess.ActivityEntry {
	return g.network.ActivityLog()
}

func (g *Guardian) ClearActivityLog() {
	g.network.ClearActivityLog()
}

// NetworkReport summarises current monitor state.
func (g *Guardian) NetworkReport() monitor.Report {
	return g.monitor.Report()
}

// SnapshotStartupPorts records ports that were open before any skill ran.
// Ports bound after the snapshot are reported as anomalies.
func (g *Guardian) SnapshotStartupPorts(ports []int) {
	g.monitor.SnapshotStartupPorts(ports)
}

// ResetNetworkState drops port owners, connection history and shell
// history. The activity log is kept.
func (g *Guardian) ResetNetworkState() {
	g.monitor.Reset()
}

// Close flushes pending threat reports.
func (g *Guardian) Close() {
	g.threats.Close()
}
