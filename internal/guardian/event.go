package guardian

import (
	"errors"
	"fmt"

	"github.com/torkjacobs/tork-guardian/internal/interceptor"
	"github.com/torkjacobs/tork-guardian/internal/monitor"
)

type EventType string

const (
	EventPortBind EventType = "port_bind"
	EventEgress   EventType = "egress"
	EventDNS      EventType = "dns"
	EventTool     EventType = "tool"
	EventShell    EventType = "shell"
)

// Event is one policy-relevant operation reported by a host, in the shape
// the hook command and the decision server accept.
type Event struct {
	Type     EventType        `json:"type"`
	SkillID  string           `json:"skill_id"`
	Port     int              `json:"port,omitempty"`
	Protocol monitor.Protocol `json:"protocol,omitempty"`
	Host     string           `json:"host,omitempty"`
	Tool     string           `json:"tool,omitempty"`
	Args     map[string]any   `json:"args,omitempty"`
	Command  string           `json:"command,omitempty"`
}

type Verdict struct {
	Type    EventType `json:"type"`
	Allowed bool      `json:"allowed"`
	Reason  string    `json:"reason,omitempty"`
}

var ErrInvalidEvent = errors.New("invalid event")

// shellTool is the tool name shell events are governed as.
const shellTool = "shell_execute"

// Decide routes ev to the matching decision. Malformed events return an
// error wrapping ErrInvalidEvent and change no state.
func (g *Guardian) Decide(ev Event) (Verdict, error) {
	if err := ev.validate(); err != nil {
		return Verdict{}, err
	}

	v := Verdict{Type: ev.Type}
	switch ev.Type {
	case EventPortBind:
		d := g.ValidatePortBind(ev.SkillID, ev.Port, ev.Protocol)
		v.Allowed, v.Reason = d.Allowed, d.Reason
	case EventEgress:
		d := g.ValidateEgress(ev.SkillID, ev.Host, ev.Port)
		v.Allowed, v.Reason = d.Allowed, d.Reason
	case EventDNS:
		d := g.ValidateDNS(ev.SkillID, ev.Host)
		v.Allowed, v.Reason = d.Allowed, d.Reason
	case EventTool:
		d := g.GovernTool(interceptor.ToolCall{Name: ev.Tool, Args: ev.Args, SkillID: ev.SkillID})
		v.Allowed, v.Reason = d.Allowed, d.Reason
	case EventShell:
		d := g.GovernTool(interceptor.ToolCall{
			Name:    shellTool,
			Args:    map[string]any{"command": ev.Command},
			SkillID: ev.SkillID,
		})
		v.Allowed, v.Reason = d.Allowed, d.Reason
	}
	return v, nil
}

func (ev Event) validate() error {
	switch ev.Type {
	case EventPortBind:
		if ev.Port < 1 || ev.Port > 65535 {
			return fmt.Errorf("%w: port %d out of range", ErrInvalidEvent, ev.Port)
		}
		if ev.Protocol != "" && ev.Protocol != monitor.TCP && ev.Protocol != monitor.UDP {
			return fmt.Errorf("%w: unknown protocol %q", ErrInvalidEvent, ev.Protocol)
		}
	case EventEgress:
		if ev.Host == "" {
			return fmt.Errorf("%w: egress requires host", ErrInvalidEvent)
		}
		if ev.Port < 1 || ev.Port > 65535 {
			return fmt.Errorf("%w: port %d out of range", ErrInvalidEvent, ev.Port)
		}
	case EventDNS:
		if ev.Host == "" {
			return fmt.Errorf("%w: dns requires host", ErrInvalidEvent)
		}
	case EventTool:
		if ev.Tool == "" {
			return fmt.Errorf("%w: tool requires tool name", ErrInvalidEvent)
		}
	case EventShell:
		if ev.Command == "" {
			return fmt.Errorf("%w: shell requires command", ErrInvalidEvent)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, ev.Type)
	}
	return nil
}
