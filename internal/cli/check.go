package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/torkjacobs/tork-guardian/internal/guardian"
	"github.com/torkjacobs/tork-guardian/internal/monitor"
)

var (
	checkSkill    string
	checkProtocol string
	checkArgs     []string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run a single policy decision",
	Long: `Decide one operation against the configured policy and exit 2 if it is
denied. One-shot checks start from an empty monitor, so port ownership and
rate limits only carry across calls under "torkguard serve".

Examples:
  torkguard check port 3000 --skill my-skill
  torkguard check egress api.github.com 443 --skill my-skill
  torkguard check dns 169.254.169.254
  torkguard check tool read_file --arg path=/etc/passwd`,
}

var checkPortCmd = &cobra.Command{
	Use:   "port <port>",
	Short: "Check a port bind",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		port, err := parsePortArg(args[0])
		if err != nil {
			return err
		}
		return runCheck(cmd, guardian.Event{
			Type:     guardian.EventPortBind,
			SkillID:  checkSkill,
			Port:     port,
			Protocol: monitor.Protocol(strings.ToLower(checkProtocol)),
		})
	},
}

var checkEgressCmd = &cobra.Command{
	Use:   "egress <host> <port>",
	Short: "Check an outbound connection",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		port, err := parsePortArg(args[1])
		if err != nil {
			return err
		}
		return runCheck(cmd, guardian.Event{
			Type:    guardian.EventEgress,
			SkillID: checkSkill,
			Host:    args[0],
			Port:    port,
		})
	},
}

var checkDNSCmd = &cobra.Command{
	Use:   "dns <hostname>",
	Short: "Check a DNS lookup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheck(cmd, guardian.Event{
			Type:    guardian.EventDNS,
			SkillID: checkSkill,
			Host:    args[0],
		})
	},
}

var checkToolCmd = &cobra.Command{
	Use:   "tool <name>",
	Short: "Check a tool call",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		toolArgs, err := parseKeyValues(checkArgs)
		if err != nil {
			return err
		}
		return runCheck(cmd, guardian.Event{
			Type:    guardian.EventTool,
			SkillID: checkSkill,
			Tool:    args[0],
			Args:    toolArgs,
		})
	},
}

func init() {
	checkCmd.PersistentFlags().StringVar(&checkSkill, "skill", "", "Skill ID making the request")
	checkPortCmd.Flags().StringVar(&checkProtocol, "protocol", "tcp", "Protocol: tcp or udp")
	checkToolCmd.Flags().StringArrayVar(&checkArgs, "arg", nil, "Tool argument as key=value (repeatable)")

	checkCmd.AddCommand(checkPortCmd, checkEgressCmd, checkDNSCmd, checkToolCmd)
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, ev guardian.Event) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	v, err := s.guardian.Decide(ev)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput() {
		if err := writeJSON(out, v); err != nil {
			return err
		}
	} else {
		printDecision(out, describeEvent(ev), v.Allowed, v.Reason)
	}

	if !v.Allowed {
		s.Close()
		osExit(exitDenied)
	}
	return nil
}

func describeEvent(ev guardian.Event) string {
	switch ev.Type {
	case guardian.EventPortBind:
		proto := ev.Protocol
		if proto == "" {
			proto = monitor.TCP
		}
		return fmt.Sprintf("bind %d/%s", ev.Port, proto)
	case guardian.EventEgress:
		return fmt.Sprintf("egress %s:%d", ev.Host, ev.Port)
	case guardian.EventDNS:
		return "dns " + ev.Host
	case guardian.EventTool:
		return "tool " + ev.Tool
	case guardian.EventShell:
		return "shell " + ev.Command
	}
	return string(ev.Type)
}

func parsePortArg(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return port, nil
}

func parseKeyValues(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --arg %q, want key=value", p)
		}
		out[k] = v
	}
	return out, nil
}
