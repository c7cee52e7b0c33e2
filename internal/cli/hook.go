package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/torkjacobs/tork-guardian/internal/guardian"
)

const maxHookInput = 1 << 20

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Decide one event read as JSON from stdin",
	Long: `Hook entry point for agent hosts. Reads a single event as JSON on stdin,
writes the verdict as JSON on stdout and exits 2 when the event is denied.

Malformed input fails open: a warning goes to stderr and the event is
allowed, so a broken hook never wedges the host.

Event shape:
  {"type":"egress","skill_id":"my-skill","host":"api.github.com","port":443}
  {"type":"port_bind","skill_id":"my-skill","port":3000,"protocol":"tcp"}
  {"type":"dns","skill_id":"my-skill","host":"example.com"}
  {"type":"tool","skill_id":"my-skill","tool":"read_file","args":{"path":"/tmp/x"}}
  {"type":"shell","skill_id":"my-skill","command":"ls -la"}`,
	Args: cobra.NoArgs,
	RunE: hookCommand,
}

func init() {
	rootCmd.AddCommand(hookCmd)
}

func hookCommand(cmd *cobra.Command, args []string) error {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), maxHookInput))
	if err != nil {
		return failOpen(stdout, stderr, guardian.Verdict{}, fmt.Errorf("reading stdin: %w", err))
	}

	var ev guardian.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return failOpen(stdout, stderr, guardian.Verdict{}, fmt.Errorf("parsing event: %w", err))
	}

	s, err := openSession()
	if err != nil {
		return failOpen(stdout, stderr, guardian.Verdict{Type: ev.Type}, err)
	}
	defer s.Close()

	v, err := s.guardian.Decide(ev)
	if err != nil {
		return failOpen(stdout, stderr, guardian.Verdict{Type: ev.Type}, err)
	}

	if err := json.NewEncoder(stdout).Encode(v); err != nil {
		return err
	}
	if !v.Allowed {
		fmt.Fprintf(stderr, "BLOCKED by Tork Guardian: %s\n", v.Reason)
		s.Close()
		osExit(exitDenied)
	}
	return nil
}

func failOpen(stdout, stderr io.Writer, v guardian.Verdict, cause error) error {
	fmt.Fprintf(stderr, "[tork-guardian] warning: %v\n", cause)
	v.Allowed = true
	return json.NewEncoder(stdout).Encode(v)
}
