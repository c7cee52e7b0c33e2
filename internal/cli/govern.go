package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/torkjacobs/tork-guardian/internal/client"
	"github.com/torkjacobs/tork-guardian/internal/policy"
	"github.com/torkjacobs/tork-guardian/internal/redact"
)

var (
	governSkill string
	governMode  string
	redactLocal bool
)

var governCmd = &cobra.Command{
	Use:   "govern [text]",
	Short: "Send content to the Tork governance service",
	Long: `Govern a piece of content with the Tork service. Text is taken from the
arguments or, when none are given, from stdin. Requires an API key.

Exits 2 when the service denies the content. If the service cannot be
reached the content is allowed unchanged and a warning is logged.`,
	RunE: governCommand,
}

var redactCmd = &cobra.Command{
	Use:   "redact [text]",
	Short: "Mask PII in content",
	Long: `Mask PII using the Tork service. With --local, or when no API key is
configured, the built-in credential and PII patterns are used instead.`,
	RunE: redactCommand,
}

func init() {
	governCmd.Flags().StringVar(&governSkill, "skill", "", "Skill ID the content belongs to")
	governCmd.Flags().StringVar(&governMode, "mode", "", "Governance mode sent to the service")
	redactCmd.Flags().BoolVar(&redactLocal, "local", false, "Use built-in patterns only")
	rootCmd.AddCommand(governCmd, redactCmd)
}

func governCommand(cmd *cobra.Command, args []string) error {
	text, err := inputText(cmd, args)
	if err != nil {
		return err
	}

	paths, err := resolvePaths()
	if err != nil {
		return fmt.Errorf("failed to resolve paths: %w", err)
	}
	cfg, err := loadConfig(paths)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	c, err := newClient(cfg)
	if err != nil {
		return err
	}

	var opts *client.Options
	if governMode != "" || governSkill != "" {
		opts = &client.Options{Mode: governMode, SkillID: governSkill}
	}
	resp := c.Govern(cmd.Context(), text, opts)

	out := cmd.OutOrStdout()
	if jsonOutput() {
		if err := writeJSON(out, resp); err != nil {
			return err
		}
	} else {
		printGovernResponse(out, resp)
	}

	if resp.Action == client.ActionDeny {
		osExit(exitDenied)
	}
	return nil
}

func redactCommand(cmd *cobra.Command, args []string) error {
	text, err := inputText(cmd, args)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	paths, err := resolvePaths()
	if err != nil {
		return fmt.Errorf("failed to resolve paths: %w", err)
	}
	cfg, err := loadConfig(paths)
	if err != nil {
		return err
	}

	if redactLocal || cfg.APIKey == "" {
		masked := redact.Redact(text)
		if jsonOutput() {
			return writeJSON(out, map[string]any{
				"output":     masked,
				"categories": redact.Categories(text),
			})
		}
		_, err := fmt.Fprintln(out, masked)
		return err
	}

	c, err := newClient(cfg)
	if err != nil {
		return err
	}
	resp := c.Redact(cmd.Context(), text)
	if jsonOutput() {
		return writeJSON(out, resp)
	}
	_, err = fmt.Fprintln(out, resp.Output)
	return err
}

func newClient(cfg *policy.Config) (*client.Client, error) {
	lg, err := newLogger(rootCmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	return client.New(cfg.APIKey,
		client.WithBaseURL(cfg.BaseURL),
		client.WithTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second),
		client.WithLogger(lg),
	), nil
}

// inputText joins args, or reads stdin when there are none.
func inputText(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return "", fmt.Errorf("no input: pass text as arguments or on stdin")
	}
	return text, nil
}

func printGovernResponse(w io.Writer, resp client.GovernResponse) {
	switch resp.Action {
	case client.ActionDeny:
		fmt.Fprintln(w, paint(w, denyStyle, "DENY"))
	case client.ActionRedact:
		fmt.Fprintln(w, paint(w, warnStyle, "REDACT"))
	default:
		fmt.Fprintln(w, paint(w, allowStyle, "ALLOW"))
	}
	if resp.FailedOpen() {
		fmt.Fprintln(w, paint(w, warnStyle, "  governance service unavailable, content passed through"))
	}
	fmt.Fprintf(w, "  output:  %s\n", resp.Output)
	if resp.PIIDetected != nil && resp.PIIDetected.HasPII {
		fmt.Fprintf(w, "  pii:     %s (%d)\n", strings.Join(resp.PIIDetected.Types, ", "), resp.PIIDetected.Count)
	}
	if resp.Receipt != nil && resp.Receipt.ID != "" {
		fmt.Fprintf(w, "  receipt: %s %s\n", resp.Receipt.ID, paint(w, dimStyle, resp.Receipt.Hash))
	}
}
