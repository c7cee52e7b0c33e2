package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/torkjacobs/tork-guardian/internal/policy"
)

var (
	policyPreset   string
	policyForce    bool
	policyResolved bool
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect, validate and create the guardian config",
}

var policyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective config",
	Long: `Print the effective config as YAML (the API key is never printed).
With --resolved, print the network and tool policies actually enforced.`,
	Args: cobra.NoArgs,
	RunE: policyShowCommand,
}

var policyValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a config file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  policyValidateCommand,
}

var policyInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a preset config file",
	Args:  cobra.NoArgs,
	RunE:  policyInitCommand,
}

func init() {
	policyShowCmd.Flags().BoolVar(&policyResolved, "resolved", false, "Show resolved network and tool policies")
	policyInitCmd.Flags().StringVar(&policyPreset, "preset", "minimal",
		"Preset: "+strings.Join(policy.PresetNames(), ", "))
	policyInitCmd.Flags().BoolVar(&policyForce, "force", false, "Overwrite an existing config file")

	policyCmd.AddCommand(policyShowCmd, policyValidateCmd, policyInitCmd)
	rootCmd.AddCommand(policyCmd)
}

func policyShowCommand(cmd *cobra.Command, args []string) error {
	paths, err := resolvePaths()
	if err != nil {
		return fmt.Errorf("failed to resolve paths: %w", err)
	}
	cfg, err := loadConfig(paths)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if policyResolved {
		resolved := struct {
			Network policy.NetworkPolicy `json:"network"`
			Tool    policy.ToolPolicy    `json:"tool"`
		}{policy.ResolveNetwork(cfg), policy.ResolveTool(cfg)}
		if jsonOutput() {
			return writeJSON(out, resolved)
		}
		printResolved(out, resolved.Network, resolved.Tool)
		return nil
	}

	if jsonOutput() {
		redacted := *cfg
		redacted.APIKey = ""
		return writeJSON(out, redacted)
	}
	data, err := policy.Marshal(cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s\n", paint(out, dimStyle, "# "+paths.ConfigPath))
	_, err = out.Write(data)
	return err
}

func policyValidateCommand(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	} else {
		paths, err := resolvePaths()
		if err != nil {
			return fmt.Errorf("failed to resolve paths: %w", err)
		}
		path = paths.ConfigPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	cfg, err := policy.Parse(data)
	if err == nil {
		if key := viper.GetString("api_key"); key != "" {
			cfg.APIKey = key
		}
		err = cfg.Validate()
	}

	out := cmd.OutOrStdout()
	var verr *policy.ValidationError
	switch {
	case err == nil:
		fmt.Fprintf(out, "%s %s\n", paint(out, allowStyle, "OK"), path)
		return nil
	case errors.As(err, &verr):
		fmt.Fprintf(out, "%s %s\n", paint(out, denyStyle, "INVALID"), path)
		for _, p := range verr.Problems {
			fmt.Fprintf(out, "  - %s\n", p)
		}
		return fmt.Errorf("%d problem(s) in %s", len(verr.Problems), path)
	default:
		return err
	}
}

func policyInitCommand(cmd *cobra.Command, args []string) error {
	cfg, err := policy.Preset(policyPreset)
	if err != nil {
		return err
	}
	paths, err := resolvePaths()
	if err != nil {
		return fmt.Errorf("failed to resolve paths: %w", err)
	}

	if _, err := os.Stat(paths.ConfigPath); err == nil && !policyForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", paths.ConfigPath)
	}

	data, err := policy.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(paths.ConfigPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Wrote %s preset to %s\n", policyPreset, paths.ConfigPath)
	fmt.Fprintf(out, "%s\n", paint(out, dimStyle, "Set TORK_API_KEY to enable the governance service."))
	return nil
}

func printResolved(w io.Writer, np policy.NetworkPolicy, tp policy.ToolPolicy) {
	fmt.Fprintln(w, paint(w, headerStyle, "Network"))
	fmt.Fprintf(w, "  profile:              %s\n", np.Profile)
	fmt.Fprintf(w, "  inbound ports:        %s\n", formatPorts(np.AllowedInboundPorts))
	fmt.Fprintf(w, "  outbound ports:       %s\n", formatPorts(np.AllowedOutboundPorts))
	fmt.Fprintf(w, "  allowed domains:      %s\n", formatList(np.AllowedDomains))
	fmt.Fprintf(w, "  blocked domains:      %s\n", formatList(np.BlockedDomains))
	fmt.Fprintf(w, "  max conn/min:         %d\n", np.MaxConnectionsPerMinute)
	fmt.Fprintf(w, "  port hijack check:    %v\n", np.DetectPortHijacking)
	fmt.Fprintf(w, "  reverse shell check:  %v\n", np.DetectReverseShells)
	fmt.Fprintf(w, "  privileged ports:     blocked=%v\n", np.BlockPrivilegedPorts)
	fmt.Fprintf(w, "  private networks:     blocked=%v\n", np.BlockPrivateNetworks)

	fmt.Fprintln(w, paint(w, headerStyle, "Tools"))
	fmt.Fprintf(w, "  mode:                 %s\n", tp.Mode)
	fmt.Fprintf(w, "  blocked commands:     %s\n", formatList(tp.BlockShellCommands))
	fmt.Fprintf(w, "  allowed paths:        %s\n", formatList(tp.AllowedPaths))
	fmt.Fprintf(w, "  blocked paths:        %s\n", formatList(tp.BlockedPaths))
}

func formatPorts(s policy.PortSet) string {
	return formatList(s.Ranges())
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}
