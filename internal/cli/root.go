package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "torkguard",
	Short: "Tork Guardian - runtime governance for AI agent skills",
	Long: `Tork Guardian decides whether an AI agent skill may bind a port, reach a
host, resolve a name or call a tool, using a local policy plus the Tork
governance service for PII redaction and compliance receipts.

Every decision is recorded in the activity log. Hosts that need state to
persist across checks (port ownership, rate limits, shell history) should
talk to "torkguard serve" instead of running one-shot checks.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Path to config YAML (default: ~/.torkguardian/config.yaml)")
	pf.String("config-dir", "", "Config directory (default: ~/.torkguardian)")
	pf.String("activity-log", "", "Path to activity JSONL log (default: <config-dir>/activity.jsonl)")
	pf.String("db", "", "Path to SQLite activity store (default: <config-dir>/activity.db)")
	pf.String("api-key", "", "Tork API key (env: TORK_API_KEY)")
	pf.String("base-url", "", "Tork API base URL (env: TORK_BASE_URL)")
	pf.String("log-level", "warn", "Log level: debug, info, warn, error")
	pf.String("log-format", "text", "Log format: text or json")
	pf.BoolP("verbose", "v", false, "Enable debug logging")
	pf.Bool("json", false, "Print machine-readable JSON")

	_ = viper.BindPFlag("config", pf.Lookup("config"))
	_ = viper.BindPFlag("config_dir", pf.Lookup("config-dir"))
	_ = viper.BindPFlag("activity_log", pf.Lookup("activity-log"))
	_ = viper.BindPFlag("db", pf.Lookup("db"))
	_ = viper.BindPFlag("api_key", pf.Lookup("api-key"))
	_ = viper.BindPFlag("base_url", pf.Lookup("base-url"))
	_ = viper.BindPFlag("logging.level", pf.Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", pf.Lookup("log-format"))
	_ = viper.BindPFlag("verbose", pf.Lookup("verbose"))
	_ = viper.BindPFlag("json", pf.Lookup("json"))
}

func initConfig() {
	viper.SetEnvPrefix("TORK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
}

func Execute() error {
	return rootCmd.Execute()
}
