package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/viper"

	"github.com/torkjacobs/tork-guardian/internal/client"
	"github.com/torkjacobs/tork-guardian/internal/config"
	"github.com/torkjacobs/tork-guardian/internal/guardian"
	"github.com/torkjacobs/tork-guardian/internal/logger"
	"github.com/torkjacobs/tork-guardian/internal/logutil"
	"github.com/torkjacobs/tork-guardian/internal/netaccess"
	"github.com/torkjacobs/tork-guardian/internal/policy"
)

// exitDenied is the process exit code for a denied decision, matching
// the hook contract of agent hosts.
const exitDenied = 2

// osExit is swapped out by tests.
var osExit = os.Exit

func resolvePaths() (*config.Paths, error) {
	return config.Load(config.Paths{
		ConfigDir:    viper.GetString("config_dir"),
		ConfigPath:   viper.GetString("config"),
		ActivityPath: viper.GetString("activity_log"),
		DBPath:       viper.GetString("db"),
	})
}

// loadConfig reads the config file and overlays the API key and base URL
// from flags or TORK_* env vars.
func loadConfig(paths *config.Paths) (*policy.Config, error) {
	cfg, err := policy.Load(paths.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if key := viper.GetString("api_key"); key != "" {
		cfg.APIKey = key
	}
	if u := viper.GetString("base_url"); u != "" {
		cfg.BaseURL = u
	}
	return cfg, nil
}

func newLogger(w io.Writer) (*slog.Logger, error) {
	lg, err := logutil.LoggerFromViper(viper.GetViper(), w)
	if err != nil {
		return nil, fmt.Errorf("invalid logging settings: %w", err)
	}
	return lg, nil
}

// session bundles what a command needs to make decisions.
type session struct {
	paths    *config.Paths
	cfg      *policy.Config
	logger   *slog.Logger
	activity *logger.ActivityLogger
	guardian *guardian.Guardian
	closed   bool
}

// openSession loads config, opens the JSONL activity log and builds a
// Guardian. Extra sinks are added after the activity log.
func openSession(extra ...netaccess.ActivitySink) (*session, error) {
	paths, err := resolvePaths()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}
	cfg, err := loadConfig(paths)
	if err != nil {
		return nil, err
	}
	lg, err := newLogger(os.Stderr)
	if err != nil {
		return nil, err
	}
	al, err := logger.New(paths.ActivityPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open activity log: %w", err)
	}

	sinks := append([]netaccess.ActivitySink{al}, extra...)
	opts := []guardian.Option{
		guardian.WithLogger(lg),
		guardian.WithActivitySinks(sinks...),
	}
	if cfg.APIKey == "" {
		lg.Debug("no api key configured, governance service disabled")
		opts = append(opts, guardian.WithGovernor(offlineGovernor{logger: lg}))
	}

	return &session{
		paths:    paths,
		cfg:      cfg,
		logger:   lg,
		activity: al,
		guardian: guardian.New(cfg, opts...),
	}, nil
}

// Close flushes threat reports and the activity log. It is safe to call
// more than once.
func (s *session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.guardian.Close()
	if err := s.activity.Close(); err != nil {
		s.logger.Warn("failed to close activity log", "error", err)
	}
}

// offlineGovernor stands in for the remote service when no API key is
// configured. Local decisions still work; content passes through unchanged.
type offlineGovernor struct {
	logger *slog.Logger
}

func (o offlineGovernor) Govern(_ context.Context, content string, opts *client.Options) client.GovernResponse {
	mode := ""
	if opts != nil {
		mode = opts.Mode
	}
	o.logger.Debug("governance skipped, no api key", "mode", mode)
	return client.GovernResponse{Action: client.ActionAllow, Output: content}
}
