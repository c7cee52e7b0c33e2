package cli

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/torkjacobs/tork-guardian/internal/logger"
	"github.com/torkjacobs/tork-guardian/internal/netaccess"
	"github.com/torkjacobs/tork-guardian/internal/store"
)

var (
	logSkill   string
	logAction  string
	logDenied  bool
	logLast    int
	logSummary bool
	logSource  string
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "View and filter the activity log",
	Long: `View the activity log with filtering and summary options.

The JSONL log is written by every command; the SQLite store only by
"torkguard serve".

Examples:
  torkguard log                        # Show all entries
  torkguard log --last 20              # Show last 20 entries
  torkguard log --denied               # Show only denied decisions
  torkguard log --skill my-skill       # Show one skill
  torkguard log --summary              # Show summary stats
  torkguard log --source store         # Read the SQLite store`,
	Args: cobra.NoArgs,
	RunE: logCommand,
}

var logClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Empty the activity log and store",
	Args:  cobra.NoArgs,
	RunE:  logClearCommand,
}

func init() {
	logCmd.Flags().StringVar(&logSkill, "skill", "", "Filter by skill ID")
	logCmd.Flags().StringVar(&logAction, "action", "", "Filter by action (port_bind, egress, dns)")
	logCmd.Flags().BoolVar(&logDenied, "denied", false, "Show only denied decisions")
	logCmd.Flags().IntVar(&logLast, "last", 0, "Show last N entries")
	logCmd.Flags().BoolVar(&logSummary, "summary", false, "Show summary statistics")
	logCmd.Flags().StringVar(&logSource, "source", "jsonl", "Log source: jsonl or store")
	logCmd.AddCommand(logClearCmd)
	rootCmd.AddCommand(logCmd)
}

func logCommand(cmd *cobra.Command, args []string) error {
	paths, err := resolvePaths()
	if err != nil {
		return fmt.Errorf("failed to resolve paths: %w", err)
	}

	var entries []netaccess.ActivityEntry
	switch logSource {
	case "jsonl":
		entries, err = logger.ReadEntries(paths.ActivityPath)
		if err != nil {
			return fmt.Errorf("failed to read activity log: %w", err)
		}
		entries = filterEntries(entries)
		if logLast > 0 && logLast < len(entries) {
			entries = entries[len(entries)-logLast:]
		}
	case "store":
		entries, err = readStore(cmd.Context(), paths.DBPath)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown --source %q (want jsonl or store)", logSource)
	}

	out := cmd.OutOrStdout()
	if logSummary {
		summary := summarize(entries)
		if jsonOutput() {
			return writeJSON(out, summary)
		}
		printSummary(out, summary)
		return nil
	}
	if jsonOutput() {
		if entries == nil {
			entries = []netaccess.ActivityEntry{}
		}
		return writeJSON(out, entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No activity log entries found.")
		return nil
	}
	printEntries(out, entries)
	return nil
}

func readStore(ctx context.Context, dbPath string) ([]netaccess.ActivityEntry, error) {
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open activity store: %w", err)
	}
	defer func() { _ = st.Close() }()

	entries, err := st.List(ctx, store.Filter{
		SkillID:    logSkill,
		Action:     netaccess.Action(logAction),
		DeniedOnly: logDenied,
		Limit:      logLast,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query activity store: %w", err)
	}
	return entries, nil
}

func filterEntries(entries []netaccess.ActivityEntry) []netaccess.ActivityEntry {
	var out []netaccess.ActivityEntry
	for _, e := range entries {
		if logSkill != "" && e.SkillID != logSkill {
			continue
		}
		if logAction != "" && string(e.Action) != logAction {
			continue
		}
		if logDenied && e.Allowed {
			continue
		}
		out = append(out, e)
	}
	return out
}

func printEntries(w io.Writer, entries []netaccess.ActivityEntry) {
	for _, e := range entries {
		verdict := paint(w, allowStyle, "ALLOW")
		if !e.Allowed {
			verdict = paint(w, denyStyle, "DENY ")
		}
		skill := e.SkillID
		if skill == "" {
			skill = "-"
		}
		fmt.Fprintf(w, "%s %s %-9s %-20s %s\n",
			paint(w, dimStyle, e.Timestamp.Format("2006-01-02 15:04:05")),
			verdict, e.Action, skill, e.Reason)
	}
}

type logSummaryStats struct {
	Total    int            `json:"total"`
	Allowed  int            `json:"allowed"`
	Denied   int            `json:"denied"`
	ByAction map[string]int `json:"by_action"`
	// TopDenied lists skills by denial count, highest first.
	TopDenied []skillCount `json:"top_denied"`
}

type skillCount struct {
	SkillID string `json:"skill_id"`
	Count   int    `json:"count"`
}

func summarize(entries []netaccess.ActivityEntry) logSummaryStats {
	s := logSummaryStats{ByAction: map[string]int{}, TopDenied: []skillCount{}}
	denied := map[string]int{}
	for _, e := range entries {
		s.Total++
		s.ByAction[string(e.Action)]++
		if e.Allowed {
			s.Allowed++
			continue
		}
		s.Denied++
		denied[e.SkillID]++
	}
	for skill, n := range denied {
		s.TopDenied = append(s.TopDenied, skillCount{SkillID: skill, Count: n})
	}
	sort.Slice(s.TopDenied, func(i, j int) bool {
		if s.TopDenied[i].Count != s.TopDenied[j].Count {
			return s.TopDenied[i].Count > s.TopDenied[j].Count
		}
		return s.TopDenied[i].SkillID < s.TopDenied[j].SkillID
	})
	return s
}

func printSummary(w io.Writer, s logSummaryStats) {
	fmt.Fprintln(w, paint(w, headerStyle, "Activity summary"))
	fmt.Fprintf(w, "  Total:   %d\n", s.Total)
	fmt.Fprintf(w, "  Allowed: %d\n", s.Allowed)
	fmt.Fprintf(w, "  Denied:  %d\n", s.Denied)

	actions := make([]string, 0, len(s.ByAction))
	for a := range s.ByAction {
		actions = append(actions, a)
	}
	sort.Strings(actions)
	for _, a := range actions {
		fmt.Fprintf(w, "  %-9s %d\n", a+":", s.ByAction[a])
	}

	if len(s.TopDenied) > 0 {
		fmt.Fprintln(w, "  Most denied skills:")
		for _, sc := range s.TopDenied {
			name := sc.SkillID
			if name == "" {
				name = "(unknown)"
			}
			fmt.Fprintf(w, "    %-20s %d\n", name, sc.Count)
		}
	}
}

func logClearCommand(cmd *cobra.Command, args []string) error {
	paths, err := resolvePaths()
	if err != nil {
		return fmt.Errorf("failed to resolve paths: %w", err)
	}
	if err := logger.Truncate(paths.ActivityPath); err != nil {
		return fmt.Errorf("failed to clear activity log: %w", err)
	}

	st, err := store.Open(paths.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open activity store: %w", err)
	}
	defer func() { _ = st.Close() }()
	if err := st.Clear(cmd.Context()); err != nil {
		return fmt.Errorf("failed to clear activity store: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Activity log cleared.")
	return nil
}
