package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var (
	allowStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#22c55e")).Bold(true)
	denyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#ef4444")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#eab308"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#f97316")).Bold(true)
)

func jsonOutput() bool {
	return viper.GetBool("json")
}

// styled reports whether w is a terminal that should get colour.
func styled(w io.Writer) bool {
	if jsonOutput() {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func paint(w io.Writer, s lipgloss.Style, text string) string {
	if !styled(w) {
		return text
	}
	return s.Render(text)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printDecision renders one allow/deny line.
func printDecision(w io.Writer, label string, allowed bool, reason string) {
	verdict := paint(w, allowStyle, "ALLOW")
	if !allowed {
		verdict = paint(w, denyStyle, "DENY")
	}
	if reason == "" {
		fmt.Fprintf(w, "%s %s\n", verdict, label)
		return
	}
	fmt.Fprintf(w, "%s %s %s\n", verdict, label, paint(w, dimStyle, "("+reason+")"))
}
