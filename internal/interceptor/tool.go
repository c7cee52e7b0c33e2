// Package interceptor decides on tool calls and governs LLM requests before
// a skill is allowed to issue them.
package interceptor

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/torkjacobs/tork-guardian/internal/policy"
)

type ToolClass string

const (
	ClassShell   ToolClass = "shell"
	ClassFile    ToolClass = "file"
	ClassNetwork ToolClass = "network"
	ClassUnknown ToolClass = "unknown"
)

var toolClasses = map[string]ToolClass{
	"shell_execute":   ClassShell,
	"bash":            ClassShell,
	"sh":              ClassShell,
	"shell":           ClassShell,
	"terminal":        ClassShell,
	"exec":            ClassShell,
	"run_command":     ClassShell,
	"execute_command": ClassShell,

	"file_read":   ClassFile,
	"file_write":  ClassFile,
	"file_delete": ClassFile,
	"file_edit":   ClassFile,
	"read_file":   ClassFile,
	"write_file":  ClassFile,
	"delete_file": ClassFile,
	"edit_file":   ClassFile,
	"list_files":  ClassFile,

	"network_request": ClassNetwork,
	"http_request":    ClassNetwork,
	"fetch":           ClassNetwork,
	"web_fetch":       ClassNetwork,
	"url_fetch":       ClassNetwork,
	"curl":            ClassNetwork,
}

var (
	commandKeys = []string{"command", "cmd", "script"}
	pathKeys    = []string{"path", "file_path", "filepath", "file", "filename"}
)

// ToolCall is a tool invocation requested by a skill.
type ToolCall struct {
	Name    string         `json:"name"`
	Args    map[string]any `json:"args,omitempty"`
	SkillID string         `json:"skill_id,omitempty"`
}

type ToolDecision struct {
	Allowed bool      `json:"allowed"`
	Reason  string    `json:"reason,omitempty"`
	Class   ToolClass `json:"class"`
}

// Classify maps a tool name onto the capability it exercises. Matching is
// case-insensitive.
func Classify(name string) ToolClass {
	if c, ok := toolClasses[strings.ToLower(strings.TrimSpace(name))]; ok {
		return c
	}
	return ClassUnknown
}

// Command returns the shell command carried by the call, if any.
func (c ToolCall) Command() string {
	return firstArg(c.Args, commandKeys)
}

// Path returns the file path carried by the call, if any.
func (c ToolCall) Path() string {
	return firstArg(c.Args, pathKeys)
}

// GovernToolCall applies tp to call. It has no side effects. Tools it does
// not recognise are allowed.
func GovernToolCall(call ToolCall, tp policy.ToolPolicy) ToolDecision {
	class := Classify(call.Name)
	if tp.Mode == policy.ToolModeMinimal {
		return ToolDecision{Allowed: true, Class: class}
	}

	switch class {
	case ClassShell:
		return governShell(call.Command(), tp)
	case ClassFile:
		return governFile(call.Path(), tp)
	case ClassNetwork:
		if tp.Mode == policy.ToolModeStrict {
			return deny(ClassNetwork, "Strict policy blocks all network requests")
		}
	}
	return ToolDecision{Allowed: true, Class: class}
}

func governShell(command string, tp policy.ToolPolicy) ToolDecision {
	if tp.Mode == policy.ToolModeStrict {
		return deny(ClassShell, "Strict policy blocks all shell commands")
	}
	// Plain substring match in configured order.
	for _, pattern := range tp.BlockShellCommands {
		if pattern != "" && strings.Contains(command, pattern) {
			return deny(ClassShell, fmt.Sprintf("Shell command contains blocked pattern: %s", pattern))
		}
	}
	return ToolDecision{Allowed: true, Class: ClassShell}
}

func governFile(path string, tp policy.ToolPolicy) ToolDecision {
	if path == "" {
		return ToolDecision{Allowed: true, Class: ClassFile}
	}
	cleaned := filepath.Clean(path)

	for _, blocked := range tp.BlockedPaths {
		if blocked == "" {
			continue
		}
		if strings.Contains(path, blocked) || strings.Contains(cleaned, blocked) {
			return deny(ClassFile, fmt.Sprintf("Access to %s is blocked (matches %s)", path, blocked))
		}
	}

	if len(tp.AllowedPaths) > 0 && !underAny(cleaned, tp.AllowedPaths) {
		return deny(ClassFile, fmt.Sprintf("Path %s is not in the allowed paths", path))
	}
	return ToolDecision{Allowed: true, Class: ClassFile}
}

// underAny reports whether path equals or sits below one of roots. The
// match respects path separators, so /data does not cover /database.
func underAny(path string, roots []string) bool {
	for _, root := range roots {
		if root == "" {
			continue
		}
		r := filepath.Clean(root)
		if path == r {
			return true
		}
		prefix := r
		if !strings.HasSuffix(prefix, string(filepath.Separator)) {
			prefix += string(filepath.Separator)
		}
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func deny(class ToolClass, reason string) ToolDecision {
	return ToolDecision{Allowed: false, Reason: reason, Class: class}
}

func firstArg(args map[string]any, keys []string) string {
	for _, k := range keys {
		v, ok := args[k]
		if !ok {
			continue
		}
		switch val := v.(type) {
		case string:
			if val != "" {
				return val
			}
		case []string:
			if len(val) > 0 {
				return strings.Join(val, " ")
			}
		case []any:
			parts := make([]string, 0, len(val))
			for _, p := range val {
				if s, ok := p.(string); ok {
					parts = append(parts, s)
				}
			}
			if len(parts) > 0 {
				return strings.Join(parts, " ")
			}
		}
	}
	return ""
}
