package monitor

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// defaultPatterns are matched against the raw command text.
var defaultPatterns = []string{
	`(?i)bash\s+-i\s+.*/dev/tcp`,
	`(?i)\bnc\s+(-e|-c)\s`,
	`(?i)\bncat\s+(-e|-c)\s`,
	`(?i)\bsocat\s+.*exec`,
	`(?i)python.*socket.*connect`,
	`(?i)perl.*socket.*connect`,
	`(?i)ruby.*TCPSocket`,
	`(?i)php.*fsockopen`,
	`(?i)powershell.*New-Object\s+Net\.Sockets`,
	`(?i)mkfifo.*\bnc\s`,
	`(?i)/dev/tcp/`,
}

const maxInlineDepth = 2

var (
	netcatFamily = map[string]bool{"nc": true, "ncat": true, "netcat": true}
	shells       = map[string]bool{"sh": true, "bash": true, "zsh": true, "dash": true, "ksh": true}
	wrappers     = map[string]bool{"sudo": true, "nohup": true, "setsid": true, "exec": true, "env": true}
)

// SignatureSet decides whether a shell command looks like a reverse-shell
// setup. It runs the regex patterns first and then a structural pass over
// the parsed command, which catches flag reordering (nc host port -e sh),
// /dev/tcp and /dev/udp redirects, and payloads nested in sh -c.
type SignatureSet struct {
	patterns []*regexp.Regexp
}

func DefaultSignatures() *SignatureSet {
	s, err := NewSignatureSet(defaultPatterns)
	if err != nil {
		panic(err)
	}
	return s
}

// NewSignatureSet compiles patterns on top of the structural checks.
func NewSignatureSet(patterns []string) (*SignatureSet, error) {
	s := &SignatureSet{patterns: make([]*regexp.Regexp, 0, len(patterns))}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("signature %q: %w", p, err)
		}
		s.patterns = append(s.patterns, re)
	}
	return s, nil
}

func (s *SignatureSet) Match(command string) bool {
	if s.matchRegex(command) {
		return true
	}
	return s.matchStructural(command, 0)
}

func (s *SignatureSet) matchRegex(command string) bool {
	for _, re := range s.patterns {
		if re.MatchString(command) {
			return true
		}
	}
	return false
}

func (s *SignatureSet) matchStructural(command string, depth int) bool {
	if depth > maxInlineDepth {
		return false
	}

	parser := syntax.NewParser(syntax.KeepComments(false), syntax.Variant(syntax.LangBash))
	file, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		// Unparseable input was already covered by the regex pass.
		return false
	}

	hit := false
	syntax.Walk(file, func(node syntax.Node) bool {
		if hit {
			return false
		}
		switch n := node.(type) {
		case *syntax.Redirect:
			if n.Word != nil && isNetworkDevice(literal(n.Word)) {
				hit = true
			}
		case *syntax.CallExpr:
			if s.suspiciousCall(n, depth) {
				hit = true
			}
		}
		return !hit
	})
	return hit
}

func (s *SignatureSet) suspiciousCall(call *syntax.CallExpr, depth int) bool {
	args := make([]string, 0, len(call.Args))
	for _, w := range call.Args {
		args = append(args, literal(w))
	}
	for len(args) > 0 && wrappers[filepath.Base(args[0])] {
		args = args[1:]
	}
	if len(args) == 0 {
		return false
	}

	exe := filepath.Base(args[0])
	rest := args[1:]

	switch {
	case netcatFamily[exe]:
		for _, a := range rest {
			if a == "--exec" || a == "--sh-exec" || a == "--lua-exec" {
				return true
			}
			if strings.HasPrefix(a, "-") && !strings.HasPrefix(a, "--") && strings.ContainsAny(a[1:], "ec") {
				return true
			}
		}
	case exe == "socat":
		for _, a := range rest {
			lower := strings.ToLower(a)
			if strings.HasPrefix(lower, "exec:") || strings.HasPrefix(lower, "system:") {
				return true
			}
		}
	case shells[exe]:
		for i, a := range rest {
			if a == "-c" && i+1 < len(rest) {
				code := rest[i+1]
				return s.matchRegex(code) || s.matchStructural(code, depth+1)
			}
		}
	}
	for _, a := range rest {
		if isNetworkDevice(a) {
			return true
		}
	}
	return false
}

func isNetworkDevice(path string) bool {
	return strings.HasPrefix(path, "/dev/tcp/") || strings.HasPrefix(path, "/dev/udp/")
}

// literal renders a word with quoting removed. Expansions it cannot
// resolve statically are kept in their printed form.
func literal(word *syntax.Word) string {
	var sb strings.Builder
	for _, part := range word.Parts {
		writePart(&sb, part)
	}
	return sb.String()
}

func writePart(sb *strings.Builder, part syntax.WordPart) {
	switch p := part.(type) {
	case *syntax.Lit:
		sb.WriteString(p.Value)
	case *syntax.SglQuoted:
		sb.WriteString(p.Value)
	case *syntax.DblQuoted:
		for _, inner := range p.Parts {
			writePart(sb, inner)
		}
	default:
		printer := syntax.NewPrinter()
		_ = printer.Print(sb, part)
	}
}
