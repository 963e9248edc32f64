package nametag

import (
	"bufio"
	"io"
	"strings"

	logpkg "github.com/haukened/splitdns/internal/dns/common/log"
)

// ParseList parses a newline-delimited domain list (gfwlist/chnlist
// format) into rules carrying the given tag.
//
// Behavior:
// - '#' starts a comment, whole-line or inline
// - surrounding whitespace, leading "*." and trailing dots are stripped
// - entries are lowercased and de-duplicated, first-seen order preserved
// - obviously invalid tokens are skipped rather than failing the parse
func ParseList(r io.Reader, tag Tag, logger logpkg.Logger) ([]Rule, error) {
	scanner := bufio.NewScanner(r)
	seen := make(map[string]struct{})
	out := make([]Rule, 0, 256)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimPrefix(scanner.Text(), "\uFEFF")
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		name := canonicalName(strings.TrimPrefix(strings.TrimSpace(line), "*."))
		if name == "" {
			continue
		}
		if !validName(name) {
			logger.Debug(map[string]any{"line": lineNum, "raw": name}, "skipping invalid domain list entry")
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, Rule{Name: name, Tag: tag})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	logger.Debug(map[string]any{"count": len(out), "tag": tag.String()}, "parsed domain list")
	return out, nil
}

// validName filters tokens that cannot be domain names (whitespace, email
// addresses, URLs). Character-level validation only; length ceilings are
// enforced by the wire layer.
func validName(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '.' || c == '-' || c == '_':
		default:
			return false
		}
	}
	return !strings.Contains(s, "..")
}
