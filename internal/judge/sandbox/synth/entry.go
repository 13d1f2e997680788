package synth

import "regexp"

var (
	jsEntryPattern  = regexp.MustCompile(`function\s+([A-Za-z0-9_$]+)|var\s+([A-Za-z0-9_$]+)\s*=\s*function|(?:const|let)\s+([A-Za-z0-9_$]+)\s*=\s*\(`)
	luaEntryPattern = regexp.MustCompile(`(?:local\s+)?function\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`)
)

// inferEntry returns the first non-empty capture group of the first match.
func inferEntry(pattern *regexp.Regexp, userCode string) string {
	m := pattern.FindStringSubmatch(userCode)
	for i := 1; i < len(m); i++ {
		if m[i] != "" {
			return m[i]
		}
	}
	return ""
}
