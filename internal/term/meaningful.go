package term

import (
	"regexp"
	"strings"
)

// Escape-sequence strippers. OSC needs its own pattern because its body
// runs to BEL/ST rather than a final byte; a CLI that only refreshes its
// window title emits a steady stream of these with no visible output.
var (
	csiRe     = regexp.MustCompile(`\x1b\[[0-?]*[ -/]*[@-~]`)
	oscRe     = regexp.MustCompile(`\x1b\][^\x07\x1b]*(?:\x07|\x1b\\)?`)
	dcsRe     = regexp.MustCompile(`\x1b[P^_][^\x1b]*(?:\x1b\\)?`)
	charsetRe = regexp.MustCompile(`\x1b[()*+\-./%#].`)
	escRe     = regexp.MustCompile(`\x1b[@-~]`)
)

// StripANSI removes escape sequences from s, leaving printable text and
// plain control characters.
func StripANSI(s string) string {
	if !strings.ContainsRune(s, 0x1b) {
		return s
	}
	s = oscRe.ReplaceAllString(s, "")
	s = dcsRe.ReplaceAllString(s, "")
	s = csiRe.ReplaceAllString(s, "")
	s = charsetRe.ReplaceAllString(s, "")
	s = escRe.ReplaceAllString(s, "")
	return s
}

// Meaningful reports whether s contains visible output once escape
// sequences are stripped. Cursor repositioning, SGR runs, and OSC title
// updates alone are not meaningful: they must not reset an idle-completion
// clock or count as command output.
func Meaningful(s string) bool {
	return MeaningfulLen(s) > 0
}

// MeaningfulLen counts the printable, non-whitespace characters that
// survive escape stripping. Runners compare successive counts to decide
// whether new output actually arrived.
func MeaningfulLen(s string) int {
	stripped := StripANSI(s)
	n := 0
	for _, r := range stripped {
		if r > 0x20 && r != 0x7f {
			n++
		}
	}
	return n
}
