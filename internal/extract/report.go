package extract

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	minReportEntries = 3
	minFinisher      = 1
	maxFinisher      = 30
)

var (
	reportSeparators = regexp.MustCompile(`[\s,;:/|\[\]()"'\-–—]+`)
	integerToken     = regexp.MustCompile(`^\d+$`)
	digit            = regexp.MustCompile(`\d`)
)

// NormalizeReport turns a raw candidate such as "3 - 7 - 1" or "[3,7,1]" into
// the canonical "3-7-1". The candidate is split on separators and words are
// dropped. It is rejected when a token mixes digits with anything else
// ("3.5", "1st"), when fewer than three integers remain, or when any integer
// is outside [1,30].
func NormalizeReport(candidate string) (string, bool) {
	var out []string
	for _, tok := range reportSeparators.Split(candidate, -1) {
		if !digit.MatchString(tok) {
			continue
		}
		if !integerToken.MatchString(tok) {
			return "", false
		}
		n, err := strconv.Atoi(tok)
		if err != nil || n < minFinisher || n > maxFinisher {
			return "", false
		}
		out = append(out, strconv.Itoa(n))
	}
	if len(out) < minReportEntries {
		return "", false
	}
	return strings.Join(out, "-"), true
}

// ValidReport reports whether s is already in canonical form.
func ValidReport(s string) bool {
	norm, ok := NormalizeReport(s)
	return ok && norm == s
}
