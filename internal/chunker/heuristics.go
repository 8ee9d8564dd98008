package chunker

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	numberedHeadingRe = regexp.MustCompile(`^\d+(\.\d+)*[.)]?\s+\S`)
	namedSectionRe    = regexp.MustCompile(`(?i)^(section|part|chapter|appendix|annex)\b`)
	labelRe           = regexp.MustCompile(`(?i)^(table|figure)\s+\d+`)

	// Standard designations and ratings that mark regulatory fire-test
	// configurations, e.g. "EN 1634-1", "BS 476-22", "UL 10C", "EI 30".
	standardCodeRe = regexp.MustCompile(`\b(EN|BS|UL|ISO|NFPA|AS)\s?-?\d{2,5}([-.:]\d+)*\b`)
	ratingRe       = regexp.MustCompile(`\b(EI|EW|E)\s?\d{2,3}\b`)
)

var fireTestKeywords = []string{
	"fire test",
	"fire resistance test",
	"fire-resistance",
	"furnace test",
	"test specimen",
	"integrity and insulation",
	"burn test",
}

// isTableLine reports whether a line looks like a table row. Pipe-delimited
// rows need at least 3 pipes; tab-delimited rows at least 2 tabs.
func isTableLine(line string) bool {
	if strings.Count(line, "|") >= 3 {
		return true
	}
	return strings.Count(line, "\t") >= 2
}

// isSectionHeader reports whether a line starts a new section: numbered
// headings, named section prefixes, table/figure labels, or short all-caps
// lines.
func isSectionHeader(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	if numberedHeadingRe.MatchString(trimmed) {
		return true
	}
	if namedSectionRe.MatchString(trimmed) {
		return true
	}
	if labelRe.MatchString(trimmed) {
		return true
	}
	return isShortAllCaps(trimmed)
}

func isShortAllCaps(line string) bool {
	if len(line) > 60 {
		return false
	}
	letters := 0
	for _, r := range line {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsLower(r) {
				return false
			}
		}
	}
	return letters >= 3
}

// isFireTestLine reports whether a line references a fire-test keyword or a
// recognized test-standard designation.
func isFireTestLine(line string) bool {
	lower := strings.ToLower(line)
	for _, kw := range fireTestKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	if standardCodeRe.MatchString(line) {
		return true
	}
	return ratingRe.MatchString(line)
}
