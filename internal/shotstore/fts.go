package shotstore

import (
	"regexp"
	"strings"
)

var ftsSeparators = regexp.MustCompile(`[-/.]`)

// formatFTSQuery turns free text into an FTS5 MATCH expression: hyphens,
// slashes and dots become spaces, tokens are whitespace-split, embedded
// quotes are escaped, and each token is wrapped as a prefix-wildcard
// phrase. Tokens are joined with spaces, which FTS5 treats as implicit
// AND (§4.4 "FTS query formatter").
//
// The result is embedded directly into SQL text rather than bound as a
// parameter: the driver does not support bound parameters inside MATCH.
func formatFTSQuery(text string) string {
	normalized := ftsSeparators.ReplaceAllString(text, " ")
	fields := strings.Fields(normalized)
	if len(fields) == 0 {
		return ""
	}

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		escaped := strings.ReplaceAll(f, `'`, `''`)
		tokens = append(tokens, `"`+escaped+`"*`)
	}
	return strings.Join(tokens, " ")
}
