// Package command parses the natural-language scan command accepted from
// upstream text interfaces. The grammar is deliberately rigid: exactly
// "Run <type> scan on <target>", matched case-insensitively.
package command

import (
	"regexp"
	"strings"

	"github.com/kvist/reconwave/internal/errors"
	"github.com/kvist/reconwave/internal/scanning"
)

var commandPattern = regexp.MustCompile(`(?i)^\s*run\s+(\w+)\s+scan\s+on\s+(\S+)\s*$`)

// scanTypeWords maps grammar type words to scan types.
var scanTypeWords = map[string]scanning.ScanType{
	"passive": scanning.ScanTypePassive,
	"port":    scanning.ScanTypePortDiscovery,
	"service": scanning.ScanTypeServiceDetection,
	"os":      scanning.ScanTypeOSFingerprint,
}

// ParseCommand parses "Run <type> scan on <target>". The type word must be
// one of passive, port, service, or os; the target is passed through
// verbatim for the target parser to validate.
func ParseCommand(text string) (scanning.ScanType, string, error) {
	matches := commandPattern.FindStringSubmatch(text)
	if matches == nil {
		return "", "", errors.ErrGrammarUnrecognized(text)
	}

	word := strings.ToLower(matches[1])
	scanType, ok := scanTypeWords[word]
	if !ok {
		return "", "", errors.ErrUnsupportedScanType(word)
	}
	return scanType, matches[2], nil
}
