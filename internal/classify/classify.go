// Package classify decides whether a command succeeded from the free-text
// callback traces the bridge returns.
//
// The rules are substring heuristics over bridge output and must stay
// compatible with it:
//
//  1. Any line containing "onError" or "NACK" fails the command. The first
//     such line wins.
//  2. Otherwise, a line containing both "onReceivedEx" and "code=" fails the
//     command when the code parses to a non-zero integer. Lines whose code
//     does not parse are skipped.
//  3. Anything else, including an empty log, is a success.
package classify

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Failure reasons produced by the first pass.
const (
	ReasonOnError = "onError in callback"
	ReasonNACK    = "NACK received"
)

const (
	markerOnError      = "onError"
	markerNACK         = "NACK"
	markerReceivedEx   = "onReceivedEx"
	markerCode         = "code="
	trailingCodePuncts = ":,;"
)

// Classify inspects an event log and reports success, or failure with a
// non-empty reason.
func Classify(events []string) (ok bool, reason string) {
	for _, line := range events {
		if strings.Contains(line, markerOnError) {
			return false, ReasonOnError
		}
		if strings.Contains(line, markerNACK) {
			return false, ReasonNACK
		}
	}

	for _, line := range events {
		if !strings.Contains(line, markerReceivedEx) || !strings.Contains(line, markerCode) {
			continue
		}
		code, err := ParseCode(line)
		if err != nil {
			continue
		}
		if code != 0 {
			return false, fmt.Sprintf("%s code=%d", markerReceivedEx, code)
		}
	}

	return true, ""
}

// ParseCode extracts the integer following the first "code=" in line. The
// token runs up to the next whitespace and has trailing ':', ',' and ';'
// removed.
func ParseCode(line string) (int, error) {
	_, after, found := strings.Cut(line, markerCode)
	if !found {
		return 0, fmt.Errorf("no %q marker in line", markerCode)
	}

	fields := strings.FieldsFunc(after, unicode.IsSpace)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty code token")
	}
	token := strings.TrimRight(fields[0], trailingCodePuncts)

	code, err := strconv.Atoi(token)
	if err != nil {
		return 0, fmt.Errorf("parse code %q: %w", token, err)
	}
	return code, nil
}
