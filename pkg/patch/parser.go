// Package patch applies model-authored SEARCH/REPLACE edit blocks to file
// content. Matching falls back from exact substring, to
// indentation-insensitive, to fuzzy Levenshtein search; ambiguous matches are
// always rejected rather than guessed at.
package patch

import (
	"strings"

	"github.com/chisel-dev/chisel/pkg/errors"
)

const (
	markerSearch  = "<<<<<<< SEARCH"
	markerDivider = "======="
	markerReplace = ">>>>>>> REPLACE"
)

// Block is one search/replace pair parsed from a patch payload.
type Block struct {
	Search  string
	Replace string
}

// Request is a single file mutation intent.
type Request struct {
	FilePath    string
	Blocks      []Block
	Description string
}

// ParseBlocks extracts all SEARCH/REPLACE blocks from a patch payload.
// Multiple blocks may be concatenated. Marker lines occurring literally
// inside block content must be escaped with a leading backslash; the escape
// is removed here.
func ParseBlocks(payload string) ([]Block, error) {
	lines := splitKeepNoEOL(payload)

	var blocks []Block
	var search, replace []string
	// parser states: outside a block, collecting search lines, collecting
	// replace lines
	const (
		stateOutside = iota
		stateSearch
		stateReplace
	)
	state := stateOutside

	for _, line := range lines {
		trimmed := strings.TrimRight(line, "\r")
		switch {
		case trimmed == markerSearch && state == stateOutside:
			state = stateSearch
			search = search[:0]
			replace = replace[:0]
		case trimmed == markerDivider && state == stateSearch:
			state = stateReplace
		case trimmed == markerReplace && state == stateReplace:
			blocks = append(blocks, Block{
				Search:  strings.Join(search, "\n"),
				Replace: strings.Join(replace, "\n"),
			})
			search = nil
			replace = nil
			state = stateOutside
		default:
			content := unescapeMarkerLine(trimmed)
			switch state {
			case stateSearch:
				search = append(search, content)
			case stateReplace:
				replace = append(replace, content)
			}
			// Text outside any block (prose around the patch) is ignored.
		}
	}

	if state != stateOutside {
		return nil, errors.New(errors.ErrCodePatchParse, "unterminated SEARCH/REPLACE block").
			WithContext("state", state)
	}
	if len(blocks) == 0 {
		return nil, errors.New(errors.ErrCodePatchParse, "payload contains no SEARCH/REPLACE blocks")
	}

	return blocks, nil
}

// unescapeMarkerLine strips the leading backslash from an escaped marker
// line so the literal marker text takes part in matching.
func unescapeMarkerLine(line string) string {
	if len(line) < 2 || line[0] != '\\' {
		return line
	}
	rest := line[1:]
	if rest == markerSearch || rest == markerDivider || rest == markerReplace {
		return rest
	}
	return line
}

// splitKeepNoEOL splits on \n without manufacturing a trailing empty line
// for payloads that end in a newline.
func splitKeepNoEOL(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}
