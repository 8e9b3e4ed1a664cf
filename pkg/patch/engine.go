package patch

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/chisel-dev/chisel/pkg/errors"
)

// BlockResult records the outcome of applying one block.
type BlockResult struct {
	Index     int
	Strategy  Strategy
	Score     float64
	StartLine int // 1-indexed line of the matched region
	Err       error
}

// Result is the outcome of applying a multi-block request.
type Result struct {
	Text        string
	Applied     int
	Blocks      []BlockResult
	UnifiedDiff string
}

// Apply runs every block against content, in order, each against the text
// produced by its predecessors. Applying at least one block is a success;
// failed blocks are reported in Result.Blocks. Applying zero blocks is a
// failure carrying the first block error.
func Apply(path, content string, blocks []Block) (*Result, error) {
	return ApplyWithThreshold(path, content, blocks, FuzzyThreshold)
}

// ApplyWithThreshold is Apply with a caller-chosen fuzzy-match threshold.
func ApplyWithThreshold(path, content string, blocks []Block, threshold float64) (*Result, error) {
	if len(blocks) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "no blocks to apply")
	}
	if threshold <= 0 || threshold > 1 {
		threshold = FuzzyThreshold
	}

	// Work on \n internally; restore the file's own line-break style at the
	// end so platform-formatted files round-trip.
	crlf := strings.Contains(content, "\r\n")
	working := content
	if crlf {
		working = strings.ReplaceAll(working, "\r\n", "\n")
	}

	result := &Result{Blocks: make([]BlockResult, 0, len(blocks))}
	for i, block := range blocks {
		br := BlockResult{Index: i}
		next, cand, err := applyBlock(working, block, threshold)
		if err != nil {
			br.Err = err
			result.Blocks = append(result.Blocks, br)
			continue
		}
		br.Strategy = cand.strategy
		br.Score = cand.score
		br.StartLine = cand.startLine + 1
		result.Blocks = append(result.Blocks, br)
		result.Applied++
		working = next
	}

	if result.Applied == 0 {
		return nil, firstBlockError(result.Blocks)
	}

	if crlf {
		working = strings.ReplaceAll(working, "\n", "\r\n")
	}
	result.Text = working
	result.UnifiedDiff = unifiedDiff(path, content, working)
	return result, nil
}

// applyBlock applies a single block, returning the new text and the matched
// candidate. Validation failures and match failures come back as structured
// errors.
func applyBlock(content string, block Block, threshold float64) (string, candidate, error) {
	if strings.TrimSpace(block.Search) == "" {
		return "", candidate{}, errors.New(errors.ErrCodeEmptySearchBlock,
			"empty search blocks are not supported; there is no defensible insertion point")
	}
	if block.Search == block.Replace {
		return "", candidate{}, errors.New(errors.ErrCodeNoOpBlock,
			"search and replace text are identical")
	}

	// Stage 1: exact substring occurrences over the raw text.
	switch n := strings.Count(content, block.Search); {
	case n == 1:
		offset := strings.Index(content, block.Search)
		line := strings.Count(content[:offset], "\n")
		next := strings.Replace(content, block.Search, block.Replace, 1)
		return next, candidate{startLine: line, score: 1.0, strategy: StrategyExact}, nil
	case n > 1:
		return "", candidate{}, errors.New(errors.ErrCodeAmbiguousMatch, "search text matches multiple regions").
			WithContext("strategy", string(StrategyExact)).
			WithContext("occurrences", n)
	}

	// Stages 2 and 3 work line-wise.
	fileLines := strings.Split(content, "\n")
	searchLines := strings.Split(block.Search, "\n")

	cand, err := findLenientMatch(fileLines, searchLines, threshold)
	if err != nil {
		return "", candidate{}, err
	}

	replacement := reindent(
		strings.Split(block.Replace, "\n"),
		leadingWhitespace(searchLines[0]),
		leadingWhitespace(fileLines[cand.startLine]),
	)

	next := make([]string, 0, len(fileLines)-len(searchLines)+len(replacement))
	next = append(next, fileLines[:cand.startLine]...)
	next = append(next, replacement...)
	next = append(next, fileLines[cand.startLine+len(searchLines):]...)

	return strings.Join(next, "\n"), cand, nil
}

// reindent shifts the replacement lines by the indentation delta between the
// search block's first line and the matched region's first line, preserving
// each line's relative indentation. This keeps patches correct when the
// surrounding code has been reformatted since the model last read it.
func reindent(replaceLines []string, searchIndent, matchedIndent string) []string {
	if searchIndent == matchedIndent {
		return replaceLines
	}

	out := make([]string, len(replaceLines))
	for i, line := range replaceLines {
		if strings.TrimSpace(line) == "" {
			out[i] = line
			continue
		}
		indent := leadingWhitespace(line)
		rest := line[len(indent):]
		if rel, ok := strings.CutPrefix(indent, searchIndent); ok {
			out[i] = matchedIndent + rel + rest
		} else {
			// Line was indented less than the block's first line; rebase it
			// onto the matched indentation rather than going negative.
			out[i] = matchedIndent + rest
		}
	}
	return out
}

func leadingWhitespace(line string) string {
	return line[:len(line)-len(strings.TrimLeft(line, " \t"))]
}

func firstBlockError(blocks []BlockResult) error {
	for _, br := range blocks {
		if br.Err != nil {
			return br.Err
		}
	}
	return errors.New(errors.ErrCodeInternal, "no block applied and no block error recorded")
}

func unifiedDiff(path, from, to string) string {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(from),
		B:        difflib.SplitLines(to),
		FromFile: path,
		ToFile:   path,
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return fmt.Sprintf("diff unavailable: %v", err)
	}
	return text
}
