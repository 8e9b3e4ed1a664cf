package patch

import (
	"strings"
	"testing"

	"github.com/chisel-dev/chisel/pkg/errors"
)

const sampleFile = `package main

import "fmt"

func main() {
	greeting := "hello"
	fmt.Println(greeting)
}
`

func TestApplyExactMatch(t *testing.T) {
	blocks := []Block{{
		Search:  "greeting := \"hello\"",
		Replace: "greeting := \"goodbye\"",
	}}

	res, err := Apply("main.go", sampleFile, blocks)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Applied != 1 {
		t.Fatalf("expected 1 applied block, got %d", res.Applied)
	}
	if res.Blocks[0].Strategy != StrategyExact {
		t.Errorf("expected exact strategy, got %s", res.Blocks[0].Strategy)
	}
	if !strings.Contains(res.Text, "goodbye") {
		t.Errorf("replacement missing from result")
	}
	if res.UnifiedDiff == "" {
		t.Error("expected a unified diff preview")
	}
}

func TestApplyExactMatchInverseRoundTrip(t *testing.T) {
	forward := []Block{{Search: "greeting := \"hello\"", Replace: "msg := \"hi\""}}
	inverse := []Block{{Search: "msg := \"hi\"", Replace: "greeting := \"hello\""}}

	res, err := Apply("main.go", sampleFile, forward)
	if err != nil {
		t.Fatalf("forward apply: %v", err)
	}
	back, err := Apply("main.go", res.Text, inverse)
	if err != nil {
		t.Fatalf("inverse apply: %v", err)
	}
	if back.Text != sampleFile {
		t.Errorf("round trip did not restore original content:\n%s", back.Text)
	}
}

func TestApplyAmbiguousMatchNeverResolved(t *testing.T) {
	file := "x := 1\ncommon()\ny := 2\ncommon()\n"
	blocks := []Block{{Search: "common()", Replace: "rare()"}}

	_, err := Apply("a.go", file, blocks)
	if !errors.IsCode(err, errors.ErrCodeAmbiguousMatch) {
		t.Fatalf("expected AMBIGUOUS_MATCH, got %v", err)
	}
}

func TestApplyWhitespaceInsensitiveMatch(t *testing.T) {
	// Search written with no indentation; file is tab-indented.
	blocks := []Block{{
		Search:  "greeting := \"hello\"\nfmt.Println(greeting)",
		Replace: "fmt.Println(\"hello\")",
	}}

	res, err := Apply("main.go", sampleFile, blocks)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Blocks[0].Strategy != StrategyWhitespace {
		t.Fatalf("expected whitespace strategy, got %s", res.Blocks[0].Strategy)
	}
	// Replacement must be reindented to the matched region's indentation.
	if !strings.Contains(res.Text, "\tfmt.Println(\"hello\")") {
		t.Errorf("replacement not reindented to matched block:\n%s", res.Text)
	}
}

func TestApplyReindentPreservesRelativeDepth(t *testing.T) {
	file := "func run() {\n\tif ok {\n\t\tdoThing()\n\t}\n}\n"
	blocks := []Block{{
		Search:  "if ok {\n\tdoThing()\n}",
		Replace: "if ok {\n\tdoThing()\n\tdoMore()\n}",
	}}

	res, err := Apply("a.go", file, blocks)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !strings.Contains(res.Text, "\t\tdoMore()") {
		t.Errorf("nested line lost its relative indentation:\n%s", res.Text)
	}
	if !strings.Contains(res.Text, "\tif ok {") {
		t.Errorf("first line not shifted to matched indent:\n%s", res.Text)
	}
}

func TestApplyFuzzyThresholdBoundary(t *testing.T) {
	exact := strings.Repeat("a", 100)

	cases := []struct {
		name     string
		fileLine string
		wantOK   bool
		score    float64
	}{
		{"at threshold", strings.Repeat("a", 80) + strings.Repeat("b", 20), true, 0.80},
		{"below threshold", strings.Repeat("a", 79) + strings.Repeat("b", 21), false, 0.79},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			file := "x := 1\n" + tc.fileLine + "\ny := 2\n"
			blocks := []Block{{Search: exact, Replace: "replaced"}}

			res, err := Apply("a.go", file, blocks)
			if tc.wantOK {
				if err != nil {
					t.Fatalf("expected success at threshold, got %v", err)
				}
				if res.Blocks[0].Strategy != StrategyFuzzy {
					t.Errorf("expected fuzzy strategy, got %s", res.Blocks[0].Strategy)
				}
				if res.Blocks[0].Score < 0.799 || res.Blocks[0].Score > 0.801 {
					t.Errorf("expected score 0.80, got %f", res.Blocks[0].Score)
				}
				return
			}
			if !errors.IsCode(err, errors.ErrCodeNoMatch) {
				t.Fatalf("expected NO_MATCH, got %v", err)
			}
			var chiselErr *errors.Error
			if e, ok := err.(*errors.Error); ok {
				chiselErr = e
			} else {
				t.Fatalf("expected structured error, got %T", err)
			}
			score, _ := chiselErr.Context["best_score"].(float64)
			if score < 0.789 || score > 0.791 {
				t.Errorf("expected reported score 0.79, got %f", score)
			}
		})
	}
}

func TestApplyFuzzyTieGoesToMiddle(t *testing.T) {
	// Two equally-near regions; the one closer to the file midpoint wins.
	near := "alpha beta gamma deltaX"
	var lines []string
	lines = append(lines, near)
	for i := 0; i < 10; i++ {
		lines = append(lines, "filler line that scores poorly")
	}
	lines = append(lines, near)
	for i := 0; i < 2; i++ {
		lines = append(lines, "more filler down here instead")
	}
	file := strings.Join(lines, "\n") + "\n"

	blocks := []Block{{Search: "alpha beta gamma delta!", Replace: "omega"}}
	res, err := Apply("a.txt", file, blocks)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	// Line 12 (1-indexed) is nearer the midpoint of 14 lines than line 1.
	if res.Blocks[0].StartLine != 12 {
		t.Errorf("expected the middle-proximate region (line 12), got line %d", res.Blocks[0].StartLine)
	}
}

func TestApplyPreservesCRLF(t *testing.T) {
	file := "line one\r\nline two\r\nline three\r\n"
	blocks := []Block{{Search: "line two", Replace: "line 2"}}

	res, err := Apply("a.txt", file, blocks)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Text != "line one\r\nline 2\r\nline three\r\n" {
		t.Errorf("line-ending style not preserved: %q", res.Text)
	}
}

func TestApplyRejectsEmptySearch(t *testing.T) {
	_, err := Apply("a.txt", "content\n", []Block{{Search: "  ", Replace: "x"}})
	if !errors.IsCode(err, errors.ErrCodeEmptySearchBlock) {
		t.Fatalf("expected EMPTY_SEARCH_BLOCK, got %v", err)
	}
}

func TestApplyRejectsNoOpBlock(t *testing.T) {
	_, err := Apply("a.txt", "content\n", []Block{{Search: "content", Replace: "content"}})
	if !errors.IsCode(err, errors.ErrCodeNoOpBlock) {
		t.Fatalf("expected NO_OP_BLOCK, got %v", err)
	}
}

func TestApplyPartialSuccess(t *testing.T) {
	blocks := []Block{
		{Search: "text that exists nowhere in this file at all, guaranteed", Replace: "x"},
		{Search: "import \"fmt\"", Replace: "import \"fmt\" // std"},
	}

	res, err := Apply("main.go", sampleFile, blocks)
	if err != nil {
		t.Fatalf("expected partial success, got %v", err)
	}
	if res.Applied != 1 {
		t.Fatalf("expected 1 applied block, got %d", res.Applied)
	}
	if res.Blocks[0].Err == nil {
		t.Error("expected the unmatched block to carry an error")
	}
	if !strings.Contains(res.Text, "// std") {
		t.Error("second block not applied")
	}
}

func TestApplyAllBlocksFailing(t *testing.T) {
	blocks := []Block{
		{Search: "", Replace: "x"},
		{Search: "same", Replace: "same"},
	}
	_, err := Apply("a.txt", "content\n", blocks)
	if err == nil {
		t.Fatal("expected failure when zero blocks apply")
	}
	if !errors.IsCode(err, errors.ErrCodeEmptySearchBlock) {
		t.Errorf("expected the first block error surfaced, got %v", err)
	}
}
